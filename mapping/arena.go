package mapping

// Handle addresses an arena entry. A handle whose entry was removed stays
// invalid even after the slot is reused, because the generation moved on.
type Handle struct {
	index uint32
	gen   uint32
}

// IsZero reports the zero handle, which never addresses anything
func (h Handle) IsZero() bool {
	return h.gen == 0
}

type entry[T any] struct {
	gen   uint32 // odd while occupied
	value T
}

// Arena stores values in a slice and hands out generational handles.
// Not safe for concurrent use; the owning session is the single writer.
type Arena[T any] struct {
	entries []entry[T]
	free    []uint32
	len     int
}

// Insert stores v and returns its handle
func (a *Arena[T]) Insert(v T) Handle {
	var i uint32
	if n := len(a.free); n > 0 {
		i = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		i = uint32(len(a.entries))
		a.entries = append(a.entries, entry[T]{})
	}
	e := &a.entries[i]
	e.gen++
	e.value = v
	a.len++
	return Handle{index: i, gen: e.gen}
}

func (a *Arena[T]) valid(h Handle) bool {
	return h.gen != 0 && int(h.index) < len(a.entries) && a.entries[h.index].gen == h.gen
}

// Get returns a pointer to the stored value. The pointer is only good until
// the next Insert.
func (a *Arena[T]) Get(h Handle) (*T, bool) {
	if !a.valid(h) {
		return nil, false
	}
	return &a.entries[h.index].value, true
}

// Remove frees the entry of h. Removing a stale handle is a no-op.
func (a *Arena[T]) Remove(h Handle) (T, bool) {
	var zero T
	if !a.valid(h) {
		return zero, false
	}
	e := &a.entries[h.index]
	v := e.value
	e.value = zero
	e.gen++
	a.free = append(a.free, h.index)
	a.len--
	return v, true
}

func (a *Arena[T]) Len() int {
	return a.len
}

// Clear removes everything. Old handles stay invalid.
func (a *Arena[T]) Clear() {
	for i := range a.entries {
		if a.entries[i].gen%2 == 1 {
			a.Remove(Handle{index: uint32(i), gen: a.entries[i].gen})
		}
	}
}
