package clip

import (
	"sync"
	"sync/atomic"

	"github.com/vmihailenco/msgpack/v5"
)

// Update is a slot change of a specific matrix
type Update struct {
	MatrixID string      `msgpack:"matrix"`
	Column   int         `msgpack:"column"`
	Row      int         `msgpack:"row"`
	Event    ChangeEvent `msgpack:"event"`
}

// Hub broadcasts matrix updates to subscribers. Each subscriber only sees the
// updates of the matrix it subscribed to.
type Hub struct {
	mu      sync.Mutex
	subs    map[int]*subscription
	nextID  int
	dropped atomic.Uint64
}

type subscription struct {
	matrixID string
	ch       chan []Update
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]*subscription)}
}

// Subscribe returns a channel of update batches and a function to unsubscribe
func (h *Hub) Subscribe(matrixID string, buffer int) (<-chan []Update, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	sub := &subscription{matrixID: matrixID, ch: make(chan []Update, max(buffer, 1))}
	h.subs[id] = sub
	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			close(sub.ch)
		})
	}
}

// Publish sends a batch to all subscribers of the matrix. Slow subscribers lose
// the batch.
func (h *Hub) Publish(matrixID string, updates []Update) {
	if len(updates) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		if sub.matrixID != matrixID {
			continue
		}
		select {
		case sub.ch <- updates:
		default:
			h.dropped.Add(1)
		}
	}
}

// Dropped counts batches lost to full subscriber channels
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// EncodeUpdates serializes a batch for the wire
func EncodeUpdates(updates []Update) ([]byte, error) {
	return msgpack.Marshal(updates)
}

func DecodeUpdates(data []byte) ([]Update, error) {
	var updates []Update
	if err := msgpack.Unmarshal(data, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}
