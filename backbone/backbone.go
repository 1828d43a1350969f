// Package backbone holds the state shared by all surface instances of a process:
// clip matrices, the last touched parameter, upper floor membership and
// mapping snapshots. It is created once at startup and passed explicitly to
// whoever needs it.
package backbone

import (
	"log/slog"
	"sync"

	"github.com/pkg/errors"

	"go-surface/clip"
	"go-surface/control"
	"go-surface/host"
)

var (
	ErrNoMatrix        = errors.New("instance has no clip matrix")
	ErrNoSnapshot      = errors.New("snapshot doesn't exist")
	ErrNoLastTouched   = errors.New("no parameter touched yet")
	ErrInstanceUnknown = errors.New("instance not registered")
)

// Snapshot maps mapping keys to captured target values
type Snapshot map[string]control.AbsoluteValue

// Backbone is the process-wide shared context. All methods are safe for
// concurrent use, although the engine only calls them from the main goroutine.
type Backbone struct {
	mu          sync.Mutex
	instances   map[string]struct{}
	matrices    map[string]*clip.Matrix
	snapshots   map[string]map[string]Snapshot
	upperFloor  map[string]struct{}
	lastTouched *host.ParamRef
}

func New() *Backbone {
	return &Backbone{
		instances:  make(map[string]struct{}),
		matrices:   make(map[string]*clip.Matrix),
		snapshots:  make(map[string]map[string]Snapshot),
		upperFloor: make(map[string]struct{}),
	}
}

// Register announces a surface instance
func (b *Backbone) Register(instanceID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.instances[instanceID] = struct{}{}
	slog.Info("instance registered", "instance", instanceID)
}

// Unregister drops everything owned by an instance
func (b *Backbone) Unregister(instanceID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.instances, instanceID)
	delete(b.matrices, instanceID)
	delete(b.snapshots, instanceID)
	delete(b.upperFloor, instanceID)
	slog.Info("instance unregistered", "instance", instanceID)
}

func (b *Backbone) Instances() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.instances))
	for id := range b.instances {
		ids = append(ids, id)
	}
	return ids
}

// SetMatrix attaches a clip matrix to an instance, nil detaches it
func (b *Backbone) SetMatrix(instanceID string, m *clip.Matrix) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.instances[instanceID]; !ok {
		return ErrInstanceUnknown
	}
	if m == nil {
		delete(b.matrices, instanceID)
		return nil
	}
	b.matrices[instanceID] = m
	return nil
}

// Matrix returns the clip matrix of an instance
func (b *Backbone) Matrix(instanceID string) (*clip.Matrix, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.matrices[instanceID]
	if !ok {
		return nil, ErrNoMatrix
	}
	return m, nil
}

// SetLastTouched records the most recently touched parameter, across instances
func (b *Backbone) SetLastTouched(ref host.ParamRef) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastTouched = &ref
}

// LastTouched returns the parameter recorded by SetLastTouched, falling back
// to what the project reports
func (b *Backbone) LastTouched(p host.Project) (host.ParamRef, error) {
	b.mu.Lock()
	ref := b.lastTouched
	b.mu.Unlock()
	if ref != nil {
		return *ref, nil
	}
	if p != nil {
		if r, ok := p.LastTouched(); ok {
			return r, nil
		}
	}
	return host.ParamRef{}, ErrNoLastTouched
}

// AddToUpperFloor puts an instance on the upper floor. As long as the upper
// floor is occupied, only its members may control.
func (b *Backbone) AddToUpperFloor(instanceID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.upperFloor[instanceID] = struct{}{}
}

func (b *Backbone) RemoveFromUpperFloor(instanceID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.upperFloor, instanceID)
}

// IsAllowedToControl reports whether an instance may currently process control input
func (b *Backbone) IsAllowedToControl(instanceID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.upperFloor) == 0 {
		return true
	}
	_, ok := b.upperFloor[instanceID]
	return ok
}

// SaveSnapshot merges values into the named snapshot of an instance
func (b *Backbone) SaveSnapshot(instanceID, snapshotID string, values Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	byID, ok := b.snapshots[instanceID]
	if !ok {
		byID = make(map[string]Snapshot)
		b.snapshots[instanceID] = byID
	}
	snap, ok := byID[snapshotID]
	if !ok {
		snap = make(Snapshot, len(values))
		byID[snapshotID] = snap
	}
	for k, v := range values {
		snap[k] = v
	}
}

// Snapshot returns a copy of the named snapshot
func (b *Backbone) Snapshot(instanceID, snapshotID string) (Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	snap, ok := b.snapshots[instanceID][snapshotID]
	if !ok {
		return nil, ErrNoSnapshot
	}
	out := make(Snapshot, len(snap))
	for k, v := range snap {
		out[k] = v
	}
	return out, nil
}
