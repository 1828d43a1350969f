package engine

import (
	"go-surface/clip/rt"
	"go-surface/host"
	"go-surface/mapping"
	"go-surface/session"
)

// MappingView is a mapping as shown in lists
type MappingView struct {
	ID      mapping.ID
	Name    string
	Source  string
	Target  string
	Enabled bool
	On      bool
}

// SlotView is one cell of the matrix
type SlotView struct {
	Filled    bool
	PlayState rt.PlayState
}

// Snapshot is a copy of what a UI shows, taken between two ticks
type Snapshot struct {
	Compartment  mapping.Compartment
	Mappings     []MappingView
	Dirty        bool
	Learn        session.LearnState
	Learning     mapping.ID
	Notification session.Notification

	Slots       [][]SlotView // [column][row]
	Tempo       float64
	PlayState   host.PlayState
	Controllers []string
	Feedback    bool
	Stats       Stats
}

// Snapshot collects the state of compartment c and the matrix
func (e *Engine) Snapshot(c mapping.Compartment) Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{
		Compartment: c,
		Dirty:       e.session.Dirty(c),
		Tempo:       e.project.Tempo(),
		PlayState:   e.project.PlayState(),
		Controllers: e.outputs.IDs(),
		Feedback:    e.session.FeedbackEnabled(),
		Stats:       e.stats(),
	}
	snap.Notification, _ = e.session.LastNotification()
	state, qid := e.session.Learn()
	snap.Learn = state
	if qid.Compartment == c {
		snap.Learning = qid.ID
	}

	for _, m := range e.session.Mappings(c) {
		v := MappingView{
			ID:      m.ID,
			Name:    m.Name,
			Source:  m.Source.String(),
			Enabled: m.Enabled,
			On:      e.session.IsMappingOn(mapping.QualifiedID{Compartment: c, ID: m.ID}),
		}
		if m.Target != nil {
			v.Target = string(m.Target.Kind())
		}
		snap.Mappings = append(snap.Mappings, v)
	}

	for _, col := range e.matrix.Columns() {
		slots := make([]SlotView, 0, e.matrix.Rows())
		for _, slot := range col.Slots() {
			v := SlotView{Filled: !slot.IsEmpty()}
			if ps, err := slot.ClipPlayState(); err == nil {
				v.PlayState = ps
			}
			slots = append(slots, v)
		}
		snap.Slots = append(snap.Slots, slots)
	}
	return snap
}
