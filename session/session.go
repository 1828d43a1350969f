// Package session owns the mapping model of both compartments. It is the
// single writer: every change goes through its methods, which then push
// fresh copies to the main processor.
package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"go-surface/bus"
	"go-surface/mapping"
	"go-surface/processor"
)

// ErrReentrantMutation is the panic value when a sync event handler tries to
// change the session while it is still dispatching
var ErrReentrantMutation = errors.New("session changed during event dispatch")

// EventKind identifies a session Event
type EventKind uint8

const (
	MappingChanged EventKind = iota
	MappingListChanged
	GroupListChanged
	ParameterChanged
	LearnStateChanged
	OnMappingsChanged
	Notified
)

// Event tells listeners what changed in the session
type Event struct {
	Kind         EventKind
	Compartment  mapping.Compartment
	ID           mapping.ID
	Notification Notification
}

// Notification is a user-visible failure or hint
type Notification struct {
	Time    time.Time
	Message string
	Err     error
}

func (n Notification) String() string {
	if n.Err != nil {
		return n.Message + ": " + n.Err.Error()
	}
	return n.Message
}

// Session is not safe for concurrent use; it lives on the main goroutine
// together with the main processor
type Session struct {
	ctx    context.Context
	models [len(mapping.Compartments)]*mapping.Model
	ch     processor.Channels
	domain *bus.Bus[processor.DomainEvent]
	events *bus.Bus[Event]

	learn    learner
	on       map[mapping.QualifiedID]bool
	feedback bool
	last     Notification
}

// New creates an empty session. domain is the main processor's event bus and
// may be nil.
func New(ctx context.Context, ch processor.Channels, domain *bus.Bus[processor.DomainEvent]) *Session {
	s := &Session{
		ctx:      ctx,
		ch:       ch,
		domain:   domain,
		events:   bus.New[Event](),
		on:       make(map[mapping.QualifiedID]bool),
		feedback: true,
	}
	for _, c := range mapping.Compartments {
		s.models[c] = mapping.NewModel(c)
	}
	if domain != nil {
		if err := domain.SubscribeDeferred("session", s.handleDomainEvent); err != nil {
			slog.Error("session subscription failed", "err", err)
		}
	}
	return s
}

// Events is the session's own bus. Sync subscribers must not change the
// session.
func (s *Session) Events() *bus.Bus[Event] { return s.events }

// Close stops listening to the processor
func (s *Session) Close() {
	if s.domain != nil {
		s.domain.Unsubscribe("session")
	}
	s.events.Close()
}

// Tick runs deferred session events and cancels learning once the session
// context is gone
func (s *Session) Tick() {
	if s.learn.state == LearnWaiting && (s.learnDone() || s.ctx.Err() != nil) {
		slog.Info("learning canceled", "mapping", s.learn.target.ID)
		s.CancelLearn()
	}
	s.events.Drain(0)
}

func (s *Session) checkWritable() {
	if s.events.Dispatching() || (s.domain != nil && s.domain.Dispatching()) {
		panic(ErrReentrantMutation)
	}
}

func (s *Session) publish(ev Event) {
	s.events.Publish(ev)
}

// notify consolidates failures into one notification
func (s *Session) notify(msg string, err error) {
	n := Notification{Time: time.Now(), Message: msg, Err: err}
	s.last = n
	slog.Warn(msg, "err", err)
	s.publish(Event{Kind: Notified, Notification: n})
}

// LastNotification returns the most recent notification
func (s *Session) LastNotification() (Notification, bool) {
	return s.last, s.last.Message != ""
}

func (s *Session) send(t processor.NormalTask) {
	if err := s.ch.SendNormal(t); err != nil {
		s.notify("processor busy", err)
	}
}

// Mappings returns copies of the mappings of a compartment in list order
func (s *Session) Mappings(c mapping.Compartment) []mapping.Mapping {
	return s.models[c].Mappings()
}

func (s *Session) Mapping(c mapping.Compartment, id mapping.ID) (mapping.Mapping, bool) {
	return s.models[c].Get(id)
}

func (s *Session) Groups(c mapping.Compartment) []mapping.Group {
	return s.models[c].Groups()
}

// Param returns the value of compartment parameter i
func (s *Session) Param(c mapping.Compartment, i int) (float64, bool) {
	return s.models[c].Params().Get(i)
}

// IsMappingOn reports what the processor last said about the mapping
func (s *Session) IsMappingOn(qid mapping.QualifiedID) bool {
	return s.on[qid]
}

// Dirty reports unsaved changes in a compartment
func (s *Session) Dirty(c mapping.Compartment) bool {
	return s.models[c].Dirty()
}

func (s *Session) MarkClean(c mapping.Compartment) {
	s.models[c].MarkClean()
}

// AddMapping adds a default mapping to a group
func (s *Session) AddMapping(c mapping.Compartment, group mapping.GroupID) (mapping.ID, error) {
	m := mapping.New(c)
	m.Group = group
	return s.InsertMapping(m)
}

// InsertMapping adds a fully configured mapping. The id is assigned by the
// session.
func (s *Session) InsertMapping(m mapping.Mapping) (mapping.ID, error) {
	s.checkWritable()
	c := m.Compartment
	id, err := s.models[c].Add(m)
	if err != nil {
		return 0, err
	}
	s.syncMapping(c, id)
	s.publish(Event{Kind: MappingListChanged, Compartment: c, ID: id})
	return id, nil
}

// ChangeMapping applies the commands in order as one change
func (s *Session) ChangeMapping(c mapping.Compartment, id mapping.ID, cmds ...MappingCommand) error {
	s.checkWritable()
	err := s.models[c].Update(id, func(m *mapping.Mapping) {
		for _, cmd := range cmds {
			cmd.apply(m)
		}
	})
	if err != nil {
		return err
	}
	s.syncMapping(c, id)
	s.publish(Event{Kind: MappingChanged, Compartment: c, ID: id})
	return nil
}

// DuplicateMapping copies a mapping with a fresh id and key right after the
// original
func (s *Session) DuplicateMapping(c mapping.Compartment, id mapping.ID) (mapping.ID, error) {
	s.checkWritable()
	dup, err := s.models[c].Duplicate(id)
	if err != nil {
		return 0, err
	}
	s.syncCompartment(c)
	s.publish(Event{Kind: MappingListChanged, Compartment: c, ID: dup})
	return dup, nil
}

func (s *Session) RemoveMapping(c mapping.Compartment, id mapping.ID) error {
	s.checkWritable()
	if err := s.models[c].Remove(id); err != nil {
		return err
	}
	if s.learn.state == LearnWaiting && s.learn.target == (mapping.QualifiedID{Compartment: c, ID: id}) {
		s.CancelLearn()
	}
	s.syncCompartment(c)
	s.publish(Event{Kind: MappingListChanged, Compartment: c, ID: id})
	return nil
}

// AddGroup creates an empty group
func (s *Session) AddGroup(c mapping.Compartment, name string) mapping.GroupID {
	s.checkWritable()
	id := s.models[c].AddGroup(mapping.NewGroup(name))
	s.publish(Event{Kind: GroupListChanged, Compartment: c})
	return id
}

// ChangeGroup applies fn to a group. Group flags and activation affect all
// its mappings, so the whole compartment is synced.
func (s *Session) ChangeGroup(c mapping.Compartment, id mapping.GroupID, fn func(g *mapping.Group)) error {
	s.checkWritable()
	if err := s.models[c].UpdateGroup(id, fn); err != nil {
		return err
	}
	s.syncCompartment(c)
	s.publish(Event{Kind: GroupListChanged, Compartment: c})
	return nil
}

// RemoveGroup deletes a group and either its mappings or moves them to the
// default group
func (s *Session) RemoveGroup(c mapping.Compartment, id mapping.GroupID, deleteMappings bool) error {
	s.checkWritable()
	removed, err := s.models[c].RemoveGroup(id, deleteMappings)
	if err != nil {
		return err
	}
	if s.learn.state == LearnWaiting && s.learn.target.Compartment == c {
		for _, r := range removed {
			if r == s.learn.target.ID {
				s.CancelLearn()
			}
		}
	}
	s.syncCompartment(c)
	s.publish(Event{Kind: GroupListChanged, Compartment: c})
	if len(removed) > 0 {
		s.publish(Event{Kind: MappingListChanged, Compartment: c})
	}
	return nil
}

// SetParam changes a compartment parameter
func (s *Session) SetParam(c mapping.Compartment, i int, v float64) error {
	s.checkWritable()
	changed, err := s.models[c].SetParam(i, v)
	if err != nil || !changed {
		return err
	}
	v, _ = s.models[c].Params().Get(i)
	if err := s.ch.SendParameter(processor.ParameterTask{Compartment: c, Index: i, Value: v}); err != nil {
		s.notify("parameter not sent", err)
	}
	s.publish(Event{Kind: ParameterChanged, Compartment: c, ID: mapping.ID(i)})
	return nil
}

// SetFeedbackEnabled switches all feedback on or off
func (s *Session) SetFeedbackEnabled(on bool) {
	s.checkWritable()
	s.feedback = on
	s.send(processor.NormalTask{Kind: processor.UpdateFeedbackGloballyEnabled, Enabled: on})
}

func (s *Session) FeedbackEnabled() bool { return s.feedback }

// Export copies the content of a compartment
func (s *Session) Export(c mapping.Compartment) mapping.Data {
	return s.models[c].Export()
}

// Import replaces the content of a compartment
func (s *Session) Import(c mapping.Compartment, d mapping.Data) error {
	s.checkWritable()
	if s.learn.state == LearnWaiting && s.learn.target.Compartment == c {
		s.CancelLearn()
	}
	if err := s.models[c].Import(d); err != nil {
		// keep what we have in the processor, but the model was reset
		s.syncCompartment(c)
		s.publish(Event{Kind: MappingListChanged, Compartment: c})
		return errors.Wrapf(err, "import %s", c)
	}
	s.syncCompartment(c)
	s.publish(Event{Kind: MappingListChanged, Compartment: c})
	s.publish(Event{Kind: GroupListChanged, Compartment: c})
	return nil
}

// ResetCompartment removes all mappings and groups of a compartment
func (s *Session) ResetCompartment(c mapping.Compartment) {
	s.checkWritable()
	if s.learn.state == LearnWaiting && s.learn.target.Compartment == c {
		s.CancelLearn()
	}
	s.models[c].Reset()
	s.syncCompartment(c)
	s.publish(Event{Kind: MappingListChanged, Compartment: c})
}

// SyncAll pushes both compartments to the processor
func (s *Session) SyncAll() {
	for _, c := range mapping.Compartments {
		s.syncCompartment(c)
	}
}

func (s *Session) processorCopy(c mapping.Compartment, m mapping.Mapping) *processor.MainMapping {
	g, ok := s.models[c].Group(m.Group)
	if !ok {
		g, _ = s.models[c].Group(mapping.DefaultGroupID)
	}
	return processor.NewMainMapping(m, g)
}

func (s *Session) syncMapping(c mapping.Compartment, id mapping.ID) {
	m, ok := s.models[c].Get(id)
	if !ok {
		panic(errors.Errorf("session: syncing unknown %s mapping %d", c, id))
	}
	s.send(processor.NormalTask{Kind: processor.UpdateSingleMapping, Compartment: c, Mapping: s.processorCopy(c, m)})
}

func (s *Session) syncCompartment(c mapping.Compartment) {
	ms := s.models[c].Mappings()
	list := make([]*processor.MainMapping, len(ms))
	for i, m := range ms {
		list[i] = s.processorCopy(c, m)
	}
	// parameters travel with the batch so the new mappings never see stale ones
	params := s.models[c].Params().Values()
	s.send(processor.NormalTask{Kind: processor.UpdateAllMappings, Compartment: c, Mappings: list, Params: &params})
}

// handleDomainEvent runs deferred, on the main goroutine, after the
// processor pass that produced the event
func (s *Session) handleDomainEvent(ev processor.DomainEvent) {
	switch ev.Kind {
	case processor.MappingEnabledChangeRequested:
		// the processor already switched its copy
		err := s.models[ev.Compartment].Update(ev.ID, func(m *mapping.Mapping) { m.Enabled = ev.Enabled })
		if err != nil {
			slog.Debug("enable request for stale mapping", "id", ev.ID, "err", err)
			return
		}
		s.publish(Event{Kind: MappingChanged, Compartment: ev.Compartment, ID: ev.ID})
	case processor.LearnedSource:
		s.onLearned(ev.Learned, ev.LearnedOsc)
	case processor.UpdatedOnMappings:
		clear(s.on)
		for _, q := range ev.OnMappings {
			s.on[q] = true
		}
		s.publish(Event{Kind: OnMappingsChanged})
	case processor.ControlFailed:
		s.notify("control failed", ev.Err)
	}
}
