package session

import (
	"context"
	"errors"
	"testing"

	"go-surface/bus"
	"go-surface/config"
	"go-surface/mapping"
	"go-surface/midi"
	"go-surface/processor"
	"go-surface/source"
)

func newSession(t *testing.T) (*Session, processor.Channels, *bus.Bus[processor.DomainEvent]) {
	t.Helper()
	ch := processor.NewChannels(config.DefaultConfig().Processor)
	domain := bus.New[processor.DomainEvent]()
	return New(context.Background(), ch, domain), ch, domain
}

// lastNormal empties the normal channel and returns the last task
func lastNormal(ch processor.Channels) (processor.NormalTask, int) {
	var last processor.NormalTask
	n := 0
	for {
		select {
		case t := <-ch.Normal:
			last = t
			n++
		default:
			return last, n
		}
	}
}

func TestAddAndDuplicateMapping(t *testing.T) {
	s, ch, _ := newSession(t)
	id, err := s.AddMapping(mapping.Main, mapping.DefaultGroupID)
	if err != nil {
		t.Fatalf("AddMapping failed: %v", err)
	}
	if task, n := lastNormal(ch); n != 1 || task.Kind != processor.UpdateSingleMapping || task.Mapping.ID != id {
		t.Errorf("Expected one single mapping update for %d, got %d tasks (%+v)", id, n, task)
	}
	if err := s.ChangeMapping(mapping.Main, id, SetName{Name: "Fader"}, SetTags{Tags: []string{"a"}}); err != nil {
		t.Fatalf("ChangeMapping failed: %v", err)
	}

	dup, err := s.DuplicateMapping(mapping.Main, id)
	if err != nil {
		t.Fatalf("DuplicateMapping failed: %v", err)
	}
	orig, _ := s.Mapping(mapping.Main, id)
	cp, _ := s.Mapping(mapping.Main, dup)
	if dup == id || cp.Key == orig.Key {
		t.Errorf("Expected fresh id and key, got %d/%s", dup, cp.Key)
	}
	if cp.Name != "Fader" || !cp.HasTag("a") {
		t.Errorf("Expected copied fields, got %+v", cp)
	}
	if task, _ := lastNormal(ch); task.Kind != processor.UpdateAllMappings || len(task.Mappings) != 2 {
		t.Errorf("Expected full compartment update with 2 mappings, got %+v", task)
	}
}

func TestRemoveGroup(t *testing.T) {
	tests := []struct {
		name       string
		deleteThem bool
		wantLeft   int
	}{
		{"delete mappings", true, 1},
		{"move to default", false, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, _ := newSession(t)
			g := s.AddGroup(mapping.Main, "Bank B")
			s.AddMapping(mapping.Main, mapping.DefaultGroupID)
			s.AddMapping(mapping.Main, g)
			s.AddMapping(mapping.Main, g)

			if err := s.RemoveGroup(mapping.Main, g, tt.deleteThem); err != nil {
				t.Fatalf("RemoveGroup failed: %v", err)
			}
			ms := s.Mappings(mapping.Main)
			if len(ms) != tt.wantLeft {
				t.Errorf("Expected %d mappings, got %d", tt.wantLeft, len(ms))
			}
			for _, m := range ms {
				if m.Group != mapping.DefaultGroupID {
					t.Errorf("Expected mapping %d in default group, got %d", m.ID, m.Group)
				}
			}
		})
	}

	s, _, _ := newSession(t)
	if err := s.RemoveGroup(mapping.Main, mapping.DefaultGroupID, false); !errors.Is(err, mapping.ErrDefaultGroupUndeletable) {
		t.Errorf("Expected ErrDefaultGroupUndeletable, got %v", err)
	}
}

func TestReentrantMutationPanics(t *testing.T) {
	s, _, _ := newSession(t)
	var recovered any
	s.Events().Subscribe("meddler", func(ev Event) {
		if ev.Kind != MappingListChanged {
			return
		}
		defer func() { recovered = recover() }()
		s.AddMapping(mapping.Main, mapping.DefaultGroupID)
	})
	if _, err := s.AddMapping(mapping.Main, mapping.DefaultGroupID); err != nil {
		t.Fatalf("AddMapping failed: %v", err)
	}
	if recovered != ErrReentrantMutation {
		t.Errorf("Expected ErrReentrantMutation panic, got %v", recovered)
	}
	if n := len(s.Mappings(mapping.Main)); n != 1 {
		t.Errorf("Expected 1 mapping, got %d", n)
	}

	// deferred subscribers may change the session
	s.Events().Unsubscribe("meddler")
	s.Events().SubscribeDeferred("follower", func(ev Event) {
		if ev.Kind == MappingChanged && ev.ID == 1 {
			s.ChangeMapping(mapping.Main, 1, SetName{Name: "renamed"})
		}
	})
	s.ChangeMapping(mapping.Main, 1, SetEnabled{On: false})
	s.Tick()
	if m, _ := s.Mapping(mapping.Main, 1); m.Name != "renamed" {
		t.Errorf("Expected deferred change, got %q", m.Name)
	}
}

func TestLearnSource(t *testing.T) {
	s, ch, domain := newSession(t)
	id, _ := s.AddMapping(mapping.Main, mapping.DefaultGroupID)
	qid := mapping.QualifiedID{Compartment: mapping.Main, ID: id}
	lastNormal(ch)

	if err := s.StartLearnSource(context.Background(), qid); err != nil {
		t.Fatalf("StartLearnSource failed: %v", err)
	}
	if task, _ := lastNormal(ch); task.Kind != processor.StartLearning {
		t.Errorf("Expected StartLearning task, got %v", task.Kind)
	}
	if st, _ := s.Learn(); st != LearnWaiting {
		t.Errorf("Expected waiting, got %v", st)
	}

	domain.Publish(processor.DomainEvent{Kind: processor.LearnedSource, Learned: midi.NewCC(2, 74, 10)})
	domain.Drain(0)

	if st, _ := s.Learn(); st != LearnCaptured {
		t.Errorf("Expected captured, got %v", st)
	}
	m, _ := s.Mapping(mapping.Main, id)
	want := source.CC(2, 74)
	if m.Source.Category != source.CategoryMidi || m.Source.Midi.Channel != want.Channel || m.Source.Midi.Number != want.Number {
		t.Errorf("Expected learned CC 74 on channel 2, got %v", m.Source)
	}
	if task, _ := lastNormal(ch); task.Kind != processor.StopLearning {
		t.Errorf("Expected StopLearning task, got %v", task.Kind)
	}

	// a second message doesn't change anything once captured
	domain.Publish(processor.DomainEvent{Kind: processor.LearnedSource, Learned: midi.NewCC(0, 1, 1)})
	domain.Drain(0)
	if m2, _ := s.Mapping(mapping.Main, id); m2.Source.Midi.Number != want.Number {
		t.Errorf("Expected source unchanged, got %v", m2.Source)
	}
}

func TestLearnCanceledWithContext(t *testing.T) {
	s, ch, _ := newSession(t)
	id, _ := s.AddMapping(mapping.Controller, mapping.DefaultGroupID)
	ctx, cancel := context.WithCancel(context.Background())
	s.StartLearnSource(ctx, mapping.QualifiedID{Compartment: mapping.Controller, ID: id})
	lastNormal(ch)

	s.Tick()
	if st, _ := s.Learn(); st != LearnWaiting {
		t.Fatalf("Expected waiting, got %v", st)
	}
	cancel()
	s.Tick()
	if st, _ := s.Learn(); st != LearnIdle {
		t.Errorf("Expected idle after cancel, got %v", st)
	}
	if task, _ := lastNormal(ch); task.Kind != processor.StopLearning {
		t.Errorf("Expected StopLearning task, got %v", task.Kind)
	}

	if err := s.StartLearnSource(context.Background(), mapping.QualifiedID{Compartment: mapping.Main, ID: 42}); !errors.Is(err, mapping.ErrMappingNotFound) {
		t.Errorf("Expected ErrMappingNotFound, got %v", err)
	}
}

func TestDomainEventsUpdateModel(t *testing.T) {
	s, _, domain := newSession(t)
	id, _ := s.AddMapping(mapping.Main, mapping.DefaultGroupID)
	var notes []Notification
	s.Events().Subscribe("ui", func(ev Event) {
		if ev.Kind == Notified {
			notes = append(notes, ev.Notification)
		}
	})

	domain.Publish(processor.DomainEvent{Kind: processor.MappingEnabledChangeRequested, Compartment: mapping.Main, ID: id, Enabled: false})
	domain.Publish(processor.DomainEvent{Kind: processor.MappingEnabledChangeRequested, Compartment: mapping.Main, ID: 99})
	domain.Publish(processor.DomainEvent{Kind: processor.UpdatedOnMappings, OnMappings: []mapping.QualifiedID{{Compartment: mapping.Main, ID: id}}})
	domain.Publish(processor.DomainEvent{Kind: processor.ControlFailed, Err: errors.New("boom")})
	domain.Drain(0)

	if m, _ := s.Mapping(mapping.Main, id); m.Enabled {
		t.Error("Expected mapping disabled by the processor request")
	}
	if !s.IsMappingOn(mapping.QualifiedID{Compartment: mapping.Main, ID: id}) {
		t.Error("Expected mapping reported on")
	}
	if len(notes) != 1 || notes[0].String() != "control failed: boom" {
		t.Errorf("Expected one control failure notification, got %v", notes)
	}
}

func TestSetParamSendsTask(t *testing.T) {
	s, ch, _ := newSession(t)
	if err := s.SetParam(mapping.Main, 5, 0.5); err != nil {
		t.Fatalf("SetParam failed: %v", err)
	}
	s.SetParam(mapping.Main, 5, 0.5) // unchanged, no task
	if len(ch.Parameter) != 1 {
		t.Fatalf("Expected 1 parameter task, got %d", len(ch.Parameter))
	}
	task := <-ch.Parameter
	if task.Index != 5 || task.Value != 0.5 {
		t.Errorf("Expected p[5] = 0.5, got p[%d] = %v", task.Index, task.Value)
	}
	if err := s.SetParam(mapping.Main, 100, 1); !errors.Is(err, mapping.ErrParamOutOfRange) {
		t.Errorf("Expected ErrParamOutOfRange, got %v", err)
	}
}

func TestBulkUpdateCarriesParams(t *testing.T) {
	tests := []struct {
		name string
		run  func(s *Session) error
		want float64
	}{
		{"import", func(s *Session) error {
			var d mapping.Data
			d.Params[3] = 1
			return s.Import(mapping.Main, d)
		}, 1},
		{"reset", func(s *Session) error {
			s.ResetCompartment(mapping.Main)
			return nil
		}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ch, _ := newSession(t)
			if err := s.SetParam(mapping.Main, 3, 0.5); err != nil {
				t.Fatalf("SetParam failed: %v", err)
			}
			<-ch.Parameter
			if err := tt.run(s); err != nil {
				t.Fatalf("bulk update failed: %v", err)
			}
			if len(ch.Parameter) != 0 {
				t.Errorf("Expected no separate parameter task, got %d", len(ch.Parameter))
			}
			task, n := lastNormal(ch)
			if n != 1 || task.Kind != processor.UpdateAllMappings {
				t.Fatalf("Expected one full update, got %d tasks (%+v)", n, task)
			}
			if task.Params == nil {
				t.Fatal("Expected parameters with the full update")
			}
			if got := task.Params[3]; got != tt.want {
				t.Errorf("Expected p[3] = %v, got %v", tt.want, got)
			}
		})
	}
}
