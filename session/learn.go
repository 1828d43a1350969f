package session

import (
	"context"
	"log/slog"

	"github.com/hypebeast/go-osc/osc"
	"github.com/pkg/errors"

	"go-surface/mapping"
	"go-surface/midi"
	"go-surface/processor"
	"go-surface/source"
)

// LearnState is the state of source learning
type LearnState uint8

const (
	LearnIdle LearnState = iota
	// LearnWaiting waits for the next incoming message
	LearnWaiting
	// LearnCaptured means the last learn run assigned a source
	LearnCaptured
)

func (s LearnState) String() string {
	switch s {
	case LearnWaiting:
		return "waiting"
	case LearnCaptured:
		return "captured"
	}
	return "idle"
}

type learner struct {
	state  LearnState
	target mapping.QualifiedID
	ctx    context.Context
}

// StartLearnSource makes the next incoming MIDI or OSC message the source of
// the mapping. Starting again while waiting just switches the mapping.
// Learning stops on its own when ctx ends.
func (s *Session) StartLearnSource(ctx context.Context, qid mapping.QualifiedID) error {
	s.checkWritable()
	if _, ok := s.models[qid.Compartment].Get(qid.ID); !ok {
		return errors.Wrapf(mapping.ErrMappingNotFound, "mapping %d", qid.ID)
	}
	wasWaiting := s.learn.state == LearnWaiting
	s.learn = learner{state: LearnWaiting, target: qid, ctx: ctx}
	if !wasWaiting {
		s.send(processor.NormalTask{Kind: processor.StartLearning})
	}
	s.publish(Event{Kind: LearnStateChanged, Compartment: qid.Compartment, ID: qid.ID})
	return nil
}

// CancelLearn stops waiting for a message. It's a no-op when not waiting.
func (s *Session) CancelLearn() {
	s.checkWritable()
	if s.learn.state != LearnWaiting {
		return
	}
	qid := s.learn.target
	s.learn = learner{}
	s.send(processor.NormalTask{Kind: processor.StopLearning})
	s.publish(Event{Kind: LearnStateChanged, Compartment: qid.Compartment, ID: qid.ID})
}

// Learn returns the learn state and the mapping concerned
func (s *Session) Learn() (LearnState, mapping.QualifiedID) {
	return s.learn.state, s.learn.target
}

func (s *Session) learnDone() bool {
	return s.learn.state == LearnWaiting && s.learn.ctx != nil && s.learn.ctx.Err() != nil
}

func (s *Session) onLearned(msg midi.ShortMessage, oscMsg *osc.Message) {
	if s.learn.state != LearnWaiting {
		return
	}
	if s.learnDone() {
		s.CancelLearn()
		return
	}
	var src source.Source
	switch {
	case oscMsg != nil:
		o, ok := source.FromOscMessage(oscMsg)
		if !ok {
			return
		}
		src = source.Osc(o)
	default:
		m, ok := source.FromMessage(msg)
		if !ok {
			// note offs and the like; keep waiting
			return
		}
		src = source.Midi(m)
	}
	qid := s.learn.target
	if err := s.ChangeMapping(qid.Compartment, qid.ID, SetSource{Source: src}); err != nil {
		// the mapping went away while we were waiting
		slog.Warn("learned source dropped", "mapping", qid.ID, "err", err)
	}
	s.learn.state = LearnCaptured
	s.send(processor.NormalTask{Kind: processor.StopLearning})
	s.publish(Event{Kind: LearnStateChanged, Compartment: qid.Compartment, ID: qid.ID})
}
