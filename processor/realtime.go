package processor

import (
	"sync/atomic"

	"go-surface/debug"
	"go-surface/mapping"
	"go-surface/midi"
	"go-surface/source"
)

// RealTimeMapping is the part of a mapping the audio path needs for matching
type RealTimeMapping struct {
	ID             mapping.ID
	Compartment    mapping.Compartment
	Source         source.MidiSource
	ControlEnabled bool
}

// RealTimeProcessor matches incoming MIDI against the control enabled
// mappings and hands matches to the main processor. Run is called once per
// audio block and never blocks, locks or allocates.
type RealTimeProcessor struct {
	tasks    <-chan RealTimeTask
	controls chan<- ControlTask

	mappings   [len(mapping.Compartments)][]RealTimeMapping
	sampleRate float64
	learning   bool

	overflows atomic.Uint64
	matched   atomic.Uint64
}

func NewRealTimeProcessor(ch Channels) *RealTimeProcessor {
	return &RealTimeProcessor{tasks: ch.RealTime, controls: ch.Control}
}

// Overflows counts control messages dropped because the main processor
// didn't keep up
func (p *RealTimeProcessor) Overflows() uint64 {
	return p.overflows.Load()
}

// Matched counts control tasks handed to the main processor
func (p *RealTimeProcessor) Matched() uint64 {
	return p.matched.Load()
}

func (p *RealTimeProcessor) SampleRate() float64 {
	return p.sampleRate
}

// Run processes pending tasks and then the MIDI events of one block
func (p *RealTimeProcessor) Run(events []midi.ShortMessage) {
	p.drainTasks()
	for _, msg := range events {
		if p.learning {
			p.send(ControlTask{Kind: LearnSource, Msg: msg})
			continue
		}
		p.match(msg)
	}
}

func (p *RealTimeProcessor) drainTasks() {
	for range maxRealTimeTasks {
		select {
		case t := <-p.tasks:
			p.apply(t)
		default:
			return
		}
	}
}

// maxRealTimeTasks bounds the task work per block
const maxRealTimeTasks = 32

func (p *RealTimeProcessor) apply(t RealTimeTask) {
	switch t.Kind {
	case RTUpdateAllMappings:
		p.mappings[t.Compartment] = t.Mappings
	case RTUpdateMapping:
		list := p.mappings[t.Compartment]
		for i := range list {
			if list[i].ID == t.Mapping.ID {
				list[i] = t.Mapping
				return
			}
		}
		// appending may allocate, but new mappings are rare
		debug.PermitAlloc(func() {
			p.mappings[t.Compartment] = append(list, t.Mapping)
		})
	case RTUpdateControlEnabled:
		list := p.mappings[t.Compartment]
		for i := range list {
			if on, ok := t.ControlEnabled[list[i].ID]; ok {
				list[i].ControlEnabled = on
			}
		}
	case RTSetSampleRate:
		p.sampleRate = t.SampleRate
	case RTSetLearning:
		p.learning = t.Learning
	}
}

func (p *RealTimeProcessor) match(msg midi.ShortMessage) {
	for c := range p.mappings {
		for i := range p.mappings[c] {
			m := &p.mappings[c][i]
			if !m.ControlEnabled {
				continue
			}
			v, ok := m.Source.Control(msg)
			if !ok {
				continue
			}
			p.send(ControlTask{Kind: Control, Compartment: m.Compartment, ID: m.ID, Value: v, Msg: msg})
		}
	}
}

func (p *RealTimeProcessor) send(t ControlTask) {
	select {
	case p.controls <- t:
		p.matched.Add(1)
	default:
		n := p.overflows.Add(1)
		if n == 1 || n%1000 == 0 {
			debug.RT("realtime", "control channel full, %d messages dropped", n)
		}
	}
}
