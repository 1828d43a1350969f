// Package source turns raw MIDI, OSC and virtual events into control values
// and turns target values back into feedback messages.
package source

import (
	"github.com/hypebeast/go-osc/osc"

	"go-surface/control"
	"go-surface/midi"
)

// Category selects which of the source variants is in use
type Category uint8

const (
	CategoryNone Category = iota
	CategoryMidi
	CategoryOsc
	CategoryVirtual
)

var categoryNames = [...]string{"None", "Midi", "Osc", "Virtual"}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return "None"
}

// ParseCategory is the inverse of Category.String
func ParseCategory(s string) (Category, bool) {
	for i, n := range categoryNames {
		if n == s {
			return Category(i), true
		}
	}
	return CategoryNone, false
}

// Source is the source of a mapping. Only the field matching Category is used.
type Source struct {
	Category Category
	Midi     MidiSource
	Osc      OscSource
	Virtual  VirtualSource
}

func Midi(s MidiSource) Source {
	return Source{Category: CategoryMidi, Midi: s}
}

func Osc(s OscSource) Source {
	return Source{Category: CategoryOsc, Osc: s}
}

func Virtual(e Element) Source {
	return Source{Category: CategoryVirtual, Virtual: VirtualSource{Element: e}}
}

// Character returns the effective character of the active variant
func (s Source) Character() Character {
	switch s.Category {
	case CategoryMidi:
		return s.Midi.EffectiveCharacter()
	case CategoryOsc:
		return s.Osc.EffectiveCharacter()
	case CategoryVirtual:
		return s.Virtual.EffectiveCharacter()
	}
	return Range
}

// ControlMidi matches a MIDI message. Non-MIDI sources never match.
func (s Source) ControlMidi(msg midi.ShortMessage) (control.Value, bool) {
	if s.Category != CategoryMidi {
		return control.Value{}, false
	}
	return s.Midi.Control(msg)
}

// ControlOsc matches an OSC message. Non-OSC sources never match.
func (s Source) ControlOsc(msg *osc.Message) (control.Value, bool) {
	if s.Category != CategoryOsc {
		return control.Value{}, false
	}
	return s.Osc.Control(msg)
}

// ControlVirtual matches a virtual event. Non-virtual sources never match.
func (s Source) ControlVirtual(ev VirtualEvent) (control.Value, bool) {
	if s.Category != CategoryVirtual {
		return control.Value{}, false
	}
	return s.Virtual.Control(ev)
}

// Feedback creates the outgoing feedback for a unit value
func (s Source) Feedback(u control.UnitValue) (FeedbackValue, bool) {
	switch s.Category {
	case CategoryMidi:
		if m, ok := s.Midi.Feedback(u); ok {
			return FeedbackValue{Category: CategoryMidi, Midi: m}, true
		}
	case CategoryOsc:
		if m, ok := s.Osc.Feedback(u); ok {
			return FeedbackValue{Category: CategoryOsc, Osc: m}, true
		}
	case CategoryVirtual:
		return FeedbackValue{Category: CategoryVirtual, Virtual: s.Virtual.Feedback(u)}, true
	}
	return FeedbackValue{}, false
}

func (s Source) String() string {
	switch s.Category {
	case CategoryMidi:
		return s.Midi.String()
	case CategoryOsc:
		return s.Osc.String()
	case CategoryVirtual:
		return s.Virtual.String()
	}
	return "None"
}

// FeedbackValue is an outgoing feedback message of one of the source categories
type FeedbackValue struct {
	Category Category
	Midi     midi.ShortMessage
	Osc      *osc.Message
	Virtual  VirtualEvent
}

// Signature identifies "the same physical source" independent of character or
// value range. Two mappings with equal signatures light the same LED.
type Signature struct {
	Category Category
	MidiType MidiType
	Channel  int8
	Number   int16
	Address  string
	Element  Element
}

// Signature returns the feedback address of the source
func (s Source) Signature() Signature {
	sig := Signature{Category: s.Category}
	switch s.Category {
	case CategoryMidi:
		sig.MidiType = s.Midi.Type
		sig.Channel = s.Midi.Channel
		sig.Number = s.Midi.Number
		switch s.Midi.Type {
		case ChannelPressure, ProgramChange, PitchBendChange, NoteKeyNumber:
			sig.Number = Any
		}
	case CategoryOsc:
		sig.Address = s.Osc.Address
	case CategoryVirtual:
		sig.Element = s.Virtual.Element
	}
	return sig
}
