package source

import (
	"fmt"

	"github.com/hypebeast/go-osc/osc"

	"go-surface/control"
)

// OscArgType is the expected type of the addressed argument
type OscArgType uint8

const (
	OscFloat OscArgType = iota
	OscInt
	OscBool
	OscTrigger // no argument, every message is a press
)

var oscArgTypeNames = [...]string{"Float", "Int", "Bool", "Trigger"}

func (t OscArgType) String() string {
	if int(t) < len(oscArgTypeNames) {
		return oscArgTypeNames[t]
	}
	return "Float"
}

// ParseOscArgType is the inverse of OscArgType.String
func ParseOscArgType(s string) (OscArgType, bool) {
	for i, n := range oscArgTypeNames {
		if n == s {
			return OscArgType(i), true
		}
	}
	return OscFloat, false
}

// OscSource matches OSC messages by address
type OscSource struct {
	Address  string
	ArgIndex int
	ArgType  OscArgType
	Min, Max float64 // raw value range mapped onto 0..1, default 0..1
	Relative bool    // argument is an increment (+1/-1)
}

// NewOscSource creates a float source with the default 0..1 range
func NewOscSource(address string) OscSource {
	return OscSource{Address: address, ArgType: OscFloat, Max: 1}
}

// Control returns the control value for msg if this source reacts to it
func (s OscSource) Control(msg *osc.Message) (control.Value, bool) {
	if msg == nil || s.Address == "" || msg.Address != s.Address {
		return control.Value{}, false
	}
	if s.ArgType == OscTrigger {
		return control.AbsoluteContinuous(control.MaxUnit), true
	}
	if s.ArgIndex < 0 || s.ArgIndex >= len(msg.Arguments) {
		return control.Value{}, false
	}

	var raw float64
	switch v := msg.Arguments[s.ArgIndex].(type) {
	case float32:
		raw = float64(v)
	case float64:
		raw = v
	case int32:
		raw = float64(v)
	case int64:
		raw = float64(v)
	case bool:
		if v {
			raw = s.max()
		} else {
			raw = s.Min
		}
	default:
		return control.Value{}, false
	}

	if s.Relative {
		switch {
		case raw > 0:
			return control.Relative(1), true
		case raw < 0:
			return control.Relative(-1), true
		}
		return control.Relative(0), true
	}
	return control.AbsoluteContinuous(s.normalize(raw)), true
}

func (s OscSource) max() float64 {
	if s.Max == s.Min {
		return s.Min + 1
	}
	return s.Max
}

func (s OscSource) normalize(raw float64) control.UnitValue {
	return control.NewUnitValue((raw - s.Min) / (s.max() - s.Min))
}

func (s OscSource) denormalize(u control.UnitValue) float64 {
	return s.Min + u.Get()*(s.max()-s.Min)
}

// Feedback creates the feedback message for a unit value
func (s OscSource) Feedback(u control.UnitValue) (*osc.Message, bool) {
	if s.Address == "" || s.Relative || s.ArgType == OscTrigger {
		return nil, false
	}
	msg := osc.NewMessage(s.Address)
	switch s.ArgType {
	case OscInt:
		msg.Append(int32(s.denormalize(u) + 0.5))
	case OscBool:
		msg.Append(u.Get() > 0)
	default:
		msg.Append(float32(s.denormalize(u)))
	}
	return msg, true
}

// EffectiveCharacter returns the character the mode should assume
func (s OscSource) EffectiveCharacter() Character {
	switch {
	case s.Relative:
		return Encoder1
	case s.ArgType == OscBool || s.ArgType == OscTrigger:
		return Button
	}
	return Range
}

func (s OscSource) String() string {
	return fmt.Sprintf("OSC %s[%d] %s", s.Address, s.ArgIndex, s.ArgType)
}

// FromOscMessage derives a source from a captured OSC message (learn)
func FromOscMessage(msg *osc.Message) (OscSource, bool) {
	if msg == nil || msg.Address == "" {
		return OscSource{}, false
	}
	s := NewOscSource(msg.Address)
	if len(msg.Arguments) == 0 {
		s.ArgType = OscTrigger
		return s, true
	}
	switch msg.Arguments[0].(type) {
	case int32, int64:
		s.ArgType = OscInt
		s.Max = 127
	case bool:
		s.ArgType = OscBool
	}
	return s, true
}
