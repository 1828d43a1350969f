package source

import (
	"fmt"
	"math"

	"go-surface/control"
	"go-surface/midi"
)

// Any matches every channel or number
const Any = -1

// MidiType selects which MIDI message a source reacts to
type MidiType uint8

const (
	ControlChangeValue MidiType = iota
	NoteVelocity
	NoteKeyNumber
	PolyphonicKeyPressure
	ChannelPressure
	ProgramChange
	PitchBendChange
)

var midiTypeNames = [...]string{
	ControlChangeValue:    "ControlChangeValue",
	NoteVelocity:          "NoteVelocity",
	NoteKeyNumber:         "NoteKeyNumber",
	PolyphonicKeyPressure: "PolyphonicKeyPressureAmount",
	ChannelPressure:       "ChannelPressureAmount",
	ProgramChange:         "ProgramChangeNumber",
	PitchBendChange:       "PitchBendChangeValue",
}

func (t MidiType) String() string {
	if int(t) < len(midiTypeNames) {
		return midiTypeNames[t]
	}
	return "Unknown"
}

// ParseMidiType is the inverse of MidiType.String
func ParseMidiType(s string) (MidiType, bool) {
	for i, n := range midiTypeNames {
		if n == s {
			return MidiType(i), true
		}
	}
	return 0, false
}

// Character is the physical nature of a control element
type Character uint8

const (
	Range Character = iota
	Button
	Encoder1 // 1..63 = +1..+63, 127..64 = -1..-64
	Encoder2 // 65..127 = +1..+63, 63..0 = -1..-64
	Encoder3 // 1..63 = +1..+63, 65..127 = -1..-63
	Toggle
)

var characterNames = [...]string{"Range", "Button", "Encoder1", "Encoder2", "Encoder3", "Toggle"}

func (c Character) String() string {
	if int(c) < len(characterNames) {
		return characterNames[c]
	}
	return "Range"
}

// ParseCharacter is the inverse of Character.String
func ParseCharacter(s string) (Character, bool) {
	for i, n := range characterNames {
		if n == s {
			return Character(i), true
		}
	}
	return Range, false
}

// IsRelative reports encoder characters
func (c Character) IsRelative() bool {
	return c == Encoder1 || c == Encoder2 || c == Encoder3
}

// IsButton reports characters with press/release semantics
func (c Character) IsButton() bool {
	return c == Button || c == Toggle
}

// MidiSource matches MIDI short messages. It's a plain value so the real-time
// processor can hold copies without allocating.
type MidiSource struct {
	Type      MidiType
	Channel   int8  // 0-15 or Any
	Number    int16 // controller or key number, or Any
	Character Character
}

// CC is a shortcut for a control change source with Range character
func CC(channel int8, controller int16) MidiSource {
	return MidiSource{Type: ControlChangeValue, Channel: channel, Number: controller}
}

func (s MidiSource) matchesChannel(msg midi.ShortMessage) bool {
	return s.Channel == Any || uint8(s.Channel) == msg.Channel()
}

func (s MidiSource) matchesNumber(n uint8) bool {
	return s.Number == Any || s.Number == int16(n)
}

// hasNumber reports whether the source names one concrete 7-bit number
func (s MidiSource) hasNumber() bool {
	return s.Number >= 0 && s.Number <= 127
}

// Control returns the control value for msg if this source reacts to it
func (s MidiSource) Control(msg midi.ShortMessage) (control.Value, bool) {
	if !s.matchesChannel(msg) {
		return control.Value{}, false
	}
	switch s.Type {
	case ControlChangeValue:
		if msg.Type() != midi.CC || !s.matchesNumber(msg.Data1) {
			return control.Value{}, false
		}
		return controlFromSevenBit(msg.Data2, s.Character), true

	case NoteVelocity:
		if !s.matchesNumber(msg.Data1) {
			return control.Value{}, false
		}
		switch msg.Type() {
		case midi.NoteOn:
			return control.AbsoluteContinuous(sevenBit(msg.Data2)), true
		case midi.NoteOff:
			return control.AbsoluteContinuous(control.MinUnit), true
		}

	case NoteKeyNumber:
		if msg.Type() == midi.NoteOn && msg.Data2 > 0 {
			return control.AbsoluteDiscrete(control.Fraction{Actual: uint32(msg.Data1), Max: 127}), true
		}

	case PolyphonicKeyPressure:
		if msg.Type() == midi.PolyPressure && s.matchesNumber(msg.Data1) {
			return control.AbsoluteContinuous(sevenBit(msg.Data2)), true
		}

	case ChannelPressure:
		if msg.Type() == midi.ChannelPressure {
			return control.AbsoluteContinuous(sevenBit(msg.Data1)), true
		}

	case ProgramChange:
		if msg.Type() == midi.ProgramChange {
			return control.AbsoluteDiscrete(control.Fraction{Actual: uint32(msg.Data1), Max: 127}), true
		}

	case PitchBendChange:
		if msg.Type() == midi.PitchBend {
			return control.AbsoluteContinuous(control.NewUnitValue(float64(msg.PitchBendValue()) / 16383)), true
		}
	}
	return control.Value{}, false
}

func sevenBit(v uint8) control.UnitValue {
	return control.NewUnitValue(float64(v&0x7F) / 127)
}

func controlFromSevenBit(v uint8, c Character) control.Value {
	switch c {
	case Encoder1, Encoder2, Encoder3:
		return control.Relative(DecodeEncoder(v, c))
	}
	return control.AbsoluteContinuous(sevenBit(v))
}

// DecodeEncoder turns a relative encoder value into an increment. 0 means "no movement".
func DecodeEncoder(v uint8, c Character) int32 {
	v &= 0x7F
	switch c {
	case Encoder1:
		if v == 0 {
			return 0
		}
		if v < 64 {
			return int32(v)
		}
		return int32(v) - 128
	case Encoder2:
		return int32(v) - 64
	case Encoder3:
		if v == 0 || v == 64 {
			return 0
		}
		if v < 64 {
			return int32(v)
		}
		return -(int32(v) - 64)
	}
	return 0
}

// Feedback creates the feedback message for a unit value. Sources with Any channel
// or number (where a number is needed) can't send feedback.
func (s MidiSource) Feedback(u control.UnitValue) (midi.ShortMessage, bool) {
	if s.Channel < 0 || s.Channel > 15 {
		return midi.ShortMessage{}, false
	}
	ch := uint8(s.Channel)
	v7 := uint8(math.Round(u.Get() * 127))
	switch s.Type {
	case ControlChangeValue:
		if !s.hasNumber() || s.Character.IsRelative() {
			return midi.ShortMessage{}, false
		}
		return midi.NewCC(ch, uint8(s.Number), v7), true
	case NoteVelocity:
		if !s.hasNumber() {
			return midi.ShortMessage{}, false
		}
		return midi.NewNoteOn(ch, uint8(s.Number), v7), true
	case NoteKeyNumber:
		return midi.NewNoteOn(ch, v7, 127), true
	case PolyphonicKeyPressure:
		if !s.hasNumber() {
			return midi.ShortMessage{}, false
		}
		return midi.NewPolyPressure(ch, uint8(s.Number), v7), true
	case ChannelPressure:
		return midi.NewChannelPressure(ch, v7), true
	case ProgramChange:
		return midi.NewProgramChange(ch, v7), true
	case PitchBendChange:
		return midi.NewPitchBend(ch, uint16(math.Round(u.Get()*16383))), true
	}
	return midi.ShortMessage{}, false
}

// EffectiveCharacter returns the character the mode should assume
func (s MidiSource) EffectiveCharacter() Character {
	switch s.Type {
	case ControlChangeValue:
		return s.Character
	case NoteVelocity:
		return Button
	}
	return Range
}

// IsDiscrete reports sources emitting discrete values
func (s MidiSource) IsDiscrete() bool {
	return s.Type == NoteKeyNumber || s.Type == ProgramChange
}

func (s MidiSource) String() string {
	ch := "*"
	if s.Channel != Any {
		ch = fmt.Sprint(s.Channel)
	}
	num := "*"
	if s.Number != Any {
		num = fmt.Sprint(s.Number)
	}
	return fmt.Sprintf("%s ch=%s num=%s %s", s.Type, ch, num, s.Character)
}

// FromMessage derives a source from a captured message (learn)
func FromMessage(msg midi.ShortMessage) (MidiSource, bool) {
	ch := int8(msg.Channel())
	switch msg.Type() {
	case midi.CC:
		return MidiSource{Type: ControlChangeValue, Channel: ch, Number: int16(msg.Data1)}, true
	case midi.NoteOn, midi.NoteOff:
		return MidiSource{Type: NoteVelocity, Channel: ch, Number: int16(msg.Data1), Character: Button}, true
	case midi.PolyPressure:
		return MidiSource{Type: PolyphonicKeyPressure, Channel: ch, Number: int16(msg.Data1)}, true
	case midi.ChannelPressure:
		return MidiSource{Type: ChannelPressure, Channel: ch, Number: Any}, true
	case midi.ProgramChange:
		return MidiSource{Type: ProgramChange, Channel: ch, Number: Any}, true
	case midi.PitchBend:
		return MidiSource{Type: PitchBendChange, Channel: ch, Number: Any}, true
	}
	return MidiSource{}, false
}

// GuessCharacter refines a learned CC source from a series of captured values:
// values hovering around 1/127 or 63/65 indicate an encoder, 0/127 only a button.
func GuessCharacter(values []uint8) Character {
	if len(values) == 0 {
		return Range
	}
	only := func(allowed ...uint8) bool {
		for _, v := range values {
			ok := false
			for _, a := range allowed {
				if v == a {
					ok = true
					break
				}
			}
			if !ok {
				return false
			}
		}
		return true
	}
	switch {
	case only(1, 127):
		return Encoder1
	case only(63, 65):
		return Encoder2
	case only(1, 65):
		return Encoder3
	case only(0, 127):
		return Button
	}
	return Range
}
