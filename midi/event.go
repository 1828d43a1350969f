package midi

import (
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// MIDI status nibbles
const (
	NoteOff         uint8 = 0x80
	NoteOn          uint8 = 0x90
	PolyPressure    uint8 = 0xA0
	CC              uint8 = 0xB0
	ProgramChange   uint8 = 0xC0
	ChannelPressure uint8 = 0xD0
	PitchBend       uint8 = 0xE0
)

// ShortMessage is a fixed-size MIDI channel message. It's what travels through the
// real-time path: copying it never allocates, unlike gomidi.Message which is a byte slice.
type ShortMessage struct {
	Status uint8 // status byte including channel
	Data1  uint8
	Data2  uint8
}

// Type returns the status nibble (NoteOn, CC, ...)
func (m ShortMessage) Type() uint8 {
	return m.Status & 0xF0
}

// Channel returns the 0-based channel
func (m ShortMessage) Channel() uint8 {
	return m.Status & 0x0F
}

// IsZero reports an unset message
func (m ShortMessage) IsZero() bool {
	return m.Status == 0
}

// PitchBendValue returns the 14-bit pitch bend value (0-16383)
func (m ShortMessage) PitchBendValue() uint16 {
	return uint16(m.Data2&0x7F)<<7 | uint16(m.Data1&0x7F)
}

func NewCC(channel, controller, value uint8) ShortMessage {
	return ShortMessage{Status: CC | channel&0x0F, Data1: controller & 0x7F, Data2: value & 0x7F}
}

func NewNoteOn(channel, key, velocity uint8) ShortMessage {
	return ShortMessage{Status: NoteOn | channel&0x0F, Data1: key & 0x7F, Data2: velocity & 0x7F}
}

func NewNoteOff(channel, key, velocity uint8) ShortMessage {
	return ShortMessage{Status: NoteOff | channel&0x0F, Data1: key & 0x7F, Data2: velocity & 0x7F}
}

func NewPolyPressure(channel, key, pressure uint8) ShortMessage {
	return ShortMessage{Status: PolyPressure | channel&0x0F, Data1: key & 0x7F, Data2: pressure & 0x7F}
}

func NewProgramChange(channel, program uint8) ShortMessage {
	return ShortMessage{Status: ProgramChange | channel&0x0F, Data1: program & 0x7F}
}

func NewChannelPressure(channel, pressure uint8) ShortMessage {
	return ShortMessage{Status: ChannelPressure | channel&0x0F, Data1: pressure & 0x7F}
}

// NewPitchBend creates a pitch bend message from a 14-bit value (0-16383, center 8192)
func NewPitchBend(channel uint8, value uint16) ShortMessage {
	if value > 16383 {
		value = 16383
	}
	return ShortMessage{Status: PitchBend | channel&0x0F, Data1: uint8(value & 0x7F), Data2: uint8(value >> 7)}
}

// FromMessage converts a gomidi message into a ShortMessage. Non-channel
// messages (SysEx, realtime) are rejected.
func FromMessage(msg gomidi.Message) (ShortMessage, bool) {
	var channel, d1, d2 uint8
	var rel int16
	var abs uint16

	switch {
	case msg.GetNoteOn(&channel, &d1, &d2):
		return NewNoteOn(channel, d1, d2), true
	case msg.GetNoteOff(&channel, &d1, &d2):
		return NewNoteOff(channel, d1, d2), true
	case msg.GetControlChange(&channel, &d1, &d2):
		return NewCC(channel, d1, d2), true
	case msg.GetPolyAfterTouch(&channel, &d1, &d2):
		return NewPolyPressure(channel, d1, d2), true
	case msg.GetProgramChange(&channel, &d1):
		return NewProgramChange(channel, d1), true
	case msg.GetAfterTouch(&channel, &d1):
		return NewChannelPressure(channel, d1), true
	case msg.GetPitchBend(&channel, &rel, &abs):
		return NewPitchBend(channel, abs), true
	}
	return ShortMessage{}, false
}

// Message converts to a gomidi message for sending
func (m ShortMessage) Message() gomidi.Message {
	ch := m.Channel()
	switch m.Type() {
	case NoteOn:
		return gomidi.NoteOn(ch, m.Data1, m.Data2)
	case NoteOff:
		return gomidi.NoteOffVelocity(ch, m.Data1, m.Data2)
	case CC:
		return gomidi.ControlChange(ch, m.Data1, m.Data2)
	case PolyPressure:
		return gomidi.PolyAfterTouch(ch, m.Data1, m.Data2)
	case ProgramChange:
		return gomidi.ProgramChange(ch, m.Data1)
	case ChannelPressure:
		return gomidi.AfterTouch(ch, m.Data1)
	case PitchBend:
		return gomidi.Pitchbend(ch, int16(m.PitchBendValue())-8192)
	}
	return nil
}

func (m ShortMessage) String() string {
	switch m.Type() {
	case NoteOn:
		return fmt.Sprintf("NoteOn ch=%d key=%d vel=%d", m.Channel(), m.Data1, m.Data2)
	case NoteOff:
		return fmt.Sprintf("NoteOff ch=%d key=%d vel=%d", m.Channel(), m.Data1, m.Data2)
	case CC:
		return fmt.Sprintf("CC ch=%d cc=%d val=%d", m.Channel(), m.Data1, m.Data2)
	case PolyPressure:
		return fmt.Sprintf("PolyPressure ch=%d key=%d val=%d", m.Channel(), m.Data1, m.Data2)
	case ProgramChange:
		return fmt.Sprintf("ProgramChange ch=%d prog=%d", m.Channel(), m.Data1)
	case ChannelPressure:
		return fmt.Sprintf("ChannelPressure ch=%d val=%d", m.Channel(), m.Data1)
	case PitchBend:
		return fmt.Sprintf("PitchBend ch=%d val=%d", m.Channel(), m.PitchBendValue())
	}
	return fmt.Sprintf("Unknown %02X %02X %02X", m.Status, m.Data1, m.Data2)
}

// Event is a short message received from a controller, tagged with its origin
type Event struct {
	Msg    ShortMessage
	Device string
}
