package midi

import (
	"testing"

	gomidi "gitlab.com/gomidi/midi/v2"
)

func TestFromMessage(t *testing.T) {
	tests := []struct {
		name string
		msg  gomidi.Message
		want ShortMessage
	}{
		{"cc", gomidi.ControlChange(0, 1, 64), NewCC(0, 1, 64)},
		{"note on", gomidi.NoteOn(3, 60, 100), NewNoteOn(3, 60, 100)},
		{"note off", gomidi.NoteOffVelocity(1, 61, 20), NewNoteOff(1, 61, 20)},
		{"program", gomidi.ProgramChange(2, 7), NewProgramChange(2, 7)},
		{"aftertouch", gomidi.AfterTouch(0, 99), NewChannelPressure(0, 99)},
		{"poly", gomidi.PolyAfterTouch(0, 40, 12), NewPolyPressure(0, 40, 12)},
		{"pitch center", gomidi.Pitchbend(0, 0), NewPitchBend(0, 8192)},
	}

	for _, tt := range tests {
		got, ok := FromMessage(tt.msg)
		if !ok {
			t.Errorf("%s: expected conversion to succeed", tt.name)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
		back, ok := FromMessage(got.Message())
		if !ok || back != got {
			t.Errorf("%s: expected round trip to %v, got %v", tt.name, got, back)
		}
	}
}

func TestFromMessageRejectsSysEx(t *testing.T) {
	if _, ok := FromMessage(gomidi.SysEx([]byte{0x00, 0x20, 0x29})); ok {
		t.Error("Expected SysEx to be rejected")
	}
}

func TestShortMessageFields(t *testing.T) {
	m := NewCC(15, 200, 255)
	if m.Channel() != 15 {
		t.Errorf("Expected channel 15, got %d", m.Channel())
	}
	if m.Data1 != 200&0x7F || m.Data2 != 127 {
		t.Errorf("Expected data bytes masked to 7 bits, got %d %d", m.Data1, m.Data2)
	}
	pb := NewPitchBend(0, 20000)
	if pb.PitchBendValue() != 16383 {
		t.Errorf("Expected pitch bend clamped to 16383, got %d", pb.PitchBendValue())
	}
}

func TestLaunchpadNoteMapping(t *testing.T) {
	tests := []struct {
		note     uint8
		row, col int
	}{
		{11, 0, 0},
		{88, 7, 7},
		{19, 0, 8},
		{91, 8, 0},
		{98, 8, 7},
		{10, -1, -1},
		{0, -1, -1},
	}

	for _, tt := range tests {
		row, col := NoteToRowCol(tt.note)
		if row != tt.row || col != tt.col {
			t.Errorf("note %d: expected (%d,%d), got (%d,%d)", tt.note, tt.row, tt.col, row, col)
		}
		if row >= 0 && RowColToNote(row, col) != tt.note {
			t.Errorf("note %d: expected reverse mapping, got %d", tt.note, RowColToNote(row, col))
		}
	}

	if row, col := PadOf(NewCC(0, 93, 127)); row != 8 || col != 2 {
		t.Errorf("Expected top row CC 93 at (8,2), got (%d,%d)", row, col)
	}
}

func TestMapRGBToLaunchpad(t *testing.T) {
	if c := MapRGBToLaunchpad([3]uint8{0, 0, 0}); c != 0 {
		t.Errorf("Expected black to map to 0, got %d", c)
	}
	if c := MapRGBToLaunchpad([3]uint8{255, 255, 255}); c != 119 {
		t.Errorf("Expected white to map to 119, got %d", c)
	}
}
