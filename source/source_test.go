package source

import (
	"testing"

	"github.com/hypebeast/go-osc/osc"

	"go-surface/control"
	"go-surface/midi"
)

func TestMidiSourceControl(t *testing.T) {
	tests := []struct {
		name  string
		src   MidiSource
		msg   midi.ShortMessage
		match bool
		want  control.Value
	}{
		{"cc match", CC(0, 1), midi.NewCC(0, 1, 127), true, control.AbsoluteContinuous(1)},
		{"cc wrong number", CC(0, 1), midi.NewCC(0, 2, 127), false, control.Value{}},
		{"cc wrong channel", CC(0, 1), midi.NewCC(1, 1, 127), false, control.Value{}},
		{"cc any channel", CC(Any, 1), midi.NewCC(9, 1, 0), true, control.AbsoluteContinuous(0)},
		{"cc vs note", CC(0, 1), midi.NewNoteOn(0, 1, 100), false, control.Value{}},
		{"note on", MidiSource{Type: NoteVelocity, Channel: 0, Number: 60}, midi.NewNoteOn(0, 60, 127), true, control.AbsoluteContinuous(1)},
		{"note off", MidiSource{Type: NoteVelocity, Channel: 0, Number: 60}, midi.NewNoteOff(0, 60, 64), true, control.AbsoluteContinuous(0)},
		{"key number", MidiSource{Type: NoteKeyNumber, Channel: Any}, midi.NewNoteOn(0, 64, 1), true, control.AbsoluteDiscrete(control.Fraction{Actual: 64, Max: 127})},
		{"program", MidiSource{Type: ProgramChange, Channel: 2}, midi.NewProgramChange(2, 5), true, control.AbsoluteDiscrete(control.Fraction{Actual: 5, Max: 127})},
		{"pitch max", MidiSource{Type: PitchBendChange, Channel: 0}, midi.NewPitchBend(0, 16383), true, control.AbsoluteContinuous(1)},
		{"encoder1 up", MidiSource{Type: ControlChangeValue, Channel: 0, Number: 10, Character: Encoder1}, midi.NewCC(0, 10, 1), true, control.Relative(1)},
		{"encoder1 down", MidiSource{Type: ControlChangeValue, Channel: 0, Number: 10, Character: Encoder1}, midi.NewCC(0, 10, 127), true, control.Relative(-1)},
		{"encoder2 down", MidiSource{Type: ControlChangeValue, Channel: 0, Number: 10, Character: Encoder2}, midi.NewCC(0, 10, 63), true, control.Relative(-1)},
		{"encoder2 zero", MidiSource{Type: ControlChangeValue, Channel: 0, Number: 10, Character: Encoder2}, midi.NewCC(0, 10, 64), true, control.Relative(0)},
		{"encoder3 down", MidiSource{Type: ControlChangeValue, Channel: 0, Number: 10, Character: Encoder3}, midi.NewCC(0, 10, 65), true, control.Relative(-1)},
		{"cc number above 127", CC(0, 256), midi.NewCC(0, 0, 64), false, control.Value{}},
		{"cc number 129", CC(0, 129), midi.NewCC(0, 1, 64), false, control.Value{}},
		{"note number above 127", MidiSource{Type: NoteVelocity, Channel: 0, Number: 188}, midi.NewNoteOn(0, 60, 100), false, control.Value{}},
	}

	for _, tt := range tests {
		got, ok := tt.src.Control(tt.msg)
		if ok != tt.match {
			t.Errorf("%s: expected match=%v, got %v", tt.name, tt.match, ok)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}
}

func TestRelativeZeroIsConsumed(t *testing.T) {
	src := MidiSource{Type: ControlChangeValue, Channel: 0, Number: 10, Character: Encoder1}
	v, ok := src.Control(midi.NewCC(0, 10, 0))
	if !ok {
		t.Fatal("Expected relative zero to match")
	}
	if !v.IsRelativeZero() {
		t.Errorf("Expected relative zero, got %v", v)
	}
}

func TestMidiSourceFeedback(t *testing.T) {
	fb, ok := CC(0, 1).Feedback(control.NewUnitValue(64.0 / 127))
	if !ok {
		t.Fatal("Expected feedback")
	}
	if fb != midi.NewCC(0, 1, 64) {
		t.Errorf("Expected CC 64, got %v", fb)
	}

	if _, ok := CC(Any, 1).Feedback(1); ok {
		t.Error("Expected no feedback for any-channel source")
	}
	enc := MidiSource{Type: ControlChangeValue, Channel: 0, Number: 10, Character: Encoder2}
	if _, ok := enc.Feedback(1); ok {
		t.Error("Expected no feedback for encoder source")
	}
}

func TestFeedbackNeedsSevenBitNumber(t *testing.T) {
	tests := []struct {
		name string
		src  MidiSource
	}{
		{"cc 130", CC(0, 130)},
		{"note 200", MidiSource{Type: NoteVelocity, Channel: 0, Number: 200}},
		{"poly pressure 128", MidiSource{Type: PolyphonicKeyPressure, Channel: 0, Number: 128}},
		{"channel 16", CC(16, 1)},
	}
	for _, tt := range tests {
		if fb, ok := tt.src.Feedback(0.5); ok {
			t.Errorf("%s: expected no feedback, got %v", tt.name, fb)
		}
	}
}

func TestFromMessage(t *testing.T) {
	src, ok := FromMessage(midi.NewNoteOn(3, 36, 90))
	if !ok {
		t.Fatal("Expected note on to be learnable")
	}
	if src.Type != NoteVelocity || src.Channel != 3 || src.Number != 36 {
		t.Errorf("Expected NoteVelocity ch=3 num=36, got %v", src)
	}
	if _, ok := src.Control(midi.NewNoteOn(3, 36, 1)); !ok {
		t.Error("Expected learned source to match the captured message")
	}
}

func TestGuessCharacter(t *testing.T) {
	tests := []struct {
		values []uint8
		want   Character
	}{
		{[]uint8{1, 1, 127}, Encoder1},
		{[]uint8{63, 65, 65}, Encoder2},
		{[]uint8{0, 127, 0}, Button},
		{[]uint8{3, 40, 90}, Range},
		{nil, Range},
	}
	for _, tt := range tests {
		if got := GuessCharacter(tt.values); got != tt.want {
			t.Errorf("%v: expected %s, got %s", tt.values, tt.want, got)
		}
	}
}

func TestOscSource(t *testing.T) {
	src := NewOscSource("/fader/1")
	msg := osc.NewMessage("/fader/1")
	msg.Append(float32(0.25))

	v, ok := src.Control(msg)
	if !ok {
		t.Fatal("Expected OSC match")
	}
	if u, _ := v.ToUnit(); !u.ApproxEqual(0.25) {
		t.Errorf("Expected 0.25, got %v", u)
	}

	if _, ok := src.Control(osc.NewMessage("/fader/2")); ok {
		t.Error("Expected other address not to match")
	}

	fb, ok := src.Feedback(0.5)
	if !ok {
		t.Fatal("Expected OSC feedback")
	}
	if fb.Address != "/fader/1" || len(fb.Arguments) != 1 || fb.Arguments[0].(float32) != 0.5 {
		t.Errorf("Expected /fader/1 0.5, got %v %v", fb.Address, fb.Arguments)
	}
}

func TestVirtualSource(t *testing.T) {
	src := Virtual(Element{Kind: Multi, Index: 3})
	v, ok := src.ControlVirtual(VirtualEvent{Element: Element{Kind: Multi, Index: 3}, Value: control.AbsoluteContinuous(0.7)})
	if !ok || v.Unit != 0.7 {
		t.Errorf("Expected virtual match with 0.7, got %v %v", ok, v)
	}
	if _, ok := src.ControlVirtual(VirtualEvent{Element: Element{Kind: VirtualButton, Index: 3}}); ok {
		t.Error("Expected button element not to match multi")
	}
}

func TestSignatureIgnoresCharacter(t *testing.T) {
	a := Midi(MidiSource{Type: ControlChangeValue, Channel: 0, Number: 7, Character: Range})
	b := Midi(MidiSource{Type: ControlChangeValue, Channel: 0, Number: 7, Character: Button})
	c := Midi(CC(0, 8))
	if a.Signature() != b.Signature() {
		t.Error("Expected same signature for same CC with different character")
	}
	if a.Signature() == c.Signature() {
		t.Error("Expected different signature for different CC")
	}
}
