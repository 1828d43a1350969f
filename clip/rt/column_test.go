package rt

import (
	"testing"

	"go-surface/clip/supplier"
	"go-surface/midi"
)

type fixture struct {
	commands chan Command
	events   chan Event
	column   *Column
}

func newFixture(mode PlayMode) *fixture {
	f := &fixture{
		commands: make(chan Command, ChannelCapacity),
		events:   make(chan Event, ChannelCapacity),
	}
	f.column = NewColumn(f.commands, f.events, Settings{PlayMode: mode}, 4, supplier.Equipment{MaxBlockFrames: 64})
	return f
}

func (f *fixture) block() *Block {
	return &Block{
		Out:        supplier.NewAudioBuf(2, 32),
		In:         supplier.NewAudioBuf(2, 32),
		MidiOut:    supplier.NewMidiEventList(16),
		SampleRate: 1000,
		Tempo:      120,
	}
}

func (f *fixture) drainEvents() []Event {
	var out []Event
	for {
		select {
		case ev := <-f.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func audioClip(frames int) *Clip {
	data := supplier.NewAudioBuf(1, frames)
	for i := range data.Data {
		data.Data[i] = 0.5
	}
	return NewClip(supplier.NewChain(supplier.NewAudioSource(data, 1000), supplier.DefaultEquipment()), false)
}

func states(events []Event, slot int) []PlayState {
	var out []PlayState
	for _, ev := range events {
		if ev.Kind == EvPlayStateChanged && ev.Slot == slot {
			out = append(out, ev.PlayState)
		}
	}
	return out
}

func TestColumnPlaysUntilEnd(t *testing.T) {
	f := newFixture(Exclusive)
	clip := audioClip(100)
	f.commands <- Command{Kind: CmdFillSlot, Slot: 0, Clip: clip}
	f.commands <- Command{Kind: CmdPlayClip, Slot: 0}

	b := f.block()
	f.column.Process(b)
	if b.Out.Data[0] != 0.5 || b.Out.Data[1] != 0.5 {
		t.Errorf("Expected mono material on both channels, got %v %v", b.Out.Data[0], b.Out.Data[1])
	}
	if got := clip.Shared().Pos.Load(); got != 32 {
		t.Errorf("Expected position 32, got %d", got)
	}
	for i := 0; i < 3; i++ {
		f.column.Process(f.block())
	}
	got := states(f.drainEvents(), 0)
	if len(got) != 2 || got[0] != Playing || got[1] != Stopped {
		t.Errorf("Expected playing then stopped, got %v", got)
	}
	if clip.State() != Stopped || clip.Shared().Pos.Load() != 0 {
		t.Errorf("Expected stopped clip at position 0, got %v at %d", clip.State(), clip.Shared().Pos.Load())
	}
}

func TestColumnLoopedKeepsPlaying(t *testing.T) {
	f := newFixture(Exclusive)
	clip := audioClip(40)
	f.commands <- Command{Kind: CmdFillSlot, Slot: 0, Clip: clip}
	f.commands <- Command{Kind: CmdSetClipLooped, Slot: 0, Flag: true}
	f.commands <- Command{Kind: CmdPlayClip, Slot: 0}
	for i := 0; i < 10; i++ {
		f.column.Process(f.block())
	}
	if clip.State() != Playing {
		t.Errorf("Expected looped clip to keep playing, got %v", clip.State())
	}
}

func TestColumnExclusiveMode(t *testing.T) {
	tests := []struct {
		mode      PlayMode
		firstPlay bool
	}{
		{Exclusive, false},
		{Free, true},
	}
	for _, tt := range tests {
		f := newFixture(tt.mode)
		a, b := audioClip(1000), audioClip(1000)
		f.commands <- Command{Kind: CmdFillSlot, Slot: 0, Clip: a}
		f.commands <- Command{Kind: CmdFillSlot, Slot: 1, Clip: b}
		f.commands <- Command{Kind: CmdPlayClip, Slot: 0}
		f.commands <- Command{Kind: CmdPlayClip, Slot: 1}
		f.column.Process(f.block())
		if (a.State() == Playing) != tt.firstPlay {
			t.Errorf("%v: expected first clip playing=%v, got %v", tt.mode, tt.firstPlay, a.State())
		}
		if b.State() != Playing {
			t.Errorf("%v: expected second clip playing, got %v", tt.mode, b.State())
		}
	}
}

func TestColumnRejectsEmptySlot(t *testing.T) {
	f := newFixture(Exclusive)
	f.commands <- Command{Kind: CmdPlayClip, Slot: 2}
	f.commands <- Command{Kind: CmdPlayClip, Slot: 9}
	f.column.Process(f.block())
	events := f.drainEvents()
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %v", events)
	}
	if events[0].Failure != "slot not filled" || events[1].Failure != "slot doesn't exist" {
		t.Errorf("Unexpected failures %q and %q", events[0].Failure, events[1].Failure)
	}
}

func TestColumnRecordAudio(t *testing.T) {
	f := newFixture(Exclusive)
	rec := supplier.NewRecorder(supplier.RecordAudio, 2, 1000, 1)
	clip := NewRecordingClip(rec, supplier.DefaultEquipment())
	f.commands <- Command{Kind: CmdRecordClip, Slot: 1, Record: &RecordInstruction{NewClip: clip, Recorder: rec}}

	b := f.block()
	b.In.Data[0] = 1
	f.column.Process(b)
	f.column.Process(f.block())
	events := f.drainEvents()
	if len(events) == 0 || events[0].Kind != EvRecordRequestAcknowledged || !events[0].AckOK {
		t.Fatalf("Expected acknowledgement, got %v", events)
	}
	if events[0].Shared.Frames.Load() != 64 {
		t.Errorf("Expected 64 recorded frames, got %d", events[0].Shared.Frames.Load())
	}

	f.commands <- Command{Kind: CmdStopClip, Slot: 1}
	f.column.Process(f.block())
	events = f.drainEvents()
	if len(events) == 0 || events[0].Kind != EvNormalRecordingFinished || events[0].Outcome != Committed {
		t.Fatalf("Expected committed recording, got %v", events)
	}
	src, err := events[0].Recorder.Commit()
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if src.MaterialInfo().FrameCount != 64 {
		t.Errorf("Expected 64 frames of material, got %d", src.MaterialInfo().FrameCount)
	}

	f.commands <- Command{Kind: CmdSetClipSource, Slot: 1, Source: src, Flag: true}
	f.column.Process(f.block())
	if clip.State() != Playing {
		t.Errorf("Expected playback after the source arrived, got %v", clip.State())
	}
	var disposed bool
	for _, ev := range f.drainEvents() {
		if ev.Kind == EvDispose && ev.Source == rec {
			disposed = true
		}
	}
	if !disposed {
		t.Error("Expected the recorder to be handed back")
	}
}

func TestColumnCancelRecording(t *testing.T) {
	f := newFixture(Exclusive)
	rec := supplier.NewRecorder(supplier.RecordMidi, 1, 1000, 1)
	clip := NewRecordingClip(rec, supplier.DefaultEquipment())
	f.commands <- Command{Kind: CmdRecordClip, Slot: 0, Record: &RecordInstruction{NewClip: clip, Recorder: rec}}
	f.commands <- Command{Kind: CmdRecordClip, Slot: 0, Record: &RecordInstruction{NewClip: clip, Recorder: rec}}
	f.commands <- Command{Kind: CmdCancelRecording, Slot: 0}
	f.commands <- Command{Kind: CmdCancelRecording, Slot: 0}
	f.column.Process(f.block())

	var kinds []EventKind
	var failures []string
	for _, ev := range f.drainEvents() {
		kinds = append(kinds, ev.Kind)
		if ev.Failure != "" {
			failures = append(failures, ev.Failure)
		}
	}
	want := []string{"recording already according to play state", "slot not filled"}
	if len(failures) != 2 || failures[0] != want[0] || failures[1] != want[1] {
		t.Errorf("Expected failures %v, got %v", want, failures)
	}
	var cleared bool
	for _, k := range kinds {
		if k == EvSlotCleared {
			cleared = true
		}
	}
	if !cleared {
		t.Errorf("Expected the slot to be cleared, got %v", kinds)
	}
}

func TestColumnMidiPlayback(t *testing.T) {
	f := newFixture(Free)
	src := supplier.NewMidiSource([]supplier.TimedMessage{
		{Frame: 0, Msg: midi.NewNoteOn(0, 60, 100)},
	}, supplier.MidiFrameRate)
	clip := NewClip(supplier.NewChain(src, supplier.DefaultEquipment()), true)
	f.commands <- Command{Kind: CmdFillSlot, Slot: 0, Clip: clip}
	f.commands <- Command{Kind: CmdPlayClip, Slot: 0}
	b := f.block()
	f.column.Process(b)
	if b.MidiOut.Len() != 1 || b.MidiOut.Events()[0].Msg.Data1 != 60 {
		t.Errorf("Expected the note on, got %v", b.MidiOut.Events())
	}
}
