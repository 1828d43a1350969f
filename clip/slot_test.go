package clip

import (
	"errors"
	"math"
	"testing"

	"go-surface/clip/rt"
	"go-surface/clip/supplier"
	"go-surface/midi"
)

func audioRecordSettings() RecordRequest {
	return RecordRequest{
		Kind:       supplier.RecordAudio,
		Channels:   2,
		FrameRate:  1000,
		MaxSeconds: 1,
		Looped:     true,
		PlayAfter:  true,
	}
}

func TestRecordClipRejectedWhilePrettyMuchRecording(t *testing.T) {
	m := newTestMatrix(nil)
	m.SetRecordSettings(audioRecordSettings())
	slot, _ := m.Slot(0, 0)

	if err := m.RecordClip(0, 0); err != nil {
		t.Fatalf("RecordClip failed: %v", err)
	}
	if slot.State() != RequestedRecording {
		t.Fatalf("Expected requested-recording, got %v", slot.State())
	}
	if ps, _ := slot.ClipPlayState(); ps != rt.ScheduledForRecordingStart {
		t.Errorf("Expected scheduled-for-recording-start, got %v", ps)
	}
	if err := m.RecordClip(0, 0); !errors.Is(err, ErrRecordingAlready) {
		t.Errorf("Expected ErrRecordingAlready before the acknowledgement, got %v", err)
	}
	if slot.State() != RequestedRecording {
		t.Errorf("Expected state unchanged, got %v", slot.State())
	}

	m.Process(testBlock())
	m.Poll(120)
	if slot.State() != Recording {
		t.Fatalf("Expected recording after the acknowledgement, got %v", slot.State())
	}
	if err := m.RecordClip(0, 0); !errors.Is(err, ErrRecordingAlready) {
		t.Errorf("Expected ErrRecordingAlready while recording, got %v", err)
	}
	if slot.State() != Recording {
		t.Errorf("Expected state unchanged, got %v", slot.State())
	}
}

func TestRecordClipRejectedWhileOverdubbing(t *testing.T) {
	m := newTestMatrix(nil)
	m.SetRecordSettings(RecordRequest{Kind: supplier.RecordMidi, Overdub: true, MaxSeconds: 1})
	m.FillSlot(0, 0, oneSecondMidiClip())
	if err := m.RecordClip(0, 0); err != nil {
		t.Fatalf("RecordClip failed: %v", err)
	}
	slot, _ := m.Slot(0, 0)
	if slot.State() != RequestedOverdubbing {
		t.Fatalf("Expected requested-overdubbing, got %v", slot.State())
	}
	m.Process(testBlock())
	m.Poll(120)
	if slot.State() != Normal {
		t.Fatalf("Expected normal state while overdubbing, got %v", slot.State())
	}
	if err := m.RecordClip(0, 0); !errors.Is(err, ErrRecordingAlreadyPlayState) {
		t.Errorf("Expected ErrRecordingAlreadyPlayState, got %v", err)
	}
}

func TestRecordCommit(t *testing.T) {
	m := newTestMatrix(nil)
	m.SetRecordSettings(audioRecordSettings())
	slot, _ := m.Slot(0, 1)

	m.RecordClip(0, 1)
	for i := 0; i < 2; i++ {
		b := testBlock()
		b.In.Data[0] = 0.25
		m.Process(b)
	}
	m.Poll(120)
	if slot.State() != Recording {
		t.Fatalf("Expected recording, got %v", slot.State())
	}
	secs, err := slot.PositionInSeconds(120)
	if err != nil || math.Abs(secs-0.064) > 1e-9 {
		t.Errorf("Expected 0.064s recorded, got %v (%v)", secs, err)
	}

	if err := m.StopClip(0, 1); err != nil {
		t.Fatalf("StopClip failed: %v", err)
	}
	m.Process(testBlock())
	updates := m.Poll(120)
	if _, ok := findUpdate(updates, 0, 1, ChangeRecordingFinished); !ok {
		t.Errorf("Expected recording finished update, got %v", updates)
	}
	if slot.State() != Normal || slot.Content() == nil {
		t.Fatalf("Expected committed content, got state %v", slot.State())
	}
	content := slot.Content()
	if content.Runtime.Material.FrameCount != 64 || !content.Clip.Looped {
		t.Errorf("Expected 64 looped frames, got %+v", content.Runtime.Material)
	}
	if content.Clip.Persistable() {
		t.Error("Expected in-memory recording without clips dir")
	}

	// the committed source reaches the column and starts playback
	b := testBlock()
	m.Process(b)
	m.Poll(120)
	if ps, _ := slot.ClipPlayState(); ps != rt.Playing {
		t.Errorf("Expected playback after commit, got %v", ps)
	}
	if b.Out.Data[0] != 0.25 {
		t.Errorf("Expected recorded sample in the output, got %v", b.Out.Data[0])
	}
}

func TestRecordCancel(t *testing.T) {
	m := newTestMatrix(nil)
	m.SetRecordSettings(audioRecordSettings())
	m.FillSlot(0, 0, oneSecondMidiClip())
	slot, _ := m.Slot(0, 0)

	if err := m.CancelRecording(0, 0); !errors.Is(err, ErrSlotNotRecording) {
		t.Errorf("Expected ErrSlotNotRecording, got %v", err)
	}
	m.RecordClip(0, 0)
	m.Process(testBlock())
	m.Poll(120)
	if slot.State() != Recording {
		t.Fatalf("Expected recording, got %v", slot.State())
	}
	if err := m.CancelRecording(0, 0); err != nil {
		t.Fatalf("CancelRecording failed: %v", err)
	}
	m.Process(testBlock())
	updates := m.Poll(120)
	if slot.State() != Normal || slot.Content() != nil {
		t.Errorf("Expected cleared slot, got state %v content %v", slot.State(), slot.Content())
	}
	if _, ok := findUpdate(updates, 0, 0, ChangeRemoved); !ok {
		t.Errorf("Expected removed update, got %v", updates)
	}
}

func TestMidiOverdubCommit(t *testing.T) {
	m := newTestMatrix(nil)
	m.SetRecordSettings(RecordRequest{Kind: supplier.RecordMidi, Overdub: true, MaxSeconds: 1})
	m.FillSlot(0, 0, oneSecondMidiClip())
	m.RecordClip(0, 0)

	b := testBlock()
	b.MidiIn = []supplier.MidiEvent{{Frame: 5, Msg: midi.NewNoteOn(0, 64, 90)}}
	m.Process(b)
	m.Poll(120)
	m.StopClip(0, 0)
	m.Process(testBlock())
	m.Poll(120)

	slot, _ := m.Slot(0, 0)
	events := slot.Content().Clip.Source.Events
	if len(events) != 3 {
		t.Fatalf("Expected 3 events after overdub, got %v", events)
	}
	if events[1].Frame != 5*1024 || events[1].Data1 != 64 {
		t.Errorf("Expected overdubbed note at %d, got %+v", 5*1024, events[1])
	}
}

func TestSlotNotifications(t *testing.T) {
	tests := []struct {
		state SlotState
		want  error
	}{
		{Normal, ErrSlotNotRecording},
		{RequestedOverdubbing, ErrRequestedOverdubbing},
		{RequestedRecording, ErrRecordingNotAcknowledged},
	}
	for _, tt := range tests {
		s := newSlot(0)
		s.state = tt.state
		_, _, err := s.NotifyNormalRecordingFinished(rt.Committed, nil, nil)
		if !errors.Is(err, tt.want) {
			t.Errorf("%v: expected %v, got %v", tt.state, tt.want, err)
		}
		if s.State() != Normal {
			t.Errorf("%v: expected normal afterwards, got %v", tt.state, s.State())
		}
	}

	s := newSlot(0)
	if err := s.NotifyRecordRequestAcknowledged(rt.Event{AckOK: true}); !errors.Is(err, ErrRecordingNotRequested) {
		t.Errorf("Expected ErrRecordingNotRequested, got %v", err)
	}
	s.state = RequestedRecording
	if err := s.NotifyRecordRequestAcknowledged(rt.Event{Failure: "slot not filled"}); err != nil || s.State() != Normal {
		t.Errorf("Expected negative acknowledgement to reset the state, got %v / %v", err, s.State())
	}
}

func TestProportionalPosition(t *testing.T) {
	s := newSlot(0)
	if _, err := s.ProportionalPosition(); !errors.Is(err, ErrSlotNotFilled) {
		t.Errorf("Expected ErrSlotNotFilled, got %v", err)
	}
	shared := &rt.Shared{}
	s.content = &Content{Runtime: RuntimeData{Shared: shared}}

	tests := []struct {
		pos, frames int64
		want        float64
		err         error
	}{
		{-10, 100, 0, ErrCountIn},
		{10, 0, 0, ErrZeroFrames},
		{25, 100, 0.25, nil},
		{125, 100, 0.25, nil},
	}
	for _, tt := range tests {
		shared.Pos.Store(tt.pos)
		shared.Frames.Store(tt.frames)
		got, err := s.ProportionalPosition()
		if !errors.Is(err, tt.err) || got != tt.want {
			t.Errorf("pos %d/%d: expected %v (%v), got %v (%v)", tt.pos, tt.frames, tt.want, tt.err, got, err)
		}
	}
}
