package clip

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"go-surface/clip/rt"
	"go-surface/clip/supplier"
	"go-surface/config"
	"go-surface/midi"
)

func newTestMatrix(hub *Hub) *Matrix {
	return NewMatrix(config.ClipEngineConfig{
		Columns:    2,
		Rows:       4,
		SampleRate: 1000,
		BlockSize:  32,
		Channels:   2,
		Tempo:      120,
	}, hub)
}

func testBlock() *rt.Block {
	return &rt.Block{
		Out:        supplier.NewAudioBuf(2, 32),
		In:         supplier.NewAudioBuf(2, 32),
		MidiOut:    supplier.NewMidiEventList(64),
		SampleRate: 1000,
		Tempo:      120,
	}
}

// oneSecondMidiClip is a one second MIDI clip at 120 bpm
func oneSecondMidiClip() Clip {
	return NewMidiClip([]supplier.TimedMessage{
		{Frame: 0, Msg: midi.NewNoteOn(0, 60, 100)},
		{Frame: supplier.MidiFrameRate / 2, Msg: midi.NewNoteOff(0, 60, 0)},
	}, supplier.MidiFrameRate)
}

func findUpdate(updates []Update, col, row int, kind ChangeKind) (Update, bool) {
	for _, u := range updates {
		if u.Column == col && u.Row == row && u.Event.Kind == kind {
			return u, true
		}
	}
	return Update{}, false
}

func TestFillPlayClear(t *testing.T) {
	m := newTestMatrix(nil)
	if err := m.FillSlot(0, 0, oneSecondMidiClip()); err != nil {
		t.Fatalf("FillSlot failed: %v", err)
	}
	if err := m.FillSlot(0, 0, oneSecondMidiClip()); !errors.Is(err, ErrSlotNotEmpty) {
		t.Errorf("Expected ErrSlotNotEmpty, got %v", err)
	}

	tests := []struct {
		col, row int
		want     error
	}{
		{0, 1, ErrSlotNotFilled},
		{5, 0, ErrColumnNotExist},
		{0, 9, ErrSlotNotExist},
	}
	for _, tt := range tests {
		if err := m.PlayClip(tt.col, tt.row); !errors.Is(err, tt.want) {
			t.Errorf("PlayClip(%d, %d): expected %v, got %v", tt.col, tt.row, tt.want, err)
		}
	}

	if err := m.PlayClip(0, 0); err != nil {
		t.Fatalf("PlayClip failed: %v", err)
	}
	b := testBlock()
	m.Process(b)
	if b.MidiOut.Len() != 1 {
		t.Errorf("Expected the note on in the first block, got %v", b.MidiOut.Events())
	}
	updates := m.Poll(120)
	if u, ok := findUpdate(updates, 0, 0, ChangePlayState); !ok || u.Event.PlayState != rt.Playing {
		t.Errorf("Expected playing state update, got %v", updates)
	}
	u, ok := findUpdate(updates, 0, 0, ChangePosition)
	if !ok {
		t.Fatalf("Expected a position update, got %v", updates)
	}
	if math.Abs(u.Event.Proportional-0.032) > 1e-3 || math.Abs(u.Event.Seconds-0.032) > 1e-3 {
		t.Errorf("Expected position 0.032, got %v / %vs", u.Event.Proportional, u.Event.Seconds)
	}

	if err := m.ClearSlot(0, 0); err != nil {
		t.Fatalf("ClearSlot failed: %v", err)
	}
	slot, _ := m.Slot(0, 0)
	if !slot.IsEmpty() {
		t.Error("Expected slot to be empty right after clearing")
	}
	m.Process(testBlock())
	updates = m.Poll(120)
	if _, ok := findUpdate(updates, 0, 0, ChangeRemoved); !ok {
		t.Errorf("Expected removed update, got %v", updates)
	}
	if err := m.FillSlot(0, 0, oneSecondMidiClip()); err != nil {
		t.Errorf("Expected cleared slot to be fillable, got %v", err)
	}
}

func TestClearThenRefillStaysFilled(t *testing.T) {
	m := newTestMatrix(nil)
	m.FillSlot(0, 0, oneSecondMidiClip())
	m.ClearSlot(0, 0)
	if err := m.FillSlot(0, 0, oneSecondMidiClip()); err != nil {
		t.Fatalf("FillSlot failed: %v", err)
	}
	m.Process(testBlock())
	m.Poll(120)
	slot, _ := m.Slot(0, 0)
	if slot.Content() == nil {
		t.Error("Expected the late clear confirmation to leave the new clip alone")
	}
}

func TestPlayRowFollowsScene(t *testing.T) {
	m := newTestMatrix(nil)
	m.FillSlot(0, 0, oneSecondMidiClip())
	m.FillSlot(0, 1, oneSecondMidiClip())
	m.FillSlot(1, 1, oneSecondMidiClip())
	if err := m.SetColumnSettings(1, ColumnSettings{PlayMode: rt.Free}); err != nil {
		t.Fatalf("SetColumnSettings failed: %v", err)
	}
	m.PlayClip(0, 0)
	if err := m.PlayRow(1); err != nil {
		t.Fatalf("PlayRow failed: %v", err)
	}
	m.Process(testBlock())
	m.Poll(120)

	tests := []struct {
		col, row int
		want     rt.PlayState
	}{
		{0, 0, rt.Stopped},
		{0, 1, rt.Playing},
		{1, 1, rt.Stopped}, // free columns ignore scenes
	}
	for _, tt := range tests {
		slot, _ := m.Slot(tt.col, tt.row)
		got, err := slot.ClipPlayState()
		if err != nil || got != tt.want {
			t.Errorf("(%d, %d): expected %v, got %v (%v)", tt.col, tt.row, tt.want, got, err)
		}
	}
}

func TestStopColumn(t *testing.T) {
	m := newTestMatrix(nil)
	m.FillSlot(1, 2, oneSecondMidiClip())
	m.PlayClip(1, 2)
	m.Process(testBlock())
	m.Poll(120)
	if !m.IsStoppable() {
		t.Fatal("Expected the matrix to be stoppable")
	}
	m.StopColumn(1)
	m.Process(testBlock())
	m.Poll(120)
	if m.IsStoppable() {
		t.Error("Expected nothing left to stop")
	}
}

func TestCopyPaste(t *testing.T) {
	m := newTestMatrix(nil)
	if err := m.PasteSlot(0, 0); !errors.Is(err, ErrNothingCopied) {
		t.Errorf("Expected ErrNothingCopied, got %v", err)
	}
	clip := oneSecondMidiClip()
	clip.VolumeDB = -6
	m.FillSlot(0, 0, clip)
	if err := m.CopySlot(0, 0); err != nil {
		t.Fatalf("CopySlot failed: %v", err)
	}
	if err := m.PasteSlot(1, 3); err != nil {
		t.Fatalf("PasteSlot failed: %v", err)
	}
	slot, _ := m.Slot(1, 3)
	if slot.Content() == nil || slot.Content().Clip.VolumeDB != -6 {
		t.Errorf("Expected pasted clip with -6 dB, got %+v", slot.Content())
	}
}

func TestSelectedItemAndTrack(t *testing.T) {
	m := newTestMatrix(nil)
	if err := m.FillSlotWithSelectedItem(0, 0); !errors.Is(err, ErrNoItemSelected) {
		t.Errorf("Expected ErrNoItemSelected, got %v", err)
	}
	clip := oneSecondMidiClip()
	m.SetSelectedItem(&clip)
	if err := m.FillSlotWithSelectedItem(0, 0); err != nil {
		t.Errorf("Expected selected item to fill the slot, got %v", err)
	}
	if _, err := m.ColumnTrack(0); !errors.Is(err, ErrNoPlaybackTrack) {
		t.Errorf("Expected ErrNoPlaybackTrack, got %v", err)
	}
	m.SetColumnSettings(0, ColumnSettings{TrackGUID: "track-1"})
	if guid, err := m.ColumnTrack(0); err != nil || guid != "track-1" {
		t.Errorf("Expected track-1, got %q (%v)", guid, err)
	}
	if _, ok := m.SelectedSlot(); ok {
		t.Error("Expected no selected slot")
	}
	m.SelectSlot(1, 2)
	if addr, ok := m.SelectedSlot(); !ok || addr != (SlotAddress{Column: 1, Row: 2}) {
		t.Errorf("Expected selected slot 1/2, got %v", addr)
	}
}

func TestVolumeLoopAndSection(t *testing.T) {
	m := newTestMatrix(nil)
	m.FillSlot(0, 0, oneSecondMidiClip())
	if err := m.SetClipVolume(0, 0, -3); err != nil {
		t.Fatalf("SetClipVolume failed: %v", err)
	}
	if err := m.ToggleClipLooped(0, 0); err != nil {
		t.Fatalf("ToggleClipLooped failed: %v", err)
	}
	if err := m.AdjustClipSectionLength(0, 0, 0.5); err != nil {
		t.Fatalf("AdjustClipSectionLength failed: %v", err)
	}
	slot, _ := m.Slot(0, 0)
	c := slot.Content().Clip
	if c.VolumeDB != -3 || !c.Looped || c.Section.Length != supplier.MidiFrameRate/2 {
		t.Errorf("Unexpected clip settings %+v", c)
	}
	m.Process(testBlock())
	if got := slot.Content().Runtime.FrameCount(); got != supplier.MidiFrameRate/2 {
		t.Errorf("Expected section length to reach the shared frame count, got %d", got)
	}
}

func TestSaveLoad(t *testing.T) {
	m := newTestMatrix(nil)
	clip := oneSecondMidiClip()
	clip.Name = "bass"
	clip.Looped = true
	m.FillSlot(1, 2, clip)
	m.SetColumnSettings(1, ColumnSettings{Name: "keys", PlayMode: rt.Free})

	path := filepath.Join(t.TempDir(), "matrix.json")
	if err := m.SaveFile(path); err != nil {
		t.Fatalf("SaveFile failed: %v", err)
	}

	loaded := newTestMatrix(nil)
	loaded.FillSlot(0, 0, oneSecondMidiClip())
	id := loaded.ID()
	if err := loaded.LoadFile(path); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if loaded.ID() != id {
		t.Errorf("Expected matrix id %s to survive loading, got %s", id, loaded.ID())
	}
	if s, _ := loaded.Slot(0, 0); s.Content() != nil {
		t.Error("Expected slot 0/0 to be cleared by loading")
	}
	s, _ := loaded.Slot(1, 2)
	if s.Content() == nil {
		t.Fatal("Expected slot 1/2 to be filled")
	}
	got := s.Content().Clip
	if got.Name != "bass" || !got.Looped || len(got.Source.Events) != 2 {
		t.Errorf("Unexpected loaded clip %+v", got)
	}
	col, _ := loaded.Column(1)
	if col.Settings().Name != "keys" || col.Settings().PlayMode != rt.Free {
		t.Errorf("Unexpected column settings %+v", col.Settings())
	}
}

func TestSubscriptionSurvivesLoad(t *testing.T) {
	saved := newTestMatrix(nil)
	saved.FillSlot(0, 1, oneSecondMidiClip())
	data := saved.Save()

	hub := NewHub()
	m := newTestMatrix(hub)
	updates, unsubscribe := hub.Subscribe(m.ID(), 4)
	defer unsubscribe()
	if err := m.Load(data); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	for len(updates) > 0 {
		<-updates
	}

	m.PlayClip(0, 1)
	m.Process(testBlock())
	m.Poll(120)
	select {
	case batch := <-updates:
		if len(batch) == 0 || batch[0].MatrixID != m.ID() {
			t.Errorf("Unexpected batch %v", batch)
		}
	default:
		t.Error("Expected updates on the subscription taken before loading")
	}
}

func TestHubFiltersByMatrix(t *testing.T) {
	hub := NewHub()
	m := newTestMatrix(hub)
	mine, unsubscribe := hub.Subscribe(m.ID(), 4)
	defer unsubscribe()
	other, unsubscribeOther := hub.Subscribe("another-matrix", 4)
	defer unsubscribeOther()

	m.FillSlot(0, 0, oneSecondMidiClip())
	m.PlayClip(0, 0)
	m.Process(testBlock())
	m.Poll(120)

	select {
	case batch := <-mine:
		if len(batch) == 0 || batch[0].MatrixID != m.ID() {
			t.Errorf("Unexpected batch %v", batch)
		}
		data, err := EncodeUpdates(batch)
		if err != nil {
			t.Fatalf("EncodeUpdates failed: %v", err)
		}
		decoded, err := DecodeUpdates(data)
		if err != nil || len(decoded) != len(batch) || decoded[0].Event.Kind != batch[0].Event.Kind {
			t.Errorf("Expected decoded batch to match, got %v (%v)", decoded, err)
		}
	default:
		t.Error("Expected a batch for the subscribed matrix")
	}
	select {
	case batch := <-other:
		t.Errorf("Expected nothing for another matrix, got %v", batch)
	default:
	}
}
