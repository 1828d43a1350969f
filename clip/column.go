package clip

import (
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"go-surface/clip/rt"
	"go-surface/clip/supplier"
	"go-surface/debug"
)

// ChangeKind identifies a clip change reported to the outside
type ChangeKind uint8

const (
	ChangePlayState ChangeKind = iota
	ChangePosition
	ChangeVolume
	ChangeLooped
	ChangeRecordingFinished
	ChangeRemoved
	ChangeFilled
)

var changeKindNames = [...]string{"play-state", "position", "volume", "looped", "recording-finished", "removed", "filled"}

func (k ChangeKind) String() string {
	if int(k) < len(changeKindNames) {
		return changeKindNames[k]
	}
	return "unknown"
}

// ChangeEvent describes what changed in a slot
type ChangeEvent struct {
	Kind         ChangeKind   `msgpack:"kind" json:"kind"`
	PlayState    rt.PlayState `msgpack:"play_state,omitempty" json:"play_state,omitempty"`
	Proportional float64      `msgpack:"proportional,omitempty" json:"proportional,omitempty"`
	Seconds      float64      `msgpack:"seconds,omitempty" json:"seconds,omitempty"`
	VolumeDB     float64      `msgpack:"volume_db,omitempty" json:"volume_db,omitempty"`
	Looped       bool         `msgpack:"looped,omitempty" json:"looped,omitempty"`
}

// SlotChange is a change event of a row
type SlotChange struct {
	Row   int
	Event ChangeEvent
}

// ColumnSettings are the persisted column settings
type ColumnSettings struct {
	Name      string      `json:"name,omitempty"`
	PlayMode  rt.PlayMode `json:"play_mode"`
	TrackGUID string      `json:"track,omitempty"` // playback track
}

// Column owns the slots of one column and the channel pair to its real-time column
type Column struct {
	settings  ColumnSettings
	slots     []*Slot
	commands  chan rt.Command
	events    chan rt.Event
	rt        *rt.Column
	equipment supplier.Equipment
	clipsDir  string

	lastFailure string
}

func newColumn(rows int, settings ColumnSettings, eq supplier.Equipment, clipsDir string) *Column {
	c := &Column{
		settings:  settings,
		slots:     make([]*Slot, rows),
		commands:  make(chan rt.Command, rt.ChannelCapacity),
		events:    make(chan rt.Event, rt.ChannelCapacity),
		equipment: eq,
		clipsDir:  clipsDir,
	}
	for i := range c.slots {
		c.slots[i] = newSlot(i)
	}
	c.rt = rt.NewColumn(c.commands, c.events, rt.Settings{PlayMode: settings.PlayMode}, rows, eq)
	return c
}

// RT returns the real-time column, to be processed by the audio thread
func (c *Column) RT() *rt.Column {
	return c.rt
}

func (c *Column) Settings() ColumnSettings {
	return c.settings
}

// SetSettings updates the settings and syncs the play mode to the real-time column
func (c *Column) SetSettings(s ColumnSettings) error {
	if err := c.send(rt.Command{Kind: rt.CmdUpdateSettings, Settings: rt.Settings{PlayMode: s.PlayMode}}); err != nil {
		return err
	}
	c.settings = s
	return nil
}

// FollowsScene reports whether row launches affect this column
func (c *Column) FollowsScene() bool {
	return c.settings.PlayMode.FollowsScene()
}

// LastFailure returns the last failure message of the real-time column
func (c *Column) LastFailure() string {
	return c.lastFailure
}

func (c *Column) send(cmd rt.Command) error {
	select {
	case c.commands <- cmd:
		return nil
	default:
		return ErrColumnBusy
	}
}

func (c *Column) Slots() []*Slot {
	return c.slots
}

func (c *Column) Slot(row int) (*Slot, error) {
	if row < 0 || row >= len(c.slots) {
		return nil, ErrSlotNotExist
	}
	return c.slots[row], nil
}

func (c *Column) filledSlot(row int) (*Slot, error) {
	s, err := c.Slot(row)
	if err != nil {
		return nil, err
	}
	if s.content == nil {
		return nil, ErrSlotNotFilled
	}
	return s, nil
}

// FillSlot loads a clip into an empty slot
func (c *Column) FillSlot(row int, clip Clip) (ChangeEvent, error) {
	s, err := c.Slot(row)
	if err != nil {
		return ChangeEvent{}, err
	}
	if !s.IsEmpty() {
		return ChangeEvent{}, ErrSlotNotEmpty
	}
	rtClip, material, err := clip.createRtClip(c.equipment)
	if err != nil {
		return ChangeEvent{}, err
	}
	if err := c.send(rt.Command{Kind: rt.CmdFillSlot, Slot: row, Clip: rtClip}); err != nil {
		return ChangeEvent{}, err
	}
	s.fillWith(clip, rtClip, material)
	return ChangeEvent{Kind: ChangeFilled}, nil
}

// ClearSlot removes the clip, canceling a recording in progress
func (c *Column) ClearSlot(row int) error {
	s, err := c.Slot(row)
	if err != nil {
		return err
	}
	if err := c.send(rt.Command{Kind: rt.CmdClearSlot, Slot: row}); err != nil {
		return err
	}
	s.content = nil
	return nil
}

func (c *Column) ClearSlots() error {
	if err := c.send(rt.Command{Kind: rt.CmdClearSlots}); err != nil {
		return err
	}
	for _, s := range c.slots {
		s.content = nil
	}
	return nil
}

func (c *Column) PlayClip(row int) error {
	if _, err := c.filledSlot(row); err != nil {
		return err
	}
	return c.send(rt.Command{Kind: rt.CmdPlayClip, Slot: row})
}

// StopClip stops playback, or finishes a recording
func (c *Column) StopClip(row int) error {
	s, err := c.Slot(row)
	if err != nil {
		return err
	}
	if s.content == nil && s.state != Recording {
		return ErrSlotNotFilled
	}
	return c.send(rt.Command{Kind: rt.CmdStopClip, Slot: row})
}

func (c *Column) PauseClip(row int) error {
	if _, err := c.filledSlot(row); err != nil {
		return err
	}
	return c.send(rt.Command{Kind: rt.CmdPauseClip, Slot: row})
}

// SeekClip jumps to a proportional position
func (c *Column) SeekClip(row int, u float64) error {
	if _, err := c.filledSlot(row); err != nil {
		return err
	}
	return c.send(rt.Command{Kind: rt.CmdSeekClip, Slot: row, Value: u})
}

func (c *Column) SetClipVolume(row int, db float64) (ChangeEvent, error) {
	s, err := c.Slot(row)
	if err != nil {
		return ChangeEvent{}, err
	}
	return s.SetClipVolume(db, c.send)
}

func (c *Column) ToggleClipLooped(row int) (ChangeEvent, error) {
	s, err := c.Slot(row)
	if err != nil {
		return ChangeEvent{}, err
	}
	return s.ToggleClipLooped(c.send)
}

func (c *Column) AdjustClipSectionLength(row int, factor float64) error {
	s, err := c.Slot(row)
	if err != nil {
		return err
	}
	return s.AdjustClipSectionLength(factor, c.send)
}

func (c *Column) RecordClip(row int, req RecordRequest) error {
	s, err := c.Slot(row)
	if err != nil {
		return err
	}
	return s.RecordClip(req, c.equipment, c.send)
}

// CancelRecording discards a recording in progress
func (c *Column) CancelRecording(row int) error {
	s, err := c.Slot(row)
	if err != nil {
		return err
	}
	if s.state != Recording {
		return ErrSlotNotRecording
	}
	return c.send(rt.Command{Kind: rt.CmdCancelRecording, Slot: row})
}

// PlayRow launches a scene row, ignored unless the column follows scenes
func (c *Column) PlayRow(row int) error {
	if !c.FollowsScene() {
		return nil
	}
	return c.send(rt.Command{Kind: rt.CmdPlayRow, Slot: row})
}

// Stop stops all clips of the column
func (c *Column) Stop() error {
	return c.send(rt.Command{Kind: rt.CmdStop})
}

// IsStoppable reports whether any slot could be stopped
func (c *Column) IsStoppable() bool {
	for _, s := range c.slots {
		if s.IsStoppable() {
			return true
		}
	}
	return false
}

func (c *Column) IsRecording() bool {
	for _, s := range c.slots {
		if s.IsRecording() {
			return true
		}
	}
	return false
}

// PlaybackTrack returns the GUID of the track the column plays on
func (c *Column) PlaybackTrack() (string, error) {
	if c.settings.TrackGUID == "" {
		return "", ErrNoPlaybackTrack
	}
	return c.settings.TrackGUID, nil
}

// Poll reconciles the events of the real-time column into the slots and adds
// position updates for advancing clips
func (c *Column) Poll(timelineTempo float64) []SlotChange {
	var changes []SlotChange
	for {
		var ev rt.Event
		select {
		case ev = <-c.events:
		default:
			return c.appendPositions(changes, timelineTempo)
		}
		if change, ok := c.handleEvent(ev); ok {
			changes = append(changes, SlotChange{Row: ev.Slot, Event: change})
		}
	}
}

func (c *Column) handleEvent(ev rt.Event) (ChangeEvent, bool) {
	if ev.Kind == rt.EvInteractionFailed {
		c.lastFailure = ev.Failure
		slog.Warn("clip interaction failed", "slot", ev.Slot, "failure", ev.Failure)
		return ChangeEvent{}, false
	}
	s, err := c.Slot(ev.Slot)
	if err != nil {
		return ChangeEvent{}, false
	}
	switch ev.Kind {
	case rt.EvPlayStateChanged:
		_ = s.UpdatePlayState(ev.PlayState)
		return ChangeEvent{Kind: ChangePlayState, PlayState: ev.PlayState}, true

	case rt.EvRecordRequestAcknowledged:
		if err := s.NotifyRecordRequestAcknowledged(ev); err != nil {
			slog.Error("record acknowledgement", "slot", ev.Slot, "error", err)
		}
		return ChangeEvent{}, false

	case rt.EvNormalRecordingFinished:
		change, src, err := s.NotifyNormalRecordingFinished(ev.Outcome, ev.Recorder, c.export)
		if err != nil {
			slog.Error("recording finished", "slot", ev.Slot, "error", err)
			if change.Kind == ChangeRemoved {
				// nothing usable was recorded, drop the real-time clip too
				_ = c.send(rt.Command{Kind: rt.CmdClearSlot, Slot: ev.Slot})
			}
		}
		if src != nil {
			if err := c.send(rt.Command{Kind: rt.CmdSetClipSource, Slot: ev.Slot, Source: src, Flag: s.request.PlayAfter}); err != nil {
				slog.Error("handing over recording", "slot", ev.Slot, "error", err)
			}
		}
		return change, err == nil || change.Kind == ChangeRemoved

	case rt.EvMidiOverdubFinished:
		if ev.Outcome == rt.Canceled {
			return ChangeEvent{}, false
		}
		change, src, err := s.NotifyMidiOverdubFinished(ev.Recorder)
		if err != nil {
			slog.Error("overdub finished", "slot", ev.Slot, "error", err)
			return ChangeEvent{}, false
		}
		if err := c.send(rt.Command{Kind: rt.CmdSetClipSource, Slot: ev.Slot, Source: src}); err != nil {
			slog.Error("handing over overdub", "slot", ev.Slot, "error", err)
		}
		return change, true

	case rt.EvSlotCleared:
		return s.SlotCleared()

	case rt.EvDispose:
		// dropping the reference is all there is to do on this side
		return ChangeEvent{}, false
	}
	return ChangeEvent{}, false
}

func (c *Column) appendPositions(changes []SlotChange, timelineTempo float64) []SlotChange {
	for row, s := range c.slots {
		ps, err := s.ClipPlayState()
		if err != nil || !ps.IsAdvancing() {
			continue
		}
		prop, _ := s.ProportionalPosition()
		secs, _ := s.PositionInSeconds(timelineTempo)
		changes = append(changes, SlotChange{Row: row, Event: ChangeEvent{Kind: ChangePosition, Proportional: prop, Seconds: secs}})
	}
	return changes
}

// export writes committed audio into the clips directory. MIDI is stored inline.
func (c *Column) export(src supplier.Supplier) (Source, error) {
	switch s := src.(type) {
	case *supplier.MidiSource:
		return midiSourceFrom(s), nil
	case *supplier.AudioSource:
		if c.clipsDir == "" {
			return Source{Kind: SourceRecording, material: s}, nil
		}
		path := filepath.Join(c.clipsDir, uuid.NewString()+".wav")
		if err := supplier.WriteWAV(path, s.Data(), s.MaterialInfo().FrameRate, 24); err != nil {
			return Source{}, err
		}
		debug.Log("clip", "Exported recording to %s", path)
		return Source{Kind: SourceFile, Path: path, material: s}, nil
	}
	return Source{}, errors.Wrapf(ErrNoSource, "unexpected recording %T", src)
}
