package clip

import (
	"math"

	"github.com/pkg/errors"

	"go-surface/clip/rt"
	"go-surface/clip/supplier"
	"go-surface/debug"
)

// SlotState tracks the recording handshake with the real-time column
type SlotState uint8

const (
	// Normal is empty or filled, possibly overdubbing (see the play state)
	Normal SlotState = iota
	// RequestedOverdubbing guards against double invocation until acknowledged
	RequestedOverdubbing
	// RequestedRecording guards against double invocation until acknowledged
	RequestedRecording
	// Recording from scratch, not overdubbing
	Recording
)

func (s SlotState) String() string {
	switch s {
	case RequestedOverdubbing:
		return "requested-overdubbing"
	case RequestedRecording:
		return "requested-recording"
	case Recording:
		return "recording"
	}
	return "normal"
}

// IsPrettyMuchRecording is true in every state but Normal
func (s SlotState) IsPrettyMuchRecording() bool {
	return s != Normal
}

// RuntimeData is what the real-time column shares about a playing clip
type RuntimeData struct {
	PlayState rt.PlayState
	Shared    *rt.Shared
	Material  supplier.MaterialInfo
}

// Pos returns the current position in source frames
func (r *RuntimeData) Pos() int {
	if r.Shared == nil {
		return 0
	}
	return int(r.Shared.Pos.Load())
}

// FrameCount returns the section-aware frame count, growing while recording
func (r *RuntimeData) FrameCount() int {
	if r.Shared == nil {
		return r.Material.FrameCount
	}
	return int(r.Shared.Frames.Load())
}

// ModFrame returns the position wrapped into the material, untouched during count-in
func (r *RuntimeData) ModFrame() int {
	pos := r.Pos()
	frames := r.FrameCount()
	if pos < 0 || frames == 0 {
		return pos
	}
	return pos % frames
}

// Content is a filled slot
type Content struct {
	Clip    Clip
	Runtime RuntimeData
}

// TempoFactor returns how fast the clip plays at the given timeline tempo
func (c *Content) TempoFactor(timelineTempo float64) float64 {
	return c.Runtime.Material.TempoFactor(timelineTempo)
}

// EffectiveLengthSeconds is the tempo adjusted, section aware length
func (c *Content) EffectiveLengthSeconds(timelineTempo float64) float64 {
	info := c.Runtime.Material
	info.FrameCount = c.Runtime.FrameCount()
	return info.DurationSeconds() / c.TempoFactor(timelineTempo)
}

// RecordRequest configures a recording
type RecordRequest struct {
	Kind       supplier.RecordKind
	Overdub    bool // MIDI only, falls back to from-scratch for audio or empty slots
	Channels   int
	FrameRate  float64
	MaxSeconds float64
	Looped     bool
	PlayAfter  bool // start playback once the recording is committed
	Tempo      float64
}

// Slot is one cell of a column
type Slot struct {
	index   int
	content *Content
	state   SlotState

	// valid while requested/recording
	request   RecordRequest
	recording RuntimeData
}

func newSlot(index int) *Slot {
	return &Slot{index: index}
}

func (s *Slot) Index() int {
	return s.index
}

func (s *Slot) State() SlotState {
	return s.state
}

// Content returns the slot's content or nil
func (s *Slot) Content() *Content {
	return s.content
}

// IsEmpty is true without content and without recording in progress
func (s *Slot) IsEmpty() bool {
	return s.content == nil && !s.state.IsPrettyMuchRecording()
}

func (s *Slot) IsRecording() bool {
	return s.state.IsPrettyMuchRecording()
}

func (s *Slot) getContent() (*Content, error) {
	if s.content == nil {
		return nil, ErrSlotNotFilled
	}
	return s.content, nil
}

func (s *Slot) runtimeData() (*RuntimeData, error) {
	if s.state == Recording {
		return &s.recording, nil
	}
	c, err := s.getContent()
	if err != nil {
		return nil, err
	}
	return &c.Runtime, nil
}

// RecordClip asks the real-time column to record into this slot. Buffers are
// allocated here. On error nothing changed.
func (s *Slot) RecordClip(req RecordRequest, eq supplier.Equipment, send func(rt.Command) error) error {
	if s.state.IsPrettyMuchRecording() {
		return ErrRecordingAlready
	}
	overdub := false
	if s.content != nil {
		if s.content.Runtime.PlayState.IsSomehowRecording() {
			return ErrRecordingAlreadyPlayState
		}
		overdub = req.Overdub && req.Kind != supplier.RecordAudio && s.content.Runtime.Material.Midi
	}

	var instr *rt.RecordInstruction
	next := RequestedRecording
	if overdub {
		base, err := s.content.Clip.midiSource()
		if err != nil {
			return err
		}
		maxEvents := max(int(req.MaxSeconds*100), 256)
		instr = &rt.RecordInstruction{Recorder: supplier.NewOverdubRecorder(base, maxEvents), Overdub: true}
		next = RequestedOverdubbing
	} else {
		kind := req.Kind
		if kind == supplier.RecordMidiOverdub {
			kind = supplier.RecordMidi
		}
		rec := supplier.NewRecorder(kind, req.Channels, req.FrameRate, req.MaxSeconds)
		instr = &rt.RecordInstruction{NewClip: rt.NewRecordingClip(rec, eq), Recorder: rec}
	}
	if err := send(rt.Command{Kind: rt.CmdRecordClip, Slot: s.index, Record: instr}); err != nil {
		return err
	}
	s.state = next
	s.request = req
	return nil
}

// NotifyRecordRequestAcknowledged reconciles the acknowledgement of the real-time column
func (s *Slot) NotifyRecordRequestAcknowledged(ev rt.Event) error {
	if !ev.AckOK {
		debug.Log("clip", "Slot %d: recording request acknowledged negatively (%s)", s.index, ev.Failure)
		s.state = Normal
		return nil
	}
	prev := s.state
	s.state = Normal
	switch prev {
	case Normal:
		return ErrRecordingNotRequested
	case RequestedOverdubbing:
		debug.Log("clip", "Slot %d: acknowledged overdubbing", s.index)
		return nil
	case RequestedRecording:
		debug.Log("clip", "Slot %d: acknowledged recording", s.index)
		s.recording = RuntimeData{
			PlayState: rt.Recording,
			Shared:    ev.Shared,
			Material:  s.recordingMaterial(),
		}
		s.state = Recording
		return nil
	}
	return ErrRecordingAlready
}

func (s *Slot) recordingMaterial() supplier.MaterialInfo {
	if s.request.Kind == supplier.RecordAudio {
		return supplier.MaterialInfo{Channels: max(s.request.Channels, 1), FrameRate: s.request.FrameRate}
	}
	return supplier.MaterialInfo{Midi: true, FrameRate: supplier.MidiFrameRate, Tempo: supplier.MidiBaseTempo}
}

// NotifyNormalRecordingFinished turns a finished recording into content. The
// committed source is returned so the caller can hand it to the real-time column.
func (s *Slot) NotifyNormalRecordingFinished(outcome rt.RecordingOutcome, rec *supplier.Recorder, export func(supplier.Supplier) (Source, error)) (ChangeEvent, supplier.Supplier, error) {
	prev := s.state
	s.state = Normal
	if outcome == rt.Canceled {
		debug.Log("clip", "Slot %d: recording canceled", s.index)
		s.content = nil
		return ChangeEvent{Kind: ChangeRemoved}, nil, nil
	}
	switch prev {
	case Normal:
		return ChangeEvent{}, nil, ErrSlotNotRecording
	case RequestedOverdubbing:
		return ChangeEvent{}, nil, ErrRequestedOverdubbing
	case RequestedRecording:
		return ChangeEvent{}, nil, ErrRecordingNotAcknowledged
	}

	src, err := rec.Commit()
	if err != nil {
		s.content = nil
		return ChangeEvent{Kind: ChangeRemoved}, nil, errors.Wrapf(err, "slot %d", s.index)
	}
	source, err := export(src)
	if err != nil {
		// keep the material in memory, it just can't be saved
		debug.Log("clip", "Slot %d: export failed: %v", s.index, err)
		source = Source{Kind: SourceRecording, material: src}
	}
	clip := Clip{Source: source, Looped: s.request.Looped}
	if !src.MaterialInfo().Midi {
		clip.Tempo = s.request.Tempo
		if a, ok := src.(*supplier.AudioSource); ok {
			a.SetTempo(clip.Tempo)
		}
	}
	runtime := s.recording
	runtime.PlayState = rt.Stopped
	runtime.Material = src.MaterialInfo()
	s.content = &Content{Clip: clip, Runtime: runtime}
	s.recording = RuntimeData{}
	return ChangeEvent{Kind: ChangeRecordingFinished}, src, nil
}

// NotifyMidiOverdubFinished merges the overdub into the clip and returns the new source
func (s *Slot) NotifyMidiOverdubFinished(rec *supplier.Recorder) (ChangeEvent, supplier.Supplier, error) {
	content, err := s.getContent()
	if err != nil {
		return ChangeEvent{}, nil, err
	}
	src, err := rec.Commit()
	if err != nil {
		return ChangeEvent{}, nil, errors.Wrapf(err, "slot %d", s.index)
	}
	merged, ok := src.(*supplier.MidiSource)
	if !ok {
		return ChangeEvent{}, nil, errors.Wrapf(ErrNoSource, "slot %d: overdub produced no MIDI", s.index)
	}
	content.Clip.Source = midiSourceFrom(merged)
	content.Runtime.Material = merged.MaterialInfo()
	return ChangeEvent{Kind: ChangeRecordingFinished}, supplier.NewMidiSource(merged.Events(), merged.MaterialInfo().FrameCount), nil
}

// SlotCleared reports a removal confirmed by the real-time column. Content is
// dropped when the clear is requested, so a slot refilled meanwhile stays quiet.
func (s *Slot) SlotCleared() (ChangeEvent, bool) {
	if s.content != nil {
		return ChangeEvent{}, false
	}
	return ChangeEvent{Kind: ChangeRemoved}, true
}

func (s *Slot) UpdatePlayState(ps rt.PlayState) error {
	r, err := s.runtimeData()
	if err != nil {
		return err
	}
	r.PlayState = ps
	return nil
}

// ClipPlayState reports the play state, ScheduledForRecordingStart while waiting
// for the acknowledgement
func (s *Slot) ClipPlayState() (rt.PlayState, error) {
	switch s.state {
	case RequestedOverdubbing, RequestedRecording:
		return rt.ScheduledForRecordingStart, nil
	}
	r, err := s.runtimeData()
	if err != nil {
		return rt.Stopped, err
	}
	return r.PlayState, nil
}

func (s *Slot) IsStoppable() bool {
	ps, err := s.ClipPlayState()
	return err == nil && ps.IsStoppable()
}

// ProportionalPosition returns the position within the material as 0..1
func (s *Slot) ProportionalPosition() (float64, error) {
	r, err := s.runtimeData()
	if err != nil {
		return 0, err
	}
	pos := r.Pos()
	if pos < 0 {
		return 0, ErrCountIn
	}
	frames := r.FrameCount()
	if frames == 0 {
		return 0, ErrZeroFrames
	}
	return math.Min(float64(pos%frames)/float64(frames), 1), nil
}

// PositionInSeconds returns the tempo adjusted position
func (s *Slot) PositionInSeconds(timelineTempo float64) (float64, error) {
	var r *RuntimeData
	var factor float64
	var frame int
	if s.state == Recording {
		// material grows with the position, nothing to wrap yet
		r = &s.recording
		factor = r.Material.TempoFactorDuringRecording(timelineTempo)
		frame = r.Pos()
	} else {
		c, err := s.getContent()
		if err != nil {
			return 0, err
		}
		r = &c.Runtime
		factor = c.TempoFactor(timelineTempo)
		frame = r.ModFrame()
	}
	if r.Material.FrameRate <= 0 {
		return 0, ErrZeroFrames
	}
	return float64(frame) / r.Material.FrameRate / factor, nil
}

func (s *Slot) ClipVolume() (float64, error) {
	c, err := s.getContent()
	if err != nil {
		return 0, err
	}
	return c.Clip.VolumeDB, nil
}

func (s *Slot) ClipLooped() (bool, error) {
	c, err := s.getContent()
	if err != nil {
		return false, err
	}
	return c.Clip.Looped, nil
}

func (s *Slot) SetClipVolume(db float64, send func(rt.Command) error) (ChangeEvent, error) {
	c, err := s.getContent()
	if err != nil {
		return ChangeEvent{}, err
	}
	if err := send(rt.Command{Kind: rt.CmdSetClipVolume, Slot: s.index, Value: db}); err != nil {
		return ChangeEvent{}, err
	}
	c.Clip.VolumeDB = db
	return ChangeEvent{Kind: ChangeVolume, VolumeDB: db}, nil
}

func (s *Slot) ToggleClipLooped(send func(rt.Command) error) (ChangeEvent, error) {
	c, err := s.getContent()
	if err != nil {
		return ChangeEvent{}, err
	}
	looped := !c.Clip.Looped
	if err := send(rt.Command{Kind: rt.CmdSetClipLooped, Slot: s.index, Flag: looped}); err != nil {
		return ChangeEvent{}, err
	}
	c.Clip.Looped = looped
	return ChangeEvent{Kind: ChangeLooped, Looped: looped}, nil
}

// AdjustClipSectionLength multiplies the section length, starting from the full
// material if no section is set
func (s *Slot) AdjustClipSectionLength(factor float64, send func(rt.Command) error) error {
	c, err := s.getContent()
	if err != nil {
		return err
	}
	current := c.Clip.Section.Length
	if current <= 0 {
		current = c.Runtime.Material.FrameCount - c.Clip.Section.Start
	}
	length := int(float64(current) * factor)
	if length <= 0 {
		return errors.Wrapf(ErrZeroFrames, "section length %d", length)
	}
	section := supplier.Section{Start: c.Clip.Section.Start, Length: length}
	if err := send(rt.Command{Kind: rt.CmdSetClipSection, Slot: s.index, Section: section}); err != nil {
		return err
	}
	c.Clip.Section = section
	return nil
}

func (s *Slot) fillWith(clip Clip, rtClip *rt.Clip, material supplier.MaterialInfo) {
	s.content = &Content{
		Clip:    clip,
		Runtime: RuntimeData{PlayState: rt.Stopped, Shared: rtClip.Shared(), Material: material},
	}
}
