// Package supplier contains the pull-based audio/MIDI frame providers clips are
// played through. Suppliers are composed by decoration: a source at the bottom,
// then looper, resampler, time stretcher and amplifier on top.
//
// Everything reachable from SupplyAudio/SupplyMidi runs on the audio thread and
// must not allocate.
package supplier

import (
	"github.com/pkg/errors"

	"go-surface/midi"
)

// MidiFrameRate is the artificial frame rate MIDI material is measured in. It is
// unlike any real sample rate so that MIDI and audio can share one supply contract.
const MidiFrameRate = 1024000

// MidiBaseTempo is the tempo MIDI frames are counted at
const MidiBaseTempo = 120.0

var (
	ErrStillRecording = errors.New("recorder is still recording")
	ErrEmptyRecording = errors.New("nothing recorded")
	ErrUnsupportedWAV = errors.New("unsupported wav file")
)

// Status tells the caller whether more material follows
type Status uint8

const (
	PleaseContinue Status = iota
	ReachedEnd
)

// SupplyResponse reports how a supply request went. NumFramesWritten is only
// meaningful with ReachedEnd; with PleaseContinue the destination was filled.
type SupplyResponse struct {
	NumFramesConsumed int
	Status            Status
	NumFramesWritten  int
}

// ReachedEnd reports whether the supplier ran out of material
func (r SupplyResponse) ReachedEnd() bool {
	return r.Status == ReachedEnd
}

// Written returns the number of frames written into a destination of size destFrames
func (r SupplyResponse) Written(destFrames int) int {
	if r.Status == ReachedEnd {
		return r.NumFramesWritten
	}
	return destFrames
}

func continueResponse(consumed int) SupplyResponse {
	return SupplyResponse{NumFramesConsumed: consumed, Status: PleaseContinue}
}

func endResponse(consumed, written int) SupplyResponse {
	return SupplyResponse{NumFramesConsumed: consumed, Status: ReachedEnd, NumFramesWritten: written}
}

// SupplyAudioRequest asks for audio starting at StartFrame (in source frames,
// negative during count-in). DestSampleRate 0 means the source's own rate.
type SupplyAudioRequest struct {
	StartFrame     int
	DestSampleRate float64
}

// SupplyMidiRequest asks for the MIDI events of DestFrameCount frames at
// DestSampleRate, starting at StartFrame (in MIDI frames)
type SupplyMidiRequest struct {
	StartFrame     int
	DestFrameCount int
	DestSampleRate float64
}

// MidiEvent is a MIDI message at a frame offset inside the destination block
type MidiEvent struct {
	Frame int
	Msg   midi.ShortMessage
}

// MidiEventList is a pre-allocated event list. Add drops events beyond its capacity.
type MidiEventList struct {
	events  []MidiEvent
	dropped int
}

// NewMidiEventList creates a list that holds up to capacity events
func NewMidiEventList(capacity int) *MidiEventList {
	return &MidiEventList{events: make([]MidiEvent, 0, capacity)}
}

func (l *MidiEventList) Add(ev MidiEvent) {
	if len(l.events) == cap(l.events) {
		l.dropped++
		return
	}
	l.events = append(l.events, ev)
}

func (l *MidiEventList) Events() []MidiEvent {
	return l.events
}

func (l *MidiEventList) Len() int {
	return len(l.events)
}

// Dropped counts events that did not fit
func (l *MidiEventList) Dropped() int {
	return l.dropped
}

func (l *MidiEventList) Clear() {
	l.events = l.events[:0]
}

// MaterialInfo describes the material a supplier provides
type MaterialInfo struct {
	Midi       bool
	Channels   int
	FrameCount int
	FrameRate  float64
	Tempo      float64 // bpm the material was made at, 0 if unknown
}

// DurationSeconds returns the untouched duration of the material
func (m MaterialInfo) DurationSeconds() float64 {
	if m.FrameRate <= 0 {
		return 0
	}
	return float64(m.FrameCount) / m.FrameRate
}

// TempoFactor is the factor to play the material with so that it follows the
// timeline tempo. Material without tempo plays at its own speed.
func (m MaterialInfo) TempoFactor(timelineTempo float64) float64 {
	tempo := m.Tempo
	if m.Midi && tempo <= 0 {
		tempo = MidiBaseTempo
	}
	if tempo <= 0 || timelineTempo <= 0 {
		return 1
	}
	return timelineTempo / tempo
}

// TempoFactorDuringRecording is used while the material tempo is not known yet.
// MIDI is recorded in MIDI frames at the base tempo, audio in real time.
func (m MaterialInfo) TempoFactorDuringRecording(timelineTempo float64) float64 {
	if m.Midi && timelineTempo > 0 {
		return timelineTempo / MidiBaseTempo
	}
	return 1
}

// AudioSupplier provides audio frames
type AudioSupplier interface {
	SupplyAudio(req *SupplyAudioRequest, dest AudioBuf) SupplyResponse
}

// MidiSupplier provides MIDI events
type MidiSupplier interface {
	SupplyMidi(req *SupplyMidiRequest, events *MidiEventList) SupplyResponse
}

// Supplier is what every chain member implements
type Supplier interface {
	AudioSupplier
	MidiSupplier
	MaterialInfo() MaterialInfo
}

// midiFramesFor converts dest frames at rate into MIDI frames
func midiFramesFor(destFrames int, rate float64) int {
	if rate <= 0 {
		return destFrames
	}
	return int(float64(destFrames)*MidiFrameRate/rate + 0.5)
}
