// Package clip is the main-thread side of the clip engine: a matrix of columns,
// each holding slots that may contain a clip. Every column talks to its
// real-time counterpart (package rt) over a bounded command/event channel pair.
package clip

import (
	"github.com/pkg/errors"

	"go-surface/clip/rt"
	"go-surface/clip/supplier"
	"go-surface/midi"
)

var (
	ErrRecordingAlready          = errors.New("recording already")
	ErrRecordingAlreadyPlayState = errors.New("recording already according to play state")
	ErrSlotNotFilled             = errors.New("slot not filled")
	ErrSlotNotExist              = errors.New("slot doesn't exist")
	ErrSlotNotEmpty              = errors.New("slot is not empty")
	ErrRecordingNotRequested     = errors.New("recording was not requested")
	ErrSlotNotRecording          = errors.New("slot was not recording")
	ErrRequestedOverdubbing      = errors.New("requested overdubbing")
	ErrRecordingNotAcknowledged  = errors.New("clip recording was not yet acknowledged")
	ErrCountIn                   = errors.New("count-in phase")
	ErrZeroFrames                = errors.New("frame count is zero")
	ErrColumnNotExist            = errors.New("column doesn't exist")
	ErrNoItemSelected            = errors.New("no item selected")
	ErrNoPlaybackTrack           = errors.New("no playback track set")
	ErrColumnBusy                = errors.New("column command channel full")
	ErrNothingCopied             = errors.New("nothing copied")
	ErrNoSource                  = errors.New("clip has no source")
)

// SourceKind says where clip material comes from
type SourceKind string

const (
	SourceFile      SourceKind = "file"      // WAV file on disk
	SourceMidi      SourceKind = "midi"      // MIDI events stored inline
	SourceRecording SourceKind = "recording" // recorded audio kept in memory only
)

// MidiMessage is a persisted MIDI event, Frame in MIDI frames
type MidiMessage struct {
	Frame  int   `json:"frame"`
	Status uint8 `json:"status"`
	Data1  uint8 `json:"data1"`
	Data2  uint8 `json:"data2,omitempty"`
}

// Source describes clip material
type Source struct {
	Kind   SourceKind    `json:"kind"`
	Path   string        `json:"path,omitempty"`
	Events []MidiMessage `json:"events,omitempty"`
	Length int           `json:"length,omitempty"` // MIDI frames

	// loaded or recorded material, read-only once set
	material supplier.Supplier
}

// Clip is the persistent description of a clip
type Clip struct {
	Name     string           `json:"name,omitempty"`
	Source   Source           `json:"source"`
	Looped   bool             `json:"looped"`
	VolumeDB float64          `json:"volume_db"`
	Section  supplier.Section `json:"section"`
	// Tempo is the bpm audio material was made at. 0 plays audio at its own
	// speed. MIDI always follows the timeline.
	Tempo float64 `json:"tempo,omitempty"`
}

// NewFileClip creates a clip playing a WAV file
func NewFileClip(path string) Clip {
	return Clip{Source: Source{Kind: SourceFile, Path: path}}
}

// NewMidiClip creates a clip from MIDI events
func NewMidiClip(events []supplier.TimedMessage, length int) Clip {
	return Clip{Source: midiSourceFrom(supplier.NewMidiSource(events, length))}
}

func midiSourceFrom(src *supplier.MidiSource) Source {
	msgs := make([]MidiMessage, len(src.Events()))
	for i, ev := range src.Events() {
		msgs[i] = MidiMessage{Frame: ev.Frame, Status: ev.Msg.Status, Data1: ev.Msg.Data1, Data2: ev.Msg.Data2}
	}
	return Source{Kind: SourceMidi, Events: msgs, Length: src.MaterialInfo().FrameCount, material: src}
}

// IsMidi reports MIDI material
func (c *Clip) IsMidi() bool {
	return c.Source.Kind == SourceMidi
}

// Persistable reports whether Save can write the clip
func (c *Clip) Persistable() bool {
	return c.Source.Kind != SourceRecording
}

// createSupplier builds a fresh source supplier. Loaded material is shared
// read-only between suppliers.
func (c *Clip) createSupplier() (supplier.Supplier, error) {
	switch c.Source.Kind {
	case SourceMidi:
		if src, ok := c.Source.material.(*supplier.MidiSource); ok {
			return supplier.NewMidiSource(src.Events(), src.MaterialInfo().FrameCount), nil
		}
		events := make([]supplier.TimedMessage, len(c.Source.Events))
		for i, m := range c.Source.Events {
			events[i] = supplier.TimedMessage{Frame: m.Frame, Msg: midi.ShortMessage{Status: m.Status, Data1: m.Data1, Data2: m.Data2}}
		}
		src := supplier.NewMidiSource(events, c.Source.Length)
		c.Source.material = src
		return supplier.NewMidiSource(src.Events(), c.Source.Length), nil

	case SourceFile, SourceRecording:
		audio, ok := c.Source.material.(*supplier.AudioSource)
		if !ok {
			if c.Source.Kind == SourceRecording {
				return nil, ErrNoSource
			}
			loaded, err := supplier.LoadWAV(c.Source.Path)
			if err != nil {
				return nil, err
			}
			audio = loaded
			c.Source.material = loaded
		}
		src := supplier.NewAudioSource(audio.Data(), audio.MaterialInfo().FrameRate)
		src.SetTempo(c.Tempo)
		return src, nil
	}
	return nil, errors.Wrapf(ErrNoSource, "unknown source kind %q", c.Source.Kind)
}

// createRtClip builds the real-time clip with the clip's settings applied. It
// allocates and must run on the main side.
func (c *Clip) createRtClip(eq supplier.Equipment) (*rt.Clip, supplier.MaterialInfo, error) {
	src, err := c.createSupplier()
	if err != nil {
		return nil, supplier.MaterialInfo{}, err
	}
	chain := supplier.NewChain(src, eq)
	chain.SetVolumeDB(c.VolumeDB)
	chain.SetLooped(c.Looped)
	chain.SetSection(c.Section)
	info := src.MaterialInfo()
	return rt.NewClip(chain, info.Midi || c.Tempo > 0), chain.MaterialInfo(), nil
}

// midiSource returns the loaded MIDI material, used as the base of an overdub
func (c *Clip) midiSource() (*supplier.MidiSource, error) {
	if c.Source.Kind != SourceMidi {
		return nil, ErrNoSource
	}
	if _, err := c.createSupplier(); err != nil {
		return nil, err
	}
	return c.Source.material.(*supplier.MidiSource), nil
}
