package rt

import (
	"sync/atomic"

	"go-surface/clip/supplier"
)

// Shared is written by the real-time column and read by the main side
type Shared struct {
	// Pos is the play position in source frames (MIDI frames for MIDI), negative
	// during count-in
	Pos atomic.Int64
	// Frames is the material length, growing while recording
	Frames atomic.Int64
}

// Clip is the real-time view of a clip: its supplier chain and play state
type Clip struct {
	chain       *supplier.Chain
	shared      *Shared
	state       PlayState
	followTempo bool
	pos         int

	recorder    *supplier.Recorder
	overdubbing bool
}

// NewClip wraps a chain. It allocates and runs on the main side.
func NewClip(chain *supplier.Chain, followTempo bool) *Clip {
	c := &Clip{chain: chain, shared: &Shared{}, followTempo: followTempo}
	c.shared.Frames.Store(int64(chain.MaterialInfo().FrameCount))
	return c
}

// NewRecordingClip creates the clip for recording into an empty slot
func NewRecordingClip(rec *supplier.Recorder, eq supplier.Equipment) *Clip {
	c := NewClip(supplier.NewChain(rec, eq), rec.Kind() != supplier.RecordAudio)
	c.recorder = rec
	return c
}

func (c *Clip) Shared() *Shared {
	return c.shared
}

func (c *Clip) Chain() *supplier.Chain {
	return c.chain
}

func (c *Clip) State() PlayState {
	return c.state
}

func (c *Clip) setPos(pos int) {
	c.pos = pos
	c.shared.Pos.Store(int64(pos))
}

func (c *Clip) play() bool {
	switch c.state {
	case Playing, Recording:
		return false
	case Stopped:
		c.setPos(0)
		c.chain.Reset()
	}
	c.state = Playing
	return true
}

func (c *Clip) stop() bool {
	if c.state == Stopped {
		return false
	}
	c.state = Stopped
	c.setPos(0)
	c.chain.Reset()
	return true
}

func (c *Clip) pause() bool {
	if c.state != Playing {
		return false
	}
	c.state = Paused
	return true
}

func (c *Clip) seek(u float64) {
	frames := c.chain.MaterialInfo().FrameCount
	if frames == 0 {
		return
	}
	c.setPos(int(u * float64(frames)))
	c.chain.Reset()
}

// startRecording switches the clip into recording. A from-scratch recording
// always happens in a fresh clip whose chain wraps the recorder.
func (c *Clip) startRecording(instr *RecordInstruction) {
	c.recorder = instr.Recorder
	c.overdubbing = instr.Overdub
	if !instr.Overdub {
		c.setPos(0)
		c.shared.Frames.Store(0)
	}
	c.state = Recording
}

// setSource replaces the material, e.g. with a committed recording
func (c *Clip) setSource(src supplier.Supplier) supplier.Supplier {
	old := c.chain.Source()
	c.chain.SetSource(src)
	c.followTempo = src.MaterialInfo().Midi || src.MaterialInfo().Tempo > 0
	c.shared.Frames.Store(int64(c.chain.MaterialInfo().FrameCount))
	return old
}

// stopRecording ends recording and returns the recorder
func (c *Clip) stopRecording() *supplier.Recorder {
	rec := c.recorder
	rec.Stop()
	c.recorder = nil
	if c.overdubbing {
		c.overdubbing = false
		c.state = Playing
		return rec
	}
	c.state = Stopped
	c.setPos(0)
	return rec
}

// render adds the clip's output for one block
func (c *Clip) render(b *Block, scratch supplier.AudioBuf) (stateChanged bool) {
	frames := b.Out.FrameCount()
	if c.state == Recording {
		c.record(b, frames)
		if !c.overdubbing {
			return false
		}
	} else if c.state != Playing {
		return false
	}

	info := c.chain.MaterialInfo()
	if c.followTempo {
		c.chain.SetTempoFactor(info.TempoFactor(b.Tempo))
	}
	var resp supplier.SupplyResponse
	if info.Midi {
		if c.overdubbing {
			c.recorder.SetMidiPosition(c.pos)
		}
		req := supplier.SupplyMidiRequest{StartFrame: c.pos, DestFrameCount: frames, DestSampleRate: b.SampleRate}
		resp = c.chain.SupplyMidi(&req, b.MidiOut)
	} else {
		buf := scratch.Slice(0, frames)
		req := supplier.SupplyAudioRequest{StartFrame: c.pos, DestSampleRate: b.SampleRate}
		resp = c.chain.SupplyAudio(&req, buf)
		mix(b.Out, buf, resp.Written(frames))
	}
	if c.overdubbing {
		c.recorder.WriteMidi(b.MidiIn, frames, b.SampleRate)
	}
	if resp.ReachedEnd() && !c.chain.Looped() {
		return c.stop()
	}
	c.setPos(c.pos + resp.NumFramesConsumed)
	return false
}

func (c *Clip) record(b *Block, frames int) {
	if c.overdubbing {
		return
	}
	if c.recorder.Kind() == supplier.RecordAudio {
		c.recorder.WriteAudio(b.In)
	} else {
		c.recorder.WriteMidi(b.MidiIn, frames, b.SampleRate)
	}
	n := c.recorder.MaterialInfo().FrameCount
	c.setPos(n)
	c.shared.Frames.Store(int64(n))
}

func mix(out, in supplier.AudioBuf, frames int) {
	frames = min(frames, out.FrameCount())
	for i := 0; i < frames; i++ {
		for ch := 0; ch < out.Channels; ch++ {
			out.Set(i, ch, out.Sample(i, ch)+in.Sample(i, ch))
		}
	}
}
