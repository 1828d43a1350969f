package supplier

import (
	"math"

	"go-surface/debug"
)

// Resampler converts between the material's frame rate and the destination rate
// with linear interpolation. With tempo adjustments enabled it also changes the
// playback speed (MIDI always, audio only when responsible for it).
type Resampler struct {
	supplier                 Supplier
	enabled                  bool
	tempoAdjustments         bool
	responsibleForAudioTempo bool
	tempoFactor              float64
	scratch                  AudioBuf
	// phase is the fractional source position left over from the previous
	// block, valid while the next request starts at nextStart
	phase     float64
	nextStart int
}

// NewResampler pre-allocates room for blocks of maxBlockFrames
func NewResampler(s Supplier, maxBlockFrames int) *Resampler {
	r := &Resampler{supplier: s, enabled: true, tempoFactor: 1}
	channels := s.MaterialInfo().Channels
	r.scratch = NewAudioBuf(channels, 4*maxBlockFrames+2)
	return r
}

func (r *Resampler) SetEnabled(on bool) {
	r.enabled = on
}

func (r *Resampler) SetTempoAdjustmentsEnabled(on bool) {
	r.tempoAdjustments = on
}

// SetResponsibleForAudioTempo makes the resampler change audio speed (vari-speed)
// instead of leaving that to the time stretcher
func (r *Resampler) SetResponsibleForAudioTempo(on bool) {
	r.responsibleForAudioTempo = on
}

func (r *Resampler) SetTempoFactor(f float64) {
	if f <= 0 {
		f = 1
	}
	r.tempoFactor = f
}

// Reset forgets the fractional read position
func (r *Resampler) Reset() {
	r.phase = 0
	r.nextStart = 0
}

func (r *Resampler) MaterialInfo() MaterialInfo {
	return r.supplier.MaterialInfo()
}

func (r *Resampler) SupplyAudio(req *SupplyAudioRequest, dest AudioBuf) SupplyResponse {
	if !r.enabled {
		return r.supplier.SupplyAudio(req, dest)
	}
	info := r.supplier.MaterialInfo()
	sourceRate := info.FrameRate
	destRate := req.DestSampleRate
	if destRate <= 0 {
		destRate = sourceRate
	}
	if r.tempoAdjustments && r.responsibleForAudioTempo {
		destRate /= r.tempoFactor
	}
	inner := SupplyAudioRequest{StartFrame: req.StartFrame}
	if info.Midi || sourceRate <= 0 || math.Abs(sourceRate-destRate) < 1e-9 {
		return r.supplier.SupplyAudio(&inner, dest)
	}

	if req.StartFrame != r.nextStart {
		r.phase = 0
	}
	ratio := sourceRate / destRate
	want := dest.FrameCount()
	needed := int(r.phase+float64(want-1)*ratio) + 2
	r.ensureScratch(info.Channels, needed)
	scratch := r.scratch.Slice(0, needed)
	resp := r.supplier.SupplyAudio(&inner, scratch)
	avail := resp.Written(needed)

	written := 0
	for i := 0; i < want; i++ {
		p := r.phase + float64(i)*ratio
		j := int(p)
		if j >= avail {
			break
		}
		t := p - float64(j)
		for ch := 0; ch < dest.Channels; ch++ {
			a := scratch.Sample(j, ch)
			b := 0.0
			if j+1 < avail {
				b = scratch.Sample(j+1, ch)
			}
			dest.Set(i, ch, a+(b-a)*t)
		}
		written++
	}
	end := r.phase + float64(want)*ratio
	consumed := int(end)
	if resp.ReachedEnd() && (written < want || consumed >= avail) {
		dest.From(written).Clear()
		r.Reset()
		return endResponse(min(consumed, resp.NumFramesConsumed), written)
	}
	r.phase = end - float64(consumed)
	r.nextStart = req.StartFrame + consumed
	return continueResponse(consumed)
}

func (r *Resampler) ensureScratch(channels, frames int) {
	channels = max(channels, 1)
	if r.scratch.Channels == channels && r.scratch.FrameCount() >= frames {
		return
	}
	debug.PermitAlloc(func() {
		r.scratch = NewAudioBuf(channels, frames)
	})
}

func (r *Resampler) SupplyMidi(req *SupplyMidiRequest, events *MidiEventList) SupplyResponse {
	if !r.enabled || !r.tempoAdjustments || r.tempoFactor == 1 {
		return r.supplier.SupplyMidi(req, events)
	}
	rate := req.DestSampleRate
	if rate <= 0 {
		rate = MidiFrameRate
	}
	// a faster tempo covers more MIDI frames per destination block
	inner := SupplyMidiRequest{
		StartFrame:     req.StartFrame,
		DestFrameCount: req.DestFrameCount,
		DestSampleRate: rate / r.tempoFactor,
	}
	return r.supplier.SupplyMidi(&inner, events)
}
