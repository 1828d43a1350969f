package supplier

import (
	"math"

	"go-surface/debug"
)

const (
	grainFrames = 1024
	grainHop    = grainFrames / 2
)

// TimeStretcher changes tempo while keeping pitch, using windowed overlap-add.
// It reads ahead and buffers output internally, so consumed source frames do not
// map 1:1 onto written frames. Position reporting should rely on the resampler.
type TimeStretcher struct {
	supplier    Supplier
	enabled     bool
	tempoFactor float64

	window   []float64
	grain    AudioBuf
	acc      AudioBuf
	ready    AudioBuf
	readyLen int
	ended    bool
}

// NewTimeStretcher pre-allocates buffers for blocks of maxBlockFrames
func NewTimeStretcher(s Supplier, maxBlockFrames int) *TimeStretcher {
	ts := &TimeStretcher{supplier: s, tempoFactor: 1}
	ts.window = make([]float64, grainFrames)
	for i := range ts.window {
		ts.window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/grainFrames)
	}
	ts.allocate(max(s.MaterialInfo().Channels, 1), maxBlockFrames)
	return ts
}

func (ts *TimeStretcher) allocate(channels, maxBlockFrames int) {
	ts.grain = NewAudioBuf(channels, grainFrames)
	ts.acc = NewAudioBuf(channels, grainFrames)
	ts.ready = NewAudioBuf(channels, maxBlockFrames+2*grainHop)
	ts.readyLen = 0
}

func (ts *TimeStretcher) SetEnabled(on bool) {
	ts.enabled = on
}

func (ts *TimeStretcher) SetTempoFactor(f float64) {
	if f <= 0 {
		f = 1
	}
	ts.tempoFactor = f
}

// Active reports whether the stretcher currently changes anything
func (ts *TimeStretcher) Active() bool {
	return ts.enabled && ts.tempoFactor != 1
}

// Reset drops buffered material, e.g. after a seek
func (ts *TimeStretcher) Reset() {
	ts.acc.Clear()
	ts.readyLen = 0
	ts.ended = false
}

func (ts *TimeStretcher) MaterialInfo() MaterialInfo {
	return ts.supplier.MaterialInfo()
}

func (ts *TimeStretcher) SupplyMidi(req *SupplyMidiRequest, events *MidiEventList) SupplyResponse {
	// MIDI tempo is the resampler's business
	return ts.supplier.SupplyMidi(req, events)
}

func (ts *TimeStretcher) SupplyAudio(req *SupplyAudioRequest, dest AudioBuf) SupplyResponse {
	if !ts.Active() || ts.supplier.MaterialInfo().Midi {
		return ts.supplier.SupplyAudio(req, dest)
	}
	want := dest.FrameCount()
	if ts.ready.Channels != dest.Channels || ts.ready.FrameCount() < want+2*grainHop {
		debug.PermitAlloc(func() {
			ts.allocate(dest.Channels, want)
		})
	}

	analysisHop := int(math.Round(grainHop * ts.tempoFactor))
	consumed := 0
	for ts.readyLen < want && !ts.ended {
		inner := SupplyAudioRequest{StartFrame: req.StartFrame + consumed}
		resp := ts.supplier.SupplyAudio(&inner, ts.grain)
		got := resp.Written(grainFrames)
		if got < grainFrames {
			ts.grain.From(got).Clear()
		}
		ts.overlapAdd()
		if resp.ReachedEnd() && got <= analysisHop {
			// flush the tail of the last grain
			ts.emit(grainHop)
			consumed += resp.NumFramesConsumed
			ts.ended = true
			break
		}
		consumed += analysisHop
	}

	n := min(ts.readyLen, want)
	dest.CopyFrom(ts.ready.Slice(0, n))
	copy(ts.ready.Data, ts.ready.Data[n*ts.ready.Channels:ts.readyLen*ts.ready.Channels])
	ts.readyLen -= n
	if ts.ended && ts.readyLen == 0 && n < want {
		dest.From(n).Clear()
		return endResponse(consumed, n)
	}
	return continueResponse(consumed)
}

// overlapAdd windows the current grain into the accumulator and emits the
// first hop, which no later grain touches anymore
func (ts *TimeStretcher) overlapAdd() {
	ch := ts.acc.Channels
	for i := 0; i < grainFrames; i++ {
		w := ts.window[i]
		for c := 0; c < ch; c++ {
			ts.acc.Data[i*ch+c] += ts.grain.Sample(i, c) * w
		}
	}
	ts.emit(grainHop)
}

func (ts *TimeStretcher) emit(frames int) {
	ch := ts.acc.Channels
	frames = min(frames, ts.ready.FrameCount()-ts.readyLen)
	copy(ts.ready.Data[ts.readyLen*ch:], ts.acc.Data[:frames*ch])
	ts.readyLen += frames
	copy(ts.acc.Data, ts.acc.Data[frames*ch:])
	ts.acc.From(grainFrames - frames).Clear()
}
