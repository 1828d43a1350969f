package engine

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/pkg/errors"

	"go-surface/clip/supplier"
)

// ProcessBlock is the audio callback: it hands the queued controller MIDI to
// the real-time processor and renders the clip matrix. in and out are
// interleaved; in may be nil. A nil out renders one block and discards it.
// Blocks larger than the configured block size are rendered in chunks.
func (e *Engine) ProcessBlock(in, out []float32) {
	e.collectMidi()
	e.rt.Run(e.rtEvents)

	channels := e.channels()
	chunk := len(e.blockOut) / channels
	if out == nil {
		e.render(nil, nil, chunk, channels)
		return
	}
	frames := len(out) / channels
	for from := 0; from < frames; from += chunk {
		n := min(chunk, frames-from)
		var src []float32
		if in != nil && len(in) >= (from+n)*channels {
			src = in[from*channels : (from+n)*channels]
		}
		e.render(src, out[from*channels:(from+n)*channels], n, channels)
		// controller MIDI only goes into the first chunk
		e.block.MidiIn = e.block.MidiIn[:0]
	}
}

func (e *Engine) channels() int {
	return max(e.cfg.ClipEngine.Channels, 1)
}

func (e *Engine) collectMidi() {
	e.rtEvents = e.rtEvents[:0]
	e.block.MidiIn = e.block.MidiIn[:0]
	for len(e.rtEvents) < cap(e.rtEvents) {
		select {
		case msg := <-e.midiIn:
			e.rtEvents = append(e.rtEvents, msg)
			e.block.MidiIn = append(e.block.MidiIn, supplier.MidiEvent{Msg: msg})
		default:
			return
		}
	}
}

func (e *Engine) render(in, out []float32, frames, channels int) {
	b := &e.block
	b.Out = supplier.AudioBuf{Data: e.blockOut[:frames*channels], Channels: channels}
	b.Out.Clear()
	b.In = supplier.AudioBuf{Data: e.blockIn[:frames*channels], Channels: channels}
	if in == nil {
		b.In.Clear()
	} else {
		for i, s := range in {
			b.In.Data[i] = float64(s)
		}
	}
	b.MidiOut.Clear()
	b.Tempo = math.Float64frombits(e.tempo.Load())

	e.matrix.Process(b)

	if out != nil {
		for i, s := range b.Out.Data {
			out[i] = float32(s)
		}
	}
	for _, ev := range b.MidiOut.Events() {
		select {
		case e.clipOut <- ev.Msg:
		default:
			e.midiDropped.Add(1)
		}
	}
}

// RunAudio drives ProcessBlock from the default sound card until ctx ends.
// Without an input device the stream is opened output only.
func (e *Engine) RunAudio(ctx context.Context) error {
	if err := portaudio.Initialize(); err != nil {
		return errors.Wrap(err, "portaudio init")
	}
	defer func() {
		if err := portaudio.Terminate(); err != nil {
			slog.Warn("portaudio terminate failed", "err", err)
		}
	}()

	cfg := e.cfg.ClipEngine
	channels := e.channels()
	stream, err := portaudio.OpenDefaultStream(channels, channels, cfg.SampleRate, cfg.BlockSize, e.ProcessBlock)
	if err != nil {
		slog.Info("no audio input, opening output only", "err", err)
		stream, err = portaudio.OpenDefaultStream(0, channels, cfg.SampleRate, cfg.BlockSize, func(out []float32) {
			e.ProcessBlock(nil, out)
		})
		if err != nil {
			return errors.Wrap(err, "open audio stream")
		}
	}
	defer stream.Close()

	info := stream.Info()
	slog.Info("audio started", "sample_rate", info.SampleRate, "block", cfg.BlockSize, "latency", info.OutputLatency)
	if info.SampleRate != cfg.SampleRate {
		e.main.SetSampleRate(info.SampleRate)
	}
	if err := stream.Start(); err != nil {
		return errors.Wrap(err, "start audio stream")
	}
	<-ctx.Done()
	return stream.Stop()
}

// RunClock calls ProcessBlock at the block rate without a sound card, for
// headless use and when no audio device is available
func (e *Engine) RunClock(ctx context.Context) {
	cfg := e.cfg.ClipEngine
	period := time.Duration(float64(time.Second) * float64(max(cfg.BlockSize, 1)) / cfg.SampleRate)
	ticker := time.NewTicker(max(period, time.Millisecond))
	defer ticker.Stop()
	slog.Info("audio clock started", "period", period)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.ProcessBlock(nil, nil)
		}
	}
}
