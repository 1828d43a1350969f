package supplier

import (
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pkg/errors"
)

// LoadWAV reads a PCM wav file into an AudioSource
func LoadWAV(path string) (*AudioSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, errors.Wrap(ErrUnsupportedWAV, path)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	channels := int(d.NumChans)
	if channels < 1 {
		return nil, errors.Wrapf(ErrUnsupportedWAV, "%s: no channels", path)
	}

	depth := int(d.BitDepth)
	data := NewAudioBuf(channels, len(buf.Data)/channels)
	for i := range data.Data {
		data.Data[i] = intToSample(buf.Data[i], depth)
	}
	return NewAudioSource(data, float64(d.SampleRate)), nil
}

// WriteWAV stores audio as a PCM wav file with the given bit depth (16, 24 or 32)
func WriteWAV(path string, data AudioBuf, frameRate float64, bitDepth int) error {
	switch bitDepth {
	case 16, 24, 32:
	default:
		return errors.Wrapf(ErrUnsupportedWAV, "bit depth %d", bitDepth)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, int(frameRate), bitDepth, data.Channels, 1)
	ints := make([]int, len(data.Data))
	for i, v := range data.Data {
		ints[i] = sampleToInt(v, bitDepth)
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: data.Channels, SampleRate: int(frameRate)},
		Data:           ints,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return nil
}

func intToSample(v, depth int) float64 {
	if depth == 8 {
		// 8 bit wav is unsigned
		return float64(v-128) / 128
	}
	return float64(v) / float64(int64(1)<<(depth-1))
}

func sampleToInt(v float64, depth int) int {
	v = math.Max(-1, math.Min(1, v))
	scale := float64(int64(1)<<(depth-1)) - 1
	return int(math.Round(v * scale))
}
