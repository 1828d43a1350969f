package supplier

// AudioBuf is an interleaved sample buffer. Slices share the backing array.
type AudioBuf struct {
	Data     []float64
	Channels int
}

// NewAudioBuf allocates a zeroed buffer
func NewAudioBuf(channels, frames int) AudioBuf {
	if channels < 1 {
		channels = 1
	}
	return AudioBuf{Data: make([]float64, channels*frames), Channels: channels}
}

func (b AudioBuf) FrameCount() int {
	if b.Channels == 0 {
		return 0
	}
	return len(b.Data) / b.Channels
}

// Slice returns frames [from, to)
func (b AudioBuf) Slice(from, to int) AudioBuf {
	return AudioBuf{Data: b.Data[from*b.Channels : to*b.Channels], Channels: b.Channels}
}

// From returns the frames starting at from
func (b AudioBuf) From(from int) AudioBuf {
	return b.Slice(from, b.FrameCount())
}

func (b AudioBuf) Clear() {
	for i := range b.Data {
		b.Data[i] = 0
	}
}

// Sample returns the sample of channel ch in frame i. Channels beyond the buffer's
// fold onto the last one.
func (b AudioBuf) Sample(i, ch int) float64 {
	if ch >= b.Channels {
		ch = b.Channels - 1
	}
	return b.Data[i*b.Channels+ch]
}

func (b AudioBuf) Set(i, ch int, v float64) {
	b.Data[i*b.Channels+ch] = v
}

// CopyFrom copies as many frames as fit, mapping channels, and returns the count
func (b AudioBuf) CopyFrom(src AudioBuf) int {
	n := min(b.FrameCount(), src.FrameCount())
	if b.Channels == src.Channels {
		copy(b.Data, src.Data[:n*src.Channels])
		return n
	}
	for i := 0; i < n; i++ {
		for ch := 0; ch < b.Channels; ch++ {
			b.Set(i, ch, src.Sample(i, ch))
		}
	}
	return n
}

// Scale multiplies every sample by factor
func (b AudioBuf) Scale(factor float64) {
	for i := range b.Data {
		b.Data[i] *= factor
	}
}
