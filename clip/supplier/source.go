package supplier

import (
	"sort"

	"go-surface/midi"
)

// AudioSource is in-memory PCM material
type AudioSource struct {
	data      AudioBuf
	frameRate float64
	tempo     float64
}

// NewAudioSource wraps interleaved samples
func NewAudioSource(data AudioBuf, frameRate float64) *AudioSource {
	return &AudioSource{data: data, frameRate: frameRate}
}

// SetTempo declares the tempo the material was made at
func (s *AudioSource) SetTempo(bpm float64) {
	s.tempo = bpm
}

func (s *AudioSource) Data() AudioBuf {
	return s.data
}

func (s *AudioSource) MaterialInfo() MaterialInfo {
	return MaterialInfo{
		Channels:   s.data.Channels,
		FrameCount: s.data.FrameCount(),
		FrameRate:  s.frameRate,
		Tempo:      s.tempo,
	}
}

// SupplyAudio copies frames starting at req.StartFrame. The source plays at its
// own rate; sample rate conversion is the resampler's job.
func (s *AudioSource) SupplyAudio(req *SupplyAudioRequest, dest AudioBuf) SupplyResponse {
	total := s.data.FrameCount()
	want := dest.FrameCount()
	start := req.StartFrame
	if start >= total {
		return endResponse(0, 0)
	}

	written := 0
	if start < 0 {
		// count-in: silence until the material starts
		silence := min(-start, want)
		dest.Slice(0, silence).Clear()
		written = silence
		start = 0
	}
	if written < want {
		n := dest.From(written).CopyFrom(s.data.From(start))
		written += n
	}
	end := req.StartFrame + want
	if end >= total {
		if written < want {
			dest.From(written).Clear()
		}
		return endResponse(total-req.StartFrame, written)
	}
	return continueResponse(want)
}

// SupplyMidi supplies nothing, audio material has no MIDI
func (s *AudioSource) SupplyMidi(req *SupplyMidiRequest, events *MidiEventList) SupplyResponse {
	return endResponse(0, 0)
}

// TimedMessage is a MIDI message at an absolute MIDI frame
type TimedMessage struct {
	Frame int
	Msg   midi.ShortMessage
}

// MidiSource is in-memory MIDI material measured in MidiFrameRate frames
type MidiSource struct {
	events []TimedMessage
	length int
	tempo  float64
}

// NewMidiSource sorts events by frame. length is in MIDI frames.
func NewMidiSource(events []TimedMessage, length int) *MidiSource {
	sorted := make([]TimedMessage, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Frame < sorted[j].Frame })
	return &MidiSource{events: sorted, length: length, tempo: MidiBaseTempo}
}

func (s *MidiSource) Events() []TimedMessage {
	return s.events
}

func (s *MidiSource) MaterialInfo() MaterialInfo {
	return MaterialInfo{Midi: true, FrameCount: s.length, FrameRate: MidiFrameRate, Tempo: s.tempo}
}

// SupplyMidi emits the events inside the requested window, converting their
// positions into destination frames
func (s *MidiSource) SupplyMidi(req *SupplyMidiRequest, events *MidiEventList) SupplyResponse {
	rate := req.DestSampleRate
	if rate <= 0 {
		rate = MidiFrameRate
	}
	span := midiFramesFor(req.DestFrameCount, rate)
	start := req.StartFrame
	if start >= s.length {
		return endResponse(0, 0)
	}
	end := start + span
	i := sort.Search(len(s.events), func(i int) bool { return s.events[i].Frame >= start })
	for ; i < len(s.events) && s.events[i].Frame < end && s.events[i].Frame < s.length; i++ {
		offset := int(float64(s.events[i].Frame-start) * rate / MidiFrameRate)
		events.Add(MidiEvent{Frame: offset, Msg: s.events[i].Msg})
	}
	if end >= s.length {
		consumed := s.length - start
		written := int(float64(consumed)*rate/MidiFrameRate + 0.5)
		return endResponse(consumed, min(written, req.DestFrameCount))
	}
	return continueResponse(span)
}

// SupplyAudio writes silence; MIDI clips are rendered by an instrument downstream
func (s *MidiSource) SupplyAudio(req *SupplyAudioRequest, dest AudioBuf) SupplyResponse {
	dest.Clear()
	return endResponse(0, 0)
}
