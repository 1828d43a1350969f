package supplier

// RecordKind selects what a recorder captures
type RecordKind uint8

const (
	RecordAudio RecordKind = iota
	RecordMidi
	RecordMidiOverdub
)

const recorderChunkFrames = 48000

// Recorder captures input into buffers allocated up front on the main side. The
// audio thread only copies into them; running out of room is counted, not grown.
// While recording it supplies silence.
type Recorder struct {
	kind      RecordKind
	channels  int
	frameRate float64

	chunks   []AudioBuf
	frames   int
	capacity int

	events    []TimedMessage
	midiFrame int
	base      *MidiSource

	recording bool
	overflow  int
}

// NewRecorder allocates room for maxSeconds of audio (or MIDI events for
// the MIDI kinds)
func NewRecorder(kind RecordKind, channels int, frameRate, maxSeconds float64) *Recorder {
	r := &Recorder{kind: kind, channels: max(channels, 1), frameRate: frameRate, recording: true}
	switch kind {
	case RecordAudio:
		total := int(frameRate * maxSeconds)
		for r.capacity < total {
			r.chunks = append(r.chunks, NewAudioBuf(r.channels, recorderChunkFrames))
			r.capacity += recorderChunkFrames
		}
	default:
		r.events = make([]TimedMessage, 0, max(int(maxSeconds*100), 256))
		r.frameRate = MidiFrameRate
	}
	return r
}

// NewOverdubRecorder records MIDI on top of existing material
func NewOverdubRecorder(base *MidiSource, maxEvents int) *Recorder {
	r := &Recorder{kind: RecordMidiOverdub, channels: 1, frameRate: MidiFrameRate, recording: true, base: base}
	r.events = make([]TimedMessage, 0, maxEvents)
	return r
}

func (r *Recorder) Kind() RecordKind {
	return r.kind
}

func (r *Recorder) Recording() bool {
	return r.recording
}

// Overflow counts frames or events that did not fit
func (r *Recorder) Overflow() int {
	return r.overflow
}

// WriteAudio appends an input block
func (r *Recorder) WriteAudio(input AudioBuf) {
	if !r.recording || r.kind != RecordAudio {
		return
	}
	src := input
	for src.FrameCount() > 0 {
		if r.frames >= r.capacity {
			r.overflow += src.FrameCount()
			return
		}
		chunk := r.chunks[r.frames/recorderChunkFrames]
		offset := r.frames % recorderChunkFrames
		n := chunk.From(offset).CopyFrom(src)
		r.frames += n
		src = src.From(n)
	}
}

// WriteMidi appends the events of an input block of blockFrames at rate
func (r *Recorder) WriteMidi(events []MidiEvent, blockFrames int, rate float64) {
	if !r.recording || r.kind == RecordAudio {
		return
	}
	for _, ev := range events {
		if len(r.events) == cap(r.events) {
			r.overflow++
			continue
		}
		r.events = append(r.events, TimedMessage{Frame: r.midiFrame + midiFramesFor(ev.Frame, rate), Msg: ev.Msg})
	}
	r.midiFrame += midiFramesFor(blockFrames, rate)
}

// SetMidiPosition moves the overdub write head, in MIDI frames
func (r *Recorder) SetMidiPosition(frame int) {
	r.midiFrame = frame
}

// Stop ends recording. Nothing is written afterwards.
func (r *Recorder) Stop() {
	r.recording = false
}

func (r *Recorder) MaterialInfo() MaterialInfo {
	if r.kind == RecordAudio {
		return MaterialInfo{Channels: r.channels, FrameCount: r.frames, FrameRate: r.frameRate}
	}
	length := r.midiFrame
	if r.base != nil {
		length = r.base.MaterialInfo().FrameCount
	}
	return MaterialInfo{Midi: true, FrameCount: length, FrameRate: MidiFrameRate, Tempo: MidiBaseTempo}
}

func (r *Recorder) SupplyAudio(req *SupplyAudioRequest, dest AudioBuf) SupplyResponse {
	dest.Clear()
	return continueResponse(dest.FrameCount())
}

func (r *Recorder) SupplyMidi(req *SupplyMidiRequest, events *MidiEventList) SupplyResponse {
	if r.base != nil {
		return r.base.SupplyMidi(req, events)
	}
	return continueResponse(midiFramesFor(req.DestFrameCount, req.DestSampleRate))
}

// Commit turns the recording into a playable source. It allocates and must be
// called on the main side after the recording stopped.
func (r *Recorder) Commit() (Supplier, error) {
	if r.recording {
		return nil, ErrStillRecording
	}
	switch r.kind {
	case RecordAudio:
		if r.frames == 0 {
			return nil, ErrEmptyRecording
		}
		return NewAudioSource(r.RecordedAudio(), r.frameRate), nil

	case RecordMidiOverdub:
		length := r.base.MaterialInfo().FrameCount
		merged := make([]TimedMessage, 0, len(r.base.Events())+len(r.events))
		merged = append(merged, r.base.Events()...)
		for _, ev := range r.events {
			if length > 0 {
				ev.Frame %= length
			}
			merged = append(merged, ev)
		}
		return NewMidiSource(merged, length), nil

	default:
		if len(r.events) == 0 && r.midiFrame == 0 {
			return nil, ErrEmptyRecording
		}
		return NewMidiSource(r.events, r.midiFrame), nil
	}
}

// RecordedAudio returns a contiguous copy of the recorded audio so far
func (r *Recorder) RecordedAudio() AudioBuf {
	data := NewAudioBuf(r.channels, r.frames)
	written := 0
	for _, chunk := range r.chunks {
		if written >= r.frames {
			break
		}
		written += data.From(written).CopyFrom(chunk.Slice(0, min(recorderChunkFrames, r.frames-written)))
	}
	return data
}

// MessagesRecorded counts recorded MIDI messages
func (r *Recorder) MessagesRecorded() int {
	return len(r.events)
}
