package supplier

// Section restricts playback to part of the material. Length 0 means up to the end.
type Section struct {
	Start  int `json:"start"`
	Length int `json:"length,omitempty"`
}

// Looper plays a section of its supplier, either once or repeatedly
type Looper struct {
	supplier Supplier
	looped   bool
	section  Section
}

func NewLooper(s Supplier) *Looper {
	return &Looper{supplier: s}
}

func (l *Looper) Supplier() Supplier {
	return l.supplier
}

func (l *Looper) SetSupplier(s Supplier) {
	l.supplier = s
}

func (l *Looper) Looped() bool {
	return l.looped
}

func (l *Looper) SetLooped(on bool) {
	l.looped = on
}

func (l *Looper) Section() Section {
	return l.section
}

func (l *Looper) SetSection(s Section) {
	if s.Start < 0 {
		s.Start = 0
	}
	if s.Length < 0 {
		s.Length = 0
	}
	l.section = s
}

// length is the effective section length in source frames
func (l *Looper) length() int {
	total := l.supplier.MaterialInfo().FrameCount
	avail := total - l.section.Start
	if avail < 0 {
		avail = 0
	}
	if l.section.Length > 0 && l.section.Length < avail {
		return l.section.Length
	}
	return avail
}

// MaterialInfo reports the section length as frame count
func (l *Looper) MaterialInfo() MaterialInfo {
	info := l.supplier.MaterialInfo()
	info.FrameCount = l.length()
	return info
}

func (l *Looper) SupplyAudio(req *SupplyAudioRequest, dest AudioBuf) SupplyResponse {
	want := dest.FrameCount()
	length := l.length()
	start := req.StartFrame
	written := 0
	if start < 0 {
		silence := min(-start, want)
		dest.Slice(0, silence).Clear()
		written = silence
		start = 0
	}
	if written == want {
		return continueResponse(want)
	}
	if length == 0 {
		dest.From(written).Clear()
		return endResponse(written, written)
	}

	if !l.looped {
		if start >= length {
			dest.From(written).Clear()
			return endResponse(written, written)
		}
		n := min(want-written, length-start)
		inner := SupplyAudioRequest{StartFrame: l.section.Start + start, DestSampleRate: req.DestSampleRate}
		resp := l.supplier.SupplyAudio(&inner, dest.Slice(written, written+n))
		got := resp.Written(n)
		written += got
		if got < n || start+n >= length {
			dest.From(written).Clear()
			return endResponse(written, written)
		}
		return continueResponse(want)
	}

	pos := start % length
	for written < want {
		n := min(want-written, length-pos)
		inner := SupplyAudioRequest{StartFrame: l.section.Start + pos, DestSampleRate: req.DestSampleRate}
		chunk := dest.Slice(written, written+n)
		resp := l.supplier.SupplyAudio(&inner, chunk)
		if got := resp.Written(n); got < n {
			chunk.From(got).Clear()
		}
		written += n
		pos = 0
	}
	return continueResponse(want)
}

func (l *Looper) SupplyMidi(req *SupplyMidiRequest, events *MidiEventList) SupplyResponse {
	rate := req.DestSampleRate
	if rate <= 0 {
		rate = MidiFrameRate
	}
	length := l.length()
	span := midiFramesFor(req.DestFrameCount, rate)
	start := req.StartFrame
	consumed := 0
	if start < 0 {
		consumed = min(-start, span)
		start = 0
	}
	if consumed == span {
		return continueResponse(span)
	}
	if length == 0 {
		return endResponse(consumed, req.DestFrameCount)
	}
	destOffset := func(midiFrames int) int {
		return int(float64(midiFrames)*rate/MidiFrameRate + 0.5)
	}

	if !l.looped {
		if start >= length {
			return endResponse(consumed, destOffset(consumed))
		}
		n := min(span-consumed, length-start)
		l.supplyMidiChunk(start, n, destOffset(consumed), rate, events)
		consumed += n
		if start+n >= length {
			return endResponse(consumed, min(destOffset(consumed), req.DestFrameCount))
		}
		return continueResponse(span)
	}

	pos := start % length
	for consumed < span {
		n := min(span-consumed, length-pos)
		l.supplyMidiChunk(pos, n, destOffset(consumed), rate, events)
		consumed += n
		pos = 0
	}
	return continueResponse(span)
}

// supplyMidiChunk pulls n MIDI frames starting at section position pos and shifts
// the new events by offset destination frames
func (l *Looper) supplyMidiChunk(pos, n, offset int, rate float64, events *MidiEventList) {
	before := events.Len()
	inner := SupplyMidiRequest{
		StartFrame:     l.section.Start + pos,
		DestFrameCount: int(float64(n)*rate/MidiFrameRate + 0.5),
		DestSampleRate: rate,
	}
	l.supplier.SupplyMidi(&inner, events)
	added := events.Events()[before:]
	for i := range added {
		added[i].Frame += offset
	}
}
