package supplier

import (
	"math"

	"go-surface/midi"
)

// Amplifier applies the clip volume. For MIDI it scales note-on velocities.
type Amplifier struct {
	supplier Supplier
	volumeDB float64
	factor   float64
}

func NewAmplifier(s Supplier) *Amplifier {
	return &Amplifier{supplier: s, factor: 1}
}

func (a *Amplifier) VolumeDB() float64 {
	return a.volumeDB
}

func (a *Amplifier) SetVolumeDB(db float64) {
	a.volumeDB = db
	if math.IsInf(db, -1) {
		a.factor = 0
		return
	}
	a.factor = math.Pow(10, db/20)
}

func (a *Amplifier) MaterialInfo() MaterialInfo {
	return a.supplier.MaterialInfo()
}

func (a *Amplifier) SupplyAudio(req *SupplyAudioRequest, dest AudioBuf) SupplyResponse {
	resp := a.supplier.SupplyAudio(req, dest)
	if a.volumeDB != 0 {
		dest.Scale(a.factor)
	}
	return resp
}

func (a *Amplifier) SupplyMidi(req *SupplyMidiRequest, events *MidiEventList) SupplyResponse {
	before := events.Len()
	resp := a.supplier.SupplyMidi(req, events)
	if a.volumeDB == 0 {
		return resp
	}
	added := events.Events()[before:]
	for i, ev := range added {
		if ev.Msg.Type() != midi.NoteOn || ev.Msg.Data2 == 0 {
			continue
		}
		v := math.Round(a.factor * float64(ev.Msg.Data2))
		// keep note-ons audible, velocity 0 would turn them into note-offs
		v = math.Max(1, math.Min(127, v))
		added[i].Msg.Data2 = uint8(v)
	}
	return resp
}
