package sim

import (
	"math"
	"testing"

	"go-surface/host"
)

func drain(p *Project) []host.ChangeEvent {
	var events []host.ChangeEvent
	for {
		select {
		case ev := <-p.Changes():
			events = append(events, ev)
		default:
			return events
		}
	}
}

func TestTrackChangesEmitEvents(t *testing.T) {
	p := NewProject()
	tr := p.AddTrack("Drums")
	drain(p)

	tr.SetVolumeDB(-6)
	tr.SetVolumeDB(-6) // unchanged, no event
	tr.SetMute(true)

	events := drain(p)
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d: %v", len(events), events)
	}
	if events[0].Kind != host.TrackVolumeChanged || events[0].TrackGUID != tr.GUID() {
		t.Errorf("Expected volume change for %s, got %+v", tr.GUID(), events[0])
	}
	if events[1].Kind != host.TrackMuteChanged {
		t.Errorf("Expected mute change, got %v", events[1].Kind)
	}
}

func TestRemoveTrackReindexes(t *testing.T) {
	p := NewProject()
	a := p.AddTrack("A")
	b := p.AddTrack("B")

	if !p.RemoveTrack(a.GUID()) {
		t.Fatal("Expected removal to succeed")
	}
	if a.IsAvailable() {
		t.Error("Expected removed track to be unavailable")
	}
	if b.Index() != 0 {
		t.Errorf("Expected B at index 0, got %d", b.Index())
	}
	if _, ok := p.TrackByGUID(a.GUID()); ok {
		t.Error("Expected removed track not to be found")
	}
}

func TestParamTouchAndSteps(t *testing.T) {
	p := NewProject()
	tr := p.AddTrack("Synth")
	fx := tr.AddFx("EQ", "Gain", "Freq")
	param, _ := fx.ParamByIndex(1)
	param.(*Param).SetStepCount(5)

	param.SetValue(0.3)
	if param.Value() != 0.25 {
		t.Errorf("Expected value snapped to 0.25, got %v", param.Value())
	}
	ref, ok := p.LastTouched()
	if !ok || ref.FxIndex != 0 || ref.ParamIndex != 1 || ref.TrackGUID != tr.GUID() {
		t.Errorf("Expected last touched EQ/Freq, got %+v", ref)
	}
	resolved, err := host.ResolveParam(p, ref)
	if err != nil || resolved != param {
		t.Errorf("Expected ResolveParam to find the parameter, got %v %v", resolved, err)
	}
}

func TestVolumeTaperRoundTrip(t *testing.T) {
	for _, u := range []float64{0.01, 0.25, 64.0 / 127, 0.716, 1} {
		got := host.DBToSlider(host.SliderToDB(u))
		if math.Abs(got-u) > 1e-9 {
			t.Errorf("Expected %v, got %v", u, got)
		}
	}
	if !math.IsInf(host.SliderToDB(0), -1) {
		t.Error("Expected slider 0 to be -inf dB")
	}
	if host.DBToSlider(host.SliderToDB(0)) != 0 {
		t.Error("Expected -inf dB to map back to 0")
	}
}
