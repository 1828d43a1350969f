package backbone

import (
	"errors"
	"testing"

	"go-surface/clip"
	"go-surface/config"
	"go-surface/control"
	"go-surface/host"
	"go-surface/host/sim"
)

func TestMatrixRequiresRegistration(t *testing.T) {
	b := New()
	m := clip.NewMatrix(config.DefaultConfig().ClipEngine, nil)
	if err := b.SetMatrix("a", m); !errors.Is(err, ErrInstanceUnknown) {
		t.Errorf("Expected ErrInstanceUnknown, got %v", err)
	}
	b.Register("a")
	if _, err := b.Matrix("a"); !errors.Is(err, ErrNoMatrix) {
		t.Errorf("Expected ErrNoMatrix, got %v", err)
	}
	if err := b.SetMatrix("a", m); err != nil {
		t.Fatalf("SetMatrix failed: %v", err)
	}
	if got, err := b.Matrix("a"); err != nil || got != m {
		t.Errorf("Expected the attached matrix, got %v (%v)", got, err)
	}
	b.Unregister("a")
	if _, err := b.Matrix("a"); !errors.Is(err, ErrNoMatrix) {
		t.Errorf("Expected matrix gone after unregister, got %v", err)
	}
}

func TestUpperFloor(t *testing.T) {
	b := New()
	b.Register("a")
	b.Register("b")

	tests := []struct {
		name     string
		upper    []string
		instance string
		want     bool
	}{
		{"empty floor allows everyone", nil, "a", true},
		{"member allowed", []string{"a"}, "a", true},
		{"non-member blocked", []string{"a"}, "b", false},
	}
	for _, tt := range tests {
		for _, id := range tt.upper {
			b.AddToUpperFloor(id)
		}
		if got := b.IsAllowedToControl(tt.instance); got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
		for _, id := range tt.upper {
			b.RemoveFromUpperFloor(id)
		}
	}
}

func TestLastTouchedFallsBackToProject(t *testing.T) {
	b := New()
	p := sim.NewProject()
	if _, err := b.LastTouched(p); !errors.Is(err, ErrNoLastTouched) {
		t.Errorf("Expected ErrNoLastTouched, got %v", err)
	}
	tr := p.AddTrack("synth")
	fx := tr.AddFx("filter", "cutoff", "resonance")
	param, _ := fx.ParamByIndex(1)
	param.SetValue(0.3)
	ref, err := b.LastTouched(p)
	if err != nil || ref.ParamIndex != 1 || ref.TrackGUID != tr.GUID() {
		t.Errorf("Expected the project's last touched parameter, got %+v (%v)", ref, err)
	}

	own := host.ParamRef{TrackGUID: "other", FxIndex: 2, ParamIndex: 5}
	b.SetLastTouched(own)
	if ref, _ := b.LastTouched(p); ref != own {
		t.Errorf("Expected %+v, got %+v", own, ref)
	}
}

func TestSnapshotsMergeAndCopy(t *testing.T) {
	b := New()
	b.Register("a")
	if _, err := b.Snapshot("a", "s"); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("Expected ErrNoSnapshot, got %v", err)
	}
	b.SaveSnapshot("a", "s", Snapshot{"k1": control.Continuous(0.25)})
	b.SaveSnapshot("a", "s", Snapshot{"k2": control.Continuous(0.75)})
	snap, err := b.Snapshot("a", "s")
	if err != nil || len(snap) != 2 {
		t.Fatalf("Expected 2 merged values, got %v (%v)", snap, err)
	}
	snap["k1"] = control.Continuous(1)
	again, _ := b.Snapshot("a", "s")
	if again["k1"].ToUnit() != 0.25 {
		t.Errorf("Expected stored snapshot to be unaffected, got %v", again["k1"])
	}
}
