package theme

import (
	"strings"
	"testing"

	"go-surface/clip/rt"
)

const gpl = `GIMP Palette
Name: two
Columns: 2
# comment
0 0 0 black
255 128 0 orange
300 0 0 out of range
`

func TestParseGPL(t *testing.T) {
	p, err := ParseGPL(strings.NewReader(gpl))
	if err != nil {
		t.Fatalf("ParseGPL failed: %v", err)
	}
	if p.Name != "two" || len(p.Colors) != 2 {
		t.Errorf("Expected 2 colors named two, got %q with %d", p.Name, len(p.Colors))
	}
	if got := p.Lookup(0.5); got != (RGB{127, 64, 0}) {
		t.Errorf("Expected the midpoint, got %v", got)
	}
	if _, err := ParseGPL(strings.NewReader("GIMP Palette\n")); err == nil {
		t.Error("Expected an error for a palette without colors")
	}
}

func TestLoadOrDefault(t *testing.T) {
	p, err := LoadOrDefault("")
	if err != nil || p.Name != "plasma" {
		t.Errorf("Expected the built-in palette, got %v (%v)", p.Name, err)
	}
	p, err = LoadOrDefault("/does/not/exist.gpl")
	if err == nil {
		t.Error("Expected the load error to be reported")
	}
	if p == nil || len(p.Colors) == 0 {
		t.Error("Expected the fallback palette")
	}
}

func TestSlotSymbols(t *testing.T) {
	th := New(DefaultPalette())
	tests := []struct {
		filled bool
		ps     rt.PlayState
		want   rune
	}{
		{false, rt.Stopped, '·'},
		{true, rt.Stopped, '■'},
		{true, rt.Playing, '▶'},
		{true, rt.Paused, '‖'},
		{false, rt.Recording, '●'},
		{false, rt.ScheduledForRecordingStart, '○'},
	}
	for _, tt := range tests {
		if got, _ := th.Slot(tt.filled, tt.ps); got != tt.want {
			t.Errorf("Slot(%v, %v): expected %c, got %c", tt.filled, tt.ps, tt.want, got)
		}
	}
}
