package theme

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"go-surface/clip/rt"
)

type Theme struct {
	Palette *Palette
	Symbols Symbols
}

type Symbols struct {
	// Matrix slots
	SlotEmpty     rune // · nothing in the slot
	SlotStopped   rune // ■ filled, not playing
	SlotPlaying   rune // ▶
	SlotPaused    rune // ‖
	SlotRecording rune // ●
	SlotQueued    rune // ○ waiting to record

	// Mapping list
	MappingOn  rune // ● active
	MappingOff rune // ○ condition not met
	Disabled   rune // - switched off
	Cursor     rune // ›
}

func New(palette *Palette) *Theme {
	return &Theme{
		Palette: palette,
		Symbols: Symbols{
			SlotEmpty:     '·',
			SlotStopped:   '■',
			SlotPlaying:   '▶',
			SlotPaused:    '‖',
			SlotRecording: '●',
			SlotQueued:    '○',

			MappingOn:  '●',
			MappingOff: '○',
			Disabled:   '-',
			Cursor:     '›',
		},
	}
}

// Color roles mapped to palette positions (0-1)
const (
	RoleBG      = 0.0
	RoleMuted   = 0.2
	RoleFG      = 0.4
	RoleAccent  = 0.5
	RoleCursor  = 0.6
	RoleActive  = 0.7
	RoleWarning = 0.8
	RoleSuccess = 1.0
)

func (t *Theme) BG() lipgloss.Color      { return t.Color(RoleBG) }
func (t *Theme) FG() lipgloss.Color      { return t.Color(RoleFG) }
func (t *Theme) Accent() lipgloss.Color  { return t.Color(RoleAccent) }
func (t *Theme) Muted() lipgloss.Color   { return t.Color(RoleMuted) }
func (t *Theme) Active() lipgloss.Color  { return t.Color(RoleActive) }
func (t *Theme) Cursor() lipgloss.Color  { return t.Color(RoleCursor) }
func (t *Theme) Warning() lipgloss.Color { return t.Color(RoleWarning) }
func (t *Theme) Success() lipgloss.Color { return t.Color(RoleSuccess) }

// Color returns lipgloss color for any normalized value 0-1
func (t *Theme) Color(norm float64) lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(norm))
}

// RGB returns raw RGB for any normalized value (for pad LEDs)
func (t *Theme) RGB(norm float64) RGB {
	return t.Palette.Lookup(norm)
}

// Slot returns the symbol and color role of a matrix slot
func (t *Theme) Slot(filled bool, ps rt.PlayState) (rune, float64) {
	if !filled && ps == rt.Stopped {
		return t.Symbols.SlotEmpty, RoleMuted
	}
	switch ps {
	case rt.Playing:
		return t.Symbols.SlotPlaying, RoleSuccess
	case rt.Paused:
		return t.Symbols.SlotPaused, RoleWarning
	case rt.Recording:
		return t.Symbols.SlotRecording, RoleActive
	case rt.ScheduledForRecordingStart:
		return t.Symbols.SlotQueued, RoleActive
	}
	return t.Symbols.SlotStopped, RoleFG
}

func rgbToLipgloss(c RGB) lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2]))
}
