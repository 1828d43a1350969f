package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"go-surface/engine"
	"go-surface/theme"
)

// cellWidth is the rendered width of one slot including its spacing
const cellWidth = 2

// RenderPad renders a single colored symbol
func RenderPad(color [3]uint8, symbol rune) string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color(rgbToHex(color)))
	return style.Render(string(symbol))
}

// Matrix renders the clip matrix with scenes as lines and columns left to
// right. The slot under the cursor is highlighted.
type Matrix struct {
	Theme      *theme.Theme
	CursorCol  int
	CursorRow  int
	ShowCursor bool
}

func (m Matrix) View(slots [][]engine.SlotView) string {
	if len(slots) == 0 {
		return ""
	}
	cursor := lipgloss.NewStyle().Background(m.Theme.Muted())
	rows := len(slots[0])

	var lines []string
	var header strings.Builder
	header.WriteString("    ")
	for col := range slots {
		fmt.Fprintf(&header, "%-*d", cellWidth, (col+1)%10)
	}
	lines = append(lines, lipgloss.NewStyle().Foreground(m.Theme.Muted()).Render(header.String()))

	for row := range rows {
		var line strings.Builder
		fmt.Fprintf(&line, "%3d ", row+1)
		for col := range slots {
			if row >= len(slots[col]) {
				line.WriteString(strings.Repeat(" ", cellWidth))
				continue
			}
			s := slots[col][row]
			symbol, role := m.Theme.Slot(s.Filled, s.PlayState)
			pad := RenderPad(m.Theme.RGB(role), symbol)
			if m.ShowCursor && col == m.CursorCol && row == m.CursorRow {
				pad = cursor.Render(pad)
			}
			line.WriteString(pad)
			line.WriteString(" ")
		}
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}

// HitTest maps a position relative to the rendered grid to a slot
func (m Matrix) HitTest(x, y, columns, rows int) (col, row int, ok bool) {
	// header line and row labels
	y--
	x -= 4
	if x < 0 || y < 0 {
		return 0, 0, false
	}
	col, row = x/cellWidth, y
	if col >= columns || row >= rows {
		return 0, 0, false
	}
	return col, row, true
}

// RenderKeyHelp formats key bindings in a friendly way
func RenderKeyHelp(sections []KeySection) string {
	var lines []string
	for _, sec := range sections {
		if sec.Title != "" {
			lines = append(lines, sec.Title)
		}
		for _, k := range sec.Keys {
			lines = append(lines, fmt.Sprintf("  %-12s %s", k.Key, k.Desc))
		}
	}
	return strings.Join(lines, "\n")
}

// KeySection groups related key bindings
type KeySection struct {
	Title string
	Keys  []KeyBinding
}

// KeyBinding is a single key and its description
type KeyBinding struct {
	Key  string
	Desc string
}

func rgbToHex(c [3]uint8) string {
	return fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2])
}
