package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"go-surface/engine"
	"go-surface/mapping"
	"go-surface/midi"
	"go-surface/session"
	"go-surface/theme"
	"go-surface/widgets"
)

// View is the focused pane
type View int

const (
	ViewMatrix View = iota
	ViewMappings
)

// layoutBounds holds cached layout info
type layoutBounds struct {
	matrixTop int
}

type Model struct {
	Engine *engine.Engine
	Theme  *theme.Theme
	Preset string

	view        View
	compartment mapping.Compartment
	cursorCol   int
	cursorRow   int
	cursorMap   int
	snap        engine.Snapshot
	status      string
	quitting    bool
	tooltip     string
	bounds      *layoutBounds
}

type UpdateMsg struct{}

type DeviceEventMsg midi.DeviceEvent

func NewModel(e *engine.Engine, th *theme.Theme, preset string) Model {
	m := Model{
		Engine:      e,
		Theme:       th,
		Preset:      preset,
		compartment: mapping.Main,
		bounds:      &layoutBounds{},
	}
	m.snap = e.Snapshot(m.compartment)
	return m
}

func ListenForUpdates(e *engine.Engine) tea.Cmd {
	return func() tea.Msg {
		<-e.UpdateChan
		return UpdateMsg{}
	}
}

func ListenForDevices(e *engine.Engine) tea.Cmd {
	return func() tea.Msg {
		return DeviceEventMsg(<-e.DeviceChan)
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		ListenForUpdates(m.Engine),
		ListenForDevices(m.Engine),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "tab":
			if m.view == ViewMatrix {
				m.view = ViewMappings
			} else {
				m.view = ViewMatrix
			}
		case "c":
			if m.compartment == mapping.Main {
				m.compartment = mapping.Controller
			} else {
				m.compartment = mapping.Main
			}
			m.cursorMap = 0
		case "f":
			m.Engine.Do(func() {
				s := m.Engine.Session()
				s.SetFeedbackEnabled(!s.FeedbackEnabled())
			})
		case "ctrl+s":
			m.status = m.save()
		case "ctrl+o":
			m.status = m.load()
		default:
			if m.view == ViewMatrix {
				m.status = m.matrixKey(msg.String())
			} else {
				m.status = m.mappingKey(msg.String())
			}
		}
		m.snap = m.Engine.Snapshot(m.compartment)

	case tea.MouseMsg:
		m.tooltip = m.hitTest(msg.X, msg.Y)

	case UpdateMsg:
		m.snap = m.Engine.Snapshot(m.compartment)
		return m, ListenForUpdates(m.Engine)

	case DeviceEventMsg:
		ev := midi.DeviceEvent(msg)
		if ev.Type == midi.DeviceConnected {
			m.status = fmt.Sprintf("%s connected (%s)", ev.ID, ev.Role)
		} else {
			m.status = fmt.Sprintf("%s disconnected", ev.ID)
		}
		m.snap = m.Engine.Snapshot(m.compartment)
		return m, ListenForDevices(m.Engine)
	}

	return m, nil
}

func (m *Model) matrixKey(key string) string {
	cols := len(m.snap.Slots)
	rows := 0
	if cols > 0 {
		rows = len(m.snap.Slots[0])
	}
	col, row := m.cursorCol, m.cursorRow
	var err error
	switch key {
	case "h", "left":
		m.cursorCol = max(col-1, 0)
	case "l", "right":
		m.cursorCol = min(col+1, max(cols-1, 0))
	case "k", "up":
		m.cursorRow = max(row-1, 0)
	case "j", "down":
		m.cursorRow = min(row+1, max(rows-1, 0))
	case " ":
		m.Engine.Do(func() {
			mx := m.Engine.Matrix()
			slot, serr := mx.Slot(col, row)
			if serr == nil && slot.IsStoppable() {
				err = mx.StopClip(col, row)
			} else {
				err = mx.PlayClip(col, row)
			}
		})
	case "r":
		m.Engine.Do(func() { err = m.Engine.Matrix().RecordClip(col, row) })
	case "x":
		m.Engine.Do(func() { err = m.Engine.Matrix().ClearSlot(col, row) })
	case "s":
		m.Engine.Do(func() { err = m.Engine.Matrix().StopColumn(col) })
	case "enter":
		m.Engine.Do(func() { err = m.Engine.Matrix().PlayRow(row) })
	case "S":
		m.Engine.Do(func() { err = m.Engine.Matrix().StopAll() })
	default:
		return m.status
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

func (m *Model) mappingKey(key string) string {
	n := len(m.snap.Mappings)
	if key == "a" {
		var err error
		m.Engine.Do(func() {
			_, err = m.Engine.Session().AddMapping(m.compartment, mapping.DefaultGroupID)
		})
		if err != nil {
			return err.Error()
		}
		m.cursorMap = n
		return "mapping added"
	}
	if n == 0 {
		return m.status
	}
	m.cursorMap = min(m.cursorMap, n-1)
	cur := m.snap.Mappings[m.cursorMap]
	qid := mapping.QualifiedID{Compartment: m.compartment, ID: cur.ID}
	var err error
	switch key {
	case "k", "up":
		m.cursorMap = max(m.cursorMap-1, 0)
		return m.status
	case "j", "down":
		m.cursorMap = min(m.cursorMap+1, n-1)
		return m.status
	case "e":
		m.Engine.Do(func() {
			err = m.Engine.Session().ChangeMapping(m.compartment, cur.ID, session.SetEnabled{On: !cur.Enabled})
		})
	case "d":
		m.Engine.Do(func() {
			_, err = m.Engine.Session().DuplicateMapping(m.compartment, cur.ID)
		})
	case "x":
		m.Engine.Do(func() { err = m.Engine.Session().RemoveMapping(m.compartment, cur.ID) })
	case "L":
		m.Engine.Do(func() {
			s := m.Engine.Session()
			if state, _ := s.Learn(); state == session.LearnWaiting {
				s.CancelLearn()
				return
			}
			err = s.StartLearnSource(context.Background(), qid)
		})
	default:
		return m.status
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

func (m *Model) save() string {
	var filename string
	var err error
	m.Engine.Do(func() {
		filename, err = m.Engine.SavePreset(m.compartment, m.Preset, "")
	})
	if err != nil {
		return "save failed: " + err.Error()
	}
	return "saved " + filename
}

func (m *Model) load() string {
	var c mapping.Compartment
	var err error
	m.Engine.Do(func() {
		c, err = m.Engine.LoadPreset(m.Preset, "")
	})
	if err != nil {
		return "load failed: " + err.Error()
	}
	return fmt.Sprintf("loaded %s into %s", m.Preset, c)
}

func (m Model) hitTest(x, y int) string {
	if m.view != ViewMatrix || len(m.snap.Slots) == 0 {
		return ""
	}
	grid := widgets.Matrix{Theme: m.Theme}
	col, row, ok := grid.HitTest(x, y-m.bounds.matrixTop, len(m.snap.Slots), len(m.snap.Slots[0]))
	if !ok {
		return ""
	}
	s := m.snap.Slots[col][row]
	if !s.Filled {
		return fmt.Sprintf("slot %d/%d: empty", col+1, row+1)
	}
	return fmt.Sprintf("slot %d/%d: %s", col+1, row+1, s.PlayState)
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	snap := m.snap

	headerStyle := lipgloss.NewStyle().Foreground(m.Theme.Accent())
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	warnStyle := lipgloss.NewStyle().Foreground(m.Theme.Warning())
	tooltipStyle := lipgloss.NewStyle().
		Foreground(m.Theme.FG()).
		Background(m.Theme.Muted()).
		Padding(0, 1)

	feedback := "fb:on"
	if !snap.Feedback {
		feedback = "fb:off"
	}
	dirty := ""
	if snap.Dirty {
		dirty = "*"
	}
	header := headerStyle.Render(fmt.Sprintf("go-surface  %s%s  %s  %.1fbpm  %s  ctl:%d",
		m.Preset, dirty, snap.PlayState, snap.Tempo, feedback, len(snap.Controllers)))

	var body, help string
	switch m.view {
	case ViewMatrix:
		grid := widgets.Matrix{Theme: m.Theme, CursorCol: m.cursorCol, CursorRow: m.cursorRow, ShowCursor: true}
		body = grid.View(snap.Slots)
		help = "hjkl:move  space:play/stop  r:rec  x:clear  s:stop col  enter:scene  S:stop all  tab:mappings  q:quit"
	case ViewMappings:
		body = m.mappingList()
		help = "jk:move  a:add  e:enable  d:dup  x:remove  L:learn  c:compartment  f:feedback  ^s/^o:save/load  tab:matrix"
	}

	m.bounds.matrixTop = 1 + lipgloss.Height(header) + 1

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n\n")
	out.WriteString(body)
	out.WriteString("\n\n")
	stats := snap.Stats
	out.WriteString(dimStyle.Render(fmt.Sprintf("controls:%d feedback:%d failures:%d dropped:%d/%d",
		stats.Processor.Controls, stats.Processor.Feedbacks, stats.Processor.Failures,
		stats.MidiDropped+stats.RTOverflows, stats.OscDropped)))
	out.WriteString("\n")
	out.WriteString(dimStyle.Render(help))
	if m.status != "" {
		out.WriteString("\n")
		out.WriteString(warnStyle.Render(m.status))
	} else if n := snap.Notification; n.Message != "" {
		out.WriteString("\n")
		out.WriteString(dimStyle.Render(n.String()))
	}
	if m.tooltip != "" {
		out.WriteString("\n")
		out.WriteString(tooltipStyle.Render(m.tooltip))
	}
	return out.String()
}

func (m Model) mappingList() string {
	snap := m.snap
	title := lipgloss.NewStyle().Foreground(m.Theme.FG()).Render(fmt.Sprintf("%s mappings", snap.Compartment))
	if len(snap.Mappings) == 0 {
		return title + "\n  (none, a to add)"
	}
	on := lipgloss.NewStyle().Foreground(m.Theme.Success())
	off := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	lines := []string{title}
	for i, v := range snap.Mappings {
		cursor := ' '
		if i == m.cursorMap {
			cursor = m.Theme.Symbols.Cursor
		}
		state, style := m.Theme.Symbols.MappingOff, off
		switch {
		case !v.Enabled:
			state = m.Theme.Symbols.Disabled
		case v.On:
			state, style = m.Theme.Symbols.MappingOn, on
		}
		name := v.Name
		if name == "" {
			name = fmt.Sprintf("#%d", v.ID)
		}
		learn := ""
		if snap.Learn == session.LearnWaiting && snap.Learning == v.ID {
			learn = "  [learning]"
		}
		lines = append(lines, fmt.Sprintf("%c %s %-20s %-24s -> %s%s",
			cursor, style.Render(string(state)), name, v.Source, v.Target, learn))
	}
	return strings.Join(lines, "\n")
}
