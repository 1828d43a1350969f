package clip

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"go-surface/clip/rt"
	"go-surface/clip/supplier"
	"go-surface/config"
)

// SlotAddress addresses a slot by column and row
type SlotAddress struct {
	Column int `json:"column"`
	Row    int `json:"row"`
}

// Matrix is a grid of clip slots. All methods except Process belong to the main
// goroutine.
type Matrix struct {
	id         string
	columns    []*Column
	rows       int
	equipment  supplier.Equipment
	sampleRate float64
	channels   int
	record     RecordRequest
	hub        *Hub

	selected     *SlotAddress
	selectedItem *Clip
	clipboard    *Clip
}

// NewMatrix creates a matrix with the configured number of columns and rows
func NewMatrix(cfg config.ClipEngineConfig, hub *Hub) *Matrix {
	columns := max(cfg.Columns, 1)
	rows := max(cfg.Rows, 1)
	m := &Matrix{
		id:         uuid.NewString(),
		rows:       rows,
		equipment:  supplier.Equipment{MaxBlockFrames: max(cfg.BlockSize, 1) * 4},
		sampleRate: cfg.SampleRate,
		channels:   max(cfg.Channels, 1),
		hub:        hub,
	}
	m.record = RecordRequest{
		Kind:       supplier.RecordAudio,
		Channels:   m.channels,
		FrameRate:  cfg.SampleRate,
		MaxSeconds: 60,
		Looped:     true,
		PlayAfter:  true,
		Tempo:      cfg.Tempo,
	}
	for i := 0; i < columns; i++ {
		m.columns = append(m.columns, newColumn(rows, ColumnSettings{}, m.equipment, cfg.ClipsDir))
	}
	return m
}

func (m *Matrix) ID() string {
	return m.id
}

func (m *Matrix) SampleRate() float64 {
	return m.sampleRate
}

func (m *Matrix) Rows() int {
	return m.rows
}

func (m *Matrix) Columns() []*Column {
	return m.columns
}

func (m *Matrix) Column(col int) (*Column, error) {
	if col < 0 || col >= len(m.columns) {
		return nil, ErrColumnNotExist
	}
	return m.columns[col], nil
}

// Slot returns the slot at the address
func (m *Matrix) Slot(col, row int) (*Slot, error) {
	c, err := m.Column(col)
	if err != nil {
		return nil, err
	}
	return c.Slot(row)
}

// RecordSettings returns the settings new recordings use
func (m *Matrix) RecordSettings() RecordRequest {
	return m.record
}

func (m *Matrix) SetRecordSettings(r RecordRequest) {
	m.record = r
}

// Process renders all columns into the block. Called from the audio thread;
// the caller clears the output buffers.
func (m *Matrix) Process(b *rt.Block) {
	for _, c := range m.columns {
		c.rt.Process(b)
	}
}

// Poll collects the changes of all columns and publishes them to the hub
func (m *Matrix) Poll(timelineTempo float64) []Update {
	var updates []Update
	for i, c := range m.columns {
		for _, ch := range c.Poll(timelineTempo) {
			updates = append(updates, Update{MatrixID: m.id, Column: i, Row: ch.Row, Event: ch.Event})
		}
	}
	if m.hub != nil {
		m.hub.Publish(m.id, updates)
	}
	return updates
}

func (m *Matrix) FillSlot(col, row int, clip Clip) error {
	c, err := m.Column(col)
	if err != nil {
		return err
	}
	_, err = c.FillSlot(row, clip)
	return err
}

func (m *Matrix) PlayClip(col, row int) error {
	c, err := m.Column(col)
	if err != nil {
		return err
	}
	return c.PlayClip(row)
}

func (m *Matrix) StopClip(col, row int) error {
	c, err := m.Column(col)
	if err != nil {
		return err
	}
	return c.StopClip(row)
}

func (m *Matrix) PauseClip(col, row int) error {
	c, err := m.Column(col)
	if err != nil {
		return err
	}
	return c.PauseClip(row)
}

func (m *Matrix) SeekClip(col, row int, u float64) error {
	c, err := m.Column(col)
	if err != nil {
		return err
	}
	return c.SeekClip(row, u)
}

func (m *Matrix) SetClipVolume(col, row int, db float64) error {
	c, err := m.Column(col)
	if err != nil {
		return err
	}
	_, err = c.SetClipVolume(row, db)
	return err
}

func (m *Matrix) ToggleClipLooped(col, row int) error {
	c, err := m.Column(col)
	if err != nil {
		return err
	}
	_, err = c.ToggleClipLooped(row)
	return err
}

func (m *Matrix) AdjustClipSectionLength(col, row int, factor float64) error {
	c, err := m.Column(col)
	if err != nil {
		return err
	}
	return c.AdjustClipSectionLength(row, factor)
}

func (m *Matrix) ClearSlot(col, row int) error {
	c, err := m.Column(col)
	if err != nil {
		return err
	}
	return c.ClearSlot(row)
}

// RecordClip records into a slot with the matrix record settings
func (m *Matrix) RecordClip(col, row int) error {
	c, err := m.Column(col)
	if err != nil {
		return err
	}
	return c.RecordClip(row, m.record)
}

func (m *Matrix) CancelRecording(col, row int) error {
	c, err := m.Column(col)
	if err != nil {
		return err
	}
	return c.CancelRecording(row)
}

// StopColumn stops every clip in a column
func (m *Matrix) StopColumn(col int) error {
	c, err := m.Column(col)
	if err != nil {
		return err
	}
	return c.Stop()
}

// PlayRow launches a row in all scene-following columns
func (m *Matrix) PlayRow(row int) error {
	if row < 0 || row >= m.rows {
		return ErrSlotNotExist
	}
	for _, c := range m.columns {
		if err := c.PlayRow(row); err != nil {
			return err
		}
	}
	return nil
}

// StopAll stops every column
func (m *Matrix) StopAll() error {
	for _, c := range m.columns {
		if err := c.Stop(); err != nil {
			return err
		}
	}
	return nil
}

// IsStoppable reports whether anything plays or records
func (m *Matrix) IsStoppable() bool {
	for _, c := range m.columns {
		if c.IsStoppable() {
			return true
		}
	}
	return false
}

// ColumnTrack returns the playback track of a column
func (m *Matrix) ColumnTrack(col int) (string, error) {
	c, err := m.Column(col)
	if err != nil {
		return "", err
	}
	return c.PlaybackTrack()
}

func (m *Matrix) SetColumnSettings(col int, s ColumnSettings) error {
	c, err := m.Column(col)
	if err != nil {
		return err
	}
	return c.SetSettings(s)
}

// SelectedSlot returns the slot last selected, if any
func (m *Matrix) SelectedSlot() (SlotAddress, bool) {
	if m.selected == nil {
		return SlotAddress{}, false
	}
	return *m.selected, true
}

func (m *Matrix) SelectSlot(col, row int) error {
	if _, err := m.Slot(col, row); err != nil {
		return err
	}
	m.selected = &SlotAddress{Column: col, Row: row}
	return nil
}

// SetSelectedItem sets the clip the browser currently points at, nil to deselect
func (m *Matrix) SetSelectedItem(c *Clip) {
	m.selectedItem = c
}

// FillSlotWithSelectedItem loads the selected browser item into a slot
func (m *Matrix) FillSlotWithSelectedItem(col, row int) error {
	if m.selectedItem == nil {
		return ErrNoItemSelected
	}
	return m.FillSlot(col, row, *m.selectedItem)
}

// CopySlot puts the clip of a slot into the clipboard
func (m *Matrix) CopySlot(col, row int) error {
	s, err := m.Slot(col, row)
	if err != nil {
		return err
	}
	content, err := s.getContent()
	if err != nil {
		return err
	}
	clip := content.Clip
	m.clipboard = &clip
	return nil
}

// PasteSlot fills an empty slot with the clipboard clip
func (m *Matrix) PasteSlot(col, row int) error {
	if m.clipboard == nil {
		return ErrNothingCopied
	}
	return m.FillSlot(col, row, *m.clipboard)
}

// MatrixData is the persisted form of a matrix
type MatrixData struct {
	ID      string       `json:"id"`
	Columns []ColumnData `json:"columns"`
}

type ColumnData struct {
	Settings ColumnSettings `json:"settings"`
	Slots    []SlotData     `json:"slots,omitempty"`
}

type SlotData struct {
	Row  int  `json:"row"`
	Clip Clip `json:"clip"`
}

// Save returns the persisted form. Slots that are recording keep their last
// committed clip; in-memory recordings are skipped.
func (m *Matrix) Save() MatrixData {
	data := MatrixData{ID: m.id}
	for _, c := range m.columns {
		cd := ColumnData{Settings: c.settings}
		for _, s := range c.slots {
			if s.content == nil {
				continue
			}
			if !s.content.Clip.Persistable() {
				slog.Warn("skipping unsaved recording", "row", s.index)
				continue
			}
			cd.Slots = append(cd.Slots, SlotData{Row: s.index, Clip: s.content.Clip})
		}
		data.Columns = append(data.Columns, cd)
	}
	return data
}

// Load replaces the matrix content. Columns and rows beyond the matrix size are
// skipped. Loading while recording is refused. The matrix keeps its own id,
// subscribers stay bound to it.
func (m *Matrix) Load(data MatrixData) error {
	for _, c := range m.columns {
		if c.IsRecording() {
			return ErrRecordingAlready
		}
	}
	if len(data.Columns) > len(m.columns) {
		slog.Warn("matrix has fewer columns than saved", "columns", len(m.columns), "saved", len(data.Columns))
	}
	if data.ID != "" && data.ID != m.id {
		slog.Debug("loading matrix saved under another id", "id", m.id, "saved", data.ID)
	}
	var failed int
	for i, c := range m.columns {
		var cd ColumnData
		if i < len(data.Columns) {
			cd = data.Columns[i]
		}
		if err := c.SetSettings(cd.Settings); err != nil {
			return err
		}
		wanted := make(map[int]Clip, len(cd.Slots))
		for _, sd := range cd.Slots {
			wanted[sd.Row] = sd.Clip
		}
		for _, s := range c.slots {
			_, refill := wanted[s.index]
			if s.content != nil && !refill {
				if err := c.ClearSlot(s.index); err != nil {
					return err
				}
			}
			// a refill replaces the real-time clip in place
			s.content = nil
		}
		for _, sd := range cd.Slots {
			if _, err := c.FillSlot(sd.Row, sd.Clip); err != nil {
				slog.Error("loading clip", "column", i, "row", sd.Row, "error", err)
				failed++
			}
		}
	}
	if failed > 0 {
		return errors.Errorf("%d clips could not be loaded", failed)
	}
	return nil
}

// SaveFile writes the matrix as JSON
func (m *Matrix) SaveFile(path string) error {
	data, err := json.MarshalIndent(m.Save(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal matrix: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write matrix: %w", err)
	}
	return nil
}

// LoadFile reads a matrix written by SaveFile
func (m *Matrix) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read matrix: %w", err)
	}
	var data MatrixData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("failed to parse matrix: %w", err)
	}
	return m.Load(data)
}
