package persist

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go-surface/config"
	"go-surface/mapping"
)

const timestampLayout = "2006-01-02_15-04-05"

// SaveInfo describes one saved compartment file
type SaveInfo struct {
	Filename  string
	Name      string // parsed from filename, empty if unnamed
	Timestamp time.Time
}

// Store keeps presets as timestamped JSON files, one folder per preset:
// <dir>/<preset>/2024-01-15_14-30-00[_name].json
type Store struct {
	Dir string
	now func() time.Time
}

// NewStore creates a store rooted at dir
func NewStore(dir string) *Store {
	return &Store{Dir: dir, now: time.Now}
}

// DefaultStore returns the store below the config directory
func DefaultStore() (*Store, error) {
	dir, err := config.ConfigDir()
	if err != nil {
		return nil, err
	}
	return NewStore(filepath.Join(dir, "presets")), nil
}

// Presets returns all preset folder names
func (s *Store) Presets() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}
	var presets []string
	for _, entry := range entries {
		if entry.IsDir() {
			presets = append(presets, entry.Name())
		}
	}
	sort.Strings(presets)
	return presets, nil
}

// Saves returns the saves of a preset, newest first
func (s *Store) Saves(preset string) ([]SaveInfo, error) {
	entries, err := os.ReadDir(filepath.Join(s.Dir, preset))
	if err != nil {
		if os.IsNotExist(err) {
			return []SaveInfo{}, nil
		}
		return nil, err
	}

	var saves []SaveInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		base := strings.TrimSuffix(name, ".json")
		if len(base) < len(timestampLayout) {
			continue
		}
		ts, err := time.Parse(timestampLayout, base[:len(timestampLayout)])
		if err != nil {
			continue
		}
		info := SaveInfo{Filename: name, Timestamp: ts}
		if rest := base[len(timestampLayout):]; len(rest) > 1 && rest[0] == '_' {
			info.Name = rest[1:]
		}
		saves = append(saves, info)
	}
	sort.Slice(saves, func(i, j int) bool {
		return saves[i].Timestamp.After(saves[j].Timestamp)
	})
	return saves, nil
}

// Save writes a compartment as a new timestamped save and returns its filename
func (s *Store) Save(preset, name string, c mapping.Compartment, d mapping.Data) (string, error) {
	if preset == "" {
		preset = "untitled"
	}
	dir := filepath.Join(s.Dir, sanitizeFilename(preset))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating preset dir: %w", err)
	}
	data, err := MarshalCompartment(c, d)
	if err != nil {
		return "", err
	}
	filename := s.now().Format(timestampLayout)
	if name != "" {
		filename += "_" + sanitizeFilename(name)
	}
	filename += ".json"
	if err := os.WriteFile(filepath.Join(dir, filename), data, 0644); err != nil {
		return "", fmt.Errorf("writing preset: %w", err)
	}
	return filename, nil
}

// Load reads a save, the most recent one if filename is empty
func (s *Store) Load(preset, filename string) (mapping.Compartment, mapping.Data, error) {
	if filename == "" {
		saves, err := s.Saves(preset)
		if err != nil || len(saves) == 0 {
			return 0, mapping.Data{}, fmt.Errorf("no saves found in preset %s", preset)
		}
		filename = saves[0].Filename
	}
	data, err := os.ReadFile(filepath.Join(s.Dir, preset, filename))
	if err != nil {
		return 0, mapping.Data{}, err
	}
	c, d, err := UnmarshalCompartment(data)
	if err != nil {
		return 0, mapping.Data{}, fmt.Errorf("loading %s: %w", filename, err)
	}
	return c, d, nil
}

// Delete removes a single save
func (s *Store) Delete(preset, filename string) error {
	return os.Remove(filepath.Join(s.Dir, preset, filename))
}

// Rename changes the name part of a save and keeps its timestamp
func (s *Store) Rename(preset, filename, newName string) (string, error) {
	base := strings.TrimSuffix(filename, ".json")
	if len(base) < len(timestampLayout) {
		return "", fmt.Errorf("invalid save filename %q", filename)
	}
	newFilename := base[:len(timestampLayout)]
	if newName != "" {
		newFilename += "_" + sanitizeFilename(newName)
	}
	newFilename += ".json"
	dir := filepath.Join(s.Dir, preset)
	return newFilename, os.Rename(filepath.Join(dir, filename), filepath.Join(dir, newFilename))
}

// DeletePreset removes a preset with all its saves
func (s *Store) DeletePreset(preset string) error {
	return os.RemoveAll(filepath.Join(s.Dir, preset))
}

var filenameReplacer = strings.NewReplacer(
	" ", "-", "/", "-", "\\", "-", ":", "-",
	"*", "", "?", "", "\"", "", "<", "", ">", "", "|", "",
)

func sanitizeFilename(name string) string {
	return filenameReplacer.Replace(name)
}
