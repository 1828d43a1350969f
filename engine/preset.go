package engine

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"go-surface/mapping"
	"go-surface/persist"
)

var ErrNoStore = errors.New("no preset store")

func (e *Engine) presetStore() (*persist.Store, error) {
	if e.store != nil {
		return e.store, nil
	}
	s, err := persist.DefaultStore()
	if err != nil {
		return nil, errors.Wrap(ErrNoStore, err.Error())
	}
	e.store = s
	return s, nil
}

// SavePreset saves a compartment of the session and marks it clean
func (e *Engine) SavePreset(c mapping.Compartment, preset, name string) (string, error) {
	store, err := e.presetStore()
	if err != nil {
		return "", err
	}
	filename, err := store.Save(preset, name, c, e.session.Export(c))
	if err != nil {
		return "", err
	}
	e.session.MarkClean(c)
	slog.Info("preset saved", "compartment", c.String(), "preset", preset, "file", filename)
	return filename, nil
}

// LoadPreset replaces the compartment stored in the save. An empty filename
// loads the most recent save of the preset.
func (e *Engine) LoadPreset(preset, filename string) (mapping.Compartment, error) {
	store, err := e.presetStore()
	if err != nil {
		return 0, err
	}
	c, d, err := store.Load(preset, filename)
	if err != nil {
		return 0, err
	}
	if err := e.session.Import(c, d); err != nil {
		return c, err
	}
	e.session.MarkClean(c)
	slog.Info("preset loaded", "compartment", c.String(), "preset", preset)
	return c, nil
}

// matrixPath is <clips dir>/<name>.json, next to the presets by default
func (e *Engine) matrixPath(name string) (string, error) {
	dir := e.cfg.ClipEngine.ClipsDir
	if dir == "" {
		store, err := e.presetStore()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(filepath.Dir(store.Dir), "matrices")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating matrix dir: %w", err)
	}
	return filepath.Join(dir, name+".json"), nil
}

func (e *Engine) SaveMatrix(name string) error {
	path, err := e.matrixPath(name)
	if err != nil {
		return err
	}
	return e.matrix.SaveFile(path)
}

func (e *Engine) LoadMatrix(name string) error {
	path, err := e.matrixPath(name)
	if err != nil {
		return err
	}
	return e.matrix.LoadFile(path)
}
