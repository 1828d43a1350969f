// Command clipplay loads WAV files into the first row of a clip matrix and
// plays them through the default sound card.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"go-surface/clip"
	"go-surface/config"
	"go-surface/engine"
	"go-surface/host/sim"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("usage: clipplay <file.wav> [file.wav...]")
		os.Exit(2)
	}
	files := os.Args[1:]

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	cfg.ClipEngine.Columns = max(cfg.ClipEngine.Columns, len(files))
	cfg.OSC.Enabled = false
	cfg.Remote.Enabled = false

	project := sim.NewProject()
	project.SetTempo(cfg.ClipEngine.Tempo)
	for i := range cfg.ClipEngine.Columns {
		project.AddTrack(fmt.Sprintf("Track %d", i+1))
	}
	e := engine.New(cfg, project)

	var fillErr error
	e.Do(func() {
		m := e.Matrix()
		for col, f := range files {
			if err := m.FillSlot(col, 0, clip.NewFileClip(f)); err != nil {
				fillErr = fmt.Errorf("%s: %w", f, err)
				return
			}
			if err := m.PlayClip(col, 0); err != nil {
				fillErr = fmt.Errorf("%s: %w", f, err)
				return
			}
		}
	})
	if fillErr != nil {
		fmt.Printf("Error: %v\n", fillErr)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	updates, unsubscribe := e.Hub().Subscribe(e.Matrix().ID(), 16)
	defer unsubscribe()
	go func() {
		for batch := range updates {
			for _, u := range batch {
				if u.Event.Kind == clip.ChangePlayState {
					fmt.Printf("column %d row %d: %s\n", u.Column+1, u.Row+1, u.Event.PlayState)
				}
			}
		}
	}()

	go func() {
		if err := e.RunAudio(ctx); err != nil {
			slog.Error("audio failed", "err", err)
			cancel()
		}
	}()
	fmt.Printf("Playing %d clip(s), ctrl+c to stop\n", len(files))
	e.Run(ctx)
}
