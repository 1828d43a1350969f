package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	tea "github.com/charmbracelet/bubbletea"

	"go-surface/config"
	"go-surface/debug"
	"go-surface/engine"
	"go-surface/host/sim"
	"go-surface/theme"
	"go-surface/tui"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	debug.SetLevel(cfg.Log.Level)
	if cfg.Log.Debug {
		if err := debug.Enable(""); err != nil {
			fmt.Printf("Debug log unavailable: %v\n", err)
		}
	}

	headless := len(os.Args) > 1 && os.Args[1] == "headless"
	preset := "default"
	if len(os.Args) > 2 {
		preset = os.Args[2]
	} else if !headless && len(os.Args) > 1 {
		preset = os.Args[1]
	}

	// Simulated project: one track per matrix column
	project := sim.NewProject()
	project.SetTempo(cfg.ClipEngine.Tempo)
	for i := range cfg.ClipEngine.Columns {
		project.AddTrack(fmt.Sprintf("Track %d", i+1))
	}

	e := engine.New(cfg, project)
	if _, err := e.LoadPreset(preset, ""); err != nil {
		slog.Info("starting with an empty session", "preset", preset, "err", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if err := e.Start(ctx); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	go func() {
		if err := e.RunAudio(ctx); err != nil {
			slog.Warn("audio unavailable, running on the internal clock", "err", err)
			e.RunClock(ctx)
		}
	}()

	if headless {
		fmt.Println("go-surface running headless, ctrl+c to stop")
		e.Run(ctx)
		return
	}

	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	palette, err := theme.LoadOrDefault(cfg.UI.Palette)
	if err != nil {
		slog.Warn("palette not loaded, using default", "err", err)
	}
	m := tui.NewModel(e, theme.New(palette), preset)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	cancel()
	<-done
}
