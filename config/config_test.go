package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
processor:
  echo_feedback_window_ms: 35
clip_engine:
  columns: 4
controllers:
  - port_name: "Faderfox EC4"
    type: generic
    auto_connect: true
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.EchoFeedbackWindow() != 35*time.Millisecond {
		t.Errorf("Expected 35ms echo window, got %v", cfg.EchoFeedbackWindow())
	}
	if cfg.ClipEngine.Columns != 4 {
		t.Errorf("Expected 4 columns, got %d", cfg.ClipEngine.Columns)
	}
	if cfg.ClipEngine.Rows != 8 {
		t.Errorf("Expected default 8 rows, got %d", cfg.ClipEngine.Rows)
	}
	if cfg.Processor.BulkSize != 32 {
		t.Errorf("Expected default bulk size 32, got %d", cfg.Processor.BulkSize)
	}
	ctrl := cfg.FindController("Faderfox EC4")
	if ctrl == nil {
		t.Fatal("Expected controller to be found")
	}
	if ctrl.Role != RoleBoth {
		t.Errorf("Expected empty role to default to both, got %q", ctrl.Role)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"negative echo", func(c *Config) { c.Processor.EchoFeedbackWindowMs = -1 }, "echo_feedback_window_ms"},
		{"zero bulk", func(c *Config) { c.Processor.BulkSize = 0 }, "bulk_size"},
		{"bad role", func(c *Config) { c.Controllers[0].Role = "sideways" }, "unknown role"},
		{"remote without broker", func(c *Config) { c.Remote.Enabled = true; c.Remote.Broker = "" }, "remote.broker"},
		{"bad qos", func(c *Config) { c.Remote.QoS = 3 }, "qos"},
	}

	for _, tt := range tests {
		cfg := DefaultConfig()
		tt.mutate(cfg)
		err := Validate(cfg)
		if tt.wantErr == "" {
			if err != nil {
				t.Errorf("%s: expected no error, got %v", tt.name, err)
			}
			continue
		}
		if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
			t.Errorf("%s: expected error containing %q, got %v", tt.name, tt.wantErr, err)
		}
	}
}

func TestAddController(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AddController(ControllerConfig{PortName: "X", AutoConnect: false})
	cfg.AddController(ControllerConfig{PortName: "X", AutoConnect: true})

	if len(cfg.Controllers) != 2 {
		t.Fatalf("Expected 2 controllers, got %d", len(cfg.Controllers))
	}
	if len(cfg.AutoConnectControllers()) != 2 {
		t.Errorf("Expected 2 auto-connect controllers, got %d", len(cfg.AutoConnectControllers()))
	}
}
