package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ControllerRole says what a MIDI port is used for
type ControllerRole string

const (
	RoleInput    ControllerRole = "input"    // control events only
	RoleFeedback ControllerRole = "feedback" // feedback only
	RoleBoth     ControllerRole = "both"
)

// ControllerType identifies the kind of controller
type ControllerType string

const (
	ControllerLaunchpadX ControllerType = "launchpad-x"
	ControllerGeneric    ControllerType = "generic"
)

// ControllerConfig defines a saved controller configuration
type ControllerConfig struct {
	PortName    string         `yaml:"port_name"`
	Type        ControllerType `yaml:"type"`
	Role        ControllerRole `yaml:"role"`
	AutoConnect bool           `yaml:"auto_connect"`
}

// OSCConfig configures OSC input and feedback
type OSCConfig struct {
	Enabled         bool   `yaml:"enabled"`
	ListenAddr      string `yaml:"listen_addr"`   // e.g. 0.0.0.0:7000
	FeedbackAddr    string `yaml:"feedback_addr"` // e.g. 192.168.1.20:9000
	BundleFeedbacks bool   `yaml:"bundle_feedbacks,omitempty"`
}

// ProcessorConfig tunes the mapping processors
type ProcessorConfig struct {
	EchoFeedbackWindowMs int `yaml:"echo_feedback_window_ms"` // default 20
	FeedbackPollHz       int `yaml:"feedback_poll_hz"`        // feedback buffer poll rate
	BulkSize             int `yaml:"bulk_size"`               // tasks per channel per pass
	ControlQueueSize     int `yaml:"control_queue_size"`      // real-time -> main capacity
	FeedbackQueueSize    int `yaml:"feedback_queue_size"`
}

// ClipEngineConfig configures the clip matrix
type ClipEngineConfig struct {
	Columns    int     `yaml:"columns"`
	Rows       int     `yaml:"rows"`
	SampleRate float64 `yaml:"sample_rate"`
	BlockSize  int     `yaml:"block_size"`
	Channels   int     `yaml:"channels"`
	Tempo      float64 `yaml:"tempo"`
	ClipsDir   string  `yaml:"clips_dir,omitempty"`
}

// RemoteConfig configures the MQTT bridge for clip matrix updates
type RemoteConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"` // host:port
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// UIConfig stores UI preferences
type UIConfig struct {
	Palette      string `yaml:"palette,omitempty"` // GIMP palette path
	LastFocus    string `yaml:"last_focus,omitempty"`
	RefreshHz    int    `yaml:"refresh_hz,omitempty"`
	ShowSessions bool   `yaml:"show_sessions,omitempty"`
}

// LogConfig configures debug logging
type LogConfig struct {
	Debug bool   `yaml:"debug"`
	Level string `yaml:"level"`
}

// Config is the main configuration structure
type Config struct {
	Controllers []ControllerConfig `yaml:"controllers,omitempty"`
	OSC         OSCConfig          `yaml:"osc"`
	Processor   ProcessorConfig    `yaml:"processor"`
	ClipEngine  ClipEngineConfig   `yaml:"clip_engine"`
	Remote      RemoteConfig       `yaml:"remote"`
	UI          UIConfig           `yaml:"ui,omitempty"`
	Log         LogConfig          `yaml:"log"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Controllers: []ControllerConfig{
			{
				PortName:    "Launchpad X LPX MIDI",
				Type:        ControllerLaunchpadX,
				Role:        RoleBoth,
				AutoConnect: true,
			},
		},
		OSC: OSCConfig{
			ListenAddr:   "0.0.0.0:7000",
			FeedbackAddr: "127.0.0.1:9000",
		},
		Processor: ProcessorConfig{
			EchoFeedbackWindowMs: 20,
			FeedbackPollHz:       30,
			BulkSize:             32,
			ControlQueueSize:     1000,
			FeedbackQueueSize:    1000,
		},
		ClipEngine: ClipEngineConfig{
			Columns:    8,
			Rows:       8,
			SampleRate: 48000,
			BlockSize:  512,
			Channels:   2,
			Tempo:      120,
		},
		Remote: RemoteConfig{
			Broker:      "localhost:1883",
			TopicPrefix: "surface",
			QoS:         0,
		},
		UI: UIConfig{
			RefreshHz: 30,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// EchoFeedbackWindow returns the echo suppression window as a duration
func (c *Config) EchoFeedbackWindow() time.Duration {
	return time.Duration(c.Processor.EchoFeedbackWindowMs) * time.Millisecond
}

// FeedbackPollInterval returns the feedback buffer poll interval
func (c *Config) FeedbackPollInterval() time.Duration {
	hz := c.Processor.FeedbackPollHz
	if hz <= 0 {
		hz = 30
	}
	return time.Second / time.Duration(hz)
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "go-surface"), nil
}

// ConfigPath returns the full path to config.yaml
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the config from the default location, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	cfg, err := LoadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads and validates a YAML config file. Missing fields keep their defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks value ranges
func Validate(c *Config) error {
	if c.Processor.EchoFeedbackWindowMs < 0 {
		return fmt.Errorf("processor.echo_feedback_window_ms must be >= 0, got %d", c.Processor.EchoFeedbackWindowMs)
	}
	if c.Processor.BulkSize <= 0 {
		return fmt.Errorf("processor.bulk_size must be > 0, got %d", c.Processor.BulkSize)
	}
	if c.Processor.ControlQueueSize <= 0 || c.Processor.FeedbackQueueSize <= 0 {
		return fmt.Errorf("processor queue sizes must be > 0")
	}
	if c.ClipEngine.Columns < 0 || c.ClipEngine.Rows < 0 {
		return fmt.Errorf("clip_engine.columns and rows must be >= 0")
	}
	if c.ClipEngine.SampleRate <= 0 {
		return fmt.Errorf("clip_engine.sample_rate must be > 0, got %v", c.ClipEngine.SampleRate)
	}
	if c.ClipEngine.BlockSize <= 0 {
		return fmt.Errorf("clip_engine.block_size must be > 0, got %d", c.ClipEngine.BlockSize)
	}
	if c.ClipEngine.Channels <= 0 {
		return fmt.Errorf("clip_engine.channels must be > 0, got %d", c.ClipEngine.Channels)
	}
	if c.ClipEngine.Tempo <= 0 {
		return fmt.Errorf("clip_engine.tempo must be > 0, got %v", c.ClipEngine.Tempo)
	}
	if c.Remote.Enabled && c.Remote.Broker == "" {
		return fmt.Errorf("remote.broker is required when remote is enabled")
	}
	if c.Remote.QoS > 2 {
		return fmt.Errorf("remote.qos must be 0, 1 or 2, got %d", c.Remote.QoS)
	}
	for i, ctrl := range c.Controllers {
		if ctrl.PortName == "" {
			return fmt.Errorf("controllers[%d]: port_name is required", i)
		}
		switch ctrl.Role {
		case RoleInput, RoleFeedback, RoleBoth:
		case "":
			c.Controllers[i].Role = RoleBoth
		default:
			return fmt.Errorf("controllers[%d] (%s): unknown role %q", i, ctrl.PortName, ctrl.Role)
		}
	}
	return nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	// Create directory if it doesn't exist
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	path, err := ConfigPath()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// FindController finds a controller config by port name
func (c *Config) FindController(portName string) *ControllerConfig {
	for i := range c.Controllers {
		if c.Controllers[i].PortName == portName {
			return &c.Controllers[i]
		}
	}
	return nil
}

// AddController adds or updates a controller config
func (c *Config) AddController(ctrl ControllerConfig) {
	for i := range c.Controllers {
		if c.Controllers[i].PortName == ctrl.PortName {
			c.Controllers[i] = ctrl
			return
		}
	}
	c.Controllers = append(c.Controllers, ctrl)
}

// AutoConnectControllers returns controllers with autoConnect enabled
func (c *Config) AutoConnectControllers() []ControllerConfig {
	var result []ControllerConfig
	for _, ctrl := range c.Controllers {
		if ctrl.AutoConnect {
			result = append(result, ctrl)
		}
	}
	return result
}
