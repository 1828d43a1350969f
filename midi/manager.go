package midi

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go-surface/config"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver
)

// DeviceEvent is emitted when controllers connect/disconnect
type DeviceEvent struct {
	Type       DeviceEventType
	Controller Controller
	ID         string
	Role       config.ControllerRole
}

type DeviceEventType int

const (
	DeviceConnected DeviceEventType = iota
	DeviceDisconnected
)

// DeviceManager handles hot-plug detection of the configured MIDI controllers.
// Launchpads are picked up even when not configured.
type DeviceManager struct {
	configs     []config.ControllerConfig
	controllers map[string]Controller
	roles       map[string]config.ControllerRole
	mu          sync.RWMutex
	events      chan DeviceEvent
	pollRate    time.Duration
}

// NewDeviceManager creates a new device manager
func NewDeviceManager(configs []config.ControllerConfig) *DeviceManager {
	return &DeviceManager{
		configs:     configs,
		controllers: make(map[string]Controller),
		roles:       make(map[string]config.ControllerRole),
		events:      make(chan DeviceEvent, 16),
		pollRate:    time.Second,
	}
}

// Events returns a channel of device connect/disconnect events
func (dm *DeviceManager) Events() <-chan DeviceEvent {
	return dm.events
}

// Controllers returns a snapshot of connected controllers
func (dm *DeviceManager) Controllers() map[string]Controller {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	copy := make(map[string]Controller, len(dm.controllers))
	for k, v := range dm.controllers {
		copy[k] = v
	}
	return copy
}

// Role returns the configured role of a connected controller
func (dm *DeviceManager) Role(id string) config.ControllerRole {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	if r, ok := dm.roles[id]; ok {
		return r
	}
	return config.RoleBoth
}

// GetLaunchpad returns the first connected Launchpad (or nil)
func (dm *DeviceManager) GetLaunchpad() GridController {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	for _, c := range dm.controllers {
		if g, ok := c.(GridController); ok {
			return g
		}
	}
	return nil
}

// Run starts the polling loop (blocking - run in goroutine)
func (dm *DeviceManager) Run(ctx context.Context) {
	ticker := time.NewTicker(dm.pollRate)
	defer ticker.Stop()

	dm.scan()

	for {
		select {
		case <-ctx.Done():
			dm.closeAll()
			close(dm.events)
			return
		case <-ticker.C:
			dm.scan()
		}
	}
}

// PortNames lists the names of the current input and output ports
func PortNames() (ins, outs []string) {
	for _, p := range gomidi.GetInPorts() {
		ins = append(ins, p.String())
	}
	for _, p := range gomidi.GetOutPorts() {
		outs = append(outs, p.String())
	}
	return ins, outs
}

func (dm *DeviceManager) scan() {
	// Port listing with timeout (CoreMIDI can hang)
	type portsResult struct {
		inPorts  []drivers.In
		outPorts []drivers.Out
	}

	ch := make(chan portsResult, 1)
	go func() {
		ch <- portsResult{inPorts: gomidi.GetInPorts(), outPorts: gomidi.GetOutPorts()}
	}()

	var inPorts []drivers.In
	var outPorts []drivers.Out

	select {
	case result := <-ch:
		inPorts = result.inPorts
		outPorts = result.outPorts
	case <-time.After(3 * time.Second):
		// CoreMIDI is hung - skip this scan
		// User needs to run: sudo killall coreaudiod midiserver
		return
	}

	seenIDs := make(map[string]bool)

	for _, name := range dm.candidateNames(inPorts, outPorts) {
		seenIDs[name] = true

		dm.mu.RLock()
		_, exists := dm.controllers[name]
		dm.mu.RUnlock()
		if exists {
			continue
		}

		cfg := dm.configFor(name)
		inPort := findIn(inPorts, name)
		outPort := findOut(outPorts, name)
		if cfg.Role == config.RoleFeedback {
			inPort = nil
		}
		if cfg.Role == config.RoleInput {
			outPort = nil
		}

		var c Controller
		var err error
		if cfg.Type == config.ControllerLaunchpadX || (cfg.Type == "" && isLaunchpad(name)) {
			c, err = NewLaunchpadController(name, inPort, outPort)
		} else {
			c, err = NewPortController(name, inPort, outPort)
		}
		if err != nil {
			slog.Warn("controller open failed", "port", name, "err", err)
			continue
		}

		dm.mu.Lock()
		dm.controllers[name] = c
		dm.roles[name] = cfg.Role
		dm.mu.Unlock()

		slog.Info("controller connected", "port", name, "type", c.Type().String(), "role", string(cfg.Role))
		dm.events <- DeviceEvent{Type: DeviceConnected, Controller: c, ID: name, Role: cfg.Role}
	}

	// Check for disconnects
	dm.mu.Lock()
	var toRemove []string
	for id := range dm.controllers {
		if !seenIDs[id] {
			toRemove = append(toRemove, id)
		}
	}
	for _, id := range toRemove {
		dm.controllers[id].Close()
		delete(dm.controllers, id)
		delete(dm.roles, id)
		slog.Info("controller disconnected", "port", id)
		dm.events <- DeviceEvent{Type: DeviceDisconnected, ID: id}
	}
	dm.mu.Unlock()
}

// candidateNames returns the port names that should be opened: configured
// auto-connect ports plus any Launchpad
func (dm *DeviceManager) candidateNames(inPorts []drivers.In, outPorts []drivers.Out) []string {
	seen := make(map[string]bool)
	var names []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	for _, p := range inPorts {
		name := p.String()
		if dm.wanted(name) {
			add(name)
		}
	}
	for _, p := range outPorts {
		name := p.String()
		if dm.wanted(name) {
			add(name)
		}
	}
	return names
}

func (dm *DeviceManager) wanted(name string) bool {
	for _, c := range dm.configs {
		if c.AutoConnect && strings.EqualFold(c.PortName, name) {
			return true
		}
	}
	return isLaunchpad(name)
}

func (dm *DeviceManager) configFor(name string) config.ControllerConfig {
	for _, c := range dm.configs {
		if strings.EqualFold(c.PortName, name) {
			if c.Role == "" {
				c.Role = config.RoleBoth
			}
			return c
		}
	}
	return config.ControllerConfig{PortName: name, Role: config.RoleBoth}
}

func findIn(ports []drivers.In, name string) drivers.In {
	for _, p := range ports {
		if strings.EqualFold(p.String(), name) {
			return p
		}
	}
	return nil
}

func findOut(ports []drivers.Out, name string) drivers.Out {
	for _, p := range ports {
		if strings.EqualFold(p.String(), name) {
			return p
		}
	}
	return nil
}

func (dm *DeviceManager) closeAll() {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	for _, c := range dm.controllers {
		c.Close()
	}
	dm.controllers = make(map[string]Controller)
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
