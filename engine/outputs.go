package engine

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/hypebeast/go-osc/osc"
	"github.com/pkg/errors"

	"go-surface/config"
	"go-surface/midi"
	"go-surface/oscio"
	"go-surface/processor"
)

// outputs fans MIDI out to every connected controller that takes feedback.
// It is the MidiOut of the target context and the MIDI feedback sink.
type outputs struct {
	mu          sync.RWMutex
	controllers map[string]midi.Output
}

func newOutputs() *outputs {
	return &outputs{controllers: make(map[string]midi.Output)}
}

func (o *outputs) add(id string, out midi.Output) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.controllers[id] = out
}

func (o *outputs) remove(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.controllers, id)
}

// IDs returns the connected output ids, sorted
func (o *outputs) IDs() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	ids := make([]string, 0, len(o.controllers))
	for id := range o.controllers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (o *outputs) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.controllers)
}

// Send implements midi.Output. The first error is returned, all outputs are tried.
func (o *outputs) Send(msg midi.ShortMessage) error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var first error
	for id, out := range o.controllers {
		if err := out.Send(msg); err != nil && first == nil {
			first = errors.Wrapf(err, "send to %s", id)
		}
	}
	return first
}

// oscOutput is the OscOut of the target context. The client is set once OSC
// is started; until then sends are dropped.
type oscOutput struct {
	client atomic.Pointer[oscio.Client]
}

func (o *oscOutput) set(c *oscio.Client) {
	o.client.Store(c)
}

func (o *oscOutput) Send(p osc.Packet) error {
	c := o.client.Load()
	if c == nil {
		return nil
	}
	return c.Send(p)
}

// watchDevices connects controllers as the device manager finds them. Input
// capable controllers get a goroutine pumping their events into the audio
// thread queue.
func (e *Engine) watchDevices(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-e.devices.Events():
			if !ok {
				return
			}
			e.handleDevice(ev)
		}
	}
}

func (e *Engine) handleDevice(ev midi.DeviceEvent) {
	switch ev.Type {
	case midi.DeviceConnected:
		if ev.Role != config.RoleInput {
			e.outputs.add(ev.ID, ev.Controller)
		}
		if ev.Role != config.RoleFeedback {
			go e.pump(ev.Controller)
		}
		// new controllers need the current state
		if err := e.ch.SendNormal(processor.NormalTask{Kind: processor.FeedbackAll}); err != nil {
			slog.Warn("feedback refresh failed", "controller", ev.ID, "err", err)
		}
	case midi.DeviceDisconnected:
		e.outputs.remove(ev.ID)
	}
	select {
	case e.DeviceChan <- ev:
	default:
	}
}

// pump ends when the controller closes its event channel
func (e *Engine) pump(c midi.Controller) {
	for ev := range c.Events() {
		e.PushMidi(ev.Msg)
	}
}
