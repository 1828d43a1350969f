package midi

import (
	"fmt"
	"sync/atomic"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// PortController is a generic MIDI controller: any input and/or output port
// (faders, knobs, keyboards). Either port may be nil.
type PortController struct {
	id       string
	send     func(msg gomidi.Message) error
	stopFunc func()

	events  chan Event
	dropped atomic.Uint64
}

// NewPortController opens the given ports
func NewPortController(id string, inPort drivers.In, outPort drivers.Out) (*PortController, error) {
	pc := &PortController{
		id:     id,
		events: make(chan Event, 256),
	}

	if outPort != nil {
		send, err := gomidi.SendTo(outPort)
		if err != nil {
			return nil, fmt.Errorf("open output: %w", err)
		}
		pc.send = send
	}

	if inPort != nil {
		stop, err := gomidi.ListenTo(inPort, func(msg gomidi.Message, timestampms int32) {
			sm, ok := FromMessage(msg)
			if !ok {
				return
			}
			select {
			case pc.events <- Event{Msg: sm, Device: pc.id}:
			default:
				pc.dropped.Add(1)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		pc.stopFunc = stop
	}

	return pc, nil
}

func (pc *PortController) ID() string {
	return pc.id
}

func (pc *PortController) Type() ControllerType {
	return ControllerGeneric
}

func (pc *PortController) Events() <-chan Event {
	return pc.events
}

func (pc *PortController) Dropped() uint64 {
	return pc.dropped.Load()
}

func (pc *PortController) Send(msg ShortMessage) error {
	if pc.send == nil {
		return nil
	}
	m := msg.Message()
	if m == nil {
		return nil
	}
	return pc.send(m)
}

func (pc *PortController) Close() error {
	if pc.stopFunc != nil {
		pc.stopFunc()
	}
	close(pc.events)
	return nil
}
