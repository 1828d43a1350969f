package midi

// ControllerType identifies the kind of controller
type ControllerType int

const (
	ControllerUnknown ControllerType = iota
	ControllerLaunchpad
	ControllerGeneric
)

func (t ControllerType) String() string {
	switch t {
	case ControllerLaunchpad:
		return "launchpad"
	case ControllerGeneric:
		return "generic"
	}
	return "unknown"
}

// Output accepts outgoing short messages (feedback, SendMidi targets)
type Output interface {
	Send(msg ShortMessage) error
}

// Controller is the interface for MIDI control surfaces
type Controller interface {
	Output

	ID() string
	Type() ControllerType

	// Incoming channel messages, already converted to ShortMessage
	Events() <-chan Event

	// Lifecycle
	Close() error
}

// GridController is implemented by controllers with an RGB pad grid
type GridController interface {
	Controller
	SetLEDBatch(updates []LEDUpdate) error
}

// LEDUpdate sets one pad of a grid controller
type LEDUpdate struct {
	Row, Col int
	Color    [3]uint8
	Channel  uint8 // ChannelStatic, ChannelFlash or ChannelPulse
}

// Launchpad X color palette (velocity values 0-127)
// See Programmer's Reference Manual for full palette
const (
	ColorOff          uint8 = 0
	ColorDimRed       uint8 = 7
	ColorRed          uint8 = 5
	ColorBrightRed    uint8 = 72
	ColorDimGreen     uint8 = 19
	ColorGreen        uint8 = 21
	ColorBrightGreen  uint8 = 87
	ColorDimYellow    uint8 = 97
	ColorYellow       uint8 = 13
	ColorBrightYellow uint8 = 62
	ColorDimOrange    uint8 = 11
	ColorOrange       uint8 = 9
	ColorBrightOrange uint8 = 84
	ColorDimBlue      uint8 = 43
	ColorBlue         uint8 = 45
	ColorBrightBlue   uint8 = 78
	ColorCyan         uint8 = 37
	ColorPurple       uint8 = 49
	ColorPink         uint8 = 53
	ColorWhite        uint8 = 3
	ColorBrightWhite  uint8 = 119

	// Channel modes for LEDUpdate
	ChannelStatic uint8 = 0 // solid color
	ChannelFlash  uint8 = 1 // flashing A/B alternating
	ChannelPulse  uint8 = 2 // pulsing (fades)
)
