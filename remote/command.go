package remote

import (
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"

	"go-surface/clip"
)

var ErrUnknownAction = errors.New("unknown slot action")

// Action is what a remote command asks the matrix to do
type Action string

const (
	ActionPlay            Action = "play"
	ActionStop            Action = "stop"
	ActionPause           Action = "pause"
	ActionSeek            Action = "seek"   // Value is the position 0..1
	ActionVolume          Action = "volume" // Value is dB
	ActionToggleLooped    Action = "toggle_looped"
	ActionRecord          Action = "record"
	ActionCancelRecording Action = "cancel_recording"
	ActionClear           Action = "clear"
	ActionStopColumn      Action = "stop_column"
	ActionPlayRow         Action = "play_row"
	ActionStopAll         Action = "stop_all"
)

// Command is a slot command received from a remote. Column and row address
// the slot; column-only and row-only actions ignore the other index.
type Command struct {
	Action Action  `msgpack:"action"`
	Column int     `msgpack:"column"`
	Row    int     `msgpack:"row"`
	Value  float64 `msgpack:"value,omitempty"`
}

func EncodeCommand(c Command) ([]byte, error) {
	return msgpack.Marshal(c)
}

func DecodeCommand(data []byte) (Command, error) {
	var c Command
	if err := msgpack.Unmarshal(data, &c); err != nil {
		return c, errors.Wrap(err, "decode command")
	}
	return c, nil
}

// Apply executes the command on the matrix
func (c Command) Apply(m *clip.Matrix) error {
	switch c.Action {
	case ActionPlay:
		return m.PlayClip(c.Column, c.Row)
	case ActionStop:
		return m.StopClip(c.Column, c.Row)
	case ActionPause:
		return m.PauseClip(c.Column, c.Row)
	case ActionSeek:
		return m.SeekClip(c.Column, c.Row, c.Value)
	case ActionVolume:
		return m.SetClipVolume(c.Column, c.Row, c.Value)
	case ActionToggleLooped:
		return m.ToggleClipLooped(c.Column, c.Row)
	case ActionRecord:
		return m.RecordClip(c.Column, c.Row)
	case ActionCancelRecording:
		return m.CancelRecording(c.Column, c.Row)
	case ActionClear:
		return m.ClearSlot(c.Column, c.Row)
	case ActionStopColumn:
		return m.StopColumn(c.Column)
	case ActionPlayRow:
		return m.PlayRow(c.Row)
	case ActionStopAll:
		return m.StopAll()
	}
	return errors.Wrap(ErrUnknownAction, string(c.Action))
}
