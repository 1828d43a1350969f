// Package rt is the real-time side of a clip column. A Column receives commands
// from the main side over a bounded channel, renders its clips once per audio
// block and reports state changes back over another bounded channel.
package rt

import (
	"go-surface/clip/supplier"
)

// ChannelCapacity is the size of the command and event channels of a column
const ChannelCapacity = 500

// PlayState is the play state of a clip
type PlayState uint8

const (
	Stopped PlayState = iota
	Playing
	Paused
	Recording
	ScheduledForRecordingStart
)

var playStateNames = [...]string{"stopped", "playing", "paused", "recording", "scheduled-for-recording-start"}

func (s PlayState) String() string {
	if int(s) < len(playStateNames) {
		return playStateNames[s]
	}
	return "unknown"
}

// IsAdvancing reports states in which the position moves
func (s PlayState) IsAdvancing() bool {
	return s == Playing || s == Recording
}

func (s PlayState) IsStoppable() bool {
	return s == Playing || s == Paused || s == Recording || s == ScheduledForRecordingStart
}

func (s PlayState) IsAsGoodAsPlaying() bool {
	return s == Playing
}

func (s PlayState) IsSomehowRecording() bool {
	return s == Recording || s == ScheduledForRecordingStart
}

// PlayMode decides whether clips of a column may play simultaneously
type PlayMode uint8

const (
	// ExclusiveFollowingScene plays one clip at a time and reacts to row launches
	ExclusiveFollowingScene PlayMode = iota
	Exclusive
	Free
)

func (m PlayMode) String() string {
	switch m {
	case Exclusive:
		return "exclusive"
	case Free:
		return "free"
	}
	return "exclusive-following-scene"
}

func (m PlayMode) IsExclusive() bool {
	return m != Free
}

func (m PlayMode) FollowsScene() bool {
	return m == ExclusiveFollowingScene
}

// Settings are the real-time relevant column settings
type Settings struct {
	PlayMode PlayMode
}

// CommandKind identifies a column command
type CommandKind uint8

const (
	CmdFillSlot CommandKind = iota
	CmdClearSlot
	CmdClearSlots
	CmdPlayClip
	CmdStopClip
	CmdPauseClip
	CmdSeekClip
	CmdSetClipVolume
	CmdSetClipLooped
	CmdSetClipSection
	CmdSetClipSource
	CmdRecordClip
	CmdCancelRecording
	CmdPlayRow
	CmdStop
	CmdUpdateSettings
)

// RecordInstruction carries everything recording needs, allocated on the main side
type RecordInstruction struct {
	// NewClip is set when the slot is empty; its chain wraps the recorder
	NewClip  *Clip
	Recorder *supplier.Recorder
	Overdub  bool
}

// Command is a fixed-size message to the real-time column. Pointer fields are
// allocated before sending.
type Command struct {
	Kind     CommandKind
	Slot     int
	Clip     *Clip
	Record   *RecordInstruction
	Source   supplier.Supplier
	Value    float64
	Flag     bool
	Section  supplier.Section
	Settings Settings
}

// EventKind identifies a column event
type EventKind uint8

const (
	EvPlayStateChanged EventKind = iota
	EvRecordRequestAcknowledged
	EvNormalRecordingFinished
	EvMidiOverdubFinished
	EvSlotCleared
	EvInteractionFailed
	EvDispose
)

// RecordingOutcome tells how a recording ended
type RecordingOutcome uint8

const (
	Committed RecordingOutcome = iota
	Canceled
)

// Event is a fixed-size message from the real-time column
type Event struct {
	Kind      EventKind
	Slot      int
	PlayState PlayState
	// acknowledgement
	AckOK  bool
	Shared *Shared
	// recording finished
	Outcome  RecordingOutcome
	Recorder *supplier.Recorder
	Material supplier.MaterialInfo
	// replaced material handed back to the main side
	Clip   *Clip
	Source supplier.Supplier
	// static failure message
	Failure string
}
