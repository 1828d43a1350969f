package processor

import (
	"github.com/pkg/errors"

	"go-surface/config"
	"go-surface/control"
	"go-surface/mapping"
	"go-surface/midi"
	"go-surface/target"
)

var ErrQueueFull = errors.New("processor queue full")

// NormalTaskKind identifies a structural task
type NormalTaskKind uint8

const (
	// UpdateAllMappings replaces all mappings of a compartment
	UpdateAllMappings NormalTaskKind = iota
	// UpdateSingleMapping replaces or adds one mapping
	UpdateSingleMapping
	// RefreshAllTargets re-resolves every target, e.g. after tracks changed
	RefreshAllTargets
	// UpdateFeedbackGloballyEnabled switches all feedback on or off
	UpdateFeedbackGloballyEnabled
	// FeedbackAll sends feedback for every mapping
	FeedbackAll
	// StartLearning makes the real-time processor report every message
	StartLearning
	StopLearning
)

// NormalTask changes the mapping set. Normal tasks are processed before
// anything else in a pass.
type NormalTask struct {
	Kind        NormalTaskKind
	Compartment mapping.Compartment
	Mappings    []*MainMapping
	Mapping     *MainMapping
	Enabled     bool
	// Params, if set, replaces the compartment parameters before
	// UpdateAllMappings activates the new mappings
	Params *[mapping.ParameterCount]float64
}

// ParameterTask changes compartment parameters
type ParameterTask struct {
	Compartment mapping.Compartment
	All         bool
	Index       int
	Value       float64
	Values      [mapping.ParameterCount]float64
}

// ControlTaskKind says what a control task carries
type ControlTaskKind uint8

const (
	// Control is a matched source value for a mapping
	Control ControlTaskKind = iota
	// LearnSource is a raw message captured while learning
	LearnSource
)

// ControlOptions tweak how a control task is processed
type ControlOptions struct {
	EnforceFeedbackAfterControl bool
}

// ControlTask is what the real-time processor sends per matched message. It
// has a fixed size so sending it never allocates.
type ControlTask struct {
	Kind        ControlTaskKind
	Compartment mapping.Compartment
	ID          mapping.ID
	Value       control.Value
	Msg         midi.ShortMessage
	Options     ControlOptions
}

// FeedbackTaskKind identifies a feedback task
type FeedbackTaskKind uint8

const (
	// TargetChanged carries a host or clip change event
	TargetChanged FeedbackTaskKind = iota
	// MappingFeedback asks for feedback of one mapping
	MappingFeedback
	// TargetTouched refreshes mappings that follow the last touched target
	TargetTouched
)

type FeedbackTask struct {
	Kind        FeedbackTaskKind
	Change      target.ChangeEvent
	Compartment mapping.Compartment
	ID          mapping.ID
}

// RealTimeTaskKind identifies a task for the real-time processor
type RealTimeTaskKind uint8

const (
	RTUpdateAllMappings RealTimeTaskKind = iota
	RTUpdateMapping
	RTUpdateControlEnabled
	RTSetSampleRate
	RTSetLearning
)

// RealTimeTask is sent from the main processor to the real-time processor.
// Slices are allocated on the sending side.
type RealTimeTask struct {
	Kind        RealTimeTaskKind
	Compartment mapping.Compartment
	Mappings    []RealTimeMapping
	Mapping     RealTimeMapping
	// ControlEnabled maps ids to their new control flag
	ControlEnabled map[mapping.ID]bool
	SampleRate     float64
	Learning       bool
}

// Channels connects session, main processor and real-time processor
type Channels struct {
	Normal    chan NormalTask
	Parameter chan ParameterTask
	Control   chan ControlTask
	Feedback  chan FeedbackTask
	RealTime  chan RealTimeTask
}

// NewChannels creates the channels with the configured capacities
func NewChannels(cfg config.ProcessorConfig) Channels {
	return Channels{
		Normal:    make(chan NormalTask, 1000),
		Parameter: make(chan ParameterTask, 1000),
		Control:   make(chan ControlTask, max(cfg.ControlQueueSize, 1)),
		Feedback:  make(chan FeedbackTask, max(cfg.FeedbackQueueSize, 1)),
		RealTime:  make(chan RealTimeTask, 1000),
	}
}

func trySend[T any](ch chan T, v T) error {
	select {
	case ch <- v:
		return nil
	default:
		return ErrQueueFull
	}
}

// SendNormal queues a structural task without blocking
func (c Channels) SendNormal(t NormalTask) error {
	return errors.Wrap(trySend(c.Normal, t), "normal")
}

// SendParameter queues a parameter task without blocking
func (c Channels) SendParameter(t ParameterTask) error {
	return errors.Wrap(trySend(c.Parameter, t), "parameter")
}

// SendFeedback queues a feedback task without blocking
func (c Channels) SendFeedback(t FeedbackTask) error {
	return errors.Wrap(trySend(c.Feedback, t), "feedback")
}

// SendChange forwards a host or clip change as a feedback task
func (c Channels) SendChange(ev target.ChangeEvent) error {
	return c.SendFeedback(FeedbackTask{Kind: TargetChanged, Change: ev})
}
