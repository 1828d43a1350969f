package processor

import (
	"github.com/hypebeast/go-osc/osc"

	"go-surface/control"
	"go-surface/mapping"
	"go-surface/midi"
	"go-surface/source"
)

// LifecycleState is the runtime state of a mapping in the main processor
type LifecycleState uint8

const (
	// Unresolved mappings are switched on but their target can't be resolved
	Unresolved LifecycleState = iota
	// Active mappings receive control and send feedback
	Active
	// Inactive mappings are disabled or their activation condition is false
	Inactive
)

func (s LifecycleState) String() string {
	switch s {
	case Active:
		return "active"
	case Inactive:
		return "inactive"
	}
	return "unresolved"
}

// DomainEventKind identifies a DomainEvent
type DomainEventKind uint8

const (
	// MappingMatched is sent whenever a source value reached a mapping
	MappingMatched DomainEventKind = iota
	// TargetValueChanged is sent after a hit changed the target
	TargetValueChanged
	// MappingEnabledChangeRequested asks the session to persist an enable
	// flag changed by a target such as EnableMappings
	MappingEnabledChangeRequested
	// UpdatedOnMappings carries the set of mappings that are currently on
	UpdatedOnMappings
	// ProjectionFeedback mirrors feedback for displays
	ProjectionFeedback
	// LearnedSource carries a message captured while learning
	LearnedSource
	// ControlFailed reports a failed hit
	ControlFailed
)

var domainEventNames = [...]string{
	"MappingMatched", "TargetValueChanged", "MappingEnabledChangeRequested",
	"UpdatedOnMappings", "ProjectionFeedback", "LearnedSource", "ControlFailed",
}

func (k DomainEventKind) String() string {
	if int(k) < len(domainEventNames) {
		return domainEventNames[k]
	}
	return "Unknown"
}

// DomainEvent is published by the main processor on its event bus
type DomainEvent struct {
	Kind        DomainEventKind
	Compartment mapping.Compartment
	ID          mapping.ID
	Enabled     bool
	Value       control.AbsoluteValue
	OnMappings  []mapping.QualifiedID
	Feedback    source.FeedbackValue
	Learned     midi.ShortMessage
	LearnedOsc  *osc.Message
	Err         error
}
