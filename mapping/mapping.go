// Package mapping holds the mapping model: mappings, groups, compartment
// parameters and activation conditions. The session owns one Compartment per
// compartment kind and is the only writer.
package mapping

import (
	"slices"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"go-surface/mode"
	"go-surface/source"
	"go-surface/target"
)

var (
	ErrMappingNotFound         = errors.New("mapping not found")
	ErrGroupNotFound           = errors.New("group not found")
	ErrDefaultGroupUndeletable = errors.New("default group can't be deleted")
	ErrDuplicateKey            = errors.New("mapping key already used in compartment")
	ErrParamOutOfRange         = errors.New("parameter index out of range")
)

// Compartment is one of the two partitions of a mapping set
type Compartment uint8

const (
	// Controller mappings translate hardware into virtual elements
	Controller Compartment = iota
	// Main mappings control targets
	Main
)

// Compartments lists both compartments
var Compartments = [...]Compartment{Controller, Main}

func (c Compartment) String() string {
	if c == Controller {
		return "controller"
	}
	return "main"
}

// ParseCompartment accepts "controller" and "main"
func ParseCompartment(s string) (Compartment, bool) {
	switch s {
	case "controller":
		return Controller, true
	case "main":
		return Main, true
	}
	return Main, false
}

// ID identifies a mapping within its compartment
type ID uint32

// GroupID identifies a group within its compartment
type GroupID uint32

// DefaultGroupID is the group every compartment has
const DefaultGroupID GroupID = 0

// QualifiedID identifies a mapping across compartments
type QualifiedID struct {
	Compartment Compartment
	ID          ID
}

// Mapping binds a source, a mode and a target
type Mapping struct {
	ID              ID
	Key             string
	Name            string
	Compartment     Compartment
	Group           GroupID
	Source          source.Source
	Mode            mode.Settings
	Target          target.Descriptor
	Enabled         bool
	ControlEnabled  bool
	FeedbackEnabled bool
	Activation      Condition
	Tags            []string

	// PreventEchoFeedback drops feedback that arrives right after this
	// mapping controlled its target
	PreventEchoFeedback bool
	// SendFeedbackAfterControl sends feedback after every control, for
	// targets that don't report their own changes
	SendFeedbackAfterControl bool
}

// New creates an enabled mapping with a fresh key and identity mode
func New(c Compartment) Mapping {
	return Mapping{
		Key:             NewKey(),
		Compartment:     c,
		Group:           DefaultGroupID,
		Mode:            mode.DefaultSettings(),
		Enabled:         true,
		ControlEnabled:  true,
		FeedbackEnabled: true,
	}
}

// NewKey returns a random stable key
func NewKey() string {
	return uuid.NewString()
}

func (m Mapping) QualifiedID() QualifiedID {
	return QualifiedID{Compartment: m.Compartment, ID: m.ID}
}

// Clone copies the mapping including its slices
func (m Mapping) Clone() Mapping {
	m.Tags = slices.Clone(m.Tags)
	m.Activation = m.Activation.Clone()
	return m
}

// HasTag reports whether the mapping carries tag
func (m Mapping) HasTag(tag string) bool {
	return slices.Contains(m.Tags, tag)
}

// Group is a named collection of mappings that share activation and
// enable flags
type Group struct {
	ID              GroupID
	Key             string
	Name            string
	ControlEnabled  bool
	FeedbackEnabled bool
	Activation      Condition
	Tags            []string
}

// NewGroup creates an enabled group with a fresh key
func NewGroup(name string) Group {
	return Group{
		Key:             NewKey(),
		Name:            name,
		ControlEnabled:  true,
		FeedbackEnabled: true,
	}
}

func defaultGroup() Group {
	return Group{ID: DefaultGroupID, Key: "default", Name: "<Default>", ControlEnabled: true, FeedbackEnabled: true}
}

func (g Group) Clone() Group {
	g.Tags = slices.Clone(g.Tags)
	g.Activation = g.Activation.Clone()
	return g
}
