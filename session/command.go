package session

import (
	"slices"

	"go-surface/mapping"
	"go-surface/mode"
	"go-surface/source"
	"go-surface/target"
)

// MappingCommand is one change to a mapping. Commands are the only way the
// session lets callers modify a stored mapping.
type MappingCommand interface {
	apply(m *mapping.Mapping)
}

type SetName struct{ Name string }
type SetSource struct{ Source source.Source }
type SetMode struct{ Mode mode.Settings }
type SetTarget struct{ Target target.Descriptor }
type SetGroup struct{ Group mapping.GroupID }
type SetEnabled struct{ On bool }
type SetControlEnabled struct{ On bool }
type SetFeedbackEnabled struct{ On bool }
type SetActivation struct{ Condition mapping.Condition }
type SetTags struct{ Tags []string }
type SetPreventEchoFeedback struct{ On bool }
type SetSendFeedbackAfterControl struct{ On bool }

func (c SetName) apply(m *mapping.Mapping)                { m.Name = c.Name }
func (c SetSource) apply(m *mapping.Mapping)              { m.Source = c.Source }
func (c SetMode) apply(m *mapping.Mapping)                { m.Mode = c.Mode }
func (c SetTarget) apply(m *mapping.Mapping)              { m.Target = c.Target }
func (c SetGroup) apply(m *mapping.Mapping)               { m.Group = c.Group }
func (c SetEnabled) apply(m *mapping.Mapping)             { m.Enabled = c.On }
func (c SetControlEnabled) apply(m *mapping.Mapping)      { m.ControlEnabled = c.On }
func (c SetFeedbackEnabled) apply(m *mapping.Mapping)     { m.FeedbackEnabled = c.On }
func (c SetActivation) apply(m *mapping.Mapping)          { m.Activation = c.Condition.Clone() }
func (c SetTags) apply(m *mapping.Mapping)                { m.Tags = slices.Clone(c.Tags) }
func (c SetPreventEchoFeedback) apply(m *mapping.Mapping) { m.PreventEchoFeedback = c.On }
func (c SetSendFeedbackAfterControl) apply(m *mapping.Mapping) {
	m.SendFeedbackAfterControl = c.On
}
