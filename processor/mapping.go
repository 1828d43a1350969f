package processor

import (
	"slices"
	"time"

	"go-surface/control"
	"go-surface/mapping"
	"go-surface/mode"
	"go-surface/source"
	"go-surface/target"
)

// MainMapping is the main processor's copy of a mapping, with its mode
// instance and resolved target
type MainMapping struct {
	ID          mapping.ID
	Key         string
	Name        string
	Compartment mapping.Compartment
	GroupKey    string
	Tags        []string
	Source      source.Source
	Target      target.Descriptor

	Enabled         bool
	ControlEnabled  bool // mapping and group
	FeedbackEnabled bool // mapping and group
	Activation      mapping.Condition
	GroupActivation mapping.Condition

	PreventEchoFeedback      bool
	SendFeedbackAfterControl bool

	mode     *mode.Mode
	modeErr  error
	target   target.Target
	err      error
	byParams bool

	lastControl time.Time
	initial     control.AbsoluteValue
	hasInitial  bool
}

// NewMainMapping derives the processor copy of mp as a member of g
func NewMainMapping(mp mapping.Mapping, g mapping.Group) *MainMapping {
	m := &MainMapping{
		ID:                       mp.ID,
		Key:                      mp.Key,
		Name:                     mp.Name,
		Compartment:              mp.Compartment,
		GroupKey:                 g.Key,
		Tags:                     slices.Clone(mp.Tags),
		Source:                   mp.Source,
		Target:                   mp.Target,
		Enabled:                  mp.Enabled,
		ControlEnabled:           mp.ControlEnabled && g.ControlEnabled,
		FeedbackEnabled:          mp.FeedbackEnabled && g.FeedbackEnabled,
		Activation:               mp.Activation.Clone(),
		GroupActivation:          g.Activation.Clone(),
		PreventEchoFeedback:      mp.PreventEchoFeedback,
		SendFeedbackAfterControl: mp.SendFeedbackAfterControl,
		byParams:                 true,
	}
	m.mode, m.modeErr = mode.New(mp.Mode)
	return m
}

// Mode returns the mode instance, nil if the settings are invalid
func (m *MainMapping) Mode() *mode.Mode { return m.mode }

// Err is the reason the mapping is not active, if any
func (m *MainMapping) Err() error {
	if m.modeErr != nil {
		return m.modeErr
	}
	return m.err
}

// ResolvedTarget returns the live target, nil if unresolved
func (m *MainMapping) ResolvedTarget() target.Target { return m.target }

func (m *MainMapping) refreshAll(ctx target.Context, params *mapping.Params) {
	m.refreshActivation(params)
	m.refreshTarget(ctx)
}

// refreshActivation reports whether the activation changed
func (m *MainMapping) refreshActivation(params *mapping.Params) bool {
	next := m.activationFor(params)
	changed := next != m.byParams
	m.byParams = next
	return changed
}

func (m *MainMapping) activationFor(params *mapping.Params) bool {
	return m.Activation.IsFulfilled(params) && m.GroupActivation.IsFulfilled(params)
}

func (m *MainMapping) usesParam(i int) bool {
	return m.Activation.Uses(i) || m.GroupActivation.Uses(i)
}

// refreshTarget resolves the target and reports whether it is available
func (m *MainMapping) refreshTarget(ctx target.Context) bool {
	if m.Target == nil {
		m.target, m.err = nil, target.ErrTargetUnavailable
		return false
	}
	prevKind := target.Kind("")
	if m.target != nil {
		prevKind = m.target.Kind()
	}
	m.target, m.err = target.Resolve(m.Target, ctx)
	if m.target == nil {
		return false
	}
	if m.mode != nil && prevKind != "" && prevKind != m.target.Kind() {
		m.mode.Reset()
	}
	if !m.hasInitial {
		m.initial, m.hasInitial = m.target.CurrentValue()
	}
	return true
}

func (m *MainMapping) needsRefreshWhenTouched() bool {
	return m.Target != nil && m.Target.Kind() == target.KindLastTouched
}

// Lifecycle derives the runtime state
func (m *MainMapping) Lifecycle() LifecycleState {
	switch {
	case !m.Enabled || !m.byParams || m.modeErr != nil:
		return Inactive
	case m.target == nil:
		return Unresolved
	}
	return Active
}

func (m *MainMapping) isActive() bool { return m.Lifecycle() == Active }

func (m *MainMapping) controlIsEffectivelyOn() bool {
	return m.ControlEnabled && m.isActive()
}

func (m *MainMapping) feedbackIsEffectivelyOn() bool {
	return m.FeedbackEnabled && m.isActive()
}

func (m *MainMapping) isEffectivelyOn() bool {
	return m.controlIsEffectivelyOn() || m.feedbackIsEffectivelyOn()
}

// realTime splits off the copy for the real-time processor. Only MIDI
// sources are matched on the audio path.
func (m *MainMapping) realTime() (RealTimeMapping, bool) {
	if m.Source.Category != source.CategoryMidi {
		return RealTimeMapping{}, false
	}
	return RealTimeMapping{
		ID:             m.ID,
		Compartment:    m.Compartment,
		Source:         m.Source.Midi,
		ControlEnabled: m.controlIsEffectivelyOn(),
	}, true
}

// control applies the mode and hits the target. ok is false if the mode
// swallowed the value.
func (m *MainMapping) control(v control.Value, ctx target.HitContext, trackEcho bool) (resp target.HitResponse, hit control.AbsoluteValue, ok bool, err error) {
	t := m.target
	mctx := mode.Context{Type: t.ControlType()}
	mctx.Current, mctx.HasCurrent = t.CurrentValue()
	if mctx.Type.IsVirtual() && v.IsRelative() {
		// increments pass through virtual elements unchanged
		resp, err = t.Hit(v, ctx)
		return resp, control.AbsoluteValue{}, true, err
	}
	out, ok := m.mode.Control(v, mctx, ctx.Now)
	if !ok {
		return target.HitResponse{}, out, false, nil
	}
	if !m.mode.Retrigger() && !mctx.Type.Retriggerable && mctx.HasCurrent && sameValue(out, mctx.Current) {
		return target.HitResponse{Kind: target.Ignored}, out, true, nil
	}
	if trackEcho {
		m.lastControl = ctx.Now
	}
	resp, err = t.Hit(control.FromAbsolute(out), ctx)
	return resp, out, true, err
}

func sameValue(a, b control.AbsoluteValue) bool {
	fa, da := a.Fraction()
	fb, db := b.Fraction()
	if da && db {
		return fa == fb
	}
	return a.ToUnit().ApproxEqual(b.ToUnit())
}

// feedback computes the feedback for the current target value. Feedback
// right after a control of this mapping is suppressed if echo prevention is
// on.
func (m *MainMapping) feedback(now time.Time, echoWindow time.Duration) (source.FeedbackValue, bool) {
	if !m.feedbackIsEffectivelyOn() {
		return source.FeedbackValue{}, false
	}
	if m.PreventEchoFeedback && !m.lastControl.IsZero() && now.Sub(m.lastControl) <= echoWindow {
		return source.FeedbackValue{}, false
	}
	return m.feedbackFor(m.target)
}

func (m *MainMapping) feedbackFor(t target.Target) (source.FeedbackValue, bool) {
	cur, ok := t.CurrentValue()
	if !ok {
		return source.FeedbackValue{}, false
	}
	u, ok := m.mode.Feedback(cur.ToUnit())
	if !ok {
		return source.FeedbackValue{}, false
	}
	return m.Source.Feedback(u)
}

// feedbackFromValue maps an incoming virtual feedback value through this
// mapping's mode onto its source
func (m *MainMapping) feedbackFromValue(u control.UnitValue) (source.FeedbackValue, bool) {
	if !m.feedbackIsEffectivelyOn() {
		return source.FeedbackValue{}, false
	}
	fu, ok := m.mode.Feedback(u)
	if !ok {
		return source.FeedbackValue{}, false
	}
	return m.Source.Feedback(fu)
}

// virtualElement returns the element if this mapping targets a virtual element
func (m *MainMapping) virtualElement() (source.Element, bool) {
	v, ok := m.Target.(target.Virtual)
	if !ok {
		return source.Element{}, false
	}
	return v.Element, true
}
