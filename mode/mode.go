// Package mode transforms source control values into target values and target
// values back into feedback values.
package mode

import (
	"math"
	"time"

	"github.com/pkg/errors"

	"go-surface/control"
	"go-surface/expr"
)

var (
	ErrControlExpression  = errors.New("invalid control expression")
	ErrFeedbackExpression = errors.New("invalid feedback expression")
)

// Context describes the target a control value is headed to
type Context struct {
	Current    control.AbsoluteValue
	HasCurrent bool
	Type       control.Type
}

// Mode is the per-mapping transformer. It owns throttling and takeover state
// and must not be shared between mappings.
type Mode struct {
	settings     Settings
	controlExpr  *expr.Expr
	feedbackExpr *expr.Expr

	prevMapped  control.UnitValue
	hasPrev     bool
	lastControl time.Time
}

// New creates a mode, compiling its expressions
func New(s Settings) (*Mode, error) {
	m := &Mode{settings: s}
	if s.ControlExpression != "" {
		e, err := expr.Compile(s.ControlExpression)
		if err != nil {
			return nil, errors.Wrapf(ErrControlExpression, "%q: %v", s.ControlExpression, err)
		}
		m.controlExpr = e
	}
	if s.FeedbackExpression != "" {
		e, err := expr.Compile(s.FeedbackExpression)
		if err != nil {
			return nil, errors.Wrapf(ErrFeedbackExpression, "%q: %v", s.FeedbackExpression, err)
		}
		m.feedbackExpr = e
	}
	return m, nil
}

// Identity returns a mode with default settings
func Identity() *Mode {
	m, _ := New(DefaultSettings())
	return m
}

func (m *Mode) Settings() Settings {
	return m.settings
}

// Retrigger reports whether hitting with an unchanged value should still hit
func (m *Mode) Retrigger() bool {
	return m.settings.Retrigger
}

// Reset forgets takeover and throttling state (e.g. after the target changed)
func (m *Mode) Reset() {
	m.hasPrev = false
	m.prevMapped = 0
	m.lastControl = time.Time{}
}

// Control transforms a source value into a target value. It returns false if
// the value should not reach the target.
func (m *Mode) Control(v control.Value, ctx Context, now time.Time) (control.AbsoluteValue, bool) {
	if v.IsRelativeZero() {
		return control.AbsoluteValue{}, false
	}
	if !v.IsRelative() && !m.passesButtonFilter(v) {
		return control.AbsoluteValue{}, false
	}
	if m.throttled(now) {
		return control.AbsoluteValue{}, false
	}

	var out control.AbsoluteValue
	var ok bool
	if v.IsRelative() {
		out, ok = m.controlRelative(v.Increment, ctx)
	} else {
		u, _ := v.ToUnit()
		switch m.settings.Absolute {
		case IncrementalButton:
			if u.IsZero() {
				return control.AbsoluteValue{}, false
			}
			out, ok = m.controlRelative(1, ctx)
		case ToggleButton:
			if u.IsZero() {
				return control.AbsoluteValue{}, false
			}
			out, ok = m.toggle(ctx), true
		default:
			out, ok = m.controlAbsolute(u, ctx)
		}
	}

	if ok {
		m.lastControl = now
	}
	return out, ok
}

func (m *Mode) passesButtonFilter(v control.Value) bool {
	u, _ := v.ToUnit()
	switch m.settings.ButtonFilter {
	case PressOnly:
		return !u.IsZero()
	case ReleaseOnly:
		return u.IsZero()
	}
	return true
}

func (m *Mode) throttled(now time.Time) bool {
	interval := m.settings.MinControlInterval
	if interval <= 0 || m.lastControl.IsZero() {
		return false
	}
	return now.Sub(m.lastControl) < interval
}

func (m *Mode) controlAbsolute(u control.UnitValue, ctx Context) (control.AbsoluteValue, bool) {
	s := m.settings
	if !s.SourceInterval.Contains(u) {
		switch s.OutOfRange {
		case Ignore:
			return control.AbsoluteValue{}, false
		case Min:
			u = s.SourceInterval.Min
		default:
			u = s.SourceInterval.Clamp(u)
		}
	}

	n := u.MapFromInterval(s.SourceInterval)
	if m.controlExpr != nil {
		vars := expr.Map{"x": n.Get(), "y": m.currentNormalized(ctx).Get()}
		n = control.NewUnitValue(m.controlExpr.Eval(vars))
	}
	if s.Reverse {
		n = n.Inverse()
	}

	mapped := n.MapToInterval(s.TargetInterval)
	if s.Round && ctx.Type.StepSize > 0 {
		mapped = s.TargetInterval.Clamp(mapped.SnapToGrid(ctx.Type.StepSize))
	}

	final, ok := m.takeover(mapped, ctx)
	m.prevMapped = mapped
	m.hasPrev = true
	if !ok {
		return control.AbsoluteValue{}, false
	}
	return output(final, ctx), true
}

func (m *Mode) currentNormalized(ctx Context) control.UnitValue {
	if !ctx.HasCurrent {
		return control.MinUnit
	}
	return ctx.Current.ToUnit().MapFromInterval(m.settings.TargetInterval)
}

// takeover prevents parameter jumps when the source is far from the target value
func (m *Mode) takeover(mapped control.UnitValue, ctx Context) (control.UnitValue, bool) {
	s := m.settings
	if s.Takeover == TakeoverOff || !ctx.HasCurrent {
		return mapped, true
	}
	cur := ctx.Current.ToUnit()
	tolerance := float64(s.JumpMax)
	if tolerance <= 0 || tolerance >= 1 {
		tolerance = defaultTakeoverTolerance
	}
	diff := float64(mapped) - float64(cur)
	if math.Abs(diff) <= tolerance {
		return mapped, true
	}

	switch s.Takeover {
	case PickUp:
		// take over once the source crossed the target value
		if m.hasPrev && (float64(m.prevMapped)-float64(cur))*diff <= 0 {
			return mapped, true
		}
		return 0, false

	case LongTimeNoSee:
		step := math.Copysign(tolerance, diff)
		return s.TargetInterval.Clamp(control.NewUnitValue(float64(cur) + step)), true

	case Parallel:
		if !m.hasPrev {
			return 0, false
		}
		delta := float64(mapped) - float64(m.prevMapped)
		if delta == 0 {
			return 0, false
		}
		return s.TargetInterval.Clamp(control.NewUnitValue(float64(cur) + delta)), true

	case CatchUp:
		if !m.hasPrev {
			return 0, false
		}
		prev := float64(m.prevMapped)
		delta := float64(mapped) - prev
		if delta == 0 {
			return 0, false
		}
		// scale so that source and target meet at the edge in direction of travel
		var ratio float64
		if delta > 0 {
			room := float64(s.TargetInterval.Max) - prev
			if room <= 0 {
				return 0, false
			}
			ratio = (float64(s.TargetInterval.Max) - float64(cur)) / room
		} else {
			room := prev - float64(s.TargetInterval.Min)
			if room <= 0 {
				return 0, false
			}
			ratio = (float64(cur) - float64(s.TargetInterval.Min)) / room
		}
		if ratio < 0 {
			ratio = 0
		}
		return s.TargetInterval.Clamp(control.NewUnitValue(float64(cur) + delta*ratio)), true
	}
	return mapped, true
}

func (m *Mode) controlRelative(inc int32, ctx Context) (control.AbsoluteValue, bool) {
	s := m.settings
	if s.Reverse {
		inc = -inc
	}
	if inc == 0 {
		return control.AbsoluteValue{}, false
	}

	cur := s.TargetInterval.Min
	if ctx.HasCurrent {
		cur = ctx.Current.ToUnit()
	}

	if n, ok := ctx.Type.DiscreteMax(); ok {
		curFrac := control.FractionFromUnit(cur, n)
		if f, ok := ctx.Current.Fraction(); ok && ctx.HasCurrent && f.Max == n {
			curFrac = f
		}
		lo := int64(math.Round(float64(s.TargetInterval.Min) * float64(n)))
		hi := int64(math.Round(float64(s.TargetInterval.Max) * float64(n)))
		next := int64(curFrac.Actual) + int64(m.stepCount(inc))
		switch {
		case next > hi:
			if s.Rotate && int64(curFrac.Actual) >= hi {
				next = lo
			} else {
				next = hi
			}
		case next < lo:
			if s.Rotate && int64(curFrac.Actual) <= lo {
				next = hi
			} else {
				next = lo
			}
		}
		return control.Discrete(control.Fraction{Actual: uint32(next), Max: n}), true
	}

	next := float64(cur) + m.stepSize(inc)
	min, max := float64(s.TargetInterval.Min), float64(s.TargetInterval.Max)
	switch {
	case next > max:
		if s.Rotate && float64(cur) >= max-control.Epsilon {
			next = min
		} else {
			next = max
		}
	case next < min:
		if s.Rotate && float64(cur) <= min+control.Epsilon {
			next = max
		} else {
			next = min
		}
	}
	return control.Continuous(control.NewUnitValue(next)), true
}

// stepCount applies acceleration for discrete targets
func (m *Mode) stepCount(inc int32) int32 {
	f := m.settings.StepFactorInterval
	lo, hi := f.Min, f.Max
	if lo < 1 {
		lo = 1
	}
	if hi < lo {
		hi = lo
	}
	n := inc
	if n < 0 {
		n = -n
	}
	if n < lo {
		n = lo
	}
	if n > hi {
		n = hi
	}
	if inc < 0 {
		return -n
	}
	return n
}

// stepSize applies acceleration for continuous targets
func (m *Mode) stepSize(inc int32) float64 {
	i := m.settings.StepSizeInterval
	base := float64(i.Min)
	if base <= 0 {
		base = float64(DefaultStepSize)
	}
	size := base * math.Abs(float64(inc))
	if i.Max > 0 && size > float64(i.Max) {
		size = float64(i.Max)
	}
	if size < base {
		size = base
	}
	return math.Copysign(size, float64(inc))
}

func (m *Mode) toggle(ctx Context) control.AbsoluteValue {
	s := m.settings
	cur := s.TargetInterval.Min
	if ctx.HasCurrent {
		cur = ctx.Current.ToUnit()
	}
	mid := (float64(s.TargetInterval.Min) + float64(s.TargetInterval.Max)) / 2
	if float64(cur) > mid {
		return output(s.TargetInterval.Min, ctx)
	}
	return output(s.TargetInterval.Max, ctx)
}

func output(u control.UnitValue, ctx Context) control.AbsoluteValue {
	if n, ok := ctx.Type.DiscreteMax(); ok {
		return control.Discrete(control.FractionFromUnit(u, n))
	}
	return control.Continuous(u)
}

// Feedback maps a target value back to a source value
func (m *Mode) Feedback(u control.UnitValue) (control.UnitValue, bool) {
	s := m.settings
	if !s.TargetInterval.Contains(u) {
		switch s.OutOfRange {
		case Ignore:
			return 0, false
		case Min:
			u = s.TargetInterval.Min
		default:
			u = s.TargetInterval.Clamp(u)
		}
	}
	n := u.MapFromInterval(s.TargetInterval)
	if s.Reverse {
		n = n.Inverse()
	}
	if m.feedbackExpr != nil {
		n = control.NewUnitValue(m.feedbackExpr.Eval(expr.Map{"x": n.Get()}))
	}
	return n.MapToInterval(s.SourceInterval), true
}
