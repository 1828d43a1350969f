package mode

import (
	"math"
	"testing"
	"time"

	"go-surface/control"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func continuousCtx(cur float64) Context {
	return Context{Current: control.Continuous(control.UnitValue(cur)), HasCurrent: true, Type: control.ContinuousType()}
}

func TestFeedbackControlRoundTrip(t *testing.T) {
	m := Identity()
	for i := 0; i <= 20; i++ {
		cur := control.UnitValue(float64(i) / 20)
		fb, ok := m.Feedback(cur)
		if !ok {
			t.Fatalf("Expected feedback for %v", cur)
		}
		out, ok := m.Control(control.AbsoluteContinuous(fb), continuousCtx(float64(cur)), t0)
		if !ok {
			t.Fatalf("Expected control for %v", fb)
		}
		if !out.ToUnit().ApproxEqual(cur) {
			t.Errorf("Expected round trip to %v, got %v", cur, out)
		}
	}
}

func TestRangeAndReverse(t *testing.T) {
	s := DefaultSettings()
	s.SourceInterval = control.NewInterval(0.2, 0.8)
	s.TargetInterval = control.NewInterval(0.5, 1)
	s.Reverse = true
	m, err := New(s)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	tests := []struct {
		in   float64
		want float64
	}{
		{0.2, 1},
		{0.8, 0.5},
		{0.5, 0.75},
		{0.0, 1}, // MinOrMax clamps to source min
	}
	for _, tt := range tests {
		out, ok := m.Control(control.AbsoluteContinuous(control.UnitValue(tt.in)), Context{Type: control.ContinuousType()}, t0)
		if !ok {
			t.Errorf("%v: expected control", tt.in)
			continue
		}
		if math.Abs(out.ToUnit().Get()-tt.want) > 1e-9 {
			t.Errorf("%v: expected %v, got %v", tt.in, tt.want, out)
		}
	}

	fb, _ := m.Feedback(0.75)
	if !fb.ApproxEqual(0.5) {
		t.Errorf("Expected feedback 0.5, got %v", fb)
	}
}

func TestOutOfRangeIgnore(t *testing.T) {
	s := DefaultSettings()
	s.SourceInterval = control.NewInterval(0.2, 0.8)
	s.OutOfRange = Ignore
	m, _ := New(s)
	if _, ok := m.Control(control.AbsoluteContinuous(0.9), Context{}, t0); ok {
		t.Error("Expected out-of-range value to be ignored")
	}
	if _, ok := m.Feedback(0.9); !ok {
		t.Error("Expected feedback inside the full target interval")
	}
}

func TestRelativeContinuous(t *testing.T) {
	tests := []struct {
		name   string
		rotate bool
		cur    float64
		inc    int32
		want   float64
	}{
		{"up", false, 0.5, 1, 0.51},
		{"down", false, 0.5, -1, 0.49},
		{"accelerated", false, 0.5, 3, 0.53},
		{"acceleration capped", false, 0.5, 20, 0.55},
		{"clamp at max", false, 1, 1, 1},
		{"rotate at max", true, 1, 1, 0},
		{"rotate at min", true, 0, -1, 1},
	}
	for _, tt := range tests {
		s := DefaultSettings()
		s.Rotate = tt.rotate
		m, _ := New(s)
		out, ok := m.Control(control.Relative(tt.inc), continuousCtx(tt.cur), t0)
		if !ok {
			t.Errorf("%s: expected control", tt.name)
			continue
		}
		if math.Abs(out.ToUnit().Get()-tt.want) > 1e-9 {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, out)
		}
	}
}

func TestRelativeDiscrete(t *testing.T) {
	m := Identity()
	ctx := Context{
		Current:    control.Discrete(control.Fraction{Actual: 3, Max: 10}),
		HasCurrent: true,
		Type:       control.DiscreteType(11),
	}
	out, ok := m.Control(control.Relative(-1), ctx, t0)
	if !ok {
		t.Fatal("Expected control")
	}
	f, isDiscrete := out.Fraction()
	if !isDiscrete || f.Actual != 2 || f.Max != 10 {
		t.Errorf("Expected 2/10, got %v", out)
	}
}

func TestRelativeZeroIsIgnored(t *testing.T) {
	m := Identity()
	if _, ok := m.Control(control.Relative(0), continuousCtx(0.5), t0); ok {
		t.Error("Expected relative zero not to reach the target")
	}
}

func TestToggleButton(t *testing.T) {
	s := DefaultSettings()
	s.Absolute = ToggleButton
	m, _ := New(s)

	out, ok := m.Control(control.AbsoluteContinuous(1), continuousCtx(0), t0)
	if !ok || !out.ToUnit().IsOne() {
		t.Errorf("Expected toggle on, got %v %v", ok, out)
	}
	out, ok = m.Control(control.AbsoluteContinuous(1), continuousCtx(1), t0)
	if !ok || !out.ToUnit().IsZero() {
		t.Errorf("Expected toggle off, got %v %v", ok, out)
	}
	if _, ok := m.Control(control.AbsoluteContinuous(0), continuousCtx(1), t0); ok {
		t.Error("Expected release to be ignored")
	}
}

func TestIncrementalButton(t *testing.T) {
	s := DefaultSettings()
	s.Absolute = IncrementalButton
	m, _ := New(s)
	out, ok := m.Control(control.AbsoluteContinuous(1), continuousCtx(0.2), t0)
	if !ok || !out.ToUnit().ApproxEqual(0.21) {
		t.Errorf("Expected 0.21, got %v %v", ok, out)
	}
}

func TestButtonFilter(t *testing.T) {
	s := DefaultSettings()
	s.ButtonFilter = PressOnly
	m, _ := New(s)
	if _, ok := m.Control(control.AbsoluteContinuous(0), continuousCtx(0.5), t0); ok {
		t.Error("Expected release to be filtered")
	}
	if _, ok := m.Control(control.AbsoluteContinuous(1), continuousCtx(0.5), t0); !ok {
		t.Error("Expected press to pass")
	}
}

func TestMinControlInterval(t *testing.T) {
	s := DefaultSettings()
	s.MinControlInterval = 50 * time.Millisecond
	m, _ := New(s)

	if _, ok := m.Control(control.AbsoluteContinuous(0.1), Context{}, t0); !ok {
		t.Fatal("Expected first control to pass")
	}
	if _, ok := m.Control(control.AbsoluteContinuous(0.2), Context{}, t0.Add(10*time.Millisecond)); ok {
		t.Error("Expected control inside the interval to be dropped")
	}
	if _, ok := m.Control(control.AbsoluteContinuous(0.3), Context{}, t0.Add(60*time.Millisecond)); !ok {
		t.Error("Expected control after the interval to pass")
	}
}

func TestTakeoverPickUp(t *testing.T) {
	s := DefaultSettings()
	s.Takeover = PickUp
	m, _ := New(s)
	ctx := continuousCtx(0.5)

	if _, ok := m.Control(control.AbsoluteContinuous(0.1), ctx, t0); ok {
		t.Error("Expected far away value to be ignored")
	}
	if _, ok := m.Control(control.AbsoluteContinuous(0.3), ctx, t0); ok {
		t.Error("Expected value still below the target to be ignored")
	}
	out, ok := m.Control(control.AbsoluteContinuous(0.7), ctx, t0)
	if !ok || !out.ToUnit().ApproxEqual(0.7) {
		t.Errorf("Expected pick up after crossing, got %v %v", ok, out)
	}
}

func TestTakeoverParallel(t *testing.T) {
	s := DefaultSettings()
	s.Takeover = Parallel
	m, _ := New(s)

	m.Control(control.AbsoluteContinuous(0.1), continuousCtx(0.8), t0)
	out, ok := m.Control(control.AbsoluteContinuous(0.2), continuousCtx(0.8), t0)
	if !ok || math.Abs(out.ToUnit().Get()-0.9) > 1e-9 {
		t.Errorf("Expected parallel move to 0.9, got %v %v", ok, out)
	}
}

func TestTakeoverCatchUp(t *testing.T) {
	s := DefaultSettings()
	s.Takeover = CatchUp
	m, _ := New(s)

	// source moves 0.2 -> 0.4 with 0.8 room left, target at 0.7 has 0.3 left
	m.Control(control.AbsoluteContinuous(0.2), continuousCtx(0.7), t0)
	out, ok := m.Control(control.AbsoluteContinuous(0.4), continuousCtx(0.7), t0)
	if !ok || math.Abs(out.ToUnit().Get()-0.775) > 1e-9 {
		t.Errorf("Expected catch up to 0.775, got %v %v", ok, out)
	}
}

func TestExpressions(t *testing.T) {
	s := DefaultSettings()
	s.ControlExpression = "y = x * x"
	s.FeedbackExpression = "sqrt(x)"
	m, err := New(s)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	out, _ := m.Control(control.AbsoluteContinuous(0.5), Context{}, t0)
	if !out.ToUnit().ApproxEqual(0.25) {
		t.Errorf("Expected 0.25, got %v", out)
	}
	fb, _ := m.Feedback(0.25)
	if !fb.ApproxEqual(0.5) {
		t.Errorf("Expected 0.5, got %v", fb)
	}

	s.ControlExpression = "x +"
	if _, err := New(s); err == nil {
		t.Error("Expected invalid expression to fail")
	}
}

func TestAccelerationStepSize(t *testing.T) {
	tests := []struct {
		name string
		min  float64
		max  float64
		inc  int32
		want float64
	}{
		{"one tick uses min", 0.02, 0.1, 1, 0.52},
		{"scaled", 0.02, 0.1, 3, 0.56},
		{"clamped to max", 0.02, 0.1, 10, 0.6},
		{"clamped down", 0.02, 0.1, -10, 0.4},
		{"no max", 0.02, 0, 10, 0.7},
	}
	for _, tt := range tests {
		s := DefaultSettings()
		s.StepSizeInterval = control.Interval{Min: control.UnitValue(tt.min), Max: control.UnitValue(tt.max)}
		m, _ := New(s)
		out, ok := m.Control(control.Relative(tt.inc), continuousCtx(0.5), t0)
		if !ok {
			t.Errorf("%s: expected control", tt.name)
			continue
		}
		if math.Abs(out.ToUnit().Get()-tt.want) > 1e-9 {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, out)
		}
	}
}

func TestRelativeDiscreteSteps(t *testing.T) {
	tests := []struct {
		name    string
		factors StepFactors
		rotate  bool
		cur     uint32
		inc     int32
		want    uint32
	}{
		{"factor min raises small increments", StepFactors{Min: 2, Max: 4}, false, 5, 1, 7},
		{"factor max caps large increments", StepFactors{Min: 2, Max: 4}, false, 5, 10, 9},
		{"factor max caps large decrements", StepFactors{Min: 2, Max: 4}, false, 5, -10, 1},
		{"clamp at max", StepFactors{Min: 1, Max: 5}, false, 10, 1, 10},
		{"clamp at min", StepFactors{Min: 1, Max: 5}, false, 0, -1, 0},
		{"rotate at max", StepFactors{Min: 1, Max: 5}, true, 10, 1, 0},
		{"rotate at min", StepFactors{Min: 1, Max: 5}, true, 0, -1, 10},
		{"rotate clamps before wrapping", StepFactors{Min: 1, Max: 5}, true, 9, 5, 10},
	}
	for _, tt := range tests {
		s := DefaultSettings()
		s.StepFactorInterval = tt.factors
		s.Rotate = tt.rotate
		m, _ := New(s)
		ctx := Context{
			Current:    control.Discrete(control.Fraction{Actual: tt.cur, Max: 10}),
			HasCurrent: true,
			Type:       control.DiscreteType(11),
		}
		out, ok := m.Control(control.Relative(tt.inc), ctx, t0)
		if !ok {
			t.Errorf("%s: expected control", tt.name)
			continue
		}
		f, isDiscrete := out.Fraction()
		if !isDiscrete || f.Actual != tt.want || f.Max != 10 {
			t.Errorf("%s: expected %d/10, got %v", tt.name, tt.want, out)
		}
	}
}

func TestTakeoverLongTimeNoSee(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"close enough jumps", 0.52, 0.52},
		{"far above approaches", 0.9, 0.55},
		{"far below approaches", 0.1, 0.45},
	}
	for _, tt := range tests {
		s := DefaultSettings()
		s.Takeover = LongTimeNoSee
		m, _ := New(s)
		out, ok := m.Control(control.AbsoluteContinuous(control.UnitValue(tt.in)), continuousCtx(0.5), t0)
		if !ok {
			t.Errorf("%s: expected control", tt.name)
			continue
		}
		if math.Abs(out.ToUnit().Get()-tt.want) > 1e-9 {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, out)
		}
	}
}
