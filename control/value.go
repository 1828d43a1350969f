package control

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// ErrRelativeValue is returned when an absolute value is required but a relative one was given.
var ErrRelativeValue = errors.New("relative value can't be converted to absolute value")

// Epsilon used for unit value comparisons
const Epsilon = 0.00001

// UnitValue is a normalized value between 0.0 and 1.0
type UnitValue float64

const (
	MinUnit UnitValue = 0
	MaxUnit UnitValue = 1
)

// NewUnitValue clamps v into the unit range
func NewUnitValue(v float64) UnitValue {
	if math.IsNaN(v) || v < 0 {
		return MinUnit
	}
	if v > 1 {
		return MaxUnit
	}
	return UnitValue(v)
}

func (u UnitValue) Get() float64 {
	return float64(u)
}

func (u UnitValue) IsZero() bool {
	return math.Abs(float64(u)) < Epsilon
}

func (u UnitValue) IsOne() bool {
	return math.Abs(float64(u)-1) < Epsilon
}

// Inverse returns 1 - u
func (u UnitValue) Inverse() UnitValue {
	return NewUnitValue(1 - float64(u))
}

// ApproxEqual compares with Epsilon tolerance
func (u UnitValue) ApproxEqual(other UnitValue) bool {
	return math.Abs(float64(u)-float64(other)) < Epsilon
}

// MapToInterval maps u from the full unit range into interval i
func (u UnitValue) MapToInterval(i Interval) UnitValue {
	return NewUnitValue(float64(i.Min) + float64(u)*i.Span())
}

// MapFromInterval normalizes u (which should lie in i) back to the full unit range
func (u UnitValue) MapFromInterval(i Interval) UnitValue {
	span := i.Span()
	if span == 0 {
		if u >= i.Max {
			return MaxUnit
		}
		return MinUnit
	}
	return NewUnitValue((float64(u) - float64(i.Min)) / span)
}

// SnapToGrid rounds u to the nearest multiple of step
func (u UnitValue) SnapToGrid(step UnitValue) UnitValue {
	if step <= 0 {
		return u
	}
	return NewUnitValue(math.Round(float64(u)/float64(step)) * float64(step))
}

func (u UnitValue) String() string {
	return fmt.Sprintf("%.4f", float64(u))
}

// Interval is a closed range of unit values
type Interval struct {
	Min UnitValue `json:"min"`
	Max UnitValue `json:"max"`
}

// FullInterval covers the complete unit range
var FullInterval = Interval{Min: MinUnit, Max: MaxUnit}

// NewInterval creates an interval, swapping bounds if given in the wrong order
func NewInterval(min, max UnitValue) Interval {
	if min > max {
		min, max = max, min
	}
	return Interval{Min: min, Max: max}
}

func (i Interval) Span() float64 {
	return float64(i.Max) - float64(i.Min)
}

func (i Interval) Contains(u UnitValue) bool {
	return u >= i.Min-Epsilon && u <= i.Max+Epsilon
}

func (i Interval) Clamp(u UnitValue) UnitValue {
	if u < i.Min {
		return i.Min
	}
	if u > i.Max {
		return i.Max
	}
	return u
}

func (i Interval) IsFull() bool {
	return i.Min.IsZero() && i.Max.IsOne()
}

// Fraction is a discrete value: Actual out of Max
type Fraction struct {
	Actual uint32 `json:"actual"`
	Max    uint32 `json:"max"`
}

// ToUnit converts the fraction to a unit value
func (f Fraction) ToUnit() UnitValue {
	if f.Max == 0 {
		return MinUnit
	}
	return NewUnitValue(float64(f.Actual) / float64(f.Max))
}

// FractionFromUnit finds the nearest fraction with the given max
func FractionFromUnit(u UnitValue, max uint32) Fraction {
	return Fraction{Actual: uint32(math.Round(float64(u) * float64(max))), Max: max}
}

// AbsoluteValue is either a continuous unit value or a discrete fraction
type AbsoluteValue struct {
	discrete bool
	unit     UnitValue
	frac     Fraction
}

func Continuous(u UnitValue) AbsoluteValue {
	return AbsoluteValue{unit: u}
}

func Discrete(f Fraction) AbsoluteValue {
	return AbsoluteValue{discrete: true, frac: f}
}

func (a AbsoluteValue) IsDiscrete() bool {
	return a.discrete
}

// Fraction returns the discrete value, if any
func (a AbsoluteValue) Fraction() (Fraction, bool) {
	return a.frac, a.discrete
}

func (a AbsoluteValue) ToUnit() UnitValue {
	if a.discrete {
		return a.frac.ToUnit()
	}
	return a.unit
}

func (a AbsoluteValue) IsZero() bool {
	return a.ToUnit().IsZero()
}

func (a AbsoluteValue) String() string {
	if a.discrete {
		return fmt.Sprintf("%d/%d", a.frac.Actual, a.frac.Max)
	}
	return a.unit.String()
}

// Kind says what kind of value a control Value carries
type Kind uint8

const (
	KindAbsoluteContinuous Kind = iota
	KindAbsoluteDiscrete
	KindRelative
)

// Value is the control value produced by a source. It is a small fixed-size struct so that
// it can travel through real-time channels without allocation.
type Value struct {
	Kind      Kind
	Unit      UnitValue
	Frac      Fraction
	Increment int32
}

func AbsoluteContinuous(u UnitValue) Value {
	return Value{Kind: KindAbsoluteContinuous, Unit: u}
}

func AbsoluteDiscrete(f Fraction) Value {
	return Value{Kind: KindAbsoluteDiscrete, Frac: f}
}

// Relative creates a relative value (positive = increment, negative = decrement)
func Relative(increment int32) Value {
	return Value{Kind: KindRelative, Increment: increment}
}

// FromAbsolute converts an absolute value into a control value
func FromAbsolute(a AbsoluteValue) Value {
	if f, ok := a.Fraction(); ok {
		return AbsoluteDiscrete(f)
	}
	return AbsoluteContinuous(a.ToUnit())
}

func (v Value) IsRelative() bool {
	return v.Kind == KindRelative
}

// IsRelativeZero reports a relative value that was consumed but doesn't move anything
func (v Value) IsRelativeZero() bool {
	return v.Kind == KindRelative && v.Increment == 0
}

func (v Value) ToAbsolute() (AbsoluteValue, error) {
	switch v.Kind {
	case KindAbsoluteContinuous:
		return Continuous(v.Unit), nil
	case KindAbsoluteDiscrete:
		return Discrete(v.Frac), nil
	default:
		return AbsoluteValue{}, ErrRelativeValue
	}
}

func (v Value) ToUnit() (UnitValue, error) {
	a, err := v.ToAbsolute()
	if err != nil {
		return 0, err
	}
	return a.ToUnit(), nil
}

func (v Value) String() string {
	switch v.Kind {
	case KindAbsoluteContinuous:
		return v.Unit.String()
	case KindAbsoluteDiscrete:
		return fmt.Sprintf("%d/%d", v.Frac.Actual, v.Frac.Max)
	default:
		return fmt.Sprintf("%+d", v.Increment)
	}
}
