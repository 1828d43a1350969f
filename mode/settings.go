package mode

import (
	"fmt"
	"time"

	"go-surface/control"
)

// AbsoluteMode decides how absolute source values are interpreted
type AbsoluteMode uint8

const (
	Normal AbsoluteMode = iota
	IncrementalButton
	ToggleButton
)

// TakeoverMode decides what happens when the source value is far away from the target value
type TakeoverMode uint8

const (
	TakeoverOff TakeoverMode = iota
	PickUp
	LongTimeNoSee
	Parallel
	CatchUp
)

// OutOfRangeBehavior decides what happens with source values outside the source interval
type OutOfRangeBehavior uint8

const (
	MinOrMax OutOfRangeBehavior = iota
	Min
	Ignore
)

// ButtonFilter lets only presses or only releases through
type ButtonFilter uint8

const (
	PressAndRelease ButtonFilter = iota
	PressOnly
	ReleaseOnly
)

var (
	absoluteModeNames = []string{"Normal", "IncrementalButton", "ToggleButton"}
	takeoverNames     = []string{"Off", "PickUp", "LongTimeNoSee", "Parallel", "CatchUp"}
	outOfRangeNames   = []string{"MinOrMax", "Min", "Ignore"}
	buttonFilterNames = []string{"PressAndRelease", "PressOnly", "ReleaseOnly"}
)

func (m AbsoluteMode) String() string       { return nameOf(absoluteModeNames, int(m)) }
func (m TakeoverMode) String() string       { return nameOf(takeoverNames, int(m)) }
func (b OutOfRangeBehavior) String() string { return nameOf(outOfRangeNames, int(b)) }
func (f ButtonFilter) String() string       { return nameOf(buttonFilterNames, int(f)) }

func (m AbsoluteMode) MarshalText() ([]byte, error)       { return []byte(m.String()), nil }
func (m TakeoverMode) MarshalText() ([]byte, error)       { return []byte(m.String()), nil }
func (b OutOfRangeBehavior) MarshalText() ([]byte, error) { return []byte(b.String()), nil }
func (f ButtonFilter) MarshalText() ([]byte, error)       { return []byte(f.String()), nil }

func (m *AbsoluteMode) UnmarshalText(b []byte) error {
	i, err := indexOf(absoluteModeNames, string(b))
	*m = AbsoluteMode(i)
	return err
}

func (m *TakeoverMode) UnmarshalText(b []byte) error {
	i, err := indexOf(takeoverNames, string(b))
	*m = TakeoverMode(i)
	return err
}

func (o *OutOfRangeBehavior) UnmarshalText(b []byte) error {
	i, err := indexOf(outOfRangeNames, string(b))
	*o = OutOfRangeBehavior(i)
	return err
}

func (f *ButtonFilter) UnmarshalText(b []byte) error {
	i, err := indexOf(buttonFilterNames, string(b))
	*f = ButtonFilter(i)
	return err
}

func nameOf(names []string, i int) string {
	if i >= 0 && i < len(names) {
		return names[i]
	}
	return names[0]
}

func indexOf(names []string, s string) (int, error) {
	for i, n := range names {
		if n == s {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown value %q", s)
}

// StepFactors bounds the number of discrete steps a single relative increment may move
type StepFactors struct {
	Min int32 `json:"min"`
	Max int32 `json:"max"`
}

// Settings is the persistent configuration of a mode
type Settings struct {
	SourceInterval     control.Interval   `json:"sourceInterval"`
	TargetInterval     control.Interval   `json:"targetInterval"`
	Reverse            bool               `json:"reverse,omitempty"`
	Round              bool               `json:"round,omitempty"`
	StepSizeInterval   control.Interval   `json:"stepSizeInterval"`
	StepFactorInterval StepFactors        `json:"stepFactorInterval"`
	Rotate             bool               `json:"rotate,omitempty"`
	OutOfRange         OutOfRangeBehavior `json:"outOfRangeBehavior"`
	Takeover           TakeoverMode       `json:"takeoverMode"`
	JumpMax            control.UnitValue  `json:"jumpMax"`
	Absolute           AbsoluteMode       `json:"absoluteMode"`
	ButtonFilter       ButtonFilter       `json:"buttonFilter"`
	Retrigger          bool               `json:"retrigger,omitempty"`
	MinControlInterval time.Duration      `json:"minControlInterval,omitempty"`
	ControlExpression  string             `json:"controlExpression,omitempty"`
	FeedbackExpression string             `json:"feedbackExpression,omitempty"`
}

// DefaultStepSize is the continuous step of one encoder tick
const DefaultStepSize control.UnitValue = 0.01

// defaultTakeoverTolerance is the jump considered "close enough" by takeover
// modes when no explicit JumpMax is configured
const defaultTakeoverTolerance = 0.05

// DefaultSettings returns the identity mode
func DefaultSettings() Settings {
	return Settings{
		SourceInterval:     control.FullInterval,
		TargetInterval:     control.FullInterval,
		StepSizeInterval:   control.NewInterval(DefaultStepSize, 0.05),
		StepFactorInterval: StepFactors{Min: 1, Max: 5},
		JumpMax:            control.MaxUnit,
	}
}
