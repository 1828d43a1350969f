package mapping

import (
	"math"
	"slices"

	"github.com/pkg/errors"

	"go-surface/expr"
)

// ParameterCount is the number of parameters per compartment
const ParameterCount = 100

// ConditionKind selects how a Condition is evaluated
type ConditionKind uint8

const (
	Always ConditionKind = iota
	// Modifiers is fulfilled when every listed parameter is on (or off) as required
	Modifiers
	// Bank is fulfilled when a parameter points at the given bank index
	Bank
	// Expression is fulfilled when the expression evaluates to something > 0
	Expression
)

var conditionKindNames = [...]string{"Always", "Modifiers", "Bank", "Expression"}

func (k ConditionKind) String() string {
	if int(k) < len(conditionKindNames) {
		return conditionKindNames[k]
	}
	return "Always"
}

func ParseConditionKind(s string) (ConditionKind, bool) {
	for i, n := range conditionKindNames {
		if n == s {
			return ConditionKind(i), true
		}
	}
	return Always, false
}

// Modifier requires a parameter to be on (> 0) or off
type Modifier struct {
	Param int
	On    bool
}

// Condition decides whether a mapping or group is active depending on the
// compartment parameters
type Condition struct {
	Kind       ConditionKind
	Modifiers  []Modifier
	BankParam  int
	BankIndex  int
	Expression string
}

func (c Condition) Clone() Condition {
	c.Modifiers = slices.Clone(c.Modifiers)
	return c
}

// Validate checks parameter indexes and compiles the expression
func (c Condition) Validate() error {
	switch c.Kind {
	case Modifiers:
		for _, m := range c.Modifiers {
			if m.Param < 0 || m.Param >= ParameterCount {
				return errors.Wrapf(ErrParamOutOfRange, "modifier p[%d]", m.Param)
			}
		}
	case Bank:
		if c.BankParam < 0 || c.BankParam >= ParameterCount {
			return errors.Wrapf(ErrParamOutOfRange, "bank p[%d]", c.BankParam)
		}
	case Expression:
		if _, err := expr.Compile(c.Expression); err != nil {
			return errors.Wrap(err, "activation expression")
		}
	}
	return nil
}

// IsFulfilled evaluates the condition. Invalid conditions are never fulfilled.
func (c Condition) IsFulfilled(p *Params) bool {
	switch c.Kind {
	case Modifiers:
		for _, m := range c.Modifiers {
			v, ok := p.Get(m.Param)
			if !ok || (v > 0) != m.On {
				return false
			}
		}
		return true
	case Bank:
		idx, ok := p.Discrete(c.BankParam)
		return ok && idx == c.BankIndex
	case Expression:
		e, err := expr.Compile(c.Expression)
		if err != nil {
			return false
		}
		v := e.Eval(p)
		return !math.IsNaN(v) && v > 0
	}
	return true
}

// Uses reports whether the condition reads parameter i. Expressions are
// assumed to read everything.
func (c Condition) Uses(i int) bool {
	switch c.Kind {
	case Modifiers:
		for _, m := range c.Modifiers {
			if m.Param == i {
				return true
			}
		}
	case Bank:
		return c.BankParam == i
	case Expression:
		return true
	}
	return false
}

// ParamSetting describes one compartment parameter
type ParamSetting struct {
	Key  string
	Name string
	// ValueCount makes the parameter discrete, 0 means continuous
	ValueCount int
}

// Params holds the values of the compartment parameters. Values are unit
// values 0..1. Params implements expr.Vars as p[0]..p[99].
type Params struct {
	values   [ParameterCount]float64
	settings [ParameterCount]ParamSetting
}

// Get returns the value of parameter i
func (p *Params) Get(i int) (float64, bool) {
	if i < 0 || i >= ParameterCount {
		return 0, false
	}
	return p.values[i], true
}

// Set changes parameter i and reports whether the value changed
func (p *Params) Set(i int, v float64) (bool, error) {
	if i < 0 || i >= ParameterCount {
		return false, errors.Wrapf(ErrParamOutOfRange, "p[%d]", i)
	}
	v = math.Max(0, math.Min(1, v))
	if p.values[i] == v {
		return false, nil
	}
	p.values[i] = v
	return true, nil
}

// Discrete returns the index a parameter points at: out of ValueCount values
// for discrete parameters, out of ParameterCount otherwise
func (p *Params) Discrete(i int) (int, bool) {
	v, ok := p.Get(i)
	if !ok {
		return 0, false
	}
	n := p.settings[i].ValueCount
	if n < 2 {
		n = ParameterCount
	}
	return int(math.Round(v * float64(n-1))), true
}

func (p *Params) Setting(i int) (ParamSetting, bool) {
	if i < 0 || i >= ParameterCount {
		return ParamSetting{}, false
	}
	return p.settings[i], true
}

func (p *Params) SetSetting(i int, s ParamSetting) error {
	if i < 0 || i >= ParameterCount {
		return errors.Wrapf(ErrParamOutOfRange, "p[%d]", i)
	}
	p.settings[i] = s
	return nil
}

// Values returns a copy of all values
func (p *Params) Values() [ParameterCount]float64 {
	return p.values
}

func (p *Params) Lookup(string) (float64, bool) {
	return 0, false
}

func (p *Params) Index(name string, i int) (float64, bool) {
	if name != "p" {
		return 0, false
	}
	return p.Get(i)
}
