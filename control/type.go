package control

// TypeKind classifies how a target wants to be controlled
type TypeKind uint8

const (
	TypeAbsoluteContinuous TypeKind = iota
	TypeAbsoluteDiscrete
	TypeRelative
	TypeVirtualMulti
	TypeVirtualButton
)

// Type is the control type of a target
type Type struct {
	Kind          TypeKind
	StepSize      UnitValue // atomic step size for discrete targets
	Retriggerable bool      // hitting with the current value still has an effect
}

func ContinuousType() Type {
	return Type{Kind: TypeAbsoluteContinuous}
}

func RetriggerableType() Type {
	return Type{Kind: TypeAbsoluteContinuous, Retriggerable: true}
}

// DiscreteType creates a discrete type with count possible values (count >= 2)
func DiscreteType(count uint32) Type {
	if count < 2 {
		count = 2
	}
	return Type{Kind: TypeAbsoluteDiscrete, StepSize: UnitValue(1 / float64(count-1))}
}

func RelativeType() Type {
	return Type{Kind: TypeRelative}
}

func (t Type) IsRelative() bool {
	return t.Kind == TypeRelative
}

func (t Type) IsDiscrete() bool {
	return t.Kind == TypeAbsoluteDiscrete
}

func (t Type) IsVirtual() bool {
	return t.Kind == TypeVirtualMulti || t.Kind == TypeVirtualButton
}

// DiscreteMax returns the max fraction value for discrete types
func (t Type) DiscreteMax() (uint32, bool) {
	if t.Kind != TypeAbsoluteDiscrete || t.StepSize <= 0 {
		return 0, false
	}
	return uint32(1/float64(t.StepSize) + 0.5), true
}

// Character describes the physical nature of a target value
type Character uint8

const (
	CharacterContinuous Character = iota
	CharacterDiscrete
	CharacterSwitch
	CharacterTrigger
	CharacterVirtualMulti
	CharacterVirtualButton
)

func (c Character) String() string {
	switch c {
	case CharacterDiscrete:
		return "discrete"
	case CharacterSwitch:
		return "switch"
	case CharacterTrigger:
		return "trigger"
	case CharacterVirtualMulti:
		return "virtual-multi"
	case CharacterVirtualButton:
		return "virtual-button"
	default:
		return "continuous"
	}
}
