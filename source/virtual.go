package source

import (
	"fmt"

	"go-surface/control"
)

// ElementKind is the kind of a virtual control element
type ElementKind uint8

const (
	Multi ElementKind = iota
	VirtualButton
)

func (k ElementKind) String() string {
	if k == VirtualButton {
		return "Button"
	}
	return "Multi"
}

// Element is a virtual control element. Controller mappings translate real
// hardware into elements, main mappings react to elements.
type Element struct {
	Kind  ElementKind
	Index uint32
	Name  string // optional named element, takes precedence over Index
}

func (e Element) String() string {
	if e.Name != "" {
		return fmt.Sprintf("%s/%s", e.Kind, e.Name)
	}
	return fmt.Sprintf("%s/%d", e.Kind, e.Index)
}

// Matches compares kind plus name or index
func (e Element) Matches(other Element) bool {
	if e.Kind != other.Kind {
		return false
	}
	if e.Name != "" || other.Name != "" {
		return e.Name == other.Name
	}
	return e.Index == other.Index
}

// VirtualEvent is a control or feedback value travelling through a virtual element
type VirtualEvent struct {
	Element Element
	Value   control.Value
}

// VirtualSource reacts to a virtual element
type VirtualSource struct {
	Element Element
}

// Control returns the value of ev if it addresses this source's element
func (s VirtualSource) Control(ev VirtualEvent) (control.Value, bool) {
	if !s.Element.Matches(ev.Element) {
		return control.Value{}, false
	}
	return ev.Value, true
}

// Feedback wraps a unit value into a virtual feedback event
func (s VirtualSource) Feedback(u control.UnitValue) VirtualEvent {
	return VirtualEvent{Element: s.Element, Value: control.AbsoluteContinuous(u)}
}

// EffectiveCharacter returns the character the mode should assume
func (s VirtualSource) EffectiveCharacter() Character {
	if s.Element.Kind == VirtualButton {
		return Button
	}
	return Range
}

func (s VirtualSource) String() string {
	return "Virtual " + s.Element.String()
}
