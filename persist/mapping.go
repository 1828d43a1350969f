package persist

import (
	"encoding/json"

	"github.com/pkg/errors"

	"go-surface/mapping"
	"go-surface/mode"
	"go-surface/source"
)

type sourceData struct {
	Category string `json:"category"`

	// MIDI
	Type      string `json:"type,omitempty"`
	Channel   *int   `json:"channel,omitempty"` // absent means any channel
	Number    *int   `json:"number,omitempty"`
	Character string `json:"character,omitempty"`

	// OSC
	Address  string   `json:"address,omitempty"`
	ArgIndex int      `json:"arg_index,omitempty"`
	ArgType  string   `json:"arg_type,omitempty"`
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
	Relative bool     `json:"relative,omitempty"`

	// virtual
	ID json.RawMessage `json:"id,omitempty"`
}

type modifierData struct {
	Param int  `json:"param"`
	On    bool `json:"on"`
}

type conditionData struct {
	Kind       string         `json:"kind"`
	Modifiers  []modifierData `json:"modifiers,omitempty"`
	BankParam  int            `json:"bank_param,omitempty"`
	BankIndex  int            `json:"bank_index,omitempty"`
	Expression string         `json:"expression,omitempty"`
}

type mappingData struct {
	Key                      string          `json:"key,omitempty"`
	Name                     string          `json:"name,omitempty"`
	Group                    string          `json:"group,omitempty"` // group key, empty for the default group
	Source                   *sourceData     `json:"source,omitempty"`
	Mode                     json.RawMessage `json:"mode,omitempty"`
	Target                   json.RawMessage `json:"target,omitempty"`
	Enabled                  *bool           `json:"enabled,omitempty"`
	ControlEnabled           *bool           `json:"control_enabled,omitempty"`
	FeedbackEnabled          *bool           `json:"feedback_enabled,omitempty"`
	Activation               *conditionData  `json:"activation_condition,omitempty"`
	Tags                     []string        `json:"tags,omitempty"`
	PreventEchoFeedback      bool            `json:"prevent_echo_feedback,omitempty"`
	SendFeedbackAfterControl bool            `json:"send_feedback_after_control,omitempty"`
}

type groupData struct {
	Key             string         `json:"key"`
	Name            string         `json:"name,omitempty"`
	ControlEnabled  *bool          `json:"control_enabled,omitempty"`
	FeedbackEnabled *bool          `json:"feedback_enabled,omitempty"`
	Activation      *conditionData `json:"activation_condition,omitempty"`
	Tags            []string       `json:"tags,omitempty"`
}

type parameterData struct {
	Index      int      `json:"index"`
	Value      *float64 `json:"value,omitempty"`
	Key        string   `json:"key,omitempty"`
	Name       string   `json:"name,omitempty"`
	ValueCount int      `json:"value_count,omitempty"`
}

// compartmentData is the file form of one compartment. Only parameters with a
// value or a setting are written.
type compartmentData struct {
	Version      int             `json:"version"`
	Compartment  string          `json:"compartment,omitempty"`
	DefaultGroup *groupData      `json:"default_group,omitempty"`
	Groups       []groupData     `json:"groups,omitempty"`
	Mappings     []mappingData   `json:"mappings,omitempty"`
	Parameters   []parameterData `json:"parameters,omitempty"`
	Notes        string          `json:"notes,omitempty"`
}

// FormatVersion is written into every compartment file
const FormatVersion = 1

// MarshalCompartment encodes the content of a compartment
func MarshalCompartment(c mapping.Compartment, d mapping.Data) ([]byte, error) {
	cd := compartmentData{Version: FormatVersion, Compartment: c.String(), Notes: d.Notes}
	keys := map[mapping.GroupID]string{}
	if d.DefaultGroup.Key != "" {
		g := encodeGroup(d.DefaultGroup)
		cd.DefaultGroup = &g
	}
	for _, g := range d.Groups {
		keys[g.ID] = g.Key
		cd.Groups = append(cd.Groups, encodeGroup(g))
	}
	for _, m := range d.Mappings {
		md, err := encodeMapping(m, keys[m.Group])
		if err != nil {
			return nil, errors.Wrapf(err, "mapping %q", m.Name)
		}
		cd.Mappings = append(cd.Mappings, md)
	}
	for i := range mapping.ParameterCount {
		v, s := d.Params[i], d.ParamSettings[i]
		if v == 0 && s == (mapping.ParamSetting{}) {
			continue
		}
		p := parameterData{Index: i, Key: s.Key, Name: s.Name, ValueCount: s.ValueCount}
		if v != 0 {
			p.Value = &v
		}
		cd.Parameters = append(cd.Parameters, p)
	}
	return json.MarshalIndent(cd, "", "  ")
}

// UnmarshalCompartment decodes a compartment file. Groups get ids in file
// order; mappings find their group by key.
func UnmarshalCompartment(data []byte) (mapping.Compartment, mapping.Data, error) {
	var (
		cd compartmentData
		d  mapping.Data
	)
	if err := json.Unmarshal(data, &cd); err != nil {
		return 0, d, errors.Wrap(err, "compartment")
	}
	if cd.Version > FormatVersion {
		return 0, d, errors.Errorf("compartment format version %d is newer than %d", cd.Version, FormatVersion)
	}
	c := mapping.Main
	if cd.Compartment != "" {
		var ok bool
		if c, ok = mapping.ParseCompartment(cd.Compartment); !ok {
			return 0, d, errors.Wrapf(ErrInvalidValue, "compartment %q", cd.Compartment)
		}
	}
	d.Notes = cd.Notes
	if cd.DefaultGroup != nil {
		g, err := decodeGroup(*cd.DefaultGroup)
		if err != nil {
			return 0, d, errors.Wrap(err, "default group")
		}
		g.ID = mapping.DefaultGroupID
		d.DefaultGroup = g
	}
	ids := map[string]mapping.GroupID{}
	for i, gd := range cd.Groups {
		g, err := decodeGroup(gd)
		if err != nil {
			return 0, d, errors.Wrapf(err, "group %q", gd.Name)
		}
		g.ID = mapping.GroupID(i + 1)
		if g.Key == "" {
			g.Key = mapping.NewKey()
		}
		ids[g.Key] = g.ID
		d.Groups = append(d.Groups, g)
	}
	for _, md := range cd.Mappings {
		m, err := decodeMapping(c, md)
		if err != nil {
			return 0, d, errors.Wrapf(err, "mapping %q", md.Name)
		}
		m.Group = ids[md.Group] // unknown keys fall back to the default group
		d.Mappings = append(d.Mappings, m)
	}
	for _, p := range cd.Parameters {
		if p.Index < 0 || p.Index >= mapping.ParameterCount {
			return 0, d, errors.Wrapf(mapping.ErrParamOutOfRange, "parameter %d", p.Index)
		}
		if p.Value != nil {
			d.Params[p.Index] = *p.Value
		}
		d.ParamSettings[p.Index] = mapping.ParamSetting{Key: p.Key, Name: p.Name, ValueCount: p.ValueCount}
	}
	return c, d, nil
}

// MarshalMapping encodes a single mapping, e.g. for the clipboard
func MarshalMapping(m mapping.Mapping) ([]byte, error) {
	md, err := encodeMapping(m, "")
	if err != nil {
		return nil, err
	}
	return json.Marshal(md)
}

// UnmarshalMapping decodes a single mapping into compartment c. The result
// lives in the default group.
func UnmarshalMapping(c mapping.Compartment, data []byte) (mapping.Mapping, error) {
	var md mappingData
	if err := json.Unmarshal(data, &md); err != nil {
		return mapping.Mapping{}, errors.Wrap(err, "mapping")
	}
	return decodeMapping(c, md)
}

func encodeMapping(m mapping.Mapping, groupKey string) (mappingData, error) {
	md := mappingData{
		Key:                      m.Key,
		Name:                     m.Name,
		Group:                    groupKey,
		Source:                   encodeSource(m.Source),
		Tags:                     m.Tags,
		PreventEchoFeedback:      m.PreventEchoFeedback,
		SendFeedbackAfterControl: m.SendFeedbackAfterControl,
		Activation:               encodeCondition(m.Activation),
	}
	md.Enabled, md.ControlEnabled, md.FeedbackEnabled = falseOnly(m.Enabled), falseOnly(m.ControlEnabled), falseOnly(m.FeedbackEnabled)
	var err error
	if md.Mode, err = json.Marshal(m.Mode); err != nil {
		return md, errors.Wrap(err, "mode")
	}
	if m.Target != nil {
		if md.Target, err = MarshalTarget(m.Target); err != nil {
			return md, err
		}
	}
	return md, nil
}

func decodeMapping(c mapping.Compartment, md mappingData) (mapping.Mapping, error) {
	m := mapping.New(c)
	if md.Key != "" {
		m.Key = md.Key
	}
	m.Name = md.Name
	m.Tags = md.Tags
	m.PreventEchoFeedback = md.PreventEchoFeedback
	m.SendFeedbackAfterControl = md.SendFeedbackAfterControl
	m.Enabled = orTrue(md.Enabled)
	m.ControlEnabled = orTrue(md.ControlEnabled)
	m.FeedbackEnabled = orTrue(md.FeedbackEnabled)
	if md.Source != nil {
		src, err := decodeSource(*md.Source)
		if err != nil {
			return m, err
		}
		m.Source = src
	}
	if len(md.Mode) > 0 {
		// unmarshal over the defaults so missing fields keep them
		s := mode.DefaultSettings()
		if err := json.Unmarshal(md.Mode, &s); err != nil {
			return m, errors.Wrap(err, "mode")
		}
		m.Mode = s
	}
	if len(md.Target) > 0 && string(md.Target) != "null" {
		t, err := UnmarshalTarget(md.Target)
		if err != nil {
			return m, err
		}
		m.Target = t
	}
	cond, err := decodeCondition(md.Activation)
	if err != nil {
		return m, err
	}
	m.Activation = cond
	return m, nil
}

func encodeGroup(g mapping.Group) groupData {
	return groupData{
		Key:             g.Key,
		Name:            g.Name,
		ControlEnabled:  falseOnly(g.ControlEnabled),
		FeedbackEnabled: falseOnly(g.FeedbackEnabled),
		Activation:      encodeCondition(g.Activation),
		Tags:            g.Tags,
	}
}

func decodeGroup(gd groupData) (mapping.Group, error) {
	g := mapping.NewGroup(gd.Name)
	if gd.Key != "" {
		g.Key = gd.Key
	}
	g.ControlEnabled = orTrue(gd.ControlEnabled)
	g.FeedbackEnabled = orTrue(gd.FeedbackEnabled)
	g.Tags = gd.Tags
	cond, err := decodeCondition(gd.Activation)
	if err != nil {
		return g, err
	}
	g.Activation = cond
	return g, nil
}

func encodeCondition(c mapping.Condition) *conditionData {
	if c.Kind == mapping.Always {
		return nil
	}
	cd := &conditionData{Kind: c.Kind.String(), Expression: c.Expression}
	switch c.Kind {
	case mapping.Modifiers:
		for _, m := range c.Modifiers {
			cd.Modifiers = append(cd.Modifiers, modifierData{Param: m.Param, On: m.On})
		}
	case mapping.Bank:
		cd.BankParam, cd.BankIndex = c.BankParam, c.BankIndex
	}
	return cd
}

func decodeCondition(cd *conditionData) (mapping.Condition, error) {
	if cd == nil {
		return mapping.Condition{}, nil
	}
	kind, err := parseName("activation kind", cd.Kind, mapping.ParseConditionKind, mapping.Always)
	if err != nil {
		return mapping.Condition{}, err
	}
	c := mapping.Condition{Kind: kind, BankParam: cd.BankParam, BankIndex: cd.BankIndex, Expression: cd.Expression}
	for _, m := range cd.Modifiers {
		c.Modifiers = append(c.Modifiers, mapping.Modifier{Param: m.Param, On: m.On})
	}
	return c, nil
}

func encodeSource(s source.Source) *sourceData {
	sd := &sourceData{Category: s.Category.String()}
	switch s.Category {
	case source.CategoryNone:
		return nil
	case source.CategoryMidi:
		m := s.Midi
		sd.Type, sd.Character = m.Type.String(), m.Character.String()
		if m.Channel != source.Any {
			ch := int(m.Channel)
			sd.Channel = &ch
		}
		if m.Number != source.Any {
			n := int(m.Number)
			sd.Number = &n
		}
	case source.CategoryOsc:
		o := s.Osc
		sd.Address, sd.ArgIndex, sd.ArgType, sd.Relative = o.Address, o.ArgIndex, o.ArgType.String(), o.Relative
		sd.Min, sd.Max = &o.Min, &o.Max
	case source.CategoryVirtual:
		sd.ID = encodeElementID(s.Virtual.Element)
		sd.Character = s.Virtual.Element.Kind.String()
	}
	return sd
}

func decodeSource(sd sourceData) (source.Source, error) {
	cat, err := parseName("source category", sd.Category, source.ParseCategory, source.CategoryNone)
	if err != nil {
		return source.Source{}, err
	}
	switch cat {
	case source.CategoryMidi:
		m := source.MidiSource{Channel: source.Any, Number: source.Any}
		if m.Type, err = parseName("midi type", sd.Type, source.ParseMidiType, source.ControlChangeValue); err != nil {
			return source.Source{}, err
		}
		if m.Character, err = parseName("character", sd.Character, source.ParseCharacter, source.Range); err != nil {
			return source.Source{}, err
		}
		if sd.Channel != nil {
			if *sd.Channel < 0 || *sd.Channel > 15 {
				return source.Source{}, errors.Wrapf(ErrInvalidValue, "channel %d", *sd.Channel)
			}
			m.Channel = int8(*sd.Channel)
		}
		if sd.Number != nil {
			if *sd.Number < 0 || *sd.Number > 127 {
				return source.Source{}, errors.Wrapf(ErrInvalidValue, "number %d", *sd.Number)
			}
			m.Number = int16(*sd.Number)
		}
		return source.Midi(m), nil
	case source.CategoryOsc:
		o := source.NewOscSource(sd.Address)
		o.ArgIndex, o.Relative = sd.ArgIndex, sd.Relative
		if o.ArgType, err = parseName("arg type", sd.ArgType, source.ParseOscArgType, source.OscFloat); err != nil {
			return source.Source{}, err
		}
		if sd.Min != nil {
			o.Min = *sd.Min
		}
		if sd.Max != nil {
			o.Max = *sd.Max
		}
		return source.Osc(o), nil
	case source.CategoryVirtual:
		el, err := decodeElement(sd.ID, sd.Character)
		if err != nil {
			return source.Source{}, err
		}
		return source.Virtual(el), nil
	}
	return source.Source{}, nil
}

// falseOnly writes enabled flags only when they're off
func falseOnly(b bool) *bool {
	if b {
		return nil
	}
	return &b
}

func orTrue(b *bool) bool {
	return b == nil || *b
}
