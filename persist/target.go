// Package persist reads and writes the JSON form of targets, sources,
// mappings and whole compartments. Missing fields take their defaults and a
// few historic names are accepted as aliases, so older files keep loading.
package persist

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"

	"go-surface/source"
	"go-surface/target"
)

var (
	ErrMissingKind  = errors.New("missing kind")
	ErrInvalidValue = errors.New("invalid value")
)

// kindAliases maps historic kind tags to their current names
var kindAliases = map[string]string{
	"CycleThroughTracks":        "BrowseTracks",
	"CycleThroughFx":            "BrowseFxChain",
	"CycleThroughFxPresets":     "BrowseFxPresets",
	"LoadMappingSnapshots":      string(target.KindLoadMappingSnapshot),
	"CycleThroughGroupMappings": string(target.KindBrowseGroupMappings),
	"NavigateWithinPotPresets":  "BrowsePotPresets",
}

// CanonicalKind resolves kind aliases
func CanonicalKind(kind string) string {
	if k, ok := kindAliases[kind]; ok {
		return k
	}
	return kind
}

type trackData struct {
	Address    string `json:"address"`
	Index      int    `json:"index,omitempty"`
	Name       string `json:"name,omitempty"`
	ID         string `json:"id,omitempty"`
	Expression string `json:"expression,omitempty"`
	Column     int    `json:"column,omitempty"`
}

type fxData struct {
	Address    string     `json:"address"`
	Track      *trackData `json:"track,omitempty"`
	Index      int        `json:"index,omitempty"`
	Name       string     `json:"name,omitempty"`
	ID         string     `json:"id,omitempty"`
	Expression string     `json:"expression,omitempty"`
}

type paramData struct {
	Address string  `json:"address"`
	Fx      *fxData `json:"fx,omitempty"`
	Index   int     `json:"index,omitempty"`
	Name    string  `json:"name,omitempty"`
}

type slotData struct {
	Address string `json:"address"`
	Column  int    `json:"column_index,omitempty"`
	Row     int    `json:"row_index,omitempty"`
}

type indexData struct {
	Address string `json:"address"`
	Index   int    `json:"index"`
}

type managementData struct {
	Kind   string  `json:"kind"`
	Factor float64 `json:"factor,omitempty"`
}

type oscArgData struct {
	Kind       string     `json:"kind,omitempty"`
	ValueRange *rangeData `json:"value_range,omitempty"`
}

type rangeData struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type snapshotData struct {
	Kind string `json:"kind"`
	ID   string `json:"id,omitempty"`
}

// targetData is the union of all target fields. Each kind uses a subset.
type targetData struct {
	Kind               string          `json:"kind"`
	Track              *trackData      `json:"track,omitempty"`
	Exclusivity        string          `json:"exclusivity,omitempty"`
	Fx                 *fxData         `json:"fx,omitempty"`
	Parameter          *paramData      `json:"parameter,omitempty"`
	Action             json.RawMessage `json:"action,omitempty"`
	Slot               *slotData       `json:"slot,omitempty"`
	Column             *indexData      `json:"column,omitempty"`
	Row                *indexData      `json:"row,omitempty"`
	Message            string          `json:"message,omitempty"`
	Address            string          `json:"address,omitempty"`
	Argument           *oscArgData     `json:"argument,omitempty"`
	Tags               []string        `json:"tags,omitempty"`
	ActiveMappingsOnly bool            `json:"active_mappings_only,omitempty"`
	Snapshot           json.RawMessage `json:"snapshot,omitempty"`
	SnapshotID         json.RawMessage `json:"snapshot_id,omitempty"`
	Group              string          `json:"group,omitempty"`
	ID                 json.RawMessage `json:"id,omitempty"`
	Character          string          `json:"character,omitempty"`
}

// MarshalTarget encodes a descriptor
func MarshalTarget(d target.Descriptor) ([]byte, error) {
	if u, ok := d.(target.Unsupported); ok {
		return u.Raw, nil
	}
	td, err := encodeTarget(d)
	if err != nil {
		return nil, err
	}
	return json.Marshal(td)
}

// UnmarshalTarget decodes a descriptor. Kinds this engine doesn't know come
// back as target.Unsupported holding the raw JSON.
func UnmarshalTarget(data []byte) (target.Descriptor, error) {
	var td targetData
	if err := json.Unmarshal(data, &td); err != nil {
		return nil, errors.Wrap(err, "target")
	}
	if td.Kind == "" {
		return nil, errors.Wrap(ErrMissingKind, "target")
	}
	kind := CanonicalKind(td.Kind)
	d, known, err := decodeTarget(target.Kind(kind), &td)
	if err != nil {
		return nil, errors.Wrapf(err, "target %s", kind)
	}
	if !known {
		var raw bytes.Buffer
		if err := json.Compact(&raw, data); err != nil {
			return nil, errors.Wrap(err, "target")
		}
		return target.Unsupported{Tag: kind, Raw: raw.Bytes()}, nil
	}
	return d, nil
}

func encodeTarget(d target.Descriptor) (*targetData, error) {
	td := &targetData{Kind: string(d.Kind())}
	switch d := d.(type) {
	case target.TrackVolume:
		td.Track = encodeTrack(d.Track)
	case target.TrackPan:
		td.Track = encodeTrack(d.Track)
	case target.TrackWidth:
		td.Track = encodeTrack(d.Track)
	case target.TrackPeak:
		td.Track = encodeTrack(d.Track)
	case target.TrackMuteState:
		td.Track, td.Exclusivity = encodeTrack(d.Track), exclusivity(d.Exclusivity)
	case target.TrackSoloState:
		td.Track, td.Exclusivity = encodeTrack(d.Track), exclusivity(d.Exclusivity)
	case target.TrackArmState:
		td.Track, td.Exclusivity = encodeTrack(d.Track), exclusivity(d.Exclusivity)
	case target.TrackSelectionState:
		td.Track, td.Exclusivity = encodeTrack(d.Track), exclusivity(d.Exclusivity)
	case target.TrackPhase:
		td.Track, td.Exclusivity = encodeTrack(d.Track), exclusivity(d.Exclusivity)
	case target.FxOnOffState:
		td.Fx = encodeFx(d.Fx)
	case target.FxParameterValue:
		td.Parameter = &paramData{Address: "ByIndex", Fx: encodeFx(d.Fx), Index: d.Index}
		if d.Name != "" {
			td.Parameter.Address, td.Parameter.Name = "ByName", d.Name
		}
	case target.TransportAction:
		td.Action = quote(d.Action.String())
	case target.ClipTransportAction:
		td.Slot, td.Action = encodeSlot(d.Slot), quote(d.Action.String())
	case target.ClipColumnAction:
		td.Column = &indexData{Address: "ByIndex", Index: d.Column}
		td.Action = quote("Stop")
	case target.ClipRowAction:
		td.Row = &indexData{Address: "ByIndex", Index: d.Row}
		td.Action = quote("Play")
	case target.ClipMatrixAction:
		td.Action = quote("Stop")
	case target.ClipSeek:
		td.Slot = encodeSlot(d.Slot)
	case target.ClipVolume:
		td.Slot = encodeSlot(d.Slot)
	case target.ClipManagement:
		td.Slot = encodeSlot(d.Slot)
		raw, err := json.Marshal(managementData{Kind: d.Action.String(), Factor: d.Factor})
		if err != nil {
			return nil, err
		}
		td.Action = raw
	case target.SendMidi:
		td.Message = d.Pattern
	case target.SendOsc:
		td.Address = d.Address
		td.Argument = &oscArgData{Kind: d.ArgType.String()}
		if d.Min != 0 || d.Max != 0 {
			td.Argument.ValueRange = &rangeData{Min: d.Min, Max: d.Max}
		}
	case target.EnableMappings:
		td.Tags = d.Tags
	case target.LoadMappingSnapshot:
		td.Tags, td.ActiveMappingsOnly = d.Tags, d.ActiveMappingsOnly
		snap := snapshotData{Kind: "Initial"}
		if d.SnapshotID != "" {
			snap = snapshotData{Kind: "ById", ID: d.SnapshotID}
		}
		td.Snapshot, _ = json.Marshal(snap)
	case target.TakeMappingSnapshot:
		td.Tags, td.ActiveMappingsOnly = d.Tags, d.ActiveMappingsOnly
		snap := snapshotData{Kind: "LastLoaded"}
		if d.SnapshotID != "" {
			snap = snapshotData{Kind: "ById", ID: d.SnapshotID}
		}
		td.Snapshot, _ = json.Marshal(snap)
	case target.BrowseGroupMappings:
		td.Group = d.GroupKey
		td.Exclusivity = "NonExclusive"
		if d.Exclusive {
			td.Exclusivity = "Exclusive"
		}
	case target.Virtual:
		td.ID = encodeElementID(d.Element)
		td.Character = d.Element.Kind.String()
	case target.Tempo, target.PlayRate, target.Seek, target.LastTouched, target.Dummy:
	default:
		return nil, errors.Wrapf(ErrInvalidValue, "target type %T", d)
	}
	return td, nil
}

func decodeTarget(kind target.Kind, td *targetData) (target.Descriptor, bool, error) {
	var (
		d   target.Descriptor
		err error
	)
	switch kind {
	case target.KindTrackVolume:
		var t target.TrackDescriptor
		t, err = decodeTrack(td.Track)
		d = target.TrackVolume{Track: t}
	case target.KindTrackPan:
		var t target.TrackDescriptor
		t, err = decodeTrack(td.Track)
		d = target.TrackPan{Track: t}
	case target.KindTrackWidth:
		var t target.TrackDescriptor
		t, err = decodeTrack(td.Track)
		d = target.TrackWidth{Track: t}
	case target.KindTrackPeak:
		var t target.TrackDescriptor
		t, err = decodeTrack(td.Track)
		d = target.TrackPeak{Track: t}
	case target.KindTrackMuteState, target.KindTrackSoloState, target.KindTrackArmState,
		target.KindTrackSelectionState, target.KindTrackPhase:
		d, err = decodeTrackSwitch(kind, td)
	case target.KindFxOnOffState:
		var fx target.FxDescriptor
		fx, err = decodeFx(td.Fx)
		d = target.FxOnOffState{Fx: fx}
	case target.KindFxParameterValue:
		d, err = decodeFxParameter(td.Parameter)
	case target.KindTempo:
		d = target.Tempo{}
	case target.KindPlayRate:
		d = target.PlayRate{}
	case target.KindSeek:
		d = target.Seek{}
	case target.KindLastTouched:
		d = target.LastTouched{}
	case target.KindDummy:
		d = target.Dummy{}
	case target.KindTransportAction:
		var a target.TransportKind
		a, err = parseName("action", unquote(td.Action), target.ParseTransportKind, target.PlayStop)
		d = target.TransportAction{Action: a}
	case target.KindClipTransportAction:
		var a target.ClipTransportKind
		a, err = parseName("action", unquote(td.Action), target.ParseClipTransportKind, target.ClipPlayStop)
		if err == nil {
			var s target.SlotDescriptor
			s, err = decodeSlot(td.Slot)
			d = target.ClipTransportAction{Slot: s, Action: a}
		}
	case target.KindClipColumnAction:
		d = target.ClipColumnAction{Column: indexOf(td.Column)}
	case target.KindClipRowAction:
		d = target.ClipRowAction{Row: indexOf(td.Row)}
	case target.KindClipMatrixAction:
		d = target.ClipMatrixAction{}
	case target.KindClipSeek:
		var s target.SlotDescriptor
		s, err = decodeSlot(td.Slot)
		d = target.ClipSeek{Slot: s}
	case target.KindClipVolume:
		var s target.SlotDescriptor
		s, err = decodeSlot(td.Slot)
		d = target.ClipVolume{Slot: s}
	case target.KindClipManagement:
		d, err = decodeClipManagement(td)
	case target.KindSendMidi:
		d = target.SendMidi{Pattern: td.Message}
	case target.KindSendOsc:
		d, err = decodeSendOsc(td)
	case target.KindEnableMappings:
		d = target.EnableMappings{Tags: td.Tags}
	case target.KindLoadMappingSnapshot:
		var id string
		id, err = decodeSnapshot(td.Snapshot, "Initial")
		d = target.LoadMappingSnapshot{Tags: td.Tags, ActiveMappingsOnly: td.ActiveMappingsOnly, SnapshotID: id}
	case target.KindTakeMappingSnapshot:
		raw := td.Snapshot
		if len(raw) == 0 {
			raw = td.SnapshotID
		}
		var id string
		id, err = decodeSnapshot(raw, "LastLoaded")
		d = target.TakeMappingSnapshot{Tags: td.Tags, ActiveMappingsOnly: td.ActiveMappingsOnly, SnapshotID: id}
	case target.KindBrowseGroupMappings:
		d = target.BrowseGroupMappings{GroupKey: td.Group, Exclusive: td.Exclusivity == "Exclusive"}
	case target.KindVirtual:
		var el source.Element
		el, err = decodeElement(td.ID, td.Character)
		d = target.Virtual{Element: el}
	default:
		return nil, false, nil
	}
	return d, true, err
}

func decodeTrackSwitch(kind target.Kind, td *targetData) (target.Descriptor, error) {
	t, err := decodeTrack(td.Track)
	if err != nil {
		return nil, err
	}
	excl, err := parseName("exclusivity", td.Exclusivity, target.ParseExclusivity, target.NonExclusive)
	if err != nil {
		return nil, err
	}
	switch kind {
	case target.KindTrackMuteState:
		return target.TrackMuteState{Track: t, Exclusivity: excl}, nil
	case target.KindTrackSoloState:
		return target.TrackSoloState{Track: t, Exclusivity: excl}, nil
	case target.KindTrackArmState:
		return target.TrackArmState{Track: t, Exclusivity: excl}, nil
	case target.KindTrackSelectionState:
		return target.TrackSelectionState{Track: t, Exclusivity: excl}, nil
	}
	return target.TrackPhase{Track: t, Exclusivity: excl}, nil
}

func exclusivity(e target.Exclusivity) string {
	if e == target.NonExclusive {
		return ""
	}
	return e.String()
}

func encodeTrack(t target.TrackDescriptor) *trackData {
	d := &trackData{Address: t.Kind.String()}
	switch t.Kind {
	case target.TrackByIndex:
		d.Index = t.Index
	case target.TrackByName:
		d.Name = t.Name
	case target.TrackByGUID:
		d.ID = t.GUID
	case target.DynamicTrack:
		d.Expression = t.Expression
	case target.TrackFromClipColumn:
		d.Column = t.Column
	}
	return d
}

// decodeTrack defaults to the track of this instance
func decodeTrack(d *trackData) (target.TrackDescriptor, error) {
	if d == nil || d.Address == "" {
		return target.TrackDescriptor{Kind: target.ThisTrack}, nil
	}
	kind, ok := target.ParseTrackKind(d.Address)
	if !ok {
		return target.TrackDescriptor{}, errors.Wrapf(ErrInvalidValue, "track address %q", d.Address)
	}
	return target.TrackDescriptor{
		Kind:       kind,
		Index:      d.Index,
		Name:       d.Name,
		GUID:       d.ID,
		Expression: d.Expression,
		Column:     d.Column,
	}, nil
}

func encodeFx(f target.FxDescriptor) *fxData {
	d := &fxData{Address: f.Kind.String(), Track: encodeTrack(f.Track)}
	switch f.Kind {
	case target.FxByIndex:
		d.Index = f.Index
	case target.FxByName:
		d.Name = f.Name
	case target.FxByGUID:
		d.ID = f.GUID
	case target.DynamicFx:
		d.Expression = f.Expression
	}
	return d
}

func decodeFx(d *fxData) (target.FxDescriptor, error) {
	if d == nil {
		return target.FxDescriptor{}, errors.Wrap(ErrInvalidValue, "missing fx")
	}
	kind, ok := target.ParseFxKind(d.Address)
	if !ok {
		return target.FxDescriptor{}, errors.Wrapf(ErrInvalidValue, "fx address %q", d.Address)
	}
	t, err := decodeTrack(d.Track)
	if err != nil {
		return target.FxDescriptor{}, err
	}
	return target.FxDescriptor{Track: t, Kind: kind, Index: d.Index, Name: d.Name, GUID: d.ID, Expression: d.Expression}, nil
}

func decodeFxParameter(d *paramData) (target.Descriptor, error) {
	if d == nil {
		return nil, errors.Wrap(ErrInvalidValue, "missing parameter")
	}
	fx, err := decodeFx(d.Fx)
	if err != nil {
		return nil, err
	}
	p := target.FxParameterValue{Fx: fx}
	switch d.Address {
	case "", "ByIndex":
		p.Index = d.Index
	case "ByName":
		p.Name = d.Name
	default:
		return nil, errors.Wrapf(ErrInvalidValue, "parameter address %q", d.Address)
	}
	return p, nil
}

func encodeSlot(s target.SlotDescriptor) *slotData {
	if s.Selected {
		return &slotData{Address: "Selected"}
	}
	return &slotData{Address: "ByIndex", Column: s.Column, Row: s.Row}
}

func decodeSlot(d *slotData) (target.SlotDescriptor, error) {
	if d == nil {
		return target.SlotDescriptor{Selected: true}, nil
	}
	switch d.Address {
	case "", "Selected":
		return target.SlotDescriptor{Selected: true}, nil
	case "ByIndex":
		return target.SlotDescriptor{Column: d.Column, Row: d.Row}, nil
	}
	return target.SlotDescriptor{}, errors.Wrapf(ErrInvalidValue, "slot address %q", d.Address)
}

func indexOf(d *indexData) int {
	if d == nil {
		return 0
	}
	return d.Index
}

func decodeClipManagement(td *targetData) (target.Descriptor, error) {
	s, err := decodeSlot(td.Slot)
	if err != nil {
		return nil, err
	}
	var m managementData
	if len(td.Action) > 0 {
		// either {"kind": "ClearSlot"} or just "ClearSlot"
		if err := json.Unmarshal(td.Action, &m); err != nil {
			m = managementData{Kind: unquote(td.Action)}
		}
	}
	a, err := parseName("action", m.Kind, target.ParseClipManagementKind, target.ClearSlot)
	if err != nil {
		return nil, err
	}
	return target.ClipManagement{Slot: s, Action: a, Factor: m.Factor}, nil
}

func decodeSendOsc(td *targetData) (target.Descriptor, error) {
	d := target.SendOsc{Address: td.Address}
	if td.Argument != nil {
		t, err := parseName("argument kind", td.Argument.Kind, source.ParseOscArgType, source.OscFloat)
		if err != nil {
			return nil, err
		}
		d.ArgType = t
		if r := td.Argument.ValueRange; r != nil {
			d.Min, d.Max = r.Min, r.Max
		}
	}
	return d, nil
}

// decodeSnapshot accepts {"kind": "ById", "id": "x"}, {"kind": def} and the
// old plain string form
func decodeSnapshot(raw json.RawMessage, def string) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id, nil
	}
	var s snapshotData
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", errors.Wrap(ErrInvalidValue, "snapshot")
	}
	switch s.Kind {
	case def, "":
		return "", nil
	case "ById":
		return s.ID, nil
	}
	return "", errors.Wrapf(ErrInvalidValue, "snapshot kind %q", s.Kind)
}

// encodeElementID writes named elements as strings and indexed ones as numbers
func encodeElementID(e source.Element) json.RawMessage {
	if e.Name != "" {
		return quote(e.Name)
	}
	return json.RawMessage(strconv.FormatUint(uint64(e.Index), 10))
}

func decodeElement(id json.RawMessage, character string) (source.Element, error) {
	var el source.Element
	switch character {
	case "", "Multi":
		el.Kind = source.Multi
	case "Button":
		el.Kind = source.VirtualButton
	default:
		return el, errors.Wrapf(ErrInvalidValue, "element character %q", character)
	}
	if len(id) == 0 {
		return el, nil
	}
	var n uint32
	if err := json.Unmarshal(id, &n); err == nil {
		el.Index = n
		return el, nil
	}
	if err := json.Unmarshal(id, &el.Name); err != nil {
		return el, errors.Wrap(ErrInvalidValue, "element id")
	}
	return el, nil
}

func parseName[T any](field, s string, parse func(string) (T, bool), def T) (T, error) {
	if s == "" {
		return def, nil
	}
	v, ok := parse(s)
	if !ok {
		return def, errors.Wrapf(ErrInvalidValue, "%s %q", field, s)
	}
	return v, nil
}

func quote(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

func unquote(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}
