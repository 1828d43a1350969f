package persist

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"go-surface/mapping"
	"go-surface/mode"
	"go-surface/source"
	"go-surface/target"
)

func TestTargetAliasesAndDefaults(t *testing.T) {
	tests := []struct {
		name string
		json string
		want target.Descriptor
	}{
		{"track defaults to this", `{"kind":"TrackVolume"}`,
			target.TrackVolume{Track: target.TrackDescriptor{Kind: target.ThisTrack}}},
		{"track by index", `{"kind":"TrackMuteState","track":{"address":"ByIndex","index":2},"exclusivity":"WithinProject"}`,
			target.TrackMuteState{Track: target.TrackDescriptor{Kind: target.TrackByIndex, Index: 2}, Exclusivity: target.ExclusiveWithinProject}},
		{"group mappings alias", `{"kind":"CycleThroughGroupMappings","group":"k1","exclusivity":"Exclusive"}`,
			target.BrowseGroupMappings{GroupKey: "k1", Exclusive: true}},
		{"load snapshot alias", `{"kind":"LoadMappingSnapshots","tags":["a"]}`,
			target.LoadMappingSnapshot{Tags: []string{"a"}}},
		{"take snapshot old form", `{"kind":"TakeMappingSnapshot","snapshot_id":"s1"}`,
			target.TakeMappingSnapshot{SnapshotID: "s1"}},
		{"take snapshot by id", `{"kind":"TakeMappingSnapshot","snapshot":{"kind":"ById","id":"s2"}}`,
			target.TakeMappingSnapshot{SnapshotID: "s2"}},
		{"take snapshot last loaded", `{"kind":"TakeMappingSnapshot","snapshot":{"kind":"LastLoaded"}}`,
			target.TakeMappingSnapshot{}},
		{"virtual numeric id", `{"kind":"Virtual","id":5,"character":"Button"}`,
			target.Virtual{Element: source.Element{Kind: source.VirtualButton, Index: 5}}},
		{"virtual named id", `{"kind":"Virtual","id":"play"}`,
			target.Virtual{Element: source.Element{Kind: source.Multi, Name: "play"}}},
		{"clip slot defaults to selected", `{"kind":"ClipTransportAction","action":"RecordStop"}`,
			target.ClipTransportAction{Slot: target.SlotDescriptor{Selected: true}, Action: target.ClipRecordStop}},
		{"clip management plain action", `{"kind":"ClipManagement","action":"ClearSlot","slot":{"address":"ByIndex","column_index":1}}`,
			target.ClipManagement{Slot: target.SlotDescriptor{Column: 1}, Action: target.ClearSlot}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UnmarshalTarget([]byte(tt.json))
			if err != nil {
				t.Fatalf("UnmarshalTarget failed: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %#v, got %#v", tt.want, got)
			}
		})
	}
}

func TestUnsupportedKindSurvives(t *testing.T) {
	raw := `{"kind":"CycleThroughTracks","scroll_arrange_view":true}`
	d, err := UnmarshalTarget([]byte(raw))
	if err != nil {
		t.Fatalf("UnmarshalTarget failed: %v", err)
	}
	u, ok := d.(target.Unsupported)
	if !ok {
		t.Fatalf("Expected Unsupported, got %T", d)
	}
	if u.Tag != "BrowseTracks" {
		t.Errorf("Expected canonical tag BrowseTracks, got %q", u.Tag)
	}
	out, err := MarshalTarget(d)
	if err != nil {
		t.Fatalf("MarshalTarget failed: %v", err)
	}
	if string(out) != raw {
		t.Errorf("Expected raw JSON back, got %s", out)
	}
}

func TestTargetErrors(t *testing.T) {
	tests := []struct {
		name string
		json string
		want error
	}{
		{"missing kind", `{"track":{"address":"This"}}`, ErrMissingKind},
		{"bad track address", `{"kind":"TrackPan","track":{"address":"Nowhere"}}`, ErrInvalidValue},
		{"bad exclusivity", `{"kind":"TrackSoloState","exclusivity":"Sometimes"}`, ErrInvalidValue},
		{"fx without fx", `{"kind":"FxOnOffState"}`, ErrInvalidValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := UnmarshalTarget([]byte(tt.json)); !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestTargetRoundTrip(t *testing.T) {
	fx := target.FxDescriptor{Track: target.TrackDescriptor{Kind: target.TrackByName, Name: "Bass"}, Kind: target.FxByIndex, Index: 1}
	descriptors := []target.Descriptor{
		target.TrackPan{Track: target.TrackDescriptor{Kind: target.MasterTrack}},
		target.TrackArmState{Track: target.TrackDescriptor{Kind: target.DynamicTrack, Expression: "p[0] * 8"}, Exclusivity: target.ExclusiveWithinProjectOnOnly},
		target.TrackPeak{Track: target.TrackDescriptor{Kind: target.TrackFromClipColumn, Column: 3}},
		target.FxOnOffState{Fx: fx},
		target.FxParameterValue{Fx: fx, Index: 4},
		target.FxParameterValue{Fx: fx, Name: "Cutoff"},
		target.Tempo{},
		target.TransportAction{Action: target.Stop},
		target.ClipColumnAction{Column: 2},
		target.ClipRowAction{Row: 1},
		target.ClipVolume{Slot: target.SlotDescriptor{Column: 1, Row: 2}},
		target.ClipManagement{Slot: target.SlotDescriptor{Selected: true}, Action: target.AdjustClipSectionLength, Factor: 2},
		target.SendMidi{Pattern: "B0 07 [0ddd dddd]"},
		target.SendOsc{Address: "/fader", ArgType: source.OscInt, Min: 0, Max: 127},
		target.EnableMappings{Tags: []string{"bank-a"}},
		target.LoadMappingSnapshot{Tags: []string{"x"}, ActiveMappingsOnly: true, SnapshotID: "one"},
		target.TakeMappingSnapshot{SnapshotID: "two"},
		target.BrowseGroupMappings{GroupKey: "g"},
		target.Virtual{Element: source.Element{Kind: source.VirtualButton, Name: "rec"}},
	}
	for _, d := range descriptors {
		data, err := MarshalTarget(d)
		if err != nil {
			t.Fatalf("MarshalTarget(%#v) failed: %v", d, err)
		}
		got, err := UnmarshalTarget(data)
		if err != nil {
			t.Fatalf("UnmarshalTarget(%s) failed: %v", data, err)
		}
		if !reflect.DeepEqual(got, d) {
			t.Errorf("Expected %#v, got %#v (json %s)", d, got, data)
		}
	}
}

func testData(t *testing.T) mapping.Data {
	t.Helper()
	m := mapping.NewModel(mapping.Main)
	g := m.AddGroup(mapping.NewGroup("Bank B"))
	m.UpdateGroup(g, func(g *mapping.Group) {
		g.FeedbackEnabled = false
		g.Activation = mapping.Condition{Kind: mapping.Bank, BankParam: 0, BankIndex: 1}
	})

	a := mapping.New(mapping.Main)
	a.Name = "Volume"
	a.Source = source.Midi(source.CC(0, 7))
	a.Target = target.TrackVolume{Track: target.TrackDescriptor{Kind: target.TrackByIndex, Index: 1}}
	a.Mode.Reverse = true
	a.Mode.Takeover = mode.PickUp
	a.PreventEchoFeedback = true
	if _, err := m.Add(a); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	b := mapping.New(mapping.Main)
	b.Name = "Pan"
	b.Group = g
	b.ControlEnabled = false
	b.Source = source.Osc(source.NewOscSource("/pan"))
	b.Target = target.TrackPan{Track: target.TrackDescriptor{Kind: target.SelectedTrack}}
	b.Activation = mapping.Condition{Kind: mapping.Modifiers, Modifiers: []mapping.Modifier{{Param: 3, On: true}}}
	b.Tags = []string{"mix"}
	if _, err := m.Add(b); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	c := mapping.New(mapping.Main)
	c.Name = "Any channel note"
	c.Source = source.Midi(source.MidiSource{Type: source.NoteVelocity, Channel: source.Any, Number: 60, Character: source.Button})
	c.Target = target.Unsupported{Tag: "BrowsePotPresets", Raw: []byte(`{"kind":"BrowsePotPresets"}`)}
	if _, err := m.Add(c); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	m.SetParam(0, 0.5)
	m.SetParamSetting(3, mapping.ParamSetting{Key: "shift", Name: "Shift", ValueCount: 2})
	m.SetNotes("studio rig")
	return m.Export()
}

func TestCompartmentRoundTrip(t *testing.T) {
	orig := testData(t)
	data, err := MarshalCompartment(mapping.Main, orig)
	if err != nil {
		t.Fatalf("MarshalCompartment failed: %v", err)
	}
	c, d, err := UnmarshalCompartment(data)
	if err != nil {
		t.Fatalf("UnmarshalCompartment failed: %v", err)
	}
	if c != mapping.Main {
		t.Errorf("Expected main compartment, got %v", c)
	}

	m := mapping.NewModel(mapping.Main)
	if err := m.Import(d); err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	got := m.Export()
	if len(got.Mappings) != len(orig.Mappings) {
		t.Fatalf("Expected %d mappings, got %d", len(orig.Mappings), len(got.Mappings))
	}
	for i, want := range orig.Mappings {
		have := got.Mappings[i]
		want.ID, have.ID = 0, 0
		if !reflect.DeepEqual(have, want) {
			t.Errorf("Mapping %d: expected %+v, got %+v", i, want, have)
		}
	}
	if !reflect.DeepEqual(got.Groups, orig.Groups) {
		t.Errorf("Expected groups %+v, got %+v", orig.Groups, got.Groups)
	}
	if got.Params != orig.Params || got.ParamSettings != orig.ParamSettings {
		t.Error("Expected parameters to survive")
	}
	if got.Notes != "studio rig" {
		t.Errorf("Expected notes, got %q", got.Notes)
	}
}

func TestMappingDefaults(t *testing.T) {
	m, err := UnmarshalMapping(mapping.Controller, []byte(`{"name":"Knob","source":{"category":"Midi","number":21},"mode":{"reverse":true}}`))
	if err != nil {
		t.Fatalf("UnmarshalMapping failed: %v", err)
	}
	if !m.Enabled || !m.ControlEnabled || !m.FeedbackEnabled {
		t.Error("Expected missing enabled flags to default to true")
	}
	if m.Key == "" || m.Compartment != mapping.Controller {
		t.Errorf("Expected fresh key in controller compartment, got %q %v", m.Key, m.Compartment)
	}
	if m.Source.Midi.Channel != source.Any || m.Source.Midi.Number != 21 || m.Source.Midi.Type != source.ControlChangeValue {
		t.Errorf("Expected CC 21 on any channel, got %v", m.Source)
	}
	want := mode.DefaultSettings()
	want.Reverse = true
	if m.Mode != want {
		t.Errorf("Expected default mode with reverse, got %+v", m.Mode)
	}
	if m.Target != nil {
		t.Errorf("Expected no target, got %v", m.Target)
	}

	if _, err := UnmarshalMapping(mapping.Main, []byte(`{"source":{"category":"Midi","channel":16}}`)); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("Expected ErrInvalidValue for channel 16, got %v", err)
	}
	if _, err := UnmarshalMapping(mapping.Main, []byte(`{"source":{"category":"Midi","number":256}}`)); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("Expected ErrInvalidValue for number 256, got %v", err)
	}
}

func TestStore(t *testing.T) {
	s := NewStore(t.TempDir())
	clock := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	d := testData(t)
	first, err := s.Save("live set", "", mapping.Main, d)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if first != "2024-01-15_14-30-00.json" {
		t.Errorf("Expected timestamped filename, got %q", first)
	}
	clock = clock.Add(time.Minute)
	d.Notes = "second"
	second, err := s.Save("live set", "after soundcheck", mapping.Main, d)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	presets, _ := s.Presets()
	if len(presets) != 1 || presets[0] != "live-set" {
		t.Errorf("Expected sanitized preset folder, got %v", presets)
	}
	saves, err := s.Saves("live-set")
	if err != nil || len(saves) != 2 {
		t.Fatalf("Expected 2 saves, got %d (%v)", len(saves), err)
	}
	if saves[0].Filename != second || saves[0].Name != "after-soundcheck" {
		t.Errorf("Expected newest save first, got %+v", saves[0])
	}

	_, loaded, err := s.Load("live-set", "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Notes != "second" {
		t.Errorf("Expected latest save, got notes %q", loaded.Notes)
	}

	renamed, err := s.Rename("live-set", first, "warmup")
	if err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	if renamed != "2024-01-15_14-30-00_warmup.json" {
		t.Errorf("Expected renamed file, got %q", renamed)
	}
	if err := s.Delete("live-set", second); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if saves, _ := s.Saves("live-set"); len(saves) != 1 || saves[0].Name != "warmup" {
		t.Errorf("Expected only the renamed save left, got %+v", saves)
	}
	if _, _, err := s.Load("empty", ""); err == nil {
		t.Error("Expected error loading preset without saves")
	}
}
