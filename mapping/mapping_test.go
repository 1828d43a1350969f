package mapping

import (
	"errors"
	"testing"

	"go-surface/target"
)

func TestArenaGenerations(t *testing.T) {
	var a Arena[string]
	h1 := a.Insert("one")
	h2 := a.Insert("two")
	if v, ok := a.Get(h1); !ok || *v != "one" {
		t.Fatalf("Expected one, got %v", v)
	}
	if _, ok := a.Remove(h1); !ok {
		t.Fatal("Expected removal to succeed")
	}
	h3 := a.Insert("three") // reuses the slot of h1
	if _, ok := a.Get(h1); ok {
		t.Error("Expected stale handle to be invalid after slot reuse")
	}
	if _, ok := a.Remove(h1); ok {
		t.Error("Expected removing a stale handle to be a no-op")
	}
	if v, ok := a.Get(h3); !ok || *v != "three" {
		t.Errorf("Expected three, got %v", v)
	}
	if a.Len() != 2 {
		t.Errorf("Expected 2 entries, got %d", a.Len())
	}
	a.Clear()
	if _, ok := a.Get(h2); ok || a.Len() != 0 {
		t.Error("Expected clear to invalidate everything")
	}
	if _, ok := a.Get(Handle{}); ok {
		t.Error("Expected zero handle to be invalid")
	}
}

func TestDefaultGroupUndeletable(t *testing.T) {
	m := NewModel(Main)
	if _, err := m.RemoveGroup(DefaultGroupID, true); !errors.Is(err, ErrDefaultGroupUndeletable) {
		t.Errorf("Expected ErrDefaultGroupUndeletable, got %v", err)
	}
	if _, err := m.RemoveGroup(42, true); !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("Expected ErrGroupNotFound, got %v", err)
	}
}

func TestRemoveGroup(t *testing.T) {
	tests := []struct {
		name           string
		deleteMappings bool
		wantLen        int
	}{
		{"move to default", false, 3},
		{"delete mappings", true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewModel(Main)
			g := m.AddGroup(NewGroup("Drums"))
			kick, snare := New(Main), New(Main)
			kick.Group, snare.Group = g, g
			kickID, _ := m.Add(kick)
			m.Add(snare)
			m.Add(New(Main))

			removed, err := m.RemoveGroup(g, tt.deleteMappings)
			if err != nil {
				t.Fatalf("RemoveGroup failed: %v", err)
			}
			if m.Len() != tt.wantLen {
				t.Errorf("Expected %d mappings, got %d", tt.wantLen, m.Len())
			}
			if tt.deleteMappings && len(removed) != 2 {
				t.Errorf("Expected 2 removed ids, got %v", removed)
			}
			if !tt.deleteMappings {
				mp, _ := m.Get(kickID)
				if mp.Group != DefaultGroupID {
					t.Errorf("Expected mapping in default group, got %d", mp.Group)
				}
			}
			if _, ok := m.Group(g); ok {
				t.Error("Expected group to be gone")
			}
		})
	}
}

func TestDuplicateMapping(t *testing.T) {
	m := NewModel(Controller)
	a := New(Controller)
	a.Name = "Fader 1"
	a.Tags = []string{"faders"}
	a.Target = target.TrackVolume{Track: target.TrackDescriptor{Kind: target.TrackByIndex, Index: 2}}
	aID, _ := m.Add(a)
	bID, _ := m.Add(New(Controller))

	dupID, err := m.Duplicate(aID)
	if err != nil {
		t.Fatalf("Duplicate failed: %v", err)
	}
	orig, _ := m.Get(aID)
	dup, _ := m.Get(dupID)
	if dupID == aID || dup.Key == orig.Key {
		t.Errorf("Expected fresh id and key, got %d/%s", dupID, dup.Key)
	}
	if dup.Name != orig.Name || !dup.HasTag("faders") || dup.Target != orig.Target {
		t.Errorf("Expected fields copied, got %+v", dup)
	}
	ids := m.IDs()
	want := []ID{aID, dupID, bID}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("Expected order %v, got %v", want, ids)
		}
	}

	// the copy's tags are its own
	m.Update(dupID, func(mp *Mapping) { mp.Tags[0] = "changed" })
	if orig, _ := m.Get(aID); orig.Tags[0] != "faders" {
		t.Errorf("Expected original tags untouched, got %v", orig.Tags)
	}
}

func TestKeysUniquePerCompartment(t *testing.T) {
	m := NewModel(Main)
	a := New(Main)
	if _, err := m.Add(a); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := m.Add(a); !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
	other := NewModel(Controller)
	if _, err := other.Add(a); err != nil {
		t.Errorf("Expected the same key to be fine in another compartment, got %v", err)
	}
}

func TestActivationConditions(t *testing.T) {
	var p Params
	p.Set(0, 1)
	p.Set(1, 0)
	p.Set(2, 0.5)
	p.SetSetting(3, ParamSetting{ValueCount: 4})
	p.Set(3, 2.0/3)

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"always", Condition{}, true},
		{"modifier on", Condition{Kind: Modifiers, Modifiers: []Modifier{{Param: 0, On: true}}}, true},
		{"modifier off", Condition{Kind: Modifiers, Modifiers: []Modifier{{Param: 1, On: false}}}, true},
		{"modifiers mixed", Condition{Kind: Modifiers, Modifiers: []Modifier{{Param: 0, On: true}, {Param: 1, On: true}}}, false},
		{"bank continuous", Condition{Kind: Bank, BankParam: 2, BankIndex: 50}, true},
		{"bank discrete", Condition{Kind: Bank, BankParam: 3, BankIndex: 2}, true},
		{"bank other", Condition{Kind: Bank, BankParam: 3, BankIndex: 1}, false},
		{"expression", Condition{Kind: Expression, Expression: "p[0] + p[1]"}, true},
		{"expression false", Condition{Kind: Expression, Expression: "p[1]"}, false},
		{"broken expression", Condition{Kind: Expression, Expression: "p[0] +"}, false},
	}
	for _, tt := range tests {
		if got := tt.cond.IsFulfilled(&p); got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}
}

func TestEffectiveFlags(t *testing.T) {
	m := NewModel(Main)
	g := NewGroup("Shift layer")
	g.Activation = Condition{Kind: Modifiers, Modifiers: []Modifier{{Param: 5, On: true}}}
	gID := m.AddGroup(g)
	mp := New(Main)
	mp.Group = gID
	mp.FeedbackEnabled = false
	id, _ := m.Add(mp)

	flags, _ := m.EffectiveFlags(id)
	if flags.Active {
		t.Error("Expected mapping inactive while its group's modifier is off")
	}
	if ids := m.AffectedByParam(5); len(ids) != 1 || ids[0] != id {
		t.Errorf("Expected mapping to depend on p[5], got %v", ids)
	}
	m.SetParam(5, 1)
	flags, _ = m.EffectiveFlags(id)
	if !flags.Active || !flags.ControlEnabled || flags.FeedbackEnabled {
		t.Errorf("Expected active with control only, got %+v", flags)
	}
}

func TestExportImport(t *testing.T) {
	m := NewModel(Main)
	gID := m.AddGroup(NewGroup("Mixer"))
	mp := New(Main)
	mp.Group = gID
	mp.Name = "Volume"
	m.Add(mp)
	m.SetParam(7, 0.25)
	m.SetNotes("hello")

	data := m.Export()
	n := NewModel(Main)
	if err := n.Import(data); err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if n.Dirty() {
		t.Error("Expected a freshly imported compartment to be clean")
	}
	got := n.Mappings()
	if len(got) != 1 || got[0].Name != "Volume" || got[0].Group != gID || got[0].Key != mp.Key {
		t.Errorf("Expected imported mapping, got %+v", got)
	}
	if v, _ := n.Params().Get(7); v != 0.25 {
		t.Errorf("Expected p[7] = 0.25, got %v", v)
	}
	if n.Notes() != "hello" {
		t.Errorf("Expected notes, got %q", n.Notes())
	}
	// new groups don't collide with imported ones
	if id := n.AddGroup(NewGroup("Another")); id == gID {
		t.Errorf("Expected fresh group id, got %d", id)
	}
}
