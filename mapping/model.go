package mapping

import (
	"slices"

	"github.com/pkg/errors"
)

// Model is the content of one compartment: mappings in order, groups,
// parameters and notes
type Model struct {
	compartment Compartment

	mappings Arena[Mapping]
	order    []Handle
	byID     map[ID]Handle
	nextID   ID

	groups      []Group // default group first
	nextGroupID GroupID

	params Params
	notes  string
	dirty  bool
}

// NewModel creates an empty compartment with its default group
func NewModel(c Compartment) *Model {
	m := &Model{compartment: c}
	m.Reset()
	return m
}

func (m *Model) Compartment() Compartment { return m.compartment }

// Reset removes all mappings, groups and notes and zeroes the parameters
func (m *Model) Reset() {
	m.mappings.Clear()
	m.order = nil
	m.byID = make(map[ID]Handle)
	m.nextID = 1
	m.groups = []Group{defaultGroup()}
	m.nextGroupID = DefaultGroupID + 1
	m.params = Params{}
	m.notes = ""
	m.dirty = true
}

func (m *Model) Dirty() bool { return m.dirty }
func (m *Model) MarkClean()  { m.dirty = false }

func (m *Model) Notes() string { return m.notes }

func (m *Model) SetNotes(s string) {
	m.notes = s
	m.dirty = true
}

func (m *Model) Len() int { return m.mappings.Len() }

func (m *Model) keyUsed(key string, except ID) bool {
	for _, h := range m.order {
		mp, _ := m.mappings.Get(h)
		if mp.Key == key && mp.ID != except {
			return true
		}
	}
	return false
}

// Add stores a new mapping at the end of the list and returns its id. The
// mapping gets a key if it has none.
func (m *Model) Add(mp Mapping) (ID, error) {
	if mp.Key == "" {
		mp.Key = NewKey()
	}
	if m.keyUsed(mp.Key, 0) {
		return 0, errors.Wrap(ErrDuplicateKey, mp.Key)
	}
	if _, ok := m.Group(mp.Group); !ok {
		return 0, errors.Wrapf(ErrGroupNotFound, "group %d", mp.Group)
	}
	mp = mp.Clone()
	mp.ID = m.nextID
	mp.Compartment = m.compartment
	m.nextID++
	h := m.mappings.Insert(mp)
	m.order = append(m.order, h)
	m.byID[mp.ID] = h
	m.dirty = true
	return mp.ID, nil
}

// Get returns a copy of the mapping
func (m *Model) Get(id ID) (Mapping, bool) {
	mp, ok := m.mappings.Get(m.byID[id])
	if !ok {
		return Mapping{}, false
	}
	return mp.Clone(), true
}

// ByKey finds a mapping by its stable key
func (m *Model) ByKey(key string) (Mapping, bool) {
	for _, h := range m.order {
		if mp, _ := m.mappings.Get(h); mp.Key == key {
			return mp.Clone(), true
		}
	}
	return Mapping{}, false
}

// Update applies fn to the mapping. Id and compartment can't change.
func (m *Model) Update(id ID, fn func(*Mapping)) error {
	stored, ok := m.mappings.Get(m.byID[id])
	if !ok {
		return errors.Wrapf(ErrMappingNotFound, "mapping %d", id)
	}
	next := stored.Clone()
	fn(&next)
	next.ID, next.Compartment = id, m.compartment
	if next.Key == "" || m.keyUsed(next.Key, id) {
		return errors.Wrap(ErrDuplicateKey, next.Key)
	}
	if _, ok := m.Group(next.Group); !ok {
		return errors.Wrapf(ErrGroupNotFound, "group %d", next.Group)
	}
	*stored = next
	m.dirty = true
	return nil
}

// Remove deletes the mapping
func (m *Model) Remove(id ID) error {
	h, ok := m.byID[id]
	if !ok {
		return errors.Wrapf(ErrMappingNotFound, "mapping %d", id)
	}
	m.mappings.Remove(h)
	delete(m.byID, id)
	m.order = slices.DeleteFunc(m.order, func(x Handle) bool { return x == h })
	m.dirty = true
	return nil
}

// Duplicate copies a mapping right after the original, with a fresh id and key
func (m *Model) Duplicate(id ID) (ID, error) {
	orig, ok := m.Get(id)
	if !ok {
		return 0, errors.Wrapf(ErrMappingNotFound, "mapping %d", id)
	}
	orig.Key = NewKey()
	newID, err := m.Add(orig)
	if err != nil {
		return 0, err
	}
	// move from the end to right after the original
	h := m.order[len(m.order)-1]
	m.order = m.order[:len(m.order)-1]
	i := slices.Index(m.order, m.byID[id])
	m.order = slices.Insert(m.order, i+1, h)
	return newID, nil
}

// Mappings returns copies of all mappings in list order
func (m *Model) Mappings() []Mapping {
	out := make([]Mapping, 0, len(m.order))
	for _, h := range m.order {
		mp, _ := m.mappings.Get(h)
		out = append(out, mp.Clone())
	}
	return out
}

// IDs returns all mapping ids in list order
func (m *Model) IDs() []ID {
	out := make([]ID, 0, len(m.order))
	for _, h := range m.order {
		mp, _ := m.mappings.Get(h)
		out = append(out, mp.ID)
	}
	return out
}

func (m *Model) Groups() []Group {
	out := make([]Group, len(m.groups))
	for i, g := range m.groups {
		out[i] = g.Clone()
	}
	return out
}

func (m *Model) Group(id GroupID) (Group, bool) {
	for _, g := range m.groups {
		if g.ID == id {
			return g.Clone(), true
		}
	}
	return Group{}, false
}

// AddGroup stores a new group and returns its id
func (m *Model) AddGroup(g Group) GroupID {
	if g.Key == "" {
		g.Key = NewKey()
	}
	g = g.Clone()
	g.ID = m.nextGroupID
	m.nextGroupID++
	m.groups = append(m.groups, g)
	m.dirty = true
	return g.ID
}

// UpdateGroup applies fn to a group, including the default group
func (m *Model) UpdateGroup(id GroupID, fn func(*Group)) error {
	for i := range m.groups {
		if m.groups[i].ID == id {
			next := m.groups[i].Clone()
			fn(&next)
			next.ID = id
			m.groups[i] = next
			m.dirty = true
			return nil
		}
	}
	return errors.Wrapf(ErrGroupNotFound, "group %d", id)
}

// RemoveGroup deletes a group. Its mappings are deleted too or moved to the
// default group. Returns the ids of the deleted mappings.
func (m *Model) RemoveGroup(id GroupID, deleteMappings bool) ([]ID, error) {
	if id == DefaultGroupID {
		return nil, ErrDefaultGroupUndeletable
	}
	i := slices.IndexFunc(m.groups, func(g Group) bool { return g.ID == id })
	if i < 0 {
		return nil, errors.Wrapf(ErrGroupNotFound, "group %d", id)
	}
	var removed []ID
	for _, h := range slices.Clone(m.order) {
		mp, _ := m.mappings.Get(h)
		if mp.Group != id {
			continue
		}
		if deleteMappings {
			removed = append(removed, mp.ID)
			m.Remove(mp.ID)
		} else {
			mp.Group = DefaultGroupID
		}
	}
	m.groups = slices.Delete(m.groups, i, i+1)
	m.dirty = true
	return removed, nil
}

// Params gives read access to the parameters
func (m *Model) Params() *Params { return &m.params }

// SetParam changes a parameter value and reports whether it changed
func (m *Model) SetParam(i int, v float64) (bool, error) {
	changed, err := m.params.Set(i, v)
	if changed {
		m.dirty = true
	}
	return changed, err
}

func (m *Model) SetParamSetting(i int, s ParamSetting) error {
	if err := m.params.SetSetting(i, s); err != nil {
		return err
	}
	m.dirty = true
	return nil
}

// Flags are the effective switches of a mapping after combining it with its group
type Flags struct {
	Active          bool
	ControlEnabled  bool
	FeedbackEnabled bool
}

// EffectiveFlags combines mapping, group and activation conditions
func (m *Model) EffectiveFlags(id ID) (Flags, error) {
	mp, ok := m.mappings.Get(m.byID[id])
	if !ok {
		return Flags{}, errors.Wrapf(ErrMappingNotFound, "mapping %d", id)
	}
	return m.flagsOf(mp), nil
}

func (m *Model) flagsOf(mp *Mapping) Flags {
	g, ok := m.Group(mp.Group)
	if !ok {
		g = defaultGroup()
	}
	active := mp.Enabled && mp.Activation.IsFulfilled(&m.params) && g.Activation.IsFulfilled(&m.params)
	return Flags{
		Active:          active,
		ControlEnabled:  active && mp.ControlEnabled && g.ControlEnabled,
		FeedbackEnabled: active && mp.FeedbackEnabled && g.FeedbackEnabled,
	}
}

// AffectedByParam returns the mappings whose activation reads parameter i,
// directly or through their group
func (m *Model) AffectedByParam(i int) []ID {
	var out []ID
	for _, h := range m.order {
		mp, _ := m.mappings.Get(h)
		g, _ := m.Group(mp.Group)
		if mp.Activation.Uses(i) || g.Activation.Uses(i) {
			out = append(out, mp.ID)
		}
	}
	return out
}

// Data is the exportable content of a compartment
type Data struct {
	Mappings      []Mapping
	Groups        []Group // without the default group
	DefaultGroup  Group
	Params        [ParameterCount]float64
	ParamSettings [ParameterCount]ParamSetting
	Notes         string
}

// Export copies the compartment content
func (m *Model) Export() Data {
	d := Data{Mappings: m.Mappings(), Params: m.params.values, ParamSettings: m.params.settings, Notes: m.notes}
	for _, g := range m.Groups() {
		if g.ID == DefaultGroupID {
			d.DefaultGroup = g
		} else {
			d.Groups = append(d.Groups, g)
		}
	}
	return d
}

// Import replaces the compartment content. Group ids are kept, mapping ids
// are assigned in list order. Mappings referring to unknown groups end up in
// the default group.
func (m *Model) Import(d Data) error {
	m.Reset()
	def := d.DefaultGroup.Clone()
	def.ID = DefaultGroupID
	if def.Key == "" {
		def = defaultGroup()
	}
	m.groups = []Group{def}
	for _, g := range d.Groups {
		if g.ID == DefaultGroupID {
			continue
		}
		if _, dup := m.Group(g.ID); dup {
			return errors.Errorf("duplicate group id %d", g.ID)
		}
		m.groups = append(m.groups, g.Clone())
		m.nextGroupID = max(m.nextGroupID, g.ID+1)
	}
	for _, mp := range d.Mappings {
		if _, ok := m.Group(mp.Group); !ok {
			mp.Group = DefaultGroupID
		}
		if _, err := m.Add(mp); err != nil {
			return err
		}
	}
	m.params.values = d.Params
	m.params.settings = d.ParamSettings
	m.notes = d.Notes
	m.dirty = false
	return nil
}
