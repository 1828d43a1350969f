package pot

import (
	"encoding/json"

	"github.com/pkg/errors"
)

var ErrInvalidFilter = errors.New("invalid filter")

// DatabaseID identifies a preset database at runtime
type DatabaseID uint32

// InnerPresetID identifies a preset within one database at runtime
type InnerPresetID uint32

// PresetID identifies a preset across databases. Stable only until the
// databases are refreshed.
type PresetID struct {
	Database DatabaseID
	Preset   InnerPresetID
}

// FilType says how to read a Fil
type FilType uint8

const (
	// FilKomplete is a database specific integer, not stable across scans
	FilKomplete FilType = iota
	FilDatabase
	FilBoolean
	FilProductKind
	// FilProduct refers to a product id created at runtime
	FilProduct
)

var filTypeNames = [...]string{"Komplete", "Database", "Boolean", "ProductKind", "Product"}

func (t FilType) String() string {
	if int(t) < len(filTypeNames) {
		return filTypeNames[t]
	}
	return "Komplete"
}

// Fil is a filter value
type Fil struct {
	Type FilType
	ID   uint32
	Bool bool
}

func KompleteFil(id uint32) Fil      { return Fil{Type: FilKomplete, ID: id} }
func DatabaseFil(id DatabaseID) Fil  { return Fil{Type: FilDatabase, ID: uint32(id)} }
func BoolFil(b bool) Fil             { return Fil{Type: FilBoolean, Bool: b} }
func ProductKindFil(kind uint32) Fil { return Fil{Type: FilProductKind, ID: kind} }
func ProductFil(product uint32) Fil  { return Fil{Type: FilProduct, ID: product} }

var (
	filHasPreview    = BoolFil(true)
	filFavorite      = BoolFil(true)
	filUserPreset    = BoolFil(true)
	filFactoryPreset = BoolFil(false)
)

// ItemID is a filter item. The zero value is the <None> item, which matches
// presets without a value for the kind.
type ItemID struct {
	Fil   Fil
	Valid bool
}

// NoneItem is the <None> filter item
var NoneItem = ItemID{}

func Item(f Fil) ItemID { return ItemID{Fil: f, Valid: true} }

// Filter is the setting of one kind. The zero value is <Any>.
type Filter struct {
	Item ItemID
	Set  bool
}

// Any doesn't restrict anything
var Any = Filter{}

func Is(id ItemID) Filter { return Filter{Item: id, Set: true} }

// IsNone only matches presets without a value
func IsNone() Filter { return Is(NoneItem) }

// IsFil only matches presets with exactly f
func IsFil(f Fil) Filter { return Is(Item(f)) }

// Filters is the complete filter setting of a browser
type Filters [kindCount]Filter

func (fs *Filters) Get(k Kind) Filter           { return fs[k] }
func (fs *Filters) Set(k Kind, f Filter)        { fs[k] = f }
func (fs *Filters) IsSet(k Kind) bool           { return fs[k].Set }
func (fs *Filters) IsSetToConcrete(k Kind) bool { return fs[k].Set && fs[k].Item.Valid }

// Matches is for kinds where <None> isn't a valid value. A <None> filter
// then never matches.
func (fs *Filters) Matches(k Kind, fil Fil) bool {
	f := fs[k]
	switch {
	case !f.Set:
		return true
	case !f.Item.Valid:
		return false
	}
	return f.Item.Fil == fil
}

// MatchesOptional is for kinds where presets may lack a value, passed as
// the <None> item
func (fs *Filters) MatchesOptional(k Kind, id ItemID) bool {
	f := fs[k]
	return !f.Set || f.Item == id
}

// FavoriteMatches checks the favorite filter against the favorites of the
// preset's database
func (fs *Filters) FavoriteMatches(favorites map[InnerPresetID]struct{}, id InnerPresetID) bool {
	f := fs[IsFavorite]
	switch {
	case !f.Set:
		return true
	case !f.Item.Valid:
		return false
	}
	_, fav := favorites[id]
	if f.Item.Fil == filFavorite {
		return fav
	}
	return !fav
}

// WantsPreview reports the preview filter, ok is false for <Any> and <None>
func (fs *Filters) WantsPreview() (want, ok bool) {
	if !fs.IsSetToConcrete(HasPreview) {
		return false, false
	}
	return fs[HasPreview].Item.Fil == filHasPreview, true
}

func (fs *Filters) DatabaseMatches(db DatabaseID) bool {
	return fs.Matches(Database, DatabaseFil(db))
}

func (fs *Filters) WantsUserPresetsOnly() bool    { return fs.wantsOnly(IsUser, filUserPreset) }
func (fs *Filters) WantsFactoryPresetsOnly() bool { return fs.wantsOnly(IsUser, filFactoryPreset) }
func (fs *Filters) WantsFavoritesOnly() bool      { return fs.wantsOnly(IsFavorite, filFavorite) }

func (fs *Filters) wantsOnly(k Kind, fil Fil) bool {
	return fs[k] == IsFil(fil)
}

// AnyUnsupportedSetToConcrete reports whether a kind outside the core kinds
// and supported is set to a concrete value
func (fs *Filters) AnyUnsupportedSetToConcrete(supported KindSet) bool {
	supported |= CoreKinds
	for _, k := range Kinds() {
		if !supported.Has(k) && fs.IsSetToConcrete(k) {
			return true
		}
	}
	return false
}

// EffectiveSubBank is <None> if the bank is <None>, otherwise the sub bank
// filter
func (fs *Filters) EffectiveSubBank() Filter {
	return fs.effectiveSub(Bank, SubBank)
}

// EffectiveSubCategory works like EffectiveSubBank for categories
func (fs *Filters) EffectiveSubCategory() Filter {
	return fs.effectiveSub(Category, SubCategory)
}

func (fs *Filters) effectiveSub(parent, sub Kind) Filter {
	if fs[parent] == IsNone() {
		return fs[parent]
	}
	return fs[sub]
}

// ClearThisAndDependent resets k and every kind depending on it to <Any>
func (fs *Filters) ClearThisAndDependent(k Kind) {
	fs[k] = Any
	for _, d := range k.DependentKinds() {
		fs[d] = Any
	}
}

// ClearExcluded resets filters pointing at an excluded item
func (fs *Filters) ClearExcluded(ex *Excludes) {
	for _, k := range Kinds() {
		if fs[k].Set && ex.Contains(k, fs[k].Item) {
			fs[k] = Any
		}
	}
}

// ClearIfNotAvailable resets filters of the affected kinds whose item
// disappeared from the collections
func (fs *Filters) ClearIfNotAvailable(affected KindSet, items *Collections) {
	for _, k := range Kinds() {
		if !affected.Has(k) || !fs[k].Set {
			continue
		}
		found := false
		for _, it := range items.Get(k) {
			if it.ID == fs[k].Item {
				found = true
				break
			}
		}
		if !found {
			fs[k] = Any
		}
	}
}

type filData struct {
	Type string `json:"type"`
	ID   uint32 `json:"id,omitempty"`
	Bool bool   `json:"bool,omitempty"`
}

// MarshalJSON writes set filters only. <None> is written as null.
func (fs Filters) MarshalJSON() ([]byte, error) {
	m := map[string]*filData{}
	for _, k := range Kinds() {
		f := fs[k]
		if !f.Set {
			continue
		}
		if !f.Item.Valid {
			m[k.String()] = nil
			continue
		}
		m[k.String()] = &filData{Type: f.Item.Fil.Type.String(), ID: f.Item.Fil.ID, Bool: f.Item.Fil.Bool}
	}
	return json.Marshal(m)
}

func (fs *Filters) UnmarshalJSON(data []byte) error {
	var m map[string]*filData
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*fs = Filters{}
	for name, d := range m {
		k, ok := ParseKind(name)
		if !ok {
			return errors.Wrapf(ErrInvalidFilter, "kind %q", name)
		}
		if d == nil {
			fs[k] = IsNone()
			continue
		}
		t := -1
		for i, n := range filTypeNames {
			if n == d.Type {
				t = i
			}
		}
		if t < 0 {
			return errors.Wrapf(ErrInvalidFilter, "value type %q", d.Type)
		}
		fs[k] = IsFil(Fil{Type: FilType(t), ID: d.ID, Bool: d.Bool})
	}
	return nil
}

// FilterItem is one entry offered for a kind
type FilterItem struct {
	ID         ItemID
	Name       string
	ParentName string
}

// Collections holds the available items per kind
type Collections [kindCount][]FilterItem

func (c *Collections) Get(k Kind) []FilterItem        { return c[k] }
func (c *Collections) Set(k Kind, items []FilterItem) { c[k] = items }

// FilledAlready reports whether the constant kinds were filled
func (c *Collections) FilledAlready() bool { return len(c[IsFavorite]) > 0 }

// NarrowDown keeps only the items of k contained in includes
func (c *Collections) NarrowDown(k Kind, includes map[ItemID]bool) {
	kept := c[k][:0]
	for _, it := range c[k] {
		if includes[it.ID] {
			kept = append(kept, it)
		}
	}
	c[k] = kept
}

// Excludes are items hidden from the browser
type Excludes struct {
	items [kindCount]map[ItemID]struct{}
}

func (e *Excludes) Contains(k Kind, id ItemID) bool {
	_, ok := e.items[k][id]
	return ok
}

func (e *Excludes) Add(k Kind, id ItemID) {
	if e.items[k] == nil {
		e.items[k] = map[ItemID]struct{}{}
	}
	e.items[k][id] = struct{}{}
}

func (e *Excludes) Remove(k Kind, id ItemID) { delete(e.items[k], id) }
func (e *Excludes) IsEmpty(k Kind) bool      { return len(e.items[k]) == 0 }
func (e *Excludes) ContainsNone(k Kind) bool { return e.Contains(k, NoneItem) }

func (e *Excludes) ContainsDatabase(db DatabaseID) bool {
	return e.Contains(Database, Item(DatabaseFil(db)))
}

// ContainsProduct checks the bank excludes; ok false asks for the <None> item
func (e *Excludes) ContainsProduct(product uint32, ok bool) bool {
	if !ok {
		return e.ContainsNone(Bank)
	}
	return e.Contains(Bank, Item(ProductFil(product)))
}

// Normal returns the excluded concrete values of k
func (e *Excludes) Normal(k Kind) []Fil {
	var fils []Fil
	for id := range e.items[k] {
		if id.Valid {
			fils = append(fils, id.Fil)
		}
	}
	return fils
}

// Favorites holds favorite presets per database
type Favorites struct {
	byDB map[DatabaseID]map[InnerPresetID]struct{}
}

func (f *Favorites) IsFavorite(id PresetID) bool {
	_, ok := f.byDB[id.Database][id.Preset]
	return ok
}

func (f *Favorites) Toggle(id PresetID) {
	if f.byDB == nil {
		f.byDB = map[DatabaseID]map[InnerPresetID]struct{}{}
	}
	db := f.byDB[id.Database]
	if db == nil {
		db = map[InnerPresetID]struct{}{}
		f.byDB[id.Database] = db
	}
	if _, ok := db[id.Preset]; ok {
		delete(db, id.Preset)
	} else {
		db[id.Preset] = struct{}{}
	}
}

// Of returns the favorites of one database. The result may be nil.
func (f *Favorites) Of(db DatabaseID) map[InnerPresetID]struct{} {
	return f.byDB[db]
}
