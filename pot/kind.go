// Package pot holds the preset browser filter model: filter kinds, filter
// values and the rules that decide which presets a filter set matches.
// Querying preset databases is not part of this package.
package pot

// Kind is a filter kind. The order is the dependency order used for
// clearing dependent filters.
type Kind uint8

const (
	Database Kind = iota
	IsAvailable
	IsSupported
	IsUser
	ProductKind
	IsFavorite
	Project
	Bank
	SubBank
	Category
	SubCategory
	Mode
	HasPreview

	kindCount
)

var kindNames = [kindCount]string{
	"Database", "IsAvailable", "IsSupported", "IsUser", "ProductKind", "IsFavorite",
	"Project", "Bank", "SubBank", "Category", "SubCategory", "Mode", "HasPreview",
}

// kindAliases are older names still accepted when parsing
var kindAliases = map[string]Kind{
	"NksContentType": IsUser,
	"NksProductType": ProductKind,
	"NksFavorite":    IsFavorite,
	"NksBank":        Bank,
	"NksSubBank":     SubBank,
	"NksCategory":    Category,
	"NksSubCategory": SubCategory,
	"NksMode":        Mode,
}

// Kinds lists every filter kind in dependency order
func Kinds() []Kind {
	ks := make([]Kind, kindCount)
	for i := range ks {
		ks[i] = Kind(i)
	}
	return ks
}

func (k Kind) String() string {
	if k < kindCount {
		return kindNames[k]
	}
	return "Database"
}

func ParseKind(s string) (Kind, bool) {
	for i, n := range kindNames {
		if n == s {
			return Kind(i), true
		}
	}
	k, ok := kindAliases[s]
	return k, ok
}

// Label is the name shown in a browser
func (k Kind) Label() string {
	switch k {
	case IsAvailable:
		return "Availability"
	case IsSupported:
		return "Support"
	case IsUser:
		return "Content types"
	case ProductKind:
		return "Product types"
	case IsFavorite:
		return "Favorite"
	case Bank:
		return "Product"
	case SubBank:
		return "Bank"
	case Category:
		return "Type"
	case SubCategory:
		return "Sub type"
	case Mode:
		return "Character"
	case HasPreview:
		return "Preview"
	}
	return k.String()
}

// IsCore reports kinds every database supports. The others are advanced.
func (k Kind) IsCore() bool {
	switch k {
	case Database, IsAvailable, IsSupported, IsUser, ProductKind, IsFavorite, HasPreview:
		return true
	}
	return false
}

func (k Kind) AllowsExcludes() bool {
	return k == Database || k == Bank || k == SubBank
}

func (k Kind) WantsSorting() bool {
	switch k {
	case Database, Project, Bank, SubBank, Category, SubCategory, Mode:
		return true
	}
	return false
}

// Parent returns the kind a sub kind refines
func (k Kind) Parent() (Kind, bool) {
	switch k {
	case SubBank:
		return Bank, true
	case SubCategory:
		return Category, true
	}
	return 0, false
}

// DependencyPosition orders kinds: changing one may change the available
// items of every kind with a higher position.
func (k Kind) DependencyPosition() int {
	switch k {
	case Database, IsAvailable, IsSupported, IsUser, ProductKind, IsFavorite:
		return 0
	case Project:
		return 1
	case Bank:
		return 2
	case SubBank:
		return 3
	case Category:
		return 4
	case SubCategory:
		return 5
	case Mode:
		return 6
	}
	return 7
}

// DependentKinds returns the kinds affected by a change of k
func (k Kind) DependentKinds() []Kind {
	var ks []Kind
	pos := k.DependencyPosition()
	for _, other := range Kinds() {
		if other.DependencyPosition() > pos {
			ks = append(ks, other)
		}
	}
	return ks
}

// KindSet is a bit set of kinds
type KindSet uint16

func SetOf(ks ...Kind) KindSet {
	var s KindSet
	for _, k := range ks {
		s |= 1 << k
	}
	return s
}

func (s KindSet) Has(k Kind) bool { return s&(1<<k) != 0 }

// CoreKinds is the set of kinds with IsCore
var CoreKinds = SetOf(Database, IsAvailable, IsSupported, IsUser, ProductKind, IsFavorite, HasPreview)
