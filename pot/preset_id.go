package pot

import (
	"strings"

	"github.com/pkg/errors"
)

// PersistentPresetID survives restarts and rescans. Its text form is
// <database>|<preset>; a pipe inside the database id is escaped as \|, the
// preset part is taken as is.
type PersistentPresetID struct {
	Database string
	Preset   string
}

func (id PersistentPresetID) String() string {
	return strings.ReplaceAll(id.Database, "|", `\|`) + "|" + id.Preset
}

// ParsePersistentPresetID splits at the first unescaped pipe
func ParsePersistentPresetID(s string) (PersistentPresetID, error) {
	prev := rune(0)
	for i, c := range s {
		if c == '|' && prev != '\\' {
			return PersistentPresetID{
				Database: strings.ReplaceAll(s[:i], `\|`, "|"),
				Preset:   s[i+1:],
			}, nil
		}
		prev = c
	}
	return PersistentPresetID{}, errors.Errorf("no | separator found in preset id %q", s)
}

func (id PersistentPresetID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *PersistentPresetID) UnmarshalText(b []byte) error {
	parsed, err := ParsePersistentPresetID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
