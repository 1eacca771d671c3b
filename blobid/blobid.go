// Package blobid implements parsing, formatting, ordering, and
// sat->keyspace resolution of blob identifiers.
package blobid

import (
	"strconv"
	"strings"

	"github.com/ncbi/psg-cassvc/errors"
	"github.com/ncbi/psg-cassvc/schema"
)

// ID is the (sat, sat_key) pair identifying a blob, with a lazily
// attached keyspace filled in by MapSatToKeyspace.
type ID struct {
	Sat      int32
	SatKey   int32
	Keyspace *schema.Entry
}

// Parse parses "sat.sat_key", rejecting non-numeric components or a
// missing separator.
//
// The grammar (^-?[0-9]+\.-?[0-9]+$) does allow a leading '-' to
// parse; IsValid is the separate check that rejects negative ids
// afterward, keeping parsing (syntax) and validity (semantics) split.
func Parse(text string) (ID, error) {
	dot := strings.IndexByte(text, '.')
	if dot < 0 {
		return ID{}, errors.New(errors.BadIdentifier, "missing '.' separator in blob id: "+text)
	}
	satPart, keyPart := text[:dot], text[dot+1:]
	sat, err := parseComponent(satPart)
	if err != nil {
		return ID{}, errors.New(errors.BadIdentifier, "invalid sat in blob id: "+text)
	}
	key, err := parseComponent(keyPart)
	if err != nil {
		return ID{}, errors.New(errors.BadIdentifier, "invalid sat_key in blob id: "+text)
	}
	return ID{Sat: sat, SatKey: key}, nil
}

func parseComponent(s string) (int32, error) {
	if s == "" {
		return 0, errors.New(errors.BadIdentifier, "empty component")
	}
	if s[0] == '+' {
		return 0, errors.New(errors.BadIdentifier, "non-numeric component: "+s)
	}
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, errors.New(errors.BadIdentifier, "non-numeric component: "+s)
	}
	return int32(v), nil
}

// Format renders id as "sat.sat_key", the inverse of Parse.
func Format(id ID) string {
	return strconv.FormatInt(int64(id.Sat), 10) + "." + strconv.FormatInt(int64(id.SatKey), 10)
}

// IsValid reports whether both components are non-negative.
func IsValid(id ID) bool {
	return id.Sat >= 0 && id.SatKey >= 0
}

// Less orders ids lexicographically on (sat, sat_key).
func Less(a, b ID) bool {
	if a.Sat != b.Sat {
		return a.Sat < b.Sat
	}
	return a.SatKey < b.SatKey
}

// Equal is componentwise equality, ignoring any attached keyspace.
func Equal(a, b ID) bool {
	return a.Sat == b.Sat && a.SatKey == b.SatKey
}

// MapSatToKeyspace looks up id.Sat in s and attaches the resulting
// entry to id, returning false without mutating id if the sat is
// absent.
func MapSatToKeyspace(id *ID, s *schema.Schema) bool {
	entry, ok := s.GetBlobKeyspace(id.Sat)
	if !ok {
		return false
	}
	id.Keyspace = &entry
	return true
}
