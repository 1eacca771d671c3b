package schema

import (
	"encoding/binary"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// contentHash computes a 64-bit content hash over a sat2keyspace
// snapshot: rows are sorted by sat ascending first, since the mixer
// below is position-sensitive over the sequence it folds and every
// implementation must sort first to land on the same hash, then
// folded with a position-sensitive mixer seeded at 0.
//
// h(v) is supplied by xxhash rather than hand-rolled, since the mixer
// itself -- not the underlying per-field hash primitive -- is the part
// of the algorithm that must match exactly across implementations.
func contentHash(rows []Sat2KeyspaceRow) uint64 {
	sorted := make([]Sat2KeyspaceRow, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Sat < sorted[j].Sat })

	var seed uint64
	for _, r := range sorted {
		seed = mix(seed, hashInt32(r.Sat))
		seed = mix(seed, hashString(r.Keyspace))
		seed = mix(seed, hashInt32(int32(r.SchemaType)))
		seed = mix(seed, hashString(r.Service))
	}
	return seed
}

// mix folds h into seed using the boost::hash_combine-style mixer:
// seed ^= h(v) + 0x9e3779b9 + (seed<<6) + (seed>>2).
func mix(seed, h uint64) uint64 {
	return seed ^ (h + 0x9e3779b9 + (seed << 6) + (seed >> 2))
}

func hashInt32(v int32) uint64 {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	return xxhash.Sum64(b[:])
}

func hashString(v string) uint64 {
	return xxhash.Sum64String(v)
}

// Sat2KeyspaceRow is one row read from <meta>.sat2keyspace.
type Sat2KeyspaceRow struct {
	Sat        int32
	Keyspace   string
	SchemaType int
	Service    string
}
