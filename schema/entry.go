package schema

import "strings"

// Type is the schema_type column of sat2keyspace.
type Type int

const (
	TypeUnknown Type = iota
	TypeResolver
	TypeBlobVer1
	TypeBlobVer2
	TypeNamedAnnotations
	TypeIPG
)

// ParseType maps the sat2keyspace integer enumeration onto Type,
// silently filtering anything outside 1..5 to TypeUnknown.
func ParseType(v int) Type {
	switch v {
	case 1:
		return TypeResolver
	case 2:
		return TypeBlobVer1
	case 3:
		return TypeBlobVer2
	case 4:
		return TypeNamedAnnotations
	case 5:
		return TypeIPG
	default:
		return TypeUnknown
	}
}

func (t Type) String() string {
	switch t {
	case TypeResolver:
		return "Resolver"
	case TypeBlobVer1:
		return "BlobVer1"
	case TypeBlobVer2:
		return "BlobVer2"
	case TypeNamedAnnotations:
		return "NamedAnnotations"
	case TypeIPG:
		return "IPG"
	default:
		return "Unknown"
	}
}

// Connection is the handle to a Cassandra cluster connection, shared
// across every entry that resolves to the same service or endpoint.
// It is defined here (rather than imported from package cassandra) to
// avoid a dependency cycle -- package cassandra implements it, package
// schema only stores and compares it.
type Connection interface {
	// Endpoints returns the "host:port" strings this connection was
	// built from, used by refresh to decide whether a new row can
	// reuse a connection from the previous snapshot.
	Endpoints() []string
	// Close releases the underlying session. Refresh never calls this
	// directly on a connection it's reusing.
	Close()
}

// Entry is one row of sat2keyspace, resolved: service has been turned
// into a concrete Connection, and, for named-annotation and blob
// entries, Secure reports whether the keyspace name carries the
// secure-keyspace naming suffix. The mapping itself is the contract
// here, not whatever policy a caller layers on top of Secure.
type Entry struct {
	Sat        int32
	Keyspace   string
	SchemaType Type
	Service    string
	Connection Connection
}

// Secure reports whether this keyspace is a "secure" keyspace by the
// original naming convention: a "_sec" suffix on the keyspace name.
func (e Entry) Secure() bool {
	return strings.HasSuffix(e.Keyspace, "_sec")
}
