package schema

import "testing"

func TestContentHashIgnoresInputOrder(t *testing.T) {
	rows := []Sat2KeyspaceRow{
		{Sat: 2, Keyspace: "b", SchemaType: 1, Service: ""},
		{Sat: 1, Keyspace: "a", SchemaType: 1, Service: ""},
	}
	reversed := []Sat2KeyspaceRow{rows[1], rows[0]}

	if contentHash(rows) != contentHash(reversed) {
		t.Fatal("expected content hash to be independent of input row order")
	}
}

func TestContentHashChangesOnAnyFieldChange(t *testing.T) {
	base := []Sat2KeyspaceRow{{Sat: 1, Keyspace: "a", SchemaType: 1, Service: ""}}
	changed := []Sat2KeyspaceRow{{Sat: 1, Keyspace: "a", SchemaType: 2, Service: ""}}

	if contentHash(base) == contentHash(changed) {
		t.Fatal("expected different schema_type to change the hash")
	}
}

func TestContentHashDeterministic(t *testing.T) {
	rows := []Sat2KeyspaceRow{{Sat: 1, Keyspace: "a", SchemaType: 1, Service: "svc"}}
	if contentHash(rows) != contentHash(rows) {
		t.Fatal("expected contentHash to be deterministic")
	}
}
