package blobid

import (
	"testing"

	"github.com/ncbi/psg-cassvc/errors"
	"github.com/ncbi/psg-cassvc/schema"
)

func TestParseRoundTrip(t *testing.T) {
	id, err := Parse("123.456")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.Sat != 123 || id.SatKey != 456 {
		t.Fatalf("unexpected id: %+v", id)
	}
	if got := Format(id); got != "123.456" {
		t.Fatalf("Format = %q, want 123.456", got)
	}
}

func TestParseRejectsMissingSeparator(t *testing.T) {
	if _, err := Parse("123456"); !errors.Is(err, errors.BadIdentifier) {
		t.Fatalf("expected BadIdentifier, got %v", err)
	}
}

func TestParseRejectsNonNumeric(t *testing.T) {
	cases := []string{"abc.456", "123.abc", ".456", "123.", ""}
	for _, c := range cases {
		if _, err := Parse(c); !errors.Is(err, errors.BadIdentifier) {
			t.Errorf("Parse(%q): expected BadIdentifier, got %v", c, err)
		}
	}
}

func TestIsValid(t *testing.T) {
	if !IsValid(ID{Sat: 1, SatKey: 2}) {
		t.Fatal("expected valid")
	}
	if IsValid(ID{Sat: -1, SatKey: 2}) {
		t.Fatal("expected invalid for negative sat")
	}
}

func TestLessAndEqual(t *testing.T) {
	a := ID{Sat: 1, SatKey: 5}
	b := ID{Sat: 1, SatKey: 6}
	c := ID{Sat: 2, SatKey: 0}
	if !Less(a, b) {
		t.Error("expected a < b")
	}
	if !Less(b, c) {
		t.Error("expected b < c")
	}
	if !Equal(a, a) {
		t.Error("expected a == a")
	}
	if Equal(a, b) {
		t.Error("expected a != b")
	}
}

func TestMapSatToKeyspace(t *testing.T) {
	b := schema.NewBuilder(fakeConn{})
	b.AddBlob(schema.Entry{Sat: 7, Keyspace: "ks7", SchemaType: schema.TypeBlobVer2})
	s := b.Build()

	id := ID{Sat: 7, SatKey: 1}
	if !MapSatToKeyspace(&id, s) {
		t.Fatal("expected sat 7 to map")
	}
	if id.Keyspace == nil || id.Keyspace.Keyspace != "ks7" {
		t.Fatalf("unexpected keyspace: %+v", id.Keyspace)
	}

	missing := ID{Sat: 999}
	if MapSatToKeyspace(&missing, s) {
		t.Fatal("expected sat 999 to be absent")
	}
	if missing.Keyspace != nil {
		t.Fatal("expected keyspace left unset on miss")
	}
}

type fakeConn struct{}

func (fakeConn) Endpoints() []string { return nil }
func (fakeConn) Close()              {}
