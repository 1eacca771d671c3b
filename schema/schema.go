package schema

import "sort"

// Schema is an immutable snapshot of the sat2keyspace mapping. It is
// built in full by a Builder before publication; once published it is
// read-only and safe for any number of concurrent readers to hold for
// the duration of one operation.
type Schema struct {
	blobKeyspaces    map[int32]Entry
	naKeyspaces      []Entry
	resolverKeyspace *Entry
	ipgKeyspace      *Entry
	services         map[string]Connection
	endpoints        map[string]Connection
	defaultCluster   Connection
}

// GetBlobKeyspace looks up sat and returns its entry, but only when
// the entry's schema type is BlobVer2 or NamedAnnotations -- every
// other schema type is invisible to this lookup.
func (s *Schema) GetBlobKeyspace(sat int32) (Entry, bool) {
	e, ok := s.blobKeyspaces[sat]
	if !ok {
		return Entry{}, false
	}
	if e.SchemaType != TypeBlobVer2 && e.SchemaType != TypeNamedAnnotations {
		return Entry{}, false
	}
	return e, true
}

// NAKeyspaces returns the NamedAnnotations entries in the insertion
// order they were encountered during the build, which callers rely on
// for migration-priority semantics.
func (s *Schema) NAKeyspaces() []Entry {
	out := make([]Entry, len(s.naKeyspaces))
	copy(out, s.naKeyspaces)
	return out
}

func (s *Schema) ResolverKeyspace() (Entry, bool) {
	if s.resolverKeyspace == nil {
		return Entry{}, false
	}
	return *s.resolverKeyspace, true
}

func (s *Schema) IPGKeyspace() (Entry, bool) {
	if s.ipgKeyspace == nil {
		return Entry{}, false
	}
	return *s.ipgKeyspace, true
}

func (s *Schema) DefaultCluster() Connection { return s.defaultCluster }

// ConnectionForEndpoint returns the connection previously bound to
// endpoint, if any. Builders use this on the *previous* published
// Schema to decide whether a new row can reuse a connection instead of
// reconnecting.
func (s *Schema) ConnectionForEndpoint(endpoint string) (Connection, bool) {
	c, ok := s.endpoints[endpoint]
	return c, ok
}

// ConnectionForService is the same lookup keyed by service name.
func (s *Schema) ConnectionForService(service string) (Connection, bool) {
	c, ok := s.services[service]
	return c, ok
}

// Sats returns the set of sat ids present in blob_keyspaces, sorted
// ascending -- used by tests and by the /debug/schema endpoint.
func (s *Schema) Sats() []int32 {
	out := make([]int32, 0, len(s.blobKeyspaces))
	for sat := range s.blobKeyspaces {
		out = append(out, sat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Builder accumulates rows into a new Schema. It is single-threaded:
// building a schema is deterministic and never runs concurrently with
// itself.
type Builder struct {
	blobKeyspaces    map[int32]Entry
	naKeyspaces      []Entry
	resolverKeyspace *Entry
	ipgKeyspace      *Entry
	services         map[string]Connection
	endpoints        map[string]Connection
	defaultCluster   Connection
}

// NewBuilder starts a build against the given bootstrap connection,
// used for the meta-keyspace itself.
func NewBuilder(defaultCluster Connection) *Builder {
	return &Builder{
		blobKeyspaces:  make(map[int32]Entry),
		services:       make(map[string]Connection),
		endpoints:      make(map[string]Connection),
		defaultCluster: defaultCluster,
	}
}

// BindService records a connection under a service name so later rows
// naming the same service can reuse it within this build.
func (b *Builder) BindService(service string, conn Connection) {
	if service == "" {
		return
	}
	b.services[service] = conn
	for _, ep := range conn.Endpoints() {
		b.endpoints[ep] = conn
	}
}

// LookupService returns a connection already bound under service in
// this build.
func (b *Builder) LookupService(service string) (Connection, bool) {
	c, ok := b.services[service]
	return c, ok
}

// LookupEndpoint returns a connection already bound to endpoint in
// this build.
func (b *Builder) LookupEndpoint(endpoint string) (Connection, bool) {
	c, ok := b.endpoints[endpoint]
	return c, ok
}

// BindEndpoint records conn under endpoint without a service name,
// e.g. for a host-list row.
func (b *Builder) BindEndpoint(endpoint string, conn Connection) {
	b.endpoints[endpoint] = conn
}

// AddResolver stores the schema's single Resolver entry, failing if
// one is already set.
func (b *Builder) AddResolver(e Entry) error {
	if b.resolverKeyspace != nil {
		return errDuplicateResolver
	}
	b.resolverKeyspace = &e
	return nil
}

// AddNamedAnnotations appends e to both blob_keyspaces and
// na_keyspaces, preserving insertion order in the latter.
func (b *Builder) AddNamedAnnotations(e Entry) {
	b.blobKeyspaces[e.Sat] = e
	b.naKeyspaces = append(b.naKeyspaces, e)
}

// AddBlob inserts e into blob_keyspaces for BlobVer1/BlobVer2 rows.
func (b *Builder) AddBlob(e Entry) {
	b.blobKeyspaces[e.Sat] = e
}

// SetIPG stores the schema's single IPG entry.
func (b *Builder) SetIPG(e Entry) {
	b.ipgKeyspace = &e
}

// Len reports how many sats have been recorded so far, used for the
// BlobKeyspacesEmpty final-validation check.
func (b *Builder) Len() int { return len(b.blobKeyspaces) }

// HasResolver reports whether AddResolver has been called.
func (b *Builder) HasResolver() bool { return b.resolverKeyspace != nil }

// Build finalizes the accumulated rows into an immutable Schema.
func (b *Builder) Build() *Schema {
	return &Schema{
		blobKeyspaces:    b.blobKeyspaces,
		naKeyspaces:      b.naKeyspaces,
		resolverKeyspace: b.resolverKeyspace,
		ipgKeyspace:      b.ipgKeyspace,
		services:         b.services,
		endpoints:        b.endpoints,
		defaultCluster:   b.defaultCluster,
	}
}
