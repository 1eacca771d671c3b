// Package schema holds the process-wide, atomically-swappable
// sat->keyspace map.
package schema

import (
	"sort"
	"sync/atomic"

	"github.com/gocql/gocql"

	"github.com/ncbi/psg-cassvc/errors"
	"github.com/ncbi/psg-cassvc/logger"
)

// RefreshSchemaResult reports the outcome of one RefreshSchema call.
type RefreshSchemaResult int

const (
	SatInfoUnchanged RefreshSchemaResult = iota
	SatInfoUpdated
	SatInfoKeyspaceUndefined
	SatInfoSat2KeyspaceEmpty
	ResolverKeyspaceUndefined
	ResolverKeyspaceDuplicated
	BlobKeyspacesEmpty
	LbsmServiceNotResolved
)

// RefreshMessagesResult mirrors ESatInfoRefreshMessagesResult.
type RefreshMessagesResult int

const (
	MessagesUnchanged RefreshMessagesResult = iota
	MessagesUpdated
	MessagesKeyspaceUndefined
	MessagesEmpty
)

// ConnectionDialer dials a brand-new cluster connection for a set of
// hosts. Implemented by package cassandra; kept as an interface here
// so schema has no import-time dependency on gocql cluster
// construction, only on issuing queries against an existing session.
type ConnectionDialer interface {
	Dial(hosts []string) (Connection, error)
}

// ServiceStringResolver turns a sat2keyspace "service" column into a
// list of "host:port" endpoints.
type ServiceStringResolver interface {
	ResolveServiceString(service string) ([]string, error)
}

// Session is the subset of a Cassandra driver session the provider
// needs to bootstrap itself against the meta-keyspace. Implemented by
// *gocql.Session; narrowed to an interface so tests can supply a fake.
type Session interface {
	Query(stmt string, values ...interface{}) Query
}

// Query is the subset of *gocql.Query the provider needs.
type Query interface {
	Iter() Iter
}

// Iter is the subset of *gocql.Iter the provider needs.
type Iter interface {
	Scan(dest ...interface{}) bool
	Close() error
}

// Provider owns the current Schema and Messages snapshots and knows
// how to refresh them from the meta-keyspace.
type Provider struct {
	bootstrap        Session
	defaultCluster   Connection
	dialer           ConnectionDialer
	resolver         ServiceStringResolver
	resolverRequired bool
	log              logger.Logger

	schema   atomic.Value // *Schema
	messages atomic.Value // *Messages

	schemaHash   uint64
	messagesHash uint64

	lastRefreshError atomic.Value // string
}

// NewProvider constructs a Provider bound to a non-nil bootstrap
// session and default cluster connection. A nil bootstrap connection
// is the one condition that should fail construction outright rather
// than surface as a refresh error, so it is checked eagerly here.
func NewProvider(bootstrap Session, defaultCluster Connection, dialer ConnectionDialer, resolver ServiceStringResolver, resolverRequired bool, log logger.Logger) *Provider {
	if bootstrap == nil || defaultCluster == nil {
		panic("schema: NewProvider called with a nil bootstrap connection")
	}
	if log == nil {
		log = logger.NopLogger
	}
	p := &Provider{
		bootstrap:        bootstrap,
		defaultCluster:   defaultCluster,
		dialer:           dialer,
		resolver:         resolver,
		resolverRequired: resolverRequired,
		log:              log,
	}
	p.lastRefreshError.Store("")
	return p
}

// GetSchema loads the current published Schema. Callers should hold
// the returned pointer for the duration of one operation; the
// previous snapshot stays alive via normal Go garbage collection for
// as long as any reader still references it.
func (p *Provider) GetSchema() *Schema {
	v, _ := p.schema.Load().(*Schema)
	return v
}

// GetMessages loads the current published Messages snapshot.
func (p *Provider) GetMessages() *Messages {
	v, _ := p.messages.Load().(*Messages)
	return v
}

// LastRefreshError returns the last refresh failure. It is reset to ""
// only when a refresh (of either kind) publishes a new snapshot; a
// refresh that finds nothing changed, or runs with apply false, leaves
// it as it was.
func (p *Provider) LastRefreshError() string {
	v, _ := p.lastRefreshError.Load().(string)
	return v
}

// SchemaVersion returns the content hash of the currently published
// Schema, or 0 before any refresh has ever succeeded. Two replicas
// reporting the same version are serving the same generation of the
// sat2keyspace map.
func (p *Provider) SchemaVersion() uint64 {
	return atomic.LoadUint64(&p.schemaHash)
}

func (p *Provider) setRefreshError(msg string) {
	p.lastRefreshError.Store(msg)
}

// RefreshSchema reads the meta-keyspace's sat2keyspace table and
// republishes the schema if it changed. When apply is false, a
// changed schema is detected and reported (SatInfoUpdated) but never
// published.
func (p *Provider) RefreshSchema(metaKeyspace, domain string, apply bool) (RefreshSchemaResult, error) {
	if metaKeyspace == "" {
		p.setRefreshError("mapping_keyspace is not specified")
		return SatInfoKeyspaceUndefined, nil
	}

	rows, err := p.readSat2Keyspace(metaKeyspace, domain)
	if err != nil {
		p.setRefreshError(err.Error())
		return SatInfoUnchanged, err
	}

	if len(rows) == 0 {
		msg := metaKeyspace + ".sat2keyspace info is empty"
		p.setRefreshError(msg)
		return SatInfoSat2KeyspaceEmpty, nil
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Sat < rows[j].Sat })
	newHash := contentHash(rows)
	if newHash == atomic.LoadUint64(&p.schemaHash) && p.GetSchema() != nil {
		return SatInfoUnchanged, nil
	}
	if !apply {
		return SatInfoUpdated, nil
	}

	built, result, err := p.buildSchema(rows)
	if err != nil {
		p.setRefreshError(err.Error())
		return result, err
	}

	p.schema.Store(built)
	atomic.StoreUint64(&p.schemaHash, newHash)
	p.setRefreshError("")
	return SatInfoUpdated, nil
}

// readSat2Keyspace issues the sat2keyspace query, retrying up to
// maxRetries (5) times on timeouts/restartable failures. The row query
// itself is re-issued on every retry attempt rather than only being
// attempted once.
func (p *Provider) readSat2Keyspace(metaKeyspace, domain string) ([]Sat2KeyspaceRow, error) {
	const maxRetries = 5
	stmt := "SELECT sat, keyspace_name, schema_type, service FROM " + metaKeyspace + ".sat2keyspace WHERE domain = ?"

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		rows, err := p.scanSat2Keyspace(stmt, domain)
		if err == nil {
			return rows, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
		p.log.Warnf("schema: sat2keyspace query attempt %d/%d failed: %v", attempt+1, maxRetries+1, err)
	}
	return nil, lastErr
}

func (p *Provider) scanSat2Keyspace(stmt, domain string) ([]Sat2KeyspaceRow, error) {
	iter := p.bootstrap.Query(stmt, domain).Iter()
	var rows []Sat2KeyspaceRow
	var sat, schemaType int
	var keyspace, service string
	for iter.Scan(&sat, &keyspace, &schemaType, &service) {
		t := ParseType(schemaType)
		if t == TypeUnknown {
			continue
		}
		rows = append(rows, Sat2KeyspaceRow{
			Sat:        int32(sat),
			Keyspace:   keyspace,
			SchemaType: int(t),
			Service:    service,
		})
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return rows, nil
}

func isRetryable(err error) bool {
	if err == gocql.ErrTimeoutNoResponse || err == gocql.ErrConnectionClosed {
		return true
	}
	if _, ok := err.(*gocql.RequestErrReadTimeout); ok {
		return true
	}
	if _, ok := err.(*gocql.RequestErrWriteTimeout); ok {
		return true
	}
	return false
}

// buildSchema resolves every sat2keyspace row into a connection and
// assembles a new Schema from them.
func (p *Provider) buildSchema(rows []Sat2KeyspaceRow) (*Schema, RefreshSchemaResult, error) {
	prev := p.GetSchema()
	b := NewBuilder(p.defaultCluster)

	for _, row := range rows {
		conn, err := p.resolveConnection(b, prev, row.Service)
		if err != nil {
			if errors.Is(err, errors.LbsmServiceNotResolved) {
				return nil, LbsmServiceNotResolved, err
			}
			return nil, SatInfoUnchanged, err
		}
		entry := Entry{
			Sat:        row.Sat,
			Keyspace:   row.Keyspace,
			SchemaType: Type(row.SchemaType),
			Service:    row.Service,
			Connection: conn,
		}
		switch entry.SchemaType {
		case TypeResolver:
			if err := b.AddResolver(entry); err != nil {
				return nil, ResolverKeyspaceDuplicated, err
			}
		case TypeNamedAnnotations:
			b.AddNamedAnnotations(entry)
		case TypeBlobVer1, TypeBlobVer2:
			b.AddBlob(entry)
		case TypeIPG:
			b.SetIPG(entry)
		}
	}

	if p.resolverRequired && !b.HasResolver() {
		return nil, ResolverKeyspaceUndefined, errors.New(errors.ResolverKeyspaceUndefined, "no resolver keyspace found and resolver is required")
	}
	if b.Len() == 0 {
		return nil, BlobKeyspacesEmpty, errors.New(errors.BlobKeyspacesEmpty, "blob_keyspaces is empty after build")
	}

	return b.Build(), SatInfoUpdated, nil
}

// resolveConnection implements the schema build's service-resolution
// branches: empty service uses the default cluster; a service seen
// earlier in this build is reused; otherwise the service string is
// resolved to endpoints: the connection already bound to any of them,
// in this build or else in the previous snapshot, is reused, and
// otherwise one new connection spanning all of them is dialed.
func (p *Provider) resolveConnection(b *Builder, prev *Schema, service string) (Connection, error) {
	if service == "" {
		return b.defaultCluster, nil
	}
	if conn, ok := b.LookupService(service); ok {
		return conn, nil
	}

	endpoints, err := p.resolver.ResolveServiceString(service)
	if err != nil {
		return nil, err
	}
	if len(endpoints) == 0 {
		return nil, errors.New(errors.LbsmServiceNotResolved, "service resolved to no endpoints: "+service)
	}

	// Endpoints already bound within this build are reused verbatim.
	for _, ep := range endpoints {
		if conn, ok := b.LookupEndpoint(ep); ok {
			b.BindService(service, conn)
			return conn, nil
		}
	}
	// Endpoints bound in the previously published schema are reused
	// across refreshes, avoiding reconnecting unchanged clusters.
	if prev != nil {
		for _, ep := range endpoints {
			if conn, ok := prev.ConnectionForEndpoint(ep); ok {
				b.BindService(service, conn)
				return conn, nil
			}
		}
	}

	conn, err := p.dialer.Dial(endpoints)
	if err != nil {
		return nil, err
	}
	b.BindService(service, conn)
	return conn, nil
}

// RefreshMessages mirrors RefreshSchema but over (name, value) rows,
// with elementwise equality instead of a content hash.
func (p *Provider) RefreshMessages(metaKeyspace, domain string, apply bool) (RefreshMessagesResult, error) {
	if metaKeyspace == "" {
		p.setRefreshError("mapping_keyspace is not specified")
		return MessagesKeyspaceUndefined, nil
	}

	stmt := "SELECT name, value FROM " + metaKeyspace + ".messages WHERE domain = ?"
	values := make(map[string]string)
	var name, value string

	const maxRetries = 5
	var lastErr error
	ok := false
	for attempt := 0; attempt <= maxRetries; attempt++ {
		iter := p.bootstrap.Query(stmt, domain).Iter()
		values = make(map[string]string)
		for iter.Scan(&name, &value) {
			values[name] = value
		}
		if err := iter.Close(); err != nil {
			lastErr = err
			if !isRetryable(err) {
				p.setRefreshError(err.Error())
				return MessagesUnchanged, err
			}
			continue
		}
		ok = true
		break
	}
	if !ok {
		p.setRefreshError(lastErr.Error())
		return MessagesUnchanged, lastErr
	}

	if len(values) == 0 {
		msg := metaKeyspace + "." + domain + " messages info is empty"
		p.setRefreshError(msg)
		return MessagesEmpty, nil
	}

	next := NewMessages(values)
	if cur := p.GetMessages(); cur != nil && cur.Equal(next) {
		return MessagesUnchanged, nil
	}
	if !apply {
		return MessagesUpdated, nil
	}

	p.messages.Store(next)
	p.setRefreshError("")
	return MessagesUpdated, nil
}
