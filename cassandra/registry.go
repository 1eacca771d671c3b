// Package cassandra wires gocql cluster connections into the schema
// registry: it implements schema.Connection, dials new clusters with
// the driver settings the meta-keyspace registry-config section
// supplies, and resolves service names/host-lists during schema
// building. Follows the
// gocql.NewCluster/Consistency/RetryPolicy/CreateSession dialing shape
// used elsewhere in this codebase's Cassandra storage layer.
package cassandra

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"github.com/ncbi/psg-cassvc/config"
	"github.com/ncbi/psg-cassvc/errors"
	"github.com/ncbi/psg-cassvc/schema"
)

// Connection wraps a gocql session as a schema.Connection, shared by
// every task/entry that reaches the same endpoint set.
type Connection struct {
	session   *gocql.Session
	endpoints []string
}

var _ schema.Connection = (*Connection)(nil)

func (c *Connection) Endpoints() []string { return c.endpoints }

func (c *Connection) Close() {
	if c.session != nil {
		c.session.Close()
	}
}

// Session returns the underlying gocql session for issuing queries.
func (c *Connection) Session() *gocql.Session { return c.session }

// ServiceResolver resolves a named, load-balanced service (a
// resolvable name without ':' or ',' characters) to a comma-separated
// host list. A real load-balanced-service-mapper client is out of
// scope here; callers inject whatever resolver their deployment uses,
// or NopServiceResolver in tests/standalone setups.
type ServiceResolver interface {
	Resolve(service string) (hostList string, err error)
}

// NopServiceResolver always fails resolution, matching the
// LbsmServiceNotResolved failure path for a deployment with no
// registered resolver.
type NopServiceResolver struct{}

func (NopServiceResolver) Resolve(service string) (string, error) {
	return "", errors.New(errors.LbsmServiceNotResolved, "no service resolver configured for "+service)
}

// Registry dials cluster connections. It keeps no cache: every Dial
// opens a new session. Connection reuse, both within one refresh and
// across refreshes, is done by the schema package's build (its
// Builder and the previous Schema), which calls Dial only for
// endpoints it has no connection for.
type Registry struct {
	cfg      config.CassandraConfig
	resolver ServiceResolver
}

// NewRegistry returns a Registry that dials clusters per cfg and
// resolves named services via resolver.
func NewRegistry(cfg config.CassandraConfig, resolver ServiceResolver) *Registry {
	if resolver == nil {
		resolver = NopServiceResolver{}
	}
	return &Registry{cfg: cfg, resolver: resolver}
}

// Dial connects a new cluster spanning hosts, applying the registry's
// consistency/timeout/retry defaults.
func (r *Registry) Dial(hosts []string) (*Connection, error) {
	cluster := gocql.NewCluster(hosts...)
	cluster.Consistency = consistencyFromString(r.cfg.Consistency)
	cluster.Timeout = time.Duration(r.cfg.QueryTimeout)
	cluster.ConnectTimeout = time.Duration(r.cfg.ConnectTimeout)
	cluster.RetryPolicy = &gocql.SimpleRetryPolicy{NumRetries: r.cfg.RetryCount}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, errors.Wrapf(err, "dialing cassandra cluster %v", hosts)
	}
	return &Connection{session: session, endpoints: hosts}, nil
}

func consistencyFromString(s string) gocql.Consistency {
	switch strings.ToUpper(s) {
	case "LOCAL_QUORUM":
		return gocql.LocalQuorum
	case "QUORUM":
		return gocql.Quorum
	case "ONE":
		return gocql.One
	case "LOCAL_ONE":
		return gocql.LocalOne
	default:
		return gocql.LocalQuorum
	}
}

// ResolveServiceString turns a sat2keyspace "service" column value
// into a normalized list of "host:port" endpoints:
//
//   - empty                       -> caller uses the default cluster
//   - a bare name (no : , space)  -> resolved via r.resolver
//   - a host list (has : , space) -> split, defaulted, and hostname-
//     resolved to dotted-quad form
func (r *Registry) ResolveServiceString(service string) ([]string, error) {
	if service == "" {
		return nil, nil
	}
	if !strings.ContainsAny(service, ": ,") {
		hostList, err := r.resolver.Resolve(service)
		if err != nil {
			return nil, err
		}
		service = hostList
	}
	return r.normalizeHostList(service)
}

func (r *Registry) normalizeHostList(hostList string) ([]string, error) {
	// split on comma/space only; colon stays attached to its host.
	fields := splitHostList(hostList)

	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		host, port, err := splitHostPort(f, r.cfg.DefaultPort)
		if err != nil {
			return nil, err
		}
		ip, err := resolveDottedQuad(host)
		if err != nil {
			return nil, err
		}
		out = append(out, net.JoinHostPort(ip, port))
	}
	return out, nil
}

func splitHostList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
}

func splitHostPort(hostport string, defaultPort int) (host, port string, err error) {
	if strings.Contains(hostport, ":") {
		h, p, err := net.SplitHostPort(hostport)
		if err != nil {
			return "", "", errors.Wrapf(err, "invalid host:port %q", hostport)
		}
		return h, p, nil
	}
	return hostport, strconv.Itoa(defaultPort), nil
}

func resolveDottedQuad(host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ip.String(), nil
	}
	addrs, err := net.LookupHost(host)
	if err != nil || len(addrs) == 0 {
		return "", errors.Wrapf(err, "resolving host %q", host)
	}
	return addrs[0], nil
}
