package cassandra

import (
	"github.com/gocql/gocql"

	"github.com/ncbi/psg-cassvc/cstask"
	"github.com/ncbi/psg-cassvc/schema"
)

// SessionAdapter narrows a *gocql.Session down to the schema.Session
// interface the provider's bootstrap query needs.
type SessionAdapter struct {
	session *gocql.Session
}

// NewSessionAdapter wraps session for use as a schema.Session.
func NewSessionAdapter(session *gocql.Session) *SessionAdapter {
	return &SessionAdapter{session: session}
}

func (a *SessionAdapter) Query(stmt string, values ...interface{}) schema.Query {
	return &queryAdapter{q: a.session.Query(stmt, values...)}
}

type queryAdapter struct{ q *gocql.Query }

func (q *queryAdapter) Iter() schema.Iter { return &iterAdapter{it: q.q.Iter()} }

type iterAdapter struct{ it *gocql.Iter }

func (it *iterAdapter) Scan(dest ...interface{}) bool { return it.it.Scan(dest...) }
func (it *iterAdapter) Close() error                  { return it.it.Close() }

// Dialer adapts Registry.Dial to schema.ConnectionDialer, which needs
// to return the schema.Connection interface rather than the concrete
// *Connection type.
type Dialer struct {
	Registry *Registry
}

func (d Dialer) Dial(hosts []string) (schema.Connection, error) {
	conn, err := d.Registry.Dial(hosts)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// TaskSessionAdapter narrows a *gocql.Session down to cstask's
// QuerySession, which returns a row iterator directly from Query
// rather than a two-step Query-then-Iter call.
type TaskSessionAdapter struct {
	session *gocql.Session
}

// NewTaskSessionAdapter wraps session for use by cstask FSMs.
func NewTaskSessionAdapter(session *gocql.Session) *TaskSessionAdapter {
	return &TaskSessionAdapter{session: session}
}

func (a *TaskSessionAdapter) Query(stmt string, values ...interface{}) cstask.QueryIter {
	return &iterAdapter{it: a.session.Query(stmt, values...).Iter()}
}
