// Package cstask implements the Cassandra task state-machine pattern:
// a small FSM driven by a cooperative Advance(), issuing queries,
// checking readiness, and emitting typed callbacks.
//
// The original C++ Wait1 pattern re-enters Advance() from a libuv I/O
// callback because its worker threads never block. This module's
// worker-loop goroutines (see package processor) may block on I/O
// instead -- that's the idiomatic Go analogue of "suspend and resume
// on a callback" -- so Advance() here runs a task's query and blocks
// on QueryIter.Scan directly rather than registering a callback and
// returning. The state machine, its transitions, and its retry bound
// are unchanged; only the suspension mechanism differs.
package cstask

import "github.com/ncbi/psg-cassvc/errors"

// State is shared by every task: Init, Done, and Error are common;
// task-specific intermediate states are defined by each concrete FSM.
type State int

const (
	StateInit State = iota
	StateDone
	StateError
	stateTaskSpecific // concrete FSMs start their states from here
)

// DataErrorCallback reports a Cassandra or semantic error:
// status, code, severity, message.
type DataErrorCallback func(status int, code errors.Code, severity string, message string)

// QuerySession is the subset of a Cassandra session a task needs to
// issue its own queries, narrowed for testability.
type QuerySession interface {
	Query(stmt string, values ...interface{}) QueryIter
}

// QueryIter is the subset of a prepared, executed query's row
// iterator a task consumes.
type QueryIter interface {
	Scan(dest ...interface{}) bool
	Close() error
}

// Base provides the plumbing every concrete task embeds: the shared
// states, a registered error callback, and close_all/check_ready
// primitives over the currently in-flight query.
type Base struct {
	State   State
	OnError DataErrorCallback

	session QuerySession
	iter    QueryIter
	started bool
}

// NewBase wires a Base to session, from which concrete tasks issue
// their SELECTs.
func NewBase(session QuerySession) Base {
	return Base{State: StateInit, session: session}
}

// SetOnError registers the error callback. A callback may be
// registered only in Init; later registration fails with SeqFailed.
func (b *Base) SetOnError(cb DataErrorCallback) error {
	if b.started && b.State != StateInit {
		return errors.New(errors.SeqFailed, "cannot register callback after task has started")
	}
	b.OnError = cb
	return nil
}

// CloseAll releases any in-flight query.
func (b *Base) CloseAll() {
	if b.iter != nil {
		_ = b.iter.Close()
		b.iter = nil
	}
}

// Query issues stmt against the session and records the resulting
// iterator as the task's current in-flight query, marking the task
// started so later SetOnError calls fail.
func (b *Base) Query(stmt string, args ...interface{}) QueryIter {
	b.started = true
	b.iter = b.session.Query(stmt, args...)
	return b.iter
}

// CheckReady reports whether iter still belongs to this task's
// current in-flight query. In the blocking-goroutine model this is
// always true once Query has returned an iterator -- there is no
// separate "rows arrived" callback to wait for -- but the method is
// kept so a future non-blocking driver hookup has a seam to plug into
// without changing any FSM's Advance() logic.
func (b *Base) CheckReady(iter QueryIter) bool {
	return iter != nil && iter == b.iter
}

// Fail invokes the error callback (if any) and transitions to Error.
func (b *Base) Fail(status int, code errors.Code, severity, message string) {
	b.State = StateError
	if b.OnError != nil {
		b.OnError(status, code, severity, message)
	}
}
