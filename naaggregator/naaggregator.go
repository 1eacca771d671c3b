// Package naaggregator deduplicates named-annotation rows across
// keyspaces during a rolling schema migration (component C6): the
// same logical annotation can briefly exist in both the old and the
// new NamedAnnotations keyspace, and the aggregator keeps only the
// copy from the higher-numbered sat.
package naaggregator

import "sync"

// Row is one named-annotation record tagged with the sat it was read
// from. Key identifies the logical annotation (e.g. accession + name)
// independent of which keyspace produced it; Payload is opaque to the
// aggregator.
type Row struct {
	Sat     int32
	Key     string
	Payload interface{}
}

// Emitter receives deduplicated rows as they become final.
type Emitter func(Row)

// Aggregator is stateful for the lifetime of one request: it tracks
// which keyspaces are still producing rows and, per key, which sat's
// row currently wins.
type Aggregator struct {
	mu      sync.Mutex
	emit    Emitter
	pending map[string]Row
	live    map[int32]bool
	flushed bool
}

// New constructs an aggregator that will call emit exactly once per
// distinct key, once every keyspace in keyspaces has signaled EOF.
// keyspaces are identified by the sat of the entry that owns them, so
// EOF bookkeeping and dedup precedence share one key space.
func New(keyspaces []int32, emit Emitter) *Aggregator {
	live := make(map[int32]bool, len(keyspaces))
	for _, sat := range keyspaces {
		live[sat] = true
	}
	return &Aggregator{
		emit:    emit,
		pending: make(map[string]Row),
		live:    live,
	}
}

// AddRow records a row from sat. If a row with the same key already
// exists from a lower sat, it is replaced; a row from a higher or
// equal sat is kept and the new one dropped.
func (a *Aggregator) AddRow(row Row) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.flushed {
		return
	}
	existing, ok := a.pending[row.Key]
	if !ok || row.Sat > existing.Sat {
		a.pending[row.Key] = row
	}
}

// SignalEOF marks sat's keyspace as exhausted. Once every keyspace
// passed to New has signaled EOF, every pending row is emitted (in no
// particular order) and the aggregator becomes inert.
func (a *Aggregator) SignalEOF(sat int32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.flushed {
		return
	}
	delete(a.live, sat)
	if len(a.live) > 0 {
		return
	}
	a.flushed = true
	for _, row := range a.pending {
		a.emit(row)
	}
	a.pending = nil
}

// Done reports whether every participating keyspace has reached EOF
// and the aggregator has flushed.
func (a *Aggregator) Done() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flushed
}
