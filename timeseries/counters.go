// Package timeseries implements per-minute rotating ring buffers:
// lock-free on the hot ingestion path, JSON-serializable for the
// diagnostics endpoint.
package timeseries

import "sync/atomic"

// N is the ring capacity: one slot per minute, 30 days.
const N = 60 * 24 * 30

// Kind enumerates the four parallel counter arrays.
type Kind int

const (
	KindRequests Kind = iota
	KindErrors
	KindWarnings
	KindNotFound
	numKinds
)

func (k Kind) String() string {
	switch k {
	case KindRequests:
		return "requests"
	case KindErrors:
		return "errors"
	case KindWarnings:
		return "warnings"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// ring is the rotation bookkeeping shared by CounterSeries and
// MomentarySeries. Only currentIndex and totalMinutesCollected are
// atomic; looped is a plain boolean written once per wrap, since
// rotation itself is always single-threaded.
type ring struct {
	currentIndex          uint64
	totalMinutesCollected uint64
	looped                bool
}

func (r *ring) index() uint64 { return atomic.LoadUint64(&r.currentIndex) }

// advance moves current_index forward by one slot modulo N and
// increments total_minutes_collected, returning the new index. It
// sets looped when the index wraps from N-1 to 0.
func (r *ring) advance() uint64 {
	next := (r.index() + 1) % N
	atomic.StoreUint64(&r.currentIndex, next)
	atomic.AddUint64(&r.totalMinutesCollected, 1)
	if next == 0 {
		r.looped = true
	}
	return next
}

// snapshot reads (looped, current_index) as one pair, which a caller
// needing a self-consistent view must do together.
func (r *ring) snapshot() (looped bool, idx uint64, totalMinutes uint64) {
	idx = r.index()
	looped = r.looped
	totalMinutes = atomic.LoadUint64(&r.totalMinutesCollected)
	return
}

// CounterSeries tracks four parallel per-minute counters (requests,
// errors, warnings, not-found). Add is racy-but-tolerated on the
// per-slot array; the grand totals are atomic so
// TotalRequests >= sum(requests[i]) always holds.
type CounterSeries struct {
	ring
	counters [numKinds][N]uint64
	totals   [numKinds]uint64
}

// NewCounterSeries returns an empty series.
func NewCounterSeries() *CounterSeries { return &CounterSeries{} }

// Add increments the current minute's slot for kind and its grand
// total. The slot increment is a plain, non-atomic read-modify-write:
// under concurrent callers it may lose an increment, a deliberate
// trade to keep the ingestion path lock-free.
func (c *CounterSeries) Add(kind Kind) {
	idx := c.index()
	c.counters[kind][idx]++
	atomic.AddUint64(&c.totals[kind], 1)
}

// Rotate advances the ring and zeroes the newly-current slot for
// every kind.
func (c *CounterSeries) Rotate() {
	next := c.advance()
	for k := 0; k < int(numKinds); k++ {
		c.counters[k][next] = 0
	}
}

// Total returns the atomic grand total for kind.
func (c *CounterSeries) Total(kind Kind) uint64 {
	return atomic.LoadUint64(&c.totals[kind])
}
