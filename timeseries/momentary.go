package timeseries

import "sync/atomic"

// MomentarySeries tracks a value that doesn't naturally accumulate
// per-event (e.g. active connection count): callers report
// instantaneous samples via Add, and on each minute's rotation the
// mean of that minute's samples is written into the ring.
type MomentarySeries struct {
	ring
	values      [N]float64
	sum         float64
	count       uint64
	totalValues uint64
	maxValue    float64
}

// NewMomentarySeries returns an empty series.
func NewMomentarySeries() *MomentarySeries { return &MomentarySeries{} }

// Add accumulates one sample into the current minute's (sum, count)
// pair. Like CounterSeries.Add, this is a racy, non-atomic
// read-modify-write by design.
func (m *MomentarySeries) Add(v float64) {
	m.sum += v
	m.count++
}

// Rotate closes out the minute just ending: it writes sum/count into
// the current slot, updates total_values and max_value, then advances
// the ring and zeroes the new slot's accumulators.
func (m *MomentarySeries) Rotate() {
	var avg float64
	if m.count > 0 {
		avg = m.sum / float64(m.count)
	}
	idx := m.index()
	m.values[idx] = avg
	atomic.AddUint64(&m.totalValues, 1)
	if avg > m.maxValue {
		m.maxValue = avg
	}
	m.sum = 0
	m.count = 0

	next := m.advance()
	m.values[next] = 0
}

// Max returns the largest per-minute average observed so far.
func (m *MomentarySeries) Max() float64 { return m.maxValue }

// TotalValues returns how many minutes have contributed a value.
func (m *MomentarySeries) TotalValues() uint64 {
	return atomic.LoadUint64(&m.totalValues)
}
