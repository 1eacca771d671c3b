package timeseries

import (
	"context"
	"time"

	"github.com/ncbi/psg-cassvc/logger"
	"github.com/ncbi/psg-cassvc/statsclient"
)

// Registry owns every named CounterSeries and MomentarySeries in the
// process and rotates them all once a minute from a single ticking
// goroutine, mirroring the way task.Pool pins one goroutine per unit
// of concurrent work rather than spawning a timer per series.
type Registry struct {
	counters  map[string]*CounterSeries
	momentary map[string]*MomentarySeries
	stats     statsclient.StatsClient
	log       logger.Logger
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewRegistry constructs an empty registry. stats may be
// statsclient.NopStatsClient.
func NewRegistry(stats statsclient.StatsClient, log logger.Logger) *Registry {
	if stats == nil {
		stats = statsclient.NopStatsClient
	}
	if log == nil {
		log = logger.NopLogger
	}
	return &Registry{
		counters:  make(map[string]*CounterSeries),
		momentary: make(map[string]*MomentarySeries),
		stats:     stats,
		log:       log,
	}
}

// Counters registers (or returns the existing) named CounterSeries.
func (r *Registry) Counters(name string) *CounterSeries {
	if s, ok := r.counters[name]; ok {
		return s
	}
	s := NewCounterSeries()
	r.counters[name] = s
	return s
}

// Momentary registers (or returns the existing) named MomentarySeries.
func (r *Registry) Momentary(name string) *MomentarySeries {
	if s, ok := r.momentary[name]; ok {
		return s
	}
	s := NewMomentarySeries()
	r.momentary[name] = s
	return s
}

// Run rotates every registered series once a minute until ctx is
// canceled. It also forwards each rotation's per-kind delta to the
// StatsClient sink, so a StatsD dashboard sees the same counts the
// in-process diagnostics endpoint would compute from the ring.
func (r *Registry) Run(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.loop(ctx)
}

// Stop cancels Run's loop and waits for it to exit.
func (r *Registry) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.done != nil {
		<-r.done
	}
}

func (r *Registry) loop(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.rotateAll()
		}
	}
}

func (r *Registry) rotateAll() {
	for name, s := range r.counters {
		// The slot of the minute just closed holds that minute's counts.
		idx := s.index()
		s.Rotate()
		for k := 0; k < int(numKinds); k++ {
			delta := s.counters[k][idx]
			if delta > 0 {
				r.stats.WithTags("series:"+name).Count(Kind(k).String(), int64(delta), 1.0)
			}
		}
	}
	for name, s := range r.momentary {
		idx := s.index()
		s.Rotate()
		r.stats.WithTags("series:"+name).Gauge("avg", s.values[idx], 1.0)
	}
	r.log.Debugf("timeseries: rotated %d counter series, %d momentary series", len(r.counters), len(r.momentary))
}
