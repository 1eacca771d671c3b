package processor

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ncbi/psg-cassvc/logger"
	"github.com/ncbi/psg-cassvc/task"
)

// Dispatcher holds the registered factories and races them against
// each incoming request. One Dispatcher serves the whole process;
// each request gets its own raceGroup.
type Dispatcher struct {
	mu        sync.RWMutex
	factories []Factory
	groups    map[string]*groupPool
	poolSize  int
	log       logger.Logger
}

// groupPool pins a fixed number of worker-loop goroutines to one
// processor group name (e.g. "cassandra"), capping how many
// processors that back onto the same backend run at once. jobs is the
// queue those goroutines drain; the step function's blocking receive
// means idle workers park on the channel rather than spin.
type groupPool struct {
	pool *task.Pool
	jobs chan func()
}

func newGroupPool(targetN int) *groupPool {
	g := &groupPool{jobs: make(chan func())}
	g.pool = task.NewPool(targetN, g.step, nil)
	return g
}

func (g *groupPool) step() {
	job, ok := <-g.jobs
	if !ok {
		return
	}
	job()
}

func (g *groupPool) submit(job func()) {
	g.jobs <- job
}

func (g *groupPool) close() {
	g.pool.Shutdown()
	close(g.jobs)
	g.pool.Close()
}

// NewDispatcher constructs an empty dispatcher. poolSize bounds how
// many worker-loop goroutines are pinned per processor group name,
// capping how many processors backing onto the same backend run at
// once, via task.Pool.
func NewDispatcher(poolSize int, log logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NopLogger
	}
	if poolSize <= 0 {
		poolSize = 1
	}
	return &Dispatcher{
		groups:   make(map[string]*groupPool),
		poolSize: poolSize,
		log:      log,
	}
}

// Register adds a factory. Not safe to call concurrently with
// Dispatch.
func (d *Dispatcher) Register(f Factory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.factories = append(d.factories, f)
}

// groupFor returns (creating if necessary) the worker pool that pins
// goroutines for group name.
func (d *Dispatcher) groupFor(name string) *groupPool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if g, ok := d.groups[name]; ok {
		return g
	}
	g := newGroupPool(d.poolSize)
	d.groups[name] = g
	return g
}

// ProcessorResult is one participating processor's final outcome.
type ProcessorResult struct {
	Name             string
	GroupName        string
	Status           Status
	ProcessInvokedAt time.Time
	SignalStartAt    time.Time
	SignalFinishAt   time.Time
}

// RequestOutcome is the aggregated result of dispatching one request
// to every willing processor.
type RequestOutcome struct {
	Status  Status
	Results []ProcessorResult
}

// Dispatch runs CreateProcessor across every registered factory,
// starts every processor that agrees to participate, waits for all of
// their Process calls to return (if ctx is canceled first, every
// processor is sent Cancel and Dispatch still waits for them), and
// returns the worst-of-all-statuses outcome. Every
// participating processor shares one race group: the first of them to
// call SignalStartProcessing wins and every other one is immediately
// canceled, independent of ctx.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request, reply Reply) RequestOutcome {
	d.mu.RLock()
	factories := make([]Factory, len(d.factories))
	copy(factories, d.factories)
	d.mu.RUnlock()

	var procs []Processor
	for i, f := range factories {
		if !f.CanProcess(req, reply) {
			continue
		}
		p := f.CreateProcessor(req, reply, Priority(i))
		if p == nil {
			continue
		}
		procs = append(procs, p)
	}

	if len(procs) == 0 {
		return RequestOutcome{Status: StatusNotFound}
	}

	results := make([]ProcessorResult, len(procs))
	group := &raceGroup{procs: procs}
	for i, p := range procs {
		results[i] = ProcessorResult{Name: p.Name(), GroupName: p.GroupName()}
		if a, ok := p.(interface {
			AttachRace(*raceGroup, Processor, *ProcessorResult)
		}); ok {
			a.AttachRace(group, p, &results[i])
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	for i, p := range procs {
		i, p := i, p
		g.Go(func() error {
			return d.runOne(gctx, p, &results[i])
		})
	}

	// Cancel every processor as soon as the group context is done,
	// whether that's from the caller's ctx or from one processor's
	// own error return.
	done := make(chan struct{})
	go func() {
		select {
		case <-gctx.Done():
			for _, p := range procs {
				p.Cancel()
			}
		case <-done:
		}
	}()

	_ = g.Wait()
	close(done)

	worst := StatusInProgress
	for _, r := range results {
		if r.Status.Worse(worst) {
			worst = r.Status
		}
	}
	return RequestOutcome{Status: worst, Results: results}
}

// runOne submits p's Process() call to its group's worker pool and
// never returns a non-nil error itself — a processor's own failure is
// reported through its GetStatus(), not through Go's error-propagation
// path, matching the original's "must not throw" contract.
// SignalStartAt/SignalFinishAt are recorded by p itself, from within
// Process, via SignalStartProcessing/SignalFinishProcessing.
func (d *Dispatcher) runOne(ctx context.Context, p Processor, result *ProcessorResult) error {
	group := d.groupFor(p.GroupName())

	result.ProcessInvokedAt = time.Now()

	finished := make(chan struct{})
	group.submit(func() {
		// Deliberately never call group.pool.Block() here: doing so
		// would let the pool grow past poolSize whenever a processor
		// blocks on backend I/O, which is exactly the case this cap
		// exists to bound. Unlike rbfTxStore's use of Block/Unblock to
		// keep throughput up around a blocking call, a group's target
		// size here is a hard ceiling on concurrent backend access, so
		// the pool's own worker count never moves once created.
		defer close(finished)
		defer func() {
			if r := recover(); r != nil {
				d.log.Errorf("processor %s panicked: %v", p.Name(), r)
			}
		}()
		p.Process()
	})

	select {
	case <-finished:
	case <-ctx.Done():
		p.Cancel()
		<-finished
	}

	result.Status = p.GetStatus()
	return nil
}

// GroupCounts reports the live worker-goroutine count for every
// processor group that has handled at least one request, keyed by
// group name. Intended for the httpapi debug surface.
func (d *Dispatcher) GroupCounts() map[string]int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	counts := make(map[string]int, len(d.groups))
	for name, g := range d.groups {
		counts[name] = g.pool.Live()
	}
	return counts
}

// Shutdown closes every per-group worker pool.
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, g := range d.groups {
		g.close()
	}
}
