package processor

import (
	"sync"
	"time"
)

// StartDecision is the dispatcher's answer to a processor's call to
// SignalStartProcessing.
type StartDecision int

const (
	// Proceed is returned to the first processor of a request to call
	// SignalStartProcessing; it has won the race and should produce a
	// real reply.
	Proceed StartDecision = iota
	// Cancel is returned to every later caller; a processor getting
	// this back should stop without producing output.
	Cancel
)

func (d StartDecision) String() string {
	if d == Proceed {
		return "proceed"
	}
	return "cancel"
}

// raceGroup coordinates the start race for every processor racing one
// request: the first call to signalStart wins, and every other
// processor sharing the group is immediately sent Cancel().
type raceGroup struct {
	mu      sync.Mutex
	started bool
	procs   []Processor
}

func (g *raceGroup) signalStart(self Processor) StartDecision {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.started {
		return Cancel
	}
	g.started = true
	for _, p := range g.procs {
		if p != self {
			p.Cancel()
		}
	}
	return Proceed
}

// Base provides the SignalStartProcessing/SignalFinishProcessing
// plumbing every concrete Processor embeds, the same way cstask.Base
// provides query plumbing every concrete Cassandra task embeds. A
// zero-value Base is safe to embed; Dispatch wires it to the
// request's race group and result slot via AttachRace before Process
// ever runs.
type Base struct {
	group  *raceGroup
	self   Processor
	result *ProcessorResult
}

// AttachRace binds b to the shared race group for one request, this
// processor's own identity within that group, and the ProcessorResult
// slot its signal timestamps are recorded into. Called by
// Dispatcher.Dispatch once, before Process is invoked.
func (b *Base) AttachRace(group *raceGroup, self Processor, result *ProcessorResult) {
	b.group = group
	b.self = self
	b.result = result
}

// SignalStartProcessing enters the start race. The first processor
// across the whole group to call this gets Proceed; every later
// caller gets Cancel, and every other still-running processor in the
// group is sent Cancel() before this call returns.
func (b *Base) SignalStartProcessing() StartDecision {
	if b.result != nil {
		b.result.SignalStartAt = time.Now()
	}
	if b.group == nil {
		return Proceed
	}
	return b.group.signalStart(b.self)
}

// SignalFinishProcessing records that this processor has nothing
// further to contribute. A processor calls this exactly once, whether
// it proceeded or was told to cancel.
func (b *Base) SignalFinishProcessing() {
	if b.result != nil {
		b.result.SignalFinishAt = time.Now()
	}
}
