package processor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeRequest struct{ kind string }

func (r fakeRequest) RequestType() string { return r.kind }

type fakeReply struct{}

func (fakeReply) Canceled() bool { return false }

type fakeProcessor struct {
	Base
	name, group string
	status      int32 // Status, accessed atomically
	processFn   func(p *fakeProcessor)
	canceled    int32
}

func newFakeProcessor(name, group string, fn func(p *fakeProcessor)) *fakeProcessor {
	return &fakeProcessor{name: name, group: group, processFn: fn, status: int32(StatusInProgress)}
}

func (p *fakeProcessor) Process() {
	if p.processFn != nil {
		p.processFn(p)
	}
}
func (p *fakeProcessor) Cancel()            { atomic.StoreInt32(&p.canceled, 1) }
func (p *fakeProcessor) wasCanceled() bool  { return atomic.LoadInt32(&p.canceled) == 1 }
func (p *fakeProcessor) setStatus(s Status) { atomic.StoreInt32(&p.status, int32(s)) }
func (p *fakeProcessor) GetStatus() Status  { return Status(atomic.LoadInt32(&p.status)) }
func (p *fakeProcessor) Name() string       { return p.name }
func (p *fakeProcessor) GroupName() string  { return p.group }
func (p *fakeProcessor) OnEvent()           {}

type fakeFactory struct {
	build func(req Request, reply Reply) Processor
}

func (f fakeFactory) CanProcess(req Request, reply Reply) bool         { return f.build(req, reply) != nil }
func (f fakeFactory) WhatCanProcess(req Request, reply Reply) []string { return nil }
func (f fakeFactory) CreateProcessor(req Request, reply Reply, priority Priority) Processor {
	return f.build(req, reply)
}

func TestDispatchNoFactoriesReturnsNotFound(t *testing.T) {
	d := NewDispatcher(2, nil)
	outcome := d.Dispatch(context.Background(), fakeRequest{"resolve"}, fakeReply{})
	if outcome.Status != StatusNotFound {
		t.Fatalf("status = %v, want StatusNotFound", outcome.Status)
	}
}

func TestDispatchRacesAllWillingProcessorsAndAggregatesWorstStatus(t *testing.T) {
	d := NewDispatcher(4, nil)

	d.Register(fakeFactory{build: func(req Request, reply Reply) Processor {
		return newFakeProcessor("ok", "group-a", func(p *fakeProcessor) { p.setStatus(StatusDone) })
	}})
	d.Register(fakeFactory{build: func(req Request, reply Reply) Processor {
		return newFakeProcessor("bad", "group-b", func(p *fakeProcessor) { p.setStatus(StatusError) })
	}})

	outcome := d.Dispatch(context.Background(), fakeRequest{"resolve"}, fakeReply{})

	if outcome.Status != StatusError {
		t.Fatalf("status = %v, want StatusError (worst of Done/Error)", outcome.Status)
	}
	if len(outcome.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(outcome.Results))
	}
	d.Shutdown()
}

func TestDispatchCancelsAllProcessorsWhenContextIsCanceled(t *testing.T) {
	d := NewDispatcher(4, nil)

	started := make(chan struct{}, 2)
	release := make(chan struct{})

	var procs []*fakeProcessor
	for i := 0; i < 2; i++ {
		name := []string{"p1", "p2"}[i]
		fp := newFakeProcessor(name, "group-a", func(p *fakeProcessor) {
			started <- struct{}{}
			<-release
			p.setStatus(StatusCanceled)
		})
		procs = append(procs, fp)
		d.Register(fakeFactory{build: func(req Request, reply Reply) Processor { return fp }})
	}

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan RequestOutcome, 1)
	go func() {
		done <- d.Dispatch(ctx, fakeRequest{"resolve"}, fakeReply{})
	}()

	<-started
	<-started
	cancel()

	// give the cancellation-fanout goroutine a moment to call Cancel on
	// every processor before we let them actually finish.
	time.Sleep(20 * time.Millisecond)
	close(release)

	outcome := <-done
	for _, p := range procs {
		if !p.wasCanceled() {
			t.Fatalf("processor %s was never canceled", p.name)
		}
	}
	if outcome.Status != StatusCanceled {
		t.Fatalf("status = %v, want StatusCanceled", outcome.Status)
	}
	d.Shutdown()
}

func TestDispatchLimitsConcurrencyPerGroup(t *testing.T) {
	d := NewDispatcher(1, nil)

	var mu sync.Mutex
	var running, maxRunning int

	enter := func(*fakeProcessor) {
		mu.Lock()
		running++
		if running > maxRunning {
			maxRunning = running
		}
		mu.Unlock()

		time.Sleep(15 * time.Millisecond)

		mu.Lock()
		running--
		mu.Unlock()
	}

	for i := 0; i < 3; i++ {
		name := []string{"a", "b", "c"}[i]
		d.Register(fakeFactory{build: func(req Request, reply Reply) Processor {
			return newFakeProcessor(name, "same-group", func(p *fakeProcessor) {
				enter(p)
				p.setStatus(StatusDone)
			})
		}})
	}

	outcome := d.Dispatch(context.Background(), fakeRequest{"resolve"}, fakeReply{})
	if outcome.Status != StatusDone {
		t.Fatalf("status = %v, want StatusDone", outcome.Status)
	}
	if maxRunning > 1 {
		t.Fatalf("observed %d processors running concurrently in one group with poolSize=1", maxRunning)
	}
	d.Shutdown()
}

func TestDispatchFirstSignalStartWinsAndCancelsTheRest(t *testing.T) {
	d := NewDispatcher(4, nil)

	ready := make(chan struct{}, 2)
	proceedNow := make(chan struct{})

	var decisions sync.Map // name -> StartDecision

	winner := newFakeProcessor("winner", "group-a", func(p *fakeProcessor) {
		ready <- struct{}{}
		<-proceedNow
		decisions.Store(p.name, p.SignalStartProcessing())
		p.SignalFinishProcessing()
		p.setStatus(StatusDone)
	})
	loser := newFakeProcessor("loser", "group-b", func(p *fakeProcessor) {
		ready <- struct{}{}
		<-proceedNow
		time.Sleep(10 * time.Millisecond) // let winner signal first
		decisions.Store(p.name, p.SignalStartProcessing())
		p.SignalFinishProcessing()
		if p.wasCanceled() {
			p.setStatus(StatusCanceled)
		} else {
			p.setStatus(StatusDone)
		}
	})

	d.Register(fakeFactory{build: func(req Request, reply Reply) Processor { return winner }})
	d.Register(fakeFactory{build: func(req Request, reply Reply) Processor { return loser }})

	done := make(chan RequestOutcome, 1)
	go func() { done <- d.Dispatch(context.Background(), fakeRequest{"resolve"}, fakeReply{}) }()

	<-ready
	<-ready
	close(proceedNow)

	outcome := <-done

	winDecision, _ := decisions.Load("winner")
	loseDecision, _ := decisions.Load("loser")
	if winDecision != Proceed {
		t.Fatalf("winner's SignalStartProcessing = %v, want Proceed", winDecision)
	}
	if loseDecision != Cancel {
		t.Fatalf("loser's SignalStartProcessing = %v, want Cancel", loseDecision)
	}
	if !loser.wasCanceled() {
		t.Fatal("loser was never sent Cancel() after winner signaled start")
	}
	if winner.wasCanceled() {
		t.Fatal("winner should never be canceled by its own win")
	}
	_ = outcome
	d.Shutdown()
}

func TestSignalStartProcessingRecordsTimestamps(t *testing.T) {
	d := NewDispatcher(2, nil)

	fp := newFakeProcessor("solo", "group-a", func(p *fakeProcessor) {
		p.SignalStartProcessing()
		p.SignalFinishProcessing()
		p.setStatus(StatusDone)
	})
	d.Register(fakeFactory{build: func(req Request, reply Reply) Processor { return fp }})

	outcome := d.Dispatch(context.Background(), fakeRequest{"resolve"}, fakeReply{})
	if len(outcome.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(outcome.Results))
	}
	r := outcome.Results[0]
	if r.SignalStartAt.IsZero() || r.SignalFinishAt.IsZero() {
		t.Fatalf("SignalStartAt/SignalFinishAt not recorded: %+v", r)
	}
	if r.SignalFinishAt.Before(r.SignalStartAt) {
		t.Fatalf("SignalFinishAt %v is before SignalStartAt %v", r.SignalFinishAt, r.SignalStartAt)
	}
	d.Shutdown()
}

func TestGroupForReusesPoolByName(t *testing.T) {
	d := NewDispatcher(2, nil)
	g1 := d.groupFor("cassandra")
	g2 := d.groupFor("cassandra")
	if g1 != g2 {
		t.Fatal("expected the same group pool to be reused for a repeated group name")
	}
	d.Shutdown()
}
