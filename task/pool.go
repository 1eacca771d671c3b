// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package task provides a self-sizing goroutine pool: it keeps a
// target number of goroutines looping over a step function, growing
// past that target while a worker is blocked on I/O and shrinking
// back down once the block clears. The processor dispatcher uses one
// Pool per backend group to cap how many processors can hit that
// backend at once.
package task

import (
	"sync"
	"sync/atomic"
)

// Pool runs a step function repeatedly across a self-adjusting number
// of goroutines. Construct one with NewPool, which spawns targetN
// workers immediately. A worker that is about to block for an
// unknown duration calls Block so the pool can spin up a replacement,
// then calls Unblock once it's runnable again so the pool can shed
// the extra worker later. Close stops accepting new work and waits
// for every worker to exit.
type Pool struct {
	mu        sync.Mutex // locker used for cond
	cond      *sync.Cond // notify of exiting workers
	step      func()
	targetN   int32 // desired number
	unblocked int32 // currently active and unblocked
	live      int32 // currently active including blocked
	stats     PoolStats
}

type PoolStats interface {
	PoolSize(int) // reports current pool size
}

// NewPool creates a pool that attempts to keep targetN goroutines
// active, executing step() repeatedly. It updates poolSize with the
// current size of the pool when that changes.
func NewPool(targetN int, step func(), stats PoolStats) *Pool {
	p := &Pool{targetN: int32(targetN), step: step, stats: stats}
	p.cond = sync.NewCond(&p.mu)
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i < targetN; i++ {
		p.addWorker()
	}
	return p
}

// Block tells the pool that the calling worker is about to sit on a
// slow call (a Cassandra query, say) for an unknown amount of time.
// If that would leave fewer than targetN goroutines free to pick up
// new step() calls, Block spawns a replacement before returning.
func (p *Pool) Block() {
	p.mu.Lock()
	defer p.mu.Unlock()
	unblocked := atomic.AddInt32(&p.unblocked, -1)
	target := atomic.LoadInt32(&p.targetN)
	if unblocked < target {
		p.addWorker()
	}
}

// Unblock marks a worker as unblocked, potentially allowing the pool to
// retire a worker thread at some point in the future.
func (p *Pool) Unblock() {
	atomic.AddInt32(&p.unblocked, 1)
}

// Shutdown tells a pool to terminate by setting its desired pool size
// to zero, but does not wait for the jobs in it to stop. It is safe to
// call this before calling Close.
func (p *Pool) Shutdown() {
	atomic.StoreInt32(&p.targetN, 0)
}

// Stats reports on the pool's current state -- total live workers it
// has, how many it thinks are unblocked, and what its target is.
// These numbers are sampled individually, and there's no locking, so they
// are not guaranteed to be consistent. This is useful for approximate
// monitoring.
func (p *Pool) Stats() (live, unblocked, target int) {
	return int(atomic.LoadInt32(&p.live)), int(atomic.LoadInt32(&p.unblocked)), int(atomic.LoadInt32(&p.targetN))
}

// Live reports the pool's current live worker count, the piece of
// Stats callers that only care about group occupancy need most often
// (e.g. the processor dispatcher's per-group debug counts).
func (p *Pool) Live() int {
	return int(atomic.LoadInt32(&p.live))
}

// Close is a Shutdown followed by waiting for all jobs to exit.
func (p *Pool) Close() {
	// important to note: p.cond.Wait() is actually releasing this lock,
	// then reacquiring it when the wait succeeds. This means that
	// nothing which uses the lock can trigger between our read of
	// live, and our wait on the condition variable...
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Shutdown()
	live := atomic.LoadInt32(&p.live)
	for live > 0 {
		p.cond.Wait()
		// This line occurs while we hold p.mu. addWorker can't be called
		// except from inside something that would also hold the lock.
		// So, if the value can't be stale and increasing, and it can't
		// increase anyway once targetN is 0.
		live = atomic.LoadInt32(&p.live)
	}
}

// addWorker increments the number of unblocked things, and starts a worker.
// The unblocked count is technically wrong until the worker gets running, but
// it's right "soon". The live count maintenance is done inside the worker.
func (p *Pool) addWorker() {
	// update worker count. we don't notify the condition variable because
	// increasing workers can't make us more-closed.
	live := atomic.AddInt32(&p.live, 1)
	if p.stats != nil {
		p.stats.PoolSize(int(live))
	}
	atomic.AddInt32(&p.unblocked, 1)
	go p.work()
}

// work runs the provided work function in a loop as long as there's not
// too many unblocked goroutines, otherwise it exits.
func (p *Pool) work() {
	defer func() {
		// The lock prevents our modification of p.live from
		// happening between the read of p.live and the wait on
		// the condition variable in p.Close. Otherwise, it's
		// possible for these to interleave as:
		//
		// p.Close        this function
		// -------        -------------
		// read p.live
		//                modify p.live
		//                broadcast to p.cond
		// p.Cond.Wait
		//
		// and the wait never terminates because the broadcast
		// happened before that.
		p.mu.Lock()
		defer p.mu.Unlock()
		live := atomic.AddInt32(&p.live, -1)
		if p.stats != nil {
			p.stats.PoolSize(int(live))
		}
		// notify any waiters that we're done
		if live == 0 {
			p.cond.Broadcast()
		}
	}()
	for {
		unblocked := atomic.LoadInt32(&p.unblocked)
		target := atomic.LoadInt32(&p.targetN)
		for unblocked > target {
			// Might have too many!
			swapped := atomic.CompareAndSwapInt32(&p.unblocked, unblocked, unblocked-1)
			if swapped {
				// we've successfully removed ourselves from the unblocked count.
				// now return, letting the deferred add above remove us from the live
				// count as well.
				return
			}
			// If the swap failed, unblocked increased or decreased. We
			// re-extract it, and try the loop again. If it's no longer higher
			// than the target, this loop ends and we continue running.
			// If it's higher than the target, we'll try again with this new
			// value.
			// We also reload target because someone could have told us to
			// terminate.
			unblocked = atomic.LoadInt32(&p.unblocked)
			target = atomic.LoadInt32(&p.targetN)
		}
		p.step()
	}
}
