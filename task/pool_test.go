package task

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type recordingStats struct {
	mu    sync.Mutex
	sizes []int
}

func (s *recordingStats) PoolSize(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sizes = append(s.sizes, n)
}

func (s *recordingStats) last() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sizes) == 0 {
		return 0
	}
	return s.sizes[len(s.sizes)-1]
}

func TestNewPoolSpawnsTargetWorkers(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	p := NewPool(3, func() {
		atomic.AddInt32(&calls, 1)
		<-release
	}, nil)
	defer func() {
		close(release)
		p.Close()
	}()

	deadline := time.After(time.Second)
	for {
		if atomic.LoadInt32(&calls) >= 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("only %d of 3 workers entered step()", atomic.LoadInt32(&calls))
		case <-time.After(time.Millisecond):
		}
	}

	live, unblocked, target := p.Stats()
	if live != 3 || unblocked != 3 || target != 3 {
		t.Fatalf("Stats() = (%d, %d, %d), want (3, 3, 3)", live, unblocked, target)
	}
	if got := p.Live(); got != 3 {
		t.Fatalf("Live() = %d, want 3", got)
	}
}

func TestBlockGrowsPoolPastTarget(t *testing.T) {
	stats := &recordingStats{}
	started := make(chan struct{}, 8)
	release := make(chan struct{})
	p := NewPool(1, func() {
		started <- struct{}{}
		<-release
	}, stats)
	defer func() {
		close(release)
		p.Close()
	}()

	<-started

	p.Block()
	defer p.Unblock()

	deadline := time.After(time.Second)
	for {
		live, _, _ := p.Stats()
		if live >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("pool never grew past target after Block(); live=%d", live)
		case <-time.After(time.Millisecond):
		}
	}
}

func TestShutdownThenCloseDrainsWorkers(t *testing.T) {
	unblockedLoop := make(chan struct{})
	p := NewPool(2, func() {
		select {
		case <-unblockedLoop:
		default:
			close(unblockedLoop)
		}
		time.Sleep(time.Millisecond)
	}, nil)

	<-unblockedLoop
	p.Shutdown()

	done := make(chan struct{})
	go func() {
		p.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close() did not return after Shutdown()")
	}

	live, _, target := p.Stats()
	if live != 0 || target != 0 {
		t.Fatalf("Stats() after Close() = (live=%d, target=%d), want (0, 0)", live, target)
	}
}
