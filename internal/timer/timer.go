// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package timer implements a single-threaded, deadline-ordered task
// scheduler with cancellation by a stable token. It backs the leaky-bucket
// limiter's release/expire cadence (internal/leakybucket).
package timer

import (
	"container/heap"
	"sync"
	"time"

	"grimm.is/wardgate/internal/clock"
	"grimm.is/wardgate/internal/obslog"
)

// Token identifies a logical scheduled action (e.g. "the release task for
// bucket B") so it can be cancelled without threading a handle through.
// Tokens must be comparable and stable across repeated Schedule calls for
// the same logical action.
type Token any

type task struct {
	deadlineMS int64
	tok        Token
	fn         func()
}

type taskHeap []*task

func (h taskHeap) Len() int            { return len(h) }
func (h taskHeap) Less(i, j int) bool  { return h[i].deadlineMS < h[j].deadlineMS }
func (h taskHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)         { *h = append(*h, x.(*task)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Timer is a deadline-ordered scheduler. The zero value is not usable; call
// New or use Default.
type Timer struct {
	mu      sync.Mutex
	heap    taskHeap
	wake    chan struct{}
	started bool
	clock   clock.Clock
	log     *obslog.Logger
}

// New builds a Timer. A nil clock uses clock.Default; a nil log discards
// task-failure reports.
func New(c clock.Clock, log *obslog.Logger) *Timer {
	if c == nil {
		c = clock.Default
	}
	if log == nil {
		log = obslog.Noop()
	}
	return &Timer{clock: c, log: log, wake: make(chan struct{}, 1)}
}

var (
	defaultOnce sync.Once
	defaultT    *Timer
)

// Default returns the process-wide singleton Timer. Its worker goroutine is
// started lazily on the first Schedule call and is never stopped.
func Default() *Timer {
	defaultOnce.Do(func() {
		defaultT = New(clock.Default, obslog.Noop())
	})
	return defaultT
}

// Schedule inserts a task to run fn once deadlineMS is reached. Multiple
// schedules under the same token add multiple independent tasks.
func (t *Timer) Schedule(deadlineMS int64, tok Token, fn func()) {
	t.mu.Lock()
	heap.Push(&t.heap, &task{deadlineMS: deadlineMS, tok: tok, fn: fn})
	needStart := !t.started
	t.started = true
	t.mu.Unlock()

	if needStart {
		go t.run()
		return
	}
	t.poke()
}

// Unschedule removes at most one pending task whose token equals tok. It is
// a no-op if no such task is pending.
func (t *Timer) Unschedule(tok Token) {
	t.mu.Lock()
	for i, item := range t.heap {
		if item.tok == tok {
			heap.Remove(&t.heap, i)
			break
		}
	}
	t.mu.Unlock()
	t.poke()
}

func (t *Timer) poke() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *Timer) run() {
	for {
		t.mu.Lock()
		if len(t.heap) == 0 {
			t.mu.Unlock()
			<-t.wake
			continue
		}
		head := t.heap[0]
		wait := time.Duration(head.deadlineMS-t.clock.NowMS()) * time.Millisecond
		t.mu.Unlock()

		if wait <= 0 {
			t.fireIfStillHead(head)
			continue
		}

		w := t.clock.NewTimer(wait)
		select {
		case <-w.C():
		case <-t.wake:
			w.Stop()
		}
	}
}

// fireIfStillHead pops and runs head only if it is still the earliest
// pending task and its deadline has actually passed; otherwise it is a
// no-op (the task was unscheduled, or reordered by a concurrent Schedule,
// between the worker observing it and waking up).
func (t *Timer) fireIfStillHead(head *task) {
	t.mu.Lock()
	if len(t.heap) == 0 || t.heap[0] != head || t.clock.NowMS() < head.deadlineMS {
		t.mu.Unlock()
		return
	}
	heap.Pop(&t.heap)
	t.mu.Unlock()

	t.runSafely(head.fn)
}

func (t *Timer) runSafely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Warn("timer task panicked", "panic", r)
		}
	}()
	fn()
}
