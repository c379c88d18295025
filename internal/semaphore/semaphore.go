// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package semaphore implements the fair, bounded counting semaphore that
// backs concurrency and rate filters. It is a thin wrapper over
// golang.org/x/sync/semaphore.Weighted, which already grants permits in
// strict FIFO order among blocked waiters.
package semaphore

import (
	"context"
	"sync/atomic"
	"time"

	gosemaphore "golang.org/x/sync/semaphore"
)

// Pool is a fair counting semaphore with a fixed capacity.
type Pool struct {
	sem       *gosemaphore.Weighted
	capacity  int64
	available atomic.Int64
}

// New builds a Pool with the given capacity. capacity must be >= 1.
func New(capacity int) *Pool {
	p := &Pool{sem: gosemaphore.NewWeighted(int64(capacity)), capacity: int64(capacity)}
	p.available.Store(int64(capacity))
	return p
}

// Acquire blocks until a permit is available or ctx is done.
func (p *Pool) Acquire(ctx context.Context) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	p.available.Add(-1)
	return nil
}

// TryAcquire acquires a permit without blocking. It fails if any caller is
// already waiting, preserving FIFO order.
func (p *Pool) TryAcquire() bool {
	if p.sem.TryAcquire(1) {
		p.available.Add(-1)
		return true
	}
	return false
}

// TryAcquireTimeout blocks at most d for a permit, joining the same FIFO
// wait list as Acquire. d<=0 behaves like TryAcquire.
func (p *Pool) TryAcquireTimeout(d time.Duration) bool {
	if d <= 0 {
		return p.TryAcquire()
	}
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return p.Acquire(ctx) == nil
}

// Release returns one permit, waking the longest-waiting blocked caller if
// any. It is valid to call Release from a goroutine that never acquired
// (the leaky-bucket refill timer relies on this).
func (p *Pool) Release() {
	p.sem.Release(1)
	p.available.Add(1)
}

// Available reports the number of currently free permits.
func (p *Pool) Available() int {
	return int(p.available.Load())
}

// Capacity reports the pool's fixed capacity (N).
func (p *Pool) Capacity() int {
	return int(p.capacity)
}
