// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package semaphore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_CapacityBound(t *testing.T) {
	p := New(2)
	require.True(t, p.TryAcquire())
	require.True(t, p.TryAcquire())
	assert.False(t, p.TryAcquire())
	assert.Equal(t, 0, p.Available())

	p.Release()
	assert.Equal(t, 1, p.Available())
	assert.True(t, p.TryAcquire())
}

func TestPool_TryAcquireTimeoutExpires(t *testing.T) {
	p := New(1)
	require.True(t, p.TryAcquire())

	start := time.Now()
	ok := p.TryAcquireTimeout(20 * time.Millisecond)
	elapsed := time.Since(start)

	assert.False(t, ok)
	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
}

func TestPool_TryAcquireTimeoutSucceedsOnRelease(t *testing.T) {
	p := New(1)
	require.True(t, p.TryAcquire())

	go func() {
		time.Sleep(10 * time.Millisecond)
		p.Release()
	}()

	assert.True(t, p.TryAcquireTimeout(200*time.Millisecond))
}

func TestPool_AcquireHonorsContextCancellation(t *testing.T) {
	p := New(1)
	require.True(t, p.TryAcquire())

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- p.Acquire(ctx) }()

	cancel()
	err := <-errc
	assert.Error(t, err)
}

func TestPool_FIFOFairness(t *testing.T) {
	p := New(1)
	require.True(t, p.TryAcquire())

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			time.Sleep(time.Duration(i) * 2 * time.Millisecond)
			_ = p.Acquire(context.Background())
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			p.Release()
		}(i)
		time.Sleep(2 * time.Millisecond) // let each goroutine join the wait queue in order
	}

	p.Release()
	wg.Wait()

	require.Len(t, order, 5)
	for i := 1; i < len(order); i++ {
		assert.LessOrEqual(t, order[i-1], order[i])
	}
}

func TestPool_ReleaseWithoutAcquire(t *testing.T) {
	p := New(1)
	require.True(t, p.TryAcquire())
	assert.Equal(t, 0, p.Available())

	p.Release()
	assert.Equal(t, 1, p.Capacity())
	assert.Equal(t, 1, p.Available())
}
