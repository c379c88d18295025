// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package leakybucket

import (
	"runtime"
	"testing"
	"time"
	"weak"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/wardgate/internal/clock"
	"grimm.is/wardgate/internal/timer"
)

// manualClock is a directly-steppable clock.Clock using real *time.Timer
// under the hood (via time.AfterFunc-free real timers), so the bucket's
// own internal/timer worker runs for real while the test controls NowMS.
type manualClock struct {
	now int64
}

func (m *manualClock) NowMS() int64 { return m.now }
func (m *manualClock) NewTimer(d time.Duration) clock.Timer {
	return &realTimerAdapter{time.NewTimer(d)}
}

type realTimerAdapter struct{ t *time.Timer }

func (r *realTimerAdapter) C() <-chan time.Time       { return r.t.C }
func (r *realTimerAdapter) Reset(d time.Duration) bool { return r.t.Reset(d) }
func (r *realTimerAdapter) Stop() bool                 { return r.t.Stop() }

func TestBucket_BoundsAcquisitionsPerPeriod(t *testing.T) {
	c := &manualClock{now: 0}
	tm := timer.New(c, nil)
	b := NewWithDeps(3, 30*time.Millisecond, c, tm)

	assert.True(t, b.Pool.TryAcquire())
	assert.True(t, b.Pool.TryAcquire())
	assert.True(t, b.Pool.TryAcquire())
	assert.False(t, b.Pool.TryAcquire())
}

func TestBucket_RefillsOverRealTime(t *testing.T) {
	c := &manualClock{now: 0}
	tm := timer.New(c, nil)
	// n=2, period=40ms -> frequencyMS=20ms.
	b := NewWithDeps(2, 40*time.Millisecond, c, tm)

	require.True(t, b.Pool.TryAcquire())
	require.True(t, b.Pool.TryAcquire())
	require.False(t, b.Pool.TryAcquire())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
		c.now += 1
		if b.Pool.TryAcquire() {
			return
		}
	}
	t.Fatal("bucket never refilled a permit")
}

func TestBucket_StartsFull(t *testing.T) {
	c := &manualClock{now: 0}
	tm := timer.New(c, nil)
	b := NewWithDeps(1, 20*time.Millisecond, c, tm)

	// The bucket starts full (capacity 1, nothing acquired): the synchronous
	// release step in the constructor found it full and granted no permit.
	assert.Equal(t, 1, b.Pool.Available())
}

// TestBucket_ReclaimedEvenWhileCadenceKeepsFiring guards against the
// release/expire cadence re-scheduling itself with a strong reference to
// the Bucket: since the cadence tick always beats the expire deadline for
// n>1, a strong self-reference there would pin the Bucket forever and
// keyedfactory's weak-pointer reclaim would never fire for it.
func TestBucket_ReclaimedEvenWhileCadenceKeepsFiring(t *testing.T) {
	c := &manualClock{now: 0}
	tm := timer.New(c, nil)

	var wp weak.Pointer[Bucket]
	func() {
		b := NewWithDeps(2, 20*time.Millisecond, c, tm)
		wp = weak.Make(b)
		runtime.KeepAlive(b)
	}()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				time.Sleep(time.Millisecond)
				c.now++
			}
		}
	}()

	deadline := time.Now().Add(3 * time.Second)
	for wp.Value() != nil && time.Now().Before(deadline) {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}
	require.Nil(t, wp.Value(), "the self-rescheduling release/expire cadence must not keep the Bucket alive once nothing outside holds it")
}
