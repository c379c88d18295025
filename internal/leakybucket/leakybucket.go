// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package leakybucket implements the leaky-bucket rate limiter: at most N
// acquisitions per rolling period, refilled at period/N via a single
// scheduled-task cadence. Each release tick that finds the bucket full
// re-arms an expire task one period later, and the cadence stops when that
// task fires or once the Bucket has been garbage-collected. With N>1 the
// next release tick always falls due before the expire deadline, so while a
// Bucket is alive its expire task is pushed back on every tick and does not
// fire.
package leakybucket

import (
	"time"
	"weak"

	"grimm.is/wardgate/internal/clock"
	"grimm.is/wardgate/internal/semaphore"
	"grimm.is/wardgate/internal/timer"
)

type tokenKind int8

const (
	kindRelease tokenKind = iota
	kindExpire
)

// bucketToken is the stable, comparable timer.Token identifying "the
// release task" or "the expire task" for one Bucket, per the delay timer's
// cancel-by-identity contract. It holds only a weak.Pointer, not *Bucket:
// the token lives inside internal/timer's task heap for as long as the
// cadence keeps rescheduling itself, and a strong reference there would
// pin the Bucket alive forever, defeating keyedfactory's reclaim.
type bucketToken struct {
	wp   weak.Pointer[Bucket]
	kind tokenKind
}

// Bucket enforces at most N acquisitions per rolling period. Callers
// Acquire/TryAcquire/TryAcquireTimeout the embedded Pool directly; refill is
// entirely the timer's job, so Bucket exposes no Release of its own.
type Bucket struct {
	Pool *semaphore.Pool

	n           int64
	periodMS    int64
	frequencyMS int64

	clock clock.Clock
	tm    *timer.Timer
}

// New constructs a leaky bucket using the process-wide default timer and
// clock.
func New(n int, period time.Duration) *Bucket {
	return NewWithDeps(n, period, clock.Default, timer.Default())
}

// NewWithDeps is New with an injected clock and timer, for deterministic
// tests.
func NewWithDeps(n int, period time.Duration, c clock.Clock, tm *timer.Timer) *Bucket {
	if n < 1 {
		n = 1
	}
	if c == nil {
		c = clock.Default
	}
	b := &Bucket{
		Pool:        semaphore.New(n),
		n:           int64(n),
		periodMS:    period.Milliseconds(),
		frequencyMS: period.Milliseconds() / int64(n),
		clock:       c,
		tm:          tm,
	}
	if b.frequencyMS < 1 {
		b.frequencyMS = 1
	}
	// Run the release step once synchronously; it schedules its own next
	// tick before returning.
	b.release()
	return b
}

func (b *Bucket) weakSelf() weak.Pointer[Bucket] { return weak.Make(b) }

func releaseToken(wp weak.Pointer[Bucket]) timer.Token { return bucketToken{wp, kindRelease} }
func expireToken(wp weak.Pointer[Bucket]) timer.Token  { return bucketToken{wp, kindExpire} }

// release runs every frequencyMS while the bucket is active: it grants a
// permit if the bucket isn't already full, or arms the idle-expire task if
// it is. The task it reschedules itself as closes only over a weak.Pointer,
// so once the Bucket has no external strong holder, the next tick finds it
// already collected and lets the cadence die instead of resurrecting it.
func (b *Bucket) release() {
	wp := b.weakSelf()
	now := b.clock.NowMS()
	b.tm.Schedule(now+b.frequencyMS, releaseToken(wp), func() { fireRelease(wp) })

	if int64(b.Pool.Available()) < b.n {
		b.tm.Unschedule(expireToken(wp))
		b.Pool.Release()
		return
	}
	b.tm.Unschedule(expireToken(wp))
	b.tm.Schedule(now+b.periodMS, expireToken(wp), func() { fireExpire(wp) })
}

// expire stops the refill treadmill. release arms it one period after a
// tick that finds the bucket full and re-arms it on every later such tick,
// so it fires only if no release tick runs before that deadline.
func (b *Bucket) expire() {
	b.tm.Unschedule(releaseToken(b.weakSelf()))
}

// fireRelease and fireExpire are the actual functions internal/timer
// schedules: they resolve the weak.Pointer and no-op once the Bucket it
// refers to has already been reclaimed, rather than closing over *Bucket
// directly.
func fireRelease(wp weak.Pointer[Bucket]) {
	if b := wp.Value(); b != nil {
		b.release()
	}
}

func fireExpire(wp weak.Pointer[Bucket]) {
	if b := wp.Value(); b != nil {
		b.expire()
	}
}
