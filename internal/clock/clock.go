// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package clock provides an injectable wall clock so timing-sensitive
// packages (internal/timer, internal/leakybucket) can be exercised
// deterministically in tests.
package clock

import "time"

// Clock is the seam internal/timer schedules against.
type Clock interface {
	// NowMS returns the current time in milliseconds since the Unix epoch.
	NowMS() int64
	// NewTimer behaves like time.NewTimer: it fires once after d elapses.
	NewTimer(d time.Duration) Timer
}

// Timer is the subset of *time.Timer the delay timer worker needs.
type Timer interface {
	C() <-chan time.Time
	Reset(d time.Duration) bool
	Stop() bool
}

// Real is the production Clock, backed by the actual wall clock.
type Real struct{}

func (Real) NowMS() int64 { return time.Now().UnixMilli() }

func (Real) NewTimer(d time.Duration) Timer { return &realTimer{t: time.NewTimer(d)} }

type realTimer struct{ t *time.Timer }

func (r *realTimer) C() <-chan time.Time      { return r.t.C }
func (r *realTimer) Reset(d time.Duration) bool { return r.t.Reset(d) }
func (r *realTimer) Stop() bool                 { return r.t.Stop() }

// Default is the process-wide Real clock instance, used unless a package
// explicitly overrides it for testing.
var Default Clock = Real{}
