// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package guard

import (
	"net/http"
	"time"

	"grimm.is/wardgate/internal/keyedfactory"
	"grimm.is/wardgate/internal/obslog"
	"grimm.is/wardgate/internal/semaphore"
	"grimm.is/wardgate/metrics"
)

type concurrencyConfig struct {
	common
	maxConcurrent int
	maxWait       time.Duration
	ident         IdentFunc
	deny          DenyHandler
}

// ConcurrencyOption configures WrapConcurrencyThrottle and
// WrapConcurrencyLimit.
type ConcurrencyOption func(*concurrencyConfig)

// WithMaxConcurrent overrides the permit pool size (default 1).
func WithMaxConcurrent(n int) ConcurrencyOption {
	return func(c *concurrencyConfig) { c.maxConcurrent = n }
}

// WithConcurrencyMaxWait overrides how long WrapConcurrencyLimit waits for
// a permit before denying (default 50ms). It has no effect on
// WrapConcurrencyThrottle, which always waits indefinitely.
func WithConcurrencyMaxWait(d time.Duration) ConcurrencyOption {
	return func(c *concurrencyConfig) { c.maxWait = d }
}

// WithConcurrencyIdent overrides the identity function (default: a single
// global identity, i.e. one pool shared by every request).
func WithConcurrencyIdent(f IdentFunc) ConcurrencyOption {
	return func(c *concurrencyConfig) { c.ident = f }
}

// WithConcurrencyDenyHandler overrides WrapConcurrencyLimit's response on
// denial (default: 429 "Limit exceeded").
func WithConcurrencyDenyHandler(h DenyHandler) ConcurrencyOption {
	return func(c *concurrencyConfig) { c.deny = h }
}

// WithConcurrencyLogger attaches a logger.
func WithConcurrencyLogger(l *obslog.Logger) ConcurrencyOption {
	return func(c *concurrencyConfig) { c.logger = l }
}

// WithConcurrencyMetrics attaches a Recorder.
func WithConcurrencyMetrics(r *metrics.Recorder) ConcurrencyOption {
	return func(c *concurrencyConfig) { c.metrics = r }
}

// WrapConcurrencyThrottle bounds in-flight requests per identity to
// maxConcurrent, blocking additional requests until a slot frees up. It
// never denies.
func WrapConcurrencyThrottle(inner http.Handler, opts ...ConcurrencyOption) http.Handler {
	cfg := concurrencyConfig{maxConcurrent: 1, ident: IdentWorld}
	for _, o := range opts {
		o(&cfg)
	}
	n := cfg.maxConcurrent
	table := keyedfactory.New[any, semaphore.Pool]()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := cfg.ident(r)
		pool := table.Get(key, func(any) *semaphore.Pool { return semaphore.New(n) })

		if err := pool.Acquire(r.Context()); err != nil {
			cfg.log().Warn("concurrency_throttle: acquire aborted", "error", err)
			return
		}
		cfg.metrics.Admit("concurrency_throttle")
		defer pool.Release()
		inner.ServeHTTP(w, r)
	})
}

// WrapConcurrencyLimit bounds in-flight requests per identity to
// maxConcurrent, waiting up to maxWait for a free slot before denying.
func WrapConcurrencyLimit(inner http.Handler, opts ...ConcurrencyOption) http.Handler {
	cfg := concurrencyConfig{
		maxConcurrent: 1,
		maxWait:       50 * time.Millisecond,
		ident:         IdentWorld,
		deny:          denyLimitExceeded,
	}
	for _, o := range opts {
		o(&cfg)
	}
	n := cfg.maxConcurrent
	table := keyedfactory.New[any, semaphore.Pool]()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := cfg.ident(r)
		pool := table.Get(key, func(any) *semaphore.Pool { return semaphore.New(n) })

		if !pool.TryAcquireTimeout(cfg.maxWait) {
			cfg.metrics.Deny("concurrency_limit", "timeout")
			cfg.log().Info("concurrency_limit: denied", "max_wait", cfg.maxWait)
			cfg.deny(w, r)
			return
		}
		cfg.metrics.Admit("concurrency_limit")
		defer pool.Release()
		inner.ServeHTTP(w, r)
	})
}
