// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package guard

import (
	"net/http"
	"time"

	"grimm.is/wardgate/internal/keyedfactory"
	"grimm.is/wardgate/internal/leakybucket"
	"grimm.is/wardgate/internal/obslog"
	"grimm.is/wardgate/metrics"
)

type rateConfig struct {
	common
	maxRequests int
	period      time.Duration
	maxWait     time.Duration
	ident       IdentFunc
	deny        DenyHandler
}

// RateOption configures WrapRateThrottle and WrapRateLimit.
type RateOption func(*rateConfig)

// WithMaxRequests overrides the bucket size N (default 100 for throttle,
// 500 for limit).
func WithMaxRequests(n int) RateOption {
	return func(c *rateConfig) { c.maxRequests = n }
}

// WithPeriod overrides the rolling period over which maxRequests is
// enforced (default 60s).
func WithPeriod(d time.Duration) RateOption {
	return func(c *rateConfig) { c.period = d }
}

// WithRateMaxWait overrides how long WrapRateLimit waits for a free token
// before denying (default 50ms). It has no effect on WrapRateThrottle,
// which always waits indefinitely.
func WithRateMaxWait(d time.Duration) RateOption {
	return func(c *rateConfig) { c.maxWait = d }
}

// WithRateIdent overrides the identity function (default: a single global
// bucket shared by every request).
func WithRateIdent(f IdentFunc) RateOption {
	return func(c *rateConfig) { c.ident = f }
}

// WithRateDenyHandler overrides WrapRateLimit's response on denial
// (default: 429 "Limit exceeded").
func WithRateDenyHandler(h DenyHandler) RateOption {
	return func(c *rateConfig) { c.deny = h }
}

// WithRateLogger attaches a logger.
func WithRateLogger(l *obslog.Logger) RateOption {
	return func(c *rateConfig) { c.logger = l }
}

// WithRateMetrics attaches a Recorder.
func WithRateMetrics(r *metrics.Recorder) RateOption {
	return func(c *rateConfig) { c.metrics = r }
}

// WrapRateThrottle admits at most maxRequests requests per identity per
// period, blocking excess requests until a token leaks back in rather than
// denying them.
func WrapRateThrottle(inner http.Handler, opts ...RateOption) http.Handler {
	cfg := rateConfig{
		maxRequests: 100,
		period:      60 * time.Second,
		ident:       IdentWorld,
	}
	for _, o := range opts {
		o(&cfg)
	}
	n, period := cfg.maxRequests, cfg.period
	table := keyedfactory.New[any, leakybucket.Bucket]()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := cfg.ident(r)
		bucket := table.Get(key, func(any) *leakybucket.Bucket { return leakybucket.New(n, period) })

		if err := bucket.Pool.Acquire(r.Context()); err != nil {
			cfg.log().Warn("rate_throttle: acquire aborted", "error", err)
			return
		}
		cfg.metrics.Admit("rate_throttle")
		inner.ServeHTTP(w, r)
	})
}

// WrapRateLimit admits at most maxRequests requests per identity per
// period, waiting up to maxWait for a token before denying.
func WrapRateLimit(inner http.Handler, opts ...RateOption) http.Handler {
	cfg := rateConfig{
		maxRequests: 500,
		period:      60 * time.Second,
		maxWait:     50 * time.Millisecond,
		ident:       IdentWorld,
		deny:        denyLimitExceeded,
	}
	for _, o := range opts {
		o(&cfg)
	}
	n, period := cfg.maxRequests, cfg.period
	table := keyedfactory.New[any, leakybucket.Bucket]()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := cfg.ident(r)
		bucket := table.Get(key, func(any) *leakybucket.Bucket { return leakybucket.New(n, period) })

		if !bucket.Pool.TryAcquireTimeout(cfg.maxWait) {
			cfg.metrics.Deny("rate_limit", "timeout")
			cfg.log().Info("rate_limit: denied", "max_wait", cfg.maxWait)
			cfg.deny(w, r)
			return
		}
		cfg.metrics.Admit("rate_limit")
		inner.ServeHTTP(w, r)
	})
}
