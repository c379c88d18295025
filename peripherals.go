// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package guard

import (
	"net/http"
	"sync"

	"grimm.is/wardgate/internal/netaddr"
	"grimm.is/wardgate/internal/obslog"
	"grimm.is/wardgate/metrics"
)

// DynamicIPDenyList is a DynamicList that can also grow at runtime, the
// shape WrapOffenseBan needs to append newly-banned addresses to.
type DynamicIPDenyList interface {
	DynamicList
	Add(b netaddr.Block)
}

// NewDynamicIPDenyList builds an empty, concurrency-safe DynamicIPDenyList
// suitable for WrapOffenseBan and WrapDenyIPs' WithDenyList alike.
func NewDynamicIPDenyList() DynamicIPDenyList {
	return &atomicDenyList{}
}

type atomicDenyList struct {
	mu     sync.RWMutex
	blocks []netaddr.Block
}

func (l *atomicDenyList) Read() []netaddr.Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]netaddr.Block, len(l.blocks))
	copy(out, l.blocks)
	return out
}

func (l *atomicDenyList) Add(b netaddr.Block) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.blocks = append(l.blocks, b)
}

type offenseBanConfig struct {
	common
	statuses  []int
	threshold int
}

// OffenseBanOption configures WrapOffenseBan.
type OffenseBanOption func(*offenseBanConfig)

// WithOffenseStatuses overrides the set of response statuses counted as an
// offense (default 401, 404).
func WithOffenseStatuses(statuses ...int) OffenseBanOption {
	return func(c *offenseBanConfig) { c.statuses = statuses }
}

// WithOffenseThreshold overrides how many matching responses from one
// address trigger a ban (default 5).
func WithOffenseThreshold(n int) OffenseBanOption {
	return func(c *offenseBanConfig) { c.threshold = n }
}

// WithOffenseLogger attaches a logger.
func WithOffenseLogger(l *obslog.Logger) OffenseBanOption {
	return func(c *offenseBanConfig) { c.logger = l }
}

// WithOffenseMetrics attaches a Recorder.
func WithOffenseMetrics(r *metrics.Recorder) OffenseBanOption {
	return func(c *offenseBanConfig) { c.metrics = r }
}

// WrapOffenseBan observes every response inner writes; once an address has
// produced threshold responses matching statuses, it is appended to
// denyList (typically the list a WrapDenyIPs/WrapAllowIPs filter upstream
// already consults). The inner handler runs once, so exactly one response
// is written per request. Every address in the request's chain is counted
// separately, and an address is added each time its own count reaches
// threshold (its count then starts again from zero), so one request can add
// more than one address, and an address that keeps offending can be added
// more than once.
func WrapOffenseBan(inner http.Handler, denyList DynamicIPDenyList, opts ...OffenseBanOption) http.Handler {
	cfg := offenseBanConfig{statuses: []int{http.StatusUnauthorized, http.StatusNotFound}, threshold: 5}
	for _, o := range opts {
		o(&cfg)
	}
	offending := make(map[int]struct{}, len(cfg.statuses))
	for _, s := range cfg.statuses {
		offending[s] = struct{}{}
	}

	var mu sync.Mutex
	counts := make(map[string]int)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w}
		inner.ServeHTTP(rw, r)

		if _, bad := offending[rw.status]; !bad {
			return
		}

		chain := netaddr.ChainFromRequest(r)
		for _, addr := range chain.Addrs() {
			key := addr.String()

			mu.Lock()
			counts[key]++
			n := counts[key]
			if n >= cfg.threshold {
				delete(counts, key)
			}
			mu.Unlock()

			if n >= cfg.threshold {
				denyList.Add(netaddr.Block{Base: addr, PrefixBits: -1})
				cfg.metrics.Deny("offense_ban", "banned")
				cfg.log().Warn("offense_ban: address banned", "addr", key, "status", rw.status)
			}
		}
	})
}
