// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package guard

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"grimm.is/wardgate/internal/maintenance"
	"grimm.is/wardgate/internal/netaddr"
	"grimm.is/wardgate/internal/obslog"
	"grimm.is/wardgate/metrics"
)

// defaultMaintenanceManager is the process-wide identity->State table that
// WrapMaintenanceThrottle, WrapMaintenanceLimit, and WithMaintenance all
// share, mirroring internal/timer's sync.Once-initialized singleton so an
// operator's WithMaintenance call reaches the exact same gate the
// middleware consults.
var (
	maintenanceOnce    sync.Once
	maintenanceManager *maintenance.Manager
)

func defaultMaintenanceManager() *maintenance.Manager {
	maintenanceOnce.Do(func() {
		maintenanceManager = maintenance.NewManager(nil)
	})
	return maintenanceManager
}

type maintenanceConfig struct {
	common
	ident   IdentFunc
	maxWait time.Duration
	deny    DenyHandler
	bypass  DynamicList

	knockPorts  []int
	knockWindow time.Duration
	knock       *knockTracker
}

// MaintenanceOption configures WrapMaintenanceThrottle and
// WrapMaintenanceLimit.
type MaintenanceOption func(*maintenanceConfig)

// WithMaintenanceIdent overrides the identity function (default: a single
// global maintenance state shared by every request).
func WithMaintenanceIdent(f IdentFunc) MaintenanceOption {
	return func(c *maintenanceConfig) { c.ident = f }
}

// WithMaintenanceMaxWait overrides how long WrapMaintenanceLimit waits for
// the gate to reopen before denying (default 50ms). It has no effect on
// WrapMaintenanceThrottle, which always waits indefinitely.
func WithMaintenanceMaxWait(d time.Duration) MaintenanceOption {
	return func(c *maintenanceConfig) { c.maxWait = d }
}

// WithMaintenanceDenyHandler overrides WrapMaintenanceLimit's response on
// denial (default: 503 "Undergoing maintenance").
func WithMaintenanceDenyHandler(h DenyHandler) MaintenanceOption {
	return func(c *maintenanceConfig) { c.deny = h }
}

// WithMaintenanceBypass admits chains wholly contained in list even while
// the gate is closed (default: no bypass).
func WithMaintenanceBypass(list DynamicList) MaintenanceOption {
	return func(c *maintenanceConfig) { c.bypass = list }
}

// WithMaintenanceLogger attaches a logger.
func WithMaintenanceLogger(l *obslog.Logger) MaintenanceOption {
	return func(c *maintenanceConfig) { c.logger = l }
}

// WithMaintenanceMetrics attaches a Recorder.
func WithMaintenanceMetrics(r *metrics.Recorder) MaintenanceOption {
	return func(c *maintenanceConfig) { c.metrics = r }
}

// WithKnockSequence lets a chain bypass the gate by presenting the ports in
// sequence order one at a time via successive requests carrying an
// "X-Knock-Port" header, each knock within window of the previous one. Only
// the request carrying the final port is admitted through the bypass; the
// chain's progress is then cleared. It is a peripheral bypass mechanism
// layered on top of the ordinary bypass list, independent of it.
func WithKnockSequence(ports []int, window time.Duration) MaintenanceOption {
	return func(c *maintenanceConfig) {
		c.knockPorts = ports
		c.knockWindow = window
		c.knock = newKnockTracker()
	}
}

func (c *maintenanceConfig) bypassed(r *http.Request, chain netaddr.Chain) bool {
	if c.bypass != nil && netaddr.Allowed(chain, c.bypass.Read()) {
		return true
	}
	if c.knock == nil {
		return false
	}
	raw := r.Header.Get("X-Knock-Port")
	if raw == "" {
		return false
	}
	port, err := strconv.Atoi(raw)
	if err != nil {
		return false
	}
	key := IdentClientChain(r)
	return c.knock.observe(key, port, c.knockPorts, c.knockWindow)
}

// WrapMaintenanceThrottle blocks admission for the duration an operator has
// the gate closed via WithMaintenance, rather than denying.
func WrapMaintenanceThrottle(inner http.Handler, opts ...MaintenanceOption) http.Handler {
	cfg := maintenanceConfig{ident: IdentWorld}
	for _, o := range opts {
		o(&cfg)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chain := netaddr.ChainFromRequest(r)
		st := defaultMaintenanceManager().Get(cfg.ident(r))

		if !cfg.bypassed(r, chain) {
			st.WaitOpen(nil)
		}
		st.Enter()
		defer st.Leave()
		cfg.metrics.Admit("maintenance_throttle")
		inner.ServeHTTP(w, r)
	})
}

// WrapMaintenanceLimit waits up to maxWait for the gate to reopen before
// denying.
func WrapMaintenanceLimit(inner http.Handler, opts ...MaintenanceOption) http.Handler {
	cfg := maintenanceConfig{
		ident:   IdentWorld,
		maxWait: 50 * time.Millisecond,
		deny:    denyUndergoingMaint,
	}
	for _, o := range opts {
		o(&cfg)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chain := netaddr.ChainFromRequest(r)
		st := defaultMaintenanceManager().Get(cfg.ident(r))

		if !cfg.bypassed(r, chain) {
			ctx, cancel := context.WithTimeout(r.Context(), cfg.maxWait)
			defer cancel()
			if !st.WaitOpen(ctx) {
				cfg.metrics.Deny("maintenance_limit", "timeout")
				cfg.log().Info("maintenance_limit: denied", "max_wait", cfg.maxWait)
				cfg.deny(w, r)
				return
			}
		}
		st.Enter()
		defer st.Leave()
		cfg.metrics.Admit("maintenance_limit")
		inner.ServeHTTP(w, r)
	})
}

// WithMaintenance closes ident's maintenance gate, waits for every request
// already admitted under it to finish, runs body, then reopens the gate —
// on every exit path, including a panicking body. ctx bounds only the drain
// wait; body itself runs to completion regardless.
func WithMaintenance(ctx context.Context, ident any, body func(context.Context)) error {
	st := defaultMaintenanceManager().Get(ident)
	reopen := st.Close()
	defer reopen()

	drained := make(chan struct{})
	go func() {
		st.AwaitDrained()
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		return ctx.Err()
	}

	body(ctx)
	return nil
}

type knockProgress struct {
	idx  int
	last time.Time
}

// knockTracker records, per client-chain key, how far through a configured
// port sequence that chain has progressed.
type knockTracker struct {
	mu    sync.Mutex
	state map[any]knockProgress
}

func newKnockTracker() *knockTracker {
	return &knockTracker{state: make(map[any]knockProgress)}
}

// observe advances key's progress if port is the next expected port in
// ports, resetting on a stale (window-expired) gap or a non-matching,
// non-restarting port. It reports true the instant the full sequence
// completes.
func (t *knockTracker) observe(key any, port int, ports []int, window time.Duration) bool {
	if len(ports) == 0 {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	p, ok := t.state[key]
	if ok && now.Sub(p.last) > window {
		ok = false
	}
	if !ok {
		if port != ports[0] {
			return false
		}
		p = knockProgress{idx: 1, last: now}
		if p.idx == len(ports) {
			delete(t.state, key)
			return true
		}
		t.state[key] = p
		return false
	}

	if port != ports[p.idx] {
		delete(t.state, key)
		if port == ports[0] {
			t.state[key] = knockProgress{idx: 1, last: now}
		}
		return false
	}
	p.idx++
	p.last = now
	if p.idx == len(ports) {
		delete(t.state, key)
		return true
	}
	t.state[key] = p
	return false
}
