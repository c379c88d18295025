// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package guard implements the eight composable HTTP request filters: CIDR
// source-address access control (allow/deny), concurrency bounding
// (throttle/limit), leaky-bucket rate shaping (throttle/limit), and
// maintenance coordination (throttle/limit + the operator's WithMaintenance
// scope). Each filter wraps an inner http.Handler and composes with the
// others by nesting.
package guard

import (
	"net/http"
	"sort"

	"grimm.is/wardgate/internal/netaddr"
	"grimm.is/wardgate/internal/obslog"
	"grimm.is/wardgate/metrics"
)

// IdentFunc projects a request to an opaque grouping key: requests that
// produce equal keys share the same underlying permit pool / bucket /
// maintenance state. The zero value is invalid; use IdentWorld or a
// chain-based function such as IdentClientChain.
type IdentFunc func(*http.Request) any

// World is the sentinel identity key used by the default IdentFunc: every
// request shares a single global primitive.
var World = struct{ name string }{"world"}

// IdentWorld is the default IdentFunc: every request maps to World.
func IdentWorld(*http.Request) any { return World }

// IdentClientChain keys by the request's forwarded-aware client chain, so
// each distinct set of client-associated addresses gets its own primitive.
// Chain is a map, so its iteration order varies between calls even for the
// same set of addresses; the members are sorted before being joined into a
// key so the same chain always yields the same key.
func IdentClientChain(r *http.Request) any {
	chain := netaddr.ChainFromRequest(r)
	addrs := chain.Addrs()
	strs := make([]string, len(addrs))
	for i, a := range addrs {
		strs[i] = a.String()
	}
	sort.Strings(strs)
	key := ""
	for _, s := range strs {
		key += s + ","
	}
	return key
}

// DynamicList is a caller-supplied, possibly hot-reloadable source of CIDR
// blocks. The middleware calls Read per request rather than caching a
// snapshot, so a caller can swap the underlying list without restarting.
type DynamicList interface {
	Read() []netaddr.Block
}

// Static wraps a fixed slice of blocks as a DynamicList.
func Static(blocks []netaddr.Block) DynamicList {
	return staticList(blocks)
}

type staticList []netaddr.Block

func (s staticList) Read() []netaddr.Block { return []netaddr.Block(s) }

// DenyHandler responds to a denied request. Defaults write one of the
// canonical 403/429/503 plain-text bodies (see defaultDenyHandler).
type DenyHandler func(w http.ResponseWriter, r *http.Request)

func defaultDenyHandler(status int, body string) DenyHandler {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

var (
	denyAccessDenied    = defaultDenyHandler(http.StatusForbidden, "Access denied")
	denyLimitExceeded   = defaultDenyHandler(http.StatusTooManyRequests, "Limit exceeded")
	denyUndergoingMaint = defaultDenyHandler(http.StatusServiceUnavailable, "Undergoing maintenance")
)

// common holds the ambient logging/metrics fields every filter's config
// embeds. It is not itself part of the public API.
type common struct {
	logger  *obslog.Logger
	metrics *metrics.Recorder
}

func (c common) log() *obslog.Logger {
	if c.logger == nil {
		return obslog.Noop()
	}
	return c.logger
}

// responseWriter wraps http.ResponseWriter to capture the status code
// written, for filters (e.g. WrapOffenseBan) that must inspect the
// response after the inner handler runs. Mirrors the equivalent helper in
// grimm-is-flywall's internal/api/server.go.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}
