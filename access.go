// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package guard

import (
	"net/http"

	"grimm.is/wardgate/internal/netaddr"
	"grimm.is/wardgate/internal/obslog"
	"grimm.is/wardgate/metrics"
)

type allowIPsConfig struct {
	common
	allowList DynamicList
	deny      DenyHandler
}

// AllowIPsOption configures WrapAllowIPs.
type AllowIPsOption func(*allowIPsConfig)

// WithAllowList overrides the allow list (default: RFC 1918 + RFC 4193).
func WithAllowList(list DynamicList) AllowIPsOption {
	return func(c *allowIPsConfig) { c.allowList = list }
}

// WithAllowDenyHandler overrides the response written on denial (default:
// 403 "Access denied").
func WithAllowDenyHandler(h DenyHandler) AllowIPsOption {
	return func(c *allowIPsConfig) { c.deny = h }
}

// WithAllowLogger attaches a logger to WrapAllowIPs.
func WithAllowLogger(l *obslog.Logger) AllowIPsOption {
	return func(c *allowIPsConfig) { c.logger = l }
}

// WithAllowMetrics attaches a Recorder to WrapAllowIPs.
func WithAllowMetrics(r *metrics.Recorder) AllowIPsOption {
	return func(c *allowIPsConfig) { c.metrics = r }
}

// WrapAllowIPs admits a request only if every address in its client chain
// (remote address plus forwarded hops) is contained in the allow list.
func WrapAllowIPs(inner http.Handler, opts ...AllowIPsOption) http.Handler {
	cfg := allowIPsConfig{
		allowList: Static(netaddr.DefaultPrivate),
		deny:      denyAccessDenied,
	}
	for _, o := range opts {
		o(&cfg)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chain := netaddr.ChainFromRequest(r)
		if netaddr.Allowed(chain, cfg.allowList.Read()) {
			cfg.metrics.Admit("allow_ips")
			inner.ServeHTTP(w, r)
			return
		}
		cfg.metrics.Deny("allow_ips", "not_allowed")
		cfg.log().Warn("allow_ips: denied", "remote_addr", r.RemoteAddr)
		cfg.deny(w, r)
	})
}

type denyIPsConfig struct {
	common
	denyList DynamicList
	deny     DenyHandler
}

// DenyIPsOption configures WrapDenyIPs.
type DenyIPsOption func(*denyIPsConfig)

// WithDenyList overrides the deny list (default: the public-subnet
// partition in internal/netaddr.DefaultPublic).
func WithDenyList(list DynamicList) DenyIPsOption {
	return func(c *denyIPsConfig) { c.denyList = list }
}

// WithDenyDenyHandler overrides the response written on denial (default:
// 403 "Access denied").
func WithDenyDenyHandler(h DenyHandler) DenyIPsOption {
	return func(c *denyIPsConfig) { c.deny = h }
}

// WithDenyLogger attaches a logger to WrapDenyIPs.
func WithDenyLogger(l *obslog.Logger) DenyIPsOption {
	return func(c *denyIPsConfig) { c.logger = l }
}

// WithDenyMetrics attaches a Recorder to WrapDenyIPs.
func WithDenyMetrics(r *metrics.Recorder) DenyIPsOption {
	return func(c *denyIPsConfig) { c.metrics = r }
}

// WrapDenyIPs denies a request if any address in its client chain is
// contained in the deny list: one bad hop poisons the chain.
func WrapDenyIPs(inner http.Handler, opts ...DenyIPsOption) http.Handler {
	cfg := denyIPsConfig{
		denyList: Static(netaddr.DefaultPublic),
		deny:     denyAccessDenied,
	}
	for _, o := range opts {
		o(&cfg)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chain := netaddr.ChainFromRequest(r)
		if !netaddr.Denied(chain, cfg.denyList.Read()) {
			cfg.metrics.Admit("deny_ips")
			inner.ServeHTTP(w, r)
			return
		}
		cfg.metrics.Deny("deny_ips", "denied")
		cfg.log().Warn("deny_ips: denied", "remote_addr", r.RemoteAddr)
		cfg.deny(w, r)
	})
}
