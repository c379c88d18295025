// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics exposes the Prometheus instrumentation wardgate's filters
// can optionally report to, wired the same way grimm-is-flywall's
// internal/metrics collector registers gauges/counters against a
// prometheus.Registerer and serves them via promhttp.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Recorder is the instrumentation surface the guard filters' With*Metrics
// options (WithAllowMetrics, WithRateMetrics, ...) accept.
// It is safe for concurrent use.
type Recorder struct {
	admitted *prometheus.CounterVec
	denied   *prometheus.CounterVec
	inFlight *prometheus.GaugeVec
	permits  *prometheus.GaugeVec
}

// NewRecorder builds and registers a Recorder's collectors against reg. Pass
// prometheus.DefaultRegisterer to use the global registry, or a dedicated
// prometheus.NewRegistry() in tests.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		admitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guard_admitted_total",
			Help: "Requests admitted, by filter.",
		}, []string{"filter"}),
		denied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guard_denied_total",
			Help: "Requests denied, by filter and reason.",
		}, []string{"filter", "reason"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "guard_inflight",
			Help: "Requests currently admitted, by filter.",
		}, []string{"filter"}),
		permits: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "guard_permits_available",
			Help: "Permits currently available in a keyed pool, by filter.",
		}, []string{"filter"}),
	}
	reg.MustRegister(r.admitted, r.denied, r.inFlight, r.permits)
	return r
}

func (r *Recorder) Admit(filter string) {
	if r == nil {
		return
	}
	r.admitted.WithLabelValues(filter).Inc()
}

func (r *Recorder) Deny(filter, reason string) {
	if r == nil {
		return
	}
	r.denied.WithLabelValues(filter, reason).Inc()
}

func (r *Recorder) SetInFlight(filter string, n int) {
	if r == nil {
		return
	}
	r.inFlight.WithLabelValues(filter).Set(float64(n))
}

func (r *Recorder) SetPermitsAvailable(filter string, n int) {
	if r == nil {
		return
	}
	r.permits.WithLabelValues(filter).Set(float64(n))
}
