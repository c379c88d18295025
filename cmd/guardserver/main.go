// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command guardserver demonstrates five of wardgate's eight filters (rate
// limit, concurrency limit, allow IPs, maintenance limit, deny IPs) and the
// offense-ban peripheral, wired as real http.Handler middleware in front of
// a gorilla/mux-routed API, with
// Prometheus metrics exposed on /metrics. It is a demonstration wiring, not
// a shipped service.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grimm.is/wardgate"
	"grimm.is/wardgate/internal/obslog"
	"grimm.is/wardgate/metrics"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	flag.Parse()

	log := obslog.New(obslog.Config{Level: slog.LevelInfo, Output: os.Stderr, JSON: true})
	reg := prometheus.NewRegistry()
	rec := metrics.NewRecorder(reg)

	r := mux.NewRouter()

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Handle("/api/widgets/{id}", guard.WrapRateLimit(
		guard.WrapConcurrencyLimit(
			http.HandlerFunc(handleWidget),
			guard.WithConcurrencyIdent(guard.IdentClientChain),
			guard.WithConcurrencyMetrics(rec),
			guard.WithConcurrencyLogger(log),
		),
		guard.WithRateIdent(guard.IdentClientChain),
		guard.WithMaxRequests(20),
		guard.WithPeriod(time.Minute),
		guard.WithRateMetrics(rec),
		guard.WithRateLogger(log),
	)).Methods(http.MethodGet)

	adminChain := guard.WrapAllowIPs(
		http.HandlerFunc(handleAdmin),
		guard.WithAllowMetrics(rec),
		guard.WithAllowLogger(log),
	)
	r.Handle("/api/admin", guard.WrapMaintenanceLimit(
		adminChain,
		guard.WithMaintenanceMetrics(rec),
		guard.WithMaintenanceLogger(log),
	)).Methods(http.MethodPost)

	denyList := guard.NewDynamicIPDenyList()
	public := guard.WrapDenyIPs(
		http.HandlerFunc(handlePublic),
		guard.WithDenyList(denyList),
		guard.WithDenyMetrics(rec),
		guard.WithDenyLogger(log),
	)
	r.Handle("/api/public", guard.WrapOffenseBan(
		public, denyList,
		guard.WithOffenseMetrics(rec),
		guard.WithOffenseLogger(log),
	)).Methods(http.MethodGet)

	log.Info("guardserver: listening", "addr", *addr)
	server := &http.Server{
		Addr:              *addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("guardserver: exited", "error", err)
		os.Exit(1)
	}
}

func handleWidget(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("widget " + id))
}

func handleAdmin(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusAccepted)
}

func handlePublic(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// runMaintenance is a worked example of the operator-facing API: something
// like a config reload would call this to drain in-flight admin requests
// before mutating shared state.
func runMaintenance(ctx context.Context) error {
	return guard.WithMaintenance(ctx, guard.World, func(context.Context) {
		// swap configuration, run migrations, etc.
	})
}
