package driver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics instruments one translation run. Each run gets an independent
// registry to avoid collector conflicts across invocations.
type Metrics struct {
	registry *prometheus.Registry
	server   *http.Server

	UnitsCommitted prometheus.Counter
	UnitsParked    prometheus.Counter
	UnitsSkipped   prometheus.Counter
	OracleCalls    prometheus.Counter
	BuildFailures  prometheus.Counter
	BuildDuration  prometheus.Histogram
}

// NewMetrics creates and registers the run metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		UnitsCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oxidize_units_committed_total",
			Help: "Units translated, built, and committed.",
		}),
		UnitsParked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oxidize_units_parked_total",
			Help: "Units parked after exhausting fix attempts.",
		}),
		UnitsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oxidize_units_skipped_total",
			Help: "Units skipped because they were already translated.",
		}),
		OracleCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oxidize_oracle_calls_total",
			Help: "Oracle invocations, including retries.",
		}),
		BuildFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oxidize_build_failures_total",
			Help: "Failed build/check invocations.",
		}),
		BuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "oxidize_build_duration_seconds",
			Help:    "Wall time of build/check invocations.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}

	registry.MustRegister(
		m.UnitsCommitted,
		m.UnitsParked,
		m.UnitsSkipped,
		m.OracleCalls,
		m.BuildFailures,
		m.BuildDuration,
	)

	return m
}

// Serve exposes /metrics on addr in the background. Errors are logged, not
// fatal; metrics are an aid, not a run requirement.
func (m *Metrics) Serve(addr string, logger *slog.Logger) {
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	m.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func(server *http.Server) {
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", "addr", addr, "error", err)
		}
	}(m.server)
}

// Close stops the metrics listener at run end, waiting briefly for in-flight
// scrapes. A no-op when Serve never started a server.
func (m *Metrics) Close() {
	if m.server == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := m.server.Shutdown(ctx)
	if err != nil {
		m.server.Close()
	}

	m.server = nil
}
