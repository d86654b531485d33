// Package metrics wires the session manager's internals to Prometheus.
// It is purely additive instrumentation: nothing in spec.md depends on
// these counters existing. Collector is optional — callers that build a
// session.Store without one simply pass a nil *Collector, and the store
// guards every update with a nil check.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the gauges/counters/histograms the session manager
// updates as it spawns, completes, and evicts sessions.
type Collector struct {
	registry *prometheus.Registry

	ActiveSessions    prometheus.Gauge
	CompletedSessions prometheus.Gauge
	SpawnFailures     prometheus.Counter
	Terminations      prometheus.Counter
	Evictions         *prometheus.CounterVec
	CommandDuration   prometheus.Histogram
}

// New creates a Collector registered against a fresh registry, so
// multiple server instances in the same process (as in tests) don't
// collide on the global default registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	return &Collector{
		registry: reg,
		ActiveSessions: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "clibridge",
			Name:      "active_sessions",
			Help:      "Number of sessions currently active (running or blocked).",
		}),
		CompletedSessions: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "clibridge",
			Name:      "completed_sessions",
			Help:      "Number of sessions currently retained in the completed partition.",
		}),
		SpawnFailures: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "clibridge",
			Name:      "spawn_failures_total",
			Help:      "Number of execute() calls that failed to obtain a pid.",
		}),
		Terminations: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "clibridge",
			Name:      "terminations_total",
			Help:      "Number of sessions explicitly terminated (cooperative or forceful).",
		}),
		Evictions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "clibridge",
			Name:      "evictions_total",
			Help:      "Number of sessions evicted from the store, by reason.",
		}, []string{"reason"}),
		CommandDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: "clibridge",
			Name:      "command_duration_seconds",
			Help:      "Wall-clock duration of finalized sessions.",
			Buckets:   []float64{.1, .5, 1, 5, 15, 30, 60, 300, 900, 3600},
		}),
	}
}

// Serve starts an HTTP server exposing /metrics on addr and blocks until
// ctx is canceled or the listener stops. Intended to be launched in a
// goroutine. It returns the shutdown error after cancellation, nil when
// the listener stops with http.ErrServerClosed, and the listener's error
// otherwise.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
