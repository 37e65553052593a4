// Package metrics exposes Prometheus counters for the poll loop and a small
// HTTP server for /metrics and /health.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the bot's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	searches      *prometheus.CounterVec
	posts         *prometheus.CounterVec
	actions       *prometheus.CounterVec
	apiRetries    *prometheus.CounterVec
	cycleDuration prometheus.Histogram
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "amplibot_searches_total",
			Help: "Searches by result",
		}, []string{"result"}),
		posts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "amplibot_posts_processed_total",
			Help: "Candidate posts by decision",
		}, []string{"decision"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "amplibot_actions_total",
			Help: "Action outcomes by kind, status and reason",
		}, []string{"kind", "status", "reason"}),
		apiRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "amplibot_api_retries_total",
			Help: "X API retry attempts by endpoint",
		}, []string{"endpoint"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "amplibot_cycle_duration_seconds",
			Help:    "Duration of one search and process cycle, pauses included",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
	}
	m.registry.MustRegister(
		m.searches, m.posts, m.actions, m.apiRetries, m.cycleDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveSearch counts a search by result.
func (m *Metrics) ObserveSearch(result string) {
	m.searches.WithLabelValues(result).Inc()
}

// ObserveCycle records the duration of one cycle.
func (m *Metrics) ObserveCycle(d time.Duration) {
	m.cycleDuration.Observe(d.Seconds())
}

// ObservePost counts a processed post by decision.
func (m *Metrics) ObservePost(decision string) {
	m.posts.WithLabelValues(decision).Inc()
}

// ObserveAction counts one action outcome.
func (m *Metrics) ObserveAction(kind, status, reason string) {
	m.actions.WithLabelValues(kind, status, reason).Inc()
}

// IncAPIRetry increments the retry counter for an endpoint.
func (m *Metrics) IncAPIRetry(endpoint string) {
	m.apiRetries.WithLabelValues(endpoint).Inc()
}

// Handler serves /metrics from the private registry and /health from healthy.
func (m *Metrics) Handler(healthy func() bool) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if healthy != nil && !healthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("unhealthy\n"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	return mux
}

// StartServer serves Handler on addr until ctx is done. An empty addr
// disables the server and returns nil.
func (m *Metrics) StartServer(ctx context.Context, addr string, healthy func() bool) *http.Server {
	if addr == "" {
		return nil
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           m.Handler(healthy),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("metrics server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("metrics server shutdown", "error", err)
		}
	}()

	return srv
}
