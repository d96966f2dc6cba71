// Package metrics exposes Prometheus instrumentation for the inline bot.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "quotebot"

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry   *prometheus.Registry
	queries    *prometheus.CounterVec
	results    prometheus.Histogram
	failures   prometheus.Counter
	quotations prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inline_queries_total",
			Help:      "Inline queries answered, by selection mode.",
		}, []string{"mode"}),
		results: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inline_results",
			Help:      "Number of results returned per inline query.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50},
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answer_failures_total",
			Help:      "Inline answers the platform rejected or that failed to send.",
		}),
		quotations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quotations_loaded",
			Help:      "Quotations held in memory.",
		}),
	}

	m.registry.MustRegister(
		m.queries, m.results, m.failures, m.quotations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveQuery counts one answered query.
func (m *Metrics) ObserveQuery(mode string, results int) {
	m.queries.WithLabelValues(mode).Inc()
	m.results.Observe(float64(results))
}

// AnswerFailed counts one failed answer.
func (m *Metrics) AnswerFailed() {
	m.failures.Inc()
}

// SetQuotations records the store size.
func (m *Metrics) SetQuotations(n int) {
	m.quotations.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve listens on addr and serves /metrics until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	return m.serve(ctx, ln, logger)
}

func (m *Metrics) serve(ctx context.Context, ln net.Listener, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics listener started", slog.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics shutdown: %w", err)
	}
	logger.Info("metrics listener stopped")
	return nil
}
