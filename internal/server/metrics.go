package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the server core. Pass to
// components that need to record metrics; a nil *Metrics disables
// recording.
type Metrics struct {
	ConnectionsTotal  prometheus.Counter
	ActiveConnections prometheus.Gauge
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	HandlerFailures   *prometheus.CounterVec
	BytesWritten      prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		ConnectionsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "gatewire",
				Name:      "connections_total",
				Help:      "Total number of accepted TCP connections",
			},
		),
		ActiveConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "gatewire",
				Name:      "active_connections",
				Help:      "Number of currently open connections",
			},
		),
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gatewire",
				Name:      "requests_total",
				Help:      "Total exchanges dispatched to the handler",
			},
			[]string{"protocol", "status"}, // protocol=http/websocket/sse, status=2xx..5xx/aborted
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gatewire",
				Name:      "request_duration_seconds",
				Help:      "Exchange duration in seconds, dispatch to handler completion",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"protocol"},
		),
		HandlerFailures: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gatewire",
				Name:      "handler_failures_total",
				Help:      "Handler errors and panics by recovery outcome",
			},
			[]string{"outcome"}, // outcome=error_response/aborted/unsupported
		),
		BytesWritten: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "gatewire",
				Name:      "bytes_written_total",
				Help:      "Total response bytes written to sockets",
			},
		),
	}
}

func (m *Metrics) connOpened() {
	if m == nil {
		return
	}
	m.ConnectionsTotal.Inc()
	m.ActiveConnections.Inc()
}

func (m *Metrics) connClosed() {
	if m == nil {
		return
	}
	m.ActiveConnections.Dec()
}

func (m *Metrics) exchangeDone(protocol, status string, start time.Time) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(protocol, status).Inc()
	m.RequestDuration.WithLabelValues(protocol).Observe(time.Since(start).Seconds())
}

func (m *Metrics) wrote(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.BytesWritten.Add(float64(n))
}

func (m *Metrics) failure(outcome string) {
	if m == nil {
		return
	}
	m.HandlerFailures.WithLabelValues(outcome).Inc()
}

// ServeOps runs the operational endpoint (/metrics, /healthz) on its own
// listener until ctx is cancelled. It is deliberately separate from the
// gateway listener: the ops surface is plain net/http, the gateway core
// owns its own wire protocol.
func ServeOps(ctx context.Context, addr string, reg *prometheus.Registry, logger *slog.Logger) error {
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}))

	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ops endpoint listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
