// Package metrics exposes frame and scheduling counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// Metrics owns a private registry, so several instances may coexist in one
// process. All methods are safe on a nil *Metrics and do nothing.
type Metrics struct {
	registry *prometheus.Registry

	framesSent     *prometheus.CounterVec
	framesReceived *prometheus.CounterVec
	framesCorrupt  *prometheus.CounterVec
	tickLag        prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		framesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frames_sent_total",
				Help: "Frames written to the outputs.",
			},
			[]string{"protocol"},
		),

		framesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frames_received_total",
				Help: "Valid frames decoded by the receiver.",
			},
			[]string{"protocol"},
		),

		framesCorrupt: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frames_corrupt_total",
				Help: "Frames rejected by the receiver.",
			},
			[]string{"reason"},
		),

		tickLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tick_lag_seconds",
			Help: "How late the last tick started relative to its schedule.",
		}),
	}

	m.registry.MustRegister(m.framesSent, m.framesReceived, m.framesCorrupt, m.tickLag)
	return m
}

func (m *Metrics) FrameSent(protocol string) {
	if m == nil {
		return
	}
	m.framesSent.With(prometheus.Labels{"protocol": protocol}).Inc()
}

func (m *Metrics) FrameReceived(protocol string) {
	if m == nil {
		return
	}
	m.framesReceived.With(prometheus.Labels{"protocol": protocol}).Inc()
}

func (m *Metrics) FrameCorrupt(reason string) {
	if m == nil {
		return
	}
	m.framesCorrupt.With(prometheus.Labels{"reason": reason}).Inc()
}

// TickLag records the scheduling delay of the current tick.
func (m *Metrics) TickLag(d time.Duration) {
	if m == nil {
		return
	}
	m.tickLag.Set(d.Seconds())
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	}
}
