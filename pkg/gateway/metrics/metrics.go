// Package metrics exposes Prometheus metrics for the call loop.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	registry *prometheus.Registry

	TurnsTotal    *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	FetchRetries  prometheus.Counter
	ActiveCalls   prometheus.Gauge
	DialsTotal    *prometheus.CounterVec
}

// New creates a Metrics instance with all metrics registered on an owned
// registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "voicebridge"
	}

	registry := prometheus.NewRegistry()

	turnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Processed call turns by outcome",
		},
		[]string{"outcome"},
	)

	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20},
		},
		[]string{"stage"},
	)

	fetchRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "recording_fetch_retries_total",
		Help:      "Recording fetch attempts beyond the first",
	})

	activeCalls := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_calls",
		Help:      "Conversations currently held in the state store",
	})

	dialsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dials_total",
			Help:      "Outbound call originations by result",
		},
		[]string{"result"},
	)

	registry.MustRegister(turnsTotal, stageDuration, fetchRetries, activeCalls, dialsTotal)

	return &Metrics{
		registry:      registry,
		TurnsTotal:    turnsTotal,
		StageDuration: stageDuration,
		FetchRetries:  fetchRetries,
		ActiveCalls:   activeCalls,
		DialsTotal:    dialsTotal,
	}
}

// ObserveStage records one pipeline stage duration. Safe on a nil receiver
// so metrics stay optional in tests.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// CountTurn records one processed turn by outcome.
func (m *Metrics) CountTurn(outcome string) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(outcome).Inc()
}

// SetActiveCalls records the current state-store size.
func (m *Metrics) SetActiveCalls(n int) {
	if m == nil {
		return
	}
	m.ActiveCalls.Set(float64(n))
}

// CountDial records one outbound origination attempt.
func (m *Metrics) CountDial(result string) {
	if m == nil {
		return
	}
	m.DialsTotal.WithLabelValues(result).Inc()
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
