// Package metrics exposes torbridge's handle counts and bridge call
// statistics as Prometheus metrics on a private registry.
package metrics

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/nao1215/torbridge/internal/session"
)

// Namespace prefixes every metric name.
const Namespace = "torbridge"

// Call results used as the "result" label.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Source provides the live values behind the gauges.
type Source interface {
	Stats() session.Stats
}

// Metrics holds the collectors registered for one bridge.
type Metrics struct {
	registry *prometheus.Registry
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// New registers the handle gauges for src and the bridge call collectors.
// inFlight reports the number of jobs running on the engine; it may be nil.
func New(src Source, inFlight func() int64) *Metrics {
	reg := prometheus.NewRegistry()

	gauge := func(name, help string, value func(session.Stats) int) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      name,
			Help:      help,
		}, func() float64 {
			return float64(value(src.Stats()))
		})
	}

	reg.MustRegister(
		gauge("circuits", "Number of registered circuits.", func(s session.Stats) int { return s.Circuits }),
		gauge("streams", "Number of open plain streams.", func(s session.Stats) int { return s.Streams }),
		gauge("tls_streams", "Number of open TLS streams across all threads.", func(s session.Stats) int { return s.TLSStreams }),
		gauge("connected", "1 when a Tor client is initialized.", func(s session.Stats) int {
			if s.Connected {
				return 1
			}
			return 0
		}),
	)

	if inFlight != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "engine_inflight",
			Help:      "Number of jobs currently running on the engine.",
		}, func() float64 {
			return float64(inFlight())
		}))
	}

	m := &Metrics{
		registry: reg,
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "calls_total",
			Help:      "Bridge calls by operation and result.",
		}, []string{"op", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "call_duration_seconds",
			Help:      "Time bridge calls spent blocked, by operation.",
			// Tor dials take seconds; local registry calls take microseconds.
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"op"}),
	}
	reg.MustRegister(m.calls, m.duration)
	return m
}

// Observe records one call of op that started at start and ended with err.
func (m *Metrics) Observe(op string, start time.Time, err error) {
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.calls.WithLabelValues(op, result).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Registry returns the registry holding every torbridge collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteText writes all metrics in the Prometheus text exposition format.
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	var errs []error
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
