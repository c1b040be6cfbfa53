// Package metrics exports finished timers as prometheus metrics.
package metrics

import (
	"time"

	"github.com/influxdata/unitimer"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "unitimer"
	subsystem = "timer"
)

// TimerMetrics holds the most recent duration reported for each named timer.
// Only the last value is kept; durations are never aggregated.
type TimerMetrics struct {
	lastDuration *prometheus.GaugeVec
	callbacks    *prometheus.CounterVec
}

// NewTimerMetrics returns a TimerMetrics with unregistered collectors.
func NewTimerMetrics() *TimerMetrics {
	return &TimerMetrics{
		lastDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "last_duration_seconds",
			Help:      "Duration of the most recently stopped timer, in seconds",
		}, []string{"name"}),
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "callbacks_total",
			Help:      "Number of timer stop callbacks observed",
		}, []string{"name"}),
	}
}

// PrometheusCollectors satisfies the prom.PrometheusCollector interface.
func (m *TimerMetrics) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.lastDuration,
		m.callbacks,
	}
}

// Callback returns a timer callback that records stops under name.
func (m *TimerMetrics) Callback(name string) unitimer.Callback {
	return func(v unitimer.View) {
		m.Update(name, v)
	}
}

// Update records v under name. Running timers have no duration yet and only
// bump the callback counter.
func (m *TimerMetrics) Update(name string, v unitimer.View) {
	m.callbacks.WithLabelValues(name).Inc()

	if v.IsRunning() {
		return
	}
	ns := v.Duration(unitimer.Nanoseconds)
	m.lastDuration.WithLabelValues(name).Set(time.Duration(ns).Seconds())
}
