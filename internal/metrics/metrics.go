// Package metrics holds the Prometheus collectors exported on /metrics.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "boxterm"

type Metrics struct {
	terminalSessions   prometheus.Gauge
	terminalOpened     *prometheus.CounterVec
	terminalRejections prometheus.Counter
	execRuns           *prometheus.CounterVec
	execDuration       prometheus.Histogram
	readyWait          *prometheus.HistogramVec
	readyPolls         prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		terminalSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "terminal",
			Name:      "sessions",
			Help:      "Live terminal sessions.",
		}),
		terminalOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "terminal",
			Name:      "opened_total",
			Help:      "Terminal sessions opened, by bridging mode.",
		}, []string{"mode"}),
		terminalRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "terminal",
			Name:      "rejections_total",
			Help:      "Terminal upgrades rejected because the session cap was reached.",
		}),
		execRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exec",
			Name:      "runs_total",
			Help:      "One-shot commands run, by outcome.",
		}, []string{"outcome"}),
		execDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "exec",
			Name:      "duration_seconds",
			Help:      "Duration of one-shot commands.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		readyWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "ready_wait_seconds",
			Help:      "Time spent waiting for containers to become ready, by result.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"result"}),
		readyPolls: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "ready_polls",
			Help:      "Status polls per readiness wait.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 30},
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.terminalSessions,
			m.terminalOpened,
			m.terminalRejections,
			m.execRuns,
			m.execDuration,
			m.readyWait,
			m.readyPolls,
		)
	}
	return m
}

func (m *Metrics) SetTerminalSessions(n int) {
	if m == nil {
		return
	}
	m.terminalSessions.Set(float64(n))
}

func (m *Metrics) TerminalOpened(mode string) {
	if m == nil {
		return
	}
	m.terminalOpened.WithLabelValues(mode).Inc()
}

func (m *Metrics) TerminalRejected() {
	if m == nil {
		return
	}
	m.terminalRejections.Inc()
}

// ObserveExec records one exec run. outcome is "ok", "nonzero" or "error".
func (m *Metrics) ObserveExec(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.execRuns.WithLabelValues(outcome).Inc()
	m.execDuration.Observe(d.Seconds())
}

// ObserveReady records one readiness wait. result is "ready", "exited",
// "timeout" or "canceled".
func (m *Metrics) ObserveReady(result string, polls int, d time.Duration) {
	if m == nil {
		return
	}
	m.readyWait.WithLabelValues(result).Observe(d.Seconds())
	m.readyPolls.Observe(float64(polls))
}
