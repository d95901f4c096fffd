// Package metrics exposes process-wide counters and gauges in the Prometheus
// text format. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "webssh"

// Gauges are sampled at scrape time.
type Gauges struct {
	ActiveSessions  func() int
	ActiveProcesses func() int
}

type Metrics struct {
	registry *prometheus.Registry

	loginAttempts  *prometheus.CounterVec
	terminalStarts prometheus.Counter
	terminalCloses *prometheus.CounterVec
	terminalLife   prometheus.Histogram
	rateLimited    *prometheus.CounterVec
}

// New builds a registry with the Go runtime and process collectors plus the
// application metrics.
func New(g Gauges) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_attempts_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		terminalStarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "terminal_starts_total",
			Help:      "Terminal processes started.",
		}),
		terminalCloses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "terminal_closes_total",
			Help:      "Terminal processes closed, by reason.",
		}, []string{"reason"}),
		terminalLife: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "terminal_lifetime_seconds",
			Help:      "Lifetime of terminal processes.",
			Buckets:   []float64{1, 10, 60, 300, 900, 1800, 3600},
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by a rate limiter.",
		}, []string{"limiter"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.loginAttempts,
		m.terminalStarts,
		m.terminalCloses,
		m.terminalLife,
		m.rateLimited,
	)
	if g.ActiveSessions != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Currently valid login sessions.",
		}, func() float64 { return float64(g.ActiveSessions()) }))
	}
	if g.ActiveProcesses != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_processes",
			Help:      "Currently registered terminal processes.",
		}, func() float64 { return float64(g.ActiveProcesses()) }))
	}
	return m
}

// Registry returns the underlying registry (tests, extra collectors).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) LoginAttempt(success bool) {
	if m == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.loginAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) TerminalStarted() {
	if m == nil {
		return
	}
	m.terminalStarts.Inc()
}

func (m *Metrics) TerminalClosed(reason string, lifetimeSeconds float64) {
	if m == nil {
		return
	}
	m.terminalCloses.WithLabelValues(reason).Inc()
	m.terminalLife.Observe(lifetimeSeconds)
}

func (m *Metrics) RateLimited(limiter string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(limiter).Inc()
}
