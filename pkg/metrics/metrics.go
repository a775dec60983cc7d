// Package metrics holds the prometheus collectors for supervision and dispatch.
//
// All recording methods are safe on a nil *Metrics so components can run unobserved.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tgvisor"

type Metrics struct {
	registry *prometheus.Registry

	UpdatesReceivedTotal  *prometheus.CounterVec
	DispatchOutcomesTotal *prometheus.CounterVec
	DispatchDuration      *prometheus.HistogramVec
	DispatchInFlight      prometheus.Gauge

	ReconnectsTotal     *prometheus.CounterVec
	TransientErrorTotal *prometheus.CounterVec
	ConsecutiveFailures prometheus.Gauge
	SupervisorState     *prometheus.GaugeVec
	BackoffSeconds      prometheus.Histogram

	ScheduledRunsTotal *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		UpdatesReceivedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "updates_received_total",
				Help:      "Updates pulled from the connection, by kind",
			},
			[]string{"kind"},
		),
		DispatchOutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_outcomes_total",
				Help:      "Decisive handler outcomes per dispatch pass",
			},
			[]string{"pass", "outcome", "module", "handler"},
		),
		DispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_duration_seconds",
				Help:      "Wall time of one dispatch, both passes included",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		DispatchInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "dispatch_in_flight",
				Help:      "Dispatches currently running",
			},
		),
		ReconnectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconnects_total",
				Help:      "Reconnect attempts by result",
			},
			[]string{"result"},
		),
		TransientErrorTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transient_errors_total",
				Help:      "Transient connection errors by class",
			},
			[]string{"class"},
		),
		ConsecutiveFailures: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "consecutive_failures",
				Help:      "Failures since the last clean update pull",
			},
		),
		SupervisorState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "supervisor_state",
				Help:      "1 for the current supervisor state, 0 otherwise",
			},
			[]string{"state"},
		),
		BackoffSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backoff_seconds",
				Help:      "Computed reconnect delays",
				Buckets:   prometheus.ExponentialBuckets(2, 2, 10),
			},
		),
		ScheduledRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scheduled_runs_total",
				Help:      "Scheduled job runs by job and result",
			},
			[]string{"job", "result"},
		),
	}

	m.registry.MustRegister(
		m.UpdatesReceivedTotal,
		m.DispatchOutcomesTotal,
		m.DispatchDuration,
		m.DispatchInFlight,
		m.ReconnectsTotal,
		m.TransientErrorTotal,
		m.ConsecutiveFailures,
		m.SupervisorState,
		m.BackoffSeconds,
		m.ScheduledRunsTotal,
	)

	return m
}

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) UpdateReceived(kind string) {
	if m == nil {
		return
	}
	m.UpdatesReceivedTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) DispatchOutcome(pass, outcome, module, handler string) {
	if m == nil {
		return
	}
	m.DispatchOutcomesTotal.WithLabelValues(pass, outcome, module, handler).Inc()
}

// DispatchStarted marks one dispatch as in flight and returns its completion callback.
func (m *Metrics) DispatchStarted(kind string) func() {
	if m == nil {
		return func() {}
	}
	startedAt := time.Now()
	m.DispatchInFlight.Inc()
	return func() {
		m.DispatchInFlight.Dec()
		m.DispatchDuration.WithLabelValues(kind).Observe(time.Since(startedAt).Seconds())
	}
}

func (m *Metrics) Reconnect(result string) {
	if m == nil {
		return
	}
	m.ReconnectsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) TransientError(class string, failures int, delay time.Duration) {
	if m == nil {
		return
	}
	m.TransientErrorTotal.WithLabelValues(class).Inc()
	m.ConsecutiveFailures.Set(float64(failures))
	m.BackoffSeconds.Observe(delay.Seconds())
}

func (m *Metrics) FailuresReset() {
	if m == nil {
		return
	}
	m.ConsecutiveFailures.Set(0)
}

// StateChanged flips the state gauge so exactly one state label reads 1.
func (m *Metrics) StateChanged(previous, current string) {
	if m == nil {
		return
	}
	if previous != "" {
		m.SupervisorState.WithLabelValues(previous).Set(0)
	}
	m.SupervisorState.WithLabelValues(current).Set(1)
}

func (m *Metrics) ScheduledRun(job, result string) {
	if m == nil {
		return
	}
	m.ScheduledRunsTotal.WithLabelValues(job, result).Inc()
}
