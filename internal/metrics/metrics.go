// Package metrics exposes dispatch and execution metrics to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sortie/internal/core"
	"sortie/internal/execution"
)

const prefix = "sortie_"

// Outcome label values of the dispatched counter.
const (
	OutcomeOK           = "ok"
	OutcomeFailed       = "failed"
	OutcomeNotAttempted = "not_attempted"
)

// Metrics implements dispatch.Observer and the execution status and result
// observers.
type Metrics struct {
	dispatched *prometheus.CounterVec
	errors     *prometheus.CounterVec
	bytes      prometheus.Counter
	latency    *prometheus.HistogramVec
	inflight   prometheus.Gauge
	executions *prometheus.GaugeVec
	finished   *prometheus.CounterVec
}

// New registers the sortie metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		dispatched: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "events_dispatched_total",
				Help: "Number of events dispatched, by phase and outcome",
			},
			[]string{"phase", "outcome"},
		),
		errors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "dispatch_errors_total",
				Help: "Number of failed events by error kind",
			},
			[]string{"kind"},
		),
		bytes: f.NewCounter(prometheus.CounterOpts{
			Name: prefix + "dispatch_bytes_total",
			Help: "Bytes of encoded events sent to the collector",
		}),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    prefix + "dispatch_latency_seconds",
				Help:    "Collector request latency",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"code"},
		),
		inflight: f.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "dispatch_inflight",
			Help: "Collector requests currently in flight",
		}),
		executions: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: prefix + "executions",
				Help: "Executions currently running",
			},
			[]string{"status"},
		),
		finished: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "executions_finished_total",
				Help: "Executions that reached a terminal status",
			},
			[]string{"status"},
		),
	}
}

// SendStarted marks a collector request as in flight.
func (m *Metrics) SendStarted() { m.inflight.Inc() }

// SendDone records a finished collector request. A status of 0 means no
// response was received.
func (m *Metrics) SendDone(status int, latency time.Duration, _ error) {
	m.inflight.Dec()
	m.latency.WithLabelValues(statusLabel(status)).Observe(latency.Seconds())
}

// Report counts one dispatch result.
func (m *Metrics) Report(r core.DispatchResult) {
	phase := ""
	if r.Envelope != nil {
		phase = r.Envelope.Phase
	}
	outcome := OutcomeFailed
	switch {
	case !r.Attempted:
		outcome = OutcomeNotAttempted
	case r.Success:
		outcome = OutcomeOK
	}
	m.dispatched.WithLabelValues(phase, outcome).Inc()
	if r.Attempted && !r.Success && r.Kind != core.KindNone {
		m.errors.WithLabelValues(string(r.Kind)).Inc()
	}
	if r.BytesSent > 0 {
		m.bytes.Add(float64(r.BytesSent))
	}
}

// StatusChanged tracks running executions and counts finished ones.
func (m *Metrics) StatusChanged(from, to string) {
	if execution.Status(from) == execution.StatusRunning {
		m.executions.WithLabelValues(from).Dec()
	}
	switch st := execution.Status(to); {
	case st == execution.StatusRunning:
		m.executions.WithLabelValues(to).Inc()
	case st.Terminal():
		m.finished.WithLabelValues(to).Inc()
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func statusLabel(status int) string {
	if status == 0 {
		return "none"
	}
	return strconv.Itoa(status)
}
