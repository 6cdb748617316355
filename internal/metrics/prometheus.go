package metrics

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SessionStates lists every value SessionState may report. The state gauge
// keeps one series per value with exactly one set to 1.
var SessionStates = []string{"unauthenticated", "pairing", "ready", "disconnected"}

// PrometheusSink implements Sink using the Prometheus client library.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	// Dispatch metrics
	jobsSubmittedTotal prometheus.Counter
	jobsFinishedTotal  *prometheus.CounterVec
	jobDuration        prometheus.Histogram
	recipientsTotal    *prometheus.CounterVec
	sendDuration       *prometheus.HistogramVec
	queueDepth         prometheus.Gauge

	// Session metrics
	sessionState *prometheus.GaugeVec

	// Broadcaster metrics
	observers prometheus.Gauge
}

// NewPrometheusSink creates a new Prometheus metrics sink.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initDispatchMetrics(reg)
	s.initSessionMetrics(reg)
	s.initBroadcastMetrics(reg)
	return s
}

func (s *PrometheusSink) initDispatchMetrics(reg prometheus.Registerer) {
	s.jobsSubmittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bulksend_jobs_submitted_total",
		Help: "Total number of bulk jobs accepted.",
	})
	s.jobsFinishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bulksend_jobs_finished_total",
		Help: "Total number of bulk jobs that reached a terminal status.",
	}, []string{"status"})
	s.jobDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "bulksend_job_duration_seconds",
		Help:    "Wall time from job start to finish in seconds.",
		Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600},
	})
	s.recipientsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bulksend_recipients_total",
		Help: "Total number of recipients processed, by outcome.",
	}, []string{"outcome"})
	s.sendDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bulksend_send_duration_seconds",
		Help:    "Latency of a single message send in seconds.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"kind"})
	s.queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bulksend_queue_depth",
		Help: "Number of jobs waiting for the dispatch loop.",
	})

	s.register(reg, s.jobsSubmittedTotal, "bulksend_jobs_submitted_total")
	s.register(reg, s.jobsFinishedTotal, "bulksend_jobs_finished_total")
	s.register(reg, s.jobDuration, "bulksend_job_duration_seconds")
	s.register(reg, s.recipientsTotal, "bulksend_recipients_total")
	s.register(reg, s.sendDuration, "bulksend_send_duration_seconds")
	s.register(reg, s.queueDepth, "bulksend_queue_depth")
}

func (s *PrometheusSink) initSessionMetrics(reg prometheus.Registerer) {
	s.sessionState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bulksend_session_state",
		Help: "Current WhatsApp session state (1 for the active state).",
	}, []string{"state"})
	for _, st := range SessionStates {
		s.sessionState.WithLabelValues(st).Set(0)
	}

	s.register(reg, s.sessionState, "bulksend_session_state")
}

func (s *PrometheusSink) initBroadcastMetrics(reg prometheus.Registerer) {
	s.observers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bulksend_observers",
		Help: "Number of connected progress observers.",
	})

	s.register(reg, s.observers, "bulksend_observers")
}

// register attempts to register a collector, logging any errors without propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		slog.Warn("metrics: failed to register collector", slog.String("name", name), slog.Any("error", err))
	}
}

func (s *PrometheusSink) JobSubmitted() {
	s.jobsSubmittedTotal.Inc()
}

func (s *PrometheusSink) JobFinished(status string, duration time.Duration) {
	s.jobsFinishedTotal.WithLabelValues(status).Inc()
	s.jobDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) RecipientOutcome(outcome string) {
	s.recipientsTotal.WithLabelValues(outcome).Inc()
}

func (s *PrometheusSink) SendLatency(kind string, d time.Duration) {
	s.sendDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (s *PrometheusSink) QueueDepth(n int) {
	s.queueDepth.Set(float64(n))
}

func (s *PrometheusSink) SessionState(state string) {
	for _, st := range SessionStates {
		v := 0.0
		if st == state {
			v = 1
		}
		s.sessionState.WithLabelValues(st).Set(v)
	}
}

func (s *PrometheusSink) Observers(n int) {
	s.observers.Set(float64(n))
}
