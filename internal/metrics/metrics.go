package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	liveSessions  prometheus.Gauge
	transitions   *prometheus.CounterVec
	joins         *prometheus.CounterVec
	answers       *prometheus.CounterVec
	questionsOut  prometheus.Counter
	hints         *prometheus.CounterVec
	simActions    *prometheus.CounterVec
	auditFailures *prometheus.CounterVec
	eventsDropped prometheus.Counter
	answerLatency prometheus.Histogram
}

// New registers every collector on reg.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		liveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "quiz_live_sessions_open",
			Help: "Live sessions that have not ended",
		}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_live_transitions_total",
			Help: "Lifecycle transitions by target status",
		}, []string{"status"}),
		joins: f.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_joins_total",
			Help: "Join attempts by outcome",
		}, []string{"outcome"}),
		answers: f.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_answers_total",
			Help: "Graded answers by result",
		}, []string{"result"}),
		questionsOut: f.NewCounter(prometheus.CounterOpts{
			Name: "quiz_questions_served_total",
			Help: "Questions served to participants",
		}),
		hints: f.NewCounterVec(prometheus.CounterOpts{
			Name: "simulator_hints_total",
			Help: "Hint requests by outcome",
		}, []string{"outcome"}),
		simActions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "simulator_actions_total",
			Help: "Recorded simulator actions by correctness",
		}, []string{"correct"}),
		auditFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_write_failures_total",
			Help: "Audit records that could not be written",
		}, []string{"kind"}),
		eventsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "realtime_events_dropped_total",
			Help: "Events dropped for slow subscribers",
		}),
		answerLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "quiz_answer_elapsed_seconds",
			Help:    "Client-reported time to answer",
			Buckets: []float64{1, 2, 5, 10, 15, 20, 30, 45, 60},
		}),
	}
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) LiveSessionOpened() {
	if m != nil {
		m.liveSessions.Inc()
	}
}

func (m *Metrics) LiveSessionClosed() {
	if m != nil {
		m.liveSessions.Dec()
	}
}

func (m *Metrics) Transition(status string) {
	if m != nil {
		m.transitions.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) Join(outcome string) {
	if m != nil {
		m.joins.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) QuestionServed() {
	if m != nil {
		m.questionsOut.Inc()
	}
}

// Answer records a graded answer; result is "correct", "incorrect" or "timeout".
func (m *Metrics) Answer(result string, elapsedMs int64) {
	if m == nil {
		return
	}
	m.answers.WithLabelValues(result).Inc()
	if elapsedMs > 0 {
		m.answerLatency.Observe(float64(elapsedMs) / 1000)
	}
}

func (m *Metrics) Hint(outcome string) {
	if m != nil {
		m.hints.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) SimulatorAction(correct bool) {
	if m == nil {
		return
	}
	label := "false"
	if correct {
		label = "true"
	}
	m.simActions.WithLabelValues(label).Inc()
}

func (m *Metrics) AuditFailure(kind string) {
	if m != nil {
		m.auditFailures.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) EventDropped() {
	if m != nil {
		m.eventsDropped.Inc()
	}
}
