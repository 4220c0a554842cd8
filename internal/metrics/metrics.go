package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rabbitry"

// Metrics holds the engine counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	matings          prometheus.Counter
	rejections       *prometheus.CounterVec
	births           prometheus.Counter
	retractions      prometheus.Counter
	remindersCreated *prometheus.CounterVec
	dispatches       *prometheus.CounterVec
	cullings         *prometheus.CounterVec
}

// New creates the counters and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		matings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matings_recorded_total",
			Help:      "Matings accepted and recorded.",
		}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breeding_rejections_total",
			Help:      "Breeding requests rejected by validation, by reason.",
		}, []string{"reason"}),
		births: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "births_recorded_total",
			Help:      "Births recorded against open breeding events.",
		}),
		retractions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matings_retracted_total",
			Help:      "Open breeding events retracted.",
		}),
		remindersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_created_total",
			Help:      "Reminders created by the cascade, by category.",
		}, []string{"category"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_dispatches_total",
			Help:      "Reminder dispatch attempts, by outcome.",
		}, []string{"outcome"}),
		cullings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "culling_recommendations_total",
			Help:      "Culling recommendations, by reason.",
		}, []string{"reason"}),
	}

	if reg != nil {
		reg.MustRegister(m.matings, m.rejections, m.births, m.retractions, m.remindersCreated, m.dispatches, m.cullings)
	}
	return m
}

func (m *Metrics) MatingRecorded() {
	if m == nil {
		return
	}
	m.matings.Inc()
}

func (m *Metrics) Rejected(reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) BirthRecorded() {
	if m == nil {
		return
	}
	m.births.Inc()
}

func (m *Metrics) MatingRetracted() {
	if m == nil {
		return
	}
	m.retractions.Inc()
}

func (m *Metrics) RemindersCreated(category string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.remindersCreated.WithLabelValues(category).Add(float64(n))
}

func (m *Metrics) Dispatched(outcome string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CullingRecommended(reason string) {
	if m == nil {
		return
	}
	m.cullings.WithLabelValues(reason).Inc()
}
