package metrics

import "github.com/prometheus/client_golang/prometheus"

// IntakeMetrics exposes counters/histograms for the intake pipeline.
type IntakeMetrics struct {
	inboundTotal *prometheus.CounterVec
	turnsTotal   *prometheus.CounterVec
	turnLatency  *prometheus.HistogramVec
	triageTotal  *prometheus.CounterVec
	bookingTotal prometheus.Counter
}

func NewIntakeMetrics(reg prometheus.Registerer) *IntakeMetrics {
	m := &IntakeMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "afyacare",
			Subsystem: "messaging",
			Name:      "inbound_webhook_total",
			Help:      "Total inbound WhatsApp webhooks",
		}, []string{"status"}),
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "afyacare",
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Conversation turns by resulting state",
		}, []string{"state"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "afyacare",
			Subsystem: "conversation",
			Name:      "turn_latency_seconds",
			Help:      "Latency of one conversation turn",
			Buckets:   prometheus.DefBuckets,
		}, []string{"state"}),
		triageTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "afyacare",
			Subsystem: "triage",
			Name:      "assessments_total",
			Help:      "Triage assessments by outcome (ok or fallback)",
		}, []string{"outcome"}),
		bookingTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "afyacare",
			Subsystem: "conversation",
			Name:      "bookings_total",
			Help:      "Completed hospital bookings",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.turnsTotal, m.turnLatency, m.triageTotal, m.bookingTotal)
	return m
}

func (m *IntakeMetrics) ObserveInbound(status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(status).Inc()
}

func (m *IntakeMetrics) ObserveTurn(state string, seconds float64) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(state).Inc()
	m.turnLatency.WithLabelValues(state).Observe(seconds)
}

func (m *IntakeMetrics) ObserveTriage(outcome string) {
	if m == nil {
		return
	}
	m.triageTotal.WithLabelValues(outcome).Inc()
}

func (m *IntakeMetrics) ObserveBooking() {
	if m == nil {
		return
	}
	m.bookingTotal.Inc()
}
