package metrics

import "github.com/prometheus/client_golang/prometheus"

// Outbox publish outcome labels.
const (
	OutboxPublished    = "published"
	OutboxRetried      = "retried"
	OutboxDeadLettered = "dead_lettered"
)

// OutboxMetrics counts publisher outcomes per event type.
type OutboxMetrics struct {
	events *prometheus.CounterVec
}

// NewOutboxMetrics registers the outbox metrics on the provided registerer.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "giftflow_outbox_events_total",
		Help: "Outbox rows handled by the publisher, by outcome and event type.",
	}, []string{"outcome", "event_type"})
	reg.MustRegister(events)
	return &OutboxMetrics{events: events}
}

// Inc records one outbox row outcome.
func (m *OutboxMetrics) Inc(outcome, eventType string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(outcome, normalizeLabel(eventType)).Inc()
}
