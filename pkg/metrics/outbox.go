package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outbox publish outcomes.
const (
	OutboxPublished    = "published"
	OutboxRetried      = "retried"
	OutboxDeadLettered = "dead_lettered"
)

// OutboxMetrics tracks what the publisher does with each pending event.
type OutboxMetrics struct {
	events  *prometheus.CounterVec
	publish *prometheus.HistogramVec
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "events_total",
		Help:      "Outbox events handled by the publisher, by event type and outcome.",
	}, []string{"event_type", "outcome"})
	publish := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "publish_duration_seconds",
		Help:      "Time spent waiting for Pub/Sub to acknowledge a publish.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15},
	}, []string{"topic"})
	reg.MustRegister(events, publish)
	return &OutboxMetrics{events: events, publish: publish}
}

func (o *OutboxMetrics) IncEvent(eventType, outcome string) {
	if o == nil || o.events == nil {
		return
	}
	o.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// ObservePublish records one round trip to the topic, successful or not.
func (o *OutboxMetrics) ObservePublish(topic string, d time.Duration) {
	if o == nil || o.publish == nil {
		return
	}
	o.publish.WithLabelValues(normalizeLabel(topic)).Observe(d.Seconds())
}
