package metrics

import "github.com/prometheus/client_golang/prometheus"

// Push outcomes.
const (
	PushSent    = "sent"
	PushFailed  = "failed"
	PushSkipped = "skipped"
)

// NotificationMetrics counts push dispatch outcomes per event type.
type NotificationMetrics struct {
	push *prometheus.CounterVec
}

func NewNotificationMetrics(reg prometheus.Registerer) *NotificationMetrics {
	if reg == nil {
		return &NotificationMetrics{}
	}
	push := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notifications",
		Name:      "push_total",
		Help:      "Push notifications by event type and outcome.",
	}, []string{"event_type", "outcome"})
	reg.MustRegister(push)
	return &NotificationMetrics{push: push}
}

// IncPush records one dispatch outcome.
func (n *NotificationMetrics) IncPush(eventType, outcome string) {
	if n == nil || n.push == nil {
		return
	}
	n.push.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}
