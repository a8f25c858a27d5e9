package metrics

import "github.com/prometheus/client_golang/prometheus"

// OrderMetrics counts order creations and status transitions.
type OrderMetrics struct {
	created     prometheus.Counter
	transitions *prometheus.CounterVec
}

func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	created := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orders",
		Name:      "created_total",
		Help:      "Orders created.",
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orders",
		Name:      "status_transitions_total",
		Help:      "Order status transitions by target status and reason.",
	}, []string{"to", "reason"})
	reg.MustRegister(created, transitions)
	return &OrderMetrics{created: created, transitions: transitions}
}

func (o *OrderMetrics) IncCreated() {
	if o == nil || o.created == nil {
		return
	}
	o.created.Inc()
}

// IncTransition records a committed status change.
func (o *OrderMetrics) IncTransition(to, reason string) {
	if o == nil || o.transitions == nil {
		return
	}
	o.transitions.WithLabelValues(normalizeLabel(to), normalizeLabel(reason)).Inc()
}
