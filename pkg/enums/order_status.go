package enums

import "fmt"

// OrderStatus tracks the lifecycle of a single-seller order.
type OrderStatus string

const (
	OrderStatusWaiting    OrderStatus = "waiting"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusDelivering OrderStatus = "delivering"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusWaiting,
	OrderStatusProcessing,
	OrderStatusDelivering,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

// orderTransitions lists, per status, the statuses it may move to.
// Terminal statuses have no entry.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusWaiting:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusDelivering, OrderStatusCancelled},
	OrderStatusDelivering: {OrderStatusCompleted, OrderStatusCancelled},
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves the status.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, candidate := range orderTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
