package payloads

import "github.com/javery-app/javery-backend/pkg/enums"

// Reasons carried by OrderStatusChangedEvent.
const (
	ReasonSellerUpdate    = "seller_update"
	ReasonDeliveryTimeout = "delivery_timeout"
)

// OrderCreatedEvent is emitted in the same batch that creates an order.
type OrderCreatedEvent struct {
	OrderID     string  `json:"orderId"`
	BuyerUID    string  `json:"buyerUid"`
	BuyerName   string  `json:"buyerName"`
	SellerUID   string  `json:"sellerUid"`
	SellerName  string  `json:"sellerName"`
	TotalAmount float64 `json:"totalAmount"`
	ItemCount   int     `json:"itemCount"`
	PickupOrder bool    `json:"pickupOrder"`
}

// OrderStatusChangedEvent is emitted once per accepted status transition.
type OrderStatusChangedEvent struct {
	OrderID   string            `json:"orderId"`
	BuyerUID  string            `json:"buyerUid"`
	SellerUID string            `json:"sellerUid"`
	OldStatus enums.OrderStatus `json:"oldStatus"`
	NewStatus enums.OrderStatus `json:"newStatus"`
	Reason    string            `json:"reason,omitempty"`
}
