package orders

import (
	"errors"
	"time"

	"github.com/javery-app/javery-backend/pkg/enums"
	pkgerrors "github.com/javery-app/javery-backend/pkg/errors"
	"github.com/javery-app/javery-backend/pkg/format"
)

// Collection holds one document per order.
const Collection = "orders"

var (
	// ErrOrderNotFound is the routine outcome of reading a stale order link.
	ErrOrderNotFound = pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	// ErrOrderCreationFailed wraps every store failure while placing an order.
	ErrOrderCreationFailed = errors.New("order creation failed")
	// ErrInvalidStatusTransition wraps every rejected status change.
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

// Item is a line item copied from the cart at checkout.
type Item struct {
	ProductID    string  `firestore:"productId" json:"productId"`
	ProductName  string  `firestore:"productName" json:"productName"`
	ProductPrice float64 `firestore:"productPrice" json:"productPrice"`
	ProductImage *string `firestore:"productImage,omitempty" json:"productImage,omitempty"`
	Quantity     int     `firestore:"quantity" json:"quantity"`
	SellerUID    string  `firestore:"sellerUid" json:"sellerUid"`
	SellerName   string  `firestore:"sellerName" json:"sellerName"`
}

// ShippingAddress is an address snapshot. Later edits to the saved address
// never reach the order.
type ShippingAddress struct {
	Name          string  `firestore:"name" json:"name"`
	RecipientName string  `firestore:"recipientName" json:"recipientName"`
	PhoneNumber   string  `firestore:"phoneNumber" json:"phoneNumber"`
	FullAddress   string  `firestore:"fullAddress" json:"fullAddress"`
	Notes         *string `firestore:"notes,omitempty" json:"notes,omitempty"`
}

// Order is a single-seller checkout.
type Order struct {
	ID                string              `firestore:"-" json:"id"`
	BuyerUID          string              `firestore:"buyerUid" json:"buyerUid"`
	BuyerName         string              `firestore:"buyerName" json:"buyerName"`
	SellerUID         string              `firestore:"sellerUid" json:"sellerUid"`
	SellerName        string              `firestore:"sellerName" json:"sellerName"`
	SellerPhoneNumber *string             `firestore:"sellerPhoneNumber,omitempty" json:"sellerPhoneNumber,omitempty"`
	Items             []Item              `firestore:"items" json:"items"`
	TotalAmount       float64             `firestore:"totalAmount" json:"totalAmount"`
	Status            enums.OrderStatus   `firestore:"status" json:"status"`
	ShippingAddress   ShippingAddress     `firestore:"shippingAddress" json:"shippingAddress"`
	BuyerLocation     *format.Location    `firestore:"buyerLocation,omitempty" json:"buyerLocation,omitempty"`
	PaymentMethod     enums.PaymentMethod `firestore:"paymentMethod" json:"paymentMethod"`
	PickupOrder       bool                `firestore:"pickupOrder" json:"pickupOrder"`
	CreatedAt         time.Time           `firestore:"createdAt" json:"createdAt"`
	DeliveryStartTime *time.Time          `firestore:"deliveryStartTime,omitempty" json:"deliveryStartTime,omitempty"`
	CompletedAt       *time.Time          `firestore:"completedAt,omitempty" json:"completedAt,omitempty"`
	UpdatedAt         time.Time           `firestore:"updatedAt" json:"updatedAt"`
}

// OrderList is one page of orders plus the cursor of the next page.
type OrderList struct {
	Orders     []Order `json:"orders"`
	NextCursor string  `json:"nextCursor,omitempty"`
}

// CreateOrderInput is a checkout already partitioned to a single seller.
type CreateOrderInput struct {
	BuyerUID          string
	BuyerName         string
	SellerUID         string
	SellerName        string
	SellerPhoneNumber *string
	Items             []Item
	TotalAmount       float64
	ShippingAddress   ShippingAddress
	BuyerLocation     *format.Location
	PickupOrder       bool
}

// UpdateStatusInput moves an order to Status on behalf of ActorUID.
type UpdateStatusInput struct {
	OrderID  string
	Status   enums.OrderStatus
	ActorUID string
}

func invalidTransition(from, to enums.OrderStatus) error {
	return pkgerrors.Wrap(pkgerrors.CodeStateConflict, ErrInvalidStatusTransition,
		"order cannot move from "+from.String()+" to "+to.String()).
		WithDetails(map[string]string{"from": from.String(), "to": to.String()})
}
