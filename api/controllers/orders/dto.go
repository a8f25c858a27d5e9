package orders

import (
	"strings"

	internalorders "github.com/javery-app/javery-backend/internal/orders"
	"github.com/javery-app/javery-backend/pkg/format"
)

type createOrderRequest struct {
	SellerUID         string                  `json:"sellerUid" validate:"required"`
	SellerName        string                  `json:"sellerName" validate:"required,max=120"`
	SellerPhoneNumber *string                 `json:"sellerPhoneNumber,omitempty" validate:"omitempty,max=32"`
	BuyerName         *string                 `json:"buyerName,omitempty" validate:"omitempty,max=120"`
	Items             []orderItemPayload      `json:"items" validate:"required,min=1,dive"`
	TotalAmount       float64                 `json:"totalAmount" validate:"gte=0"`
	ShippingAddress   *shippingAddressPayload `json:"shippingAddress,omitempty"`
	AddressID         *string                 `json:"addressId,omitempty"`
	BuyerLocation     *locationPayload        `json:"buyerLocation,omitempty"`
	PickupOrder       bool                    `json:"pickupOrder"`
}

type orderItemPayload struct {
	ProductID    string  `json:"productId" validate:"required,max=128"`
	ProductName  string  `json:"productName" validate:"required,max=200"`
	ProductPrice float64 `json:"productPrice" validate:"gte=0"`
	ProductImage *string `json:"productImage,omitempty"`
	Quantity     int     `json:"quantity" validate:"gt=0"`
}

type shippingAddressPayload struct {
	Name          string  `json:"name" validate:"max=80"`
	RecipientName string  `json:"recipientName" validate:"required,max=120"`
	PhoneNumber   string  `json:"phoneNumber" validate:"required,max=32"`
	FullAddress   string  `json:"fullAddress" validate:"required,max=500"`
	Notes         *string `json:"notes,omitempty" validate:"omitempty,max=500"`
}

type locationPayload struct {
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required,orderstatus"`
}

// toInput builds the service input. The buyer name falls back to the token
// name when the body omits it.
func (p createOrderRequest) toInput(buyerUID, tokenName string) internalorders.CreateOrderInput {
	buyerName := strings.TrimSpace(tokenName)
	if p.BuyerName != nil && strings.TrimSpace(*p.BuyerName) != "" {
		buyerName = strings.TrimSpace(*p.BuyerName)
	}

	items := make([]internalorders.Item, 0, len(p.Items))
	for _, item := range p.Items {
		items = append(items, internalorders.Item{
			ProductID:    strings.TrimSpace(item.ProductID),
			ProductName:  strings.TrimSpace(item.ProductName),
			ProductPrice: item.ProductPrice,
			ProductImage: item.ProductImage,
			Quantity:     item.Quantity,
			SellerUID:    p.SellerUID,
			SellerName:   p.SellerName,
		})
	}

	input := internalorders.CreateOrderInput{
		BuyerUID:          buyerUID,
		BuyerName:         buyerName,
		SellerUID:         strings.TrimSpace(p.SellerUID),
		SellerName:        strings.TrimSpace(p.SellerName),
		SellerPhoneNumber: p.SellerPhoneNumber,
		Items:             items,
		TotalAmount:       p.TotalAmount,
		PickupOrder:       p.PickupOrder,
	}
	if p.ShippingAddress != nil {
		input.ShippingAddress = internalorders.ShippingAddress{
			Name:          strings.TrimSpace(p.ShippingAddress.Name),
			RecipientName: strings.TrimSpace(p.ShippingAddress.RecipientName),
			PhoneNumber:   strings.TrimSpace(p.ShippingAddress.PhoneNumber),
			FullAddress:   strings.TrimSpace(p.ShippingAddress.FullAddress),
			Notes:         p.ShippingAddress.Notes,
		}
	}
	if p.BuyerLocation != nil {
		input.BuyerLocation = &format.Location{Latitude: p.BuyerLocation.Latitude, Longitude: p.BuyerLocation.Longitude}
	}
	return input
}

type orderDetailResponse struct {
	*internalorders.Order
	CreatedAgo    string  `json:"createdAgo"`
	BuyerDistance *string `json:"buyerDistance,omitempty"`
}
