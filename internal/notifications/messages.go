package notifications

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/javery-app/javery-backend/pkg/enums"
	"github.com/javery-app/javery-backend/pkg/format"
	"github.com/javery-app/javery-backend/pkg/outbox/payloads"
	"github.com/javery-app/javery-backend/pkg/push"
)

type statusCopy struct {
	title string
	body  string
}

// buyerCopy is the Indonesian copy shown to buyers per new status.
var buyerCopy = map[enums.OrderStatus]statusCopy{
	enums.OrderStatusProcessing: {title: "Pesanan Diproses", body: "Penjual sedang menyiapkan pesanan Anda."},
	enums.OrderStatusDelivering: {title: "Pesanan Diantar", body: "Pesanan Anda sedang dalam perjalanan."},
	enums.OrderStatusCompleted:  {title: "Pesanan Selesai", body: "Pesanan telah sampai. Selamat menikmati!"},
	enums.OrderStatusCancelled:  {title: "Pesanan Dibatalkan", body: "Pesanan Anda telah dibatalkan oleh penjual."},
}

func newOrderMessage(token string, event payloads.OrderCreatedEvent) push.Message {
	return push.Message{
		To:    token,
		Title: "New Order Received!",
		Body: fmt.Sprintf("You have a new order from %s for Rp %s",
			event.BuyerName, format.Rupiah(decimal.NewFromFloat(event.TotalAmount))),
		Data: map[string]string{"orderId": event.OrderID},
	}
}

func statusChangedMessage(token string, event payloads.OrderStatusChangedEvent) push.Message {
	text, ok := buyerCopy[event.NewStatus]
	if !ok {
		text = statusCopy{
			title: "Order Status Update",
			body:  fmt.Sprintf("Your order status has been updated to %s", event.NewStatus),
		}
	}
	return push.Message{
		To:    token,
		Title: text.title,
		Body:  text.body,
		Data: map[string]string{
			"orderId": event.OrderID,
			"status":  event.NewStatus.String(),
		},
	}
}
