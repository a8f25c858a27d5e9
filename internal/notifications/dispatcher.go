// Package notifications turns order events into push messages for the
// counterparty of each change. Delivery is best-effort: a failed push is
// logged and counted but never surfaces to the order flow.
package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/javery-app/javery-backend/pkg/enums"
	"github.com/javery-app/javery-backend/pkg/logger"
	"github.com/javery-app/javery-backend/pkg/metrics"
	"github.com/javery-app/javery-backend/pkg/outbox/payloads"
	"github.com/javery-app/javery-backend/pkg/outbox/registry"
	"github.com/javery-app/javery-backend/pkg/push"
)

type tokenSource interface {
	PushToken(ctx context.Context, uid string, role enums.PushTokenRole) (*string, error)
}

// Dispatcher sends the seller a push when an order is placed and the buyer a
// push whenever the order status changes.
type Dispatcher struct {
	tokens  tokenSource
	sender  push.Sender
	metrics *metrics.NotificationMetrics
	logg    *logger.Logger
}

// NewDispatcher wires token lookup and the push gateway. m may be nil.
func NewDispatcher(tokens tokenSource, sender push.Sender, logg *logger.Logger, m *metrics.NotificationMetrics) (*Dispatcher, error) {
	if tokens == nil {
		return nil, errors.New("token source required")
	}
	if sender == nil {
		return nil, errors.New("push sender required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &Dispatcher{tokens: tokens, sender: sender, metrics: m, logg: logg}, nil
}

// Register binds the dispatcher to the order event types.
func (d *Dispatcher) Register(handlers *registry.Handlers) {
	handlers.Register(enums.EventOrderCreated, func(ctx context.Context, event *registry.ResolvedEvent) error {
		payload, ok := event.Payload.(*payloads.OrderCreatedEvent)
		if !ok {
			return registry.NewNonRetryableError(fmt.Errorf("unexpected payload %T", event.Payload))
		}
		return d.OrderCreated(ctx, *payload)
	})
	handlers.Register(enums.EventOrderStatusChanged, func(ctx context.Context, event *registry.ResolvedEvent) error {
		payload, ok := event.Payload.(*payloads.OrderStatusChangedEvent)
		if !ok {
			return registry.NewNonRetryableError(fmt.Errorf("unexpected payload %T", event.Payload))
		}
		return d.OrderStatusChanged(ctx, *payload)
	})
}

// OrderCreated notifies the seller. Only a failed token lookup is returned;
// the caller may retry that.
func (d *Dispatcher) OrderCreated(ctx context.Context, event payloads.OrderCreatedEvent) error {
	ctx = d.logg.WithOrderID(ctx, event.OrderID)
	token, err := d.tokens.PushToken(ctx, event.SellerUID, enums.PushTokenRoleSeller)
	if err != nil {
		return fmt.Errorf("seller push token: %w", err)
	}
	d.deliver(ctx, enums.EventOrderCreated, token, func(to string) push.Message {
		return newOrderMessage(to, event)
	})
	return nil
}

// OrderStatusChanged notifies the buyer of the new status.
func (d *Dispatcher) OrderStatusChanged(ctx context.Context, event payloads.OrderStatusChangedEvent) error {
	ctx = d.logg.WithOrderID(ctx, event.OrderID)
	if event.OldStatus == event.NewStatus {
		d.metrics.IncPush(string(enums.EventOrderStatusChanged), metrics.PushSkipped)
		return nil
	}
	token, err := d.tokens.PushToken(ctx, event.BuyerUID, enums.PushTokenRoleBuyer)
	if err != nil {
		return fmt.Errorf("buyer push token: %w", err)
	}
	d.deliver(ctx, enums.EventOrderStatusChanged, token, func(to string) push.Message {
		return statusChangedMessage(to, event)
	})
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, eventType enums.OutboxEventType, token *string, build func(to string) push.Message) {
	if token == nil || !push.IsExpoPushToken(*token) {
		d.logg.Debug(ctx, "no push token, skipping notification")
		d.metrics.IncPush(string(eventType), metrics.PushSkipped)
		return
	}
	if err := d.sender.Send(ctx, build(*token)); err != nil {
		d.logg.Warn(d.logg.WithField(ctx, "error", err.Error()), "push notification failed")
		d.metrics.IncPush(string(eventType), metrics.PushFailed)
		return
	}
	d.metrics.IncPush(string(eventType), metrics.PushSent)
}
