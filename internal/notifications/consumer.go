package notifications

import (
	"context"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/javery-app/javery-backend/pkg/enums"
	pkgerrors "github.com/javery-app/javery-backend/pkg/errors"
	"github.com/javery-app/javery-backend/pkg/logger"
	"github.com/javery-app/javery-backend/pkg/outbox"
	"github.com/javery-app/javery-backend/pkg/outbox/registry"
)

// ConsumerName scopes the idempotency keys of this consumer.
const ConsumerName = "order-notifications"

type eventResolver interface {
	Resolve(event outbox.Event) (*registry.ResolvedEvent, error)
}

type processedTracker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, consumer, eventID string) error
	Delete(ctx context.Context, consumer, eventID string) error
}

// Consumer pulls order events from Pub/Sub and hands each one to the
// registered handlers exactly once per event id.
type Consumer struct {
	subscription *pubsub.Subscriber
	registry     eventResolver
	handlers     *registry.Handlers
	idempotency  processedTracker
	logg         *logger.Logger
}

// NewConsumer builds the notification consumer.
func NewConsumer(subscription *pubsub.Subscriber, reg eventResolver, handlers *registry.Handlers, tracker processedTracker, logg *logger.Logger) (*Consumer, error) {
	if subscription == nil {
		return nil, fmt.Errorf("notification subscription required")
	}
	if reg == nil {
		return nil, fmt.Errorf("event registry required")
	}
	if handlers == nil {
		return nil, fmt.Errorf("handlers required")
	}
	if tracker == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		subscription: subscription,
		registry:     reg,
		handlers:     handlers,
		idempotency:  tracker,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, delivery{id: msg.ID, attributes: msg.Attributes, data: msg.Data})
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type delivery struct {
	id         string
	attributes map[string]string
	data       []byte
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg delivery) processResult {
	eventType := enums.OutboxEventType(msg.attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.id,
		"event_type": eventType,
	})

	if !c.handlers.Handles(eventType) {
		c.logg.Debug(logCtx, "skipping unhandled event")
		return processResult{ack: true}
	}

	resolved, err := c.registry.Resolve(outbox.Event{
		ID:            msg.attributes["event_id"],
		EventType:     eventType,
		AggregateType: enums.OutboxAggregateType(msg.attributes["aggregate_type"]),
		AggregateID:   msg.attributes["aggregate_id"],
		Payload:       string(msg.data),
	})
	if err != nil {
		c.logg.Error(logCtx, "failed to decode event", err)
		return processResult{ack: true}
	}

	eventID := resolved.Envelope.EventID
	logCtx = c.logg.WithField(logCtx, "event_id", eventID)
	logCtx = c.logg.WithOrderID(logCtx, resolved.AggregateID)

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, ConsumerName, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	if err := c.handlers.Dispatch(logCtx, resolved); err != nil {
		var nonRetry registry.NonRetryableError
		if !errors.As(err, &nonRetry) && !errors.Is(err, registry.ErrNoHandler) && pkgerrors.IsRetryable(err) {
			c.logg.Error(logCtx, "notification handling failed", err)
			_ = c.idempotency.Delete(ctx, ConsumerName, eventID)
			return processResult{nack: true}
		}
		c.logg.Error(logCtx, "event dropped", err)
	}
	if err := c.idempotency.MarkProcessed(ctx, ConsumerName, eventID); err != nil {
		// The claim still expires on its own; a redelivery after that repeats the push.
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "failed to record processed event")
	}
	return processResult{ack: true}
}
