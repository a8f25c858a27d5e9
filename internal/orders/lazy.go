package orders

import (
	"context"
	"errors"
	"time"

	"github.com/javery-app/javery-backend/pkg/docstore"
	"github.com/javery-app/javery-backend/pkg/enums"
	"github.com/javery-app/javery-backend/pkg/outbox"
	"github.com/javery-app/javery-backend/pkg/outbox/payloads"
)

// deliveryExpired reports whether a delivering order has been on the road
// longer than the timeout. Orders without a start time never expire.
func (s *service) deliveryExpired(order *Order, now time.Time) bool {
	if order == nil || order.Status != enums.OrderStatusDelivering || order.DeliveryStartTime == nil {
		return false
	}
	return now.Sub(*order.DeliveryStartTime) > s.deliveryTimeout
}

// applyDeliveryTimeout completes an expired delivery as part of a read. The
// store is updated only if the stored order is still delivering, so racing
// readers commit the transition once. When the write fails the caller still
// sees the completed view and the next read tries again.
func (s *service) applyDeliveryTimeout(ctx context.Context, order *Order) *Order {
	now := s.now().UTC()
	if !s.deliveryExpired(order, now) {
		return order
	}
	ctx = s.logg.WithOrderID(ctx, order.ID)

	stored, written, err := s.completeExpiredDelivery(ctx, order.ID)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "lazy delivery completion not persisted")
		view := *order
		view.Status = enums.OrderStatusCompleted
		view.CompletedAt = &now
		return &view
	}
	if written {
		s.metrics.IncTransition(enums.OrderStatusCompleted.String(), payloads.ReasonDeliveryTimeout)
		s.logg.Info(s.logg.WithField(ctx, "delivery_start", order.DeliveryStartTime), "delivery timed out, order completed")
	}
	return stored
}

// completeExpiredDelivery is the conditional update behind the lazy rule. It
// re-reads the order inside a transaction and writes only when the stored
// status is still delivering and still expired.
func (s *service) completeExpiredDelivery(ctx context.Context, orderID string) (*Order, bool, error) {
	ref := docstore.Doc(Collection, orderID)
	var (
		result  *Order
		written bool
	)
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		written = false
		snap, err := tx.Get(ref)
		if errors.Is(err, docstore.ErrNotFound) {
			return ErrOrderNotFound
		}
		if err != nil {
			return err
		}
		order, err := decodeOrder(snap)
		if err != nil {
			return err
		}
		result = order
		if !s.deliveryExpired(order, s.now().UTC()) {
			return nil
		}

		actor := &outbox.ActorRef{Role: actorRoleSystem}
		updated, err := s.transition(ctx, tx, order, enums.OrderStatusCompleted, payloads.ReasonDeliveryTimeout, actor)
		if err != nil {
			return err
		}
		result, written = updated, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, written, nil
}
