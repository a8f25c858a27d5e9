package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/javery-app/javery-backend/internal/cart"
	"github.com/javery-app/javery-backend/pkg/docstore"
	"github.com/javery-app/javery-backend/pkg/enums"
	pkgerrors "github.com/javery-app/javery-backend/pkg/errors"
	"github.com/javery-app/javery-backend/pkg/logger"
	"github.com/javery-app/javery-backend/pkg/metrics"
	"github.com/javery-app/javery-backend/pkg/outbox"
	"github.com/javery-app/javery-backend/pkg/outbox/payloads"
	"github.com/javery-app/javery-backend/pkg/pagination"
)

const (
	// DefaultDeliveryTimeout is how long an order may stay delivering before
	// reads report it completed.
	DefaultDeliveryTimeout = 30 * time.Minute

	actorRoleBuyer  = "buyer"
	actorRoleSeller = "seller"
	actorRoleSystem = "system"
)

type outboxWriter interface {
	Op(ctx context.Context, event outbox.DomainEvent) (docstore.Op, error)
	Emit(ctx context.Context, tx docstore.Tx, event outbox.DomainEvent) error
}

// Service owns order creation and status transitions.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (string, error)
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	ListOrdersForBuyer(ctx context.Context, buyerUID string, params pagination.Params) (*OrderList, error)
	ListOrdersForSeller(ctx context.Context, sellerUID string, params pagination.Params) (*OrderList, error)
	UpdateOrderStatus(ctx context.Context, input UpdateStatusInput) (*Order, error)
}

type service struct {
	store           docstore.Store
	outbox          outboxWriter
	logg            *logger.Logger
	metrics         *metrics.OrderMetrics
	now             func() time.Time
	deliveryTimeout time.Duration
}

// Option customizes the order service.
type Option func(*service)

// WithClock overrides the clock used for transition timestamps and the
// delivery timeout.
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDeliveryTimeout overrides DefaultDeliveryTimeout.
func WithDeliveryTimeout(d time.Duration) Option {
	return func(s *service) {
		if d > 0 {
			s.deliveryTimeout = d
		}
	}
}

func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(s *service) { s.metrics = m }
}

// NewService builds the order service with its required collaborators.
func NewService(store docstore.Store, outbox outboxWriter, logg *logger.Logger, opts ...Option) (Service, error) {
	if store == nil {
		return nil, fmt.Errorf("document store required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox writer required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	s := &service{
		store:           store,
		outbox:          outbox,
		logg:            logg,
		now:             time.Now,
		deliveryTimeout: DefaultDeliveryTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// CreateOrder writes the order, the cart deletes and the OrderCreated event
// in one atomic batch.
func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (string, error) {
	if err := validateCreate(input); err != nil {
		return "", err
	}

	orderID := s.store.NewID(Collection)
	ctx = s.logg.WithOrderID(ctx, orderID)

	fields := docstore.Fields{
		"buyerUid":        input.BuyerUID,
		"buyerName":       input.BuyerName,
		"sellerUid":       input.SellerUID,
		"sellerName":      input.SellerName,
		"items":           input.Items,
		"totalAmount":     input.TotalAmount,
		"status":          string(enums.OrderStatusWaiting),
		"shippingAddress": input.ShippingAddress,
		"paymentMethod":   string(enums.PaymentMethodCOD),
		"pickupOrder":     input.PickupOrder,
		"createdAt":       docstore.ServerTimestamp,
		"updatedAt":       docstore.ServerTimestamp,
	}
	if input.SellerPhoneNumber != nil {
		fields["sellerPhoneNumber"] = *input.SellerPhoneNumber
	}
	if input.BuyerLocation != nil {
		fields["buyerLocation"] = *input.BuyerLocation
	}

	ops := make([]docstore.Op, 0, len(input.Items)+2)
	ops = append(ops, docstore.Create(docstore.Doc(Collection, orderID), fields))
	for _, item := range input.Items {
		ops = append(ops, docstore.Delete(cart.ItemRef(input.BuyerUID, item.ProductID)))
	}

	eventID := outbox.EventID(orderID, "created")
	event, err := s.outbox.Op(ctx, outbox.DomainEvent{
		EventID:       eventID,
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Actor:         &outbox.ActorRef{UserID: input.BuyerUID, Role: actorRoleBuyer},
		OccurredAt:    s.now(),
		Data: payloads.OrderCreatedEvent{
			OrderID:     orderID,
			BuyerUID:    input.BuyerUID,
			BuyerName:   input.BuyerName,
			SellerUID:   input.SellerUID,
			SellerName:  input.SellerName,
			TotalAmount: input.TotalAmount,
			ItemCount:   len(input.Items),
			PickupOrder: input.PickupOrder,
		},
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build order created event")
	}
	ops = append(ops, event)

	if err := s.store.Batch(ctx, ops...); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("%w: %w", ErrOrderCreationFailed, err), "order creation failed")
	}

	s.metrics.IncCreated()
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"buyer_uid":  input.BuyerUID,
		"seller_uid": input.SellerUID,
		"items":      len(input.Items),
		"event_id":   eventID,
	}), "order created, outbox event queued")
	return orderID, nil
}

func (s *service) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	if !validDocID(orderID) {
		return nil, ErrOrderNotFound
	}
	snap, err := s.store.Get(ctx, docstore.Doc(Collection, orderID))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	order, err := decodeOrder(snap)
	if err != nil {
		return nil, err
	}
	return s.applyDeliveryTimeout(ctx, order), nil
}

func (s *service) ListOrdersForBuyer(ctx context.Context, buyerUID string, params pagination.Params) (*OrderList, error) {
	return s.listBy(ctx, "buyerUid", buyerUID, params)
}

func (s *service) ListOrdersForSeller(ctx context.Context, sellerUID string, params pagination.Params) (*OrderList, error) {
	return s.listBy(ctx, "sellerUid", sellerUID, params)
}

// listBy pages through one party's orders, newest first.
func (s *service) listBy(ctx context.Context, field, uid string, params pagination.Params) (*OrderList, error) {
	if strings.TrimSpace(uid) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	q := docstore.Query{
		Collection: Collection,
		Filters:    []docstore.Filter{{Field: field, Value: uid}},
		OrderBy:    "createdAt",
		Direction:  docstore.Desc,
		Limit:      pagination.LimitWithBuffer(params.Limit),
	}
	if cursor != nil {
		q.StartAfter = []any{cursor.CreatedAt, cursor.ID}
	}

	snaps, err := s.store.Query(ctx, q)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}

	list := &OrderList{Orders: make([]Order, 0, min(len(snaps), limit))}
	for i, snap := range snaps {
		if i == limit {
			last := list.Orders[limit-1]
			list.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
			break
		}
		order, err := decodeOrder(snap)
		if err != nil {
			return nil, err
		}
		list.Orders = append(list.Orders, *s.applyDeliveryTimeout(ctx, order))
	}
	return list, nil
}

// UpdateOrderStatus validates the transition against the stored status and
// writes it with the OrderStatusChanged event in one transaction. Asking for
// the current status is a no-op. An expired delivery is completed first, the
// same way a read would complete it, and the request is judged against that.
func (s *service) UpdateOrderStatus(ctx context.Context, input UpdateStatusInput) (*Order, error) {
	if !validDocID(input.OrderID) {
		return nil, ErrOrderNotFound
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status")
	}
	ctx = s.logg.WithOrderID(ctx, input.OrderID)
	ref := docstore.Doc(Collection, input.OrderID)

	var (
		result   *Order
		changed  bool
		timedOut bool
		rejected error
		from     enums.OrderStatus
	)
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		changed, timedOut, rejected = false, false, nil
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
		result, from = order, order.Status

		if s.deliveryExpired(order, s.now().UTC()) {
			completed, err := s.transition(ctx, tx, order, enums.OrderStatusCompleted, payloads.ReasonDeliveryTimeout, &outbox.ActorRef{Role: actorRoleSystem})
			if err != nil {
				return err
			}
			result, timedOut = completed, true
			if input.Status != enums.OrderStatusCompleted {
				rejected = invalidTransition(enums.OrderStatusCompleted, input.Status)
			}
			return nil
		}

		if order.Status == input.Status {
			return nil
		}
		if !order.Status.CanTransitionTo(input.Status) {
			return invalidTransition(order.Status, input.Status)
		}

		actor := &outbox.ActorRef{UserID: input.ActorUID, Role: actorRoleSeller}
		updated, err := s.transition(ctx, tx, order, input.Status, payloads.ReasonSellerUpdate, actor)
		if err != nil {
			return err
		}
		result, changed = updated, true
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}

	if timedOut {
		s.metrics.IncTransition(enums.OrderStatusCompleted.String(), payloads.ReasonDeliveryTimeout)
		s.logg.Info(s.logg.WithField(ctx, "requested", input.Status), "delivery timed out before status update, order completed")
	}
	if rejected != nil {
		return nil, rejected
	}
	if changed {
		s.metrics.IncTransition(input.Status.String(), payloads.ReasonSellerUpdate)
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"from": from,
			"to":   input.Status,
		}), "order status updated")
	}
	return result, nil
}

// transition applies a validated status change inside tx and returns the
// updated view.
func (s *service) transition(ctx context.Context, tx docstore.Tx, order *Order, to enums.OrderStatus, reason string, actor *outbox.ActorRef) (*Order, error) {
	now := s.now().UTC()
	updated := *order
	updated.Status = to
	updated.UpdatedAt = now

	fields := docstore.Fields{
		"status":    string(to),
		"updatedAt": docstore.ServerTimestamp,
	}
	switch to {
	case enums.OrderStatusDelivering:
		fields["deliveryStartTime"] = now
		updated.DeliveryStartTime = &now
	case enums.OrderStatusCompleted:
		fields["completedAt"] = now
		updated.CompletedAt = &now
	}

	if err := tx.Apply(docstore.Update(docstore.Doc(Collection, order.ID), fields)); err != nil {
		return nil, err
	}
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventID:       outbox.EventID(order.ID, order.Status.String(), to.String()),
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		OccurredAt:    now,
		Data: payloads.OrderStatusChangedEvent{
			OrderID:   order.ID,
			BuyerUID:  order.BuyerUID,
			SellerUID: order.SellerUID,
			OldStatus: order.Status,
			NewStatus: to,
			Reason:    reason,
		},
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func decodeOrder(snap *docstore.Snapshot) (*Order, error) {
	var order Order
	if err := snap.DataTo(&order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode order")
	}
	order.ID = snap.Ref.ID
	return &order, nil
}

func validDocID(id string) bool {
	return strings.TrimSpace(id) != "" && !strings.Contains(id, "/")
}

func validateCreate(input CreateOrderInput) error {
	if strings.TrimSpace(input.BuyerUID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "buyer is required")
	}
	if strings.TrimSpace(input.SellerUID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "seller is required")
	}
	if len(input.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order must contain at least one item")
	}
	if input.TotalAmount < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "total amount must not be negative")
	}

	subtotal := decimal.Zero
	for i, item := range input.Items {
		if !validDocID(item.ProductID) {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("items[%d]: product id is invalid", i))
		}
		if item.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("items[%d]: quantity must be positive", i))
		}
		if item.ProductPrice < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("items[%d]: price must not be negative", i))
		}
		subtotal = subtotal.Add(decimal.NewFromFloat(item.ProductPrice).Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	if decimal.NewFromFloat(input.TotalAmount).LessThan(subtotal) {
		return pkgerrors.New(pkgerrors.CodeValidation, "total amount is below the item subtotal").
			WithDetails(map[string]string{"subtotal": subtotal.String()})
	}
	if !input.PickupOrder && strings.TrimSpace(input.ShippingAddress.FullAddress) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping address is required")
	}
	return nil
}
