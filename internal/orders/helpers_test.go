package orders

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/javery-app/javery-backend/internal/cart"
	"github.com/javery-app/javery-backend/pkg/db"
	"github.com/javery-app/javery-backend/pkg/docstore"
	"github.com/javery-app/javery-backend/pkg/enums"
	"github.com/javery-app/javery-backend/pkg/logger"
	"github.com/javery-app/javery-backend/pkg/outbox"
)

var baseTime = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// countingStore counts committed writes to the orders collection and can be
// told to fail transactions or hand out fixed ids.
type countingStore struct {
	docstore.Store

	mu          sync.Mutex
	orderWrites int
	failTx      error
	nextID      string
}

func (c *countingStore) NewID(collection string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nextID != "" {
		id := c.nextID
		c.nextID = ""
		return id
	}
	return c.Store.NewID(collection)
}

func (c *countingStore) Batch(ctx context.Context, ops ...docstore.Op) error {
	return c.RunTransaction(ctx, func(_ context.Context, tx docstore.Tx) error {
		return tx.Apply(ops...)
	})
}

func (c *countingStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx docstore.Tx) error) error {
	c.mu.Lock()
	failure := c.failTx
	c.mu.Unlock()
	if failure != nil {
		return failure
	}

	var attemptWrites int
	err := c.Store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		attemptWrites = 0
		return fn(ctx, &countingTx{Tx: tx, writes: &attemptWrites})
	})
	if err == nil {
		c.mu.Lock()
		c.orderWrites += attemptWrites
		c.mu.Unlock()
	}
	return err
}

func (c *countingStore) OrderWrites() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.orderWrites
}

func (c *countingStore) FailTransactions(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failTx = err
}

type countingTx struct {
	docstore.Tx
	writes *int
}

func (t *countingTx) Apply(ops ...docstore.Op) error {
	for _, op := range ops {
		if op.Ref.Collection == Collection {
			*t.writes++
		}
	}
	return t.Tx.Apply(ops...)
}

type fixture struct {
	svc   Service
	store *countingStore
	clock *testClock
	cart  cart.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client, err := db.OpenSQLiteMemory(uuid.NewString())
	require.NoError(t, err)

	clock := &testClock{now: baseTime}
	sqlStore, err := docstore.NewSQL(client, docstore.WithClock(clock.Now))
	require.NoError(t, err)
	require.NoError(t, sqlStore.EnsureSchema(context.Background()))
	t.Cleanup(func() { _ = sqlStore.Close() })

	store := &countingStore{Store: sqlStore}
	svc, err := NewService(store, outbox.NewService(logger.Nop()), logger.Nop(), WithClock(clock.Now))
	require.NoError(t, err)

	cartSvc, err := cart.NewService(store)
	require.NoError(t, err)

	return &fixture{svc: svc, store: store, clock: clock, cart: cartSvc}
}

func (f *fixture) createOrder(t *testing.T, buyer string) string {
	t.Helper()
	id, err := f.svc.CreateOrder(context.Background(), scenarioInput(buyer))
	require.NoError(t, err)
	return id
}

// moveTo walks a fresh order along the happy path up to status.
func (f *fixture) moveTo(t *testing.T, orderID string, status enums.OrderStatus) {
	t.Helper()
	path := []enums.OrderStatus{enums.OrderStatusProcessing, enums.OrderStatusDelivering, enums.OrderStatusCompleted}
	for _, next := range path {
		_, err := f.svc.UpdateOrderStatus(context.Background(), UpdateStatusInput{OrderID: orderID, Status: next, ActorUID: "seller-1"})
		require.NoError(t, err)
		if next == status {
			return
		}
	}
}

func (f *fixture) events(t *testing.T, orderID string) []outbox.Event {
	t.Helper()
	snaps, err := f.store.Query(context.Background(), docstore.Query{
		Collection: outbox.Collection,
		Filters:    []docstore.Filter{{Field: "aggregateId", Value: orderID}},
		OrderBy:    "createdAt",
	})
	require.NoError(t, err)
	out := make([]outbox.Event, 0, len(snaps))
	for _, snap := range snaps {
		var event outbox.Event
		require.NoError(t, snap.DataTo(&event))
		out = append(out, event)
	}
	return out
}

func scenarioInput(buyer string) CreateOrderInput {
	return CreateOrderInput{
		BuyerUID:   buyer,
		BuyerName:  "Budi",
		SellerUID:  "seller-1",
		SellerName: "Warung Sari",
		Items: []Item{
			{ProductID: "p1", ProductName: "Kopi Susu", ProductPrice: 10000, Quantity: 2, SellerUID: "seller-1", SellerName: "Warung Sari"},
			{ProductID: "p2", ProductName: "Roti Bakar", ProductPrice: 5000, Quantity: 1, SellerUID: "seller-1", SellerName: "Warung Sari"},
		},
		TotalAmount: 25000,
		ShippingAddress: ShippingAddress{
			Name:          "Home",
			RecipientName: "Budi",
			PhoneNumber:   "08123456789",
			FullAddress:   "Jl. Merdeka No. 1, Jakarta",
		},
	}
}
