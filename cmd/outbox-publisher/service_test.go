package main

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javery-app/javery-backend/pkg/config"
	"github.com/javery-app/javery-backend/pkg/db"
	"github.com/javery-app/javery-backend/pkg/docstore"
	"github.com/javery-app/javery-backend/pkg/enums"
	"github.com/javery-app/javery-backend/pkg/logger"
	"github.com/javery-app/javery-backend/pkg/metrics"
	"github.com/javery-app/javery-backend/pkg/outbox"
	"github.com/javery-app/javery-backend/pkg/outbox/payloads"
	"github.com/javery-app/javery-backend/pkg/outbox/registry"
)

type harness struct {
	store *docstore.SQLStore
	repo  *outbox.Repository
	dlq   *outbox.DLQRepository
	emit  *outbox.Service
	pub   *fakePublisher
	svc   *Service
}

func newHarness(t *testing.T, maxAttempts int) *harness {
	t.Helper()
	client, err := db.OpenSQLiteMemory(uuid.NewString())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	store, err := docstore.NewSQL(client)
	require.NoError(t, err)
	require.NoError(t, store.EnsureSchema(context.Background()))

	repo, err := outbox.NewRepository(store)
	require.NoError(t, err)
	dlq, err := outbox.NewDLQRepository(store)
	require.NoError(t, err)

	cfg := &config.Config{
		PubSub: config.PubSubConfig{OrdersTopic: "orders-topic"},
		Outbox: config.OutboxConfig{BatchSize: 10, PollIntervalMS: 10, MaxAttempts: maxAttempts},
	}
	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	require.NoError(t, err)

	pub := &fakePublisher{}
	svc, err := NewService(ServiceParams{
		Config:     cfg,
		Logger:     logger.Nop(),
		Store:      store,
		PubSub:     &fakePubSubClient{},
		Repository: repo,
		Registry:   eventRegistry,
		OpenPublisher: func(topic string) publisher {
			if topic != "orders-topic" {
				return nil
			}
			return pub
		},
	})
	require.NoError(t, err)
	return &harness{store: store, repo: repo, dlq: dlq, emit: outbox.NewService(nil), pub: pub, svc: svc}
}

func (h *harness) queue(t *testing.T, orderID string) string {
	t.Helper()
	id := outbox.EventID(orderID, "created")
	op, err := h.emit.Op(context.Background(), outbox.DomainEvent{
		EventID:       id,
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Data: payloads.OrderCreatedEvent{
			OrderID:   orderID,
			BuyerUID:  "buyer-1",
			SellerUID: "seller-1",
		},
	})
	require.NoError(t, err)
	require.NoError(t, h.store.Batch(context.Background(), op))
	return id
}

func TestProcessBatchPublishesPendingEvents(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 5)
	id := h.queue(t, "o1")

	processed, err := h.svc.processBatch(ctx)
	require.NoError(t, err)
	assert.True(t, processed)

	require.Len(t, h.pub.sent, 1)
	msg := h.pub.sent[0]
	assert.Equal(t, id, msg.Attributes["event_id"])
	assert.Equal(t, string(enums.EventOrderCreated), msg.Attributes["event_type"])
	assert.Equal(t, string(enums.AggregateOrder), msg.Attributes["aggregate_type"])
	assert.Equal(t, "o1", msg.Attributes["aggregate_id"])
	assert.Equal(t, "o1", msg.OrderingKey)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(msg.Data, &envelope))
	assert.Equal(t, id, envelope.EventID)
	assert.JSONEq(t, `{"orderId":"o1","buyerUid":"buyer-1","buyerName":"","sellerUid":"seller-1","sellerName":"","totalAmount":0,"itemCount":0,"pickupOrder":false}`, string(envelope.Data))

	event, err := h.repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, enums.OutboxStatusPublished, event.Status)

	processed, err = h.svc.processBatch(ctx)
	require.NoError(t, err)
	assert.False(t, processed, "nothing left to publish")
}

func TestProcessBatchContinuesAfterFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 5)
	first := h.queue(t, "o1")
	second := h.queue(t, "o2")
	h.pub.errs = []error{errors.New("transient"), nil}

	processed, err := h.svc.processBatch(ctx)
	require.NoError(t, err)
	assert.True(t, processed)

	failed, err := h.repo.Get(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, enums.OutboxStatusPending, failed.Status)
	assert.Equal(t, 1, failed.AttemptCount)
	require.NotNil(t, failed.LastError)
	assert.Equal(t, "transient", *failed.LastError)

	published, err := h.repo.Get(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, enums.OutboxStatusPublished, published.Status)
}

func TestProcessBatchOnlyFailuresReportsNoProgress(t *testing.T) {
	h := newHarness(t, 5)
	h.queue(t, "o1")
	h.pub.errs = []error{errors.New("unavailable")}

	processed, err := h.svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestProcessBatchParksEventAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 2)
	id := h.queue(t, "o1")
	h.pub.errs = []error{errors.New("transient"), errors.New("transient")}

	_, err := h.svc.processBatch(ctx)
	require.NoError(t, err)
	_, err = h.svc.processBatch(ctx)
	require.NoError(t, err)

	entry, err := h.dlq.FindByEventID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, entry.ErrorReason)

	pending, err := h.repo.FetchPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestProcessBatchParksUnresolvableEvent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 5)
	require.NoError(t, h.store.Batch(ctx, docstore.Create(docstore.Doc(outbox.Collection, "bad_created"), docstore.Fields{
		"id":            "bad_created",
		"eventType":     string(enums.EventOrderCreated),
		"aggregateType": string(enums.AggregateOrder),
		"aggregateId":   "bad",
		"payload":       "not json",
		"status":        string(enums.OutboxStatusPending),
		"attemptCount":  0,
		"createdAt":     docstore.ServerTimestamp,
	})))

	processed, err := h.svc.processBatch(ctx)
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Empty(t, h.pub.sent)

	entry, err := h.dlq.FindByEventID(ctx, "bad_created")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, entry.ErrorReason)
}

func TestProcessBatchParksEventWithoutPublisher(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 5)
	id := h.queue(t, "o1")
	h.svc.publishers = newTopicPublishers(func(string) publisher { return nil })

	_, err := h.svc.processBatch(ctx)
	require.NoError(t, err)

	entry, err := h.dlq.FindByEventID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, entry.ErrorReason)
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t, 5)
	h.queue(t, "o1")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.svc.Run(ctx) }()

	require.Eventually(t, func() bool { return h.pub.count() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("publisher did not stop")
	}
	assert.True(t, h.pub.isStopped(), "topic publishers are stopped on shutdown")
}

func TestTopicPublishersOpenOncePerTopic(t *testing.T) {
	opened := map[string]int{}
	pubs := newTopicPublishers(func(topic string) publisher {
		opened[topic]++
		if topic == "missing" {
			return nil
		}
		return &fakePublisher{}
	})

	first := pubs.get("orders")
	assert.Same(t, first, pubs.get("orders"))
	assert.Nil(t, pubs.get("missing"))
	assert.Nil(t, pubs.get("missing"))
	assert.Equal(t, map[string]int{"orders": 1, "missing": 2}, opened)

	pubs.stopAll()
	assert.True(t, first.(*fakePublisher).isStopped())
	assert.NotSame(t, first, pubs.get("orders"))
}

func TestProcessBatchRecordsOutcomeMetrics(t *testing.T) {
	h := newHarness(t, 5)
	reg := prometheus.NewRegistry()
	h.svc.metrics = metrics.NewOutboxMetrics(reg)
	h.queue(t, "o1")
	h.queue(t, "o2")
	h.pub.errs = []error{errors.New("transient"), nil}

	_, err := h.svc.processBatch(context.Background())
	require.NoError(t, err)

	expected := `
# HELP javery_outbox_events_total Outbox events handled by the publisher, by event type and outcome.
# TYPE javery_outbox_events_total counter
javery_outbox_events_total{event_type="order_created",outcome="published"} 1
javery_outbox_events_total{event_type="order_created",outcome="retried"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "javery_outbox_events_total"))
}

func TestRunFailsWhenPubSubUnavailable(t *testing.T) {
	h := newHarness(t, 5)
	h.svc.pubsub = &fakePubSubClient{err: errors.New("down")}
	err := h.svc.Run(context.Background())
	assert.ErrorContains(t, err, "pubsub ping failed")
}

func TestNextBackoffCaps(t *testing.T) {
	base := 100 * time.Millisecond
	assert.Equal(t, 200*time.Millisecond, nextBackoff(base, base, maxBackoff))
	assert.Equal(t, base*2, nextBackoff(0, base, maxBackoff))
	assert.Equal(t, maxBackoff, nextBackoff(8*time.Second, base, maxBackoff))

	jittered := withJitter(base)
	assert.GreaterOrEqual(t, jittered, base)
	assert.Less(t, jittered, base+jitterWindow)
	assert.Zero(t, withJitter(0))
}

type fakePubSubClient struct {
	err error
}

func (f *fakePubSubClient) Ping(context.Context) error { return f.err }

func (f *fakePubSubClient) Publisher(string) *gcppubsub.Publisher { return nil }

type fakePublisher struct {
	mu      sync.Mutex
	errs    []error
	sent    []*gcppubsub.Message
	stopped bool
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	var err error
	if len(f.errs) > 0 {
		err, f.errs = f.errs[0], f.errs[1:]
	}
	if err == nil {
		f.sent = append(f.sent, msg)
	}
	return fakePublishResult{err: err}
}

func (f *fakePublisher) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakePublisher) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "server-id", nil
}
