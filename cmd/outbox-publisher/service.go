package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/javery-app/javery-backend/pkg/config"
	"github.com/javery-app/javery-backend/pkg/enums"
	"github.com/javery-app/javery-backend/pkg/logger"
	"github.com/javery-app/javery-backend/pkg/metrics"
	"github.com/javery-app/javery-backend/pkg/outbox"
	"github.com/javery-app/javery-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize   = 50
	defaultPollMs      = 500
	defaultMaxAttempts = 10
	publishTimeout     = 15 * time.Second
	maxBackoff         = 10 * time.Second
	jitterWindow       = 250 * time.Millisecond
)

type pinger interface {
	Ping(context.Context) error
}

type topicSource interface {
	pinger
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchPending(ctx context.Context, limit int) ([]outbox.Event, error)
	MarkPublished(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, event outbox.Event, cause error) error
	MarkTerminal(ctx context.Context, event outbox.Event, cause error, entry outbox.DLQEntry) error
}

type eventResolver interface {
	Resolve(outbox.Event) (*registry.ResolvedEvent, error)
}

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
	Stop()
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type ServiceParams struct {
	Config        *config.Config
	Logger        *logger.Logger
	Store         pinger
	PubSub        topicSource
	Repository    outboxRepository
	Registry      eventResolver
	Metrics       *metrics.OutboxMetrics
	// OpenPublisher overrides how a topic handle is built. Defaults to an
	// ordered publisher on PubSub.
	OpenPublisher func(topic string) publisher
}

type settings struct {
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

func settingsFrom(cfg config.OutboxConfig) settings {
	s := settings{
		batchSize:    cfg.BatchSize,
		maxAttempts:  cfg.MaxAttempts,
		pollInterval: time.Duration(cfg.PollIntervalMS) * time.Millisecond,
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultBatchSize
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultMaxAttempts
	}
	if s.pollInterval <= 0 {
		s.pollInterval = defaultPollMs * time.Millisecond
	}
	return s
}

// Service drains pending outbox documents onto Pub/Sub. Delivery is at
// least once: a crash between publish and MarkPublished republishes the
// event, and consumers dedupe on the envelope event id. Messages carry the
// order id as ordering key so one order's events reach the topic in the
// order they were committed.
type Service struct {
	logg       *logger.Logger
	store      pinger
	pubsub     topicSource
	repo       outboxRepository
	registry   eventResolver
	metrics    *metrics.OutboxMetrics
	publishers *topicPublishers
	settings   settings
	now        func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.Store == nil:
		return nil, errors.New("document store is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	}

	open := params.OpenPublisher
	if open == nil {
		source := params.PubSub
		open = func(topic string) publisher { return orderedPublisher(source.Publisher(topic)) }
	}

	return &Service{
		logg:       params.Logger,
		store:      params.Store,
		pubsub:     params.PubSub,
		repo:       params.Repository,
		registry:   params.Registry,
		metrics:    params.Metrics,
		publishers: newTopicPublishers(open),
		settings:   settingsFrom(params.Config.Outbox),
		now:        time.Now,
	}, nil
}

// Run polls until ctx is done. A page that moved at least one event is
// followed immediately by the next; an idle page waits one poll interval;
// a store error backs off exponentially up to maxBackoff.
func (s *Service) Run(ctx context.Context) error {
	deps := []struct {
		name string
		dep  pinger
	}{{"store", s.store}, {"pubsub", s.pubsub}}
	for _, d := range deps {
		if err := d.dep.Ping(ctx); err != nil {
			s.logg.Error(ctx, d.name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", d.name, err)
		}
	}
	defer s.publishers.stopAll()

	base := s.settings.pollInterval
	wait := base
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}

		progressed, err := s.processBatch(ctx)
		if err != nil {
			s.logg.Error(ctx, "outbox publisher batch error", err)
			wait = nextBackoff(wait, base, maxBackoff)
		} else {
			wait = base
			if progressed {
				continue
			}
		}

		if err := sleepCtx(ctx, withJitter(wait)); err != nil {
			return err
		}
	}
}

type outcome int

const (
	outcomeRetry outcome = iota
	outcomePublished
	outcomeParked
)

// processBatch publishes one page of pending events. It reports true when at
// least one event left the pending queue, so a page of failures still backs
// off before the next attempt.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	events, err := s.repo.FetchPending(ctx, s.settings.batchSize)
	if err != nil {
		return false, fmt.Errorf("fetch pending: %w", err)
	}
	progressed := false
	for _, event := range events {
		result, err := s.publishEvent(ctx, event)
		if err != nil {
			return progressed, err
		}
		if result != outcomeRetry {
			progressed = true
		}
	}
	return progressed, nil
}

// publishEvent only returns errors from the store; publish failures are
// recorded on the event.
func (s *Service) publishEvent(ctx context.Context, event outbox.Event) (outcome, error) {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return outcomeParked, s.park(ctx, event, enums.OutboxDLQReasonNonRetryable, err, s.eventFields(event, nil))
	}
	fields := s.eventFields(event, resolved)

	started := s.now()
	sendErr := s.send(ctx, event, resolved)
	s.metrics.ObservePublish(resolved.Descriptor.Topic, s.now().Sub(started))

	var nonRetryable registry.NonRetryableError
	switch {
	case sendErr == nil:
		if err := s.repo.MarkPublished(ctx, event.ID); err != nil {
			return outcomeRetry, fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.metrics.IncEvent(string(event.EventType), metrics.OutboxPublished)
		s.logg.Info(s.logg.WithFields(ctx, fields), "outbox event published")
		return outcomePublished, nil

	case errors.As(sendErr, &nonRetryable):
		return outcomeParked, s.park(ctx, event, enums.OutboxDLQReasonNonRetryable, sendErr, fields)

	case event.AttemptCount+1 >= s.settings.maxAttempts:
		fields["attempt_count"] = event.AttemptCount + 1
		cause := fmt.Errorf("max publish attempts reached: %w", sendErr)
		return outcomeParked, s.park(ctx, event, enums.OutboxDLQReasonMaxAttempts, cause, fields)

	default:
		fields["attempt_count"] = event.AttemptCount + 1
		fields["error"] = sendErr.Error()
		s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox publish failed, will retry")
		if err := s.repo.MarkFailed(ctx, event, sendErr); err != nil {
			return outcomeRetry, fmt.Errorf("mark failure %s: %w", event.ID, err)
		}
		s.metrics.IncEvent(string(event.EventType), metrics.OutboxRetried)
		return outcomeRetry, nil
	}
}

// park moves the event to the dead-letter collection.
func (s *Service) park(ctx context.Context, event outbox.Event, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) error {
	fields["error_reason"] = reason
	fields["error"] = cause.Error()
	s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox event will not be retried")

	entry := outbox.NewDLQEntry(event, reason, cause, s.now())
	if err := s.repo.MarkTerminal(ctx, event, cause, entry); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	s.metrics.IncEvent(string(event.EventType), metrics.OutboxDeadLettered)
	return nil
}

func (s *Service) send(ctx context.Context, event outbox.Event, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publishers.get(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, &gcppubsub.Message{
		Data:        []byte(event.Payload),
		OrderingKey: event.AggregateID,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID,
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	})
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(publishCtx)
	return err
}

func (s *Service) eventFields(event outbox.Event, resolved *registry.ResolvedEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID,
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID,
		"attempt_count":  event.AttemptCount,
	}
	if resolved != nil {
		fields["topic"] = resolved.Descriptor.Topic
		fields["event_id"] = resolved.Envelope.EventID
		fields["occurred_at"] = resolved.Envelope.OccurredAt.Format(time.RFC3339Nano)
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

// topicPublishers keeps one publisher per topic for the life of Run. A GCP
// publisher owns batching goroutines, so handles are reused and stopped on
// shutdown rather than opened per message.
type topicPublishers struct {
	mu      sync.Mutex
	open    func(topic string) publisher
	byTopic map[string]publisher
}

func newTopicPublishers(open func(topic string) publisher) *topicPublishers {
	return &topicPublishers{open: open, byTopic: map[string]publisher{}}
}

func (t *topicPublishers) get(topic string) publisher {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.byTopic[topic]; ok {
		return p
	}
	p := t.open(topic)
	if p != nil {
		t.byTopic[topic] = p
	}
	return p
}

// stopAll flushes and stops every open publisher.
func (t *topicPublishers) stopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for topic, p := range t.byTopic {
		p.Stop()
		delete(t.byTopic, topic)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, ceiling time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	return min(current*2, ceiling)
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}

// gcpPublisher adapts a Pub/Sub publisher with message ordering enabled.
// A failed publish pauses its ordering key, so the key is resumed before
// the error is reported and the next attempt can go through.
type gcpPublisher struct {
	p *gcppubsub.Publisher
}

func orderedPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	p.EnableMessageOrdering = true
	return &gcpPublisher{p: p}
}

func (g *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return &gcpResult{res: g.p.Publish(ctx, msg), pub: g.p, key: msg.OrderingKey}
}

func (g *gcpPublisher) Stop() { g.p.Stop() }

type gcpResult struct {
	res *gcppubsub.PublishResult
	pub *gcppubsub.Publisher
	key string
}

func (r *gcpResult) Get(ctx context.Context) (string, error) {
	id, err := r.res.Get(ctx)
	if err != nil && r.key != "" {
		r.pub.ResumePublish(r.key)
	}
	return id, err
}
