package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/javery-app/javery-backend/pkg/docstore"
	"github.com/javery-app/javery-backend/pkg/enums"
	"github.com/javery-app/javery-backend/pkg/logger"
)

const defaultEventVersion = 1

type DomainEvent struct {
	EventID       string
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   string
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

type Service struct {
	logg *logger.Logger
	now  func() time.Time
}

func NewService(logg *logger.Logger) *Service {
	return &Service{logg: logg, now: time.Now}
}

// Op renders the event as a create of its outbox document, ready to join the
// batch or transaction that performs the state change it describes.
func (s *Service) Op(ctx context.Context, event DomainEvent) (docstore.Op, error) {
	if event.EventID == "" {
		return docstore.Op{}, errors.New("event id required")
	}
	if !event.EventType.IsValid() {
		return docstore.Op{}, fmt.Errorf("unsupported event type %q", event.EventType)
	}
	if !event.AggregateType.IsValid() {
		return docstore.Op{}, fmt.Errorf("unsupported aggregate type %q", event.AggregateType)
	}
	if event.AggregateID == "" {
		return docstore.Op{}, errors.New("aggregate id required")
	}

	payload, err := json.Marshal(event.Data)
	if err != nil {
		return docstore.Op{}, fmt.Errorf("encode %s payload: %w", event.EventType, err)
	}
	if event.Version <= 0 {
		event.Version = defaultEventVersion
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}
	envelope := PayloadEnvelope{
		Version:    event.Version,
		EventID:    event.EventID,
		OccurredAt: event.OccurredAt.UTC(),
		Actor:      event.Actor,
		Data:       payload,
	}
	envelopeJSON, err := json.Marshal(envelope)
	if err != nil {
		return docstore.Op{}, err
	}

	op := docstore.Create(docstore.Doc(Collection, event.EventID), docstore.Fields{
		"id":            event.EventID,
		"eventType":     string(event.EventType),
		"aggregateType": string(event.AggregateType),
		"aggregateId":   event.AggregateID,
		"payload":       string(envelopeJSON),
		"status":        string(enums.OutboxStatusPending),
		"attemptCount":  0,
		"createdAt":     docstore.ServerTimestamp,
	})

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"event_id":       event.EventID,
			"event_type":     event.EventType,
			"aggregate_id":   event.AggregateID,
			"aggregate_type": event.AggregateType,
		})
		s.logg.Debug(logCtx, "outbox event built")
	}
	return op, nil
}

// Emit writes the event inside an open transaction.
func (s *Service) Emit(ctx context.Context, tx docstore.Tx, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	op, err := s.Op(ctx, event)
	if err != nil {
		return err
	}
	return tx.Apply(op)
}
