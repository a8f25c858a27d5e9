package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/javery-app/javery-backend/pkg/docstore"
	"github.com/javery-app/javery-backend/pkg/enums"
)

// DLQEntry is a parked event at outbox_dlq/{eventId}.
type DLQEntry struct {
	EventID       string                     `firestore:"eventId" json:"eventId"`
	EventType     enums.OutboxEventType      `firestore:"eventType" json:"eventType"`
	AggregateType enums.OutboxAggregateType  `firestore:"aggregateType" json:"aggregateType"`
	AggregateID   string                     `firestore:"aggregateId" json:"aggregateId"`
	Payload       string                     `firestore:"payload" json:"payload"`
	ErrorReason   enums.OutboxDLQErrorReason `firestore:"errorReason" json:"errorReason"`
	ErrorMessage  string                     `firestore:"errorMessage" json:"errorMessage"`
	AttemptCount  int                        `firestore:"attemptCount" json:"attemptCount"`
	FailedAt      time.Time                  `firestore:"failedAt" json:"failedAt"`
}

// NewDLQEntry snapshots an event that will not be retried.
func NewDLQEntry(event Event, reason enums.OutboxDLQErrorReason, cause error, failedAt time.Time) DLQEntry {
	return DLQEntry{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  truncateError(cause),
		AttemptCount:  event.AttemptCount,
		FailedAt:      failedAt.UTC(),
	}
}

func (e DLQEntry) op() docstore.Op {
	return docstore.Set(docstore.Doc(DLQCollection, e.EventID), docstore.Fields{
		"eventId":       e.EventID,
		"eventType":     string(e.EventType),
		"aggregateType": string(e.AggregateType),
		"aggregateId":   e.AggregateID,
		"payload":       e.Payload,
		"errorReason":   string(e.ErrorReason),
		"errorMessage":  e.ErrorMessage,
		"attemptCount":  e.AttemptCount,
		"failedAt":      e.FailedAt,
	})
}

type DLQRepository struct {
	store docstore.Store
}

func NewDLQRepository(store docstore.Store) (*DLQRepository, error) {
	if store == nil {
		return nil, errors.New("document store required")
	}
	return &DLQRepository{store: store}, nil
}

// FindByEventID returns nil when the event was never parked.
func (r *DLQRepository) FindByEventID(ctx context.Context, eventID string) (*DLQEntry, error) {
	snap, err := r.store.Get(ctx, docstore.Doc(DLQCollection, eventID))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entry DLQEntry
	if err := snap.DataTo(&entry); err != nil {
		return nil, fmt.Errorf("decode dlq entry %s: %w", eventID, err)
	}
	return &entry, nil
}

// List returns the most recently parked events first.
func (r *DLQRepository) List(ctx context.Context, limit int) ([]DLQEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	snaps, err := r.store.Query(ctx, docstore.Query{
		Collection: DLQCollection,
		OrderBy:    "failedAt",
		Direction:  docstore.Desc,
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}
	entries := make([]DLQEntry, 0, len(snaps))
	for _, snap := range snaps {
		var entry DLQEntry
		if err := snap.DataTo(&entry); err != nil {
			return nil, fmt.Errorf("decode dlq entry %s: %w", snap.Ref.ID, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
