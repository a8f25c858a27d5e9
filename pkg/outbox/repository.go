package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/javery-app/javery-backend/pkg/docstore"
	"github.com/javery-app/javery-backend/pkg/enums"
)

const maxLastErrorLen = 1024

// Repository reads and updates outbox documents for the publisher and the
// retention job.
type Repository struct {
	store docstore.Store
}

func NewRepository(store docstore.Store) (*Repository, error) {
	if store == nil {
		return nil, errors.New("document store required")
	}
	return &Repository{store: store}, nil
}

// FetchPending returns the oldest unpublished events.
func (r *Repository) FetchPending(ctx context.Context, limit int) ([]Event, error) {
	snaps, err := r.store.Query(ctx, docstore.Query{
		Collection: Collection,
		Filters:    []docstore.Filter{{Field: "status", Value: string(enums.OutboxStatusPending)}},
		OrderBy:    "createdAt",
		Direction:  docstore.Asc,
		Limit:      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch pending outbox events: %w", err)
	}
	return decodeEvents(snaps)
}

// Get reads a single event.
func (r *Repository) Get(ctx context.Context, id string) (*Event, error) {
	snap, err := r.store.Get(ctx, docstore.Doc(Collection, id))
	if err != nil {
		return nil, err
	}
	var event Event
	if err := snap.DataTo(&event); err != nil {
		return nil, fmt.Errorf("decode outbox event %s: %w", id, err)
	}
	return &event, nil
}

func (r *Repository) MarkPublished(ctx context.Context, id string) error {
	return r.store.Batch(ctx, docstore.Update(docstore.Doc(Collection, id), docstore.Fields{
		"status":      string(enums.OutboxStatusPublished),
		"publishedAt": docstore.ServerTimestamp,
	}))
}

// MarkFailed records a retryable publish failure.
func (r *Repository) MarkFailed(ctx context.Context, event Event, cause error) error {
	return r.store.Batch(ctx, docstore.Update(docstore.Doc(Collection, event.ID), docstore.Fields{
		"attemptCount": event.AttemptCount + 1,
		"lastError":    truncateError(cause),
	}))
}

// MarkTerminal parks the event in the dead letter collection and flags it
// failed in one atomic write.
func (r *Repository) MarkTerminal(ctx context.Context, event Event, cause error, entry DLQEntry) error {
	return r.store.Batch(ctx,
		docstore.Update(docstore.Doc(Collection, event.ID), docstore.Fields{
			"status":       string(enums.OutboxStatusFailed),
			"attemptCount": event.AttemptCount + 1,
			"lastError":    truncateError(cause),
		}),
		entry.op(),
	)
}

// DeletePublishedBefore removes up to limit published events older than
// cutoff and reports how many were deleted.
func (r *Repository) DeletePublishedBefore(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	snaps, err := r.store.Query(ctx, docstore.Query{
		Collection: Collection,
		Filters:    []docstore.Filter{{Field: "status", Value: string(enums.OutboxStatusPublished)}},
		OrderBy:    "publishedAt",
		Direction:  docstore.Asc,
		Limit:      limit,
	})
	if err != nil {
		return 0, fmt.Errorf("query published outbox events: %w", err)
	}
	events, err := decodeEvents(snaps)
	if err != nil {
		return 0, err
	}

	ops := make([]docstore.Op, 0, len(events))
	for _, event := range events {
		if event.PublishedAt == nil || !event.PublishedAt.Before(cutoff) {
			break
		}
		ops = append(ops, docstore.Delete(docstore.Doc(Collection, event.ID)))
	}
	if len(ops) == 0 {
		return 0, nil
	}
	if err := r.store.Batch(ctx, ops...); err != nil {
		return 0, fmt.Errorf("delete published outbox events: %w", err)
	}
	return len(ops), nil
}

func decodeEvents(snaps []*docstore.Snapshot) ([]Event, error) {
	events := make([]Event, 0, len(snaps))
	for _, snap := range snaps {
		var event Event
		if err := snap.DataTo(&event); err != nil {
			return nil, fmt.Errorf("decode outbox event %s: %w", snap.Ref.ID, err)
		}
		if event.ID == "" {
			event.ID = snap.Ref.ID
		}
		events = append(events, event)
	}
	return events, nil
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > maxLastErrorLen {
		return msg[:maxLastErrorLen]
	}
	return msg
}
