package outbox

import (
	"strings"
	"time"

	"github.com/javery-app/javery-backend/pkg/enums"
)

const (
	// Collection holds pending and published events.
	Collection = "outbox_events"
	// DLQCollection holds events that will never be published.
	DLQCollection = "outbox_dlq"
)

// Event is an outbox document as stored at outbox_events/{id}.
type Event struct {
	ID            string                    `firestore:"id" json:"id"`
	EventType     enums.OutboxEventType     `firestore:"eventType" json:"eventType"`
	AggregateType enums.OutboxAggregateType `firestore:"aggregateType" json:"aggregateType"`
	AggregateID   string                    `firestore:"aggregateId" json:"aggregateId"`
	Payload       string                    `firestore:"payload" json:"payload"`
	Status        enums.OutboxStatus        `firestore:"status" json:"status"`
	AttemptCount  int                       `firestore:"attemptCount" json:"attemptCount"`
	LastError     *string                   `firestore:"lastError" json:"lastError,omitempty"`
	CreatedAt     time.Time                 `firestore:"createdAt" json:"createdAt"`
	PublishedAt   *time.Time                `firestore:"publishedAt" json:"publishedAt,omitempty"`
}

// EventID derives the document id of an event from its aggregate and the
// transition it records. Order statuses never repeat, so the id is unique per
// transition and a replayed write collides instead of duplicating.
func EventID(aggregateID string, transition ...string) string {
	parts := append([]string{aggregateID}, transition...)
	return strings.Join(parts, "_")
}
