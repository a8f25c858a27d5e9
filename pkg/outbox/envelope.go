package outbox

import (
	"encoding/json"
	"time"
)

// ActorRef identifies who produced the event. System transitions such as the
// delivery timeout carry the role "system" and no user.
type ActorRef struct {
	UserID string `json:"userId,omitempty"`
	Role   string `json:"role,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored on outbox documents
// and published as the Pub/Sub message body.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
