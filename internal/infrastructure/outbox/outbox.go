package outbox

import (
	"context"
	"time"

	"eventsync/internal/domain/events"
	"eventsync/internal/domain/topics"
)

// Record is an event waiting to be published. Value is the encoded
// envelope, so the published bytes are the ones stored with the business
// change.
type Record struct {
	ID        int64
	Topic     topics.Name
	EventID   string
	Key       string
	Value     []byte
	CreatedAt time.Time
}

// Store holds outgoing events until the forwarder published them.
type Store interface {
	Add(ctx context.Context, topic topics.Name, env events.Envelope) error
	// Pending returns unforwarded records oldest first.
	Pending(ctx context.Context, limit int) ([]Record, error)
	MarkForwarded(ctx context.Context, id int64) error
	// MarkFailed parks a record that can never be published. Pending no
	// longer returns it; reason is kept for operators.
	MarkFailed(ctx context.Context, id int64, reason string) error
}
