package journalstore

import (
	"context"
	"errors"

	"eventsync/internal/domain/events"
	"eventsync/internal/domain/ledger"
	"eventsync/internal/domain/topics"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("journal entry not found")

// FollowUp is the event announcing a posted entry. It is stored in the
// outbox together with the entry.
type FollowUp struct {
	Topic    topics.Name
	Envelope events.Envelope
}

// Store persists journal entries. Entry ids are derived from the source
// document, so posting the same source twice is detected by id.
type Store interface {
	// Post stores entry and its follow-up atomically. It reports false,
	// storing nothing, when the entry exists already.
	Post(ctx context.Context, entry *ledger.Entry, follow *FollowUp) (bool, error)
	Get(ctx context.Context, id uuid.UUID) (*ledger.Entry, error)
}
