package journalstore

import (
	"context"
	"sync"

	"eventsync/internal/domain/ledger"
	"eventsync/internal/infrastructure/outbox"

	"github.com/google/uuid"
)

// MemoryStore keeps entries in process and hands follow-ups to an
// in-memory outbox.
type MemoryStore struct {
	outbox *outbox.MemoryStore

	mu      sync.Mutex
	entries map[uuid.UUID]*ledger.Entry
}

func NewMemoryStore(ob *outbox.MemoryStore) *MemoryStore {
	return &MemoryStore{
		outbox:  ob,
		entries: make(map[uuid.UUID]*ledger.Entry),
	}
}

func (s *MemoryStore) Post(ctx context.Context, entry *ledger.Entry, follow *FollowUp) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[entry.ID()]; exists {
		return false, nil
	}
	if follow != nil && s.outbox != nil {
		if err := s.outbox.Add(ctx, follow.Topic, follow.Envelope); err != nil {
			return false, err
		}
	}
	s.entries[entry.ID()] = entry
	return true, nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*ledger.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return entry, nil
}

// Len counts stored entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
