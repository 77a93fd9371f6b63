package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"eventsync/internal/domain/events"
	"eventsync/internal/domain/topics"
)

// MemoryStore is an in-process outbox for tests and database-less runs.
type MemoryStore struct {
	codec *events.Codec

	mu        sync.Mutex
	nextID    int64
	records   []Record
	forwarded map[int64]struct{}
	failed    map[int64]string
}

func NewMemoryStore(codec *events.Codec) *MemoryStore {
	return &MemoryStore{
		codec:     codec,
		forwarded: make(map[int64]struct{}),
		failed:    make(map[int64]string),
	}
}

func (s *MemoryStore) Add(ctx context.Context, topic topics.Name, env events.Envelope) error {
	rec, err := newRecord(s.codec, topic, env)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	rec.ID = s.nextID
	s.records = append(s.records, rec)
	return nil
}

func (s *MemoryStore) Pending(ctx context.Context, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Record
	for _, rec := range s.records {
		if _, done := s.forwarded[rec.ID]; done {
			continue
		}
		if _, parked := s.failed[rec.ID]; parked {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) MarkForwarded(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id <= 0 || id > s.nextID {
		return fmt.Errorf("outbox record %d not found", id)
	}
	s.forwarded[id] = struct{}{}
	return nil
}

func (s *MemoryStore) MarkFailed(ctx context.Context, id int64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id <= 0 || id > s.nextID {
		return fmt.Errorf("outbox record %d not found", id)
	}
	s.failed[id] = reason
	return nil
}

// Failed returns the reason a record was parked.
func (s *MemoryStore) Failed(id int64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reason, ok := s.failed[id]
	return reason, ok
}

// Len counts records still waiting to be forwarded.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records) - len(s.forwarded) - len(s.failed)
}

func newRecord(codec *events.Codec, topic topics.Name, env events.Envelope) (Record, error) {
	if env.EventID == "" {
		env.EventID = events.NewEventID()
	}
	value, err := codec.Encode(env)
	if err != nil {
		return Record{}, fmt.Errorf("failed to encode %s for outbox: %w", env.EventType, err)
	}
	return Record{
		Topic:     topic,
		EventID:   env.EventID,
		Key:       env.Key,
		Value:     value,
		CreatedAt: time.Now().UTC(),
	}, nil
}
