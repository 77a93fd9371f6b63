package dlq

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const maxMemoryEntries = 10000

// MemoryLog keeps dead letters in process. It backs services started
// without a database and the tests.
type MemoryLog struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]Entry
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{entries: make(map[uuid.UUID]Entry)}
}

func (ml *MemoryLog) Record(ctx context.Context, dl DeadLetter) error {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	if _, exists := ml.entries[dl.ID]; exists {
		return nil
	}
	if len(ml.entries) >= maxMemoryEntries {
		ml.evictOldest()
	}

	ml.entries[dl.ID] = Entry{
		ID:            dl.ID,
		DLQTopic:      dl.Topic(),
		OriginalTopic: dl.Message.Topic,
		Partition:     dl.Message.Partition,
		Offset:        dl.Message.Offset,
		ConsumerGroup: dl.ConsumerGroup,
		EventType:     dl.EventType,
		EventID:       dl.EventID,
		TenantID:      dl.TenantID,
		Key:           string(dl.Message.Key),
		Envelope:      append([]byte(nil), dl.Message.Value...),
		Attempts:      dl.Attempts,
		Reason:        dl.Reason,
		FailedAt:      dl.FailedAt,
		CreatedAt:     time.Now().UTC(),
	}
	return nil
}

// evictOldest must be called with the lock held.
func (ml *MemoryLog) evictOldest() {
	var oldest uuid.UUID
	var oldestAt time.Time
	for id, e := range ml.entries {
		if oldestAt.IsZero() || e.CreatedAt.Before(oldestAt) {
			oldest, oldestAt = id, e.CreatedAt
		}
	}
	delete(ml.entries, oldest)
}

func (ml *MemoryLog) ListUnresolved(ctx context.Context, limit int) ([]Entry, error) {
	ml.mu.RLock()
	defer ml.mu.RUnlock()

	out := make([]Entry, 0, len(ml.entries))
	for _, e := range ml.entries {
		if !e.Resolved {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (ml *MemoryLog) MarkResolved(ctx context.Context, id uuid.UUID) error {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	e, ok := ml.entries[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	e.Resolved = true
	e.ResolvedAt = &now
	ml.entries[id] = e
	return nil
}
