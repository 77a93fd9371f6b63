package eventbus

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"eventsync/internal/common/metrics"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Committer is satisfied by *kafka.Reader.
type Committer interface {
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type partitionKey struct {
	topic     string
	partition int
}

// OffsetManager collects finished messages and commits the highest offset
// per partition. Offsets only move forward: marking an older message after
// a newer one has no effect.
type OffsetManager struct {
	committer Committer
	log       *zap.SugaredLogger
	metrics   *metrics.Metrics

	mu        sync.Mutex
	pending   map[partitionKey]kafka.Message
	committed map[partitionKey]int64
}

func NewOffsetManager(committer Committer, log *zap.SugaredLogger, m *metrics.Metrics) *OffsetManager {
	return &OffsetManager{
		committer: committer,
		log:       log,
		metrics:   m,
		pending:   make(map[partitionKey]kafka.Message),
		committed: make(map[partitionKey]int64),
	}
}

// MarkDone records msg as finished. Only called once the message reached
// a committing state.
func (om *OffsetManager) MarkDone(msg kafka.Message) {
	key := partitionKey{topic: msg.Topic, partition: msg.Partition}

	om.mu.Lock()
	defer om.mu.Unlock()

	if last, ok := om.committed[key]; ok && msg.Offset <= last {
		return
	}
	if p, ok := om.pending[key]; ok && msg.Offset <= p.Offset {
		return
	}
	om.pending[key] = msg
}

// Commit sends the pending offsets to the group coordinator. On failure
// they stay pending for the next call.
func (om *OffsetManager) Commit(ctx context.Context) error {
	om.mu.Lock()
	if len(om.pending) == 0 {
		om.mu.Unlock()
		return nil
	}
	batch := make([]kafka.Message, 0, len(om.pending))
	for _, msg := range om.pending {
		batch = append(batch, msg)
	}
	om.mu.Unlock()

	sort.Slice(batch, func(i, j int) bool {
		if batch[i].Topic != batch[j].Topic {
			return batch[i].Topic < batch[j].Topic
		}
		return batch[i].Partition < batch[j].Partition
	})

	err := om.committer.CommitMessages(ctx, batch...)
	for _, msg := range batch {
		om.metrics.ObserveCommit(msg.Topic, msg.Partition, msg.Offset+1, err)
	}
	if err != nil {
		return fmt.Errorf("failed to commit %d partition offset(s): %w", len(batch), err)
	}

	om.mu.Lock()
	for _, msg := range batch {
		key := partitionKey{topic: msg.Topic, partition: msg.Partition}
		if last, ok := om.committed[key]; !ok || msg.Offset > last {
			om.committed[key] = msg.Offset
		}
		if p, ok := om.pending[key]; ok && p.Offset <= msg.Offset {
			delete(om.pending, key)
		}
	}
	om.mu.Unlock()

	om.log.Debugw("offsets committed", "partitions", len(batch))
	return nil
}

// Run commits every interval until ctx is done. The final flush is the
// caller's job.
func (om *OffsetManager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := om.Commit(ctx); err != nil && ctx.Err() == nil {
				om.log.Warnw("periodic offset commit failed", "error", err)
			}
		}
	}
}

// Committed returns the offset of the last committed message of a
// partition.
func (om *OffsetManager) Committed(topic string, partition int) (int64, bool) {
	om.mu.Lock()
	defer om.mu.Unlock()
	offset, ok := om.committed[partitionKey{topic: topic, partition: partition}]
	return offset, ok
}

// Pending reports how many partitions have uncommitted progress.
func (om *OffsetManager) Pending() int {
	om.mu.Lock()
	defer om.mu.Unlock()
	return len(om.pending)
}
