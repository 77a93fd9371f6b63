package outbox

import (
	"context"
	"fmt"
	"time"

	"eventsync/internal/common/metrics"
	"eventsync/internal/domain/events"
	"eventsync/internal/domain/topics"
	"eventsync/internal/infrastructure/eventbus"

	"go.uber.org/zap"
)

const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultBatchSize    = 100
)

// Publisher is satisfied by *eventbus.Publisher.
type Publisher interface {
	Publish(ctx context.Context, topic topics.Name, env events.Envelope) (eventbus.Ack, error)
}

// Forwarder publishes outbox records in insertion order. It stops a batch
// at the first retryable failure so later events never overtake an earlier
// one.
// A crash between publish and MarkForwarded publishes the record again.
type Forwarder struct {
	store     Store
	publisher Publisher
	codec     *events.Codec
	batchSize int
	log       *zap.SugaredLogger
	metrics   *metrics.Metrics
}

func NewForwarder(store Store, publisher Publisher, codec *events.Codec, batchSize int, log *zap.SugaredLogger, m *metrics.Metrics) *Forwarder {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Forwarder{
		store:     store,
		publisher: publisher,
		codec:     codec,
		batchSize: batchSize,
		log:       log,
		metrics:   m,
	}
}

// ForwardOnce publishes one batch and returns how many records left the
// outbox, forwarded or parked. Records that can never be published are
// parked so they do not hold back the rest.
func (f *Forwarder) ForwardOnce(ctx context.Context) (int, error) {
	records, err := f.store.Pending(ctx, f.batchSize)
	if err != nil {
		return 0, err
	}
	f.metrics.SetOutboxBatch(len(records))

	for i, rec := range records {
		env, err := f.codec.Decode(rec.Value)
		if err != nil {
			if err := f.park(ctx, rec, fmt.Errorf("not a valid envelope: %w", err)); err != nil {
				return i, err
			}
			continue
		}

		_, err = f.publisher.Publish(ctx, rec.Topic, env)
		if unpublishable(err) {
			if err := f.park(ctx, rec, err); err != nil {
				return i, err
			}
			continue
		}
		f.metrics.IncOutboxForwarded(err)
		if err != nil {
			return i, fmt.Errorf("failed to forward outbox record %d: %w", rec.ID, err)
		}

		if err := f.store.MarkForwarded(ctx, rec.ID); err != nil {
			return i, err
		}
		f.log.Debugw("outbox record forwarded", "id", rec.ID, "topic", rec.Topic, "event_id", rec.EventID)
	}
	return len(records), nil
}

func (f *Forwarder) park(ctx context.Context, rec Record, cause error) error {
	f.log.Errorw("parking outbox record that cannot be published",
		"id", rec.ID,
		"topic", rec.Topic,
		"event_id", rec.EventID,
		"key", rec.Key,
		"error", cause,
	)
	f.metrics.IncOutboxParked()
	return f.store.MarkFailed(ctx, rec.ID, cause.Error())
}

// unpublishable reports publish failures that retrying cannot fix.
func unpublishable(err error) bool {
	return eventbus.IsReason(err, eventbus.ReasonInvalidEnvelope) ||
		eventbus.IsReason(err, eventbus.ReasonUnknownTopic) ||
		eventbus.IsReason(err, eventbus.ReasonSerialization)
}

// Run forwards until ctx is done. Full batches are followed immediately by
// the next one.
func (f *Forwarder) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	f.log.Infow("outbox forwarder started", "interval", interval, "batch_size", f.batchSize)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			f.log.Infow("outbox forwarder stopped")
			return nil
		case <-timer.C:
		}

		n, err := f.ForwardOnce(ctx)
		if err != nil && ctx.Err() == nil {
			f.log.Warnw("outbox forwarding interrupted", "forwarded", n, "error", err)
		}

		next := interval
		if err == nil && n == f.batchSize {
			next = 0
		}
		timer.Reset(next)
	}
}
