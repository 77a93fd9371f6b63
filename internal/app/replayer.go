package app

import (
	"context"
	"time"

	"eventsync/internal/common/configs"
	"eventsync/internal/domain/topics"
	"eventsync/internal/infrastructure/dlq"
	"eventsync/internal/infrastructure/eventbus"

	"go.uber.org/zap"
)

// replayIdleTimeout covers the consumer group join, which happens before
// the first fetch returns.
const replayIdleTimeout = 15 * time.Second

// Replayer joins the replay consumer group only for the duration of one
// replay, so idle service instances hold no DLQ partitions.
type Replayer struct {
	cfg    configs.Config
	topics []string
	writer dlq.MessageWriter
	log    *zap.SugaredLogger
}

// NewReplayer replays the dead-letter topics of the given logical topics
// through writer.
func NewReplayer(cfg configs.Config, registry *topics.Registry, logical []topics.Name, writer dlq.MessageWriter, log *zap.SugaredLogger) (*Replayer, error) {
	physical, err := registry.ResolveAll(logical)
	if err != nil {
		return nil, err
	}
	deadTopics := make([]string, 0, len(physical))
	for _, t := range physical {
		deadTopics = append(deadTopics, topics.DeadLetterTopic(t))
	}

	cfg.GroupID = configs.GroupDLQReplay
	return &Replayer{
		cfg:    cfg,
		topics: deadTopics,
		writer: writer,
		log:    log,
	}, nil
}

func (r *Replayer) Replay(ctx context.Context, limit int) (dlq.ReplayResult, error) {
	reader := eventbus.NewReader(r.cfg, r.topics, r.log)
	defer func() {
		if err := reader.Close(); err != nil {
			r.log.Warnw("failed to close replay reader", "error", err)
		}
	}()

	r.log.Infow("replaying dead letters", "topics", r.topics, "limit", limit)
	return dlq.NewReplayer(reader, r.writer, replayIdleTimeout, r.log).Replay(ctx, limit)
}
