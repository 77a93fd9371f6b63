package dlq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"eventsync/internal/domain/topics"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageReader is satisfied by *kafka.Reader.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// ReplayResult summarizes one replay run.
type ReplayResult struct {
	Replayed int
	Skipped  int
}

// DefaultJoinTimeout bounds the first fetch of a replay, which also waits
// for the reader to join its group and get partitions assigned.
const DefaultJoinTimeout = 45 * time.Second

// Replayer moves dead letters back to the topic they came from. It is the
// manual operational step after the cause of the failures was fixed.
type Replayer struct {
	reader      MessageReader
	writer      MessageWriter
	idleTimeout time.Duration
	joinTimeout time.Duration
	log         *zap.SugaredLogger
}

func NewReplayer(reader MessageReader, writer MessageWriter, idleTimeout time.Duration, log *zap.SugaredLogger) *Replayer {
	if idleTimeout <= 0 {
		idleTimeout = 5 * time.Second
	}
	return &Replayer{
		reader:      reader,
		writer:      writer,
		idleTimeout: idleTimeout,
		joinTimeout: max(DefaultJoinTimeout, idleTimeout),
		log:         log,
	}
}

// Replay re-publishes up to limit dead letters (all when limit <= 0). It
// stops once no message arrived for the idle timeout; the first fetch gets
// the longer join timeout. Each message is committed on the DLQ only after
// it was written to its original topic.
func (r *Replayer) Replay(ctx context.Context, limit int) (ReplayResult, error) {
	var res ReplayResult
	wait := r.joinTimeout
	for limit <= 0 || res.Replayed+res.Skipped < limit {
		fetchCtx, cancel := context.WithTimeout(ctx, wait)
		msg, err := r.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return res, ctx.Err()
			case errors.Is(err, context.DeadlineExceeded), errors.Is(err, io.EOF):
				return res, nil
			default:
				return res, fmt.Errorf("failed to fetch dead letter: %w", err)
			}
		}
		wait = r.idleTimeout

		out, ok := Restore(msg)
		if !ok {
			r.log.Warnw("skipping message without an original topic",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
			)
			res.Skipped++
		} else {
			if err := r.writer.WriteMessages(ctx, out); err != nil {
				return res, fmt.Errorf("failed to replay to %s: %w", out.Topic, err)
			}
			r.log.Infow("dead letter replayed",
				"dead_letter_id", header(msg, HeaderDeadLetterID),
				"topic", out.Topic,
				"key", string(out.Key),
			)
			res.Replayed++
		}

		if err := r.reader.CommitMessages(ctx, msg); err != nil {
			return res, fmt.Errorf("failed to commit dead letter offset: %w", err)
		}
	}
	return res, nil
}

// Restore rebuilds the original message from a dead letter: original
// topic, key and value, dead-letter headers dropped and the replay count
// incremented.
func Restore(dead kafka.Message) (kafka.Message, bool) {
	topic := header(dead, HeaderOriginalTopic)
	if topic == "" && topics.IsDeadLetterTopic(dead.Topic) {
		topic = strings.TrimSuffix(dead.Topic, topics.DeadLetterSuffix)
	}
	if topic == "" {
		return kafka.Message{}, false
	}

	replays, _ := strconv.Atoi(header(dead, HeaderReplayCount))

	headers := make([]kafka.Header, 0, len(dead.Headers))
	for _, h := range dead.Headers {
		if strings.HasPrefix(h.Key, headerPrefix) {
			continue
		}
		headers = append(headers, h)
	}
	headers = append(headers, kafka.Header{Key: HeaderReplayCount, Value: []byte(strconv.Itoa(replays + 1))})

	return kafka.Message{
		Topic:   topic,
		Key:     dead.Key,
		Value:   dead.Value,
		Headers: headers,
	}, true
}
