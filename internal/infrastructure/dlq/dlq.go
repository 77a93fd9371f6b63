package dlq

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"eventsync/internal/common/metrics"
	"eventsync/internal/domain/topics"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Headers added to every dead-lettered message.
const (
	HeaderOriginalTopic     = "x-original-topic"
	HeaderOriginalPartition = "x-original-partition"
	HeaderOriginalOffset    = "x-original-offset"
	HeaderConsumerGroup     = "x-consumer-group"
	HeaderAttempts          = "x-attempts"
	HeaderError             = "x-error"
	HeaderFailedAt          = "x-failed-at"
	HeaderDeadLetterID      = "x-dead-letter-id"
	HeaderReplayCount       = "x-replay-count"
)

const headerPrefix = "x-"

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Recorder keeps a queryable copy of dead letters.
type Recorder interface {
	Record(ctx context.Context, dl DeadLetter) error
}

// DeadLetter is a message whose handler kept failing.
type DeadLetter struct {
	ID            uuid.UUID
	Message       kafka.Message
	ConsumerGroup string
	EventType     string
	EventID       string
	TenantID      string
	Attempts      int
	Reason        string
	FailedAt      time.Time
}

// Topic is the dead-letter topic the message is routed to.
func (dl DeadLetter) Topic() string {
	return topics.DeadLetterTopic(dl.Message.Topic)
}

// Router publishes dead letters to "<topic>.DLQ" and optionally records
// them. The Kafka write is what the consumer waits for; recording is best
// effort.
type Router struct {
	writer   MessageWriter
	recorder Recorder
	log      *zap.SugaredLogger
	metrics  *metrics.Metrics
}

func NewRouter(writer MessageWriter, recorder Recorder, log *zap.SugaredLogger, m *metrics.Metrics) *Router {
	return &Router{
		writer:   writer,
		recorder: recorder,
		log:      log,
		metrics:  m,
	}
}

// Route writes dl to its dead-letter topic.
func (r *Router) Route(ctx context.Context, dl DeadLetter) error {
	if dl.ID == uuid.Nil {
		dl.ID = uuid.New()
	}
	if dl.FailedAt.IsZero() {
		dl.FailedAt = time.Now().UTC()
	}

	msg := Build(dl)
	err := r.writer.WriteMessages(ctx, msg)
	r.metrics.IncDeadLettered(dl.Message.Topic, err)
	if err != nil {
		return fmt.Errorf("failed to write to %s: %w", msg.Topic, err)
	}

	r.log.Errorw("message dead-lettered",
		"dead_letter_id", dl.ID,
		"dlq_topic", msg.Topic,
		"topic", dl.Message.Topic,
		"partition", dl.Message.Partition,
		"offset", dl.Message.Offset,
		"key", string(dl.Message.Key),
		"group", dl.ConsumerGroup,
		"event_type", dl.EventType,
		"event_id", dl.EventID,
		"tenant_id", dl.TenantID,
		"attempts", dl.Attempts,
		"error", dl.Reason,
		"envelope", string(dl.Message.Value),
	)

	if r.recorder != nil {
		if err := r.recorder.Record(ctx, dl); err != nil {
			r.log.Warnw("failed to record dead letter", "dead_letter_id", dl.ID, "error", err)
		}
	}

	return nil
}

// Build converts dl to the message written on the dead-letter topic. Key
// and value are the original bytes; original headers are kept except
// dead-letter bookkeeping from an earlier round trip.
func Build(dl DeadLetter) kafka.Message {
	orig := dl.Message
	headers := make([]kafka.Header, 0, len(orig.Headers)+8)
	for _, h := range orig.Headers {
		if strings.HasPrefix(h.Key, headerPrefix) && h.Key != HeaderReplayCount {
			continue
		}
		headers = append(headers, h)
	}
	headers = append(headers,
		kafka.Header{Key: HeaderOriginalTopic, Value: []byte(orig.Topic)},
		kafka.Header{Key: HeaderOriginalPartition, Value: []byte(strconv.Itoa(orig.Partition))},
		kafka.Header{Key: HeaderOriginalOffset, Value: []byte(strconv.FormatInt(orig.Offset, 10))},
		kafka.Header{Key: HeaderConsumerGroup, Value: []byte(dl.ConsumerGroup)},
		kafka.Header{Key: HeaderAttempts, Value: []byte(strconv.Itoa(dl.Attempts))},
		kafka.Header{Key: HeaderError, Value: []byte(dl.Reason)},
		kafka.Header{Key: HeaderFailedAt, Value: []byte(dl.FailedAt.UTC().Format(time.RFC3339Nano))},
		kafka.Header{Key: HeaderDeadLetterID, Value: []byte(dl.ID.String())},
	)

	return kafka.Message{
		Topic:   dl.Topic(),
		Key:     orig.Key,
		Value:   orig.Value,
		Headers: headers,
	}
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
