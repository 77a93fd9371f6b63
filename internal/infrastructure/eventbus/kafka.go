package eventbus

import (
	"context"
	"time"

	"eventsync/internal/common/configs"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	readerMinBytes     = 1
	readerMaxBytes     = 10e6
	writerBatchTimeout = 10 * time.Millisecond
)

// MessageReader is the part of *kafka.Reader the consumer loop uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewReader creates a consumer group member for physicalTopics. Offsets are
// committed explicitly by the consumer, never by the reader itself.
func NewReader(cfg configs.Config, physicalTopics []string, log *zap.SugaredLogger) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		GroupTopics:    physicalTopics,
		MinBytes:       readerMinBytes,
		MaxBytes:       readerMaxBytes,
		MaxWait:        cfg.PollTimeout,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: 0,
		Logger:         kafka.LoggerFunc(log.Debugf),
		ErrorLogger:    kafka.LoggerFunc(log.Errorf),
	})
}

// NewWriter creates a synchronous writer. Messages name their own topic;
// the Hash balancer sends equal keys to the same partition and every write
// waits for all in-sync replicas.
func NewWriter(brokers []string, timeout time.Duration, log *zap.SugaredLogger) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		WriteTimeout:           timeout,
		BatchTimeout:           writerBatchTimeout,
		AllowAutoTopicCreation: false,
		ErrorLogger:            kafka.LoggerFunc(log.Errorf),
	}
}
