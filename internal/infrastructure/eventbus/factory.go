package eventbus

import (
	"context"
	"fmt"
	"time"

	"eventsync/internal/common/configs"
	"eventsync/internal/common/metrics"
	"eventsync/internal/domain/events"
	"eventsync/internal/domain/topics"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

const (
	startupInitialInterval = 500 * time.Millisecond
	startupMaxInterval     = 10 * time.Second
)

// Pinger is satisfied by *health.BrokerChecker.
type Pinger interface {
	Ping(ctx context.Context) error
}

// WaitForBrokers blocks until a broker answers, backing off exponentially
// between tries. A zero maxWait keeps trying until ctx is done.
func WaitForBrokers(ctx context.Context, pinger Pinger, maxWait time.Duration, log *zap.SugaredLogger) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = startupInitialInterval
	b.MaxInterval = startupMaxInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, pinger.Ping(ctx)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(maxWait),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warnw("waiting for kafka brokers", "retry_in", next, "error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBrokerUnavailable, err)
	}
	return nil
}

// NewPublisherFromConfig builds a publisher on a real kafka.Writer.
func NewPublisherFromConfig(cfg configs.Config, registry *topics.Registry, log *zap.SugaredLogger, m *metrics.Metrics) *Publisher {
	writer := NewWriter(cfg.Brokers, cfg.PublishTimeout, log)
	return NewPublisher(writer, events.NewCodec(registry), registry, cfg.PublishTimeout, log, m)
}

// NewConsumerFromConfig builds a consumer for the logical topics in
// cfg.Topics on a real kafka.Reader.
func NewConsumerFromConfig(
	cfg configs.Config,
	registry *topics.Registry,
	handler events.Handler,
	deadLetters DeadLetterRouter,
	log *zap.SugaredLogger,
	m *metrics.Metrics,
) (*Consumer, error) {
	names := make([]topics.Name, 0, len(cfg.Topics))
	for _, t := range cfg.Topics {
		names = append(names, topics.Name(t))
	}
	physical, err := registry.ResolveAll(names)
	if err != nil {
		return nil, err
	}
	if cfg.GroupID == "" {
		return nil, fmt.Errorf("consumer group id is required")
	}

	reader := NewReader(cfg, physical, log)
	return NewConsumer(
		reader,
		handler,
		events.NewCodec(registry),
		registry,
		RetryPolicyFrom(cfg),
		deadLetters,
		ConsumerConfigFrom(cfg),
		log,
		m,
	), nil
}
