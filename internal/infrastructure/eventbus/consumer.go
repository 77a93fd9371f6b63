package eventbus

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"eventsync/internal/common/configs"
	"eventsync/internal/common/metrics"
	"eventsync/internal/domain/delivery"
	"eventsync/internal/domain/events"
	"eventsync/internal/domain/topics"
	"eventsync/internal/infrastructure/dlq"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	DefaultPollTimeout  = time.Second
	DefaultFlushTimeout = 5 * time.Second
	defaultQueueSize    = 64
	pollErrorPause      = 250 * time.Millisecond
)

// DeadLetterRouter is satisfied by *dlq.Router.
type DeadLetterRouter interface {
	Route(ctx context.Context, dl dlq.DeadLetter) error
}

// ConsumerConfig tunes one consumer group member.
type ConsumerConfig struct {
	GroupID string
	// Workers is the number of partitions handled concurrently. Messages
	// of one partition are always handled by the same worker.
	Workers     int
	PollTimeout time.Duration
	// CommitInterval of zero commits after every message.
	CommitInterval time.Duration
	FlushTimeout   time.Duration
	QueueSize      int
}

func ConsumerConfigFrom(cfg configs.Config) ConsumerConfig {
	return ConsumerConfig{
		GroupID:        cfg.GroupID,
		Workers:        cfg.Workers,
		PollTimeout:    cfg.PollTimeout,
		CommitInterval: cfg.CommitInterval,
	}.withDefaults()
}

func (c ConsumerConfig) withDefaults() ConsumerConfig {
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	if c.CommitInterval < 0 {
		c.CommitInterval = 0
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = DefaultFlushTimeout
	}
	if c.QueueSize < 1 {
		c.QueueSize = defaultQueueSize
	}
	return c
}

// Consumer runs the poll, decode, handle, commit loop of one service. An
// offset is committed only once its message was handled, skipped as
// undecodable or unknown, or written to the dead-letter topic.
type Consumer struct {
	reader      MessageReader
	handler     events.Handler
	codec       *events.Codec
	registry    *topics.Registry
	policy      RetryPolicy
	deadLetters DeadLetterRouter
	offsets     *OffsetManager
	cfg         ConsumerConfig
	log         *zap.SugaredLogger
	metrics     *metrics.Metrics
}

func NewConsumer(
	reader MessageReader,
	handler events.Handler,
	codec *events.Codec,
	registry *topics.Registry,
	policy RetryPolicy,
	deadLetters DeadLetterRouter,
	cfg ConsumerConfig,
	log *zap.SugaredLogger,
	m *metrics.Metrics,
) *Consumer {
	return &Consumer{
		reader:      reader,
		handler:     handler,
		codec:       codec,
		registry:    registry,
		policy:      policy.withDefaults(),
		deadLetters: deadLetters,
		offsets:     NewOffsetManager(reader, log, m),
		cfg:         cfg.withDefaults(),
		log:         log,
		metrics:     m,
	}
}

// Offsets exposes the commit bookkeeping, mainly for tests.
func (c *Consumer) Offsets() *OffsetManager {
	return c.offsets
}

// Run consumes until ctx is cancelled, then lets workers finish the
// message they hold, flushes offsets and closes the reader. It returns nil
// on cancellation and ErrReaderClosed if the reader went away on its own.
func (c *Consumer) Run(ctx context.Context) error {
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.log.Warnw("failed to close reader", "group", c.cfg.GroupID, "error", err)
		}
	}()

	queues := make([]chan kafka.Message, c.cfg.Workers)
	var wg sync.WaitGroup
	for i := range queues {
		queues[i] = make(chan kafka.Message, c.cfg.QueueSize)
		wg.Add(1)
		go func(queue <-chan kafka.Message) {
			defer wg.Done()
			c.work(ctx, queue)
		}(queues[i])
	}

	commitCtx, stopCommits := context.WithCancel(context.Background())
	commitDone := make(chan struct{})
	if c.cfg.CommitInterval > 0 {
		go func() {
			defer close(commitDone)
			c.offsets.Run(commitCtx, c.cfg.CommitInterval)
		}()
	} else {
		close(commitDone)
	}

	c.log.Infow("consumer started",
		"group", c.cfg.GroupID,
		"workers", c.cfg.Workers,
		"commit_interval", c.cfg.CommitInterval,
		"max_attempts", c.policy.MaxAttempts,
	)

	err := c.poll(ctx, queues)

	for _, q := range queues {
		close(q)
	}
	wg.Wait()
	stopCommits()
	<-commitDone

	flushCtx, cancel := context.WithTimeout(context.Background(), c.cfg.FlushTimeout)
	defer cancel()
	if ferr := c.offsets.Commit(flushCtx); ferr != nil {
		c.log.Errorw("failed to flush offsets on shutdown", "group", c.cfg.GroupID, "error", ferr)
	}

	c.log.Infow("consumer stopped", "group", c.cfg.GroupID)
	return err
}

func (c *Consumer) poll(ctx context.Context, queues []chan kafka.Message) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
		msg, err := c.reader.FetchMessage(fetchCtx)
		cancel()

		if err != nil {
			switch {
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, context.DeadlineExceeded):
				continue
			case errors.Is(err, io.EOF):
				return ErrReaderClosed
			}

			c.metrics.IncPollError()
			c.log.Warnw("failed to fetch message", "group", c.cfg.GroupID, "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(pollErrorPause):
			}
			continue
		}

		c.metrics.IncReceived(msg.Topic)
		queue := queues[workerIndex(msg.Topic, msg.Partition, len(queues))]
		select {
		case queue <- msg:
		case <-ctx.Done():
			c.metrics.DropInFlight()
			return nil
		}
	}
}

func (c *Consumer) work(ctx context.Context, queue <-chan kafka.Message) {
	for msg := range queue {
		if ctx.Err() != nil {
			// fetched but not started: redelivered after restart
			c.metrics.DropInFlight()
			continue
		}
		c.process(ctx, msg)
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	d := delivery.New(msg.Topic, msg.Partition, msg.Offset)

	ctx, span := tracer().Start(extractTrace(ctx, msg.Headers), "process "+msg.Topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(messageAttributes(msg)...),
	)
	defer span.End()

	outcome := c.deliver(ctx, d, msg)
	span.SetAttributes(
		attribute.String("eventsync.event_type", d.EventType()),
		attribute.String("eventsync.delivery_state", string(d.State())),
		attribute.Int("eventsync.attempts", d.Attempts()),
	)
	if d.LastError() != nil {
		span.RecordError(d.LastError())
	}

	if !d.State().Commits() {
		span.SetStatus(codes.Error, "offset not committed")
		c.metrics.DropInFlight()
		c.log.Warnw("message left uncommitted",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"state", d.State(),
		)
		return
	}

	c.metrics.IncProcessed(msg.Topic, outcome)
	c.offsets.MarkDone(msg)
	if c.cfg.CommitInterval == 0 {
		if err := c.offsets.Commit(ctx); err != nil {
			c.log.Warnw("offset commit failed", "topic", msg.Topic, "partition", msg.Partition, "error", err)
		}
	}
}

// deliver drives d to a terminal state and returns the outcome label.
func (c *Consumer) deliver(ctx context.Context, d *delivery.Delivery, msg kafka.Message) string {
	env, err := c.codec.Decode(msg.Value)
	if err != nil {
		_ = d.TransitionTo(delivery.Skipped)
		if errors.Is(err, events.ErrUnknownEventType) {
			d.SetEventType(string(env.EventType))
			c.log.Debugw("skipping unknown event type",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"event_type", env.EventType,
			)
			return metrics.OutcomeUnknownType
		}
		c.log.Warnw("skipping undecodable message",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"error", err,
		)
		return metrics.OutcomeDecodeError
	}
	d.SetEventType(string(env.EventType))

	if name, ok := c.registry.LogicalOf(msg.Topic); ok && !c.registry.Carries(name, env.EventType) {
		c.log.Warnw("event type not registered for topic",
			"topic", msg.Topic,
			"event_type", env.EventType,
			"event_id", env.EventID,
		)
	}

	err = c.invoke(ctx, d, env)
	switch {
	case err == nil:
		_ = d.TransitionTo(delivery.Committed)
		return metrics.OutcomeHandled
	case d.State() != delivery.Retrying:
		// cancelled before the first attempt
		return ""
	case d.Attempts() < c.policy.MaxAttempts && !IsPermanent(d.LastError()):
		// cancelled while waiting to retry
		_ = d.TransitionTo(delivery.Abandoned)
		c.log.Warnw("abandoning message on shutdown",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"event_type", env.EventType,
			"attempts", d.Attempts(),
		)
		return ""
	}

	if c.deadLetter(ctx, d, msg, env) {
		_ = d.TransitionTo(delivery.DeadLettered)
		return metrics.OutcomeDeadLettered
	}
	_ = d.TransitionTo(delivery.Abandoned)
	return ""
}

// invoke runs the handler up to MaxAttempts times with exponential
// backoff. Handlers run on a context that survives shutdown so an attempt
// in progress is never cut short; cancellation only prevents new attempts.
func (c *Consumer) invoke(ctx context.Context, d *delivery.Delivery, env events.Envelope) error {
	handlerCtx := context.WithoutCancel(ctx)
	eventType := string(env.EventType)

	operation := func() (struct{}, error) {
		if err := d.StartAttempt(); err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		started := time.Now()
		err := c.handler(handlerCtx, env)
		c.metrics.ObserveHandler(eventType, started)
		if err == nil {
			return struct{}{}, nil
		}
		_ = d.Fail(err)
		if IsPermanent(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(c.policy.Backoff()),
		backoff.WithMaxTries(uint(c.policy.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.metrics.IncRetry(eventType)
			c.log.Warnw("handler failed, retrying",
				"event_type", env.EventType,
				"event_id", env.EventID,
				"key", env.Key,
				"attempt", d.Attempts(),
				"retry_in", next,
				"error", err,
			)
		}),
	)
	return err
}

// deadLetter writes msg to its dead-letter topic, retrying until the write
// succeeds or ctx ends. It reports whether the offset may be committed.
func (c *Consumer) deadLetter(ctx context.Context, d *delivery.Delivery, msg kafka.Message, env events.Envelope) bool {
	herr := &HandlerError{EventType: env.EventType, Attempts: d.Attempts(), Err: d.LastError()}
	dl := dlq.DeadLetter{
		ID:            uuid.New(),
		Message:       msg,
		ConsumerGroup: c.cfg.GroupID,
		EventType:     string(env.EventType),
		EventID:       env.EventID,
		TenantID:      env.TenantID.String(),
		Attempts:      d.Attempts(),
		Reason:        herr.Error(),
		FailedAt:      time.Now().UTC(),
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, c.deadLetters.Route(ctx, dl)
	},
		backoff.WithBackOff(c.policy.Backoff()),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.Errorw("failed to dead-letter message, retrying",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"retry_in", next,
				"error", err,
			)
		}),
	)
	if err != nil {
		c.log.Errorw("giving up on dead-letter write, offset left uncommitted",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"event_id", env.EventID,
			"error", err,
		)
		return false
	}
	return true
}
