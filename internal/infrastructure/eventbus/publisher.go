package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"eventsync/internal/common/metrics"
	"eventsync/internal/domain/events"
	"eventsync/internal/domain/topics"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Kafka record headers set on every published message.
const (
	HeaderEventType     = "event_type"
	HeaderEventID       = "event_id"
	HeaderTenantID      = "tenant_id"
	HeaderCorrelationID = "correlation_id"
)

const DefaultPublishTimeout = 5 * time.Second

// Ack confirms that every in-sync replica stored the message.
type Ack struct {
	Topic     string
	Key       string
	EventID   string
	WrittenAt time.Time
}

// Publisher writes envelopes to their logical topic. It never retries; a
// failed Publish returns a *PublishError and the caller decides.
type Publisher struct {
	writer   MessageWriter
	codec    *events.Codec
	registry *topics.Registry
	timeout  time.Duration
	log      *zap.SugaredLogger
	metrics  *metrics.Metrics
	closed   atomic.Bool
}

func NewPublisher(
	writer MessageWriter,
	codec *events.Codec,
	registry *topics.Registry,
	timeout time.Duration,
	log *zap.SugaredLogger,
	m *metrics.Metrics,
) *Publisher {
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	return &Publisher{
		writer:   writer,
		codec:    codec,
		registry: registry,
		timeout:  timeout,
		log:      log,
		metrics:  m,
	}
}

// Publish validates env, encodes it and writes it keyed by env.Key so all
// events of one entity land on one partition. Nothing is written unless
// the envelope is valid and carried by topic.
func (p *Publisher) Publish(ctx context.Context, topic topics.Name, env events.Envelope) (Ack, error) {
	fail := func(reason Reason, err error) (Ack, error) {
		return Ack{}, &PublishError{Topic: topic, EventType: env.EventType, Key: env.Key, Reason: reason, Err: err}
	}

	if p.closed.Load() {
		return fail(ReasonClosed, ErrClosed)
	}

	physical, err := p.registry.Resolve(topic)
	if err != nil {
		return fail(ReasonUnknownTopic, err)
	}
	if err := env.Validate(); err != nil {
		return fail(ReasonInvalidEnvelope, err)
	}
	if !p.registry.Carries(topic, env.EventType) {
		return fail(ReasonInvalidEnvelope, fmt.Errorf("%w: %s is not carried by %s", topics.ErrUnknownEventType, env.EventType, topic))
	}

	if env.EventID == "" {
		env.EventID = events.NewEventID()
	}
	if env.EmittedAt.IsZero() {
		env.EmittedAt = time.Now().UTC()
	}

	value, err := p.codec.Encode(env)
	if err != nil {
		return fail(ReasonSerialization, err)
	}
	if missing := p.codec.MissingFields(value); len(missing) > 0 {
		p.log.Warnw("publishing event with missing fields",
			"topic", physical,
			"event_type", env.EventType,
			"event_id", env.EventID,
			"missing", missing,
		)
	}

	ctx, span := tracer().Start(ctx, "publish "+physical, trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	msg := kafka.Message{
		Topic:   physical,
		Key:     []byte(env.Key),
		Value:   value,
		Headers: injectTrace(ctx, recordHeaders(env)),
		Time:    env.EmittedAt,
	}
	span.SetAttributes(messageAttributes(msg)...)

	writeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	started := time.Now()
	err = p.writer.WriteMessages(writeCtx, msg)
	p.metrics.ObservePublish(physical, started, err)
	if err != nil {
		reason := ReasonBrokerUnavailable
		switch {
		case errors.Is(writeCtx.Err(), context.DeadlineExceeded):
			reason = ReasonTimeout
		case ctx.Err() != nil:
			reason = ReasonCanceled
		case p.closed.Load():
			reason = ReasonClosed
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, string(reason))
		p.log.Errorw("failed to publish event",
			"topic", physical,
			"key", env.Key,
			"event_type", env.EventType,
			"event_id", env.EventID,
			"reason", reason,
			"error", err,
		)
		return fail(reason, err)
	}

	p.log.Debugw("event published",
		"topic", physical,
		"key", env.Key,
		"event_type", env.EventType,
		"event_id", env.EventID,
	)

	return Ack{
		Topic:     physical,
		Key:       env.Key,
		EventID:   env.EventID,
		WrittenAt: time.Now().UTC(),
	}, nil
}

// Close rejects further publishes and closes the writer, waiting for
// in-flight writes.
func (p *Publisher) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	return nil
}

func recordHeaders(env events.Envelope) []kafka.Header {
	headers := []kafka.Header{
		{Key: HeaderEventType, Value: []byte(env.EventType)},
		{Key: HeaderEventID, Value: []byte(env.EventID)},
		{Key: HeaderTenantID, Value: []byte(env.TenantID.String())},
	}
	if env.CorrelationID != "" {
		headers = append(headers, kafka.Header{Key: HeaderCorrelationID, Value: []byte(env.CorrelationID)})
	}
	return headers
}
