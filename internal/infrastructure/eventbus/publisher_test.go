package eventbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"eventsync/internal/domain/events"
	"eventsync/internal/domain/topics"
	"eventsync/internal/infrastructure/kafkatest"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisher_Publish_WritesKeyedMessage(t *testing.T) {
	h := newHarness(t)
	tenantID := uuid.New()
	shopID := uuid.New()
	env := stockAdjusted(tenantID, shopID, "delivery")
	env.CorrelationID = "corr-42"

	ack := h.publish(topics.StockEvents, env)

	physical := h.physical(topics.StockEvents)
	assert.Equal(t, physical, ack.Topic)
	assert.Equal(t, "shop:"+shopID.String(), ack.Key)
	assert.Equal(t, env.EventID, ack.EventID)
	assert.False(t, ack.WrittenAt.IsZero())

	msgs := h.broker.Messages(physical)
	require.Len(t, msgs, 1)
	msg := msgs[0]
	assert.Equal(t, []byte(env.Key), msg.Key)
	assert.Equal(t, h.broker.PartitionFor(msg.Key), msg.Partition)

	eventType, _ := kafkatest.Header(msg, HeaderEventType)
	assert.Equal(t, "stock_adjusted", eventType)
	eventID, _ := kafkatest.Header(msg, HeaderEventID)
	assert.Equal(t, env.EventID, eventID)
	tenant, _ := kafkatest.Header(msg, HeaderTenantID)
	assert.Equal(t, tenantID.String(), tenant)
	corr, _ := kafkatest.Header(msg, HeaderCorrelationID)
	assert.Equal(t, "corr-42", corr)

	decoded, err := h.codec.Decode(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, env.EventID, decoded.EventID)
	assert.Equal(t, tenantID, decoded.TenantID)
}

func TestPublisher_Publish_SameKeySamePartition(t *testing.T) {
	h := newHarness(t)
	tenantID := uuid.New()
	shopID := uuid.New()

	for i := 0; i < 10; i++ {
		h.publish(topics.StockEvents, stockAdjusted(tenantID, shopID, ""))
	}

	msgs := h.broker.Messages(h.physical(topics.StockEvents))
	require.Len(t, msgs, 10)
	for i, msg := range msgs {
		assert.Equal(t, msgs[0].Partition, msg.Partition)
		assert.Equal(t, int64(i), msg.Offset)
	}
}

func TestPublisher_Publish_FailsClosed(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name   string
		topic  topics.Name
		env    events.Envelope
		reason Reason
		is     error
	}{
		{
			name:   "missing tenant",
			topic:  topics.StockEvents,
			env:    stockAdjusted(uuid.Nil, uuid.New(), ""),
			reason: ReasonInvalidEnvelope,
			is:     events.ErrMissingTenant,
		},
		{
			name:   "event type not carried by topic",
			topic:  topics.SalesEvents,
			env:    stockAdjusted(uuid.New(), uuid.New(), ""),
			reason: ReasonInvalidEnvelope,
			is:     topics.ErrUnknownEventType,
		},
		{
			name:   "unknown topic",
			topic:  topics.Name("shipping"),
			env:    stockAdjusted(uuid.New(), uuid.New(), ""),
			reason: ReasonUnknownTopic,
			is:     topics.ErrUnknownTopic,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.publisher.Publish(context.Background(), tt.topic, tt.env)
			require.Error(t, err)
			assert.True(t, IsReason(err, tt.reason), "got %v", err)
			assert.ErrorIs(t, err, tt.is)
		})
	}

	assert.Empty(t, h.broker.Topics(), "nothing may be written for a rejected envelope")
}

func TestPublisher_Publish_Timeout(t *testing.T) {
	broker := kafkatest.NewBroker(1)
	broker.OnWrite(func(ctx context.Context, msgs []kafka.Message) error {
		<-ctx.Done()
		return ctx.Err()
	})
	registry := topics.Default("")
	publisher := NewPublisher(broker.Writer(""), events.NewCodec(registry), registry, 20*time.Millisecond, kafkatest.NewTestLogger(t), nil)

	started := time.Now()
	_, err := publisher.Publish(context.Background(), topics.StockEvents, stockAdjusted(uuid.New(), uuid.New(), ""))

	require.Error(t, err)
	assert.True(t, IsReason(err, ReasonTimeout), "got %v", err)
	assert.Less(t, time.Since(started), time.Second)
}

func TestPublisher_Publish_BrokerUnavailable(t *testing.T) {
	h := newHarness(t)
	brokerErr := errors.New("leader not available")
	h.broker.OnWrite(func(ctx context.Context, msgs []kafka.Message) error {
		return brokerErr
	})

	_, err := h.publisher.Publish(context.Background(), topics.StockEvents, stockAdjusted(uuid.New(), uuid.New(), ""))

	require.Error(t, err)
	assert.True(t, IsReason(err, ReasonBrokerUnavailable))
	assert.ErrorIs(t, err, brokerErr)
}

func TestPublisher_Publish_Canceled(t *testing.T) {
	h := newHarness(t)
	h.broker.OnWrite(func(ctx context.Context, msgs []kafka.Message) error {
		<-ctx.Done()
		return ctx.Err()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.publisher.Publish(ctx, topics.StockEvents, stockAdjusted(uuid.New(), uuid.New(), ""))

	assert.True(t, IsReason(err, ReasonCanceled), "got %v", err)
}

func TestPublisher_Close(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.publisher.Close())
	require.NoError(t, h.publisher.Close())

	_, err := h.publisher.Publish(context.Background(), topics.StockEvents, stockAdjusted(uuid.New(), uuid.New(), ""))

	assert.True(t, IsReason(err, ReasonClosed))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPublisher_Publish_FillsEventID(t *testing.T) {
	h := newHarness(t)
	env := stockAdjusted(uuid.New(), uuid.New(), "")
	env.EventID = ""
	env.EmittedAt = time.Time{}

	ack := h.publish(topics.StockEvents, env)

	assert.Len(t, ack.EventID, 26)
	msgs := h.broker.Messages(h.physical(topics.StockEvents))
	require.Len(t, msgs, 1)
	decoded, err := h.codec.Decode(msgs[0].Value)
	require.NoError(t, err)
	assert.Equal(t, ack.EventID, decoded.EventID)
	assert.False(t, decoded.EmittedAt.IsZero())
}
