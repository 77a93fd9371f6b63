package dlq

import (
	"context"
	"errors"
	"testing"
	"time"

	"eventsync/internal/infrastructure/kafkatest"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) Record(ctx context.Context, dl DeadLetter) error {
	args := m.Called(ctx, dl)
	return args.Error(0)
}

func failedMessage() kafka.Message {
	msg := kafkatest.NewTestMessage("erp.sales.events", 4, 1207, []byte("sale:42"), []byte(`{"event_type":"sale_completed"}`))
	msg.Headers = []kafka.Header{
		{Key: "event_type", Value: []byte("sale_completed")},
		{Key: "traceparent", Value: []byte("00-abc-def-01")},
		{Key: HeaderOriginalTopic, Value: []byte("stale")},
	}
	return msg
}

func TestBuild_Headers(t *testing.T) {
	failedAt := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	dl := DeadLetter{
		ID:            uuid.New(),
		Message:       failedMessage(),
		ConsumerGroup: "accounting-service-group",
		Attempts:      5,
		Reason:        "db down",
		FailedAt:      failedAt,
	}

	msg := Build(dl)

	assert.Equal(t, "erp.sales.events.DLQ", msg.Topic)
	assert.Equal(t, []byte("sale:42"), msg.Key)
	assert.Equal(t, dl.Message.Value, msg.Value)

	expected := map[string]string{
		"event_type":            "sale_completed",
		"traceparent":           "00-abc-def-01",
		HeaderOriginalTopic:     "erp.sales.events",
		HeaderOriginalPartition: "4",
		HeaderOriginalOffset:    "1207",
		HeaderConsumerGroup:     "accounting-service-group",
		HeaderAttempts:          "5",
		HeaderError:             "db down",
		HeaderFailedAt:          failedAt.Format(time.RFC3339Nano),
		HeaderDeadLetterID:      dl.ID.String(),
	}
	for key, want := range expected {
		got, ok := kafkatest.Header(msg, key)
		assert.True(t, ok, "missing header %s", key)
		assert.Equal(t, want, got, "header %s", key)
	}

	count := 0
	for _, h := range msg.Headers {
		if h.Key == HeaderOriginalTopic {
			count++
		}
	}
	assert.Equal(t, 1, count, "stale dead-letter headers are replaced")
}

func TestRouter_Route(t *testing.T) {
	broker := kafkatest.NewBroker(3)
	recorder := new(MockRecorder)
	recorder.On("Record", mock.Anything, mock.MatchedBy(func(dl DeadLetter) bool {
		return dl.ID != uuid.Nil && !dl.FailedAt.IsZero() && dl.Attempts == 3
	})).Return(nil).Once()

	router := NewRouter(broker.Writer(""), recorder, zap.NewNop().Sugar(), nil)

	err := router.Route(context.Background(), DeadLetter{
		Message:       failedMessage(),
		ConsumerGroup: "inventory-service-group",
		Attempts:      3,
		Reason:        "boom",
	})
	require.NoError(t, err)

	dead := broker.Messages("erp.sales.events.DLQ")
	require.Len(t, dead, 1)
	assert.Equal(t, []byte("sale:42"), dead[0].Key)
	recorder.AssertExpectations(t)
}

func TestRouter_Route_RecorderFailureIsNotFatal(t *testing.T) {
	broker := kafkatest.NewBroker(1)
	recorder := new(MockRecorder)
	recorder.On("Record", mock.Anything, mock.Anything).Return(errors.New("db down"))

	router := NewRouter(broker.Writer(""), recorder, zap.NewNop().Sugar(), nil)

	require.NoError(t, router.Route(context.Background(), DeadLetter{Message: failedMessage()}))
	assert.Len(t, broker.Messages("erp.sales.events.DLQ"), 1)
}

func TestRouter_Route_WriteFailure(t *testing.T) {
	broker := kafkatest.NewBroker(1)
	broker.OnWrite(func(ctx context.Context, msgs []kafka.Message) error {
		return errors.New("leader not available")
	})
	recorder := new(MockRecorder)

	router := NewRouter(broker.Writer(""), recorder, zap.NewNop().Sugar(), nil)

	err := router.Route(context.Background(), DeadLetter{Message: failedMessage()})
	assert.Error(t, err)
	recorder.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
}

func TestReplayer_Replay(t *testing.T) {
	broker := kafkatest.NewBroker(3)
	log := zap.NewNop().Sugar()
	router := NewRouter(broker.Writer(""), nil, log, nil)

	for i := 0; i < 3; i++ {
		msg := failedMessage()
		msg.Offset = int64(i)
		require.NoError(t, router.Route(context.Background(), DeadLetter{Message: msg, Attempts: 5, Reason: "boom"}))
	}

	reader := broker.Reader("dlq-replay-group", "erp.sales.events.DLQ")
	replayer := NewReplayer(reader, broker.Writer(""), 50*time.Millisecond, log)

	res, err := replayer.Replay(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Replayed)

	res, err = replayer.Replay(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Replayed, "replay resumes after the committed dead letters")

	replayed := broker.Messages("erp.sales.events")
	require.Len(t, replayed, 3)
	for _, msg := range replayed {
		assert.Equal(t, []byte("sale:42"), msg.Key)
		count, _ := kafkatest.Header(msg, HeaderReplayCount)
		assert.Equal(t, "1", count)
		_, hasOriginal := kafkatest.Header(msg, HeaderOriginalTopic)
		assert.False(t, hasOriginal)
		trace, _ := kafkatest.Header(msg, "traceparent")
		assert.Equal(t, "00-abc-def-01", trace)
	}
}

// slowJoinReader holds back its first fetch the way a group join does.
type slowJoinReader struct {
	MessageReader
	join   time.Duration
	joined bool
}

func (r *slowJoinReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if !r.joined {
		r.joined = true
		select {
		case <-time.After(r.join):
		case <-ctx.Done():
			return kafka.Message{}, ctx.Err()
		}
	}
	return r.MessageReader.FetchMessage(ctx)
}

func TestReplayer_FirstFetchOutlastsIdleTimeout(t *testing.T) {
	broker := kafkatest.NewBroker(1)
	log := zap.NewNop().Sugar()
	router := NewRouter(broker.Writer(""), nil, log, nil)
	for i := 0; i < 2; i++ {
		msg := failedMessage()
		msg.Offset = int64(i)
		require.NoError(t, router.Route(context.Background(), DeadLetter{Message: msg, Attempts: 5, Reason: "boom"}))
	}

	reader := &slowJoinReader{
		MessageReader: broker.Reader("dlq-replay-group", "erp.sales.events.DLQ"),
		join:          150 * time.Millisecond,
	}
	replayer := NewReplayer(reader, broker.Writer(""), 20*time.Millisecond, log)

	res, err := replayer.Replay(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Replayed)
	assert.Len(t, broker.Messages("erp.sales.events"), 2)
}

func TestReplayer_EmptyDeadLetterTopic(t *testing.T) {
	broker := kafkatest.NewBroker(1)
	replayer := NewReplayer(broker.Reader("dlq-replay-group", "erp.sales.events.DLQ"), broker.Writer(""), 10*time.Millisecond, zap.NewNop().Sugar())
	assert.Equal(t, DefaultJoinTimeout, replayer.joinTimeout)
	replayer.joinTimeout = 50 * time.Millisecond

	start := time.Now()
	res, err := replayer.Replay(context.Background(), 0)

	require.NoError(t, err)
	assert.Zero(t, res.Replayed)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestRestore(t *testing.T) {
	_, ok := Restore(kafka.Message{Topic: "erp.sales.events", Value: []byte("{}")})
	assert.False(t, ok)

	msg, ok := Restore(kafka.Message{
		Topic:   "erp.sales.events.DLQ",
		Key:     []byte("sale:1"),
		Headers: []kafka.Header{{Key: HeaderReplayCount, Value: []byte("2")}},
	})
	require.True(t, ok)
	assert.Equal(t, "erp.sales.events", msg.Topic)
	count, _ := kafkatest.Header(msg, HeaderReplayCount)
	assert.Equal(t, "3", count)
}

func TestMemoryLog(t *testing.T) {
	ctx := context.Background()
	ml := NewMemoryLog()

	first := DeadLetter{ID: uuid.New(), Message: failedMessage(), Attempts: 5, Reason: "boom"}
	second := DeadLetter{ID: uuid.New(), Message: failedMessage(), Attempts: 1, Reason: "permanent"}
	require.NoError(t, ml.Record(ctx, first))
	require.NoError(t, ml.Record(ctx, second))
	require.NoError(t, ml.Record(ctx, first))

	entries, err := ml.ListUnresolved(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	require.NoError(t, ml.MarkResolved(ctx, first.ID))
	assert.ErrorIs(t, ml.MarkResolved(ctx, uuid.New()), ErrNotFound)

	entries, err = ml.ListUnresolved(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, second.ID, entries[0].ID)
	assert.Equal(t, "erp.sales.events.DLQ", entries[0].DLQTopic)
}
