package outbox

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"eventsync/internal/domain/events"
	"eventsync/internal/domain/topics"
	"eventsync/internal/infrastructure/eventbus"
	"eventsync/internal/infrastructure/kafkatest"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	broker    *kafkatest.Broker
	registry  *topics.Registry
	codec     *events.Codec
	store     *MemoryStore
	forwarder *Forwarder
}

func newFixture(t *testing.T, batchSize int) *fixture {
	t.Helper()
	broker := kafkatest.NewBroker(3)
	registry := topics.Default("")
	codec := events.NewCodec(registry)
	log := kafkatest.NewTestLogger(t)
	publisher := eventbus.NewPublisher(broker.Writer(""), codec, registry, time.Second, log, nil)
	store := NewMemoryStore(codec)
	return &fixture{
		broker:    broker,
		registry:  registry,
		codec:     codec,
		store:     store,
		forwarder: NewForwarder(store, publisher, codec, batchSize, log, nil),
	}
}

func journalPosted(tenantID uuid.UUID) events.Envelope {
	return events.NewJournalPosted(tenantID, events.JournalPosted{
		JournalID: uuid.New(),
		SourceKey: "sale:" + uuid.NewString(),
		Lines: []events.JournalLine{
			{Account: "1000-cash", Debit: events.MoneyFromInt(10), Credit: events.MoneyFromInt(0)},
			{Account: "4000-sales-revenue", Debit: events.MoneyFromInt(0), Credit: events.MoneyFromInt(10)},
		},
	})
}

func TestForwarder_ForwardOnce(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	tenantID := uuid.New()

	var ids []string
	for i := 0; i < 3; i++ {
		env := journalPosted(tenantID)
		ids = append(ids, env.EventID)
		require.NoError(t, f.store.Add(ctx, topics.AccountingEvents, env))
	}

	n, err := f.forwarder.ForwardOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Zero(t, f.store.Len())

	physical, err := f.registry.Resolve(topics.AccountingEvents)
	require.NoError(t, err)
	msgs := f.broker.Messages(physical)
	require.Len(t, msgs, 3)

	var got []string
	for _, msg := range msgs {
		env, err := f.codec.Decode(msg.Value)
		require.NoError(t, err)
		assert.Equal(t, tenantID, env.TenantID)
		got = append(got, env.EventID)
	}
	assert.ElementsMatch(t, ids, got, "event ids survive the outbox")

	n, err = f.forwarder.ForwardOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestForwarder_StopsAtFirstFailure(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, f.store.Add(ctx, topics.AccountingEvents, journalPosted(uuid.New())))
	}

	var writes atomic.Int32
	f.broker.OnWrite(func(ctx context.Context, msgs []kafka.Message) error {
		if writes.Add(1) == 2 {
			return errors.New("not enough replicas")
		}
		return nil
	})

	n, err := f.forwarder.ForwardOnce(ctx)
	require.Error(t, err)
	assert.True(t, eventbus.IsReason(err, eventbus.ReasonBrokerUnavailable))
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, f.store.Len())

	n, err = f.forwarder.ForwardOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Zero(t, f.store.Len())
}

// addRaw stores rec as is, bypassing the encoding done by Add.
func (s *MemoryStore) addRaw(rec Record) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	rec.ID = s.nextID
	s.records = append(s.records, rec)
	return rec.ID
}

func TestForwarder_ParksUnpublishableRecords(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	first := journalPosted(uuid.New())
	require.NoError(t, f.store.Add(ctx, topics.AccountingEvents, first))
	garbage := f.store.addRaw(Record{Topic: topics.AccountingEvents, EventID: "bad", Key: "journal:1", Value: []byte(`{"event_type":`)})

	removed, err := newRecord(f.codec, topics.AccountingEvents, journalPosted(uuid.New()))
	require.NoError(t, err)
	removed.Topic = "WAREHOUSE_EVENTS"
	unknownTopic := f.store.addRaw(removed)

	last := journalPosted(uuid.New())
	require.NoError(t, f.store.Add(ctx, topics.AccountingEvents, last))

	n, err := f.forwarder.ForwardOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Zero(t, f.store.Len(), "nothing is left to block the outbox")

	reason, ok := f.store.Failed(garbage)
	assert.True(t, ok)
	assert.Contains(t, reason, "not a valid envelope")
	reason, ok = f.store.Failed(unknownTopic)
	assert.True(t, ok)
	assert.Contains(t, reason, string(eventbus.ReasonUnknownTopic))

	physical, err := f.registry.Resolve(topics.AccountingEvents)
	require.NoError(t, err)
	msgs := f.broker.Messages(physical)
	require.Len(t, msgs, 2)
	var got []string
	for _, msg := range msgs {
		env, err := f.codec.Decode(msg.Value)
		require.NoError(t, err)
		got = append(got, env.EventID)
	}
	assert.ElementsMatch(t, []string{first.EventID, last.EventID}, got)

	n, err = f.forwarder.ForwardOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestForwarder_Run(t *testing.T) {
	f := newFixture(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 0; i < 5; i++ {
		require.NoError(t, f.store.Add(ctx, topics.AccountingEvents, journalPosted(uuid.New())))
	}

	done := make(chan error, 1)
	go func() { done <- f.forwarder.Run(ctx, 10*time.Millisecond) }()

	require.Eventually(t, func() bool { return f.store.Len() == 0 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("forwarder did not stop")
	}
}

func TestMemoryStore_RejectsInvalidEnvelope(t *testing.T) {
	store := NewMemoryStore(events.NewCodec(topics.Default("")))

	err := store.Add(context.Background(), topics.AccountingEvents, journalPosted(uuid.Nil))

	assert.ErrorIs(t, err, events.ErrMissingTenant)
	assert.Zero(t, store.Len())
	assert.Error(t, store.MarkForwarded(context.Background(), 99))
	assert.Error(t, store.MarkFailed(context.Background(), 99, "gone"))
}
