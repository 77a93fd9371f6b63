package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"eventsync/internal/domain/events"
	"eventsync/internal/domain/topics"
	"eventsync/internal/infrastructure/dlq"
	"eventsync/internal/infrastructure/kafkatest"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const (
	testPartitions = 4
	waitFor        = 2 * time.Second
	tick           = 5 * time.Millisecond
)

func fastPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     maxAttempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
}

type harness struct {
	t         *testing.T
	broker    *kafkatest.Broker
	registry  *topics.Registry
	codec     *events.Codec
	publisher *Publisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	broker := kafkatest.NewBroker(testPartitions)
	registry := topics.Default("")
	codec := events.NewCodec(registry)
	return &harness{
		t:         t,
		broker:    broker,
		registry:  registry,
		codec:     codec,
		publisher: NewPublisher(broker.Writer(""), codec, registry, time.Second, kafkatest.NewTestLogger(t), nil),
	}
}

func (h *harness) physical(name topics.Name) string {
	h.t.Helper()
	p, err := h.registry.Resolve(name)
	require.NoError(h.t, err)
	return p
}

func (h *harness) publish(name topics.Name, env events.Envelope) Ack {
	h.t.Helper()
	ack, err := h.publisher.Publish(context.Background(), name, env)
	require.NoError(h.t, err)
	return ack
}

type runningConsumer struct {
	consumer *Consumer
	reader   *kafkatest.Reader
	cancel   context.CancelFunc
	done     chan struct{}
	err      error
}

// stop cancels the consumer and returns what Run returned.
func (rc *runningConsumer) stop(t *testing.T) error {
	t.Helper()
	rc.cancel()
	select {
	case <-rc.done:
		return rc.err
	case <-time.After(waitFor):
		t.Fatal("consumer did not stop")
		return nil
	}
}

func (h *harness) startConsumer(group string, handler events.Handler, policy RetryPolicy, cfg ConsumerConfig, names ...topics.Name) *runningConsumer {
	h.t.Helper()
	physical, err := h.registry.ResolveAll(names)
	require.NoError(h.t, err)

	log := kafkatest.NewTestLogger(h.t)
	reader := h.broker.Reader(group, physical...)
	router := dlq.NewRouter(h.broker.Writer(""), nil, log, nil)
	cfg.GroupID = group

	consumer := NewConsumer(reader, handler, h.codec, h.registry, policy, router, cfg, log, nil)

	ctx, cancel := context.WithCancel(context.Background())
	rc := &runningConsumer{consumer: consumer, reader: reader, cancel: cancel, done: make(chan struct{})}
	go func() {
		rc.err = consumer.Run(ctx)
		close(rc.done)
	}()
	h.t.Cleanup(func() {
		cancel()
		select {
		case <-rc.done:
		case <-time.After(waitFor):
		}
	})
	return rc
}

// recorder is a handler that remembers every envelope it accepted.
type recorder struct {
	mu   sync.Mutex
	seen []events.Envelope
}

func (r *recorder) handle(ctx context.Context, env events.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, env)
	return nil
}

func (r *recorder) envelopes() []events.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Envelope(nil), r.seen...)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func stockAdjusted(tenantID, shopID uuid.UUID, reason string, items ...events.StockItem) events.Envelope {
	if len(items) == 0 {
		items = []events.StockItem{{ProductID: uuid.New(), Quantity: 1, UnitCost: events.MoneyFromInt(1)}}
	}
	return events.NewStockAdjusted(tenantID, events.StockAdjusted{
		AdjustmentID: uuid.New(),
		BrandID:      uuid.New(),
		ShopID:       shopID,
		Items:        items,
		Reason:       reason,
	})
}
