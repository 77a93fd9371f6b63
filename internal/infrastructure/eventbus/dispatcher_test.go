package eventbus

import (
	"context"
	"errors"
	"testing"

	"eventsync/internal/domain/events"
	"eventsync/internal/domain/topics"
	"eventsync/internal/infrastructure/kafkatest"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_Dispatch(t *testing.T) {
	d := NewDispatcher(kafkatest.NewTestLogger(t))

	var got events.StockAdjusted
	d.MustRegister(topics.StockAdjusted, events.Handle(func(ctx context.Context, env events.Envelope, p events.StockAdjusted) error {
		got = p
		return nil
	}))
	boom := errors.New("boom")
	d.MustRegister(topics.SaleCompleted, func(ctx context.Context, env events.Envelope) error {
		return boom
	})

	env := stockAdjusted(uuid.New(), uuid.New(), "count")
	require.NoError(t, d.Dispatch(context.Background(), env))
	assert.Equal(t, "count", got.Reason)

	sale := events.NewSaleCompleted(uuid.New(), events.SaleCompleted{SaleID: uuid.New()})
	assert.ErrorIs(t, d.Dispatch(context.Background(), sale), boom)
}

func TestDispatcher_UnregisteredTypeIsNoop(t *testing.T) {
	d := NewDispatcher(kafkatest.NewTestLogger(t))
	env := events.NewCashRegistered(uuid.New(), events.CashRegistered{ShopID: uuid.New()})

	assert.NoError(t, d.Dispatch(context.Background(), env))
	assert.False(t, d.Handles(topics.CashRegistered))
}

func TestDispatcher_Register(t *testing.T) {
	d := NewDispatcher(kafkatest.NewTestLogger(t))
	noop := func(ctx context.Context, env events.Envelope) error { return nil }

	require.NoError(t, d.Register(topics.SaleReturned, noop))
	require.NoError(t, d.Register(topics.SaleCompleted, noop))
	assert.Error(t, d.Register(topics.SaleCompleted, noop))
	assert.Error(t, d.Register(topics.JournalPosted, nil))

	assert.Equal(t, []events.EventType{topics.SaleCompleted, topics.SaleReturned}, d.EventTypes())
	assert.Panics(t, func() { d.MustRegister(topics.SaleReturned, noop) })
}
