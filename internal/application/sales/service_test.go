package sales

import (
	"context"
	"testing"
	"time"

	"eventsync/internal/common/configs"
	"eventsync/internal/common/logger"
	"eventsync/internal/domain/events"
	"eventsync/internal/domain/inventory"
	"eventsync/internal/domain/topics"
	"eventsync/internal/infrastructure/dlq"
	"eventsync/internal/infrastructure/eventbus"
	"eventsync/internal/infrastructure/kafkatest"
	"eventsync/internal/infrastructure/stockstore"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, topic topics.Name, env events.Envelope) (eventbus.Ack, error) {
	args := m.Called(ctx, topic, env)
	return args.Get(0).(eventbus.Ack), args.Error(1)
}

func stockIn(tenantID, shopID, product uuid.UUID, qty int64) events.Envelope {
	return events.NewStockAdjusted(tenantID, events.StockAdjusted{
		AdjustmentID: uuid.New(),
		ShopID:       shopID,
		Items:        []events.StockItem{{ProductID: product, Quantity: qty, UnitCost: events.MoneyFromInt(1)}},
	})
}

func TestSales_CompleteSale(t *testing.T) {
	publisher := new(MockPublisher)
	svc := NewService(stockstore.NewMemoryStore(), publisher, logger.NewNop())
	d := eventbus.NewDispatcher(logger.NewNop())
	svc.Register(d)
	ctx := context.Background()
	tenantID, shopID, product := uuid.New(), uuid.New(), uuid.New()

	require.NoError(t, d.Dispatch(ctx, stockIn(tenantID, shopID, product, 5)))

	publisher.On("Publish", ctx, topics.SalesEvents, mock.MatchedBy(func(env events.Envelope) bool {
		p, ok := env.Payload.(events.SaleCompleted)
		return ok && p.TotalAmount.Equal(decimal.RequireFromString("7.50")) && env.Key == "sale:"+p.SaleID.String()
	})).Return(eventbus.Ack{}, nil).Once()

	_, err := svc.CompleteSale(ctx, CompleteSaleRequest{
		TenantID: tenantID,
		ShopID:   shopID,
		Items:    []events.SaleItem{{ProductID: product, Quantity: 3, UnitPrice: events.MustParseMoney("2.50")}},
	})
	require.NoError(t, err)
	publisher.AssertExpectations(t)

	view, err := svc.Availability(ctx, tenantID, shopID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), view.OnHand(product))

	_, err = svc.CompleteSale(ctx, CompleteSaleRequest{
		TenantID: tenantID,
		ShopID:   shopID,
		Items:    []events.SaleItem{{ProductID: product, Quantity: 3, UnitPrice: events.MoneyFromInt(1)}},
	})
	assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
	publisher.AssertNumberOfCalls(t, "Publish", 1)
}

func TestSales_CompleteSaleUnknownShop(t *testing.T) {
	svc := NewService(stockstore.NewMemoryStore(), new(MockPublisher), logger.NewNop())

	_, err := svc.CompleteSale(context.Background(), CompleteSaleRequest{
		TenantID: uuid.New(),
		ShopID:   uuid.New(),
		Items:    []events.SaleItem{{ProductID: uuid.New(), Quantity: 1}},
	})
	assert.ErrorIs(t, err, inventory.ErrInsufficientStock)

	_, err = svc.CompleteSale(context.Background(), CompleteSaleRequest{TenantID: uuid.New()})
	assert.ErrorIs(t, err, ErrEmptySale)
}

// Inventory publishes a stock adjustment, the sales consumer group builds
// its view from it and a sale can then be completed against that view.
func TestSales_AvailabilityFollowsInventoryOverKafka(t *testing.T) {
	broker := kafkatest.NewBroker(3)
	registry := topics.Default("")
	codec := events.NewCodec(registry)
	log := kafkatest.NewTestLogger(t)
	publisher := eventbus.NewPublisher(broker.Writer(""), codec, registry, time.Second, log, nil)

	svc := NewService(stockstore.NewMemoryStore(), publisher, log)
	d := eventbus.NewDispatcher(log)
	svc.Register(d)

	physical, err := registry.ResolveAll(ConsumedTopics)
	require.NoError(t, err)
	consumer := eventbus.NewConsumer(
		broker.Reader(configs.GroupSales, physical...),
		d.Dispatch,
		codec,
		registry,
		eventbus.RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
		dlq.NewRouter(broker.Writer(""), nil, log, nil),
		eventbus.ConsumerConfig{GroupID: configs.GroupSales},
		log,
		nil,
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	tenantID, shopID, product := uuid.New(), uuid.New(), uuid.New()
	_, err = publisher.Publish(context.Background(), topics.StockEvents, stockIn(tenantID, shopID, product, 2))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		view, err := svc.Availability(context.Background(), tenantID, shopID)
		return err == nil && view.OnHand(product) == 2
	}, 2*time.Second, 5*time.Millisecond)

	env, err := svc.CompleteSale(context.Background(), CompleteSaleRequest{
		TenantID: tenantID,
		ShopID:   shopID,
		Items:    []events.SaleItem{{ProductID: product, Quantity: 2, UnitPrice: events.MoneyFromInt(4)}},
	})
	require.NoError(t, err)

	salesTopic, err := registry.Resolve(topics.SalesEvents)
	require.NoError(t, err)
	msgs := broker.Messages(salesTopic)
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte(env.Key), msgs[0].Key)
}

func TestSales_ViewFollowsReturnsAndOtherInstances(t *testing.T) {
	svc := NewService(stockstore.NewMemoryStore(), new(MockPublisher), logger.NewNop())
	d := eventbus.NewDispatcher(logger.NewNop())
	svc.Register(d)
	ctx := context.Background()
	tenantID, shopID, product := uuid.New(), uuid.New(), uuid.New()

	purchaseItems := []events.StockItem{{ProductID: product, Quantity: 10, UnitCost: events.MoneyFromInt(2)}}
	saleID := uuid.New()
	sale := events.NewSaleCompleted(tenantID, events.SaleCompleted{
		SaleID:      saleID,
		ShopID:      shopID,
		Items:       []events.SaleItem{{ProductID: product, Quantity: 3, UnitPrice: events.MoneyFromInt(5)}},
		TotalAmount: events.MoneyFromInt(15),
	})

	for _, env := range []events.Envelope{
		events.NewPurchaseReceived(tenantID, events.PurchaseReceived{PurchaseID: uuid.New(), ShopID: shopID, Items: purchaseItems}),
		events.NewPurchaseReceived(tenantID, events.PurchaseReceived{PurchaseID: uuid.New(), ShopID: shopID, Items: purchaseItems}),
		events.NewPurchaseReturned(tenantID, events.PurchaseReturned{ReturnID: uuid.New(), ShopID: shopID, Items: purchaseItems}),
		sale,
		sale,
		events.NewSaleReturned(tenantID, events.SaleReturned{
			ReturnID: uuid.New(),
			SaleID:   saleID,
			ShopID:   shopID,
			Items:    []events.SaleItem{{ProductID: product, Quantity: 1, UnitPrice: events.MoneyFromInt(5)}},
		}),
	} {
		require.NoError(t, d.Dispatch(ctx, env))
	}

	view, err := svc.Availability(ctx, tenantID, shopID)
	require.NoError(t, err)
	assert.Equal(t, int64(8), view.OnHand(product))
	assert.ElementsMatch(t, []topics.Name{topics.StockEvents, topics.PurchaseEvents, topics.SalesEvents}, ConsumedTopics)

	_, err = svc.CompleteSale(ctx, CompleteSaleRequest{
		TenantID: tenantID,
		ShopID:   shopID,
		Items:    []events.SaleItem{{ProductID: product, Quantity: 9, UnitPrice: events.MoneyFromInt(5)}},
	})
	assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
}
