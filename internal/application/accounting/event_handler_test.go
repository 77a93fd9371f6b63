package accounting

import (
	"context"
	"testing"

	"eventsync/internal/common/logger"
	"eventsync/internal/domain/events"
	"eventsync/internal/domain/ledger"
	"eventsync/internal/domain/topics"
	"eventsync/internal/infrastructure/eventbus"
	"eventsync/internal/infrastructure/journalstore"
	"eventsync/internal/infrastructure/outbox"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc     *Service
	journal *journalstore.MemoryStore
	outbox  *outbox.MemoryStore
	codec   *events.Codec
	d       *eventbus.Dispatcher
}

func newFixture() *fixture {
	codec := events.NewCodec(topics.Default(""))
	ob := outbox.NewMemoryStore(codec)
	journal := journalstore.NewMemoryStore(ob)
	svc := NewService(journal, logger.NewNop())
	d := eventbus.NewDispatcher(logger.NewNop())
	svc.Register(d)
	return &fixture{svc: svc, journal: journal, outbox: ob, codec: codec, d: d}
}

func saleCompleted(tenantID uuid.UUID, total string) events.Envelope {
	return events.NewSaleCompleted(tenantID, events.SaleCompleted{
		SaleID:      uuid.New(),
		ShopID:      uuid.New(),
		Items:       []events.SaleItem{{ProductID: uuid.New(), Quantity: 1, UnitPrice: events.MustParseMoney(total)}},
		TotalAmount: events.MustParseMoney(total),
	})
}

func TestAccounting_SaleCompletedPostsOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tenantID := uuid.New()
	env := saleCompleted(tenantID, "120.40")

	require.NoError(t, f.d.Dispatch(ctx, env))
	require.NoError(t, f.d.Dispatch(ctx, env), "redelivered sale must not post twice")

	assert.Equal(t, 1, f.journal.Len())
	sourceKey := "sale:" + env.Payload.(events.SaleCompleted).SaleID.String()
	entry, err := f.svc.Entry(ctx, tenantID, sourceKey)
	require.NoError(t, err)
	assert.True(t, entry.Total().Equal(decimal.RequireFromString("120.40")))
	assert.Equal(t, env.EventID, entry.SourceEventID())

	lines := entry.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, ledger.AccountCash, lines[0].Account)
	assert.Equal(t, ledger.AccountSalesRevenue, lines[1].Account)

	pending, err := f.outbox.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, topics.AccountingEvents, pending[0].Topic)

	posted, err := f.codec.Decode(pending[0].Value)
	require.NoError(t, err)
	assert.Equal(t, env.EventID, posted.CorrelationID)
	assert.Equal(t, tenantID, posted.TenantID)
	payload := posted.Payload.(events.JournalPosted)
	assert.Equal(t, entry.ID(), payload.JournalID)
	assert.Equal(t, sourceKey, payload.SourceKey)
}

func TestAccounting_PurchaseFlow(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tenantID := uuid.New()
	purchaseID := uuid.New()

	received := events.NewPurchaseReceived(tenantID, events.PurchaseReceived{
		PurchaseID:  purchaseID,
		ShopID:      uuid.New(),
		TotalAmount: events.MoneyFromInt(500),
	})
	returned := events.NewPurchaseReturned(tenantID, events.PurchaseReturned{
		ReturnID:    uuid.New(),
		PurchaseID:  purchaseID,
		ShopID:      uuid.New(),
		TotalAmount: events.MoneyFromInt(50),
	})

	require.NoError(t, f.d.Dispatch(ctx, received))
	require.NoError(t, f.d.Dispatch(ctx, returned))
	assert.Equal(t, 2, f.journal.Len())

	entry, err := f.svc.Entry(ctx, tenantID, "purchase:"+purchaseID.String())
	require.NoError(t, err)
	assert.Equal(t, ledger.AccountInventory, entry.Lines()[0].Account)
	assert.Equal(t, ledger.AccountPayable, entry.Lines()[1].Account)
}

func TestAccounting_SaleReturned(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tenantID := uuid.New()
	returnID := uuid.New()

	require.NoError(t, f.d.Dispatch(ctx, events.NewSaleReturned(tenantID, events.SaleReturned{
		ReturnID:    returnID,
		SaleID:      uuid.New(),
		ShopID:      uuid.New(),
		TotalAmount: events.MustParseMoney("9.99"),
	})))

	entry, err := f.svc.Entry(ctx, tenantID, "sale-return:"+returnID.String())
	require.NoError(t, err)
	assert.Equal(t, ledger.AccountSalesReturns, entry.Lines()[0].Account)
	assert.Equal(t, ledger.AccountCash, entry.Lines()[1].Account)
}

func TestAccounting_ZeroAmountIsIgnored(t *testing.T) {
	f := newFixture()

	require.NoError(t, f.d.Dispatch(context.Background(), saleCompleted(uuid.New(), "0")))

	assert.Zero(t, f.journal.Len())
	assert.Zero(t, f.outbox.Len())
}

func TestAccounting_NegativeAmountIsPermanent(t *testing.T) {
	f := newFixture()

	err := f.d.Dispatch(context.Background(), saleCompleted(uuid.New(), "-5"))

	require.Error(t, err)
	assert.True(t, eventbus.IsPermanent(err))
	assert.ErrorIs(t, err, ledger.ErrInvalidLine)
}

func TestAccounting_UnknownEntry(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Entry(context.Background(), uuid.New(), "sale:nope")

	assert.ErrorIs(t, err, journalstore.ErrNotFound)
}
