package stockstore

import (
	"context"
	"sync"
	"testing"

	"eventsync/internal/domain/inventory"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_ApplyMovement(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	tenantID, shopID, product := uuid.New(), uuid.New(), uuid.New()

	_, err := store.Get(ctx, tenantID, shopID)
	assert.ErrorIs(t, err, ErrNotFound)

	m := inventory.Movement{ID: "adjustment:1", Lines: []inventory.Line{{ProductID: product, Delta: 40}}}
	applied, err := store.ApplyMovement(ctx, tenantID, shopID, m)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = store.ApplyMovement(ctx, tenantID, shopID, m)
	require.NoError(t, err)
	assert.False(t, applied, "replayed movement must not count twice")

	stock, err := store.Get(ctx, tenantID, shopID)
	require.NoError(t, err)
	assert.Equal(t, int64(40), stock.OnHand(product))
	assert.Equal(t, 1, stock.Version())
	assert.True(t, stock.HasApplied("adjustment:1"))

	_, err = store.Get(ctx, uuid.New(), shopID)
	assert.ErrorIs(t, err, ErrNotFound, "stock is scoped by tenant")
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	tenantID, shopID, product := uuid.New(), uuid.New(), uuid.New()

	_, err := store.ApplyMovement(ctx, tenantID, shopID, inventory.Movement{ID: "a", Lines: []inventory.Line{{ProductID: product, Delta: 5}}})
	require.NoError(t, err)

	stock, err := store.Get(ctx, tenantID, shopID)
	require.NoError(t, err)
	_, err = stock.Apply(inventory.Movement{ID: "b", Lines: []inventory.Line{{ProductID: product, Delta: 5}}})
	require.NoError(t, err)

	again, err := store.Get(ctx, tenantID, shopID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), again.OnHand(product))
}

func TestMemoryStore_ConcurrentMovements(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	tenantID, shopID, product := uuid.New(), uuid.New(), uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// every movement id is sent twice
			id := "sale:" + uuid.NewSHA1(uuid.NameSpaceOID, []byte{byte(i / 2)}).String()
			_, _ = store.ApplyMovement(ctx, tenantID, shopID, inventory.Movement{ID: id, Lines: []inventory.Line{{ProductID: product, Delta: -1}}})
		}(i)
	}
	wg.Wait()

	stock, err := store.Get(ctx, tenantID, shopID)
	require.NoError(t, err)
	assert.Equal(t, int64(-25), stock.OnHand(product))
}
