//go:build integration
// +build integration

package stockstore

import (
	"context"
	"os"
	"testing"
	"time"

	"eventsync/internal/domain/inventory"
	"eventsync/internal/infrastructure/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.Open(ctx, url)
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db, "inventory-service")
	require.NoError(t, store.EnsureSchema(ctx))

	tenantID, shopID, product := uuid.New(), uuid.New(), uuid.New()
	m := inventory.Movement{ID: "purchase:" + uuid.NewString(), Lines: []inventory.Line{{ProductID: product, Delta: 12}}}

	applied, err := store.ApplyMovement(ctx, tenantID, shopID, m)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = store.ApplyMovement(ctx, tenantID, shopID, m)
	require.NoError(t, err)
	assert.False(t, applied)

	stock, err := store.Get(ctx, tenantID, shopID)
	require.NoError(t, err)
	assert.Equal(t, int64(12), stock.OnHand(product))
	assert.True(t, stock.HasApplied(m.ID))

	_, err = store.Get(ctx, uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	view := NewPostgresStore(db, "sales-service")
	applied, err = view.ApplyMovement(ctx, tenantID, shopID, m)
	require.NoError(t, err)
	assert.True(t, applied, "another owner keeps its own copy")
}
