package stockstore

import (
	"context"
	"errors"

	"eventsync/internal/domain/inventory"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("shop stock not found")

// Store persists shop stock aggregates.
type Store interface {
	// ApplyMovement applies m to the stock of a shop exactly once. It
	// reports false when the movement was applied before.
	ApplyMovement(ctx context.Context, tenantID, shopID uuid.UUID, m inventory.Movement) (bool, error)
	// Get loads the stock of a shop, ErrNotFound when nothing was ever
	// applied to it.
	Get(ctx context.Context, tenantID, shopID uuid.UUID) (*inventory.ShopStock, error)
}
