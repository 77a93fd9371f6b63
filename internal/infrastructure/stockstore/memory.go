package stockstore

import (
	"context"
	"sync"

	"eventsync/internal/domain/inventory"

	"github.com/google/uuid"
)

type shopKey struct {
	tenantID uuid.UUID
	shopID   uuid.UUID
}

// MemoryStore keeps stock in process. Used by tests and by services
// started without a database.
type MemoryStore struct {
	mu    sync.Mutex
	shops map[shopKey]*inventory.ShopStock
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{shops: make(map[shopKey]*inventory.ShopStock)}
}

func (s *MemoryStore) ApplyMovement(ctx context.Context, tenantID, shopID uuid.UUID, m inventory.Movement) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := shopKey{tenantID: tenantID, shopID: shopID}
	stock, ok := s.shops[key]
	if !ok {
		stock = inventory.NewShopStock(tenantID, shopID)
	}
	applied, err := stock.Apply(m)
	if err != nil {
		return false, err
	}
	s.shops[key] = stock
	return applied, nil
}

func (s *MemoryStore) Get(ctx context.Context, tenantID, shopID uuid.UUID) (*inventory.ShopStock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stock, ok := s.shops[shopKey{tenantID: tenantID, shopID: shopID}]
	if !ok {
		return nil, ErrNotFound
	}
	return inventory.Restore(tenantID, shopID, stock.Levels(), stock.AppliedMovements(), stock.Version()), nil
}
