package inventory

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

var (
	// ErrInsufficientStock indicates a shop cannot cover the requested quantity
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrEmptyMovementID   = errors.New("movement id is required")
)

// Line is a signed quantity change of one product.
type Line struct {
	ProductID uuid.UUID
	Delta     int64
}

// Movement is a stock change caused by one business document. ID names the
// document ("adjustment:<id>", "sale:<id>", ...) and is what makes applying
// the movement idempotent.
type Movement struct {
	ID    string
	Lines []Line
}

// ShopStock is the stock aggregate of one shop
type ShopStock struct {
	tenantID uuid.UUID
	shopID   uuid.UUID
	onHand   map[uuid.UUID]int64
	applied  map[string]struct{}
	version  int
}

// NewShopStock creates an empty stock aggregate
func NewShopStock(tenantID, shopID uuid.UUID) *ShopStock {
	return &ShopStock{
		tenantID: tenantID,
		shopID:   shopID,
		onHand:   make(map[uuid.UUID]int64),
		applied:  make(map[string]struct{}),
	}
}

// Restore rebuilds an aggregate from persisted state.
func Restore(tenantID, shopID uuid.UUID, onHand map[uuid.UUID]int64, applied []string, version int) *ShopStock {
	s := NewShopStock(tenantID, shopID)
	for product, qty := range onHand {
		s.onHand[product] = qty
	}
	for _, id := range applied {
		s.applied[id] = struct{}{}
	}
	s.version = version
	return s
}

func (s *ShopStock) TenantID() uuid.UUID {
	return s.tenantID
}

func (s *ShopStock) ShopID() uuid.UUID {
	return s.shopID
}

// Version returns the aggregate version for optimistic locking
func (s *ShopStock) Version() int {
	return s.version
}

// OnHand returns the quantity of product, zero when never stocked.
func (s *ShopStock) OnHand(productID uuid.UUID) int64 {
	return s.onHand[productID]
}

// Levels returns a copy of every product level.
func (s *ShopStock) Levels() map[uuid.UUID]int64 {
	out := make(map[uuid.UUID]int64, len(s.onHand))
	for product, qty := range s.onHand {
		out[product] = qty
	}
	return out
}

// HasApplied reports whether movement id was already applied.
func (s *ShopStock) HasApplied(id string) bool {
	_, ok := s.applied[id]
	return ok
}

// AppliedMovements lists the applied movement ids in sorted order.
func (s *ShopStock) AppliedMovements() []string {
	out := make([]string, 0, len(s.applied))
	for id := range s.applied {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Apply adds m to the stock levels once. A movement seen before is a no-op
// and reports false. Levels may go negative: movements record facts that
// already happened in another service.
func (s *ShopStock) Apply(m Movement) (bool, error) {
	if m.ID == "" {
		return false, ErrEmptyMovementID
	}
	if s.HasApplied(m.ID) {
		return false, nil
	}

	for _, line := range m.Lines {
		s.onHand[line.ProductID] += line.Delta
	}
	s.applied[m.ID] = struct{}{}
	s.version++
	return true, nil
}

// CanFulfil checks that every line can be taken out of stock.
func (s *ShopStock) CanFulfil(lines []Line) error {
	need := make(map[uuid.UUID]int64, len(lines))
	for _, line := range lines {
		if line.Delta <= 0 {
			return fmt.Errorf("quantity for product %s must be positive", line.ProductID)
		}
		need[line.ProductID] += line.Delta
	}
	for product, qty := range need {
		if s.onHand[product] < qty {
			return fmt.Errorf("%w: product %s has %d, needs %d", ErrInsufficientStock, product, s.onHand[product], qty)
		}
	}
	return nil
}
