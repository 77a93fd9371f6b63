package inventory

import (
	"context"
	"errors"
	"fmt"

	"eventsync/internal/domain/events"
	"eventsync/internal/domain/inventory"
	"eventsync/internal/domain/topics"
	"eventsync/internal/infrastructure/eventbus"
	"eventsync/internal/infrastructure/stockstore"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Publisher is satisfied by *eventbus.Publisher.
type Publisher interface {
	Publish(ctx context.Context, topic topics.Name, env events.Envelope) (eventbus.Ack, error)
}

// Service keeps the per-shop stock ledger of the inventory service.
type Service struct {
	store     stockstore.Store
	publisher Publisher
	log       *zap.SugaredLogger
}

func NewService(store stockstore.Store, publisher Publisher, log *zap.SugaredLogger) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		log:       log,
	}
}

// AdjustStockRequest describes a manual adjustment. AdjustmentID is
// optional; a client that retries with the same id is counted once.
type AdjustStockRequest struct {
	AdjustmentID uuid.UUID          `json:"adjustment_id"`
	TenantID     uuid.UUID          `json:"tenant_id"`
	BrandID      uuid.UUID          `json:"brand_id"`
	ShopID       uuid.UUID          `json:"shop_id"`
	Items        []events.StockItem `json:"items"`
	Reason       string             `json:"reason"`
}

// AdjustStock announces a manual adjustment and then applies it locally.
// Nothing is applied unless the broker acknowledged the event. The local
// apply and the consumed copy of the event share one movement id, so the
// adjustment is counted once.
func (s *Service) AdjustStock(ctx context.Context, req AdjustStockRequest) (events.Envelope, error) {
	if len(req.Items) == 0 {
		return events.Envelope{}, errors.New("adjustment has no items")
	}

	adjustmentID := req.AdjustmentID
	if adjustmentID == uuid.Nil {
		adjustmentID = uuid.New()
	}

	payload := events.StockAdjusted{
		AdjustmentID: adjustmentID,
		BrandID:      req.BrandID,
		ShopID:       req.ShopID,
		Items:        req.Items,
		Reason:       req.Reason,
	}
	env := events.NewStockAdjusted(req.TenantID, payload)
	if err := env.Validate(); err != nil {
		return events.Envelope{}, err
	}

	if _, err := s.publisher.Publish(ctx, topics.StockEvents, env); err != nil {
		return events.Envelope{}, fmt.Errorf("failed to publish stock adjustment: %w", err)
	}
	if _, err := s.store.ApplyMovement(ctx, req.TenantID, req.ShopID, adjustmentMovement(payload)); err != nil {
		// the event is out; our own consumer applies it under the same movement id
		s.log.Warnw("failed to apply adjustment locally", "adjustment_id", adjustmentID, "error", err)
	}

	s.log.Infow("stock adjusted",
		"tenant_id", req.TenantID,
		"shop_id", req.ShopID,
		"adjustment_id", payload.AdjustmentID,
		"quantity", events.SumStock(req.Items),
	)
	return env, nil
}

// Stock returns the current stock of a shop.
func (s *Service) Stock(ctx context.Context, tenantID, shopID uuid.UUID) (*inventory.ShopStock, error) {
	return s.store.Get(ctx, tenantID, shopID)
}

func adjustmentMovement(p events.StockAdjusted) inventory.Movement {
	return inventory.Movement{ID: "adjustment:" + p.AdjustmentID.String(), Lines: stockLines(p.Items, 1)}
}

func stockLines(items []events.StockItem, sign int64) []inventory.Line {
	lines := make([]inventory.Line, 0, len(items))
	for _, it := range items {
		lines = append(lines, inventory.Line{ProductID: it.ProductID, Delta: sign * it.Quantity})
	}
	return lines
}

func saleLines(items []events.SaleItem, sign int64) []inventory.Line {
	lines := make([]inventory.Line, 0, len(items))
	for _, it := range items {
		lines = append(lines, inventory.Line{ProductID: it.ProductID, Delta: sign * it.Quantity})
	}
	return lines
}
