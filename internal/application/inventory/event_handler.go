package inventory

import (
	"context"
	"fmt"

	"eventsync/internal/domain/events"
	"eventsync/internal/domain/inventory"
	"eventsync/internal/domain/topics"
	"eventsync/internal/infrastructure/eventbus"

	"github.com/google/uuid"
)

// ConsumedTopics are the logical topics the inventory service subscribes to.
var ConsumedTopics = []topics.Name{topics.StockEvents, topics.PurchaseEvents, topics.SalesEvents}

// Register wires the inventory handlers into d.
func (s *Service) Register(d *eventbus.Dispatcher) {
	d.MustRegister(topics.StockAdjusted, events.Handle(s.HandleStockAdjusted))
	d.MustRegister(topics.StockTransferred, events.Handle(s.HandleStockTransferred))
	d.MustRegister(topics.PurchaseReceived, events.Handle(s.HandlePurchaseReceived))
	d.MustRegister(topics.PurchaseReturned, events.Handle(s.HandlePurchaseReturned))
	d.MustRegister(topics.SaleCompleted, events.Handle(s.HandleSaleCompleted))
	d.MustRegister(topics.SaleReturned, events.Handle(s.HandleSaleReturned))
}

func (s *Service) HandleStockAdjusted(ctx context.Context, env events.Envelope, p events.StockAdjusted) error {
	return s.apply(ctx, env, p.ShopID, adjustmentMovement(p))
}

// HandleStockTransferred moves stock out of one shop and into another.
// Each side is its own movement so a retry after a partial failure only
// applies the missing side.
func (s *Service) HandleStockTransferred(ctx context.Context, env events.Envelope, p events.StockTransferred) error {
	id := p.TransferID.String()
	if err := s.apply(ctx, env, p.FromShopID, inventory.Movement{ID: "transfer-out:" + id, Lines: stockLines(p.Items, -1)}); err != nil {
		return err
	}
	return s.apply(ctx, env, p.ToShopID, inventory.Movement{ID: "transfer-in:" + id, Lines: stockLines(p.Items, 1)})
}

func (s *Service) HandlePurchaseReceived(ctx context.Context, env events.Envelope, p events.PurchaseReceived) error {
	return s.apply(ctx, env, p.ShopID, inventory.Movement{ID: "purchase:" + p.PurchaseID.String(), Lines: stockLines(p.Items, 1)})
}

func (s *Service) HandlePurchaseReturned(ctx context.Context, env events.Envelope, p events.PurchaseReturned) error {
	return s.apply(ctx, env, p.ShopID, inventory.Movement{ID: "purchase-return:" + p.ReturnID.String(), Lines: stockLines(p.Items, -1)})
}

func (s *Service) HandleSaleCompleted(ctx context.Context, env events.Envelope, p events.SaleCompleted) error {
	return s.apply(ctx, env, p.ShopID, inventory.Movement{ID: "sale:" + p.SaleID.String(), Lines: saleLines(p.Items, -1)})
}

func (s *Service) HandleSaleReturned(ctx context.Context, env events.Envelope, p events.SaleReturned) error {
	return s.apply(ctx, env, p.ShopID, inventory.Movement{ID: "sale-return:" + p.ReturnID.String(), Lines: saleLines(p.Items, 1)})
}

func (s *Service) apply(ctx context.Context, env events.Envelope, shopID uuid.UUID, m inventory.Movement) error {
	if shopID == uuid.Nil {
		return eventbus.Permanent(fmt.Errorf("%s %s has no shop id", env.EventType, env.EventID))
	}

	applied, err := s.store.ApplyMovement(ctx, env.TenantID, shopID, m)
	if err != nil {
		return fmt.Errorf("failed to apply movement %s: %w", m.ID, err)
	}
	if !applied {
		s.log.Debugw("movement already applied",
			"movement_id", m.ID,
			"event_id", env.EventID,
			"tenant_id", env.TenantID,
		)
		return nil
	}

	s.log.Infow("stock movement applied",
		"movement_id", m.ID,
		"event_type", env.EventType,
		"event_id", env.EventID,
		"tenant_id", env.TenantID,
		"shop_id", shopID,
		"lines", len(m.Lines),
	)
	return nil
}
