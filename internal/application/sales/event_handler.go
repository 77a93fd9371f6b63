package sales

import (
	"context"
	"fmt"

	"eventsync/internal/domain/events"
	"eventsync/internal/domain/inventory"
	"eventsync/internal/domain/topics"
	"eventsync/internal/infrastructure/eventbus"

	"github.com/google/uuid"
)

// ConsumedTopics are the logical topics the sales service subscribes to.
var ConsumedTopics = []topics.Name{topics.StockEvents, topics.PurchaseEvents, topics.SalesEvents}

func (s *Service) Register(d *eventbus.Dispatcher) {
	d.MustRegister(topics.StockAdjusted, events.Handle(s.HandleStockAdjusted))
	d.MustRegister(topics.StockTransferred, events.Handle(s.HandleStockTransferred))
	d.MustRegister(topics.PurchaseReceived, events.Handle(s.HandlePurchaseReceived))
	d.MustRegister(topics.PurchaseReturned, events.Handle(s.HandlePurchaseReturned))
	d.MustRegister(topics.SaleCompleted, events.Handle(s.HandleSaleCompleted))
	d.MustRegister(topics.SaleReturned, events.Handle(s.HandleSaleReturned))
}

func (s *Service) HandleStockAdjusted(ctx context.Context, env events.Envelope, p events.StockAdjusted) error {
	return s.apply(ctx, env, p.ShopID, inventory.Movement{
		ID:    "adjustment:" + p.AdjustmentID.String(),
		Lines: lines(p.Items, 1),
	})
}

func (s *Service) HandleStockTransferred(ctx context.Context, env events.Envelope, p events.StockTransferred) error {
	id := p.TransferID.String()
	if err := s.apply(ctx, env, p.FromShopID, inventory.Movement{ID: "transfer-out:" + id, Lines: lines(p.Items, -1)}); err != nil {
		return err
	}
	return s.apply(ctx, env, p.ToShopID, inventory.Movement{ID: "transfer-in:" + id, Lines: lines(p.Items, 1)})
}

func (s *Service) HandlePurchaseReceived(ctx context.Context, env events.Envelope, p events.PurchaseReceived) error {
	return s.apply(ctx, env, p.ShopID, inventory.Movement{
		ID:    "purchase:" + p.PurchaseID.String(),
		Lines: lines(p.Items, 1),
	})
}

func (s *Service) HandlePurchaseReturned(ctx context.Context, env events.Envelope, p events.PurchaseReturned) error {
	return s.apply(ctx, env, p.ShopID, inventory.Movement{
		ID:    "purchase-return:" + p.ReturnID.String(),
		Lines: lines(p.Items, -1),
	})
}

// HandleSaleCompleted covers sales made by other instances. A sale made
// here was already taken out of the view under the same movement id.
func (s *Service) HandleSaleCompleted(ctx context.Context, env events.Envelope, p events.SaleCompleted) error {
	return s.apply(ctx, env, p.ShopID, saleMovement(p))
}

func (s *Service) HandleSaleReturned(ctx context.Context, env events.Envelope, p events.SaleReturned) error {
	return s.apply(ctx, env, p.ShopID, inventory.Movement{
		ID:    "sale-return:" + p.ReturnID.String(),
		Lines: saleLines(p.Items, 1),
	})
}

func (s *Service) apply(ctx context.Context, env events.Envelope, shopID uuid.UUID, m inventory.Movement) error {
	if shopID == uuid.Nil {
		return eventbus.Permanent(fmt.Errorf("%s %s has no shop id", env.EventType, env.EventID))
	}
	applied, err := s.availability.ApplyMovement(ctx, env.TenantID, shopID, m)
	if err != nil {
		return fmt.Errorf("failed to update availability: %w", err)
	}
	if applied {
		s.log.Debugw("availability updated", "movement_id", m.ID, "shop_id", shopID, "event_id", env.EventID)
	}
	return nil
}

func lines(items []events.StockItem, sign int64) []inventory.Line {
	out := make([]inventory.Line, 0, len(items))
	for _, it := range items {
		out = append(out, inventory.Line{ProductID: it.ProductID, Delta: sign * it.Quantity})
	}
	return out
}

func saleLines(items []events.SaleItem, sign int64) []inventory.Line {
	out := make([]inventory.Line, 0, len(items))
	for _, it := range items {
		out = append(out, inventory.Line{ProductID: it.ProductID, Delta: sign * it.Quantity})
	}
	return out
}
