package sales

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

var ErrEmptySale = errors.New("sale has no items")

// Publisher is satisfied by *eventbus.Publisher.
type Publisher interface {
	Publish(ctx context.Context, topic topics.Name, env events.Envelope) (eventbus.Ack, error)
}

// Service sells from the sales service's own copy of shop stock. The copy
// is eventually consistent with inventory and may briefly lag behind it.
type Service struct {
	availability stockstore.Store
	publisher    Publisher
	log          *zap.SugaredLogger
}

func NewService(availability stockstore.Store, publisher Publisher, log *zap.SugaredLogger) *Service {
	return &Service{
		availability: availability,
		publisher:    publisher,
		log:          log,
	}
}

type CompleteSaleRequest struct {
	TenantID      uuid.UUID         `json:"tenant_id"`
	ShopID        uuid.UUID         `json:"shop_id"`
	Items         []events.SaleItem `json:"items"`
	PaymentMethod string            `json:"payment_method"`
}

// CompleteSale checks the local availability view, publishes
// sale_completed and then takes the sold quantities out of the view.
func (s *Service) CompleteSale(ctx context.Context, req CompleteSaleRequest) (events.Envelope, error) {
	if len(req.Items) == 0 {
		return events.Envelope{}, ErrEmptySale
	}

	lines := make([]inventory.Line, 0, len(req.Items))
	var total events.Money
	for _, it := range req.Items {
		lines = append(lines, inventory.Line{ProductID: it.ProductID, Delta: it.Quantity})
		total = total.Add(it.UnitPrice.Mul(it.Quantity))
	}

	stock, err := s.availability.Get(ctx, req.TenantID, req.ShopID)
	if errors.Is(err, stockstore.ErrNotFound) {
		stock = inventory.NewShopStock(req.TenantID, req.ShopID)
	} else if err != nil {
		return events.Envelope{}, fmt.Errorf("failed to load availability: %w", err)
	}
	if err := stock.CanFulfil(lines); err != nil {
		return events.Envelope{}, err
	}

	payload := events.SaleCompleted{
		SaleID:        uuid.New(),
		ShopID:        req.ShopID,
		Items:         req.Items,
		TotalAmount:   total,
		PaymentMethod: req.PaymentMethod,
	}
	env := events.NewSaleCompleted(req.TenantID, payload)
	if _, err := s.publisher.Publish(ctx, topics.SalesEvents, env); err != nil {
		return events.Envelope{}, fmt.Errorf("failed to publish sale: %w", err)
	}

	if _, err := s.availability.ApplyMovement(ctx, req.TenantID, req.ShopID, saleMovement(payload)); err != nil {
		// the event is out; the view catches up on the next stock event
		s.log.Warnw("failed to update availability after sale", "sale_id", payload.SaleID, "error", err)
	}

	s.log.Infow("sale completed",
		"tenant_id", req.TenantID,
		"shop_id", req.ShopID,
		"sale_id", payload.SaleID,
		"total", total.String(),
	)
	return env, nil
}

// Availability returns the sales view of a shop's stock.
func (s *Service) Availability(ctx context.Context, tenantID, shopID uuid.UUID) (*inventory.ShopStock, error) {
	return s.availability.Get(ctx, tenantID, shopID)
}

func saleMovement(p events.SaleCompleted) inventory.Movement {
	return inventory.Movement{ID: "sale:" + p.SaleID.String(), Lines: saleLines(p.Items, -1)}
}
