package events

import "github.com/google/uuid"

// Builders pick the partition key of each produced event type. Stock
// movements and cash entries are keyed by shop so a shop's stock history
// stays ordered; documents are keyed by their own id.

func NewUserCreated(tenantID uuid.UUID, p UserCreated) Envelope {
	return New(tenantID, EntityKey(KindUser, p.UserID), p)
}

func NewUserUpdated(tenantID uuid.UUID, p UserUpdated) Envelope {
	return New(tenantID, EntityKey(KindUser, p.UserID), p)
}

func NewUserDeactivated(tenantID uuid.UUID, p UserDeactivated) Envelope {
	return New(tenantID, EntityKey(KindUser, p.UserID), p)
}

func NewTenantCreated(tenantID uuid.UUID, p TenantCreated) Envelope {
	return New(tenantID, EntityKey(KindTenant, tenantID), p)
}

func NewShopCreated(tenantID uuid.UUID, p ShopCreated) Envelope {
	return New(tenantID, EntityKey(KindShop, p.ShopID), p)
}

func NewStockAdjusted(tenantID uuid.UUID, p StockAdjusted) Envelope {
	if p.Quantity == 0 {
		p.Quantity = SumStock(p.Items)
	}
	return New(tenantID, EntityKey(KindShop, p.ShopID), p)
}

func NewStockTransferred(tenantID uuid.UUID, p StockTransferred) Envelope {
	return New(tenantID, EntityKey(KindShop, p.FromShopID), p)
}

func NewPurchaseReceived(tenantID uuid.UUID, p PurchaseReceived) Envelope {
	return New(tenantID, EntityKey(KindPurchase, p.PurchaseID), p)
}

func NewPurchaseReturned(tenantID uuid.UUID, p PurchaseReturned) Envelope {
	return New(tenantID, EntityKey(KindPurchase, p.PurchaseID), p)
}

func NewSaleCompleted(tenantID uuid.UUID, p SaleCompleted) Envelope {
	return New(tenantID, EntityKey(KindSale, p.SaleID), p)
}

func NewSaleReturned(tenantID uuid.UUID, p SaleReturned) Envelope {
	return New(tenantID, EntityKey(KindSale, p.SaleID), p)
}

func NewCashRegistered(tenantID uuid.UUID, p CashRegistered) Envelope {
	return New(tenantID, EntityKey(KindShop, p.ShopID), p)
}

func NewJournalPosted(tenantID uuid.UUID, p JournalPosted) Envelope {
	return New(tenantID, EntityKey(KindJournal, p.JournalID), p)
}

// SumStock totals the signed quantities of items.
func SumStock(items []StockItem) int64 {
	var total int64
	for _, it := range items {
		total += it.Quantity
	}
	return total
}
