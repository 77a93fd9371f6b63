package topics

// EventType discriminates the payload shape of an envelope.
type EventType string

func (t EventType) String() string {
	return string(t)
}

// Auth service
const (
	UserCreated     EventType = "user_created"
	UserUpdated     EventType = "user_updated"
	UserDeactivated EventType = "user_deactivated"
)

// Core/tenant service
const (
	TenantCreated EventType = "tenant_created"
	ShopCreated   EventType = "shop_created"
)

// Inventory service
const (
	StockAdjusted    EventType = "stock_adjusted"
	StockTransferred EventType = "stock_transferred"
)

// Purchase service
const (
	PurchaseReceived EventType = "purchase_received"
	PurchaseReturned EventType = "purchase_returned"
)

// Sales service. The three types share one physical topic.
const (
	SaleCompleted  EventType = "sale_completed"
	SaleReturned   EventType = "sale_returned"
	CashRegistered EventType = "cash_registered"
)

// Accounting service
const (
	JournalPosted EventType = "journal_posted"
)
