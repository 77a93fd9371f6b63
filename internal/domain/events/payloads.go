package events

import (
	"encoding/json"

	"eventsync/internal/domain/topics"

	"github.com/google/uuid"
)

// Payload fields are flattened next to the envelope header on the wire, so
// no payload may declare event_id, event_type, key, tenant_id,
// correlation_id or timestamp. The tenant travels in the header.

type UserCreated struct {
	UserID   uuid.UUID `json:"user_id"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name,omitempty"`
	Role     string    `json:"role,omitempty"`
}

func (UserCreated) EventType() EventType { return topics.UserCreated }

type UserUpdated struct {
	UserID   uuid.UUID `json:"user_id"`
	Email    string    `json:"email,omitempty"`
	FullName string    `json:"full_name,omitempty"`
	Role     string    `json:"role,omitempty"`
}

func (UserUpdated) EventType() EventType { return topics.UserUpdated }

type UserDeactivated struct {
	UserID uuid.UUID `json:"user_id"`
	Reason string    `json:"reason,omitempty"`
}

func (UserDeactivated) EventType() EventType { return topics.UserDeactivated }

type TenantCreated struct {
	Name string `json:"name"`
	Plan string `json:"plan,omitempty"`
}

func (TenantCreated) EventType() EventType { return topics.TenantCreated }

type ShopCreated struct {
	ShopID  uuid.UUID `json:"shop_id"`
	Name    string    `json:"name"`
	Address string    `json:"address,omitempty"`
}

func (ShopCreated) EventType() EventType { return topics.ShopCreated }

// StockItem is one product line of a stock movement.
type StockItem struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int64     `json:"quantity"`
	UnitCost  Money     `json:"unit_cost"`
}

// StockAdjusted carries a signed quantity per item; Quantity is the sum.
type StockAdjusted struct {
	AdjustmentID uuid.UUID   `json:"adjustment_id"`
	BrandID      uuid.UUID   `json:"brand_id"`
	ShopID       uuid.UUID   `json:"shop_id"`
	Quantity     int64       `json:"quantity"`
	Items        []StockItem `json:"items"`
	Reason       string      `json:"reason,omitempty"`
}

func (StockAdjusted) EventType() EventType { return topics.StockAdjusted }

type StockTransferred struct {
	TransferID uuid.UUID   `json:"transfer_id"`
	FromShopID uuid.UUID   `json:"from_shop_id"`
	ToShopID   uuid.UUID   `json:"to_shop_id"`
	Items      []StockItem `json:"items"`
}

func (StockTransferred) EventType() EventType { return topics.StockTransferred }

type PurchaseReceived struct {
	PurchaseID  uuid.UUID   `json:"purchase_id"`
	ShopID      uuid.UUID   `json:"shop_id"`
	SupplierID  uuid.UUID   `json:"supplier_id"`
	Items       []StockItem `json:"items"`
	TotalAmount Money       `json:"total_amount"`
}

func (PurchaseReceived) EventType() EventType { return topics.PurchaseReceived }

type PurchaseReturned struct {
	ReturnID    uuid.UUID   `json:"return_id"`
	PurchaseID  uuid.UUID   `json:"purchase_id"`
	ShopID      uuid.UUID   `json:"shop_id"`
	Items       []StockItem `json:"items"`
	TotalAmount Money       `json:"total_amount"`
}

func (PurchaseReturned) EventType() EventType { return topics.PurchaseReturned }

// SaleItem is one sold product line.
type SaleItem struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int64     `json:"quantity"`
	UnitPrice Money     `json:"unit_price"`
}

type SaleCompleted struct {
	SaleID        uuid.UUID  `json:"sale_id"`
	ShopID        uuid.UUID  `json:"shop_id"`
	Items         []SaleItem `json:"items"`
	TotalAmount   Money      `json:"total_amount"`
	PaymentMethod string     `json:"payment_method,omitempty"`
}

func (SaleCompleted) EventType() EventType { return topics.SaleCompleted }

type SaleReturned struct {
	ReturnID    uuid.UUID  `json:"return_id"`
	SaleID      uuid.UUID  `json:"sale_id"`
	ShopID      uuid.UUID  `json:"shop_id"`
	Items       []SaleItem `json:"items"`
	TotalAmount Money      `json:"total_amount"`
}

func (SaleReturned) EventType() EventType { return topics.SaleReturned }

// Cash directions.
const (
	CashIn  = "in"
	CashOut = "out"
)

type CashRegistered struct {
	RegisterID uuid.UUID `json:"register_id"`
	ShopID     uuid.UUID `json:"shop_id"`
	Amount     Money     `json:"amount"`
	Direction  string    `json:"direction"`
	Note       string    `json:"note,omitempty"`
}

func (CashRegistered) EventType() EventType { return topics.CashRegistered }

type JournalLine struct {
	Account string `json:"account"`
	Debit   Money  `json:"debit"`
	Credit  Money  `json:"credit"`
}

type JournalPosted struct {
	JournalID     uuid.UUID     `json:"journal_id"`
	SourceKey     string        `json:"source_key"`
	SourceEventID string        `json:"source_event_id,omitempty"`
	Lines         []JournalLine `json:"lines"`
}

func (JournalPosted) EventType() EventType { return topics.JournalPosted }

// RawPayload holds the undecoded fields of an event type this build does
// not know about.
type RawPayload struct {
	Type   EventType
	Fields map[string]json.RawMessage
}

func (r RawPayload) EventType() EventType { return r.Type }
