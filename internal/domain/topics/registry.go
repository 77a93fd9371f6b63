package topics

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// DeadLetterSuffix is appended to a physical topic to name its DLQ.
const DeadLetterSuffix = ".DLQ"

// DefaultPrefix is the physical topic prefix used when none is configured.
const DefaultPrefix = "erp"

var (
	ErrUnknownTopic     = errors.New("unknown topic")
	ErrUnknownEventType = errors.New("unknown event type")
)

// Name is a logical channel name such as SALES_EVENTS.
type Name string

const (
	UserEvents       Name = "USER_EVENTS"
	TenantEvents     Name = "TENANT_EVENTS"
	StockEvents      Name = "STOCK_EVENTS"
	PurchaseEvents   Name = "PURCHASE_EVENTS"
	SalesEvents      Name = "SALES_EVENTS"
	AccountingEvents Name = "ACCOUNTING_EVENTS"
)

// Definition declares one topic: its physical name and the event types it
// carries, each with the field names its payload is expected to contain.
type Definition struct {
	Name       Name
	Physical   string
	EventTypes map[EventType][]string
}

type entry struct {
	physical   string
	eventTypes map[EventType]struct{}
}

// Registry is the static topic table. It is built once at startup and is
// read-only afterwards, so it is safe for concurrent use.
type Registry struct {
	byName     map[Name]entry
	byPhysical map[string]Name
	byType     map[EventType]Name
	required   map[EventType][]string
}

// New builds a Registry from defs. A logical name, physical name or event
// type may only be declared once.
func New(defs []Definition) (*Registry, error) {
	r := &Registry{
		byName:     make(map[Name]entry, len(defs)),
		byPhysical: make(map[string]Name, len(defs)),
		byType:     make(map[EventType]Name),
		required:   make(map[EventType][]string),
	}

	for _, def := range defs {
		if def.Name == "" || def.Physical == "" {
			return nil, fmt.Errorf("topic definition requires a name and a physical topic: %+v", def)
		}
		if _, exists := r.byName[def.Name]; exists {
			return nil, fmt.Errorf("duplicate topic %s", def.Name)
		}
		if other, exists := r.byPhysical[def.Physical]; exists {
			return nil, fmt.Errorf("physical topic %s already used by %s", def.Physical, other)
		}

		types := make(map[EventType]struct{}, len(def.EventTypes))
		for eventType, fields := range def.EventTypes {
			if other, exists := r.byType[eventType]; exists {
				return nil, fmt.Errorf("event type %s already registered on %s", eventType, other)
			}
			types[eventType] = struct{}{}
			r.byType[eventType] = def.Name
			r.required[eventType] = append([]string(nil), fields...)
		}

		r.byName[def.Name] = entry{physical: def.Physical, eventTypes: types}
		r.byPhysical[def.Physical] = def.Name
	}

	return r, nil
}

// Default returns the registry of every business service topic. Physical
// names are "<prefix>.<service>.<channel>".
func Default(prefix string) *Registry {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	p := func(s string) string { return prefix + "." + s }

	r, err := New([]Definition{
		{
			Name:     UserEvents,
			Physical: p("auth.user-events"),
			EventTypes: map[EventType][]string{
				UserCreated:     {"user_id", "tenant_id", "email"},
				UserUpdated:     {"user_id", "tenant_id"},
				UserDeactivated: {"user_id", "tenant_id"},
			},
		},
		{
			Name:     TenantEvents,
			Physical: p("core.tenant-events"),
			EventTypes: map[EventType][]string{
				TenantCreated: {"tenant_id", "name"},
				ShopCreated:   {"shop_id", "tenant_id", "name"},
			},
		},
		{
			Name:     StockEvents,
			Physical: p("inventory.stock-adjustments"),
			EventTypes: map[EventType][]string{
				StockAdjusted:    {"adjustment_id", "brand_id", "shop_id", "tenant_id", "quantity", "items"},
				StockTransferred: {"transfer_id", "from_shop_id", "to_shop_id", "tenant_id", "items"},
			},
		},
		{
			Name:     PurchaseEvents,
			Physical: p("purchase.events"),
			EventTypes: map[EventType][]string{
				PurchaseReceived: {"purchase_id", "shop_id", "supplier_id", "tenant_id", "items", "total_amount"},
				PurchaseReturned: {"return_id", "purchase_id", "shop_id", "tenant_id", "items", "total_amount"},
			},
		},
		{
			Name:     SalesEvents,
			Physical: p("sales.events"),
			EventTypes: map[EventType][]string{
				SaleCompleted:  {"sale_id", "shop_id", "tenant_id", "items", "total_amount"},
				SaleReturned:   {"return_id", "sale_id", "shop_id", "tenant_id", "items", "total_amount"},
				CashRegistered: {"register_id", "shop_id", "tenant_id", "amount"},
			},
		},
		{
			Name:     AccountingEvents,
			Physical: p("accounting.journal-events"),
			EventTypes: map[EventType][]string{
				JournalPosted: {"journal_id", "tenant_id", "source_key", "lines"},
			},
		},
	})
	if err != nil {
		panic(fmt.Sprintf("topics: invalid default table: %v", err))
	}
	return r
}

// Resolve maps a logical name to its physical topic.
func (r *Registry) Resolve(name Name) (string, error) {
	e, ok := r.byName[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTopic, name)
	}
	return e.physical, nil
}

// ResolveAll maps logical names to physical topics, failing on the first
// unknown name.
func (r *Registry) ResolveAll(names []Name) ([]string, error) {
	out := make([]string, 0, len(names))
	for _, n := range names {
		physical, err := r.Resolve(n)
		if err != nil {
			return nil, err
		}
		out = append(out, physical)
	}
	return out, nil
}

// ValidEventTypes returns a copy of the set of event types carried by name.
func (r *Registry) ValidEventTypes(name Name) (map[EventType]struct{}, error) {
	e, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTopic, name)
	}
	out := make(map[EventType]struct{}, len(e.eventTypes))
	for t := range e.eventTypes {
		out[t] = struct{}{}
	}
	return out, nil
}

// Carries reports whether eventType may be published on name.
func (r *Registry) Carries(name Name, eventType EventType) bool {
	e, ok := r.byName[name]
	if !ok {
		return false
	}
	_, ok = e.eventTypes[eventType]
	return ok
}

// IsKnown reports whether eventType is registered on any topic.
func (r *Registry) IsKnown(eventType EventType) bool {
	_, ok := r.byType[eventType]
	return ok
}

// TopicOf returns the logical topic that carries eventType.
func (r *Registry) TopicOf(eventType EventType) (Name, bool) {
	n, ok := r.byType[eventType]
	return n, ok
}

// LogicalOf maps a physical topic back to its logical name. Dead-letter
// topics resolve to the logical name of the topic they shadow.
func (r *Registry) LogicalOf(physical string) (Name, bool) {
	n, ok := r.byPhysical[strings.TrimSuffix(physical, DeadLetterSuffix)]
	return n, ok
}

// RequiredFields returns the advisory field list for eventType.
func (r *Registry) RequiredFields(eventType EventType) []string {
	return append([]string(nil), r.required[eventType]...)
}

// Names returns every logical name, sorted.
func (r *Registry) Names() []Name {
	out := make([]Name, 0, len(r.byName))
	for n := range r.byName {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Physical returns every physical topic, sorted.
func (r *Registry) Physical() []string {
	out := make([]string, 0, len(r.byPhysical))
	for p := range r.byPhysical {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// DeadLetterTopic names the dead-letter topic of a physical topic.
func DeadLetterTopic(physical string) string {
	return physical + DeadLetterSuffix
}

// IsDeadLetterTopic reports whether physical is a dead-letter topic.
func IsDeadLetterTopic(physical string) bool {
	return strings.HasSuffix(physical, DeadLetterSuffix)
}
