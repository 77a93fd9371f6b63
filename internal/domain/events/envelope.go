package events

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"eventsync/internal/domain/topics"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// EventType is re-exported so callers rarely need the topics package.
type EventType = topics.EventType

var (
	ErrMissingEventType = errors.New("envelope has no event type")
	ErrMissingKey       = errors.New("envelope has no key")
	ErrMissingTenant    = errors.New("envelope has no tenant id")
	ErrMissingPayload   = errors.New("envelope has no payload")
)

// Payload is implemented by every typed event body.
type Payload interface {
	EventType() EventType
}

// Envelope is the unit published to and consumed from the broker.
type Envelope struct {
	EventID       string
	EventType     EventType
	Key           string
	TenantID      uuid.UUID
	CorrelationID string
	EmittedAt     time.Time
	Payload       Payload
}

// Validate checks the fields a publisher must never send without.
func (e Envelope) Validate() error {
	var errs []error
	if e.EventType == "" {
		errs = append(errs, ErrMissingEventType)
	}
	if strings.TrimSpace(e.Key) == "" {
		errs = append(errs, ErrMissingKey)
	}
	if e.TenantID == uuid.Nil {
		errs = append(errs, ErrMissingTenant)
	}
	if e.Payload == nil {
		errs = append(errs, ErrMissingPayload)
	}
	return errors.Join(errs...)
}

// WithCorrelation returns a copy of e correlated with the triggering event.
func (e Envelope) WithCorrelation(parent Envelope) Envelope {
	if parent.CorrelationID != "" {
		e.CorrelationID = parent.CorrelationID
	} else {
		e.CorrelationID = parent.EventID
	}
	return e
}

// New wraps payload in an envelope stamped with a fresh event id and the
// current UTC time.
func New(tenantID uuid.UUID, key string, payload Payload) Envelope {
	env := Envelope{
		EventID:   NewEventID(),
		TenantID:  tenantID,
		Key:       key,
		EmittedAt: time.Now().UTC(),
		Payload:   payload,
	}
	if payload != nil {
		env.EventType = payload.EventType()
	}
	return env
}

// Entity kinds used to build partition keys.
const (
	KindUser     = "user"
	KindTenant   = "tenant"
	KindShop     = "shop"
	KindProduct  = "product"
	KindSale     = "sale"
	KindPurchase = "purchase"
	KindJournal  = "journal"
)

// EntityKey builds a "{kind}:{id}" partition key.
func EntityKey(kind string, id uuid.UUID) string {
	return kind + ":" + id.String()
}

// SplitKey is the inverse of EntityKey. ok is false when key has no kind.
func SplitKey(key string) (kind, id string, ok bool) {
	kind, id, ok = strings.Cut(key, ":")
	if !ok || kind == "" || id == "" {
		return "", "", false
	}
	return kind, id, true
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewEventID returns a time-sortable ULID.
func NewEventID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
