package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"eventsync/internal/common/jsoncodec"
	"eventsync/internal/domain/topics"

	"github.com/google/uuid"
)

// Header fields of the flat wire object.
const (
	FieldEventID       = "event_id"
	FieldEventType     = "event_type"
	FieldKey           = "key"
	FieldTenantID      = "tenant_id"
	FieldCorrelationID = "correlation_id"
	FieldTimestamp     = "timestamp"
)

var headerFields = []string{
	FieldEventID,
	FieldEventType,
	FieldKey,
	FieldTenantID,
	FieldCorrelationID,
	FieldTimestamp,
}

// ErrUnknownEventType is returned by Decode, wrapped, together with a fully
// decoded header and a RawPayload.
var ErrUnknownEventType = topics.ErrUnknownEventType

// DecodeError reports bytes that cannot be turned into an Envelope. Such a
// message can never succeed and is skipped by consumers.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode envelope: %s: %v", e.Reason, e.Err)
	}
	return "decode envelope: " + e.Reason
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError reports whether err is or wraps a *DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

type payloadDecoder func([]byte) (Payload, error)

func decodeAs[T Payload](data []byte) (Payload, error) {
	var p T
	if err := jsoncodec.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return p, nil
}

var payloadDecoders = map[EventType]payloadDecoder{
	topics.UserCreated:      decodeAs[UserCreated],
	topics.UserUpdated:      decodeAs[UserUpdated],
	topics.UserDeactivated:  decodeAs[UserDeactivated],
	topics.TenantCreated:    decodeAs[TenantCreated],
	topics.ShopCreated:      decodeAs[ShopCreated],
	topics.StockAdjusted:    decodeAs[StockAdjusted],
	topics.StockTransferred: decodeAs[StockTransferred],
	topics.PurchaseReceived: decodeAs[PurchaseReceived],
	topics.PurchaseReturned: decodeAs[PurchaseReturned],
	topics.SaleCompleted:    decodeAs[SaleCompleted],
	topics.SaleReturned:     decodeAs[SaleReturned],
	topics.CashRegistered:   decodeAs[CashRegistered],
	topics.JournalPosted:    decodeAs[JournalPosted],
}

// Codec converts envelopes to and from the flat JSON wire object. It is
// stateless apart from the read-only registry and safe for concurrent use.
type Codec struct {
	registry *topics.Registry
}

// NewCodec returns a codec that treats event types missing from registry
// as unknown. A nil registry accepts every type with a payload decoder.
func NewCodec(registry *topics.Registry) *Codec {
	return &Codec{registry: registry}
}

func (c *Codec) known(t EventType) bool {
	if _, ok := payloadDecoders[t]; !ok {
		return false
	}
	return c.registry == nil || c.registry.IsKnown(t)
}

// Encode renders env as one JSON object: the header fields followed by the
// payload fields at the top level.
func (c *Codec) Encode(env Envelope) ([]byte, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	if env.Payload.EventType() != env.EventType {
		return nil, fmt.Errorf("payload type %s does not match envelope type %s", env.Payload.EventType(), env.EventType)
	}

	fields := make(map[string]json.RawMessage)
	if raw, ok := env.Payload.(RawPayload); ok {
		for k, v := range raw.Fields {
			fields[k] = v
		}
	} else {
		body, err := jsoncodec.Marshal(env.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", env.EventType, err)
		}
		if err := jsoncodec.Unmarshal(body, &fields); err != nil {
			return nil, fmt.Errorf("%s payload is not a JSON object: %w", env.EventType, err)
		}
	}

	for _, name := range headerFields {
		if _, clash := fields[name]; clash {
			return nil, fmt.Errorf("%s payload declares reserved field %q", env.EventType, name)
		}
	}

	emittedAt := env.EmittedAt
	if emittedAt.IsZero() {
		emittedAt = time.Now()
	}

	header := map[string]string{
		FieldEventType: string(env.EventType),
		FieldKey:       env.Key,
		FieldTenantID:  env.TenantID.String(),
		FieldTimestamp: emittedAt.UTC().Format(time.RFC3339Nano),
	}
	if env.EventID != "" {
		header[FieldEventID] = env.EventID
	}
	if env.CorrelationID != "" {
		header[FieldCorrelationID] = env.CorrelationID
	}
	for name, value := range header {
		b, err := jsoncodec.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s: %w", name, err)
		}
		fields[name] = b
	}

	return jsoncodec.Marshal(fields)
}

// Decode parses data into an Envelope. Malformed input yields a
// *DecodeError. An unregistered event type yields the decoded header with a
// RawPayload and an error wrapping ErrUnknownEventType.
func (c *Codec) Decode(data []byte) (Envelope, error) {
	var fields map[string]json.RawMessage
	if err := jsoncodec.Unmarshal(data, &fields); err != nil {
		return Envelope{}, &DecodeError{Reason: "malformed json", Err: err}
	}
	if fields == nil {
		return Envelope{}, &DecodeError{Reason: "not a json object"}
	}

	header := make(map[string]string, len(headerFields))
	for _, name := range headerFields {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		var s string
		if err := jsoncodec.Unmarshal(raw, &s); err != nil {
			return Envelope{}, &DecodeError{Reason: "field " + name + " is not a string", Err: err}
		}
		header[name] = s
		delete(fields, name)
	}

	env := Envelope{
		EventID:       header[FieldEventID],
		EventType:     EventType(header[FieldEventType]),
		Key:           header[FieldKey],
		CorrelationID: header[FieldCorrelationID],
	}
	if env.EventType == "" {
		return Envelope{}, &DecodeError{Reason: "missing event_type"}
	}
	if env.Key == "" {
		return Envelope{}, &DecodeError{Reason: "missing key"}
	}

	tenant, ok := header[FieldTenantID]
	if !ok || tenant == "" {
		return Envelope{}, &DecodeError{Reason: "missing tenant_id"}
	}
	tenantID, err := uuid.Parse(tenant)
	if err != nil {
		return Envelope{}, &DecodeError{Reason: "invalid tenant_id", Err: err}
	}
	env.TenantID = tenantID

	if ts := header[FieldTimestamp]; ts != "" {
		emittedAt, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return Envelope{}, &DecodeError{Reason: "invalid timestamp", Err: err}
		}
		env.EmittedAt = emittedAt.UTC()
	}

	if !c.known(env.EventType) {
		env.Payload = RawPayload{Type: env.EventType, Fields: fields}
		return env, fmt.Errorf("%w: %s", ErrUnknownEventType, env.EventType)
	}

	body, err := jsoncodec.Marshal(fields)
	if err != nil {
		return Envelope{}, &DecodeError{Reason: "re-marshal payload", Err: err}
	}
	payload, err := payloadDecoders[env.EventType](body)
	if err != nil {
		return Envelope{}, &DecodeError{Reason: "invalid " + string(env.EventType) + " payload", Err: err}
	}
	env.Payload = payload

	return env, nil
}

// MissingFields lists the registered fields of the event type in data that
// are absent or null. It is advisory and returns nil for undecodable input.
func (c *Codec) MissingFields(data []byte) []string {
	if c.registry == nil {
		return nil
	}

	var fields map[string]json.RawMessage
	if err := jsoncodec.Unmarshal(data, &fields); err != nil {
		return nil
	}
	var eventType string
	if err := jsoncodec.Unmarshal(fields[FieldEventType], &eventType); err != nil {
		return nil
	}

	var missing []string
	for _, name := range c.registry.RequiredFields(EventType(eventType)) {
		raw, ok := fields[name]
		if !ok || string(raw) == "null" {
			missing = append(missing, name)
		}
	}
	return missing
}
