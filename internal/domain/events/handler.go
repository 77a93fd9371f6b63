package events

import (
	"context"
	"errors"
	"fmt"
)

// ErrPayloadMismatch means a handler received a payload of another type.
// Retrying cannot fix it.
var ErrPayloadMismatch = errors.New("payload type mismatch")

// Handler turns one decoded envelope into local state changes. Handlers
// must be safe to run more than once for the same envelope.
type Handler func(ctx context.Context, env Envelope) error

// Handle adapts a typed handler to Handler.
func Handle[T Payload](fn func(ctx context.Context, env Envelope, payload T) error) Handler {
	return func(ctx context.Context, env Envelope) error {
		payload, ok := env.Payload.(T)
		if !ok {
			var want T
			return fmt.Errorf("%w: %s carries %T, handler expects %T", ErrPayloadMismatch, env.EventType, env.Payload, want)
		}
		return fn(ctx, env, payload)
	}
}
