package eventbus

import (
	"errors"
	"fmt"

	"eventsync/internal/domain/events"
	"eventsync/internal/domain/topics"

	"github.com/cenkalti/backoff/v5"
)

// Reason classifies a publish failure.
type Reason string

const (
	ReasonInvalidEnvelope   Reason = "invalid_envelope"
	ReasonUnknownTopic      Reason = "unknown_topic"
	ReasonSerialization     Reason = "serialization"
	ReasonTimeout           Reason = "timeout"
	ReasonBrokerUnavailable Reason = "broker_unavailable"
	ReasonCanceled          Reason = "canceled"
	ReasonClosed            Reason = "closed"
)

var (
	ErrClosed            = errors.New("publisher is closed")
	ErrBrokerUnavailable = errors.New("broker unavailable")
	ErrReaderClosed      = errors.New("reader closed")
)

// PublishError is returned by every failed Publish. Nothing was written
// when it is returned, except possibly on timeout.
type PublishError struct {
	Topic     topics.Name
	EventType events.EventType
	Key       string
	Reason    Reason
	Err       error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s to %s (key %q): %s: %v", e.EventType, e.Topic, e.Key, e.Reason, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// IsReason reports whether err is a *PublishError with the given reason.
func IsReason(err error, reason Reason) bool {
	var pe *PublishError
	return errors.As(err, &pe) && pe.Reason == reason
}

// HandlerError describes a message whose handler never succeeded.
type HandlerError struct {
	EventType events.EventType
	Attempts  int
	Err       error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler for %s failed after %d attempt(s): %v", e.EventType, e.Attempts, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// Permanent marks a handler error as not worth retrying. The message goes
// to the dead-letter topic after the first failure.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// IsPermanent reports whether err was marked with Permanent or can never
// succeed on retry.
func IsPermanent(err error) bool {
	var pe *backoff.PermanentError
	return errors.As(err, &pe) || errors.Is(err, events.ErrPayloadMismatch)
}
