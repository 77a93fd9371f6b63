package delivery

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidTransition = errors.New("invalid state transition")
)

// Delivery tracks one message from fetch to its terminal state.
type Delivery struct {
	topic        string
	partition    int
	offset       int64
	eventType    string
	state        State
	attempts     int
	lastErr      error
	receivedAt   time.Time
	lastActivity time.Time
}

func New(topic string, partition int, offset int64) *Delivery {
	now := time.Now()
	return &Delivery{
		topic:        topic,
		partition:    partition,
		offset:       offset,
		state:        Received,
		receivedAt:   now,
		lastActivity: now,
	}
}

func (d *Delivery) Topic() string {
	return d.topic
}

func (d *Delivery) Partition() int {
	return d.partition
}

func (d *Delivery) Offset() int64 {
	return d.offset
}

func (d *Delivery) EventType() string {
	return d.eventType
}

func (d *Delivery) SetEventType(eventType string) {
	d.eventType = eventType
}

func (d *Delivery) State() State {
	return d.state
}

// Attempts counts handler invocations so far.
func (d *Delivery) Attempts() int {
	return d.attempts
}

func (d *Delivery) LastError() error {
	return d.lastErr
}

func (d *Delivery) ReceivedAt() time.Time {
	return d.receivedAt
}

func (d *Delivery) LastActivity() time.Time {
	return d.lastActivity
}

// TransitionTo transitions the delivery to a new state
func (d *Delivery) TransitionTo(newState State) error {
	if !d.state.CanTransitionTo(newState) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.state, newState)
	}

	d.state = newState
	d.lastActivity = time.Now()
	return nil
}

// StartAttempt moves to Processing and counts the attempt.
func (d *Delivery) StartAttempt() error {
	if err := d.TransitionTo(Processing); err != nil {
		return err
	}
	d.attempts++
	return nil
}

// Fail records a failed attempt and moves to Retrying.
func (d *Delivery) Fail(err error) error {
	if terr := d.TransitionTo(Retrying); terr != nil {
		return terr
	}
	d.lastErr = err
	return nil
}

// IsTerminal returns true if the delivery reached a final state
func (d *Delivery) IsTerminal() bool {
	return d.state.IsTerminal()
}

func (d *Delivery) String() string {
	return fmt.Sprintf("%s[%d]@%d %s", d.topic, d.partition, d.offset, d.state)
}
