package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
}

type HealthStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// DialFunc opens a broker connection. It is kafka.DialContext in production.
type DialFunc func(ctx context.Context, network, address string) (*kafka.Conn, error)

// BrokerChecker reports healthy when at least one broker accepts a connection.
type BrokerChecker struct {
	brokers []string
	timeout time.Duration
	dial    DialFunc
}

func NewBrokerChecker(brokers []string, timeout time.Duration) *BrokerChecker {
	return &BrokerChecker{
		brokers: brokers,
		timeout: timeout,
		dial:    kafka.DialContext,
	}
}

// Check performs a health check
func (bc *BrokerChecker) Check(ctx context.Context) HealthStatus {
	if err := bc.Ping(ctx); err != nil {
		return HealthStatus{Status: StatusUnhealthy, Error: err.Error()}
	}
	return HealthStatus{Status: StatusHealthy}
}

// Ping returns nil as soon as one broker is reachable.
func (bc *BrokerChecker) Ping(ctx context.Context) error {
	if len(bc.brokers) == 0 {
		return errors.New("no brokers configured")
	}

	var errs []error
	for _, addr := range bc.brokers {
		dialCtx, cancel := context.WithTimeout(ctx, bc.timeout)
		conn, err := bc.dial(dialCtx, "tcp", addr)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("broker %s: %w", addr, err))
			continue
		}
		_ = conn.Close()
		return nil
	}
	return errors.Join(errs...)
}

// StaticChecker always reports the configured status. Used in tests and for
// services that run without a broker dependency.
type StaticChecker struct {
	status HealthStatus
}

func NewStaticChecker(status string) *StaticChecker {
	return &StaticChecker{status: HealthStatus{Status: status}}
}

func (sc *StaticChecker) Check(ctx context.Context) HealthStatus {
	return sc.status
}
