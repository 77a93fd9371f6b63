package eventbus

import (
	"time"

	"eventsync/internal/common/configs"

	"github.com/cenkalti/backoff/v5"
)

const (
	DefaultMaxAttempts     = 5
	DefaultInitialInterval = 500 * time.Millisecond
	DefaultMaxInterval     = 30 * time.Second
	retryMultiplier        = 2
)

// RetryPolicy bounds how often a failing handler is invoked for one
// message before the message is dead-lettered.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     DefaultMaxAttempts,
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
	}
}

func RetryPolicyFrom(cfg configs.Config) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     cfg.MaxAttempts,
		InitialInterval: cfg.RetryInitial,
		MaxInterval:     cfg.RetryMax,
	}.withDefaults()
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = DefaultInitialInterval
	}
	if p.MaxInterval < p.InitialInterval {
		p.MaxInterval = max(DefaultMaxInterval, p.InitialInterval)
	}
	return p
}

// Backoff returns a fresh exponential schedule: InitialInterval doubled
// after every failure, capped at MaxInterval, without jitter.
func (p RetryPolicy) Backoff() backoff.BackOff {
	p = p.withDefaults()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = retryMultiplier
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

// Delays lists the waits between the MaxAttempts invocations.
func (p RetryPolicy) Delays() []time.Duration {
	p = p.withDefaults()
	b := p.Backoff()
	delays := make([]time.Duration, 0, p.MaxAttempts-1)
	for i := 1; i < p.MaxAttempts; i++ {
		delays = append(delays, b.NextBackOff())
	}
	return delays
}
