package logger

import (
	"fmt"

	"go.uber.org/zap"
)

// Logger is the structured logger shared by every component. Fields are
// passed as alternating key/value pairs.
type Logger = *zap.SugaredLogger

// New creates a sugared logger. Verbose selects the development config
// (debug level, console encoder), otherwise the production config is used.
func New(verbose bool) (Logger, error) {
	if verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return nil, fmt.Errorf("failed to create development logger: %w", err)
		}
		return l.Sugar(), nil
	}

	l, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("failed to create production logger: %w", err)
	}
	return l.Sugar(), nil
}

// Named returns a child logger tagged with the service name.
func Named(l Logger, service string) Logger {
	return l.Named(service).With("service", service)
}

// NewNop returns a logger that discards everything.
func NewNop() Logger {
	return zap.NewNop().Sugar()
}
