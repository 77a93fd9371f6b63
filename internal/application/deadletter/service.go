package deadletter

import (
	"context"
	"errors"
	"fmt"

	"eventsync/internal/infrastructure/dlq"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

var ErrReplayUnavailable = errors.New("dead-letter replay is not configured")

// Replayer is satisfied by *dlq.Replayer.
type Replayer interface {
	Replay(ctx context.Context, limit int) (dlq.ReplayResult, error)
}

// Service is the operator's view of dead-lettered messages.
type Service struct {
	log      dlq.Log
	replayer Replayer
	logger   *zap.SugaredLogger
}

func NewService(log dlq.Log, replayer Replayer, l *zap.SugaredLogger) *Service {
	return &Service{
		log:      log,
		replayer: replayer,
		logger:   l,
	}
}

// List returns unresolved dead letters, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]dlq.Entry, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	entries, err := s.log.ListUnresolved(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	return entries, nil
}

// Resolve marks a dead letter as handled by an operator.
func (s *Service) Resolve(ctx context.Context, id uuid.UUID) error {
	if err := s.log.MarkResolved(ctx, id); err != nil {
		return err
	}
	s.logger.Infow("dead letter resolved", "dead_letter_id", id)
	return nil
}

// Replay sends up to limit dead letters back to their original topics.
func (s *Service) Replay(ctx context.Context, limit int) (dlq.ReplayResult, error) {
	if s.replayer == nil {
		return dlq.ReplayResult{}, ErrReplayUnavailable
	}
	res, err := s.replayer.Replay(ctx, limit)
	if err != nil {
		return res, fmt.Errorf("replay stopped after %d message(s): %w", res.Replayed, err)
	}
	s.logger.Infow("dead letters replayed", "replayed", res.Replayed, "skipped", res.Skipped)
	return res, nil
}
