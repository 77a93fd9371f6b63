package accounting

import (
	"context"

	"eventsync/internal/domain/ledger"
	"eventsync/internal/infrastructure/journalstore"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service derives journal entries from the sales and purchase events of
// other services. Every entry is announced with journal_posted through the
// outbox.
type Service struct {
	journal journalstore.Store
	log     *zap.SugaredLogger
}

func NewService(journal journalstore.Store, log *zap.SugaredLogger) *Service {
	return &Service{
		journal: journal,
		log:     log,
	}
}

// Entry returns the journal entry derived from sourceKey.
func (s *Service) Entry(ctx context.Context, tenantID uuid.UUID, sourceKey string) (*ledger.Entry, error) {
	return s.journal.Get(ctx, ledger.EntryID(tenantID, sourceKey))
}
