package accounting

import (
	"context"
	"errors"
	"fmt"

	"eventsync/internal/domain/events"
	"eventsync/internal/domain/ledger"
	"eventsync/internal/domain/topics"
	"eventsync/internal/infrastructure/eventbus"
	"eventsync/internal/infrastructure/journalstore"

	"github.com/shopspring/decimal"
)

// ConsumedTopics are the logical topics the accounting service subscribes to.
var ConsumedTopics = []topics.Name{topics.SalesEvents, topics.PurchaseEvents}

func (s *Service) Register(d *eventbus.Dispatcher) {
	d.MustRegister(topics.SaleCompleted, events.Handle(s.HandleSaleCompleted))
	d.MustRegister(topics.SaleReturned, events.Handle(s.HandleSaleReturned))
	d.MustRegister(topics.PurchaseReceived, events.Handle(s.HandlePurchaseReceived))
	d.MustRegister(topics.PurchaseReturned, events.Handle(s.HandlePurchaseReturned))
}

func (s *Service) HandleSaleCompleted(ctx context.Context, env events.Envelope, p events.SaleCompleted) error {
	return s.post(ctx, env, "sale:"+p.SaleID.String(), p.TotalAmount.Decimal, ledger.AccountCash, ledger.AccountSalesRevenue)
}

func (s *Service) HandleSaleReturned(ctx context.Context, env events.Envelope, p events.SaleReturned) error {
	return s.post(ctx, env, "sale-return:"+p.ReturnID.String(), p.TotalAmount.Decimal, ledger.AccountSalesReturns, ledger.AccountCash)
}

func (s *Service) HandlePurchaseReceived(ctx context.Context, env events.Envelope, p events.PurchaseReceived) error {
	return s.post(ctx, env, "purchase:"+p.PurchaseID.String(), p.TotalAmount.Decimal, ledger.AccountInventory, ledger.AccountPayable)
}

func (s *Service) HandlePurchaseReturned(ctx context.Context, env events.Envelope, p events.PurchaseReturned) error {
	return s.post(ctx, env, "purchase-return:"+p.ReturnID.String(), p.TotalAmount.Decimal, ledger.AccountPayable, ledger.AccountInventory)
}

// post books amount from debitAccount to creditAccount once per source.
func (s *Service) post(ctx context.Context, env events.Envelope, sourceKey string, amount decimal.Decimal, debitAccount, creditAccount string) error {
	if amount.IsZero() {
		s.log.Infow("nothing to post for zero amount", "source_key", sourceKey, "event_id", env.EventID)
		return nil
	}

	entry, err := ledger.NewEntry(env.TenantID, sourceKey, env.EventID,
		ledger.Debit(debitAccount, amount),
		ledger.Credit(creditAccount, amount),
	)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidLine) || errors.Is(err, ledger.ErrUnbalanced) {
			return eventbus.Permanent(fmt.Errorf("cannot post %s: %w", sourceKey, err))
		}
		return err
	}

	follow := &journalstore.FollowUp{
		Topic:    topics.AccountingEvents,
		Envelope: events.NewJournalPosted(env.TenantID, journalPayload(entry)).WithCorrelation(env),
	}

	posted, err := s.journal.Post(ctx, entry, follow)
	if err != nil {
		return fmt.Errorf("failed to post journal entry for %s: %w", sourceKey, err)
	}
	if !posted {
		s.log.Debugw("journal entry already posted", "source_key", sourceKey, "entry_id", entry.ID())
		return nil
	}

	s.log.Infow("journal entry posted",
		"tenant_id", env.TenantID,
		"entry_id", entry.ID(),
		"source_key", sourceKey,
		"event_id", env.EventID,
		"total", entry.Total().String(),
	)
	return nil
}

func journalPayload(entry *ledger.Entry) events.JournalPosted {
	lines := make([]events.JournalLine, 0, len(entry.Lines()))
	for _, l := range entry.Lines() {
		lines = append(lines, events.JournalLine{Account: l.Account, Debit: events.NewMoney(l.Debit), Credit: events.NewMoney(l.Credit)})
	}
	return events.JournalPosted{
		JournalID:     entry.ID(),
		SourceKey:     entry.SourceKey(),
		SourceEventID: entry.SourceEventID(),
		Lines:         lines,
	}
}
