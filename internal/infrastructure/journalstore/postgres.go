package journalstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"eventsync/internal/common/jsoncodec"
	"eventsync/internal/domain/events"
	"eventsync/internal/domain/ledger"
	"eventsync/internal/infrastructure/outbox"

	"github.com/google/uuid"
)

const (
	createJournalTableQuery = `
		CREATE TABLE IF NOT EXISTS journal_entries (
			id              UUID        PRIMARY KEY,
			tenant_id       UUID        NOT NULL,
			source_key      TEXT        NOT NULL,
			source_event_id TEXT        NOT NULL DEFAULT '',
			lines           JSONB       NOT NULL,
			total           NUMERIC     NOT NULL,
			posted_at       TIMESTAMPTZ NOT NULL
		);
	`

	insertEntryQuery = `
		INSERT INTO journal_entries (id, tenant_id, source_key, source_event_id, lines, total, posted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`

	selectEntryQuery = `
		SELECT id, tenant_id, source_key, source_event_id, lines, posted_at
		FROM journal_entries
		WHERE id = $1
	`
)

type storedLine struct {
	Account string       `json:"account"`
	Debit   events.Money `json:"debit"`
	Credit  events.Money `json:"credit"`
}

// PostgresStore writes the entry and its outbox row in one transaction.
type PostgresStore struct {
	db     *sql.DB
	outbox *outbox.PostgresStore
}

func NewPostgresStore(db *sql.DB, ob *outbox.PostgresStore) *PostgresStore {
	return &PostgresStore{db: db, outbox: ob}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createJournalTableQuery); err != nil {
		return fmt.Errorf("failed to create journal schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Post(ctx context.Context, entry *ledger.Entry, follow *FollowUp) (bool, error) {
	lines := make([]storedLine, 0, len(entry.Lines()))
	for _, l := range entry.Lines() {
		lines = append(lines, storedLine{Account: l.Account, Debit: events.NewMoney(l.Debit), Credit: events.NewMoney(l.Credit)})
	}
	linesJSON, err := jsoncodec.Marshal(lines)
	if err != nil {
		return false, fmt.Errorf("failed to marshal journal lines: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, insertEntryQuery,
		entry.ID(),
		entry.TenantID(),
		entry.SourceKey(),
		entry.SourceEventID(),
		linesJSON,
		entry.Total().String(),
		entry.PostedAt(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert journal entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if follow != nil {
		if err := s.outbox.AddTx(ctx, tx, follow.Topic, follow.Envelope); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit journal entry: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*ledger.Entry, error) {
	var (
		entryID, tenantID        uuid.UUID
		sourceKey, sourceEventID string
		linesJSON                []byte
		postedAt                 time.Time
	)
	err := s.db.QueryRowContext(ctx, selectEntryQuery, id).
		Scan(&entryID, &tenantID, &sourceKey, &sourceEventID, &linesJSON, &postedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load journal entry %s: %w", id, err)
	}

	var stored []storedLine
	if err := jsoncodec.Unmarshal(linesJSON, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal journal lines: %w", err)
	}
	lines := make([]ledger.Line, 0, len(stored))
	for _, l := range stored {
		lines = append(lines, ledger.Line{Account: l.Account, Debit: l.Debit.Decimal, Credit: l.Credit.Decimal})
	}

	return ledger.Restore(entryID, tenantID, sourceKey, sourceEventID, lines, postedAt), nil
}
