package outbox

import (
	"context"
	"database/sql"
	"fmt"

	"eventsync/internal/domain/events"
	"eventsync/internal/domain/topics"
)

const (
	createOutboxTableQuery = `
		CREATE TABLE IF NOT EXISTS outbox (
			id           BIGSERIAL   PRIMARY KEY,
			topic        TEXT        NOT NULL,
			event_id     TEXT        NOT NULL,
			event_key    TEXT        NOT NULL,
			value        BYTEA       NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			forwarded_at TIMESTAMPTZ,
			failed_at    TIMESTAMPTZ,
			last_error   TEXT
		);
		ALTER TABLE outbox ADD COLUMN IF NOT EXISTS failed_at TIMESTAMPTZ;
		ALTER TABLE outbox ADD COLUMN IF NOT EXISTS last_error TEXT;
		CREATE INDEX IF NOT EXISTS idx_outbox_unsent ON outbox (id) WHERE forwarded_at IS NULL AND failed_at IS NULL;
	`

	insertRecordQuery = `
		INSERT INTO outbox (topic, event_id, event_key, value, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	selectPendingQuery = `
		SELECT id, topic, event_id, event_key, value, created_at
		FROM outbox
		WHERE forwarded_at IS NULL AND failed_at IS NULL
		ORDER BY id ASC
		LIMIT $1
	`

	markForwardedQuery = `
		UPDATE outbox SET forwarded_at = NOW() WHERE id = $1
	`

	markFailedQuery = `
		UPDATE outbox SET failed_at = NOW(), last_error = $2 WHERE id = $1
	`
)

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostgresStore keeps the outbox in the service database so events can be
// added in the same transaction as the change that caused them.
type PostgresStore struct {
	db    *sql.DB
	codec *events.Codec
}

func NewPostgresStore(db *sql.DB, codec *events.Codec) *PostgresStore {
	return &PostgresStore{db: db, codec: codec}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createOutboxTableQuery); err != nil {
		return fmt.Errorf("failed to create outbox table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Add(ctx context.Context, topic topics.Name, env events.Envelope) error {
	return s.AddTx(ctx, s.db, topic, env)
}

// AddTx inserts through ex, normally the caller's open transaction.
func (s *PostgresStore) AddTx(ctx context.Context, ex Execer, topic topics.Name, env events.Envelope) error {
	rec, err := newRecord(s.codec, topic, env)
	if err != nil {
		return err
	}
	if _, err := ex.ExecContext(ctx, insertRecordQuery, string(rec.Topic), rec.EventID, rec.Key, rec.Value, rec.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert outbox record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Pending(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, selectPendingQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var topic string
		if err := rows.Scan(&rec.ID, &topic, &rec.EventID, &rec.Key, &rec.Value, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox record: %w", err)
		}
		rec.Topic = topics.Name(topic)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) MarkForwarded(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, markForwardedQuery, id); err != nil {
		return fmt.Errorf("failed to mark outbox record %d forwarded: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id int64, reason string) error {
	if _, err := s.db.ExecContext(ctx, markFailedQuery, id, reason); err != nil {
		return fmt.Errorf("failed to park outbox record %d: %w", id, err)
	}
	return nil
}
