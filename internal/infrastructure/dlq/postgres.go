package dlq

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("dead letter not found")

const (
	createDeadLettersTable = `
		CREATE TABLE IF NOT EXISTS dead_letters (
			dead_letter_id  UUID PRIMARY KEY,
			dlq_topic       TEXT NOT NULL,
			original_topic  TEXT NOT NULL,
			partition       INTEGER NOT NULL,
			msg_offset      BIGINT NOT NULL,
			consumer_group  TEXT NOT NULL,
			event_type      TEXT NOT NULL DEFAULT '',
			event_id        TEXT NOT NULL DEFAULT '',
			tenant_id       TEXT NOT NULL DEFAULT '',
			message_key     TEXT NOT NULL,
			envelope        BYTEA NOT NULL,
			attempts        INTEGER NOT NULL,
			reason          TEXT NOT NULL,
			failed_at       TIMESTAMPTZ NOT NULL,
			resolved        BOOLEAN NOT NULL DEFAULT FALSE,
			resolved_at     TIMESTAMPTZ,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_dead_letters_unresolved
			ON dead_letters (resolved, created_at DESC);
	`

	insertDeadLetterQuery = `
		INSERT INTO dead_letters (
			dead_letter_id, dlq_topic, original_topic, partition, msg_offset,
			consumer_group, event_type, event_id, tenant_id, message_key,
			envelope, attempts, reason, failed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (dead_letter_id) DO NOTHING
	`

	selectUnresolvedQuery = `
		SELECT
			dead_letter_id, dlq_topic, original_topic, partition, msg_offset,
			consumer_group, event_type, event_id, tenant_id, message_key,
			envelope, attempts, reason, failed_at, resolved, resolved_at, created_at
		FROM dead_letters
		WHERE resolved = FALSE
		ORDER BY created_at DESC
		LIMIT $1
	`

	updateResolvedQuery = `
		UPDATE dead_letters
		SET resolved = TRUE, resolved_at = NOW()
		WHERE dead_letter_id = $1
	`
)

// Entry is one row of the dead-letter log.
type Entry struct {
	ID            uuid.UUID  `json:"dead_letter_id"`
	DLQTopic      string     `json:"dlq_topic"`
	OriginalTopic string     `json:"original_topic"`
	Partition     int        `json:"partition"`
	Offset        int64      `json:"offset"`
	ConsumerGroup string     `json:"consumer_group"`
	EventType     string     `json:"event_type"`
	EventID       string     `json:"event_id"`
	TenantID      string     `json:"tenant_id"`
	Key           string     `json:"key"`
	Envelope      []byte     `json:"envelope"`
	Attempts      int        `json:"attempts"`
	Reason        string     `json:"reason"`
	FailedAt      time.Time  `json:"failed_at"`
	Resolved      bool       `json:"resolved"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Log lists and resolves recorded dead letters.
type Log interface {
	Recorder
	ListUnresolved(ctx context.Context, limit int) ([]Entry, error)
	MarkResolved(ctx context.Context, id uuid.UUID) error
}

// PostgresLog is the dead_letters table.
type PostgresLog struct {
	db *sql.DB
}

func NewPostgresLog(db *sql.DB) *PostgresLog {
	return &PostgresLog{db: db}
}

// EnsureSchema creates the table when missing.
func (pl *PostgresLog) EnsureSchema(ctx context.Context) error {
	if _, err := pl.db.ExecContext(ctx, createDeadLettersTable); err != nil {
		return fmt.Errorf("failed to create dead_letters table: %w", err)
	}
	return nil
}

func (pl *PostgresLog) Record(ctx context.Context, dl DeadLetter) error {
	_, err := pl.db.ExecContext(ctx, insertDeadLetterQuery,
		dl.ID,
		dl.Topic(),
		dl.Message.Topic,
		dl.Message.Partition,
		dl.Message.Offset,
		dl.ConsumerGroup,
		dl.EventType,
		dl.EventID,
		dl.TenantID,
		string(dl.Message.Key),
		dl.Message.Value,
		dl.Attempts,
		dl.Reason,
		dl.FailedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to persist dead letter: %w", err)
	}
	return nil
}

func (pl *PostgresLog) ListUnresolved(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := pl.db.QueryContext(ctx, selectUnresolvedQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unresolved dead letters: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var resolvedAt sql.NullTime

		err := rows.Scan(
			&e.ID,
			&e.DLQTopic,
			&e.OriginalTopic,
			&e.Partition,
			&e.Offset,
			&e.ConsumerGroup,
			&e.EventType,
			&e.EventID,
			&e.TenantID,
			&e.Key,
			&e.Envelope,
			&e.Attempts,
			&e.Reason,
			&e.FailedAt,
			&e.Resolved,
			&resolvedAt,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		if resolvedAt.Valid {
			e.ResolvedAt = &resolvedAt.Time
		}

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dead letters: %w", err)
	}

	return entries, nil
}

func (pl *PostgresLog) MarkResolved(ctx context.Context, id uuid.UUID) error {
	res, err := pl.db.ExecContext(ctx, updateResolvedQuery, id)
	if err != nil {
		return fmt.Errorf("failed to mark dead letter as resolved: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
