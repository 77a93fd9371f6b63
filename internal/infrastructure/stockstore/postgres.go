package stockstore

import (
	"context"
	"database/sql"
	"fmt"

	"eventsync/internal/domain/inventory"

	"github.com/google/uuid"
)

const (
	createSchemaQuery = `
		CREATE TABLE IF NOT EXISTS stock_movements (
			owner       TEXT        NOT NULL,
			tenant_id   UUID        NOT NULL,
			shop_id     UUID        NOT NULL,
			movement_id TEXT        NOT NULL,
			applied_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (owner, tenant_id, shop_id, movement_id)
		);
		CREATE TABLE IF NOT EXISTS stock_levels (
			owner      TEXT   NOT NULL,
			tenant_id  UUID   NOT NULL,
			shop_id    UUID   NOT NULL,
			product_id UUID   NOT NULL,
			on_hand    BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (owner, tenant_id, shop_id, product_id)
		);
	`

	insertMovementQuery = `
		INSERT INTO stock_movements (owner, tenant_id, shop_id, movement_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING
	`

	upsertLevelQuery = `
		INSERT INTO stock_levels (owner, tenant_id, shop_id, product_id, on_hand)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (owner, tenant_id, shop_id, product_id)
		DO UPDATE SET on_hand = stock_levels.on_hand + EXCLUDED.on_hand
	`

	selectLevelsQuery = `
		SELECT product_id, on_hand
		FROM stock_levels
		WHERE owner = $1 AND tenant_id = $2 AND shop_id = $3
	`

	selectMovementsQuery = `
		SELECT movement_id
		FROM stock_movements
		WHERE owner = $1 AND tenant_id = $2 AND shop_id = $3
		ORDER BY applied_at ASC
	`
)

// PostgresStore keeps the applied movement ids next to the levels and
// updates both in one transaction. Rows are scoped by owner so services
// sharing a database keep separate copies of the same movements.
type PostgresStore struct {
	db    *sql.DB
	owner string
}

func NewPostgresStore(db *sql.DB, owner string) *PostgresStore {
	return &PostgresStore{db: db, owner: owner}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createSchemaQuery); err != nil {
		return fmt.Errorf("failed to create stock schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) ApplyMovement(ctx context.Context, tenantID, shopID uuid.UUID, m inventory.Movement) (bool, error) {
	if m.ID == "" {
		return false, inventory.ErrEmptyMovementID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, insertMovementQuery, s.owner, tenantID, shopID, m.ID)
	if err != nil {
		return false, fmt.Errorf("failed to record movement %s: %w", m.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	for _, line := range m.Lines {
		if _, err := tx.ExecContext(ctx, upsertLevelQuery, s.owner, tenantID, shopID, line.ProductID, line.Delta); err != nil {
			return false, fmt.Errorf("failed to update level of product %s: %w", line.ProductID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit movement %s: %w", m.ID, err)
	}
	return true, nil
}

func (s *PostgresStore) Get(ctx context.Context, tenantID, shopID uuid.UUID) (*inventory.ShopStock, error) {
	levels := make(map[uuid.UUID]int64)
	rows, err := s.db.QueryContext(ctx, selectLevelsQuery, s.owner, tenantID, shopID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock levels: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var product uuid.UUID
		var onHand int64
		if err := rows.Scan(&product, &onHand); err != nil {
			return nil, fmt.Errorf("failed to scan stock level: %w", err)
		}
		levels[product] = onHand
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stock levels: %w", err)
	}

	movements, err := s.movements(ctx, tenantID, shopID)
	if err != nil {
		return nil, err
	}
	if len(movements) == 0 && len(levels) == 0 {
		return nil, ErrNotFound
	}

	return inventory.Restore(tenantID, shopID, levels, movements, len(movements)), nil
}

func (s *PostgresStore) movements(ctx context.Context, tenantID, shopID uuid.UUID) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, selectMovementsQuery, s.owner, tenantID, shopID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock movements: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan movement: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating movements: %w", err)
	}
	return ids, nil
}
