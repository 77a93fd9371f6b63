package app

import (
	"context"

	"eventsync/internal/infrastructure/journalstore"
	"eventsync/internal/infrastructure/outbox"
	"eventsync/internal/infrastructure/stockstore"
)

// StockStore returns the stock store matching the configured storage.
func (r *Runtime) StockStore(ctx context.Context) (stockstore.Store, error) {
	if r.DB == nil {
		return stockstore.NewMemoryStore(), nil
	}
	store := stockstore.NewPostgresStore(r.DB, r.Name)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// JournalStore returns the journal store and the outbox its follow-up
// events are written to. Both share one database transaction per entry.
func (r *Runtime) JournalStore(ctx context.Context) (journalstore.Store, outbox.Store, error) {
	if r.DB == nil {
		ob := outbox.NewMemoryStore(r.Codec)
		return journalstore.NewMemoryStore(ob), ob, nil
	}

	ob := outbox.NewPostgresStore(r.DB, r.Codec)
	if err := ob.EnsureSchema(ctx); err != nil {
		return nil, nil, err
	}
	store := journalstore.NewPostgresStore(r.DB, ob)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, nil, err
	}
	return store, ob, nil
}
