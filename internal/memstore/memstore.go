// Package memstore opens a campus.Store on a private in-memory SQLite database.
// It runs the same schema constraints and queries as the Postgres store and
// loses everything on Close.
package memstore

import (
	"context"
	"fmt"

	"campusevents/internal/campus"
	"campusevents/internal/store"
)

// Store is a campus repository over in-memory SQLite.
type Store struct {
	*campus.Repository
	db *store.DB
}

var _ campus.Store = (*Store)(nil)

// Open creates an empty, migrated store. obs may be nil.
func Open(ctx context.Context, obs campus.QueryObserver) (*Store, error) {
	db, err := store.NewSQLite(ctx, store.InMemorySQLite)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate memory store: %w", err)
	}
	return &Store{Repository: campus.NewSQLiteRepository(db.Client, obs), db: db}, nil
}

// Close releases the database. The data is gone afterwards.
func (s *Store) Close() error {
	return s.db.Close()
}
