// package repositories provides persistence layer implementations for all model types.
package repositories

import (
	"database/sql"
	"fmt"

	"github.com/desertthunder/salineros/internal/shared"
)

// LocalStore groups the song, outbox and sync metadata repositories that share one database.
type LocalStore struct {
	db     *sql.DB
	Songs  *SongRepository
	Outbox *OutboxRepository
	Meta   *SyncMetaRepository
}

// NewLocalStore wraps an already-migrated database.
func NewLocalStore(db *sql.DB) *LocalStore {
	return &LocalStore{
		db:     db,
		Songs:  NewSongRepository(db),
		Outbox: NewOutboxRepository(db),
		Meta:   NewSyncMetaRepository(db),
	}
}

// OpenLocalStore opens the SQLite file at path and applies pending migrations.
func OpenLocalStore(path string, maxOpenConns, maxIdleConns int) (*LocalStore, error) {
	db, err := shared.NewDatabase(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrStorage, err)
	}
	shared.ConfigureDatabase(db, maxOpenConns, maxIdleConns)

	if _, err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", shared.ErrStorage, err)
	}

	return NewLocalStore(db), nil
}

// DB returns the underlying handle.
func (s *LocalStore) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database.
func (s *LocalStore) Close() error {
	return s.db.Close()
}

// storageErr wraps err with [shared.ErrStorage] and an action description.
func storageErr(action string, err error) error {
	return fmt.Errorf("%w: failed to %s: %w", shared.ErrStorage, action, err)
}
