package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const lastSyncKey = "last_sync_timestamp"

// SyncMetaRepository implements models.SyncStateStore on the sync_meta key/value table.
type SyncMetaRepository struct {
	db *sql.DB
}

// NewSyncMetaRepository creates a new SyncMetaRepository with the given database connection
func NewSyncMetaRepository(db *sql.DB) *SyncMetaRepository {
	return &SyncMetaRepository{db: db}
}

// LastSync returns the last successful sync time, or nil if none has completed.
func (r *SyncMetaRepository) LastSync() (*time.Time, error) {
	value, err := r.get(lastSyncKey)
	if err != nil || value == "" {
		return nil, err
	}

	at, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return nil, storageErr("parse "+lastSyncKey, err)
	}
	return &at, nil
}

// SetLastSync stores at as an ISO-8601 (RFC 3339) string.
func (r *SyncMetaRepository) SetLastSync(at time.Time) error {
	return r.set(lastSyncKey, at.UTC().Format(time.RFC3339Nano))
}

// ClearLastSync resets the timestamp so the next sync fetches the full catalog.
func (r *SyncMetaRepository) ClearLastSync() error {
	if _, err := r.db.Exec(`DELETE FROM sync_meta WHERE key = ?`, lastSyncKey); err != nil {
		return storageErr("clear "+lastSyncKey, err)
	}
	return nil
}

func (r *SyncMetaRepository) get(key string) (string, error) {
	var value sql.NullString
	err := r.db.QueryRow(`SELECT value FROM sync_meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", storageErr(fmt.Sprintf("read %s", key), err)
	}
	return value.String, nil
}

func (r *SyncMetaRepository) set(key, value string) error {
	query := `
		INSERT INTO sync_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`
	if _, err := r.db.Exec(query, key, value); err != nil {
		return storageErr(fmt.Sprintf("write %s", key), err)
	}
	return nil
}
