package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/salineros/internal/models"
)

const outboxColumns = `seq, id, operation, song_id, payload, enqueued_at`

// OutboxRepository implements models.OutboxStore on the outbox table.
//
// Insertion order is the autoincrement seq column, so FIFO order survives restarts.
type OutboxRepository struct {
	db *sql.DB
}

// NewOutboxRepository creates a new OutboxRepository with the given database connection
func NewOutboxRepository(db *sql.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Append persists entry at the tail of the queue and sets entry.Seq.
func (r *OutboxRepository) Append(entry *models.OutboxEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	payload, err := encodePayload(entry.Song)
	if err != nil {
		return storageErr("encode outbox payload", err)
	}

	query := `
		INSERT INTO outbox (id, operation, song_id, payload, enqueued_at)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := r.db.Exec(query, entry.ID, string(entry.Operation), entry.SongID, payload, entry.EnqueuedAt.UTC())
	if err != nil {
		return storageErr("insert outbox entry", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return storageErr("read outbox seq", err)
	}
	entry.Seq = seq

	return nil
}

// First returns the oldest entry, or nil when the queue is empty.
func (r *OutboxRepository) First() (*models.OutboxEntry, error) {
	query := `SELECT ` + outboxColumns + ` FROM outbox ORDER BY seq ASC LIMIT 1`

	entry, err := scanEntry(r.db.QueryRow(query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("scan outbox entry", err)
	}
	return entry, nil
}

// Remove deletes one entry. Removing an entry that is already gone is not an error.
func (r *OutboxRepository) Remove(entryID string) error {
	if _, err := r.db.Exec(`DELETE FROM outbox WHERE id = ?`, entryID); err != nil {
		return storageErr("delete outbox entry "+entryID, err)
	}
	return nil
}

// List returns all entries in insertion order.
func (r *OutboxRepository) List() ([]*models.OutboxEntry, error) {
	rows, err := r.db.Query(`SELECT ` + outboxColumns + ` FROM outbox ORDER BY seq ASC`)
	if err != nil {
		return nil, storageErr("query outbox", err)
	}
	defer rows.Close()

	var entries []*models.OutboxEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, storageErr("scan outbox entry", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate outbox", err)
	}

	return entries, nil
}

// Count returns the number of pending entries.
func (r *OutboxRepository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM outbox`).Scan(&n); err != nil {
		return 0, storageErr("count outbox", err)
	}
	return n, nil
}

// RemoveForSong deletes every entry targeting songID and returns how many were removed.
func (r *OutboxRepository) RemoveForSong(songID string) (int, error) {
	result, err := r.db.Exec(`DELETE FROM outbox WHERE song_id = ?`, songID)
	if err != nil {
		return 0, storageErr("delete outbox entries for "+songID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, storageErr("get affected rows", err)
	}
	return int(n), nil
}

// RewriteSongID re-targets every entry for oldID to newID, including the id inside save payloads.
func (r *OutboxRepository) RewriteSongID(oldID, newID string) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, storageErr("begin rewrite", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(`SELECT `+outboxColumns+` FROM outbox WHERE song_id = ? ORDER BY seq ASC`, oldID)
	if err != nil {
		return 0, storageErr("query outbox entries for "+oldID, err)
	}

	var entries []*models.OutboxEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return 0, storageErr("scan outbox entry", err)
		}
		entries = append(entries, entry)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, storageErr("iterate outbox", err)
	}

	for _, entry := range entries {
		if entry.Song != nil {
			entry.Song.ID = newID
		}
		payload, err := encodePayload(entry.Song)
		if err != nil {
			return 0, storageErr("encode outbox payload", err)
		}
		if _, err := tx.Exec(`UPDATE outbox SET song_id = ?, payload = ? WHERE id = ?`, newID, payload, entry.ID); err != nil {
			return 0, storageErr("rewrite outbox entry "+entry.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, storageErr("commit rewrite", err)
	}
	return len(entries), nil
}

// PendingSongIDs returns the set of song ids that have at least one queued entry.
func (r *OutboxRepository) PendingSongIDs() (map[string]struct{}, error) {
	rows, err := r.db.Query(`SELECT DISTINCT song_id FROM outbox`)
	if err != nil {
		return nil, storageErr("query pending song ids", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr("scan song id", err)
		}
		ids[id] = struct{}{}
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate pending song ids", err)
	}
	return ids, nil
}

func encodePayload(song *models.Song) (any, error) {
	if song == nil {
		return nil, nil
	}
	data, err := json.Marshal(song)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func scanEntry(row rowScanner) (*models.OutboxEntry, error) {
	var (
		entry      models.OutboxEntry
		operation  string
		payload    sql.NullString
		enqueuedAt time.Time
	)

	if err := row.Scan(&entry.Seq, &entry.ID, &operation, &entry.SongID, &payload, &enqueuedAt); err != nil {
		return nil, err
	}

	entry.Operation = models.Operation(operation)
	entry.EnqueuedAt = enqueuedAt.UTC()

	if payload.Valid && payload.String != "" {
		var song models.Song
		if err := json.Unmarshal([]byte(payload.String), &song); err != nil {
			return nil, fmt.Errorf("failed to decode payload of %s: %w", entry.ID, err)
		}
		entry.Song = &song
	}

	return &entry, nil
}
