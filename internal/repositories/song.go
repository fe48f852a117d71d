package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/salineros/internal/models"
	"github.com/desertthunder/salineros/internal/shared"
)

const songColumns = `id, title, lyrics, chords, melody, audio, tags, created_at, updated_at`

const upsertSong = `
	INSERT INTO songs (` + songColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		lyrics = excluded.lyrics,
		chords = excluded.chords,
		melody = excluded.melody,
		audio = excluded.audio,
		tags = excluded.tags,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at
`

// execer is satisfied by both [sql.DB] and [sql.Tx].
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// SongRepository implements models.SongStore for the songs table.
type SongRepository struct {
	db *sql.DB
}

// NewSongRepository creates a new SongRepository with the given database connection
func NewSongRepository(db *sql.DB) *SongRepository {
	return &SongRepository{db: db}
}

// Get retrieves a song by id
func (r *SongRepository) Get(id string) (*models.Song, error) {
	query := `SELECT ` + songColumns + ` FROM songs WHERE id = ?`

	song, err := scanSong(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrSongNotFound, id)
	}
	if err != nil {
		return nil, storageErr("scan song", err)
	}
	return song, nil
}

// Put inserts or replaces the song stored under song.ID
func (r *SongRepository) Put(song *models.Song) error {
	if song.ID == "" {
		return fmt.Errorf("%w: song id is required", shared.ErrInvalidArgument)
	}
	if err := putSong(r.db, song); err != nil {
		return storageErr("upsert song "+song.ID, err)
	}
	return nil
}

// Delete removes a song by id. Deleting a missing id is not an error.
func (r *SongRepository) Delete(id string) error {
	if _, err := r.db.Exec(`DELETE FROM songs WHERE id = ?`, id); err != nil {
		return storageErr("delete song "+id, err)
	}
	return nil
}

// List returns every stored song ordered by id
func (r *SongRepository) List() ([]*models.Song, error) {
	rows, err := r.db.Query(`SELECT ` + songColumns + ` FROM songs ORDER BY id`)
	if err != nil {
		return nil, storageErr("query songs", err)
	}
	defer rows.Close()

	var songs []*models.Song
	for rows.Next() {
		song, err := scanSong(rows)
		if err != nil {
			return nil, storageErr("scan song", err)
		}
		songs = append(songs, song)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate songs", err)
	}

	return songs, nil
}

// Rekey replaces the row under oldID with song in one transaction.
//
// Used when the server assigns an id to a song created offline.
func (r *SongRepository) Rekey(oldID string, song *models.Song) error {
	tx, err := r.db.Begin()
	if err != nil {
		return storageErr("begin rekey", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM songs WHERE id = ?`, oldID); err != nil {
		return storageErr("delete song "+oldID, err)
	}
	if err := putSong(tx, song); err != nil {
		return storageErr("upsert song "+song.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit rekey", err)
	}
	return nil
}

// Count returns the number of stored songs.
func (r *SongRepository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM songs`).Scan(&n); err != nil {
		return 0, storageErr("count songs", err)
	}
	return n, nil
}

func putSong(db execer, song *models.Song) error {
	tags := song.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	_, err = db.Exec(upsertSong,
		song.ID,
		song.Title,
		song.Lyrics,
		song.Chords,
		song.Melody,
		song.Audio,
		string(tagsJSON),
		song.CreatedAt.UTC(),
		song.UpdatedAt.UTC(),
	)
	return err
}

// rowScanner is satisfied by both [sql.Row] and [sql.Rows].
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSong(row rowScanner) (*models.Song, error) {
	var (
		song      models.Song
		tagsJSON  string
		createdAt time.Time
		updatedAt time.Time
	)

	err := row.Scan(&song.ID, &song.Title, &song.Lyrics, &song.Chords, &song.Melody, &song.Audio, &tagsJSON, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tagsJSON), &song.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags for %s: %w", song.ID, err)
	}
	song.CreatedAt = createdAt.UTC()
	song.UpdatedAt = updatedAt.UTC()

	return &song, nil
}
