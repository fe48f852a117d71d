package models

import (
	"fmt"
	"time"

	"github.com/desertthunder/salineros/internal/shared"
)

// Operation is the kind of mutation recorded in the outbox.
type Operation string

const (
	OperationSave   Operation = "save"
	OperationDelete Operation = "delete"
)

// OutboxEntry is a mutation not yet confirmed by the server.
//
// Song is the full snapshot for saves and nil for deletes.
type OutboxEntry struct {
	ID         string    `json:"id"`
	Seq        int64     `json:"seq"`
	Operation  Operation `json:"operation"`
	SongID     string    `json:"songId"`
	Song       *Song     `json:"payload,omitempty"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// NewSaveEntry records a save of a snapshot of song.
func NewSaveEntry(song *Song) *OutboxEntry {
	return &OutboxEntry{
		ID:         shared.GenerateID(),
		Operation:  OperationSave,
		SongID:     song.ID,
		Song:       song.Clone(),
		EnqueuedAt: time.Now().UTC(),
	}
}

// NewDeleteEntry records a delete of songID.
func NewDeleteEntry(songID string) *OutboxEntry {
	return &OutboxEntry{
		ID:         shared.GenerateID(),
		Operation:  OperationDelete,
		SongID:     songID,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Validate checks the entry is well formed before it is persisted.
func (e *OutboxEntry) Validate() error {
	if e.ID == "" || e.SongID == "" {
		return fmt.Errorf("%w: outbox entry requires id and song id", shared.ErrInvalidArgument)
	}

	switch e.Operation {
	case OperationSave:
		if e.Song == nil {
			return fmt.Errorf("%w: save entry %s has no payload", shared.ErrInvalidArgument, e.ID)
		}
		if e.Song.ID != e.SongID {
			return fmt.Errorf("%w: save entry %s payload id %s does not match %s", shared.ErrInvalidArgument, e.ID, e.Song.ID, e.SongID)
		}
	case OperationDelete:
	default:
		return fmt.Errorf("%w: unknown outbox operation %q", shared.ErrInvalidArgument, e.Operation)
	}
	return nil
}

func (e *OutboxEntry) String() string {
	return fmt.Sprintf("%s %s (#%d)", e.Operation, e.SongID, e.Seq)
}
