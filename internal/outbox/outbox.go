package outbox

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/salineros/internal/events"
	"github.com/desertthunder/salineros/internal/models"
)

// ReplayFunc sends one entry to the server. A nil return acknowledges the entry.
type ReplayFunc func(ctx context.Context, entry *models.OutboxEntry) error

// Queue wraps an [models.OutboxStore] with enqueue and drain semantics.
//
// Entries for the same song are all kept; the last one replayed wins on the server.
type Queue struct {
	store  models.OutboxStore
	events events.Publisher
	logger *log.Logger
}

// NewQueue creates a queue over store. pub and logger may be nil.
func NewQueue(store models.OutboxStore, pub events.Publisher, logger *log.Logger) *Queue {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Queue{store: store, events: pub, logger: logger}
}

func (q *Queue) publish(e events.Event) {
	if q.events != nil {
		q.events.Publish(e)
	}
}

// Enqueue appends entry. Persistence failures are returned to the caller unchanged.
func (q *Queue) Enqueue(entry *models.OutboxEntry) error {
	if err := q.store.Append(entry); err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", entry, err)
	}

	q.logger.Debug("queued mutation", "entry", entry.String())
	q.publish(events.Event{Kind: events.SongQueued, SongID: entry.SongID, Message: entry.String()})
	return nil
}

// EnqueueSave records a save of a snapshot of song.
func (q *Queue) EnqueueSave(song *models.Song) error {
	return q.Enqueue(models.NewSaveEntry(song))
}

// EnqueueDelete records a delete of songID.
func (q *Queue) EnqueueDelete(songID string) error {
	return q.Enqueue(models.NewDeleteEntry(songID))
}

// Drain replays entries oldest first, removing each one replay acknowledges.
//
// Draining stops at the first failure without skipping ahead. The returned count is the number of
// entries still pending; the error is the replay or storage failure that stopped the drain.
// Entries enqueued while draining are replayed in the same call.
func (q *Queue) Drain(ctx context.Context, replay ReplayFunc) (int, error) {
	for {
		if err := ctx.Err(); err != nil {
			return q.pendingAfter(err)
		}

		entry, err := q.store.First()
		if err != nil {
			return q.pendingAfter(err)
		}
		if entry == nil {
			return 0, nil
		}

		if err := replay(ctx, entry); err != nil {
			q.logger.Warn("replay failed", "entry", entry.String(), "error", err)
			return q.pendingAfter(fmt.Errorf("failed to replay %s: %w", entry, err))
		}

		if err := q.store.Remove(entry.ID); err != nil {
			return q.pendingAfter(err)
		}
		q.logger.Debug("replayed mutation", "entry", entry.String())
	}
}

func (q *Queue) pendingAfter(cause error) (int, error) {
	n, err := q.store.Count()
	if err != nil {
		return 0, cause
	}
	return n, cause
}

// Cancel drops every pending entry for songID and returns how many were removed.
//
// This is how a conflict is acknowledged: the local edit is abandoned and the server copy stands.
func (q *Queue) Cancel(songID string) (int, error) {
	n, err := q.store.RemoveForSong(songID)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel entries for %s: %w", songID, err)
	}
	if n > 0 {
		q.logger.Info("cancelled pending mutations", "song", songID, "count", n)
	}
	return n, nil
}

// Remove drops one entry by its id.
func (q *Queue) Remove(entryID string) error {
	return q.store.Remove(entryID)
}

// RewriteSongID points entries for oldID at newID after the server assigns an id.
func (q *Queue) RewriteSongID(oldID, newID string) (int, error) {
	return q.store.RewriteSongID(oldID, newID)
}

// Pending returns every entry in replay order.
func (q *Queue) Pending() ([]*models.OutboxEntry, error) {
	return q.store.List()
}

// Len returns the number of pending entries.
func (q *Queue) Len() (int, error) {
	return q.store.Count()
}

// PendingSongIDs returns the ids of songs with at least one pending entry.
func (q *Queue) PendingSongIDs() (map[string]struct{}, error) {
	return q.store.PendingSongIDs()
}

// HasPending reports whether songID has a pending entry.
func (q *Queue) HasPending(songID string) (bool, error) {
	ids, err := q.store.PendingSongIDs()
	if err != nil {
		return false, err
	}
	_, ok := ids[songID]
	return ok, nil
}
