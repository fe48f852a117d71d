package tasks

import (
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/salineros/internal/events"
	"github.com/desertthunder/salineros/internal/models"
)

// PendingLister reports which songs still have queued local mutations.
type PendingLister interface {
	PendingSongIDs() (map[string]struct{}, error)
}

// SongFailure records one song that could not be applied locally.
type SongFailure struct {
	SongID string
	Err    error
}

// ReconcileResult summarizes one [Reconciler.Apply] call.
type ReconcileResult struct {
	Applied   int           // Songs upserted or removed
	Conflicts []string      // Ids changed on the server while a local mutation was pending
	Failures  []SongFailure // Songs whose local write failed
}

// Reconciler applies server change sets to the local song store.
//
// Server state always wins for storage. A conflicting local mutation stays queued and is
// reported with a [events.SyncConflict] event until it drains or is cancelled.
type Reconciler struct {
	songs   models.SongStore
	pending PendingLister
	events  events.Publisher
	logger  *log.Logger
}

// NewReconciler creates a reconciler. pub and logger may be nil.
func NewReconciler(songs models.SongStore, pending PendingLister, pub events.Publisher, logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Reconciler{songs: songs, pending: pending, events: pub, logger: logger}
}

// Apply writes every change in cs to the local store.
//
// Songs are applied independently: a failed write is collected in the result and the rest of the
// batch continues. The returned error is set only when pending mutations could not be read, in
// which case nothing is applied.
func (r *Reconciler) Apply(cs *models.ChangeSet) (*ReconcileResult, error) {
	result := &ReconcileResult{}
	if cs == nil {
		return result, nil
	}
	cs = cs.Normalize()

	pending, err := r.pending.PendingSongIDs()
	if err != nil {
		return nil, fmt.Errorf("failed to read pending mutations: %w", err)
	}

	conflict := func(id string, deleted bool) {
		if _, ok := pending[id]; !ok {
			return
		}
		result.Conflicts = append(result.Conflicts, id)

		msg := fmt.Sprintf("%s was changed on the server while a local edit was pending", id)
		if deleted {
			msg = fmt.Sprintf("%s was deleted on the server while a local edit was pending", id)
		}
		r.logger.Warn("sync conflict", "song", id, "deleted", deleted)
		if r.events != nil {
			r.events.Publish(events.Event{Kind: events.SyncConflict, SongID: id, Message: msg})
		}
	}

	upsert := func(song models.Song) {
		if err := r.songs.Put(&song); err != nil {
			r.logger.Error("failed to apply song", "song", song.ID, "error", err)
			result.Failures = append(result.Failures, SongFailure{SongID: song.ID, Err: err})
			return
		}
		result.Applied++
	}

	for _, song := range cs.Created {
		upsert(song)
	}

	for _, song := range cs.Modified {
		conflict(song.ID, false)
		upsert(song)
	}

	for _, id := range cs.Deleted {
		conflict(id, true)
		if err := r.songs.Delete(id); err != nil {
			r.logger.Error("failed to remove song", "song", id, "error", err)
			result.Failures = append(result.Failures, SongFailure{SongID: id, Err: err})
			continue
		}
		result.Applied++
	}

	r.logger.Debug("applied change set",
		"created", len(cs.Created), "modified", len(cs.Modified), "deleted", len(cs.Deleted),
		"conflicts", len(result.Conflicts), "failures", len(result.Failures))

	return result, nil
}
