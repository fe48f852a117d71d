package services

import (
	"context"
	"time"

	"github.com/desertthunder/salineros/internal/models"
)

// RemoteClient is the song API as seen by the catalog and the sync pipeline.
//
// Errors are classified with [shared.RemoteError] or wrapped [shared.ErrNetwork] so callers can tell
// transient failures (queue and retry) from rejections (surface to the user).
type RemoteClient interface {
	// List returns every song on the server.
	List(ctx context.Context) ([]models.Song, error)

	// Create stores a new song. The server assigns the id; a local placeholder id is sent as clientId
	// so that a replayed create returns the song created the first time.
	Create(ctx context.Context, song *models.Song) (*models.Song, error)

	// Update replaces the song stored under id.
	Update(ctx context.Context, id string, song *models.Song) (*models.Song, error)

	// Remove deletes the song under id. Removing a missing song succeeds.
	Remove(ctx context.Context, id string) error

	// ChangesSince returns everything created, modified or deleted after since.
	// A nil since returns the full catalog as created.
	ChangesSince(ctx context.Context, since *time.Time) (*models.ChangeSet, error)

	// Health reports whether the server is reachable.
	Health(ctx context.Context) error
}
