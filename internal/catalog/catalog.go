package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/salineros/internal/models"
	"github.com/desertthunder/salineros/internal/outbox"
	"github.com/desertthunder/salineros/internal/services"
	"github.com/desertthunder/salineros/internal/shared"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Connectivity reports whether the song API should be tried.
type Connectivity interface {
	Online() bool
}

// Outcome says where a successful edit ended up.
type Outcome int

const (
	Synced Outcome = iota // Accepted by the server
	Queued                // Saved locally and queued for the next sync
)

func (o Outcome) String() string {
	switch o {
	case Synced:
		return "synced"
	case Queued:
		return "queued"
	default:
		return ""
	}
}

// Result describes a successful edit.
type Result struct {
	Song    *models.Song // Nil after a delete
	Outcome Outcome
	Cause   error // Transient failure that forced queuing, if any
}

// Message renders the user-facing summary of the edit.
func (r *Result) Message() string {
	if r.Outcome == Queued {
		return "saved locally, will sync later"
	}
	return "saved"
}

// Options wires a [Catalog].
type Options struct {
	Store        models.SongStore
	Queue        *outbox.Queue
	Remote       services.RemoteClient
	Connectivity Connectivity
	Logger       *log.Logger
	Language     language.Tag // Collation language; defaults to Spanish
	Now          func() time.Time
}

// Catalog holds exactly one copy of every song, sorted by title.
type Catalog struct {
	store  models.SongStore
	queue  *outbox.Queue
	remote services.RemoteClient
	conn   Connectivity
	logger *log.Logger
	lang   language.Tag
	now    func() time.Time

	mu    sync.RWMutex
	songs []*models.Song
	byID  map[string]*models.Song
}

// New creates an empty catalog. Call [Catalog.Reload] to populate it from storage.
func New(opts Options) *Catalog {
	c := &Catalog{
		store:  opts.Store,
		queue:  opts.Queue,
		remote: opts.Remote,
		conn:   opts.Connectivity,
		logger: opts.Logger,
		lang:   opts.Language,
		now:    opts.Now,
		byID:   make(map[string]*models.Song),
	}
	if c.logger == nil {
		c.logger = log.New(io.Discard)
	}
	if c.lang == language.Und {
		c.lang = language.Spanish
	}
	if c.now == nil {
		c.now = func() time.Time { return time.Now().UTC() }
	}
	return c
}

// Reload replaces the in-memory view with the contents of storage.
func (c *Catalog) Reload() error {
	songs, err := c.store.List()
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	byID := make(map[string]*models.Song, len(songs))
	for _, s := range songs {
		byID[s.ID] = s
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID = byID
	c.songs = songs
	c.sortLocked()

	c.logger.Debug("catalog reloaded", "songs", len(songs))
	return nil
}

func (c *Catalog) collator() *collate.Collator {
	return collate.New(c.lang, collate.IgnoreCase)
}

func (c *Catalog) sortLocked() {
	col := c.collator()
	sort.SliceStable(c.songs, func(i, j int) bool {
		if cmp := col.CompareString(c.songs[i].Title, c.songs[j].Title); cmp != 0 {
			return cmp < 0
		}
		return c.songs[i].ID < c.songs[j].ID
	})
}

func (c *Catalog) putLocked(song *models.Song) {
	if _, ok := c.byID[song.ID]; ok {
		c.removeLocked(song.ID)
	}
	c.byID[song.ID] = song
	c.songs = append(c.songs, song)
	c.sortLocked()
}

func (c *Catalog) removeLocked(id string) {
	if _, ok := c.byID[id]; !ok {
		return
	}
	delete(c.byID, id)
	for i, s := range c.songs {
		if s.ID == id {
			c.songs = append(c.songs[:i], c.songs[i+1:]...)
			return
		}
	}
}

func (c *Catalog) remember(song *models.Song) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(song.Clone())
}

func (c *Catalog) forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(id)
}

func (c *Catalog) online() bool {
	return c.conn != nil && c.conn.Online() && c.remote != nil
}

// Get returns a copy of the song with id.
func (c *Catalog) Get(id string) (*models.Song, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	song, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrSongNotFound, id)
	}
	return song.Clone(), nil
}

// Len returns the number of songs.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.songs)
}

// List returns copies of every song in title order.
func (c *Catalog) List() []*models.Song {
	return c.filter(func(*models.Song) bool { return true })
}

// Search returns songs whose title, lyrics, chords or tags contain term, ignoring case.
// A blank term returns the whole catalog.
func (c *Catalog) Search(term string) []*models.Song {
	return c.filter(func(s *models.Song) bool { return s.Matches(term) })
}

// FilterByTags returns songs carrying every tag in tags. An empty set returns the whole catalog.
func (c *Catalog) FilterByTags(tags []string) []*models.Song {
	return c.filter(func(s *models.Song) bool {
		for _, tag := range tags {
			if !s.HasTag(tag) {
				return false
			}
		}
		return true
	})
}

func (c *Catalog) filter(keep func(*models.Song) bool) []*models.Song {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*models.Song, 0, len(c.songs))
	for _, s := range c.songs {
		if keep(s) {
			out = append(out, s.Clone())
		}
	}
	return out
}

// AllTags returns every tag in the catalog once, in collation order.
// Tags differing only in case are reported once, in the first spelling seen.
func (c *Catalog) AllTags() []string {
	c.mu.RLock()
	seen := make(map[string]struct{})
	var tags []string
	for _, s := range c.songs {
		for _, tag := range s.Tags {
			key := strings.ToLower(tag)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			tags = append(tags, tag)
		}
	}
	c.mu.RUnlock()

	c.collator().SortStrings(tags)
	return tags
}

// Create validates input, assigns it an id and saves it.
//
// Online, the server assigns the id. Offline, or when the server is unreachable, the song keeps a
// local placeholder id until the next sync.
func (c *Catalog) Create(ctx context.Context, input *models.Song) (*Result, error) {
	song := input.Clone()
	song.Normalize()
	if err := song.Validate(); err != nil {
		return nil, err
	}

	now := c.now()
	song.ID = shared.NewLocalID()
	song.CreatedAt = now
	song.UpdatedAt = now

	var cause error
	if c.online() {
		created, err := c.remote.Create(ctx, song)
		if err == nil {
			if err := c.store.Put(created); err != nil {
				return nil, err
			}
			c.remember(created)
			return &Result{Song: created.Clone(), Outcome: Synced}, nil
		}
		if !shared.IsTransient(err) {
			return nil, err
		}
		c.logger.Warn("create failed; queuing", "title", song.Title, "error", err)
		cause = err
	}

	if err := c.store.Put(song); err != nil {
		return nil, err
	}
	if err := c.queue.EnqueueSave(song); err != nil {
		c.rollback(song.ID, nil)
		return nil, err
	}

	c.remember(song)
	return &Result{Song: song.Clone(), Outcome: Queued, Cause: cause}, nil
}

// Update validates input and replaces the song stored under id.
func (c *Catalog) Update(ctx context.Context, id string, input *models.Song) (*Result, error) {
	existing, err := c.Get(id)
	if err != nil {
		return nil, err
	}

	song := input.Clone()
	song.ID = id
	song.Normalize()
	if err := song.Validate(); err != nil {
		return nil, err
	}
	song.CreatedAt = existing.CreatedAt
	song.Touch(c.now())

	direct, err := c.direct(id)
	if err != nil {
		return nil, err
	}

	var cause error
	if direct {
		updated, err := c.remote.Update(ctx, id, song)
		if err == nil {
			if err := c.store.Put(updated); err != nil {
				return nil, err
			}
			c.remember(updated)
			return &Result{Song: updated.Clone(), Outcome: Synced}, nil
		}
		if !shared.IsTransient(err) {
			return nil, err
		}
		c.logger.Warn("update failed; queuing", "id", id, "error", err)
		cause = err
	}

	if err := c.store.Put(song); err != nil {
		return nil, err
	}
	if err := c.queue.EnqueueSave(song); err != nil {
		c.rollback(id, existing)
		return nil, err
	}

	c.remember(song)
	return &Result{Song: song.Clone(), Outcome: Queued, Cause: cause}, nil
}

// Delete removes the song under id.
//
// Songs that never reached the server have their queued saves cancelled and nothing is enqueued.
func (c *Catalog) Delete(ctx context.Context, id string) (*Result, error) {
	existing, err := c.Get(id)
	if err != nil {
		return nil, err
	}

	direct, err := c.direct(id)
	if err != nil {
		return nil, err
	}

	var cause error
	if direct {
		err := c.remote.Remove(ctx, id)
		if err == nil {
			if err := c.store.Delete(id); err != nil {
				return nil, err
			}
			c.forget(id)
			return &Result{Outcome: Synced}, nil
		}
		if !shared.IsTransient(err) {
			return nil, err
		}
		c.logger.Warn("delete failed; queuing", "id", id, "error", err)
		cause = err
	}

	if err := c.store.Delete(id); err != nil {
		return nil, err
	}
	if shared.IsLocalID(id) {
		// Nothing reached the server, so dropping the queued saves is the whole delete.
		if _, err := c.queue.Cancel(id); err != nil {
			c.rollback(id, existing)
			return nil, err
		}
	} else if err := c.queue.EnqueueDelete(id); err != nil {
		c.rollback(id, existing)
		return nil, err
	}

	c.forget(id)
	return &Result{Outcome: Queued, Cause: cause}, nil
}

// direct reports whether an edit of id may go straight to the song API. Edits of songs with queued
// mutations are queued behind them so replay cannot overwrite the newer edit.
func (c *Catalog) direct(id string) (bool, error) {
	if !c.online() || shared.IsLocalID(id) {
		return false, nil
	}
	pending, err := c.queue.HasPending(id)
	if err != nil {
		return false, err
	}
	return !pending, nil
}

// rollback restores previous under id in storage after a failed enqueue. A nil previous removes id.
func (c *Catalog) rollback(id string, previous *models.Song) {
	var err error
	if previous == nil {
		err = c.store.Delete(id)
	} else {
		err = c.store.Put(previous)
	}
	if err != nil {
		c.logger.Error("failed to roll back local write", "id", id, "error", err)
	}
}

// ImportFailure records one song an import could not save.
type ImportFailure struct {
	Title string
	Err   error
}

// ImportResult summarizes [Catalog.Import].
type ImportResult struct {
	Synced   int
	Queued   int
	Failures []ImportFailure
}

// Import creates every song in doc as a new song. Songs that fail validation are reported and skipped.
// A storage failure stops the import.
func (c *Catalog) Import(ctx context.Context, doc *models.ExportDocument) (*ImportResult, error) {
	if err := doc.CheckVersion(); err != nil {
		return nil, err
	}

	result := &ImportResult{}
	for i := range doc.Songs {
		res, err := c.Create(ctx, &doc.Songs[i])
		if errors.Is(err, shared.ErrStorage) {
			return result, err
		}
		if err != nil {
			result.Failures = append(result.Failures, ImportFailure{Title: doc.Songs[i].Title, Err: err})
			continue
		}
		if res.Outcome == Synced {
			result.Synced++
		} else {
			result.Queued++
		}
	}

	c.logger.Info("import finished", "synced", result.Synced, "queued", result.Queued, "failed", len(result.Failures))
	return result, nil
}
