// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/salineros/internal/models"
	"github.com/desertthunder/salineros/internal/shared"
)

// FakeRemote is an in-memory song API satisfying services.RemoteClient.
//
// It assigns ids "srv-N", de-duplicates creates by placeholder id and keeps tombstones for ChangesSince.
type FakeRemote struct {
	mu        sync.Mutex
	songs     map[string]models.Song
	clientIDs map[string]string
	deleted   map[string]time.Time
	nextID    int
	calls     map[string]int
	failures  map[string][]error

	// Offline makes every call fail with a network error.
	Offline bool
	// Changes, when set, is returned by ChangesSince instead of the computed set.
	Changes *models.ChangeSet
	// Entered receives a value when ChangesSince starts, if non-nil.
	Entered chan struct{}
	// Release blocks ChangesSince until it is closed or receives, if non-nil.
	Release chan struct{}
	// Now is the server clock.
	Now func() time.Time
}

// NewFakeRemote creates an empty fake server.
func NewFakeRemote() *FakeRemote {
	return &FakeRemote{
		songs:     make(map[string]models.Song),
		clientIDs: make(map[string]string),
		deleted:   make(map[string]time.Time),
		calls:     make(map[string]int),
		failures:  make(map[string][]error),
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

// Seed stores songs as if they had been created on the server.
func (f *FakeRemote) Seed(songs ...models.Song) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range songs {
		f.songs[s.ID] = s
	}
}

// FailNext queues err as the result of the next call to op ("list", "create", "update", "remove", "changes", "health").
func (f *FakeRemote) FailNext(op string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = append(f.failures[op], errs...)
}

// Calls returns how many times op was invoked.
func (f *FakeRemote) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Song returns the server copy of id.
func (f *FakeRemote) Song(id string) (models.Song, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.songs[id]
	return s, ok
}

// Len returns the number of live songs on the server.
func (f *FakeRemote) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.songs)
}

func (f *FakeRemote) begin(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	if f.Offline {
		return fmt.Errorf("%w: fake remote offline", shared.ErrNetwork)
	}
	if queued := f.failures[op]; len(queued) > 0 {
		err := queued[0]
		f.failures[op] = queued[1:]
		return err
	}
	return nil
}

func (f *FakeRemote) List(ctx context.Context) ([]models.Song, error) {
	if err := f.begin("list"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sortedLocked(func(models.Song) bool { return true }), nil
}

func (f *FakeRemote) Create(ctx context.Context, song *models.Song) (*models.Song, error) {
	if err := f.begin("create"); err != nil {
		return nil, err
	}
	if err := song.Validate(); err != nil {
		return nil, &shared.RemoteError{StatusCode: http.StatusUnprocessableEntity, Message: err.Error()}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	clientID := ""
	if song.IsLocal() {
		clientID = song.ID
		if id, ok := f.clientIDs[clientID]; ok {
			if existing, ok := f.songs[id]; ok {
				return &existing, nil
			}
		}
	}

	f.nextID++
	now := f.Now()
	created := *song.Clone()
	created.ID = fmt.Sprintf("srv-%d", f.nextID)
	created.CreatedAt = now
	created.UpdatedAt = now
	f.songs[created.ID] = created
	if clientID != "" {
		f.clientIDs[clientID] = created.ID
	}
	return &created, nil
}

func (f *FakeRemote) Update(ctx context.Context, id string, song *models.Song) (*models.Song, error) {
	if err := f.begin("update"); err != nil {
		return nil, err
	}
	if err := song.Validate(); err != nil {
		return nil, &shared.RemoteError{StatusCode: http.StatusUnprocessableEntity, Message: err.Error()}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.Now()
	updated := *song.Clone()
	updated.ID = id
	updated.UpdatedAt = now
	if existing, ok := f.songs[id]; ok {
		updated.CreatedAt = existing.CreatedAt
	} else if updated.CreatedAt.IsZero() {
		updated.CreatedAt = now
	}
	delete(f.deleted, id)
	f.songs[id] = updated
	return &updated, nil
}

func (f *FakeRemote) Remove(ctx context.Context, id string) error {
	if err := f.begin("remove"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.songs[id]; ok {
		delete(f.songs, id)
		f.deleted[id] = f.Now()
	}
	return nil
}

func (f *FakeRemote) ChangesSince(ctx context.Context, since *time.Time) (*models.ChangeSet, error) {
	if err := f.begin("changes"); err != nil {
		return nil, err
	}
	if f.Entered != nil {
		f.Entered <- struct{}{}
	}
	if f.Release != nil {
		select {
		case <-f.Release:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", shared.ErrNetwork, ctx.Err())
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Changes != nil {
		cs := *f.Changes
		return &cs, nil
	}

	cs := &models.ChangeSet{ServerTime: f.Now()}
	if since == nil {
		cs.Created = f.sortedLocked(func(models.Song) bool { return true })
		return cs, nil
	}

	cs.Created = f.sortedLocked(func(s models.Song) bool { return s.CreatedAt.After(*since) })
	cs.Modified = f.sortedLocked(func(s models.Song) bool {
		return !s.CreatedAt.After(*since) && s.UpdatedAt.After(*since)
	})
	for id, at := range f.deleted {
		if at.After(*since) {
			cs.Deleted = append(cs.Deleted, id)
		}
	}
	sort.Strings(cs.Deleted)
	return cs, nil
}

func (f *FakeRemote) Health(ctx context.Context) error {
	return f.begin("health")
}

func (f *FakeRemote) sortedLocked(keep func(models.Song) bool) []models.Song {
	var out []models.Song
	for _, s := range f.songs {
		if keep(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	mu       sync.Mutex
	response *http.Response
	err      error
	calls    int
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.response, m.err
}

// Calls returns the number of round trips attempted.
func (m *MockRoundTripper) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

// NewSong builds a valid song for tests.
func NewSong(id, title string, tags ...string) models.Song {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return models.Song{
		ID:        id,
		Title:     title,
		Lyrics:    "aaaaaaaaaa",
		Tags:      tags,
		CreatedAt: at,
		UpdatedAt: at,
	}
}
