package tasks

import (
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/salineros/internal/events"
	"github.com/desertthunder/salineros/internal/models"
	"github.com/desertthunder/salineros/internal/outbox"
	"github.com/desertthunder/salineros/internal/repositories"
	"github.com/desertthunder/salineros/internal/shared"
	tu "github.com/desertthunder/salineros/internal/testing"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if _, err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// fakeClock records scheduled retries so tests decide when they fire.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	delay   time.Duration
	f       func()
	stopped bool
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) func() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	timer := &fakeTimer{delay: d, f: f}
	c.timers = append(c.timers, timer)
	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		active := !timer.stopped
		timer.stopped = true
		return active
	}
}

// delays returns the delay of every timer scheduled so far.
func (c *fakeClock) delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.timers))
	for i, timer := range c.timers {
		out[i] = timer.delay
	}
	return out
}

// fireLast runs the most recent timer if it is still active and reports whether it ran.
func (c *fakeClock) fireLast() bool {
	c.mu.Lock()
	if len(c.timers) == 0 {
		c.mu.Unlock()
		return false
	}
	timer := c.timers[len(c.timers)-1]
	if timer.stopped {
		c.mu.Unlock()
		return false
	}
	timer.stopped = true
	c.mu.Unlock()

	timer.f()
	return true
}

type harness struct {
	store  *repositories.LocalStore
	queue  *outbox.Queue
	remote *tu.FakeRemote
	rec    *events.Recorder
	clock  *fakeClock
	conn   *Connectivity
	coord  *Coordinator
}

type reloadCounter struct {
	mu    sync.Mutex
	count int
	err   error
}

func (r *reloadCounter) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count++
	return r.err
}

func newHarness(t *testing.T, refresher Refresher) *harness {
	t.Helper()

	h := &harness{
		store:  repositories.NewLocalStore(setupTestDB(t)),
		remote: tu.NewFakeRemote(),
		rec:    &events.Recorder{},
		clock:  &fakeClock{},
	}
	h.queue = outbox.NewQueue(h.store.Outbox, h.rec, nil)
	h.conn = NewConnectivity(true, h.rec, nil)
	h.coord = NewCoordinator(CoordinatorOpts{
		Queue:      h.queue,
		Remote:     h.remote,
		Songs:      h.store.Songs,
		Meta:       h.store.Meta,
		Reconciler: NewReconciler(h.store.Songs, h.queue, h.rec, nil),
		Refresher:  refresher,
		Signal:     h.conn,
		Events:     h.rec,
		BaseDelay:  2 * time.Second,
		MaxRetries: 3,
		AfterFunc:  h.clock.AfterFunc,
	})
	return h
}

func songPtr(id, title string, tags ...string) *models.Song {
	s := tu.NewSong(id, title, tags...)
	return &s
}
