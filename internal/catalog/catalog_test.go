package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/salineros/internal/models"
	"github.com/desertthunder/salineros/internal/outbox"
	"github.com/desertthunder/salineros/internal/repositories"
	"github.com/desertthunder/salineros/internal/shared"
	"github.com/desertthunder/salineros/internal/tasks"
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

type switchable struct{ on atomic.Bool }

func (s *switchable) Online() bool { return s.on.Load() }

type fixture struct {
	store   *repositories.LocalStore
	queue   *outbox.Queue
	remote  *tu.FakeRemote
	conn    *switchable
	catalog *Catalog
}

func newFixture(t *testing.T, online bool) *fixture {
	t.Helper()

	f := &fixture{
		store:  repositories.NewLocalStore(setupTestDB(t)),
		remote: tu.NewFakeRemote(),
		conn:   &switchable{},
	}
	f.conn.on.Store(online)
	f.queue = outbox.NewQueue(f.store.Outbox, nil, nil)
	f.catalog = New(Options{Store: f.store.Songs, Queue: f.queue, Remote: f.remote, Connectivity: f.conn})
	return f
}

func input(title string, tags ...string) *models.Song {
	return &models.Song{Title: title, Lyrics: strings.Repeat("a", 10), Tags: tags}
}

func titles(songs []*models.Song) string {
	out := make([]string, len(songs))
	for i, s := range songs {
		out[i] = s.Title
	}
	return strings.Join(out, ", ")
}

func mustCreate(t *testing.T, c *Catalog, song *models.Song) *models.Song {
	t.Helper()
	res, err := c.Create(context.Background(), song)
	if err != nil {
		t.Fatalf("failed to create %q: %v", song.Title, err)
	}
	return res.Song
}

func TestCatalogCreate(t *testing.T) {
	t.Run("offline create is queued with a local id", func(t *testing.T) {
		f := newFixture(t, false)

		res, err := f.catalog.Create(context.Background(), input("Nana", "infantil"))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Outcome != Queued || !shared.IsLocalID(res.Song.ID) {
			t.Errorf("expected queued song with local id, got %s %s", res.Outcome, res.Song.ID)
		}
		if res.Message() != "saved locally, will sync later" {
			t.Errorf("unexpected message %q", res.Message())
		}

		entries, _ := f.queue.Pending()
		if len(entries) != 1 || entries[0].Operation != models.OperationSave {
			t.Errorf("expected one save entry, got %v", entries)
		}
		if f.remote.Calls("create") != 0 {
			t.Error("offline create must not call the server")
		}
		if f.catalog.Len() != 1 {
			t.Errorf("expected song in catalog, got %d", f.catalog.Len())
		}
	})

	t.Run("online create uses server id", func(t *testing.T) {
		f := newFixture(t, true)

		res, err := f.catalog.Create(context.Background(), input("Nana"))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Outcome != Synced || res.Song.ID != "srv-1" {
			t.Errorf("expected synced srv-1, got %s %s", res.Outcome, res.Song.ID)
		}
		if n, _ := f.queue.Len(); n != 0 {
			t.Errorf("expected empty outbox, got %d", n)
		}
		if _, err := f.store.Songs.Get("srv-1"); err != nil {
			t.Errorf("expected song in local store: %v", err)
		}
	})

	t.Run("validation error is not queued", func(t *testing.T) {
		f := newFixture(t, false)

		_, err := f.catalog.Create(context.Background(), &models.Song{Title: "N", Lyrics: "short"})
		if !errors.Is(err, shared.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
		if n, _ := f.queue.Len(); n != 0 {
			t.Errorf("expected nothing queued, got %d", n)
		}
		if f.catalog.Len() != 0 {
			t.Errorf("expected empty catalog, got %d", f.catalog.Len())
		}
	})

	t.Run("server rejection propagates", func(t *testing.T) {
		f := newFixture(t, true)
		f.remote.FailNext("create", &shared.RemoteError{StatusCode: http.StatusUnprocessableEntity})

		_, err := f.catalog.Create(context.Background(), input("Nana"))
		if !errors.Is(err, shared.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
		if n, _ := f.queue.Len(); n != 0 {
			t.Errorf("expected nothing queued, got %d", n)
		}
	})

	t.Run("server error falls back to outbox", func(t *testing.T) {
		f := newFixture(t, true)
		f.remote.FailNext("create", &shared.RemoteError{StatusCode: http.StatusServiceUnavailable})

		res, err := f.catalog.Create(context.Background(), input("Nana"))
		if err != nil {
			t.Fatalf("expected fallback, got %v", err)
		}
		if res.Outcome != Queued || !errors.Is(res.Cause, shared.ErrServer) {
			t.Errorf("expected queued with server cause, got %s %v", res.Outcome, res.Cause)
		}
		if n, _ := f.queue.Len(); n != 1 {
			t.Errorf("expected one queued entry, got %d", n)
		}
	})

	t.Run("enqueue failure leaves storage untouched", func(t *testing.T) {
		f := newFixture(t, false)
		f.catalog.queue = outbox.NewQueue(failingOutbox{f.store.Outbox}, nil, nil)

		_, err := f.catalog.Create(context.Background(), input("Nana"))
		if !errors.Is(err, shared.ErrStorage) {
			t.Fatalf("expected ErrStorage, got %v", err)
		}
		if n, _ := f.store.Songs.Count(); n != 0 {
			t.Errorf("expected local write rolled back, got %d songs", n)
		}
		if f.catalog.Len() != 0 {
			t.Errorf("expected empty catalog, got %d", f.catalog.Len())
		}
	})
}

type failingOutbox struct {
	models.OutboxStore
}

func (failingOutbox) Append(*models.OutboxEntry) error {
	return fmt.Errorf("%w: disk full", shared.ErrStorage)
}

func TestCatalogUpdateDelete(t *testing.T) {
	t.Run("update unknown id", func(t *testing.T) {
		f := newFixture(t, true)
		if _, err := f.catalog.Update(context.Background(), "srv-404", input("Nana")); !errors.Is(err, shared.ErrSongNotFound) {
			t.Errorf("expected ErrSongNotFound, got %v", err)
		}
	})

	t.Run("online update keeps order", func(t *testing.T) {
		f := newFixture(t, true)
		a := mustCreate(t, f.catalog, input("Alba"))
		mustCreate(t, f.catalog, input("Copla"))

		res, err := f.catalog.Update(context.Background(), a.ID, input("Zambra"))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Outcome != Synced {
			t.Errorf("expected synced, got %s", res.Outcome)
		}
		if got := titles(f.catalog.List()); got != "Copla, Zambra" {
			t.Errorf("expected resorted catalog, got %s", got)
		}
		server, _ := f.remote.Song(a.ID)
		if server.Title != "Zambra" {
			t.Errorf("expected server update, got %q", server.Title)
		}
	})

	t.Run("update of unsynced song is queued even online", func(t *testing.T) {
		f := newFixture(t, false)
		song := mustCreate(t, f.catalog, input("Nana"))
		f.conn.on.Store(true)

		res, err := f.catalog.Update(context.Background(), song.ID, input("Nana nueva"))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Outcome != Queued || f.remote.Calls("update") != 0 {
			t.Errorf("expected queued without remote call, got %s", res.Outcome)
		}
		if !res.Song.CreatedAt.Equal(song.CreatedAt) {
			t.Error("expected createdAt to be preserved")
		}
	})

	t.Run("online delete", func(t *testing.T) {
		f := newFixture(t, true)
		song := mustCreate(t, f.catalog, input("Nana"))

		if _, err := f.catalog.Delete(context.Background(), song.ID); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if f.remote.Len() != 0 || f.catalog.Len() != 0 {
			t.Errorf("expected song removed everywhere")
		}
		if _, err := f.catalog.Delete(context.Background(), song.ID); !errors.Is(err, shared.ErrSongNotFound) {
			t.Errorf("expected ErrSongNotFound on second delete, got %v", err)
		}
	})

	t.Run("offline delete of unsynced song cancels its save", func(t *testing.T) {
		f := newFixture(t, false)
		song := mustCreate(t, f.catalog, input("Nana"))

		res, err := f.catalog.Delete(context.Background(), song.ID)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Outcome != Queued {
			t.Errorf("expected queued, got %s", res.Outcome)
		}

		if n, _ := f.queue.Len(); n != 0 {
			t.Errorf("expected the queued save to be cancelled with nothing enqueued, got %d entries", n)
		}
		if n, _ := f.store.Songs.Count(); n != 0 {
			t.Errorf("expected song removed locally, got %d", n)
		}
	})

	t.Run("delete of unsynced song does not append to the outbox", func(t *testing.T) {
		f := newFixture(t, false)
		song := mustCreate(t, f.catalog, input("Nana"))
		f.catalog.queue = outbox.NewQueue(failingOutbox{f.store.Outbox}, nil, nil)

		if _, err := f.catalog.Delete(context.Background(), song.ID); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if n, _ := f.queue.Len(); n != 0 {
			t.Errorf("expected empty outbox, got %d", n)
		}
	})

	t.Run("failed delete enqueue keeps song and queued saves", func(t *testing.T) {
		f := newFixture(t, true)
		song := mustCreate(t, f.catalog, input("Nana"))
		f.conn.on.Store(false)
		if _, err := f.catalog.Update(context.Background(), song.ID, input("Nana nueva")); err != nil {
			t.Fatalf("failed to queue update: %v", err)
		}
		f.catalog.queue = outbox.NewQueue(failingOutbox{f.store.Outbox}, nil, nil)

		if _, err := f.catalog.Delete(context.Background(), song.ID); !errors.Is(err, shared.ErrStorage) {
			t.Fatalf("expected ErrStorage, got %v", err)
		}
		stored, err := f.store.Songs.Get(song.ID)
		if err != nil || stored.Title != "Nana nueva" {
			t.Errorf("expected stored song restored, got %v, %v", stored, err)
		}
		if ok, _ := f.queue.HasPending(song.ID); !ok {
			t.Error("expected queued save to survive")
		}
		if _, err := f.catalog.Get(song.ID); err != nil {
			t.Errorf("expected song still in catalog, got %v", err)
		}
	})

	t.Run("online edit of song with queued edits waits its turn", func(t *testing.T) {
		f := newFixture(t, true)
		song := mustCreate(t, f.catalog, input("Nana"))
		f.conn.on.Store(false)
		if _, err := f.catalog.Update(context.Background(), song.ID, input("V1 offline")); err != nil {
			t.Fatalf("failed to queue update: %v", err)
		}
		f.conn.on.Store(true)

		res, err := f.catalog.Update(context.Background(), song.ID, input("V2 online"))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Outcome != Queued || f.remote.Calls("update") != 0 {
			t.Errorf("expected queued without remote call, got %s with %d updates", res.Outcome, f.remote.Calls("update"))
		}

		if _, err := f.catalog.Delete(context.Background(), song.ID); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if f.remote.Calls("remove") != 0 {
			t.Errorf("expected delete queued behind the edits, got %d remote deletes", f.remote.Calls("remove"))
		}
		entries, _ := f.queue.Pending()
		if len(entries) != 3 || entries[2].Operation != models.OperationDelete {
			t.Errorf("expected save, save, delete, got %v", entries)
		}
	})

	t.Run("offline delete of synced song", func(t *testing.T) {
		f := newFixture(t, true)
		song := mustCreate(t, f.catalog, input("Nana"))
		f.conn.on.Store(false)

		if _, err := f.catalog.Delete(context.Background(), song.ID); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if f.remote.Len() != 1 {
			t.Error("offline delete must not reach the server")
		}
		if ok, _ := f.queue.HasPending(song.ID); !ok {
			t.Error("expected delete to be queued")
		}
	})
}

func TestCatalogQueries(t *testing.T) {
	f := newFixture(t, false)
	for _, s := range []*models.Song{
		input("Villancico", "navidad"),
		input("Nana de Sevilla", "infantil", "nana"),
		input("Campanas", "navidad", "infantil"),
		input("Alegrías", "flamenco"),
		input("Marinera", "Navidad"),
	} {
		mustCreate(t, f.catalog, s)
	}

	t.Run("blank search returns everything sorted", func(t *testing.T) {
		for _, term := range []string{"", "   "} {
			got := f.catalog.Search(term)
			if titles(got) != "Alegrías, Campanas, Marinera, Nana de Sevilla, Villancico" {
				t.Errorf("unexpected order for %q: %s", term, titles(got))
			}
		}
	})

	t.Run("search is case-insensitive", func(t *testing.T) {
		got := f.catalog.Search("nana")
		if len(got) != 1 || got[0].Title != "Nana de Sevilla" {
			t.Errorf("expected only Nana de Sevilla, got %s", titles(got))
		}
		if got := f.catalog.Search("FLAMENCO"); len(got) != 1 {
			t.Errorf("expected tag match, got %s", titles(got))
		}
	})

	t.Run("filter by tags uses AND", func(t *testing.T) {
		got := f.catalog.FilterByTags([]string{"navidad", "infantil"})
		if titles(got) != "Campanas" {
			t.Errorf("expected only Campanas, got %s", titles(got))
		}
		if got := f.catalog.FilterByTags(nil); len(got) != 5 {
			t.Errorf("expected full catalog for empty set, got %d", len(got))
		}
		if got := f.catalog.FilterByTags([]string{"navidad"}); len(got) != 3 {
			t.Errorf("expected 3 navidad songs, got %s", titles(got))
		}
	})

	t.Run("all tags", func(t *testing.T) {
		got := strings.Join(f.catalog.AllTags(), ",")
		if got != "flamenco,infantil,nana,navidad" {
			t.Errorf("unexpected tags %s", got)
		}
	})

	t.Run("returned songs are copies", func(t *testing.T) {
		got := f.catalog.Search("nana")
		got[0].Title = "changed"
		if f.catalog.Search("nana")[0].Title != "Nana de Sevilla" {
			t.Error("catalog was mutated through a returned song")
		}
	})
}

func TestCatalogLocaleOrder(t *testing.T) {
	f := newFixture(t, false)
	for _, title := range []string{"Zorro", "Ñandú", "abeja", "Águila", "Oso", "Nube"} {
		mustCreate(t, f.catalog, input(title))
	}

	if got := titles(f.catalog.List()); got != "abeja, Águila, Nube, Ñandú, Oso, Zorro" {
		t.Errorf("unexpected order %s", got)
	}
}

func TestCatalogReload(t *testing.T) {
	f := newFixture(t, false)

	song := tu.NewSong("srv-1", "Copla")
	if err := f.store.Songs.Put(&song); err != nil {
		t.Fatalf("failed to store: %v", err)
	}
	if f.catalog.Len() != 0 {
		t.Fatal("catalog should not see storage until reload")
	}
	if err := f.catalog.Reload(); err != nil {
		t.Fatalf("failed to reload: %v", err)
	}
	if got, err := f.catalog.Get("srv-1"); err != nil || got.Title != "Copla" {
		t.Errorf("expected Copla after reload, got %v, %v", got, err)
	}
}

func TestCatalogImport(t *testing.T) {
	f := newFixture(t, false)

	doc := &models.ExportDocument{Version: models.ExportVersion, ExportedAt: time.Now(), Songs: []models.Song{
		*input("Nana"),
		{Title: "X", Lyrics: "short"},
		*input("Copla"),
	}}

	result, err := f.catalog.Import(context.Background(), doc)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Queued != 2 || len(result.Failures) != 1 || result.Failures[0].Title != "X" {
		t.Errorf("unexpected result %+v", result)
	}

	doc.Version = 99
	if _, err := f.catalog.Import(context.Background(), doc); !errors.Is(err, shared.ErrInvalidArgument) {
		t.Errorf("expected version error, got %v", err)
	}
}

func TestOfflineCreateThenSync(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	res, err := f.catalog.Create(ctx, &models.Song{Title: "Nana", Lyrics: strings.Repeat("a", 10), Tags: []string{"infantil"}})
	if err != nil {
		t.Fatalf("failed to create: %v", err)
	}
	localID := res.Song.ID
	if !shared.IsLocalID(localID) {
		t.Fatalf("expected local id, got %s", localID)
	}
	if n, _ := f.queue.Len(); n != 1 {
		t.Fatalf("expected one outbox entry, got %d", n)
	}

	f.conn.on.Store(true)
	coord := tasks.NewCoordinator(tasks.CoordinatorOpts{
		Queue:      f.queue,
		Remote:     f.remote,
		Songs:      f.store.Songs,
		Meta:       f.store.Meta,
		Reconciler: tasks.NewReconciler(f.store.Songs, f.queue, nil, nil),
		Refresher:  f.catalog,
		Signal:     f.conn,
	})

	if _, err := coord.Trigger(ctx, nil); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	if n, _ := f.queue.Len(); n != 0 {
		t.Errorf("expected empty outbox, got %d", n)
	}
	if _, err := f.catalog.Get(localID); !errors.Is(err, shared.ErrSongNotFound) {
		t.Errorf("expected local id to be replaced, got %v", err)
	}
	got, err := f.catalog.Get("srv-1")
	if err != nil || got.Title != "Nana" || f.catalog.Len() != 1 {
		t.Errorf("expected catalog to hold srv-1 only, got %v, %v", got, err)
	}
	if last, _ := f.store.Meta.LastSync(); last == nil {
		t.Error("expected lastSync to be recorded")
	}
}

func newSyncCoordinator(f *fixture) *tasks.Coordinator {
	return tasks.NewCoordinator(tasks.CoordinatorOpts{
		Queue:      f.queue,
		Remote:     f.remote,
		Songs:      f.store.Songs,
		Meta:       f.store.Meta,
		Reconciler: tasks.NewReconciler(f.store.Songs, f.queue, nil, nil),
		Refresher:  f.catalog,
		Signal:     f.conn,
		BaseDelay:  time.Hour,
	})
}

func TestEditsAcrossConnectivityChanges(t *testing.T) {
	t.Run("offline edit then online edit keeps the latest", func(t *testing.T) {
		f := newFixture(t, true)
		ctx := context.Background()
		song := mustCreate(t, f.catalog, input("Nana"))

		f.conn.on.Store(false)
		if _, err := f.catalog.Update(ctx, song.ID, input("V1 offline")); err != nil {
			t.Fatalf("offline update failed: %v", err)
		}
		f.conn.on.Store(true)
		if _, err := f.catalog.Update(ctx, song.ID, input("V2 online")); err != nil {
			t.Fatalf("online update failed: %v", err)
		}

		if _, err := newSyncCoordinator(f).Trigger(ctx, nil); err != nil {
			t.Fatalf("sync failed: %v", err)
		}

		server, _ := f.remote.Song(song.ID)
		got, err := f.catalog.Get(song.ID)
		if err != nil {
			t.Fatalf("expected song in catalog, got %v", err)
		}
		if server.Title != "V2 online" || got.Title != "V2 online" {
			t.Errorf("expected latest edit everywhere, got server=%q catalog=%q", server.Title, got.Title)
		}
	})

	t.Run("edit after a partially failed sync keeps the server id", func(t *testing.T) {
		f := newFixture(t, false)
		ctx := context.Background()
		res, err := f.catalog.Create(ctx, input("Nana"))
		if err != nil {
			t.Fatalf("failed to create: %v", err)
		}
		localID := res.Song.ID

		f.conn.on.Store(true)
		coord := newSyncCoordinator(f)
		f.remote.FailNext("changes", fmt.Errorf("%w: reset", shared.ErrNetwork))
		if _, err := coord.Trigger(ctx, nil); !errors.Is(err, shared.ErrNetwork) {
			t.Fatalf("expected network failure, got %v", err)
		}

		if _, err := f.catalog.Get(localID); !errors.Is(err, shared.ErrSongNotFound) {
			t.Errorf("expected placeholder id gone from the catalog, got %v", err)
		}
		if _, err := f.catalog.Update(ctx, "srv-1", input("Nana editada")); err != nil {
			t.Fatalf("failed to edit: %v", err)
		}
		if _, err := coord.Trigger(ctx, nil); err != nil {
			t.Fatalf("sync failed: %v", err)
		}

		server, _ := f.remote.Song("srv-1")
		got, _ := f.catalog.Get("srv-1")
		if server.Title != "Nana editada" || got == nil || got.Title != "Nana editada" {
			t.Errorf("expected edit to survive, got server=%q catalog=%v", server.Title, got)
		}
		if f.catalog.Len() != 1 || f.remote.Len() != 1 {
			t.Errorf("expected exactly one copy, got catalog=%d server=%d", f.catalog.Len(), f.remote.Len())
		}
	})
}
