package repositories

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/desertthunder/salineros/internal/models"
	"github.com/desertthunder/salineros/internal/shared"
)

func errorsIs(err, target error) bool { return errors.Is(err, target) }

func TestLocalStoreErrors(t *testing.T) {
	t.Run("Closed database surfaces ErrStorage", func(t *testing.T) {
		db := setupTestDB(t)
		store := NewLocalStore(db)
		db.Close()

		checks := map[string]error{
			"songs.Put":     store.Songs.Put(newSong("s1", "Nana")),
			"songs.Delete":  store.Songs.Delete("s1"),
			"outbox.Append": store.Outbox.Append(models.NewDeleteEntry("s1")),
			"outbox.Remove": store.Outbox.Remove("e1"),
			"meta.SetLast":  store.Meta.SetLastSync(time.Now()),
		}
		_, checks["songs.List"] = store.Songs.List()
		_, checks["songs.Get"] = store.Songs.Get("s1")
		_, checks["outbox.First"] = store.Outbox.First()
		_, checks["outbox.List"] = store.Outbox.List()
		_, checks["meta.LastSync"] = store.Meta.LastSync()

		for name, err := range checks {
			if !errors.Is(err, shared.ErrStorage) {
				t.Errorf("%s: expected ErrStorage, got %v", name, err)
			}
		}
	})

	t.Run("OpenLocalStore migrates a file database", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "salineros.db")

		store, err := OpenLocalStore(path, 1, 1)
		if err != nil {
			t.Fatalf("failed to open store: %v", err)
		}
		if err := store.Songs.Put(newSong("s1", "Nana")); err != nil {
			t.Fatalf("failed to put: %v", err)
		}
		store.Close()

		reopened, err := OpenLocalStore(path, 1, 1)
		if err != nil {
			t.Fatalf("failed to reopen store: %v", err)
		}
		defer reopened.Close()

		if _, err := reopened.Songs.Get("s1"); err != nil {
			t.Errorf("song should persist across reopen: %v", err)
		}
	})

	t.Run("OpenLocalStore bad path", func(t *testing.T) {
		_, err := OpenLocalStore(filepath.Join(t.TempDir(), "missing", "dir", "x.db"), 1, 1)
		if !errors.Is(err, shared.ErrStorage) {
			t.Errorf("expected ErrStorage, got %v", err)
		}
	})
}
