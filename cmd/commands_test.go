package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/salineros/internal/formatter"
	"github.com/desertthunder/salineros/internal/models"
	"github.com/desertthunder/salineros/internal/server"
	"github.com/desertthunder/salineros/internal/services"
	"github.com/desertthunder/salineros/internal/shared"
	tu "github.com/desertthunder/salineros/internal/testing"
)

const lyrics = "aaaaaaaaaa"

func TestSongsCommands(t *testing.T) {
	t.Run("add online reaches the server", func(t *testing.T) {
		remote := tu.NewFakeRemote()
		runner, output := newTestRunner(t, newTestStore(t), remote)

		if err := run(runner, "songs", "add", "--title", "Nana", "--lyrics", lyrics, "--tag", "infantil"); err != nil {
			t.Fatalf("songs add failed: %v", err)
		}

		if remote.Len() != 1 {
			t.Errorf("expected 1 song on server, got %d", remote.Len())
		}
		if !strings.Contains(output.String(), "saved") || !strings.Contains(output.String(), "srv-1") {
			t.Errorf("unexpected output %q", output.String())
		}
	})

	t.Run("add rejects invalid input", func(t *testing.T) {
		runner, output := newTestRunner(t, newTestStore(t), tu.NewFakeRemote())

		err := run(runner, "songs", "add", "--title", "N", "--lyrics", "short")
		if !errors.Is(err, shared.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
		if !strings.Contains(output.String(), "invalid data") {
			t.Errorf("expected rejection message, got %q", output.String())
		}
	})

	t.Run("add with lyrics file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nana.txt")
		if err := writeFile(path, "Duérmete niño\nduérmete ya\n"); err != nil {
			t.Fatal(err)
		}
		runner, _ := newTestRunner(t, newTestStore(t), tu.NewFakeRemote())

		if err := run(runner, "songs", "add", "--title", "Nana", "--lyrics-file", path); err != nil {
			t.Fatalf("songs add failed: %v", err)
		}
		song := runner.catalog.List()[0]
		if song.Lyrics != "Duérmete niño\nduérmete ya" {
			t.Errorf("unexpected lyrics %q", song.Lyrics)
		}
	})

	t.Run("edit, search, tags, show and rm", func(t *testing.T) {
		remote := tu.NewFakeRemote()
		runner, output := newTestRunner(t, newTestStore(t), remote)

		if err := run(runner, "songs", "add", "--title", "Nana", "--lyrics", lyrics, "--tag", "infantil"); err != nil {
			t.Fatalf("songs add failed: %v", err)
		}
		if err := run(runner, "songs", "edit", "--chords", "[Am] [E7]", "--tag", "Nana", "srv-1"); err != nil {
			t.Fatalf("songs edit failed: %v", err)
		}
		if song, _ := remote.Song("srv-1"); song.Chords != "[Am] [E7]" || len(song.Tags) != 2 {
			t.Errorf("expected server copy to be updated, got %+v", song)
		}

		output.Reset()
		if err := run(runner, "songs", "tags", "--json"); err != nil {
			t.Fatalf("songs tags failed: %v", err)
		}
		if strings.TrimSpace(output.String()) != `["infantil","Nana"]` {
			t.Errorf("unexpected tags %q", output.String())
		}

		output.Reset()
		if err := run(runner, "songs", "search", "--json", "e7"); err != nil {
			t.Fatalf("songs search failed: %v", err)
		}
		var found []models.Song
		if err := json.Unmarshal(output.Bytes(), &found); err != nil || len(found) != 1 {
			t.Errorf("expected 1 search hit, got %q", output.String())
		}

		output.Reset()
		if err := run(runner, "songs", "show", "srv-1"); err != nil {
			t.Fatalf("songs show failed: %v", err)
		}
		if !strings.Contains(output.String(), "[Am] [E7]") {
			t.Errorf("expected chords in show output, got %q", output.String())
		}

		if err := run(runner, "songs", "rm", "srv-1"); err != nil {
			t.Fatalf("songs rm failed: %v", err)
		}
		if remote.Len() != 0 || runner.catalog.Len() != 0 {
			t.Error("expected song removed everywhere")
		}
	})

	t.Run("list filters by tag", func(t *testing.T) {
		runner, output := newTestRunner(t, newTestStore(t), tu.NewFakeRemote())
		run(runner, "songs", "add", "--title", "Nana", "--lyrics", lyrics, "--tag", "infantil")
		run(runner, "songs", "add", "--title", "Jota", "--lyrics", lyrics, "--tag", "baile")

		output.Reset()
		if err := run(runner, "songs", "list", "--tag", "baile"); err != nil {
			t.Fatalf("songs list failed: %v", err)
		}
		if !strings.Contains(output.String(), "Jota") || strings.Contains(output.String(), "Nana") {
			t.Errorf("unexpected list %q", output.String())
		}
	})

	t.Run("missing arguments", func(t *testing.T) {
		runner, _ := newTestRunner(t, newTestStore(t), tu.NewFakeRemote())

		for _, args := range [][]string{{"songs", "show"}, {"songs", "edit"}, {"songs", "rm"}, {"songs", "search"}, {"outbox", "cancel"}, {"import"}} {
			if err := run(runner, args...); !errors.Is(err, shared.ErrMissingArgument) {
				t.Errorf("%v: expected ErrMissingArgument, got %v", args, err)
			}
		}
	})

	t.Run("show unknown song", func(t *testing.T) {
		runner, _ := newTestRunner(t, newTestStore(t), tu.NewFakeRemote())
		if err := run(runner, "songs", "show", "nope"); !errors.Is(err, shared.ErrSongNotFound) {
			t.Errorf("expected ErrSongNotFound, got %v", err)
		}
	})
}

func TestOfflineThenSync(t *testing.T) {
	store := newTestStore(t)
	remote := tu.NewFakeRemote()

	offline, output := newTestRunner(t, store, remote)
	if err := run(offline, "--offline", "songs", "add", "--title", "Nana", "--lyrics", lyrics, "--tag", "infantil"); err != nil {
		t.Fatalf("offline add failed: %v", err)
	}
	if !strings.Contains(output.String(), "saved locally, will sync later") {
		t.Errorf("expected queued message, got %q", output.String())
	}
	if remote.Calls("create") != 0 {
		t.Error("offline add must not call the server")
	}

	output.Reset()
	if err := run(offline, "outbox", "list"); err != nil {
		t.Fatalf("outbox list failed: %v", err)
	}
	if !strings.Contains(output.String(), "save") || !strings.Contains(output.String(), "Nana") {
		t.Errorf("unexpected outbox listing %q", output.String())
	}

	output.Reset()
	if err := run(offline, "sync", "status", "--json"); err != nil {
		t.Fatalf("sync status failed: %v", err)
	}
	var status syncStatus
	if err := json.Unmarshal(output.Bytes(), &status); err != nil {
		t.Fatalf("status is not JSON: %v", err)
	}
	if status.Pending != 1 || status.Unsynced != 1 || status.LastSync != nil {
		t.Errorf("unexpected status %+v", status)
	}

	online, output := newTestRunner(t, store, remote)
	if err := run(online, "sync", "run"); err != nil {
		t.Fatalf("sync run failed: %v", err)
	}
	if !strings.Contains(output.String(), "replayed 1") {
		t.Errorf("expected replay summary, got %q", output.String())
	}
	if !strings.Contains(output.String(), "[drain_outbox]") {
		t.Errorf("expected progress lines, got %q", output.String())
	}

	songs := online.catalog.List()
	if len(songs) != 1 || songs[0].ID != "srv-1" {
		t.Fatalf("expected catalog to hold srv-1, got %+v", songs)
	}
	if n, _ := store.Outbox.Count(); n != 0 {
		t.Errorf("expected empty outbox, got %d", n)
	}
	if last, _ := store.Meta.LastSync(); last == nil {
		t.Error("expected last sync to be recorded")
	}
}

func TestSyncRunFailure(t *testing.T) {
	remote := tu.NewFakeRemote()
	remote.Offline = true
	runner, output := newTestRunner(t, newTestStore(t), remote)

	err := run(runner, "sync", "run", "--quiet")
	if !errors.Is(err, shared.ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
	if !strings.Contains(output.String(), "sync failed") || !strings.Contains(output.String(), "stay queued") {
		t.Errorf("unexpected output %q", output.String())
	}
}

func TestOutboxCancel(t *testing.T) {
	store := newTestStore(t)
	runner, output := newTestRunner(t, store, tu.NewFakeRemote())

	run(runner, "--offline", "songs", "add", "--title", "Nana", "--lyrics", lyrics)
	id := runner.catalog.List()[0].ID

	output.Reset()
	if err := run(runner, "outbox", "cancel", id); err != nil {
		t.Fatalf("outbox cancel failed: %v", err)
	}
	if !strings.Contains(output.String(), "cancelled 1") {
		t.Errorf("unexpected output %q", output.String())
	}

	output.Reset()
	run(runner, "outbox", "cancel", id)
	if !strings.Contains(output.String(), "nothing pending") {
		t.Errorf("unexpected output %q", output.String())
	}
}

func TestExportImport(t *testing.T) {
	runner, output := newTestRunner(t, newTestStore(t), tu.NewFakeRemote())
	run(runner, "songs", "add", "--title", "Nana", "--lyrics", lyrics, "--tag", "infantil")

	t.Run("stdout text", func(t *testing.T) {
		output.Reset()
		if err := run(runner, "export", "--format", "txt", "--stdout"); err != nil {
			t.Fatalf("export failed: %v", err)
		}
		if output.String() != "Songs: 1\n\n1. Nana [infantil]\n" {
			t.Errorf("unexpected export %q", output.String())
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		if err := run(runner, "export", "--format", "xml"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("round trip through a file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "songs.json")
		if err := run(runner, "export", "--output", path); err != nil {
			t.Fatalf("export failed: %v", err)
		}
		tu.AssertFileExists(t, path)

		remote := tu.NewFakeRemote()
		target, out := newTestRunner(t, newTestStore(t), remote)
		if err := run(target, "import", path); err != nil {
			t.Fatalf("import failed: %v", err)
		}
		if remote.Len() != 1 || target.catalog.Len() != 1 {
			t.Errorf("expected 1 imported song, got server %d catalog %d", remote.Len(), target.catalog.Len())
		}
		if !strings.Contains(out.String(), "1 song(s) saved") {
			t.Errorf("unexpected output %q", out.String())
		}
	})

	t.Run("import reports invalid songs", func(t *testing.T) {
		doc := models.ExportDocument{Version: 1, ExportedAt: time.Now(), Songs: []models.Song{
			tu.NewSong("", "Nana"),
			{Title: "x"},
		}}
		data, _ := json.Marshal(doc)
		path := filepath.Join(t.TempDir(), "mixed.json")
		if err := writeFile(path, string(data)); err != nil {
			t.Fatal(err)
		}

		target, out := newTestRunner(t, newTestStore(t), tu.NewFakeRemote())
		if err := run(target, "import", path); err != nil {
			t.Fatalf("import failed: %v", err)
		}
		if target.catalog.Len() != 1 || !strings.Contains(out.String(), "invalid data") {
			t.Errorf("expected one import and one rejection, got %q", out.String())
		}
	})

	t.Run("import rejects future versions", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "future.json")
		writeFile(path, `{"version": 9, "songs": []}`)
		if _, err := formatter.ReadExport(path); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument from reader, got %v", err)
		}
		if err := run(runner, "import", path); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestAPICommands(t *testing.T) {
	ts := httptest.NewServer(server.NewServer(server.ServerOpts{}).Handler())
	t.Cleanup(ts.Close)

	api := services.NewSongAPI(services.SongAPIOptions{BaseURL: ts.URL, Timeout: time.Second})
	output := &strings.Builder{}
	runner := NewRunner(RunnerOpts{API: api, Output: output, Logger: log.New(io.Discard)})

	if err := run(runner, "api", "get", "health"); err != nil {
		t.Fatalf("api get failed: %v", err)
	}
	if !strings.Contains(output.String(), `"status": "ok"`) {
		t.Errorf("unexpected output %q", output.String())
	}

	output.Reset()
	if err := run(runner, "api", "post", "-d", `{"title":"Nana","lyrics":"aaaaaaaaaa"}`, "/api/songs"); err != nil {
		t.Fatalf("api post failed: %v", err)
	}
	if !strings.Contains(output.String(), `"title": "Nana"`) {
		t.Errorf("unexpected output %q", output.String())
	}

	if err := run(runner, "api", "post", "-d", `{`, "/api/songs"); !errors.Is(err, shared.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
	if err := run(runner, "api", "get", "/api/songs/missing"); !errors.Is(err, shared.ErrRejected) {
		t.Errorf("expected ErrRejected, got %v", err)
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0644)
}
