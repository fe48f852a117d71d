package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/desertthunder/salineros/internal/models"
	"github.com/desertthunder/salineros/internal/shared"
	"github.com/desertthunder/salineros/internal/tasks"
	"github.com/desertthunder/salineros/internal/ui"
	"github.com/urfave/cli/v3"
)

// SyncRun runs one pass and prints progress.
func (r *Runner) SyncRun(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(cmd); err != nil {
		return err
	}
	quiet := cmd.Bool("quiet")

	progress := make(chan tasks.ProgressUpdate, 16)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for update := range progress {
			if !quiet {
				r.writePlain("%s %s\n", ui.Help("["+update.Phase.String()+"]"), update.Message)
			}
		}
	}()

	result, err := r.coordinator.Trigger(ctx, progress)
	close(progress)
	wg.Wait()

	if err != nil {
		r.writePlain("%s\n", ui.Err("✗ sync failed: "+err.Error()))
		if shared.IsTransient(err) {
			r.writePlain("%s\n", ui.Help("local edits stay queued; run 'salineros sync run' again when the API is reachable"))
		}
		return err
	}

	r.writePlain("%s replayed %d, fetched %d, applied %d in %s\n",
		ui.OK("✓ sync complete:"), result.Replayed, result.Fetched, result.Applied, result.Duration.Round(time.Millisecond))
	for _, id := range result.Conflicts {
		r.writePlain("%s\n", ui.Warn("conflict: "+id+" changed on the server while a local edit was queued; the server copy was kept"))
	}
	return nil
}

// SyncWatch syncs on an interval and on reconnect, printing lifecycle events until interrupted.
func (r *Runner) SyncWatch(ctx context.Context, cmd *cli.Command) error {
	if d := cmd.Duration("interval"); d > 0 {
		r.config.Sync.Interval = shared.Duration{Duration: d}
	}
	if err := r.open(cmd); err != nil {
		return err
	}

	probeInterval := r.config.Sync.ProbeInterval.Duration
	if probeInterval <= 0 {
		probeInterval = 30 * time.Second
	}
	r.writePlain("%s\n", ui.Rule(fmt.Sprintf("Watching %s every %s", r.api.BaseURL(), r.config.Sync.Interval.Duration)))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sub, unsubscribe := r.bus.Subscribe(64)
	defer unsubscribe()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case e := <-sub:
				r.writePlain("%s\n", ui.Event(e))
			}
		}
	}()
	go func() {
		defer wg.Done()
		if cmd.Bool("offline") {
			return
		}
		r.conn.Watch(ctx, r.remote.Health, probeInterval)
	}()

	r.coordinator.Tick(ctx)

	err := r.coordinator.Run(ctx)
	cancel()
	wg.Wait()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

type syncStatus struct {
	LastSync *time.Time `json:"lastSync"`
	Songs    int        `json:"songs"`
	Unsynced int        `json:"unsynced"`
	Pending  int        `json:"pending"`
	APIURL   string     `json:"apiUrl"`
}

// SyncStatus prints the last sync time and outbox size.
func (r *Runner) SyncStatus(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(cmd); err != nil {
		return err
	}

	lastSync, err := r.store.Meta.LastSync()
	if err != nil {
		return err
	}
	pending, err := r.queue.Len()
	if err != nil {
		return err
	}

	status := syncStatus{LastSync: lastSync, Songs: r.catalog.Len(), Pending: pending, APIURL: r.api.BaseURL()}
	for _, song := range r.catalog.List() {
		if song.IsLocal() {
			status.Unsynced++
		}
	}

	if cmd.Bool("json") {
		return r.writeJSON(status, true)
	}

	last := "never"
	if lastSync != nil {
		last = lastSync.Local().Format(time.RFC1123)
	}
	r.writePlain("%s\n", ui.Rule("Sync status"))
	r.writePlain("Song API:   %s\n", status.APIURL)
	r.writePlain("Last sync:  %s\n", last)
	r.writePlain("Songs:      %d (%d unsynced)\n", status.Songs, status.Unsynced)
	if status.Pending > 0 {
		r.writePlain("Outbox:     %s\n", ui.Warn(fmt.Sprintf("%d pending", status.Pending)))
	} else {
		r.writePlain("Outbox:     %s\n", ui.OK("empty"))
	}
	return nil
}

// OutboxList prints pending entries in replay order.
func (r *Runner) OutboxList(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(cmd); err != nil {
		return err
	}

	entries, err := r.queue.Pending()
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		if entries == nil {
			entries = []*models.OutboxEntry{}
		}
		return r.writeJSON(entries, true)
	}

	if len(entries) == 0 {
		return r.writePlain("%s\n", ui.OK("outbox empty"))
	}
	for _, e := range entries {
		title := ""
		if e.Song != nil {
			title = e.Song.Title
		}
		r.writePlain("%4d  %-6s  %-40s  %s  %s\n", e.Seq, e.Operation, e.SongID, e.EnqueuedAt.Local().Format(time.DateTime), title)
	}
	return nil
}

// OutboxCancel drops every pending entry for a song.
func (r *Runner) OutboxCancel(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: song id is required", shared.ErrMissingArgument)
	}
	if err := r.open(cmd); err != nil {
		return err
	}

	n, err := r.queue.Cancel(id)
	if err != nil {
		return err
	}
	if n == 0 {
		return r.writePlain("%s\n", ui.Help("nothing pending for "+id))
	}
	return r.writePlain("%s\n", ui.OK(fmt.Sprintf("✓ cancelled %d pending change(s) for %s", n, id)))
}
