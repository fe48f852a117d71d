package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/salineros/internal/events"
	"github.com/desertthunder/salineros/internal/models"
	"github.com/desertthunder/salineros/internal/outbox"
	"github.com/desertthunder/salineros/internal/services"
	"github.com/desertthunder/salineros/internal/shared"
)

// State is the coordinator's position in the sync cycle.
type State int

const (
	Idle State = iota
	Syncing
	BackingOff
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Syncing:
		return "syncing"
	case BackingOff:
		return "backing_off"
	default:
		return ""
	}
}

// Refresher rebuilds an in-memory view after local storage changed.
type Refresher interface {
	Reload() error
}

// AfterFunc schedules f after d and returns a func that cancels it.
type AfterFunc func(d time.Duration, f func()) (stop func() bool)

func timeAfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// CoordinatorOpts wires a [Coordinator].
type CoordinatorOpts struct {
	Queue      *outbox.Queue
	Remote     services.RemoteClient
	Songs      models.SongStore
	Meta       models.SyncStateStore
	Reconciler *Reconciler
	Refresher  Refresher // Optional; reloaded after every successful pass
	Signal     Signal    // Defaults to always online
	Events     events.Publisher
	Logger     *log.Logger
	Interval   time.Duration // Periodic sync interval for Run
	BaseDelay  time.Duration // First retry delay; doubles per consecutive failure
	MaxRetries int           // Consecutive failures before auto-retry stops
	Now        func() time.Time
	AfterFunc  AfterFunc
}

// PassResult describes one completed sync pass.
type PassResult struct {
	Replayed  int
	Fetched   int
	Applied   int
	Conflicts []string
	LastSync  time.Time
	Duration  time.Duration
}

// Coordinator decides when sync passes run and drives each pass.
//
// At most one pass is in flight. Triggers that arrive while a pass runs are dropped.
// After a failure the coordinator backs off exponentially; once MaxRetries consecutive
// failures accumulate it stops retrying until a manual trigger or reconnect.
type Coordinator struct {
	queue      *outbox.Queue
	remote     services.RemoteClient
	songs      models.SongStore
	meta       models.SyncStateStore
	reconciler *Reconciler
	refresher  Refresher
	signal     Signal
	events     events.Publisher
	logger     *log.Logger
	interval   time.Duration
	baseDelay  time.Duration
	maxRetries int
	now        func() time.Time
	afterFunc  AfterFunc

	mu         sync.Mutex
	state      State
	retryCount int
	exhausted  bool
	stopRetry  func() bool
	retryGen   int
	baseCtx    context.Context
	lastErr    error
	reconnects chan struct{}

	// adopted counts songs re-keyed to a server id during the running pass.
	adopted int
}

// NewCoordinator creates an idle coordinator.
func NewCoordinator(opts CoordinatorOpts) *Coordinator {
	c := &Coordinator{
		queue:      opts.Queue,
		remote:     opts.Remote,
		songs:      opts.Songs,
		meta:       opts.Meta,
		reconciler: opts.Reconciler,
		refresher:  opts.Refresher,
		signal:     opts.Signal,
		events:     opts.Events,
		logger:     opts.Logger,
		interval:   opts.Interval,
		baseDelay:  opts.BaseDelay,
		maxRetries: opts.MaxRetries,
		now:        opts.Now,
		afterFunc:  opts.AfterFunc,
		baseCtx:    context.Background(),
		reconnects: make(chan struct{}, 1),
	}

	if c.signal == nil {
		c.signal = alwaysOnline{}
	}
	if c.logger == nil {
		c.logger = log.New(io.Discard)
	}
	if c.interval <= 0 {
		c.interval = 5 * time.Minute
	}
	if c.baseDelay <= 0 {
		c.baseDelay = 2 * time.Second
	}
	if c.maxRetries <= 0 {
		c.maxRetries = 5
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.afterFunc == nil {
		c.afterFunc = timeAfterFunc
	}

	if conn, ok := c.signal.(*Connectivity); ok {
		conn.OnChange(c.notifyConnectivity)
	}

	return c
}

func (c *Coordinator) publish(e events.Event) {
	if c.events != nil {
		c.events.Publish(e)
	}
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RetryCount returns the number of consecutive failed passes.
func (c *Coordinator) RetryCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retryCount
}

// Exhausted reports whether automatic retries have stopped.
func (c *Coordinator) Exhausted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exhausted
}

// LastError returns the failure of the most recent pass, or nil if it succeeded.
func (c *Coordinator) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Trigger runs one pass now on behalf of the user.
//
// It returns [shared.ErrSyncInProgress] if a pass is already running. A pending retry is
// cancelled, and an exhausted retry cycle starts over.
func (c *Coordinator) Trigger(ctx context.Context, progress chan<- ProgressUpdate) (*PassResult, error) {
	c.mu.Lock()
	if c.state == Syncing {
		c.mu.Unlock()
		return nil, shared.ErrSyncInProgress
	}
	c.cancelRetryLocked()
	c.resetIfExhaustedLocked()
	c.state = Syncing
	c.mu.Unlock()

	return c.pass(ctx, progress)
}

// Tick starts a periodic pass if the coordinator is idle and online. It reports whether a pass ran.
func (c *Coordinator) Tick(ctx context.Context) bool {
	if !c.signal.Online() {
		return false
	}

	c.mu.Lock()
	if c.state != Idle {
		c.mu.Unlock()
		return false
	}
	c.state = Syncing
	c.mu.Unlock()

	c.pass(ctx, nil)
	return true
}

// Reconnect starts a pass after connectivity returns. It reports whether a pass ran.
//
// A waiting retry is replaced by the pass and an exhausted retry cycle starts over;
// otherwise the retry count carries over.
func (c *Coordinator) Reconnect(ctx context.Context) bool {
	c.mu.Lock()
	if c.state == Syncing {
		c.mu.Unlock()
		return false
	}
	c.cancelRetryLocked()
	c.resetIfExhaustedLocked()
	c.state = Syncing
	c.mu.Unlock()

	c.pass(ctx, nil)
	return true
}

// Run drives periodic and reconnect passes until ctx is done.
func (c *Coordinator) Run(ctx context.Context) error {
	c.mu.Lock()
	c.baseCtx = ctx
	c.mu.Unlock()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	defer func() {
		c.mu.Lock()
		c.cancelRetryLocked()
		c.mu.Unlock()
	}()

	c.logger.Info("sync loop started", "interval", c.interval)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("sync loop stopped")
			return ctx.Err()
		case <-ticker.C:
			c.Tick(ctx)
		case <-c.reconnects:
			c.Reconnect(ctx)
		}
	}
}

func (c *Coordinator) notifyConnectivity(online bool) {
	if !online {
		return
	}
	select {
	case c.reconnects <- struct{}{}:
	default:
	}
}

func (c *Coordinator) cancelRetryLocked() {
	if c.stopRetry != nil {
		c.stopRetry()
		c.stopRetry = nil
	}
	c.retryGen++
}

func (c *Coordinator) resetIfExhaustedLocked() {
	if c.exhausted {
		c.logger.Info("retry cycle reset", "after", c.retryCount)
		c.exhausted = false
		c.retryCount = 0
	}
}

// fireRetry runs when a backoff timer expires.
func (c *Coordinator) fireRetry(gen int) {
	c.mu.Lock()
	if gen != c.retryGen || c.state != BackingOff {
		c.mu.Unlock()
		return
	}
	c.stopRetry = nil

	if !c.signal.Online() {
		c.logger.Info("retry skipped while offline; waiting for reconnect", "retries", c.retryCount)
		c.mu.Unlock()
		return
	}

	c.state = Syncing
	ctx := c.baseCtx
	c.mu.Unlock()

	c.pass(ctx, nil)
}

// pass runs drain, fetch, reconcile, record and refresh. The caller has set state to Syncing.
func (c *Coordinator) pass(ctx context.Context, progress chan<- ProgressUpdate) (*PassResult, error) {
	start := c.now()
	c.publish(events.Event{Kind: events.SyncStarted, At: start})
	c.logger.Debug("sync pass started")

	result, err := c.runPipeline(ctx, progress, start)
	if err != nil {
		c.refreshAfterAdoption()
		c.fail(err)
		return nil, err
	}

	result.Duration = c.now().Sub(start)

	c.mu.Lock()
	c.state = Idle
	c.retryCount = 0
	c.exhausted = false
	c.lastErr = nil
	c.mu.Unlock()

	c.logger.Info("sync completed",
		"replayed", result.Replayed, "applied", result.Applied,
		"conflicts", len(result.Conflicts), "took", result.Duration)
	c.publish(events.Event{
		Kind:    events.SyncCompleted,
		Count:   result.Applied,
		Message: fmt.Sprintf("%d change(s) applied, %d conflict(s)", result.Applied, len(result.Conflicts)),
	})

	return result, nil
}

func (c *Coordinator) runPipeline(ctx context.Context, progress chan<- ProgressUpdate, start time.Time) (*PassResult, error) {
	result := &PassResult{}
	c.adopted = 0

	before, err := c.queue.Len()
	if err != nil {
		return nil, err
	}
	sendProgress(progress, drainingUpdate(before))

	remaining, err := c.queue.Drain(ctx, c.replay)
	if err != nil {
		return nil, fmt.Errorf("failed to drain outbox (%d pending): %w", remaining, err)
	}
	result.Replayed = before
	sendProgress(progress, drainedUpdate(before))

	since, err := c.meta.LastSync()
	if err != nil {
		return nil, err
	}
	sendProgress(progress, fetchChangesUpdate(since))

	changes, err := c.remote.ChangesSince(ctx, since)
	if err != nil {
		return nil, err
	}
	result.Fetched = changes.Len()

	applied, err := c.reconciler.Apply(changes)
	if err != nil {
		return nil, err
	}
	result.Applied = applied.Applied
	result.Conflicts = applied.Conflicts
	sendProgress(progress, applyChangesUpdate(applied))

	if len(applied.Failures) > 0 {
		return nil, fmt.Errorf("%w: %d song(s) failed to apply, first: %s: %w",
			shared.ErrStorage, len(applied.Failures), applied.Failures[0].SongID, applied.Failures[0].Err)
	}

	lastSync := changes.ServerTime
	if lastSync.IsZero() {
		lastSync = start
	}
	if err := c.meta.SetLastSync(lastSync); err != nil {
		return nil, err
	}
	result.LastSync = lastSync
	sendProgress(progress, recordSyncUpdate(lastSync))

	if c.refresher != nil {
		sendProgress(progress, refreshCatalogUpdate())
		if err := c.refresher.Reload(); err != nil {
			return nil, fmt.Errorf("failed to refresh catalog: %w", err)
		}
		c.adopted = 0
	}

	return result, nil
}

// refreshAfterAdoption reloads the catalog after a failed pass that re-keyed songs, so that
// placeholder ids already replaced in storage are not edited again.
func (c *Coordinator) refreshAfterAdoption() {
	if c.adopted == 0 || c.refresher == nil {
		return
	}
	if err := c.refresher.Reload(); err != nil {
		c.logger.Error("failed to refresh catalog after adopting server ids", "count", c.adopted, "error", err)
		return
	}
	c.logger.Debug("catalog refreshed after partial pass", "adopted", c.adopted)
}

// fail moves to BackingOff and schedules the next retry unless the budget is spent.
func (c *Coordinator) fail(err error) {
	c.mu.Lock()
	c.state = BackingOff
	c.retryCount++
	c.lastErr = err
	attempt := c.retryCount

	if attempt >= c.maxRetries {
		c.exhausted = true
		c.mu.Unlock()

		c.logger.Error("sync failed; retries exhausted", "attempts", attempt, "error", err)
		c.publish(events.Event{Kind: events.SyncFailed, Err: err, Attempt: attempt, Message: err.Error()})
		c.publish(events.Event{
			Kind:    events.RetriesExhausted,
			Attempt: attempt,
			Message: fmt.Sprintf("gave up after %d consecutive failures", attempt),
		})
		return
	}

	delay := c.backoff(attempt)
	c.retryGen++
	gen := c.retryGen
	c.stopRetry = c.afterFunc(delay, func() { c.fireRetry(gen) })
	c.mu.Unlock()

	c.logger.Warn("sync failed; retry scheduled", "attempt", attempt, "delay", delay, "error", err)
	c.publish(events.Event{Kind: events.SyncFailed, Err: err, Attempt: attempt, Message: err.Error()})
	c.publish(events.Event{
		Kind:    events.RetryScheduled,
		Attempt: attempt,
		Delay:   delay,
		Message: fmt.Sprintf("retry %d in %s", attempt, delay),
	})
}

// backoff returns baseDelay * 2^(attempt-1).
func (c *Coordinator) backoff(attempt int) time.Duration {
	return c.baseDelay * time.Duration(1<<(attempt-1))
}

// replay sends one outbox entry to the server.
//
// Rejected entries are dropped with an [events.OutboxRejected] event so a permanently
// invalid mutation cannot block the queue.
func (c *Coordinator) replay(ctx context.Context, entry *models.OutboxEntry) error {
	var err error
	switch entry.Operation {
	case models.OperationDelete:
		err = c.replayDelete(ctx, entry)
	case models.OperationSave:
		err = c.replaySave(ctx, entry)
	default:
		err = fmt.Errorf("%w: unknown operation %q", shared.ErrValidation, entry.Operation)
	}

	if errors.Is(err, shared.ErrValidation) || errors.Is(err, shared.ErrRejected) {
		c.logger.Error("server rejected queued mutation; dropping", "entry", entry.String(), "error", err)
		c.publish(events.Event{
			Kind:    events.OutboxRejected,
			SongID:  entry.SongID,
			Err:     err,
			Message: shared.Describe(err),
		})
		return nil
	}
	return err
}

func (c *Coordinator) replayDelete(ctx context.Context, entry *models.OutboxEntry) error {
	if shared.IsLocalID(entry.SongID) {
		return nil
	}
	return c.remote.Remove(ctx, entry.SongID)
}

func (c *Coordinator) replaySave(ctx context.Context, entry *models.OutboxEntry) error {
	if !entry.Song.IsLocal() {
		_, err := c.remote.Update(ctx, entry.SongID, entry.Song)
		return err
	}

	created, err := c.remote.Create(ctx, entry.Song)
	if err != nil {
		return err
	}

	// A create answered from the clientId record returns the first snapshot; push the queued one over it.
	if !created.SameContent(entry.Song) {
		snapshot := entry.Song.Clone()
		snapshot.ID = created.ID
		if created, err = c.remote.Update(ctx, created.ID, snapshot); err != nil {
			return err
		}
	}
	return c.adoptServerID(entry.SongID, created)
}

// adoptServerID moves a song created offline to the id the server assigned.
func (c *Coordinator) adoptServerID(localID string, created *models.Song) error {
	if _, err := c.songs.Get(localID); err == nil {
		if err := c.songs.Rekey(localID, created); err != nil {
			return err
		}
	} else if !errors.Is(err, shared.ErrSongNotFound) {
		return err
	}

	if _, err := c.queue.RewriteSongID(localID, created.ID); err != nil {
		return err
	}

	c.adopted++
	c.logger.Info("song received server id", "local", localID, "id", created.ID)
	return nil
}
