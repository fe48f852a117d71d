package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/salineros/internal/catalog"
	"github.com/desertthunder/salineros/internal/events"
	"github.com/desertthunder/salineros/internal/outbox"
	"github.com/desertthunder/salineros/internal/repositories"
	"github.com/desertthunder/salineros/internal/services"
	"github.com/desertthunder/salineros/internal/shared"
	"github.com/desertthunder/salineros/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The local store and sync stack are opened lazily by the first command that needs them.
type Runner struct {
	config *shared.Config
	logger *log.Logger
	output io.Writer
	now    func() time.Time

	store       *repositories.LocalStore
	ownsStore   bool
	api         *services.SongAPI
	remote      services.RemoteClient
	bus         *events.Bus
	conn        *tasks.Connectivity
	queue       *outbox.Queue
	catalog     *catalog.Catalog
	coordinator *tasks.Coordinator
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config *shared.Config
	Logger *log.Logger
	Output io.Writer
	Store  *repositories.LocalStore // Already-migrated store; opened from config when nil
	API    *services.SongAPI        // Built from config when nil
	Remote services.RemoteClient    // Defaults to API
	Now    func() time.Time
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.API == nil {
		opts.API = services.NewSongAPIFromConfig(opts.Config.API, opts.Logger)
	}
	if opts.Remote == nil {
		opts.Remote = opts.API
	}

	return &Runner{
		config: opts.Config,
		logger: opts.Logger,
		output: opts.Output,
		now:    opts.Now,
		store:  opts.Store,
		api:    opts.API,
		remote: opts.Remote,
		bus:    events.NewBus(),
	}
}

// open wires the local store, outbox, catalog and coordinator.
//
// The --offline flag starts the connectivity signal offline so edits go straight to the outbox.
func (r *Runner) open(cmd *cli.Command) error {
	if r.catalog != nil {
		return nil
	}

	if r.store == nil {
		db := r.config.Database
		store, err := repositories.OpenLocalStore(db.Path, db.MaxOpenConns, db.MaxIdleConns)
		if err != nil {
			return fmt.Errorf("failed to open local store: %w", err)
		}
		r.store = store
		r.ownsStore = true
	}

	syncLogger := shared.WithLogger(r.logger, "component", "sync")

	r.conn = tasks.NewConnectivity(!cmd.Bool("offline"), r.bus, syncLogger)
	r.queue = outbox.NewQueue(r.store.Outbox, r.bus, shared.WithLogger(r.logger, "component", "outbox"))
	r.catalog = catalog.New(catalog.Options{
		Store:        r.store.Songs,
		Queue:        r.queue,
		Remote:       r.remote,
		Connectivity: r.conn,
		Logger:       shared.WithLogger(r.logger, "component", "catalog"),
		Now:          r.now,
	})
	r.coordinator = tasks.NewCoordinator(tasks.CoordinatorOpts{
		Queue:      r.queue,
		Remote:     r.remote,
		Songs:      r.store.Songs,
		Meta:       r.store.Meta,
		Reconciler: tasks.NewReconciler(r.store.Songs, r.queue, r.bus, syncLogger),
		Refresher:  r.catalog,
		Signal:     r.conn,
		Events:     r.bus,
		Logger:     syncLogger,
		Interval:   r.config.Sync.Interval.Duration,
		BaseDelay:  r.config.Sync.BaseDelay.Duration,
		MaxRetries: r.config.Sync.MaxRetries,
	})

	if err := r.catalog.Reload(); err != nil {
		return err
	}
	return nil
}

// Close releases the local store if the runner opened it.
func (r *Runner) Close() error {
	if r.store != nil && r.ownsStore {
		return r.store.Close()
	}
	return nil
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, songsCommand, syncCommand, outboxCommand, exportCommand, importCommand, serveCommand, apiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
