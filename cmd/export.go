package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/salineros/internal/formatter"
	"github.com/desertthunder/salineros/internal/shared"
	"github.com/desertthunder/salineros/internal/ui"
	"github.com/urfave/cli/v3"
)

// Export writes the catalog in the requested format.
func (r *Runner) Export(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	if err := r.open(cmd); err != nil {
		return err
	}

	songs := r.catalog.List()

	if cmd.Bool("stdout") {
		data, err := formatter.Export(format, songs, r.now())
		if err != nil {
			return err
		}
		if _, err := r.output.Write(data); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}

	path, err := formatter.WriteExport(cmd.String("output"), format, songs, r.now())
	if err != nil {
		return err
	}

	r.logger.Info("catalog exported", "path", path, "format", format, "songs", len(songs))
	return r.writePlain("%s\n", ui.OK(fmt.Sprintf("✓ exported %d song(s) to %s", len(songs), path)))
}

// Import creates every song in a JSON export through the catalog.
func (r *Runner) Import(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("file")
	if path == "" {
		return fmt.Errorf("%w: export file is required", shared.ErrMissingArgument)
	}

	doc, err := formatter.ReadExport(path)
	if err != nil {
		return err
	}
	if err := r.open(cmd); err != nil {
		return err
	}

	result, err := r.catalog.Import(ctx, doc)
	if err != nil {
		return err
	}

	if result.Synced > 0 {
		r.writePlain("%s\n", ui.Outcome("synced", fmt.Sprintf("%d song(s) saved", result.Synced)))
	}
	if result.Queued > 0 {
		r.writePlain("%s\n", ui.Outcome("queued", fmt.Sprintf("%d song(s) saved locally, will sync later", result.Queued)))
	}
	for _, f := range result.Failures {
		r.writePlain("%s\n", ui.Err(fmt.Sprintf("✗ %q: %s", f.Title, shared.Describe(f.Err))))
	}
	return nil
}
