package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/desertthunder/salineros/internal/catalog"
	"github.com/desertthunder/salineros/internal/models"
	"github.com/desertthunder/salineros/internal/shared"
	"github.com/desertthunder/salineros/internal/ui"
	"github.com/urfave/cli/v3"
)

// SongsList prints the catalog, optionally filtered by tags.
func (r *Runner) SongsList(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(cmd); err != nil {
		return err
	}

	songs := r.catalog.List()
	if tags := cmd.StringSlice("tag"); len(tags) > 0 {
		songs = r.catalog.FilterByTags(tags)
	}

	return r.writeSongs(songs, cmd.Bool("json"))
}

// SongsSearch prints songs matching a term in title, lyrics or tags.
func (r *Runner) SongsSearch(ctx context.Context, cmd *cli.Command) error {
	term := cmd.StringArg("term")
	if strings.TrimSpace(term) == "" {
		return fmt.Errorf("%w: search term is required", shared.ErrMissingArgument)
	}
	if err := r.open(cmd); err != nil {
		return err
	}

	return r.writeSongs(r.catalog.Search(term), cmd.Bool("json"))
}

// SongsShow prints one song.
func (r *Runner) SongsShow(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: song id is required", shared.ErrMissingArgument)
	}
	if err := r.open(cmd); err != nil {
		return err
	}

	song, err := r.catalog.Get(id)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(song, true)
	}

	r.writePlain("%s\n", ui.Rule(song.Title))
	r.writePlain("ID: %s\n", song.ID)
	if len(song.Tags) > 0 {
		r.writePlain("Tags: %s\n", strings.Join(song.Tags, ", "))
	}
	if song.Melody != "" {
		r.writePlain("Melody: %s\n", song.Melody)
	}
	if song.Audio != "" {
		r.writePlain("Audio: %s\n", song.Audio)
	}
	if pending, err := r.queue.HasPending(song.ID); err == nil && pending {
		r.writePlain("%s\n", ui.Warn("pending sync"))
	}
	r.writePlainln("%s", song.Lyrics)
	if song.Chords != "" {
		r.writePlainln("%s", song.Chords)
	}
	return nil
}

// SongsAdd creates a song from flags.
func (r *Runner) SongsAdd(ctx context.Context, cmd *cli.Command) error {
	song := &models.Song{}
	if err := applySongFlags(cmd, song); err != nil {
		return err
	}
	if err := r.open(cmd); err != nil {
		return err
	}

	res, err := r.catalog.Create(ctx, song)
	if err != nil {
		return r.mutationError(err)
	}
	return r.writeResult(res)
}

// SongsEdit updates the fields given as flags on an existing song.
func (r *Runner) SongsEdit(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: song id is required", shared.ErrMissingArgument)
	}
	if err := r.open(cmd); err != nil {
		return err
	}

	song, err := r.catalog.Get(id)
	if err != nil {
		return err
	}
	if cmd.Bool("clear-tags") {
		song.Tags = nil
	}
	if err := applySongFlags(cmd, song); err != nil {
		return err
	}

	res, err := r.catalog.Update(ctx, id, song)
	if err != nil {
		return r.mutationError(err)
	}
	return r.writeResult(res)
}

// SongsRemove deletes a song.
func (r *Runner) SongsRemove(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: song id is required", shared.ErrMissingArgument)
	}
	if err := r.open(cmd); err != nil {
		return err
	}

	res, err := r.catalog.Delete(ctx, id)
	if err != nil {
		return r.mutationError(err)
	}
	if res.Outcome == catalog.Queued {
		return r.writePlain("%s\n", ui.Outcome(res.Outcome.String(), "deleted locally, will sync later"))
	}
	return r.writePlain("%s\n", ui.Outcome(res.Outcome.String(), "deleted "+id))
}

// SongsTags prints every tag in the catalog.
func (r *Runner) SongsTags(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(cmd); err != nil {
		return err
	}

	tags := r.catalog.AllTags()
	if cmd.Bool("json") {
		return r.writeJSON(tags, false)
	}
	for _, tag := range tags {
		r.writePlain("%s\n", tag)
	}
	return nil
}

func (r *Runner) writeSongs(songs []*models.Song, asJSON bool) error {
	if asJSON {
		if songs == nil {
			songs = []*models.Song{}
		}
		return r.writeJSON(songs, true)
	}

	if len(songs) == 0 {
		return r.writePlain("%s\n", ui.Help("no songs"))
	}
	for _, song := range songs {
		line := fmt.Sprintf("%-40s  %s", song.ID, song.Title)
		if len(song.Tags) > 0 {
			line += "  " + ui.Help("["+strings.Join(song.Tags, ", ")+"]")
		}
		if song.IsLocal() {
			line += "  " + ui.Warn("(unsynced)")
		}
		r.writePlain("%s\n", line)
	}
	return nil
}

func (r *Runner) writeResult(res *catalog.Result) error {
	return r.writePlain("%s  %s  %s\n", ui.Outcome(res.Outcome.String(), res.Message()), res.Song.ID, res.Song.Title)
}

// mutationError maps a failed edit to its user-facing explanation.
func (r *Runner) mutationError(err error) error {
	if errors.Is(err, shared.ErrValidation) || errors.Is(err, shared.ErrRejected) || errors.Is(err, shared.ErrServer) {
		r.writePlain("%s\n", ui.Err(shared.Describe(err)))
	}
	return err
}

// applySongFlags overwrites the fields of song whose flags were given.
func applySongFlags(cmd *cli.Command, song *models.Song) error {
	if cmd.IsSet("title") {
		song.Title = cmd.String("title")
	}
	if cmd.IsSet("lyrics") && cmd.IsSet("lyrics-file") {
		return fmt.Errorf("%w: cannot specify both --lyrics and --lyrics-file", shared.ErrInvalidArgument)
	}
	if cmd.IsSet("lyrics") {
		song.Lyrics = cmd.String("lyrics")
	}
	if path := cmd.String("lyrics-file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read lyrics file: %w", err)
		}
		song.Lyrics = strings.TrimRight(string(data), "\n")
	}
	if cmd.IsSet("chords") {
		song.Chords = cmd.String("chords")
	}
	if cmd.IsSet("melody") {
		song.Melody = cmd.String("melody")
	}
	if cmd.IsSet("audio") {
		song.Audio = cmd.String("audio")
	}
	if tags := cmd.StringSlice("tag"); len(tags) > 0 {
		song.Tags = append(song.Tags, tags...)
	}
	return nil
}
