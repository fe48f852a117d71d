// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "json",
		Usage: "Output raw JSON",
	}
}

func songFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "title",
			Aliases: []string{"t"},
			Usage:   "Song title",
		},
		&cli.StringFlag{
			Name:    "lyrics",
			Aliases: []string{"l"},
			Usage:   "Lyrics text",
		},
		&cli.StringFlag{
			Name:  "lyrics-file",
			Usage: "Read lyrics from a file",
		},
		&cli.StringFlag{
			Name:  "chords",
			Usage: "Chord chart",
		},
		&cli.StringFlag{
			Name:  "melody",
			Usage: "Melody notes",
		},
		&cli.StringFlag{
			Name:  "audio",
			Usage: "Audio URL",
		},
		&cli.StringSliceFlag{
			Name:  "tag",
			Usage: "Tag (repeatable)",
		},
	}
}

// songsCommand handles catalog browsing and editing
func songsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "songs",
		Aliases: []string{"s"},
		Usage:   "Browse and edit the song catalog",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List songs sorted by title",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "tag",
						Usage: "Only songs carrying every given tag",
					},
					jsonFlag(),
				},
				Action: r.SongsList,
			},
			{
				Name:  "search",
				Usage: "Search titles, lyrics and tags",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "term"},
				},
				Flags:  []cli.Flag{jsonFlag()},
				Action: r.SongsSearch,
			},
			{
				Name:  "show",
				Usage: "Show one song with lyrics and chords",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags:  []cli.Flag{jsonFlag()},
				Action: r.SongsShow,
			},
			{
				Name:   "add",
				Usage:  "Create a song",
				Flags:  songFlags(),
				Action: r.SongsAdd,
			},
			{
				Name:  "edit",
				Usage: "Update a song; only the given fields change",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: append(songFlags(), &cli.BoolFlag{
					Name:  "clear-tags",
					Usage: "Remove all tags before applying --tag",
				}),
				Action: r.SongsEdit,
			},
			{
				Name:    "rm",
				Aliases: []string{"delete"},
				Usage:   "Delete a song",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Action: r.SongsRemove,
			},
			{
				Name:   "tags",
				Usage:  "List every tag in the catalog",
				Flags:  []cli.Flag{jsonFlag()},
				Action: r.SongsTags,
			},
		},
	}
}

// syncCommand handles sync passes against the song API
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Synchronize the local catalog with the song API",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run one sync pass now",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "quiet",
						Usage: "Only print the summary",
					},
				},
				Action: r.SyncRun,
			},
			{
				Name:  "watch",
				Usage: "Sync periodically and on reconnect until interrupted",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "interval",
						Usage: "Override sync.interval",
					},
				},
				Action: r.SyncWatch,
			},
			{
				Name:   "status",
				Usage:  "Show last sync time and pending outbox entries",
				Flags:  []cli.Flag{jsonFlag()},
				Action: r.SyncStatus,
			},
		},
	}
}

// outboxCommand handles inspection of queued mutations
func outboxCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "outbox",
		Usage: "Inspect queued local edits",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List pending entries in replay order",
				Flags:  []cli.Flag{jsonFlag()},
				Action: r.OutboxList,
			},
			{
				Name:  "cancel",
				Usage: "Drop pending entries for a song (acknowledges a conflict)",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Action: r.OutboxCancel,
			},
		},
	}
}

// exportCommand writes the catalog to a file
func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export the catalog",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "json, csv, markdown or txt",
				Value:   "json",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file path (default: salineros_export_{timestamp}.{ext})",
			},
			&cli.BoolFlag{
				Name:  "stdout",
				Usage: "Write to standard output instead of a file",
			},
		},
		Action: r.Export,
	}
}

// importCommand creates songs from a JSON export
func importCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import songs from a JSON export",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "file"},
		},
		Action: r.Import,
	}
}

// serveCommand runs the development song API
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the in-memory development song API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (default: server.host:server.port)",
			},
			&cli.StringFlag{
				Name:  "token",
				Usage: "Require this bearer token on /api routes",
			},
		},
		Action: r.Serve,
	}
}

// apiCommand handles direct song API calls
func apiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Direct calls to the song API",
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Direct GET, prints raw JSON",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "path",
					},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output compact JSON",
					},
				},
				Action: r.APIGet,
			},
			{
				Name:  "post",
				Usage: "Direct POST with JSON body",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "path",
					},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "data",
						Aliases:  []string{"d"},
						Usage:    "JSON body to send",
						Required: true,
					},
				},
				Action: r.APIPost,
			},
		},
	}
}

// setupCommand initializes configuration and the local store.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create config.toml if missing and initialize the local store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
		},
		Action: r.Setup,
	}
}
