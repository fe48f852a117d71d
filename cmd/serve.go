package main

import (
	"context"

	"github.com/desertthunder/salineros/internal/server"
	"github.com/urfave/cli/v3"
)

// Serve runs the development song API until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}

	srv := server.NewServer(server.ServerOpts{
		Addr:   addr,
		Token:  cmd.String("token"),
		Logger: r.logger,
	})

	r.writePlain("Song API on http://%s (Ctrl+C to stop)\n", addr)
	return srv.ListenAndServe(ctx)
}
