package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/desertthunder/salineros/internal/shared"
	"github.com/urfave/cli/v3"
)

// APIGet makes a direct GET request to the song API
func (r *Runner) APIGet(ctx context.Context, cmd *cli.Command) error {
	path := apiPath(cmd.StringArg("path"))
	compact := cmd.Bool("json")

	r.logger.Info("GET request", "path", path)

	resp, err := r.api.Raw(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &shared.RemoteError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(resp.Body))}
	}

	if resp.IsJSON {
		return r.writeJSON(resp.JSONData, !compact)
	}

	r.output.Write(resp.Body)
	r.output.Write([]byte("\n"))
	return nil
}

// APIPost makes a direct POST request to the song API
func (r *Runner) APIPost(ctx context.Context, cmd *cli.Command) error {
	path := apiPath(cmd.StringArg("path"))
	data := cmd.String("data")

	if data == "" {
		return fmt.Errorf("%w: --data flag is required", shared.ErrMissingArgument)
	}

	r.logger.Info("POST request", "path", path)

	var jsonTest any
	if err := json.Unmarshal([]byte(data), &jsonTest); err != nil {
		return fmt.Errorf("%w: data is not valid JSON: %v", shared.ErrInvalidArgument, err)
	}

	resp, err := r.api.Raw(ctx, http.MethodPost, path, []byte(data))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &shared.RemoteError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(resp.Body))}
	}

	if resp.IsJSON {
		return r.writeJSON(resp.JSONData, true)
	}

	r.output.Write(resp.Body)
	r.output.Write([]byte("\n"))
	return nil
}

func apiPath(path string) string {
	if path == "" {
		return "/health"
	}
	if !strings.HasPrefix(path, "/") {
		return "/" + path
	}
	return path
}
