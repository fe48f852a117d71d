package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/salineros/internal/models"
	"github.com/desertthunder/salineros/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "http://127.0.0.1:8787"
	defaultTimeout = 10 * time.Second
)

// SongAPIOptions configures a [SongAPI].
type SongAPIOptions struct {
	BaseURL           string
	Token             string        // Bearer token; empty disables auth
	Timeout           time.Duration // Per-request timeout
	Attempts          int           // Tries per request on network failure
	RequestsPerSecond float64       // Zero or negative disables throttling
	HTTPClient        *http.Client  // Base client; defaults to a fresh client
	Logger            *log.Logger
}

// SongAPI implements [RemoteClient] over HTTP.
type SongAPI struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	timeout    time.Duration
	attempts   int
	logger     *log.Logger
}

// NewSongAPI creates a client for the song API.
func NewSongAPI(opts SongAPIOptions) *SongAPI {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	if opts.Token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, client)
		client = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: opts.Token,
			TokenType:   "Bearer",
		}))
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	attempts := max(opts.Attempts, 1)

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	return &SongAPI{
		baseURL:    baseURL,
		httpClient: client,
		limiter:    rate.NewLimiter(limit, 1),
		timeout:    timeout,
		attempts:   attempts,
		logger:     logger,
	}
}

// NewSongAPIFromConfig creates a client from the [api] config section.
func NewSongAPIFromConfig(cfg shared.APIConfig, logger *log.Logger) *SongAPI {
	return NewSongAPI(SongAPIOptions{
		BaseURL:           cfg.BaseURL,
		Token:             cfg.Token,
		Timeout:           cfg.Timeout.Duration,
		Attempts:          cfg.Attempts,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Logger:            logger,
	})
}

// BaseURL returns the API root the client talks to.
func (a *SongAPI) BaseURL() string {
	return a.baseURL
}

type createSongRequest struct {
	*models.Song
	ClientID string `json:"clientId,omitempty"`
}

type changeSetResponse struct {
	Created    []models.Song `json:"created"`
	Modified   []models.Song `json:"modified"`
	Deleted    []string      `json:"deleted"`
	ServerTime *time.Time    `json:"serverTime,omitempty"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// List returns every song on the server.
//
// Calls GET /api/songs once; failures are surfaced without retrying.
func (a *SongAPI) List(ctx context.Context) ([]models.Song, error) {
	var songs []models.Song
	if _, err := a.doRequestAttempts(ctx, 1, http.MethodGet, "/api/songs", nil, &songs); err != nil {
		return nil, fmt.Errorf("failed to list songs: %w", err)
	}
	return songs, nil
}

// Create posts song and returns the stored copy with its server id.
//
// Calls POST /api/songs. Placeholder ids are sent as clientId, never as id.
func (a *SongAPI) Create(ctx context.Context, song *models.Song) (*models.Song, error) {
	body := createSongRequest{Song: song.Clone()}
	if song.IsLocal() {
		body.ClientID = song.ID
		body.Song.ID = ""
	}

	var created models.Song
	if _, err := a.doRequest(ctx, http.MethodPost, "/api/songs", body, &created); err != nil {
		return nil, fmt.Errorf("failed to create song %q: %w", song.Title, err)
	}
	return &created, nil
}

// Update replaces the song stored under id.
//
// Calls PUT /api/songs/{id}.
func (a *SongAPI) Update(ctx context.Context, id string, song *models.Song) (*models.Song, error) {
	body := song.Clone()
	body.ID = id

	var updated models.Song
	if _, err := a.doRequest(ctx, http.MethodPut, "/api/songs/"+url.PathEscape(id), body, &updated); err != nil {
		return nil, fmt.Errorf("failed to update song %s: %w", id, err)
	}
	return &updated, nil
}

// Remove deletes the song under id. A 404 response counts as success.
//
// Calls DELETE /api/songs/{id}.
func (a *SongAPI) Remove(ctx context.Context, id string) error {
	_, err := a.doRequest(ctx, http.MethodDelete, "/api/songs/"+url.PathEscape(id), nil, nil)

	var remoteErr *shared.RemoteError
	if errors.As(err, &remoteErr) && remoteErr.StatusCode == http.StatusNotFound {
		a.logger.Debug("song already absent on server", "id", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete song %s: %w", id, err)
	}
	return nil
}

// ChangesSince returns the changes recorded after since.
//
// Calls GET /api/songs/changes?since=T, or falls back to [SongAPI.List] when since is nil.
func (a *SongAPI) ChangesSince(ctx context.Context, since *time.Time) (*models.ChangeSet, error) {
	if since == nil {
		songs, err := a.List(ctx)
		if err != nil {
			return nil, err
		}
		return &models.ChangeSet{Created: songs}, nil
	}

	query := url.Values{"since": {since.UTC().Format(time.RFC3339Nano)}}

	var resp changeSetResponse
	if _, err := a.doRequest(ctx, http.MethodGet, "/api/songs/changes?"+query.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch changes since %s: %w", since.Format(time.RFC3339), err)
	}

	changes := &models.ChangeSet{
		Created:  resp.Created,
		Modified: resp.Modified,
		Deleted:  resp.Deleted,
	}
	if resp.ServerTime != nil {
		changes.ServerTime = resp.ServerTime.UTC()
	}
	return changes, nil
}

// Health probes GET /health.
func (a *SongAPI) Health(ctx context.Context) error {
	if _, err := a.doRequest(ctx, http.MethodGet, "/health", nil, nil); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// doRequest sends one JSON request, retrying network failures up to the configured attempts.
//
// Non-2xx responses become [shared.RemoteError] and are never retried here.
func (a *SongAPI) doRequest(ctx context.Context, method, endpoint string, body, result any) (int, error) {
	return a.doRequestAttempts(ctx, a.attempts, method, endpoint, body, result)
}

func (a *SongAPI) doRequestAttempts(ctx context.Context, attempts int, method, endpoint string, body, result any) (int, error) {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("%w: failed to encode request: %w", shared.ErrInvalidArgument, err)
		}
		payload = data
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		status, err := a.send(ctx, method, endpoint, payload, result)
		if err == nil {
			return status, nil
		}
		lastErr = err

		if !errors.Is(err, shared.ErrNetwork) || ctx.Err() != nil {
			break
		}
		a.logger.Debug("request failed", "method", method, "endpoint", endpoint, "attempt", attempt, "error", err)
	}
	return 0, lastErr
}

func (a *SongAPI) send(ctx context.Context, method, endpoint string, payload []byte, result any) (int, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("%w: rate limiter: %w", shared.ErrNetwork, err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+endpoint, reader)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to create request: %w", shared.ErrInvalidArgument, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %s: %w", shared.ErrNetwork, method, endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%w: failed to read response: %w", shared.ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, &shared.RemoteError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}

	if result != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return resp.StatusCode, fmt.Errorf("%w: failed to decode response: %w", shared.ErrServer, err)
		}
	}

	return resp.StatusCode, nil
}

func errorMessage(body []byte) string {
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		if errResp.Error != "" {
			return errResp.Error
		}
		if errResp.Detail != "" {
			return errResp.Detail
		}
	}
	return strings.TrimSpace(string(body))
}
