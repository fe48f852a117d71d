package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/salineros/internal/models"
	"github.com/desertthunder/salineros/internal/shared"
)

const maxBodyBytes = 1 << 20

// SongStore is the in-memory song table behind the development API.
//
// Deletes leave tombstones so that change queries can report them. Creates carrying a clientId are de-duplicated.
type SongStore struct {
	mu        sync.Mutex
	songs     map[string]models.Song
	deleted   map[string]time.Time
	clientIDs map[string]string
	clock     func() time.Time
	last      time.Time
}

// NewSongStore creates an empty store. clock defaults to [time.Now].
func NewSongStore(clock func() time.Time) *SongStore {
	if clock == nil {
		clock = time.Now
	}
	return &SongStore{
		songs:     make(map[string]models.Song),
		deleted:   make(map[string]time.Time),
		clientIDs: make(map[string]string),
		clock:     clock,
	}
}

// nowLocked returns a strictly increasing UTC timestamp so no two writes share a change time.
func (s *SongStore) nowLocked() time.Time {
	now := s.clock().UTC()
	if !now.After(s.last) {
		now = s.last.Add(time.Microsecond)
	}
	s.last = now
	return now
}

// List returns all live songs ordered by id.
func (s *SongStore) List() []models.Song {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collectLocked(func(models.Song) bool { return true })
}

// Get returns the song stored under id.
func (s *SongStore) Get(id string) (models.Song, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	song, ok := s.songs[id]
	return song, ok
}

// Create validates song and stores it under a new id.
//
// A repeated clientId returns the song created for it the first time.
func (s *SongStore) Create(song models.Song, clientID string) (models.Song, bool, error) {
	if err := song.Validate(); err != nil {
		return models.Song{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if clientID != "" {
		if id, ok := s.clientIDs[clientID]; ok {
			if existing, ok := s.songs[id]; ok {
				return existing, false, nil
			}
		}
	}

	now := s.nowLocked()
	song.ID = shared.GenerateID()
	song.CreatedAt = now
	song.UpdatedAt = now
	s.songs[song.ID] = song
	if clientID != "" {
		s.clientIDs[clientID] = song.ID
	}
	return song, true, nil
}

// Put replaces the song under id, creating it if absent.
func (s *SongStore) Put(id string, song models.Song) (models.Song, error) {
	if id == "" || shared.IsLocalID(id) {
		return models.Song{}, fmt.Errorf("%w: placeholder ids cannot be written", shared.ErrInvalidArgument)
	}
	if err := song.Validate(); err != nil {
		return models.Song{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowLocked()
	song.ID = id
	song.UpdatedAt = now
	if existing, ok := s.songs[id]; ok {
		song.CreatedAt = existing.CreatedAt
	} else {
		song.CreatedAt = now
	}
	delete(s.deleted, id)
	s.songs[id] = song
	return song, nil
}

// Delete removes id and records a tombstone. Missing ids are a no-op.
func (s *SongStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.songs[id]; !ok {
		return false
	}
	delete(s.songs, id)
	s.deleted[id] = s.nowLocked()
	return true
}

// ChangesSince reports what changed after since. A nil since reports every song as created.
func (s *SongStore) ChangesSince(since *time.Time) models.ChangeSet {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs := models.ChangeSet{ServerTime: s.nowLocked(), Deleted: []string{}}
	if since == nil {
		cs.Created = s.collectLocked(func(models.Song) bool { return true })
		cs.Modified = []models.Song{}
		return cs
	}

	cs.Created = s.collectLocked(func(song models.Song) bool { return song.CreatedAt.After(*since) })
	cs.Modified = s.collectLocked(func(song models.Song) bool {
		return !song.CreatedAt.After(*since) && song.UpdatedAt.After(*since)
	})
	for id, at := range s.deleted {
		if at.After(*since) {
			cs.Deleted = append(cs.Deleted, id)
		}
	}
	sort.Strings(cs.Deleted)
	return cs
}

// Len returns the number of live songs.
func (s *SongStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.songs)
}

func (s *SongStore) collectLocked(keep func(models.Song) bool) []models.Song {
	out := []models.Song{}
	for _, song := range s.songs {
		if keep(song) {
			out = append(out, song)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type createRequest struct {
	models.Song
	ClientID string `json:"clientId,omitempty"`
}

// SongHandler serves the song endpoints.
type SongHandler struct {
	store  *SongStore
	logger *log.Logger
	mux    *http.ServeMux
}

// NewSongHandler creates a [SongHandler] backed by store.
func NewSongHandler(store *SongStore, logger *log.Logger) *SongHandler {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	h := &SongHandler{store: store, logger: logger, mux: http.NewServeMux()}
	h.mux.HandleFunc("GET /health", h.health)
	h.mux.HandleFunc("GET /api/songs", h.list)
	h.mux.HandleFunc("POST /api/songs", h.create)
	h.mux.HandleFunc("GET /api/songs/changes", h.changes)
	h.mux.HandleFunc("GET /api/songs/{id}", h.get)
	h.mux.HandleFunc("PUT /api/songs/{id}", h.update)
	h.mux.HandleFunc("DELETE /api/songs/{id}", h.remove)
	return h
}

// Routes returns the HTTP routes this handler serves.
func (h *SongHandler) Routes() []string {
	return []string{"/health", "/api/songs", "/api/songs/"}
}

// ServeHTTP dispatches to the song endpoints.
func (h *SongHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *SongHandler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "songs": h.store.Len()})
}

func (h *SongHandler) list(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.List())
}

func (h *SongHandler) get(w http.ResponseWriter, r *http.Request) {
	song, ok := h.store.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "song not found")
		return
	}
	writeJSON(w, http.StatusOK, song)
}

func (h *SongHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	song, created, err := h.store.Create(req.Song, req.ClientID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		h.logger.Debug("song created", "id", song.ID, "clientId", req.ClientID)
	}
	writeJSON(w, status, song)
}

func (h *SongHandler) update(w http.ResponseWriter, r *http.Request) {
	var song models.Song
	if err := decodeBody(w, r, &song); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.store.Put(r.PathValue("id"), song)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *SongHandler) remove(w http.ResponseWriter, r *http.Request) {
	if h.store.Delete(r.PathValue("id")) {
		h.logger.Debug("song deleted", "id", r.PathValue("id"))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SongHandler) changes(w http.ResponseWriter, r *http.Request) {
	var since *time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid since %q", raw))
			return
		}
		since = &t
	}

	writeJSON(w, http.StatusOK, h.store.ChangesSince(since))
}

func (h *SongHandler) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrValidation):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, shared.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("song store failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
