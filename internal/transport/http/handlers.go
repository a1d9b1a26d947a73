// Package httptransport exposes the game engine over an action-based
// HTTP/JSON surface: one POST endpoint dispatching named actions, read
// endpoints for filtered game views and player profiles, and the long-poll
// endpoint.
package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"card-party/internal/registry"

	"github.com/go-chi/chi/v5"
)

// Pinger is what the health endpoint needs from the database.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	svc *registry.Service
	db  Pinger
}

func NewHandlers(svc *registry.Service, db Pinger) *Handlers {
	return &Handlers{svc: svc, db: db}
}

func (h *Handlers) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			WriteJSON(w, map[string]any{"status": "degraded", "error": err.Error()})
			return
		}
		WriteJSON(w, map[string]any{"status": "ok", "games": h.svc.Live()})
	}
}

// Action dispatches one named action from the request body.
func (h *Handlers) Action() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registry.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			WriteJSON(w, map[string]any{"error": map[string]any{"code": "BAD_REQUEST", "data": err.Error()}})
			return
		}
		result, err := h.svc.Dispatch(r.Context(), &req)
		if err != nil {
			WriteGameError(w, r, err)
			return
		}
		WriteJSON(w, result)
	}
}

// Game serves a view filtered by the player_id query parameter; absent, the
// caller gets the stranger's view.
func (h *Handlers) Game() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID := chi.URLParam(r, "game_id")
		viewerID := r.URL.Query().Get("player_id")
		snap, err := h.svc.View(r.Context(), gameID, viewerID)
		if err != nil {
			WriteGameError(w, r, err)
			return
		}
		WriteJSON(w, snap)
	}
}

func (h *Handlers) Player() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profile, err := h.svc.Player(r.Context(), chi.URLParam(r, "player_id"))
		if err != nil {
			WriteGameError(w, r, err)
			return
		}
		WriteJSON(w, profile)
	}
}

// Poll blocks until a watched target changes or the wait times out.
// Query: types=game,player&game_id=&player_id=&modified=&timeout=<seconds>.
func (h *Handlers) Poll() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		req := registry.PollRequest{
			GameID:   q.Get("game_id"),
			PlayerID: q.Get("player_id"),
		}
		for _, t := range strings.Split(q.Get("types"), ",") {
			if t = strings.TrimSpace(t); t != "" {
				req.Types = append(req.Types, t)
			}
		}
		if v := q.Get("modified"); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				WriteJSON(w, map[string]any{"error": map[string]any{"code": "BAD_REQUEST", "data": "modified must be an integer"}})
				return
			}
			req.Modified = n
		}
		if v := q.Get("timeout"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				req.Timeout = time.Duration(n) * time.Second
			}
		}

		res := h.svc.Poll(r.Context(), req)
		WriteJSON(w, map[string]any{
			"modified":  res.Modified,
			"timed_out": res.TimedOut,
			"destroyed": res.Destroyed,
		})
	}
}
