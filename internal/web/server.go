// Package web exposes the review engine over a JSON HTTP API.
package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/srslab/revise/internal/domain"
	"github.com/srslab/revise/internal/session"
	"github.com/srslab/revise/internal/stats"
	"github.com/srslab/revise/internal/store"
	"github.com/srslab/revise/internal/syncer"
)

// Server holds the dependencies for the HTTP API.
type Server struct {
	router   *http.ServeMux
	sessions *session.Manager
	stats    *stats.Aggregator
	db       *store.DB
	syncer   *syncer.Syncer
	validate *validator.Validate
}

// NewServer creates and configures a new server.
func NewServer(db *store.DB, sessions *session.Manager, aggregator *stats.Aggregator, sync *syncer.Syncer) *Server {
	s := &Server{
		router:   http.NewServeMux(),
		sessions: sessions,
		stats:    aggregator,
		db:       db,
		syncer:   sync,
		validate: validator.New(),
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.HandleFunc("POST /api/sessions", s.handleStartSession())
	s.router.HandleFunc("GET /api/sessions/{id}", s.handleGetSession())
	s.router.HandleFunc("GET /api/sessions/{id}/card", s.handleGetCurrentCard())
	s.router.HandleFunc("POST /api/sessions/{id}/reveal", s.handleReveal())
	s.router.HandleFunc("POST /api/sessions/{id}/review", s.handleSubmitReview())
	s.router.HandleFunc("POST /api/sessions/{id}/resume", s.handleResumeSession())
	s.router.HandleFunc("DELETE /api/sessions/{id}", s.handleAbandonSession())

	s.router.HandleFunc("GET /api/sets/{id}/stats", s.handleSetStats())
	s.router.HandleFunc("GET /api/projects/{id}/stats", s.handleProjectStats())

	s.router.HandleFunc("GET /api/sources", s.handleListSources())
	s.router.HandleFunc("POST /api/sources", s.handleAddSource())
	s.router.HandleFunc("DELETE /api/sources/{id}", s.handleDeleteSource())
	s.router.HandleFunc("POST /api/sync", s.handleSync())
}

// writeJSON renders a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeError maps the engine's error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrConcurrentModification):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// cardView hides the answer until the caller reveals it.
type cardView struct {
	ID       string `json:"id"`
	SetID    string `json:"set_id"`
	Question string `json:"question"`
	Context  string `json:"context,omitempty"`
}

func viewOf(c domain.Card) cardView {
	return cardView{ID: c.ID, SetID: c.SetID, Question: c.Question, Context: c.Context}
}

type sessionView struct {
	ID          string           `json:"id"`
	State       session.State    `json:"state"`
	Remaining   int              `json:"remaining"`
	Counters    session.Counters `json:"counters"`
	CurrentCard *cardView        `json:"current_card,omitempty"`
}

func sessionViewOf(c *session.Coordinator) sessionView {
	v := sessionView{
		ID:        c.ID(),
		State:     c.State(),
		Remaining: c.Remaining(),
		Counters:  c.Counters(),
	}
	if card, ok := c.Current(); ok {
		cv := viewOf(card)
		v.CurrentCard = &cv
	}
	return v
}

type startSessionRequest struct {
	SetID     string `json:"set_id"`
	ProjectID string `json:"project_id"`
	Limit     int    `json:"limit" validate:"gte=0"`
	Policy    string `json:"policy" validate:"omitempty,oneof=sm2 leitner"`
}

// handleStartSession opens a session over the due cards of a set or project.
func (s *Server) handleStartSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, domain.ErrInvalidInput)
			return
		}
		if err := s.validate.Struct(req); err != nil {
			writeError(w, domain.ErrInvalidInput)
			return
		}

		scope := store.Scope{SetID: req.SetID, ProjectID: req.ProjectID}
		c, err := s.sessions.Start(r.Context(), scope, req.Limit, req.Policy)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, sessionViewOf(c))
	}
}

func (s *Server) handleGetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := s.sessions.Get(r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionViewOf(c))
	}
}

func (s *Server) handleGetCurrentCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := s.sessions.Get(r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		card, ok := c.Current()
		if !ok {
			writeJSON(w, http.StatusOK, map[string]any{"completed": true})
			return
		}
		writeJSON(w, http.StatusOK, viewOf(card))
	}
}

// handleReveal flips the current card over and returns the answer. No card
// state changes until the grade arrives.
func (s *Server) handleReveal() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := s.sessions.Get(r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		if err := c.Reveal(); err != nil {
			writeError(w, err)
			return
		}
		card, _ := c.Current()
		writeJSON(w, http.StatusOK, map[string]string{"answer": card.Answer})
	}
}

type submitReviewRequest struct {
	Quality             *int    `json:"quality" validate:"required"`
	CardID              string  `json:"card_id"`
	ResponseTimeSeconds float64 `json:"response_time_seconds" validate:"gte=0"`
}

type submitReviewResponse struct {
	Completed bool             `json:"completed"`
	Counters  session.Counters `json:"counters"`
	NextCard  *cardView        `json:"next_card,omitempty"`
}

// handleSubmitReview grades the current card. A failed persist leaves the
// card current and unscored so the caller can retry.
func (s *Server) handleSubmitReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := s.sessions.Get(r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}

		var req submitReviewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, domain.ErrInvalidInput)
			return
		}
		if err := s.validate.Struct(req); err != nil {
			writeError(w, domain.ErrInvalidInput)
			return
		}

		res, err := c.SubmitReview(r.Context(), domain.ReviewEvent{
			CardID:       req.CardID,
			Quality:      *req.Quality,
			ResponseTime: time.Duration(req.ResponseTimeSeconds * float64(time.Second)),
		})
		if err != nil {
			writeError(w, err)
			return
		}

		out := submitReviewResponse{Completed: res.Completed, Counters: res.Counters}
		if res.NextCard != nil {
			cv := viewOf(*res.NextCard)
			out.NextCard = &cv
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleResumeSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := s.sessions.Resume(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionViewOf(c))
	}
}

func (s *Server) handleAbandonSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.sessions.Abandon(r.Context(), r.PathValue("id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleSetStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := s.stats.SetStats(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleProjectStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := s.stats.ProjectStats(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleListSources() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources, err := s.db.GetAllSources(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sources)
	}
}

type addSourceRequest struct {
	ProjectID string `json:"project_id" validate:"required"`
	Path      string `json:"path" validate:"required"`
}

func (s *Server) handleAddSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addSourceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, domain.ErrInvalidInput)
			return
		}
		if err := s.validate.Struct(req); err != nil {
			writeError(w, domain.ErrInvalidInput)
			return
		}

		id, err := s.db.InsertSource(r.Context(), req.ProjectID, req.Path, syncer.SourceType(req.Path))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": id})
	}
}

func (s *Server) handleDeleteSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			writeError(w, domain.ErrInvalidInput)
			return
		}
		if err := s.db.DeleteSource(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleSync runs reconciliation in the foreground so the caller sees a
// consistent store afterwards.
func (s *Server) handleSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.syncer.Run(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
