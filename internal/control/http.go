// Package control implements the public HTTP control surface (§6): a
// chi-routed API over the retrieval facade, plus a goldmark-rendered
// operator dashboard summarizing tier stats and the overflow log depth.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/yuin/goldmark"

	"github.com/memcore-dev/memcore/internal/config"
	memerrors "github.com/memcore-dev/memcore/internal/errors"
	"github.com/memcore-dev/memcore/internal/logging"
	"github.com/memcore-dev/memcore/internal/retrieval"
	"github.com/memcore-dev/memcore/pkg/types"
)

// Server wraps the retrieval facade in an HTTP surface.
type Server struct {
	cfg     config.ControlConfig
	facade  *retrieval.Facade
	mux     *chi.Mux
	md      goldmark.Markdown
	httpSrv *http.Server
}

// New creates a control server over facade, wiring routes and middleware.
func New(cfg config.ControlConfig, facade *retrieval.Facade) *Server {
	s := &Server{
		cfg:    cfg,
		facade: facade,
		mux:    chi.NewRouter(),
		md:     goldmark.New(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.mux.Use(chimiddleware.Recoverer)
	s.mux.Use(chimiddleware.RequestSize(1024 * 1024))
	s.mux.Use(chimiddleware.Heartbeat("/ping"))
}

func (s *Server) setupRoutes() {
	s.mux.Route("/v1/memories", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Get("/{id}", s.handleGet)
		r.Patch("/{id}", s.handleUpdate)
		r.Delete("/{id}", s.handleDelete)
		r.Get("/search", s.handleSearch)
		r.Get("/{id}/related", s.handleRelated)
	})
	s.mux.Get("/v1/stats", s.handleStats)
	s.mux.Post("/v1/maintenance/trigger", s.handleTriggerMaintenance)
	s.mux.Get("/dashboard", s.handleDashboard)
}

// Handler returns the HTTP handler, for tests and for wiring into an
// http.Server built elsewhere.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe starts the HTTP server and blocks until ctx is cancelled
// or the server fails (§6's control surface).
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.ControlLogger.Info("control surface listening", "addr", addr)
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

type createRequest struct {
	Content       string    `json:"content"`
	Type          types.Kind `json:"type"`
	Embedding     []float64 `json:"embedding,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	Salience      *float64  `json:"salience,omitempty"`
	ContextCosine *float64  `json:"context_cosine,omitempty"`
	SessionActive bool      `json:"session_active,omitempty"`
}

type createResponse struct {
	Record     *types.Record `json:"record"`
	Overflowed bool          `json:"overflowed"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, memerrors.InvalidInputf("control.create", "decoding request body: %v", err))
		return
	}

	rec, overflowed, err := s.facade.Create(r.Context(), retrieval.CreateInput{
		Content:       req.Content,
		Type:          req.Type,
		Embedding:     req.Embedding,
		Tags:          req.Tags,
		Salience:      req.Salience,
		ContextCosine: req.ContextCosine,
		SessionActive: req.SessionActive,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createResponse{Record: rec, Overflowed: overflowed})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.facade.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type updateRequest struct {
	Content       *string   `json:"content,omitempty"`
	Embedding     []float64 `json:"embedding,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	Salience      *float64  `json:"salience,omitempty"`
	ContextCosine *float64  `json:"context_cosine,omitempty"`
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, memerrors.InvalidInputf("control.update", "decoding request body: %v", err))
		return
	}

	rec, err := s.facade.Update(r.Context(), id, retrieval.UpdateInput{
		Content:       req.Content,
		Embedding:     req.Embedding,
		Tags:          req.Tags,
		Salience:      req.Salience,
		ContextCosine: req.ContextCosine,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	force := r.URL.Query().Get("force") == "true"
	if err := s.facade.Delete(r.Context(), id, force); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	sessionScope := r.URL.Query().Get("session_scope") == "true"
	k := 10
	if kStr := r.URL.Query().Get("k"); kStr != "" {
		if parsed, err := strconv.Atoi(kStr); err == nil && parsed > 0 {
			k = parsed
		}
	}

	resp, err := s.facade.Search(r.Context(), nil, query, k, sessionScope)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRelated(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	depth := 1
	if depthStr := r.URL.Query().Get("depth"); depthStr != "" {
		if parsed, err := strconv.Atoi(depthStr); err == nil && parsed > 0 {
			depth = parsed
		}
	}

	related, err := s.facade.RelatedGraph(r.Context(), id, depth)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, related)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.facade.GetStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleTriggerMaintenance(w http.ResponseWriter, r *http.Request) {
	res, err := s.facade.TriggerMaintenance(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleDashboard renders a short operator summary as markdown through
// goldmark, for a quick look at tier health without a JSON client.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := s.facade.GetStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	doc := fmt.Sprintf(`# memcore status

| tier | records |
|---|---|
| hot | %d |
| warm | %d |
| cold | %d |

- avg retrieval latency: %s
- last maintenance cycle: %s
- overflow log depth: %d
`, stats.HotCount, stats.WarmCount, stats.ColdCount,
		stats.AvgLatency, stats.LastCycleDuration, stats.OverflowDepth)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.md.Convert([]byte(doc), w); err != nil {
		logging.ControlLogger.WithError(err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.ControlLogger.WithError(err)
	}
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch memerrors.GetKind(err) {
	case memerrors.NotFound:
		status = http.StatusNotFound
	case memerrors.InvalidInput:
		status = http.StatusBadRequest
	case memerrors.Conflict:
		status = http.StatusConflict
	case memerrors.DeadlineExceeded:
		status = http.StatusGatewayTimeout
	case memerrors.BackendUnavailable:
		status = http.StatusServiceUnavailable
	case memerrors.PrivacyExpired:
		status = http.StatusGone
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Kind: string(memerrors.GetKind(err))})
}
