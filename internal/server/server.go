package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"commitstats/internal/history"
	"commitstats/internal/metrics"
	"commitstats/internal/models"
	"commitstats/internal/stats"
	"commitstats/internal/storage"
)

const maxAnalyzeBody = 8 << 20

// Updates streams stored report entries as they are produced.
type Updates interface {
	Subscribe() (<-chan models.ReportEntry, func())
}

// Server wraps HTTP serving of the report API.
type Server struct {
	httpServer   *http.Server
	storage      *storage.ReportStorage
	updates      Updates
	registry     *metrics.Registry
	repos        []models.Repository
	historyLimit int
	logger       zerolog.Logger
}

// New creates a configured HTTP server. updates may be nil, in which case
// websocket clients only receive periodic snapshots.
func New(
	addr string,
	repos []models.Repository,
	storage *storage.ReportStorage,
	updates Updates,
	registry *metrics.Registry,
	historyLimit int,
	logger zerolog.Logger,
) *Server {
	if historyLimit <= 0 {
		historyLimit = 200
	}
	router := mux.NewRouter()
	s := &Server{
		httpServer:   &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: 10 * time.Second},
		storage:      storage,
		updates:      updates,
		registry:     registry,
		repos:        repos,
		historyLimit: historyLimit,
		logger:       logger.With().Str("component", "server").Logger(),
	}
	s.registerRoutes(router)
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run blocks and serves HTTP traffic.
func (s *Server) Run() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts the server down.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes(router *mux.Router) {
	router.Use(s.logRequests)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/repositories", s.handleRepositories).Methods(http.MethodGet)
	api.HandleFunc("/reports", s.handleLatestAll).Methods(http.MethodGet)
	api.HandleFunc("/reports/{id}", s.handleLatest).Methods(http.MethodGet)
	api.HandleFunc("/reports/{id}/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/reports/{id}/cadence", s.handleCadence).Methods(http.MethodGet)
	api.HandleFunc("/trends", s.handleTrends).Methods(http.MethodGet)
	api.HandleFunc("/analyze", s.handleAnalyze).Methods(http.MethodPost)

	router.HandleFunc("/ws", s.handleStream)
	if s.registry != nil {
		router.Handle("/metrics", s.registry.Handler())
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) repository(id string) (models.Repository, bool) {
	for _, repo := range s.repos {
		if repo.ID == id {
			return repo, true
		}
	}
	return models.Repository{}, false
}

func (s *Server) handleRepositories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.repos)
}

func (s *Server) handleLatestAll(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, withoutCommits(s.storage.LatestAll()))
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	repo, ok := s.repository(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "unknown repository")
		return
	}
	entry, ok := s.storage.Latest(repo.ID)
	if !ok {
		writeError(w, http.StatusNotFound, "no report yet")
		return
	}
	entry.Commits = nil
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	repo, ok := s.repository(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "unknown repository")
		return
	}
	limit := parseIntParam(r, "limit", s.historyLimit, s.historyLimit)
	writeJSON(w, http.StatusOK, withoutCommits(s.storage.HistoryN(repo.ID, limit)))
}

func (s *Server) handleCadence(w http.ResponseWriter, r *http.Request) {
	repo, ok := s.repository(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "unknown repository")
		return
	}
	entry, ok := s.storage.Latest(repo.ID)
	if !ok || !entry.OK() || len(entry.Commits) == 0 {
		writeError(w, http.StatusNotFound, "no commits recorded yet")
		return
	}
	points := parseIntParam(r, "points", history.DefaultCadencePoints, 1000)
	cadence := history.BuildCadence(repo, entry.Commits, entry.Report.Start, entry.Report.End, points)
	writeJSON(w, http.StatusOK, cadence)
}

func (s *Server) handleTrends(w http.ResponseWriter, _ *http.Request) {
	trends := metrics.ComputeTrends(s.storage.History())
	if trends == nil {
		trends = []metrics.RepositoryTrend{}
	}
	writeJSON(w, http.StatusOK, trends)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var timestamps []time.Time
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAnalyzeBody))
	if err := dec.Decode(&timestamps); err != nil {
		writeError(w, http.StatusBadRequest, "body must be a JSON array of RFC 3339 timestamps")
		return
	}

	report, err := stats.Analyze(timestamps)
	if errors.Is(err, stats.ErrInvalidArgument) {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func withoutCommits(entries []models.ReportEntry) []models.ReportEntry {
	out := make([]models.ReportEntry, len(entries))
	for i, entry := range entries {
		entry.Commits = nil
		out[i] = entry
	}
	return out
}

func parseIntParam(r *http.Request, name string, fallback, ceiling int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	if value > ceiling {
		return ceiling
	}
	return value
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
