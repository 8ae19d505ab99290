// Package server exposes run history over a small JSON API.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazz-dev/dashprobe/internal/config"
	"github.com/hazz-dev/dashprobe/internal/storage"
)

// ServerStore defines the storage queries the server needs.
type ServerStore interface {
	GetRun(ctx context.Context, id string) (*storage.Run, error)
	LatestRun(ctx context.Context) (*storage.Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]storage.Run, int, error)
	RunResults(ctx context.Context, runID string) ([]storage.Result, error)
	LatestResults(ctx context.Context) ([]storage.Result, error)
	CheckHistory(ctx context.Context, check string, limit, offset int) ([]storage.Result, int, error)
	PassRate(ctx context.Context, check string, last int) (float64, error)
}

// Server holds the chi router and its dependencies.
type Server struct {
	store  ServerStore
	checks []config.Check
	router chi.Router
	logger *slog.Logger
}

// New creates a new Server and registers all routes.
func New(store ServerStore, checks []config.Check, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:  store,
		checks: checks,
		router: chi.NewRouter(),
		logger: logger,
	}
	s.registerRoutes()
	return s
}

// Router returns the chi router (for mounting or testing).
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/runs", s.handleListRuns)
	r.Get("/api/runs/latest", s.handleLatestRun)
	r.Get("/api/runs/{id}", s.handleGetRun)
	r.Get("/api/checks", s.handleListChecks)
	r.Get("/api/checks/{name}", s.handleGetCheck)
	r.Get("/api/checks/{name}/history", s.handleCheckHistory)
}

// --- Response helpers ---

type envelope struct {
	Data  interface{} `json:"data"`
	Error string      `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Error: msg})
}

// pagination reads limit and offset query parameters.
func pagination(r *http.Request, defLimit int) (limit, offset int, msg string) {
	const maxLimit = 1000

	limit = defLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, 0, "invalid limit parameter"
		}
		if n > maxLimit {
			n = maxLimit
		}
		limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, 0, "invalid offset parameter"
		}
		offset = n
	}
	return limit, offset, ""
}

func (s *Server) checkIndex() map[string]config.Check {
	idx := make(map[string]config.Check, len(s.checks))
	for _, c := range s.checks {
		idx[c.Name] = c
	}
	return idx
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type runsResponse struct {
	Runs  []storage.Run `json:"runs"`
	Total int           `json:"total"`
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, offset, msg := pagination(r, 20)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	runs, total, err := s.store.ListRuns(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("ListRuns", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if runs == nil {
		runs = []storage.Run{}
	}
	writeJSON(w, http.StatusOK, runsResponse{Runs: runs, Total: total})
}

type runDetail struct {
	storage.Run
	Results []storage.Result `json:"results"`
}

func (s *Server) writeRun(w http.ResponseWriter, r *http.Request, run *storage.Run) {
	results, err := s.store.RunResults(r.Context(), run.ID)
	if err != nil {
		s.logger.Error("RunResults", "run", run.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if results == nil {
		results = []storage.Result{}
	}
	writeJSON(w, http.StatusOK, runDetail{Run: *run, Results: results})
}

func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.LatestRun(r.Context())
	if err != nil {
		s.logger.Error("LatestRun", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "no runs yet")
		return
	}
	s.writeRun(w, r, run)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		s.logger.Error("GetRun", "run", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	s.writeRun(w, r, run)
}

type checkDetail struct {
	Name        string     `json:"name"`
	URL         string     `json:"url"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	Value       string     `json:"value"`
	Locator     string     `json:"locator"`
	PassRatePct float64    `json:"pass_rate_percent"`
	LastChecked *time.Time `json:"last_checked"`
}

func newCheckDetail(c config.Check) checkDetail {
	return checkDetail{Name: c.Name, URL: c.URL, Type: c.Type, Status: "unknown"}
}

func (d *checkDetail) apply(res storage.Result) {
	d.Status = string(res.Status)
	d.Value = res.Value
	d.Locator = res.Locator
	t := res.CheckedAt
	d.LastChecked = &t
}

func (s *Server) handleListChecks(w http.ResponseWriter, r *http.Request) {
	latest, err := s.store.LatestResults(r.Context())
	if err != nil {
		s.logger.Error("LatestResults", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	byCheck := make(map[string]storage.Result, len(latest))
	for _, res := range latest {
		byCheck[res.Check] = res
	}

	details := make([]checkDetail, 0, len(s.checks))
	for _, c := range s.checks {
		d := newCheckDetail(c)
		if res, ok := byCheck[c.Name]; ok {
			d.apply(res)
			pct, _ := s.store.PassRate(r.Context(), c.Name, 100)
			d.PassRatePct = pct
		}
		details = append(details, d)
	}

	writeJSON(w, http.StatusOK, details)
}

type checkDetailResponse struct {
	checkDetail
	Recent []storage.Result `json:"recent"`
}

func (s *Server) handleGetCheck(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	c, ok := s.checkIndex()[name]
	if !ok {
		writeError(w, http.StatusNotFound, "check not found")
		return
	}

	recent, _, err := s.store.CheckHistory(r.Context(), name, 10, 0)
	if err != nil {
		s.logger.Error("CheckHistory", "check", name, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	d := newCheckDetail(c)
	if len(recent) > 0 {
		d.apply(recent[0])
	} else {
		recent = []storage.Result{}
	}
	pct, _ := s.store.PassRate(r.Context(), name, 100)
	d.PassRatePct = pct

	writeJSON(w, http.StatusOK, checkDetailResponse{checkDetail: d, Recent: recent})
}

type historyResponse struct {
	Results []storage.Result `json:"results"`
	Total   int              `json:"total"`
}

func (s *Server) handleCheckHistory(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := s.checkIndex()[name]; !ok {
		writeError(w, http.StatusNotFound, "check not found")
		return
	}

	limit, offset, msg := pagination(r, 50)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	results, total, err := s.store.CheckHistory(r.Context(), name, limit, offset)
	if err != nil {
		s.logger.Error("CheckHistory", "check", name, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if results == nil {
		results = []storage.Result{}
	}

	writeJSON(w, http.StatusOK, historyResponse{Results: results, Total: total})
}

// --- Middleware ---

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start),
		)
	})
}
