// Package server serves known findings over HTTP and accepts reports to
// track.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/SonarSource/sonarlint-core-sub018/pkg/report"
	"github.com/SonarSource/sonarlint-core-sub018/pkg/service"
	"github.com/SonarSource/sonarlint-core-sub018/pkg/store"
	"github.com/SonarSource/sonarlint-core-sub018/pkg/tracking"
)

var log = logrus.WithField("component", "http")

// MaxRequestBodySize limits posted reports.
const MaxRequestBodySize = 32 << 20

const shutdownTimeout = 10 * time.Second

// Tracker tracks one report as one analysis of scope. Running lists the
// analyses not finished yet.
type Tracker interface {
	Track(ctx context.Context, scope string, rep *report.Report) (*service.Summary, error)
	Running() []string
}

// Server exposes a KnownFindingsStore read-only and tracks posted reports
// through a Tracker.
type Server struct {
	store        store.KnownFindingsStore
	tracker      Tracker
	defaultScope string
	addr         string
	mux          *http.ServeMux
}

// NewServer builds the routes. Requests without a scope parameter use
// defaultScope; scope=* spans every scope on read routes.
func NewServer(st store.KnownFindingsStore, tracker Tracker, defaultScope, addr string) *Server {
	s := &Server{
		store:        st,
		tracker:      tracker,
		defaultScope: defaultScope,
		addr:         addr,
		mux:          http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/findings", s.handleList)
	s.mux.HandleFunc("GET /api/findings/search", s.handleSearch)
	s.mux.HandleFunc("GET /api/findings/{id}", s.handleGet)
	s.mux.HandleFunc("GET /api/stats", s.handleStats)

	s.mux.HandleFunc("POST /api/track", s.handleTrack)
}

// Handler returns the routes, for embedding or httptest.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", s.addr).Info("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info("http server stopped")
	return nil
}

func jsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Warn("failed to encode response")
	}
}

func errorResponse(w http.ResponseWriter, message string, status int) {
	jsonResponse(w, map[string]string{"error": message}, status)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	jsonResponse(w, map[string]any{
		"status":  "ok",
		"running": s.tracker.Running(),
	}, http.StatusOK)
}

// listOptions reads scope, file, category, rule and limit query parameters.
func (s *Server) listOptions(r *http.Request, defaultLimit int) (store.ListOptions, error) {
	q := r.URL.Query()
	opts := store.ListOptions{
		Scope:    s.scope(r),
		FilePath: q.Get("file"),
		RuleKey:  q.Get("rule"),
		Limit:    defaultLimit,
	}
	if opts.Scope == "*" {
		opts.Scope = ""
	}
	if c := q.Get("category"); c != "" {
		cat, err := tracking.ParseCategory(c)
		if err != nil {
			return opts, err
		}
		opts.Category = cat
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			return opts, errors.New("limit must be a positive integer")
		}
		opts.Limit = n
	}
	return opts, nil
}

func (s *Server) scope(r *http.Request) string {
	if scope := r.URL.Query().Get("scope"); scope != "" {
		return scope
	}
	return s.defaultScope
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	opts, err := s.listOptions(r, store.DefaultListLimit)
	if err != nil {
		errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	records, err := s.store.ListKnownFindings(opts)
	if err != nil {
		errorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []*store.Record{}
	}
	jsonResponse(w, records, http.StatusOK)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		errorResponse(w, "query parameter 'q' required", http.StatusBadRequest)
		return
	}
	opts, err := s.listOptions(r, store.DefaultSearchLimit)
	if err != nil {
		errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	results, err := s.store.SearchKnownFindings(query, opts)
	if err != nil {
		errorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []*store.SearchResult{}
	}
	jsonResponse(w, results, http.StatusOK)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := s.store.GetKnownFinding(s.scope(r), id)
	if errors.Is(err, store.ErrNotFound) {
		errorResponse(w, "known finding not found: "+id, http.StatusNotFound)
		return
	}
	if err != nil {
		errorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, rec, http.StatusOK)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	opts, err := s.listOptions(r, 0)
	if err != nil {
		errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	stats, err := s.store.Stats(opts)
	if err != nil {
		errorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, stats, http.StatusOK)
}

// handleTrack tracks the posted report. The body is JSON unless the
// Content-Type names YAML.
func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	scope := s.scope(r)
	if scope == "*" {
		errorResponse(w, "track needs a single scope", http.StatusBadRequest)
		return
	}

	format := report.FormatJSON
	switch r.Header.Get("Content-Type") {
	case "application/yaml", "application/x-yaml", "text/yaml":
		format = report.FormatYAML
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	rep, err := report.Decode(r.Body, format)
	if err != nil {
		errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	summary, err := s.tracker.Track(r.Context(), scope, rep)
	if err != nil {
		errorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}
	log.WithFields(logrus.Fields{
		"analysis": summary.AnalysisID,
		"scope":    scope,
		"new":      summary.New,
		"matched":  summary.Matched,
	}).Info("report tracked")
	jsonResponse(w, summary, http.StatusOK)
}
