// Package server exposes the search engine over a small JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/adalundhe/wikisearch/core/search"
	"github.com/adalundhe/wikisearch/core/search/engine"
)

// Defaults for Config fields left unset.
const (
	DefaultAddr            = "127.0.0.1:8080"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultReindexEvery    = time.Minute
	DefaultReindexBurst    = 1
	DefaultSnippetPrefix   = `<span class="term">`
	DefaultSnippetSuffix   = `</span>`
)

// Engine is the part of engine.Engine the server needs.
type Engine interface {
	Query(ctx context.Context, q string, opts search.QueryOptions) (*search.PageMatchResult, error)
	Reindex(ctx context.Context, force bool) (engine.ReindexResult, error)
	PageCount() (uint64, error)
	Revision() uint32
}

// Config configures the HTTP server.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// ReindexEvery and ReindexBurst limit manual reindex requests.
	ReindexEvery time.Duration
	ReindexBurst int

	DefaultCount  int
	SnippetLength int
	SnippetPrefix string
	SnippetSuffix string
}

func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.ReindexEvery <= 0 {
		c.ReindexEvery = DefaultReindexEvery
	}
	if c.ReindexBurst <= 0 {
		c.ReindexBurst = DefaultReindexBurst
	}
	if c.DefaultCount <= 0 {
		c.DefaultCount = search.DefaultCount
	}
	if c.SnippetLength <= 0 {
		c.SnippetLength = search.DefaultSnippetLength
	}
	if c.SnippetPrefix == "" && c.SnippetSuffix == "" {
		c.SnippetPrefix = DefaultSnippetPrefix
		c.SnippetSuffix = DefaultSnippetSuffix
	}
}

// Server serves the search API.
type Server struct {
	engine  Engine
	metrics http.Handler
	config  Config
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a server. metricsHandler may be nil, in which case /metrics
// is not served.
func New(e Engine, metricsHandler http.Handler, config Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	config.applyDefaults()
	return &Server{
		engine:  e,
		metrics: metricsHandler,
		config:  config,
		limiter: rate.NewLimiter(rate.Every(config.ReindexEvery), config.ReindexBurst),
		logger:  logger,
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("POST /api/reindex", s.handleReindex)
	mux.HandleFunc("GET /api/index", s.handleIndex)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// =============================================================================
// Responses
// =============================================================================

type searchEntry struct {
	Namespace string   `json:"namespace"`
	TitleHTML string   `json:"title_html"`
	TextHTML  string   `json:"text_html"`
	URL       string   `json:"url"`
	PageID    int64    `json:"page_id"`
	Score     *float64 `json:"score,omitempty"`
}

type searchResponse struct {
	Entries   []searchEntry `json:"entries"`
	Total     int           `json:"total"`
	Remaining int           `json:"remaining"`
	NewOffset *int          `json:"new_offset"`
	Elapsed   string        `json:"elapsed"`
}

type reindexResponse struct {
	RunID     string `json:"run_id"`
	Skipped   bool   `json:"skipped"`
	PageCount uint64 `json:"page_count"`
	Revision  uint32 `json:"revision"`
	Elapsed   string `json:"elapsed"`
}

type indexResponse struct {
	PageCount uint64 `json:"page_count"`
	Revision  uint32 `json:"revision"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	opts, err := s.queryOptions(params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	prefix, suffix := s.config.SnippetPrefix, s.config.SnippetSuffix
	if params.Has("snippet_prefix") || params.Has("snippet_suffix") {
		prefix, suffix = params.Get("snippet_prefix"), params.Get("snippet_suffix")
	}

	result, err := s.engine.Query(r.Context(), params.Get("q"), opts)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := searchResponse{
		Entries:   make([]searchEntry, 0, len(result.Entries)),
		Total:     result.Total,
		Remaining: result.Remaining,
		NewOffset: result.NewOffset,
		Elapsed:   result.Elapsed.String(),
	}
	for _, e := range result.Entries {
		resp.Entries = append(resp.Entries, renderEntry(e, prefix, suffix))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func renderEntry(e search.PageMatchEntry, prefix, suffix string) searchEntry {
	return searchEntry{
		Namespace: e.Namespace.String(),
		TitleHTML: e.Title.HighlightEscaped(prefix, suffix, html.EscapeString),
		TextHTML:  e.Text.HighlightEscaped(prefix, suffix, html.EscapeString),
		URL:       e.URL,
		PageID:    e.PageID,
		Score:     e.Score,
	}
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		w.Header().Set("Retry-After", strconv.Itoa(int(s.config.ReindexEvery.Seconds())))
		s.writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "reindex rate limit exceeded"})
		return
	}

	force, err := parseBool(r.URL.Query().Get("force"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.engine.Reindex(r.Context(), force)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("manual reindex",
		"run_id", result.RunID,
		"skipped", result.Skipped,
		"pages", result.PageCount,
		"revision", result.Revision,
	)
	s.writeJSON(w, http.StatusOK, reindexResponse{
		RunID:     result.RunID,
		Skipped:   result.Skipped,
		PageCount: result.PageCount,
		Revision:  result.Revision,
		Elapsed:   result.Elapsed.String(),
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	count, err := s.engine.PageCount()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, indexResponse{PageCount: count, Revision: s.engine.Revision()})
}

// =============================================================================
// Parameters
// =============================================================================

func (s *Server) queryOptions(params map[string][]string) (search.QueryOptions, error) {
	get := func(key string) string {
		if v := params[key]; len(v) > 0 {
			return v[0]
		}
		return ""
	}

	opts := search.QueryOptions{
		Count:         s.config.DefaultCount,
		SnippetLength: s.config.SnippetLength,
	}
	var err error
	if opts.Offset, err = parseInt(get("offset"), 0); err != nil {
		return opts, err
	}
	if opts.Count, err = parseInt(get("count"), opts.Count); err != nil {
		return opts, err
	}
	if get("count") != "" && opts.Count < 1 {
		return opts, fmt.Errorf("%w: count must be at least 1", search.ErrInvalidQuery)
	}
	if opts.SnippetLength, err = parseInt(get("snippet_length"), opts.SnippetLength); err != nil {
		return opts, err
	}
	if opts.DateBefore, err = search.ParseDate(get("date_before")); err != nil {
		return opts, err
	}
	if opts.DateAfter, err = search.ParseDate(get("date_after")); err != nil {
		return opts, err
	}
	if opts.Fuzzy, err = parseBool(get("fuzzy")); err != nil {
		return opts, err
	}
	return opts, nil
}

func parseInt(v string, fallback int) (int, error) {
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", search.ErrInvalidQuery, v)
	}
	return n, nil
}

func parseBool(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %q is not a boolean", search.ErrInvalidQuery, v)
	}
	return b, nil
}

// =============================================================================
// Writing
// =============================================================================

// statusFor maps an error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, search.ErrInvalidQuery), errors.Is(err, search.ErrInvalidDate):
		return http.StatusBadRequest
	case errors.Is(err, search.ErrSourceUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Warn("request failed", "status", status, "error", err)
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("write response", "error", err)
	}
}
