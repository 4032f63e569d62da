package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/CrispStrobe/allmyposts/internal/bluesky"
	"github.com/CrispStrobe/allmyposts/internal/config"
	"github.com/CrispStrobe/allmyposts/internal/domain"
	"github.com/CrispStrobe/allmyposts/internal/mastodon"
	"github.com/CrispStrobe/allmyposts/internal/stream"
)

// Deps are the platform collaborators the server works against.
type Deps struct {
	// Clients holds one client per configured platform.
	Clients map[domain.Platform]domain.PlatformClient

	// Follows restricts centralized search results; may be nil.
	Follows domain.FollowLister

	// Cache backs the affinity cache; may be nil to disable caching.
	Cache domain.CacheStore
}

// Server is the HTTP API over the feed unification engine.
type Server struct {
	cfg        *config.Config
	clients    map[domain.Platform]domain.PlatformClient
	affinity   *domain.AffinityBuilder
	searcher   *domain.Searcher
	relay      *stream.Relay
	logger     *slog.Logger
	handler    http.Handler
	httpServer *http.Server
}

// NewServer creates a new HTTP server over deps.
func NewServer(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	fetchers := make(map[domain.Platform]domain.PageFetcher, len(deps.Clients))
	for p, c := range deps.Clients {
		fetchers[p] = c
	}

	var affinityCache *domain.AffinityCache
	if deps.Cache != nil {
		affinityCache = domain.NewAffinityCache(deps.Cache, cfg.AffinityTTL)
	}

	s := &Server{
		cfg:      cfg,
		clients:  deps.Clients,
		affinity: domain.NewAffinityBuilder(fetchers, affinityCache, cfg.AffinityPageLimit, logger),
		searcher: domain.NewSearcher(fetchers, deps.Follows, cfg.SearchPageLimit, logger),
		relay:    stream.NewRelay(logger),
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/feed", s.handleFeedPage)
	mux.HandleFunc("GET /api/posts", s.handlePosts)
	mux.HandleFunc("GET /api/posts/export", s.handleExport)
	mux.HandleFunc("POST /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/search/stream", s.handleSearchStream)
	mux.HandleFunc("POST /api/affinity", s.handleAffinity)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.handler = otelhttp.NewHandler(withLogging(logger, mux), "allmyposts")
	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     s.handler,
		ReadTimeout: 10 * time.Second,
		// Load-all requests walk entire histories.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the fully wrapped request handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	platforms := make([]domain.Platform, 0, len(s.clients))
	for _, p := range domain.Platforms {
		if s.clients[p] != nil {
			platforms = append(platforms, p)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "platforms": platforms})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}

// writeDomainError maps the domain error taxonomy onto HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var (
		ce *domain.ConfigurationError
		nf *domain.NotFoundError
		te *domain.TransportError
	)
	switch {
	case errors.As(err, &ce):
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
	case errors.As(err, &nf):
		writeError(w, http.StatusNotFound, "NotFound", err.Error())
	case bluesky.IsRateLimited(err), mastodon.IsRateLimited(err):
		writeError(w, http.StatusTooManyRequests, "RateLimited", err.Error())
	case errors.As(err, &te):
		writeError(w, http.StatusBadGateway, "UpstreamError", err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "Timeout", err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "internal error")
	}
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		pattern := r.Pattern
		if pattern == "" {
			pattern = "unmatched"
		}
		httpRequests.WithLabelValues(pattern, strconv.Itoa(wrapped.status)).Inc()
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Hijack lets the search stream upgrade to a websocket.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
