package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrape-proxy/internal/cache"
	"github.com/JakeFAU/scrape-proxy/internal/config"
	"github.com/JakeFAU/scrape-proxy/internal/metrics"
	"github.com/JakeFAU/scrape-proxy/internal/scrape"
	"github.com/JakeFAU/scrape-proxy/internal/service"
)

// maxRequestBytes bounds the JSON body of a proxy request.
const maxRequestBytes = 64 << 10

// Proxy is the service behind the HTTP handlers.
type Proxy interface {
	Handle(ctx context.Context, rawURL string) service.Outcome
	CacheInfo() (int, time.Duration)
	CacheStats() cache.Stats
	ClearCache() int
	Invalidate(rawURL string) (bool, error)
	AllowedDomain() string
}

// Server wires HTTP handlers to the proxy service.
type Server struct {
	router chi.Router
	proxy  Proxy
	clock  scrape.Clock
	cfg    config.Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(proxy Proxy, clock scrape.Clock, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		proxy:  proxy,
		clock:  clock,
		cfg:    cfg,
		logger: logger.Named("api"),
	}
	timeout := cfg.RequestTimeout()
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(metrics.Middleware)
	r.Use(recoverMiddleware(s.logger, clock))
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(corsMiddleware(cfg.CORS.AllowedOrigins))
		r.Get("/health", s.health)
		r.Get("/docs", s.docs)
		r.Post("/proxy", s.handleProxy)
		r.Get("/proxy", s.describeProxy)
		r.Post("/ird/proxy", s.handleProxy)
		r.Get("/ird/proxy", s.describeProxy)
	})

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Route("/cache", func(r chi.Router) {
			r.Get("/", s.cacheStats)
			r.Delete("/", s.clearCache)
			r.Delete("/entry", s.invalidateEntry)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	// The cache is in memory and the upstream is checked per request.
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req proxyRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(&req); err != nil {
		domain := s.proxy.AllowedDomain()
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:          "request body must be JSON with a url field",
			ErrorType:      errorTypeInvalidRequest,
			Recommendation: recommendationFor(scrape.KindMalformedURL, domain),
			Timestamp:      s.clock.Now(),
		})
		return
	}

	out := s.proxy.Handle(r.Context(), req.URL)
	items, ttl := s.proxy.CacheInfo()
	status, body := RenderOutcome(out, time.Since(start), items, ttl, s.proxy.AllowedDomain())
	writeJSON(w, status, body)
}

func (s *Server) cacheStats(w http.ResponseWriter, _ *http.Request) {
	stats := s.proxy.CacheStats()
	writeJSON(w, http.StatusOK, map[string]any{
		"entries":     stats.Entries,
		"max_entries": stats.MaxEntries,
		"ttl_seconds": int(stats.TTL / time.Second),
		"policy":      stats.Policy,
		"keys":        stats.Keys,
	})
}

func (s *Server) clearCache(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"removed": s.proxy.ClearCache()})
}

func (s *Server) invalidateEntry(w http.ResponseWriter, r *http.Request) {
	rawURL := strings.TrimSpace(r.URL.Query().Get("url"))
	if rawURL == "" {
		writeError(w, http.StatusBadRequest, "url query parameter required")
		return
	}
	removed, err := s.proxy.Invalidate(rawURL)
	if err != nil {
		var se *scrape.Error
		if errors.As(err, &se) {
			writeError(w, http.StatusBadRequest, se.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "url not cached")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": true})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
