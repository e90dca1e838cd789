package api

import (
	"fmt"
	"net/http"
	"time"
)

// ServiceName identifies the service in descriptors.
const ServiceName = "scrape-proxy"

// Version is reported by the descriptor endpoints. It is overridden at build
// time with -ldflags "-X github.com/JakeFAU/scrape-proxy/internal/api.Version=...".
var Version = "dev"

func (s *Server) describeProxy(w http.ResponseWriter, _ *http.Request) {
	domain := s.proxy.AllowedDomain()
	_, ttl := s.proxy.CacheInfo()
	writeJSON(w, http.StatusOK, map[string]any{
		"name":           ServiceName,
		"description":    fmt.Sprintf("Fetches one page from %s and returns a normalized summary", domain),
		"version":        Version,
		"status":         "operational",
		"allowed_domain": domain,
		"endpoints": map[string]string{
			"POST /api/proxy": "Extract data from one URL",
			"GET /api/proxy":  "This descriptor",
			"GET /api/docs":   "Response format documentation",
			"GET /api/health": "Service health",
		},
		"features": []string{
			"Three-tier extraction: DOM queries, pattern matching, raw preview",
			fmt.Sprintf("Result cache (%d minutes)", int(ttl/time.Minute)),
			"Browser-like request headers with user agent rotation",
			fmt.Sprintf("Upstream timeout %d seconds", s.cfg.Fetch.TimeoutSeconds),
		},
		"example": map[string]any{
			"method": http.MethodPost,
			"body":   map[string]string{"url": fmt.Sprintf("https://%s/", domain)},
		},
	})
}

func (s *Server) docs(w http.ResponseWriter, _ *http.Request) {
	domain := s.proxy.AllowedDomain()
	writeJSON(w, http.StatusOK, map[string]any{
		"api_name":    ServiceName,
		"description": fmt.Sprintf("Extracts structured data from pages on %s", domain),
		"version":     Version,
		"endpoints": map[string]any{
			"main": map[string]any{
				"url":            "/api/proxy",
				"method":         http.MethodPost,
				"description":    fmt.Sprintf("Extract structured data from any page on %s", domain),
				"request_format": map[string]string{"url": fmt.Sprintf("string (e.g. https://%s/players)", domain)},
				"response_structure": map[string]any{
					"success": "boolean",
					"url":     "final URL after redirects",
					"data": map[string]string{
						"metadata":        "title, description, page type, extraction method",
						"statistics":      "element counts and size",
						"structured_data": "important links and table samples",
						"raw_preview":     "first 500 characters of markup and text",
					},
					"performance": "timings, user agent and extraction method",
					"cache":       "HIT or MISS",
					"timestamp":   "RFC 3339 string",
				},
			},
			"health": map[string]string{
				"url":         "/api/health",
				"method":      http.MethodGet,
				"description": "Service status",
			},
		},
		"error_types": []string{
			"invalid_request", "malformed_url", "invalid_domain", "timeout", "network",
			"http_status", "undecodable_content", "rate_limited", "internal",
		},
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	items, ttl := s.proxy.CacheInfo()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"service":   ServiceName,
		"version":   Version,
		"timestamp": s.clock.Now(),
		"endpoints": map[string]string{
			"health": "/api/health",
			"proxy":  "/api/proxy",
			"docs":   "/api/docs",
		},
		"cache": cacheInfo{ItemsInCache: items, TTLMinutes: int(ttl / time.Minute)},
		"limits": map[string]any{
			"timeout_seconds":       s.cfg.Fetch.TimeoutSeconds,
			"max_concurrent_fetch":  s.cfg.Fetch.MaxConcurrency,
			"upstream_rate_per_min": s.cfg.Fetch.RatePerMinute,
		},
	})
}
