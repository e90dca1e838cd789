// Package api hosts the HTTP server, middleware, and JSON handlers. Notable
// routes:
//   - POST /api/proxy (alias /api/ird/proxy) to fetch and extract one URL.
//   - GET /api/proxy, /api/docs and /api/health for static descriptors.
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET and DELETE /v1/cache for cache administration, API-key guarded
//     when auth is enabled.
package api
