package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/acmecorp/docs-mcp/internal/httputil"
)

func (s *HTTPServer) registerHealthRoutes(r chi.Router) {
	r.Method(http.MethodGet, "/health", httputil.HealthHandler())
	r.Method(http.MethodGet, "/ready", httputil.ReadinessHandler(s.readiness...))
	r.Method(http.MethodGet, "/version", httputil.VersionHandler(defaultServerName, s.build.Version, s.build.Commit, s.build.Date))
	if s.cfg.MetricsEnabled && s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
}
