package server

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/acmecorp/docs-mcp/internal/config"
	"github.com/acmecorp/docs-mcp/internal/httputil"
	"github.com/acmecorp/docs-mcp/internal/metrics"
	"github.com/acmecorp/docs-mcp/internal/telemetry"
)

// BuildInfo identifies the running binary on /version.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// HTTPServer wraps MCP HTTP routing state.
type HTTPServer struct {
	cfg        config.Config
	build      BuildInfo
	guard      *AccessGuard
	dispatcher *dispatcher
	sessions   *sessionStore
	metrics    *metrics.Metrics
	readiness  []httputil.ReadinessCheck
	logger     zerolog.Logger
}

// NewHTTPServer creates an HTTP transport server with health and MCP routes.
func NewHTTPServer(
	cfg config.Config,
	build BuildInfo,
	guard *AccessGuard,
	caller ToolCaller,
	m *metrics.Metrics,
	logger zerolog.Logger,
	readiness ...httputil.ReadinessCheck,
) *HTTPServer {
	return &HTTPServer{
		cfg:        cfg,
		build:      build,
		guard:      guard,
		dispatcher: newDispatcher(guard, caller, build.Version, m, logger),
		sessions:   newSessionStore(cfg.SessionTTL, m),
		metrics:    m,
		readiness:  readiness,
		logger:     logger,
	}
}

// Router builds the MCP HTTP router.
func (s *HTTPServer) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(telemetry.Middleware(defaultServerName))
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.RequestLogger(s.logger))
	r.Use(httputil.Recoverer(s.logger))
	r.Use(httputil.SecureHeaders)
	r.Use(httputil.BodyLimit(MaxRequestBodySize))
	r.Use(httputil.APIVersion("mcp/v1"))
	r.Use(httputil.CacheControl)

	s.registerHealthRoutes(r)
	r.HandleFunc("/mcp", s.handleMCP)
	s.registerMCPHTTPRoutes(r)

	return r
}
