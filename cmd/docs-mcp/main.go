// Package main is the entry point for the docs-mcp service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/acmecorp/docs-mcp/api"
	"github.com/acmecorp/docs-mcp/internal/audit"
	"github.com/acmecorp/docs-mcp/internal/auth"
	"github.com/acmecorp/docs-mcp/internal/config"
	"github.com/acmecorp/docs-mcp/internal/documents"
	"github.com/acmecorp/docs-mcp/internal/httputil"
	"github.com/acmecorp/docs-mcp/internal/metrics"
	"github.com/acmecorp/docs-mcp/internal/policy"
	"github.com/acmecorp/docs-mcp/internal/server"
	"github.com/acmecorp/docs-mcp/internal/telemetry"
	"github.com/acmecorp/docs-mcp/internal/tools"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	if cfg.DevMode {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			With().Timestamp().Str("service", "docs-mcp").Logger()
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Str("service", "docs-mcp").Str("version", version).Logger()
	}

	logger := log.With().Str("component", "main").Logger()
	logger.Info().Str("transport", cfg.Transport).Msg("starting docs-mcp")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "docs-mcp",
		ServiceVersion: version,
		Environment:    environment(cfg),
		TracesEnabled:  cfg.TracesEnabled,
		Endpoint:       cfg.TracesEndpoint,
		Insecure:       cfg.TracesInsecure,
		SampleRatio:    cfg.TracesSampleRatio,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize tracing")
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if shutdownErr := shutdownTracing(shutdownCtx); shutdownErr != nil {
			logger.Error().Err(shutdownErr).Msg("failed to shut down tracing")
		}
	}()

	catalog, err := loadCatalog(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load tool catalog")
	}
	logger.Info().Int("tools", catalog.Len()).Msg("tool catalog loaded")

	key, keySource, err := auth.ResolveVerificationKey(auth.KeyOptions{
		Algorithm:       cfg.JWTAlgorithm,
		Secret:          cfg.JWTSecretKey,
		SecretFile:      cfg.JWTSecretFile,
		PublicKeyFile:   cfg.JWTPublicKeyFile,
		AllowDevDefault: cfg.DevMode,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to resolve token verification key")
	}
	if keySource == auth.KeySourceDevDefault {
		logger.Warn().Msg("using the built-in development signing secret; do not run this in production")
	}
	logger.Info().Str("key_source", string(keySource)).Str("algorithm", key.Algorithm).Msg("token verification key resolved")

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	guardOpts := []server.GuardOption{
		server.WithAuditLogger(audit.NewLogger(log.Logger)),
		server.WithMetrics(m),
	}
	var readiness []httputil.ReadinessCheck
	if cfg.RedisURL != "" {
		client, redisErr := auth.OpenRedis(ctx, cfg.RedisURL)
		if redisErr != nil {
			logger.Fatal().Err(redisErr).Msg("failed to connect to revocation store")
		}
		defer client.Close()
		revocations := auth.NewRedisRevocationList(client)
		guardOpts = append(guardOpts, server.WithRevocationList(revocations))
		readiness = append(readiness, revocations.Ping)
		logger.Info().Msg("token revocation list enabled")
	}

	guard, err := server.NewAccessGuard(auth.NewValidator(key), policy.NewGate(catalog), guardOpts...)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build access guard")
	}

	store := documents.NewStore(cfg.DocumentsDir)
	runner, err := tools.NewRunner(catalog, store)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build tool runner")
	}
	documentNames := runner.Documents()
	readiness = append([]httputil.ReadinessCheck{func(ctx context.Context) error {
		return store.Ready(ctx, documentNames...)
	}}, readiness...)
	if readyErr := store.Ready(ctx, documentNames...); readyErr != nil {
		logger.Warn().Err(readyErr).Str("dir", store.Dir()).Msg("documents are not ready")
	}

	switch cfg.Transport {
	case config.TransportStdio:
		runErr := server.RunStdio(ctx, os.Stdin, os.Stdout, guard, runner, server.StdioOptions{
			Token:   cfg.StdioToken,
			Version: version,
			Metrics: m,
		}, log.Logger)
		if runErr != nil {
			logger.Error().Err(runErr).Msg("stdio runtime stopped with error")
			os.Exit(1)
		}
		logger.Info().Msg("stdio runtime stopped")

	case config.TransportHTTP:
		build := server.BuildInfo{Version: version, Commit: commit, Date: buildDate}
		httpServer := server.NewHTTPServer(cfg, build, guard, runner, m, log.Logger, readiness...)
		srv := &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           httpServer.Router(),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      0, // allow SSE streaming without forcing writer timeout.
			IdleTimeout:       120 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info().Str("addr", cfg.ListenAddr).Msg("HTTP server listening")
			if serveErr := srv.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
				errCh <- serveErr
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		case serveErr := <-errCh:
			logger.Error().Err(serveErr).Msg("HTTP server error")
		}
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Error().Err(shutdownErr).Msg("HTTP server shutdown error")
			os.Exit(1)
		}
		logger.Info().Msg("server stopped gracefully")

	default:
		logger.Fatal().Str("transport", cfg.Transport).Msg("unsupported transport")
	}
}

// loadCatalog reads MCP_TOOLS_FILE when set and the embedded catalog
// otherwise.
func loadCatalog(cfg config.Config) (*policy.Catalog, error) {
	if cfg.ToolsFile == "" {
		return policy.NewCatalog(api.ToolsContract)
	}
	raw, err := os.ReadFile(cfg.ToolsFile)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", cfg.ToolsFile, err)
	}
	return policy.NewCatalog(raw)
}

func environment(cfg config.Config) string {
	if cfg.DevMode {
		return "development"
	}
	return "production"
}
