// Package config loads docs-mcp configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// TransportStdio runs MCP over stdin/stdout.
	TransportStdio = "stdio"
	// TransportHTTP runs MCP over streamable HTTP.
	TransportHTTP = "http"

	defaultListenAddr    = ":8080"
	defaultJWTAlgorithm  = "HS256"
	defaultDocumentsDir  = "documents"
	defaultSessionTTL    = 30 * time.Minute
	defaultRevocationTTL = 24 * time.Hour
)

// Config holds service runtime configuration.
type Config struct {
	ListenAddr string
	LogLevel   string

	Transport  string
	StdioToken string

	JWTAlgorithm     string
	JWTSecretKey     string
	JWTSecretFile    string
	JWTPublicKeyFile string

	DocumentsDir string
	ToolsFile    string

	RedisURL   string
	SessionTTL time.Duration

	MetricsEnabled    bool
	TracesEnabled     bool
	TracesEndpoint    string
	TracesSampleRatio float64
	TracesInsecure    bool
	DevMode           bool
}

// Load returns configuration parsed from environment variables.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:       envOrDefault("MCP_LISTEN_ADDR", defaultListenAddr),
		LogLevel:         strings.ToLower(strings.TrimSpace(envOrDefault("MCP_LOG_LEVEL", "info"))),
		Transport:        strings.ToLower(strings.TrimSpace(envOrDefault("MCP_TRANSPORT", TransportHTTP))),
		StdioToken:       strings.TrimSpace(os.Getenv("MCP_STDIO_TOKEN")),
		JWTAlgorithm:     strings.TrimSpace(envOrDefault("MCP_JWT_ALGORITHM", defaultJWTAlgorithm)),
		JWTSecretKey:     os.Getenv("MCP_JWT_SECRET_KEY"),
		JWTSecretFile:    strings.TrimSpace(os.Getenv("MCP_JWT_SECRET_FILE")),
		JWTPublicKeyFile: strings.TrimSpace(os.Getenv("MCP_JWT_PUBLIC_KEY_FILE")),
		DocumentsDir:     envOrDefault("MCP_DOCUMENTS_DIR", defaultDocumentsDir),
		ToolsFile:        strings.TrimSpace(os.Getenv("MCP_TOOLS_FILE")),
		RedisURL:         strings.TrimSpace(os.Getenv("MCP_REDIS_URL")),
		MetricsEnabled:   envBool("MCP_METRICS_ENABLED", true),
		TracesEnabled:    envBool("MCP_TRACES_ENABLED", false),
		TracesEndpoint:   strings.TrimSpace(os.Getenv("MCP_TRACES_ENDPOINT")),
		TracesInsecure:   envBool("MCP_TRACES_INSECURE", true),
		DevMode:          envBool("MCP_DEV_MODE", false),
	}

	switch cfg.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return Config{}, fmt.Errorf("invalid MCP_TRANSPORT %q (allowed: %s|%s)", cfg.Transport, TransportStdio, TransportHTTP)
	}

	var err error
	if cfg.SessionTTL, err = envDuration("MCP_SESSION_TTL", defaultSessionTTL); err != nil {
		return Config{}, err
	}
	if cfg.TracesSampleRatio, err = envFloat("MCP_TRACES_SAMPLE_RATIO", 1.0); err != nil {
		return Config{}, err
	}
	if cfg.TracesSampleRatio < 0 || cfg.TracesSampleRatio > 1 {
		return Config{}, fmt.Errorf("invalid MCP_TRACES_SAMPLE_RATIO %v (allowed: 0..1)", cfg.TracesSampleRatio)
	}

	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
	if strings.TrimSpace(cfg.DocumentsDir) == "" {
		cfg.DocumentsDir = defaultDocumentsDir
	}

	return cfg, nil
}

// RevocationTTL returns MCP_REVOCATION_TTL, how long docs-mcp-token revoke
// keeps a token id on the revocation list. It defaults to 24h.
func RevocationTTL() (time.Duration, error) {
	return envDuration("MCP_REVOCATION_TTL", defaultRevocationTTL)
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultVal
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		switch strings.ToLower(value) {
		case "yes", "on":
			return true
		case "no", "off":
			return false
		default:
			return defaultVal
		}
	}
	return parsed
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultVal, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return 0, fmt.Errorf("invalid %s %q (expected a positive duration such as 30m)", key, value)
	}
	return parsed, nil
}

func envFloat(key string, defaultVal float64) (float64, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultVal, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return parsed, nil
}
