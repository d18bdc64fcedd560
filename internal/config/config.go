// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all server configuration.
type Config struct {
	// Server
	ListenAddr  string
	MetricsAddr string

	// Logging
	LogLevel  string
	LogFormat string

	// Database
	DatabaseURL string

	// Auth
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// OIDC (optional)
	OIDCIssuerURL    string
	OIDCClientID     string
	OIDCClientSecret string
	OIDCRedirectURL  string

	// Limits
	RequestsPerMinute int // default per-user limit, 0 = unlimited
	AssistantPerDay   int // default per-user assistant calls, 0 = unlimited
	MaxFileSize       int64
	MaxAssetSize      int64
	AllowedExtensions []string

	// Assistant
	AssistantProvider string // "openai" or "gemini", empty disables the panel
	AssistantBaseURL  string
	AssistantAPIKey   string
	AssistantModel    string

	// Asset storage ("local" or "s3")
	StorageBackend   string
	LocalStoragePath string
	S3Endpoint       string
	S3Bucket         string
	S3AccessKey      string
	S3SecretKey      string
	S3Region         string
}

// DefaultExtensions are source/text extensions editable in the browser.
var DefaultExtensions = []string{
	"js", "jsx", "ts", "tsx", "html", "css", "scss", "json", "md", "txt",
	"go", "py", "rb", "rs", "c", "cpp", "h", "java", "sh", "sql", "yaml",
	"yml", "toml", "xml", "svg", "env", "gitignore",
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:        envOr("LISTEN_ADDR", ":8080"),
		MetricsAddr:       envOr("METRICS_ADDR", ":9090"),
		LogLevel:          envOr("LOG_LEVEL", "info"),
		LogFormat:         envOr("LOG_FORMAT", "json"),
		DatabaseURL:       envOr("DATABASE_URL", ""),
		JWTSecret:         envOr("JWT_SECRET", ""),
		AccessTokenTTL:    envDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:   envDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour),
		OIDCIssuerURL:     envOr("OIDC_ISSUER_URL", ""),
		OIDCClientID:      envOr("OIDC_CLIENT_ID", ""),
		OIDCClientSecret:  envOr("OIDC_CLIENT_SECRET", ""),
		OIDCRedirectURL:   envOr("OIDC_REDIRECT_URL", ""),
		RequestsPerMinute: envInt("REQUESTS_PER_MINUTE", 120),
		AssistantPerDay:   envInt("ASSISTANT_PER_DAY", 200),
		MaxFileSize:       envInt64("MAX_FILE_SIZE", 1024*1024), // 1MB of text
		MaxAssetSize:      envInt64("MAX_ASSET_SIZE", 20*1024*1024),
		AssistantProvider: envOr("ASSISTANT_PROVIDER", ""),
		AssistantBaseURL:  envOr("ASSISTANT_BASE_URL", "https://api.openai.com/v1"),
		AssistantAPIKey:   envOr("ASSISTANT_API_KEY", ""),
		AssistantModel:    envOr("ASSISTANT_MODEL", ""),
		StorageBackend:    envOr("STORAGE_BACKEND", "local"),
		LocalStoragePath:  envOr("LOCAL_STORAGE_PATH", "/data/assets"),
		S3Endpoint:        envOr("S3_ENDPOINT", ""),
		S3Bucket:          envOr("S3_BUCKET", "driftpad"),
		S3AccessKey:       envOr("S3_ACCESS_KEY", ""),
		S3SecretKey:       envOr("S3_SECRET_KEY", ""),
		S3Region:          envOr("S3_REGION", "us-east-1"),
	}

	if ext := os.Getenv("ALLOWED_EXTENSIONS"); ext != "" {
		for _, e := range strings.Split(ext, ",") {
			e = strings.TrimSpace(strings.TrimPrefix(e, "."))
			if e != "" {
				cfg.AllowedExtensions = append(cfg.AllowedExtensions, e)
			}
		}
	} else {
		cfg.AllowedExtensions = DefaultExtensions
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.AssistantProvider != "" && cfg.AssistantAPIKey == "" {
		return nil, fmt.Errorf("ASSISTANT_API_KEY is required when ASSISTANT_PROVIDER is set")
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
