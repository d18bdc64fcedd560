// Driftpad Server
//
// Features:
// - JWT auth with refresh token rotation (optional OIDC)
// - Project and file record CRUD with tree assembly
// - SSE real-time file events per project
// - DB-backed sliding-window rate limiting
// - AI assistant proxy (OpenAI-compatible or Gemini)
// - Binary asset storage (local or S3)
// - Prometheus metrics & structured logging (zap)
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/driftpad/driftpad/internal/api"
	"github.com/driftpad/driftpad/internal/assistant"
	"github.com/driftpad/driftpad/internal/auth"
	"github.com/driftpad/driftpad/internal/config"
	"github.com/driftpad/driftpad/internal/events"
	"github.com/driftpad/driftpad/internal/logging"
	"github.com/driftpad/driftpad/internal/metrics"
	"github.com/driftpad/driftpad/internal/ratelimit"
	"github.com/driftpad/driftpad/internal/storage"
	"github.com/driftpad/driftpad/internal/store/postgres"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	// Initialize structured logging
	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("Driftpad Server starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL
	logging.Info("connecting to PostgreSQL...")
	store, err := postgres.New(cfg.DatabaseURL)
	if err != nil {
		logging.Fatal("database connection failed", zap.Error(err))
	}
	defer store.Close()

	// Run migrations
	migrationsDir := findMigrationsDir()
	if migrationsDir != "" {
		logging.Info("running migrations...", zap.String("dir", migrationsDir))
		if err := store.Migrate(migrationsDir); err != nil {
			logging.Fatal("migration failed", zap.Error(err))
		}
	}

	// Initialize auth
	db := store.DB()
	authHandler := auth.New(db, cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err := authHandler.EnsureDefaultAdmin(ctx); err != nil {
		logging.Error("failed to ensure default admin", zap.Error(err))
	}

	// Initialize OIDC provider (optional)
	if cfg.OIDCIssuerURL != "" {
		oidcProvider, err := auth.NewOIDCProvider(ctx, auth.OIDCConfig{
			IssuerURL:    cfg.OIDCIssuerURL,
			ClientID:     cfg.OIDCClientID,
			ClientSecret: cfg.OIDCClientSecret,
		}, authHandler)
		if err != nil {
			logging.Fatal("OIDC provider init failed", zap.Error(err))
		}
		if oidcProvider != nil {
			authHandler.SetOIDCProvider(oidcProvider)
		}
	}

	// Initialize SSE broadcaster
	broadcaster := events.NewBroadcaster()
	logging.Info("SSE broadcaster initialized")

	// Initialize rate limiter
	limiter := ratelimit.New(db)
	logging.Info("rate limiter initialized",
		zap.Int("requests_per_minute", cfg.RequestsPerMinute))

	// Initialize asset storage backend
	assets, err := storage.NewBackend(ctx, cfg)
	if err != nil {
		logging.Fatal("storage backend init failed", zap.Error(err))
	}
	defer assets.Close()
	logging.Info("asset storage initialized", zap.String("backend", assets.Type()))

	// Initialize assistant proxy (optional)
	assistantSvc := buildAssistant(ctx, cfg, store)

	// Create API server
	srv := api.NewServer(store, authHandler, limiter, broadcaster, assistantSvc, assets, cfg)

	// Start metrics server
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metrics.Handler(),
	}
	go func() {
		logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logging.Error("metrics server error", zap.Error(err))
		}
	}()

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Handler(),
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down...")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
		metricsServer.Close()
	}()

	// Start periodic metrics update
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				store.UpdateConnectionMetrics()
			}
		}
	}()

	// Start periodic cleanup (rate limit windows + expired refresh tokens)
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := limiter.Cleanup(ctx); err != nil {
					logging.Error("rate limit cleanup failed", zap.Error(err))
				} else if n > 0 {
					logging.Debug("cleaned rate limit windows", zap.Int64("count", n))
				}
				if n, err := authHandler.CleanupExpiredTokens(ctx); err != nil {
					logging.Error("token cleanup failed", zap.Error(err))
				} else if n > 0 {
					logging.Info("cleaned expired refresh tokens", zap.Int64("count", n))
				}
			}
		}
	}()

	logging.Info("server listening", zap.String("addr", cfg.ListenAddr))
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		logging.Fatal("server error", zap.Error(err))
	}
}

// buildAssistant wires the configured AI provider, nil when disabled.
func buildAssistant(ctx context.Context, cfg *config.Config, store *postgres.Store) *assistant.Service {
	if cfg.AssistantProvider == "" {
		logging.Info("assistant disabled (no provider configured)")
		return nil
	}

	var provider assistant.Provider
	switch cfg.AssistantProvider {
	case "openai":
		provider = assistant.NewOpenAI(cfg.AssistantBaseURL, cfg.AssistantAPIKey, cfg.AssistantModel)
	case "gemini":
		p, err := assistant.NewGemini(ctx, cfg.AssistantAPIKey, cfg.AssistantModel)
		if err != nil {
			logging.Fatal("gemini provider init failed", zap.Error(err))
		}
		provider = p
	default:
		logging.Fatal("unknown assistant provider",
			zap.String("provider", cfg.AssistantProvider))
	}

	logging.Info("assistant initialized",
		zap.String("provider", provider.Name()),
		zap.String("model", provider.Model()))
	return assistant.New(provider, store.DB(), cfg.AssistantPerDay)
}

func findMigrationsDir() string {
	candidates := []string{
		"migrations",
		"../migrations",
	}

	exe, _ := os.Executable()
	if exe != "" {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), "migrations"))
	}

	for _, dir := range candidates {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
	}
	return ""
}
