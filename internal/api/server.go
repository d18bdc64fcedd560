// Package api provides the HTTP server and handlers.
package api

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/driftpad/driftpad/internal/assistant"
	"github.com/driftpad/driftpad/internal/auth"
	"github.com/driftpad/driftpad/internal/config"
	"github.com/driftpad/driftpad/internal/events"
	"github.com/driftpad/driftpad/internal/logging"
	"github.com/driftpad/driftpad/internal/metrics"
	"github.com/driftpad/driftpad/internal/ratelimit"
	"github.com/driftpad/driftpad/internal/storage"
	"github.com/driftpad/driftpad/internal/store/postgres"
	"github.com/driftpad/driftpad/pkg/cache"
	"github.com/driftpad/driftpad/pkg/protocol"
)

// Pool gzip writers to reduce allocations on tree responses.
var gzipPool = sync.Pool{
	New: func() any { return gzip.NewWriter(nil) },
}

// Server is the HTTP server.
type Server struct {
	store       *postgres.Store
	auth        *auth.Auth
	limiter     *ratelimit.Limiter
	broadcaster *events.Broadcaster
	assistant   *assistant.Service
	assets      storage.Backend
	config      *config.Config

	// limits caches per-user limit overrides so the rate limiter does not
	// hit the users table on every request.
	limits     *cache.TTL
	allowedExt map[string]bool
}

type userLimits struct {
	requestsPerMinute *int
	assistantPerDay   *int
}

// NewServer creates a new server. assistantSvc may be nil when no provider
// is configured.
func NewServer(
	store *postgres.Store,
	authHandler *auth.Auth,
	limiter *ratelimit.Limiter,
	broadcaster *events.Broadcaster,
	assistantSvc *assistant.Service,
	assets storage.Backend,
	cfg *config.Config,
) *Server {
	allowed := make(map[string]bool, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		allowed[strings.ToLower(ext)] = true
	}
	return &Server{
		store:       store,
		auth:        authHandler,
		limiter:     limiter,
		broadcaster: broadcaster,
		assistant:   assistantSvc,
		assets:      assets,
		config:      cfg,
		limits:      cache.New(30 * time.Second),
		allowedExt:  allowed,
	}
}

// userLimits returns the caller's per-user limit overrides, cached briefly.
// Lookup failures fall back to server defaults.
func (s *Server) userLimits(ctx context.Context, userID int) userLimits {
	key := strconv.Itoa(userID)
	if v, ok := s.limits.Get(key); ok {
		return v.(userLimits)
	}

	rpm, perDay, err := s.auth.UserLimits(ctx, userID)
	if err != nil {
		logging.Warn("failed to load user limits, using defaults",
			zap.Int("user_id", userID), zap.Error(err))
		return userLimits{}
	}
	ul := userLimits{requestsPerMinute: rpm, assistantPerDay: perDay}
	s.limits.Set(key, ul)
	return ul
}

// Handler returns the HTTP handler with auth, rate limit, logging and
// metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public endpoints (no auth required)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/v1/auth/token", s.auth.HandleLogin)
	mux.HandleFunc("POST /api/v1/auth/refresh", s.auth.HandleRefresh)
	mux.HandleFunc("DELETE /api/v1/auth/token", s.auth.HandleLogout)

	// Protected endpoints
	protected := http.NewServeMux()

	// Projects
	protected.HandleFunc("GET /api/v1/projects", s.handleListProjects)
	protected.HandleFunc("POST /api/v1/projects", s.handleCreateProject)
	protected.HandleFunc("DELETE /api/v1/projects/{projectID}", s.handleDeleteProject)

	// Files and tree
	protected.HandleFunc("GET /api/v1/projects/{projectID}/files", s.handleListFiles)
	protected.HandleFunc("GET /api/v1/projects/{projectID}/tree", s.handleTree)
	protected.HandleFunc("POST /api/v1/projects/{projectID}/files", s.handleCreateFile)
	protected.HandleFunc("GET /api/v1/files/{fileID}", s.handleGetFile)
	protected.HandleFunc("PUT /api/v1/files/{fileID}", s.handleUpdateFile)
	protected.HandleFunc("DELETE /api/v1/files/{fileID}", s.handleDeleteFile)

	// Binary assets
	protected.HandleFunc("PUT /api/v1/files/{fileID}/asset", s.handleUploadAsset)
	protected.HandleFunc("GET /api/v1/files/{fileID}/asset", s.handleDownloadAsset)

	// SSE
	protected.HandleFunc("GET /api/v1/projects/{projectID}/events", s.handleEvents)

	// Assistant
	protected.HandleFunc("POST /api/v1/assistant/chat", s.handleAssistant)
	protected.HandleFunc("GET /api/v1/assistant/usage", s.handleAssistantUsage)

	// Admin user management
	protected.HandleFunc("GET /api/v1/admin/users", s.handleListUsers)
	protected.HandleFunc("POST /api/v1/admin/users", s.handleCreateUser)
	protected.HandleFunc("DELETE /api/v1/admin/users/{userID}", s.handleDeleteUser)
	protected.HandleFunc("PUT /api/v1/admin/users/{userID}/password", s.handleChangePassword)
	protected.HandleFunc("PUT /api/v1/admin/limits/{userID}", s.handleSetLimits)

	// Wrap protected routes with auth then rate limiter.
	// Use OIDC-aware middleware if OIDC is configured.
	var authed http.Handler
	if s.auth.HasOIDC() {
		authed = s.auth.MiddlewareWithOIDC(protected)
	} else {
		authed = s.auth.Middleware(protected)
	}
	getUserInfo := func(ctx context.Context) (int, int, bool) {
		claims := auth.GetClaims(ctx)
		if claims == nil {
			return 0, 0, false
		}
		rpm := s.config.RequestsPerMinute
		if ul := s.userLimits(ctx, claims.UserID); ul.requestsPerMinute != nil {
			rpm = *ul.requestsPerMinute
		}
		return claims.UserID, rpm, true
	}
	rateLimited := ratelimit.Middleware(s.limiter, getUserInfo)(authed)
	mux.Handle("/api/v1/", rateLimited)

	// Apply logging and metrics middleware
	return metrics.Middleware(logging.Middleware(mux))
}

// ─── Health ─────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok", "version": "1.0"})
}

// ─── SSE Events ─────────────────────────────────────────────────────────────

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	projectID := r.PathValue("projectID")
	if _, ok := s.ownedProject(w, r, projectID); !ok {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := s.broadcaster.Subscribe(projectID)
	defer s.broadcaster.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			data, err := events.MarshalEvent(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		}
	}
}

// publishEvent publishes a file event to the broadcaster if available.
func (s *Server) publishEvent(eventType, projectID, fileID, path string) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.Publish(protocol.FileEvent{
		Type:      eventType,
		ProjectID: projectID,
		FileID:    fileID,
		Path:      path,
	})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func acceptsGzip(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept-Encoding"), "gzip")
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(protocol.ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// sendErr maps a typed error from the store or validation onto the wire
// error taxonomy.
func (s *Server) sendErr(w http.ResponseWriter, err error) {
	code, kind := statusForError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(protocol.ErrorResponse{
		Error: err.Error(),
		Code:  code,
		Kind:  kind,
	})
}

func statusForError(err error) (int, string) {
	var notFound *protocol.NotFoundError
	var validation *protocol.ValidationError
	var persistence *protocol.PersistenceError
	var fetch *protocol.FetchError
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound, protocol.KindNotFound
	case errors.As(err, &validation):
		return http.StatusBadRequest, protocol.KindValidation
	case errors.As(err, &persistence):
		return http.StatusInternalServerError, protocol.KindPersistence
	case errors.As(err, &fetch):
		return http.StatusBadGateway, protocol.KindFetch
	case errors.Is(err, assistant.ErrDailyLimit):
		return http.StatusTooManyRequests, ""
	default:
		return http.StatusInternalServerError, ""
	}
}
