// Package auth provides JWT-based authentication with refresh token rotation.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/driftpad/driftpad/internal/logging"
	"github.com/driftpad/driftpad/internal/metrics"
	"github.com/driftpad/driftpad/pkg/protocol"
)

type contextKey string

const (
	userContextKey contextKey = "user"
)

// Claims holds JWT access token claims.
type Claims struct {
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// Auth handles authentication. Access tokens are short-lived JWTs; sessions
// are kept alive by opaque refresh tokens stored hashed in the database and
// rotated on every refresh.
type Auth struct {
	db         *sql.DB
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	oidc       *OIDCProvider
}

// New creates a new Auth handler.
func New(db *sql.DB, jwtSecret string, accessTTL, refreshTTL time.Duration) *Auth {
	return &Auth{
		db:         db,
		secret:     []byte(jwtSecret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// Middleware returns HTTP middleware that validates access tokens.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := extractToken(r)
		if tokenStr == "" {
			metrics.RecordAuthAttempt(false)
			sendAuthError(w, http.StatusUnauthorized, "missing authentication token")
			return
		}

		claims, err := a.validateToken(tokenStr)
		if err != nil {
			metrics.RecordAuthAttempt(false)
			sendAuthError(w, http.StatusUnauthorized, "invalid token: "+err.Error())
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClaims extracts claims from the request context.
func GetClaims(ctx context.Context) *Claims {
	claims, _ := ctx.Value(userContextKey).(*Claims)
	return claims
}

// WithClaims injects claims into a context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, userContextKey, claims)
}

// HandleLogin handles POST /api/v1/auth/token
func (a *Auth) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req protocol.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.RecordAuthAttempt(false)
		sendAuthError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Username == "" || req.Password == "" {
		metrics.RecordAuthAttempt(false)
		sendAuthError(w, http.StatusBadRequest, "username and password required")
		return
	}

	var userID int
	var hashedPassword string
	var isAdmin bool
	err := a.db.QueryRowContext(r.Context(),
		`SELECT id, password, is_admin FROM users WHERE username = $1`,
		req.Username).Scan(&userID, &hashedPassword, &isAdmin)
	if err == sql.ErrNoRows {
		metrics.RecordAuthAttempt(false)
		logging.Warn("login failed: unknown user", zap.String("username", req.Username))
		sendAuthError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		metrics.RecordAuthAttempt(false)
		logging.Error("login database error", zap.Error(err))
		sendAuthError(w, http.StatusInternalServerError, "database error")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(req.Password)); err != nil {
		metrics.RecordAuthAttempt(false)
		logging.Warn("login failed: invalid password", zap.String("username", req.Username))
		sendAuthError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	pair, err := a.issueTokenPair(r.Context(), userID, req.Username, isAdmin)
	if err != nil {
		metrics.RecordAuthAttempt(false)
		logging.Error("failed to issue tokens", zap.Error(err))
		sendAuthError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	metrics.RecordAuthAttempt(true)
	logging.Info("login successful", zap.String("username", req.Username))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pair)
}

// HandleRefresh handles POST /api/v1/auth/refresh
// The presented refresh token is consumed and a fresh pair is returned.
func (a *Auth) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req protocol.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		sendAuthError(w, http.StatusBadRequest, "refresh_token required")
		return
	}

	ctx := r.Context()
	h := hashToken(req.RefreshToken)

	var userID int
	var expiresAt time.Time
	var revoked bool
	err := a.db.QueryRowContext(ctx,
		`SELECT user_id, expires_at, revoked FROM refresh_tokens WHERE token_hash = $1`,
		h).Scan(&userID, &expiresAt, &revoked)
	if err == sql.ErrNoRows {
		metrics.RecordAuthAttempt(false)
		sendAuthError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	if err != nil {
		logging.Error("refresh lookup failed", zap.Error(err))
		sendAuthError(w, http.StatusInternalServerError, "database error")
		return
	}
	if revoked || time.Now().After(expiresAt) {
		metrics.RecordAuthAttempt(false)
		sendAuthError(w, http.StatusUnauthorized, "refresh token expired or revoked")
		return
	}

	var username string
	var isAdmin bool
	err = a.db.QueryRowContext(ctx,
		`SELECT username, is_admin FROM users WHERE id = $1`, userID).Scan(&username, &isAdmin)
	if err != nil {
		sendAuthError(w, http.StatusUnauthorized, "user not found")
		return
	}

	// Rotate: consume the old token before issuing the new pair.
	if _, err := a.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE WHERE token_hash = $1`, h); err != nil {
		logging.Error("refresh rotation failed", zap.Error(err))
		sendAuthError(w, http.StatusInternalServerError, "database error")
		return
	}

	pair, err := a.issueTokenPair(ctx, userID, username, isAdmin)
	if err != nil {
		logging.Error("failed to issue tokens", zap.Error(err))
		sendAuthError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	metrics.RecordAuthAttempt(true)
	logging.Debug("token refreshed", zap.Int("user_id", userID))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pair)
}

// HandleLogout handles DELETE /api/v1/auth/token
func (a *Auth) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var req protocol.LogoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		sendAuthError(w, http.StatusBadRequest, "refresh_token required")
		return
	}

	h := hashToken(req.RefreshToken)
	if _, err := a.db.ExecContext(r.Context(),
		`UPDATE refresh_tokens SET revoked = TRUE WHERE token_hash = $1`, h); err != nil {
		logging.Error("logout failed", zap.Error(err))
		sendAuthError(w, http.StatusInternalServerError, "database error")
		return
	}

	a.updateActiveTokenCount(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (a *Auth) issueTokenPair(ctx context.Context, userID int, username string, isAdmin bool) (*protocol.TokenPairResponse, error) {
	accessToken, accessExp, err := a.issueAccessToken(userID, username, isAdmin)
	if err != nil {
		return nil, err
	}

	refreshToken, refreshExp, err := a.newRefreshToken(ctx, userID)
	if err != nil {
		return nil, err
	}

	a.updateActiveTokenCount(ctx)

	return &protocol.TokenPairResponse{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExp,
		User: protocol.UserInfo{
			ID:       userID,
			Username: username,
			IsAdmin:  isAdmin,
		},
	}, nil
}

func (a *Auth) issueAccessToken(userID int, username string, isAdmin bool) (string, time.Time, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   userID,
		Username: username,
		IsAdmin:  isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(a.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "driftpad",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return tokenStr, claims.ExpiresAt.Time, nil
}

func (a *Auth) newRefreshToken(ctx context.Context, userID int) (string, time.Time, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", time.Time{}, fmt.Errorf("generate refresh token: %w", err)
	}
	tokenStr := hex.EncodeToString(raw)
	expiresAt := time.Now().Add(a.refreshTTL)

	_, err := a.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES ($1, $2, $3)`,
		userID, hashToken(tokenStr), expiresAt)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("store refresh token: %w", err)
	}
	return tokenStr, expiresAt, nil
}

func (a *Auth) validateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})

	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

func (a *Auth) updateActiveTokenCount(ctx context.Context) {
	var count int64
	err := a.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM refresh_tokens WHERE revoked = FALSE AND expires_at > NOW()`).Scan(&count)
	if err == nil {
		metrics.SetActiveRefreshTokens(count)
	}
}

// CleanupExpiredTokens deletes refresh tokens past their expiry.
func (a *Auth) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	result, err := a.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at < NOW() OR revoked = TRUE`)
	if err != nil {
		return 0, fmt.Errorf("cleanup refresh tokens: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows > 0 {
		logging.Debug("cleaned up refresh tokens", zap.Int64("rows", rows))
	}
	a.updateActiveTokenCount(ctx)
	return rows, nil
}

func extractToken(r *http.Request) string {
	// Bearer token from Authorization header
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	// Query parameter fallback, used by the SSE stream
	return r.URL.Query().Get("token")
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

func sendAuthError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(protocol.ErrorResponse{
		Error: message,
		Code:  code,
	})
}
