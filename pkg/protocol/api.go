// Package protocol defines the API request/response types.
package protocol

import (
	"time"

	"github.com/driftpad/driftpad/pkg/models"
)

// ErrorResponse is returned on API errors. Kind carries the error taxonomy
// name ("not_found", "validation", "persistence", "fetch") so clients can
// map responses back to typed errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Kind    string `json:"kind,omitempty"`
	Details string `json:"details,omitempty"`
}

// LoginRequest is the body for POST /api/v1/auth/token.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenPairResponse is returned by login and refresh.
type TokenPairResponse struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	User             UserInfo  `json:"user"`
}

// UserInfo describes the authenticated user.
type UserInfo struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
}

// RefreshRequest is the body for POST /api/v1/auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// LogoutRequest is the body for DELETE /api/v1/auth/token.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// CreateProjectRequest is the body for POST /api/v1/projects.
type CreateProjectRequest struct {
	Name string `json:"name"`
}

// ProjectListResponse is returned by GET /api/v1/projects.
type ProjectListResponse struct {
	Projects []models.Project `json:"projects"`
}

// FileListResponse is the flat record list for a project.
type FileListResponse struct {
	Files []models.Record `json:"files"`
}

// TreeResponse is the reassembled hierarchy for a project.
type TreeResponse struct {
	Roots []*models.Node `json:"roots"`
}

// CreateFileRequest is the body for POST /api/v1/projects/{id}/files.
type CreateFileRequest struct {
	Name     string            `json:"name"`
	Type     models.RecordType `json:"type"`
	ParentID string            `json:"parent_id,omitempty"`
	Content  string            `json:"content,omitempty"`
}

// UpdateFileRequest is the body for PUT /api/v1/files/{id}.
// Nil fields are left unchanged.
type UpdateFileRequest struct {
	Name    *string `json:"name,omitempty"`
	Content *string `json:"content,omitempty"`
}

// AssistantRequest is the body for POST /api/v1/assistant/chat.
type AssistantRequest struct {
	Action   string `json:"action"` // chat, explain, refactor, fix, generate
	Message  string `json:"message"`
	Code     string `json:"code,omitempty"`
	Language string `json:"language,omitempty"`
}

// AssistantResponse is the assistant's reply.
type AssistantResponse struct {
	Reply    string `json:"reply"`
	Model    string `json:"model"`
	Provider string `json:"provider"`
}

// FileEvent is the SSE payload for project file changes.
type FileEvent struct {
	Type      string `json:"type"` // create, update, rename, delete
	ProjectID string `json:"project_id"`
	FileID    string `json:"file_id"`
	Path      string `json:"path"`
	Timestamp int64  `json:"timestamp"`
}

// AssetResponse is returned after an asset upload.
type AssetResponse struct {
	Key  string `json:"key"`
	Size int64  `json:"size"`
	URL  string `json:"url"`
}

// LimitsRequest is the admin body for PUT /api/v1/admin/limits/{userID}.
// Zero or negative values clear the per-user override so the server
// default applies again.
type LimitsRequest struct {
	RequestsPerMinute int `json:"requests_per_minute"`
	AssistantPerDay   int `json:"assistant_per_day"`
}

// CreateUserRequest is the admin body for POST /api/v1/admin/users.
type CreateUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	IsAdmin  bool   `json:"is_admin"`
}

// ChangePasswordRequest is the admin body for
// PUT /api/v1/admin/users/{userID}/password.
type ChangePasswordRequest struct {
	Password string `json:"password"`
}

// AssistantUsageResponse reports today's assistant request count for the
// caller along with the applicable daily limit.
type AssistantUsageResponse struct {
	Used  int `json:"used"`
	Limit int `json:"limit"`
}
