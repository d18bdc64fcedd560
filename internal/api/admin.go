package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/driftpad/driftpad/internal/auth"
	"github.com/driftpad/driftpad/internal/logging"
	"github.com/driftpad/driftpad/pkg/protocol"
)

// requireAdmin checks the caller's admin flag, writing 403 on failure.
func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	claims := auth.GetClaims(r.Context())
	if claims == nil || !claims.IsAdmin {
		s.sendError(w, http.StatusForbidden, "admin access required")
		return false
	}
	return true
}

func (s *Server) pathUserID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("userID"))
	if err != nil || id <= 0 {
		s.sendErr(w, &protocol.ValidationError{Field: "user_id", Reason: "must be a positive integer"})
		return 0, false
	}
	return id, true
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	users, err := s.auth.ListUsers(r.Context())
	if err != nil {
		s.sendErr(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}

	var req protocol.CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" {
		s.sendErr(w, &protocol.ValidationError{Field: "username", Reason: "username required"})
		return
	}
	if len(req.Password) < 4 {
		s.sendErr(w, &protocol.ValidationError{Field: "password", Reason: "password too short"})
		return
	}

	if err := s.auth.CreateUser(r.Context(), req.Username, req.Password, req.IsAdmin); err != nil {
		s.sendErr(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	userID, ok := s.pathUserID(w, r)
	if !ok {
		return
	}

	claims := auth.GetClaims(r.Context())
	if claims.UserID == userID {
		s.sendErr(w, &protocol.ValidationError{Field: "user_id", Reason: "cannot delete yourself"})
		return
	}

	if err := s.auth.DeleteUser(r.Context(), userID); err != nil {
		s.sendErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	userID, ok := s.pathUserID(w, r)
	if !ok {
		return
	}

	var req protocol.ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Password) < 4 {
		s.sendErr(w, &protocol.ValidationError{Field: "password", Reason: "password too short"})
		return
	}

	if err := s.auth.ChangePassword(r.Context(), userID, req.Password); err != nil {
		s.sendErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetLimits(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	userID, ok := s.pathUserID(w, r)
	if !ok {
		return
	}

	var req protocol.LimitsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rpm := optionalLimit(req.RequestsPerMinute)
	apd := optionalLimit(req.AssistantPerDay)
	if err := s.auth.SetUserLimits(r.Context(), userID, rpm, apd); err != nil {
		s.sendErr(w, err)
		return
	}
	s.limits.Delete(strconv.Itoa(userID))

	logging.Info("user limits updated",
		zap.Int("user_id", userID),
		zap.Int("requests_per_minute", req.RequestsPerMinute),
		zap.Int("assistant_per_day", req.AssistantPerDay))
	w.WriteHeader(http.StatusNoContent)
}

// optionalLimit maps non-positive values to nil so the server default applies.
func optionalLimit(v int) *int {
	if v <= 0 {
		return nil
	}
	return &v
}

// ─── Assistant ───────────────────────────────────────────────────────────────

func (s *Server) handleAssistant(w http.ResponseWriter, r *http.Request) {
	if s.assistant == nil || !s.assistant.Enabled() {
		s.sendError(w, http.StatusServiceUnavailable, "assistant not configured")
		return
	}

	var req protocol.AssistantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	claims := auth.GetClaims(r.Context())
	perDay := s.userLimits(r.Context(), claims.UserID).assistantPerDay

	resp, err := s.assistant.Ask(r.Context(), claims.UserID, &req, perDay)
	if err != nil {
		s.sendErr(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAssistantUsage(w http.ResponseWriter, r *http.Request) {
	if s.assistant == nil {
		s.sendError(w, http.StatusServiceUnavailable, "assistant not configured")
		return
	}

	claims := auth.GetClaims(r.Context())
	used, err := s.assistant.UsageToday(r.Context(), claims.UserID)
	if err != nil {
		s.sendErr(w, err)
		return
	}

	limit := s.config.AssistantPerDay
	if perDay := s.userLimits(r.Context(), claims.UserID).assistantPerDay; perDay != nil {
		limit = *perDay
	}

	s.sendJSON(w, http.StatusOK, protocol.AssistantUsageResponse{
		Used:  used,
		Limit: limit,
	})
}
