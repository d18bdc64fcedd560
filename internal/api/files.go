package api

import (
	"compress/gzip"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/driftpad/driftpad/internal/auth"
	"github.com/driftpad/driftpad/internal/events"
	"github.com/driftpad/driftpad/internal/logging"
	"github.com/driftpad/driftpad/pkg/models"
	"github.com/driftpad/driftpad/pkg/protocol"
)

// ─── Projects ────────────────────────────────────────────────────────────────

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetClaims(r.Context())
	projects, err := s.store.ListProjects(r.Context(), claims.UserID)
	if err != nil {
		s.sendErr(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, protocol.ProjectListResponse{Projects: projects})
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetClaims(r.Context())

	var req protocol.CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateName(req.Name); err != nil {
		s.sendErr(w, err)
		return
	}

	project, err := s.store.CreateProject(r.Context(), claims.UserID, req.Name)
	if err != nil {
		s.sendErr(w, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, project)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("projectID")
	if _, ok := s.ownedProject(w, r, projectID); !ok {
		return
	}

	if err := s.store.DeleteProject(r.Context(), projectID); err != nil {
		s.sendErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ownedProject loads the project and checks the caller owns it (admins may
// access any project). Writes the error response itself on failure.
func (s *Server) ownedProject(w http.ResponseWriter, r *http.Request, projectID string) (*models.Project, bool) {
	claims := auth.GetClaims(r.Context())
	project, err := s.store.GetProject(r.Context(), projectID)
	if err != nil {
		s.sendErr(w, err)
		return nil, false
	}
	if project.OwnerID != claims.UserID && !claims.IsAdmin {
		s.sendError(w, http.StatusForbidden, "access denied")
		return nil, false
	}
	return project, true
}

// ownedFile loads a record and checks the caller owns its project.
func (s *Server) ownedFile(w http.ResponseWriter, r *http.Request, fileID string) (*models.Record, bool) {
	record, err := s.store.GetRecord(r.Context(), fileID)
	if err != nil {
		s.sendErr(w, err)
		return nil, false
	}
	if _, ok := s.ownedProject(w, r, record.ProjectID); !ok {
		return nil, false
	}
	return record, true
}

// ─── Files ───────────────────────────────────────────────────────────────────

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("projectID")
	if _, ok := s.ownedProject(w, r, projectID); !ok {
		return
	}

	files, err := s.store.ListRecords(r.Context(), projectID)
	if err != nil {
		s.sendErr(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, protocol.FileListResponse{Files: files})
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("projectID")
	if _, ok := s.ownedProject(w, r, projectID); !ok {
		return
	}

	roots, err := s.store.BuildTree(r.Context(), projectID)
	if err != nil {
		s.sendErr(w, err)
		return
	}
	resp := protocol.TreeResponse{Roots: roots}

	if acceptsGzip(r) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Encoding", "gzip")
		gw := gzipPool.Get().(*gzip.Writer)
		gw.Reset(w)
		json.NewEncoder(gw).Encode(resp)
		gw.Close()
		gzipPool.Put(gw)
		return
	}

	s.sendJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateFile(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("projectID")
	if _, ok := s.ownedProject(w, r, projectID); !ok {
		return
	}

	var req protocol.CreateFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validateCreate(&req); err != nil {
		s.sendErr(w, err)
		return
	}

	extension := ""
	if req.Type == models.TypeFile {
		extension = extensionOf(req.Name)
	}

	record, err := s.store.CreateRecord(r.Context(), projectID,
		req.Name, req.Type, req.ParentID, extension, req.Content)
	if err != nil {
		s.sendErr(w, err)
		return
	}

	s.publishEvent(events.EventCreate, projectID, record.ID, record.Path)
	s.sendJSON(w, http.StatusCreated, record)
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	fileID := r.PathValue("fileID")
	if _, ok := s.ownedFile(w, r, fileID); !ok {
		return
	}

	rc, err := s.store.GetRecordContent(r.Context(), fileID)
	if err != nil {
		s.sendErr(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, rc)
}

func (s *Server) handleUpdateFile(w http.ResponseWriter, r *http.Request) {
	fileID := r.PathValue("fileID")
	record, ok := s.ownedFile(w, r, fileID)
	if !ok {
		return
	}

	var req protocol.UpdateFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == nil && req.Content == nil {
		s.sendErr(w, &protocol.ValidationError{Field: "body", Reason: "name or content required"})
		return
	}

	if req.Content != nil {
		if record.IsFolder() {
			s.sendErr(w, &protocol.ValidationError{Field: "content", Reason: "folders have no content"})
			return
		}
		if int64(len(*req.Content)) > s.config.MaxFileSize {
			s.sendErr(w, &protocol.ValidationError{Field: "content", Reason: "file too large"})
			return
		}
		updated, err := s.store.UpdateContent(r.Context(), fileID, *req.Content)
		if err != nil {
			s.sendErr(w, err)
			return
		}
		record = updated
	}

	if req.Name != nil {
		if err := validateName(*req.Name); err != nil {
			s.sendErr(w, err)
			return
		}
		updated, err := s.store.RenameRecord(r.Context(), fileID, *req.Name)
		if err != nil {
			s.sendErr(w, err)
			return
		}
		record = updated
		s.publishEvent(events.EventRename, record.ProjectID, record.ID, record.Path)
	} else {
		s.publishEvent(events.EventUpdate, record.ProjectID, record.ID, record.Path)
	}

	s.sendJSON(w, http.StatusOK, record)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	fileID := r.PathValue("fileID")
	record, ok := s.ownedFile(w, r, fileID)
	if !ok {
		return
	}

	deleted, err := s.store.DeleteRecord(r.Context(), fileID)
	if err != nil {
		s.sendErr(w, err)
		return
	}

	logging.Info("deleted records",
		zap.String("file_id", fileID),
		zap.Int("count", len(deleted)))
	s.publishEvent(events.EventDelete, record.ProjectID, record.ID, record.Path)
	w.WriteHeader(http.StatusNoContent)
}

// ─── Validation ──────────────────────────────────────────────────────────────

func validateName(name string) error {
	if name == "" {
		return &protocol.ValidationError{Field: "name", Reason: "name required"}
	}
	if len(name) > 255 {
		return &protocol.ValidationError{Field: "name", Reason: "name too long"}
	}
	if strings.ContainsAny(name, "/\\") {
		return &protocol.ValidationError{Field: "name", Reason: "name must not contain path separators"}
	}
	if name == "." || name == ".." {
		return &protocol.ValidationError{Field: "name", Reason: "invalid name"}
	}
	return nil
}

func (s *Server) validateCreate(req *protocol.CreateFileRequest) error {
	if err := validateName(req.Name); err != nil {
		return err
	}
	switch req.Type {
	case models.TypeFile, models.TypeFolder:
	default:
		return &protocol.ValidationError{Field: "type", Reason: "type must be file or folder"}
	}
	if req.Type == models.TypeFolder && req.Content != "" {
		return &protocol.ValidationError{Field: "content", Reason: "folders have no content"}
	}
	if req.Type == models.TypeFile {
		if int64(len(req.Content)) > s.config.MaxFileSize {
			return &protocol.ValidationError{Field: "content", Reason: "file too large"}
		}
		if ext := extensionOf(req.Name); ext != "" && !s.allowedExt[ext] {
			return &protocol.ValidationError{Field: "name", Reason: "extension not allowed: " + ext}
		}
	}
	return nil
}

// extensionOf returns the lowercased extension without the leading dot,
// empty for dotless names.
func extensionOf(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx < 0 || idx == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[idx+1:])
}
