package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/driftpad/driftpad/internal/logging"
	"github.com/driftpad/driftpad/internal/metrics"
	"github.com/driftpad/driftpad/pkg/protocol"
)

// handleUploadAsset stores a binary blob for a file record on the configured
// storage backend. The request body is the raw asset bytes.
func (s *Server) handleUploadAsset(w http.ResponseWriter, r *http.Request) {
	if s.assets == nil {
		s.sendError(w, http.StatusServiceUnavailable, "asset storage not configured")
		return
	}

	fileID := r.PathValue("fileID")
	record, ok := s.ownedFile(w, r, fileID)
	if !ok {
		return
	}
	if record.IsFolder() {
		s.sendErr(w, &protocol.ValidationError{Field: "file_id", Reason: "folders cannot hold assets"})
		return
	}

	if r.ContentLength > s.config.MaxAssetSize {
		s.sendErr(w, &protocol.ValidationError{Field: "body", Reason: "asset too large"})
		return
	}

	body := http.MaxBytesReader(w, r.Body, s.config.MaxAssetSize)
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.sendErr(w, &protocol.ValidationError{Field: "body", Reason: "asset too large"})
			return
		}
		s.sendError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	key := fmt.Sprintf("%s/%s", record.ProjectID, record.ID)
	if err := s.assets.PutObject(r.Context(), key, bytes.NewReader(data), int64(len(data))); err != nil {
		s.sendErr(w, &protocol.PersistenceError{Op: "store asset", ID: fileID, Err: err})
		return
	}
	if err := s.store.SetAssetKey(r.Context(), fileID, key, int64(len(data))); err != nil {
		s.sendErr(w, err)
		return
	}

	metrics.RecordAssetTransfer("upload", int64(len(data)))
	logging.Info("asset uploaded",
		zap.String("file_id", fileID),
		zap.String("key", key),
		zap.Int("size", len(data)))

	s.sendJSON(w, http.StatusOK, protocol.AssetResponse{
		Key:  key,
		Size: int64(len(data)),
		URL:  fmt.Sprintf("/api/v1/files/%s/asset", fileID),
	})
}

// handleDownloadAsset streams a stored asset back to the caller. A Range
// header with a single bytes range is honored.
func (s *Server) handleDownloadAsset(w http.ResponseWriter, r *http.Request) {
	if s.assets == nil {
		s.sendError(w, http.StatusServiceUnavailable, "asset storage not configured")
		return
	}

	fileID := r.PathValue("fileID")
	if _, ok := s.ownedFile(w, r, fileID); !ok {
		return
	}

	key, err := s.store.GetAssetKey(r.Context(), fileID)
	if err != nil {
		s.sendErr(w, err)
		return
	}

	offset, length := parseRange(r.Header.Get("Range"))
	reader, size, err := s.assets.GetObject(r.Context(), key, offset, length)
	if err != nil {
		s.sendErr(w, &protocol.FetchError{FileID: fileID, Err: err})
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	if offset > 0 || length > 0 {
		w.WriteHeader(http.StatusPartialContent)
	}

	n, err := io.Copy(w, reader)
	if err != nil {
		logging.Warn("asset stream interrupted",
			zap.String("file_id", fileID),
			zap.Error(err))
	}
	metrics.RecordAssetTransfer("download", n)
}

// parseRange parses a single "bytes=start-end" range header. Returns
// offset and length; zero length means "to the end".
func parseRange(header string) (int64, int64) {
	if !strings.HasPrefix(header, "bytes=") {
		return 0, 0
	}
	spec := strings.TrimPrefix(header, "bytes=")
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	start, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || start < 0 {
		return 0, 0
	}
	if parts[1] == "" {
		return start, 0
	}
	end, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || end < start {
		return start, 0
	}
	return start, end - start + 1
}
