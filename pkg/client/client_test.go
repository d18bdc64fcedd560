package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/driftpad/driftpad/pkg/models"
	"github.com/driftpad/driftpad/pkg/protocol"
	"github.com/driftpad/driftpad/pkg/retry"
)

func testClient(url string) *Client {
	return New(Config{
		BaseURL: url,
		Timeout: 2 * time.Second,
		RetryConfig: retry.Config{
			MaxAttempts: 3,
			InitialWait: time.Millisecond,
			MaxWait:     5 * time.Millisecond,
			Multiplier:  2.0,
		},
	})
}

func TestLoginStoresTokensAndSendsBearer(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/token":
			json.NewEncoder(w).Encode(protocol.TokenPairResponse{
				AccessToken:  "access-1",
				RefreshToken: "refresh-1",
			})
		case "/api/v1/projects":
			gotAuth = r.Header.Get("Authorization")
			json.NewEncoder(w).Encode(protocol.ProjectListResponse{})
		}
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	if _, err := c.Login(context.Background(), "alice", "secret"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := c.Projects(context.Background()); err != nil {
		t.Fatalf("Projects: %v", err)
	}
	if gotAuth != "Bearer access-1" {
		t.Errorf("Authorization = %q, want Bearer access-1", gotAuth)
	}
}

func TestRefreshRotatesTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req protocol.RefreshRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.RefreshToken != "refresh-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(protocol.TokenPairResponse{
			AccessToken:  "access-2",
			RefreshToken: "refresh-2",
		})
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	c.SetTokens("access-1", "refresh-1")
	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if c.AccessToken() != "access-2" {
		t.Errorf("access token = %q, want access-2", c.AccessToken())
	}
	if c.currentRefreshToken() != "refresh-2" {
		t.Error("refresh token was not rotated")
	}
}

func TestGetFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/files/abc" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(models.RecordContent{
			Record:  models.Record{ID: "abc", Name: "main.go", Type: models.TypeFile},
			Content: "package main",
		})
	}))
	defer srv.Close()

	rc, err := testClient(srv.URL).GetFile(context.Background(), "abc")
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if rc.Content != "package main" || rc.Name != "main.go" {
		t.Errorf("rc = %+v", rc)
	}
}

func TestErrorMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/files/missing":
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(protocol.ErrorResponse{
				Error: "file not found", Code: 404, Kind: protocol.KindNotFound,
			})
		case "/api/v1/projects/p1/files":
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(protocol.ErrorResponse{
				Error: "extension not allowed", Code: 400, Kind: protocol.KindValidation,
			})
		case "/api/v1/files/f1":
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(protocol.ErrorResponse{
				Error: "update file: disk full", Code: 500, Kind: protocol.KindPersistence,
			})
		case "/api/v1/files/f2":
			w.WriteHeader(http.StatusBadGateway)
			json.NewEncoder(w).Encode(protocol.ErrorResponse{
				Error: "asset backend unreachable", Code: 502, Kind: protocol.KindFetch,
			})
		}
	}))
	defer srv.Close()

	c := testClient(srv.URL)

	_, err := c.GetFile(context.Background(), "missing")
	var nf *protocol.NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("err = %v, want NotFoundError", err)
	}

	_, err = c.CreateFile(context.Background(), "p1", protocol.CreateFileRequest{Name: "x.exe"})
	var ve *protocol.ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("err = %v, want ValidationError", err)
	}

	content := "x"
	_, err = c.UpdateFile(context.Background(), "f1", protocol.UpdateFileRequest{Content: &content})
	var pe *protocol.PersistenceError
	if !errors.As(err, &pe) {
		t.Errorf("err = %v, want PersistenceError", err)
	}

	_, err = c.GetFile(context.Background(), "f2")
	var fe *protocol.FetchError
	if !errors.As(err, &fe) {
		t.Errorf("err = %v, want FetchError", err)
	}
}

func TestGetRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(protocol.FileListResponse{
			Files: []models.Record{{ID: "1", Name: "a.go"}},
		})
	}))
	defer srv.Close()

	files, err := testClient(srv.URL).ListFiles(context.Background(), "p1")
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 1 {
		t.Errorf("files = %v, want one record", files)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestWritesAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	content := "x"
	_, err := testClient(srv.URL).UpdateFile(context.Background(), "f1",
		protocol.UpdateFileRequest{Content: &content})
	if err == nil {
		t.Fatal("expected error from failed update")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (writes must not auto-retry)", calls.Load())
	}
}
