// Package client provides the HTTP API client used by editor frontends and
// the driftctl CLI. It handles auth token pairs, transport retries for
// idempotent reads, and mapping API errors back to the shared taxonomy.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/driftpad/driftpad/pkg/models"
	"github.com/driftpad/driftpad/pkg/protocol"
	"github.com/driftpad/driftpad/pkg/retry"
)

// Client is the Driftpad API client.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	retryConfig retry.Config

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
}

// Config holds client configuration.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	RetryConfig retry.Config
}

// New creates a new client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = retry.DefaultConfig()
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		retryConfig: cfg.RetryConfig,
	}
}

// SetTokens sets the access/refresh token pair for subsequent requests.
func (c *Client) SetTokens(access, refresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = access
	c.refreshToken = refresh
}

// AccessToken returns the current access token.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

func (c *Client) currentRefreshToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refreshToken
}

func (c *Client) applyAuth(req *http.Request) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}
}

// Ping checks if the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return nil
}

// doJSON issues a JSON request and decodes the JSON response into out.
// GET requests are retried on transport failures and 5xx; writes are issued
// exactly once so a failed save stays failed until the user retries.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	call := func() error {
		var reader io.Reader
		if body != nil {
			data, err := json.Marshal(body)
			if err != nil {
				return err
			}
			reader = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		c.applyAuth(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if method == http.MethodGet {
				return retry.Retryable(err)
			}
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			apiErr := decodeError(resp)
			if method == http.MethodGet && resp.StatusCode >= 500 {
				return retry.Retryable(apiErr)
			}
			return apiErr
		}

		if out == nil {
			io.Copy(io.Discard, resp.Body)
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	}

	if method == http.MethodGet {
		return retry.Do(ctx, c.retryConfig, call)
	}
	return call()
}

// decodeError maps an error response body to a typed taxonomy error.
func decodeError(resp *http.Response) error {
	var er protocol.ErrorResponse
	json.NewDecoder(resp.Body).Decode(&er)
	msg := er.Error
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	kind := er.Kind
	if kind == "" {
		switch {
		case resp.StatusCode == http.StatusNotFound:
			kind = protocol.KindNotFound
		case resp.StatusCode == http.StatusBadRequest:
			kind = protocol.KindValidation
		}
	}

	switch kind {
	case protocol.KindNotFound:
		return &protocol.NotFoundError{Resource: "resource", ID: msg}
	case protocol.KindValidation:
		return &protocol.ValidationError{Field: "request", Reason: msg}
	case protocol.KindPersistence:
		return &protocol.PersistenceError{Op: "persist", ID: "record", Err: errors.New(msg)}
	case protocol.KindFetch:
		return &protocol.FetchError{FileID: "record", Err: errors.New(msg)}
	default:
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, msg)
	}
}

// Projects returns the caller's projects.
func (c *Client) Projects(ctx context.Context) ([]models.Project, error) {
	var resp protocol.ProjectListResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/projects", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Projects, nil
}

// CreateProject creates a project.
func (c *Client) CreateProject(ctx context.Context, name string) (*models.Project, error) {
	var project models.Project
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/projects",
		protocol.CreateProjectRequest{Name: name}, &project)
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// DeleteProject deletes a project and all its records.
func (c *Client) DeleteProject(ctx context.Context, projectID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/v1/projects/"+projectID, nil, nil)
}

// ListFiles returns a project's flat record list.
func (c *Client) ListFiles(ctx context.Context, projectID string) ([]models.Record, error) {
	var resp protocol.FileListResponse
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/projects/"+projectID+"/files", nil, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Files, nil
}

// Tree returns a project's reassembled hierarchy.
func (c *Client) Tree(ctx context.Context, projectID string) ([]*models.Node, error) {
	var resp protocol.TreeResponse
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/projects/"+projectID+"/tree", nil, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Roots, nil
}

// GetFile returns a file record with its content.
func (c *Client) GetFile(ctx context.Context, fileID string) (*models.RecordContent, error) {
	var rc models.RecordContent
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/files/"+fileID, nil, &rc); err != nil {
		return nil, err
	}
	return &rc, nil
}

// CreateFile creates a file or folder record in a project.
func (c *Client) CreateFile(ctx context.Context, projectID string, req protocol.CreateFileRequest) (*models.Record, error) {
	var record models.Record
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/projects/"+projectID+"/files", req, &record)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// UpdateFile renames a record or replaces its content.
func (c *Client) UpdateFile(ctx context.Context, fileID string, req protocol.UpdateFileRequest) (*models.Record, error) {
	var record models.Record
	if err := c.doJSON(ctx, http.MethodPut, "/api/v1/files/"+fileID, req, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// DeleteFile deletes a record (and, for folders, its subtree).
func (c *Client) DeleteFile(ctx context.Context, fileID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/v1/files/"+fileID, nil, nil)
}

// AssistantChat sends a request to the AI assistant panel endpoint.
func (c *Client) AssistantChat(ctx context.Context, req protocol.AssistantRequest) (*protocol.AssistantResponse, error) {
	var resp protocol.AssistantResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/assistant/chat", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Get implements editor.RecordSource.
func (c *Client) Get(ctx context.Context, fileID string) (*models.RecordContent, error) {
	return c.GetFile(ctx, fileID)
}

// Save implements editor.RecordSource by flushing content to the record.
func (c *Client) Save(ctx context.Context, fileID, content string) error {
	_, err := c.UpdateFile(ctx, fileID, protocol.UpdateFileRequest{Content: &content})
	return err
}
