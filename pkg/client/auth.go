package client

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/driftpad/driftpad/pkg/protocol"
)

// TokenFile holds a saved token pair.
type TokenFile struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	Server           string    `json:"server"`
	Username         string    `json:"username"`
}

// AccessExpired returns true if the access token expires within margin.
func (t *TokenFile) AccessExpired(margin time.Duration) bool {
	return time.Now().Add(margin).After(t.AccessExpiresAt)
}

// Login authenticates with username/password and stores the token pair.
func (c *Client) Login(ctx context.Context, username, password string) (*protocol.TokenPairResponse, error) {
	var resp protocol.TokenPairResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/token",
		protocol.LoginRequest{Username: username, Password: password}, &resp)
	if err != nil {
		return nil, err
	}
	c.SetTokens(resp.AccessToken, resp.RefreshToken)
	return &resp, nil
}

// Refresh exchanges the stored refresh token for a new token pair. The old
// refresh token is rotated server-side and becomes invalid.
func (c *Client) Refresh(ctx context.Context) (*protocol.TokenPairResponse, error) {
	var resp protocol.TokenPairResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/refresh",
		protocol.RefreshRequest{RefreshToken: c.currentRefreshToken()}, &resp)
	if err != nil {
		return nil, err
	}
	c.SetTokens(resp.AccessToken, resp.RefreshToken)
	return &resp, nil
}

// Logout revokes the refresh token on the server and clears local tokens.
func (c *Client) Logout(ctx context.Context) error {
	err := c.doJSON(ctx, http.MethodDelete, "/api/v1/auth/token",
		protocol.LogoutRequest{RefreshToken: c.currentRefreshToken()}, nil)
	c.SetTokens("", "")
	return err
}

// StartRefreshLoop renews the access token in the background before it
// expires, updating tf and persisting it. Stops when ctx is cancelled.
func (c *Client) StartRefreshLoop(ctx context.Context, tf *TokenFile, log *zap.Logger) {
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !tf.AccessExpired(2 * time.Minute) {
					continue
				}
				resp, err := c.Refresh(ctx)
				if err != nil {
					log.Warn("token refresh failed", zap.Error(err))
					continue
				}
				tf.AccessToken = resp.AccessToken
				tf.AccessExpiresAt = resp.AccessExpiresAt
				tf.RefreshToken = resp.RefreshToken
				tf.RefreshExpiresAt = resp.RefreshExpiresAt
				if err := SaveToken(tf); err != nil {
					log.Warn("failed to save refreshed token", zap.Error(err))
				}
			}
		}
	}()
}

// TokenFilePath returns the default path for the token file.
func TokenFilePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "driftpad", "token.json")
}

// SaveToken saves a token file to the default location.
func SaveToken(tf *TokenFile) error {
	path := TokenFilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// LoadToken loads the token file from the default location.
func LoadToken() (*TokenFile, error) {
	data, err := os.ReadFile(TokenFilePath())
	if err != nil {
		return nil, err
	}
	var tf TokenFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, err
	}
	return &tf, nil
}

// DeleteToken removes the saved token file.
func DeleteToken() error {
	return os.Remove(TokenFilePath())
}
