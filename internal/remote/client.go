package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prasadrv/tasksync/internal/models"
)

const tokenLifetime = 5 * time.Minute

// Client talks to the remote authority. It is the only component that
// crosses the process boundary, so every call is time-bounded.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	authSecret    string
	nodeID        string
	healthTimeout time.Duration
}

func NewClient(baseURL, authSecret, nodeID string, healthTimeout, syncTimeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: syncTimeout,
		},
		baseURL:       baseURL,
		authSecret:    authSecret,
		nodeID:        nodeID,
		healthTimeout: healthTimeout,
	}
}

// CheckHealth probes the authority's health endpoint. Any transport error or
// non-OK status means offline; it never returns an error because "can't
// reach it" is the answer, not a failure.
func (c *Client) CheckHealth(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	return resp.StatusCode == http.StatusOK
}

// PushBatch sends a batch of queue entries to the authority. A transport
// failure and a rejection such as a checksum mismatch are reported the same
// way, since the caller treats both as a full-batch failure.
func (c *Client) PushBatch(ctx context.Context, batch models.SyncBatchRequest) (*models.SyncBatchResponse, error) {
	body, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/sync/batch", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create batch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	token, err := c.signToken()
	if err != nil {
		return nil, fmt.Errorf("failed to sign auth token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("batch request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp models.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != "" {
			return nil, fmt.Errorf("authority rejected batch (%d): %s", resp.StatusCode, errResp.Error)
		}
		return nil, fmt.Errorf("batch request failed with status %d", resp.StatusCode)
	}

	var batchResp models.SyncBatchResponse
	if err := json.Unmarshal(respBody, &batchResp); err != nil {
		return nil, fmt.Errorf("failed to decode batch response: %w", err)
	}

	return &batchResp, nil
}

func (c *Client) signToken() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": c.nodeID,
		"iat": now.Unix(),
		"exp": now.Add(tokenLifetime).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(c.authSecret))
}
