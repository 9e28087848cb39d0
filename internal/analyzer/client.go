// Package analyzer is the synchronous fallback path to the analysis
// pipeline: the same validation command, posted over HTTP, answered inline.
// It bypasses the queue entirely and is used when an immediate answer beats
// resilience.
package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"retinagate/internal/validation/models"
)

const defaultTimeout = 30 * time.Second

// Client posts validation commands to the analyzer's HTTP endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a client. timeout of zero means 30 s.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// Validate posts cmd and decodes the inline response.
func (c *Client) Validate(ctx context.Context, cmd models.ValidationCommand) (models.ValidationResponse, error) {
	body, err := json.Marshal(cmd)
	if err != nil {
		return models.ValidationResponse{}, fmt.Errorf("marshal validation command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/validate", bytes.NewReader(body))
	if err != nil {
		return models.ValidationResponse{}, fmt.Errorf("build validate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return models.ValidationResponse{}, fmt.Errorf("post validation command: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return models.ValidationResponse{}, fmt.Errorf("analyzer returned status %d", res.StatusCode)
	}

	var resp models.ValidationResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return models.ValidationResponse{}, fmt.Errorf("decode validation response: %w", err)
	}
	return resp, nil
}
