// Copyright 2024 OpsPilot Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package backend is the client for the primary triage service, the first
// tier of the resolution pipeline.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/opspilot/internal/resilience"
	"github.com/your-org/opspilot/internal/trace"
)

// Default client settings.
const (
	DefaultBaseURL = "http://localhost:8000"
	DefaultTimeout = 30 * time.Second
)

// Config holds connection settings for the triage backend.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// DefaultConfig returns the standard backend settings.
func DefaultConfig() Config {
	return Config{
		BaseURL: DefaultBaseURL,
		Timeout: DefaultTimeout,
	}
}

// TriageRequest is the payload forwarded to the backend. Images carry raw
// base64 strings, data-URI prefix included when the caller sent one.
type TriageRequest struct {
	Message string   `json:"message"`
	Images  []string `json:"images,omitempty"`
}

// Client talks to the triage backend over HTTP.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a backend client. The logger may be nil.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// BaseURL reports the configured backend address, for health checks.
func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}

// Triage posts the request to the backend and returns its response body
// verbatim on success. Success requires a 2xx status and a parseable JSON
// body; anything else comes back as a typed error so the caller can fall
// through to the next tier.
func (c *Client) Triage(ctx context.Context, req TriageRequest) (json.RawMessage, error) {
	url := c.cfg.BaseURL + "/api/triage"

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding triage request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building triage request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, resilience.NewTransportError("triage", url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransportError("triage", url, err)
	}

	c.logger.Debug("backend triage call finished",
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resilience.NewUpstreamStatusError("backend", resp.StatusCode, string(respBody))
	}
	// A 2xx with a non-JSON body (an intermediary's HTML error page, for
	// instance) is not a usable triage result.
	if !json.Valid(respBody) {
		return nil, resilience.NewUpstreamStatusError("backend", resp.StatusCode, string(respBody))
	}
	return json.RawMessage(respBody), nil
}

// GetTrace fetches a stored trace from the backend. A backend 404 maps to
// trace.ErrNotFound; other failures come back as typed errors.
func (c *Client) GetTrace(ctx context.Context, traceID string) (*trace.Trace, error) {
	url := fmt.Sprintf("%s/api/trace/%s", c.cfg.BaseURL, traceID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building trace request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, resilience.NewTransportError("trace lookup", url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransportError("trace lookup", url, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, trace.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resilience.NewUpstreamStatusError("backend", resp.StatusCode, string(respBody))
	}

	var t trace.Trace
	if err := json.Unmarshal(respBody, &t); err != nil {
		return nil, fmt.Errorf("decoding trace %s: %w", traceID, err)
	}
	return &t, nil
}
