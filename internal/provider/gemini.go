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

package provider

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
)

// Default Gemini settings. The preview model 404s on some projects, so a
// secondary model is kept as an in-call fallback.
const (
	DefaultGeminiEndpoint       = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGeminiModel          = "gemini-2.5-pro-preview-05-06"
	DefaultGeminiSecondaryModel = "gemini-1.5-pro"
	DefaultGeminiTimeout        = 60 * time.Second
)

// GeminiConfig holds connection settings for the Gemini REST API.
type GeminiConfig struct {
	Endpoint       string
	APIKey         string
	Model          string
	SecondaryModel string
	Timeout        time.Duration
}

// DefaultGeminiConfig returns the standard Gemini settings without an API key.
func DefaultGeminiConfig() GeminiConfig {
	return GeminiConfig{
		Endpoint:       DefaultGeminiEndpoint,
		Model:          DefaultGeminiModel,
		SecondaryModel: DefaultGeminiSecondaryModel,
		Timeout:        DefaultGeminiTimeout,
	}
}

// Gemini wire types.

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
			Role string `json:"role"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

// GeminiClient calls the Gemini generateContent endpoint and normalizes the
// answer against the response contract.
type GeminiClient struct {
	cfg        GeminiConfig
	httpClient *http.Client
	normalizer *Normalizer
	logger     *zap.Logger
}

// NewGeminiClient creates a Gemini provider. The normalizer is required;
// the logger may be nil.
func NewGeminiClient(cfg GeminiConfig, normalizer *Normalizer, logger *zap.Logger) *GeminiClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultGeminiEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultGeminiTimeout
	}
	return &GeminiClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		normalizer: normalizer,
		logger:     logger,
	}
}

// Name identifies the provider in logs and health reports.
func (c *GeminiClient) Name() string {
	return "gemini"
}

// buildRequest assembles the generateContent payload: the system prompt as
// the first content with role "model", then the user message with any
// inline images.
func (c *GeminiClient) buildRequest(req Request) geminiRequest {
	user := geminiContent{
		Parts: []geminiPart{{Text: req.Message}},
		Role:  "user",
	}
	for _, img := range req.Images {
		if img.Base64Data == "" {
			continue
		}
		mime := img.ContentType
		if mime == "" {
			mime = "image/jpeg"
		}
		user.Parts = append(user.Parts, geminiPart{
			InlineData: &geminiInlineData{MimeType: mime, Data: img.Base64Data},
		})
	}

	return geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: systemPrompt}}, Role: "model"},
			user,
		},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     GenerationTemperature,
			TopP:            GenerationTopP,
			MaxOutputTokens: GenerationMaxOutputTokens,
		},
	}
}

// Generate calls the configured model, falling back to the secondary model
// once when the primary returns 404. Empty candidate lists and contract
// violations resolve to a degraded local result rather than an error.
func (c *GeminiClient) Generate(ctx context.Context, req Request) (Result, error) {
	if c.cfg.APIKey == "" {
		return Result{}, resilience.NewConfigurationError("gemini.api_key")
	}

	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return Result{}, fmt.Errorf("encoding gemini request: %w", err)
	}

	model := c.cfg.Model
	resp, err := c.post(ctx, model, body)
	if err != nil {
		return Result{}, err
	}

	if resp.StatusCode == http.StatusNotFound && c.cfg.SecondaryModel != "" {
		resp.Body.Close()
		c.logger.Warn("primary model not found, retrying with secondary model",
			zap.String("primary", model),
			zap.String("secondary", c.cfg.SecondaryModel))
		model = c.cfg.SecondaryModel
		resp, err = c.post(ctx, model, body)
		if err != nil {
			return Result{}, err
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, resilience.NewTransportError("generateContent", c.requestURL(model), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, resilience.NewUpstreamStatusError("gemini", resp.StatusCode, string(respBody))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Result{}, resilience.NewUpstreamStatusError("gemini", resp.StatusCode, "undecodable response body")
	}

	hasImages := len(req.Images) > 0
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		c.logger.Warn("gemini returned no candidates, degrading to local synthesis",
			zap.String("model", model))
		return c.normalizer.Degrade(req.Message, hasImages), nil
	}

	c.logger.Debug("gemini call completed",
		zap.String("model", model),
		zap.Int("status", resp.StatusCode))

	return c.normalizer.Normalize(parsed.Candidates[0].Content.Parts[0].Text, req.Message, hasImages), nil
}

// requestURL builds the generateContent URL without the API key, safe for
// error messages and logs.
func (c *GeminiClient) requestURL(model string) string {
	return fmt.Sprintf("%s/models/%s:generateContent", c.cfg.Endpoint, model)
}

func (c *GeminiClient) post(ctx context.Context, model string, body []byte) (*http.Response, error) {
	url := fmt.Sprintf("%s?key=%s", c.requestURL(model), c.cfg.APIKey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, resilience.NewTransportError("generateContent", c.requestURL(model), err)
	}
	return resp, nil
}
