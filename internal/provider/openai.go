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
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/your-org/opspilot/internal/resilience"
)

// DefaultOpenAIModel is used when no chat model is configured.
const DefaultOpenAIModel = openai.GPT4o

// OpenAIConfig holds settings for an OpenAI-compatible chat endpoint.
// BaseURL may point at any server that speaks the chat completions API.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// OpenAIClient is the alternate direct-model provider, for deployments that
// route through an OpenAI-compatible endpoint instead of Gemini.
type OpenAIClient struct {
	cfg        OpenAIConfig
	client     *openai.Client
	normalizer *Normalizer
	backoff    resilience.BackoffConfig
	logger     *zap.Logger
}

// NewOpenAIClient creates an OpenAI-compatible provider. Construction does
// not validate the key; a missing key surfaces as a ConfigurationError at
// call time so the pipeline can fall through.
func NewOpenAIClient(cfg OpenAIConfig, normalizer *Normalizer, logger *zap.Logger) *OpenAIClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIClient{
		cfg:        cfg,
		client:     openai.NewClientWithConfig(clientCfg),
		normalizer: normalizer,
		backoff:    resilience.SingleAttemptConfig(),
		logger:     logger,
	}
}

// Name identifies the provider in logs and health reports.
func (c *OpenAIClient) Name() string {
	return "openai"
}

// buildMessages assembles the chat history: the system prompt, then the
// user message with any images as data-URI parts.
func (c *OpenAIClient) buildMessages(req Request) []openai.ChatCompletionMessage {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
	}

	if len(req.Images) == 0 {
		return append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: req.Message,
		})
	}

	parts := []openai.ChatMessagePart{
		{Type: openai.ChatMessagePartTypeText, Text: req.Message},
	}
	for _, img := range req.Images {
		if img.Base64Data == "" {
			continue
		}
		mime := img.ContentType
		if mime == "" {
			mime = "image/jpeg"
		}
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL: fmt.Sprintf("data:%s;base64,%s", mime, img.Base64Data),
			},
		})
	}

	return append(messages, openai.ChatCompletionMessage{
		Role:         openai.ChatMessageRoleUser,
		MultiContent: parts,
	})
}

// Generate calls the chat completions endpoint once and normalizes the
// first choice against the response contract. The call is not retried;
// failures fall through to the next pipeline tier instead.
func (c *OpenAIClient) Generate(ctx context.Context, req Request) (Result, error) {
	if c.cfg.APIKey == "" {
		return Result{}, resilience.NewConfigurationError("openai.api_key")
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    c.buildMessages(req),
		Temperature: GenerationTemperature,
		TopP:        GenerationTopP,
		MaxTokens:   GenerationMaxOutputTokens,
	}

	var chatResp openai.ChatCompletionResponse
	err := resilience.WithBackoff(ctx, c.logger, c.backoff, func(ctx context.Context) error {
		var callErr error
		chatResp, callErr = c.client.CreateChatCompletion(ctx, chatReq)
		return classifyOpenAIError(callErr, c.cfg.BaseURL)
	})
	if err != nil {
		return Result{}, err
	}

	hasImages := len(req.Images) > 0
	if len(chatResp.Choices) == 0 {
		c.logger.Warn("chat completion returned no choices, degrading to local synthesis",
			zap.String("model", c.cfg.Model))
		return c.normalizer.Degrade(req.Message, hasImages), nil
	}

	c.logger.Debug("chat completion finished",
		zap.String("model", c.cfg.Model),
		zap.String("finish_reason", string(chatResp.Choices[0].FinishReason)))

	return c.normalizer.Normalize(chatResp.Choices[0].Message.Content, req.Message, hasImages), nil
}

// classifyOpenAIError maps go-openai errors onto the pipeline taxonomy so
// retry and fall-through decisions work the same for both providers.
func classifyOpenAIError(err error, endpoint string) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return resilience.NewUpstreamStatusError("openai", apiErr.HTTPStatusCode, apiErr.Message)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return resilience.NewUpstreamStatusError("openai", reqErr.HTTPStatusCode, reqErr.Error())
	}

	return resilience.NewTransportError("chat completion", endpoint, err)
}
