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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/your-org/opspilot/internal/resilience"
)

func newTestOpenAIClient(baseURL string) *OpenAIClient {
	return NewOpenAIClient(OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: baseURL,
	}, newTestNormalizer(), nil)
}

func chatCompletionBody(text string) string {
	return fmt.Sprintf(`{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"choices": [{
			"index": 0,
			"finish_reason": "stop",
			"message": {"role": "assistant", "content": %q}
		}]
	}`, text)
}

func TestOpenAIGenerateMissingKey(t *testing.T) {
	client := NewOpenAIClient(OpenAIConfig{}, newTestNormalizer(), nil)

	_, err := client.Generate(context.Background(), Request{Message: "help"})

	var cfgErr *resilience.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if !resilience.FallsThrough(err) {
		t.Error("missing credential must fall through")
	}
}

func TestOpenAIGenerateSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, chatCompletionBody(validPayload))
	}))
	defer server.Close()

	client := newTestOpenAIClient(server.URL)
	result, err := client.Generate(context.Background(), Request{Message: "printer jam"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Degraded {
		t.Error("well-formed payload marked degraded")
	}
	if result.ResponseText == "" {
		t.Error("empty response text")
	}
}

func TestOpenAIGenerateSingleAttempt(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error": {"message": "rate limited", "type": "rate_limit_error"}}`)
	}))
	defer server.Close()

	client := newTestOpenAIClient(server.URL)
	_, err := client.Generate(context.Background(), Request{Message: "help"})

	var upstream *resilience.UpstreamStatusError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamStatusError, got %v", err)
	}
	if calls != 1 {
		t.Errorf("upstream calls = %d, want exactly 1 per request", calls)
	}
	if !resilience.FallsThrough(err) {
		t.Error("upstream failure must fall through")
	}
}

func TestOpenAIGenerateTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := newTestOpenAIClient(server.URL)
	_, err := client.Generate(context.Background(), Request{Message: "help"})

	var transport *resilience.TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}
