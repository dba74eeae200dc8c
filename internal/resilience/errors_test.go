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

package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestFallsThrough(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transport", NewTransportError("triage", "http://backend", errors.New("connection refused")), true},
		{"upstream status", NewUpstreamStatusError("backend", 503, "unavailable"), true},
		{"configuration", NewConfigurationError("GEMINI_API_KEY"), true},
		{"contract violation", NewModelContractViolation("missing response field", "{}"), false},
		{"wrapped transport", fmt.Errorf("tier 1: %w", NewTransportError("triage", "http://backend", errors.New("timeout"))), true},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FallsThrough(tt.err); got != tt.want {
				t.Errorf("FallsThrough(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"configuration", NewConfigurationError("GEMINI_API_KEY"), false},
		{"upstream 400", NewUpstreamStatusError("model", 400, "bad request"), false},
		{"upstream 404", NewUpstreamStatusError("model", 404, "not found"), false},
		{"upstream 429", NewUpstreamStatusError("model", 429, "rate limited"), true},
		{"upstream 500", NewUpstreamStatusError("model", 500, "internal"), true},
		{"transport", NewTransportError("generate", "http://model", errors.New("reset")), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestUpstreamStatusErrorTruncatesBody(t *testing.T) {
	long := make([]byte, 2048)
	for i := range long {
		long[i] = 'x'
	}
	err := NewUpstreamStatusError("backend", 500, string(long))
	if len(err.Body) != 512 {
		t.Errorf("body length = %d, want 512", len(err.Body))
	}
}

func TestWithBackoffStopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := WithBackoff(context.Background(), nil, DefaultBackoffConfig(), func(ctx context.Context) error {
		calls++
		return NewConfigurationError("OPENAI_API_KEY")
	})

	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestWithBackoffRetriesThenSucceeds(t *testing.T) {
	cfg := BackoffConfig{
		BaseDelay:  time.Millisecond,
		MaxRetries: 3,
		MaxDelay:   10 * time.Millisecond,
		Multiplier: 2.0,
	}

	calls := 0
	err := WithBackoff(context.Background(), nil, cfg, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return NewTransportError("generate", "http://model", errors.New("reset"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestSingleAttemptConfigNeverRetries(t *testing.T) {
	calls := 0
	err := WithBackoff(context.Background(), nil, SingleAttemptConfig(), func(ctx context.Context) error {
		calls++
		return NewUpstreamStatusError("openai", 429, "rate limited")
	})

	var upstream *UpstreamStatusError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamStatusError, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 even for a retryable error", calls)
	}
}

func TestErrorResponseDetails(t *testing.T) {
	resp := NewErrorResponse("Failed to retrieve trace data", errors.New("status 502"))
	if resp.Error != "Failed to retrieve trace data" {
		t.Errorf("Error = %q", resp.Error)
	}
	if resp.Details != "status 502" {
		t.Errorf("Details = %q", resp.Details)
	}
	if resp.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}
