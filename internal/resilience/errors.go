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

// Package resilience provides the error taxonomy and retry utilities used
// across the resolution pipeline. Error types distinguish failures that
// should fall through to the next tier from failures that are absorbed
// in place.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TransportError indicates the request never produced an upstream response:
// DNS failure, connection refused, timeout, TLS failure. The operation that
// failed and the endpoint are kept for logging.
type TransportError struct {
	Op       string
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure during %s (%s): %v", e.Op, e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError wraps a network-level failure.
func NewTransportError(op, endpoint string, err error) *TransportError {
	return &TransportError{Op: op, Endpoint: endpoint, Err: err}
}

// UpstreamStatusError indicates an upstream answered with a non-success
// status. Body holds a snippet of the response for diagnostics.
type UpstreamStatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.StatusCode, e.Body)
}

// NewUpstreamStatusError records a non-2xx upstream response.
func NewUpstreamStatusError(service string, statusCode int, body string) *UpstreamStatusError {
	const maxBodySnippet = 512
	if len(body) > maxBodySnippet {
		body = body[:maxBodySnippet]
	}
	return &UpstreamStatusError{Service: service, StatusCode: statusCode, Body: body}
}

// ModelContractViolation indicates the model answered but its output did not
// satisfy the structured response contract. Violations are absorbed by the
// degraded path rather than falling through to the next tier.
type ModelContractViolation struct {
	Reason string
	Output string
}

func (e *ModelContractViolation) Error() string {
	return fmt.Sprintf("model output violated response contract: %s", e.Reason)
}

// NewModelContractViolation records a contract failure. Output is truncated
// to keep log lines bounded.
func NewModelContractViolation(reason, output string) *ModelContractViolation {
	const maxOutputSnippet = 256
	if len(output) > maxOutputSnippet {
		output = output[:maxOutputSnippet]
	}
	return &ModelContractViolation{Reason: reason, Output: output}
}

// ConfigurationError indicates a tier cannot run because a required setting
// is absent, such as a missing API key.
type ConfigurationError struct {
	Setting string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("missing required configuration: %s", e.Setting)
}

// NewConfigurationError records a missing setting.
func NewConfigurationError(setting string) *ConfigurationError {
	return &ConfigurationError{Setting: setting}
}

// FallsThrough reports whether an error should hand the request to the next
// tier of the pipeline. Transport, upstream-status, and configuration errors
// fall through; contract violations do not, because the degraded path has
// already produced a usable answer by the time one is raised.
func FallsThrough(err error) bool {
	if err == nil {
		return false
	}

	var (
		transport *TransportError
		upstream  *UpstreamStatusError
		config    *ConfigurationError
	)
	return errors.As(err, &transport) || errors.As(err, &upstream) || errors.As(err, &config)
}

// ErrorResponse is the JSON envelope written for HTTP-level failures.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewErrorResponse builds the standard failure envelope. The details string
// carries the underlying cause when one exists.
func NewErrorResponse(message string, err error) ErrorResponse {
	resp := ErrorResponse{
		Error:     message,
		Timestamp: time.Now(),
	}
	if err != nil {
		resp.Details = err.Error()
	}
	return resp
}

// Retryable reports whether an error is worth another attempt against the
// same upstream. Context cancellation and configuration gaps never are.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var config *ConfigurationError
	if errors.As(err, &config) {
		return false
	}

	var upstream *UpstreamStatusError
	if errors.As(err, &upstream) {
		// Client errors will not change on retry, except throttling.
		if upstream.StatusCode >= 400 && upstream.StatusCode < 500 && upstream.StatusCode != 429 {
			return false
		}
	}
	return true
}
