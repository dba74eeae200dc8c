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

// Package health reports service liveness and the state of the pipeline's
// collaborators: the triage backend, the model provider credentials, and
// the trace store.
package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	// StatusHealthy means all dependencies answered.
	StatusHealthy = "healthy"
	// StatusDegraded means at least one optional dependency failed. The
	// pipeline still resolves every request through its fallback tiers.
	StatusDegraded = "degraded"
	// StatusUnhealthy means a required dependency failed.
	StatusUnhealthy = "unhealthy"

	// DefaultTimeout bounds one full health sweep.
	DefaultTimeout = 5 * time.Second
)

// CheckResult is the outcome of a single dependency check.
type CheckResult struct {
	Status    string        `json:"status"`
	Latency   time.Duration `json:"latency"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Response is the complete health report.
type Response struct {
	Status       string                 `json:"status"`
	Service      string                 `json:"service"`
	Version      string                 `json:"version"`
	Uptime       time.Duration          `json:"uptime"`
	Dependencies map[string]CheckResult `json:"dependencies"`
	Timestamp    time.Time              `json:"timestamp"`
}

// Checker probes one dependency.
type Checker interface {
	Check(ctx context.Context) CheckResult
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(ctx context.Context) CheckResult

// Check implements Checker.
func (f CheckerFunc) Check(ctx context.Context) CheckResult {
	return f(ctx)
}

// Manager runs registered checkers and aggregates their results. Every
// dependency here is optional: the pipeline degrades instead of failing, so
// a dependency failure reports StatusDegraded, never StatusUnhealthy.
type Manager struct {
	serviceName string
	version     string
	startTime   time.Time
	checkers    map[string]Checker
	timeout     time.Duration
	logger      *zap.Logger
}

// NewManager creates a health check manager.
func NewManager(serviceName, version string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		serviceName: serviceName,
		version:     version,
		startTime:   time.Now(),
		checkers:    make(map[string]Checker),
		timeout:     DefaultTimeout,
		logger:      logger,
	}
}

// AddChecker registers a dependency checker under a name.
func (m *Manager) AddChecker(name string, checker Checker) {
	m.checkers[name] = checker
}

// AddCheckerFunc registers a checker function under a name.
func (m *Manager) AddCheckerFunc(name string, fn func(ctx context.Context) CheckResult) {
	m.checkers[name] = CheckerFunc(fn)
}

// Check runs all registered checkers and aggregates the report.
func (m *Manager) Check(ctx context.Context) Response {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	dependencies := make(map[string]CheckResult, len(m.checkers))
	overall := StatusHealthy

	for name, checker := range m.checkers {
		result := checker.Check(ctx)
		dependencies[name] = result
		if result.Status != StatusHealthy {
			overall = StatusDegraded
			m.logger.Warn("dependency check failed",
				zap.String("dependency", name),
				zap.String("status", result.Status),
				zap.String("error", result.Error))
		}
	}

	return Response{
		Status:       overall,
		Service:      m.serviceName,
		Version:      m.version,
		Uptime:       time.Since(m.startTime),
		Dependencies: dependencies,
		Timestamp:    time.Now(),
	}
}

// BackendChecker probes the triage backend's health endpoint. Any 2xx or
// 4xx answer proves reachability; the triage route itself is not exercised.
func BackendChecker(baseURL string, client *http.Client) Checker {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return CheckerFunc(func(ctx context.Context) CheckResult {
		start := time.Now()
		result := CheckResult{Timestamp: start}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/health", nil)
		if err != nil {
			result.Status = StatusUnhealthy
			result.Error = err.Error()
			return result
		}

		resp, err := client.Do(req)
		result.Latency = time.Since(start)
		if err != nil {
			result.Status = StatusUnhealthy
			result.Error = err.Error()
			return result
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			result.Status = StatusUnhealthy
			result.Error = fmt.Sprintf("backend returned status %d", resp.StatusCode)
			return result
		}
		result.Status = StatusHealthy
		return result
	})
}

// CredentialChecker reports whether a provider credential is configured.
// It never calls the provider; a present key is assumed usable.
func CredentialChecker(setting string, present func() bool) Checker {
	return CheckerFunc(func(ctx context.Context) CheckResult {
		result := CheckResult{Timestamp: time.Now()}
		if present() {
			result.Status = StatusHealthy
			return result
		}
		result.Status = StatusUnhealthy
		result.Error = fmt.Sprintf("%s is not configured", setting)
		return result
	})
}

// StoreChecker verifies the trace store answers lookups.
func StoreChecker(probe func(ctx context.Context) error) Checker {
	return CheckerFunc(func(ctx context.Context) CheckResult {
		start := time.Now()
		result := CheckResult{Timestamp: start}

		err := probe(ctx)
		result.Latency = time.Since(start)
		if err != nil {
			result.Status = StatusUnhealthy
			result.Error = err.Error()
			return result
		}
		result.Status = StatusHealthy
		return result
	})
}
