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

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/opspilot/internal/backend"
	"github.com/your-org/opspilot/internal/classifier"
	"github.com/your-org/opspilot/internal/health"
	"github.com/your-org/opspilot/internal/orchestrator"
	"github.com/your-org/opspilot/internal/provider"
	"github.com/your-org/opspilot/internal/resilience"
	"github.com/your-org/opspilot/internal/synthesis"
	"github.com/your-org/opspilot/internal/trace"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubProvider fails with a transport error so requests reach the local
// tier unless the test backend answers first.
type stubProvider struct{}

func (stubProvider) Name() string { return "stub" }

func (stubProvider) Generate(context.Context, provider.Request) (provider.Result, error) {
	return provider.Result{}, resilience.NewTransportError("generate", "stub", fmt.Errorf("unavailable"))
}

func newTestServer(t *testing.T, backendURL string) (*Server, *trace.Store) {
	t.Helper()

	store, err := trace.NewStore(trace.DefaultConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	bcfg := backend.DefaultConfig()
	bcfg.BaseURL = backendURL
	o := orchestrator.New(
		orchestrator.DefaultConfig(),
		backend.NewClient(bcfg, nil),
		stubProvider{},
		classifier.NewKeywordClassifier(classifier.DefaultTopCategoryLimit),
		synthesis.NewSynthesizer(),
		store,
		nil,
	)

	h := health.NewManager("opspilot", "test", nil)
	h.AddChecker("backend", health.BackendChecker(backendURL, nil))

	return New(o, h, nil), store
}

func deadBackend(t *testing.T) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()
	return server.URL
}

func performJSON(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestResolveRequiresMessage(t *testing.T) {
	s, _ := newTestServer(t, deadBackend(t))
	router := s.Router()

	w := performJSON(router, http.MethodPost, "/resolve", map[string]any{"images": []string{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp resilience.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "message is required")
}

func TestResolveReturnsBackendBody(t *testing.T) {
	const backendBody = `{"trace_id":"b-1","response":"from backend","completed":true}`
	backendSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, backendBody)
	}))
	defer backendSrv.Close()

	s, _ := newTestServer(t, backendSrv.URL)
	w := performJSON(s.Router(), http.MethodPost, "/resolve", map[string]any{"message": "printer down"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, backendBody, w.Body.String())
}

func TestResolveLocalFallback(t *testing.T) {
	s, _ := newTestServer(t, deadBackend(t))
	w := performJSON(s.Router(), http.MethodPost, "/resolve", map[string]any{"message": "I forgot my password"})

	require.Equal(t, http.StatusOK, w.Code)

	var result trace.ResolutionResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.False(t, result.Completed)
	require.NotNil(t, result.Error)
	assert.Equal(t, trace.ErrorKindLLM, result.Error.Kind)
	assert.Contains(t, result.Response, "reset your password")
	assert.NotEmpty(t, result.TraceID)
}

func TestGetTraceRequiresID(t *testing.T) {
	s, _ := newTestServer(t, deadBackend(t))
	w := performJSON(s.Router(), http.MethodGet, "/resolve", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetTraceFound(t *testing.T) {
	backendSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer backendSrv.Close()

	s, store := newTestServer(t, backendSrv.URL)
	stored := &trace.Trace{ID: "trace_abc", Input: "hi", FinalOutput: "hello"}
	require.NoError(t, store.Save(context.Background(), stored))

	w := performJSON(s.Router(), http.MethodGet, "/resolve?trace_id=trace_abc", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got trace.Trace
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "hello", got.FinalOutput)
}

func TestGetTraceNotFound(t *testing.T) {
	backendSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer backendSrv.Close()

	s, _ := newTestServer(t, backendSrv.URL)
	w := performJSON(s.Router(), http.MethodGet, "/resolve?trace_id=missing", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetTraceBackendUnreachable(t *testing.T) {
	s, _ := newTestServer(t, deadBackend(t))
	w := performJSON(s.Router(), http.MethodGet, "/resolve?trace_id=trace_remote", nil)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestHealthEndpoint(t *testing.T) {
	backendSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer backendSrv.Close()

	s, _ := newTestServer(t, backendSrv.URL)
	w := performJSON(s.Router(), http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, w.Code)

	var resp health.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, health.StatusHealthy, resp.Status)
	assert.Equal(t, "opspilot", resp.Service)
}
