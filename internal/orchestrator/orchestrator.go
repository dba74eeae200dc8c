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

// Package orchestrator runs the tiered resolution pipeline: backend triage,
// then the direct model provider, then local synthesis. Every request
// resolves to a response body; no tier failure terminates a request.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/opspilot/internal/backend"
	"github.com/your-org/opspilot/internal/classifier"
	"github.com/your-org/opspilot/internal/provider"
	"github.com/your-org/opspilot/internal/resilience"
	"github.com/your-org/opspilot/internal/synthesis"
	"github.com/your-org/opspilot/internal/trace"
)

// DefaultMaxImageBytes bounds a single base64 image payload. Oversize
// images are truncated, not rejected; a partial image still gives the
// model some context.
const DefaultMaxImageBytes = 2 * 1024 * 1024

// Config holds orchestrator settings.
type Config struct {
	MaxImageBytes int
}

// DefaultConfig returns the standard orchestrator settings.
func DefaultConfig() Config {
	return Config{MaxImageBytes: DefaultMaxImageBytes}
}

// Request is one user resolution request. Images are raw base64 strings as
// received, optionally with data URI prefixes.
type Request struct {
	Message string
	Images  []string
}

// Orchestrator owns the fallback chain and trace persistence for tiers that
// resolve locally.
type Orchestrator struct {
	cfg        Config
	backend    *backend.Client
	provider   provider.Provider
	classifier *classifier.KeywordClassifier
	synth      *synthesis.Synthesizer
	store      *trace.Store
	logger     *zap.Logger
}

// New creates the pipeline orchestrator. All collaborators are required
// except the logger.
func New(
	cfg Config,
	bc *backend.Client,
	p provider.Provider,
	c *classifier.KeywordClassifier,
	s *synthesis.Synthesizer,
	store *trace.Store,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = DefaultMaxImageBytes
	}
	return &Orchestrator{
		cfg:        cfg,
		backend:    bc,
		provider:   p,
		classifier: c,
		synth:      s,
		store:      store,
		logger:     logger,
	}
}

// Resolve runs the request down the tier chain and returns the response
// body to hand to the caller. Tier 1 success returns the backend body
// verbatim; tiers 2 and 3 return a marshaled ResolutionResult. Resolve
// never fails: the local tier always produces an answer.
func (o *Orchestrator) Resolve(ctx context.Context, req Request) (json.RawMessage, error) {
	images := o.boundImages(req.Images)

	// Tier 1: backend triage. The backend stores its own trace, so its
	// body passes through untouched.
	body, err := o.backend.Triage(ctx, backend.TriageRequest{
		Message: req.Message,
		Images:  images,
	})
	if err == nil {
		o.logger.Debug("request resolved by backend tier")
		return body, nil
	}
	if !resilience.FallsThrough(err) {
		return nil, fmt.Errorf("backend triage: %w", err)
	}
	o.logger.Warn("backend tier unavailable, falling through to direct model",
		zap.Error(err))

	attachments := o.buildAttachments(images)
	hasImages := len(attachments) > 0

	// Tier 2: direct model. Contract violations never surface here; they
	// arrive already absorbed as a degraded result.
	result, err := o.provider.Generate(ctx, provider.Request{
		Message: req.Message,
		Images:  attachments,
	})
	if err == nil {
		o.logger.Debug("request resolved by direct model tier",
			zap.String("provider", o.provider.Name()),
			zap.Bool("degraded", result.Degraded))
		return o.finish(ctx, req.Message, result, attachments, true, nil)
	}
	if !resilience.FallsThrough(err) {
		return nil, fmt.Errorf("direct model: %w", err)
	}
	o.logger.Warn("direct model tier failed, falling through to local synthesis",
		zap.String("provider", o.provider.Name()),
		zap.Error(err))

	// Tier 3: local synthesis. Marked incomplete and tagged with the
	// model error, but still a real answer for the user.
	cls := o.classifier.Classify(req.Message)
	synthesized := o.synth.Synthesize(cls, req.Message, hasImages)
	local := provider.Result{
		ResponseText:   synthesized.ResponseText,
		Reasoning:      synthesized.Reasoning,
		Classification: cls,
		Degraded:       true,
	}
	descriptor := &trace.ErrorDescriptor{
		Kind:    trace.ErrorKindLLM,
		Message: err.Error(),
	}
	return o.finish(ctx, req.Message, local, attachments, false, descriptor)
}

// finish persists the trace for a locally resolved request and marshals the
// unified result.
func (o *Orchestrator) finish(
	ctx context.Context,
	message string,
	result provider.Result,
	attachments []trace.ImageAttachment,
	completed bool,
	errDesc *trace.ErrorDescriptor,
) (json.RawMessage, error) {
	traceID := trace.GenerateTraceID()
	cls := result.Classification

	t := &trace.Trace{
		ID:             traceID,
		Timestamp:      time.Now().UTC(),
		Input:          message,
		FinalOutput:    result.ResponseText,
		Completed:      completed,
		Steps:          result.Reasoning,
		Classification: &cls,
		HasImages:      len(attachments) > 0,
		Images:         attachments,
	}
	if err := o.store.Save(ctx, t); err != nil {
		// Losing a trace is not worth failing a resolved request.
		o.logger.Error("failed to persist trace",
			zap.String("trace_id", traceID),
			zap.Error(err))
	}

	resolution := trace.ResolutionResult{
		TraceID:        traceID,
		Response:       result.ResponseText,
		Reasoning:      result.Reasoning,
		Completed:      completed,
		Classification: &cls,
		Error:          errDesc,
	}
	body, err := json.Marshal(resolution)
	if err != nil {
		return nil, fmt.Errorf("encoding resolution result: %w", err)
	}
	return body, nil
}

// LookupTrace fetches a trace by ID: local store first, then the backend.
// Remote hits are cached locally so repeat lookups stay local.
func (o *Orchestrator) LookupTrace(ctx context.Context, traceID string) (*trace.Trace, error) {
	t, err := o.store.Get(ctx, traceID)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, trace.ErrNotFound) {
		return nil, err
	}

	remote, err := o.backend.GetTrace(ctx, traceID)
	if err != nil {
		return nil, err
	}
	o.store.Cache(ctx, remote)
	o.logger.Debug("trace retrieved from backend and cached",
		zap.String("trace_id", traceID))
	return remote, nil
}

// boundImages enforces the per-image size cap by truncating oversize
// base64 payloads.
func (o *Orchestrator) boundImages(images []string) []string {
	if len(images) == 0 {
		return nil
	}
	bounded := make([]string, len(images))
	for i, img := range images {
		if len(img) > o.cfg.MaxImageBytes {
			o.logger.Warn("truncating oversize image",
				zap.Int("index", i),
				zap.Int("size", len(img)),
				zap.Int("limit", o.cfg.MaxImageBytes))
			img = img[:o.cfg.MaxImageBytes]
		}
		bounded[i] = img
	}
	return bounded
}

// buildAttachments converts raw image strings into attachments for the
// model tier and the stored trace.
func (o *Orchestrator) buildAttachments(images []string) []trace.ImageAttachment {
	if len(images) == 0 {
		return nil
	}
	attachments := make([]trace.ImageAttachment, 0, len(images))
	for i, img := range images {
		if img == "" {
			continue
		}
		attachments = append(attachments, trace.NewImageAttachment(fmt.Sprintf("img-%d", i), img))
	}
	return attachments
}
