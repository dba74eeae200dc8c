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
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/your-org/opspilot/internal/classifier"
	"github.com/your-org/opspilot/internal/synthesis"
	"github.com/your-org/opspilot/internal/trace"
)

// formattingApology is substituted when a parsed payload lacks a usable
// response field but is otherwise salvageable.
const formattingApology = "I apologize, but I'm experiencing an issue with my response formatting. Please try again."

// contractPayload mirrors the JSON structure the system prompt demands.
type contractPayload struct {
	Thinking       []trace.ReasoningStep `json:"thinking"`
	Classification *trace.Classification `json:"classification"`
	Response       string                `json:"response"`
}

// Normalizer turns raw model text into a Result that honors the response
// contract. Output that cannot be salvaged is replaced wholesale with a
// locally synthesized answer built from the original user text.
type Normalizer struct {
	classifier *classifier.KeywordClassifier
	synth      *synthesis.Synthesizer
	logger     *zap.Logger
}

// NewNormalizer creates a contract normalizer.
func NewNormalizer(c *classifier.KeywordClassifier, s *synthesis.Synthesizer, logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{classifier: c, synth: s, logger: logger}
}

// stripFences removes markdown code fences the model was told not to emit
// but often emits anyway.
func stripFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// Normalize parses raw model output against the contract. userText and
// hasImages describe the original request so the degraded path can rebuild
// an answer from scratch.
func (n *Normalizer) Normalize(raw, userText string, hasImages bool) Result {
	cleaned := stripFences(raw)

	var payload contractPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		n.logger.Warn("model output is not valid JSON, degrading to local synthesis",
			zap.Error(err),
			zap.Int("raw_len", len(raw)))
		return n.Degrade(userText, hasImages)
	}

	if payload.Response == "" {
		// A payload that carries thinking and classification but no
		// response is a half-built answer; rebuilding locally beats
		// guessing at what the model meant.
		if strings.Contains(cleaned, `"thinking"`) && strings.Contains(cleaned, `"classification"`) {
			n.logger.Warn("model payload missing response field, degrading to local synthesis")
			return n.Degrade(userText, hasImages)
		}
		payload.Response = formattingApology
	}

	// Models occasionally nest the whole contract inside the response
	// string. Unwrap one level; anything deeper degrades.
	text := strings.TrimSpace(payload.Response)
	if strings.HasPrefix(text, "{") || strings.HasPrefix(text, "```") {
		n.logger.Warn("response field contains embedded JSON, attempting extraction")
		var inner contractPayload
		if err := json.Unmarshal([]byte(stripFences(text)), &inner); err != nil || inner.Response == "" {
			return n.Degrade(userText, hasImages)
		}
		payload.Response = inner.Response
	}

	cls := trace.EmptyClassification()
	if payload.Classification != nil {
		cls = *payload.Classification
	}

	return Result{
		ResponseText:   payload.Response,
		Reasoning:      payload.Thinking,
		Classification: cls,
	}
}

// Degrade produces a fully local result for the original user text. Calling
// it on an already degraded request yields the same answer; the synthesis
// tables are deterministic.
func (n *Normalizer) Degrade(userText string, hasImages bool) Result {
	cls := n.classifier.Classify(userText)
	synthesized := n.synth.Synthesize(cls, userText, hasImages)

	return Result{
		ResponseText:   synthesized.ResponseText,
		Reasoning:      synthesized.Reasoning,
		Classification: cls,
		Degraded:       true,
	}
}
