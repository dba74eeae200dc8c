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

// Package trace defines the value types shared across the triage pipeline
// (classifications, reasoning steps, traces) and the trace store that keeps
// one immutable record per handled request.
package trace

import (
	"strings"
	"time"
)

// CategoryScore is a single category/confidence pair in a classification.
type CategoryScore struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// Classification is the category-confidence distribution produced for a
// piece of input text. TopCategories is Results filtered to scores above the
// configured threshold, sorted descending and truncated. Value object,
// never mutated after construction.
type Classification struct {
	Results       map[string]float64 `json:"results"`
	TopCategories []CategoryScore    `json:"top_categories"`
}

// EmptyClassification returns the zero-information classification used when
// the model omits the classification field.
func EmptyClassification() Classification {
	return Classification{
		Results:       map[string]float64{},
		TopCategories: []CategoryScore{},
	}
}

// ReasoningStep is one ordered step in an agent reasoning trace. Steps are
// numbered contiguously starting at 1 and are append-only during trace
// construction.
type ReasoningStep struct {
	Step       int    `json:"step"`
	Thought    string `json:"thought,omitempty"`
	Tool       string `json:"tool,omitempty"`
	ToolInput  any    `json:"tool_input,omitempty"`
	ToolOutput any    `json:"tool_output,omitempty"`
}

// KBArticle is a canned knowledge-base article returned as the tool output
// of a fetch_kb_solution reasoning step. Relevance is a fixed literal per
// article, not a computed score.
type KBArticle struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Content   string  `json:"content"`
	Relevance float64 `json:"relevance"`
}

// ImageAttachment is an inline image owned by the request that carried it.
// AnalysisResults is optional enrichment attached when a vision-capable path
// inspects the image.
type ImageAttachment struct {
	ID              string         `json:"id"`
	Base64Data      string         `json:"base64_data"`
	ContentType     string         `json:"content_type"`
	Name            string         `json:"name"`
	AnalysisResults map[string]any `json:"analysis_results,omitempty"`
}

// Trace is the persisted record of one handled request: its input, final
// output and reasoning steps, retrievable by ID. Created once per request
// and never updated afterwards.
type Trace struct {
	ID             string            `json:"id"`
	Timestamp      time.Time         `json:"timestamp"`
	Input          string            `json:"input"`
	FinalOutput    string            `json:"final_output"`
	Completed      bool              `json:"completed"`
	Steps          []ReasoningStep   `json:"steps"`
	Classification *Classification   `json:"classification,omitempty"`
	HasImages      bool              `json:"has_images"`
	Images         []ImageAttachment `json:"images,omitempty"`
}

// ErrorDescriptor reports why a request resolved without a model response.
type ErrorDescriptor struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ErrorKindLLM marks results produced after the direct model tier failed.
const ErrorKindLLM = "LLM_ERROR"

// ResolutionResult is the unified response contract returned to callers
// regardless of which tier produced it.
type ResolutionResult struct {
	TraceID        string           `json:"trace_id"`
	Response       string           `json:"response"`
	Reasoning      []ReasoningStep  `json:"reasoning"`
	Completed      bool             `json:"completed"`
	Classification *Classification  `json:"classification,omitempty"`
	Error          *ErrorDescriptor `json:"error,omitempty"`
}

// NewImageAttachment builds an attachment from raw request image data,
// splitting off a data URI prefix when one is present.
func NewImageAttachment(id, data string) ImageAttachment {
	contentType := "image/jpeg"
	base64Data := data

	if strings.HasPrefix(data, "data:") {
		if idx := strings.Index(data, ";"); idx > len("data:") {
			contentType = data[len("data:"):idx]
		}
		if idx := strings.Index(data, ","); idx >= 0 {
			base64Data = data[idx+1:]
		}
	}

	return ImageAttachment{
		ID:          id,
		Base64Data:  base64Data,
		ContentType: contentType,
		Name:        id + ".jpg",
	}
}
