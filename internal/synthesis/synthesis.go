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

// Package synthesis produces deterministic troubleshooting responses for a
// classified issue: a canned multi-step script per category plus a two-step
// reasoning trace. This is the degraded-path substitute for model output.
package synthesis

import (
	"fmt"

	"github.com/your-org/opspilot/internal/trace"
)

// Tool names used in synthesized reasoning steps.
const (
	ToolClassifyIssue   = "classify_issue"
	ToolFetchKBSolution = "fetch_kb_solution"
)

// Result is the synthesizer output: the user-facing response text and the
// fabricated reasoning trace behind it.
type Result struct {
	ResponseText string
	Reasoning    []trace.ReasoningStep
}

// Synthesizer maps a top category to a canned troubleshooting script and
// knowledge-base lookup. It is a pure lookup table; there is no ranking or
// learning logic.
type Synthesizer struct{}

// NewSynthesizer creates a response synthesizer.
func NewSynthesizer() *Synthesizer {
	return &Synthesizer{}
}

// Synthesize builds a response for the classification's top category. An
// empty top-category list or an unknown category falls to the default entry.
// Every result carries exactly two reasoning steps: the classification and
// the knowledge-base fetch.
func (s *Synthesizer) Synthesize(cls trace.Classification, text string, hasImages bool) Result {
	topCategory := "other"
	if len(cls.TopCategories) > 0 {
		topCategory = cls.TopCategories[0].Category
	}

	reasoning := []trace.ReasoningStep{
		{
			Step:       1,
			Thought:    fmt.Sprintf("Analyzing user query: %q", text),
			Tool:       ToolClassifyIssue,
			ToolInput:  text,
			ToolOutput: cls.Results,
		},
		{
			Step:    2,
			Thought: fmt.Sprintf("Fetching solution for %s", topCategory),
			Tool:    ToolFetchKBSolution,
			ToolInput: map[string]string{
				"issue_type":  topCategory,
				"description": text,
			},
			ToolOutput: articlesForCategory(topCategory),
		},
	}

	return Result{
		ResponseText: responseForCategory(topCategory, text, hasImages),
		Reasoning:    reasoning,
	}
}
