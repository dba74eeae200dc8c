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

// Package provider implements the direct model tier of the resolution
// pipeline: clients for the Gemini REST API and for OpenAI-compatible chat
// endpoints, plus the normalizer that enforces the structured response
// contract on whatever text a model returns.
package provider

import (
	"context"

	"github.com/your-org/opspilot/internal/trace"
)

// Request carries the user message and any attached images to a model.
type Request struct {
	Message string
	Images  []trace.ImageAttachment
}

// Result is the normalized outcome of a model call. Degraded marks results
// whose content was synthesized locally because the model output violated
// the response contract.
type Result struct {
	ResponseText   string
	Reasoning      []trace.ReasoningStep
	Classification trace.Classification
	Degraded       bool
}

// Provider generates a normalized result for a user request. A non-nil
// error always means the call never produced usable model output; contract
// violations are absorbed into a degraded Result instead.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (Result, error)
}

// Generation parameters shared by all model clients.
const (
	GenerationTemperature     = 0.7
	GenerationTopP            = 0.95
	GenerationMaxOutputTokens = 2048
)

// systemPrompt instructs the model to behave as an ITSM triage agent and to
// answer with the exact JSON structure the normalizer parses.
const systemPrompt = `You are an AI-powered IT Service Management (ITSM) Triage assistant.
Your task is to analyze IT issues, reason through possible solutions, and provide helpful responses.

Follow this process:
1. Analyze the user's issue and classify it into appropriate categories
2. Search for relevant solutions based on the issue type
3. Provide a clear, helpful response with step-by-step instructions

Structure your thinking as follows:
- First, classify the issue (e.g., "This is a printer issue with high confidence")
- Then, consider what solutions would be appropriate
- Finally, provide a comprehensive response to the user

Use a professional but friendly tone and focus on practical solutions.

IMPORTANT: You MUST respond with valid JSON only, and NOTHING else.
Do not include any text before or after the JSON.
Do not include markdown formatting like ` + "```json" + ` at the beginning or end.
Your response must be parsed directly as JSON by a computer program.

The JSON response MUST follow this exact structure:
{
  "thinking": [
    {
      "step": 1,
      "thought": "string - your analysis of the issue",
      "tool": "classify_issue",
      "tool_input": "string - the query to classify",
      "tool_output": {
        "issue_category1": 0.95,
        "issue_category2": 0.3
      }
    },
    {
      "step": 2,
      "thought": "string - your reasoning for solution lookup",
      "tool": "fetch_kb_solution",
      "tool_input": {
        "issue_type": "string - the primary category",
        "description": "string - brief description"
      },
      "tool_output": [
        {
          "id": "string - article ID",
          "title": "string - article title",
          "content": "string - solution steps",
          "relevance": 0.95
        }
      ]
    }
  ],
  "classification": {
    "results": {
      "category1": 0.95,
      "category2": 0.3
    },
    "top_categories": [
      {
        "category": "string - top category name",
        "confidence": 0.95
      }
    ]
  },
  "response": "string - your complete response to the user"
}`

// SystemPrompt returns the shared triage instruction block.
func SystemPrompt() string {
	return systemPrompt
}
