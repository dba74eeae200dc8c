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
	"reflect"
	"strings"
	"testing"

	"github.com/your-org/opspilot/internal/classifier"
	"github.com/your-org/opspilot/internal/synthesis"
)

func newTestNormalizer() *Normalizer {
	return NewNormalizer(
		classifier.NewKeywordClassifier(classifier.DefaultTopCategoryLimit),
		synthesis.NewSynthesizer(),
		nil,
	)
}

const validPayload = `{
  "thinking": [
    {"step": 1, "thought": "printer issue", "tool": "classify_issue", "tool_input": "printer down", "tool_output": {"printer_issues": 0.85}}
  ],
  "classification": {
    "results": {"printer_issues": 0.85},
    "top_categories": [{"category": "printer_issues", "confidence": 0.85}]
  },
  "response": "Try restarting the printer."
}`

func TestNormalizeValidPayload(t *testing.T) {
	n := newTestNormalizer()

	result := n.Normalize(validPayload, "printer down", false)
	if result.Degraded {
		t.Fatal("valid payload should not degrade")
	}
	if result.ResponseText != "Try restarting the printer." {
		t.Errorf("response = %q", result.ResponseText)
	}
	if len(result.Reasoning) != 1 {
		t.Errorf("reasoning steps = %d, want 1", len(result.Reasoning))
	}
	if len(result.Classification.TopCategories) != 1 ||
		result.Classification.TopCategories[0].Category != "printer_issues" {
		t.Errorf("unexpected classification: %+v", result.Classification)
	}
}

func TestNormalizeStripsFences(t *testing.T) {
	n := newTestNormalizer()

	fenced := "```json\n" + validPayload + "\n```"
	result := n.Normalize(fenced, "printer down", false)
	if result.Degraded {
		t.Fatal("fenced payload should not degrade")
	}
	if result.ResponseText != "Try restarting the printer." {
		t.Errorf("response = %q", result.ResponseText)
	}
}

func TestNormalizeFencedMinimalPayload(t *testing.T) {
	n := newTestNormalizer()

	result := n.Normalize("```json\n{\"response\":\"x\"}\n```", "anything", false)
	if result.Degraded {
		t.Fatal("fenced minimal payload should not degrade")
	}
	if result.ResponseText != "x" {
		t.Errorf("response = %q, want x", result.ResponseText)
	}
}

func TestNormalizeInvalidJSONDegrades(t *testing.T) {
	n := newTestNormalizer()

	result := n.Normalize("Sure, here is my analysis of your printer issue...", "my printer is broken", false)
	if !result.Degraded {
		t.Fatal("non-JSON output must degrade")
	}
	if result.ResponseText == "" {
		t.Error("degraded result has empty response")
	}
	if len(result.Classification.TopCategories) == 0 {
		t.Error("degraded result has no classification")
	}
	if result.Classification.TopCategories[0].Category != "printer_issues" {
		t.Errorf("degraded classification top = %q, want printer_issues",
			result.Classification.TopCategories[0].Category)
	}
}

func TestNormalizeMissingResponseWithContractKeys(t *testing.T) {
	n := newTestNormalizer()

	payload := `{"thinking": [], "classification": {"results": {}, "top_categories": []}}`
	result := n.Normalize(payload, "email not syncing in outlook", false)
	if !result.Degraded {
		t.Fatal("payload with contract keys but no response must degrade")
	}
}

func TestNormalizeMissingResponseSubstitutesApology(t *testing.T) {
	n := newTestNormalizer()

	result := n.Normalize(`{"something_else": true}`, "hello", false)
	if result.Degraded {
		t.Fatal("payload without contract keys should not degrade")
	}
	if result.ResponseText != formattingApology {
		t.Errorf("response = %q, want formatting apology", result.ResponseText)
	}
}

func TestNormalizeUnwrapsEmbeddedJSON(t *testing.T) {
	n := newTestNormalizer()

	embedded := `{"thinking": [], "classification": {"results": {}, "top_categories": []}, "response": "{\"thinking\": [], \"classification\": {\"results\": {}, \"top_categories\": []}, \"response\": \"The actual answer.\"}"}`
	result := n.Normalize(embedded, "hello", false)
	if result.Degraded {
		t.Fatalf("single-level embedded JSON should unwrap, got degraded with %q", result.ResponseText)
	}
	if result.ResponseText != "The actual answer." {
		t.Errorf("response = %q, want unwrapped answer", result.ResponseText)
	}
}

func TestNormalizeUnextractableEmbeddedJSONDegrades(t *testing.T) {
	n := newTestNormalizer()

	payload := `{"thinking": [], "classification": {"results": {}, "top_categories": []}, "response": "{not valid json"}`
	result := n.Normalize(payload, "wifi keeps dropping", false)
	if !result.Degraded {
		t.Fatal("unextractable embedded JSON must degrade")
	}
	if !strings.Contains(result.ResponseText, "network") {
		t.Errorf("degraded response should address the network issue, got %q", result.ResponseText)
	}
}

func TestDegradationMatchesDirectSynthesis(t *testing.T) {
	n := newTestNormalizer()
	c := classifier.NewKeywordClassifier(classifier.DefaultTopCategoryLimit)
	s := synthesis.NewSynthesizer()

	userText := "my printer and my password are both broken"
	degraded := n.Normalize("not json at all", userText, false)

	cls := c.Classify(userText)
	direct := s.Synthesize(cls, userText, false)

	if degraded.ResponseText != direct.ResponseText {
		t.Errorf("degraded response %q differs from direct synthesis %q",
			degraded.ResponseText, direct.ResponseText)
	}
	if !reflect.DeepEqual(degraded.Classification, cls) {
		t.Error("degraded classification differs from direct classification")
	}
	if len(degraded.Reasoning) != len(direct.Reasoning) {
		t.Errorf("reasoning steps = %d, want %d", len(degraded.Reasoning), len(direct.Reasoning))
	}
}

func TestDegradeIsDeterministic(t *testing.T) {
	n := newTestNormalizer()

	first := n.Degrade("I forgot my password", false)
	second := n.Degrade("I forgot my password", false)

	if first.ResponseText != second.ResponseText {
		t.Error("degraded responses differ between calls")
	}
	if !reflect.DeepEqual(first.Classification, second.Classification) {
		t.Error("degraded classifications differ between calls")
	}
	if !first.Degraded || !second.Degraded {
		t.Error("degraded results not flagged")
	}
}
