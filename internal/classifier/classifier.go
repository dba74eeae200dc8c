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

// Package classifier provides keyword-based classification of IT issue
// descriptions. It is the degraded-path substitute for model classification:
// always available, always returns a result.
package classifier

import (
	"sort"
	"strings"

	"github.com/your-org/opspilot/internal/trace"
)

// Classification scoring constants
const (
	// BaselineScore is the score every category starts at.
	BaselineScore = 0.1
	// ScoreThreshold is the minimum score for a category to appear in
	// TopCategories.
	ScoreThreshold = 0.3
	// DefaultTopCategoryLimit caps the number of top categories reported.
	DefaultTopCategoryLimit = 3
)

// categoryDef binds a category name to its trigger keywords and the fixed
// score a keyword match raises it to. Table order is the tie-break order for
// equal scores.
type categoryDef struct {
	name     string
	score    float64
	keywords []string
}

// KeywordClassifier classifies free text into IT issue categories by
// case-insensitive substring matching. Classification is non-exclusive: an
// issue can plausibly belong to more than one category.
type KeywordClassifier struct {
	categories []categoryDef
	topLimit   int
}

// NewKeywordClassifier creates a classifier reporting at most topLimit top
// categories. A non-positive limit selects DefaultTopCategoryLimit.
func NewKeywordClassifier(topLimit int) *KeywordClassifier {
	if topLimit <= 0 {
		topLimit = DefaultTopCategoryLimit
	}

	return &KeywordClassifier{
		topLimit: topLimit,
		categories: []categoryDef{
			{name: "password_reset", score: 0.8, keywords: []string{
				"password", "forgot",
			}},
			{name: "software_installation", score: 0.8, keywords: []string{
				"install", "software",
			}},
			{name: "hardware_failure", score: 0.75, keywords: []string{
				"hardware", "computer", "laptop", "monitor", "keyboard", "broken",
			}},
			{name: "network_connectivity", score: 0.8, keywords: []string{
				"wifi", "internet", "connection", "network",
			}},
			{name: "access_permission", score: 0.8, keywords: []string{
				"access", "permission",
			}},
			{name: "email_issues", score: 0.8, keywords: []string{
				"email", "outlook",
			}},
			{name: "printer_issues", score: 0.85, keywords: []string{
				"print", "printer", "scanner", "toner", "ink",
			}},
			{name: "security_incident", score: 0.8, keywords: []string{
				"security", "virus",
			}},
			{name: "application_login_issues", score: 0.75, keywords: []string{
				"login", "microsoft", "teams", "office",
			}},
			{name: "data_loss", score: 0.8, keywords: []string{
				"lost", "delete", "deleted",
			}},
		},
	}
}

// Classify scores the text against every category and returns the full
// distribution plus the thresholded, sorted, truncated top categories. It
// never fails; text with no keyword match yields the baseline distribution
// and an empty top-category list.
func (c *KeywordClassifier) Classify(text string) trace.Classification {
	lower := strings.ToLower(text)

	results := make(map[string]float64, len(c.categories))
	ordered := make([]trace.CategoryScore, 0, len(c.categories))

	for _, def := range c.categories {
		score := BaselineScore
		for _, keyword := range def.keywords {
			if strings.Contains(lower, keyword) {
				score = def.score
				break
			}
		}
		results[def.name] = score
		ordered = append(ordered, trace.CategoryScore{Category: def.name, Confidence: score})
	}

	top := make([]trace.CategoryScore, 0, c.topLimit)
	for _, cs := range ordered {
		if cs.Confidence > ScoreThreshold {
			top = append(top, cs)
		}
	}

	// Stable sort keeps category-table order for equal scores.
	sort.SliceStable(top, func(i, j int) bool {
		return top[i].Confidence > top[j].Confidence
	})

	if len(top) > c.topLimit {
		top = top[:c.topLimit]
	}

	return trace.Classification{
		Results:       results,
		TopCategories: top,
	}
}

// Categories returns the category names in table order.
func (c *KeywordClassifier) Categories() []string {
	names := make([]string, len(c.categories))
	for i, def := range c.categories {
		names[i] = def.name
	}
	return names
}
