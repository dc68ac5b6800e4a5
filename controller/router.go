// Copyright 2025 Poiesic Systems
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


package controller

import (
	"strings"
	"unicode"

	"github.com/poiesic/attestor/analysis"
	"github.com/poiesic/attestor/core"
	"github.com/poiesic/attestor/planner"
)

// DefaultFastPathMaxTerms is the longest query, in index terms, that can
// take the fast path.
const DefaultFastPathMaxTerms = 8

// reasoningCues mark queries that ask for explanation or comparison rather
// than a single fact.
var reasoningCues = map[string]bool{
	"why":          true,
	"explain":      true,
	"compare":      true,
	"comparison":   true,
	"difference":   true,
	"differences":  true,
	"versus":       true,
	"vs":           true,
	"relationship": true,
	"impact":       true,
	"implications": true,
	"tradeoff":     true,
	"tradeoffs":    true,
	"pros":         true,
	"cons":         true,
}

// Router classifies queries into the fast or the reasoning path.
type Router struct {
	// FastPathMaxTerms bounds the query length eligible for the fast path.
	FastPathMaxTerms int
}

// NewRouter returns a router with default limits.
func NewRouter() Router {
	return Router{FastPathMaxTerms: DefaultFastPathMaxTerms}
}

// Classify picks RouteFast for short single-aspect factual queries and
// RouteReason for everything else, including queries it cannot judge.
func (r Router) Classify(query string) core.Route {
	if len(planner.Decompose(query)) != 1 || planner.Ambiguous(query) {
		return core.RouteReason
	}
	terms := analysis.UniqueTerms(query)
	if len(terms) == 0 || len(terms) > r.FastPathMaxTerms {
		return core.RouteReason
	}
	words := strings.FieldsFunc(strings.ToLower(query), func(c rune) bool {
		return !unicode.IsLetter(c) && !unicode.IsDigit(c)
	})
	for _, w := range words {
		if reasoningCues[w] {
			return core.RouteReason
		}
	}
	return core.RouteFast
}
