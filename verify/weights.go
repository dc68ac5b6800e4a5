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


package verify

import (
	"fmt"
	"math"
)

const (
	// DefaultMinSimilarity is the merged retrieval score below which candidates are discarded.
	DefaultMinSimilarity = 0.2
	// DefaultKeepTop is how many reranked candidates reach entailment.
	DefaultKeepTop = 3
	// DefaultAcceptanceThreshold is the composite score a support needs to count.
	DefaultAcceptanceThreshold = 0.6
)

// Weights sets the contribution of each stage to the composite score.
type Weights struct {
	Similarity float64 `yaml:"similarity"`
	Rerank     float64 `yaml:"rerank"`
	Entailment float64 `yaml:"entailment"`
}

// EqualWeights weighs every stage the same.
func EqualWeights() Weights {
	return Weights{Similarity: 1, Rerank: 1, Entailment: 1}
}

// Validate checks that weights are non-negative and not all zero.
func (w Weights) Validate() error {
	for _, v := range []float64{w.Similarity, w.Rerank, w.Entailment} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: weights must be finite and non-negative", ErrInvalidConfig)
		}
	}
	if w.Similarity+w.Rerank+w.Entailment == 0 {
		return fmt.Errorf("%w: at least one weight must be positive", ErrInvalidConfig)
	}
	return nil
}

// Composite is the weighted mean of the three stage scores.
func (w Weights) Composite(similarity, rerank, entailment float64) float64 {
	total := w.Similarity + w.Rerank + w.Entailment
	if total == 0 {
		return 0
	}
	return (w.Similarity*similarity + w.Rerank*rerank + w.Entailment*entailment) / total
}
