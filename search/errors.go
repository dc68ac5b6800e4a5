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


package search

import (
	"errors"
	"fmt"

	"github.com/poiesic/attestor/core"
)

var (
	// ErrEvidenceRepositoryRequired is returned when an evidence repository is not provided.
	ErrEvidenceRepositoryRequired = errors.New("evidence repository required")

	// ErrVectorIndexRequired is returned when a vector index is not provided.
	ErrVectorIndexRequired = errors.New("vector index required")

	// ErrLexicalIndexRequired is returned when a lexical index is not provided.
	ErrLexicalIndexRequired = errors.New("lexical index required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrRetrievalTotalFailure is returned when both lanes fail in one call.
	// The call may be retried.
	ErrRetrievalTotalFailure = core.ErrRetrievalTotalFailure
)

// LaneFailure records why one lane contributed nothing to a retrieval call.
type LaneFailure struct {
	Lane core.Lane
	Err  error
}

func (f *LaneFailure) Error() string {
	return fmt.Sprintf("%s lane: %v", f.Lane, f.Err)
}

func (f *LaneFailure) Unwrap() error {
	return f.Err
}

// IsRetryable reports whether err is a transient retrieval failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRetrievalTotalFailure)
}
