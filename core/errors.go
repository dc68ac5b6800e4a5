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


package core

import "errors"

// Domain validation errors
var (
	// ErrInvalidDocument indicates a reconciliation request failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrEmptyDocumentID indicates the document identifier is empty.
	ErrEmptyDocumentID = errors.New("document id cannot be empty")

	// ErrEmptyScope indicates no authorization scope was supplied.
	ErrEmptyScope = errors.New("scope cannot be empty")

	// ErrEmptyQuery indicates the query text is empty after normalization.
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrInvalidQuery indicates a query failed validation.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrCorruptRecord indicates a persisted record could not be decoded.
	ErrCorruptRecord = errors.New("corrupt record")
)

// Query pipeline errors
var (
	// ErrRetrievalLaneFailure indicates a single retrieval lane failed or timed out.
	// It is absorbed by the retriever, which degrades to the remaining lane.
	ErrRetrievalLaneFailure = errors.New("retrieval lane failure")

	// ErrRetrievalTotalFailure indicates both retrieval lanes failed for one call.
	// It is retryable and surfaced to the caller.
	ErrRetrievalTotalFailure = errors.New("retrieval total failure")

	// ErrPlannerFailure indicates the planner produced malformed output or timed out.
	ErrPlannerFailure = errors.New("planner failure")

	// ErrVerificationInconclusive indicates no candidate passed verification thresholds.
	ErrVerificationInconclusive = errors.New("verification inconclusive")

	// ErrClauseAbandoned indicates a clause exhausted its revision budget.
	ErrClauseAbandoned = errors.New("clause abandoned")

	// ErrQueryAborted indicates the caller cancelled the query. Nothing is persisted.
	ErrQueryAborted = errors.New("query aborted")
)
