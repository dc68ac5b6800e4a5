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


// Package search implements the dual-lane retriever.
//
// Every call runs two independent lanes in parallel:
//   - the vector lane embeds the query and ranks embedded units by cosine similarity
//   - the lexical lane ranks every active unit by BM25, embedded or not
//
// Each lane is bounded by its own timeout. Scores are normalized to [0,1] per
// lane and merged by evidence ID; a unit found by both lanes takes the higher
// score plus a fixed bonus. A lane that errors or times out is reported in
// Result.Degraded and contributes nothing. Only when both lanes fail does the
// call return ErrRetrievalTotalFailure.
package search
