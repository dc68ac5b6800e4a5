// Package analysis turns evidence and query text into index terms.
//
// The same tokenizer feeds the lexical index at ingestion time, the lexical
// lane at query time and the offline rerank and entailment heuristics, so
// that a term matched in one place is matched everywhere.
package analysis
