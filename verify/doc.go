// Package verify filters retrieval candidates down to the evidence that
// supports or contradicts a clause.
//
// Verification runs four stages in order: a similarity floor on the merged
// retrieval score, reranking with a pairwise relevance model (keeping the top
// few), entailment classification and a composite score per survivor.
// Neutral passages are dropped; contradicting ones are kept apart so the
// controller can refuse a clause that the corpus disputes.
package verify
