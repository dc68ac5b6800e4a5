package openai

import (
	"fmt"
	"strings"

	"github.com/poiesic/attestor/ai"
)

const rerankSystemPrompt = `You score search results for relevance.

Output ONLY valid JSON of the form {"scores": [number, ...]} with exactly one score per passage,
in the order the passages are given. Do not include any preamble or explanation. Start your
response directly with the opening brace { and end with the closing brace }.

Rules:
- A score is a number from 0.0 (irrelevant) to 1.0 (directly answers the query).
- Judge each passage on its own; do not reward passages for mentioning the query words
  if they do not address what is asked.
- The JSON must parse without errors; no trailing commas and no extra keys.

Example:
Query: refund window
Passages:
[1] Refunds are processed within 30 days.
[2] Our office is closed on public holidays.
Output:
{"scores": [0.9, 0.0]}`

const rerankUserTemplate = `Query: %s
Passages:
%s`

const judgeSystemPrompt = `You decide whether passages support a statement.

Output ONLY valid JSON of the form
{"judgments": [{"label": "support|neutral|contradict", "confidence": number}, ...]}
with exactly one judgment per passage, in the order the passages are given. Do not include
any preamble or explanation.

Rules:
- "support": the passage, read on its own, states or directly implies the statement.
- "contradict": the passage states something that cannot be true if the statement is true.
- "neutral": anything else, including passages that are on topic but do not settle the statement.
- Use only the passage text. Do not use outside knowledge.
- Confidence is a number from 0.0 to 1.0.

Example:
Statement: Refunds are processed within 30 days.
Passages:
[1] All refunds are processed within 30 days of the return.
[2] Refunds take up to 60 days.
[3] Refunds are issued to the original payment method.
Output:
{"judgments": [
  {"label": "support", "confidence": 0.95},
  {"label": "contradict", "confidence": 0.85},
  {"label": "neutral", "confidence": 0.8}
]}`

const judgeUserTemplate = `Statement: %s
Passages:
%s`

const proposeSystemPrompt = `You plan answers that will be checked sentence by sentence against a document corpus.

Propose the NEXT single clause of the answer: one short, verifiable, declarative statement that
covers one aspect of the question not yet covered. Also give a search subquery that would find
evidence for it. Vector and keyword search work best with the specific words the evidence
would contain.

Output ONLY valid JSON of the form {"clause": string, "subquery": string, "done": boolean}.

Rules:
- If the accepted clauses already answer the question, return {"clause": "", "subquery": "", "done": true}.
- Never repeat an accepted clause or a clause listed as unsupported.
- When asked to revise, state the same aspect differently or more narrowly; do not restate it verbatim.
- If you cannot guess the answer, leave "clause" empty and give only the subquery; the clause
  will then be taken from the best evidence found.

Example:
Question: What is the refund window?
Accepted clauses: none
Output:
{"clause": "Refunds are accepted within 30 days of purchase.", "subquery": "refund window days", "done": false}`

// buildProposalPrompt renders the planning state for the proposer.
func buildProposalPrompt(req ai.ProposalRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n", req.Query)
	writeList(&sb, "Accepted clauses", req.Accepted)
	writeList(&sb, "Unsupported clauses (do not propose again)", req.Gaps)
	if req.Revising != "" {
		fmt.Fprintf(&sb, "Revise this clause, which could not be verified: %s\n", req.Revising)
	}
	return sb.String()
}

func writeList(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		fmt.Fprintf(sb, "%s: none\n", title)
		return
	}
	fmt.Fprintf(sb, "%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(sb, "- %s\n", item)
	}
}
