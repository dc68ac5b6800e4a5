package planner

import (
	"regexp"
	"slices"
	"strings"

	"github.com/poiesic/attestor/analysis"
	"github.com/poiesic/attestor/core"
)

// MaxSubquestions caps how many subquestions a query is split into.
const MaxSubquestions = 6

var (
	sentenceBreak    = regexp.MustCompile(`[?;]+|\.\s+`)
	conjunctionBreak = regexp.MustCompile(`(?i),?\s+\b(?:and also|as well as|and|also|plus)\b\s+`)
)

// interrogatives start a new question after a conjunction, however short.
var interrogatives = map[string]bool{
	"who": true, "whom": true, "whose": true, "what": true, "when": true,
	"where": true, "why": true, "how": true, "which": true,
}

// Decompose splits query into single-aspect subquestions. An atomic query
// yields itself as the only subquestion. Parts without any index term are
// folded away, and duplicates collapse.
func Decompose(query string) []string {
	subs, _ := decompose(query)
	return subs
}

// Ambiguous reports whether query joins clauses with a conjunction that
// Decompose kept inside one subquestion, as in "terms and conditions".
// Such a query may still hold more than one aspect.
func Ambiguous(query string) bool {
	_, joined := decompose(query)
	return joined
}

func decompose(query string) ([]string, bool) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, false
	}

	var parts []string
	joined := false
	for _, sentence := range sentenceBreak.Split(query, -1) {
		split, kept := splitConjunctions(sentence)
		joined = joined || kept
		for _, part := range split {
			part = strings.TrimSpace(strings.Trim(part, " ,.?;"))
			if len(analysis.UniqueTerms(part)) == 0 {
				continue
			}
			parts = append(parts, part)
		}
	}

	seen := make(map[string]bool, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		key := core.NormalizeText(p)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}

	if len(out) <= 1 {
		return []string{query}, joined
	}
	if len(out) > MaxSubquestions {
		out = out[:MaxSubquestions]
	}
	for i, p := range out {
		if !strings.HasSuffix(p, "?") && isQuestion(query) {
			out[i] = p + "?"
		}
	}
	return out, joined
}

// splitConjunctions splits "X and Y" when Y opens a new question or both
// sides carry at least two index terms, so "terms and conditions" stays
// whole while "the refund window and who is the CEO" splits. It also reports
// whether any conjunction was kept.
func splitConjunctions(sentence string) ([]string, bool) {
	pieces := conjunctionBreak.Split(sentence, -1)
	if len(pieces) == 1 {
		return pieces, false
	}
	out := []string{pieces[0]}
	kept := false
	for _, p := range pieces[1:] {
		last := out[len(out)-1]
		if startsQuestion(p) || (len(analysis.UniqueTerms(last)) >= 2 && len(analysis.UniqueTerms(p)) >= 2) {
			out = append(out, p)
			continue
		}
		out[len(out)-1] = last + " and " + p
		kept = true
	}
	return out, kept
}

func startsQuestion(part string) bool {
	fields := strings.Fields(part)
	return len(fields) > 0 && interrogatives[strings.ToLower(fields[0])]
}

func isQuestion(query string) bool {
	return strings.Contains(query, "?")
}

// Reformulate rewrites a subquery for a revision attempt, broadening it each
// time: first to its keywords, then to its longer half of keywords, then to
// its single most specific keyword.
func Reformulate(subquery string, revision int) string {
	terms := analysis.UniqueTerms(subquery)
	if len(terms) == 0 || revision <= 0 {
		return subquery
	}
	if revision == 1 {
		return strings.Join(terms, " ")
	}

	ranked := slices.Clone(terms)
	slices.SortStableFunc(ranked, func(a, b string) int {
		return len(b) - len(a)
	})
	if revision == 2 && len(ranked) > 1 {
		return strings.Join(ranked[:(len(ranked)+1)/2], " ")
	}
	return ranked[0]
}
