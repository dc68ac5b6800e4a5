package analysis

import (
	"strings"
	"unicode"
)

// Stop words removed before indexing and overlap scoring
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true,
	"at": true, "be": true, "by": true, "for": true, "from": true,
	"has": true, "have": true, "in": true, "is": true, "it": true,
	"its": true, "of": true, "on": true, "or": true, "that": true,
	"the": true, "to": true, "was": true, "were": true, "with": true,
	"this": true, "but": true, "they": true, "we": true, "you": true,
	"your": true, "do": true, "does": true, "did": true, "what": true,
	"which": true, "who": true, "how": true, "when": true, "where": true,
	"why": true, "there": true, "their": true, "been": true, "can": true,
}

// negations flip the polarity of a statement.
var negations = map[string]bool{
	"not": true, "no": true, "never": true, "none": true, "cannot": true,
	"without": true, "nor": true, "neither": true, "nothing": true,
	"isn't": true, "aren't": true, "wasn't": true, "weren't": true,
	"don't": true, "doesn't": true, "didn't": true, "won't": true,
	"can't": true, "shouldn't": true, "wouldn't": true,
}

// words splits lowercased text on anything that is not a letter, digit or apostrophe.
func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(c rune) bool {
		return !unicode.IsLetter(c) && !unicode.IsDigit(c) && c != '\''
	})
}

// Tokenize splits text into lowercase index terms.
// Punctuation, stop words and negations are dropped and plurals are folded.
func Tokenize(text string) []string {
	raw := words(text)
	tokens := make([]string, 0, len(raw))
	for _, w := range raw {
		w = strings.Trim(w, "'")
		if w == "" || stopWords[w] || negations[w] {
			continue
		}
		if len([]rune(w)) < 2 && !isNumber(w) {
			continue
		}
		tokens = append(tokens, Stem(w))
	}
	return tokens
}

// TermFrequencies counts the terms of text.
func TermFrequencies(text string) map[string]int {
	tf := make(map[string]int)
	for _, t := range Tokenize(text) {
		tf[t]++
	}
	return tf
}

// UniqueTerms returns the distinct terms of text in first-seen order.
func UniqueTerms(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range Tokenize(text) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// Stem folds common English inflections so that "refunds" matches "refund".
func Stem(w string) string {
	n := len(w)
	switch {
	case n > 4 && strings.HasSuffix(w, "ies"):
		return w[:n-3] + "y"
	case n > 4 && strings.HasSuffix(w, "sses"):
		return w[:n-2]
	case n > 3 && strings.HasSuffix(w, "es") && strings.ContainsAny(w[n-3:n-2], "sxz"):
		return w[:n-2]
	case n > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") && !strings.HasSuffix(w, "us"):
		return w[:n-1]
	}
	return w
}

// Negated reports whether text contains an odd number of negation words.
func Negated(text string) bool {
	count := 0
	for _, w := range words(text) {
		if negations[w] || strings.HasSuffix(w, "n't") {
			count++
		}
	}
	return count%2 == 1
}

// Overlap returns the fraction of query terms that appear in document, in [0,1].
func Overlap(query, document string) float64 {
	qTerms := UniqueTerms(query)
	if len(qTerms) == 0 {
		return 0
	}
	docTerms := make(map[string]bool)
	for _, t := range Tokenize(document) {
		docTerms[t] = true
	}
	hits := 0
	for _, t := range qTerms {
		if docTerms[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(qTerms))
}

// ContainsAllTerms checks if every query term appears in the document.
func ContainsAllTerms(document, query string) bool {
	return len(UniqueTerms(query)) > 0 && Overlap(query, document) == 1
}

// Numbers returns the numeric tokens of text in order.
func Numbers(text string) []string {
	var out []string
	for _, w := range words(text) {
		if isNumber(w) {
			out = append(out, w)
		}
	}
	return out
}

func isNumber(w string) bool {
	for _, r := range w {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return w != ""
}
