package fraud

import (
	"strings"
	"unicode"
)

// Similarity compares two response texts and returns a score in [0,1].
// Implementations must be deterministic and symmetric.
type Similarity interface {
	Compare(a, b string) float64
}

// JaccardSimilarity measures token-set overlap: the size of the
// intersection over the size of the union of the two token sets.
// Tokens are lowercased words; punctuation separates tokens. Identical
// texts score 1.0, disjoint texts 0.0.
type JaccardSimilarity struct{}

func (JaccardSimilarity) Compare(a, b string) float64 {
	ta := tokenize(a)
	tb := tokenize(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 0
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	intersection := 0
	for tok := range ta {
		if tb[tok] {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	return float64(intersection) / float64(union)
}

func tokenize(s string) map[string]bool {
	tokens := make(map[string]bool)
	for _, field := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		tokens[field] = true
	}
	return tokens
}
