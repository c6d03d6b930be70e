package consistency

import "github.com/pmezard/go-difflib/difflib"

// SimilarityFunc scores two texts in [0, 1].
type SimilarityFunc func(a, b string) float64

// Similarity returns the longest-matching-blocks ratio 2*M/T of a and b,
// compared code point by code point. Two empty strings score 1.0.
//
// The pair is put in canonical order before matching so that
// Similarity(a, b) == Similarity(b, a).
func Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a > b {
		a, b = b, a
	}
	return difflib.NewMatcher(splitRunes(a), splitRunes(b)).Ratio()
}

func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
