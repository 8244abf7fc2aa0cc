// Package ranking implements the query-time scoring function: exact and
// prefix name matches dominate, lexical full-text rank orders the middle,
// and trigram similarity breaks ties and tolerates typos.
package ranking

import "strings"

// Trigrams extracts the trigram set of a string, pg_trgm style: each
// alphanumeric word is lowercased and padded with two leading and one
// trailing space before 3-grams are taken, so both backends score
// candidates identically.
func Trigrams(s string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, word := range splitWords(s) {
		padded := "  " + word + " "
		for i := 0; i+3 <= len(padded); i++ {
			set[padded[i:i+3]] = struct{}{}
		}
	}
	return set
}

// Similarity is the trigram similarity of two strings in [0, 1]:
// |intersection| / |union| of their trigram sets.
func Similarity(a, b string) float64 {
	ta, tb := Trigrams(a), Trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	shared := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			shared++
		}
	}
	union := len(ta) + len(tb) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}

func splitWords(s string) []string {
	s = strings.ToLower(s)
	return strings.FieldsFunc(s, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z':
			return false
		case r >= '0' && r <= '9':
			return false
		}
		return true
	})
}

// NormalizeQuery lowercases and whitespace-trims a query or name for
// matching against the stored name_norm/desc_norm columns.
func NormalizeQuery(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
