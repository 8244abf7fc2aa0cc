package ranking

import (
	"sort"

	"github.com/mancorpus/mancorpus/internal/manpage"
)

// Scoring weights, in strictly dominating order: an exact name match always
// outranks any combination of the lower signals.
const (
	exactWeight   = 1000.0
	prefixWeight  = 100.0
	lexicalWeight = 50.0
	nameTrigram   = 10.0
	descTrigram   = 2.0

	// SuggestThreshold is the minimum trigram similarity for a
	// prefix/typo suggestion.
	SuggestThreshold = 0.3
)

// Candidate is one row fetched from the store for scoring. LexRank is the
// backend's full-text relevance for the query, already weighted toward
// name/title over body, scaled to [0, 1].
type Candidate struct {
	PageID      string
	Name        string
	Section     string
	Title       string
	Description string
	LexRank     float64
}

// Result is one scored candidate.
type Result struct {
	Candidate
	Score float64
}

// Score ranks candidates for a normalized query and returns them in final
// order: score descending, then shorter name, then section ascending, then
// page id. The ordering is fully deterministic for a fixed corpus.
func Score(query string, candidates []Candidate) []Result {
	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		name := NormalizeQuery(c.Name)
		score := 0.0
		if name == query {
			score += exactWeight
		} else if hasPrefix(name, query) {
			score += prefixWeight
		}
		score += lexicalWeight * clamp01(c.LexRank)
		score += nameTrigram * Similarity(name, query)
		score += descTrigram * Similarity(c.Description, query)
		results = append(results, Result{Candidate: c, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if len(a.Name) != len(b.Name) {
			return len(a.Name) < len(b.Name)
		}
		if c := manpage.CompareSections(a.Section, b.Section); c != 0 {
			return c < 0
		}
		return a.PageID < b.PageID
	})
	return results
}

func hasPrefix(name, query string) bool {
	return query != "" && len(name) > len(query) && name[:len(query)] == query
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// Suggestion is one prefix/fuzzy name suggestion.
type Suggestion struct {
	Name        string
	Section     string
	Description string
	Similarity  float64
}

// Suggest filters candidates by trigram similarity against the prefix,
// orders them similarity descending then name/section ascending, dedupes
// by name and caps the result at limit.
func Suggest(prefix string, candidates []Candidate, limit int) []Suggestion {
	prefix = NormalizeQuery(prefix)
	var out []Suggestion
	for _, c := range candidates {
		name := NormalizeQuery(c.Name)
		sim := Similarity(name, prefix)
		if name != prefix && !hasPrefix(name, prefix) && sim < SuggestThreshold {
			continue
		}
		out = append(out, Suggestion{
			Name:        c.Name,
			Section:     c.Section,
			Description: c.Description,
			Similarity:  sim,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return manpage.CompareSections(a.Section, b.Section) < 0
	})

	seen := map[string]bool{}
	deduped := out[:0]
	for _, s := range out {
		if seen[s.Name] {
			continue
		}
		seen[s.Name] = true
		deduped = append(deduped, s)
		if len(deduped) == limit {
			break
		}
	}
	return deduped
}
