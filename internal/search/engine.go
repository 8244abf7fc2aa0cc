// Package search is the query-side engine: it resolves the active
// release, fetches candidates from the store and ranks them.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mancorpus/mancorpus/internal/manpage"
	"github.com/mancorpus/mancorpus/internal/ranking"
	"github.com/mancorpus/mancorpus/internal/store"
)

var (
	// ErrNoActiveRelease means no dataset has been activated for the
	// engine's (locale, distro) yet.
	ErrNoActiveRelease = errors.New("no active release")
	// ErrNotFound means the requested page does not exist in the active
	// release.
	ErrNotFound = errors.New("page not found")
	// ErrInvalidQuery means the query was empty after normalization.
	ErrInvalidQuery = errors.New("invalid query")
)

// AmbiguousError reports an unqualified page lookup that matches more
// than one section.
type AmbiguousError struct {
	Name     string
	Sections []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("page %q exists in sections %s", e.Name, strings.Join(e.Sections, ", "))
}

const (
	defaultLimit = 20
	maxLimit     = 100
	// candidateFactor over-fetches so ranking sees enough rows to fill
	// a page even after scoring reshuffles the backend order.
	candidateFactor = 5
	suggestLimit    = 10
)

// Engine serves queries against the active release of one
// (locale, distro) pair.
type Engine struct {
	Store  store.Store
	Locale string
	Distro string
}

// Hit is one search result.
type Hit struct {
	PageID      string  `json:"pageId"`
	Name        string  `json:"name"`
	Section     string  `json:"section"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Score       float64 `json:"score"`
}

// SearchResponse is one page of ranked hits. Suggestions is only filled
// in when the query matched nothing.
type SearchResponse struct {
	Query       string       `json:"query"`
	Total       int          `json:"total"`
	Hits        []Hit        `json:"hits"`
	Suggestions []Suggestion `json:"suggestions,omitempty"`
}

// Suggestion is one "did you mean" entry.
type Suggestion struct {
	Name        string `json:"name"`
	Section     string `json:"section"`
	Description string `json:"description,omitempty"`
}

func (e *Engine) activeRelease(ctx context.Context) (*manpage.Release, error) {
	rel, err := e.Store.ActiveRelease(ctx, e.Locale, e.Distro)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoActiveRelease
	}
	if err != nil {
		return nil, fmt.Errorf("resolve active release: %w", err)
	}
	return rel, nil
}

// Search ranks pages of the active release against a free-text query.
// Results are deterministic for a fixed corpus. When nothing matches,
// the response carries fuzzy suggestions instead.
func (e *Engine) Search(ctx context.Context, query, section string, limit, offset int) (*SearchResponse, error) {
	normalized := ranking.NormalizeQuery(query)
	if normalized == "" {
		return nil, ErrInvalidQuery
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}

	rel, err := e.activeRelease(ctx)
	if err != nil {
		return nil, err
	}

	fetch := (limit + offset) * candidateFactor
	candidates, err := e.Store.SearchCandidates(ctx, rel.ID, normalized, section, fetch)
	if err != nil {
		return nil, fmt.Errorf("fetch candidates: %w", err)
	}
	ranked := ranking.Score(normalized, candidates)

	resp := &SearchResponse{Query: query, Total: len(ranked)}
	for i := offset; i < len(ranked) && len(resp.Hits) < limit; i++ {
		r := ranked[i]
		resp.Hits = append(resp.Hits, Hit{
			PageID:      r.PageID,
			Name:        r.Name,
			Section:     r.Section,
			Title:       r.Title,
			Description: r.Description,
			Score:       r.Score,
		})
	}

	if len(ranked) == 0 {
		suggestions, err := e.suggest(ctx, rel.ID, normalized)
		if err != nil {
			return nil, err
		}
		resp.Suggestions = suggestions
	}
	return resp, nil
}

// Suggest returns name completions and near-miss corrections for a
// prefix, deduplicated by name.
func (e *Engine) Suggest(ctx context.Context, prefix string) ([]Suggestion, error) {
	normalized := ranking.NormalizeQuery(prefix)
	if normalized == "" {
		return nil, ErrInvalidQuery
	}
	rel, err := e.activeRelease(ctx)
	if err != nil {
		return nil, err
	}
	return e.suggest(ctx, rel.ID, normalized)
}

func (e *Engine) suggest(ctx context.Context, releaseID int64, prefix string) ([]Suggestion, error) {
	candidates, err := e.Store.SuggestCandidates(ctx, releaseID, prefix, suggestLimit*candidateFactor)
	if err != nil {
		return nil, fmt.Errorf("fetch suggestions: %w", err)
	}
	var out []Suggestion
	for _, s := range ranking.Suggest(prefix, candidates, suggestLimit) {
		out = append(out, Suggestion{Name: s.Name, Section: s.Section, Description: s.Description})
	}
	return out, nil
}

// Get fetches one page. With an empty section the name must be
// unambiguous; otherwise an AmbiguousError lists the sections to choose
// from.
func (e *Engine) Get(ctx context.Context, name, section string) (*store.PageRecord, error) {
	rel, err := e.activeRelease(ctx)
	if err != nil {
		return nil, err
	}

	if section == "" {
		summaries, err := e.Store.PageSummaries(ctx, rel.ID, name)
		if err != nil {
			return nil, fmt.Errorf("list sections: %w", err)
		}
		switch len(summaries) {
		case 0:
			return nil, ErrNotFound
		case 1:
			section = summaries[0].Section
		default:
			sections := make([]string, len(summaries))
			for i, s := range summaries {
				sections[i] = s.Section
			}
			return nil, &AmbiguousError{Name: name, Sections: sections}
		}
	}

	record, err := e.Store.GetPage(ctx, rel.ID, name, section)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	return record, nil
}

// Related returns the reference-graph neighbours of a page, see-also
// edges before body cross-references.
func (e *Engine) Related(ctx context.Context, name, section string) ([]store.RelatedPage, error) {
	page, err := e.Get(ctx, name, section)
	if err != nil {
		return nil, err
	}
	related, err := e.Store.Related(ctx, page.PageID)
	if err != nil {
		return nil, fmt.Errorf("fetch related: %w", err)
	}
	return related, nil
}
