// Package store persists dataset releases and serves query-side reads.
// Two backends implement the same interface: Postgres for production
// corpora and SQLite for sample/local ingestion and tests.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mancorpus/mancorpus/internal/document"
	"github.com/mancorpus/mancorpus/internal/manpage"
	"github.com/mancorpus/mancorpus/internal/ranking"
)

// ErrNotFound is returned when a page or release does not exist.
var ErrNotFound = errors.New("not found")

// PageSummary identifies one page of a release.
type PageSummary struct {
	PageID      string `json:"pageId"`
	Name        string `json:"name"`
	Section     string `json:"section"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// PageRecord is the full stored form of one page.
type PageRecord struct {
	PageSummary
	SourcePath           string          `json:"sourcePath"`
	SourcePackage        string          `json:"sourcePackage,omitempty"`
	SourcePackageVersion string          `json:"sourcePackageVersion,omitempty"`
	ContentSHA256        string          `json:"contentSha256"`
	HasParseWarnings     bool            `json:"hasParseWarnings"`
	Doc                  json.RawMessage `json:"doc"`
	PlainText            string          `json:"-"`
	Synopsis             json.RawMessage `json:"synopsis,omitempty"`
	Options              json.RawMessage `json:"options,omitempty"`
	SeeAlso              json.RawMessage `json:"seeAlso,omitempty"`
}

// RelatedPage is one resolved reference-graph neighbour.
type RelatedPage struct {
	PageSummary
	Kind manpage.LinkKind `json:"linkType"`
}

// Store is the relational persistence boundary. Publish writes one whole
// ingestion run in a single transaction; the read methods serve the query
// side and are safe for concurrent use.
type Store interface {
	InitSchema(ctx context.Context) error

	// Publish inserts the release with all its pages, edges and license
	// mappings in one transaction. When activate is true the active flag
	// for the release's (locale, distro) is swapped inside the same
	// transaction: a crash leaves the previous release active, never zero
	// or two active releases. On success rel.ID is filled in.
	Publish(ctx context.Context, rel *manpage.Release, pages []*manpage.ParsedPage, edges []manpage.Edge, licenses map[string][]manpage.License, activate bool) error

	ActiveRelease(ctx context.Context, locale, distro string) (*manpage.Release, error)

	// PageSummaries returns all sections of a name within a release,
	// ordered by section.
	PageSummaries(ctx context.Context, releaseID int64, name string) ([]PageSummary, error)
	GetPage(ctx context.Context, releaseID int64, name, section string) (*PageRecord, error)
	Related(ctx context.Context, pageID string) ([]RelatedPage, error)

	// SearchCandidates returns rows worth scoring for a normalized query:
	// name-prefix matches, full-text matches (LexRank filled in) and
	// fuzzy candidates. Scoring and final ordering happen in the ranking
	// package.
	SearchCandidates(ctx context.Context, releaseID int64, query, section string, limit int) ([]ranking.Candidate, error)
	SuggestCandidates(ctx context.Context, releaseID int64, prefix string, limit int) ([]ranking.Candidate, error)

	Close() error
}

// Open selects a backend by driver name ("postgres" or "sqlite").
func Open(ctx context.Context, driver, url string) (Store, error) {
	switch driver {
	case "postgres":
		return OpenPostgres(ctx, url)
	case "sqlite":
		return OpenSQLite(url)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

// pageContent is the JSON-encoded content of one page.
type pageContent struct {
	doc      []byte
	synopsis []byte
	options  []byte
	seeAlso  []byte
}

func encodePageContent(p *manpage.ParsedPage) (pageContent, error) {
	var c pageContent
	var err error

	if c.doc, err = json.Marshal(p.Doc); err != nil {
		return c, fmt.Errorf("encode doc: %w", err)
	}
	if len(p.Synopsis) > 0 {
		blocks, err := document.MarshalBlocks(p.Synopsis)
		if err != nil {
			return c, fmt.Errorf("encode synopsis: %w", err)
		}
		if c.synopsis, err = json.Marshal(blocks); err != nil {
			return c, fmt.Errorf("encode synopsis: %w", err)
		}
	}
	if len(p.Options) > 0 {
		if c.options, err = json.Marshal(p.Options); err != nil {
			return c, fmt.Errorf("encode options: %w", err)
		}
	}
	if len(p.SeeAlso) > 0 {
		if c.seeAlso, err = json.Marshal(p.SeeAlso); err != nil {
			return c, fmt.Errorf("encode see also: %w", err)
		}
	}
	return c, nil
}
