// Package manpage holds the domain types shared by the ingestion pipeline,
// the link resolver, the store and the query engine.
package manpage

import (
	"time"

	"github.com/mancorpus/mancorpus/internal/document"
)

// Source is one manual page source file discovered on disk. It is
// ephemeral and never persisted.
type Source struct {
	Path    string
	Name    string
	Section string
}

// ParsedPage is one fully parsed manual page, ready for resolution and
// storage.
type ParsedPage struct {
	PageID               string
	Name                 string
	Section              string
	Title                string
	Description          string
	SourcePath           string
	SourcePackage        string
	SourcePackageVersion string
	ContentSHA256        string
	HasParseWarnings     bool
	Doc                  document.Document
	PlainText            string
	Synopsis             []document.Block
	Options              []OptionItem
	SeeAlso              []SeeAlsoRef
}

// OptionItem is one documented command-line flag, in document order.
// AnchorID is unique within the page so intra-document links resolve.
type OptionItem struct {
	Flags       string `json:"flags"`
	Argument    string `json:"argument,omitempty"`
	Description string `json:"description"`
	AnchorID    string `json:"anchorId"`
}

// SeeAlsoRef is one "SEE ALSO" citation. ResolvedPageID stays empty until
// the link resolver runs, and remains empty when the target page is not
// part of the batch.
type SeeAlsoRef struct {
	Name           string `json:"name"`
	Section        string `json:"section,omitempty"`
	ResolvedPageID string `json:"resolvedPageId,omitempty"`
}

// LinkKind classifies a reference-graph edge.
type LinkKind string

const (
	LinkSeeAlso LinkKind = "see_also"
	LinkXref    LinkKind = "xref"
)

// Edge is a directed reference-graph edge. (From, To, Kind) is the
// identity: a page referencing another twice produces one edge.
type Edge struct {
	From string
	To   string
	Kind LinkKind
}

// Release is one immutable dataset snapshot for a (locale, distro) pair.
type Release struct {
	ID               int64
	DatasetReleaseID string
	Locale           string
	Distro           string
	ImageRef         string
	ImageDigest      string
	Architecture     string
	IngestedAt       time.Time
	PackageManifest  []byte // JSON, optional
	IsActive         bool
}

// License is one license record attributed to a page, with optional
// attribution text extracted from the page itself.
type License struct {
	Key         string // e.g. "bsd-3-clause"
	Name        string // e.g. "BSD 3-Clause License"
	Attribution string
}

// CompareSections orders manual sections deterministically: by the leading
// digit numerically, then by the full string (so "1" < "1p" < "3" <
// "3ssl"). It is the tie-break rule everywhere an unqualified reference
// matches several sections.
func CompareSections(a, b string) int {
	da, db := sectionDigit(a), sectionDigit(b)
	if da != db {
		if da < db {
			return -1
		}
		return 1
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func sectionDigit(s string) int {
	if s == "" {
		return 0
	}
	if s[0] >= '1' && s[0] <= '9' {
		return int(s[0] - '0')
	}
	return 10
}
