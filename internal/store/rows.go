package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mancorpus/mancorpus/internal/manpage"
	"github.com/mancorpus/mancorpus/internal/ranking"
)

func scanRelease(row *sql.Row) (*manpage.Release, error) {
	var rel manpage.Release
	err := row.Scan(&rel.ID, &rel.DatasetReleaseID, &rel.Locale, &rel.Distro,
		&rel.ImageRef, &rel.ImageDigest, &rel.Architecture, &rel.IngestedAt, &rel.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan release: %w", err)
	}
	return &rel, nil
}

func scanSummaries(rows *sql.Rows) ([]PageSummary, error) {
	defer func() { _ = rows.Close() }()
	var out []PageSummary
	for rows.Next() {
		var s PageSummary
		if err := rows.Scan(&s.PageID, &s.Name, &s.Section, &s.Title, &s.Description); err != nil {
			return nil, fmt.Errorf("scan page summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanPageRecord(row *sql.Row) (*PageRecord, error) {
	var r PageRecord
	var doc, synopsis, options, seeAlso []byte
	err := row.Scan(&r.PageID, &r.Name, &r.Section, &r.Title, &r.Description,
		&r.SourcePath, &r.SourcePackage, &r.SourcePackageVersion,
		&r.ContentSHA256, &r.HasParseWarnings,
		&doc, &r.PlainText, &synopsis, &options, &seeAlso)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan page: %w", err)
	}
	r.Doc = doc
	r.Synopsis = synopsis
	r.Options = options
	r.SeeAlso = seeAlso
	return &r, nil
}

func scanCandidates(rows *sql.Rows) ([]ranking.Candidate, error) {
	defer func() { _ = rows.Close() }()
	var out []ranking.Candidate
	for rows.Next() {
		var c ranking.Candidate
		if err := rows.Scan(&c.PageID, &c.Name, &c.Section, &c.Title, &c.Description, &c.LexRank); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
