package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mancorpus/mancorpus/internal/manpage"
	"github.com/mancorpus/mancorpus/internal/ranking"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS dataset_releases (
	id INTEGER PRIMARY KEY,
	dataset_release_id TEXT NOT NULL UNIQUE,
	locale TEXT NOT NULL,
	distro TEXT NOT NULL,
	image_ref TEXT NOT NULL DEFAULT '',
	image_digest TEXT NOT NULL DEFAULT '',
	architecture TEXT NOT NULL DEFAULT '',
	ingested_at TEXT NOT NULL,
	package_manifest TEXT,
	is_active INTEGER NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX IF NOT EXISTS dataset_releases_active_idx
	ON dataset_releases (locale, distro) WHERE is_active = 1;

CREATE TABLE IF NOT EXISTS man_pages (
	id TEXT PRIMARY KEY,
	release_id INTEGER NOT NULL REFERENCES dataset_releases(id),
	name TEXT NOT NULL,
	section TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	source_path TEXT NOT NULL,
	source_package TEXT,
	source_package_version TEXT,
	content_sha256 TEXT NOT NULL,
	has_parse_warnings INTEGER NOT NULL DEFAULT 0,
	UNIQUE (release_id, name, section)
);

CREATE TABLE IF NOT EXISTS man_page_content (
	man_page_id TEXT PRIMARY KEY REFERENCES man_pages(id),
	doc TEXT NOT NULL,
	plain_text TEXT NOT NULL,
	synopsis TEXT,
	options TEXT,
	see_also TEXT
);

CREATE TABLE IF NOT EXISTS man_page_search (
	id INTEGER PRIMARY KEY,
	man_page_id TEXT NOT NULL UNIQUE REFERENCES man_pages(id),
	release_id INTEGER NOT NULL,
	name_norm TEXT NOT NULL,
	desc_norm TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS man_page_search_release_idx
	ON man_page_search (release_id, name_norm);

CREATE VIRTUAL TABLE IF NOT EXISTS man_page_fts USING fts5(
	name, title, description, body, tokenize = 'porter'
);

CREATE TABLE IF NOT EXISTS man_page_links (
	from_page_id TEXT NOT NULL REFERENCES man_pages(id),
	to_page_id TEXT NOT NULL REFERENCES man_pages(id),
	link_type TEXT NOT NULL,
	PRIMARY KEY (from_page_id, to_page_id, link_type)
);

CREATE TABLE IF NOT EXISTS licenses (
	id INTEGER PRIMARY KEY,
	key TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS man_page_license_map (
	man_page_id TEXT NOT NULL REFERENCES man_pages(id),
	license_id INTEGER NOT NULL REFERENCES licenses(id),
	attribution TEXT,
	PRIMARY KEY (man_page_id, license_id)
);
`

// fuzzyScanLimit caps the rows pulled for in-process trigram matching.
// The SQLite backend serves sample/local corpora; Postgres carries the
// trigram indexes for full corpora.
const fuzzyScanLimit = 5000

// SQLite is the local/sample store backend.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Publish(ctx context.Context, rel *manpage.Release, pages []*manpage.ParsedPage, edges []manpage.Edge, licenses map[string][]manpage.License, activate bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin publish tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var manifest any
	if len(rel.PackageManifest) > 0 {
		manifest = string(rel.PackageManifest)
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO dataset_releases (dataset_release_id, locale, distro, image_ref, image_digest, architecture, ingested_at, package_manifest)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rel.DatasetReleaseID, rel.Locale, rel.Distro, rel.ImageRef, rel.ImageDigest,
		rel.Architecture, rel.IngestedAt.UTC().Format(time.RFC3339Nano), manifest)
	if err != nil {
		return fmt.Errorf("insert release: %w", err)
	}
	rel.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("release id: %w", err)
	}

	for _, page := range pages {
		content, err := encodePageContent(page)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO man_pages (id, release_id, name, section, title, description, source_path, source_package, source_package_version, content_sha256, has_parse_warnings)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			page.PageID, rel.ID, page.Name, page.Section, page.Title, page.Description,
			page.SourcePath, nullable(page.SourcePackage), nullable(page.SourcePackageVersion),
			page.ContentSHA256, page.HasParseWarnings,
		); err != nil {
			return fmt.Errorf("insert page %s(%s): %w", page.Name, page.Section, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO man_page_content (man_page_id, doc, plain_text, synopsis, options, see_also)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			page.PageID, string(content.doc), page.PlainText,
			nullableText(content.synopsis), nullableText(content.options), nullableText(content.seeAlso),
		); err != nil {
			return fmt.Errorf("insert content %s(%s): %w", page.Name, page.Section, err)
		}
		searchRes, err := tx.ExecContext(ctx,
			`INSERT INTO man_page_search (man_page_id, release_id, name_norm, desc_norm)
			 VALUES (?, ?, ?, ?)`,
			page.PageID, rel.ID,
			ranking.NormalizeQuery(page.Name), ranking.NormalizeQuery(page.Description))
		if err != nil {
			return fmt.Errorf("insert search row %s(%s): %w", page.Name, page.Section, err)
		}
		searchID, err := searchRes.LastInsertId()
		if err != nil {
			return fmt.Errorf("search row id: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO man_page_fts (rowid, name, title, description, body)
			 VALUES (?, ?, ?, ?, ?)`,
			searchID, page.Name, page.Title, page.Description, page.PlainText,
		); err != nil {
			return fmt.Errorf("insert fts row %s(%s): %w", page.Name, page.Section, err)
		}
	}

	for _, edge := range edges {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO man_page_links (from_page_id, to_page_id, link_type)
			 VALUES (?, ?, ?)`,
			edge.From, edge.To, string(edge.Kind),
		); err != nil {
			return fmt.Errorf("insert link edge: %w", err)
		}
	}

	for pageID, pageLicenses := range licenses {
		for _, lic := range pageLicenses {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO licenses (key, name) VALUES (?, ?)
				 ON CONFLICT (key) DO UPDATE SET name = excluded.name`,
				lic.Key, lic.Name,
			); err != nil {
				return fmt.Errorf("upsert license %s: %w", lic.Key, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO man_page_license_map (man_page_id, license_id, attribution)
				 SELECT ?, id, ? FROM licenses WHERE key = ?`,
				pageID, nullable(lic.Attribution), lic.Key,
			); err != nil {
				return fmt.Errorf("insert license map: %w", err)
			}
		}
	}

	if activate {
		if _, err := tx.ExecContext(ctx,
			`UPDATE dataset_releases SET is_active = 0
			 WHERE locale = ? AND distro = ? AND is_active = 1`,
			rel.Locale, rel.Distro,
		); err != nil {
			return fmt.Errorf("clear active release: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE dataset_releases SET is_active = 1 WHERE id = ?`, rel.ID,
		); err != nil {
			return fmt.Errorf("set active release: %w", err)
		}
		rel.IsActive = true
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit publish: %w", err)
	}
	return nil
}

func (s *SQLite) ActiveRelease(ctx context.Context, locale, distro string) (*manpage.Release, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, dataset_release_id, locale, distro, image_ref, image_digest, architecture, ingested_at, is_active
		 FROM dataset_releases WHERE locale = ? AND distro = ? AND is_active = 1`,
		locale, distro)

	var rel manpage.Release
	var ingestedAt string
	err := row.Scan(&rel.ID, &rel.DatasetReleaseID, &rel.Locale, &rel.Distro,
		&rel.ImageRef, &rel.ImageDigest, &rel.Architecture, &ingestedAt, &rel.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan release: %w", err)
	}
	if rel.IngestedAt, err = time.Parse(time.RFC3339Nano, ingestedAt); err != nil {
		return nil, fmt.Errorf("parse ingested_at: %w", err)
	}
	return &rel, nil
}

func (s *SQLite) PageSummaries(ctx context.Context, releaseID int64, name string) ([]PageSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, section, title, description FROM man_pages
		 WHERE release_id = ? AND name = ? ORDER BY section`,
		releaseID, name)
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	return scanSummaries(rows)
}

func (s *SQLite) GetPage(ctx context.Context, releaseID int64, name, section string) (*PageRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT p.id, p.name, p.section, p.title, p.description,
			p.source_path, COALESCE(p.source_package, ''), COALESCE(p.source_package_version, ''),
			p.content_sha256, p.has_parse_warnings,
			c.doc, c.plain_text, c.synopsis, c.options, c.see_also
		 FROM man_pages p JOIN man_page_content c ON c.man_page_id = p.id
		 WHERE p.release_id = ? AND p.name = ? AND p.section = ?`,
		releaseID, name, section)
	return scanPageRecord(row)
}

func (s *SQLite) Related(ctx context.Context, pageID string) ([]RelatedPage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.id, p.name, p.section, p.title, p.description, l.link_type
		 FROM man_page_links l JOIN man_pages p ON p.id = l.to_page_id
		 WHERE l.from_page_id = ?
		 ORDER BY l.link_type, p.name, p.section`,
		pageID)
	if err != nil {
		return nil, fmt.Errorf("query related: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RelatedPage
	for rows.Next() {
		var r RelatedPage
		var kind string
		if err := rows.Scan(&r.PageID, &r.Name, &r.Section, &r.Title, &r.Description, &kind); err != nil {
			return nil, fmt.Errorf("scan related: %w", err)
		}
		r.Kind = manpage.LinkKind(kind)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) SearchCandidates(ctx context.Context, releaseID int64, query, section string, limit int) ([]ranking.Candidate, error) {
	merged := map[string]ranking.Candidate{}

	// Exact and prefix name matches.
	prefixQ := `SELECT p.id, p.name, p.section, p.title, p.description, 0
		 FROM man_page_search s JOIN man_pages p ON p.id = s.man_page_id
		 WHERE s.release_id = ? AND s.name_norm LIKE ? || '%'`
	args := []any{releaseID, query}
	if section != "" {
		prefixQ += ` AND p.section = ?`
		args = append(args, section)
	}
	if err := s.mergeCandidates(ctx, merged, prefixQ, args...); err != nil {
		return nil, err
	}

	// Full-text matches with a bm25-derived lexical rank, name and title
	// weighted over description and body.
	if fts := ftsQuery(query); fts != "" {
		matchQ := `SELECT p.id, p.name, p.section, p.title, p.description,
				-bm25(man_page_fts, 10.0, 8.0, 4.0, 1.0) AS lex
			 FROM man_page_fts f
			 JOIN man_page_search s ON s.id = f.rowid
			 JOIN man_pages p ON p.id = s.man_page_id
			 WHERE man_page_fts MATCH ? AND s.release_id = ?`
		matchArgs := []any{fts, releaseID}
		if section != "" {
			matchQ += ` AND p.section = ?`
			matchArgs = append(matchArgs, section)
		}
		if err := s.mergeCandidates(ctx, merged, matchQ, matchArgs...); err != nil {
			return nil, err
		}
	}

	// Fuzzy candidates: no trigram index on this backend, so scan a
	// bounded slice of the release and filter in process.
	scanQ := `SELECT p.id, p.name, p.section, p.title, p.description, s.name_norm, s.desc_norm
		 FROM man_page_search s JOIN man_pages p ON p.id = s.man_page_id
		 WHERE s.release_id = ?`
	scanArgs := []any{releaseID}
	if section != "" {
		scanQ += ` AND p.section = ?`
		scanArgs = append(scanArgs, section)
	}
	scanQ += fmt.Sprintf(` ORDER BY s.name_norm LIMIT %d`, fuzzyScanLimit)
	rows, err := s.db.QueryContext(ctx, scanQ, scanArgs...)
	if err != nil {
		return nil, fmt.Errorf("fuzzy scan: %w", err)
	}
	func() {
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var c ranking.Candidate
			var nameNorm, descNorm string
			if scanErr := rows.Scan(&c.PageID, &c.Name, &c.Section, &c.Title, &c.Description, &nameNorm, &descNorm); scanErr != nil {
				err = fmt.Errorf("scan fuzzy candidate: %w", scanErr)
				return
			}
			if _, ok := merged[c.PageID]; ok {
				continue
			}
			if ranking.Similarity(nameNorm, query) >= ranking.SuggestThreshold ||
				ranking.Similarity(descNorm, query) >= ranking.SuggestThreshold {
				merged[c.PageID] = c
			}
		}
		if rowsErr := rows.Err(); rowsErr != nil && err == nil {
			err = rowsErr
		}
	}()
	if err != nil {
		return nil, err
	}

	out := make([]ranking.Candidate, 0, len(merged))
	for _, c := range merged {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.LexRank != b.LexRank {
			return a.LexRank > b.LexRank
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if c := manpage.CompareSections(a.Section, b.Section); c != 0 {
			return c < 0
		}
		return a.PageID < b.PageID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *SQLite) SuggestCandidates(ctx context.Context, releaseID int64, prefix string, limit int) ([]ranking.Candidate, error) {
	merged := map[string]ranking.Candidate{}

	if err := s.mergeCandidates(ctx, merged,
		`SELECT p.id, p.name, p.section, p.title, p.description, 0
		 FROM man_page_search s JOIN man_pages p ON p.id = s.man_page_id
		 WHERE s.release_id = ? AND s.name_norm LIKE ? || '%'`,
		releaseID, prefix); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT p.id, p.name, p.section, p.title, p.description, s.name_norm
		 FROM man_page_search s JOIN man_pages p ON p.id = s.man_page_id
		 WHERE s.release_id = ? ORDER BY s.name_norm LIMIT %d`, fuzzyScanLimit),
		releaseID)
	if err != nil {
		return nil, fmt.Errorf("suggest scan: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var c ranking.Candidate
		var nameNorm string
		if err := rows.Scan(&c.PageID, &c.Name, &c.Section, &c.Title, &c.Description, &nameNorm); err != nil {
			return nil, fmt.Errorf("scan suggest candidate: %w", err)
		}
		if _, ok := merged[c.PageID]; ok {
			continue
		}
		if ranking.Similarity(nameNorm, prefix) >= ranking.SuggestThreshold {
			merged[c.PageID] = c
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]ranking.Candidate, 0, len(merged))
	for _, c := range merged {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if c := manpage.CompareSections(a.Section, b.Section); c != 0 {
			return c < 0
		}
		return a.PageID < b.PageID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *SQLite) mergeCandidates(ctx context.Context, merged map[string]ranking.Candidate, query string, args ...any) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("candidate query: %w", err)
	}
	candidates, err := scanCandidates(rows)
	if err != nil {
		return err
	}
	for _, c := range candidates {
		// bm25-derived ranks are unbounded; squash to [0, 1).
		if c.LexRank > 0 {
			c.LexRank = c.LexRank / (c.LexRank + 1)
		} else {
			c.LexRank = 0
		}
		if existing, ok := merged[c.PageID]; !ok || c.LexRank > existing.LexRank {
			merged[c.PageID] = c
		}
	}
	return nil
}

// ftsQuery turns free text into a safe FTS5 prefix query: terms are
// quoted, operators neutralized.
func ftsQuery(q string) string {
	var b strings.Builder
	for _, r := range q {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == ' ', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	terms := strings.Fields(b.String())
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		upper := strings.ToUpper(t)
		if upper == "AND" || upper == "OR" || upper == "NOT" {
			continue
		}
		quoted = append(quoted, `"`+t+`"*`)
	}
	return strings.Join(quoted, " ")
}

func nullableText(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
