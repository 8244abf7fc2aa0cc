package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/mancorpus/mancorpus/internal/manpage"
	"github.com/mancorpus/mancorpus/internal/ranking"
)

const postgresSchema = `
CREATE EXTENSION IF NOT EXISTS pg_trgm;

CREATE TABLE IF NOT EXISTS dataset_releases (
	id BIGSERIAL PRIMARY KEY,
	dataset_release_id TEXT NOT NULL UNIQUE,
	locale TEXT NOT NULL,
	distro TEXT NOT NULL,
	image_ref TEXT NOT NULL DEFAULT '',
	image_digest TEXT NOT NULL DEFAULT '',
	architecture TEXT NOT NULL DEFAULT '',
	ingested_at TIMESTAMPTZ NOT NULL,
	package_manifest JSONB,
	is_active BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE UNIQUE INDEX IF NOT EXISTS dataset_releases_active_idx
	ON dataset_releases (locale, distro) WHERE is_active;

CREATE TABLE IF NOT EXISTS man_pages (
	id UUID PRIMARY KEY,
	release_id BIGINT NOT NULL REFERENCES dataset_releases(id),
	name TEXT NOT NULL,
	section TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	source_path TEXT NOT NULL,
	source_package TEXT,
	source_package_version TEXT,
	content_sha256 TEXT NOT NULL,
	has_parse_warnings BOOLEAN NOT NULL DEFAULT FALSE,
	UNIQUE (release_id, name, section)
);

CREATE TABLE IF NOT EXISTS man_page_content (
	man_page_id UUID PRIMARY KEY REFERENCES man_pages(id),
	doc JSONB NOT NULL,
	plain_text TEXT NOT NULL,
	synopsis JSONB,
	options JSONB,
	see_also JSONB
);

CREATE TABLE IF NOT EXISTS man_page_search (
	man_page_id UUID PRIMARY KEY REFERENCES man_pages(id),
	release_id BIGINT NOT NULL,
	tsv TSVECTOR NOT NULL,
	name_norm TEXT NOT NULL,
	desc_norm TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS man_page_search_tsv_idx
	ON man_page_search USING gin (tsv);
CREATE INDEX IF NOT EXISTS man_page_search_name_trgm_idx
	ON man_page_search USING gin (name_norm gin_trgm_ops);
CREATE INDEX IF NOT EXISTS man_page_search_desc_trgm_idx
	ON man_page_search USING gin (desc_norm gin_trgm_ops);
CREATE INDEX IF NOT EXISTS man_page_search_release_idx
	ON man_page_search (release_id);

CREATE TABLE IF NOT EXISTS man_page_links (
	from_page_id UUID NOT NULL REFERENCES man_pages(id),
	to_page_id UUID NOT NULL REFERENCES man_pages(id),
	link_type TEXT NOT NULL,
	PRIMARY KEY (from_page_id, to_page_id, link_type)
);

CREATE TABLE IF NOT EXISTS licenses (
	id BIGSERIAL PRIMARY KEY,
	key TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS man_page_license_map (
	man_page_id UUID NOT NULL REFERENCES man_pages(id),
	license_id BIGINT NOT NULL REFERENCES licenses(id),
	attribution TEXT,
	PRIMARY KEY (man_page_id, license_id)
);
`

// Postgres is the production store backend.
type Postgres struct {
	db *sql.DB
}

func OpenPostgres(ctx context.Context, url string) (*Postgres, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (s *Postgres) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *Postgres) Close() error {
	return s.db.Close()
}

func (s *Postgres) Publish(ctx context.Context, rel *manpage.Release, pages []*manpage.ParsedPage, edges []manpage.Edge, licenses map[string][]manpage.License, activate bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin publish tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var manifest any
	if len(rel.PackageManifest) > 0 {
		manifest = rel.PackageManifest
	}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO dataset_releases (dataset_release_id, locale, distro, image_ref, image_digest, architecture, ingested_at, package_manifest)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		rel.DatasetReleaseID, rel.Locale, rel.Distro, rel.ImageRef, rel.ImageDigest, rel.Architecture, rel.IngestedAt, manifest,
	).Scan(&rel.ID)
	if err != nil {
		return fmt.Errorf("insert release: %w", err)
	}

	pageStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO man_pages (id, release_id, name, section, title, description, source_path, source_package, source_package_version, content_sha256, has_parse_warnings)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`)
	if err != nil {
		return fmt.Errorf("prepare page insert: %w", err)
	}
	defer func() { _ = pageStmt.Close() }()

	contentStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO man_page_content (man_page_id, doc, plain_text, synopsis, options, see_also)
		 VALUES ($1, $2, $3, $4, $5, $6)`)
	if err != nil {
		return fmt.Errorf("prepare content insert: %w", err)
	}
	defer func() { _ = contentStmt.Close() }()

	searchStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO man_page_search (man_page_id, release_id, tsv, name_norm, desc_norm)
		 VALUES ($1, $2,
			setweight(to_tsvector('english', $3), 'A') ||
			setweight(to_tsvector('english', $4), 'B') ||
			setweight(to_tsvector('english', $5), 'D'),
			$6, $7)`)
	if err != nil {
		return fmt.Errorf("prepare search insert: %w", err)
	}
	defer func() { _ = searchStmt.Close() }()

	for _, page := range pages {
		content, err := encodePageContent(page)
		if err != nil {
			return err
		}
		if _, err := pageStmt.ExecContext(ctx,
			page.PageID, rel.ID, page.Name, page.Section, page.Title, page.Description,
			page.SourcePath, nullable(page.SourcePackage), nullable(page.SourcePackageVersion),
			page.ContentSHA256, page.HasParseWarnings,
		); err != nil {
			return fmt.Errorf("insert page %s(%s): %w", page.Name, page.Section, err)
		}
		if _, err := contentStmt.ExecContext(ctx,
			page.PageID, content.doc, page.PlainText,
			nullableBytes(content.synopsis), nullableBytes(content.options), nullableBytes(content.seeAlso),
		); err != nil {
			return fmt.Errorf("insert content %s(%s): %w", page.Name, page.Section, err)
		}
		if _, err := searchStmt.ExecContext(ctx,
			page.PageID, rel.ID,
			page.Name+" "+page.Title, page.Description, page.PlainText,
			ranking.NormalizeQuery(page.Name), ranking.NormalizeQuery(page.Description),
		); err != nil {
			return fmt.Errorf("insert search row %s(%s): %w", page.Name, page.Section, err)
		}
	}

	for _, edge := range edges {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO man_page_links (from_page_id, to_page_id, link_type)
			 VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
			edge.From, edge.To, string(edge.Kind),
		); err != nil {
			return fmt.Errorf("insert link edge: %w", err)
		}
	}

	for pageID, pageLicenses := range licenses {
		for _, lic := range pageLicenses {
			var licenseID int64
			if err := tx.QueryRowContext(ctx,
				`INSERT INTO licenses (key, name) VALUES ($1, $2)
				 ON CONFLICT (key) DO UPDATE SET name = EXCLUDED.name
				 RETURNING id`,
				lic.Key, lic.Name,
			).Scan(&licenseID); err != nil {
				return fmt.Errorf("upsert license %s: %w", lic.Key, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO man_page_license_map (man_page_id, license_id, attribution)
				 VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
				pageID, licenseID, nullable(lic.Attribution),
			); err != nil {
				return fmt.Errorf("insert license map: %w", err)
			}
		}
	}

	if activate {
		if _, err := tx.ExecContext(ctx,
			`UPDATE dataset_releases SET is_active = FALSE
			 WHERE locale = $1 AND distro = $2 AND is_active`,
			rel.Locale, rel.Distro,
		); err != nil {
			return fmt.Errorf("clear active release: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE dataset_releases SET is_active = TRUE WHERE id = $1`, rel.ID,
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

func (s *Postgres) ActiveRelease(ctx context.Context, locale, distro string) (*manpage.Release, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, dataset_release_id, locale, distro, image_ref, image_digest, architecture, ingested_at, is_active
		 FROM dataset_releases WHERE locale = $1 AND distro = $2 AND is_active`,
		locale, distro)
	return scanRelease(row)
}

func (s *Postgres) PageSummaries(ctx context.Context, releaseID int64, name string) ([]PageSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, section, title, description FROM man_pages
		 WHERE release_id = $1 AND name = $2 ORDER BY section`,
		releaseID, name)
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	return scanSummaries(rows)
}

func (s *Postgres) GetPage(ctx context.Context, releaseID int64, name, section string) (*PageRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT p.id, p.name, p.section, p.title, p.description,
			p.source_path, COALESCE(p.source_package, ''), COALESCE(p.source_package_version, ''),
			p.content_sha256, p.has_parse_warnings,
			c.doc, c.plain_text, c.synopsis, c.options, c.see_also
		 FROM man_pages p JOIN man_page_content c ON c.man_page_id = p.id
		 WHERE p.release_id = $1 AND p.name = $2 AND p.section = $3`,
		releaseID, name, section)
	return scanPageRecord(row)
}

func (s *Postgres) Related(ctx context.Context, pageID string) ([]RelatedPage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.id, p.name, p.section, p.title, p.description, l.link_type
		 FROM man_page_links l JOIN man_pages p ON p.id = l.to_page_id
		 WHERE l.from_page_id = $1
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

func (s *Postgres) SearchCandidates(ctx context.Context, releaseID int64, query, section string, limit int) ([]ranking.Candidate, error) {
	args := []any{releaseID, query, ranking.SuggestThreshold}
	q := `SELECT p.id, p.name, p.section, p.title, p.description,
			ts_rank(s.tsv, plainto_tsquery('english', $2)) AS lex
		 FROM man_page_search s JOIN man_pages p ON p.id = s.man_page_id
		 WHERE s.release_id = $1 AND (
			s.name_norm = $2 OR
			s.name_norm LIKE $2 || '%' OR
			s.tsv @@ plainto_tsquery('english', $2) OR
			s.name_norm % $2 OR
			similarity(s.desc_norm, $2) >= $3)`
	if section != "" {
		q += ` AND p.section = $4`
		args = append(args, section)
	}
	q += fmt.Sprintf(` ORDER BY lex DESC, p.name, p.section, p.id LIMIT %d`, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search candidates: %w", err)
	}
	return scanCandidates(rows)
}

func (s *Postgres) SuggestCandidates(ctx context.Context, releaseID int64, prefix string, limit int) ([]ranking.Candidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.id, p.name, p.section, p.title, p.description, 0
		 FROM man_page_search s JOIN man_pages p ON p.id = s.man_page_id
		 WHERE s.release_id = $1 AND (s.name_norm LIKE $2 || '%' OR s.name_norm % $2)
		 ORDER BY p.name, p.section LIMIT $3`,
		releaseID, prefix, limit)
	if err != nil {
		return nil, fmt.Errorf("suggest candidates: %w", err)
	}
	return scanCandidates(rows)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
