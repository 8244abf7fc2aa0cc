package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mancorpus/mancorpus/internal/document"
	"github.com/mancorpus/mancorpus/internal/manpage"
)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "corpus.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.InitSchema(context.Background()); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return s
}

func testPage(id, name, section, description string) *manpage.ParsedPage {
	return &manpage.ParsedPage{
		PageID:        id,
		Name:          name,
		Section:       section,
		Title:         name,
		Description:   description,
		SourcePath:    "/usr/share/man/man" + section + "/" + name + "." + section + ".gz",
		ContentSHA256: "sha-" + id,
		Doc: document.Document{Blocks: []document.Block{
			document.Paragraph{Inlines: []document.Inline{
				document.Text{Text: name + " - " + description},
			}},
		}},
		PlainText: name + " " + description,
	}
}

func testRelease(releaseID string) *manpage.Release {
	return &manpage.Release{
		DatasetReleaseID: releaseID,
		Locale:           "en",
		Distro:           "debian",
		Architecture:     "amd64",
		IngestedAt:       time.Now().UTC(),
	}
}

func TestPublishAndActivate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.ActiveRelease(ctx, "en", "debian"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before any release, got %v", err)
	}

	pages := []*manpage.ParsedPage{
		testPage("p-ls", "ls", "1", "list directory contents"),
		testPage("p-grep", "grep", "1", "print lines matching a pattern"),
	}
	edges := []manpage.Edge{
		{From: "p-ls", To: "p-grep", Kind: manpage.LinkSeeAlso},
	}
	rel := testRelease("debian-abc1234-m1.14.6-aaaa1111")
	if err := s.Publish(ctx, rel, pages, edges, nil, true); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if rel.ID == 0 {
		t.Fatal("release id not filled in")
	}
	if !rel.IsActive {
		t.Fatal("release not marked active")
	}

	active, err := s.ActiveRelease(ctx, "en", "debian")
	if err != nil {
		t.Fatalf("active release: %v", err)
	}
	if active.DatasetReleaseID != rel.DatasetReleaseID {
		t.Errorf("active = %q, want %q", active.DatasetReleaseID, rel.DatasetReleaseID)
	}
	if active.Architecture != "amd64" {
		t.Errorf("architecture = %q, want amd64", active.Architecture)
	}
}

func TestActivationSwap(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := testRelease("debian-aaaaaaa-m1.14.6-11111111")
	if err := s.Publish(ctx, first, []*manpage.ParsedPage{
		testPage("p1-ls", "ls", "1", "list directory contents"),
	}, nil, nil, true); err != nil {
		t.Fatalf("publish first: %v", err)
	}

	// An unactivated publish must not disturb the active release.
	staged := testRelease("debian-bbbbbbb-m1.14.6-22222222")
	if err := s.Publish(ctx, staged, []*manpage.ParsedPage{
		testPage("p2-ls", "ls", "1", "list directory contents"),
	}, nil, nil, false); err != nil {
		t.Fatalf("publish staged: %v", err)
	}
	active, err := s.ActiveRelease(ctx, "en", "debian")
	if err != nil {
		t.Fatalf("active release: %v", err)
	}
	if active.DatasetReleaseID != first.DatasetReleaseID {
		t.Errorf("active = %q, want first release to stay active", active.DatasetReleaseID)
	}

	second := testRelease("debian-ccccccc-m1.14.6-33333333")
	if err := s.Publish(ctx, second, []*manpage.ParsedPage{
		testPage("p3-ls", "ls", "1", "list directory contents"),
	}, nil, nil, true); err != nil {
		t.Fatalf("publish second: %v", err)
	}
	active, err = s.ActiveRelease(ctx, "en", "debian")
	if err != nil {
		t.Fatalf("active release after swap: %v", err)
	}
	if active.DatasetReleaseID != second.DatasetReleaseID {
		t.Errorf("active = %q, want %q", active.DatasetReleaseID, second.DatasetReleaseID)
	}
}

func TestGetPageAndSummaries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	printf1 := testPage("p-printf1", "printf", "1", "format and print data")
	printf3 := testPage("p-printf3", "printf", "3", "formatted output conversion")
	printf3.SourcePackage = "libc6"
	printf3.SourcePackageVersion = "2.38-1"

	rel := testRelease("debian-ddddddd-m1.14.6-44444444")
	if err := s.Publish(ctx, rel, []*manpage.ParsedPage{printf1, printf3}, nil, nil, true); err != nil {
		t.Fatalf("publish: %v", err)
	}

	summaries, err := s.PageSummaries(ctx, rel.ID, "printf")
	if err != nil {
		t.Fatalf("summaries: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("got %d summaries, want 2", len(summaries))
	}
	if summaries[0].Section != "1" || summaries[1].Section != "3" {
		t.Errorf("summary sections = %q, %q", summaries[0].Section, summaries[1].Section)
	}

	record, err := s.GetPage(ctx, rel.ID, "printf", "3")
	if err != nil {
		t.Fatalf("get page: %v", err)
	}
	if record.SourcePackage != "libc6" || record.SourcePackageVersion != "2.38-1" {
		t.Errorf("provenance = %q %q", record.SourcePackage, record.SourcePackageVersion)
	}
	if len(record.Doc) == 0 {
		t.Error("doc content missing")
	}

	var decoded document.Document
	if err := decoded.UnmarshalJSON(record.Doc); err != nil {
		t.Fatalf("stored doc does not decode: %v", err)
	}
	if len(decoded.Blocks) != 1 {
		t.Errorf("decoded blocks = %d, want 1", len(decoded.Blocks))
	}

	if _, err := s.GetPage(ctx, rel.ID, "printf", "9"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing section: got %v, want ErrNotFound", err)
	}
}

func TestRelated(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	pages := []*manpage.ParsedPage{
		testPage("p-tar", "tar", "1", "an archiving utility"),
		testPage("p-gzip", "gzip", "1", "compress files"),
		testPage("p-bzip2", "bzip2", "1", "block-sorting compressor"),
	}
	edges := []manpage.Edge{
		{From: "p-tar", To: "p-gzip", Kind: manpage.LinkXref},
		{From: "p-tar", To: "p-bzip2", Kind: manpage.LinkSeeAlso},
	}
	rel := testRelease("debian-eeeeeee-m1.14.6-55555555")
	if err := s.Publish(ctx, rel, pages, edges, nil, true); err != nil {
		t.Fatalf("publish: %v", err)
	}

	related, err := s.Related(ctx, "p-tar")
	if err != nil {
		t.Fatalf("related: %v", err)
	}
	if len(related) != 2 {
		t.Fatalf("got %d related, want 2", len(related))
	}
	// see_also sorts before xref.
	if related[0].Kind != manpage.LinkSeeAlso || related[0].Name != "bzip2" {
		t.Errorf("related[0] = %+v, want bzip2 see_also", related[0])
	}
	if related[1].Kind != manpage.LinkXref || related[1].Name != "gzip" {
		t.Errorf("related[1] = %+v, want gzip xref", related[1])
	}
}

func TestSearchCandidates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	pages := []*manpage.ParsedPage{
		testPage("p-grep", "grep", "1", "print lines matching a pattern"),
		testPage("p-egrep", "egrep", "1", "extended grep"),
		testPage("p-tar", "tar", "1", "an archiving utility"),
	}
	rel := testRelease("debian-fffffff-m1.14.6-66666666")
	if err := s.Publish(ctx, rel, pages, nil, nil, true); err != nil {
		t.Fatalf("publish: %v", err)
	}

	candidates, err := s.SearchCandidates(ctx, rel.ID, "grep", "", 50)
	if err != nil {
		t.Fatalf("search candidates: %v", err)
	}
	found := map[string]bool{}
	for _, c := range candidates {
		found[c.Name] = true
	}
	if !found["grep"] {
		t.Error("exact match grep not among candidates")
	}
	if found["tar"] {
		t.Error("unrelated page tar among candidates")
	}

	// Section filter restricts candidates.
	candidates, err = s.SearchCandidates(ctx, rel.ID, "grep", "8", 50)
	if err != nil {
		t.Fatalf("search candidates with section: %v", err)
	}
	if len(candidates) != 0 {
		t.Errorf("section-filtered candidates = %+v, want none", candidates)
	}
}

func TestSearchCandidatesMatchStems(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	pages := []*manpage.ParsedPage{
		testPage("p-grep", "grep", "1", "print lines matched by a pattern"),
		testPage("p-tar", "tar", "1", "an archiving utility"),
	}
	rel := testRelease("debian-2222222-m1.14.6-99999999")
	if err := s.Publish(ctx, rel, pages, nil, nil, true); err != nil {
		t.Fatalf("publish: %v", err)
	}

	// "matching" and "matched" share the stem "match"; the fulltext
	// index has to bridge the inflection.
	candidates, err := s.SearchCandidates(ctx, rel.ID, "matching", "", 50)
	if err != nil {
		t.Fatalf("search candidates: %v", err)
	}
	found := map[string]bool{}
	for _, c := range candidates {
		found[c.Name] = true
	}
	if !found["grep"] {
		t.Error("stemmed query did not surface grep")
	}
	if found["tar"] {
		t.Error("unrelated page tar among candidates")
	}
}

func TestSuggestCandidates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	pages := []*manpage.ParsedPage{
		testPage("p-chmod", "chmod", "1", "change file mode bits"),
		testPage("p-chown", "chown", "1", "change file owner"),
		testPage("p-tar", "tar", "1", "an archiving utility"),
	}
	rel := testRelease("debian-0000000-m1.14.6-77777777")
	if err := s.Publish(ctx, rel, pages, nil, nil, true); err != nil {
		t.Fatalf("publish: %v", err)
	}

	candidates, err := s.SuggestCandidates(ctx, rel.ID, "ch", 10)
	if err != nil {
		t.Fatalf("suggest candidates: %v", err)
	}
	found := map[string]bool{}
	for _, c := range candidates {
		found[c.Name] = true
	}
	if !found["chmod"] || !found["chown"] {
		t.Errorf("prefix candidates missing: %v", found)
	}
}

func TestLicenses(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	page := testPage("p-ls", "ls", "1", "list directory contents")
	licenses := map[string][]manpage.License{
		"p-ls": {{Key: "bsd", Name: "BSD License", Attribution: "Copyright (c) 1989 The Regents"}},
	}
	rel := testRelease("debian-1111111-m1.14.6-88888888")
	if err := s.Publish(ctx, rel, []*manpage.ParsedPage{page}, nil, licenses, true); err != nil {
		t.Fatalf("publish: %v", err)
	}

	var key, attribution string
	row := s.db.QueryRowContext(ctx,
		`SELECT l.key, m.attribution FROM man_page_license_map m
		 JOIN licenses l ON l.id = m.license_id WHERE m.man_page_id = ?`, "p-ls")
	if err := row.Scan(&key, &attribution); err != nil {
		t.Fatalf("scan license: %v", err)
	}
	if key != "bsd" {
		t.Errorf("license key = %q, want bsd", key)
	}
	if attribution != "Copyright (c) 1989 The Regents" {
		t.Errorf("attribution = %q", attribution)
	}
}
