package release

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mancorpus/mancorpus/internal/mandoc"
	"github.com/mancorpus/mancorpus/internal/manpage"
	"github.com/mancorpus/mancorpus/internal/store"
)

// fakeRenderer produces a small deterministic fragment per page instead
// of shelling out to mandoc. Pages named in fail return a render error.
type fakeRenderer struct {
	fail map[string]bool
}

func (f *fakeRenderer) Render(ctx context.Context, path string) (mandoc.Result, error) {
	base := filepath.Base(path)
	name := base[:strings.IndexByte(base, '.')]
	if f.fail[name] {
		return mandoc.Result{}, fmt.Errorf("mandoc failed: exit status 5")
	}

	var seeAlso string
	if name == "ls" {
		seeAlso = `<section class="Sh"><h1 class="Sh" id="SEE_ALSO">SEE ALSO</h1>
<p class="Pp"><a class="Xr" href="tar.1.html">tar(1)</a></p></section>`
	}
	html := fmt.Sprintf(`<section class="Sh"><h1 class="Sh" id="NAME">NAME</h1>
<p class="Pp">%s - test page for %s</p></section>%s`, name, name, seeAlso)
	return mandoc.Result{HTML: html}, nil
}

// fakeAdapter is an in-memory package database.
type fakeAdapter struct {
	packages  map[string]string
	pathToPkg map[string]string
	installed [][]string
}

func (f *fakeAdapter) Name() string { return "fake" }

func (f *fakeAdapter) InstalledPackages(ctx context.Context) (map[string]string, error) {
	return f.packages, nil
}

func (f *fakeAdapter) ManPathToPackage(ctx context.Context) (map[string]string, error) {
	return f.pathToPkg, nil
}

func (f *fakeAdapter) Architecture(ctx context.Context) (string, error) {
	return "amd64", nil
}

func (f *fakeAdapter) Install(ctx context.Context, packages []string) error {
	f.installed = append(f.installed, packages)
	return nil
}

func writeSampleTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	pages := map[string]string{
		"man1/ls.1.gz":         ".TH LS 1",
		"man1/bash.1.gz":       ".TH BASH 1",
		"man1/tar.1.gz":        ".TH TAR 1",
		"man1/curl.1.gz":       ".TH CURL 1",
		"man5/ssh_config.5.gz": ".TH SSH_CONFIG 5",
	}
	for rel, body := range pages {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		// Plain content despite the .gz name; the fake renderer never
		// reads the bytes.
		if err := os.WriteFile(path, []byte(body+"\n"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return root
}

func newTestBuilder(t *testing.T, root string, renderer Renderer, adapter *fakeAdapter) (*Builder, store.Store) {
	t.Helper()
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "corpus.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if err := st.InitSchema(context.Background()); err != nil {
		t.Fatalf("init schema: %v", err)
	}

	return &Builder{
		Store:       st,
		Renderer:    renderer,
		Adapter:     adapter,
		ManRoot:     root,
		Locale:      "en",
		Distro:      "debian",
		Concurrency: 4,
	}, st
}

func TestIngestSample(t *testing.T) {
	root := writeSampleTree(t)
	adapter := &fakeAdapter{
		packages: map[string]string{"mandoc": "1.14.6", "coreutils": "9.1-1"},
		pathToPkg: map[string]string{
			filepath.Join(root, "man1", "ls.1.gz"): "coreutils",
		},
	}
	builder, st := newTestBuilder(t, root, &fakeRenderer{}, adapter)

	ctx := context.Background()
	summary, err := builder.Ingest(ctx, Options{Sample: true, Activate: true, GitSHA: "abc1234def"})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if summary.Total != 5 || summary.Succeeded != 5 || summary.HardFailed != 0 {
		t.Errorf("summary = %+v, want 5/5/0", summary)
	}
	if !strings.HasPrefix(summary.DatasetReleaseID, "debian-abc1234-m1.14.6-") {
		t.Errorf("release id = %q", summary.DatasetReleaseID)
	}

	rel, err := st.ActiveRelease(ctx, "en", "debian")
	if err != nil {
		t.Fatalf("active release: %v", err)
	}
	if rel.DatasetReleaseID != summary.DatasetReleaseID {
		t.Errorf("active = %q, want %q", rel.DatasetReleaseID, summary.DatasetReleaseID)
	}
	// Architecture provenance comes from the adapter.
	if rel.Architecture != "amd64" {
		t.Errorf("architecture = %q, want amd64", rel.Architecture)
	}

	// Provenance from the path map.
	record, err := st.GetPage(ctx, rel.ID, "ls", "1")
	if err != nil {
		t.Fatalf("get ls: %v", err)
	}
	if record.SourcePackage != "coreutils" || record.SourcePackageVersion != "9.1-1" {
		t.Errorf("ls provenance = %q %q", record.SourcePackage, record.SourcePackageVersion)
	}
	if record.Description != "test page for ls" {
		t.Errorf("ls description = %q", record.Description)
	}

	// The see-also reference resolved into a graph edge.
	related, err := st.Related(ctx, record.PageID)
	if err != nil {
		t.Fatalf("related: %v", err)
	}
	var foundTar bool
	for _, r := range related {
		if r.Name == "tar" {
			foundTar = true
		}
	}
	if !foundTar {
		t.Errorf("ls related = %+v, want tar edge", related)
	}
}

func TestIngestCountsRenderFailures(t *testing.T) {
	root := writeSampleTree(t)
	adapter := &fakeAdapter{packages: map[string]string{}}
	builder, st := newTestBuilder(t, root, &fakeRenderer{fail: map[string]bool{"curl": true}}, adapter)

	ctx := context.Background()
	summary, err := builder.Ingest(ctx, Options{Sample: true, Activate: true})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if summary.Succeeded != 4 || summary.HardFailed != 1 || summary.ParseFailed != 0 {
		t.Errorf("summary = %+v, want 4 succeeded and 1 render failure", summary)
	}

	rel, err := st.ActiveRelease(ctx, "en", "debian")
	if err != nil {
		t.Fatalf("active release: %v", err)
	}
	if _, err := st.GetPage(ctx, rel.ID, "curl", "1"); err == nil {
		t.Error("failed page was stored")
	}
}

func TestSummaryKeepsFailureKindsApart(t *testing.T) {
	sources := []manpage.Source{
		{Path: "/usr/share/man/man1/ls.1.gz", Name: "ls", Section: "1"},
		{Path: "/usr/share/man/man1/curl.1.gz", Name: "curl", Section: "1"},
		{Path: "/usr/share/man/man1/tar.1.gz", Name: "tar", Section: "1"},
	}
	results := []pageResult{
		{page: &manpage.ParsedPage{PageID: "p-ls", Name: "ls", Section: "1"}},
		{renderErr: errors.New("mandoc failed: exit status 5")},
		{parseErr: errors.New("parse fragment: unexpected token")},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	summary, pages, _ := summarize(logger, sources, results)
	if summary.Total != 3 || summary.Succeeded != 1 {
		t.Errorf("summary = %+v, want 3 total with 1 succeeded", summary)
	}
	if summary.HardFailed != 1 {
		t.Errorf("hard failed = %d, want only the render failure", summary.HardFailed)
	}
	if summary.ParseFailed != 1 {
		t.Errorf("parse failed = %d, want only the parse failure", summary.ParseFailed)
	}
	if len(pages) != 1 || pages[0].PageID != "p-ls" {
		t.Errorf("pages = %+v, want only ls", pages)
	}
}

func TestIngestFailsWithNoPages(t *testing.T) {
	root := writeSampleTree(t)
	adapter := &fakeAdapter{packages: map[string]string{}}
	failAll := map[string]bool{"ls": true, "bash": true, "tar": true, "curl": true, "ssh_config": true}
	builder, st := newTestBuilder(t, root, &fakeRenderer{fail: failAll}, adapter)

	ctx := context.Background()
	if _, err := builder.Ingest(ctx, Options{Sample: true, Activate: true}); err == nil {
		t.Fatal("expected error when every page fails")
	}
	// Nothing published, nothing activated.
	if _, err := st.ActiveRelease(ctx, "en", "debian"); err == nil {
		t.Error("a release was activated despite total failure")
	}
}

func TestIngestInstallsContentPackages(t *testing.T) {
	root := writeSampleTree(t)
	adapter := &fakeAdapter{packages: map[string]string{}}
	builder, _ := newTestBuilder(t, root, &fakeRenderer{}, adapter)
	builder.ContentPackages = []string{"coreutils", "openssh-client"}

	if _, err := builder.Ingest(context.Background(), Options{Sample: true}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(adapter.installed) != 1 || len(adapter.installed[0]) != 2 {
		t.Errorf("install calls = %+v, want one call with both packages", adapter.installed)
	}
}

func TestContentHash(t *testing.T) {
	a := ContentHash("<p>same</p>")
	b := ContentHash("<p>same</p>")
	c := ContentHash("<p>different</p>")
	if a != b {
		t.Error("identical input hashed differently")
	}
	if a == c {
		t.Error("different input hashed identically")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
}

func TestNewDatasetReleaseID(t *testing.T) {
	id := NewDatasetReleaseID("alpine", "0123456789abcdef", "1.14.6-r6")
	if !strings.HasPrefix(id, "alpine-0123456-m1.14.6-r6-") {
		t.Errorf("id = %q", id)
	}
	if id == NewDatasetReleaseID("alpine", "0123456789abcdef", "1.14.6-r6") {
		t.Error("ids should be unique per run")
	}

	if id := NewDatasetReleaseID("debian", "", "unknown"); !strings.HasPrefix(id, "debian-dev-munknown-") {
		t.Errorf("id without git sha = %q", id)
	}
}
