// Package release orchestrates one ingestion run: install content
// packages, scan the man tree, render and parse every page, resolve the
// reference graph and publish the whole batch as one dataset release.
package release

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mancorpus/mancorpus/internal/distro"
	"github.com/mancorpus/mancorpus/internal/mandoc"
	"github.com/mancorpus/mancorpus/internal/manpage"
	"github.com/mancorpus/mancorpus/internal/parser"
	"github.com/mancorpus/mancorpus/internal/resolver"
	"github.com/mancorpus/mancorpus/internal/scanner"
	"github.com/mancorpus/mancorpus/internal/store"
)

// Renderer is the single method of mandoc.Renderer the builder needs,
// split out so tests can substitute a canned renderer.
type Renderer interface {
	Render(ctx context.Context, path string) (mandoc.Result, error)
}

// Builder runs ingestion end to end against one man tree.
type Builder struct {
	Store    store.Store
	Renderer Renderer
	Adapter  distro.Adapter
	Logger   *slog.Logger

	ManRoot     string
	Locale      string
	Distro      string
	Concurrency int

	// ContentPackages are installed (or reinstalled) before scanning so
	// their documentation exists on disk.
	ContentPackages []string
}

// Options selects per-run behavior.
type Options struct {
	// Sample restricts the scan to the small fixed page allowlist.
	Sample bool
	// Activate swaps the new release in as the active one for this
	// (locale, distro) inside the publish transaction.
	Activate bool

	ImageRef    string
	ImageDigest string
	GitSHA      string
}

// Summary reports what one run did. HardFailed counts renderer process
// failures; ParseFailed counts pages whose rendered output could not be
// turned into a document. Both kinds drop the page from the release.
type Summary struct {
	DatasetReleaseID string
	Total            int
	Succeeded        int
	HardFailed       int
	ParseFailed      int
	Published        bool
}

type pageResult struct {
	page      *manpage.ParsedPage
	licenses  []manpage.License
	renderErr error
	parseErr  error
}

// Ingest runs one full ingestion. Individual pages that fail to render
// or parse are dropped and counted; the run itself fails only when the
// environment is broken or nothing at all could be ingested.
func (b *Builder) Ingest(ctx context.Context, opts Options) (*Summary, error) {
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}

	installed, err := b.Adapter.InstalledPackages(ctx)
	if err != nil {
		return nil, fmt.Errorf("read package database: %w", err)
	}
	if len(b.ContentPackages) > 0 {
		logger.Info("installing content packages", "count", len(b.ContentPackages))
		if err := b.Adapter.Install(ctx, b.ContentPackages); err != nil {
			return nil, fmt.Errorf("install content packages: %w", err)
		}
		if installed, err = b.Adapter.InstalledPackages(ctx); err != nil {
			return nil, fmt.Errorf("re-read package database: %w", err)
		}
	}
	pathToPkg, err := b.Adapter.ManPathToPackage(ctx)
	if err != nil {
		return nil, fmt.Errorf("read package file lists: %w", err)
	}
	arch, err := b.Adapter.Architecture(ctx)
	if err != nil {
		return nil, fmt.Errorf("detect architecture: %w", err)
	}

	sources, stats, err := scanner.Scan(b.ManRoot, opts.Sample)
	if err != nil {
		return nil, fmt.Errorf("scan man tree: %w", err)
	}
	logger.Info("scanned man tree", "sources", len(sources),
		"walked", stats.Walked, "dropped", stats.Dropped, "duplicates", stats.Duplicates)

	results := make([]pageResult, len(sources))
	group, groupCtx := errgroup.WithContext(ctx)
	concurrency := b.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}
	group.SetLimit(concurrency)
	for i, src := range sources {
		group.Go(func() error {
			results[i] = b.ingestPage(groupCtx, src, installed, pathToPkg)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	summary, pages, licenses := summarize(logger, sources, results)
	if len(pages) == 0 {
		return nil, fmt.Errorf("ingestion produced no pages (%d sources, %d render failures, %d parse failures)",
			summary.Total, summary.HardFailed, summary.ParseFailed)
	}

	edges := resolver.Resolve(pages)

	manifest, err := json.Marshal(installed)
	if err != nil {
		return nil, fmt.Errorf("encode package manifest: %w", err)
	}
	rel := &manpage.Release{
		DatasetReleaseID: NewDatasetReleaseID(b.Distro, opts.GitSHA, distro.MandocVersion(installed)),
		Locale:           b.Locale,
		Distro:           b.Distro,
		ImageRef:         opts.ImageRef,
		ImageDigest:      opts.ImageDigest,
		Architecture:     arch,
		IngestedAt:       time.Now().UTC(),
		PackageManifest:  manifest,
	}
	if err := b.Store.Publish(ctx, rel, pages, edges, licenses, opts.Activate); err != nil {
		return nil, fmt.Errorf("publish release: %w", err)
	}

	summary.DatasetReleaseID = rel.DatasetReleaseID
	summary.Published = opts.Activate
	logger.Info("published release",
		"release", rel.DatasetReleaseID,
		"architecture", arch,
		"pages", summary.Succeeded,
		"render_failed", summary.HardFailed,
		"parse_failed", summary.ParseFailed,
		"edges", len(edges),
		"activated", opts.Activate)
	return summary, nil
}

// summarize folds the per-page results into run counts, keeping render
// process failures and parse failures apart.
func summarize(logger *slog.Logger, sources []manpage.Source, results []pageResult) (*Summary, []*manpage.ParsedPage, map[string][]manpage.License) {
	summary := &Summary{Total: len(sources)}
	var pages []*manpage.ParsedPage
	licenses := map[string][]manpage.License{}
	for i, res := range results {
		switch {
		case res.renderErr != nil:
			summary.HardFailed++
			logger.Warn("render failed", "path", sources[i].Path, "error", res.renderErr)
			continue
		case res.parseErr != nil:
			summary.ParseFailed++
			logger.Warn("parse failed", "path", sources[i].Path, "error", res.parseErr)
			continue
		}
		summary.Succeeded++
		pages = append(pages, res.page)
		if len(res.licenses) > 0 {
			licenses[res.page.PageID] = res.licenses
		}
	}
	return summary, pages, licenses
}

func (b *Builder) ingestPage(ctx context.Context, src manpage.Source, installed, pathToPkg map[string]string) pageResult {
	rendered, err := b.Renderer.Render(ctx, src.Path)
	if err != nil {
		return pageResult{renderErr: fmt.Errorf("render: %w", err)}
	}
	fragment, err := parser.Parse(rendered.HTML)
	if err != nil {
		return pageResult{parseErr: fmt.Errorf("parse: %w", err)}
	}

	page := &manpage.ParsedPage{
		PageID:           uuid.NewString(),
		Name:             src.Name,
		Section:          src.Section,
		Title:            fragment.Title,
		Description:      fragment.Description,
		SourcePath:       src.Path,
		ContentSHA256:    ContentHash(rendered.HTML),
		HasParseWarnings: rendered.Warnings != "",
		Doc:              fragment.Doc,
		PlainText:        fragment.PlainText,
		Synopsis:         fragment.Synopsis,
		Options:          fragment.Options,
		SeeAlso:          fragment.SeeAlso,
	}
	if page.Title == "" {
		page.Title = fmt.Sprintf("%s(%s)", src.Name, src.Section)
	}
	if pkg, ok := pathToPkg[src.Path]; ok {
		page.SourcePackage = pkg
		page.SourcePackageVersion = installed[pkg]
	}

	var licenses []manpage.License
	if source, err := mandoc.ReadSource(src.Path); err == nil {
		if lic, ok := distro.DetectLicense(source); ok {
			licenses = append(licenses, lic)
		}
	}
	return pageResult{page: page, licenses: licenses}
}
