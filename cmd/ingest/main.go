package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mancorpus/mancorpus/internal/config"
	"github.com/mancorpus/mancorpus/internal/distro"
	"github.com/mancorpus/mancorpus/internal/logging"
	"github.com/mancorpus/mancorpus/internal/mandoc"
	"github.com/mancorpus/mancorpus/internal/release"
	"github.com/mancorpus/mancorpus/internal/store"
)

func main() {
	configPath := flag.String("config", config.DefaultPath(), "Path to config JSON")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	logJSON := flag.Bool("log-json", false, "Emit JSON logs")
	databaseURL := flag.String("database-url", "", "Override database URL")
	distroName := flag.String("distro", "", "Override distro name")
	manRoot := flag.String("man-root", "", "Override man tree root")
	concurrency := flag.Int("concurrency", 0, "Override worker count")
	sample := flag.Bool("sample", false, "Ingest only the small sample page set")
	activate := flag.Bool("activate", false, "Activate the release after publishing")
	packages := flag.String("packages", "", "Comma-separated content packages to install before scanning")
	imageRef := flag.String("image-ref", "", "Source image reference for provenance")
	imageDigest := flag.String("image-digest", "", "Source image digest for provenance")
	gitSHA := flag.String("git-sha", "", "Ingestion code revision for the release id")
	flag.Parse()

	logger := logging.BuildLogger(*logLevel, *logJSON)

	if err := ingest(logger, *configPath, overrides{
		databaseURL: *databaseURL,
		distro:      *distroName,
		manRoot:     *manRoot,
		concurrency: *concurrency,
		packages:    *packages,
	}, release.Options{
		Sample:      *sample,
		Activate:    *activate,
		ImageRef:    *imageRef,
		ImageDigest: *imageDigest,
		GitSHA:      *gitSHA,
	}); err != nil {
		logger.Error("ingest failed", "error", err)
		os.Exit(1)
	}
}

type overrides struct {
	databaseURL string
	distro      string
	manRoot     string
	concurrency int
	packages    string
}

func ingest(logger *slog.Logger, configPath string, o overrides, opts release.Options) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
		cfg.Driver = config.DriverForURL(o.databaseURL)
	}
	if o.distro != "" {
		cfg.Distro = o.distro
	}
	if o.manRoot != "" {
		cfg.ManRoot = o.manRoot
	}
	if o.concurrency > 0 {
		cfg.Concurrency = o.concurrency
	}
	if o.packages != "" {
		cfg.ContentPackages = splitList(o.packages)
	}

	ctx := context.Background()

	st, err := store.Open(ctx, cfg.Driver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	if err := st.InitSchema(ctx); err != nil {
		return err
	}

	adapter, err := distro.New(cfg.Distro)
	if err != nil {
		return err
	}

	renderer := mandoc.NewRenderer(cfg.MandocBinary)
	renderer.ManRoot = cfg.ManRoot

	builder := &release.Builder{
		Store:           st,
		Renderer:        renderer,
		Adapter:         adapter,
		Logger:          logger,
		ManRoot:         cfg.ManRoot,
		Locale:          cfg.Locale,
		Distro:          cfg.Distro,
		Concurrency:     cfg.Concurrency,
		ContentPackages: cfg.ContentPackages,
	}

	summary, err := builder.Ingest(ctx, opts)
	if err != nil {
		return err
	}
	logger.Info("ingest complete",
		"release", summary.DatasetReleaseID,
		"total", summary.Total,
		"succeeded", summary.Succeeded,
		"failed", summary.HardFailed,
		"activated", summary.Published)
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
