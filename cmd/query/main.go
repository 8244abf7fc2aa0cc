// Command query runs one query against the active dataset release and
// prints the result as JSON, one of: search, suggest, get, related.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/mancorpus/mancorpus/internal/config"
	"github.com/mancorpus/mancorpus/internal/logging"
	"github.com/mancorpus/mancorpus/internal/search"
	"github.com/mancorpus/mancorpus/internal/store"
)

func main() {
	configPath := flag.String("config", config.DefaultPath(), "Path to config JSON")
	logLevel := flag.String("log-level", "warn", "Log level (debug, info, warn, error)")
	databaseURL := flag.String("database-url", "", "Override database URL")
	mode := flag.String("mode", "search", "Query mode: search, suggest, get, related")
	query := flag.String("q", "", "Search query, suggest prefix, or page name")
	section := flag.String("section", "", "Restrict to one manual section")
	limit := flag.Int("limit", 20, "Maximum results")
	offset := flag.Int("offset", 0, "Result offset for paging")
	flag.Parse()

	logger := logging.BuildLogger(*logLevel, false)

	if err := run(*configPath, *databaseURL, *mode, *query, *section, *limit, *offset); err != nil {
		logger.Error("query failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath, databaseURL, mode, query, section string, limit, offset int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if databaseURL != "" {
		cfg.DatabaseURL = databaseURL
		cfg.Driver = config.DriverForURL(databaseURL)
	}

	ctx := context.Background()
	st, err := store.Open(ctx, cfg.Driver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	engine := &search.Engine{Store: st, Locale: cfg.Locale, Distro: cfg.Distro}

	var result any
	switch mode {
	case "search":
		result, err = engine.Search(ctx, query, section, limit, offset)
	case "suggest":
		result, err = engine.Suggest(ctx, query)
	case "get":
		result, err = engine.Get(ctx, query, section)
	case "related":
		result, err = engine.Related(ctx, query, section)
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}

	var ambiguous *search.AmbiguousError
	if errors.As(err, &ambiguous) {
		result = map[string]any{
			"error":    "ambiguous",
			"name":     ambiguous.Name,
			"sections": ambiguous.Sections,
		}
	} else if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}
