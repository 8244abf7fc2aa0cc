// Package scanner discovers manual page sources under a man tree.
package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mancorpus/mancorpus/internal/manpage"
)

var (
	// sectionPattern accepts numeric sections with an optional lowercase
	// suffix, e.g. "1", "3ssl", "1p".
	sectionPattern = regexp.MustCompile(`^[1-9][a-z0-9]*$`)
	// namePattern is the conservative set of characters accepted in page
	// names. Non-conforming names are dropped, not errored.
	namePattern = regexp.MustCompile(`^[a-zA-Z0-9_][a-zA-Z0-9._+:\-]*$`)
	// manDirPattern matches per-section subdirectories ("man1", "man3p").
	manDirPattern = regexp.MustCompile(`^man[1-9][a-z0-9]*$`)
)

// sampleSources is the fixed allowlist used for fast smoke-test runs.
var sampleSources = []struct {
	name    string
	section string
}{
	{"ls", "1"},
	{"bash", "1"},
	{"tar", "1"},
	{"curl", "1"},
	{"ssh_config", "5"},
}

// Stats counts what the scan saw beyond the returned sources.
type Stats struct {
	Walked     int // candidate files considered
	Dropped    int // non-conforming names or sections
	Duplicates int // exact (name, section) repeats
}

// Scan walks root for manual page sources. In sample mode only the fixed
// allowlist is looked up, for fast smoke-test ingestion. Exact
// (name, section) duplicates are deduplicated last-writer-wins in
// discovery order.
func Scan(root string, sample bool) ([]manpage.Source, Stats, error) {
	if sample {
		return scanSample(root)
	}
	return scanFull(root)
}

func scanFull(root string) ([]manpage.Source, Stats, error) {
	var stats Stats

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, stats, fmt.Errorf("read man root: %w", err)
	}

	index := map[string]int{}
	var sources []manpage.Source

	for _, entry := range entries {
		if !entry.IsDir() || !manDirPattern.MatchString(entry.Name()) {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			return nil, stats, fmt.Errorf("read section dir %s: %w", dir, err)
		}
		for _, file := range files {
			if file.IsDir() {
				continue
			}
			stats.Walked++
			name, section, ok := ParseFilename(file.Name())
			if !ok {
				stats.Dropped++
				continue
			}
			src := manpage.Source{
				Path:    filepath.Join(dir, file.Name()),
				Name:    name,
				Section: section,
			}
			key := name + "\x00" + section
			if at, seen := index[key]; seen {
				// Last writer wins.
				sources[at] = src
				stats.Duplicates++
				continue
			}
			index[key] = len(sources)
			sources = append(sources, src)
		}
	}

	return sources, stats, nil
}

func scanSample(root string) ([]manpage.Source, Stats, error) {
	var stats Stats
	var sources []manpage.Source

	for _, want := range sampleSources {
		stats.Walked++
		dir := filepath.Join(root, "man"+string(want.section[0]))
		found := ""
		for _, candidate := range []string{
			want.name + "." + want.section + ".gz",
			want.name + "." + want.section,
		} {
			path := filepath.Join(dir, candidate)
			if _, err := os.Stat(path); err == nil {
				found = path
				break
			}
		}
		if found == "" {
			stats.Dropped++
			continue
		}
		sources = append(sources, manpage.Source{
			Path:    found,
			Name:    want.name,
			Section: want.section,
		})
	}

	return sources, stats, nil
}

// ParseFilename splits "{name}.{section}[.gz]" and validates both parts.
func ParseFilename(filename string) (name, section string, ok bool) {
	base := strings.TrimSuffix(filename, ".gz")
	dot := strings.LastIndex(base, ".")
	if dot <= 0 || dot == len(base)-1 {
		return "", "", false
	}
	name, section = base[:dot], base[dot+1:]
	if !sectionPattern.MatchString(section) {
		return "", "", false
	}
	if !namePattern.MatchString(name) {
		return "", "", false
	}
	return name, section, true
}
