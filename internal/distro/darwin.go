package distro

import (
	"context"
	"fmt"
	"strings"

	"github.com/mancorpus/mancorpus/internal/manpage"
)

// Darwin has no queryable package database for the system manual pages,
// so provenance comes up empty and licensing falls back to the text
// heuristic in DetectLicense.
type Darwin struct{}

func (d *Darwin) Name() string { return "darwin" }

func (d *Darwin) InstalledPackages(ctx context.Context) (map[string]string, error) {
	return map[string]string{}, nil
}

func (d *Darwin) ManPathToPackage(ctx context.Context) (map[string]string, error) {
	return map[string]string{}, nil
}

func (d *Darwin) Architecture(ctx context.Context) (string, error) {
	return unameArch(ctx)
}

func (d *Darwin) Install(ctx context.Context, packages []string) error {
	if len(packages) == 0 {
		return nil
	}
	return fmt.Errorf("installing packages is not supported on darwin")
}

// licenseScanLimit bounds how much of a page source the license
// heuristic inspects. License headers sit at the top of the file.
const licenseScanLimit = 32 * 1024

// licenseMarkers maps a distinctive license phrase to its record. The
// phrases are the canonical openings of each license's grant clause and
// do not occur in ordinary manual prose.
var licenseMarkers = []struct {
	phrase  string
	license manpage.License
}{
	{"Redistribution and use in source and binary forms", manpage.License{Key: "bsd", Name: "BSD License"}},
	{"Permission is hereby granted, free of charge", manpage.License{Key: "mit", Name: "MIT License"}},
	{"Apache License", manpage.License{Key: "apache-2.0", Name: "Apache License 2.0"}},
	{"Permission to use, copy, modify", manpage.License{Key: "isc", Name: "ISC License"}},
}

// DetectLicense scans the head of a page source for a known license
// grant clause. Used when the package database carries no license
// metadata.
func DetectLicense(source string) (manpage.License, bool) {
	if len(source) > licenseScanLimit {
		source = source[:licenseScanLimit]
	}
	for _, m := range licenseMarkers {
		if idx := strings.Index(source, m.phrase); idx >= 0 {
			lic := m.license
			lic.Attribution = attributionLine(source, idx)
			return lic, true
		}
	}
	return manpage.License{}, false
}

// attributionLine looks upward from the grant clause for the nearest
// Copyright line and returns it stripped of roff comment markers.
func attributionLine(source string, from int) string {
	head := source[:from]
	lines := strings.Split(head, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		line = strings.TrimPrefix(line, `.\"`)
		line = strings.TrimPrefix(line, `\"`)
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Copyright") {
			return line
		}
	}
	return ""
}
