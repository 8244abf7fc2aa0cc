package distro

import (
	"context"
	"fmt"
	"strings"
)

// RPM queries the rpm database via the rpm CLI. The database format is
// a BerkeleyDB/sqlite hybrid that varies per release, so the CLI is the
// stable interface.
type RPM struct{}

func (r *RPM) Name() string { return "rpm" }

func (r *RPM) InstalledPackages(ctx context.Context) (map[string]string, error) {
	out, err := runCommand(ctx, "rpm", "-qa", "--qf", "%{NAME}\t%{VERSION}-%{RELEASE}\n")
	if err != nil {
		return nil, fmt.Errorf("query rpm packages: %w", err)
	}
	packages := map[string]string{}
	for _, line := range strings.Split(out, "\n") {
		name, version, ok := strings.Cut(line, "\t")
		if !ok || name == "" {
			continue
		}
		packages[name] = version
	}
	return packages, nil
}

func (r *RPM) ManPathToPackage(ctx context.Context) (map[string]string, error) {
	// The [] array form emits one NAME\tFILE line per owned file.
	out, err := runCommand(ctx, "rpm", "-qa", "--qf", "[%{NAME}\t%{FILENAMES}\n]")
	if err != nil {
		return nil, fmt.Errorf("query rpm file lists: %w", err)
	}
	paths := map[string]string{}
	for _, line := range strings.Split(out, "\n") {
		name, path, ok := strings.Cut(line, "\t")
		if !ok || name == "" || !isManPath(path) {
			continue
		}
		paths[path] = name
	}
	return paths, nil
}

func (r *RPM) Architecture(ctx context.Context) (string, error) {
	out, err := runCommand(ctx, "rpm", "--eval", "%{_arch}")
	if err != nil {
		return "", fmt.Errorf("rpm architecture: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func (r *RPM) Install(ctx context.Context, packages []string) error {
	if len(packages) == 0 {
		return nil
	}
	installed, err := r.InstalledPackages(ctx)
	if err != nil {
		return err
	}
	var missing, present []string
	for _, pkg := range packages {
		if _, ok := installed[pkg]; ok {
			present = append(present, pkg)
		} else {
			missing = append(missing, pkg)
		}
	}
	if len(missing) > 0 {
		if _, err := runCommand(ctx, "dnf", append([]string{"install", "-y"}, missing...)...); err != nil {
			return fmt.Errorf("dnf install: %w", err)
		}
	}
	// dnf install is a no-op for present packages; reinstall restores
	// their doc files when the image was built with docs excluded.
	if len(present) > 0 {
		if _, err := runCommand(ctx, "dnf", append([]string{"reinstall", "-y"}, present...)...); err != nil {
			return fmt.Errorf("dnf reinstall: %w", err)
		}
	}
	return nil
}
