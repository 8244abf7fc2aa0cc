// Package distro abstracts the package-manager surface of the supported
// distributions: which packages are installed, which package owns a
// manual page path, and how to install the content packages an
// ingestion run needs.
package distro

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Adapter is the per-distribution package-database boundary. Path maps
// use absolute paths as they appear on the filesystem.
type Adapter interface {
	Name() string

	// InstalledPackages returns installed package name to version.
	InstalledPackages(ctx context.Context) (map[string]string, error)

	// ManPathToPackage maps manual page paths to the owning package
	// name. Paths not owned by any package are simply absent.
	ManPathToPackage(ctx context.Context) (map[string]string, error)

	// Architecture reports the host package architecture in the
	// distro's own convention ("amd64" on dpkg, "x86_64" on rpm).
	Architecture(ctx context.Context) (string, error)

	// Install installs the named packages, reinstalling ones that are
	// already present so their documentation files exist on disk.
	Install(ctx context.Context, packages []string) error
}

// New selects an adapter by distro name.
func New(name string) (Adapter, error) {
	switch name {
	case "debian", "ubuntu":
		return &Dpkg{}, nil
	case "fedora", "rhel", "centos":
		return &RPM{}, nil
	case "arch":
		return &Pacman{}, nil
	case "alpine":
		return &APK{}, nil
	case "freebsd":
		return &FreeBSD{}, nil
	case "darwin":
		return &Darwin{}, nil
	}
	return nil, fmt.Errorf("unsupported distro %q", name)
}

// MandocVersion reports the installed mandoc version from the package
// map, whatever the distro packages it as. Returns "unknown" when no
// mandoc package is installed.
func MandocVersion(packages map[string]string) string {
	for _, name := range []string{"mandoc", "mdocml", "mandoc-bsd"} {
		if v, ok := packages[name]; ok && v != "" {
			return v
		}
	}
	return "unknown"
}

const commandTimeout = 5 * time.Minute

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 5 * time.Second
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return stdout.String(), nil
}

// unameArch is the architecture fallback for distros whose package
// database carries no machine-readable architecture of its own.
func unameArch(ctx context.Context) (string, error) {
	out, err := runCommand(ctx, "uname", "-m")
	if err != nil {
		return "", fmt.Errorf("uname: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// isManPath is a cheap pre-filter so the path maps only carry manual
// page entries, not every file a package ships.
func isManPath(path string) bool {
	return strings.Contains(path, "/man/man")
}
