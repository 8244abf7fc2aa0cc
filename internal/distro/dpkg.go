package distro

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	debversion "pault.ag/go/debian/version"
)

// Dpkg reads the dpkg database directly, the same files apt maintains
// under /var/lib/dpkg. Root is overridable for tests.
type Dpkg struct {
	Root string
}

func (d *Dpkg) Name() string { return "dpkg" }

func (d *Dpkg) root() string {
	if d.Root != "" {
		return d.Root
	}
	return "/var/lib/dpkg"
}

func (d *Dpkg) InstalledPackages(ctx context.Context) (map[string]string, error) {
	f, err := os.Open(filepath.Join(d.root(), "status"))
	if err != nil {
		return nil, fmt.Errorf("open dpkg status: %w", err)
	}
	defer func() { _ = f.Close() }()

	packages := map[string]string{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	fields := map[string]string{}

	flush := func() {
		name, version := fields["Package"], fields["Version"]
		installed := strings.HasSuffix(fields["Status"], " installed")
		fields = map[string]string{}
		if name == "" || version == "" || !installed {
			return
		}
		if current, ok := packages[name]; ok && !debGreater(version, current) {
			return
		}
		packages[name] = version
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			flush()
			continue
		}
		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		switch key {
		case "Package", "Version", "Status":
			fields[key] = value
		}
	}
	flush()
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan dpkg status: %w", err)
	}
	return packages, nil
}

func (d *Dpkg) ManPathToPackage(ctx context.Context) (map[string]string, error) {
	infoDir := filepath.Join(d.root(), "info")
	entries, err := os.ReadDir(infoDir)
	if err != nil {
		return nil, fmt.Errorf("read dpkg info dir: %w", err)
	}

	paths := map[string]string{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".list") {
			continue
		}
		// List files are named "pkg.list" or "pkg:arch.list".
		pkg := strings.TrimSuffix(entry.Name(), ".list")
		if i := strings.IndexByte(pkg, ':'); i >= 0 {
			pkg = pkg[:i]
		}
		if err := d.readList(filepath.Join(infoDir, entry.Name()), pkg, paths); err != nil {
			return nil, err
		}
	}
	return paths, nil
}

func (d *Dpkg) readList(path, pkg string, paths map[string]string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open dpkg list %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := scanner.Text(); isManPath(line) {
			paths[line] = pkg
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan dpkg list %s: %w", path, err)
	}
	return nil
}

func (d *Dpkg) Architecture(ctx context.Context) (string, error) {
	out, err := runCommand(ctx, "dpkg", "--print-architecture")
	if err != nil {
		return "", fmt.Errorf("dpkg architecture: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func (d *Dpkg) Install(ctx context.Context, packages []string) error {
	if len(packages) == 0 {
		return nil
	}
	args := append([]string{"install", "-y", "--reinstall"}, packages...)
	if _, err := runCommand(ctx, "apt-get", args...); err != nil {
		return fmt.Errorf("apt-get install: %w", err)
	}
	return nil
}

func debGreater(left, right string) bool {
	if right == "" {
		return true
	}
	l, err := debversion.Parse(left)
	if err != nil {
		return false
	}
	r, err := debversion.Parse(right)
	if err != nil {
		return true
	}
	return debversion.Compare(l, r) > 0
}
