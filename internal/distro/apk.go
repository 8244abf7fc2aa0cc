package distro

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

// APK reads the Alpine installed-package database, a single file of
// single-letter-key records separated by blank lines. DBPath is
// overridable for tests.
type APK struct {
	DBPath string
}

func (a *APK) Name() string { return "apk" }

func (a *APK) dbPath() string {
	if a.DBPath != "" {
		return a.DBPath
	}
	return "/lib/apk/db/installed"
}

func (a *APK) InstalledPackages(ctx context.Context) (map[string]string, error) {
	packages := map[string]string{}
	err := a.walkRecords(func(name, version string, files []string) {
		packages[name] = version
	})
	if err != nil {
		return nil, err
	}
	return packages, nil
}

func (a *APK) ManPathToPackage(ctx context.Context) (map[string]string, error) {
	paths := map[string]string{}
	err := a.walkRecords(func(name, version string, files []string) {
		for _, path := range files {
			if isManPath(path) {
				paths[path] = name
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// walkRecords parses the installed db: P: is the package name, V: the
// version, F: opens a directory scope and R: names a file within it.
func (a *APK) walkRecords(fn func(name, version string, files []string)) error {
	f, err := os.Open(a.dbPath())
	if err != nil {
		return fmt.Errorf("open apk db: %w", err)
	}
	defer func() { _ = f.Close() }()

	var name, version, dir string
	var files []string
	flush := func() {
		if name != "" {
			fn(name, version, files)
		}
		name, version, dir = "", "", ""
		files = nil
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			flush()
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok || len(key) != 1 {
			continue
		}
		switch key {
		case "P":
			name = value
		case "V":
			version = value
		case "F":
			dir = value
		case "R":
			if dir != "" {
				files = append(files, "/"+dir+"/"+value)
			}
		}
	}
	flush()
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan apk db: %w", err)
	}
	return nil
}

func (a *APK) Architecture(ctx context.Context) (string, error) {
	out, err := runCommand(ctx, "apk", "--print-arch")
	if err != nil {
		return unameArch(ctx)
	}
	return strings.TrimSpace(out), nil
}

func (a *APK) Install(ctx context.Context, packages []string) error {
	if len(packages) == 0 {
		return nil
	}
	args := append([]string{"add", "--no-cache"}, packages...)
	if _, err := runCommand(ctx, "apk", args...); err != nil {
		return fmt.Errorf("apk add: %w", err)
	}
	return nil
}
