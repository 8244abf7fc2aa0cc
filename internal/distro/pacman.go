package distro

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Pacman reads the pacman local database under /var/lib/pacman/local:
// one directory per installed package holding "desc" and "files" in a
// %KEY%-stanza format. Root is overridable for tests.
type Pacman struct {
	Root string
}

func (p *Pacman) Name() string { return "pacman" }

func (p *Pacman) root() string {
	if p.Root != "" {
		return p.Root
	}
	return "/var/lib/pacman/local"
}

func (p *Pacman) InstalledPackages(ctx context.Context) (map[string]string, error) {
	entries, err := os.ReadDir(p.root())
	if err != nil {
		return nil, fmt.Errorf("read pacman db: %w", err)
	}
	packages := map[string]string{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		desc, err := parsePacmanStanzas(filepath.Join(p.root(), entry.Name(), "desc"))
		if err != nil {
			return nil, err
		}
		name := firstValue(desc, "NAME")
		version := firstValue(desc, "VERSION")
		if name != "" && version != "" {
			packages[name] = version
		}
	}
	return packages, nil
}

func (p *Pacman) ManPathToPackage(ctx context.Context) (map[string]string, error) {
	entries, err := os.ReadDir(p.root())
	if err != nil {
		return nil, fmt.Errorf("read pacman db: %w", err)
	}
	paths := map[string]string{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		desc, err := parsePacmanStanzas(filepath.Join(p.root(), entry.Name(), "desc"))
		if err != nil {
			return nil, err
		}
		name := firstValue(desc, "NAME")
		if name == "" {
			continue
		}
		files, err := parsePacmanStanzas(filepath.Join(p.root(), entry.Name(), "files"))
		if err != nil {
			return nil, err
		}
		// FILES entries are relative to the filesystem root.
		for _, rel := range files["FILES"] {
			abs := "/" + rel
			if isManPath(abs) {
				paths[abs] = name
			}
		}
	}
	return paths, nil
}

func (p *Pacman) Architecture(ctx context.Context) (string, error) {
	// Every desc carries an %ARCH% stanza; any non-"any" value is the
	// host architecture.
	entries, err := os.ReadDir(p.root())
	if err != nil {
		return "", fmt.Errorf("read pacman db: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		desc, err := parsePacmanStanzas(filepath.Join(p.root(), entry.Name(), "desc"))
		if err != nil {
			return "", err
		}
		if arch := firstValue(desc, "ARCH"); arch != "" && arch != "any" {
			return arch, nil
		}
	}
	return unameArch(ctx)
}

func (p *Pacman) Install(ctx context.Context, packages []string) error {
	if len(packages) == 0 {
		return nil
	}
	args := append([]string{"-S", "--needed", "--noconfirm"}, packages...)
	if _, err := runCommand(ctx, "pacman", args...); err != nil {
		return fmt.Errorf("pacman install: %w", err)
	}
	return nil
}

// parsePacmanStanzas reads a pacman db file of the form
//
//	%NAME%
//	bash
//
//	%VERSION%
//	5.2.026-2
//
// into a key to values map. A missing file yields an empty map.
func parsePacmanStanzas(path string) (map[string][]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return map[string][]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open pacman db file %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	stanzas := map[string][]string{}
	var key string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		switch {
		case line == "":
			key = ""
		case strings.HasPrefix(line, "%") && strings.HasSuffix(line, "%"):
			key = strings.Trim(line, "%")
		case key != "":
			stanzas[key] = append(stanzas[key], line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan pacman db file %s: %w", path, err)
	}
	return stanzas, nil
}

func firstValue(stanzas map[string][]string, key string) string {
	if values := stanzas[key]; len(values) > 0 {
		return values[0]
	}
	return ""
}
