package distro

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// FreeBSD reads the pkg(8) database, an SQLite file at
// /var/db/pkg/local.sqlite. DBPath is overridable for tests.
type FreeBSD struct {
	DBPath string
}

func (f *FreeBSD) Name() string { return "pkg" }

func (f *FreeBSD) dbPath() string {
	if f.DBPath != "" {
		return f.DBPath
	}
	return "/var/db/pkg/local.sqlite"
}

func (f *FreeBSD) open() (*sql.DB, error) {
	db, err := sql.Open("sqlite", "file:"+f.dbPath()+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open pkg db: %w", err)
	}
	return db, nil
}

func (f *FreeBSD) InstalledPackages(ctx context.Context) (map[string]string, error) {
	db, err := f.open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(ctx, `SELECT name, version FROM packages`)
	if err != nil {
		return nil, fmt.Errorf("query pkg packages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	packages := map[string]string{}
	for rows.Next() {
		var name, version string
		if err := rows.Scan(&name, &version); err != nil {
			return nil, fmt.Errorf("scan pkg package: %w", err)
		}
		packages[name] = version
	}
	return packages, rows.Err()
}

func (f *FreeBSD) ManPathToPackage(ctx context.Context) (map[string]string, error) {
	db, err := f.open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(ctx,
		`SELECT p.name, f.path FROM files f JOIN packages p ON p.id = f.package_id
		 WHERE f.path LIKE '%/man/man%'`)
	if err != nil {
		return nil, fmt.Errorf("query pkg files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	paths := map[string]string{}
	for rows.Next() {
		var name, path string
		if err := rows.Scan(&name, &path); err != nil {
			return nil, fmt.Errorf("scan pkg file: %w", err)
		}
		paths[path] = name
	}
	return paths, rows.Err()
}

// Architecture reads the arch column pkg records for every package,
// e.g. "FreeBSD:14:amd64".
func (f *FreeBSD) Architecture(ctx context.Context) (string, error) {
	db, err := f.open()
	if err != nil {
		return "", err
	}
	defer func() { _ = db.Close() }()

	var arch string
	err = db.QueryRowContext(ctx, `SELECT arch FROM packages LIMIT 1`).Scan(&arch)
	if err == sql.ErrNoRows {
		return unameArch(ctx)
	}
	if err != nil {
		return "", fmt.Errorf("query pkg arch: %w", err)
	}
	return arch, nil
}

func (f *FreeBSD) Install(ctx context.Context, packages []string) error {
	if len(packages) == 0 {
		return nil
	}
	args := append([]string{"install", "-y"}, packages...)
	if _, err := runCommand(ctx, "pkg", args...); err != nil {
		return fmt.Errorf("pkg install: %w", err)
	}
	return nil
}
