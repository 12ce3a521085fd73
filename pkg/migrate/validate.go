package migrate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
)

const (
	versionLayout = "20060102150405"
	markerUp      = "-- +goose Up"
	markerDown    = "-- +goose Down"
	markerBegin   = "-- +goose StatementBegin"
	markerEnd     = "-- +goose StatementEnd"
)

// File describes one migration found in a migration directory.
type File struct {
	Version int64
	Slug    string
	Name    string
}

// ValidateDir checks the migration files stored in dir on disk.
func ValidateDir(dir string) error {
	if dir == "" {
		return errors.New("dir is required")
	}
	_, err := Inspect(os.DirFS(dir))
	return err
}

// ValidateFS checks the migration files at the root of fsys.
func ValidateFS(fsys fs.FS) error {
	_, err := Inspect(fsys)
	return err
}

// Inspect returns the migrations at the root of fsys ordered by version. Each
// file must be named <YYYYMMDDHHMMSS>_<slug>.sql, carry a unique version and
// contain an Up section followed by a Down section with balanced statement
// blocks.
func Inspect(fsys fs.FS) ([]File, error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	files := make([]File, 0, len(names))
	byVersion := make(map[int64]string, len(names))
	for _, name := range names {
		file, err := parseFileName(name)
		if err != nil {
			return nil, err
		}
		if other, dup := byVersion[file.Version]; dup {
			return nil, fmt.Errorf("duplicate migration version %d in %q and %q", file.Version, other, name)
		}
		byVersion[file.Version] = name

		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", name, err)
		}
		if err := checkSections(string(body)); err != nil {
			return nil, fmt.Errorf("migration %q: %w", name, err)
		}
		files = append(files, file)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Version < files[j].Version })
	return files, nil
}

func parseFileName(name string) (File, error) {
	stamp, rest, ok := strings.Cut(strings.TrimSuffix(name, ".sql"), "_")
	if !ok || len(stamp) != len(versionLayout) || rest == "" || slugify(rest) != rest {
		return File{}, fmt.Errorf("invalid migration filename %q: want YYYYMMDDHHMMSS_slug.sql", name)
	}
	version, err := strconv.ParseInt(stamp, 10, 64)
	if err != nil {
		return File{}, fmt.Errorf("invalid migration filename %q: %w", name, err)
	}
	return File{Version: version, Slug: rest, Name: name}, nil
}

func checkSections(body string) error {
	up := strings.Index(body, markerUp)
	down := strings.Index(body, markerDown)
	switch {
	case up < 0:
		return fmt.Errorf("missing %q", markerUp)
	case down < 0:
		return fmt.Errorf("missing %q", markerDown)
	case down < up:
		return fmt.Errorf("%q must come before %q", markerUp, markerDown)
	}

	open := false
	for _, line := range strings.Split(body, "\n") {
		switch strings.TrimSpace(line) {
		case markerBegin:
			if open {
				return errors.New("nested statement block")
			}
			open = true
		case markerEnd:
			if !open {
				return errors.New("statement block closed before it was opened")
			}
			open = false
		}
	}
	if open {
		return errors.New("unterminated statement block")
	}
	return nil
}

// ParseVersion reads a YYYYMMDDHHMMSS migration version.
func ParseVersion(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) != len(versionLayout) {
		return 0, fmt.Errorf("version %q: want YYYYMMDDHHMMSS", raw)
	}
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("version %q: %w", raw, err)
	}
	return version, nil
}
