package migrate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const newMigrationBody = markerUp + `
` + markerBegin + `

` + markerEnd + `

` + markerDown + `
` + markerBegin + `

` + markerEnd + `
`

// Create writes an empty migration named <YYYYMMDDHHMMSS>_<slug>.sql into
// dir and returns its path. The new version must sort after every migration
// already in dir.
func Create(dir, name string, now time.Time) (string, error) {
	if dir == "" {
		return "", errors.New("dir is required")
	}
	slug := slugify(name)
	if slug == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %q: %w", dir, err)
	}

	stamp := now.UTC().Format(versionLayout)
	version, _ := strconv.ParseInt(stamp, 10, 64)
	existing, err := Inspect(os.DirFS(dir))
	if err != nil {
		return "", err
	}
	if n := len(existing); n > 0 && existing[n-1].Version >= version {
		return "", fmt.Errorf("version %d does not sort after latest migration %s", version, existing[n-1].Name)
	}

	target := filepath.Join(dir, stamp+"_"+slug+".sql")
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create migration: %w", err)
	}
	if _, err := f.WriteString(newMigrationBody); err != nil {
		f.Close()
		return "", fmt.Errorf("write %q: %w", target, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %q: %w", target, err)
	}
	return target, nil
}

// slugify lowercases name and collapses every run of characters outside
// [a-z0-9] into a single underscore.
func slugify(name string) string {
	words := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !(r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)))
	})
	return strings.Join(words, "_")
}
