package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/forsocials/replyriser-backend/pkg/config"
)

var (
	sqlFileRe = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)

	// Drivers lists the dialects that ship a migrations directory.
	Drivers = []string{config.DBDriverPostgres, config.DBDriverMySQL, config.DBDriverSQLite}
)

// ValidateDir checks every driver directory under base: filenames, goose
// headers, and that all drivers carry the same set of migrations.
func ValidateDir(base string) error {
	if base == "" {
		return fmt.Errorf("dir is required")
	}

	var reference []string
	var referenceDriver string
	for _, driver := range Drivers {
		names, err := validateDriverDir(DirFor(base, driver))
		if err != nil {
			return err
		}
		if referenceDriver == "" {
			reference, referenceDriver = names, driver
			continue
		}
		if !slices.Equal(reference, names) {
			return fmt.Errorf("migrations for %s and %s differ: %v vs %v", referenceDriver, driver, reference, names)
		}
	}
	return nil
}

func validateDriverDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", dir, err)
	}

	seen := map[string]string{} // version -> filename
	var names []string

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".sql") {
			continue
		}

		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return nil, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}

		version := m[1]
		if prev, ok := seen[version]; ok {
			return nil, fmt.Errorf("duplicate migration version %s in %q and %q", version, prev, name)
		}
		seen[version] = name

		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read file %q: %w", name, err)
		}
		txt := string(b)
		if !strings.Contains(txt, "-- +goose Up") {
			return nil, fmt.Errorf("migration %q missing \"-- +goose Up\"", name)
		}
		if !strings.Contains(txt, "-- +goose Down") {
			return nil, fmt.Errorf("migration %q missing \"-- +goose Down\"", name)
		}
		names = append(names, name)
	}

	slices.Sort(names)
	return names, nil
}
