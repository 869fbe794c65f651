// SPDX-License-Identifier: Apache-2.0

package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed *.sql
var embeddedFiles embed.FS

type File struct {
	Name    string
	Version string
	SQL     string
}

// Ordered returns the embedded migrations sorted by name. Every file must
// start with a four-digit version followed by an underscore, and versions
// must be unique.
func Ordered() ([]File, error) {
	return ordered(embeddedFiles)
}

func ordered(fsys fs.FS) ([]File, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}

	files := make([]File, 0, len(entries))
	seen := make(map[string]string, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := migrationVersion(entry.Name())
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[version]; ok {
			return nil, fmt.Errorf("migration version %s used by %s and %s", version, prev, entry.Name())
		}
		seen[version] = entry.Name()

		body, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, err
		}

		files = append(files, File{
			Name:    entry.Name(),
			Version: version,
			SQL:     string(body),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Name < files[j].Name
	})

	return files, nil
}

func migrationVersion(name string) (string, error) {
	if len(name) < 5 || name[4] != '_' {
		return "", fmt.Errorf("migration %s: name must start with NNNN_", name)
	}
	for _, c := range name[:4] {
		if c < '0' || c > '9' {
			return "", fmt.Errorf("migration %s: name must start with NNNN_", name)
		}
	}
	return name[:4], nil
}
