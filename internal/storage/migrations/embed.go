// Package migrations applies the keeper-vault schema embedded in the binary.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"
)

//go:embed postgres/*.sql clickhouse/*.sql
var schema embed.FS

// script is one schema file. Scripts run in file name order.
type script struct {
	name string
	sql  string
}

// scripts returns the non-empty schema files of a backend directory.
func scripts(backend string) ([]script, error) {
	names, err := fs.Glob(schema, backend+"/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list %s schema: %w", backend, err)
	}

	var out []script
	for _, name := range names {
		data, err := schema.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		out = append(out, script{name: path.Base(name), sql: string(data)})
	}
	return out, nil
}
