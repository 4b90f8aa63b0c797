package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"docetl/internal/datasource"
)

// Dir lists the delimited files of one local directory, typically the
// directory a dataset archive was extracted into.
type Dir struct {
	Path string
	// Ext is the file extension to pick up, ".csv" when empty.
	Ext   string
	Rules []datasource.Rule
}

// Datasets returns one Dataset per matching file, sorted by name so runs are
// reproducible.
func (d Dir) Datasets(ctx context.Context) ([]datasource.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ext := d.Ext
	if ext == "" {
		ext = ".csv"
	}
	entries, err := os.ReadDir(d.Path)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", d.Path, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ext) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	out := make([]datasource.Dataset, 0, len(names))
	for _, n := range names {
		kind, coll := datasource.Resolve(n, d.Rules)
		out = append(out, datasource.Dataset{
			Name:       n,
			Kind:       kind,
			Collection: coll,
			Src:        NewLocal(filepath.Join(d.Path, n)),
		})
	}
	return out, nil
}
