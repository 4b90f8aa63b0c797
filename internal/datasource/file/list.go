package file

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"docetl/internal/datasource"
	"docetl/pkg/records"
)

// ReadList reads a text file line by line and returns a slice of strings
// containing non-empty, non-comment lines.
//
// Lines that are empty or start with '#' (after trimming leading/trailing
// whitespace) are skipped. This makes it convenient to maintain list files
// with comments and blank separators.
//
// The order of lines is preserved. On I/O error, a non-nil error is returned.
func ReadList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Manifest is a Catalog backed by a list file. Each line is
//
//	path[,kind[,collection]]
//
// Relative paths resolve against the manifest's directory. When kind is
// omitted the Rules decide.
type Manifest struct {
	Path  string
	Rules []datasource.Rule
}

// Datasets parses the manifest.
func (m Manifest) Datasets(ctx context.Context) ([]datasource.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lines, err := ReadList(m.Path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", m.Path, err)
	}
	base := filepath.Dir(m.Path)

	out := make([]datasource.Dataset, 0, len(lines))
	for i, line := range lines {
		parts := strings.Split(line, ",")
		for j := range parts {
			parts[j] = strings.TrimSpace(parts[j])
		}
		p := parts[0]
		if !filepath.IsAbs(p) {
			p = filepath.Join(base, p)
		}
		kind, coll := datasource.Resolve(p, m.Rules)
		if len(parts) > 1 && parts[1] != "" {
			if kind, err = records.ParseKind(parts[1]); err != nil {
				return nil, fmt.Errorf("manifest line %d: %w", i+1, err)
			}
			coll = kind.DefaultCollection()
			if coll == "" {
				coll = datasource.BaseCollection(p)
			}
		}
		if len(parts) > 2 && parts[2] != "" {
			coll = parts[2]
		}
		out = append(out, datasource.Dataset{
			Name:       filepath.Base(p),
			Kind:       kind,
			Collection: coll,
			Src:        NewLocal(p),
		})
	}
	return out, nil
}
