// Package datasource describes where raw delimited files come from. The
// pipeline only needs a name and a way to open a read stream; download and
// discovery mechanics live behind these interfaces.
package datasource

import (
	"context"
	"io"
	"path"
	"strings"

	"docetl/pkg/records"
)

// Source opens one delimited-text resource for reading. Open may be called
// more than once for the same resource (sniff, stream, fallback).
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (io.ReadCloser, error)

func (f SourceFunc) Open(ctx context.Context) (io.ReadCloser, error) { return f(ctx) }

// Dataset is one file to process, tagged with the transform kind and the
// destination collection.
type Dataset struct {
	Name       string
	Kind       records.Kind
	Collection string
	Src        Source
}

// Catalog lists the datasets a source exposes.
type Catalog interface {
	Datasets(ctx context.Context) ([]Dataset, error)
}

// Rule tags datasets whose name contains Contains (case-insensitive).
type Rule struct {
	Contains   string
	Kind       records.Kind
	Collection string
}

// Resolve returns the kind and collection for a dataset name. The first
// matching rule wins; unmatched names are Generic and load into a
// collection named after the file without its extension.
func Resolve(name string, rules []Rule) (records.Kind, string) {
	lower := strings.ToLower(path.Base(name))
	for _, r := range rules {
		if r.Contains == "" || !strings.Contains(lower, strings.ToLower(r.Contains)) {
			continue
		}
		coll := r.Collection
		if coll == "" {
			coll = r.Kind.DefaultCollection()
		}
		if coll == "" {
			coll = BaseCollection(name)
		}
		return r.Kind, coll
	}
	return records.KindGeneric, BaseCollection(name)
}

// BaseCollection derives a collection name from a file name: the base name
// up to the first dot.
func BaseCollection(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if i := strings.IndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return base
}
