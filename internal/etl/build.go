package etl

import (
	"context"
	"fmt"
	"unicode/utf8"

	"docetl/internal/config"
	"docetl/internal/datasource"
	"docetl/internal/datasource/file"
	"docetl/internal/datasource/s3"
	"docetl/internal/loader"
	csvparser "docetl/internal/parser/csv"
	"docetl/internal/storage"
	"docetl/internal/transformer"
	"docetl/pkg/records"
)

// Rules converts configured source rules.
func Rules(rs []config.Rule) ([]datasource.Rule, error) {
	out := make([]datasource.Rule, 0, len(rs))
	for i, r := range rs {
		kind, err := records.ParseKind(r.Kind)
		if err != nil {
			return nil, fmt.Errorf("source.rules[%d]: %w", i, err)
		}
		out = append(out, datasource.Rule{Contains: r.Contains, Kind: kind, Collection: r.Collection})
	}
	return out, nil
}

// staticCatalog is a fixed list of datasets.
type staticCatalog []datasource.Dataset

func (c staticCatalog) Datasets(ctx context.Context) ([]datasource.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]datasource.Dataset(nil), c...), nil
}

// Catalog builds the dataset catalog the source config describes.
func Catalog(src config.Source) (datasource.Catalog, error) {
	rules, err := Rules(src.Rules)
	if err != nil {
		return nil, err
	}
	switch src.Kind {
	case "dir":
		return file.Dir{Path: src.Dir, Ext: src.Ext, Rules: rules}, nil
	case "manifest":
		return file.Manifest{Path: src.Manifest, Rules: rules}, nil
	case "files":
		out := make(staticCatalog, 0, len(src.Files))
		for i, f := range src.Files {
			kind, coll := datasource.Resolve(f.Path, rules)
			if f.Kind != "" {
				if kind, err = records.ParseKind(f.Kind); err != nil {
					return nil, fmt.Errorf("source.files[%d]: %w", i, err)
				}
				if coll = kind.DefaultCollection(); coll == "" {
					coll = datasource.BaseCollection(f.Path)
				}
			}
			if f.Collection != "" {
				coll = f.Collection
			}
			out = append(out, datasource.Dataset{
				Name:       f.Path,
				Kind:       kind,
				Collection: coll,
				Src:        file.NewLocal(f.Path),
			})
		}
		return out, nil
	case "s3":
		c, err := s3.New(s3.Config{
			Endpoint:        src.S3.Endpoint,
			AccessKeyID:     src.S3.AccessKeyID,
			SecretAccessKey: src.S3.SecretAccessKey,
			Region:          src.S3.Region,
			UseSSL:          src.S3.UseSSL,
			Bucket:          src.S3.Bucket,
			Prefix:          src.S3.Prefix,
			Ext:             src.Ext,
			Rules:           rules,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown source kind %q", src.Kind)
}

// OpenStore opens the configured document store.
func OpenStore(ctx context.Context, s config.Storage) (storage.Store, error) {
	return storage.New(ctx, storage.Config{Kind: s.Kind, DSN: s.DSN, Database: s.Database})
}

// Indexes merges the built-in indexes with the configured ones.
func Indexes(s config.Storage) map[string][]storage.Index {
	out := map[string][]storage.Index{}
	if !s.NoDefaultIndexes {
		for coll, idxs := range loader.DefaultIndexes() {
			out[coll] = append(out[coll], idxs...)
		}
	}
	for coll, idxs := range s.Indexes {
		for _, idx := range idxs {
			out[coll] = append(out[coll], storage.Index{Name: idx.Name, Keys: idx.Keys, Unique: idx.Unique})
		}
	}
	return out
}

// CSVOptions converts the parser config. A zero Comma means detect.
func CSVOptions(p config.Parser) csvparser.Options {
	opt := csvparser.Options{
		LazyQuotes: p.LazyQuotes,
		TrimSpace:  p.TrimSpace,
		ChunkSize:  p.ChunkSize,
		SniffRows:  p.SniffRows,
		HeaderMap:  p.HeaderMap,
	}
	if p.Delimiter != "" {
		opt.Comma, _ = utf8.DecodeRuneInString(p.Delimiter)
	}
	for _, r := range p.Replacements {
		opt.Replacements = append(opt.Replacements, csvparser.Replacement{From: r.From, To: r.To})
	}
	return opt
}

// TransformOptions converts the transform config.
func TransformOptions(t config.Transform) transformer.Options {
	return transformer.Options{OutlierExempt: t.OutlierExempt, TimeLayouts: t.TimeLayouts}
}
