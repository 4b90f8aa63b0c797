// Package csv reads large, possibly malformed delimited files in bounded
// memory. The chunked path (Open/Next) skips malformed rows and reports an
// explicit NeedsFallback status when the stream cannot continue; ReadAll is
// the permissive whole-file fallback.
package csv

import "strings"

const (
	// DefaultChunkSize is the number of rows per RawBatch.
	DefaultChunkSize = 100_000
	// DefaultSniffRows is the number of data rows Sniff samples.
	DefaultSniffRows = 5
)

// Options configures Sniff, Open and ReadAll. Zero values select defaults.
type Options struct {
	// Comma is the field delimiter. Zero means "detect" in Sniff and ','
	// everywhere else.
	Comma rune

	// LazyQuotes relaxes quote handling on the chunked path. The fallback
	// path is always lazy.
	LazyQuotes bool

	// TrimSpace trims leading/trailing white space from every field.
	TrimSpace bool

	// ChunkSize bounds the rows per batch (DefaultChunkSize when <= 0).
	ChunkSize int

	// SniffRows bounds the sample Sniff returns (DefaultSniffRows when <= 0).
	SniffRows int

	// HeaderMap renames source headers (after trimming) to canonical names.
	HeaderMap map[string]string

	// Replacements are byte-sequence fixes applied to the raw stream before
	// parsing, for known broken sequences in a dataset.
	Replacements []Replacement

	// OnSkip receives every malformed row dropped by the reader.
	OnSkip func(line int, err error)
}

// Replacement rewrites every occurrence of From with To.
type Replacement struct {
	From string
	To   string
}

func (o Options) chunkSize() int {
	if o.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return o.ChunkSize
}

func (o Options) sniffRows() int {
	if o.SniffRows <= 0 {
		return DefaultSniffRows
	}
	return o.SniffRows
}

func (o Options) comma() rune {
	if o.Comma == 0 {
		return ','
	}
	return o.Comma
}

func (o Options) skip(line int, err error) {
	if o.OnSkip != nil {
		o.OnSkip(line, err)
	}
}

func (o Options) field(v string) string {
	if o.TrimSpace {
		return strings.TrimSpace(v)
	}
	return v
}

// normalizeHeaders maps header cells through HeaderMap, or lowercases them
// and turns spaces into underscores. A leading byte order mark is dropped.
func normalizeHeaders(h []string, opt Options) []string {
	res := make([]string, len(h))
	for i, col := range h {
		if i == 0 {
			col = strings.TrimPrefix(col, "\uFEFF")
		}
		c := strings.TrimSpace(col)
		if opt.HeaderMap != nil {
			if m, ok := opt.HeaderMap[c]; ok {
				res[i] = m
				continue
			}
		}
		res[i] = strings.ReplaceAll(strings.ToLower(c), " ", "_")
	}
	return res
}
