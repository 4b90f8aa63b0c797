package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"

	"docetl/internal/datasource"
	"docetl/pkg/records"
)

// ReadAll is the permissive whole-file parse used when the chunked path
// reports StatusNeedsFallback. Ill-formed UTF-8 becomes U+FFFD, NUL bytes are
// dropped, quotes are lazy, short rows are padded with empty fields and
// over-long rows are skipped. The whole file is returned as one batch.
func ReadAll(ctx context.Context, src datasource.Source, opt Options) (records.RawBatch, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return records.RawBatch{}, fmt.Errorf("fallback: open: %w", err)
	}
	defer rc.Close()

	clean := transform.Chain(runes.ReplaceIllFormed(), runes.Remove(runes.Predicate(isNUL)))
	cr := csv.NewReader(transform.NewReader(withReplacements(rc, opt.Replacements), clean))
	cr.Comma = opt.comma()
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	var b records.RawBatch
	hdr, err := cr.Read()
	if err == io.EOF {
		return b, nil
	}
	if err != nil {
		return records.RawBatch{}, fmt.Errorf("fallback: header: %w", err)
	}
	b.Header = normalizeHeaders(hdr, opt)
	width := len(b.Header)

	for n := 0; ; n++ {
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return records.RawBatch{}, err
			}
		}
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				b.Skipped++
				opt.skip(pe.StartLine, err)
				continue
			}
			return records.RawBatch{}, fmt.Errorf("fallback: read: %w", err)
		}
		line, _ := cr.FieldPos(0)
		if len(rec) > width {
			b.Skipped++
			opt.skip(line, fmt.Errorf("expected %d fields, got %d", width, len(rec)))
			continue
		}
		row := make(records.RawRow, width)
		for i, v := range rec {
			row[i] = opt.field(v)
		}
		b.Rows = append(b.Rows, row)
		b.Lines = append(b.Lines, line)
	}
	return b, nil
}

func isNUL(r rune) bool { return r == 0 }
