package csv

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"docetl/internal/datasource"
	"docetl/pkg/records"
)

// candidates are the delimiters Sniff considers, in tie-break order.
var candidates = []rune{',', ';', '\t', '|'}

// peekSize bounds how much of the first line delimiter detection sees.
const peekSize = 64 << 10

// Schema is what Sniff learned from the head of a file.
type Schema struct {
	Columns   []string
	Delimiter rune
	Sample    []records.RawRow
}

// Sniff reads the header and at most SniffRows data rows of src. When
// opt.Comma is zero the delimiter is detected from the header line.
// An empty file yields a zero Schema and no error.
func Sniff(ctx context.Context, src datasource.Source, opt Options) (Schema, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return Schema{}, fmt.Errorf("sniff: open: %w", err)
	}
	defer rc.Close()

	br := bufio.NewReaderSize(withReplacements(rc, opt.Replacements), peekSize)
	if opt.Comma == 0 {
		first, err := br.Peek(peekSize)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
			return Schema{}, fmt.Errorf("sniff: peek: %w", err)
		}
		line := string(first)
		if i := strings.IndexAny(line, "\r\n"); i >= 0 {
			line = line[:i]
		}
		opt.Comma = detectDelimiter(line)
	}

	cr := csv.NewReader(br)
	cr.Comma = opt.comma()
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	hdr, err := cr.Read()
	if err == io.EOF {
		return Schema{Delimiter: opt.comma()}, nil
	}
	if err != nil {
		return Schema{}, fmt.Errorf("sniff: header: %w", err)
	}

	s := Schema{Columns: normalizeHeaders(hdr, opt), Delimiter: opt.comma()}
	for len(s.Sample) < opt.sniffRows() {
		if err := ctx.Err(); err != nil {
			return Schema{}, err
		}
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				continue
			}
			return Schema{}, fmt.Errorf("sniff: read: %w", err)
		}
		row := make(records.RawRow, len(rec))
		for i, v := range rec {
			row[i] = opt.field(v)
		}
		s.Sample = append(s.Sample, row)
	}
	return s, nil
}

// detectDelimiter returns the most frequent candidate in line, ',' when
// none occurs. Ties go to the earlier candidate.
func detectDelimiter(line string) rune {
	best, bestN := ',', 0
	for _, c := range candidates {
		if n := strings.Count(line, string(c)); n > bestN {
			best, bestN = c, n
		}
	}
	return best
}
