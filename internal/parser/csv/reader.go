package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"docetl/internal/datasource"
	"docetl/pkg/records"
)

// Status is the outcome of opening or pulling from a ChunkReader.
type Status int

const (
	// StatusOK means a batch was produced (or the reader opened cleanly).
	StatusOK Status = iota
	// StatusEOF means the stream is exhausted.
	StatusEOF
	// StatusNeedsFallback means the chunked path hit an unrecoverable
	// structural error; the caller should switch to ReadAll.
	StatusNeedsFallback
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusEOF:
		return "eof"
	case StatusNeedsFallback:
		return "needs_fallback"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// FallbackReason explains why the chunked path gave up.
type FallbackReason struct {
	// Line is the 1-based source line, 0 when not tied to a line.
	Line int
	Err  error
}

func (r *FallbackReason) Error() string {
	if r.Line > 0 {
		return fmt.Sprintf("line %d: %v", r.Line, r.Err)
	}
	return r.Err.Error()
}

func (r *FallbackReason) Unwrap() error { return r.Err }

// ErrEncoding marks input that is not valid UTF-8 text.
var ErrEncoding = errors.New("invalid text encoding")

// ChunkReader yields a file as a sequence of RawBatch values in file order.
// It is not safe for concurrent use.
type ChunkReader struct {
	rc      io.ReadCloser
	cr      *csv.Reader
	opt     Options
	header  []string
	index   int
	skipped int
	done    bool
	reason  *FallbackReason
}

// Open starts the chunked, skip-tolerant parse of src and reads the header.
// A reader is always returned; when the status is StatusNeedsFallback,
// Reason explains why and every Next reports the same status.
func Open(ctx context.Context, src datasource.Source, opt Options) (*ChunkReader, Status) {
	r := &ChunkReader{opt: opt}

	rc, err := src.Open(ctx)
	if err != nil {
		r.reason = &FallbackReason{Err: fmt.Errorf("open source: %w", err)}
		return r, StatusNeedsFallback
	}
	r.rc = rc

	cr := csv.NewReader(withReplacements(rc, opt.Replacements))
	cr.Comma = opt.comma()
	cr.LazyQuotes = opt.LazyQuotes
	cr.FieldsPerRecord = -1 // width is enforced against the header below
	r.cr = cr

	hdr, err := cr.Read()
	switch {
	case err == io.EOF:
		r.done = true
		return r, StatusOK
	case err != nil:
		r.reason = &FallbackReason{Line: 1, Err: fmt.Errorf("read header: %w", err)}
		return r, StatusNeedsFallback
	}
	if bad := invalidText(hdr); bad != nil {
		r.reason = &FallbackReason{Line: 1, Err: bad}
		return r, StatusNeedsFallback
	}
	r.header = normalizeHeaders(hdr, opt)
	return r, StatusOK
}

// Header returns the normalized header, nil for an empty file.
func (r *ChunkReader) Header() []string { return r.header }

// Skipped returns the number of malformed rows dropped so far.
func (r *ChunkReader) Skipped() int { return r.skipped }

// Reason returns why the reader needs the fallback path, or nil.
func (r *ChunkReader) Reason() error {
	if r.reason == nil {
		return nil
	}
	return r.reason
}

// Close releases the underlying stream.
func (r *ChunkReader) Close() error {
	if r.rc == nil {
		return nil
	}
	err := r.rc.Close()
	r.rc = nil
	return err
}

// Next reads up to ChunkSize well-formed rows. Malformed rows (bad quoting or
// a field count different from the header) are skipped and reported through
// Options.OnSkip. The returned error is non-nil only when ctx is done.
func (r *ChunkReader) Next(ctx context.Context) (records.RawBatch, Status, error) {
	if r.reason != nil {
		return records.RawBatch{}, StatusNeedsFallback, nil
	}
	if r.done {
		return records.RawBatch{}, StatusEOF, nil
	}

	size := r.opt.chunkSize()
	b := records.RawBatch{
		Index:  r.index,
		Header: r.header,
		Rows:   make([]records.RawRow, 0, min(size, 4096)),
		Lines:  make([]int, 0, min(size, 4096)),
	}

	for n := 0; len(b.Rows) < size; n++ {
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return records.RawBatch{}, StatusEOF, err
			}
		}

		rec, err := r.cr.Read()
		if err == io.EOF {
			r.done = true
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				r.drop(&b, pe.StartLine, err)
				continue
			}
			r.reason = &FallbackReason{Err: fmt.Errorf("read: %w", err)}
			return records.RawBatch{}, StatusNeedsFallback, nil
		}

		line, _ := r.cr.FieldPos(0)
		if bad := invalidText(rec); bad != nil {
			r.reason = &FallbackReason{Line: line, Err: bad}
			return records.RawBatch{}, StatusNeedsFallback, nil
		}
		if len(rec) != len(r.header) {
			r.drop(&b, line, fmt.Errorf("expected %d fields, got %d", len(r.header), len(rec)))
			continue
		}

		row := make(records.RawRow, len(rec))
		for i, v := range rec {
			row[i] = r.opt.field(v)
		}
		b.Rows = append(b.Rows, row)
		b.Lines = append(b.Lines, line)
	}

	if len(b.Rows) == 0 {
		return records.RawBatch{}, StatusEOF, nil
	}
	r.index++
	return b, StatusOK, nil
}

func (r *ChunkReader) drop(b *records.RawBatch, line int, err error) {
	b.Skipped++
	r.skipped++
	r.opt.skip(line, err)
}

// invalidText reports encoding corruption: bytes that are not UTF-8 or NUL
// bytes, which a text delimiter cannot be reliably found around.
func invalidText(rec []string) error {
	for i, v := range rec {
		if !utf8.ValidString(v) {
			return fmt.Errorf("%w: field %d is not valid UTF-8", ErrEncoding, i+1)
		}
		if strings.IndexByte(v, 0) >= 0 {
			return fmt.Errorf("%w: field %d contains NUL bytes", ErrEncoding, i+1)
		}
	}
	return nil
}
