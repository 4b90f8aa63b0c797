// Package records holds the value types that flow through the pipeline:
// raw delimited rows grouped in chunks, and cleaned documents.
package records

import (
	"fmt"
	"strings"
)

// Kind tags a dataset with the transform it needs. It is resolved before
// the core pipeline runs (from config, a manifest, or source rules).
type Kind int

const (
	KindGeneric Kind = iota
	KindPlaylist
	KindTrack
)

func (k Kind) String() string {
	switch k {
	case KindPlaylist:
		return "playlist"
	case KindTrack:
		return "track"
	default:
		return "generic"
	}
}

// ParseKind maps a config value onto a Kind. The empty string is Generic.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "generic":
		return KindGeneric, nil
	case "playlist", "playlists":
		return KindPlaylist, nil
	case "track", "tracks":
		return KindTrack, nil
	}
	return KindGeneric, fmt.Errorf("unknown dataset kind %q", s)
}

// DefaultCollection is the collection a kind loads into when none is set.
func (k Kind) DefaultCollection() string {
	switch k {
	case KindPlaylist:
		return "playlists"
	case KindTrack:
		return "tracks"
	}
	return ""
}

// RawRow is one parsed line. Field count may differ from the header in
// malformed input; the reader drops such rows before they reach a batch.
type RawRow []string

// RawBatch is a bounded, ordered slice of a source file.
type RawBatch struct {
	// Index is the 0-based chunk number within the file.
	Index  int
	Header []string
	Rows   []RawRow
	// Lines[i] is the 1-based source line where Rows[i] starts.
	Lines []int
	// Skipped counts malformed rows dropped while filling this batch.
	Skipped int
}

// Len reports the number of rows in the batch.
func (b RawBatch) Len() int { return len(b.Rows) }

// Record is one cleaned document. Values are string, int64, float64,
// time.Time or nil.
type Record map[string]any

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Split cuts recs into consecutive slices of at most size elements. The
// returned slices alias recs.
func Split(recs []Record, size int) [][]Record {
	if size <= 0 || len(recs) == 0 {
		if len(recs) == 0 {
			return nil
		}
		return [][]Record{recs}
	}
	out := make([][]Record, 0, (len(recs)+size-1)/size)
	for start := 0; start < len(recs); start += size {
		end := start + size
		if end > len(recs) {
			end = len(recs)
		}
		out = append(out, recs[start:end])
	}
	return out
}
