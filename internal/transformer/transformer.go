// Package transformer turns raw delimited batches into cleaned documents.
//
// Every transform works on one RawBatch at a time and never mutates it.
// Column types are inferred per batch the way a dataframe reader would: a
// column is numeric when every non-null value parses as a number, otherwise
// it is text. Statistics (percentiles, medians) are likewise per batch.
package transformer

import (
	"docetl/pkg/records"
)

// Fill values for identity columns.
const (
	UnknownPlaylist = "Unknown Playlist"
	UnknownTrack    = "Unknown Track"
	UnknownArtist   = "Unknown Artist"
)

// Options tune the transforms. The zero value is usable.
type Options struct {
	// OutlierExempt lists numeric track columns left out of outlier
	// replacement and median fill. Nulls in such a column are kept.
	OutlierExempt []string

	// TimeLayouts overrides the layouts tried, in order, when parsing
	// date/time columns. Empty means DefaultTimeLayouts.
	TimeLayouts []string
}

func (o Options) layouts() []string {
	if len(o.TimeLayouts) == 0 {
		return DefaultTimeLayouts
	}
	return o.TimeLayouts
}

func (o Options) exempt(col string) bool {
	for _, c := range o.OutlierExempt {
		if c == col {
			return true
		}
	}
	return false
}

// Result is the output of one transform call.
type Result struct {
	Records    []records.Record
	Columns    []Column
	Duplicates int // exact duplicate rows dropped
	Outliers   int // numeric values replaced as outliers
	Filled     int // null values filled (identity defaults and medians)
	Dropped    int // rows dropped for other reasons (all-null rows)
}

// Func is a per-kind transform.
type Func func(records.RawBatch, Options) Result

// For returns the transform registered for kind.
func For(kind records.Kind) Func {
	switch kind {
	case records.KindPlaylist:
		return Playlists
	case records.KindTrack:
		return Tracks
	default:
		return Generic
	}
}

// Generic drops rows whose fields are all null and types the rest.
func Generic(b records.RawBatch, _ Options) Result {
	rows := make([]records.RawRow, 0, len(b.Rows))
	for _, r := range b.Rows {
		if !allNull(r) {
			rows = append(rows, r)
		}
	}
	t := newTable(b.Header, rows)
	return Result{
		Records: t.records(),
		Columns: t.columns(),
		Dropped: len(b.Rows) - len(rows),
	}
}

func allNull(r records.RawRow) bool {
	for _, v := range r {
		if !isNull(v) {
			return false
		}
	}
	return true
}
