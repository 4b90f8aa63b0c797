package transformer

import "docetl/pkg/records"

// Tracks cleans a track batch: exact duplicates are dropped, null
// track/artist names get defaults, numeric outliers are replaced by the
// column median and a popularity_category column is derived from
// popularity.
func Tracks(b records.RawBatch, opt Options) Result {
	rows, dups := dedupRows(b.Rows)
	t := newTable(b.Header, rows)
	res := Result{Duplicates: dups}

	res.Filled += t.fillText("track_name", UnknownTrack)
	res.Filled += t.fillText("artist_name", UnknownArtist)

	for c, col := range t.cols {
		if !col.Type.Numeric() || opt.exempt(col.Name) {
			continue
		}
		o, f := t.replaceOutliers(c)
		res.Outliers += o
		res.Filled += f
	}

	if c := t.index("popularity"); c >= 0 && t.cols[c].Type.Numeric() {
		cats := make([]any, t.len())
		for r, v := range t.cells[c] {
			cats[r] = popularityCategory(v)
		}
		t.addColumn(Column{Name: "popularity_category", Type: TypeText}, cats)
	}

	res.Records = t.records()
	res.Columns = t.columns()
	return res
}
