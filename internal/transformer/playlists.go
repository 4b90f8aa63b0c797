package transformer

import (
	"strings"

	"docetl/pkg/records"
)

// Playlists cleans a playlist batch: exact duplicates are dropped, a null
// name becomes UnknownPlaylist, date/time columns are parsed, and every
// other text column keeps only letters, digits, '_' and white space.
func Playlists(b records.RawBatch, opt Options) Result {
	rows, dups := dedupRows(b.Rows)
	t := newTable(b.Header, rows)
	res := Result{Duplicates: dups}

	res.Filled += t.fillText("name", UnknownPlaylist)

	for c, col := range t.cols {
		if isTimeColumn(col.Name) {
			t.parseTimes(c, opt.layouts())
		}
	}

	nameCol := t.index("name")
	for c, col := range t.cols {
		if col.Type != TypeText {
			continue
		}
		for r, v := range t.cells[c] {
			s, ok := v.(string)
			if !ok {
				continue
			}
			s = cleanText(s)
			if c == nameCol && strings.TrimSpace(s) == "" {
				s = UnknownPlaylist
			}
			t.cells[c][r] = s
		}
	}

	res.Records = t.records()
	res.Columns = t.columns()
	return res
}
