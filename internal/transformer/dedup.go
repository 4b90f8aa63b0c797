package transformer

import (
	"github.com/zeebo/xxh3"

	"docetl/pkg/records"
)

// dedupRows drops exact duplicate rows, keeping the first occurrence and
// the input order. Rows are bucketed by an xxh3 hash of their fields and
// compared field by field inside a bucket, so a hash collision never drops
// a distinct row. Null spellings are not unified: "" and "NA" differ.
func dedupRows(rows []records.RawRow) ([]records.RawRow, int) {
	if len(rows) < 2 {
		return rows, 0
	}
	seen := make(map[uint64][]int, len(rows))
	out := make([]records.RawRow, 0, len(rows))
	h := xxh3.New()
	sep := []byte{0x1f}

outer:
	for _, r := range rows {
		h.Reset()
		for _, f := range r {
			_, _ = h.WriteString(f)
			_, _ = h.Write(sep)
		}
		sum := h.Sum64()
		for _, i := range seen[sum] {
			if equalRows(out[i], r) {
				continue outer
			}
		}
		seen[sum] = append(seen[sum], len(out))
		out = append(out, r)
	}
	return out, len(rows) - len(out)
}

func equalRows(a, b records.RawRow) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
