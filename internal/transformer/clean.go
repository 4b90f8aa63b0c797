package transformer

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// DefaultTimeLayouts are tried in order for date/time columns.
var DefaultTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006 15:04:05",
	"01/02/2006",
	"02.01.2006",
	"2006",
}

// isTimeColumn reports columns treated as dates: the name contains "date"
// or "time", case-insensitively.
func isTimeColumn(name string) bool {
	n := strings.ToLower(name)
	return strings.Contains(n, "date") || strings.Contains(n, "time")
}

// parseTime tries each layout in turn. Values without a zone are UTC.
func parseTime(s string, layouts []string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, l := range layouts {
		if l == "02.01.2006" {
			if t, ok := parseCZDate(s); ok {
				return t, true
			}
			continue
		}
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// parseCZDate parses "02.01.2006" (DD.MM.YYYY) without allocating.
func parseCZDate(s string) (time.Time, bool) {
	if len(s) != 10 || s[2] != '.' || s[5] != '.' {
		return time.Time{}, false
	}
	d1, d0 := s[0]-'0', s[1]-'0'
	m1, m0 := s[3]-'0', s[4]-'0'
	y3, y2, y1, y0 := s[6]-'0', s[7]-'0', s[8]-'0', s[9]-'0'
	if d1 > 9 || d0 > 9 || m1 > 9 || m0 > 9 || y3 > 9 || y2 > 9 || y1 > 9 || y0 > 9 {
		return time.Time{}, false
	}
	day := int(d1)*10 + int(d0)
	mon := int(m1)*10 + int(m0)
	year := int(y3)*1000 + int(y2)*100 + int(y1)*10 + int(y0)
	if mon < 1 || mon > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(mon), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

// parseTimes re-types column c as time from the raw fields. Unparsable and
// null values become nil.
func (t *table) parseTimes(c int, layouts []string) {
	t.cols[c].Type = TypeTime
	for r := range t.rows {
		s := field(t.rows[r], c)
		if isNull(s) {
			t.cells[c][r] = nil
			continue
		}
		if v, ok := parseTime(s, layouts); ok {
			t.cells[c][r] = v
		} else {
			t.cells[c][r] = nil
		}
	}
}

// cleanText NFC-normalises s and keeps only letters, digits, '_' and white
// space.
func cleanText(s string) string {
	s = norm.NFC.String(s)
	return strings.Map(func(r rune) rune {
		if r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, s)
}
