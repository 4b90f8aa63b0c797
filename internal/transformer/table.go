package transformer

import (
	"math"
	"strconv"
	"strings"

	"docetl/pkg/records"
)

// ColumnType is the inferred type of a batch column.
type ColumnType uint8

const (
	TypeText ColumnType = iota
	TypeInt
	TypeFloat
	TypeTime
)

func (t ColumnType) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeTime:
		return "time"
	}
	return "text"
}

// Numeric reports whether values of this type are int64 or float64.
func (t ColumnType) Numeric() bool { return t == TypeInt || t == TypeFloat }

// Column describes one output column.
type Column struct {
	Name string
	Type ColumnType
}

// nullTokens are field values read as missing, matching common dataframe
// readers.
var nullTokens = map[string]struct{}{
	"": {}, "NA": {}, "N/A": {}, "n/a": {}, "NaN": {}, "nan": {}, "-NaN": {},
	"null": {}, "NULL": {}, "None": {}, "#N/A": {}, "<NA>": {},
}

func isNull(s string) bool {
	_, ok := nullTokens[strings.TrimSpace(s)]
	return ok
}

// table is a typed, column-major view over a slice of raw rows. cells[c][r]
// holds string, int64, float64, time.Time or nil. The raw rows are kept for
// re-typing a column.
type table struct {
	cols  []Column
	cells [][]any
	rows  []records.RawRow
}

func newTable(header []string, rows []records.RawRow) *table {
	t := &table{
		cols:  make([]Column, len(header)),
		cells: make([][]any, len(header)),
		rows:  rows,
	}
	for c, name := range header {
		t.cols[c] = Column{Name: name, Type: inferType(rows, c)}
		col := make([]any, len(rows))
		for r := range rows {
			col[r] = coerce(field(rows[r], c), t.cols[c].Type)
		}
		t.cells[c] = col
	}
	return t
}

func field(r records.RawRow, c int) string {
	if c < len(r) {
		return r[c]
	}
	return ""
}

// inferType picks int when every non-null value is an integer, float when
// every non-null value is a finite number, and text otherwise. A column
// without any non-null value is text.
func inferType(rows []records.RawRow, c int) ColumnType {
	typ, seen := TypeInt, false
	for _, r := range rows {
		s := field(r, c)
		if isNull(s) {
			continue
		}
		seen = true
		s = strings.TrimSpace(s)
		if typ == TypeInt {
			if _, err := strconv.ParseInt(s, 10, 64); err == nil {
				continue
			}
			typ = TypeFloat
		}
		if f, err := strconv.ParseFloat(s, 64); err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return TypeText
		}
	}
	if !seen {
		return TypeText
	}
	return typ
}

func coerce(s string, typ ColumnType) any {
	if isNull(s) {
		return nil
	}
	switch typ {
	case TypeInt:
		v, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		return v
	case TypeFloat:
		v, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return v
	}
	return s
}

func (t *table) index(name string) int {
	for i, c := range t.cols {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func (t *table) len() int { return len(t.rows) }

// asText re-types column c as text from the raw fields.
func (t *table) asText(c int) {
	if t.cols[c].Type == TypeText {
		return
	}
	t.cols[c].Type = TypeText
	for r := range t.rows {
		t.cells[c][r] = coerce(field(t.rows[r], c), TypeText)
	}
}

// fillText replaces nulls of column name with v and returns how many were
// filled. A missing column is left alone; a numeric one becomes text.
func (t *table) fillText(name, v string) int {
	c := t.index(name)
	if c < 0 {
		return 0
	}
	n := 0
	for _, x := range t.cells[c] {
		if x == nil {
			n++
		}
	}
	if n == 0 {
		return 0
	}
	t.asText(c)
	for r, x := range t.cells[c] {
		if x == nil {
			t.cells[c][r] = v
		}
	}
	return n
}

// addColumn appends (or replaces) a computed column.
func (t *table) addColumn(col Column, vals []any) {
	if c := t.index(col.Name); c >= 0 {
		t.cols[c] = col
		t.cells[c] = vals
		return
	}
	t.cols = append(t.cols, col)
	t.cells = append(t.cells, vals)
}

func (t *table) columns() []Column {
	return append([]Column(nil), t.cols...)
}

// records materialises the table as documents. Null cells are kept as nil
// so every document of a batch carries the same keys.
func (t *table) records() []records.Record {
	out := make([]records.Record, t.len())
	for r := range out {
		rec := make(records.Record, len(t.cols))
		for c, col := range t.cols {
			rec[col.Name] = t.cells[c][r]
		}
		out[r] = rec
	}
	return out
}
