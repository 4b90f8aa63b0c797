package transformer

import (
	"math"
	"sort"
)

// Outlier fences use the 5th and 95th percentiles.
const (
	lowerQuantile = 0.05
	upperQuantile = 0.95
	fenceFactor   = 1.5
)

// percentile returns the value at floor(p*(n-1)) of sorted (the "lower"
// method: no interpolation between neighbours).
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	i := int(math.Floor(p * float64(len(sorted)-1)))
	return sorted[i]
}

func median(sorted []float64) float64 {
	n := len(sorted)
	switch {
	case n == 0:
		return math.NaN()
	case n%2 == 1:
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// fences returns the inclusive bounds outside which a value is an outlier.
func fences(sorted []float64) (lo, hi float64) {
	q1 := percentile(sorted, lowerQuantile)
	q3 := percentile(sorted, upperQuantile)
	iqr := q3 - q1
	return q1 - fenceFactor*iqr, q3 + fenceFactor*iqr
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

// numericValues returns the sorted non-null values of column c.
func (t *table) numericValues(c int) []float64 {
	vals := make([]float64, 0, t.len())
	for _, v := range t.cells[c] {
		if f, ok := toFloat(v); ok {
			vals = append(vals, f)
		}
	}
	sort.Float64s(vals)
	return vals
}

// replaceOutliers nulls every value of numeric column c outside the fences
// and then fills all nulls with the median of what remains. It returns the
// number of outliers and the number of filled cells. An integer column that
// receives any fill becomes float, as a dataframe column holding NaN would.
func (t *table) replaceOutliers(c int) (outliers, filled int) {
	vals := t.numericValues(c)
	if len(vals) == 0 {
		return 0, 0
	}
	lo, hi := fences(vals)

	kept := vals[:0:0]
	for r, v := range t.cells[c] {
		f, ok := toFloat(v)
		if !ok {
			continue
		}
		if f < lo || f > hi {
			t.cells[c][r] = nil
			outliers++
			continue
		}
		kept = append(kept, f)
	}
	if len(kept) == 0 {
		return outliers, 0
	}
	sort.Float64s(kept)
	fill := median(kept)

	for r, v := range t.cells[c] {
		if v == nil {
			filled++
			t.cells[c][r] = fill
		}
	}
	if filled > 0 && t.cols[c].Type == TypeInt {
		t.cols[c].Type = TypeFloat
		for r, v := range t.cells[c] {
			if i, ok := v.(int64); ok {
				t.cells[c][r] = float64(i)
			}
		}
	}
	return outliers, filled
}

// Popularity bins: right-closed intervals over [0, 100], 0 included in the
// lowest.
var (
	popularityEdges  = []float64{0, 20, 40, 60, 80, 100}
	popularityLabels = []string{"Very Low", "Low", "Medium", "High", "Very High"}
)

// popularityCategory maps v onto its label, or nil when out of range.
func popularityCategory(v any) any {
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) || f < popularityEdges[0] || f > popularityEdges[len(popularityEdges)-1] {
		return nil
	}
	for i, label := range popularityLabels {
		if f <= popularityEdges[i+1] {
			return label
		}
	}
	return nil
}
