package stats

import (
	"math"
	"sort"
	"strconv"
)

// asFloat coerces v to a float64 if it carries a numeric storage type.
// Strings are never coerced — a column of numeric-looking strings stays
// categorical, matching how the summaries classify storage types.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// finite returns a pointer to v, or nil when v is NaN or ±Inf.
// Summary outputs must never contain non-finite values.
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev returns the sample standard deviation (ddof=1).
// NaN for fewer than two values.
func stddev(xs []float64, m float64) float64 {
	if len(xs) < 2 {
		return math.NaN()
	}
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

// percentile returns the q-th quantile (q in [0,1]) of sorted xs using
// linear interpolation between order statistics: pos = q*(n-1), value =
// xs[floor(pos)] + frac*(xs[floor(pos)+1] - xs[floor(pos)]).
func percentile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	frac := pos - float64(lo)
	if lo+1 >= n {
		return sorted[n-1]
	}
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// histogramEdges returns bins+1 equal-width edges spanning [lo, hi].
// A degenerate range (lo == hi) is widened by ±0.5 so every bin has
// non-zero width.
func histogramEdges(lo, hi float64, bins int) []float64 {
	if lo == hi {
		lo -= 0.5
		hi += 0.5
	}
	edges := make([]float64, bins+1)
	width := (hi - lo) / float64(bins)
	for i := 0; i <= bins; i++ {
		edges[i] = lo + float64(i)*width
	}
	edges[bins] = hi // avoid accumulated rounding on the last edge
	return edges
}

// histogramCounts buckets xs into the bins described by edges.
// Bins are [left, right) except the last, which includes the maximum.
func histogramCounts(xs []float64, edges []float64) []int {
	bins := len(edges) - 1
	counts := make([]int, bins)
	lo, hi := edges[0], edges[bins]
	width := (hi - lo) / float64(bins)

	for _, x := range xs {
		idx := int((x - lo) / width)
		if idx >= bins {
			idx = bins - 1
		}
		if idx < 0 {
			idx = 0
		}
		counts[idx]++
	}
	return counts
}

// formatEdge renders a bin edge compactly for the range label.
func formatEdge(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// distinctCount returns the number of distinct values in xs.
func distinctCount(xs []float64) int {
	seen := make(map[float64]struct{}, len(xs))
	for _, x := range xs {
		seen[x] = struct{}{}
	}
	return len(seen)
}

// sortedCopy returns an ascending copy of xs.
func sortedCopy(xs []float64) []float64 {
	out := make([]float64, len(xs))
	copy(out, xs)
	sort.Float64s(out)
	return out
}
