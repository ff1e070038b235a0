// Package stats turns a flattened record batch into a DatasetSummary:
// schema discovery, per-column type inference, numeric and categorical
// aggregates, descriptive statistics, and histograms.
//
// Summarization is pure and synchronous — no I/O. Callers run it off the
// request path (the job runner's worker pool) since percentile and
// histogram computation is CPU-bound on large batches.
package stats

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/openportal/datainsight/internal/domain"
)

const (
	// SampleLimit is the number of records included verbatim in the summary.
	SampleLimit = 50

	// TopCategories is the number of value/count pairs kept per
	// categorical column, and the maximum histogram bin count.
	TopCategories = 5

	minHistogramBins = 2
)

// columnKind tags a column accumulator as numeric or categorical.
// A column is classified exactly one way based on its storage type.
type columnKind int

const (
	kindNumeric columnKind = iota
	kindCategorical
)

// column accumulates one column's values across the whole batch.
type column struct {
	name      string
	kind      columnKind
	dtype     string
	nonNull   int
	nullCount int

	// numeric columns
	values []float64

	// categorical columns: frequency per rendered value, plus the order
	// each distinct value was first seen (for deterministic tie-breaks).
	freq  map[string]int
	order []string
}

// Summarize builds the DatasetSummary for records. A zero-record batch
// yields record_count 0 with all collections empty — a valid outcome,
// never an error. Summarize never fails for data-shape reasons.
func Summarize(records []*domain.Record) *domain.DatasetSummary {
	summary := domain.EmptySummary()
	if len(records) == 0 {
		return summary
	}

	columns := buildColumns(records)

	summary.RecordCount = len(records)
	for _, col := range columns {
		summary.SchemaFields = append(summary.SchemaFields, col.name)
		summary.SchemaDetails = append(summary.SchemaDetails, domain.SchemaField{
			Column:    col.name,
			DType:     col.dtype,
			NonNull:   col.nonNull,
			NullCount: col.nullCount,
		})
	}

	summary.SampleRecords = buildSamples(records, columns)

	for _, col := range columns {
		if col.kind == kindNumeric {
			summary.NumericSummary[col.name] = col.numericSummary()
			summary.DescriptiveStats[col.name] = col.describe()
			if bins := col.histogram(); bins != nil {
				summary.NumericHistograms[col.name] = bins
			}
		} else {
			summary.CategoricalSummary[col.name] = col.topCategories()
		}
	}

	return summary
}

// buildColumns makes a single pass over the batch, discovering columns in
// first-encountered order and accumulating typed per-column state.
func buildColumns(records []*domain.Record) []*column {
	var cols []*column
	index := make(map[string]*column)

	for _, rec := range records {
		for _, key := range rec.Keys() {
			if _, ok := index[key]; !ok {
				c := &column{name: key, freq: make(map[string]int)}
				index[key] = c
				cols = append(cols, c)
			}
		}
	}

	for _, col := range cols {
		col.accumulate(records)
	}
	return cols
}

// accumulate infers the column's storage type and gathers its values.
func (c *column) accumulate(records []*domain.Record) {
	numeric := true
	boolean := true
	integral := true

	for _, rec := range records {
		v, ok := rec.Get(c.name)
		if !ok || v == nil {
			c.nullCount++
			continue
		}
		c.nonNull++

		if f, isNum := asFloat(v); isNum {
			boolean = false
			if f != float64(int64(f)) {
				integral = false
			}
		} else {
			numeric = false
			if _, isBool := v.(bool); !isBool {
				boolean = false
			}
		}
	}

	switch {
	case c.nonNull > 0 && numeric:
		c.kind = kindNumeric
		// Integral columns degrade to float64 once nulls appear,
		// since the null marker has no integer representation.
		if integral && c.nullCount == 0 {
			c.dtype = "int64"
		} else {
			c.dtype = "float64"
		}
	case c.nonNull > 0 && boolean && c.nullCount == 0:
		c.kind = kindCategorical
		c.dtype = "bool"
	default:
		c.kind = kindCategorical
		c.dtype = "object"
	}

	for _, rec := range records {
		v, ok := rec.Get(c.name)
		isNull := !ok || v == nil

		if c.kind == kindNumeric {
			if isNull {
				continue
			}
			// Inference guarantees coercion succeeds here; anything
			// unexpected is treated as absent, never an error.
			if f, isNum := asFloat(v); isNum {
				c.values = append(c.values, f)
			}
			continue
		}

		rendered := "(null)"
		if !isNull {
			rendered = renderValue(v)
		}
		if _, seen := c.freq[rendered]; !seen {
			c.order = append(c.order, rendered)
		}
		c.freq[rendered]++
	}
}

// buildSamples returns the first SampleLimit records aligned to the full
// schema: every discovered column appears in every sample, with missing
// and null values normalized to "".
func buildSamples(records []*domain.Record, cols []*column) []*domain.Record {
	limit := len(records)
	if limit > SampleLimit {
		limit = SampleLimit
	}

	samples := make([]*domain.Record, 0, limit)
	for _, rec := range records[:limit] {
		sample := domain.NewRecord()
		for _, col := range cols {
			v, ok := rec.Get(col.name)
			if !ok || v == nil {
				sample.Set(col.name, "")
			} else {
				sample.Set(col.name, v)
			}
		}
		samples = append(samples, sample)
	}
	return samples
}

func (c *column) numericSummary() domain.NumericSummary {
	if len(c.values) == 0 {
		return domain.NumericSummary{}
	}
	sorted := sortedCopy(c.values)
	return domain.NumericSummary{
		Mean:    finite(mean(c.values)),
		Minimum: finite(sorted[0]),
		Maximum: finite(sorted[len(sorted)-1]),
	}
}

func (c *column) describe() map[string]*float64 {
	count := float64(len(c.values))
	out := map[string]*float64{
		"count": finite(count),
		"mean":  nil,
		"std":   nil,
		"min":   nil,
		"25%":   nil,
		"50%":   nil,
		"75%":   nil,
		"max":   nil,
	}
	if len(c.values) == 0 {
		return out
	}

	sorted := sortedCopy(c.values)
	m := mean(c.values)
	out["mean"] = finite(m)
	out["std"] = finite(stddev(c.values, m))
	out["min"] = finite(sorted[0])
	out["25%"] = finite(percentile(sorted, 0.25))
	out["50%"] = finite(percentile(sorted, 0.50))
	out["75%"] = finite(percentile(sorted, 0.75))
	out["max"] = finite(sorted[len(sorted)-1])
	return out
}

// histogram bins the column's non-null values into
// clamp(distinct, 2, 5) equal-width bins spanning [min, max].
// Returns nil when the column has no non-null values.
func (c *column) histogram() []domain.HistogramBin {
	if len(c.values) == 0 {
		return nil
	}

	bins := distinctCount(c.values)
	if bins > TopCategories {
		bins = TopCategories
	}
	if bins < minHistogramBins {
		bins = minHistogramBins
	}

	sorted := sortedCopy(c.values)
	edges := histogramEdges(sorted[0], sorted[len(sorted)-1], bins)
	counts := histogramCounts(c.values, edges)

	out := make([]domain.HistogramBin, bins)
	for i := 0; i < bins; i++ {
		out[i] = domain.HistogramBin{
			Range: fmt.Sprintf("%s - %s", formatEdge(edges[i]), formatEdge(edges[i+1])),
			Count: counts[i],
		}
	}
	return out
}

// topCategories returns the TopCategories most frequent rendered values,
// ordered by count descending with ties broken by first-seen order.
func (c *column) topCategories() []domain.CategoryCount {
	out := make([]domain.CategoryCount, 0, len(c.order))
	for _, val := range c.order {
		out = append(out, domain.CategoryCount{Value: val, Count: c.freq[val]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	if len(out) > TopCategories {
		out = out[:TopCategories]
	}
	return out
}

// renderValue stringifies a categorical cell. Nested structures are
// rendered as compact JSON so heterogeneous shapes stay countable.
func renderValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case float64:
		return strconv.FormatFloat(s, 'g', -1, 64)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
