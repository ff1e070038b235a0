package domain

// SchemaField describes one discovered column.
type SchemaField struct {
	Column    string `json:"column"`
	DType     string `json:"dtype"` // int64, float64, bool, object
	NonNull   int    `json:"non_null"`
	NullCount int    `json:"null_count"`
}

// NumericSummary holds the headline statistics for one numeric column.
// Fields are nil when the column has no non-null numeric values.
type NumericSummary struct {
	Mean    *float64 `json:"mean"`
	Minimum *float64 `json:"minimum"`
	Maximum *float64 `json:"maximum"`
}

// CategoryCount is one value/frequency pair in a categorical summary.
type CategoryCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// HistogramBin is one equal-width bin of a numeric column histogram.
// Range is a human-readable "left - right" label; bins are [left, right)
// except the last, which includes the column maximum.
type HistogramBin struct {
	Range string `json:"range"`
	Count int    `json:"count"`
}

// DatasetSummary is the aggregated statistical artifact derived from one
// full record batch. Built once per ingestion run, immutable afterward.
type DatasetSummary struct {
	RecordCount   int           `json:"record_count"`
	SchemaFields  []string      `json:"schema_fields"`
	SchemaDetails []SchemaField `json:"schema_details"`

	// SampleRecords holds the first records of the batch with missing
	// values normalized to "" (explicit, not an ambiguous absence).
	SampleRecords []*Record `json:"sample_records"`

	NumericSummary     map[string]NumericSummary  `json:"numeric_summary"`
	CategoricalSummary map[string][]CategoryCount `json:"categorical_summary"`

	// DescriptiveStats maps column → stat name → value, with the stat
	// names count, mean, std, min, 25%, 50%, 75%, max. Non-finite values
	// are nil.
	DescriptiveStats map[string]map[string]*float64 `json:"descriptive_stats"`

	NumericHistograms map[string][]HistogramBin `json:"numeric_histograms"`
}

// EmptySummary is the valid non-error summary of a zero-record batch.
func EmptySummary() *DatasetSummary {
	return &DatasetSummary{
		SchemaFields:       []string{},
		SchemaDetails:      []SchemaField{},
		SampleRecords:      []*Record{},
		NumericSummary:     map[string]NumericSummary{},
		CategoricalSummary: map[string][]CategoryCount{},
		DescriptiveStats:   map[string]map[string]*float64{},
		NumericHistograms:  map[string][]HistogramBin{},
	}
}
