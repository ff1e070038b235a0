package insight

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openportal/datainsight/internal/domain"
)

const (
	// maxSchemaLines bounds the schema section so wide datasets do not
	// blow the prompt past the context window.
	maxSchemaLines = 20

	// promptSamples is how many sample records the model sees.
	promptSamples = 5
)

// buildPrompt renders the dataset summary into the user message.
// Structured sections are embedded as compact JSON so the output is
// deterministic for a given summary.
func buildPrompt(summary *domain.DatasetSummary, question string) string {
	var schema strings.Builder
	details := summary.SchemaDetails
	if len(details) > maxSchemaLines {
		details = details[:maxSchemaLines]
	}
	for _, d := range details {
		fmt.Fprintf(&schema, "- %s (%s), non-null: %d\n", d.Column, d.DType, d.NonNull)
	}
	schemaSection := strings.TrimRight(schema.String(), "\n")
	if schemaSection == "" {
		schemaSection = "  (not provided)"
	}

	recordCount := "unknown"
	if summary.RecordCount > 0 {
		recordCount = fmt.Sprintf("%d", summary.RecordCount)
	}

	samples := summary.SampleRecords
	if len(samples) > promptSamples {
		samples = samples[:promptSamples]
	}

	return fmt.Sprintf(`Dataset overview:
- Record count: %s
- Schema details:
%s
- Numeric summary: %s
- Categorical summary (top values): %s
- Sample records: %s

Question: %s
Provide concise, factual insights and suggest next steps if applicable.`,
		recordCount,
		schemaSection,
		compactJSON(summary.NumericSummary),
		compactJSON(summary.CategoricalSummary),
		compactJSON(samples),
		question,
	)
}

func compactJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
