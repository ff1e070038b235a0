// Package ingest fetches paginated datasets from open-data APIs and turns
// each page into flat records: format detection, JSON/XML shape extraction,
// next-pointer pagination, and the bounded retrying fetch loop.
package ingest

import (
	"strings"

	"github.com/openportal/datainsight/internal/domain"
)

// Detect classifies a payload's format from the transport content-type and
// the connection's declared hint. An explicit json/xml hint always wins;
// otherwise the content-type is sniffed by substring; otherwise unknown.
//
// On unknown the pager attempts a JSON parse and treats failure as a hard
// ingestion error. The connection tester is deliberately more permissive
// (it demotes parse failures to unknown instead of failing).
func Detect(contentType string, hint domain.Format) domain.Format {
	if hint == domain.FormatJSON || hint == domain.FormatXML {
		return hint
	}
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "json") {
		return domain.FormatJSON
	}
	if strings.Contains(ct, "xml") {
		return domain.FormatXML
	}
	return domain.FormatUnknown
}
