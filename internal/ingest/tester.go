package ingest

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/openportal/datainsight/internal/domain"
)

const (
	// PreviewCharLimit caps the response preview stored with a test result.
	PreviewCharLimit = 4000

	// TestTimeout is the per-request deadline for validation requests.
	TestTimeout = 15 * time.Second

	previewItems    = 5
	maxSchemaFields = 50
	schemaProbeSize = 50
	errorBodyLimit  = 512
	xmlCensusDepth  = 3
)

// Tester validates a dataset connection with a single probing request.
// Unlike the pager it never fails hard on parse errors — an unparseable
// payload just demotes the detected format to unknown, because a test
// exists to report what the source looks like, not to ingest it.
type Tester struct {
	client Doer
}

// NewTester returns a Tester using client for transport. A nil client
// gets a default http.Client with the test timeout.
func NewTester(client Doer) *Tester {
	if client == nil {
		client = &http.Client{Timeout: TestTimeout}
	}
	return &Tester{client: client}
}

// Test issues one GET against the configured target and reports what came
// back: status, detected format, record count, schema fields, and a
// bounded preview. Transport failures produce an unsuccessful result, not
// an error — a failing source is a finding, not a malfunction.
func (t *Tester) Test(ctx context.Context, cfg domain.ConnectionConfig) *domain.TestResult {
	params := requestParams(cfg)
	target := joinURL(cfg.BaseURL, cfg.Path)
	reqURL := withQuery(target, params)

	// The stored result must never echo the API key.
	shownURL := withQuery(target, maskSecret(params, cfg))

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return &domain.TestResult{
			DetectedFormat: domain.FormatUnknown,
			SchemaFields:   []string{},
			ElapsedMS:      time.Since(start).Milliseconds(),
			RequestURL:     shownURL,
			Error:          err.Error(),
		}
	}
	req.Header.Set("Accept", acceptHeader)

	res, err := t.client.Do(req)
	if err != nil {
		return &domain.TestResult{
			DetectedFormat: domain.FormatUnknown,
			SchemaFields:   []string{},
			ElapsedMS:      time.Since(start).Milliseconds(),
			RequestURL:     shownURL,
			Error:          err.Error(),
		}
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(res.Body)
	elapsed := time.Since(start).Milliseconds()

	contentType := strings.ToLower(res.Header.Get("Content-Type"))
	detected := Detect(contentType, cfg.DataFormat)

	result := &domain.TestResult{
		Success:        res.StatusCode >= 200 && res.StatusCode <= 299,
		StatusCode:     res.StatusCode,
		Reason:         res.Status,
		ContentType:    contentType,
		DetectedFormat: detected,
		SchemaFields:   []string{},
		ElapsedMS:      elapsed,
		RequestURL:     shownURL,
	}

	result.Preview, result.PreviewTruncated = clipPreview(string(body))

	switch detected {
	case domain.FormatJSON:
		payload, err := domain.DecodeJSON(body)
		if err != nil {
			// Permissive path: demote instead of failing the test.
			result.DetectedFormat = domain.FormatUnknown
			break
		}
		count, fields := summarizeJSON(payload)
		result.RecordCount = count
		result.SchemaFields = fields

		preview, truncated := jsonPreview(payload)
		result.Preview, _ = clipPreview(preview)
		result.PreviewTruncated = result.PreviewTruncated || truncated ||
			len(preview) > PreviewCharLimit

	case domain.FormatXML:
		count, fields, err := summarizeXML(string(body))
		if err != nil {
			result.DetectedFormat = domain.FormatUnknown
			break
		}
		result.RecordCount = count
		result.SchemaFields = fields
	}

	if !result.Success {
		msg := string(body)
		if len(msg) > errorBodyLimit {
			msg = msg[:errorBodyLimit]
		}
		result.Error = msg
	}
	return result
}

// summarizeJSON counts top-level records and collects a bounded, sorted
// union of field names from the first records.
func summarizeJSON(payload any) (*int, []string) {
	fields := make(map[string]struct{})

	switch p := payload.(type) {
	case []any:
		count := len(p)
		probe := p
		if len(probe) > schemaProbeSize {
			probe = probe[:schemaProbeSize]
		}
		for _, item := range probe {
			if rec, ok := item.(*domain.Record); ok {
				for _, k := range rec.Keys() {
					fields[k] = struct{}{}
				}
			}
		}
		return &count, sortedFields(fields)

	case *domain.Record:
		count := 1
		for _, k := range p.Keys() {
			fields[k] = struct{}{}
		}
		return &count, sortedFields(fields)

	default:
		return nil, []string{}
	}
}

// summarizeXML counts the root's direct children as records and takes a
// tag census down to a fixed depth for the schema field list.
func summarizeXML(text string) (*int, []string, error) {
	var root xmlElem
	if err := xml.Unmarshal([]byte(text), &root); err != nil {
		return nil, nil, err
	}

	tags := make(map[string]struct{})
	var collect func(e xmlElem, depth int)
	collect = func(e xmlElem, depth int) {
		if depth > xmlCensusDepth {
			return
		}
		tags[e.XMLName.Local] = struct{}{}
		for _, child := range e.Children {
			collect(child, depth+1)
		}
	}
	collect(root, 0)

	count := len(root.Children)
	if count == 0 {
		count = 1
	}
	return &count, sortedFields(tags), nil
}

// jsonPreview re-encodes the payload for the preview, keeping only the
// first few elements of list payloads.
func jsonPreview(payload any) (string, bool) {
	truncated := false
	if list, ok := payload.([]any); ok && len(list) > previewItems {
		payload = list[:previewItems]
		truncated = true
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", truncated
	}
	return string(data), truncated
}

func clipPreview(s string) (string, bool) {
	if len(s) > PreviewCharLimit {
		return s[:PreviewCharLimit], true
	}
	return s, false
}

func sortedFields(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	if len(out) > maxSchemaFields {
		out = out[:maxSchemaFields]
	}
	return out
}
