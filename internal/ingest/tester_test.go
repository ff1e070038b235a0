package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openportal/datainsight/internal/domain"
)

func TestTester_JSONList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{
			{"id": 1, "name": "a"},
			{"id": 2, "city": "seoul"},
		})
	}))
	defer srv.Close()

	result := NewTester(srv.Client()).Test(context.Background(), configFor(srv, "data"))

	assert.True(t, result.Success)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, domain.FormatJSON, result.DetectedFormat)
	require.NotNil(t, result.RecordCount)
	assert.Equal(t, 2, *result.RecordCount)
	assert.Equal(t, []string{"city", "id", "name"}, result.SchemaFields)
	assert.GreaterOrEqual(t, result.ElapsedMS, int64(0))
	assert.Contains(t, result.RequestURL, srv.URL)
}

func TestTester_JSONPreviewTruncatesLongLists(t *testing.T) {
	items := make([]map[string]any, 20)
	for i := range items {
		items[i] = map[string]any{"id": i}
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, items)
	}))
	defer srv.Close()

	result := NewTester(srv.Client()).Test(context.Background(), configFor(srv, "data"))

	assert.True(t, result.PreviewTruncated)
	assert.Equal(t, previewItems, strings.Count(result.Preview, `"id"`))
}

func TestTester_XML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		fmt.Fprint(w, `<rows><row><id>1</id><name>a</name></row><row><id>2</id></row></rows>`)
	}))
	defer srv.Close()

	result := NewTester(srv.Client()).Test(context.Background(), configFor(srv, "data"))

	assert.True(t, result.Success)
	assert.Equal(t, domain.FormatXML, result.DetectedFormat)
	require.NotNil(t, result.RecordCount)
	assert.Equal(t, 2, *result.RecordCount)
	assert.Equal(t, []string{"id", "name", "row", "rows"}, result.SchemaFields)
}

func TestTester_UnparseableJSONDemotesToUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, "not actually json")
	}))
	defer srv.Close()

	result := NewTester(srv.Client()).Test(context.Background(), configFor(srv, "data"))

	// The tester is permissive where the pager is strict: a parse
	// failure is reported, not raised.
	assert.True(t, result.Success)
	assert.Equal(t, domain.FormatUnknown, result.DetectedFormat)
	assert.Nil(t, result.RecordCount)
	assert.Equal(t, "not actually json", result.Preview)
}

func TestTester_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, strings.Repeat("e", 1000), http.StatusForbidden)
	}))
	defer srv.Close()

	result := NewTester(srv.Client()).Test(context.Background(), configFor(srv, "data"))

	assert.False(t, result.Success)
	assert.Equal(t, http.StatusForbidden, result.StatusCode)
	assert.Len(t, result.Error, errorBodyLimit)
}

func TestTester_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	result := NewTester(nil).Test(context.Background(), domain.ConnectionConfig{
		BaseURL:    srv.URL + "/",
		Path:       "data",
		DataFormat: domain.FormatAuto,
	})

	assert.False(t, result.Success)
	assert.Zero(t, result.StatusCode)
	assert.NotEmpty(t, result.Error)
	assert.Equal(t, domain.FormatUnknown, result.DetectedFormat)
}

func TestTester_SendsConfiguredParams(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		writeJSON(w, []map[string]any{{"id": 1}})
	}))
	defer srv.Close()

	cfg := configFor(srv, "data")
	cfg.QueryParams = []domain.QueryParam{{Name: "limit", Value: "1"}}
	cfg.APIKeyName = "key"
	cfg.APIKeyValue = "s3cret"

	result := NewTester(srv.Client()).Test(context.Background(), cfg)

	assert.Equal(t, "limit=1&key=s3cret", gotQuery)
	assert.NotContains(t, result.RequestURL, "s3cret", "stored URL must not leak the key")
	assert.Contains(t, result.RequestURL, "key=%2A%2A%2A")
}
