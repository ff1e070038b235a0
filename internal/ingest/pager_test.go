package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openportal/datainsight/internal/domain"
	"github.com/openportal/datainsight/internal/errs"
)

func testPager(srv *httptest.Server) *Pager {
	p := NewPager(srv.Client(), nil)
	p.backoff = time.Millisecond
	return p
}

func configFor(srv *httptest.Server, path string) domain.ConnectionConfig {
	return domain.ConnectionConfig{
		PortalName: "test-portal",
		DatasetID:  "ds-1",
		BaseURL:    srv.URL + "/",
		Path:       path,
		DataFormat: domain.FormatAuto,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestPager_SinglePage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{{"id": 1}, {"id": 2}})
	}))
	defer srv.Close()

	records, err := testPager(srv).Collect(context.Background(), configFor(srv, "data"))
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestPager_FollowsNextURL(t *testing.T) {
	var mux http.ServeMux
	srv := httptest.NewServer(&mux)
	defer srv.Close()

	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"results": []map[string]any{{"id": 1}},
			"next":    srv.URL + "/page2",
		})
	})
	mux.HandleFunc("/page2", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"results": []map[string]any{{"id": 2}},
		})
	})

	records, err := testPager(srv).Collect(context.Background(), configFor(srv, "data"))
	require.NoError(t, err)
	require.Len(t, records, 2)

	id, _ := records[1].Get("id")
	assert.Equal(t, float64(2), id)
}

func TestPager_ParamsOnlyOnFirstRequest(t *testing.T) {
	var queries []string
	var mux http.ServeMux
	srv := httptest.NewServer(&mux)
	defer srv.Close()

	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.RawQuery)
		writeJSON(w, map[string]any{
			"results": []map[string]any{{"id": 1}},
			"next":    srv.URL + "/more",
		})
	})
	mux.HandleFunc("/more", func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.RawQuery)
		writeJSON(w, map[string]any{"results": []map[string]any{{"id": 2}}})
	})

	cfg := configFor(srv, "data")
	cfg.QueryParams = []domain.QueryParam{{Name: "limit", Value: "10"}}
	cfg.APIKeyName = "key"
	cfg.APIKeyValue = "s3cret"

	_, err := testPager(srv).Collect(context.Background(), cfg)
	require.NoError(t, err)

	require.Len(t, queries, 2)
	assert.Equal(t, "limit=10&key=s3cret", queries[0])
	assert.Equal(t, "", queries[1], "later pages carry their own query")
}

func TestPager_ParamPatchReusesPath(t *testing.T) {
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.RawQuery)
		if r.URL.Query().Get("page") == "2" {
			writeJSON(w, map[string]any{"results": []map[string]any{{"id": 2}}})
			return
		}
		writeJSON(w, map[string]any{
			"results": []map[string]any{{"id": 1}},
			"next":    map[string]any{"page": 2},
		})
	}))
	defer srv.Close()

	cfg := configFor(srv, "data")
	cfg.QueryParams = []domain.QueryParam{{Name: "limit", Value: "10"}}

	records, err := testPager(srv).Collect(context.Background(), cfg)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	require.Len(t, queries, 2)
	assert.Equal(t, "limit=10", queries[0])
	assert.Equal(t, "limit=10&page=2", queries[1], "patch merged into current params")
}

func TestPager_LinkHeaderPagination(t *testing.T) {
	var mux http.ServeMux
	srv := httptest.NewServer(&mux)
	defer srv.Close()

	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Link", fmt.Sprintf(`<%s/page2>; rel="next"`, srv.URL))
		writeJSON(w, []map[string]any{{"id": 1}})
	})
	mux.HandleFunc("/page2", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{{"id": 2}})
	})

	records, err := testPager(srv).Collect(context.Background(), configFor(srv, "data"))
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestPager_RetriesRateLimitWithinBudget(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(w, []map[string]any{{"id": 1}})
	}))
	defer srv.Close()

	records, err := testPager(srv).Collect(context.Background(), configFor(srv, "data"))
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 3, hits)
}

func TestPager_RateLimitPastBudgetIsFatal(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testPager(srv).Collect(context.Background(), configFor(srv, "data"))
	require.Error(t, err)
	assert.True(t, errs.IsRateLimited(err))
	assert.Equal(t, 1+MaxRetries, hits, "initial attempt plus full retry budget")
}

func TestPager_NonSuccessStatusIsFatalWithoutRetry(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testPager(srv).Collect(context.Background(), configFor(srv, "data"))
	require.Error(t, err)
	assert.True(t, errs.IsHTTPStatus(err))
	assert.Equal(t, 1, hits)

	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, http.StatusInternalServerError, e.Status)
}

func TestPager_StopsExactlyAtRecordCap(t *testing.T) {
	const pageSize = 2000 // 3 pages → 6000 records offered

	page := func(n int) []map[string]any {
		out := make([]map[string]any, pageSize)
		for i := range out {
			out[i] = map[string]any{"i": n*pageSize + i}
		}
		return out
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n, _ := strconv.Atoi(r.URL.Query().Get("page"))
		writeJSON(w, map[string]any{
			"results": page(n),
			"next":    map[string]any{"page": n + 1},
		})
	}))
	defer srv.Close()

	records, err := testPager(srv).Collect(context.Background(), configFor(srv, "data"))
	require.NoError(t, err)
	assert.Len(t, records, MaxRecords, "cap truncates mid-page")
}

func TestPager_PageLimitBoundsTheRun(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		writeJSON(w, map[string]any{
			"results": []map[string]any{{"id": hits}},
			"next":    map[string]any{"page": hits + 1},
		})
	}))
	defer srv.Close()

	records, err := testPager(srv).Collect(context.Background(), configFor(srv, "data"))
	require.NoError(t, err)
	assert.Len(t, records, MaxPages)
	assert.Equal(t, MaxPages, hits)
}

func TestPager_XMLPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, `<root><item><id>1</id></item><item><id>2</id></item></root>`)
	}))
	defer srv.Close()

	records, err := testPager(srv).Collect(context.Background(), configFor(srv, "data"))
	require.NoError(t, err)
	require.Len(t, records, 2)

	id, _ := records[0].Get("id")
	assert.Equal(t, "1", id)
}

func TestPager_UnknownContentTypeFallsBackToJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, `[{"id":1}]`)
	}))
	defer srv.Close()

	records, err := testPager(srv).Collect(context.Background(), configFor(srv, "data"))
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestPager_UnparseableUnknownFormatIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "definitely not json")
	}))
	defer srv.Close()

	_, err := testPager(srv).Collect(context.Background(), configFor(srv, "data"))
	require.Error(t, err)
	assert.True(t, errs.IsUnsupportedFormat(err))
}

func TestPager_InvalidJSONIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"truncated":`)
	}))
	defer srv.Close()

	_, err := testPager(srv).Collect(context.Background(), configFor(srv, "data"))
	require.Error(t, err)
	assert.True(t, errs.IsUnsupportedFormat(err))
}

func TestPager_TransportErrorIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse all connections

	p := NewPager(nil, nil)
	p.backoff = time.Millisecond

	_, err := p.Collect(context.Background(), domain.ConnectionConfig{
		BaseURL:    srv.URL + "/",
		Path:       "data",
		DataFormat: domain.FormatAuto,
	})
	require.Error(t, err)
	assert.True(t, errs.IsTransport(err))
}

func TestPager_CancellationAbortsBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewPager(srv.Client(), nil)
	p.backoff = time.Minute // cancellation must win, not the backoff

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := p.Collect(ctx, configFor(srv, "data"))
	require.Error(t, err)
	assert.True(t, errs.IsTimeout(err))
	assert.Less(t, time.Since(start), 5*time.Second)
}
