package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openportal/datainsight/internal/domain"
	"github.com/openportal/datainsight/internal/ingest"
	"github.com/openportal/datainsight/internal/jobs"
	"github.com/openportal/datainsight/internal/store"
)

type fakeAnswerer struct {
	answer string
}

func (f *fakeAnswerer) Answer(context.Context, *domain.DatasetSummary, string) (string, error) {
	return f.answer, nil
}

type env struct {
	api      *httptest.Server
	upstream *httptest.Server
	repo     store.Repository
	runner   *jobs.Runner
}

// newEnv wires the full stack against a canned upstream data source.
func newEnv(t *testing.T, answerer *fakeAnswerer) *env {
	t.Helper()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"pm10": 31.5, "station": "gangnam"}, {"pm10": 48.0, "station": "mapo"}]`)
	}))
	t.Cleanup(upstream.Close)

	repo := store.NewMemory()
	runner := jobs.NewRunner(1, 8, nil)

	deps := jobs.Deps{
		Repository: repo,
		Collector:  ingest.NewPager(upstream.Client(), nil),
		Runner:     runner,
	}
	if answerer != nil {
		deps.Answerer = answerer
	}
	svc := jobs.NewService(deps)
	runner.Start(svc.RunJob)
	t.Cleanup(runner.Stop)

	sched := jobs.NewScheduler(svc, repo, nil)
	server := NewServer(repo, ingest.NewTester(upstream.Client()), svc, sched, nil)

	api := httptest.NewServer(server.Router())
	t.Cleanup(api.Close)

	return &env{api: api, upstream: upstream, repo: repo, runner: runner}
}

func (e *env) connectionConfig() map[string]any {
	return map[string]any{
		"portal_name":   "seoul-open-data",
		"dataset_id":    "air-quality",
		"base_url":      e.upstream.URL + "/",
		"path":          "data",
		"api_key_name":  "key",
		"api_key_value": "s3cret",
		"data_format":   "auto",
	}
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func createConnection(t *testing.T, e *env) string {
	t.Helper()
	resp := postJSON(t, e.api.URL+"/connections/", e.connectionConfig())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	return body["id"].(string)
}

func TestHealth(t *testing.T) {
	e := newEnv(t, nil)

	resp, err := http.Get(e.api.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTestConnection(t *testing.T) {
	e := newEnv(t, nil)

	resp := postJSON(t, e.api.URL+"/connections/test", e.connectionConfig())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decode[domain.TestResult](t, resp)
	assert.True(t, result.Success)
	assert.Equal(t, domain.FormatJSON, result.DetectedFormat)
	require.NotNil(t, result.RecordCount)
	assert.Equal(t, 2, *result.RecordCount)
	assert.NotContains(t, result.RequestURL, "s3cret")
}

func TestCreateConnection_NeverEchoesAPIKey(t *testing.T) {
	e := newEnv(t, nil)

	resp := postJSON(t, e.api.URL+"/connections/", e.connectionConfig())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "s3cret")
	assert.Contains(t, string(raw), `"api_key_name":"key"`)
}

func TestCreateConnection_FailingSourceIs400(t *testing.T) {
	e := newEnv(t, nil)

	cfg := e.connectionConfig()
	cfg["path"] = "missing"
	e.upstream.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such dataset", http.StatusNotFound)
	})

	resp := postJSON(t, e.api.URL+"/connections/", cfg)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateConnection_InvalidConfig(t *testing.T) {
	e := newEnv(t, nil)

	cfg := e.connectionConfig()
	cfg["base_url"] = ""
	resp := postJSON(t, e.api.URL+"/connections/", cfg)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	cfg = e.connectionConfig()
	cfg["refresh_cron"] = "not a schedule"
	resp = postJSON(t, e.api.URL+"/connections/", cfg)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListAndGetConnections(t *testing.T) {
	e := newEnv(t, nil)
	id := createConnection(t, e)

	resp, err := http.Get(e.api.URL + "/connections/")
	require.NoError(t, err)
	list := decode[map[string][]map[string]any](t, resp)
	assert.Len(t, list["connections"], 1)

	resp, err = http.Get(e.api.URL + "/connections/" + id)
	require.NoError(t, err)
	conn := decode[map[string]any](t, resp)
	assert.Equal(t, id, conn["id"])

	resp, err = http.Get(e.api.URL + "/connections/00000000-0000-0000-0000-000000000000")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(e.api.URL + "/connections/not-a-uuid")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIngestLifecycle(t *testing.T) {
	e := newEnv(t, nil)
	id := createConnection(t, e)

	resp := postJSON(t, e.api.URL+"/connections/"+id+"/ingest", map[string]any{})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	job := decode[map[string]any](t, resp)
	jobID := job["job_id"].(string)
	assert.Equal(t, "pending", job["status"])

	require.Eventually(t, func() bool {
		resp, err := http.Get(e.api.URL + "/connections/" + id + "/ingest/" + jobID)
		if err != nil {
			return false
		}
		polled := decode[map[string]any](t, resp)
		return polled["status"] == "completed"
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := http.Get(e.api.URL + "/connections/" + id)
	require.NoError(t, err)
	conn := decode[map[string]any](t, resp)
	summary := conn["last_ingestion_summary"].(map[string]any)
	assert.Equal(t, float64(2), summary["record_count"])
}

func TestIngestConflict(t *testing.T) {
	e := newEnv(t, nil)
	id := createConnection(t, e)

	// Slow the upstream so the first run is still in flight.
	block := make(chan struct{})
	e.upstream.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"id":1}]`)
	})
	defer close(block)

	resp := postJSON(t, e.api.URL+"/connections/"+id+"/ingest", map[string]any{})
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = postJSON(t, e.api.URL+"/connections/"+id+"/ingest", map[string]any{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = postJSON(t, e.api.URL+"/connections/"+id+"/ingest", map[string]any{"force_refresh": true})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestGetJob_WrongConnectionIs404(t *testing.T) {
	e := newEnv(t, nil)
	first := createConnection(t, e)
	second := createConnection(t, e)

	resp := postJSON(t, e.api.URL+"/connections/"+first+"/ingest", map[string]any{})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	job := decode[map[string]any](t, resp)
	jobID := job["job_id"].(string)

	got, err := http.Get(e.api.URL + "/connections/" + second + "/ingest/" + jobID)
	require.NoError(t, err)
	defer got.Body.Close()
	assert.Equal(t, http.StatusNotFound, got.StatusCode)
}

func TestAnalysis(t *testing.T) {
	e := newEnv(t, &fakeAnswerer{answer: "two stations reported"})
	id := createConnection(t, e)

	resp := postJSON(t, e.api.URL+"/connections/"+id+"/analysis", map[string]any{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "question is required")

	resp = postJSON(t, e.api.URL+"/connections/"+id+"/analysis", map[string]any{"question": "how many stations?"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	assert.Equal(t, "two stations reported", body["answer"])
}

func TestAnalysis_InsightDisabledIs503(t *testing.T) {
	e := newEnv(t, nil)
	id := createConnection(t, e)

	resp := postJSON(t, e.api.URL+"/connections/"+id+"/analysis", map[string]any{"question": "anything?"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
