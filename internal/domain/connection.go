// Package domain holds the core types shared by all subsystems:
// dataset connections, ingestion jobs, records, and summaries.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Format is the declared or detected payload format of a data source.
type Format string

const (
	FormatAuto    Format = "auto"
	FormatJSON    Format = "json"
	FormatXML     Format = "xml"
	FormatUnknown Format = "unknown"
)

// QueryParam is one static query parameter sent with every first-page
// request. Parameters are ordered and names need not be unique.
type QueryParam struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ConnectionConfig describes how to reach one dataset on an open-data portal.
// It is immutable once an ingestion run starts.
type ConnectionConfig struct {
	PortalName  string       `json:"portal_name"`
	DatasetID   string       `json:"dataset_id"`
	BaseURL     string       `json:"base_url"`
	Path        string       `json:"path"`
	APIKeyName  string       `json:"api_key_name,omitempty"`
	APIKeyValue string       `json:"api_key_value,omitempty"` // secret — handlers must never echo it
	DataFormat  Format       `json:"data_format"`
	QueryParams []QueryParam `json:"query_parameters"`

	// RefreshCron, when set, re-ingests the dataset on this cron schedule.
	RefreshCron string `json:"refresh_cron,omitempty"`
}

// TestResult captures the outcome of a single connection validation request.
type TestResult struct {
	Success          bool     `json:"success"`
	StatusCode       int      `json:"status_code,omitempty"`
	Reason           string   `json:"reason,omitempty"`
	ContentType      string   `json:"content_type,omitempty"`
	DetectedFormat   Format   `json:"detected_format"`
	RecordCount      *int     `json:"record_count,omitempty"`
	SchemaFields     []string `json:"schema_fields"`
	Preview          string   `json:"preview,omitempty"`
	PreviewTruncated bool     `json:"preview_truncated"`
	ElapsedMS        int64    `json:"elapsed_ms"`
	RequestURL       string   `json:"request_url,omitempty"`
	Error            string   `json:"error,omitempty"`
}

// Connection is a stored dataset connection with its latest test result
// and, after a successful ingestion run, its current summary. Each run
// replaces the previous summary — no history is retained.
type Connection struct {
	ID             uuid.UUID        `json:"id"`
	Config         ConnectionConfig `json:"config"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      *time.Time       `json:"updated_at,omitempty"`
	LastTestResult *TestResult      `json:"last_test_result,omitempty"`
	LastIngestedAt *time.Time       `json:"last_ingested_at,omitempty"`
	LastSummary    *DatasetSummary  `json:"last_ingestion_summary,omitempty"`
}

// JobStatus is the lifecycle state of an ingestion job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Active reports whether a job in this status blocks a new non-forced run.
func (s JobStatus) Active() bool {
	return s == JobPending || s == JobRunning
}

// Job is one tracked asynchronous ingestion run for a connection.
type Job struct {
	ID           uuid.UUID       `json:"id"`
	ConnectionID uuid.UUID       `json:"connection_id"`
	Status       JobStatus       `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
	Message      string          `json:"message,omitempty"`
	Errors       []string        `json:"errors"`
	Summary      *DatasetSummary `json:"summary,omitempty"`
}
