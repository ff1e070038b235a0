// Package store persists dataset connections and their ingestion jobs.
//
// All layers above this package talk only to the Repository interface —
// they never import a driver package directly. Two implementations exist:
// an in-memory store for tests and ephemeral deployments, and a SQL store
// speaking sqlite, postgres, or mysql behind database/sql.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/openportal/datainsight/internal/domain"
)

// Repository is the single contract for connection and job persistence.
type Repository interface {
	// Create stores a new connection with its validation result.
	Create(ctx context.Context, cfg domain.ConnectionConfig, testResult *domain.TestResult) (*domain.Connection, error)

	// List returns all stored connections.
	List(ctx context.Context) ([]*domain.Connection, error)

	// Get returns the connection with the given id.
	Get(ctx context.Context, id uuid.UUID) (*domain.Connection, error)

	// CreateJob records a new pending ingestion job for a connection.
	CreateJob(ctx context.Context, connectionID uuid.UUID) (*domain.Job, error)

	// UpdateJob replaces the stored state of an existing job.
	UpdateJob(ctx context.Context, job *domain.Job) error

	// GetJob returns the job with the given id.
	GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// ListJobsForConnection returns all jobs recorded for a connection.
	ListJobsForConnection(ctx context.Context, connectionID uuid.UUID) ([]*domain.Job, error)

	// SetSummary replaces the connection's summary after a successful
	// ingestion run. The previous summary is discarded — no history.
	SetSummary(ctx context.Context, connectionID uuid.UUID, summary *domain.DatasetSummary, ts time.Time) error

	// Clear removes all connections and jobs.
	Clear(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}
