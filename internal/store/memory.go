package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openportal/datainsight/internal/domain"
	"github.com/openportal/datainsight/internal/errs"
)

// Memory is a mutex-guarded in-memory Repository. Safe for concurrent use.
type Memory struct {
	mu          sync.RWMutex
	connections map[uuid.UUID]*domain.Connection
	jobs        map[uuid.UUID]*domain.Job
	jobOrder    []uuid.UUID
}

// NewMemory returns an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{
		connections: make(map[uuid.UUID]*domain.Connection),
		jobs:        make(map[uuid.UUID]*domain.Job),
	}
}

var _ Repository = (*Memory)(nil)

func (m *Memory) Create(_ context.Context, cfg domain.ConnectionConfig, testResult *domain.TestResult) (*domain.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	conn := &domain.Connection{
		ID:             uuid.New(),
		Config:         cfg,
		CreatedAt:      now,
		UpdatedAt:      &now,
		LastTestResult: testResult,
	}
	m.connections[conn.ID] = conn
	return cloneConnection(conn), nil
}

func (m *Memory) List(_ context.Context) ([]*domain.Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.Connection, 0, len(m.connections))
	for _, conn := range m.connections {
		out = append(out, cloneConnection(conn))
	}
	return out, nil
}

func (m *Memory) Get(_ context.Context, id uuid.UUID) (*domain.Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conn, ok := m.connections[id]
	if !ok {
		return nil, errs.New(errs.ErrKindNotFound, "connection not found")
	}
	return cloneConnection(conn), nil
}

func (m *Memory) CreateJob(_ context.Context, connectionID uuid.UUID) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.connections[connectionID]; !ok {
		return nil, errs.New(errs.ErrKindNotFound, "connection not found")
	}

	job := &domain.Job{
		ID:           uuid.New(),
		ConnectionID: connectionID,
		Status:       domain.JobPending,
		CreatedAt:    time.Now().UTC(),
		Errors:       []string{},
	}
	m.jobs[job.ID] = job
	m.jobOrder = append(m.jobOrder, job.ID)
	return cloneJob(job), nil
}

func (m *Memory) UpdateJob(_ context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[job.ID]; !ok {
		return errs.New(errs.ErrKindNotFound, "job not found")
	}
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

func (m *Memory) GetJob(_ context.Context, id uuid.UUID) (*domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, errs.New(errs.ErrKindNotFound, "job not found")
	}
	return cloneJob(job), nil
}

func (m *Memory) ListJobsForConnection(_ context.Context, connectionID uuid.UUID) ([]*domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*domain.Job
	for _, id := range m.jobOrder {
		if job := m.jobs[id]; job.ConnectionID == connectionID {
			out = append(out, cloneJob(job))
		}
	}
	return out, nil
}

func (m *Memory) SetSummary(_ context.Context, connectionID uuid.UUID, summary *domain.DatasetSummary, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.connections[connectionID]
	if !ok {
		return errs.New(errs.ErrKindNotFound, "connection not found")
	}
	conn.LastSummary = summary
	conn.LastIngestedAt = &ts
	conn.UpdatedAt = &ts
	return nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.connections = make(map[uuid.UUID]*domain.Connection)
	m.jobs = make(map[uuid.UUID]*domain.Job)
	m.jobOrder = nil
	return nil
}

func (m *Memory) Close() error {
	return nil
}

// cloneConnection copies the record shell so callers cannot mutate stored
// state. Config, test result, and summary are treated as immutable.
func cloneConnection(c *domain.Connection) *domain.Connection {
	out := *c
	return &out
}

func cloneJob(j *domain.Job) *domain.Job {
	out := *j
	out.Errors = append([]string(nil), j.Errors...)
	return &out
}
