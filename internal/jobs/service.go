// Package jobs orchestrates asynchronous ingestion runs: trigger,
// worker pool, scheduled refresh.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openportal/datainsight/internal/archive"
	"github.com/openportal/datainsight/internal/domain"
	"github.com/openportal/datainsight/internal/errs"
	"github.com/openportal/datainsight/internal/insight"
	"github.com/openportal/datainsight/internal/logger"
	"github.com/openportal/datainsight/internal/stats"
	"github.com/openportal/datainsight/internal/store"
)

// Collector pulls the full record batch for one connection.
// *ingest.Pager is the production implementation.
type Collector interface {
	Collect(ctx context.Context, cfg domain.ConnectionConfig) ([]*domain.Record, error)
}

// ErrInsightDisabled is returned by Answer when no Q&A backend is
// configured. The API layer maps it to 503 rather than 400.
var ErrInsightDisabled = errs.New(errs.ErrKindInvalidInput,
	"insight backend is not configured, set the insight API key")

// Deps bundles the collaborators a Service needs. Archive and Answerer
// are optional; nil disables the corresponding feature.
type Deps struct {
	Repository store.Repository
	Collector  Collector
	Archive    archive.Store
	Answerer   insight.Answerer
	Runner     *Runner
	Log        *logger.Logger
}

// Service coordinates ingestion runs against the repository and exposes
// the Q&A entry point.
type Service struct {
	repo      store.Repository
	collector Collector
	archive   archive.Store
	answerer  insight.Answerer
	runner    *Runner
	log       *logger.Logger
}

// NewService wires a Service from its dependencies.
func NewService(d Deps) *Service {
	log := d.Log
	if log == nil {
		log = logger.New(nil)
	}
	return &Service{
		repo:      d.Repository,
		collector: d.Collector,
		archive:   d.Archive,
		answerer:  d.Answerer,
		runner:    d.Runner,
		log:       log,
	}
}

// TriggerIngestion creates a pending job for the connection and hands it
// to the worker pool. A connection with a pending or running job rejects
// a new run unless force is set — forced runs queue regardless.
func (s *Service) TriggerIngestion(ctx context.Context, connectionID uuid.UUID, force bool) (*domain.Job, error) {
	if _, err := s.repo.Get(ctx, connectionID); err != nil {
		return nil, err
	}

	if !force {
		existing, err := s.repo.ListJobsForConnection(ctx, connectionID)
		if err != nil {
			return nil, err
		}
		for _, j := range existing {
			if j.Status.Active() {
				return nil, errs.New(errs.ErrKindConflict,
					"an ingestion run is already in progress for this connection")
			}
		}
	}

	job, err := s.repo.CreateJob(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	if err := s.runner.Enqueue(job.ID); err != nil {
		s.failJob(ctx, job, err)
		return nil, err
	}

	s.log.With().
		Str("connection_id", connectionID.String()).
		Str("job_id", job.ID.String()).
		Logger().Info("ingestion job queued")
	return job, nil
}

// RunJob is the worker body: it drives one job through
// pending → running → completed/failed. A failed run records the error
// and leaves the connection's previous summary untouched; a completed
// run replaces it and archives a snapshot.
func (s *Service) RunJob(ctx context.Context, jobID uuid.UUID) {
	log := s.log.With().Str("job_id", jobID.String()).Logger()

	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		log.ErrorWith("loading queued job", err, nil)
		return
	}
	conn, err := s.repo.Get(ctx, job.ConnectionID)
	if err != nil {
		s.failJob(ctx, job, err)
		return
	}

	started := time.Now().UTC()
	job.Status = domain.JobRunning
	job.StartedAt = &started
	if err := s.repo.UpdateJob(ctx, job); err != nil {
		log.ErrorWith("marking job running", err, nil)
		return
	}

	records, err := s.collector.Collect(ctx, conn.Config)
	if err != nil {
		s.failJob(ctx, job, err)
		log.ErrorWith("ingestion run failed", err, map[string]any{
			"connection_id": conn.ID.String(),
		})
		return
	}

	summary := stats.Summarize(records)

	finished := time.Now().UTC()
	job.Status = domain.JobCompleted
	job.FinishedAt = &finished
	job.Summary = summary
	job.Message = "ingestion finished successfully"
	if err := s.repo.UpdateJob(ctx, job); err != nil {
		log.ErrorWith("marking job completed", err, nil)
		return
	}
	if err := s.repo.SetSummary(ctx, conn.ID, summary, finished); err != nil {
		log.ErrorWith("storing connection summary", err, nil)
		return
	}

	s.archiveSummary(ctx, job)

	log.With().
		Str("connection_id", conn.ID.String()).
		Int("record_count", summary.RecordCount).
		Dur("elapsed", finished.Sub(started)).
		Logger().Info("ingestion run completed")
}

// Answer resolves the connection's stored summary and delegates to the
// configured Q&A backend.
func (s *Service) Answer(ctx context.Context, connectionID uuid.UUID, question string) (string, error) {
	conn, err := s.repo.Get(ctx, connectionID)
	if err != nil {
		return "", err
	}
	if s.answerer == nil {
		return "", ErrInsightDisabled
	}
	return s.answerer.Answer(ctx, conn.LastSummary, question)
}

func (s *Service) failJob(ctx context.Context, job *domain.Job, cause error) {
	finished := time.Now().UTC()
	job.Status = domain.JobFailed
	job.FinishedAt = &finished
	job.Message = cause.Error()
	job.Errors = append(job.Errors, cause.Error())
	if err := s.repo.UpdateJob(ctx, job); err != nil {
		s.log.ErrorWith("marking job failed", err, map[string]any{
			"job_id": job.ID.String(),
		})
	}
}

// archiveSummary snapshots the job's summary into the artifact store.
// Best-effort: the run already succeeded, so failures are only logged.
func (s *Service) archiveSummary(ctx context.Context, job *domain.Job) {
	if s.archive == nil {
		return
	}
	data, err := json.Marshal(job.Summary)
	if err != nil {
		s.log.ErrorWith("encoding summary artifact", err, nil)
		return
	}
	key := fmt.Sprintf("jobs/%s/summary.json", job.ID)
	if err := s.archive.Put(ctx, key, "application/json", data); err != nil {
		s.log.ErrorWith("archiving summary artifact", err, map[string]any{
			"key": key,
		})
	}
}
