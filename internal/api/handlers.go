package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/openportal/datainsight/internal/domain"
	"github.com/openportal/datainsight/internal/errs"
	"github.com/openportal/datainsight/internal/jobs"
)

// --- wire types ---

// connectionResponse is a Connection with the API key value stripped.
// The stored secret must never travel back out of the service.
type connectionResponse struct {
	ID             uuid.UUID               `json:"id"`
	Config         domain.ConnectionConfig `json:"config"`
	CreatedAt      time.Time               `json:"created_at"`
	UpdatedAt      *time.Time              `json:"updated_at,omitempty"`
	LastTestResult *domain.TestResult      `json:"last_test_result,omitempty"`
	LastIngestedAt *time.Time              `json:"last_ingested_at,omitempty"`
	LastSummary    *domain.DatasetSummary  `json:"last_ingestion_summary,omitempty"`
}

func toConnectionResponse(conn *domain.Connection) connectionResponse {
	cfg := conn.Config
	cfg.APIKeyValue = ""
	return connectionResponse{
		ID:             conn.ID,
		Config:         cfg,
		CreatedAt:      conn.CreatedAt,
		UpdatedAt:      conn.UpdatedAt,
		LastTestResult: conn.LastTestResult,
		LastIngestedAt: conn.LastIngestedAt,
		LastSummary:    conn.LastSummary,
	}
}

type jobResponse struct {
	JobID        uuid.UUID              `json:"job_id"`
	ConnectionID uuid.UUID              `json:"connection_id"`
	Status       domain.JobStatus       `json:"status"`
	CreatedAt    time.Time              `json:"created_at"`
	StartedAt    *time.Time             `json:"started_at,omitempty"`
	FinishedAt   *time.Time             `json:"finished_at,omitempty"`
	Message      string                 `json:"message,omitempty"`
	Errors       []string               `json:"errors"`
	Summary      *domain.DatasetSummary `json:"summary,omitempty"`
}

func toJobResponse(job *domain.Job) jobResponse {
	return jobResponse{
		JobID:        job.ID,
		ConnectionID: job.ConnectionID,
		Status:       job.Status,
		CreatedAt:    job.CreatedAt,
		StartedAt:    job.StartedAt,
		FinishedAt:   job.FinishedAt,
		Message:      job.Message,
		Errors:       job.Errors,
		Summary:      job.Summary,
	}
}

type ingestRequest struct {
	ForceRefresh bool `json:"force_refresh"`
}

type analysisRequest struct {
	Question string `json:"question"`
}

// --- handlers ---

func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	var cfg domain.ConnectionConfig
	if !decodeBody(w, r, &cfg) {
		return
	}
	if err := validateConfig(cfg); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.tester.Test(r.Context(), cfg))
}

func (s *Server) handleCreateConnection(w http.ResponseWriter, r *http.Request) {
	var cfg domain.ConnectionConfig
	if !decodeBody(w, r, &cfg) {
		return
	}
	if err := validateConfig(cfg); err != nil {
		s.writeError(w, err)
		return
	}

	result := s.tester.Test(r.Context(), cfg)
	if !result.Success {
		detail := result.Error
		if detail == "" {
			detail = result.Reason
		}
		if detail == "" {
			detail = "connection test failed"
		}
		s.writeError(w, errs.New(errs.ErrKindInvalidInput, detail))
		return
	}

	conn, err := s.repo.Create(r.Context(), cfg, result)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if s.sched != nil {
		if err := s.sched.Register(conn); err != nil {
			// Validated above, so this only happens on a racing shutdown.
			s.log.ErrorWith("registering refresh schedule", err, map[string]any{
				"connection_id": conn.ID.String(),
			})
		}
	}

	writeJSON(w, http.StatusCreated, toConnectionResponse(conn))
}

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	conns, err := s.repo.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]connectionResponse, 0, len(conns))
	for _, conn := range conns {
		out = append(out, toConnectionResponse(conn))
	}
	writeJSON(w, http.StatusOK, map[string]any{"connections": out})
}

func (s *Server) handleGetConnection(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "connectionID")
	if !ok {
		return
	}
	conn, err := s.repo.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toConnectionResponse(conn))
}

func (s *Server) handleTriggerIngestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "connectionID")
	if !ok {
		return
	}

	// The body is optional; an absent body means a normal, non-forced run.
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, errs.Wrap(errs.ErrKindInvalidInput, "invalid request body", err))
		return
	}

	job, err := s.svc.TriggerIngestion(r.Context(), id, req.ForceRefresh)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toJobResponse(job))
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	connID, ok := pathUUID(w, r, "connectionID")
	if !ok {
		return
	}
	jobID, ok := pathUUID(w, r, "jobID")
	if !ok {
		return
	}

	job, err := s.repo.GetJob(r.Context(), jobID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if job.ConnectionID != connID {
		s.writeError(w, errs.New(errs.ErrKindNotFound, "job not associated with connection"))
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "connectionID")
	if !ok {
		return
	}

	var req analysisRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.writeError(w, errs.New(errs.ErrKindInvalidInput, "question is required"))
		return
	}

	answer, err := s.svc.Answer(r.Context(), id, req.Question)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

// --- helpers ---

// validateConfig rejects configs the lower layers cannot act on.
func validateConfig(cfg domain.ConnectionConfig) error {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return errs.New(errs.ErrKindInvalidInput, "base_url is required")
	}
	switch cfg.DataFormat {
	case "", domain.FormatAuto, domain.FormatJSON, domain.FormatXML:
	default:
		return errs.New(errs.ErrKindInvalidInput, "data_format must be auto, json, or xml")
	}
	if cfg.RefreshCron != "" {
		if _, err := cron.ParseStandard(cfg.RefreshCron); err != nil {
			return errs.Wrap(errs.ErrKindInvalidInput, "invalid refresh_cron expression", err)
		}
	}
	return nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid request body"})
		return false
	}
	return true
}

func pathUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid " + param})
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps error kinds onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, jobs.ErrInsightDisabled):
		status = http.StatusServiceUnavailable
	case errs.IsNotFound(err):
		status = http.StatusNotFound
	case errs.IsConflict(err):
		status = http.StatusConflict
	case errs.IsInvalidInput(err):
		status = http.StatusBadRequest
	case errs.IsRateLimited(err):
		status = http.StatusTooManyRequests
	case errs.IsTransport(err), errs.IsHTTPStatus(err), errs.IsTimeout(err):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		s.log.ErrorWith("request failed", err, nil)
	}

	detail := err.Error()
	var e *errs.Error
	if errors.As(err, &e) {
		detail = e.Message
	}
	writeJSON(w, status, map[string]string{"detail": detail})
}
