package jobs

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/openportal/datainsight/internal/domain"
	"github.com/openportal/datainsight/internal/errs"
	"github.com/openportal/datainsight/internal/logger"
	"github.com/openportal/datainsight/internal/store"
)

// Scheduler re-ingests connections that carry a cron expression.
// Scheduled runs are never forced: a tick that lands while a run is
// still in flight is a logged no-op, not a queued duplicate.
type Scheduler struct {
	cron *cron.Cron
	svc  *Service
	repo store.Repository
	log  *logger.Logger

	mu      sync.Mutex
	entries map[uuid.UUID]cron.EntryID
	specs   map[uuid.UUID]string
}

// NewScheduler builds a stopped Scheduler; call Sync then Start.
func NewScheduler(svc *Service, repo store.Repository, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.New(nil)
	}
	return &Scheduler{
		cron:    cron.New(),
		svc:     svc,
		repo:    repo,
		log:     log,
		entries: make(map[uuid.UUID]cron.EntryID),
		specs:   make(map[uuid.UUID]string),
	}
}

// Start begins dispatching cron ticks.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("refresh scheduler started")
}

// Stop halts dispatch and waits for in-flight scheduled triggers.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("refresh scheduler stopped")
}

// Sync registers every stored connection that has a refresh schedule.
// Called once at startup; connections created afterwards register
// through the API layer.
func (s *Scheduler) Sync(ctx context.Context) error {
	conns, err := s.repo.List(ctx)
	if err != nil {
		return err
	}
	for _, conn := range conns {
		if err := s.Register(conn); err != nil {
			s.log.ErrorWith("registering refresh schedule", err, map[string]any{
				"connection_id": conn.ID.String(),
			})
		}
	}
	return nil
}

// Register adds or updates the cron entry for one connection. An empty
// cron expression removes any existing entry.
func (s *Scheduler) Register(conn *domain.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	spec := conn.Config.RefreshCron
	if spec == "" {
		s.removeLocked(conn.ID)
		return nil
	}
	if s.specs[conn.ID] == spec {
		return nil
	}
	s.removeLocked(conn.ID)

	id := conn.ID
	entryID, err := s.cron.AddFunc(spec, func() { s.refresh(id) })
	if err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, "invalid refresh cron expression", err)
	}
	s.entries[conn.ID] = entryID
	s.specs[conn.ID] = spec

	s.log.With().
		Str("connection_id", conn.ID.String()).
		Str("schedule", spec).
		Logger().Info("refresh schedule registered")
	return nil
}

// Entries reports how many connections currently have a schedule.
func (s *Scheduler) Entries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Scheduler) removeLocked(connectionID uuid.UUID) {
	if entryID, ok := s.entries[connectionID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, connectionID)
		delete(s.specs, connectionID)
	}
}

// refresh is the cron tick body.
func (s *Scheduler) refresh(connectionID uuid.UUID) {
	log := s.log.With().Str("connection_id", connectionID.String()).Logger()

	_, err := s.svc.TriggerIngestion(context.Background(), connectionID, false)
	switch {
	case err == nil:
		log.Info("scheduled refresh queued")
	case errs.IsConflict(err):
		log.Warn("scheduled refresh skipped, a run is already in progress")
	case errs.IsNotFound(err):
		// Connection was deleted from under the schedule; drop the entry.
		s.mu.Lock()
		s.removeLocked(connectionID)
		s.mu.Unlock()
	default:
		log.ErrorWith("scheduled refresh failed to queue", err, nil)
	}
}
