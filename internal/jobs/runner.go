package jobs

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/openportal/datainsight/internal/errs"
	"github.com/openportal/datainsight/internal/logger"
)

const (
	// DefaultWorkers bounds how many ingestion runs execute at once.
	// Each run holds open HTTP connections and a record batch in memory.
	DefaultWorkers = 2

	// DefaultQueueSize is the enqueue buffer; a full queue rejects new
	// triggers instead of blocking the request path.
	DefaultQueueSize = 64
)

// Runner is a fixed worker pool that executes queued ingestion jobs.
type Runner struct {
	workers int
	queue   chan uuid.UUID
	log     *logger.Logger
	wg      sync.WaitGroup

	mu      sync.Mutex
	started bool
	closed  bool
}

// NewRunner builds a Runner. Non-positive arguments fall back to the
// defaults.
func NewRunner(workers, queueSize int, log *logger.Logger) *Runner {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if log == nil {
		log = logger.New(nil)
	}
	return &Runner{
		workers: workers,
		queue:   make(chan uuid.UUID, queueSize),
		log:     log,
	}
}

// Start launches the worker goroutines. run is invoked once per queued
// job id; it must handle its own errors (the pool only dispatches).
func (r *Runner) Start(run func(ctx context.Context, jobID uuid.UUID)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true

	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			for jobID := range r.queue {
				run(context.Background(), jobID)
			}
		}()
	}
	r.log.With().Int("workers", r.workers).Logger().Info("job runner started")
}

// Enqueue hands a job to the pool. It never blocks: a stopped runner or
// a full queue is reported as a conflict so the caller can surface it.
func (r *Runner) Enqueue(jobID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errs.New(errs.ErrKindConflict, "job runner is shut down")
	}
	select {
	case r.queue <- jobID:
		return nil
	default:
		return errs.New(errs.ErrKindConflict, "ingestion queue is full")
	}
}

// Stop drains the queue and waits for in-flight runs to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
	r.log.Info("job runner stopped")
}
