// Package api exposes the REST surface: connection management, ingestion
// triggers, job polling, and dataset Q&A.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/openportal/datainsight/internal/ingest"
	"github.com/openportal/datainsight/internal/jobs"
	"github.com/openportal/datainsight/internal/logger"
	"github.com/openportal/datainsight/internal/store"
)

// Server holds the handler dependencies. The scheduler is optional;
// without it, refresh cron expressions are stored but never fire.
type Server struct {
	repo   store.Repository
	tester *ingest.Tester
	svc    *jobs.Service
	sched  *jobs.Scheduler
	log    *logger.Logger
}

// NewServer wires the REST layer.
func NewServer(repo store.Repository, tester *ingest.Tester, svc *jobs.Service, sched *jobs.Scheduler, log *logger.Logger) *Server {
	if log == nil {
		log = logger.New(nil)
	}
	return &Server{repo: repo, tester: tester, svc: svc, sched: sched, log: log}
}

// Router builds the chi routing tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/connections", func(r chi.Router) {
		r.Post("/test", s.handleTestConnection)
		r.Post("/", s.handleCreateConnection)
		r.Get("/", s.handleListConnections)

		r.Route("/{connectionID}", func(r chi.Router) {
			r.Get("/", s.handleGetConnection)
			r.Post("/ingest", s.handleTriggerIngestion)
			r.Get("/ingest/{jobID}", s.handleGetJob)
			r.Post("/analysis", s.handleAnalysis)
		})
	})

	return r
}

// requestLogger emits one structured line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.log.With().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Logger().Info("request handled")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
