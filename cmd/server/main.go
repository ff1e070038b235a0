// Command server runs the open-data ingestion and insight service.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openportal/datainsight/internal/api"
	"github.com/openportal/datainsight/internal/archive"
	archiveminio "github.com/openportal/datainsight/internal/archive/minio"
	"github.com/openportal/datainsight/internal/config"
	"github.com/openportal/datainsight/internal/ingest"
	"github.com/openportal/datainsight/internal/insight"
	"github.com/openportal/datainsight/internal/jobs"
	"github.com/openportal/datainsight/internal/logger"
	"github.com/openportal/datainsight/internal/store"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.New(nil).Fatal(err.Error())
	}

	log := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		TimeFormat: "rfc3339",
		Output:     os.Stdout,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := store.Open(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatal("opening repository: " + err.Error())
	}
	defer repo.Close()

	var artifacts archive.Store
	if cfg.Archive.Enabled() {
		artifacts, err = archiveminio.New(ctx, archive.Config{
			Endpoint:  cfg.Archive.Endpoint,
			Bucket:    cfg.Archive.Bucket,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			UseSSL:    cfg.Archive.UseSSL,
			Region:    cfg.Archive.Region,
		})
		if err != nil {
			log.Fatal("connecting to archive: " + err.Error())
		}
		defer artifacts.Close()
		log.With().Str("endpoint", cfg.Archive.Endpoint).Logger().Info("summary archive enabled")
	}

	var answerer insight.Answerer
	insightCfg := insight.Config{
		BaseURL: cfg.Insight.BaseURL,
		Model:   cfg.Insight.Model,
		APIKey:  cfg.Insight.APIKey,
	}
	if insightCfg.Enabled() {
		answerer = insight.NewClient(insightCfg, nil)
		log.Info("insight Q&A enabled")
	}

	runner := jobs.NewRunner(cfg.Jobs.Workers, cfg.Jobs.QueueSize, log)
	svc := jobs.NewService(jobs.Deps{
		Repository: repo,
		Collector:  ingest.NewPager(nil, log),
		Archive:    artifacts,
		Answerer:   answerer,
		Runner:     runner,
		Log:        log,
	})
	runner.Start(svc.RunJob)
	defer runner.Stop()

	var sched *jobs.Scheduler
	if cfg.Scheduler.Enabled {
		sched = jobs.NewScheduler(svc, repo, log)
		if err := sched.Sync(ctx); err != nil {
			log.ErrorWith("syncing refresh schedules", err, nil)
		}
		sched.Start()
		defer sched.Stop()
	}

	server := api.NewServer(repo, ingest.NewTester(nil), svc, sched, log)
	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.With().Str("addr", cfg.Server.ListenAddr).Logger().Info("http server listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown: " + err.Error())
	}
}
