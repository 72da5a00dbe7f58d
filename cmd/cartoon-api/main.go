package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ahmethakanbesel/cartoon-api/internal/config"
	"github.com/ahmethakanbesel/cartoon-api/internal/events/kafka"
	"github.com/ahmethakanbesel/cartoon-api/internal/job"
	"github.com/ahmethakanbesel/cartoon-api/internal/logging"
	"github.com/ahmethakanbesel/cartoon-api/internal/metrics"
	"github.com/ahmethakanbesel/cartoon-api/internal/platform/sqlite"
	jobrepo "github.com/ahmethakanbesel/cartoon-api/internal/repository/job"
	"github.com/ahmethakanbesel/cartoon-api/internal/server"
	"github.com/ahmethakanbesel/cartoon-api/internal/storage"
	"github.com/ahmethakanbesel/cartoon-api/internal/transform"
	"github.com/ahmethakanbesel/cartoon-api/internal/transform/cloudinary"
	"github.com/ahmethakanbesel/cartoon-api/internal/transform/local"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logging.Configure(logging.Options{
		Level: cfg.Logging.Level,
		JSON:  cfg.Logging.JSON,
	})

	// Root context: cancelled on SIGINT/SIGTERM so in-flight transforms
	// stop promptly during graceful shutdown.
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	a, err := newApp(cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// Jobs left processing by a previous process can never finish.
	if err := a.jobSvc.FailStaleJobs(rootCtx); err != nil {
		slog.Error("failed to fail stale jobs", "error", err)
	}

	poolDone := make(chan struct{})
	go func() {
		a.pool.Run(rootCtx)
		close(poolDone)
	}()
	go a.jobSvc.RunRetention(rootCtx, cfg.Jobs.Retention, cfg.Jobs.RetentionInterval)

	// HTTP server: rootCtx is used as BaseContext so every request context
	// inherits from it and is cancelled on shutdown.
	srv := server.New(rootCtx, cfg.Server.Port, a.jobSvc, a.serverOpts)

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("server started", "port", cfg.Server.Port, "workers", cfg.Jobs.Workers, "store", cfg.Jobs.Store)
	<-done

	// Cancel root context first so running transforms fail with a
	// cancellation message and queued jobs are marked failed.
	rootCancel()

	// Wait for worker pool to drain before shutting down HTTP.
	<-poolDone

	// Then drain connections with a deadline.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	slog.Info("server stopped")
}

// app holds the wired components; the caller runs the pool and the server.
type app struct {
	jobSvc     *job.Service
	pool       *job.WorkerPool
	serverOpts server.Options
	closers    []io.Closer
}

func newApp(cfg *config.Config) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	// Job store
	jobRepo, closeStore, err := openStore(cfg.Jobs)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	a.closers = append(a.closers, closeStore)

	// Output storage
	outputs, err := storage.NewLocal(cfg.Storage.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("prepare output dir: %w", err)
	}

	transformer, err := newTransformer(cfg, outputs)
	if err != nil {
		return nil, err
	}
	slog.Info("transformer selected", "name", transformer.Name())

	// Observers: metrics always, lifecycle events when brokers are configured
	rec := metrics.New()
	observers := job.Observers{rec}
	if brokers := cfg.Kafka.BrokerList(); len(brokers) > 0 {
		pub, err := kafka.New(kafka.Config{Brokers: brokers, Topic: cfg.Kafka.Topic})
		if err != nil {
			return nil, fmt.Errorf("connect to kafka: %w", err)
		}
		a.closers = append(a.closers, pub)
		observers = append(observers, pub)
		slog.Info("publishing job events", "brokers", brokers, "topic", cfg.Kafka.Topic)
	}

	// Worker pool: runs dispatched transforms in the background
	runner := job.NewRunner(jobRepo, transformer,
		job.WithTimeout(cfg.Jobs.Timeout),
		job.WithObserver(observers),
	)
	a.pool = job.NewWorkerPool(runner, cfg.Jobs.Workers, cfg.Jobs.QueueSize)
	a.jobSvc = job.NewService(jobRepo, a.pool)
	a.jobSvc.SetObserver(observers)

	a.serverOpts = server.Options{
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		OutputDir:      outputs.Dir(),
		CORSOrigins:    cfg.Server.Origins(),
		Metrics:        rec.Handler(),
	}
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			slog.Error("close", "error", err)
		}
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func openStore(cfg config.JobsConfig) (job.Repository, io.Closer, error) {
	switch cfg.Store {
	case "memory":
		return jobrepo.NewMemoryRepository(), nopCloser{}, nil
	case "sqlite":
		db, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return jobrepo.NewRepository(db.DB), db, nil
	default:
		return nil, nil, fmt.Errorf("unknown job store %q", cfg.Store)
	}
}

// newTransformer registers the available transformers and picks the
// configured one.
func newTransformer(cfg *config.Config, outputs *storage.Local) (job.Transformer, error) {
	registry := transform.NewRegistry()
	registry.Register(local.New(outputs, local.WithPublicBaseURL(cfg.Server.PublicBaseURL)))
	if cfg.Cloudinary.Enabled() {
		cld, err := cloudinary.New(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret,
			cloudinary.WithFolder(cfg.Cloudinary.Folder))
		if err != nil {
			return nil, fmt.Errorf("configure cloudinary: %w", err)
		}
		registry.Register(cld)
	}
	t, err := registry.Select(cfg.Transform.Provider)
	if err != nil {
		return nil, fmt.Errorf("%w (registered: %v)", err, registry.Names())
	}
	return t, nil
}
