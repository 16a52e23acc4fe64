// Command server runs the FutureSelf backend: the HTTP API, the job-queue
// worker pool, and the maintenance scheduler in one process.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fsyrachel/FurtureSelf-V1/internal/chat"
	"github.com/fsyrachel/FurtureSelf-V1/internal/config"
	"github.com/fsyrachel/FurtureSelf-V1/internal/database"
	"github.com/fsyrachel/FurtureSelf-V1/internal/gemini"
	"github.com/fsyrachel/FurtureSelf-V1/internal/letter"
	"github.com/fsyrachel/FurtureSelf-V1/internal/logging"
	"github.com/fsyrachel/FurtureSelf-V1/internal/memory"
	"github.com/fsyrachel/FurtureSelf-V1/internal/queue"
	"github.com/fsyrachel/FurtureSelf-V1/internal/report"
	"github.com/fsyrachel/FurtureSelf-V1/internal/scheduler"
	"github.com/fsyrachel/FurtureSelf-V1/internal/server"
	"github.com/fsyrachel/FurtureSelf-V1/internal/user"
	"github.com/fsyrachel/FurtureSelf-V1/internal/worker"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.Configure(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.CloseDB(db)

	genClient, err := gemini.NewClient(ctx, cfg.Gemini, cfg.Memory.EmbeddingDim, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize gemini client: %w", err)
	}

	store := database.NewStore(db, logger)
	memStore := memory.NewStore(db, genClient, cfg.Memory, logger)
	jobQueue := queue.New(db, logger)

	userSvc := user.NewService(store, memStore, logger)
	letterSvc := letter.NewService(store, memStore, jobQueue, logger)
	chatSvc := chat.NewService(store, memStore, genClient, cfg.Chat, logger)
	reportSvc := report.NewService(store, jobQueue, logger)

	policy := queue.RetryPolicy{MaxAttempts: cfg.Queue.MaxAttempts, BaseDelay: cfg.Queue.BackoffBase}
	runner := queue.NewRunner(jobQueue, policy, cfg.Queue.Workers, cfg.Queue.PollInterval, logger)
	deps := worker.Deps{Store: store, Gen: genClient, Logger: logger}
	runner.Register(worker.JobGenerateLetterReplies, worker.NewLetterRepliesHandler(deps))
	runner.Register(worker.JobGenerateReport, worker.NewReportHandler(deps))

	sched, err := scheduler.New(logger)
	if err != nil {
		return err
	}
	err = sched.AddDurationTask("requeue-stale-jobs", time.Minute, func(ctx context.Context) error {
		_, err := jobQueue.ReapStale(ctx, cfg.Queue.LeaseTimeout)
		return err
	})
	if err != nil {
		return err
	}
	if err := sched.AddCronTask("database-maintenance", "0 3 * * *", store.RunSQLMaintenance); err != nil {
		return err
	}
	sched.Start()
	defer func() {
		if err := sched.Stop(); err != nil {
			logger.Error("Scheduler shutdown failed", "error", err)
		}
	}()

	handler := server.NewHandler(userSvc, letterSvc, chatSvc, reportSvc, logger)
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return runner.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server stopped successfully")
	return nil
}
