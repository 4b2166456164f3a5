// Package main wires together the lead engine server binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/acreleads/realtime-lead-engine/internal/api"
	"github.com/acreleads/realtime-lead-engine/internal/broadcast"
	"github.com/acreleads/realtime-lead-engine/internal/broadcast/sinks"
	"github.com/acreleads/realtime-lead-engine/internal/clock/system"
	"github.com/acreleads/realtime-lead-engine/internal/config"
	"github.com/acreleads/realtime-lead-engine/internal/dispatcher"
	"github.com/acreleads/realtime-lead-engine/internal/id/uuid"
	"github.com/acreleads/realtime-lead-engine/internal/logging"
	"github.com/acreleads/realtime-lead-engine/internal/metrics"
	queueMemory "github.com/acreleads/realtime-lead-engine/internal/queue/memory"
	"github.com/acreleads/realtime-lead-engine/internal/runner"
	memoryStorage "github.com/acreleads/realtime-lead-engine/internal/storage/memory"
	"github.com/acreleads/realtime-lead-engine/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()
	idGen := uuid.New()
	jobStore := memoryStorage.NewJobStore(clock)
	propStore := memoryStorage.NewPropertyStore(clock)

	promSink, err := sinks.NewPrometheusSink(nil)
	if err != nil {
		logger.Fatal("broadcast metrics init failed", zap.Error(err))
	}
	hub := broadcast.NewHub(
		logger.Named("hub"),
		sinks.NewLogSink(logger.Named("events")),
		promSink,
	)

	runnerClient := runner.New(runner.Config{
		BaseURL:           cfg.Runner.BaseURL,
		APIKey:            cfg.Runner.APIKey,
		WebhookAuthHeader: cfg.Runner.WebhookAuthHeader,
		WebhookAuthToken:  cfg.Runner.WebhookAuthToken,
		Timeout:           cfg.RunnerTimeout(),
	}, logger.Named("runner"))

	queue := queueMemory.NewQueue(cfg.Dispatch.QueueDepth)
	var workers []*worker.Worker
	for i := 0; i < cfg.Dispatch.Workers; i++ {
		workers = append(workers, worker.New(
			queue,
			jobStore,
			runnerClient,
			hub,
			clock,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(queue, workers)

	apiServer := api.NewServer(jobStore, propStore, dispatch, hub, idGen, clock, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started", zap.Int("workers", cfg.Dispatch.Workers))
		dispatch.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	hub.Close()
	queue.Close()
}
