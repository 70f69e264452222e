package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joshu-sajeev/transcribeq/internal/app"
	"github.com/joshu-sajeev/transcribeq/internal/config"
	"github.com/joshu-sajeev/transcribeq/internal/logging"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "worker:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.RequireWhisper(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Queue.Driver == config.QueueDriverMemory {
		return fmt.Errorf("QUEUE_DRIVER=memory runs workers inside the api process")
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync()

	infra, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer infra.Close()

	workerPool := infra.NewWorkerPool()
	workerPool.Start()
	logger.Info("worker pool active",
		zap.Int("concurrency", cfg.Worker.Concurrency),
		zap.Int("max_attempts", cfg.Worker.MaxAttempts),
		zap.Duration("retry_delay", cfg.Queue.RetryDelay),
	)

	<-ctx.Done()
	logger.Info("shutting down, waiting for in-flight jobs")
	workerPool.Stop()
	logger.Info("shutdown complete")
	return nil
}
