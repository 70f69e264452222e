package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joshu-sajeev/transcribeq/internal/app"
	"github.com/joshu-sajeev/transcribeq/internal/config"
	"github.com/joshu-sajeev/transcribeq/internal/job"
	"github.com/joshu-sajeev/transcribeq/internal/logging"
	"github.com/joshu-sajeev/transcribeq/internal/server"
	"github.com/joshu-sajeev/transcribeq/internal/webhook"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "api:", err)
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

	// With the in-process broker nothing else can consume, so the api runs
	// the worker pool itself.
	if cfg.Queue.Driver == config.QueueDriverMemory {
		if err := cfg.RequireWhisper(); err != nil {
			return fmt.Errorf("memory queue driver runs workers in the api: %w", err)
		}
		inline := infra.NewWorkerPool()
		inline.Start()
		defer inline.Stop()
		logger.Info("inline worker pool started", zap.Int("concurrency", cfg.Worker.Concurrency))
	}

	jobService := job.NewJobService(infra.Repo, infra.Broker, infra.Blobs, logging.Component(logger, "jobs"))
	ingress := webhook.NewIngressService(infra.Repo, logging.Component(logger, "ingress"))

	gin.SetMode(gin.ReleaseMode)
	router := server.NewRouter(
		job.NewJobHandler(jobService, cfg.Upload.MaxBytes),
		webhook.NewIngressHandler(ingress, cfg.Webhook.Secret, cfg.Webhook.VerifyIngress),
		logging.Component(logger, "http"),
	)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	return nil
}
