// Package app wires shared infrastructure for the api and worker processes.
package app

import (
	"context"
	"fmt"

	"github.com/joshu-sajeev/transcribeq/internal/config"
	"github.com/joshu-sajeev/transcribeq/internal/logging"
	"github.com/joshu-sajeev/transcribeq/internal/pool"
	"github.com/joshu-sajeev/transcribeq/internal/queue"
	"github.com/joshu-sajeev/transcribeq/internal/storage/blob"
	"github.com/joshu-sajeev/transcribeq/internal/storage/postgres"
	"github.com/joshu-sajeev/transcribeq/internal/transcription"
	"github.com/joshu-sajeev/transcribeq/internal/webhook"
	"github.com/joshu-sajeev/transcribeq/internal/worker"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Infra holds the process-wide resources. Close releases them in reverse
// order of creation: broker first, database last.
type Infra struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *gorm.DB
	Repo   *postgres.JobRepository
	Broker queue.Broker
	Blobs  blob.Store
}

func Setup(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Infra, error) {
	dbCfg, err := postgres.LoadConfigFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("load database config: %w", err)
	}

	db, err := postgres.ConnectDB(ctx, dbCfg, logging.Component(logger, "postgres"))
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if dbCfg.AutoMigrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			closeDB(db)
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		logger.Info("database migrations applied")
	}

	blobs, err := NewBlobStore(cfg.Blob)
	if err != nil {
		closeDB(db)
		return nil, err
	}

	return &Infra{
		Config: cfg,
		Logger: logger,
		DB:     db,
		Repo:   postgres.NewJobRepository(db),
		Broker: NewBroker(cfg.Queue, logging.Component(logger, "queue")),
		Blobs:  blobs,
	}, nil
}

func NewBroker(cfg config.QueueConfig, logger *zap.Logger) queue.Broker {
	if cfg.Driver == config.QueueDriverMemory {
		return queue.NewMemoryBroker(cfg.RetryDelay, logger)
	}
	return queue.NewRabbitBroker(cfg.URL, cfg.RetryDelay, logger)
}

func NewBlobStore(cfg config.BlobConfig) (blob.Store, error) {
	if cfg.Driver == config.BlobDriverDisk {
		store, err := blob.NewDiskStore(cfg.DiskRoot)
		if err != nil {
			return nil, fmt.Errorf("open blob store: %w", err)
		}
		return store, nil
	}
	return blob.NewS3Store(cfg), nil
}

// NewWorkerPool builds the consumer pool around a Worker wired to the
// transcription backend and the webhook notifier.
func (i *Infra) NewWorkerPool() *pool.WorkerPool {
	cfg := i.Config
	w := worker.NewWorker(worker.Deps{
		Store:       i.Repo,
		Publisher:   i.Broker,
		Blobs:       i.Blobs,
		Transcriber: transcription.NewClient(cfg.Whisper.BaseURL, cfg.Whisper.Timeout),
		Notifier:    webhook.NewNotifier(cfg.Webhook.Secret, cfg.Webhook.Timeout),
		MaxAttempts: cfg.Worker.MaxAttempts,
		Logger:      logging.Component(i.Logger, "worker"),
	})
	return pool.NewWorkerPool(i.Broker, i.Repo, w.HandleJob, pool.Options{
		Concurrency:   cfg.Worker.Concurrency,
		SweepInterval: cfg.Worker.SweepInterval,
		StaleAfter:    cfg.Worker.SweepStaleAfter,
	}, logging.Component(i.Logger, "pool"))
}

func (i *Infra) Close() {
	if err := i.Broker.Close(); err != nil {
		i.Logger.Warn("close broker", zap.Error(err))
	}
	closeDB(i.DB)
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
