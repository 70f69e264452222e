package config

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	HTTPAddr  string `env:"HTTP_ADDR,default=:8080"`
	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`

	Queue   QueueConfig
	Worker  WorkerConfig
	Webhook WebhookConfig
	Whisper WhisperConfig
	Blob    BlobConfig
	Upload  UploadConfig
}

type QueueConfig struct {
	Driver     string        `env:"QUEUE_DRIVER,default=rabbitmq"`
	URL        string        `env:"RABBITMQ_URL"`
	RetryDelay time.Duration `env:"RETRY_DELAY,default=60s"`
}

type WorkerConfig struct {
	MaxAttempts     int           `env:"MAX_ATTEMPTS,default=3"`
	Concurrency     int           `env:"WORKER_CONCURRENCY,default=1"`
	SweepInterval   time.Duration `env:"SWEEP_INTERVAL,default=5m"`
	SweepStaleAfter time.Duration `env:"SWEEP_STALE_AFTER,default=30m"`
}

type WebhookConfig struct {
	Secret        string        `env:"WEBHOOK_SECRET"`
	Timeout       time.Duration `env:"WEBHOOK_TIMEOUT,default=10s"`
	VerifyIngress bool          `env:"WEBHOOK_VERIFY_INGRESS,default=false"`
}

type WhisperConfig struct {
	BaseURL string        `env:"WHISPER_BASE_URL"`
	Timeout time.Duration `env:"WHISPER_TIMEOUT,default=0s"`
}

type BlobConfig struct {
	Driver    string `env:"BLOB_DRIVER,default=s3"`
	Region    string `env:"SPACES_REGION"`
	Endpoint  string `env:"SPACES_ENDPOINT"`
	AccessKey string `env:"SPACES_KEY"`
	SecretKey string `env:"SPACES_SECRET"`
	Bucket    string `env:"SPACES_BUCKET"`
	PathStyle bool   `env:"SPACES_PATH_STYLE,default=false"`
	DiskRoot  string `env:"BLOB_DISK_ROOT,default=./data/blobs"`
}

type UploadConfig struct {
	MaxBytes int64 `env:"MAX_UPLOAD_BYTES,default=104857600"`
}

// to help with testing
var envProcess = envconfig.Process

// Load reads the process configuration from the environment. Role-specific
// requirements (the worker needs WHISPER_BASE_URL, the API does not) are
// checked separately through RequireWhisper.
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envProcess(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func validateConfig(cfg *Config) error {
	var errors []string

	if strings.TrimSpace(cfg.HTTPAddr) == "" {
		errors = append(errors, "HTTP_ADDR is required")
	}

	if !slices.Contains([]string{"json", "console"}, cfg.LogFormat) {
		errors = append(errors, "LOG_FORMAT must be json or console")
	}

	switch cfg.Queue.Driver {
	case QueueDriverRabbitMQ:
		if strings.TrimSpace(cfg.Queue.URL) == "" {
			errors = append(errors, "RABBITMQ_URL is required")
		}
	case QueueDriverMemory:
	default:
		errors = append(errors, "QUEUE_DRIVER must be rabbitmq or memory")
	}

	// The retry TTL is expressed in whole milliseconds on the queue.
	if cfg.Queue.RetryDelay < time.Millisecond {
		errors = append(errors, "RETRY_DELAY must be at least 1ms")
	}

	if cfg.Worker.MaxAttempts < 1 {
		errors = append(errors, "MAX_ATTEMPTS must be at least 1")
	}

	if cfg.Worker.Concurrency < 1 {
		errors = append(errors, "WORKER_CONCURRENCY must be at least 1")
	}

	if cfg.Worker.SweepInterval < 0 || cfg.Worker.SweepStaleAfter < 0 {
		errors = append(errors, "SWEEP_INTERVAL and SWEEP_STALE_AFTER must be non-negative")
	}

	// The sweeper also redispatches failed jobs, which would cut a parked
	// retry short.
	if cfg.Worker.SweepInterval > 0 && cfg.Worker.SweepStaleAfter <= cfg.Queue.RetryDelay {
		errors = append(errors, "SWEEP_STALE_AFTER must exceed RETRY_DELAY")
	}

	if cfg.Webhook.Timeout <= 0 {
		errors = append(errors, "WEBHOOK_TIMEOUT must be positive")
	}

	if cfg.Webhook.VerifyIngress && cfg.Webhook.Secret == "" {
		errors = append(errors, "WEBHOOK_VERIFY_INGRESS requires WEBHOOK_SECRET")
	}

	if cfg.Whisper.BaseURL != "" {
		if u, err := url.Parse(cfg.Whisper.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, "WHISPER_BASE_URL must be an absolute URL")
		}
	}

	switch cfg.Blob.Driver {
	case BlobDriverS3:
		for env, v := range map[string]string{
			"SPACES_REGION":   cfg.Blob.Region,
			"SPACES_ENDPOINT": cfg.Blob.Endpoint,
			"SPACES_KEY":      cfg.Blob.AccessKey,
			"SPACES_SECRET":   cfg.Blob.SecretKey,
			"SPACES_BUCKET":   cfg.Blob.Bucket,
		} {
			if strings.TrimSpace(v) == "" {
				errors = append(errors, env+" is required")
			}
		}
	case BlobDriverDisk:
		if strings.TrimSpace(cfg.Blob.DiskRoot) == "" {
			errors = append(errors, "BLOB_DISK_ROOT is required")
		}
	default:
		errors = append(errors, "BLOB_DRIVER must be s3 or disk")
	}

	if cfg.Upload.MaxBytes <= 0 {
		errors = append(errors, "MAX_UPLOAD_BYTES must be positive")
	}

	if len(errors) > 0 {
		slices.Sort(errors)
		return fmt.Errorf("%s", strings.Join(errors, "; "))
	}

	return nil
}

// RequireWhisper fails when the transcription backend is not configured.
func (c *Config) RequireWhisper() error {
	if strings.TrimSpace(c.Whisper.BaseURL) == "" {
		return fmt.Errorf("WHISPER_BASE_URL is required")
	}
	return nil
}
