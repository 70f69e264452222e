package worker

import (
	"context"

	"github.com/joshu-sajeev/transcribeq/internal/dto"
	"github.com/joshu-sajeev/transcribeq/internal/job"
	"github.com/joshu-sajeev/transcribeq/internal/queue"
	"go.uber.org/zap"
)

// Publisher routes a failed job either to the delayed retry queue or to the
// dead-letter queue.
type Publisher interface {
	PublishRetry(ctx context.Context, jobID string) error
	PublishDlq(ctx context.Context, jobID string) error
}

type BlobReader interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, data []byte, filename, contentType string) (*dto.TranscriptionResult, error)
}

type Notifier interface {
	Deliver(ctx context.Context, url string, payload *dto.WebhookPayload) error
}

type Deps struct {
	Store       job.JobRepoInterface
	Publisher   Publisher
	Blobs       BlobReader
	Transcriber Transcriber
	Notifier    Notifier
	MaxAttempts int
	Logger      *zap.Logger
}

// Worker runs the per-job state machine. It holds no per-job state, so one
// Worker can serve any number of concurrent consumers.
type Worker struct {
	store       job.JobRepoInterface
	publisher   Publisher
	blobs       BlobReader
	transcriber Transcriber
	notifier    Notifier
	maxAttempts int
	logger      *zap.Logger
}

var _ queue.Handler = (*Worker)(nil).HandleJob

func NewWorker(d Deps) *Worker {
	if d.MaxAttempts < 1 {
		d.MaxAttempts = 1
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Worker{
		store:       d.Store,
		publisher:   d.Publisher,
		blobs:       d.Blobs,
		transcriber: d.Transcriber,
		notifier:    d.Notifier,
		maxAttempts: d.MaxAttempts,
		logger:      d.Logger,
	}
}
