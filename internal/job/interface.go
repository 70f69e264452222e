package job

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joshu-sajeev/transcribeq/internal/config"
	"github.com/joshu-sajeev/transcribeq/internal/dto"
	"github.com/joshu-sajeev/transcribeq/internal/models"
)

// JobRepoInterface is the durable job store. Mutators are idempotent under
// redelivery: status writes never leave completed or dlq, and a write that
// matches no row is not an error. Mutators returning a bool report whether
// a row actually changed.
type JobRepoInterface interface {
	Create(ctx context.Context, in *dto.CreateJobInput) (*models.Job, error)
	Get(ctx context.Context, id string) (*models.Job, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id, text, language string, segments []dto.Segment) error
	MarkFailed(ctx context.Context, id, errMsg string, attempts int) (bool, error)
	MarkDlq(ctx context.Context, id, errMsg string, attempts int) (bool, error)
	MarkWebhookStatus(ctx context.Context, id string, status config.WebhookStatus) error
	ListStale(ctx context.Context, status config.JobStatus, olderThan time.Time, limit int) ([]models.Job, error)
	ClaimStale(ctx context.Context, id string, status config.JobStatus, olderThan time.Time) (bool, error)
}

// JobPublisher hands a freshly created job to the broker.
type JobPublisher interface {
	PublishJob(ctx context.Context, jobID string) error
}

// BlobWriter stores uploaded audio.
type BlobWriter interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// JobServiceInterface defines the contract for job business logic operations.
type JobServiceInterface interface {
	CreateJob(ctx context.Context, upload *dto.Upload) (*dto.JobResponseDTO, error)
	GetJobByID(ctx context.Context, id string) (*dto.JobResponseDTO, error)
}

// JobHandlerInterface defines the contract for HTTP request handlers.
type JobHandlerInterface interface {
	Create(c *gin.Context)
	Get(c *gin.Context)
}
