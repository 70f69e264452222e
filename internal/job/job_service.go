package job

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/joshu-sajeev/transcribeq/common"
	"github.com/joshu-sajeev/transcribeq/internal/dto"
	"github.com/joshu-sajeev/transcribeq/internal/models"
	"github.com/joshu-sajeev/transcribeq/internal/storage/blob"
	"go.uber.org/zap"
)

type JobService struct {
	repo      JobRepoInterface
	publisher JobPublisher
	blobs     BlobWriter
	logger    *zap.Logger
}

func NewJobService(repo JobRepoInterface, publisher JobPublisher, blobs BlobWriter, logger *zap.Logger) *JobService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobService{repo: repo, publisher: publisher, blobs: blobs, logger: logger}
}

var _ JobServiceInterface = (*JobService)(nil)

// CreateJob stores the audio, records a queued job and dispatches it.
// A failed dispatch does not fail the request: the row is durable and the
// stale-job sweeper republishes it.
func (s *JobService) CreateJob(ctx context.Context, upload *dto.Upload) (*dto.JobResponseDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request canceled or timed out")
	}

	if len(upload.Data) == 0 {
		return nil, common.NewAPIError(http.StatusBadRequest, "validation failed", map[string]any{
			"file": "audio file is empty",
		})
	}

	key := blob.UploadKey(upload.Filename)
	if err := s.blobs.Put(ctx, key, upload.Data, upload.ContentType); err != nil {
		s.logger.Error("store upload", zap.String("key", key), zap.Error(err))
		return nil, mapContextError(err, "failed to store audio")
	}

	job, err := s.repo.Create(ctx, &dto.CreateJobInput{
		StorageKey:       key,
		OriginalFilename: upload.Filename,
		ContentType:      upload.ContentType,
		WebhookURL:       upload.WebhookURL,
	})
	if err != nil {
		s.logger.Error("create job", zap.String("key", key), zap.Error(err))
		return nil, mapContextError(err, "failed to add job to database")
	}

	if err := s.publisher.PublishJob(ctx, job.ID); err != nil {
		s.logger.Warn("dispatch job, leaving it for the sweeper", zap.String("job_id", job.ID), zap.Error(err))
	}

	return ToResponseDTO(job), nil
}

// GetJobByID retrieves a job by its ID from the repository.
// It maps repository errors to appropriate API errors
// (e.g., not found, timeout, or internal failure).
func (s *JobService) GetJobByID(ctx context.Context, id string) (*dto.JobResponseDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	job, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrJobNotFound) {
			return nil, common.Errf(http.StatusNotFound, "job not found")
		}
		return nil, mapContextError(err, "failed to get job")
	}

	return ToResponseDTO(job), nil
}

func mapContextError(err error, msg string) error {
	switch {
	case errors.Is(err, context.Canceled):
		return common.Errf(http.StatusRequestTimeout, "request was canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return common.Errf(http.StatusRequestTimeout, "request timeout")
	default:
		return common.Errf(http.StatusInternalServerError, "%s", msg)
	}
}

// ToResponseDTO converts a stored job into its API shape. Segments that fail
// to decode are reported as empty rather than failing the read.
func ToResponseDTO(job *models.Job) *dto.JobResponseDTO {
	segments := []dto.Segment{}
	if len(job.ResultSegments) > 0 {
		if err := json.Unmarshal(job.ResultSegments, &segments); err != nil || segments == nil {
			segments = []dto.Segment{}
		}
	}

	return &dto.JobResponseDTO{
		ID:               job.ID,
		Status:           job.Status,
		Attempts:         job.Attempts,
		StorageKey:       job.StorageKey,
		OriginalFilename: job.OriginalFilename,
		ContentType:      job.ContentType,
		WebhookURL:       job.WebhookURL,
		WebhookStatus:    job.WebhookStatus,
		ResultText:       job.ResultText,
		ResultLanguage:   job.ResultLanguage,
		ResultSegments:   segments,
		LastError:        job.LastError,
		CreatedAt:        job.CreatedAt,
		UpdatedAt:        job.UpdatedAt,
	}
}
