package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/joshu-sajeev/transcribeq/common"
	"github.com/joshu-sajeev/transcribeq/internal/config"
	"github.com/joshu-sajeev/transcribeq/internal/dto"
	"github.com/joshu-sajeev/transcribeq/internal/job"
	"github.com/joshu-sajeev/transcribeq/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type JobRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

var _ job.JobRepoInterface = (*JobRepository)(nil)

var (
	terminalStatuses = []string{
		string(config.JobStatusCompleted),
		string(config.JobStatusDLQ),
	}
	// a job in any of these cannot be moved to processing
	unstartableStatuses = []string{
		string(config.JobStatusCompleted),
		string(config.JobStatusDLQ),
		string(config.JobStatusProcessing),
	}
)

// Create inserts a queued job with zero attempts and a pending webhook status.
// The id is generated here and never changes afterwards.
func (r *JobRepository) Create(ctx context.Context, in *dto.CreateJobInput) (*models.Job, error) {
	if in == nil || in.StorageKey == "" {
		return nil, fmt.Errorf("create job: storage key is required")
	}

	job := &models.Job{
		ID:               uuid.NewString(),
		Status:           string(config.JobStatusQueued),
		Attempts:         0,
		StorageKey:       in.StorageKey,
		OriginalFilename: optional(in.OriginalFilename),
		ContentType:      optional(in.ContentType),
		WebhookURL:       optional(in.WebhookURL),
		WebhookStatus:    string(config.WebhookStatusPending),
	}

	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

// Get retrieves a single job by id. A missing row is reported as
// common.ErrJobNotFound.
func (r *JobRepository) Get(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("get job %s: %w", id, common.ErrJobNotFound)
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

// MarkProcessing moves a queued or failed job to processing. Calling it on a
// job that is already processing matches no row and leaves it untouched.
func (r *JobRepository) MarkProcessing(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status NOT IN ?", id, unstartableStatuses).
		Updates(map[string]any{
			"status":     string(config.JobStatusProcessing),
			"updated_at": r.now(),
		}).Error
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	return nil
}

// MarkCompleted stores the transcript. The write is conditional on the job not
// being terminal, so a second completion (worker racing a provider push)
// never overwrites results that are already final.
func (r *JobRepository) MarkCompleted(ctx context.Context, id, text, language string, segments []dto.Segment) error {
	if segments == nil {
		segments = []dto.Segment{}
	}
	raw, err := json.Marshal(segments)
	if err != nil {
		return fmt.Errorf("mark completed: encode segments: %w", err)
	}

	err = r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status NOT IN ?", id, terminalStatuses).
		Updates(map[string]any{
			"status":          string(config.JobStatusCompleted),
			"result_text":     text,
			"result_language": language,
			"result_segments": datatypes.JSON(raw),
			"last_error":      nil,
			"updated_at":      r.now(),
		}).Error
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

// MarkFailed records a retryable failure. It reports false when the write
// matched no row because the job is already final or holds a higher attempt
// count.
func (r *JobRepository) MarkFailed(ctx context.Context, id, errMsg string, attempts int) (bool, error) {
	applied, err := r.fail(ctx, id, config.JobStatusFailed, errMsg, attempts)
	if err != nil {
		return false, fmt.Errorf("mark failed: %w", err)
	}
	return applied, nil
}

// MarkDlq records the final failure of a job that used up its attempts.
// Like MarkFailed it reports whether a row changed.
func (r *JobRepository) MarkDlq(ctx context.Context, id, errMsg string, attempts int) (bool, error) {
	applied, err := r.fail(ctx, id, config.JobStatusDLQ, errMsg, attempts)
	if err != nil {
		return false, fmt.Errorf("mark dlq: %w", err)
	}
	return applied, nil
}

// fail never lowers the stored attempt count, which keeps attempts monotonic
// when a stale delivery reports an older counter.
func (r *JobRepository) fail(ctx context.Context, id string, status config.JobStatus, errMsg string, attempts int) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status NOT IN ? AND attempts <= ?", id, terminalStatuses, attempts).
		Updates(map[string]any{
			"status":     string(status),
			"attempts":   attempts,
			"last_error": errMsg,
			"updated_at": r.now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkWebhookStatus finalises the callback state. Only pending may change,
// so delivered and failed never revert.
func (r *JobRepository) MarkWebhookStatus(ctx context.Context, id string, status config.WebhookStatus) error {
	if status != config.WebhookStatusDelivered && status != config.WebhookStatusFailed {
		return fmt.Errorf("mark webhook status: invalid target %q", status)
	}

	err := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND webhook_status = ?", id, string(config.WebhookStatusPending)).
		Updates(map[string]any{
			"webhook_status": string(status),
			"updated_at":     r.now(),
		}).Error
	if err != nil {
		return fmt.Errorf("mark webhook status: %w", err)
	}
	return nil
}

// ListStale returns up to limit jobs in status whose last mutation is older
// than olderThan, oldest first.
func (r *JobRepository) ListStale(ctx context.Context, status config.JobStatus, olderThan time.Time, limit int) ([]models.Job, error) {
	var jobs []models.Job
	q := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", string(status), olderThan).
		Order("updated_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list stale jobs: %w", err)
	}
	return jobs, nil
}

// ClaimStale bumps updated_at on a job that is still in status and older
// than olderThan. Only one caller can win the claim for a given staleness
// window, so a job is redispatched at most once per window.
func (r *JobRepository) ClaimStale(ctx context.Context, id string, status config.JobStatus, olderThan time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status = ? AND updated_at < ?", id, string(status), olderThan).
		Update("updated_at", r.now())
	if res.Error != nil {
		return false, fmt.Errorf("claim stale job: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
