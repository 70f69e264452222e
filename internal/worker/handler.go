package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/joshu-sajeev/transcribeq/common"
	"github.com/joshu-sajeev/transcribeq/internal/config"
	"github.com/joshu-sajeev/transcribeq/internal/dto"
	"github.com/joshu-sajeev/transcribeq/internal/models"
	"go.uber.org/zap"
)

// HandleJob processes one dispatch message. A nil return settles the message
// even when the job itself failed; only job store and broker errors are
// returned.
func (w *Worker) HandleJob(ctx context.Context, jobID string) error {
	log := w.logger.With(zap.String("job_id", jobID))

	j, err := w.store.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, common.ErrJobNotFound) {
			log.Warn("job not found, dropping message")
			return nil
		}
		return fmt.Errorf("load job: %w", err)
	}

	if config.JobStatus(j.Status).IsTerminal() {
		log.Debug("job already final, skipping", zap.String("status", j.Status))
		return nil
	}

	if err := w.store.MarkProcessing(ctx, j.ID); err != nil {
		return fmt.Errorf("start job: %w", err)
	}

	result, err := w.transcribe(ctx, j)
	if err != nil {
		return w.fail(ctx, log, j, err)
	}

	if err := w.store.MarkCompleted(ctx, j.ID, result.Text, result.Language, result.Segments); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	log.Info("job completed", zap.String("language", result.Language), zap.Int("segments", len(result.Segments)))

	if j.WebhookURL == nil || *j.WebhookURL == "" {
		return nil
	}
	return w.notify(ctx, log, j, result)
}

func (w *Worker) transcribe(ctx context.Context, j *models.Job) (*dto.TranscriptionResult, error) {
	data, err := w.blobs.Get(ctx, j.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("download audio: %w", err)
	}

	filename := "audio"
	if j.OriginalFilename != nil && *j.OriginalFilename != "" {
		filename = *j.OriginalFilename
	}
	var contentType string
	if j.ContentType != nil {
		contentType = *j.ContentType
	}

	result, err := w.transcriber.Transcribe(ctx, data, filename, contentType)
	if err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}
	if result == nil {
		return nil, fmt.Errorf("transcribe: empty result")
	}
	return result, nil
}

// fail counts the attempt and routes the job. Retries and dead letters both
// go through the broker so the redelivery delay is owned by the queue. When
// the row was settled by someone else meanwhile nothing is published.
func (w *Worker) fail(ctx context.Context, log *zap.Logger, j *models.Job, cause error) error {
	attempts := j.Attempts + 1
	msg := cause.Error()

	if attempts >= w.maxAttempts {
		applied, err := w.store.MarkDlq(ctx, j.ID, msg, attempts)
		if err != nil {
			return fmt.Errorf("dead-letter job: %w", err)
		}
		if !applied {
			log.Info("job settled concurrently, dead letter skipped", zap.Int("attempts", attempts))
			return nil
		}
		if err := w.publisher.PublishDlq(ctx, j.ID); err != nil {
			return fmt.Errorf("dead-letter job: %w", err)
		}
		log.Error("job dead-lettered", zap.Int("attempts", attempts), zap.Error(cause))
		return nil
	}

	applied, err := w.store.MarkFailed(ctx, j.ID, msg, attempts)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	if !applied {
		log.Info("job settled concurrently, retry skipped", zap.Int("attempts", attempts))
		return nil
	}
	if err := w.publisher.PublishRetry(ctx, j.ID); err != nil {
		return fmt.Errorf("schedule retry: %w", err)
	}
	log.Warn("job failed, retry scheduled", zap.Int("attempts", attempts), zap.Error(cause))
	return nil
}

// notify makes one delivery attempt. Its outcome only touches webhook_status.
func (w *Worker) notify(ctx context.Context, log *zap.Logger, j *models.Job, result *dto.TranscriptionResult) error {
	payload := &dto.WebhookPayload{
		JobID:  j.ID,
		Status: string(config.JobStatusCompleted),
		Result: result,
	}

	status := config.WebhookStatusDelivered
	if err := w.notifier.Deliver(ctx, *j.WebhookURL, payload); err != nil {
		log.Warn("webhook delivery failed", zap.String("url", *j.WebhookURL), zap.Error(err))
		status = config.WebhookStatusFailed
	}

	if err := w.store.MarkWebhookStatus(ctx, j.ID, status); err != nil {
		return fmt.Errorf("record webhook status: %w", err)
	}
	return nil
}
