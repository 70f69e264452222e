package mocks

import (
	"context"
	"time"

	"github.com/joshu-sajeev/transcribeq/internal/config"
	"github.com/joshu-sajeev/transcribeq/internal/dto"
	"github.com/joshu-sajeev/transcribeq/internal/models"
	"github.com/stretchr/testify/mock"
)

type JobRepoMock struct {
	mock.Mock
}

func (m *JobRepoMock) Create(ctx context.Context, in *dto.CreateJobInput) (*models.Job, error) {
	args := m.Called(ctx, in)

	job, _ := args.Get(0).(*models.Job)
	return job, args.Error(1)
}

func (m *JobRepoMock) Get(ctx context.Context, id string) (*models.Job, error) {
	args := m.Called(ctx, id)

	job, _ := args.Get(0).(*models.Job)
	return job, args.Error(1)
}

func (m *JobRepoMock) MarkProcessing(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *JobRepoMock) MarkCompleted(ctx context.Context, id, text, language string, segments []dto.Segment) error {
	args := m.Called(ctx, id, text, language, segments)
	return args.Error(0)
}

func (m *JobRepoMock) MarkFailed(ctx context.Context, id, errMsg string, attempts int) (bool, error) {
	args := m.Called(ctx, id, errMsg, attempts)
	return args.Bool(0), args.Error(1)
}

func (m *JobRepoMock) MarkDlq(ctx context.Context, id, errMsg string, attempts int) (bool, error) {
	args := m.Called(ctx, id, errMsg, attempts)
	return args.Bool(0), args.Error(1)
}

func (m *JobRepoMock) MarkWebhookStatus(ctx context.Context, id string, status config.WebhookStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *JobRepoMock) ListStale(ctx context.Context, status config.JobStatus, olderThan time.Time, limit int) ([]models.Job, error) {
	args := m.Called(ctx, status, olderThan, limit)

	jobs, _ := args.Get(0).([]models.Job)
	return jobs, args.Error(1)
}

func (m *JobRepoMock) ClaimStale(ctx context.Context, id string, status config.JobStatus, olderThan time.Time) (bool, error) {
	args := m.Called(ctx, id, status, olderThan)
	return args.Bool(0), args.Error(1)
}
