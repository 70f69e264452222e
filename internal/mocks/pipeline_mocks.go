package mocks

import (
	"context"

	"github.com/joshu-sajeev/transcribeq/internal/dto"
	"github.com/joshu-sajeev/transcribeq/internal/queue"
	"github.com/stretchr/testify/mock"
)

type BrokerMock struct {
	mock.Mock
}

func (m *BrokerMock) PublishJob(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *BrokerMock) PublishRetry(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *BrokerMock) PublishDlq(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *BrokerMock) ConsumeJobs(ctx context.Context, handler queue.Handler) error {
	args := m.Called(ctx, handler)
	return args.Error(0)
}

func (m *BrokerMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

type BlobStoreMock struct {
	mock.Mock
}

func (m *BlobStoreMock) Put(ctx context.Context, key string, data []byte, contentType string) error {
	args := m.Called(ctx, key, data, contentType)
	return args.Error(0)
}

func (m *BlobStoreMock) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)

	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

type TranscriberMock struct {
	mock.Mock
}

func (m *TranscriberMock) Transcribe(ctx context.Context, data []byte, filename, contentType string) (*dto.TranscriptionResult, error) {
	args := m.Called(ctx, data, filename, contentType)

	res, _ := args.Get(0).(*dto.TranscriptionResult)
	return res, args.Error(1)
}

type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) Deliver(ctx context.Context, url string, payload *dto.WebhookPayload) error {
	args := m.Called(ctx, url, payload)
	return args.Error(0)
}
