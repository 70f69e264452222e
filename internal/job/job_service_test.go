package job

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/joshu-sajeev/transcribeq/common"
	"github.com/joshu-sajeev/transcribeq/internal/dto"
	"github.com/joshu-sajeev/transcribeq/internal/mocks"
	"github.com/joshu-sajeev/transcribeq/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestJobService_CreateJob(t *testing.T) {
	isUploadKey := mock.MatchedBy(func(key string) bool {
		return strings.HasPrefix(key, "uploads/") && strings.HasSuffix(key, "/talk.mp3")
	})
	queued := &models.Job{ID: "j1", Status: "queued", WebhookStatus: "pending", StorageKey: "uploads/x/talk.mp3"}

	tests := []struct {
		name       string
		upload     *dto.Upload
		setupMock  func(repo *mocks.JobRepoMock, broker *mocks.BrokerMock, blobs *mocks.BlobStoreMock)
		setupCtx   func() context.Context
		wantStatus int
	}{
		{
			name:   "stores, records and dispatches",
			upload: &dto.Upload{Filename: "talk.mp3", ContentType: "audio/mpeg", Data: []byte("ID3"), WebhookURL: "https://hook"},
			setupMock: func(repo *mocks.JobRepoMock, broker *mocks.BrokerMock, blobs *mocks.BlobStoreMock) {
				blobs.On("Put", mock.Anything, isUploadKey, []byte("ID3"), "audio/mpeg").Return(nil)
				repo.On("Create", mock.Anything, mock.MatchedBy(func(in *dto.CreateJobInput) bool {
					return strings.HasSuffix(in.StorageKey, "/talk.mp3") &&
						in.OriginalFilename == "talk.mp3" &&
						in.ContentType == "audio/mpeg" &&
						in.WebhookURL == "https://hook"
				})).Return(queued, nil)
				broker.On("PublishJob", mock.Anything, "j1").Return(nil)
			},
		},
		{
			name:   "dispatch failure still returns the job",
			upload: &dto.Upload{Filename: "talk.mp3", Data: []byte("ID3")},
			setupMock: func(repo *mocks.JobRepoMock, broker *mocks.BrokerMock, blobs *mocks.BlobStoreMock) {
				blobs.On("Put", mock.Anything, isUploadKey, []byte("ID3"), "").Return(nil)
				repo.On("Create", mock.Anything, mock.Anything).Return(queued, nil)
				broker.On("PublishJob", mock.Anything, "j1").Return(common.ErrBrokerUnavailable)
			},
		},
		{
			name:       "empty upload",
			upload:     &dto.Upload{Filename: "talk.mp3"},
			setupMock:  func(*mocks.JobRepoMock, *mocks.BrokerMock, *mocks.BlobStoreMock) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:   "blob store failure",
			upload: &dto.Upload{Filename: "talk.mp3", Data: []byte("ID3")},
			setupMock: func(repo *mocks.JobRepoMock, broker *mocks.BrokerMock, blobs *mocks.BlobStoreMock) {
				blobs.On("Put", mock.Anything, isUploadKey, []byte("ID3"), "").Return(errors.New("access denied"))
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:   "database failure",
			upload: &dto.Upload{Filename: "talk.mp3", Data: []byte("ID3")},
			setupMock: func(repo *mocks.JobRepoMock, broker *mocks.BrokerMock, blobs *mocks.BlobStoreMock) {
				blobs.On("Put", mock.Anything, isUploadKey, []byte("ID3"), "").Return(nil)
				repo.On("Create", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:   "database timeout",
			upload: &dto.Upload{Filename: "talk.mp3", Data: []byte("ID3")},
			setupMock: func(repo *mocks.JobRepoMock, broker *mocks.BrokerMock, blobs *mocks.BlobStoreMock) {
				blobs.On("Put", mock.Anything, isUploadKey, []byte("ID3"), "").Return(nil)
				repo.On("Create", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("create job: %w", context.DeadlineExceeded))
			},
			wantStatus: http.StatusRequestTimeout,
		},
		{
			name:      "canceled context",
			upload:    &dto.Upload{Filename: "talk.mp3", Data: []byte("ID3")},
			setupMock: func(*mocks.JobRepoMock, *mocks.BrokerMock, *mocks.BlobStoreMock) {},
			setupCtx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			wantStatus: http.StatusRequestTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(mocks.JobRepoMock)
			broker := new(mocks.BrokerMock)
			blobs := new(mocks.BlobStoreMock)
			tt.setupMock(repo, broker, blobs)

			ctx := context.Background()
			if tt.setupCtx != nil {
				ctx = tt.setupCtx()
			}

			svc := NewJobService(repo, broker, blobs, nil)
			resp, err := svc.CreateJob(ctx, tt.upload)

			if tt.wantStatus != 0 {
				require.Error(t, err)
				assert.Equal(t, tt.wantStatus, common.StatusOf(err))
				assert.Nil(t, resp)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "j1", resp.ID)
				assert.Equal(t, "queued", resp.Status)
				assert.Equal(t, []dto.Segment{}, resp.ResultSegments)
			}

			repo.AssertExpectations(t)
			broker.AssertExpectations(t)
			blobs.AssertExpectations(t)
		})
	}
}

func TestJobService_GetJobByID(t *testing.T) {
	text := "hello"
	stored := &models.Job{
		ID:             "j1",
		Status:         "completed",
		Attempts:       1,
		ResultText:     &text,
		ResultSegments: datatypes.JSON(`[{"start":0,"end":1.5,"text":"hello"}]`),
		CreatedAt:      time.Unix(0, 0).UTC(),
	}

	tests := []struct {
		name       string
		setupMock  func(*mocks.JobRepoMock)
		wantStatus int
	}{
		{
			name: "found",
			setupMock: func(m *mocks.JobRepoMock) {
				m.On("Get", mock.Anything, "j1").Return(stored, nil)
			},
		},
		{
			name: "not found",
			setupMock: func(m *mocks.JobRepoMock) {
				m.On("Get", mock.Anything, "j1").Return(nil, fmt.Errorf("get job j1: %w", common.ErrJobNotFound))
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name: "database error",
			setupMock: func(m *mocks.JobRepoMock) {
				m.On("Get", mock.Anything, "j1").Return(nil, errors.New("connection refused"))
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name: "canceled",
			setupMock: func(m *mocks.JobRepoMock) {
				m.On("Get", mock.Anything, "j1").Return(nil, fmt.Errorf("get job: %w", context.Canceled))
			},
			wantStatus: http.StatusRequestTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(mocks.JobRepoMock)
			tt.setupMock(repo)

			svc := NewJobService(repo, nil, nil, nil)
			resp, err := svc.GetJobByID(context.Background(), "j1")

			if tt.wantStatus != 0 {
				require.Error(t, err)
				assert.Equal(t, tt.wantStatus, common.StatusOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "j1", resp.ID)
			assert.Equal(t, "completed", resp.Status)
			assert.Equal(t, &text, resp.ResultText)
			assert.Equal(t, []dto.Segment{{Start: 0, End: 1.5, Text: "hello"}}, resp.ResultSegments)
			repo.AssertExpectations(t)
		})
	}
}

func TestToResponseDTO_BadSegments(t *testing.T) {
	resp := ToResponseDTO(&models.Job{ID: "j1", ResultSegments: datatypes.JSON(`{"not":"a list"}`)})
	assert.Equal(t, []dto.Segment{}, resp.ResultSegments)
}
