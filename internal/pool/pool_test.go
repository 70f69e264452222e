package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joshu-sajeev/transcribeq/common"
	"github.com/joshu-sajeev/transcribeq/internal/config"
	"github.com/joshu-sajeev/transcribeq/internal/mocks"
	"github.com/joshu-sajeev/transcribeq/internal/models"
	"github.com/joshu-sajeev/transcribeq/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: time.Second},
		{attempt: 2, want: 2 * time.Second},
		{attempt: 3, want: 4 * time.Second},
		{attempt: 6, want: 32 * time.Second},
		{attempt: 7, want: 60 * time.Second},
		{attempt: 50, want: 60 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Backoff(tt.attempt), "attempt %d", tt.attempt)
	}
}

// flakyConsumer fails the first n subscriptions, then blocks until cancelled.
type flakyConsumer struct {
	failFirst int32
	calls     atomic.Int32
}

func (f *flakyConsumer) ConsumeJobs(ctx context.Context, _ queue.Handler) error {
	if f.calls.Add(1) <= f.failFirst {
		return common.ErrBrokerUnavailable
	}
	<-ctx.Done()
	return nil
}

func (f *flakyConsumer) PublishJob(context.Context, string) error { return nil }

func TestWorkerPool_ResubscribesWithBackoff(t *testing.T) {
	consumer := &flakyConsumer{failFirst: 3}
	p := NewWorkerPool(consumer, nil, func(context.Context, string) error { return nil }, Options{Concurrency: 1}, nil)

	var mu sync.Mutex
	var attempts []int
	p.backoff = func(attempt int) time.Duration {
		mu.Lock()
		attempts = append(attempts, attempt)
		mu.Unlock()
		return time.Millisecond
	}

	p.Start()
	assert.Eventually(t, func() bool { return consumer.calls.Load() == 4 }, 2*time.Second, 5*time.Millisecond)
	p.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3}, attempts)
}

func TestWorkerPool_StartsConcurrentConsumers(t *testing.T) {
	consumer := &flakyConsumer{}
	p := NewWorkerPool(consumer, nil, func(context.Context, string) error { return nil }, Options{Concurrency: 4}, nil)

	p.Start()
	assert.Eventually(t, func() bool { return consumer.calls.Load() == 4 }, 2*time.Second, 5*time.Millisecond)
	p.Stop()
}

func TestWorkerPool_Sweep(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	cutoff := now.Add(-30 * time.Minute)
	queued, failed := config.JobStatusQueued, config.JobStatusFailed

	tests := []struct {
		name      string
		setupMock func(store *mocks.JobRepoMock, broker *mocks.BrokerMock)
		want      int
	}{
		{
			name: "republishes every claimed stale job",
			setupMock: func(store *mocks.JobRepoMock, broker *mocks.BrokerMock) {
				store.On("ListStale", mock.Anything, queued, cutoff, sweepBatch).
					Return([]models.Job{{ID: "a"}, {ID: "b"}}, nil)
				store.On("ListStale", mock.Anything, failed, cutoff, sweepBatch).Return([]models.Job{}, nil)
				store.On("ClaimStale", mock.Anything, "a", queued, cutoff).Return(true, nil)
				store.On("ClaimStale", mock.Anything, "b", queued, cutoff).Return(true, nil)
				broker.On("PublishJob", mock.Anything, "a").Return(nil)
				broker.On("PublishJob", mock.Anything, "b").Return(nil)
			},
			want: 2,
		},
		{
			name: "failed job whose retry was lost is republished",
			setupMock: func(store *mocks.JobRepoMock, broker *mocks.BrokerMock) {
				store.On("ListStale", mock.Anything, queued, cutoff, sweepBatch).Return([]models.Job{}, nil)
				store.On("ListStale", mock.Anything, failed, cutoff, sweepBatch).
					Return([]models.Job{{ID: "f", Status: string(failed), Attempts: 1}}, nil)
				store.On("ClaimStale", mock.Anything, "f", failed, cutoff).Return(true, nil)
				broker.On("PublishJob", mock.Anything, "f").Return(nil)
			},
			want: 1,
		},
		{
			name: "job claimed elsewhere is not published",
			setupMock: func(store *mocks.JobRepoMock, broker *mocks.BrokerMock) {
				store.On("ListStale", mock.Anything, queued, cutoff, sweepBatch).
					Return([]models.Job{{ID: "a"}, {ID: "b"}}, nil)
				store.On("ListStale", mock.Anything, failed, cutoff, sweepBatch).Return([]models.Job{}, nil)
				store.On("ClaimStale", mock.Anything, "a", queued, cutoff).Return(false, nil)
				store.On("ClaimStale", mock.Anything, "b", queued, cutoff).Return(true, nil)
				broker.On("PublishJob", mock.Anything, "b").Return(nil)
			},
			want: 1,
		},
		{
			name: "claim failure skips the job",
			setupMock: func(store *mocks.JobRepoMock, broker *mocks.BrokerMock) {
				store.On("ListStale", mock.Anything, queued, cutoff, sweepBatch).
					Return([]models.Job{{ID: "a"}}, nil)
				store.On("ListStale", mock.Anything, failed, cutoff, sweepBatch).Return([]models.Job{}, nil)
				store.On("ClaimStale", mock.Anything, "a", queued, cutoff).Return(false, errors.New("db down"))
			},
			want: 0,
		},
		{
			name: "publish failure skips the job",
			setupMock: func(store *mocks.JobRepoMock, broker *mocks.BrokerMock) {
				store.On("ListStale", mock.Anything, queued, cutoff, sweepBatch).
					Return([]models.Job{{ID: "a"}, {ID: "b"}}, nil)
				store.On("ListStale", mock.Anything, failed, cutoff, sweepBatch).Return([]models.Job{}, nil)
				store.On("ClaimStale", mock.Anything, mock.Anything, queued, cutoff).Return(true, nil)
				broker.On("PublishJob", mock.Anything, "a").Return(common.ErrBrokerUnavailable)
				broker.On("PublishJob", mock.Anything, "b").Return(nil)
			},
			want: 1,
		},
		{
			name: "store failure publishes nothing",
			setupMock: func(store *mocks.JobRepoMock, broker *mocks.BrokerMock) {
				store.On("ListStale", mock.Anything, mock.Anything, mock.Anything, sweepBatch).
					Return(nil, errors.New("db down"))
			},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(mocks.JobRepoMock)
			broker := new(mocks.BrokerMock)
			tt.setupMock(store, broker)

			p := NewWorkerPool(broker, store, nil, Options{StaleAfter: 30 * time.Minute}, nil)
			p.now = func() time.Time { return now }

			assert.Equal(t, tt.want, p.Sweep(context.Background()))
			store.AssertExpectations(t)
			broker.AssertExpectations(t)
		})
	}
}

func TestWorkerPool_SweepTwicePublishesOnce(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	cutoff := now.Add(-30 * time.Minute)
	stale := []models.Job{{ID: "a", Status: string(config.JobStatusQueued)}}

	// The listing keeps returning the row, as a concurrent sweeper's
	// listing would. Only the claim decides who publishes.
	store := new(mocks.JobRepoMock)
	store.On("ListStale", mock.Anything, config.JobStatusQueued, cutoff, sweepBatch).Return(stale, nil)
	store.On("ListStale", mock.Anything, config.JobStatusFailed, cutoff, sweepBatch).Return([]models.Job{}, nil)
	store.On("ClaimStale", mock.Anything, "a", config.JobStatusQueued, cutoff).Return(true, nil).Once()
	store.On("ClaimStale", mock.Anything, "a", config.JobStatusQueued, cutoff).Return(false, nil)

	broker := queue.NewMemoryBroker(time.Hour, nil)
	defer broker.Close()

	p := NewWorkerPool(broker, store, nil, Options{StaleAfter: 30 * time.Minute}, nil)
	p.now = func() time.Time { return now }

	assert.Equal(t, 1, p.Sweep(context.Background()))
	assert.Equal(t, 0, p.Sweep(context.Background()))

	assert.Equal(t, 1, broker.Published(queue.JobsQueue))
	assert.Equal(t, 1, broker.Depth(queue.JobsQueue))
	store.AssertNumberOfCalls(t, "ClaimStale", 2)
}

func TestWorkerPool_StopWaitsForInFlightJob(t *testing.T) {
	broker := queue.NewMemoryBroker(time.Hour, nil)
	defer broker.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	handler := func(ctx context.Context, _ string) error {
		close(started)
		<-release
		finished.Store(ctx.Err() == nil)
		return nil
	}

	p := NewWorkerPool(broker, nil, handler, Options{Concurrency: 1}, nil)
	p.Start()
	require.NoError(t, broker.PublishJob(context.Background(), "j1"))
	<-started

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a job was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	assert.True(t, finished.Load(), "handler context was cancelled by Stop")
}
