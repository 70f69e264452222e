package pool

import (
	"context"
	"sync"
	"time"

	"github.com/joshu-sajeev/transcribeq/internal/config"
	"github.com/joshu-sajeev/transcribeq/internal/models"
	"github.com/joshu-sajeev/transcribeq/internal/queue"
	"go.uber.org/zap"
)

const (
	minBackoff = 1 * time.Second
	maxBackoff = 60 * time.Second
	sweepBatch = 100
)

// Consumer is the receiving side of the broker.
type Consumer interface {
	ConsumeJobs(ctx context.Context, handler queue.Handler) error
	PublishJob(ctx context.Context, jobID string) error
}

// StaleLister finds jobs that have been sitting in one status too long and
// claims them so a second sweep leaves them alone for another window.
type StaleLister interface {
	ListStale(ctx context.Context, status config.JobStatus, olderThan time.Time, limit int) ([]models.Job, error)
	ClaimStale(ctx context.Context, id string, status config.JobStatus, olderThan time.Time) (bool, error)
}

// sweptStatuses are the non-terminal states whose dispatch lives only in the
// broker. processing is left out since a transcription may legitimately run
// for longer than StaleAfter.
var sweptStatuses = []config.JobStatus{config.JobStatusQueued, config.JobStatusFailed}

type Options struct {
	Concurrency   int
	SweepInterval time.Duration
	StaleAfter    time.Duration
}

type WorkerPool struct {
	broker  Consumer
	store   StaleLister
	handler queue.Handler
	opts    Options
	logger  *zap.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	// overridable in tests
	backoff func(attempt int) time.Duration
	now     func() time.Time
}

func NewWorkerPool(broker Consumer, store StaleLister, handler queue.Handler, opts Options, logger *zap.Logger) *WorkerPool {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		broker:  broker,
		store:   store,
		handler: handler,
		opts:    opts,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		backoff: Backoff,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Backoff returns the delay before re-subscribing after the given number of
// consecutive failures: 1s doubling up to 60s.
func Backoff(attempt int) time.Duration {
	d := minBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

func (p *WorkerPool) Start() {
	for i := 1; i <= p.opts.Concurrency; i++ {
		p.wg.Add(1)
		go p.consume(i)
	}

	if p.opts.SweepInterval > 0 && p.store != nil {
		p.wg.Add(1)
		go p.janitor()
	}
}

// consume keeps one subscription alive until Stop.
func (p *WorkerPool) consume(id int) {
	defer p.wg.Done()
	log := p.logger.With(zap.Int("consumer", id))

	failures := 0
	for {
		started := time.Now()
		err := p.broker.ConsumeJobs(p.ctx, p.handler)
		if p.ctx.Err() != nil {
			return
		}

		// a subscription that stayed up a while starts the backoff over
		if time.Since(started) > maxBackoff {
			failures = 0
		}
		failures++
		delay := p.backoff(failures)
		log.Warn("consumer stopped, resubscribing", zap.Error(err), zap.Duration("backoff", delay))

		select {
		case <-time.After(delay):
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *WorkerPool) janitor() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.Sweep(p.ctx)
		case <-p.ctx.Done():
			return
		}
	}
}

// Sweep republishes queued jobs that nobody picked up and failed jobs whose
// retry never came back within StaleAfter. Each job is claimed before it is
// published, so repeated sweeps dispatch it at most once per window.
// Duplicate dispatches are still harmless, the worker skips final jobs.
func (p *WorkerPool) Sweep(ctx context.Context) int {
	cutoff := p.now().Add(-p.opts.StaleAfter)
	republished := 0
	for _, status := range sweptStatuses {
		republished += p.sweepStatus(ctx, status, cutoff)
	}
	return republished
}

func (p *WorkerPool) sweepStatus(ctx context.Context, status config.JobStatus, cutoff time.Time) int {
	log := p.logger.With(zap.String("status", string(status)))

	stale, err := p.store.ListStale(ctx, status, cutoff, sweepBatch)
	if err != nil {
		log.Error("list stale jobs", zap.Error(err))
		return 0
	}

	republished := 0
	for _, j := range stale {
		claimed, err := p.store.ClaimStale(ctx, j.ID, status, cutoff)
		if err != nil {
			log.Error("claim stale job", zap.String("job_id", j.ID), zap.Error(err))
			continue
		}
		if !claimed {
			continue
		}
		if err := p.broker.PublishJob(ctx, j.ID); err != nil {
			log.Error("republish stale job", zap.String("job_id", j.ID), zap.Error(err))
			continue
		}
		republished++
		log.Info("republished stale job", zap.String("job_id", j.ID))
	}
	return republished
}

// Stop cancels all subscriptions and waits for in-flight handlers.
func (p *WorkerPool) Stop() {
	p.cancel()
	p.wg.Wait()
}
