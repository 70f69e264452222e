package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/joshu-sajeev/transcribeq/common"
	"go.uber.org/zap"
)

// MemoryBroker is an in-process Broker with the same topology semantics as
// RabbitBroker: retry messages are parked for retryDelay before landing on
// the jobs queue, dlq messages are never consumed. Nothing survives a restart.
type MemoryBroker struct {
	retryDelay time.Duration
	logger     *zap.Logger

	mu        sync.Mutex
	jobs      []string
	dlq       []string
	parked    map[*time.Timer]struct{}
	published map[string]int
	wake      chan struct{}
	closed    bool
}

var _ Broker = (*MemoryBroker)(nil)

func NewMemoryBroker(retryDelay time.Duration, logger *zap.Logger) *MemoryBroker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryBroker{
		retryDelay: retryDelay,
		logger:     logger,
		parked:     make(map[*time.Timer]struct{}),
		published:  make(map[string]int),
		wake:       make(chan struct{}),
	}
}

// signal wakes every waiting consumer. Caller holds m.mu.
func (m *MemoryBroker) signal() {
	close(m.wake)
	m.wake = make(chan struct{})
}

func (m *MemoryBroker) enqueueLocked(jobID string) {
	m.jobs = append(m.jobs, jobID)
	m.signal()
}

func (m *MemoryBroker) publish(ctx context.Context, queue, jobID string, fn func()) error {
	if _, err := EncodeMessage(jobID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("publish %s: broker closed: %w", queue, common.ErrBrokerUnavailable)
	}
	m.published[queue]++
	fn()
	return nil
}

func (m *MemoryBroker) PublishJob(ctx context.Context, jobID string) error {
	return m.publish(ctx, JobsQueue, jobID, func() { m.enqueueLocked(jobID) })
}

func (m *MemoryBroker) PublishRetry(ctx context.Context, jobID string) error {
	return m.publish(ctx, RetryQueue, jobID, func() {
		var timer *time.Timer
		timer = time.AfterFunc(m.retryDelay, func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if _, ok := m.parked[timer]; !ok {
				return
			}
			delete(m.parked, timer)
			m.enqueueLocked(jobID)
		})
		m.parked[timer] = struct{}{}
	})
}

func (m *MemoryBroker) PublishDlq(ctx context.Context, jobID string) error {
	return m.publish(ctx, DLQQueue, jobID, func() { m.dlq = append(m.dlq, jobID) })
}

// ConsumeJobs takes messages off the jobs queue one at a time. Several
// consumers may run concurrently; each message goes to exactly one of them.
func (m *MemoryBroker) ConsumeJobs(ctx context.Context, handler Handler) error {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil
		}
		if len(m.jobs) == 0 {
			wake := m.wake
			m.mu.Unlock()
			select {
			case <-ctx.Done():
				return nil
			case <-wake:
				continue
			}
		}
		jobID := m.jobs[0]
		m.jobs = m.jobs[1:]
		m.mu.Unlock()

		body, err := EncodeMessage(jobID)
		if err != nil {
			return err
		}
		if err := handleDelivery(ctx, body, &memoryDelivery{broker: m, jobID: jobID}, handler, m.logger); err != nil {
			return err
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

// Depth reports how many messages are waiting on a queue. For the retry
// queue it counts messages still parked.
func (m *MemoryBroker) Depth(queue string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch queue {
	case JobsQueue:
		return len(m.jobs)
	case RetryQueue:
		return len(m.parked)
	case DLQQueue:
		return len(m.dlq)
	}
	return 0
}

// Published reports how many messages were ever published to a queue.
func (m *MemoryBroker) Published(queue string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.published[queue]
}

// DeadLetters returns the job ids sitting in the dlq.
func (m *MemoryBroker) DeadLetters() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.dlq...)
}

func (m *MemoryBroker) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for t := range m.parked {
		t.Stop()
		delete(m.parked, t)
	}
	m.signal()
	return nil
}

type memoryDelivery struct {
	broker *MemoryBroker
	jobID  string
}

func (d *memoryDelivery) Ack(bool) error { return nil }

func (d *memoryDelivery) Nack(_ bool, requeue bool) error {
	if !requeue {
		return nil
	}
	d.broker.mu.Lock()
	defer d.broker.mu.Unlock()
	if !d.broker.closed {
		d.broker.enqueueLocked(d.jobID)
	}
	return nil
}
