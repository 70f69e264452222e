// Package queue implements the job dispatch topology: an immediate jobs
// queue, a retry queue whose messages expire back into jobs after a fixed
// delay, and a terminal dead-letter queue.
//
// Messages carry only a job id. All state lives in the job store, so a
// consumer must treat duplicate or stale ids as harmless.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	Exchange = "transcribe.direct"

	JobsQueue  = "transcribe.jobs"
	RetryQueue = "transcribe.retry"
	DLQQueue   = "transcribe.dlq"

	JobsKey  = "jobs"
	RetryKey = "retry"
	DLQKey   = "dlq"
)

// Handler processes one job id. A nil return acknowledges the message; an
// error drops it from the jobs queue without requeue.
type Handler func(ctx context.Context, jobID string) error

type Broker interface {
	PublishJob(ctx context.Context, jobID string) error
	PublishRetry(ctx context.Context, jobID string) error
	PublishDlq(ctx context.Context, jobID string) error
	// ConsumeJobs blocks, handling one message at a time, until ctx is done
	// (returns nil) or the subscription is lost (returns an error).
	ConsumeJobs(ctx context.Context, handler Handler) error
	Close() error
}

// JobMessage is the payload on all three queues.
type JobMessage struct {
	JobID string `json:"jobId"`
}

func EncodeMessage(jobID string) ([]byte, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, fmt.Errorf("encode message: empty job id")
	}
	return json.Marshal(JobMessage{JobID: jobID})
}

func DecodeMessage(body []byte) (string, error) {
	var msg JobMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return "", fmt.Errorf("decode message: %w", err)
	}
	if strings.TrimSpace(msg.JobID) == "" {
		return "", fmt.Errorf("decode message: missing jobId")
	}
	return msg.JobID, nil
}

// acknowledger is the subset of amqp091.Delivery used to settle a message.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// handleDelivery runs handler for one message and settles it. The handler
// gets a context that survives shutdown so an in-flight job is never cut off
// half way; only the returned settle error is fatal to the subscription.
func handleDelivery(ctx context.Context, body []byte, d acknowledger, handler Handler, logger *zap.Logger) error {
	jobID, err := DecodeMessage(body)
	if err != nil {
		logger.Warn("dropping undecodable message", zap.ByteString("body", body), zap.Error(err))
		return d.Nack(false, false)
	}

	if err := handler(context.WithoutCancel(ctx), jobID); err != nil {
		logger.Error("queue handler failed", zap.String("job_id", jobID), zap.Error(err))
		return d.Nack(false, false)
	}
	return d.Ack(false)
}
