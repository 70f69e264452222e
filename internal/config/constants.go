package config

type JobStatus string

type WebhookStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusDLQ        JobStatus = "dlq"

	WebhookStatusPending   WebhookStatus = "pending"
	WebhookStatusDelivered WebhookStatus = "delivered"
	WebhookStatusFailed    WebhookStatus = "failed"
)

// IsTerminal reports whether no further status writes are allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusDLQ
}

const (
	QueueDriverRabbitMQ = "rabbitmq"
	QueueDriverMemory   = "memory"

	BlobDriverS3   = "s3"
	BlobDriverDisk = "disk"
)

// SignatureHeader carries the hex HMAC-SHA256 of a webhook body.
const SignatureHeader = "X-Whispr-Signature"
