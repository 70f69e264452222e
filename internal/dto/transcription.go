package dto

// Segment is one timed span of a transcript, in seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// TranscriptionResult is the body returned by the whisper backend and the
// result object carried by completion webhooks.
type TranscriptionResult struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
}

// WebhookPayload is the completion callback body, used both for outbound
// delivery and for inbound provider pushes.
type WebhookPayload struct {
	JobID  string               `json:"job_id" validate:"required"`
	Status string               `json:"status"`
	Result *TranscriptionResult `json:"result" validate:"required"`
}
