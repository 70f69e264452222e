package dto

import (
	"time"
)

// CreateJobInput is what the producer knows about an upload once the audio
// has been written to the blob store.
type CreateJobInput struct {
	StorageKey       string
	OriginalFilename string
	ContentType      string
	WebhookURL       string
}

// CreateJobForm holds the non-file multipart fields of POST /jobs.
type CreateJobForm struct {
	WebhookURL string `form:"webhook_url" validate:"omitempty,url,startswith=http"`
}

type JobResponseDTO struct {
	ID               string    `json:"id"`
	Status           string    `json:"status"`
	Attempts         int       `json:"attempts"`
	StorageKey       string    `json:"storage_key"`
	OriginalFilename *string   `json:"original_filename"`
	ContentType      *string   `json:"content_type"`
	WebhookURL       *string   `json:"webhook_url"`
	WebhookStatus    string    `json:"webhook_status"`
	ResultText       *string   `json:"result_text"`
	ResultLanguage   *string   `json:"result_language"`
	ResultSegments   []Segment `json:"result_segments"`
	LastError        *string   `json:"last_error"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Upload is an audio file received by the producer endpoint.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
	WebhookURL  string
}
