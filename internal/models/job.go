package models

import (
	"time"

	"gorm.io/datatypes"
)

// Job is the durable record of one transcription request. It is the only
// source of truth for status, attempts and results; queue messages carry the
// id alone.
type Job struct {
	ID               string         `gorm:"primaryKey;type:varchar(36)"`
	Status           string         `gorm:"type:varchar(20);not null;default:'queued';index"`
	Attempts         int            `gorm:"not null;default:0"`
	StorageKey       string         `gorm:"type:text;not null"`
	OriginalFilename *string        `gorm:"type:text"`
	ContentType      *string        `gorm:"type:text"`
	WebhookURL       *string        `gorm:"type:text"`
	WebhookStatus    string         `gorm:"type:varchar(20);not null;default:'pending'"`
	ResultText       *string        `gorm:"type:text"`
	ResultLanguage   *string        `gorm:"type:text"`
	ResultSegments   datatypes.JSON `gorm:"type:jsonb"`
	LastError        *string        `gorm:"type:text"`
	CreatedAt        time.Time      `gorm:"autoCreateTime"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime;index"`
}
