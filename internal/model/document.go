package model

import "time"

type DocumentStatus string

const (
	StatusPending             DocumentStatus = "Pending"
	StatusProcessing          DocumentStatus = "Processing"
	StatusProcessed           DocumentStatus = "Processed"
	StatusProcessedWithErrors DocumentStatus = "Processed with errors"
	StatusError               DocumentStatus = "Error"
)

// SearchableStatuses are the statuses of documents whose chunks are worth querying.
func SearchableStatuses() []DocumentStatus {
	return []DocumentStatus{StatusProcessed, StatusProcessedWithErrors}
}

func (s DocumentStatus) Searchable() bool {
	for _, st := range SearchableStatuses() {
		if s == st {
			return true
		}
	}
	return false
}

type Document struct {
	ID              string         `gorm:"primaryKey;size:36" json:"id"`
	BotID           int64          `gorm:"not null;index" json:"bot_id"`
	Filename        string         `gorm:"size:255;not null" json:"filename"`
	StorageKey      string         `gorm:"size:512;not null" json:"storage_key"`
	Content         string         `gorm:"type:longtext" json:"-"`
	MimeType        string         `gorm:"size:128" json:"mime_type"`
	FileSize        int64          `json:"file_size"`
	Status          DocumentStatus `gorm:"size:32;not null;index;default:Pending" json:"status"`
	ChunkCount      int            `gorm:"not null;default:0" json:"chunk_count"`
	ProcessingError *string        `gorm:"type:text" json:"processing_error,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// DocumentDetails holds the client editable fields of a Document; nil fields stay unchanged.
type DocumentDetails struct {
	Filename *string `json:"filename"`
	MimeType *string `json:"mime_type"`
}
