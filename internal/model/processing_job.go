package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ProcessingJob is the queue payload asking a worker to process one document.
type ProcessingJob struct {
	DocumentID string `json:"documentId"`
	BotID      int64  `json:"botId"`
	Filename   string `json:"filename"`
	StorageKey string `json:"storageKey"`
	MimeType   string `json:"mimeType,omitempty"`
}

// MalformedJobError reports a queue payload that is not a valid ProcessingJob.
type MalformedJobError struct {
	Err error
}

func (e *MalformedJobError) Error() string {
	return fmt.Sprintf("malformed processing job: %v", e.Err)
}

func (e *MalformedJobError) Unwrap() error {
	return e.Err
}

var (
	errMissingDocumentID = errors.New("documentId is required")
	errMissingStorageKey = errors.New("storageKey is required")
)

// ParseProcessingJob decodes and validates a queue payload.
func ParseProcessingJob(body []byte) (ProcessingJob, error) {
	var job ProcessingJob
	if err := json.Unmarshal(body, &job); err != nil {
		return ProcessingJob{}, &MalformedJobError{Err: err}
	}
	if err := job.Validate(); err != nil {
		return ProcessingJob{}, &MalformedJobError{Err: err}
	}
	return job, nil
}

func (j ProcessingJob) Validate() error {
	if strings.TrimSpace(j.DocumentID) == "" {
		return errMissingDocumentID
	}
	if strings.TrimSpace(j.StorageKey) == "" {
		return errMissingStorageKey
	}
	return nil
}

// JobForDocument builds the job that reprocesses doc.
func JobForDocument(doc *Document) ProcessingJob {
	return ProcessingJob{
		DocumentID: doc.ID,
		BotID:      doc.BotID,
		Filename:   doc.Filename,
		StorageKey: doc.StorageKey,
		MimeType:   doc.MimeType,
	}
}
