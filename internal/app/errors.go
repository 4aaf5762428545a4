package app

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrDocumentNotFound = errors.New("document not found")
	ErrDocumentBusy     = errors.New("document is already being processed")
	ErrEmptyVector      = errors.New("chunk embedding is empty")

	// ErrDocumentLockLost matches ErrDocumentBusy: another run may own the document now.
	ErrDocumentLockLost = fmt.Errorf("%w: document lock expired during processing", ErrDocumentBusy)
)

// SourceMissingError means the document's object is absent from storage. It is fatal for the
// document and never retried.
type SourceMissingError struct {
	Key string
	Err error
}

func (e *SourceMissingError) Error() string {
	return fmt.Sprintf("source file not found in storage: %s", e.Key)
}

func (e *SourceMissingError) Unwrap() error {
	return e.Err
}

// PersistenceError reports a storage write that failed after its retry budget.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
