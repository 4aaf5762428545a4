package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"docproc/internal/model"
	"docproc/internal/pkg/textextract"
)

const MaxUploadSize = 10 << 20 // 10 MB

var ErrJobEnqueue = errors.New("processing job enqueue failed")

type DocumentRepository interface {
	Create(ctx context.Context, doc *model.Document) error
	GetByID(ctx context.Context, id string) (*model.Document, error)
	ListByBotID(ctx context.Context, botID int64) ([]model.Document, error)
	UpdateStatus(ctx context.Context, id string, status model.DocumentStatus, processingError *string) error
	UpdateDetails(ctx context.Context, id string, details model.DocumentDetails) error
	Delete(ctx context.Context, id string) error
}

type ChunkRemover interface {
	DeleteByDocumentID(ctx context.Context, documentID string) error
}

type FileStorage interface {
	PutFile(ctx context.Context, key string, data []byte) error
	DeleteFile(ctx context.Context, key string) error
}

type JobPublisher interface {
	Publish(ctx context.Context, job model.ProcessingJob) error
}

type DocumentService struct {
	docs      DocumentRepository
	chunks    ChunkRemover
	storage   FileStorage
	publisher JobPublisher
	logger    *slog.Logger
}

func NewDocumentService(docs DocumentRepository, chunks ChunkRemover, storage FileStorage, publisher JobPublisher, logger *slog.Logger) *DocumentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentService{
		docs:      docs,
		chunks:    chunks,
		storage:   storage,
		publisher: publisher,
		logger:    logger,
	}
}

type UploadInput struct {
	BotID    int64
	Filename string
	Data     []byte
}

// Upload stores the file, records a Pending document and queues it for processing.
func (s *DocumentService) Upload(ctx context.Context, input UploadInput) (*model.Document, error) {
	filename := strings.TrimSpace(filepath.Base(input.Filename))
	if input.BotID <= 0 || filename == "" || filename == "." || len(input.Data) == 0 {
		return nil, ErrInvalidInput
	}
	if len(input.Data) > MaxUploadSize {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", ErrInvalidInput, MaxUploadSize)
	}

	id := uuid.NewString()
	doc := &model.Document{
		ID:         id,
		BotID:      input.BotID,
		Filename:   filename,
		StorageKey: fmt.Sprintf("documents/%d/%s%s", input.BotID, id, strings.ToLower(filepath.Ext(filename))),
		MimeType:   textextract.DetectMIME(input.Data).String(),
		FileSize:   int64(len(input.Data)),
		Status:     model.StatusPending,
	}

	if err := s.storage.PutFile(ctx, doc.StorageKey, input.Data); err != nil {
		return nil, err
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		if delErr := s.storage.DeleteFile(context.WithoutCancel(ctx), doc.StorageKey); delErr != nil {
			s.logger.Warn("remove orphaned upload failed", "storage_key", doc.StorageKey, "err", delErr)
		}
		return nil, err
	}
	if err := s.enqueue(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

type CreateInput struct {
	BotID      int64
	Filename   string
	StorageKey string
	MimeType   string
	FileSize   int64
}

// Create records a Pending document for an object that is already in storage and queues it.
// A key that does not exist surfaces later as a processing error on the document.
func (s *DocumentService) Create(ctx context.Context, input CreateInput) (*model.Document, error) {
	filename := strings.TrimSpace(input.Filename)
	key := strings.TrimSpace(input.StorageKey)
	if input.BotID <= 0 || filename == "" || key == "" || input.FileSize < 0 {
		return nil, ErrInvalidInput
	}

	doc := &model.Document{
		ID:         uuid.NewString(),
		BotID:      input.BotID,
		Filename:   filename,
		StorageKey: key,
		MimeType:   strings.TrimSpace(input.MimeType),
		FileSize:   input.FileSize,
		Status:     model.StatusPending,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, err
	}
	if err := s.enqueue(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Update changes the descriptive fields of a document. Status, content and chunk counts belong
// to the pipeline and change only through processing.
func (s *DocumentService) Update(ctx context.Context, id string, details model.DocumentDetails) (*model.Document, error) {
	if details.Filename == nil && details.MimeType == nil {
		return nil, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	if details.Filename != nil {
		name := strings.TrimSpace(*details.Filename)
		if name == "" {
			return nil, fmt.Errorf("%w: filename must not be empty", ErrInvalidInput)
		}
		details.Filename = &name
	}

	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.docs.UpdateDetails(ctx, doc.ID, details); err != nil {
		return nil, err
	}
	if details.Filename != nil {
		doc.Filename = *details.Filename
	}
	if details.MimeType != nil {
		doc.MimeType = *details.MimeType
	}
	return doc, nil
}

func (s *DocumentService) List(ctx context.Context, botID int64) ([]model.Document, error) {
	if botID < 0 {
		return nil, ErrInvalidInput
	}
	return s.docs.ListByBotID(ctx, botID)
}

func (s *DocumentService) Get(ctx context.Context, id string) (*model.Document, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

// Reprocess resets the document to Pending and queues it again.
func (s *DocumentService) Reprocess(ctx context.Context, id string) (*model.Document, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.docs.UpdateStatus(ctx, doc.ID, model.StatusPending, nil); err != nil {
		return nil, err
	}
	doc.Status = model.StatusPending
	doc.ProcessingError = nil
	if err := s.enqueue(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Delete removes the chunks, the document row and the stored file.
func (s *DocumentService) Delete(ctx context.Context, id string) error {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.chunks.DeleteByDocumentID(ctx, doc.ID); err != nil {
		return err
	}
	if err := s.docs.Delete(ctx, doc.ID); err != nil {
		return err
	}
	if err := s.storage.DeleteFile(ctx, doc.StorageKey); err != nil {
		s.logger.Warn("delete stored file failed", "document_id", doc.ID, "storage_key", doc.StorageKey, "err", err)
	}
	return nil
}

func (s *DocumentService) enqueue(ctx context.Context, doc *model.Document) error {
	if err := s.publisher.Publish(ctx, model.JobForDocument(doc)); err != nil {
		s.logger.Error("publish processing job failed", "document_id", doc.ID, "err", err)
		msg := "failed to queue document for processing"
		if updateErr := s.docs.UpdateStatus(context.WithoutCancel(ctx), doc.ID, model.StatusError, &msg); updateErr != nil {
			s.logger.Error("record enqueue failure failed", "document_id", doc.ID, "err", updateErr)
		}
		return fmt.Errorf("%w: %v", ErrJobEnqueue, err)
	}
	return nil
}
