package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"docproc/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *model.Document) error {
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("create document failed: %w", err)
	}
	return nil
}

// GetByID returns nil, nil when the document does not exist.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

// ListByBotID lists documents for a bot; botID 0 lists every document.
func (r *DocumentRepository) ListByBotID(ctx context.Context, botID int64) ([]model.Document, error) {
	q := r.db.WithContext(ctx).Omit("content")
	if botID != 0 {
		q = q.Where("bot_id = ?", botID)
	}
	var list []model.Document
	if err := q.Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return list, nil
}

// ListSearchableIDs returns ids of the bot's documents that finished processing.
func (r *DocumentRepository) ListSearchableIDs(ctx context.Context, botID int64) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.Document{}).
		Where("bot_id = ? AND status IN ?", botID, model.SearchableStatuses()).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list searchable document ids failed: %w", err)
	}
	return ids, nil
}

// UpdateStatus sets status and processing_error together; a nil processingError clears it.
func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status model.DocumentStatus, processingError *string) error {
	return r.updateFields(ctx, id, map[string]interface{}{
		"status":           status,
		"processing_error": processingError,
	})
}

func (r *DocumentRepository) UpdateContent(ctx context.Context, id, content string) error {
	return r.updateFields(ctx, id, map[string]interface{}{"content": content})
}

func (r *DocumentRepository) UpdateChunkCount(ctx context.Context, id string, chunkCount int) error {
	return r.updateFields(ctx, id, map[string]interface{}{"chunk_count": chunkCount})
}

func (r *DocumentRepository) UpdateDetails(ctx context.Context, id string, details model.DocumentDetails) error {
	fields := map[string]interface{}{}
	if details.Filename != nil {
		fields["filename"] = *details.Filename
	}
	if details.MimeType != nil {
		fields["mime_type"] = *details.MimeType
	}
	if len(fields) == 0 {
		return nil
	}
	return r.updateFields(ctx, id, fields)
}

func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Document{}).Error; err != nil {
		return fmt.Errorf("delete document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) updateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update document failed: %w", res.Error)
	}
	return nil
}
