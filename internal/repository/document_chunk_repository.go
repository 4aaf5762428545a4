package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"docproc/internal/model"
)

type DocumentChunkRepository struct {
	db *gorm.DB
}

func NewDocumentChunkRepository(db *gorm.DB) *DocumentChunkRepository {
	return &DocumentChunkRepository{db: db}
}

// Upsert inserts the chunk or overwrites the row already stored at the same document position.
func (r *DocumentChunkRepository) Upsert(ctx context.Context, chunk *model.DocumentChunk) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "document_id"}, {Name: "chunk_index"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"total_chunks", "content", "embedding", "dimensions", "metadata", "updated_at",
		}),
	}).Create(chunk).Error
	if err != nil {
		return fmt.Errorf("upsert document chunk failed: %w", err)
	}
	return nil
}

func (r *DocumentChunkRepository) CountByDocumentID(ctx context.Context, documentID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.DocumentChunk{}).Where("document_id = ?", documentID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count document chunks failed: %w", err)
	}
	return count, nil
}

// ListByDocumentIDs returns the chunks of the given documents ordered by position.
func (r *DocumentChunkRepository) ListByDocumentIDs(ctx context.Context, documentIDs []string) ([]model.DocumentChunk, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}
	var chunks []model.DocumentChunk
	err := r.db.WithContext(ctx).
		Where("document_id IN ?", documentIDs).
		Order("document_id, chunk_index").
		Find(&chunks).Error
	if err != nil {
		return nil, fmt.Errorf("list document chunks failed: %w", err)
	}
	return chunks, nil
}

// DeleteFromIndex removes chunks at positions >= fromIndex, left over from a longer earlier split.
func (r *DocumentChunkRepository) DeleteFromIndex(ctx context.Context, documentID string, fromIndex int) error {
	err := r.db.WithContext(ctx).
		Where("document_id = ? AND chunk_index >= ?", documentID, fromIndex).
		Delete(&model.DocumentChunk{}).Error
	if err != nil {
		return fmt.Errorf("delete stale document chunks failed: %w", err)
	}
	return nil
}

func (r *DocumentChunkRepository) DeleteByDocumentID(ctx context.Context, documentID string) error {
	if err := r.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&model.DocumentChunk{}).Error; err != nil {
		return fmt.Errorf("delete document chunks failed: %w", err)
	}
	return nil
}
