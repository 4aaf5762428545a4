package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"docproc/internal/model"
	"docproc/internal/pkg/retry"
)

const (
	DefaultPersistAttempts  = 3
	DefaultPersistBaseDelay = time.Second
)

type ChunkWriter interface {
	Upsert(ctx context.Context, chunk *model.DocumentChunk) error
}

// ChunkRecord is one embedded chunk ready to be stored at its position in the document.
type ChunkRecord struct {
	DocumentID string
	Index      int
	Total      int
	Text       string
	Vector     []float32
	Metadata   model.ChunkMetadata
}

// ChunkSink persists single chunks, retrying transient write failures.
type ChunkSink struct {
	writer ChunkWriter
	policy retry.Policy
	logger *slog.Logger
}

func NewChunkSink(writer ChunkWriter, policy retry.Policy, logger *slog.Logger) *ChunkSink {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultPersistAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChunkSink{writer: writer, policy: policy, logger: logger}
}

// Persist writes rec, overwriting any chunk already stored at the same position.
// It returns a *PersistenceError once every attempt failed.
func (s *ChunkSink) Persist(ctx context.Context, rec ChunkRecord) error {
	if len(rec.Vector) == 0 {
		return &PersistenceError{Op: fmt.Sprintf("persist chunk %d", rec.Index), Err: ErrEmptyVector}
	}

	chunk := &model.DocumentChunk{
		DocumentID:  rec.DocumentID,
		ChunkIndex:  rec.Index,
		TotalChunks: rec.Total,
		Content:     rec.Text,
	}
	chunk.SetEmbedding(rec.Vector)
	if err := chunk.SetMetadata(rec.Metadata); err != nil {
		return &PersistenceError{Op: fmt.Sprintf("encode chunk %d metadata", rec.Index), Err: err}
	}

	err := retry.Do(ctx, s.policy, func(attempt int) error {
		if err := s.writer.Upsert(ctx, chunk); err != nil {
			s.logger.Warn("persist chunk attempt failed",
				"document_id", rec.DocumentID,
				"chunk_index", rec.Index,
				"attempt", attempt,
				"err", err)
			return err
		}
		return nil
	})
	if err != nil {
		return &PersistenceError{Op: fmt.Sprintf("persist chunk %d", rec.Index), Err: err}
	}
	return nil
}
