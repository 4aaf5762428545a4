package model

import (
	"encoding/json"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// DocumentChunk stores one slice of a document's text with its embedding.
// (DocumentID, ChunkIndex) is unique so a redelivered job overwrites its earlier rows.
type DocumentChunk struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	DocumentID  string          `gorm:"size:36;not null;uniqueIndex:idx_document_chunk_position,priority:1" json:"document_id"`
	ChunkIndex  int             `gorm:"not null;uniqueIndex:idx_document_chunk_position,priority:2" json:"chunk_index"`
	TotalChunks int             `gorm:"not null" json:"total_chunks"`
	Content     string          `gorm:"type:text;not null" json:"content"`
	Embedding   pgvector.Vector `gorm:"type:mediumtext;not null" json:"-"`
	Dimensions  int             `gorm:"not null" json:"dimensions"`
	Metadata    datatypes.JSON  `json:"metadata"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type ChunkMetadata struct {
	Source    string    `json:"source"`
	MimeType  string    `json:"mime_type,omitempty"`
	BotID     int64     `json:"bot_id"`
	CreatedAt time.Time `json:"created_at"`
}

// EmbeddingVector returns the stored embedding.
func (c *DocumentChunk) EmbeddingVector() []float32 {
	return c.Embedding.Slice()
}

// SetEmbedding stores vec and records its dimensionality.
func (c *DocumentChunk) SetEmbedding(vec []float32) {
	c.Embedding = pgvector.NewVector(vec)
	c.Dimensions = len(vec)
}

// SetMetadata encodes meta into the JSON metadata column.
func (c *DocumentChunk) SetMetadata(meta ChunkMetadata) error {
	b, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	c.Metadata = datatypes.JSON(b)
	return nil
}
