package app

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"

	"docproc/internal/model"
)

const (
	defaultTopK = 5
	maxTopK     = 50
)

var (
	ErrNoSearchableDocuments = errors.New("no processed documents to search")
	ErrNoChunks              = errors.New("no chunks found for retrieval")
)

type SearchableDocuments interface {
	ListSearchableIDs(ctx context.Context, botID int64) ([]string, error)
}

type ChunkLister interface {
	ListByDocumentIDs(ctx context.Context, documentIDs []string) ([]model.DocumentChunk, error)
}

type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type SearchService struct {
	docs     SearchableDocuments
	chunks   ChunkLister
	embedder QueryEmbedder
}

func NewSearchService(docs SearchableDocuments, chunks ChunkLister, embedder QueryEmbedder) *SearchService {
	return &SearchService{docs: docs, chunks: chunks, embedder: embedder}
}

type SearchInput struct {
	BotID int64
	Query string
	TopK  int
}

type SearchHit struct {
	Chunk model.DocumentChunk `json:"chunk"`
	Score float32             `json:"score"`
}

// Search embeds the query and returns the top-k chunks of the bot's processed documents
// ranked by cosine similarity.
func (s *SearchService) Search(ctx context.Context, input SearchInput) ([]SearchHit, error) {
	query := strings.TrimSpace(input.Query)
	if input.BotID <= 0 || query == "" {
		return nil, ErrInvalidInput
	}
	topK := input.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	if topK > maxTopK {
		topK = maxTopK
	}

	docIDs, err := s.docs.ListSearchableIDs(ctx, input.BotID)
	if err != nil {
		return nil, err
	}
	if len(docIDs) == 0 {
		return nil, ErrNoSearchableDocuments
	}

	chunks, err := s.chunks.ListByDocumentIDs(ctx, docIDs)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	hits := make([]SearchHit, len(chunks))
	for i := range chunks {
		hits[i] = SearchHit{
			Chunk: chunks[i],
			Score: cosineSimilarity(queryVec, chunks[i].EmbeddingVector()),
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if topK > len(hits) {
		topK = len(hits)
	}
	return hits[:topK], nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA <= 0 || normB <= 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
