package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProcessingJob(t *testing.T) {
	body := []byte(`{"documentId":"doc-1","botId":7,"filename":"notes.txt","storageKey":"documents/7/a.txt","mimeType":"text/plain"}`)

	job, err := ParseProcessingJob(body)
	require.NoError(t, err)
	assert.Equal(t, ProcessingJob{
		DocumentID: "doc-1",
		BotID:      7,
		Filename:   "notes.txt",
		StorageKey: "documents/7/a.txt",
		MimeType:   "text/plain",
	}, job)
}

func TestParseProcessingJob_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `documentId=doc-1`},
		{name: "wrong type", body: `{"documentId":"doc-1","botId":"seven","storageKey":"k"}`},
		{name: "missing document id", body: `{"botId":1,"storageKey":"k"}`},
		{name: "missing storage key", body: `{"documentId":"doc-1","botId":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseProcessingJob([]byte(tt.body))
			var malformed *MalformedJobError
			require.True(t, errors.As(err, &malformed), "expected MalformedJobError, got %v", err)
		})
	}
}

func TestDocumentStatus(t *testing.T) {
	assert.ElementsMatch(t, []DocumentStatus{StatusProcessed, StatusProcessedWithErrors}, SearchableStatuses())
	for _, st := range SearchableStatuses() {
		assert.True(t, st.Searchable(), st)
	}
	assert.False(t, StatusPending.Searchable())
	assert.False(t, StatusProcessing.Searchable())
	assert.False(t, StatusError.Searchable())
	assert.Equal(t, "Processed with errors", string(StatusProcessedWithErrors))
}

func TestDocumentChunk_Embedding(t *testing.T) {
	var chunk DocumentChunk
	chunk.SetEmbedding([]float32{0.1, 0.2, 0.3})

	assert.Equal(t, 3, chunk.Dimensions)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, chunk.EmbeddingVector())

	require.NoError(t, chunk.SetMetadata(ChunkMetadata{Source: "notes.txt", BotID: 2}))
	assert.Contains(t, string(chunk.Metadata), `"source":"notes.txt"`)
}
