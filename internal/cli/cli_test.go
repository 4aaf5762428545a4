package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docproc/internal/app"
	"docproc/internal/model"
)

type mockDocumentService struct {
	requested []string
	err       error
}

func (m *mockDocumentService) Reprocess(_ context.Context, id string) (*model.Document, error) {
	m.requested = append(m.requested, id)
	if m.err != nil {
		return nil, m.err
	}
	return &model.Document{ID: id, Filename: "report.txt", Status: model.StatusPending}, nil
}

type mockProcessingService struct {
	result *app.ProcessingResult
	err    error
}

func (m *mockProcessingService) ProcessByID(_ context.Context, documentID string) (*app.ProcessingResult, error) {
	if m.result != nil {
		m.result.DocumentID = documentID
	}
	return m.result, m.err
}

func setupTestServices(docs DocumentService, processing ProcessingService) func() {
	origDocs, origProcessing := documentService, processingService
	SetServices(docs, processing)
	return func() {
		SetServices(origDocs, origProcessing)
		processJSON = false
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return buf.String(), err
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "enqueue")
	assert.Contains(t, names, "process")
}

func TestEnqueueCmd_RequiresExactlyOneArg(t *testing.T) {
	cleanup := setupTestServices(&mockDocumentService{}, &mockProcessingService{})
	defer cleanup()

	_, err := execute(t, "enqueue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestEnqueueCmd_QueuesDocument(t *testing.T) {
	docs := &mockDocumentService{}
	cleanup := setupTestServices(docs, &mockProcessingService{})
	defer cleanup()

	out, err := execute(t, "enqueue", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-1"}, docs.requested)
	assert.Contains(t, out, "Queued document doc-1 (report.txt)")
	assert.Contains(t, out, "Status: Pending")
}

func TestEnqueueCmd_ReportsMissingDocument(t *testing.T) {
	cleanup := setupTestServices(&mockDocumentService{err: app.ErrDocumentNotFound}, &mockProcessingService{})
	defer cleanup()

	_, err := execute(t, "enqueue", "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, app.ErrDocumentNotFound)
}

func TestEnqueueCmd_NotConfigured(t *testing.T) {
	cleanup := setupTestServices(nil, nil)
	defer cleanup()

	_, err := execute(t, "enqueue", "doc-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "document service not configured")
}

func TestProcessCmd_PrintsSummary(t *testing.T) {
	processing := &mockProcessingService{result: &app.ProcessingResult{
		Status:          model.StatusProcessedWithErrors,
		Stage:           app.StageFinalized,
		ChunkCount:      10,
		PersistedChunks: 9,
		FailedChunks:    1,
		Verification:    &app.VerificationResult{Expected: 10, Persisted: 9},
		Error:           "1 chunks failed to process",
	}}
	cleanup := setupTestServices(&mockDocumentService{}, processing)
	defer cleanup()

	out, err := execute(t, "process", "doc-7")
	require.NoError(t, err)
	assert.Contains(t, out, "Document: doc-7")
	assert.Contains(t, out, "Processed with errors")
	assert.Contains(t, out, "Verified:  9/10")
	assert.Contains(t, out, "1 chunks failed to process")
}

func TestProcessCmd_JSONOutput(t *testing.T) {
	processing := &mockProcessingService{result: &app.ProcessingResult{
		Status:          model.StatusProcessed,
		Stage:           app.StageFinalized,
		ChunkCount:      3,
		PersistedChunks: 3,
	}}
	cleanup := setupTestServices(&mockDocumentService{}, processing)
	defer cleanup()

	out, err := execute(t, "process", "doc-3", "--json")
	require.NoError(t, err)

	var decoded app.ProcessingResult
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "doc-3", decoded.DocumentID)
	assert.Equal(t, model.StatusProcessed, decoded.Status)
	assert.Equal(t, 3, decoded.PersistedChunks)
}

func TestProcessCmd_TransientFailurePrintsResultAndFails(t *testing.T) {
	processing := &mockProcessingService{
		result: &app.ProcessingResult{Status: model.StatusError, Stage: app.StageExtracting, Error: "database unavailable"},
		err:    errors.New("database unavailable"),
	}
	cleanup := setupTestServices(&mockDocumentService{}, processing)
	defer cleanup()

	out, err := execute(t, "process", "doc-9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to process document")
	assert.Contains(t, out, "Status:    Error")
}

func TestProcessCmd_NotConfigured(t *testing.T) {
	cleanup := setupTestServices(nil, nil)
	defer cleanup()

	_, err := execute(t, "process", "doc-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "processing service not configured")
}
