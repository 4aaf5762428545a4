package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"docproc/internal/ai"
	"docproc/internal/model"
	"docproc/internal/pkg/retry"
	"docproc/internal/pkg/textextract"
	"docproc/internal/pkg/textsplit"
	"docproc/internal/platform/objectstore"
)

const (
	DefaultBatchSize  = 5
	DefaultBatchDelay = 500 * time.Millisecond
)

type Stage string

const (
	StageDownloading            Stage = "Downloading"
	StageExtracting             Stage = "Extracting"
	StageSplitting              Stage = "Splitting"
	StageEmbeddingAndPersisting Stage = "EmbeddingAndPersisting"
	StageVerifying              Stage = "Verifying"
	StageFinalized              Stage = "Finalized"
)

type DocumentStore interface {
	GetByID(ctx context.Context, id string) (*model.Document, error)
	UpdateStatus(ctx context.Context, id string, status model.DocumentStatus, processingError *string) error
	UpdateContent(ctx context.Context, id, content string) error
	UpdateChunkCount(ctx context.Context, id string, chunkCount int) error
}

type ChunkStore interface {
	ChunkWriter
	ChunkCounter
	DeleteFromIndex(ctx context.Context, documentID string, fromIndex int) error
}

// ObjectStorage returns objectstore.ErrObjectNotFound (possibly wrapped) for a missing key.
type ObjectStorage interface {
	GetFile(ctx context.Context, key string) ([]byte, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([]ai.EmbeddingResult, error)
}

// DocumentLocker grants one holder at a time per document id. Extend renews the holder's lease
// and reports false once the lock has expired or changed hands.
type DocumentLocker interface {
	Acquire(ctx context.Context, documentID string) (token string, acquired bool, err error)
	Extend(ctx context.Context, documentID, token string) (held bool, err error)
	Release(ctx context.Context, documentID, token string) error
}

type ProcessingConfig struct {
	ChunkSize    int
	ChunkOverlap int
	BatchSize    int
	BatchDelay   time.Duration
}

// ProcessingResult summarizes one run of the pipeline for a document.
type ProcessingResult struct {
	DocumentID      string               `json:"document_id"`
	Status          model.DocumentStatus `json:"status"`
	Stage           Stage                `json:"stage"`
	ChunkCount      int                  `json:"chunk_count"`
	PersistedChunks int                  `json:"persisted_chunks"`
	FailedChunks    int                  `json:"failed_chunks"`
	Verification    *VerificationResult  `json:"verification,omitempty"`
	Error           string               `json:"error,omitempty"`
}

// ProcessingService runs the download, extract, split, embed, persist, verify and finalize
// stages for one document job.
type ProcessingService struct {
	docs     DocumentStore
	chunks   ChunkStore
	storage  ObjectStorage
	embedder Embedder
	locker   DocumentLocker
	sink     *ChunkSink
	probe    *VerificationProbe
	logger   *slog.Logger

	cfg           ProcessingConfig
	persistPolicy retry.Policy
}

type ProcessingOption func(*ProcessingService)

func WithProcessingConfig(cfg ProcessingConfig) ProcessingOption {
	return func(s *ProcessingService) {
		s.cfg = cfg
	}
}

func WithDocumentLocker(locker DocumentLocker) ProcessingOption {
	return func(s *ProcessingService) {
		s.locker = locker
	}
}

// WithPersistRetry sets the retry policy ChunkSink uses for chunk writes.
func WithPersistRetry(policy retry.Policy) ProcessingOption {
	return func(s *ProcessingService) {
		s.persistPolicy = policy
	}
}

func WithProcessingLogger(logger *slog.Logger) ProcessingOption {
	return func(s *ProcessingService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewProcessingService(
	docs DocumentStore,
	chunks ChunkStore,
	storage ObjectStorage,
	embedder Embedder,
	opts ...ProcessingOption,
) *ProcessingService {
	s := &ProcessingService{
		docs:     docs,
		chunks:   chunks,
		storage:  storage,
		embedder: embedder,
		logger:   slog.Default(),
		cfg: ProcessingConfig{
			ChunkSize:    textsplit.DefaultChunkSize,
			ChunkOverlap: textsplit.DefaultChunkOverlap,
			BatchSize:    DefaultBatchSize,
			BatchDelay:   DefaultBatchDelay,
		},
		persistPolicy: retry.Policy{
			MaxAttempts: DefaultPersistAttempts,
			BaseDelay:   DefaultPersistBaseDelay,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.BatchSize <= 0 {
		s.cfg.BatchSize = DefaultBatchSize
	}
	if s.cfg.BatchDelay < 0 {
		s.cfg.BatchDelay = 0
	}
	s.sink = NewChunkSink(chunks, s.persistPolicy, s.logger)
	s.probe = NewVerificationProbe(chunks, s.logger)
	return s
}

// ProcessByID loads the document and runs the pipeline for it.
func (s *ProcessingService) ProcessByID(ctx context.Context, documentID string) (*ProcessingResult, error) {
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	return s.Process(ctx, model.JobForDocument(doc))
}

// Process runs every stage for job and records the final status on the document.
//
// The returned error is nil when the document reached a final status that redelivery cannot
// change: Processed, Processed with errors, or Error caused by a missing source or undecodable
// content. Transient stage failures still finalize the document as Error but are returned so the
// caller can redeliver the job. ErrDocumentNotFound and ErrDocumentBusy are returned without
// touching the document, as is ErrDocumentLockLost when the lock expires mid-run.
func (s *ProcessingService) Process(ctx context.Context, job model.ProcessingJob) (*ProcessingResult, error) {
	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	var lockToken string
	if s.locker != nil {
		token, acquired, err := s.locker.Acquire(ctx, job.DocumentID)
		if err != nil {
			return nil, fmt.Errorf("acquire document lock failed: %w", err)
		}
		if !acquired {
			return nil, ErrDocumentBusy
		}
		lockToken = token
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), job.DocumentID, token); err != nil {
				s.logger.Warn("release document lock failed", "document_id", job.DocumentID, "err", err)
			}
		}()
	}

	doc, err := s.docs.GetByID(ctx, job.DocumentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}

	run := &pipelineRun{
		svc:    s,
		job:    job,
		doc:    doc,
		logger: s.logger.With("document_id", job.DocumentID),
		result: &ProcessingResult{DocumentID: job.DocumentID},

		lockToken: lockToken,
	}
	return run.execute(ctx)
}

type pipelineRun struct {
	svc    *ProcessingService
	job    model.ProcessingJob
	doc    *model.Document
	logger *slog.Logger
	result *ProcessingResult

	lockToken string
	chunks    []string
}

func (r *pipelineRun) execute(ctx context.Context) (*ProcessingResult, error) {
	start := time.Now()
	if err := r.svc.docs.UpdateStatus(ctx, r.job.DocumentID, model.StatusProcessing, nil); err != nil {
		return r.fail(ctx, err)
	}
	r.logger.Info("document processing started", "storage_key", r.job.StorageKey)

	r.result.Stage = StageDownloading
	data, err := r.svc.storage.GetFile(ctx, r.job.StorageKey)
	if err != nil {
		if errors.Is(err, objectstore.ErrObjectNotFound) {
			return r.fail(ctx, &SourceMissingError{Key: r.job.StorageKey, Err: err})
		}
		return r.fail(ctx, fmt.Errorf("download document failed: %w", err))
	}

	r.result.Stage = StageExtracting
	text, err := textextract.Decode(data)
	if err != nil {
		return r.fail(ctx, err)
	}
	if err := r.svc.docs.UpdateContent(ctx, r.job.DocumentID, text); err != nil {
		return r.fail(ctx, err)
	}

	r.result.Stage = StageSplitting
	cfg := r.svc.cfg
	r.chunks = textsplit.Split(text, cfg.ChunkSize, cfg.ChunkOverlap)
	r.result.ChunkCount = len(r.chunks)
	if err := r.svc.docs.UpdateChunkCount(ctx, r.job.DocumentID, len(r.chunks)); err != nil {
		return r.fail(ctx, err)
	}
	if err := r.svc.chunks.DeleteFromIndex(ctx, r.job.DocumentID, len(r.chunks)); err != nil {
		return r.fail(ctx, err)
	}

	r.result.Stage = StageEmbeddingAndPersisting
	if err := r.embedAndPersist(ctx); err != nil {
		if errors.Is(err, ErrDocumentLockLost) {
			// The document may belong to another run now; leave its status alone.
			r.logger.Warn("document lock lost, abandoning run", "persisted_chunks", r.result.PersistedChunks)
			return r.result, err
		}
		return r.fail(ctx, err)
	}

	r.result.Stage = StageVerifying
	verification, err := r.svc.probe.Verify(ctx, r.job.DocumentID, len(r.chunks))
	if err != nil {
		r.logger.Warn("chunk verification skipped", "err", err)
	} else {
		r.result.Verification = &verification
	}

	res, err := r.finalize(ctx)
	if err == nil {
		r.logger.Info("document processing finished",
			"status", res.Status,
			"chunks", res.ChunkCount,
			"failed_chunks", res.FailedChunks,
			"elapsed", time.Since(start))
	}
	return res, err
}

// embedAndPersist walks the chunks in batches. Chunk level failures are counted in the result;
// only context cancellation aborts the stage.
func (r *pipelineRun) embedAndPersist(ctx context.Context) error {
	batchSize := r.svc.cfg.BatchSize
	meta := model.ChunkMetadata{
		Source:    r.sourceName(),
		MimeType:  r.mimeType(),
		BotID:     r.job.BotID,
		CreatedAt: time.Now().UTC(),
	}

	for start := 0; start < len(r.chunks); start += batchSize {
		end := start + batchSize
		if end > len(r.chunks) {
			end = len(r.chunks)
		}

		results, err := r.svc.embedder.EmbedBatch(ctx, r.chunks[start:end])
		if err != nil {
			return fmt.Errorf("embed batch starting at chunk %d failed: %w", start, err)
		}

		for i := start; i < end; i++ {
			var vec []float32
			if j := i - start; j < len(results) {
				vec = results[j].Vector
			}
			if len(vec) == 0 {
				vec, err = r.svc.embedder.Embed(ctx, r.chunks[i])
				if err != nil {
					if ctxErr := ctx.Err(); ctxErr != nil {
						return ctxErr
					}
					r.logger.Warn("chunk embedding failed", "chunk_index", i, "err", err)
					r.result.FailedChunks++
					continue
				}
			}

			err := r.svc.sink.Persist(ctx, ChunkRecord{
				DocumentID: r.job.DocumentID,
				Index:      i,
				Total:      len(r.chunks),
				Text:       r.chunks[i],
				Vector:     vec,
				Metadata:   meta,
			})
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				r.logger.Warn("chunk persistence failed", "chunk_index", i, "err", err)
				r.result.FailedChunks++
				continue
			}
			r.result.PersistedChunks++
		}

		if end < len(r.chunks) {
			if err := retry.Sleep(ctx, r.svc.cfg.BatchDelay); err != nil {
				return err
			}
			if err := r.keepLock(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// keepLock renews the document lock before the next batch. A Redis failure is only logged since
// the lease still has time left; a lock that changed hands stops the run.
func (r *pipelineRun) keepLock(ctx context.Context) error {
	if r.svc.locker == nil || r.lockToken == "" {
		return nil
	}
	held, err := r.svc.locker.Extend(ctx, r.job.DocumentID, r.lockToken)
	if err != nil {
		r.logger.Warn("extend document lock failed", "err", err)
		return nil
	}
	if !held {
		return ErrDocumentLockLost
	}
	return nil
}

func (r *pipelineRun) finalize(ctx context.Context) (*ProcessingResult, error) {
	r.result.Stage = StageFinalized
	failed := r.result.FailedChunks
	total := len(r.chunks)

	var (
		status model.DocumentStatus
		msg    *string
	)
	switch {
	case failed == 0:
		status = model.StatusProcessed
	case failed < total:
		status = model.StatusProcessedWithErrors
		msg = stringPtr(fmt.Sprintf("%d chunks failed to process", failed))
	default:
		status = model.StatusError
		msg = stringPtr(fmt.Sprintf("all %d chunks failed to process", failed))
	}

	r.result.Status = status
	if msg != nil {
		r.result.Error = *msg
	}
	if err := r.svc.docs.UpdateStatus(ctx, r.job.DocumentID, status, msg); err != nil {
		return r.result, fmt.Errorf("finalize document status failed: %w", err)
	}
	return r.result, nil
}

// fail finalizes the document as Error with cause. Missing sources and undecodable content are
// permanent and reported as a result only; anything else is also returned for redelivery.
func (r *pipelineRun) fail(ctx context.Context, cause error) (*ProcessingResult, error) {
	stage := r.result.Stage
	r.result.Stage = StageFinalized
	r.result.Status = model.StatusError
	r.result.Error = cause.Error()
	r.logger.Error("document processing failed", "stage", stage, "err", cause)

	writeCtx := context.WithoutCancel(ctx)
	if err := r.svc.docs.UpdateStatus(writeCtx, r.job.DocumentID, model.StatusError, stringPtr(cause.Error())); err != nil {
		r.logger.Error("record processing error failed", "err", err)
	}

	if isPermanent(cause) {
		return r.result, nil
	}
	return r.result, cause
}

func (r *pipelineRun) sourceName() string {
	if r.job.Filename != "" {
		return r.job.Filename
	}
	return r.doc.Filename
}

func (r *pipelineRun) mimeType() string {
	if r.job.MimeType != "" {
		return r.job.MimeType
	}
	return r.doc.MimeType
}

func isPermanent(err error) bool {
	var missing *SourceMissingError
	var decode *textextract.DecodeError
	return errors.As(err, &missing) || errors.As(err, &decode)
}

func stringPtr(s string) *string {
	return &s
}
