package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"docproc/internal/ai"
	"docproc/internal/model"
	"docproc/internal/platform/objectstore"
)

type statusUpdate struct {
	Status model.DocumentStatus
	Error  *string
}

type fakeDocumentStore struct {
	mu       sync.Mutex
	docs     map[string]*model.Document
	updates   []statusUpdate
	failNext  error
	createErr error
}

func newFakeDocumentStore(docs ...*model.Document) *fakeDocumentStore {
	s := &fakeDocumentStore{docs: map[string]*model.Document{}}
	for _, d := range docs {
		s.docs[d.ID] = d
	}
	return s
}

func (s *fakeDocumentStore) GetByID(_ context.Context, id string) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, nil
	}
	cp := *doc
	return &cp, nil
}

func (s *fakeDocumentStore) UpdateStatus(_ context.Context, id string, status model.DocumentStatus, processingError *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, statusUpdate{Status: status, Error: processingError})
	if doc, ok := s.docs[id]; ok {
		doc.Status = status
		doc.ProcessingError = processingError
	}
	return nil
}

func (s *fakeDocumentStore) UpdateContent(_ context.Context, id, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}
	if doc, ok := s.docs[id]; ok {
		doc.Content = content
	}
	return nil
}

func (s *fakeDocumentStore) UpdateChunkCount(_ context.Context, id string, chunkCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc, ok := s.docs[id]; ok {
		doc.ChunkCount = chunkCount
	}
	return nil
}

func (s *fakeDocumentStore) get(id string) model.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.docs[id]
}

func (s *fakeDocumentStore) statuses() []model.DocumentStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.DocumentStatus, len(s.updates))
	for i, u := range s.updates {
		out[i] = u.Status
	}
	return out
}

type fakeChunkStore struct {
	mu        sync.Mutex
	chunks    map[string]map[int]model.DocumentChunk
	failIndex map[int]bool
	attempts  map[int]int
	countErr  error
}

func newFakeChunkStore() *fakeChunkStore {
	return &fakeChunkStore{
		chunks:    map[string]map[int]model.DocumentChunk{},
		failIndex: map[int]bool{},
		attempts:  map[int]int{},
	}
}

func (s *fakeChunkStore) Upsert(_ context.Context, chunk *model.DocumentChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[chunk.ChunkIndex]++
	if s.failIndex[chunk.ChunkIndex] {
		return errors.New("deadlock found when trying to get lock")
	}
	if s.chunks[chunk.DocumentID] == nil {
		s.chunks[chunk.DocumentID] = map[int]model.DocumentChunk{}
	}
	s.chunks[chunk.DocumentID][chunk.ChunkIndex] = *chunk
	return nil
}

func (s *fakeChunkStore) CountByDocumentID(_ context.Context, documentID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countErr != nil {
		return 0, s.countErr
	}
	return int64(len(s.chunks[documentID])), nil
}

func (s *fakeChunkStore) DeleteFromIndex(_ context.Context, documentID string, fromIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for idx := range s.chunks[documentID] {
		if idx >= fromIndex {
			delete(s.chunks[documentID], idx)
		}
	}
	return nil
}

func (s *fakeChunkStore) stored(documentID string) map[int]model.DocumentChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[int]model.DocumentChunk{}
	for k, v := range s.chunks[documentID] {
		out[k] = v
	}
	return out
}

type fakeStorage struct {
	files map[string][]byte
	err   error
}

func (s *fakeStorage) GetFile(_ context.Context, key string) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	data, ok := s.files[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", objectstore.ErrObjectNotFound, key)
	}
	return data, nil
}

// fakeEmbedder returns a one-element vector holding the text length. Texts in batchMiss come
// back empty from EmbedBatch; texts in alwaysFail fail in both calls.
type fakeEmbedder struct {
	mu         sync.Mutex
	batchMiss  map[string]bool
	alwaysFail map[string]bool
	batches    [][]string
	singles    []string
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{batchMiss: map[string]bool{}, alwaysFail: map[string]bool{}}
}

func (e *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.singles = append(e.singles, text)
	if e.alwaysFail[text] {
		return nil, &ai.EmbeddingError{Attempts: 3, Err: errors.New("provider rejected input")}
	}
	return []float32{float32(len(text))}, nil
}

func (e *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]ai.EmbeddingResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.batches = append(e.batches, append([]string(nil), texts...))
	results := make([]ai.EmbeddingResult, len(texts))
	for i, text := range texts {
		results[i].Text = text
		if e.batchMiss[text] || e.alwaysFail[text] {
			continue
		}
		results[i].Vector = []float32{float32(len(text))}
	}
	return results, ctx.Err()
}

// fakeLocker hands the lock to another run on the loseAfter-th Extend when loseAfter > 0.
type fakeLocker struct {
	mu        sync.Mutex
	held      map[string]string
	released  int
	extends   int
	loseAfter int
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: map[string]string{}}
}

func (l *fakeLocker) Acquire(_ context.Context, documentID string) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[documentID]; ok {
		return "", false, nil
	}
	l.held[documentID] = "token-" + documentID
	return l.held[documentID], true, nil
}

func (l *fakeLocker) Extend(_ context.Context, documentID, token string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.extends++
	if l.loseAfter > 0 && l.extends >= l.loseAfter {
		l.held[documentID] = "token-other-run"
	}
	return l.held[documentID] == token, nil
}

func (l *fakeLocker) Release(_ context.Context, documentID, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[documentID] == token {
		delete(l.held, documentID)
		l.released++
	}
	return nil
}

func (s *fakeDocumentStore) Create(_ context.Context, doc *model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	cp := *doc
	s.docs[doc.ID] = &cp
	return nil
}

func (s *fakeDocumentStore) ListByBotID(_ context.Context, botID int64) ([]model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Document
	for _, d := range s.docs {
		if botID == 0 || d.BotID == botID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *fakeDocumentStore) ListSearchableIDs(_ context.Context, botID int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, d := range s.docs {
		if d.BotID == botID && d.Status.Searchable() {
			ids = append(ids, d.ID)
		}
	}
	return ids, nil
}

func (s *fakeDocumentStore) UpdateDetails(_ context.Context, id string, details model.DocumentDetails) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil
	}
	if details.Filename != nil {
		doc.Filename = *details.Filename
	}
	if details.MimeType != nil {
		doc.MimeType = *details.MimeType
	}
	return nil
}

func (s *fakeDocumentStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	return nil
}

func (s *fakeChunkStore) DeleteByDocumentID(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chunks, documentID)
	return nil
}

func (s *fakeChunkStore) ListByDocumentIDs(_ context.Context, documentIDs []string) ([]model.DocumentChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.DocumentChunk
	for _, id := range documentIDs {
		for i := 0; i < len(s.chunks[id]); i++ {
			out = append(out, s.chunks[id][i])
		}
	}
	return out, nil
}

func (s *fakeStorage) PutFile(_ context.Context, key string, data []byte) error {
	if s.err != nil {
		return s.err
	}
	if s.files == nil {
		s.files = map[string][]byte{}
	}
	s.files[key] = data
	return nil
}

func (s *fakeStorage) DeleteFile(_ context.Context, key string) error {
	delete(s.files, key)
	return nil
}

type fakePublisher struct {
	mu   sync.Mutex
	jobs []model.ProcessingJob
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, job model.ProcessingJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.jobs = append(p.jobs, job)
	return nil
}
