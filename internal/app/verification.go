package app

import (
	"context"
	"fmt"
	"log/slog"
)

type ChunkCounter interface {
	CountByDocumentID(ctx context.Context, documentID string) (int64, error)
}

type VerificationResult struct {
	Expected  int  `json:"expected"`
	Persisted int  `json:"persisted"`
	OK        bool `json:"ok"`
}

// VerificationProbe compares the persisted chunk count of a document with the expected one.
// A shortfall is logged; it never fails the document.
type VerificationProbe struct {
	counter ChunkCounter
	logger  *slog.Logger
}

func NewVerificationProbe(counter ChunkCounter, logger *slog.Logger) *VerificationProbe {
	if logger == nil {
		logger = slog.Default()
	}
	return &VerificationProbe{counter: counter, logger: logger}
}

func (p *VerificationProbe) Verify(ctx context.Context, documentID string, expected int) (VerificationResult, error) {
	count, err := p.counter.CountByDocumentID(ctx, documentID)
	if err != nil {
		return VerificationResult{Expected: expected}, fmt.Errorf("verify chunk count failed: %w", err)
	}

	res := VerificationResult{
		Expected:  expected,
		Persisted: int(count),
		OK:        int(count) >= expected,
	}
	if !res.OK {
		p.logger.Warn("persisted chunk count below expected",
			"document_id", documentID,
			"expected", expected,
			"persisted", res.Persisted)
	}
	return res, nil
}
