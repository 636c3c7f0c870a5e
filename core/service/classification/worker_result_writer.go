package classification

import (
	"context"

	"github.com/FinanGammell/pare/core/domain"
	"github.com/FinanGammell/pare/core/port/out"
	"github.com/FinanGammell/pare/pkg/apperr"
)

// Writer persists one validated result.
type Writer interface {
	Write(ctx context.Context, result *domain.ClassificationResult) error
}

// ResultWriter upserts results by email id. Writing the same result twice
// leaves one stored row, so retries after a partial failure are safe.
type ResultWriter struct {
	repo out.ResultRepository
}

func NewResultWriter(repo out.ResultRepository) *ResultWriter {
	return &ResultWriter{repo: repo}
}

// Write stores the result, its derived record and the processed flag
// atomically. Any repository error is reported as a StorageFailure.
func (w *ResultWriter) Write(ctx context.Context, result *domain.ClassificationResult) error {
	if err := w.repo.SaveResult(ctx, result); err != nil {
		return apperr.StorageFailure("save classification "+result.EmailID, err)
	}
	return nil
}
