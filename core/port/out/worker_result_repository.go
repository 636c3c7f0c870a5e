package out

import (
	"context"

	"github.com/google/uuid"

	"github.com/FinanGammell/pare/core/domain"
)

// ResultRepository persists classification results and their derived records.
type ResultRepository interface {
	// SaveResult upserts the classification, replaces the derived record and
	// sets the email's processed flag, all in one transaction.
	SaveResult(ctx context.Context, result *domain.ClassificationResult) error

	ListMeetings(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Meeting, error)
	ListTasks(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Task, error)
	ListJunk(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.JunkRecord, error)
}
