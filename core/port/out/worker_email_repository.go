package out

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/FinanGammell/pare/core/domain"
)

// EmailRepository stores fetched messages and answers pipeline queries.
type EmailRepository interface {
	// KnownIDs returns every stored provider message id for the user.
	KnownIDs(ctx context.Context, userID uuid.UUID) (map[string]struct{}, error)
	// LatestReceivedAt returns the newest stored received time, zero if none.
	LatestReceivedAt(ctx context.Context, userID uuid.UUID) (time.Time, error)
	// InsertBatch stores new rows with processed=false in one transaction and
	// returns how many were inserted. Existing ids are left untouched.
	InsertBatch(ctx context.Context, emails []*domain.Email) (int, error)
	// ListUnprocessed returns rows with processed=false, oldest first.
	ListUnprocessed(ctx context.Context, userID uuid.UUID) ([]*domain.Email, error)
	Stats(ctx context.Context, userID uuid.UUID) (*domain.SyncStats, error)
	// Hide soft-deletes a message. Returns false if no row matched.
	Hide(ctx context.Context, userID uuid.UUID, emailID string) (bool, error)
}
