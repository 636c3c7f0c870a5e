package out

import (
	"context"

	"github.com/google/uuid"

	"github.com/FinanGammell/pare/core/domain"
)

// JobStore holds per-user sync job snapshots and the per-user lock.
type JobStore interface {
	// Start atomically acquires the user's lock and records job as the
	// current snapshot. It returns false without side effects when another
	// non-terminal job holds the lock.
	Start(ctx context.Context, job *domain.SyncJob) (bool, error)
	// Get returns the latest snapshot for the user, nil if none exists.
	Get(ctx context.Context, userID uuid.UUID) (*domain.SyncJob, error)
	// Update replaces the snapshot of the job currently holding the lock.
	Update(ctx context.Context, job *domain.SyncJob) error
	// Finish records a terminal snapshot and releases the lock.
	Finish(ctx context.Context, job *domain.SyncJob) error
}
