package in

import (
	"context"

	"github.com/google/uuid"

	"github.com/FinanGammell/pare/core/domain"
)

// SyncService starts background syncs and reports their progress.
type SyncService interface {
	// StartSync returns the new QUEUED job or an ALREADY_RUNNING error.
	StartSync(ctx context.Context, userID uuid.UUID) (*domain.SyncJob, error)
	// GetStatus returns the latest job snapshot or a NOT_FOUND error.
	GetStatus(ctx context.Context, userID uuid.UUID) (*domain.SyncJob, error)
}

// ResultService serves the derived records produced by classification.
type ResultService interface {
	Stats(ctx context.Context, userID uuid.UUID) (*domain.SyncStats, error)
	ListMeetings(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Meeting, error)
	ListTasks(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Task, error)
	ListJunk(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.JunkRecord, error)
	HideEmail(ctx context.Context, userID uuid.UUID, emailID string) error
}

// CredentialService accepts credentials produced by the external login handshake.
type CredentialService interface {
	SaveCredential(ctx context.Context, cred *domain.Credential) error
}
