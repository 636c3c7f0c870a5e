// Package out defines outbound ports (driven ports) for the application.
package out

import (
	"context"

	"github.com/google/uuid"

	"github.com/FinanGammell/pare/core/domain"
)

// =============================================================================
// Mailbox Provider Port (Gmail)
// =============================================================================

// MailboxProvider reads messages from the user's mailbox. It never mutates
// the mailbox.
type MailboxProvider interface {
	// ListMessageIDs returns ids matching the query, newest first.
	ListMessageIDs(ctx context.Context, cred *domain.Credential, q domain.FetchQuery) ([]string, error)
	// FetchMessages loads full messages for ids. Any failure fails the call.
	FetchMessages(ctx context.Context, cred *domain.Credential, ids []string) ([]*domain.FetchedMessage, error)
}

// CredentialRepository stores encrypted mailbox credentials.
type CredentialRepository interface {
	Get(ctx context.Context, userID uuid.UUID) (*domain.Credential, error)
	Save(ctx context.Context, cred *domain.Credential) error
	ListUserIDs(ctx context.Context) ([]uuid.UUID, error)
}

// CredentialSource hands out a usable, refreshed credential.
type CredentialSource interface {
	UsableCredential(ctx context.Context, userID uuid.UUID) (*domain.Credential, error)
}
