package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/FinanGammell/pare/core/domain"
	"github.com/FinanGammell/pare/core/port/out"
	"github.com/FinanGammell/pare/pkg/apperr"
	"github.com/FinanGammell/pare/pkg/logger"
)

// GmailReadonlyScope is the only scope the pipeline needs.
const GmailReadonlyScope = "https://www.googleapis.com/auth/gmail.readonly"

// TokenRefresher exchanges a refresh token for a new access token.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// OAuthRefresher refreshes through the provider's token endpoint.
type OAuthRefresher struct {
	config *oauth2.Config
}

// NewGoogleRefresher builds a refresher for Google credentials.
func NewGoogleRefresher(clientID, clientSecret, redirectURL string) *OAuthRefresher {
	return &OAuthRefresher{config: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{GmailReadonlyScope},
		Endpoint:     google.Endpoint,
	}}
}

func (r *OAuthRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	// no access token forces the source to hit the token endpoint
	src := r.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	return src.Token()
}

// CredentialService hands out usable mailbox credentials, refreshing and
// persisting them when they are close to expiry.
type CredentialService struct {
	repo      out.CredentialRepository
	refresher TokenRefresher
	now       func() time.Time
}

func NewCredentialService(repo out.CredentialRepository, refresher TokenRefresher) *CredentialService {
	return &CredentialService{repo: repo, refresher: refresher, now: time.Now}
}

// UsableCredential returns a credential whose access token is valid for at
// least domain.RefreshLeeway. Every failure is a CredentialError.
func (s *CredentialService) UsableCredential(ctx context.Context, userID uuid.UUID) (*domain.Credential, error) {
	cred, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, apperr.CredentialError("failed to load mailbox credential", err)
	}
	if cred == nil {
		return nil, apperr.CredentialError("no mailbox credential for user", nil)
	}

	if cred.AccessToken != "" && !cred.NeedsRefresh(s.now()) {
		return cred, nil
	}
	if cred.RefreshToken == "" {
		return nil, apperr.CredentialError("mailbox credential expired and cannot be refreshed", nil)
	}

	tok, err := s.refresher.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		if isTokenRevokedError(err) {
			logger.Warn("[CredentialService] credential revoked for user %s: %v", userID, err)
			return nil, apperr.CredentialError("mailbox credential revoked, re-authentication required", err)
		}
		return nil, apperr.CredentialError("failed to refresh mailbox credential", err)
	}

	cred.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		cred.RefreshToken = tok.RefreshToken
	}
	if tok.TokenType != "" {
		cred.TokenType = tok.TokenType
	}
	cred.Expiry = tok.Expiry
	cred.UpdatedAt = s.now()

	if err := s.repo.Save(ctx, cred); err != nil {
		// the refreshed token is still usable for this run
		logger.WithError(err).Warn("[CredentialService] failed to persist refreshed credential for user %s", userID)
	} else {
		logger.Debug("[CredentialService] refreshed credential for user %s", userID)
	}
	return cred, nil
}

// SaveCredential stores a credential produced by the login handshake.
func (s *CredentialService) SaveCredential(ctx context.Context, cred *domain.Credential) error {
	if cred.AccessToken == "" && cred.RefreshToken == "" {
		return apperr.ValidationFailed("access_token or refresh_token is required")
	}
	if cred.Provider == "" {
		cred.Provider = domain.MailProviderGmail
	}
	cred.UpdatedAt = s.now()
	if err := s.repo.Save(ctx, cred); err != nil {
		return apperr.DatabaseError("save credential", err)
	}
	return nil
}

// UserIDs lists users that hold a credential.
func (s *CredentialService) UserIDs(ctx context.Context) ([]uuid.UUID, error) {
	ids, err := s.repo.ListUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list credential users: %w", err)
	}
	return ids, nil
}

// isTokenRevokedError checks if the error indicates a permanent token failure.
func isTokenRevokedError(err error) bool {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && (re.ErrorCode == "invalid_grant" || re.ErrorCode == "invalid_client") {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "invalid_client") ||
		strings.Contains(errStr, "invalid_grant") ||
		strings.Contains(errStr, "Token has been expired or revoked") ||
		strings.Contains(errStr, "Token has been revoked")
}
