package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/FinanGammell/pare/core/domain"
	"github.com/FinanGammell/pare/core/port/out"
	"github.com/FinanGammell/pare/pkg/crypto"
	"github.com/FinanGammell/pare/pkg/logger"
)

var _ out.CredentialRepository = (*CredentialAdapter)(nil)

// =============================================================================
// Credential Adapter (PostgreSQL)
// =============================================================================

// CredentialAdapter stores mailbox credentials. Tokens are sealed with the
// encryptor when one is configured.
type CredentialAdapter struct {
	db  *sqlx.DB
	enc *crypto.Encryptor
}

// NewCredentialAdapter creates the adapter. A nil encryptor stores tokens as-is.
func NewCredentialAdapter(db *sqlx.DB, enc *crypto.Encryptor) *CredentialAdapter {
	return &CredentialAdapter{db: db, enc: enc}
}

type credentialRow struct {
	UserID       uuid.UUID      `db:"user_id"`
	Provider     string         `db:"provider"`
	Email        string         `db:"email"`
	AccessToken  string         `db:"access_token"`
	RefreshToken string         `db:"refresh_token"`
	TokenType    string         `db:"token_type"`
	Expiry       sql.NullTime   `db:"expiry"`
	Scopes       pq.StringArray `db:"scopes"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (a *CredentialAdapter) Get(ctx context.Context, userID uuid.UUID) (*domain.Credential, error) {
	var row credentialRow
	err := a.db.GetContext(ctx, &row, `
		SELECT user_id, provider, email, access_token, refresh_token, token_type, expiry, scopes, updated_at
		FROM mail_credentials
		WHERE user_id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	access, err := a.open(row.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	refresh, err := a.open(row.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}

	cred := &domain.Credential{
		UserID:       row.UserID,
		Provider:     domain.Provider(row.Provider),
		Email:        row.Email,
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    row.TokenType,
		Scopes:       []string(row.Scopes),
		UpdatedAt:    row.UpdatedAt,
	}
	if row.Expiry.Valid {
		cred.Expiry = row.Expiry.Time.UTC()
	}
	return cred, nil
}

// Save upserts the credential. An empty refresh token keeps the stored one.
func (a *CredentialAdapter) Save(ctx context.Context, cred *domain.Credential) error {
	access, err := a.seal(cred.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}
	refresh, err := a.seal(cred.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	var expiry sql.NullTime
	if !cred.Expiry.IsZero() {
		expiry = sql.NullTime{Time: cred.Expiry, Valid: true}
	}
	scopes := cred.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	updatedAt := cred.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO mail_credentials (user_id, provider, email, access_token, refresh_token, token_type, expiry, scopes, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			provider = EXCLUDED.provider,
			email = CASE WHEN EXCLUDED.email = '' THEN mail_credentials.email ELSE EXCLUDED.email END,
			access_token = EXCLUDED.access_token,
			refresh_token = CASE WHEN EXCLUDED.refresh_token = '' THEN mail_credentials.refresh_token ELSE EXCLUDED.refresh_token END,
			token_type = EXCLUDED.token_type,
			expiry = EXCLUDED.expiry,
			scopes = EXCLUDED.scopes,
			updated_at = EXCLUDED.updated_at`,
		cred.UserID, string(cred.Provider), cred.Email, access, refresh, cred.TokenType, expiry, pq.StringArray(scopes), updatedAt)
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

func (a *CredentialAdapter) ListUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := a.db.SelectContext(ctx, &ids, `SELECT user_id FROM mail_credentials ORDER BY user_id`); err != nil {
		return nil, fmt.Errorf("failed to list credential users: %w", err)
	}
	return ids, nil
}

func (a *CredentialAdapter) seal(token string) (string, error) {
	if a.enc == nil || token == "" {
		return token, nil
	}
	return a.enc.Encrypt(token)
}

func (a *CredentialAdapter) open(stored string) (string, error) {
	if a.enc == nil || stored == "" {
		return stored, nil
	}
	if !crypto.IsEncrypted(stored) {
		// written before encryption was enabled
		logger.Warn("[CredentialAdapter] found unencrypted token, it will be sealed on next save")
		return stored, nil
	}
	return a.enc.Decrypt(stored)
}
