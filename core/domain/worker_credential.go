package domain

import (
	"time"

	"github.com/google/uuid"
)

// RefreshLeeway is how close to expiry a token is refreshed proactively.
const RefreshLeeway = 5 * time.Minute

// Credential is the stored, refreshable mailbox credential for a user.
// It is produced by the external login handshake.
type Credential struct {
	UserID       uuid.UUID `json:"user_id"`
	Provider     Provider  `json:"provider"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	TokenType    string    `json:"token_type"`
	Expiry       time.Time `json:"expiry"`
	Scopes       []string  `json:"scopes"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NeedsRefresh reports whether the access token expires within RefreshLeeway.
func (c *Credential) NeedsRefresh(now time.Time) bool {
	if c.Expiry.IsZero() {
		return false
	}
	return c.Expiry.Sub(now) < RefreshLeeway
}
