package domain

import (
	"time"

	"github.com/google/uuid"
)

type Provider string

const (
	MailProviderGmail Provider = "google"
)

// Email is one stored mailbox message. Identity is (UserID, ID) where ID is
// the provider message id. Only Processed, Hidden and backfilled body fields
// change after the first insert.
type Email struct {
	ID             string    `json:"id"`
	UserID         uuid.UUID `json:"user_id"`
	ThreadID       string    `json:"thread_id,omitempty"`
	Subject        string    `json:"subject"`
	Sender         string    `json:"sender"`
	ReceivedAt     time.Time `json:"received_at"`
	Snippet        string    `json:"snippet"`
	Body           string    `json:"body,omitempty"`
	UnsubscribeURL string    `json:"unsubscribe_url,omitempty"`
	RawPayload     []byte    `json:"-"`
	Processed      bool      `json:"processed"`
	Hidden         bool      `json:"hidden"`
	CreatedAt      time.Time `json:"created_at"`
}

// FetchedMessage is what the mailbox collaborator hands back for one new message.
type FetchedMessage struct {
	ID             string
	ThreadID       string
	Subject        string
	Sender         string
	ReceivedAt     time.Time
	Snippet        string
	Body           string
	UnsubscribeURL string
	RawPayload     []byte
}

// ToEmail converts a fetched message into an unprocessed Email row.
func (m *FetchedMessage) ToEmail(userID uuid.UUID) *Email {
	return &Email{
		ID:             m.ID,
		UserID:         userID,
		ThreadID:       m.ThreadID,
		Subject:        m.Subject,
		Sender:         m.Sender,
		ReceivedAt:     m.ReceivedAt,
		Snippet:        m.Snippet,
		Body:           m.Body,
		UnsubscribeURL: m.UnsubscribeURL,
		RawPayload:     m.RawPayload,
	}
}

// FetchQuery narrows a mailbox listing.
type FetchQuery struct {
	// After limits the listing to messages newer than this instant. Zero means no bound.
	After time.Time
	// ExcludeFrom skips messages sent by this address (the user's own mail).
	ExcludeFrom string
	MaxResults  int
}

// SyncStats are persisted counts for a user, independent of any job.
type SyncStats struct {
	Total       int `json:"total" db:"total"`
	Processed   int `json:"processed" db:"processed"`
	Unprocessed int `json:"unprocessed" db:"unprocessed"`
}
