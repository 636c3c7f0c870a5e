// Package persistence provides database adapters implementing outbound ports.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/FinanGammell/pare/core/domain"
	"github.com/FinanGammell/pare/core/port/out"
)

var _ out.EmailRepository = (*EmailAdapter)(nil)

// =============================================================================
// Email Adapter (PostgreSQL)
// =============================================================================

// EmailAdapter implements out.EmailRepository using PostgreSQL.
type EmailAdapter struct {
	db *sqlx.DB
}

func NewEmailAdapter(db *sqlx.DB) *EmailAdapter {
	return &EmailAdapter{db: db}
}

const emailSelectColumns = `
	id, user_id, thread_id, subject, sender, received_at, snippet, body,
	unsubscribe_url, raw_payload, processed, hidden, created_at`

type emailRow struct {
	ID             string         `db:"id"`
	UserID         uuid.UUID      `db:"user_id"`
	ThreadID       string         `db:"thread_id"`
	Subject        string         `db:"subject"`
	Sender         string         `db:"sender"`
	ReceivedAt     time.Time      `db:"received_at"`
	Snippet        string         `db:"snippet"`
	Body           string         `db:"body"`
	UnsubscribeURL string         `db:"unsubscribe_url"`
	RawPayload     []byte         `db:"raw_payload"`
	Processed      bool           `db:"processed"`
	Hidden         bool           `db:"hidden"`
	CreatedAt      time.Time      `db:"created_at"`
}

func (r *emailRow) toEntity() *domain.Email {
	e := &domain.Email{
		ID:             r.ID,
		UserID:         r.UserID,
		ThreadID:       r.ThreadID,
		Subject:        r.Subject,
		Sender:         r.Sender,
		ReceivedAt:     r.ReceivedAt.UTC(),
		Snippet:        r.Snippet,
		Body:           r.Body,
		UnsubscribeURL: r.UnsubscribeURL,
		RawPayload:     r.RawPayload,
		Processed:      r.Processed,
		Hidden:         r.Hidden,
		CreatedAt:      r.CreatedAt,
	}
	return e
}

func (a *EmailAdapter) KnownIDs(ctx context.Context, userID uuid.UUID) (map[string]struct{}, error) {
	var ids []string
	if err := a.db.SelectContext(ctx, &ids, `SELECT id FROM emails WHERE user_id = $1`, userID); err != nil {
		return nil, fmt.Errorf("failed to load known ids: %w", err)
	}
	known := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		known[id] = struct{}{}
	}
	return known, nil
}

func (a *EmailAdapter) LatestReceivedAt(ctx context.Context, userID uuid.UUID) (time.Time, error) {
	var latest sql.NullTime
	if err := a.db.GetContext(ctx, &latest, `SELECT MAX(received_at) FROM emails WHERE user_id = $1`, userID); err != nil {
		return time.Time{}, fmt.Errorf("failed to load latest received time: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, nil
	}
	return latest.Time.UTC(), nil
}

const insertEmailQuery = `
	INSERT INTO emails (
		user_id, id, thread_id, subject, sender, received_at, snippet, body,
		unsubscribe_url, raw_payload, processed, hidden
	) VALUES (
		:user_id, :id, :thread_id, :subject, :sender, :received_at, :snippet, :body,
		:unsubscribe_url, :raw_payload, false, false
	)
	ON CONFLICT (user_id, id) DO NOTHING`

// InsertBatch stores all rows in one transaction; on error nothing is stored.
func (a *EmailAdapter) InsertBatch(ctx context.Context, emails []*domain.Email) (int, error) {
	if len(emails) == 0 {
		return 0, nil
	}

	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	for _, e := range emails {
		row := emailRow{
			ID:             e.ID,
			UserID:         e.UserID,
			ThreadID:       e.ThreadID,
			Subject:        e.Subject,
			Sender:         e.Sender,
			ReceivedAt:     e.ReceivedAt,
			Snippet:        e.Snippet,
			Body:           e.Body,
			UnsubscribeURL: e.UnsubscribeURL,
			RawPayload:     e.RawPayload,
		}
		res, err := tx.NamedExecContext(ctx, insertEmailQuery, row)
		if err != nil {
			return 0, fmt.Errorf("failed to insert email %s: %w", e.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit emails: %w", err)
	}
	return inserted, nil
}

func (a *EmailAdapter) ListUnprocessed(ctx context.Context, userID uuid.UUID) ([]*domain.Email, error) {
	query := `SELECT ` + emailSelectColumns + `
		FROM emails
		WHERE user_id = $1 AND NOT processed
		ORDER BY received_at ASC, id ASC`

	var rows []emailRow
	if err := a.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list unprocessed emails: %w", err)
	}

	emails := make([]*domain.Email, len(rows))
	for i := range rows {
		emails[i] = rows[i].toEntity()
	}
	return emails, nil
}

func (a *EmailAdapter) Stats(ctx context.Context, userID uuid.UUID) (*domain.SyncStats, error) {
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE processed) AS processed,
			COUNT(*) FILTER (WHERE NOT processed) AS unprocessed
		FROM emails
		WHERE user_id = $1`

	var stats domain.SyncStats
	if err := a.db.GetContext(ctx, &stats, query, userID); err != nil {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}
	return &stats, nil
}

func (a *EmailAdapter) Hide(ctx context.Context, userID uuid.UUID, emailID string) (bool, error) {
	res, err := a.db.ExecContext(ctx, `UPDATE emails SET hidden = true WHERE user_id = $1 AND id = $2`, userID, emailID)
	if err != nil {
		return false, fmt.Errorf("failed to hide email: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to hide email: %w", err)
	}
	return n > 0, nil
}
