package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/FinanGammell/pare/core/domain"
	"github.com/FinanGammell/pare/core/port/out"
)

var _ out.ResultRepository = (*ResultAdapter)(nil)

// =============================================================================
// Result Adapter (PostgreSQL)
// =============================================================================

// ResultAdapter stores classifications and the meeting/task/junk rows derived
// from them.
type ResultAdapter struct {
	db *sqlx.DB
}

func NewResultAdapter(db *sqlx.DB) *ResultAdapter {
	return &ResultAdapter{db: db}
}

// derivedTables holds one row per classification, chosen by category.
var derivedTables = []string{"meetings", "tasks", "unsubscribe_entries"}

// SaveResult upserts the classification, swaps in the matching derived row
// and marks the email processed. Either all of it is committed or none.
func (a *ResultAdapter) SaveResult(ctx context.Context, r *domain.ClassificationResult) error {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	classifiedAt := r.ClassifiedAt
	if classifiedAt.IsZero() {
		classifiedAt = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO classifications (user_id, email_id, category, confidence, model, classified_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, email_id) DO UPDATE SET
			category = EXCLUDED.category,
			confidence = EXCLUDED.confidence,
			model = EXCLUDED.model,
			classified_at = EXCLUDED.classified_at`,
		r.UserID, r.EmailID, string(r.Category), r.Confidence, r.Model, classifiedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert classification: %w", err)
	}

	keep := ""
	switch {
	case r.Category == domain.CategoryMeeting && r.Meeting != nil:
		keep = "meetings"
		err = upsertMeeting(ctx, tx, r)
	case r.Category == domain.CategoryTask && r.Task != nil:
		keep = "tasks"
		err = upsertTask(ctx, tx, r)
	case r.Category.IsJunk():
		keep = "unsubscribe_entries"
		err = upsertJunk(ctx, tx, r)
	}
	if err != nil {
		return err
	}

	// a re-classification under another category drops the old derived row
	for _, table := range derivedTables {
		if table == keep {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM `+table+` WHERE user_id = $1 AND email_id = $2`, r.UserID, r.EmailID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE emails SET processed = true WHERE user_id = $1 AND id = $2`, r.UserID, r.EmailID)
	if err != nil {
		return fmt.Errorf("failed to mark email processed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("failed to mark email processed: email %s not found", r.EmailID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit result: %w", err)
	}
	return nil
}

func upsertMeeting(ctx context.Context, tx *sqlx.Tx, r *domain.ClassificationResult) error {
	m := r.Meeting
	attendees := m.Attendees
	if attendees == nil {
		attendees = []string{}
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO meetings (user_id, email_id, title, start_time, end_time, location, attendees)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, email_id) DO UPDATE SET
			title = EXCLUDED.title,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			location = EXCLUDED.location,
			attendees = EXCLUDED.attendees`,
		r.UserID, r.EmailID, m.Title, m.StartTime, m.EndTime, m.Location, pq.StringArray(attendees))
	if err != nil {
		return fmt.Errorf("failed to upsert meeting: %w", err)
	}
	return nil
}

func upsertTask(ctx context.Context, tx *sqlx.Tx, r *domain.ClassificationResult) error {
	var due sql.NullTime
	if r.Task.DueDate != nil {
		due = sql.NullTime{Time: *r.Task.DueDate, Valid: true}
	}
	// status survives re-classification
	_, err := tx.ExecContext(ctx, `
		INSERT INTO tasks (user_id, email_id, description, due_date, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, email_id) DO UPDATE SET
			description = EXCLUDED.description,
			due_date = EXCLUDED.due_date`,
		r.UserID, r.EmailID, r.Task.Description, due, string(domain.TaskStatusPending))
	if err != nil {
		return fmt.Errorf("failed to upsert task: %w", err)
	}
	return nil
}

func upsertJunk(ctx context.Context, tx *sqlx.Tx, r *domain.ClassificationResult) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO unsubscribe_entries (user_id, email_id, category, unsubscribe_url, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, email_id) DO UPDATE SET
			category = EXCLUDED.category,
			unsubscribe_url = EXCLUDED.unsubscribe_url`,
		r.UserID, r.EmailID, string(r.Category), r.UnsubscribeURL, string(domain.UnsubscribePending))
	if err != nil {
		return fmt.Errorf("failed to upsert unsubscribe entry: %w", err)
	}
	return nil
}

// =============================================================================
// Queries
// =============================================================================

type meetingRow struct {
	EmailID    string         `db:"email_id"`
	Subject    string         `db:"subject"`
	Sender     string         `db:"sender"`
	Title      string         `db:"title"`
	StartTime  time.Time      `db:"start_time"`
	EndTime    time.Time      `db:"end_time"`
	Location   string         `db:"location"`
	Attendees  pq.StringArray `db:"attendees"`
	Confidence float64        `db:"confidence"`
}

func (a *ResultAdapter) ListMeetings(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Meeting, error) {
	query := `
		SELECT m.email_id, e.subject, e.sender, m.title, m.start_time, m.end_time,
			m.location, m.attendees, c.confidence
		FROM meetings m
		JOIN emails e ON e.user_id = m.user_id AND e.id = m.email_id
		JOIN classifications c ON c.user_id = m.user_id AND c.email_id = m.email_id
		WHERE m.user_id = $1 AND NOT e.hidden
		ORDER BY m.start_time ASC
		LIMIT $2 OFFSET $3`

	var rows []meetingRow
	if err := a.db.SelectContext(ctx, &rows, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list meetings: %w", err)
	}

	meetings := make([]*domain.Meeting, len(rows))
	for i, r := range rows {
		meetings[i] = &domain.Meeting{
			EmailID:    r.EmailID,
			Subject:    r.Subject,
			Sender:     r.Sender,
			Title:      r.Title,
			StartTime:  r.StartTime.UTC(),
			EndTime:    r.EndTime.UTC(),
			Location:   r.Location,
			Attendees:  []string(r.Attendees),
			Confidence: r.Confidence,
		}
	}
	return meetings, nil
}

type taskRow struct {
	EmailID     string       `db:"email_id"`
	Subject     string       `db:"subject"`
	Sender      string       `db:"sender"`
	Description string       `db:"description"`
	DueDate     sql.NullTime `db:"due_date"`
	Status      string       `db:"status"`
	Confidence  float64      `db:"confidence"`
}

func (a *ResultAdapter) ListTasks(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Task, error) {
	query := `
		SELECT t.email_id, e.subject, e.sender, t.description, t.due_date, t.status, c.confidence
		FROM tasks t
		JOIN emails e ON e.user_id = t.user_id AND e.id = t.email_id
		JOIN classifications c ON c.user_id = t.user_id AND c.email_id = t.email_id
		WHERE t.user_id = $1 AND NOT e.hidden
		ORDER BY t.due_date ASC NULLS LAST, e.received_at DESC
		LIMIT $2 OFFSET $3`

	var rows []taskRow
	if err := a.db.SelectContext(ctx, &rows, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	tasks := make([]*domain.Task, len(rows))
	for i, r := range rows {
		t := &domain.Task{
			EmailID:     r.EmailID,
			Subject:     r.Subject,
			Sender:      r.Sender,
			Description: r.Description,
			Status:      domain.TaskStatus(r.Status),
			Confidence:  r.Confidence,
		}
		if r.DueDate.Valid {
			due := r.DueDate.Time.UTC()
			t.DueDate = &due
		}
		tasks[i] = t
	}
	return tasks, nil
}

type junkRow struct {
	EmailID        string `db:"email_id"`
	Subject        string `db:"subject"`
	Sender         string `db:"sender"`
	Category       string `db:"category"`
	UnsubscribeURL string `db:"unsubscribe_url"`
	Status         string `db:"status"`
}

func (a *ResultAdapter) ListJunk(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.JunkRecord, error) {
	query := `
		SELECT u.email_id, e.subject, e.sender, u.category, u.unsubscribe_url, u.status
		FROM unsubscribe_entries u
		JOIN emails e ON e.user_id = u.user_id AND e.id = u.email_id
		WHERE u.user_id = $1 AND NOT e.hidden
		ORDER BY e.received_at DESC
		LIMIT $2 OFFSET $3`

	var rows []junkRow
	if err := a.db.SelectContext(ctx, &rows, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list junk: %w", err)
	}

	junk := make([]*domain.JunkRecord, len(rows))
	for i, r := range rows {
		junk[i] = &domain.JunkRecord{
			EmailID:        r.EmailID,
			Subject:        r.Subject,
			Sender:         r.Sender,
			Category:       domain.Category(r.Category),
			UnsubscribeURL: r.UnsubscribeURL,
			Status:         domain.UnsubscribeStatus(r.Status),
		}
	}
	return junk, nil
}
