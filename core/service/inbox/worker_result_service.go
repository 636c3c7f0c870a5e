// Package inbox serves stored classification results back to the user.
package inbox

import (
	"context"

	"github.com/google/uuid"

	"github.com/FinanGammell/pare/core/domain"
	"github.com/FinanGammell/pare/core/port/in"
	"github.com/FinanGammell/pare/core/port/out"
	"github.com/FinanGammell/pare/pkg/apperr"
)

var _ in.ResultService = (*Service)(nil)

const (
	defaultLimit = 50
	maxLimit     = 200
)

type Service struct {
	emails  out.EmailRepository
	results out.ResultRepository
}

func NewService(emails out.EmailRepository, results out.ResultRepository) *Service {
	return &Service{emails: emails, results: results}
}

func (s *Service) Stats(ctx context.Context, userID uuid.UUID) (*domain.SyncStats, error) {
	stats, err := s.emails.Stats(ctx, userID)
	if err != nil {
		return nil, apperr.DatabaseError("load stats", err)
	}
	return stats, nil
}

func (s *Service) ListMeetings(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Meeting, error) {
	limit, offset = clampPage(limit, offset)
	meetings, err := s.results.ListMeetings(ctx, userID, limit, offset)
	if err != nil {
		return nil, apperr.DatabaseError("list meetings", err)
	}
	return meetings, nil
}

func (s *Service) ListTasks(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Task, error) {
	limit, offset = clampPage(limit, offset)
	tasks, err := s.results.ListTasks(ctx, userID, limit, offset)
	if err != nil {
		return nil, apperr.DatabaseError("list tasks", err)
	}
	return tasks, nil
}

func (s *Service) ListJunk(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.JunkRecord, error) {
	limit, offset = clampPage(limit, offset)
	junk, err := s.results.ListJunk(ctx, userID, limit, offset)
	if err != nil {
		return nil, apperr.DatabaseError("list junk", err)
	}
	return junk, nil
}

// HideEmail soft-deletes the email. Its derived records stop showing up in
// the list endpoints.
func (s *Service) HideEmail(ctx context.Context, userID uuid.UUID, emailID string) error {
	if emailID == "" {
		return apperr.MissingField("email_id")
	}
	ok, err := s.emails.Hide(ctx, userID, emailID)
	if err != nil {
		return apperr.DatabaseError("hide email", err)
	}
	if !ok {
		return apperr.NotFound("email")
	}
	return nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
