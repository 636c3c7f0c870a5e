package inbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/FinanGammell/pare/core/domain"
	"github.com/FinanGammell/pare/pkg/apperr"
)

type stubEmails struct {
	hidden map[string]bool
	err    error
}

func (s *stubEmails) KnownIDs(context.Context, uuid.UUID) (map[string]struct{}, error) {
	return nil, nil
}
func (s *stubEmails) LatestReceivedAt(context.Context, uuid.UUID) (time.Time, error) {
	return time.Time{}, nil
}
func (s *stubEmails) InsertBatch(context.Context, []*domain.Email) (int, error) { return 0, nil }
func (s *stubEmails) ListUnprocessed(context.Context, uuid.UUID) ([]*domain.Email, error) {
	return nil, nil
}
func (s *stubEmails) Stats(context.Context, uuid.UUID) (*domain.SyncStats, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.SyncStats{Total: 3, Processed: 2, Unprocessed: 1}, nil
}
func (s *stubEmails) Hide(_ context.Context, _ uuid.UUID, id string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	if _, ok := s.hidden[id]; !ok {
		return false, nil
	}
	s.hidden[id] = true
	return true, nil
}

type stubResults struct {
	limit, offset int
}

func (s *stubResults) SaveResult(context.Context, *domain.ClassificationResult) error { return nil }
func (s *stubResults) ListMeetings(_ context.Context, _ uuid.UUID, limit, offset int) ([]*domain.Meeting, error) {
	s.limit, s.offset = limit, offset
	return []*domain.Meeting{{EmailID: "m1"}}, nil
}
func (s *stubResults) ListTasks(_ context.Context, _ uuid.UUID, limit, offset int) ([]*domain.Task, error) {
	s.limit, s.offset = limit, offset
	return nil, nil
}
func (s *stubResults) ListJunk(_ context.Context, _ uuid.UUID, limit, offset int) ([]*domain.JunkRecord, error) {
	s.limit, s.offset = limit, offset
	return nil, nil
}

func TestHideEmail(t *testing.T) {
	emails := &stubEmails{hidden: map[string]bool{"e1": false}}
	svc := NewService(emails, &stubResults{})

	tests := []struct {
		name string
		id   string
		code string
	}{
		{"hides existing", "e1", ""},
		{"unknown email", "nope", apperr.CodeNotFound},
		{"empty id", "", apperr.CodeMissingField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.HideEmail(context.Background(), uuid.New(), tt.id)
			if tt.code == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !apperr.IsCode(err, tt.code) {
				t.Errorf("expected %s, got %v", tt.code, err)
			}
		})
	}
	if !emails.hidden["e1"] {
		t.Error("expected e1 hidden")
	}
}

func TestListClampsPage(t *testing.T) {
	results := &stubResults{}
	svc := NewService(&stubEmails{}, results)

	tests := []struct {
		limit, offset         int
		wantLimit, wantOffset int
	}{
		{0, 0, defaultLimit, 0},
		{1000, -5, maxLimit, 0},
		{10, 20, 10, 20},
	}
	for _, tt := range tests {
		if _, err := svc.ListMeetings(context.Background(), uuid.New(), tt.limit, tt.offset); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if results.limit != tt.wantLimit || results.offset != tt.wantOffset {
			t.Errorf("expected %d/%d, got %d/%d", tt.wantLimit, tt.wantOffset, results.limit, results.offset)
		}
	}
}

func TestStats_WrapsError(t *testing.T) {
	svc := NewService(&stubEmails{err: errors.New("conn refused")}, &stubResults{})
	if _, err := svc.Stats(context.Background(), uuid.New()); !apperr.IsCode(err, apperr.CodeDatabaseError) {
		t.Errorf("expected DATABASE_ERROR, got %v", err)
	}
}
