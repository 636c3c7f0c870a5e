package classification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/FinanGammell/pare/core/domain"
	"github.com/FinanGammell/pare/pkg/apperr"
)

// upsertRepo mimics the unique (user_id, email_id) constraint.
type upsertRepo struct {
	rows      map[string]*domain.ClassificationResult
	processed map[string]bool
	err       error
}

func (r *upsertRepo) SaveResult(_ context.Context, res *domain.ClassificationResult) error {
	if r.err != nil {
		return r.err
	}
	r.rows[res.UserID.String()+"/"+res.EmailID] = res
	r.processed[res.EmailID] = true
	return nil
}

func (r *upsertRepo) ListMeetings(context.Context, uuid.UUID, int, int) ([]*domain.Meeting, error) {
	return nil, nil
}

func (r *upsertRepo) ListTasks(context.Context, uuid.UUID, int, int) ([]*domain.Task, error) {
	return nil, nil
}

func (r *upsertRepo) ListJunk(context.Context, uuid.UUID, int, int) ([]*domain.JunkRecord, error) {
	return nil, nil
}

func TestResultWriter_Idempotent(t *testing.T) {
	repo := &upsertRepo{rows: map[string]*domain.ClassificationResult{}, processed: map[string]bool{}}
	w := NewResultWriter(repo)

	result := &domain.ClassificationResult{
		EmailID:      "m1",
		UserID:       uuid.New(),
		Category:     domain.CategoryTask,
		Task:         &domain.TaskDetails{Description: "file report"},
		ClassifiedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}

	for i := 0; i < 2; i++ {
		if err := w.Write(context.Background(), result); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	if len(repo.rows) != 1 {
		t.Fatalf("expected 1 stored result, got %d", len(repo.rows))
	}
	for _, got := range repo.rows {
		if diff := cmp.Diff(result, got); diff != "" {
			t.Errorf("stored result mismatch (-want +got):\n%s", diff)
		}
	}
	if !repo.processed["m1"] {
		t.Error("expected processed flag set")
	}
}

func TestResultWriter_StorageFailure(t *testing.T) {
	cause := errors.New("deadlock detected")
	w := NewResultWriter(&upsertRepo{err: cause})

	err := w.Write(context.Background(), &domain.ClassificationResult{EmailID: "m1"})
	if !apperr.IsCode(err, apperr.CodeStorageFailure) {
		t.Fatalf("expected storage failure, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be preserved")
	}
}
