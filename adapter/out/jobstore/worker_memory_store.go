// Package jobstore holds sync job snapshots and the per-user sync lock.
package jobstore

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/FinanGammell/pare/core/domain"
)

// ErrNotOwner is returned when a job writes to a lock it does not hold.
var ErrNotOwner = errors.New("job does not hold the user lock")

// MemoryStore keeps jobs in process memory. A restart forgets every job and
// releases every lock.
type MemoryStore struct {
	locks sync.Map // uuid.UUID (user) -> uuid.UUID (job)
	jobs  sync.Map // uuid.UUID (user) -> *domain.SyncJob
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Start(_ context.Context, job *domain.SyncJob) (bool, error) {
	if _, loaded := s.locks.LoadOrStore(job.UserID, job.ID); loaded {
		return false, nil
	}
	s.jobs.Store(job.UserID, job.Clone())
	return true, nil
}

func (s *MemoryStore) Get(_ context.Context, userID uuid.UUID) (*domain.SyncJob, error) {
	v, ok := s.jobs.Load(userID)
	if !ok {
		return nil, nil
	}
	return v.(*domain.SyncJob).Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, job *domain.SyncJob) error {
	if !s.owns(job) {
		return ErrNotOwner
	}
	s.jobs.Store(job.UserID, job.Clone())
	return nil
}

func (s *MemoryStore) Finish(_ context.Context, job *domain.SyncJob) error {
	if !s.owns(job) {
		return ErrNotOwner
	}
	s.jobs.Store(job.UserID, job.Clone())
	s.locks.CompareAndDelete(job.UserID, job.ID)
	return nil
}

func (s *MemoryStore) owns(job *domain.SyncJob) bool {
	holder, ok := s.locks.Load(job.UserID)
	return ok && holder.(uuid.UUID) == job.ID
}
