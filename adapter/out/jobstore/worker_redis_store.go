package jobstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/FinanGammell/pare/core/domain"
	"github.com/FinanGammell/pare/pkg/cache"
)

const (
	lockKeyPrefix = "pare:sync:lock:"
	jobKeyPrefix  = "pare:sync:job:"

	// snapshots outlive the lock so pollers can read the final counts
	snapshotTTL = 24 * time.Hour
)

// RedisStore shares jobs and locks across processes through redis.
// The lock expires after lockTTL so a crashed worker cannot hold a user forever.
type RedisStore struct {
	cache   *cache.RedisCache
	lockTTL time.Duration
}

// NewRedisStore creates a redis backed job store.
func NewRedisStore(c *cache.RedisCache, lockTTL time.Duration) *RedisStore {
	if lockTTL <= 0 {
		lockTTL = 2 * time.Hour
	}
	return &RedisStore{cache: c, lockTTL: lockTTL}
}

func (s *RedisStore) Start(ctx context.Context, job *domain.SyncJob) (bool, error) {
	ok, err := s.cache.SetNX(ctx, lockKey(job.UserID), job.ID.String(), s.lockTTL)
	if err != nil {
		return false, fmt.Errorf("failed to acquire sync lock: %w", err)
	}
	if !ok {
		return false, nil
	}

	if err := s.cache.SetJSON(ctx, jobKey(job.UserID), job, snapshotTTL); err != nil {
		// give the lock back so the user is not stuck behind a job that never started
		_, _ = s.cache.DeleteIfEquals(ctx, lockKey(job.UserID), job.ID.String())
		return false, fmt.Errorf("failed to store job snapshot: %w", err)
	}
	return true, nil
}

func (s *RedisStore) Get(ctx context.Context, userID uuid.UUID) (*domain.SyncJob, error) {
	var job domain.SyncJob
	found, err := s.cache.GetJSON(ctx, jobKey(userID), &job)
	if err != nil {
		return nil, fmt.Errorf("failed to read job snapshot: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &job, nil
}

// Update stores a progress snapshot and pushes the lock expiry out by
// another lockTTL, so a long job keeps its lock while it reports progress.
func (s *RedisStore) Update(ctx context.Context, job *domain.SyncJob) error {
	owned, err := s.cache.ExpireIfEquals(ctx, lockKey(job.UserID), job.ID.String(), s.lockTTL)
	if err != nil {
		return fmt.Errorf("failed to extend sync lock: %w", err)
	}
	if !owned {
		return ErrNotOwner
	}
	if err := s.cache.SetJSON(ctx, jobKey(job.UserID), job, snapshotTTL); err != nil {
		return fmt.Errorf("failed to store job snapshot: %w", err)
	}
	return nil
}

func (s *RedisStore) Finish(ctx context.Context, job *domain.SyncJob) error {
	if err := s.checkOwner(ctx, job); err != nil {
		return err
	}
	if err := s.cache.SetJSON(ctx, jobKey(job.UserID), job, snapshotTTL); err != nil {
		return fmt.Errorf("failed to store job snapshot: %w", err)
	}
	if _, err := s.cache.DeleteIfEquals(ctx, lockKey(job.UserID), job.ID.String()); err != nil {
		return fmt.Errorf("failed to release sync lock: %w", err)
	}
	return nil
}

func (s *RedisStore) checkOwner(ctx context.Context, job *domain.SyncJob) error {
	holder, err := s.cache.Get(ctx, lockKey(job.UserID))
	if errors.Is(err, redis.Nil) {
		return ErrNotOwner
	}
	if err != nil {
		return fmt.Errorf("failed to read sync lock: %w", err)
	}
	if holder != job.ID.String() {
		return ErrNotOwner
	}
	return nil
}

func lockKey(userID uuid.UUID) string { return lockKeyPrefix + userID.String() }
func jobKey(userID uuid.UUID) string  { return jobKeyPrefix + userID.String() }
