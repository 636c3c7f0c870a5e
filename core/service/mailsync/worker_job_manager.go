package mailsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FinanGammell/pare/core/domain"
	"github.com/FinanGammell/pare/core/port/in"
	"github.com/FinanGammell/pare/core/port/out"
	"github.com/FinanGammell/pare/pkg/apperr"
	"github.com/FinanGammell/pare/pkg/logger"
	"github.com/FinanGammell/pare/pkg/metrics"
)

var _ in.SyncService = (*JobManager)(nil)

// SyncRunner is the part of Runner the manager depends on.
type SyncRunner interface {
	Run(ctx context.Context, userID uuid.UUID, progress ProgressFunc) (domain.SyncReport, error)
}

// finishTimeout bounds the terminal write so a slow store cannot keep a lock.
const finishTimeout = 10 * time.Second

// JobManager owns the sync lifecycle: at most one live job per user, run in
// the background, with a snapshot pollers can read at any time.
type JobManager struct {
	store  out.JobStore
	runner SyncRunner
	now    func() time.Time

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewJobManager(store out.JobStore, runner SyncRunner) *JobManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &JobManager{
		store:   store,
		runner:  runner,
		now:     time.Now,
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// StartSync acquires the user's lock and launches the job. The returned
// snapshot is already visible to GetStatus as QUEUED.
func (m *JobManager) StartSync(ctx context.Context, userID uuid.UUID) (*domain.SyncJob, error) {
	job := domain.NewSyncJob(userID, m.now())

	ok, err := m.store.Start(ctx, job)
	if err != nil {
		return nil, apperr.StorageFailure("start sync job", err)
	}
	if !ok {
		metrics.RecordSyncRejected()
		logger.Info("[JobManager.StartSync] rejected, sync already running for user %s", userID)
		return nil, apperr.AlreadyRunning(userID.String())
	}

	logger.Info("[JobManager.StartSync] accepted job %s for user %s", job.ID, userID)

	m.wg.Add(1)
	go m.run(job.Clone())

	return job, nil
}

// GetStatus returns the latest snapshot without waiting on the job.
func (m *JobManager) GetStatus(ctx context.Context, userID uuid.UUID) (*domain.SyncJob, error) {
	job, err := m.store.Get(ctx, userID)
	if err != nil {
		return nil, apperr.StorageFailure("load sync job", err)
	}
	if job == nil {
		return nil, apperr.NotFound("sync job")
	}
	return job, nil
}

// Shutdown cancels running jobs and waits for them to record a terminal
// state, or for ctx to expire.
func (m *JobManager) Shutdown(ctx context.Context) error {
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sync jobs still running at shutdown: %w", ctx.Err())
	}
}

// run owns job for its whole life; nothing else writes this user's snapshot.
func (m *JobManager) run(job *domain.SyncJob) {
	defer m.wg.Done()
	started := m.now()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("[JobManager.run] panic in job %s: %v", job.ID, r)
			m.finish(job, started, fmt.Errorf("internal error: %v", r))
		}
	}()

	job.State = domain.JobRunning
	job.UpdatedAt = m.now()
	m.update(job)

	report, err := m.runner.Run(m.baseCtx, job.UserID, func(stage domain.SyncStage, r domain.SyncReport) {
		job.Stage = stage
		job.Apply(r)
		job.UpdatedAt = m.now()
		m.update(job)
	})
	job.Apply(report)

	m.finish(job, started, err)
}

func (m *JobManager) update(job *domain.SyncJob) {
	if err := m.store.Update(m.baseCtx, job); err != nil {
		logger.WithError(err).Warn("[JobManager] failed to update snapshot for job %s", job.ID)
	}
}

func (m *JobManager) finish(job *domain.SyncJob, started time.Time, runErr error) {
	now := m.now()
	job.UpdatedAt = now
	job.FinishedAt = &now
	if runErr != nil {
		job.State = domain.JobFailed
		job.Error = runErr.Error()
	} else {
		job.State = domain.JobCompleted
		job.Stage = domain.StageDone
	}

	ctx, cancel := context.WithTimeout(context.Background(), finishTimeout)
	defer cancel()
	if err := m.store.Finish(ctx, job); err != nil {
		logger.WithError(err).Error("[JobManager] failed to finish job %s", job.ID)
	}

	metrics.RecordSyncFinished(string(job.State), now.Sub(started))

	log := logger.WithFields(map[string]any{
		"job_id":    job.ID.String(),
		"user_id":   job.UserID.String(),
		"total":     job.Total,
		"new":       job.New,
		"processed": job.Processed,
		"failed":    job.Failed,
	}).WithDuration(now.Sub(started))
	if runErr != nil {
		log.WithError(runErr).Warn("[JobManager] sync failed")
		return
	}
	log.Info("[JobManager] sync completed")
}
