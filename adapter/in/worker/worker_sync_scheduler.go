package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	in "github.com/FinanGammell/pare/core/port/in"
	"github.com/FinanGammell/pare/pkg/apperr"
	"github.com/FinanGammell/pare/pkg/logger"
)

// =============================================================================
// SyncScheduler - periodic sync for every user holding a credential
// =============================================================================

// UserLister lists users eligible for a scheduled sync.
type UserLister interface {
	UserIDs(ctx context.Context) ([]uuid.UUID, error)
}

// RunSummary counts what one scheduled tick did.
type RunSummary struct {
	Started int
	Skipped int
	Failed  int
}

type SyncScheduler struct {
	cron  *cron.Cron
	sync  in.SyncService
	users UserLister

	// listTimeout bounds the credential listing of one tick.
	listTimeout time.Duration

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewSyncScheduler parses schedule (standard five-field cron) and returns a
// stopped scheduler.
func NewSyncScheduler(schedule string, syncService in.SyncService, users UserLister) (*SyncScheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &SyncScheduler{
		cron:        cron.New(),
		sync:        syncService,
		users:       users,
		listTimeout: 30 * time.Second,
		ctx:         ctx,
		cancel:      cancel,
	}

	if _, err := s.cron.AddFunc(schedule, s.tick); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid sync schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start starts the cron loop.
func (s *SyncScheduler) Start() {
	s.cron.Start()
	entries := s.cron.Entries()
	if len(entries) > 0 {
		logger.Info("[SyncScheduler] started, next run at %s", entries[0].Next.Format(time.RFC3339))
	}
}

// Stop stops scheduling and waits for an in-flight tick up to ctx.
func (s *SyncScheduler) Stop(ctx context.Context) {
	logger.Info("[SyncScheduler] stopping...")
	s.cancel()
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		logger.Warn("[SyncScheduler] stop timed out")
	}
}

func (s *SyncScheduler) tick() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		logger.Warn("[SyncScheduler] previous tick still running, skipping")
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if _, err := s.RunOnce(s.ctx); err != nil {
		logger.WithError(err).Error("[SyncScheduler] tick failed")
	}
}

// RunOnce starts a sync for every credentialed user. Users with a sync in
// flight are skipped. The jobs themselves run in the background.
func (s *SyncScheduler) RunOnce(ctx context.Context) (RunSummary, error) {
	var summary RunSummary

	listCtx, cancel := context.WithTimeout(ctx, s.listTimeout)
	defer cancel()

	userIDs, err := s.users.UserIDs(listCtx)
	if err != nil {
		return summary, err
	}

	for _, userID := range userIDs {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		job, err := s.sync.StartSync(ctx, userID)
		switch {
		case err == nil:
			summary.Started++
			logger.Debug("[SyncScheduler] queued job=%s user=%s", job.ID, userID)
		case apperr.IsCode(err, apperr.CodeAlreadyRunning):
			summary.Skipped++
			logger.Debug("[SyncScheduler] sync already running for user=%s", userID)
		default:
			summary.Failed++
			logger.WithError(err).Warn("[SyncScheduler] failed to start sync for user=%s", userID)
		}
	}

	logger.Info("[SyncScheduler] tick done: started=%d skipped=%d failed=%d",
		summary.Started, summary.Skipped, summary.Failed)
	return summary, nil
}
