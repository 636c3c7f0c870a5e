package bootstrap

import (
	"context"

	"github.com/FinanGammell/pare/adapter/in/worker"
	"github.com/FinanGammell/pare/pkg/logger"
)

// Worker runs the periodic sync scheduler.
type Worker struct {
	scheduler *worker.SyncScheduler
	deps      *Dependencies
}

// NewWorker returns a worker, or nil when SYNC_SCHEDULE is empty.
func NewWorker(deps *Dependencies) (*Worker, error) {
	schedule := deps.Config.SyncSchedule
	if schedule == "" {
		logger.Info("[Worker] SYNC_SCHEDULE not set, scheduled sync disabled")
		return nil, nil
	}

	scheduler, err := worker.NewSyncScheduler(schedule, deps.JobManager, deps.CredentialService)
	if err != nil {
		return nil, err
	}
	return &Worker{scheduler: scheduler, deps: deps}, nil
}

func (w *Worker) Start() {
	logger.Info("[Worker] starting scheduled sync (schedule=%q, worker=%s)",
		w.deps.Config.SyncSchedule, w.deps.Config.WorkerID)
	w.scheduler.Start()
}

// Stop stops scheduling. Jobs already queued finish through the job manager.
func (w *Worker) Stop(ctx context.Context) {
	w.scheduler.Stop(ctx)
}
