// Package mailsync runs per-user mailbox syncs: fetch new messages, store
// them, classify everything still unprocessed, and report progress.
package mailsync

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/FinanGammell/pare/core/domain"
	"github.com/FinanGammell/pare/core/port/out"
	"github.com/FinanGammell/pare/pkg/apperr"
	"github.com/FinanGammell/pare/pkg/logger"
	"github.com/FinanGammell/pare/pkg/metrics"
)

// lookbackOverlap re-lists one day before the newest stored message so
// late-arriving mail is not skipped.
const lookbackOverlap = 24 * time.Hour

// Classifier streams one outcome per email and closes the channel when done.
type Classifier interface {
	Classify(ctx context.Context, userID uuid.UUID, emails []*domain.Email) <-chan domain.ClassificationOutcome
}

// ProgressFunc receives milestones from a running sync. It is called from the
// sync's own goroutine only.
type ProgressFunc func(stage domain.SyncStage, report domain.SyncReport)

// RunnerConfig bounds the fetch stage.
type RunnerConfig struct {
	FetchTimeout time.Duration
	MaxResults   int
}

// Runner performs one sync cycle for a user.
type Runner struct {
	emails     out.EmailRepository
	creds      out.CredentialSource
	mailbox    out.MailboxProvider
	classifier Classifier
	cfg        RunnerConfig
}

func NewRunner(
	emails out.EmailRepository,
	creds out.CredentialSource,
	mailbox out.MailboxProvider,
	classifier Classifier,
	cfg RunnerConfig,
) *Runner {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 2 * time.Minute
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 500
	}
	return &Runner{
		emails:     emails,
		creds:      creds,
		mailbox:    mailbox,
		classifier: classifier,
		cfg:        cfg,
	}
}

// Run executes the sync. A returned error means the fetch stage failed and
// nothing was classified; per-message classification failures only show up
// in the report's Failed count.
func (r *Runner) Run(ctx context.Context, userID uuid.UUID, progress ProgressFunc) (domain.SyncReport, error) {
	if progress == nil {
		progress = func(domain.SyncStage, domain.SyncReport) {}
	}
	var report domain.SyncReport

	// ===== 1. Known ids =====
	progress(domain.StageLoadingKnown, report)
	known, err := r.emails.KnownIDs(ctx, userID)
	if err != nil {
		return report, asStorageFailure("load known ids", err)
	}
	latest, err := r.emails.LatestReceivedAt(ctx, userID)
	if err != nil {
		return report, asStorageFailure("load latest received time", err)
	}

	// ===== 2. Fetch and store new messages =====
	progress(domain.StageFetching, report)
	inserted, err := r.fetchNew(ctx, userID, known, latest)
	if err != nil {
		return report, err
	}
	report.New = inserted
	report.Total = len(known) + inserted

	// ===== 3. Collect unprocessed =====
	pending, err := r.emails.ListUnprocessed(ctx, userID)
	if err != nil {
		return report, asStorageFailure("list unprocessed emails", err)
	}
	report.AlreadyProcessed = max(report.Total-len(pending), 0)
	report.Unprocessed = len(pending)
	progress(domain.StageCollecting, report)

	logger.Info("[SyncJob.Run] user=%s known=%d new=%d pending=%d", userID, len(known), inserted, len(pending))

	// ===== 4. Classify =====
	progress(domain.StageClassifying, report)
	for outcome := range r.classifier.Classify(ctx, userID, pending) {
		if outcome.Classified() {
			report.Processed++
		} else {
			report.Failed++
		}
		report.Unprocessed = len(pending) - report.Processed
		progress(domain.StageClassifying, report)
	}

	progress(domain.StageDone, report)
	return report, nil
}

// fetchNew lists recent messages, fetches the unknown ones and stores them.
// Either the whole set is stored or the stage fails.
func (r *Runner) fetchNew(ctx context.Context, userID uuid.UUID, known map[string]struct{}, latest time.Time) (int, error) {
	cred, err := r.creds.UsableCredential(ctx, userID)
	if err != nil {
		if apperr.IsAppError(err) {
			return 0, err
		}
		return 0, apperr.CredentialError("no usable mailbox credential", err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	defer cancel()

	q := domain.FetchQuery{ExcludeFrom: cred.Email, MaxResults: r.cfg.MaxResults}
	if !latest.IsZero() {
		q.After = latest.Add(-lookbackOverlap)
	}

	ids, err := r.mailbox.ListMessageIDs(fetchCtx, cred, q)
	if err != nil {
		return 0, asTransportError(fetchCtx, err)
	}

	newIDs := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := known[id]; ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		newIDs = append(newIDs, id)
	}
	if len(newIDs) == 0 {
		return 0, nil
	}

	msgs, err := r.mailbox.FetchMessages(fetchCtx, cred, newIDs)
	if err != nil {
		return 0, asTransportError(fetchCtx, err)
	}
	metrics.RecordEmailsFetched(len(msgs))

	rows := make([]*domain.Email, 0, len(msgs))
	for _, m := range msgs {
		rows = append(rows, m.ToEmail(userID))
	}
	inserted, err := r.emails.InsertBatch(ctx, rows)
	if err != nil {
		return 0, asStorageFailure("store fetched emails", err)
	}
	return inserted, nil
}

func asStorageFailure(op string, err error) error {
	if apperr.IsAppError(err) {
		return err
	}
	return apperr.StorageFailure(op, err)
}

func asTransportError(ctx context.Context, err error) error {
	if apperr.IsAppError(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperr.TransportError("mailbox", errors.New("mailbox fetch timed out"))
	}
	return apperr.TransportError("mailbox", err)
}
