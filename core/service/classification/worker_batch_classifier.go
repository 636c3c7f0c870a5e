// Package classification turns unprocessed emails into stored classification
// results, one bounded batch at a time.
package classification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-pkgz/pool"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/FinanGammell/pare/core/domain"
	"github.com/FinanGammell/pare/core/port/out"
	"github.com/FinanGammell/pare/pkg/apperr"
	"github.com/FinanGammell/pare/pkg/metrics"
)

// Config tunes batch dispatch.
type Config struct {
	BatchSize int
	Workers   int
	// Timeout bounds one classification request.
	Timeout time.Duration
	// Retries is how many extra attempts a failed batch request gets.
	Retries      int
	RetryBackoff time.Duration
	// BodyCharLimit truncates bodies sent to the model.
	BodyCharLimit int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     25,
		Workers:       5,
		Timeout:       60 * time.Second,
		Retries:       1,
		RetryBackoff:  2 * time.Second,
		BodyCharLimit: 4000,
	}
}

// BatchClassifier fans unprocessed emails out to the classification service
// in fixed-size batches over a bounded worker pool. A failure is isolated to
// the email (bad record) or the batch (failed request) it belongs to.
type BatchClassifier struct {
	classifier out.EmailClassifier
	writer     Writer
	validator  *Validator
	cfg        Config
	log        zerolog.Logger
}

func NewBatchClassifier(classifier out.EmailClassifier, writer Writer, validator *Validator, cfg Config, log zerolog.Logger) *BatchClassifier {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.BodyCharLimit <= 0 {
		cfg.BodyCharLimit = def.BodyCharLimit
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if validator == nil {
		validator = NewValidator(time.UTC)
	}
	return &BatchClassifier{
		classifier: classifier,
		writer:     writer,
		validator:  validator,
		cfg:        cfg,
		log:        log.With().Str("component", "batch_classifier").Logger(),
	}
}

// Classify starts classifying emails and returns their outcomes as they are
// produced. Every email yields exactly one outcome and the channel is closed
// after the last one, so callers must drain it. Classified outcomes have
// already been written when they are received.
func (c *BatchClassifier) Classify(ctx context.Context, userID uuid.UUID, emails []*domain.Email) <-chan domain.ClassificationOutcome {
	outcomes := make(chan domain.ClassificationOutcome, c.cfg.BatchSize)
	batches := Partition(emails, c.cfg.BatchSize)

	go func() {
		defer close(outcomes)
		if len(batches) == 0 {
			return
		}

		worker := &batchWorker{c: c, ctx: ctx, userID: userID, outcomes: outcomes}

		// pool context is independent of ctx: every submitted batch still runs
		// and reports its outcomes after ctx is cancelled
		poolCtx, cancel := context.WithCancel(context.Background())
		defer cancel()

		workers := min(c.cfg.Workers, len(batches))
		p := pool.New[[]*domain.Email](workers, worker).
			WithBatchSize(1).
			WithContinueOnError()

		if err := p.Go(poolCtx); err != nil {
			c.log.Error().Err(err).Msg("failed to start classifier pool")
			for _, b := range batches {
				failAll(outcomes, b, apperr.InternalWithError(err))
			}
			return
		}

		for _, b := range batches {
			p.Submit(b)
		}

		if err := p.Close(poolCtx); err != nil {
			c.log.Warn().Err(err).Msg("classifier pool closed with error")
		}
	}()

	return outcomes
}

// batchWorker implements pool.Worker for one Classify call.
type batchWorker struct {
	c        *BatchClassifier
	ctx      context.Context
	userID   uuid.UUID
	outcomes chan<- domain.ClassificationOutcome
}

// Do never returns an error; failures become outcomes.
func (w *batchWorker) Do(_ context.Context, batch []*domain.Email) error {
	w.c.processBatch(w.ctx, w.userID, batch, w.outcomes)
	return nil
}

func (c *BatchClassifier) processBatch(ctx context.Context, userID uuid.UUID, batch []*domain.Email, outcomes chan<- domain.ClassificationOutcome) {
	start := time.Now()

	resp, err := c.classifyWithRetry(ctx, batch)
	if err != nil {
		metrics.RecordClassifyBatch("error", time.Since(start))
		c.log.Warn().Err(err).
			Str("user_id", userID.String()).
			Int("batch_size", len(batch)).
			Msg("batch classification failed")
		failAll(outcomes, batch, err)
		return
	}
	metrics.RecordClassifyBatch("ok", time.Since(start))
	metrics.RecordTokens(resp.PromptTokens, resp.CompletionTokens)

	byID := make(map[string]*domain.Email, len(batch))
	for _, e := range batch {
		byID[e.ID] = e
	}
	done := make(map[string]bool, len(batch))

	for _, raw := range resp.Records {
		id, result, err := c.validator.Validate(raw, userID, byID)
		if id == "" {
			c.log.Debug().Err(err).Msg("dropping unattributable record")
			continue
		}
		if done[id] {
			c.log.Debug().Str("email_id", id).Msg("ignoring duplicate record")
			continue
		}
		done[id] = true

		if err != nil {
			emit(outcomes, domain.Failed(id, err))
			continue
		}

		result.Model = resp.Model
		if err := c.writer.Write(ctx, result); err != nil {
			emit(outcomes, domain.Failed(id, err))
			continue
		}
		emit(outcomes, domain.Classified(result))
	}

	for _, e := range batch {
		if !done[e.ID] {
			emit(outcomes, domain.Failed(e.ID, apperr.ValidationError(e.ID, "missing from classifier response")))
		}
	}
}

func (c *BatchClassifier) classifyWithRetry(ctx context.Context, batch []*domain.Email) (*out.ClassificationResponse, error) {
	reqs := c.buildRequests(batch)

	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, apperr.TransportError("classifier", ctx.Err())
			case <-time.After(c.cfg.RetryBackoff * time.Duration(attempt)):
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		resp, err := c.classifier.ClassifyBatch(callCtx, reqs)
		cancel()
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	if apperr.IsAppError(lastErr) {
		return nil, lastErr
	}
	if errors.Is(lastErr, context.DeadlineExceeded) {
		return nil, apperr.TransportError("classifier", fmt.Errorf("request timed out after %s: %w", c.cfg.Timeout, lastErr))
	}
	return nil, apperr.TransportError("classifier", lastErr)
}

func (c *BatchClassifier) buildRequests(batch []*domain.Email) []out.ClassificationRequest {
	reqs := make([]out.ClassificationRequest, 0, len(batch))
	for _, e := range batch {
		body := e.Body
		if body == "" {
			body = e.Snippet
		}
		reqs = append(reqs, out.ClassificationRequest{
			EmailID:    e.ID,
			Sender:     e.Sender,
			Subject:    e.Subject,
			Body:       truncateRunes(body, c.cfg.BodyCharLimit),
			ReceivedAt: e.ReceivedAt,
		})
	}
	return reqs
}

// Partition splits emails into consecutive batches of at most size.
func Partition(emails []*domain.Email, size int) [][]*domain.Email {
	if size <= 0 {
		size = 1
	}
	batches := make([][]*domain.Email, 0, (len(emails)+size-1)/size)
	for i := 0; i < len(emails); i += size {
		end := min(i+size, len(emails))
		batches = append(batches, emails[i:end])
	}
	return batches
}

func failAll(outcomes chan<- domain.ClassificationOutcome, batch []*domain.Email, err error) {
	for _, e := range batch {
		emit(outcomes, domain.Failed(e.ID, err))
	}
}

func emit(outcomes chan<- domain.ClassificationOutcome, o domain.ClassificationOutcome) {
	metrics.RecordOutcome(o.Classified())
	outcomes <- o
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
