package cron

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"

	"github.com/halcyonlabs/cardvault/internal/delivery"
	"github.com/halcyonlabs/cardvault/pkg/config"
	"github.com/halcyonlabs/cardvault/pkg/db/models"
	"github.com/halcyonlabs/cardvault/pkg/logger"
)

const defaultRetryBatch = 100

// retryCandidateSource yields the newest unresolved failure per order that
// still has retry budget.
type retryCandidateSource interface {
	RetryCandidates(ctx context.Context, since time.Time, maxRetries, limit int) ([]models.DeliveryAuditEvent, error)
}

// RetrySweepResult summarizes one retry sweep.
type RetrySweepResult struct {
	Candidates int                      `json:"candidates"`
	Retried    int                      `json:"retried"`
	Waiting    int                      `json:"waiting"`
	Results    []delivery.ProcessResult `json:"results"`
}

// RetryJobParams configure the delivery-retries sweep.
type RetryJobParams struct {
	Logger    *logger.Logger
	Audit     retryCandidateSource
	Processor orderProcessor
	Config    config.DeliveryConfig
	BatchSize int
	Now       func() time.Time
}

// RetryJob re-runs failed deliveries on the fixed backoff schedule.
type RetryJob struct {
	logg      *logger.Logger
	audit     retryCandidateSource
	processor orderProcessor
	cfg       config.DeliveryConfig
	batchSize int
	now       func() time.Time
	inFlight  atomic.Bool
}

// NewRetryJob builds the delivery-retries sweep.
func NewRetryJob(params RetryJobParams) (*RetryJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("retry candidate source required")
	}
	if params.Processor == nil {
		return nil, fmt.Errorf("order processor required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultRetryBatch
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &RetryJob{
		logg:      params.Logger,
		audit:     params.Audit,
		processor: params.Processor,
		cfg:       params.Config,
		batchSize: batch,
		now:       now,
	}, nil
}

func (j *RetryJob) Name() string { return "delivery-retries" }

func (j *RetryJob) Run(ctx context.Context) error {
	_, err := j.Sweep(ctx)
	return err
}

// Sweep retries each candidate whose backoff wait has elapsed. Attempt n
// waits BackoffFor(n) after the previous failure, so a candidate observed
// too early is left for a later cycle.
func (j *RetryJob) Sweep(ctx context.Context) (*RetrySweepResult, error) {
	if !j.inFlight.CompareAndSwap(false, true) {
		return nil, ErrSweepInFlight
	}
	defer j.inFlight.Store(false)

	now := j.now().UTC()
	since := now.Add(-j.cfg.RetryWindow)
	candidates, err := j.audit.RetryCandidates(ctx, since, j.cfg.MaxRetryAttempts, j.batchSize)
	if err != nil {
		return nil, fmt.Errorf("listing retry candidates: %w", err)
	}

	result := &RetrySweepResult{Candidates: len(candidates)}
	var errs error
	for _, event := range candidates {
		attempt := event.RetryCount + 1
		eligibleAt := event.CreatedAt.Add(j.cfg.BackoffFor(attempt))
		if now.Before(eligibleAt) {
			result.Waiting++
			continue
		}

		processed, err := j.processor.ProcessOrder(ctx, delivery.ProcessInput{
			OrderID:    event.OrderID,
			RetryCount: attempt,
		})
		if err != nil {
			orderCtx := j.logg.WithOrderID(ctx, event.OrderID.String())
			j.logg.Error(orderCtx, "delivery retry failed", err)
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", event.OrderID, err))
			continue
		}
		result.Retried++
		result.Results = append(result.Results, *processed)
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": result.Candidates,
		"retried":    result.Retried,
		"waiting":    result.Waiting,
	})
	j.logg.Info(logCtx, "delivery retries sweep complete")
	return result, errs
}
