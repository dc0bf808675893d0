package cron

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/multierr"

	"github.com/halcyonlabs/cardvault/internal/delivery"
	"github.com/halcyonlabs/cardvault/pkg/db/models"
	"github.com/halcyonlabs/cardvault/pkg/logger"
)

const defaultOrderBatch = 100

// orderProcessor is the slice of the delivery service the sweeps call.
type orderProcessor interface {
	ProcessOrder(ctx context.Context, input delivery.ProcessInput) (*delivery.ProcessResult, error)
}

// pendingOrdersRepo lists paid orders that still owe auto-delivery items.
type pendingOrdersRepo interface {
	FindPendingAutoOrders(ctx context.Context, limit int) ([]models.Order, error)
}

// PendingSweepResult summarizes one pending-deliveries sweep.
type PendingSweepResult struct {
	TotalOrders     int                      `json:"totalOrders"`
	ProcessedOrders int                      `json:"processedOrders"`
	Results         []delivery.ProcessResult `json:"results"`
}

// PendingDeliveriesJobParams configure the pending-deliveries sweep.
type PendingDeliveriesJobParams struct {
	Logger    *logger.Logger
	Repo      pendingOrdersRepo
	Processor orderProcessor
	BatchSize int
}

// PendingDeliveriesJob fulfills paid orders the webhook path missed. The
// concrete type is exported so the admin API can trigger a sweep and return
// its structured result.
type PendingDeliveriesJob struct {
	logg      *logger.Logger
	repo      pendingOrdersRepo
	processor orderProcessor
	batchSize int
	inFlight  atomic.Bool
}

// NewPendingDeliveriesJob builds the pending-deliveries sweep.
func NewPendingDeliveriesJob(params PendingDeliveriesJobParams) (*PendingDeliveriesJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Processor == nil {
		return nil, fmt.Errorf("order processor required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultOrderBatch
	}
	return &PendingDeliveriesJob{
		logg:      params.Logger,
		repo:      params.Repo,
		processor: params.Processor,
		batchSize: batch,
	}, nil
}

func (j *PendingDeliveriesJob) Name() string { return "pending-deliveries" }

func (j *PendingDeliveriesJob) Run(ctx context.Context) error {
	_, err := j.Sweep(ctx)
	return err
}

// Sweep processes every pending paid order, most urgent product first. A
// single order's failure never stops the rest of the batch.
func (j *PendingDeliveriesJob) Sweep(ctx context.Context) (*PendingSweepResult, error) {
	if !j.inFlight.CompareAndSwap(false, true) {
		return nil, ErrSweepInFlight
	}
	defer j.inFlight.Store(false)

	orders, err := j.repo.FindPendingAutoOrders(ctx, j.batchSize)
	if err != nil {
		return nil, fmt.Errorf("listing pending orders: %w", err)
	}

	result := &PendingSweepResult{TotalOrders: len(orders)}
	var errs error
	for _, order := range orders {
		processed, err := j.processor.ProcessOrder(ctx, delivery.ProcessInput{OrderID: order.ID})
		if err != nil {
			orderCtx := j.logg.WithOrderID(ctx, order.ID.String())
			j.logg.Error(orderCtx, "pending delivery processing failed", err)
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.ID, err))
			continue
		}
		result.ProcessedOrders++
		result.Results = append(result.Results, *processed)
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"total":     result.TotalOrders,
		"processed": result.ProcessedOrders,
	})
	j.logg.Info(logCtx, "pending deliveries sweep complete")
	return result, errs
}
