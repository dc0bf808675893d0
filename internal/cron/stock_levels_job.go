package cron

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/halcyonlabs/cardvault/internal/delivery"
	"github.com/halcyonlabs/cardvault/internal/notify"
	"github.com/halcyonlabs/cardvault/pkg/db/models"
	"github.com/halcyonlabs/cardvault/pkg/logger"
)

// stockRepo is the inventory accounting surface the stock sweep reads.
type stockRepo interface {
	ListAutoDeliveryProducts(ctx context.Context) ([]models.Product, error)
	CountEligibleStock(ctx context.Context, productID uuid.UUID, now time.Time) (delivery.StockLevel, error)
	PendingDemand(ctx context.Context, productID uuid.UUID) (int64, error)
}

// alertSender dispatches admin alerts.
type alertSender interface {
	SendAdminAlert(ctx context.Context, alert notify.AdminAlert) error
}

// LowStockProduct reports one product below its safe stock level.
type LowStockProduct struct {
	ProductID     uuid.UUID `json:"productId"`
	ProductTitle  string    `json:"productTitle"`
	Units         int64     `json:"units"`
	PendingDemand int64     `json:"pendingDemand"`
	Threshold     int       `json:"threshold"`
}

// StockSweepResult summarizes one stock-levels sweep.
type StockSweepResult struct {
	CheckedProducts  int               `json:"checkedProducts"`
	LowStockProducts []LowStockProduct `json:"lowStockProducts"`
}

// StockLevelsJobParams configure the stock-levels sweep.
type StockLevelsJobParams struct {
	Logger    *logger.Logger
	Repo      stockRepo
	Gateway   alertSender
	Threshold int
	Now       func() time.Time
}

// StockLevelsJob checks every auto-delivery product's eligible pool against
// the low-stock threshold and the outstanding paid demand.
type StockLevelsJob struct {
	logg      *logger.Logger
	repo      stockRepo
	gateway   alertSender
	threshold int
	now       func() time.Time
	inFlight  atomic.Bool
}

// NewStockLevelsJob builds the stock-levels sweep.
func NewStockLevelsJob(params StockLevelsJobParams) (*StockLevelsJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("stock repository required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("alert gateway required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &StockLevelsJob{
		logg:      params.Logger,
		repo:      params.Repo,
		gateway:   params.Gateway,
		threshold: params.Threshold,
		now:       now,
	}, nil
}

func (j *StockLevelsJob) Name() string { return "stock-levels" }

func (j *StockLevelsJob) Run(ctx context.Context) error {
	_, err := j.Sweep(ctx)
	return err
}

// Sweep alerts when a product's eligible units fall to the threshold or
// below the quantity already sold and waiting for fulfillment.
func (j *StockLevelsJob) Sweep(ctx context.Context) (*StockSweepResult, error) {
	if !j.inFlight.CompareAndSwap(false, true) {
		return nil, ErrSweepInFlight
	}
	defer j.inFlight.Store(false)

	products, err := j.repo.ListAutoDeliveryProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing auto-delivery products: %w", err)
	}

	now := j.now().UTC()
	result := &StockSweepResult{CheckedProducts: len(products)}
	var errs error
	for _, product := range products {
		level, err := j.repo.CountEligibleStock(ctx, product.ID, now)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("product %s stock: %w", product.ID, err))
			continue
		}
		demand, err := j.repo.PendingDemand(ctx, product.ID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("product %s demand: %w", product.ID, err))
			continue
		}

		if level.Units > int64(j.threshold) && level.Units >= demand {
			continue
		}

		low := LowStockProduct{
			ProductID:     product.ID,
			ProductTitle:  product.Title,
			Units:         level.Units,
			PendingDemand: demand,
			Threshold:     j.threshold,
		}
		result.LowStockProducts = append(result.LowStockProducts, low)

		alert := notify.LowStockAlert(product, int(level.Units), int(demand), j.threshold)
		if err := j.gateway.SendAdminAlert(ctx, alert); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("product %s alert: %w", product.ID, err))
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"checked":   result.CheckedProducts,
		"low_stock": len(result.LowStockProducts),
	})
	j.logg.Info(logCtx, "stock levels sweep complete")
	return result, errs
}
