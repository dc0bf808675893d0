package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/halcyonlabs/cardvault/api/responses"
	"github.com/halcyonlabs/cardvault/internal/cron"
	"github.com/halcyonlabs/cardvault/internal/delivery"
	pkgerrors "github.com/halcyonlabs/cardvault/pkg/errors"
	"github.com/halcyonlabs/cardvault/pkg/logger"
)

// ProcessOrder is the manual fulfillment trigger for a single order.
func ProcessOrder(svc delivery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid order id"))
			return
		}

		result, err := svc.ProcessOrder(ctx, delivery.ProcessInput{OrderID: orderID})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// TriggerPendingSweep runs the pending-deliveries sweep on demand.
func TriggerPendingSweep(job *cron.PendingDeliveriesJob, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runSweep(w, r, logg, func(ctx context.Context) (any, error) {
			return job.Sweep(ctx)
		})
	}
}

// TriggerRetrySweep runs the delivery-retries sweep on demand.
func TriggerRetrySweep(job *cron.RetryJob, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runSweep(w, r, logg, func(ctx context.Context) (any, error) {
			return job.Sweep(ctx)
		})
	}
}

// TriggerStockSweep runs the stock-levels sweep on demand.
func TriggerStockSweep(job *cron.StockLevelsJob, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runSweep(w, r, logg, func(ctx context.Context) (any, error) {
			return job.Sweep(ctx)
		})
	}
}

func runSweep(w http.ResponseWriter, r *http.Request, logg *logger.Logger, sweep func(ctx context.Context) (any, error)) {
	ctx := r.Context()
	result, err := sweep(ctx)
	if err != nil {
		if errors.Is(err, cron.ErrSweepInFlight) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "sweep already running"))
			return
		}
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sweep finished with errors"))
		return
	}
	responses.WriteSuccess(w, result)
}
