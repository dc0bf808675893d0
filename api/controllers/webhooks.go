package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/halcyonlabs/cardvault/api/responses"
	"github.com/halcyonlabs/cardvault/internal/delivery"
	pkgerrors "github.com/halcyonlabs/cardvault/pkg/errors"
	"github.com/halcyonlabs/cardvault/pkg/logger"
)

type paymentWebhookRequest struct {
	OrderNumber int64  `json:"orderNumber"`
	Status      string `json:"status"`
}

// PaymentsWebhook is the payment-confirmed inbound event. A "paid" status
// marks the order and fulfills it synchronously; every other status is
// acknowledged and ignored.
func PaymentsWebhook(svc delivery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req paymentWebhookRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid webhook payload"))
			return
		}
		if req.OrderNumber <= 0 {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "orderNumber is required"))
			return
		}

		if req.Status != "paid" {
			ctx = logg.WithFields(ctx, map[string]any{
				"order_number": req.OrderNumber,
				"status":       req.Status,
			})
			logg.Info(ctx, "payment webhook ignored")
			responses.WriteSuccess(w, map[string]any{"ignored": true})
			return
		}

		result, err := svc.ConfirmPayment(ctx, req.OrderNumber)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
