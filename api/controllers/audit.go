package controllers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/halcyonlabs/cardvault/api/responses"
	"github.com/halcyonlabs/cardvault/internal/audit"
	pkgerrors "github.com/halcyonlabs/cardvault/pkg/errors"
	"github.com/halcyonlabs/cardvault/pkg/logger"
	"github.com/halcyonlabs/cardvault/pkg/pagination"
)

// ListAuditEvents serves the filtered, cursor-paginated audit log.
func ListAuditEvents(svc audit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		query := r.URL.Query()

		input := audit.ListInput{
			EventType:      query.Get("eventType"),
			Status:         query.Get("status"),
			CustomerEmail:  query.Get("customerEmail"),
			UnresolvedOnly: query.Get("unresolvedOnly") == "true",
			Pagination: pagination.Params{
				Cursor: query.Get("cursor"),
			},
		}

		if raw := query.Get("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid limit"))
				return
			}
			input.Pagination.Limit = limit
		}
		if raw := query.Get("orderId"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid order id"))
				return
			}
			input.OrderID = &id
		}
		if raw := query.Get("productId"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid product id"))
				return
			}
			input.ProductID = &id
		}
		if raw := query.Get("from"); raw != "" {
			from, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid from timestamp"))
				return
			}
			input.From = &from
		}
		if raw := query.Get("to"); raw != "" {
			to, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid to timestamp"))
				return
			}
			input.To = &to
		}

		result, err := svc.List(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"events":     result.Events,
			"nextCursor": result.NextCursor,
		})
	}
}

// AuditStats serves aggregate audit counts for a timeframe.
func AuditStats(svc audit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		stats, err := svc.Stats(ctx, r.URL.Query().Get("timeframe"))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}

type resolveRequest struct {
	ResolvedBy string `json:"resolvedBy"`
}

// ResolveAuditEvent marks an error event handled by an operator.
func ResolveAuditEvent(svc audit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		eventID, err := uuid.Parse(chi.URLParam(r, "eventID"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid event id"))
			return
		}

		var req resolveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid request body"))
			return
		}

		event, err := svc.Resolve(ctx, eventID, req.ResolvedBy)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, event)
	}
}
