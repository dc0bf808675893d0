package delivery

import (
	"context"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/halcyonlabs/cardvault/internal/audit"
	"github.com/halcyonlabs/cardvault/internal/notify"
	"github.com/halcyonlabs/cardvault/pkg/config"
	"github.com/halcyonlabs/cardvault/pkg/db/models"
	"github.com/halcyonlabs/cardvault/pkg/enums"
	apperrors "github.com/halcyonlabs/cardvault/pkg/errors"
	"github.com/halcyonlabs/cardvault/pkg/logger"
	"github.com/halcyonlabs/cardvault/pkg/metrics"
	"github.com/halcyonlabs/cardvault/pkg/types"
)

// candidateBuffer is how many extra records the eligibility query fetches
// beyond the requested quantity, so losing a claim race does not force a
// refetch in the common case.
const candidateBuffer = 10

// txRunner runs a function inside a database transaction.
type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// auditRecorder appends delivery audit events.
type auditRecorder interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Service fulfills paid orders from the credential pool.
type Service interface {
	ProcessOrder(ctx context.Context, input ProcessInput) (*ProcessResult, error)
	ConfirmPayment(ctx context.Context, orderNumber int64) (*ProcessResult, error)
}

// ServiceParams wires the delivery service dependencies.
type ServiceParams struct {
	Tx      txRunner
	Repo    Repository
	Audit   auditRecorder
	Gateway notify.Gateway
	Metrics *metrics.DeliveryMetrics
	Logger  *logger.Logger
	Config  config.DeliveryConfig
	Now     func() time.Time
}

type service struct {
	tx      txRunner
	repo    Repository
	audit   auditRecorder
	gateway notify.Gateway
	metrics *metrics.DeliveryMetrics
	logg    *logger.Logger
	cfg     config.DeliveryConfig
	now     func() time.Time
	locks   *orderLocks
}

// NewService validates dependencies and builds the delivery service.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("delivery repository required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("notification gateway required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		tx:      params.Tx,
		repo:    params.Repo,
		audit:   params.Audit,
		gateway: params.Gateway,
		metrics: params.Metrics,
		logg:    params.Logger,
		cfg:     params.Config,
		now:     now,
		locks:   newOrderLocks(),
	}, nil
}

// insufficientStock aborts an item's allocation transaction when the pool
// cannot cover the quantity. Rolling back releases every claimed unit.
type insufficientStock struct {
	required  int
	available int64
}

func (e insufficientStock) Error() string {
	return fmt.Sprintf("insufficient inventory: need %d, have %d", e.required, e.available)
}

// ConfirmPayment marks the order paid and runs delivery synchronously. This
// is the webhook entry point, so the order is addressed by its public number.
func (s *service) ConfirmPayment(ctx context.Context, orderNumber int64) (*ProcessResult, error) {
	order, err := s.repo.FindOrderByNumber(ctx, orderNumber)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "order not found").
				WithDetails(map[string]any{"orderNumber": orderNumber})
		}
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "loading order")
	}

	if order.PaymentStatus != enums.PaymentStatusPaid {
		if err := s.repo.MarkOrderPaid(ctx, order.ID, s.now().UTC()); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeInternal, err, "marking order paid")
		}
	}

	return s.ProcessOrder(ctx, ProcessInput{OrderID: order.ID})
}

// ProcessOrder allocates credentials for every pending auto-delivery line
// item of the order. Safe to call repeatedly: delivered items are skipped,
// and concurrent calls for the same order serialize on the lock table.
func (s *service) ProcessOrder(ctx context.Context, input ProcessInput) (*ProcessResult, error) {
	release := s.locks.Acquire(input.OrderID)
	defer release()

	started := s.now()
	ctx = s.logg.WithOrderID(ctx, input.OrderID.String())

	order, err := s.repo.FindOrderWithItems(ctx, input.OrderID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "order not found")
		}
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "loading order")
	}

	result := &ProcessResult{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
	}

	if order.PaymentStatus != enums.PaymentStatusPaid || order.Status == enums.OrderStatusCanceled {
		s.logg.Info(ctx, "order not applicable for auto-delivery")
		return result, nil
	}
	if !order.AutoDeliveryEnabled {
		result.RequiresManual = true
		s.logg.Info(ctx, "auto-delivery disabled on order, manual fulfillment required")
		return result, nil
	}
	result.Applicable = true

	pending := false
	for _, item := range order.Items {
		if !item.Delivered && item.DeliveryStatus != enums.DeliveryStatusDelivered {
			pending = true
			break
		}
	}
	// Re-runs of a fully delivered order stay silent in the audit log.
	if pending {
		s.recordStarted(ctx, order, input.RetryCount)
	}

	productIDs := make([]uuid.UUID, 0, len(order.Items))
	for _, item := range order.Items {
		productIDs = append(productIDs, item.ProductID)
	}
	products, err := s.repo.FindProducts(ctx, productIDs)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "loading products")
	}

	attempted := false
	for _, item := range order.Items {
		itemResult := s.processItem(ctx, order, item, products, input.RetryCount, started)
		if itemResult.Outcome != OutcomeSkipped || itemResult.Reason == reasonAlreadyDelivered {
			attempted = true
		}
		result.Items = append(result.Items, itemResult)
		s.metrics.IncAllocation(itemResult.Outcome)
	}

	s.finishOrder(ctx, order, result, attempted)
	return result, nil
}

const (
	reasonAlreadyDelivered = "already delivered"
	reasonManualProduct    = "product not auto-delivery"
	reasonManualItem       = "item not auto-delivery"
	reasonInactiveProduct  = "product inactive"
)

func (s *service) processItem(ctx context.Context, order *models.Order, item models.OrderLineItem, products map[uuid.UUID]models.Product, retryCount int, started time.Time) ItemResult {
	itemResult := ItemResult{
		ItemID:       item.ID,
		ProductID:    item.ProductID,
		ProductTitle: item.ProductTitle,
		Qty:          item.Qty,
		Outcome:      OutcomeSkipped,
	}

	if item.Delivered || item.DeliveryStatus == enums.DeliveryStatusDelivered {
		itemResult.Reason = reasonAlreadyDelivered
		return itemResult
	}
	if !item.AutoDelivery {
		itemResult.Reason = reasonManualItem
		return itemResult
	}
	product, ok := products[item.ProductID]
	if !ok || !product.AutoDeliveryEnabled {
		itemResult.Reason = reasonManualProduct
		return itemResult
	}
	if !product.IsActive {
		itemResult.Reason = reasonInactiveProduct
		return itemResult
	}

	credentials, usedIDs, err := s.allocateItem(ctx, order, item)
	switch {
	case err == nil:
		itemResult.Outcome = OutcomeDelivered
		itemResult.UnitsAssigned = len(usedIDs)
		s.recordSuccess(ctx, order, item, usedIDs, retryCount, started)
		s.sendDeliveryEmail(ctx, order, item, credentials, retryCount)

	case isInsufficient(err):
		shortage := asInsufficient(err)
		itemResult.Outcome = OutcomeInsufficient
		itemResult.Reason = shortage.Error()
		s.failItem(ctx, order, item, retryCount, audit.Entry{
			EventType: enums.AuditEventInsufficientInventory,
			Message:   fmt.Sprintf("insufficient inventory for %q", item.ProductTitle),
			Details: types.JSONMap{
				"required":  shortage.required,
				"available": shortage.available,
			},
		})
		s.metrics.IncInsufficient()
		if retryCount == 0 {
			s.sendAlert(ctx, notify.DeliveryFailureAlert(order, item, shortage.required, int(shortage.available)))
		}

	default:
		itemResult.Outcome = OutcomeFailed
		itemResult.Reason = err.Error()
		s.logg.Error(ctx, "line item allocation failed", err)
		s.failItem(ctx, order, item, retryCount, audit.Entry{
			EventType: enums.AuditEventDeliveryFailed,
			Message:   fmt.Sprintf("allocation failed for %q: %v", item.ProductTitle, err),
		})
	}

	return itemResult
}

// allocateItem claims Qty credential units inside one transaction. Any
// shortage or claim error rolls the whole item back, so partially assigned
// units are never visible.
func (s *service) allocateItem(ctx context.Context, order *models.Order, item models.OrderLineItem) ([]string, []uuid.UUID, error) {
	var payloads []string
	var usedIDs []uuid.UUID

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		now := s.now().UTC()

		candidates, err := repo.FindEligibleCredentials(ctx, item.ProductID, item.Qty+candidateBuffer, now)
		if err != nil {
			return fmt.Errorf("finding eligible credentials: %w", err)
		}

		remaining := item.Qty
		for _, candidate := range candidates {
			if remaining == 0 {
				break
			}
			claimed, err := repo.ClaimCredential(ctx, candidate.ID, now)
			if err != nil {
				return fmt.Errorf("claiming credential: %w", err)
			}
			if !claimed {
				continue
			}

			assignment := &models.Assignment{
				ID:            uuid.New(),
				CredentialID:  candidate.ID,
				OrderID:       order.ID,
				OrderNumber:   order.OrderNumber,
				CustomerEmail: order.CustomerEmail,
				Status:        enums.AssignmentStatusActive,
				AssignedAt:    now,
			}
			if err := repo.CreateAssignment(ctx, assignment); err != nil {
				return fmt.Errorf("creating assignment: %w", err)
			}

			payloads = append(payloads, candidate.Payload)
			usedIDs = append(usedIDs, candidate.ID)
			remaining--
		}

		if remaining > 0 {
			level, err := repo.CountEligibleStock(ctx, item.ProductID, now)
			if err != nil {
				return fmt.Errorf("counting eligible stock: %w", err)
			}
			// Units claimed in this transaction return to the pool on
			// rollback, so they still count as available.
			return insufficientStock{required: item.Qty, available: int64(len(usedIDs)) + level.Units}
		}

		if err := repo.MarkItemDelivered(ctx, item.ID, strings.Join(payloads, CredentialSeparator), now); err != nil {
			return fmt.Errorf("marking item delivered: %w", err)
		}
		if err := repo.AppendDeliveredInventory(ctx, order.ID, usedIDs); err != nil {
			return fmt.Errorf("appending delivered inventory: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return payloads, usedIDs, nil
}

// failItem marks the line item failed and records the failure event. When
// the retry budget is spent the failure escalates to an admin alert.
func (s *service) failItem(ctx context.Context, order *models.Order, item models.OrderLineItem, retryCount int, entry audit.Entry) {
	now := s.now().UTC()
	if err := s.repo.MarkItemFailed(ctx, item.ID, now); err != nil {
		s.logg.Error(ctx, "marking line item failed", err)
	}

	entry.OrderID = order.ID
	entry.OrderNumber = order.OrderNumber
	entry.CustomerEmail = order.CustomerEmail
	entry.ProductID = &item.ProductID
	entry.ProductTitle = item.ProductTitle
	entry.Status = enums.AuditStatusError
	entry.Quantity = item.Qty
	entry.RetryCount = retryCount
	s.record(ctx, entry)

	if retryCount >= s.cfg.MaxRetryAttempts && s.cfg.MaxRetryAttempts > 0 {
		s.sendAlert(ctx, notify.RetriesExhaustedAlert(order, item, retryCount, now))
	}
}

func (s *service) recordStarted(ctx context.Context, order *models.Order, retryCount int) {
	eventType := enums.AuditEventDeliveryStarted
	message := "auto-delivery started"
	if retryCount > 0 {
		eventType = enums.AuditEventDeliveryRetry
		message = fmt.Sprintf("auto-delivery retry %d started", retryCount)
		s.metrics.IncRetry()
	}
	s.record(ctx, audit.Entry{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CustomerEmail: order.CustomerEmail,
		EventType:     eventType,
		Status:        enums.AuditStatusInfo,
		Message:       message,
		RetryCount:    retryCount,
	})
}

func (s *service) recordSuccess(ctx context.Context, order *models.Order, item models.OrderLineItem, usedIDs []uuid.UUID, retryCount int, started time.Time) {
	s.record(ctx, audit.Entry{
		OrderID:          order.ID,
		OrderNumber:      order.OrderNumber,
		CustomerEmail:    order.CustomerEmail,
		ProductID:        &item.ProductID,
		ProductTitle:     item.ProductTitle,
		EventType:        enums.AuditEventDeliverySuccess,
		Status:           enums.AuditStatusSuccess,
		Message:          fmt.Sprintf("delivered %d unit(s) of %q", item.Qty, item.ProductTitle),
		Quantity:         item.Qty,
		InventoryUsed:    len(usedIDs),
		ProcessingTimeMs: s.now().Sub(started).Milliseconds(),
		RetryCount:       retryCount,
	})
}

// sendDeliveryEmail dispatches the customer payload best-effort. Failures
// become audit events, never errors: the credentials are already committed.
func (s *service) sendDeliveryEmail(ctx context.Context, order *models.Order, item models.OrderLineItem, credentials []string, retryCount int) {
	email := notify.CustomerDeliveryEmail(order, item, credentials)
	if err := s.gateway.SendDeliveryEmail(ctx, email); err != nil {
		s.logg.Error(ctx, "delivery email dispatch failed", err)
		s.metrics.IncNotificationFailure()
		s.record(ctx, audit.Entry{
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			CustomerEmail: order.CustomerEmail,
			ProductID:     &item.ProductID,
			ProductTitle:  item.ProductTitle,
			EventType:     enums.AuditEventEmailFailed,
			Status:        enums.AuditStatusWarning,
			Message:       fmt.Sprintf("delivery email failed: %v", err),
			RetryCount:    retryCount,
		})
		s.sendAlert(ctx, notify.MailServiceDownAlert(order.ID, order.OrderNumber, err))
		return
	}

	s.record(ctx, audit.Entry{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CustomerEmail: order.CustomerEmail,
		ProductID:     &item.ProductID,
		ProductTitle:  item.ProductTitle,
		EventType:     enums.AuditEventEmailSent,
		Status:        enums.AuditStatusSuccess,
		Message:       "delivery email sent",
		RetryCount:    retryCount,
	})
}

// finishOrder settles the order-level state after all items ran. The order
// flips to delivered only when every auto item is delivered and at least one
// exists; a partial outcome parks it in processing for the retry sweep.
func (s *service) finishOrder(ctx context.Context, order *models.Order, result *ProcessResult, attempted bool) {
	autoItems := 0
	deliveredItems := 0
	for _, item := range result.Items {
		switch item.Outcome {
		case OutcomeDelivered:
			autoItems++
			deliveredItems++
		case OutcomeInsufficient, OutcomeFailed:
			autoItems++
		case OutcomeSkipped:
			if item.Reason == reasonAlreadyDelivered {
				autoItems++
				deliveredItems++
			}
		}
	}

	now := s.now().UTC()
	if autoItems > 0 && deliveredItems == autoItems {
		result.Delivered = true
		if err := s.repo.MarkOrderDelivered(ctx, order.ID, now); err != nil {
			s.logg.Error(ctx, "marking order delivered", err)
		}
		return
	}

	if attempted && order.Status == enums.OrderStatusPending {
		if err := s.repo.SetOrderStatus(ctx, order.ID, enums.OrderStatusProcessing, now); err != nil {
			s.logg.Error(ctx, "updating order status", err)
		}
	}
}

// record appends an audit event; recorder failures are logged and swallowed
// so bookkeeping never blocks fulfillment.
func (s *service) record(ctx context.Context, entry audit.Entry) {
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logg.Error(ctx, "recording audit event", err)
	}
}

func (s *service) sendAlert(ctx context.Context, alert notify.AdminAlert) {
	if err := s.gateway.SendAdminAlert(ctx, alert); err != nil {
		s.logg.Error(ctx, "admin alert dispatch failed", err)
		s.metrics.IncNotificationFailure()
	}
}

func isInsufficient(err error) bool {
	var shortage insufficientStock
	return stdErrors.As(err, &shortage)
}

func asInsufficient(err error) insufficientStock {
	var shortage insufficientStock
	_ = stdErrors.As(err, &shortage)
	return shortage
}
