package audit

import (
	"context"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/halcyonlabs/cardvault/pkg/db/models"
	"github.com/halcyonlabs/cardvault/pkg/enums"
	apperrors "github.com/halcyonlabs/cardvault/pkg/errors"
	"github.com/halcyonlabs/cardvault/pkg/logger"
	"github.com/halcyonlabs/cardvault/pkg/pagination"
	"github.com/halcyonlabs/cardvault/pkg/types"
)

// Timeframes accepted by Stats.
const (
	TimeframeHour  = "1h"
	Timeframe24h   = "24h"
	TimeframeWeek  = "7d"
	TimeframeMonth = "30d"
)

var timeframeDurations = map[string]time.Duration{
	TimeframeHour:  time.Hour,
	Timeframe24h:   24 * time.Hour,
	TimeframeWeek:  7 * 24 * time.Hour,
	TimeframeMonth: 30 * 24 * time.Hour,
}

// Entry is everything a caller supplies when recording an audit event.
type Entry struct {
	OrderID          uuid.UUID
	OrderNumber      int64
	CustomerEmail    string
	ProductID        *uuid.UUID
	ProductTitle     string
	EventType        enums.AuditEventType
	Status           enums.AuditStatus
	Message          string
	Details          types.JSONMap
	Quantity         int
	InventoryUsed    int
	ProcessingTimeMs int64
	RetryCount       int
}

// ListInput carries the raw listing filters as received from the API layer.
type ListInput struct {
	OrderID        *uuid.UUID
	ProductID      *uuid.UUID
	EventType      string
	Status         string
	CustomerEmail  string
	From           *time.Time
	To             *time.Time
	UnresolvedOnly bool
	Pagination     pagination.Params
}

// ListResult is one page of audit events plus the cursor for the next page.
type ListResult struct {
	Events     []models.DeliveryAuditEvent
	NextCursor string
}

// Stats summarizes audit activity over a timeframe.
type Stats struct {
	Timeframe        string                         `json:"timeframe"`
	Since            time.Time                      `json:"since"`
	Total            int64                          `json:"total"`
	ByStatus         map[enums.AuditStatus]int64    `json:"byStatus"`
	ByEventType      map[enums.AuditEventType]int64 `json:"byEventType"`
	UnresolvedErrors int64                          `json:"unresolvedErrors"`
	RecentErrors     []models.DeliveryAuditEvent    `json:"recentErrors"`
}

// Service is the audit log API used by the delivery engine and the admin
// surface. Recording is append-only; resolution is the only mutation.
type Service interface {
	Record(ctx context.Context, entry Entry) error
	List(ctx context.Context, input ListInput) (*ListResult, error)
	Stats(ctx context.Context, timeframe string) (*Stats, error)
	Resolve(ctx context.Context, eventID uuid.UUID, resolvedBy string) (*models.DeliveryAuditEvent, error)
	RetryCandidates(ctx context.Context, since time.Time, maxRetries, limit int) ([]models.DeliveryAuditEvent, error)
}

// ServiceParams wires the audit service dependencies.
type ServiceParams struct {
	Repo   Repository
	Logger *logger.Logger
	Now    func() time.Time
}

type service struct {
	repo Repository
	logg *logger.Logger
	now  func() time.Time
}

// NewService validates dependencies and builds the audit service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("audit repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{repo: params.Repo, logg: params.Logger, now: now}, nil
}

func (s *service) Record(ctx context.Context, entry Entry) error {
	if entry.OrderID == uuid.Nil {
		return apperrors.New(apperrors.CodeValidation, "audit entry requires an order id")
	}
	if entry.EventType == "" || entry.Status == "" {
		return apperrors.New(apperrors.CodeValidation, "audit entry requires event type and status")
	}

	event := models.DeliveryAuditEvent{
		OrderID:          entry.OrderID,
		OrderNumber:      entry.OrderNumber,
		CustomerEmail:    entry.CustomerEmail,
		ProductID:        entry.ProductID,
		ProductTitle:     entry.ProductTitle,
		EventType:        entry.EventType,
		Status:           entry.Status,
		Message:          entry.Message,
		Details:          entry.Details,
		Quantity:         entry.Quantity,
		InventoryUsed:    entry.InventoryUsed,
		ProcessingTimeMs: entry.ProcessingTimeMs,
		RetryCount:       entry.RetryCount,
		CreatedAt:        s.now().UTC(),
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}

	if err := s.repo.Insert(ctx, &event); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, err, "recording audit event")
	}
	return nil
}

func (s *service) List(ctx context.Context, input ListInput) (*ListResult, error) {
	query := ListQuery{
		OrderID:        input.OrderID,
		ProductID:      input.ProductID,
		CustomerEmail:  strings.TrimSpace(input.CustomerEmail),
		From:           input.From,
		To:             input.To,
		UnresolvedOnly: input.UnresolvedOnly,
		Limit:          pagination.LimitWithBuffer(input.Pagination.Limit),
	}

	if input.EventType != "" {
		eventType := enums.AuditEventType(input.EventType)
		if !eventType.Valid() {
			return nil, apperrors.New(apperrors.CodeValidation, "unknown event type").
				WithDetails(map[string]any{"eventType": input.EventType})
		}
		query.EventType = &eventType
	}
	if input.Status != "" {
		status := enums.AuditStatus(input.Status)
		if !status.Valid() {
			return nil, apperrors.New(apperrors.CodeValidation, "unknown audit status").
				WithDetails(map[string]any{"status": input.Status})
		}
		query.Status = &status
	}

	cursor, err := pagination.ParseCursor(input.Pagination.Cursor)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeValidation, err, "invalid cursor")
	}
	query.Cursor = cursor

	events, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "listing audit events")
	}

	result := &ListResult{Events: events}
	if next != nil {
		result.NextCursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

func (s *service) Stats(ctx context.Context, timeframe string) (*Stats, error) {
	if timeframe == "" {
		timeframe = Timeframe24h
	}
	window, ok := timeframeDurations[timeframe]
	if !ok {
		return nil, apperrors.New(apperrors.CodeValidation, "unknown timeframe").
			WithDetails(map[string]any{"timeframe": timeframe, "allowed": []string{TimeframeHour, Timeframe24h, TimeframeWeek, TimeframeMonth}})
	}
	since := s.now().UTC().Add(-window)

	byStatus, err := s.repo.CountByStatusSince(ctx, since)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "aggregating audit statuses")
	}
	byEventType, err := s.repo.CountByEventTypeSince(ctx, since)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "aggregating audit event types")
	}
	unresolved, recent, err := s.repo.UnresolvedErrorsSince(ctx, since, 10)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "loading unresolved errors")
	}

	var total int64
	for _, count := range byStatus {
		total += count
	}

	return &Stats{
		Timeframe:        timeframe,
		Since:            since,
		Total:            total,
		ByStatus:         byStatus,
		ByEventType:      byEventType,
		UnresolvedErrors: unresolved,
		RecentErrors:     recent,
	}, nil
}

func (s *service) Resolve(ctx context.Context, eventID uuid.UUID, resolvedBy string) (*models.DeliveryAuditEvent, error) {
	resolvedBy = strings.TrimSpace(resolvedBy)
	if resolvedBy == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "resolvedBy is required")
	}

	event, err := s.repo.FindByID(ctx, eventID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "audit event not found")
		}
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "loading audit event")
	}
	if event.IsResolved {
		return nil, apperrors.New(apperrors.CodeStateConflict, "audit event already resolved")
	}

	at := s.now().UTC()
	updated, err := s.repo.MarkResolved(ctx, eventID, resolvedBy, at)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "resolving audit event")
	}
	if !updated {
		// Lost a race with another operator between the read and the update.
		return nil, apperrors.New(apperrors.CodeStateConflict, "audit event already resolved")
	}

	event.IsResolved = true
	event.ResolvedBy = &resolvedBy
	event.ResolvedAt = &at

	ctx = s.logg.WithFields(ctx, map[string]any{"event_id": eventID, "resolved_by": resolvedBy})
	s.logg.Info(ctx, "audit event resolved")
	return event, nil
}

func (s *service) RetryCandidates(ctx context.Context, since time.Time, maxRetries, limit int) ([]models.DeliveryAuditEvent, error) {
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}
	events, err := s.repo.FindRetryCandidates(ctx, since, maxRetries, limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "finding retry candidates")
	}
	return events, nil
}
