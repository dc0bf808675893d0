package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/halcyonlabs/cardvault/pkg/db/models"
	"github.com/halcyonlabs/cardvault/pkg/enums"
	"github.com/halcyonlabs/cardvault/pkg/pagination"
)

// Repository persists and queries delivery audit events.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, event *models.DeliveryAuditEvent) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.DeliveryAuditEvent, error)
	List(ctx context.Context, query ListQuery) ([]models.DeliveryAuditEvent, *pagination.Cursor, error)
	CountByStatusSince(ctx context.Context, since time.Time) (map[enums.AuditStatus]int64, error)
	CountByEventTypeSince(ctx context.Context, since time.Time) (map[enums.AuditEventType]int64, error)
	UnresolvedErrorsSince(ctx context.Context, since time.Time, limit int) (int64, []models.DeliveryAuditEvent, error)
	MarkResolved(ctx context.Context, id uuid.UUID, resolvedBy string, at time.Time) (bool, error)
	FindRetryCandidates(ctx context.Context, since time.Time, maxRetries, limit int) ([]models.DeliveryAuditEvent, error)
}

// ListQuery carries the normalized listing filters.
type ListQuery struct {
	OrderID        *uuid.UUID
	ProductID      *uuid.UUID
	EventType      *enums.AuditEventType
	Status         *enums.AuditStatus
	CustomerEmail  string
	From           *time.Time
	To             *time.Time
	UnresolvedOnly bool
	Limit          int
	Cursor         *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an audit repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Insert(ctx context.Context, event *models.DeliveryAuditEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.DeliveryAuditEvent, error) {
	var event models.DeliveryAuditEvent
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repository) List(ctx context.Context, query ListQuery) ([]models.DeliveryAuditEvent, *pagination.Cursor, error) {
	q := r.db.WithContext(ctx).Model(&models.DeliveryAuditEvent{})

	if query.OrderID != nil {
		q = q.Where("order_id = ?", *query.OrderID)
	}
	if query.ProductID != nil {
		q = q.Where("product_id = ?", *query.ProductID)
	}
	if query.EventType != nil {
		q = q.Where("event_type = ?", *query.EventType)
	}
	if query.Status != nil {
		q = q.Where("status = ?", *query.Status)
	}
	if query.CustomerEmail != "" {
		q = q.Where("customer_email = ?", query.CustomerEmail)
	}
	if query.From != nil {
		q = q.Where("created_at >= ?", *query.From)
	}
	if query.To != nil {
		q = q.Where("created_at < ?", *query.To)
	}
	if query.UnresolvedOnly {
		q = q.Where("is_resolved = ?", false)
	}
	if query.Cursor != nil {
		q = q.Where(
			"created_at < ? OR (created_at = ? AND id < ?)",
			query.Cursor.CreatedAt, query.Cursor.CreatedAt, query.Cursor.ID,
		)
	}

	limit := query.Limit
	if limit <= 0 {
		limit = pagination.LimitWithBuffer(0)
	}

	var rows []models.DeliveryAuditEvent
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	var next *pagination.Cursor
	if len(rows) == limit {
		rows = rows[:limit-1]
		last := rows[len(rows)-1]
		next = &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return rows, next, nil
}

type statusCount struct {
	Status enums.AuditStatus
	Total  int64
}

type eventTypeCount struct {
	EventType enums.AuditEventType
	Total     int64
}

func (r *repository) CountByStatusSince(ctx context.Context, since time.Time) (map[enums.AuditStatus]int64, error) {
	var rows []statusCount
	err := r.db.WithContext(ctx).
		Model(&models.DeliveryAuditEvent{}).
		Select("status, COUNT(*) AS total").
		Where("created_at >= ?", since).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[enums.AuditStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}

func (r *repository) CountByEventTypeSince(ctx context.Context, since time.Time) (map[enums.AuditEventType]int64, error) {
	var rows []eventTypeCount
	err := r.db.WithContext(ctx).
		Model(&models.DeliveryAuditEvent{}).
		Select("event_type, COUNT(*) AS total").
		Where("created_at >= ?", since).
		Group("event_type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[enums.AuditEventType]int64, len(rows))
	for _, row := range rows {
		counts[row.EventType] = row.Total
	}
	return counts, nil
}

func (r *repository) UnresolvedErrorsSince(ctx context.Context, since time.Time, limit int) (int64, []models.DeliveryAuditEvent, error) {
	base := r.db.WithContext(ctx).
		Model(&models.DeliveryAuditEvent{}).
		Where("status = ? AND is_resolved = ? AND created_at >= ?", enums.AuditStatusError, false, since)

	var count int64
	if err := base.Session(&gorm.Session{}).Count(&count).Error; err != nil {
		return 0, nil, err
	}

	var rows []models.DeliveryAuditEvent
	if limit > 0 {
		if err := base.Session(&gorm.Session{}).Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
			return 0, nil, err
		}
	}
	return count, rows, nil
}

func (r *repository) MarkResolved(ctx context.Context, id uuid.UUID, resolvedBy string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.DeliveryAuditEvent{}).
		Where("id = ? AND is_resolved = ?", id, false).
		Updates(map[string]any{
			"is_resolved": true,
			"resolved_by": resolvedBy,
			"resolved_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// FindRetryCandidates returns, per order, the newest unresolved delivery
// failure within the retry window that still has budget left. Older failure
// events for the same order stay unresolved for manual triage but are never
// retried again.
func (r *repository) FindRetryCandidates(ctx context.Context, since time.Time, maxRetries, limit int) ([]models.DeliveryAuditEvent, error) {
	retryable := []enums.AuditEventType{
		enums.AuditEventInsufficientInventory,
		enums.AuditEventDeliveryFailed,
	}

	sub := r.db.
		Model(&models.DeliveryAuditEvent{}).
		Select("order_id, MAX(created_at) AS latest").
		Where("status = ? AND event_type IN ?", enums.AuditStatusError, retryable).
		Group("order_id")

	var rows []models.DeliveryAuditEvent
	err := r.db.WithContext(ctx).
		Model(&models.DeliveryAuditEvent{}).
		Joins("JOIN (?) latest_failures ON delivery_audit_events.order_id = latest_failures.order_id AND delivery_audit_events.created_at = latest_failures.latest", sub).
		Where("delivery_audit_events.status = ? AND delivery_audit_events.is_resolved = ?", enums.AuditStatusError, false).
		Where("delivery_audit_events.event_type IN ?", retryable).
		Where("delivery_audit_events.retry_count < ?", maxRetries).
		Where("delivery_audit_events.created_at >= ?", since).
		Order("delivery_audit_events.created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
