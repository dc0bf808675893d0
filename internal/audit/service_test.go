package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/halcyonlabs/cardvault/pkg/db/models"
	"github.com/halcyonlabs/cardvault/pkg/enums"
	apperrors "github.com/halcyonlabs/cardvault/pkg/errors"
	"github.com/halcyonlabs/cardvault/pkg/logger"
	"github.com/halcyonlabs/cardvault/pkg/pagination"
	"github.com/halcyonlabs/cardvault/pkg/types"
)

func setupAuditTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS delivery_audit_events (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  order_number INTEGER NOT NULL,
  customer_email TEXT NOT NULL,
  product_id TEXT,
  product_title TEXT NOT NULL DEFAULT '',
  event_type TEXT NOT NULL,
  status TEXT NOT NULL,
  message TEXT NOT NULL,
  details TEXT,
  quantity INTEGER NOT NULL DEFAULT 0,
  inventory_used INTEGER NOT NULL DEFAULT 0,
  processing_time_ms INTEGER NOT NULL DEFAULT 0,
  retry_count INTEGER NOT NULL DEFAULT 0,
  is_resolved INTEGER NOT NULL DEFAULT 0,
  resolved_by TEXT,
  resolved_at DATETIME,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func newAuditService(t *testing.T, db *gorm.DB, now func() time.Time) Service {
	t.Helper()

	svc, err := NewService(ServiceParams{
		Repo:   NewRepository(db),
		Logger: logger.New(logger.Options{ServiceName: "audit-test"}),
		Now:    now,
	})
	require.NoError(t, err)
	return svc
}

func insertEvent(t *testing.T, db *gorm.DB, event models.DeliveryAuditEvent) models.DeliveryAuditEvent {
	t.Helper()

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.OrderID == uuid.Nil {
		event.OrderID = uuid.New()
	}
	if event.CustomerEmail == "" {
		event.CustomerEmail = "buyer@example.com"
	}
	if event.Message == "" {
		event.Message = "test event"
	}
	require.NoError(t, db.Create(&event).Error)
	return event
}

func TestServiceRecord_persistsEvent(t *testing.T) {
	db := setupAuditTestDB(t)
	fixed := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	svc := newAuditService(t, db, func() time.Time { return fixed })

	orderID := uuid.New()
	productID := uuid.New()
	err := svc.Record(context.Background(), Entry{
		OrderID:       orderID,
		OrderNumber:   1001,
		CustomerEmail: "buyer@example.com",
		ProductID:     &productID,
		ProductTitle:  "Streaming 12mo",
		EventType:     enums.AuditEventDeliverySuccess,
		Status:        enums.AuditStatusSuccess,
		Message:       "delivered 2 units",
		Details:       types.JSONMap{"units": 2},
		Quantity:      2,
		InventoryUsed: 2,
	})
	require.NoError(t, err)

	var stored models.DeliveryAuditEvent
	require.NoError(t, db.First(&stored, "order_id = ?", orderID).Error)
	assert.Equal(t, enums.AuditEventDeliverySuccess, stored.EventType)
	assert.Equal(t, int64(1001), stored.OrderNumber)
	assert.WithinDuration(t, fixed, stored.CreatedAt, time.Second)
	assert.False(t, stored.IsResolved)
}

func TestServiceRecord_rejectsMissingOrder(t *testing.T) {
	db := setupAuditTestDB(t)
	svc := newAuditService(t, db, time.Now)

	err := svc.Record(context.Background(), Entry{
		EventType: enums.AuditEventDeliveryFailed,
		Status:    enums.AuditStatusError,
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidation, apperrors.As(err).Code())
}

func TestServiceList_paginationAndFilters(t *testing.T) {
	db := setupAuditTestDB(t)
	svc := newAuditService(t, db, time.Now)

	orderID := uuid.New()
	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		insertEvent(t, db, models.DeliveryAuditEvent{
			OrderID:     orderID,
			OrderNumber: 2000,
			EventType:   enums.AuditEventDeliveryStarted,
			Status:      enums.AuditStatusInfo,
			CreatedAt:   now.Add(time.Duration(i) * time.Minute),
		})
	}
	insertEvent(t, db, models.DeliveryAuditEvent{
		OrderID:     uuid.New(),
		OrderNumber: 2001,
		EventType:   enums.AuditEventDeliveryFailed,
		Status:      enums.AuditStatusError,
		CreatedAt:   now.Add(time.Hour),
	})

	page, err := svc.List(context.Background(), ListInput{
		OrderID:    &orderID,
		Pagination: pagination.Params{Limit: 2},
	})
	require.NoError(t, err)
	require.Len(t, page.Events, 2)
	require.NotEmpty(t, page.NextCursor)
	// Newest first.
	assert.True(t, page.Events[0].CreatedAt.After(page.Events[1].CreatedAt))

	second, err := svc.List(context.Background(), ListInput{
		OrderID:    &orderID,
		Pagination: pagination.Params{Limit: 2, Cursor: page.NextCursor},
	})
	require.NoError(t, err)
	require.Len(t, second.Events, 1)
	assert.Empty(t, second.NextCursor)

	failed, err := svc.List(context.Background(), ListInput{
		Status:     string(enums.AuditStatusError),
		Pagination: pagination.Params{Limit: 10},
	})
	require.NoError(t, err)
	require.Len(t, failed.Events, 1)
	assert.Equal(t, int64(2001), failed.Events[0].OrderNumber)
}

func TestServiceList_rejectsUnknownFilterValues(t *testing.T) {
	db := setupAuditTestDB(t)
	svc := newAuditService(t, db, time.Now)

	_, err := svc.List(context.Background(), ListInput{EventType: "bogus"})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidation, apperrors.As(err).Code())

	_, err = svc.List(context.Background(), ListInput{Status: "bogus"})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidation, apperrors.As(err).Code())
}

func TestServiceStats_countsWithinTimeframe(t *testing.T) {
	db := setupAuditTestDB(t)
	fixed := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	svc := newAuditService(t, db, func() time.Time { return fixed })

	insertEvent(t, db, models.DeliveryAuditEvent{
		OrderID:   uuid.New(),
		EventType: enums.AuditEventDeliverySuccess,
		Status:    enums.AuditStatusSuccess,
		CreatedAt: fixed.Add(-time.Hour),
	})
	insertEvent(t, db, models.DeliveryAuditEvent{
		OrderID:   uuid.New(),
		EventType: enums.AuditEventDeliveryFailed,
		Status:    enums.AuditStatusError,
		CreatedAt: fixed.Add(-2 * time.Hour),
	})
	// Outside the 24h window.
	insertEvent(t, db, models.DeliveryAuditEvent{
		OrderID:   uuid.New(),
		EventType: enums.AuditEventDeliveryFailed,
		Status:    enums.AuditStatusError,
		CreatedAt: fixed.Add(-48 * time.Hour),
	})

	stats, err := svc.Stats(context.Background(), Timeframe24h)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.ByStatus[enums.AuditStatusSuccess])
	assert.Equal(t, int64(1), stats.ByStatus[enums.AuditStatusError])
	assert.Equal(t, int64(1), stats.ByEventType[enums.AuditEventDeliveryFailed])
	assert.Equal(t, int64(1), stats.UnresolvedErrors)
	require.Len(t, stats.RecentErrors, 1)

	_, err = svc.Stats(context.Background(), "90d")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidation, apperrors.As(err).Code())
}

func TestServiceResolve(t *testing.T) {
	db := setupAuditTestDB(t)
	fixed := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	svc := newAuditService(t, db, func() time.Time { return fixed })

	event := insertEvent(t, db, models.DeliveryAuditEvent{
		OrderID:   uuid.New(),
		EventType: enums.AuditEventInsufficientInventory,
		Status:    enums.AuditStatusError,
		CreatedAt: fixed.Add(-time.Hour),
	})

	resolved, err := svc.Resolve(context.Background(), event.ID, "ops@halcyonlabs.dev")
	require.NoError(t, err)
	assert.True(t, resolved.IsResolved)
	require.NotNil(t, resolved.ResolvedBy)
	assert.Equal(t, "ops@halcyonlabs.dev", *resolved.ResolvedBy)
	require.NotNil(t, resolved.ResolvedAt)
	assert.WithinDuration(t, fixed, *resolved.ResolvedAt, time.Second)

	_, err = svc.Resolve(context.Background(), event.ID, "ops@halcyonlabs.dev")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeStateConflict, apperrors.As(err).Code())

	_, err = svc.Resolve(context.Background(), uuid.New(), "ops@halcyonlabs.dev")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.As(err).Code())

	_, err = svc.Resolve(context.Background(), event.ID, "  ")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidation, apperrors.As(err).Code())
}

func TestServiceRetryCandidates_latestFailurePerOrder(t *testing.T) {
	db := setupAuditTestDB(t)
	svc := newAuditService(t, db, time.Now)

	now := time.Now().UTC()
	orderA := uuid.New()
	orderB := uuid.New()
	orderC := uuid.New()

	// Order A failed twice; only the newest failure is a candidate.
	insertEvent(t, db, models.DeliveryAuditEvent{
		OrderID: orderA, OrderNumber: 1,
		EventType: enums.AuditEventInsufficientInventory, Status: enums.AuditStatusError,
		RetryCount: 0, CreatedAt: now.Add(-2 * time.Hour),
	})
	latestA := insertEvent(t, db, models.DeliveryAuditEvent{
		OrderID: orderA, OrderNumber: 1,
		EventType: enums.AuditEventDeliveryFailed, Status: enums.AuditStatusError,
		RetryCount: 1, CreatedAt: now.Add(-time.Hour),
	})

	// Order B exhausted its retry budget.
	insertEvent(t, db, models.DeliveryAuditEvent{
		OrderID: orderB, OrderNumber: 2,
		EventType: enums.AuditEventDeliveryFailed, Status: enums.AuditStatusError,
		RetryCount: 3, CreatedAt: now.Add(-time.Hour),
	})

	// Order C's failure was resolved by an operator.
	resolved := insertEvent(t, db, models.DeliveryAuditEvent{
		OrderID: orderC, OrderNumber: 3,
		EventType: enums.AuditEventDeliveryFailed, Status: enums.AuditStatusError,
		RetryCount: 0, CreatedAt: now.Add(-time.Hour),
	})
	require.NoError(t, db.Model(&models.DeliveryAuditEvent{}).
		Where("id = ?", resolved.ID).
		Update("is_resolved", true).Error)

	candidates, err := svc.RetryCandidates(context.Background(), now.Add(-24*time.Hour), 3, 50)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, latestA.ID, candidates[0].ID)
	assert.Equal(t, 1, candidates[0].RetryCount)
}

func TestServiceRetryCandidates_respectsWindow(t *testing.T) {
	db := setupAuditTestDB(t)
	svc := newAuditService(t, db, time.Now)

	now := time.Now().UTC()
	insertEvent(t, db, models.DeliveryAuditEvent{
		OrderID: uuid.New(), OrderNumber: 4,
		EventType: enums.AuditEventDeliveryFailed, Status: enums.AuditStatusError,
		RetryCount: 0, CreatedAt: now.Add(-30 * time.Hour),
	})

	candidates, err := svc.RetryCandidates(context.Background(), now.Add(-24*time.Hour), 3, 50)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}
