package delivery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/halcyonlabs/cardvault/internal/audit"
	"github.com/halcyonlabs/cardvault/internal/notify"
	"github.com/halcyonlabs/cardvault/pkg/config"
	"github.com/halcyonlabs/cardvault/pkg/db/models"
	"github.com/halcyonlabs/cardvault/pkg/enums"
	apperrors "github.com/halcyonlabs/cardvault/pkg/errors"
	"github.com/halcyonlabs/cardvault/pkg/logger"
)

func setupDeliveryTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{
		`CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  sku TEXT NOT NULL,
  title TEXT NOT NULL,
  auto_delivery_enabled INTEGER NOT NULL DEFAULT 0,
  delivery_priority INTEGER NOT NULL DEFAULT 5,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS credential_records (
  id TEXT PRIMARY KEY,
  product_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  max_assignments INTEGER NOT NULL DEFAULT 1,
  active_assignments INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'available',
  expires_at DATETIME,
  allow_updates_after_expiry INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  order_number INTEGER NOT NULL UNIQUE,
  customer_email TEXT NOT NULL,
  payment_status TEXT NOT NULL DEFAULT 'pending',
  status TEXT NOT NULL DEFAULT 'pending',
  auto_delivery_enabled INTEGER NOT NULL DEFAULT 1,
  delivered_inventory TEXT NOT NULL DEFAULT '{}',
  delivered_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS order_line_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  product_title TEXT NOT NULL,
  qty INTEGER NOT NULL,
  auto_delivery INTEGER NOT NULL DEFAULT 0,
  delivery_status TEXT NOT NULL DEFAULT 'pending',
  delivered INTEGER NOT NULL DEFAULT 0,
  delivered_at DATETIME,
  credentials TEXT NOT NULL DEFAULT '',
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS assignments (
  id TEXT PRIMARY KEY,
  credential_id TEXT NOT NULL,
  order_id TEXT NOT NULL,
  order_number INTEGER NOT NULL,
  customer_email TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'active',
  assigned_at DATETIME
);`,
	}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

// gormTxRunner adapts a raw gorm handle to the transaction interface for tests.
type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

// fakeRecorder captures audit entries in memory.
type fakeRecorder struct {
	mu      sync.Mutex
	entries []audit.Entry
	fail    bool
}

func (f *fakeRecorder) Record(_ context.Context, entry audit.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return fmt.Errorf("recorder down")
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeRecorder) byType(eventType enums.AuditEventType) []audit.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []audit.Entry
	for _, e := range f.entries {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// fakeGateway captures notification payloads and optionally fails email sends.
type fakeGateway struct {
	mu         sync.Mutex
	alerts     []notify.AdminAlert
	emails     []notify.DeliveryEmail
	emailError error
}

func (f *fakeGateway) SendAdminAlert(_ context.Context, alert notify.AdminAlert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert)
	return nil
}

func (f *fakeGateway) SendDeliveryEmail(_ context.Context, email notify.DeliveryEmail) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.emailError != nil {
		return f.emailError
	}
	f.emails = append(f.emails, email)
	return nil
}

func (f *fakeGateway) alertTypes() []enums.AlertType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]enums.AlertType, 0, len(f.alerts))
	for _, a := range f.alerts {
		out = append(out, a.Type)
	}
	return out
}

type deliveryFixture struct {
	db       *gorm.DB
	svc      Service
	repo     Repository
	recorder *fakeRecorder
	gateway  *fakeGateway
}

func newDeliveryFixture(t *testing.T) *deliveryFixture {
	t.Helper()

	db := setupDeliveryTestDB(t)
	recorder := &fakeRecorder{}
	gateway := &fakeGateway{}
	repo := NewRepository(db)

	svc, err := NewService(ServiceParams{
		Tx:      gormTxRunner{db: db},
		Repo:    repo,
		Audit:   recorder,
		Gateway: gateway,
		Logger:  logger.New(logger.Options{ServiceName: "delivery-test"}),
		Config: config.DeliveryConfig{
			MaxRetryAttempts:  3,
			RetryWindow:       24 * time.Hour,
			RetryBackoff:      []time.Duration{5 * time.Minute, 15 * time.Minute, 45 * time.Minute},
			LowStockThreshold: 5,
		},
	})
	require.NoError(t, err)

	return &deliveryFixture{db: db, svc: svc, repo: repo, recorder: recorder, gateway: gateway}
}

func (f *deliveryFixture) createProduct(t *testing.T, title string, priority int) models.Product {
	t.Helper()
	product := models.Product{
		ID:                  uuid.New(),
		SKU:                 strings.ToLower(strings.ReplaceAll(title, " ", "-")),
		Title:               title,
		AutoDeliveryEnabled: true,
		DeliveryPriority:    priority,
		IsActive:            true,
	}
	require.NoError(t, f.db.Create(&product).Error)
	return product
}

func (f *deliveryFixture) createCredential(t *testing.T, productID uuid.UUID, payload string, maxAssignments int, created time.Time) models.CredentialRecord {
	t.Helper()
	record := models.CredentialRecord{
		ID:             uuid.New(),
		ProductID:      productID,
		Payload:        payload,
		MaxAssignments: maxAssignments,
		Status:         enums.CredentialStatusAvailable,
		CreatedAt:      created,
		UpdatedAt:      created,
	}
	require.NoError(t, f.db.Create(&record).Error)
	return record
}

func (f *deliveryFixture) createOrder(t *testing.T, number int64, payment enums.PaymentStatus) *models.Order {
	t.Helper()
	order := models.Order{
		ID:                  uuid.New(),
		OrderNumber:         number,
		CustomerEmail:       fmt.Sprintf("buyer%d@example.com", number),
		PaymentStatus:       payment,
		Status:              enums.OrderStatusPending,
		AutoDeliveryEnabled: true,
	}
	require.NoError(t, f.db.Create(&order).Error)
	return &order
}

func (f *deliveryFixture) addItem(t *testing.T, order *models.Order, product models.Product, qty int) models.OrderLineItem {
	t.Helper()
	item := models.OrderLineItem{
		ID:           uuid.New(),
		OrderID:      order.ID,
		ProductID:    product.ID,
		ProductTitle: product.Title,
		Qty:          qty,
		AutoDelivery: true,
	}
	require.NoError(t, f.db.Create(&item).Error)
	return item
}

func TestProcessOrder_fullDelivery(t *testing.T) {
	f := newDeliveryFixture(t)
	product := f.createProduct(t, "Streaming 12mo", 1)

	base := time.Now().UTC().Add(-time.Hour)
	first := f.createCredential(t, product.ID, "user1:pass1", 1, base)
	second := f.createCredential(t, product.ID, "user2:pass2", 1, base.Add(time.Minute))
	f.createCredential(t, product.ID, "user3:pass3", 1, base.Add(2*time.Minute))

	order := f.createOrder(t, 1001, enums.PaymentStatusPaid)
	item := f.addItem(t, order, product, 2)

	result, err := f.svc.ProcessOrder(context.Background(), ProcessInput{OrderID: order.ID})
	require.NoError(t, err)
	assert.True(t, result.Applicable)
	assert.True(t, result.Delivered)
	require.Len(t, result.Items, 1)
	assert.Equal(t, OutcomeDelivered, result.Items[0].Outcome)
	assert.Equal(t, 2, result.Items[0].UnitsAssigned)

	// Oldest-first: the two oldest records were consumed, joined in order.
	var stored models.OrderLineItem
	require.NoError(t, f.db.First(&stored, "id = ?", item.ID).Error)
	assert.Equal(t, enums.DeliveryStatusDelivered, stored.DeliveryStatus)
	assert.True(t, stored.Delivered)
	assert.Equal(t, "user1:pass1"+CredentialSeparator+"user2:pass2", stored.Credentials)

	var assignments []models.Assignment
	require.NoError(t, f.db.Where("order_id = ?", order.ID).Find(&assignments).Error)
	require.Len(t, assignments, 2)

	var updatedOrder models.Order
	require.NoError(t, f.db.First(&updatedOrder, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusDelivered, updatedOrder.Status)
	require.NotNil(t, updatedOrder.DeliveredAt)
	assert.True(t, updatedOrder.DeliveredInventory.Contains(first.ID))
	assert.True(t, updatedOrder.DeliveredInventory.Contains(second.ID))

	require.Len(t, f.gateway.emails, 1)
	assert.Equal(t, order.CustomerEmail, f.gateway.emails[0].To)
	assert.Equal(t, []string{"user1:pass1", "user2:pass2"}, f.gateway.emails[0].Credentials)

	assert.Len(t, f.recorder.byType(enums.AuditEventDeliveryStarted), 1)
	assert.Len(t, f.recorder.byType(enums.AuditEventDeliverySuccess), 1)
	assert.Len(t, f.recorder.byType(enums.AuditEventEmailSent), 1)
}

func TestProcessOrder_insufficientInventoryRollsBack(t *testing.T) {
	f := newDeliveryFixture(t)
	product := f.createProduct(t, "Game Key", 1)
	f.createCredential(t, product.ID, "key-one", 1, time.Now().UTC().Add(-time.Hour))
	f.createCredential(t, product.ID, "key-two", 1, time.Now().UTC().Add(-time.Hour))

	order := f.createOrder(t, 1002, enums.PaymentStatusPaid)
	f.addItem(t, order, product, 3)

	result, err := f.svc.ProcessOrder(context.Background(), ProcessInput{OrderID: order.ID})
	require.NoError(t, err)
	assert.True(t, result.Applicable)
	assert.False(t, result.Delivered)
	require.Len(t, result.Items, 1)
	assert.Equal(t, OutcomeInsufficient, result.Items[0].Outcome)

	// All-or-nothing: the claimed units were released by the rollback.
	var records []models.CredentialRecord
	require.NoError(t, f.db.Where("product_id = ?", product.ID).Find(&records).Error)
	require.Len(t, records, 2)
	for _, record := range records {
		assert.Equal(t, 0, record.ActiveAssignments)
		assert.Equal(t, enums.CredentialStatusAvailable, record.Status)
	}

	var assignmentCount int64
	require.NoError(t, f.db.Model(&models.Assignment{}).Count(&assignmentCount).Error)
	assert.Zero(t, assignmentCount)

	events := f.recorder.byType(enums.AuditEventInsufficientInventory)
	require.Len(t, events, 1)
	assert.Equal(t, enums.AuditStatusError, events[0].Status)
	assert.Equal(t, 3, events[0].Details["required"])
	assert.Equal(t, int64(2), events[0].Details["available"])

	// First attempt alerts the admins.
	assert.Contains(t, f.gateway.alertTypes(), enums.AlertDeliveryFailure)

	var updatedOrder models.Order
	require.NoError(t, f.db.First(&updatedOrder, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusProcessing, updatedOrder.Status)
}

func TestProcessOrder_retryDoesNotRepeatFailureAlert(t *testing.T) {
	f := newDeliveryFixture(t)
	product := f.createProduct(t, "VPN Account", 1)

	order := f.createOrder(t, 1003, enums.PaymentStatusPaid)
	f.addItem(t, order, product, 1)

	_, err := f.svc.ProcessOrder(context.Background(), ProcessInput{OrderID: order.ID, RetryCount: 1})
	require.NoError(t, err)

	assert.NotContains(t, f.gateway.alertTypes(), enums.AlertDeliveryFailure)
	retries := f.recorder.byType(enums.AuditEventDeliveryRetry)
	require.Len(t, retries, 1)
	assert.Equal(t, 1, retries[0].RetryCount)
}

func TestProcessOrder_retriesExhaustedEscalates(t *testing.T) {
	f := newDeliveryFixture(t)
	product := f.createProduct(t, "VPN Account", 1)

	order := f.createOrder(t, 1004, enums.PaymentStatusPaid)
	f.addItem(t, order, product, 1)

	_, err := f.svc.ProcessOrder(context.Background(), ProcessInput{OrderID: order.ID, RetryCount: 3})
	require.NoError(t, err)

	assert.Contains(t, f.gateway.alertTypes(), enums.AlertRetriesExhausted)
}

func TestProcessOrder_sharedCredentialCapacity(t *testing.T) {
	f := newDeliveryFixture(t)
	product := f.createProduct(t, "Family Plan Seat", 1)
	shared := f.createCredential(t, product.ID, "family:login", 3, time.Now().UTC().Add(-time.Hour))

	for i := int64(0); i < 3; i++ {
		order := f.createOrder(t, 2000+i, enums.PaymentStatusPaid)
		f.addItem(t, order, product, 1)
		result, err := f.svc.ProcessOrder(context.Background(), ProcessInput{OrderID: order.ID})
		require.NoError(t, err)
		assert.True(t, result.Delivered, "order %d should deliver from shared capacity", 2000+i)
	}

	var record models.CredentialRecord
	require.NoError(t, f.db.First(&record, "id = ?", shared.ID).Error)
	assert.Equal(t, 3, record.ActiveAssignments)
	assert.Equal(t, enums.CredentialStatusDelivered, record.Status)

	// Capacity spent: a fourth order must fail, never exceed max_assignments.
	fourth := f.createOrder(t, 2004, enums.PaymentStatusPaid)
	f.addItem(t, fourth, product, 1)
	result, err := f.svc.ProcessOrder(context.Background(), ProcessInput{OrderID: fourth.ID})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, OutcomeInsufficient, result.Items[0].Outcome)

	require.NoError(t, f.db.First(&record, "id = ?", shared.ID).Error)
	assert.Equal(t, 3, record.ActiveAssignments)
}

func TestProcessOrder_idempotentOnDeliveredItems(t *testing.T) {
	f := newDeliveryFixture(t)
	product := f.createProduct(t, "Streaming 12mo", 1)
	f.createCredential(t, product.ID, "user1:pass1", 1, time.Now().UTC().Add(-time.Hour))

	order := f.createOrder(t, 1005, enums.PaymentStatusPaid)
	f.addItem(t, order, product, 1)

	first, err := f.svc.ProcessOrder(context.Background(), ProcessInput{OrderID: order.ID})
	require.NoError(t, err)
	assert.True(t, first.Delivered)

	second, err := f.svc.ProcessOrder(context.Background(), ProcessInput{OrderID: order.ID})
	require.NoError(t, err)
	assert.True(t, second.Delivered)
	require.Len(t, second.Items, 1)
	assert.Equal(t, OutcomeSkipped, second.Items[0].Outcome)
	assert.Equal(t, reasonAlreadyDelivered, second.Items[0].Reason)

	var assignmentCount int64
	require.NoError(t, f.db.Model(&models.Assignment{}).Count(&assignmentCount).Error)
	assert.Equal(t, int64(1), assignmentCount)

	require.Len(t, f.gateway.emails, 1)

	// The re-run of a fully delivered order leaves no trace in the audit log.
	assert.Len(t, f.recorder.byType(enums.AuditEventDeliveryStarted), 1)
}

func TestProcessOrder_concurrentClaimSingleWinner(t *testing.T) {
	f := newDeliveryFixture(t)
	product := f.createProduct(t, "Game Key", 1)
	record := f.createCredential(t, product.ID, "last-slot", 1, time.Now().UTC().Add(-time.Hour))

	first := f.createOrder(t, 6001, enums.PaymentStatusPaid)
	f.addItem(t, first, product, 1)
	second := f.createOrder(t, 6002, enums.PaymentStatusPaid)
	f.addItem(t, second, product, 1)

	results := make([]*ProcessResult, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, order := range []*models.Order{first, second} {
		wg.Add(1)
		go func(i int, orderID uuid.UUID) {
			defer wg.Done()
			results[i], errs[i] = f.svc.ProcessOrder(context.Background(), ProcessInput{OrderID: orderID})
		}(i, order.ID)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	// Exactly one order wins the last slot; the conditional update never
	// lets both claims through.
	winners := 0
	for _, result := range results {
		if result.Delivered {
			winners++
		}
	}
	assert.Equal(t, 1, winners)

	var stored models.CredentialRecord
	require.NoError(t, f.db.First(&stored, "id = ?", record.ID).Error)
	assert.Equal(t, 1, stored.ActiveAssignments)
	assert.Equal(t, enums.CredentialStatusDelivered, stored.Status)

	var assignmentCount int64
	require.NoError(t, f.db.Model(&models.Assignment{}).Count(&assignmentCount).Error)
	assert.Equal(t, int64(1), assignmentCount)
}

func TestProcessOrder_guards(t *testing.T) {
	f := newDeliveryFixture(t)
	product := f.createProduct(t, "Game Key", 1)

	_, err := f.svc.ProcessOrder(context.Background(), ProcessInput{OrderID: uuid.New()})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.As(err).Code())

	unpaid := f.createOrder(t, 3001, enums.PaymentStatusPending)
	f.addItem(t, unpaid, product, 1)
	result, err := f.svc.ProcessOrder(context.Background(), ProcessInput{OrderID: unpaid.ID})
	require.NoError(t, err)
	assert.False(t, result.Applicable)
	assert.False(t, result.RequiresManual)

	manual := f.createOrder(t, 3002, enums.PaymentStatusPaid)
	manual.AutoDeliveryEnabled = false
	require.NoError(t, f.db.Model(&models.Order{}).Where("id = ?", manual.ID).Update("auto_delivery_enabled", false).Error)
	f.addItem(t, manual, product, 1)
	result, err = f.svc.ProcessOrder(context.Background(), ProcessInput{OrderID: manual.ID})
	require.NoError(t, err)
	assert.False(t, result.Applicable)
	assert.True(t, result.RequiresManual)
}

func TestProcessOrder_failedEmailDoesNotFailDelivery(t *testing.T) {
	f := newDeliveryFixture(t)
	f.gateway.emailError = fmt.Errorf("smtp unreachable")

	product := f.createProduct(t, "Streaming 12mo", 1)
	f.createCredential(t, product.ID, "user1:pass1", 1, time.Now().UTC().Add(-time.Hour))

	order := f.createOrder(t, 1006, enums.PaymentStatusPaid)
	f.addItem(t, order, product, 1)

	result, err := f.svc.ProcessOrder(context.Background(), ProcessInput{OrderID: order.ID})
	require.NoError(t, err)
	assert.True(t, result.Delivered)

	failures := f.recorder.byType(enums.AuditEventEmailFailed)
	require.Len(t, failures, 1)
	assert.Equal(t, enums.AuditStatusWarning, failures[0].Status)
	assert.Contains(t, f.gateway.alertTypes(), enums.AlertMailServiceDown)
}

func TestProcessOrder_expiredCredentialsExcluded(t *testing.T) {
	f := newDeliveryFixture(t)
	product := f.createProduct(t, "Game Key", 1)

	expired := f.createCredential(t, product.ID, "stale-key", 1, time.Now().UTC().Add(-2*time.Hour))
	past := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, f.db.Model(&models.CredentialRecord{}).Where("id = ?", expired.ID).Update("expires_at", past).Error)
	f.createCredential(t, product.ID, "fresh-key", 1, time.Now().UTC().Add(-time.Hour))

	order := f.createOrder(t, 1007, enums.PaymentStatusPaid)
	item := f.addItem(t, order, product, 1)

	result, err := f.svc.ProcessOrder(context.Background(), ProcessInput{OrderID: order.ID})
	require.NoError(t, err)
	assert.True(t, result.Delivered)

	var stored models.OrderLineItem
	require.NoError(t, f.db.First(&stored, "id = ?", item.ID).Error)
	assert.Equal(t, "fresh-key", stored.Credentials)
}

func TestConfirmPayment_marksPaidAndDelivers(t *testing.T) {
	f := newDeliveryFixture(t)
	product := f.createProduct(t, "Streaming 12mo", 1)
	f.createCredential(t, product.ID, "user1:pass1", 1, time.Now().UTC().Add(-time.Hour))

	order := f.createOrder(t, 4001, enums.PaymentStatusPending)
	f.addItem(t, order, product, 1)

	result, err := f.svc.ConfirmPayment(context.Background(), 4001)
	require.NoError(t, err)
	assert.True(t, result.Delivered)

	var updated models.Order
	require.NoError(t, f.db.First(&updated, "id = ?", order.ID).Error)
	assert.Equal(t, enums.PaymentStatusPaid, updated.PaymentStatus)

	_, err = f.svc.ConfirmPayment(context.Background(), 9999)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.As(err).Code())
}

func TestRepositoryFindPendingAutoOrders_priorityOrdering(t *testing.T) {
	f := newDeliveryFixture(t)

	urgent := f.createProduct(t, "Urgent Product", 1)
	relaxed := f.createProduct(t, "Relaxed Product", 9)

	older := f.createOrder(t, 5001, enums.PaymentStatusPaid)
	require.NoError(t, f.db.Model(&models.Order{}).Where("id = ?", older.ID).
		Update("created_at", time.Now().UTC().Add(-2*time.Hour)).Error)
	f.addItem(t, older, relaxed, 1)

	newer := f.createOrder(t, 5002, enums.PaymentStatusPaid)
	f.addItem(t, newer, urgent, 1)

	unpaid := f.createOrder(t, 5003, enums.PaymentStatusPending)
	f.addItem(t, unpaid, urgent, 1)

	orders, err := f.repo.FindPendingAutoOrders(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	// Priority 1 beats priority 9 regardless of age.
	assert.Equal(t, int64(5002), orders[0].OrderNumber)
	assert.Equal(t, int64(5001), orders[1].OrderNumber)
}

func TestRepositoryCountEligibleStock(t *testing.T) {
	f := newDeliveryFixture(t)
	product := f.createProduct(t, "Family Plan Seat", 1)

	now := time.Now().UTC()
	f.createCredential(t, product.ID, "a", 3, now.Add(-time.Hour))
	partial := f.createCredential(t, product.ID, "b", 2, now.Add(-time.Hour))
	require.NoError(t, f.db.Model(&models.CredentialRecord{}).Where("id = ?", partial.ID).
		Update("active_assignments", 1).Error)

	level, err := f.repo.CountEligibleStock(context.Background(), product.ID, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), level.Records)
	assert.Equal(t, int64(4), level.Units)
}
