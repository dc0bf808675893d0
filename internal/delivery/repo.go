package delivery

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/halcyonlabs/cardvault/pkg/db/models"
	"github.com/halcyonlabs/cardvault/pkg/enums"
)

// StockLevel summarizes the eligible pool for one product.
type StockLevel struct {
	Records int64
	Units   int64
}

// Repository is the persistence surface of the allocation engine.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindOrderWithItems(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindOrderByNumber(ctx context.Context, orderNumber int64) (*models.Order, error)
	MarkOrderPaid(ctx context.Context, orderID uuid.UUID, at time.Time) error
	FindProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)

	FindEligibleCredentials(ctx context.Context, productID uuid.UUID, limit int, now time.Time) ([]models.CredentialRecord, error)
	ClaimCredential(ctx context.Context, credentialID uuid.UUID, now time.Time) (bool, error)
	CreateAssignment(ctx context.Context, assignment *models.Assignment) error

	MarkItemDelivered(ctx context.Context, itemID uuid.UUID, credentials string, at time.Time) error
	MarkItemFailed(ctx context.Context, itemID uuid.UUID, at time.Time) error
	AppendDeliveredInventory(ctx context.Context, orderID uuid.UUID, credentialIDs []uuid.UUID) error
	SetOrderStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus, at time.Time) error
	MarkOrderDelivered(ctx context.Context, orderID uuid.UUID, at time.Time) error

	FindPendingAutoOrders(ctx context.Context, limit int) ([]models.Order, error)
	ListAutoDeliveryProducts(ctx context.Context) ([]models.Product, error)
	CountEligibleStock(ctx context.Context, productID uuid.UUID, now time.Time) (StockLevel, error)
	PendingDemand(ctx context.Context, productID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a delivery repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindOrderWithItems(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindOrderByNumber(ctx context.Context, orderNumber int64) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Where("order_number = ?", orderNumber).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) MarkOrderPaid(ctx context.Context, orderID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]any{
			"payment_status": enums.PaymentStatusPaid,
			"updated_at":     at,
		}).Error
}

func (r *repository) FindProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]models.Product{}, nil
	}
	var rows []models.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	products := make(map[uuid.UUID]models.Product, len(rows))
	for _, p := range rows {
		products[p.ID] = p
	}
	return products, nil
}

// FindEligibleCredentials returns claimable records oldest-first so the pool
// drains in FIFO order.
func (r *repository) FindEligibleCredentials(ctx context.Context, productID uuid.UUID, limit int, now time.Time) ([]models.CredentialRecord, error) {
	var rows []models.CredentialRecord
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND status = ? AND active_assignments < max_assignments", productID, enums.CredentialStatusAvailable).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ClaimCredential atomically consumes one unit of a record's capacity. The
// WHERE clause re-checks eligibility so concurrent claimants cannot push the
// counter past max_assignments; the loser simply sees zero rows updated.
func (r *repository) ClaimCredential(ctx context.Context, credentialID uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CredentialRecord{}).
		Where("id = ? AND status = ? AND active_assignments < max_assignments", credentialID, enums.CredentialStatusAvailable).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Updates(map[string]any{
			"active_assignments": gorm.Expr("active_assignments + 1"),
			"status": gorm.Expr(
				"CASE WHEN active_assignments + 1 >= max_assignments THEN ? ELSE status END",
				enums.CredentialStatusDelivered,
			),
			"updated_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CreateAssignment(ctx context.Context, assignment *models.Assignment) error {
	return r.db.WithContext(ctx).Create(assignment).Error
}

func (r *repository) MarkItemDelivered(ctx context.Context, itemID uuid.UUID, credentials string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.OrderLineItem{}).
		Where("id = ?", itemID).
		Updates(map[string]any{
			"delivery_status": enums.DeliveryStatusDelivered,
			"delivered":       true,
			"delivered_at":    at,
			"credentials":     credentials,
			"updated_at":      at,
		}).Error
}

func (r *repository) MarkItemFailed(ctx context.Context, itemID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.OrderLineItem{}).
		Where("id = ?", itemID).
		Updates(map[string]any{
			"delivery_status": enums.DeliveryStatusFailed,
			"updated_at":      at,
		}).Error
}

// AppendDeliveredInventory merges the consumed credential ids into the
// order's delivered_inventory array. Callers hold the per-order lock, so the
// read-modify-write cannot interleave with itself.
func (r *repository) AppendDeliveredInventory(ctx context.Context, orderID uuid.UUID, credentialIDs []uuid.UUID) error {
	if len(credentialIDs) == 0 {
		return nil
	}

	var order models.Order
	if err := r.db.WithContext(ctx).Select("id", "delivered_inventory").Where("id = ?", orderID).First(&order).Error; err != nil {
		return err
	}

	merged := order.DeliveredInventory
	for _, id := range credentialIDs {
		if !merged.Contains(id) {
			merged = append(merged, id)
		}
	}

	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("delivered_inventory", merged).Error
}

func (r *repository) SetOrderStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]any{
			"status":     status,
			"updated_at": at,
		}).Error
}

func (r *repository) MarkOrderDelivered(ctx context.Context, orderID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]any{
			"status":       enums.OrderStatusDelivered,
			"delivered_at": at,
			"updated_at":   at,
		}).Error
}

// FindPendingAutoOrders lists paid orders still owing at least one
// auto-delivery line item, most urgent product first.
func (r *repository) FindPendingAutoOrders(ctx context.Context, limit int) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Select("orders.*").
		Joins("JOIN order_line_items items ON items.order_id = orders.id AND items.auto_delivery = ? AND items.delivery_status = ?", true, enums.DeliveryStatusPending).
		Joins("JOIN products ON products.id = items.product_id").
		Where("orders.payment_status = ? AND orders.auto_delivery_enabled = ?", enums.PaymentStatusPaid, true).
		Where("orders.status NOT IN ?", []enums.OrderStatus{enums.OrderStatusDelivered, enums.OrderStatusCanceled}).
		Group("orders.id").
		Order("MIN(products.delivery_priority) ASC, orders.created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListAutoDeliveryProducts(ctx context.Context) ([]models.Product, error) {
	var rows []models.Product
	err := r.db.WithContext(ctx).
		Where("auto_delivery_enabled = ? AND is_active = ?", true, true).
		Order("title ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) CountEligibleStock(ctx context.Context, productID uuid.UUID, now time.Time) (StockLevel, error) {
	var level StockLevel
	err := r.db.WithContext(ctx).
		Model(&models.CredentialRecord{}).
		Select("COUNT(*) AS records, COALESCE(SUM(max_assignments - active_assignments), 0) AS units").
		Where("product_id = ? AND status = ? AND active_assignments < max_assignments", productID, enums.CredentialStatusAvailable).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Scan(&level).Error
	if err != nil {
		return StockLevel{}, err
	}
	return level, nil
}

func (r *repository) PendingDemand(ctx context.Context, productID uuid.UUID) (int64, error) {
	var demand int64
	err := r.db.WithContext(ctx).
		Model(&models.OrderLineItem{}).
		Select("COALESCE(SUM(order_line_items.qty), 0)").
		Joins("JOIN orders ON orders.id = order_line_items.order_id").
		Where("order_line_items.product_id = ? AND order_line_items.auto_delivery = ? AND order_line_items.delivery_status = ?", productID, true, enums.DeliveryStatusPending).
		Where("orders.payment_status = ? AND orders.auto_delivery_enabled = ?", enums.PaymentStatusPaid, true).
		Scan(&demand).Error
	if err != nil {
		return 0, err
	}
	return demand, nil
}
