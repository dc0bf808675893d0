package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/halcyonlabs/cardvault/pkg/db/types"
	"github.com/halcyonlabs/cardvault/pkg/enums"
)

// Order is the buyer-facing aggregate the delivery engine fulfills.
// AutoDeliveryEnabled is a per-order override: when false the engine skips
// the order entirely even after payment confirms.
type Order struct {
	ID                  uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber         int64               `gorm:"column:order_number;not null;uniqueIndex"`
	CustomerEmail       string              `gorm:"column:customer_email;not null"`
	PaymentStatus       enums.PaymentStatus `gorm:"column:payment_status;type:payment_status;not null;default:'pending'"`
	Status              enums.OrderStatus   `gorm:"column:status;type:order_status;not null;default:'pending'"`
	AutoDeliveryEnabled bool                `gorm:"column:auto_delivery_enabled;not null;default:true"`
	DeliveredInventory  dbtypes.UUIDArray   `gorm:"column:delivered_inventory;type:uuid[]"`
	DeliveredAt         *time.Time          `gorm:"column:delivered_at"`
	Items               []OrderLineItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt           time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
