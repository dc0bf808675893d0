package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/halcyonlabs/cardvault/pkg/enums"
)

// OrderLineItem captures one product request within an order. AutoDelivery is
// copied from the product at order creation so later product edits do not
// change how an existing order fulfills. Credentials holds the concatenated
// payloads once delivered, one unit per separator block.
type OrderLineItem struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID            `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID      uuid.UUID            `gorm:"column:product_id;type:uuid;not null"`
	ProductTitle   string               `gorm:"column:product_title;not null"`
	Qty            int                  `gorm:"column:qty;not null"`
	AutoDelivery   bool                 `gorm:"column:auto_delivery;not null;default:false"`
	DeliveryStatus enums.DeliveryStatus `gorm:"column:delivery_status;type:delivery_status;not null;default:'pending'"`
	Delivered      bool                 `gorm:"column:delivered;not null;default:false"`
	DeliveredAt    *time.Time           `gorm:"column:delivered_at"`
	Credentials    string               `gorm:"column:credentials;type:text;not null;default:''"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
