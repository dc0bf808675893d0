package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultDeliveryPriority is the middle of the 1 (highest) to 10 (lowest) range.
const DefaultDeliveryPriority = 5

// Product represents a digital listing fulfilled from the credential pool.
type Product struct {
	ID                  uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SKU                 string    `gorm:"column:sku;not null"`
	Title               string    `gorm:"column:title;not null"`
	AutoDeliveryEnabled bool      `gorm:"column:auto_delivery_enabled;not null;default:false"`
	DeliveryPriority    int       `gorm:"column:delivery_priority;not null;default:5"`
	IsActive            bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt           time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
