package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/halcyonlabs/cardvault/pkg/enums"
	"github.com/halcyonlabs/cardvault/pkg/types"
)

// DeliveryAuditEvent is one immutable record in the delivery audit log.
// Content never changes after insert; only the resolution fields flip when an
// operator marks an error handled.
type DeliveryAuditEvent struct {
	ID               uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID          uuid.UUID            `gorm:"column:order_id;type:uuid;not null;index"`
	OrderNumber      int64                `gorm:"column:order_number;not null"`
	CustomerEmail    string               `gorm:"column:customer_email;not null"`
	ProductID        *uuid.UUID           `gorm:"column:product_id;type:uuid;index"`
	ProductTitle     string               `gorm:"column:product_title;not null;default:''"`
	EventType        enums.AuditEventType `gorm:"column:event_type;type:audit_event_type;not null;index"`
	Status           enums.AuditStatus    `gorm:"column:status;type:audit_status;not null;index"`
	Message          string               `gorm:"column:message;not null"`
	Details          types.JSONMap        `gorm:"column:details;type:jsonb;serializer:json"`
	Quantity         int                  `gorm:"column:quantity;not null;default:0"`
	InventoryUsed    int                  `gorm:"column:inventory_used;not null;default:0"`
	ProcessingTimeMs int64                `gorm:"column:processing_time_ms;not null;default:0"`
	RetryCount       int                  `gorm:"column:retry_count;not null;default:0"`
	IsResolved       bool                 `gorm:"column:is_resolved;not null;default:false"`
	ResolvedBy       *string              `gorm:"column:resolved_by"`
	ResolvedAt       *time.Time           `gorm:"column:resolved_at"`
	CreatedAt        time.Time            `gorm:"column:created_at;autoCreateTime;index"`
}
