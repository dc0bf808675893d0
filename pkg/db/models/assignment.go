package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/halcyonlabs/cardvault/pkg/enums"
)

// Assignment binds one unit of a credential record's capacity to an order.
// Rows are append-only; only the status flips on revocation or expiry.
// Order number and customer email are denormalized for audit readability.
type Assignment struct {
	ID            uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CredentialID  uuid.UUID              `gorm:"column:credential_id;type:uuid;not null;index"`
	OrderID       uuid.UUID              `gorm:"column:order_id;type:uuid;not null;index"`
	OrderNumber   int64                  `gorm:"column:order_number;not null"`
	CustomerEmail string                 `gorm:"column:customer_email;not null"`
	Status        enums.AssignmentStatus `gorm:"column:status;type:assignment_status;not null;default:'active'"`
	AssignedAt    time.Time              `gorm:"column:assigned_at;autoCreateTime"`
}
