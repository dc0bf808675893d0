package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/halcyonlabs/cardvault/pkg/enums"
)

// CredentialRecord is one reusable credential in a product's inventory pool.
// ActiveAssignments is a denormalized counter maintained by conditional
// updates; it must never exceed MaxAssignments.
type CredentialRecord struct {
	ID                      uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID               uuid.UUID              `gorm:"column:product_id;type:uuid;not null;index"`
	Payload                 string                 `gorm:"column:payload;type:text;not null"`
	MaxAssignments          int                    `gorm:"column:max_assignments;not null;default:1"`
	ActiveAssignments       int                    `gorm:"column:active_assignments;not null;default:0"`
	Status                  enums.CredentialStatus `gorm:"column:status;type:credential_status;not null;default:'available'"`
	ExpiresAt               *time.Time             `gorm:"column:expires_at"`
	AllowUpdatesAfterExpiry bool                   `gorm:"column:allow_updates_after_expiry;not null;default:false"`
	CreatedAt               time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

// Eligible reports whether the record can satisfy a new assignment at now.
func (c CredentialRecord) Eligible(now time.Time) bool {
	if c.Status != enums.CredentialStatusAvailable {
		return false
	}
	if c.ActiveAssignments >= c.MaxAssignments {
		return false
	}
	if c.ExpiresAt != nil && !c.ExpiresAt.After(now) {
		return false
	}
	return true
}
