package enums

// AssignmentStatus tracks a single credential-unit binding to an order.
type AssignmentStatus string

const (
	AssignmentStatusActive  AssignmentStatus = "active"
	AssignmentStatusExpired AssignmentStatus = "expired"
	AssignmentStatusRevoked AssignmentStatus = "revoked"
)
