package enums

// CredentialStatus tracks the lifecycle of a credential record in the pool.
type CredentialStatus string

const (
	CredentialStatusAvailable CredentialStatus = "available"
	CredentialStatusReserved  CredentialStatus = "reserved"
	CredentialStatusDelivered CredentialStatus = "delivered"
	CredentialStatusExpired   CredentialStatus = "expired"
)
