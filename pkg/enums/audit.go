package enums

// AuditEventType identifies a delivery-pipeline occurrence.
type AuditEventType string

const (
	AuditEventDeliveryStarted       AuditEventType = "delivery_started"
	AuditEventDeliveryRetry         AuditEventType = "delivery_retry"
	AuditEventDeliverySuccess       AuditEventType = "delivery_success"
	AuditEventDeliveryFailed        AuditEventType = "delivery_failed"
	AuditEventInsufficientInventory AuditEventType = "insufficient_inventory"
	AuditEventEmailSent             AuditEventType = "email_sent"
	AuditEventEmailFailed           AuditEventType = "email_failed"
)

// Valid reports whether the value is a known event type.
func (t AuditEventType) Valid() bool {
	switch t {
	case AuditEventDeliveryStarted, AuditEventDeliveryRetry, AuditEventDeliverySuccess,
		AuditEventDeliveryFailed, AuditEventInsufficientInventory,
		AuditEventEmailSent, AuditEventEmailFailed:
		return true
	}
	return false
}

// AuditStatus is the severity tier of an audit event.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
	AuditStatusWarning AuditStatus = "warning"
	AuditStatusInfo    AuditStatus = "info"
)

// Valid reports whether the value is a known audit status.
func (s AuditStatus) Valid() bool {
	switch s {
	case AuditStatusSuccess, AuditStatusError, AuditStatusWarning, AuditStatusInfo:
		return true
	}
	return false
}

// AlertType identifies an operational alert sent to admins.
type AlertType string

const (
	AlertDeliveryFailure  AlertType = "delivery_failure"
	AlertLowStock         AlertType = "low_stock"
	AlertRetriesExhausted AlertType = "retries_exhausted"
	AlertMailServiceDown  AlertType = "mail_service_down"
)
