package delivery

import (
	"github.com/google/uuid"
)

// CredentialSeparator joins the credential payloads stored on a delivered
// line item, one block per assigned unit.
const CredentialSeparator = "\n----\n"

// Item allocation outcomes.
const (
	OutcomeDelivered    = "delivered"
	OutcomeInsufficient = "insufficient_inventory"
	OutcomeFailed       = "failed"
	OutcomeSkipped      = "skipped"
)

// ProcessInput identifies the order to fulfill. RetryCount is zero on the
// first attempt and carries the attempt number on retry-sweep invocations.
type ProcessInput struct {
	OrderID    uuid.UUID
	RetryCount int
}

// ItemResult reports how one line item fared during allocation.
type ItemResult struct {
	ItemID        uuid.UUID `json:"itemId"`
	ProductID     uuid.UUID `json:"productId"`
	ProductTitle  string    `json:"productTitle"`
	Qty           int       `json:"qty"`
	Outcome       string    `json:"outcome"`
	Reason        string    `json:"reason,omitempty"`
	UnitsAssigned int       `json:"unitsAssigned"`
}

// ProcessResult is the full outcome of one ProcessOrder invocation.
type ProcessResult struct {
	OrderID        uuid.UUID    `json:"orderId"`
	OrderNumber    int64        `json:"orderNumber"`
	Applicable     bool         `json:"applicable"`
	RequiresManual bool         `json:"requiresManual"`
	Delivered      bool         `json:"delivered"`
	Items          []ItemResult `json:"items"`
}
