package notify

import (
	"context"
	"fmt"

	"github.com/halcyonlabs/cardvault/pkg/enums"
	"github.com/halcyonlabs/cardvault/pkg/logger"
	"github.com/halcyonlabs/cardvault/pkg/types"
)

// AdminAlert is the structured payload for an operational alert.
type AdminAlert struct {
	Type    enums.AlertType `json:"type"`
	Subject string          `json:"subject"`
	Data    types.JSONMap   `json:"data"`
}

// DeliveryEmail is the customer-facing payload carrying purchased credentials.
type DeliveryEmail struct {
	To           string   `json:"to"`
	OrderNumber  int64    `json:"orderNumber"`
	ProductTitle string   `json:"productTitle"`
	Credentials  []string `json:"credentials"`
}

// Gateway is the outbound notification boundary. Dispatch is best-effort:
// callers log failures as audit events and never propagate them.
type Gateway interface {
	SendAdminAlert(ctx context.Context, alert AdminAlert) error
	SendDeliveryEmail(ctx context.Context, email DeliveryEmail) error
}

// LoggingGateway writes notification payloads to the structured log. The
// real transport (mail service, chat webhook) is a deployment concern wired
// behind the same interface.
type LoggingGateway struct {
	logg *logger.Logger
}

// NewLoggingGateway builds the log-backed gateway.
func NewLoggingGateway(logg *logger.Logger) (*LoggingGateway, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &LoggingGateway{logg: logg}, nil
}

func (g *LoggingGateway) SendAdminAlert(ctx context.Context, alert AdminAlert) error {
	ctx = g.logg.WithFields(ctx, map[string]any{
		"alert_type": alert.Type,
		"subject":    alert.Subject,
		"data":       alert.Data,
	})
	g.logg.Warn(ctx, "admin alert dispatched")
	return nil
}

func (g *LoggingGateway) SendDeliveryEmail(ctx context.Context, email DeliveryEmail) error {
	ctx = g.logg.WithFields(ctx, map[string]any{
		"to":           email.To,
		"order_number": email.OrderNumber,
		"units":        len(email.Credentials),
	})
	g.logg.Info(ctx, "delivery email dispatched")
	return nil
}
