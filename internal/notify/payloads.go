package notify

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/halcyonlabs/cardvault/pkg/db/models"
	"github.com/halcyonlabs/cardvault/pkg/enums"
	"github.com/halcyonlabs/cardvault/pkg/types"
)

// DeliveryFailureAlert describes a line item that could not be fulfilled.
func DeliveryFailureAlert(order *models.Order, item models.OrderLineItem, required, available int) AdminAlert {
	return AdminAlert{
		Type:    enums.AlertDeliveryFailure,
		Subject: fmt.Sprintf("auto-delivery failed for order #%d", order.OrderNumber),
		Data: types.JSONMap{
			"orderId":       order.ID.String(),
			"orderNumber":   order.OrderNumber,
			"customerEmail": order.CustomerEmail,
			"productId":     item.ProductID.String(),
			"productTitle":  item.ProductTitle,
			"required":      required,
			"available":     available,
		},
	}
}

// LowStockAlert warns that a product's eligible credential pool is running out.
func LowStockAlert(product models.Product, available, pendingDemand, threshold int) AdminAlert {
	return AdminAlert{
		Type:    enums.AlertLowStock,
		Subject: fmt.Sprintf("low credential stock for %q", product.Title),
		Data: types.JSONMap{
			"productId":     product.ID.String(),
			"productTitle":  product.Title,
			"sku":           product.SKU,
			"available":     available,
			"pendingDemand": pendingDemand,
			"threshold":     threshold,
		},
	}
}

// RetriesExhaustedAlert escalates a delivery failure that spent its retry budget.
func RetriesExhaustedAlert(order *models.Order, item models.OrderLineItem, attempts int, lastFailure time.Time) AdminAlert {
	return AdminAlert{
		Type:    enums.AlertRetriesExhausted,
		Subject: fmt.Sprintf("delivery retries exhausted for order #%d", order.OrderNumber),
		Data: types.JSONMap{
			"orderId":      order.ID.String(),
			"orderNumber":  order.OrderNumber,
			"productTitle": item.ProductTitle,
			"attempts":     attempts,
			"lastFailure":  lastFailure.UTC().Format(time.RFC3339),
		},
	}
}

// MailServiceDownAlert reports repeated delivery-email dispatch failures.
func MailServiceDownAlert(orderID uuid.UUID, orderNumber int64, cause error) AdminAlert {
	data := types.JSONMap{
		"orderId":     orderID.String(),
		"orderNumber": orderNumber,
	}
	if cause != nil {
		data["error"] = cause.Error()
	}
	return AdminAlert{
		Type:    enums.AlertMailServiceDown,
		Subject: "delivery email dispatch failing",
		Data:    data,
	}
}

// CustomerDeliveryEmail builds the payload the buyer receives once a line
// item's credentials are allocated.
func CustomerDeliveryEmail(order *models.Order, item models.OrderLineItem, credentials []string) DeliveryEmail {
	return DeliveryEmail{
		To:           order.CustomerEmail,
		OrderNumber:  order.OrderNumber,
		ProductTitle: item.ProductTitle,
		Credentials:  credentials,
	}
}
