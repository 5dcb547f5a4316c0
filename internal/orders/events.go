package orders

import (
	"github.com/angelmondragon/giftflow-backend/pkg/db/models"
	"github.com/angelmondragon/giftflow-backend/pkg/outbox/payloads"
)

// EventRef builds the shared event header for an order.
func EventRef(order *models.Order) payloads.OrderRef {
	ref := payloads.OrderRef{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		CustomerEmail: order.CustomerEmail,
		TotalAmount:   order.TotalAmount,
		Currency:      order.Currency,
	}
	if order.CustomerName != nil {
		ref.CustomerName = *order.CustomerName
	}
	return ref
}
