package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineRequest is one line of a posted event.
type LineRequest struct {
	MaterialID int64           `json:"material_id" validate:"omitempty,gt=0"`
	ProductID  int64           `json:"product_id" validate:"omitempty,gt=0"`
	SizeID     int64           `json:"size_id" validate:"omitempty,gt=0"`
	ColorID    int64           `json:"color_id" validate:"omitempty,gt=0"`
	Quantity   decimal.Decimal `json:"quantity"`
	Cost       decimal.Decimal `json:"cost"`
}

// EventRequest is the body of the ledger posting endpoints.
type EventRequest struct {
	Date          *time.Time    `json:"transaction_date"`
	CustomerID    *int64        `json:"customer_id" validate:"omitempty,gt=0"`
	SupplierID    *int64        `json:"supplier_id" validate:"omitempty,gt=0"`
	PaymentMethod string        `json:"payment_method" validate:"omitempty,max=32"`
	Lines         []LineRequest `json:"lines" validate:"required,min=1,dive"`
}

// OrderRequest books a pending sales or manufacturing order.
type OrderRequest struct {
	EventRequest
	OrderType string `json:"order_type" validate:"omitempty,oneof=sales manufacturing"`
}

// StatusRequest moves an order to a new status.
type StatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending processing fulfilled"`
}

func (r EventRequest) toEvent(kind EventKind, idempotencyKey string) Event {
	ev := Event{
		Kind:           kind,
		CustomerID:     r.CustomerID,
		SupplierID:     r.SupplierID,
		PaymentMethod:  r.PaymentMethod,
		IdempotencyKey: idempotencyKey,
		Lines:          make([]LineInput, 0, len(r.Lines)),
	}
	if r.Date != nil {
		ev.Date = r.Date.UTC()
	}
	for _, line := range r.Lines {
		ev.Lines = append(ev.Lines, LineInput{
			MaterialID: line.MaterialID,
			ProductID:  line.ProductID,
			SizeID:     line.SizeID,
			ColorID:    line.ColorID,
			Quantity:   line.Quantity,
			Cost:       line.Cost,
		})
	}
	return ev
}

func (r OrderRequest) kind() EventKind {
	if r.OrderType == "manufacturing" {
		return EventManufacturingOrder
	}
	return EventSalesOrder
}
