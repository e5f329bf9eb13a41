package returns

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ItemInput names an order line and how many units go back.
type ItemInput struct {
	ProductID  uuid.UUID `json:"product_id" validate:"required"`
	VariantSKU string    `json:"variant_sku"`
	Quantity   int       `json:"quantity" validate:"required,min=1"`
	Reason     string    `json:"reason" validate:"max=500"`
}

// CreateInput is a customer's return or exchange request.
type CreateInput struct {
	OrderID     uuid.UUID   `json:"order_id" validate:"required"`
	RequestType string      `json:"request_type" validate:"required,oneof=return exchange"`
	Items       []ItemInput `json:"items" validate:"required,min=1,dive"`
	Reason      string      `json:"reason" validate:"required,max=1000"`
	Images      []string    `json:"images" validate:"max=5,dive,url"`
}

// StatusInput is an admin decision on a request.
type StatusInput struct {
	Status       string           `json:"status" validate:"required,oneof=approved rejected completed"`
	AdminNotes   *string          `json:"admin_notes" validate:"omitempty,max=1000"`
	RefundAmount *decimal.Decimal `json:"refund_amount"`
}

// AdminListParams filters the admin request feed.
type AdminListParams struct {
	Status string
	Limit  int
	Cursor string
}

type ItemDTO struct {
	ProductID   uuid.UUID `json:"product_id"`
	VariantSKU  string    `json:"variant_sku,omitempty"`
	ProductName string    `json:"product_name"`
	Quantity    int       `json:"quantity"`
	UnitPrice   float64   `json:"unit_price"`
	Reason      string    `json:"reason,omitempty"`
}

// RefundDTO describes the gateway refund issued when a return completed.
type RefundDTO struct {
	ID     string  `json:"id"`
	Amount float64 `json:"amount"`
	Status string  `json:"status"`
}

type RequestDTO struct {
	ID           uuid.UUID  `json:"id"`
	OrderID      uuid.UUID  `json:"order_id"`
	OrderNumber  string     `json:"order_number"`
	UserID       uuid.UUID  `json:"user_id"`
	RequestType  string     `json:"request_type"`
	Items        []ItemDTO  `json:"items"`
	Reason       string     `json:"reason"`
	Images       []string   `json:"images"`
	Status       string     `json:"status"`
	AdminNotes   *string    `json:"admin_notes,omitempty"`
	RefundAmount *float64   `json:"refund_amount,omitempty"`
	Refund       *RefundDTO `json:"refund,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type ListResult struct {
	Items  []RequestDTO `json:"items"`
	Cursor string       `json:"cursor,omitempty"`
}

func newRequestDTO(r models.ReturnRequest) RequestDTO {
	dto := RequestDTO{
		ID:          r.ID,
		OrderID:     r.OrderID,
		OrderNumber: r.OrderNumber,
		UserID:      r.UserID,
		RequestType: r.RequestType.String(),
		Items:       make([]ItemDTO, 0, len(r.Items)),
		Reason:      r.Reason,
		Images:      []string(r.Images),
		Status:      r.Status.String(),
		AdminNotes:  r.AdminNotes,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if dto.Images == nil {
		dto.Images = []string{}
	}
	if r.RefundAmount != nil {
		amount := r.RefundAmount.InexactFloat64()
		dto.RefundAmount = &amount
	}
	for _, item := range r.Items {
		dto.Items = append(dto.Items, ItemDTO{
			ProductID:   item.ProductID,
			VariantSKU:  item.VariantSKU,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice.InexactFloat64(),
			Reason:      item.Reason,
		})
	}
	return dto
}
