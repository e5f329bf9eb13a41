package orders

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/types"
	"github.com/google/uuid"
)

// OrderLineDTO is the API shape of one order line.
type OrderLineDTO struct {
	ProductID          uuid.UUID `json:"product_id"`
	VariantSKU         string    `json:"variant_sku,omitempty"`
	ProductName        string    `json:"product_name"`
	ProductImage       string    `json:"product_image,omitempty"`
	Price              float64   `json:"price"`
	OriginalPrice      *float64  `json:"original_price,omitempty"`
	DiscountPercentage float64   `json:"discount_percentage"`
	Quantity           int       `json:"quantity"`
	Subtotal           float64   `json:"subtotal"`
}

// OrderDTO is the API shape of an order.
type OrderDTO struct {
	ID                uuid.UUID             `json:"id"`
	OrderNumber       string                `json:"order_number"`
	UserID            uuid.UUID             `json:"user_id"`
	Items             []OrderLineDTO        `json:"items"`
	Subtotal          float64               `json:"subtotal"`
	DiscountAmount    float64               `json:"discount_amount"`
	CouponCode        *string               `json:"coupon_code,omitempty"`
	ShippingCost      float64               `json:"shipping_cost"`
	PlatformFee       float64               `json:"tax"`
	TotalAmount       float64               `json:"total_amount"`
	Status            string                `json:"status"`
	PaymentMethod     string                `json:"payment_method"`
	PaymentStatus     string                `json:"payment_status"`
	PaymentID         *string               `json:"payment_id,omitempty"`
	ShippingAddress   types.ShippingAddress `json:"shipping_address"`
	ShippingZone      string                `json:"shipping_zone,omitempty"`
	EstimatedDelivery string                `json:"estimated_delivery,omitempty"`
	CancelledAt       *time.Time            `json:"cancelled_at,omitempty"`
	DeliveredAt       *time.Time            `json:"delivered_at,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

// ListResult is one cursor page of orders.
type ListResult struct {
	Items  []OrderDTO `json:"items"`
	Cursor string     `json:"cursor,omitempty"`
}

// NewOrderDTO maps an order model to its API shape.
func NewOrderDTO(o models.Order) OrderDTO {
	dto := OrderDTO{
		ID:                o.ID,
		OrderNumber:       o.OrderNumber,
		UserID:            o.UserID,
		Items:             make([]OrderLineDTO, 0, len(o.Items)),
		Subtotal:          o.Subtotal.InexactFloat64(),
		DiscountAmount:    o.DiscountAmount.InexactFloat64(),
		CouponCode:        o.CouponCode,
		ShippingCost:      o.ShippingCost.InexactFloat64(),
		PlatformFee:       o.Tax.InexactFloat64(),
		TotalAmount:       o.TotalAmount.InexactFloat64(),
		Status:            o.Status.String(),
		PaymentMethod:     o.PaymentMethod.String(),
		PaymentStatus:     o.PaymentStatus.String(),
		PaymentID:         o.PaymentID,
		ShippingAddress:   o.ShippingAddress,
		ShippingZone:      o.ShippingZone,
		EstimatedDelivery: o.EstimatedDelivery,
		CancelledAt:       o.CancelledAt,
		DeliveredAt:       o.DeliveredAt,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
	for _, line := range o.Items {
		item := OrderLineDTO{
			ProductID:          line.ProductID,
			VariantSKU:         line.VariantSKU,
			ProductName:        line.ProductName,
			ProductImage:       line.ProductImage,
			Price:              line.UnitPrice.InexactFloat64(),
			DiscountPercentage: line.DiscountPercentage.InexactFloat64(),
			Quantity:           line.Quantity,
			Subtotal:           line.Subtotal.InexactFloat64(),
		}
		if line.OriginalPrice != nil {
			original := line.OriginalPrice.InexactFloat64()
			item.OriginalPrice = &original
		}
		dto.Items = append(dto.Items, item)
	}
	return dto
}
