package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Order is the immutable pricing snapshot of a checkout plus its mutable
// fulfillment and payment state. Orders are never deleted.
type Order struct {
	ID                uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber       string                `gorm:"column:order_number;not null;uniqueIndex"`
	UserID            uuid.UUID             `gorm:"column:user_id;type:uuid;not null;index"`
	Items             types.OrderLines      `gorm:"column:items;type:jsonb;serializer:json;not null"`
	Subtotal          decimal.Decimal       `gorm:"column:subtotal;type:numeric(12,2);not null"`
	DiscountAmount    decimal.Decimal       `gorm:"column:discount_amount;type:numeric(12,2);not null"`
	CouponID          *uuid.UUID            `gorm:"column:coupon_id;type:uuid"`
	CouponCode        *string               `gorm:"column:coupon_code"`
	ShippingCost      decimal.Decimal       `gorm:"column:shipping_cost;type:numeric(12,2);not null"`
	Tax               decimal.Decimal       `gorm:"column:tax;type:numeric(12,2);not null"`
	TotalAmount       decimal.Decimal       `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Status            enums.OrderStatus     `gorm:"column:status;type:text;not null"`
	PaymentMethod     enums.PaymentMethod   `gorm:"column:payment_method;type:text;not null"`
	PaymentStatus     enums.PaymentStatus   `gorm:"column:payment_status;type:text;not null"`
	PaymentID         *string               `gorm:"column:payment_id"`
	GatewayOrderID    *string               `gorm:"column:gateway_order_id;index"`
	ShippingAddress   types.ShippingAddress `gorm:"column:shipping_address;type:jsonb;serializer:json;not null"`
	ShippingZone      string                `gorm:"column:shipping_zone"`
	EstimatedDelivery string                `gorm:"column:estimated_delivery"`
	FulfilledAt       *time.Time            `gorm:"column:fulfilled_at;type:timestamptz"`
	CancelledAt       *time.Time            `gorm:"column:cancelled_at;type:timestamptz"`
	DeliveredAt       *time.Time            `gorm:"column:delivered_at;type:timestamptz"`
	CreatedAt         time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

// Fulfilled reports whether stock, cart and coupon effects have been applied.
func (o Order) Fulfilled() bool {
	return o.FulfilledAt != nil
}
