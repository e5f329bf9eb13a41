package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Coupon is an admin-managed discount code. Code is stored uppercase.
type Coupon struct {
	ID                uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code              string             `gorm:"column:code;not null;uniqueIndex"`
	Description       string             `gorm:"column:description"`
	DiscountType      enums.DiscountType `gorm:"column:discount_type;type:text;not null"`
	DiscountValue     decimal.Decimal    `gorm:"column:discount_value;type:numeric(12,2);not null"`
	MinOrderAmount    decimal.Decimal    `gorm:"column:min_order_amount;type:numeric(12,2);not null"`
	MaxDiscountAmount *decimal.Decimal   `gorm:"column:max_discount_amount;type:numeric(12,2)"`
	UsageLimit        *int               `gorm:"column:usage_limit"`
	PerUserLimit      int                `gorm:"column:per_user_limit;not null"`
	UsageCount        int                `gorm:"column:usage_count;not null"`
	UsedBy            pq.StringArray     `gorm:"column:used_by;type:text[]"`
	StartsAt          *time.Time         `gorm:"column:starts_at;type:timestamptz"`
	ExpiresAt         *time.Time         `gorm:"column:expires_at;type:timestamptz"`
	IsActive          bool               `gorm:"column:is_active;not null"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// RedemptionsBy counts how many times userID appears in UsedBy.
func (c Coupon) RedemptionsBy(userID uuid.UUID) int {
	id := userID.String()
	count := 0
	for _, used := range c.UsedBy {
		if used == id {
			count++
		}
	}
	return count
}

// CouponRedemption records that a coupon was consumed by an order. OrderID is
// unique so redemption happens at most once per order.
type CouponRedemption struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CouponID  uuid.UUID `gorm:"column:coupon_id;type:uuid;not null;index"`
	OrderID   uuid.UUID `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
