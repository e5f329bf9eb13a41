package coupons

import (
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	MsgInvalidCode    = "Invalid coupon code"
	MsgInactive       = "Coupon has expired or is no longer active"
	MsgUserLimit      = "You have already used this coupon maximum times"
	msgMinOrderFormat = "Minimum order amount of %s required"
	msgAppliedFormat  = "Coupon applied successfully! You saved %s"
)

// Rejection reasons reported to metrics.
const (
	reasonNotFound  = "not_found"
	reasonInactive  = "inactive"
	reasonUserLimit = "user_limit"
	reasonMinOrder  = "min_order"
)

// Result is the outcome of a coupon check. Invalid results carry the message
// shown to the shopper and a zero discount.
type Result struct {
	Valid          bool
	Message        string
	DiscountAmount decimal.Decimal
	Coupon         *models.Coupon
	reason         string
}

// Available reports whether the coupon is active, inside its window and under its usage limit.
func Available(c models.Coupon, now time.Time) bool {
	if !c.IsActive {
		return false
	}
	if c.StartsAt != nil && now.Before(*c.StartsAt) {
		return false
	}
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return false
	}
	if c.UsageLimit != nil && c.UsageCount >= *c.UsageLimit {
		return false
	}
	return true
}

// CanUserRedeem reports whether userID is still under the per-user limit.
func CanUserRedeem(c models.Coupon, userID uuid.UUID) bool {
	limit := c.PerUserLimit
	if limit <= 0 {
		limit = 1
	}
	return c.RedemptionsBy(userID) < limit
}

// Discount computes the amount a coupon takes off subtotal.
func Discount(c models.Coupon, subtotal decimal.Decimal) decimal.Decimal {
	if !subtotal.IsPositive() {
		return decimal.Zero
	}
	var amount decimal.Decimal
	switch c.DiscountType {
	case enums.DiscountTypeFlat:
		amount = money.Min(c.DiscountValue, subtotal)
	case enums.DiscountTypePercentage:
		amount = money.Percent(subtotal, c.DiscountValue)
		if c.MaxDiscountAmount != nil {
			amount = money.Min(amount, *c.MaxDiscountAmount)
		}
	default:
		return decimal.Zero
	}
	return money.Round(money.ClampZero(amount))
}

// Evaluate runs the ordered coupon checks against an already loaded coupon.
// The first failing check decides the message.
func Evaluate(c *models.Coupon, userID uuid.UUID, subtotal decimal.Decimal, now time.Time) Result {
	if c == nil {
		return Result{Message: MsgInvalidCode, reason: reasonNotFound}
	}
	if !Available(*c, now) {
		return Result{Message: MsgInactive, Coupon: c, reason: reasonInactive}
	}
	if !CanUserRedeem(*c, userID) {
		return Result{Message: MsgUserLimit, Coupon: c, reason: reasonUserLimit}
	}
	if subtotal.LessThan(c.MinOrderAmount) {
		return Result{
			Message: fmt.Sprintf(msgMinOrderFormat, money.Format(c.MinOrderAmount)),
			Coupon:  c,
			reason:  reasonMinOrder,
		}
	}

	discount := Discount(*c, subtotal)
	return Result{
		Valid:          true,
		Message:        fmt.Sprintf(msgAppliedFormat, money.Format(discount)),
		DiscountAmount: discount,
		Coupon:         c,
	}
}
