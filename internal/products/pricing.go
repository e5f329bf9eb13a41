package products

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/money"
	"github.com/shopspring/decimal"
)

// DiscountApplies reports whether the product's discount fields are in effect at now.
// Window bounds are optional and inclusive.
func DiscountApplies(p models.Product, now time.Time) bool {
	if !p.DiscountActive {
		return false
	}
	if p.DiscountStartsAt != nil && now.Before(*p.DiscountStartsAt) {
		return false
	}
	if p.DiscountEndsAt != nil && now.After(*p.DiscountEndsAt) {
		return false
	}
	return true
}

// FinalPrice is the lowest price produced by any applicable discount mechanism.
// The result lies in [0, price] and is rounded to two decimals.
func FinalPrice(p models.Product, now time.Time) decimal.Decimal {
	price := money.ClampZero(p.Price)
	if !DiscountApplies(p, now) {
		return money.Round(price)
	}

	best := price
	if p.SalePrice != nil && p.SalePrice.IsPositive() {
		best = decimal.Min(best, *p.SalePrice)
	}
	if p.DiscountPercentage != nil && p.DiscountPercentage.IsPositive() {
		off := money.Percent(price, *p.DiscountPercentage)
		best = decimal.Min(best, money.ClampZero(price.Sub(off)))
	}
	if p.DiscountAmount != nil && p.DiscountAmount.IsPositive() {
		best = decimal.Min(best, money.ClampZero(price.Sub(*p.DiscountAmount)))
	}
	return money.Round(money.ClampZero(best))
}

// VariantPrice is the final price adjusted for the variant identified by sku.
// An empty or unknown sku yields the product's final price.
func VariantPrice(p models.Product, sku string, now time.Time) decimal.Decimal {
	final := FinalPrice(p, now)
	if sku == "" {
		return final
	}
	variant, ok := p.Variants.Find(sku)
	if !ok {
		return final
	}
	return money.Round(money.ClampZero(final.Add(variant.PriceAdjustment)))
}

// SavingsPercentage is how far the final price sits below the base price, in percent.
func SavingsPercentage(base, final decimal.Decimal) decimal.Decimal {
	if !base.IsPositive() || !base.GreaterThan(final) {
		return decimal.Zero
	}
	return money.Round(base.Sub(final).Div(base).Mul(decimal.NewFromInt(100)))
}
