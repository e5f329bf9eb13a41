package checkout

import (
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/money"
	"github.com/angelmondragon/storefront-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Line is a cart line resolved against the live product.
type Line struct {
	Product    models.Product
	VariantSKU string
	Quantity   int
}

// Breakdown is the full price of an order.
type Breakdown struct {
	Items          types.OrderLines
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	ShippingCost   decimal.Decimal
	PlatformFee    decimal.Decimal
	TotalAmount    decimal.Decimal
	WeightKg       decimal.Decimal
}

// Pricer turns resolved lines into order totals.
type Pricer struct {
	feeRate decimal.Decimal
}

// NewPricer builds a pricer charging feeRate on the discounted subtotal.
func NewPricer(feeRate decimal.Decimal) (*Pricer, error) {
	if feeRate.IsNegative() || feeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "platform fee rate must be in [0, 1)")
	}
	return &Pricer{feeRate: feeRate}, nil
}

// ResolveLines checks every cart line against the catalog. Demand for the
// same product across variants is summed before comparing with stock.
func ResolveLines(items []models.CartItem, catalog map[uuid.UUID]models.Product) ([]Line, error) {
	demand := make(map[uuid.UUID]int, len(items))
	lines := make([]Line, 0, len(items))

	for _, item := range items {
		product, ok := catalog[item.ProductID]
		if !ok || !product.IsActive {
			return nil, pkgerrors.New(pkgerrors.CodeBusinessRule,
				fmt.Sprintf("Product %s no longer available", item.ProductName))
		}
		demand[product.ID] += item.Quantity
		if demand[product.ID] > product.Stock {
			return nil, pkgerrors.New(pkgerrors.CodeBusinessRule,
				fmt.Sprintf("Insufficient stock for %s. Only %d available", product.Name, product.Stock))
		}
		lines = append(lines, Line{Product: product, VariantSKU: item.VariantSKU, Quantity: item.Quantity})
	}
	return lines, nil
}

// PriceItems snapshots each line at its final price and sums the subtotal
// and shipping weight.
func (p *Pricer) PriceItems(lines []Line, now time.Time) (types.OrderLines, decimal.Decimal, decimal.Decimal) {
	items := make(types.OrderLines, 0, len(lines))
	subtotal := decimal.Zero
	weight := decimal.Zero

	for _, line := range lines {
		qty := decimal.NewFromInt(int64(line.Quantity))
		unit := products.VariantPrice(line.Product, line.VariantSKU, now)
		base := basePrice(line.Product, line.VariantSKU)
		lineSubtotal := money.Round(unit.Mul(qty))

		item := types.OrderLine{
			ProductID:          line.Product.ID,
			VariantSKU:         line.VariantSKU,
			ProductName:        line.Product.Name,
			ProductImage:       line.Product.ImageURL,
			UnitPrice:          unit,
			DiscountPercentage: products.SavingsPercentage(base, unit),
			Quantity:           line.Quantity,
			Subtotal:           lineSubtotal,
			WeightKg:           line.Product.WeightKg.Mul(qty),
		}
		if base.GreaterThan(unit) {
			original := base
			item.OriginalPrice = &original
		}

		items = append(items, item)
		subtotal = subtotal.Add(lineSubtotal)
		weight = weight.Add(item.WeightKg)
	}
	return items, money.Round(subtotal), weight
}

// PriceOrder computes the full breakdown. The fee is charged on the
// discounted subtotal and the total is rounded once at the end.
func (p *Pricer) PriceOrder(lines []Line, discount, shipping decimal.Decimal, now time.Time) Breakdown {
	items, subtotal, weight := p.PriceItems(lines, now)

	discount = money.Round(money.Min(money.ClampZero(discount), subtotal))
	shipping = money.Round(money.ClampZero(shipping))
	taxable := subtotal.Sub(discount)
	fee := money.Round(taxable.Mul(p.feeRate))

	return Breakdown{
		Items:          items,
		Subtotal:       subtotal,
		DiscountAmount: discount,
		ShippingCost:   shipping,
		PlatformFee:    fee,
		TotalAmount:    money.Round(taxable.Add(shipping).Add(fee)),
		WeightKg:       weight,
	}
}

func basePrice(p models.Product, sku string) decimal.Decimal {
	base := p.Price
	if sku == "" {
		return base
	}
	if variant, ok := p.Variants.Find(sku); ok {
		base = base.Add(variant.PriceAdjustment)
	}
	return money.ClampZero(base)
}
