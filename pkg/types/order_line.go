package types

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderLine is the immutable per-item snapshot captured at checkout.
type OrderLine struct {
	ProductID          uuid.UUID        `json:"product_id"`
	VariantSKU         string           `json:"variant_sku,omitempty"`
	ProductName        string           `json:"product_name"`
	ProductImage       string           `json:"product_image,omitempty"`
	UnitPrice          decimal.Decimal  `json:"unit_price"`
	OriginalPrice      *decimal.Decimal `json:"original_price,omitempty"`
	DiscountPercentage decimal.Decimal  `json:"discount_percentage"`
	Quantity           int              `json:"quantity"`
	Subtotal           decimal.Decimal  `json:"subtotal"`
	WeightKg           decimal.Decimal  `json:"weight_kg"`
}

// OrderLines is the jsonb list persisted on orders.
type OrderLines []OrderLine

// TotalQuantity sums units across lines.
func (l OrderLines) TotalQuantity() int {
	total := 0
	for _, line := range l {
		total += line.Quantity
	}
	return total
}

// ProductVariant describes a purchasable variation of a product.
type ProductVariant struct {
	SKU             string          `json:"sku"`
	Name            string          `json:"name"`
	Stock           int             `json:"stock"`
	PriceAdjustment decimal.Decimal `json:"price_adjustment"`
}

// ProductVariants is the jsonb list persisted on products.
type ProductVariants []ProductVariant

// Find returns the variant with the given sku.
func (v ProductVariants) Find(sku string) (ProductVariant, bool) {
	for _, variant := range v {
		if variant.SKU == sku {
			return variant, true
		}
	}
	return ProductVariant{}, false
}
