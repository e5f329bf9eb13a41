package types

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReturnItem names one order line, or part of it, being sent back.
type ReturnItem struct {
	ProductID   uuid.UUID       `json:"product_id"`
	VariantSKU  string          `json:"variant_sku,omitempty"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Reason      string          `json:"reason,omitempty"`
}

// ReturnItems is the jsonb list persisted on return requests.
type ReturnItems []ReturnItem

// Total sums unit price times quantity across items.
func (r ReturnItems) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range r {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}
