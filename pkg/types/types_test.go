package types

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestShippingAddressNormalize(t *testing.T) {
	addr := ShippingAddress{FullName: "  Asha ", City: " Pune", Pincode: " 411001 "}.Normalize()
	if addr.FullName != "Asha" || addr.City != "Pune" || addr.Pincode != "411001" {
		t.Fatalf("expected trimmed fields, got %+v", addr)
	}
	if addr.Country != "India" {
		t.Fatalf("expected default country, got %q", addr.Country)
	}
}

func TestOrderLinesTotalQuantity(t *testing.T) {
	lines := OrderLines{{Quantity: 2}, {Quantity: 3}}
	if got := lines.TotalQuantity(); got != 5 {
		t.Fatalf("expected 5 units, got %d", got)
	}
}

func TestProductVariantsFind(t *testing.T) {
	variants := ProductVariants{
		{SKU: "TEE-S", Name: "Small", Stock: 2, PriceAdjustment: decimal.Zero},
		{SKU: "TEE-XL", Name: "XL", Stock: 1, PriceAdjustment: decimal.NewFromInt(50)},
	}
	v, ok := variants.Find("TEE-XL")
	if !ok || v.Name != "XL" {
		t.Fatalf("expected XL variant, got %+v %v", v, ok)
	}
	if _, ok := variants.Find("TEE-M"); ok {
		t.Fatal("unexpected match for missing sku")
	}
}

func TestReturnItemsTotal(t *testing.T) {
	items := ReturnItems{
		{Quantity: 2, UnitPrice: decimal.RequireFromString("499.50")},
		{Quantity: 1, UnitPrice: decimal.NewFromInt(100)},
	}
	if got := items.Total(); !got.Equal(decimal.RequireFromString("1099")) {
		t.Fatalf("expected 1099, got %s", got)
	}
}
