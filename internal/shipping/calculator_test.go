package shipping

import (
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubZones struct {
	zones []models.ShippingZone
	err   error
}

func (s stubZones) List(context.Context, bool) ([]models.ShippingZone, error) {
	return s.zones, s.err
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func zone(name string, pincodes, states []string, base, perKg string) models.ShippingZone {
	return models.ShippingZone{
		Name:                  name,
		Pincodes:              pq.StringArray(pincodes),
		States:                pq.StringArray(states),
		BaseCharge:            dec(base),
		ChargePerKg:           dec(perKg),
		FreeShippingThreshold: dec("1499"),
		MinDays:               2,
		MaxDays:               5,
		IsActive:              true,
	}
}

func TestFlatRateThreshold(t *testing.T) {
	calc := NewFlatRate(dec("150"), dec("1499"))
	ctx := context.Background()

	below, err := calc.Calculate(ctx, Request{Subtotal: dec("1498.99")})
	require.NoError(t, err)
	assert.True(t, below.ShippingCost.Equal(dec("150")))
	assert.False(t, below.FreeShipping)
	assert.Equal(t, "Standard Shipping", below.ZoneName)
	assert.Equal(t, "3-7", below.EstimatedDays)
	assert.Equal(t, ProviderFlatRate, below.Provider)

	at, err := calc.Calculate(ctx, Request{Subtotal: dec("1499")})
	require.NoError(t, err)
	assert.True(t, at.ShippingCost.IsZero())
	assert.True(t, at.FreeShipping)
}

func TestZoneLookupPrecedence(t *testing.T) {
	zones := []models.ShippingZone{
		zone("Default", nil, nil, "80", "0"),
		zone("Karnataka", nil, []string{"Karnataka"}, "60", "10"),
		zone("Bengaluru Metro", []string{"560001", "560002"}, nil, "40", "5"),
	}
	calc := NewZoneCalculator(stubZones{zones: zones})
	ctx := context.Background()

	byPincode, err := calc.Calculate(ctx, Request{Pincode: "560001", State: "Karnataka", Subtotal: dec("500"), WeightKg: dec("2")})
	require.NoError(t, err)
	assert.Equal(t, "Bengaluru Metro", byPincode.ZoneName)
	assert.True(t, byPincode.ShippingCost.Equal(dec("50")))
	assert.Equal(t, "2-5", byPincode.EstimatedDays)
	assert.Equal(t, ProviderZone, byPincode.Provider)

	byState, err := calc.Calculate(ctx, Request{Pincode: "575001", State: "karnataka", Subtotal: dec("500"), WeightKg: dec("1.5")})
	require.NoError(t, err)
	assert.Equal(t, "Karnataka", byState.ZoneName)
	assert.True(t, byState.ShippingCost.Equal(dec("75")))

	byDefault, err := calc.Calculate(ctx, Request{Pincode: "110001", State: "Delhi", Subtotal: dec("500")})
	require.NoError(t, err)
	assert.Equal(t, "Default", byDefault.ZoneName)
	assert.True(t, byDefault.ShippingCost.Equal(dec("80")))

	free, err := calc.Calculate(ctx, Request{Pincode: "560001", Subtotal: dec("1500")})
	require.NoError(t, err)
	assert.True(t, free.FreeShipping)
	assert.True(t, free.ShippingCost.IsZero())
}

func TestZoneFallbackWhenNothingConfigured(t *testing.T) {
	calc := NewZoneCalculator(stubZones{})
	ctx := context.Background()

	quote, err := calc.Calculate(ctx, Request{Pincode: "999999", Subtotal: dec("200")})
	require.NoError(t, err)
	assert.Equal(t, models.DefaultZoneName, quote.ZoneName)
	assert.True(t, quote.ShippingCost.Equal(dec("50")))
	assert.Equal(t, "3-7", quote.EstimatedDays)

	quote, err = calc.Calculate(ctx, Request{Pincode: "999999", Subtotal: dec("1499")})
	require.NoError(t, err)
	assert.True(t, quote.FreeShipping)
}

func TestZoneCalculatorPropagatesRepoErrors(t *testing.T) {
	calc := NewZoneCalculator(stubZones{err: errors.New("db down")})
	_, err := calc.Calculate(context.Background(), Request{Pincode: "1"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeDependency))
}

func TestNewCalculatorHonorsMode(t *testing.T) {
	flat, err := NewCalculator(config.ShippingConfig{Mode: config.ShippingModeFlat, FlatFee: 150, FreeShippingThreshold: 1499}, nil)
	require.NoError(t, err)
	assert.IsType(t, &FlatRate{}, flat)

	zoned, err := NewCalculator(config.ShippingConfig{Mode: config.ShippingModeZone}, stubZones{})
	require.NoError(t, err)
	assert.IsType(t, &ZoneCalculator{}, zoned)

	_, err = NewCalculator(config.ShippingConfig{Mode: config.ShippingModeZone}, nil)
	assert.Error(t, err)
}
