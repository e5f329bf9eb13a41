package shipping

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/money"
	"github.com/shopspring/decimal"
)

const (
	ProviderFlatRate = "flat-rate"
	ProviderZone     = "zone"

	flatRateZoneName = "Standard Shipping"
	defaultDays      = "3-7"
)

var (
	fallbackCharge    = decimal.NewFromInt(50)
	fallbackThreshold = decimal.NewFromInt(1499)
	defaultWeightKg   = decimal.NewFromInt(1)
)

// Request describes what is being shipped and where.
type Request struct {
	Pincode     string
	State       string
	Subtotal    decimal.Decimal
	WeightKg    decimal.Decimal
	PaymentMode string
	CODAmount   decimal.Decimal
}

// Quote is the shipping charge for a request.
type Quote struct {
	ShippingCost  decimal.Decimal
	ZoneName      string
	EstimatedDays string
	FreeShipping  bool
	Provider      string
}

// Calculator prices shipping for a destination.
type Calculator interface {
	Calculate(ctx context.Context, req Request) (Quote, error)
}

// ZoneReader lists the zones a calculator may match against.
type ZoneReader interface {
	List(ctx context.Context, activeOnly bool) ([]models.ShippingZone, error)
}

// FlatRate charges a fixed fee below a free-shipping threshold.
type FlatRate struct {
	fee       decimal.Decimal
	threshold decimal.Decimal
}

// NewFlatRate builds a flat-rate calculator.
func NewFlatRate(fee, threshold decimal.Decimal) *FlatRate {
	return &FlatRate{fee: fee, threshold: threshold}
}

func (f *FlatRate) Calculate(_ context.Context, req Request) (Quote, error) {
	quote := Quote{
		ShippingCost:  money.Round(f.fee),
		ZoneName:      flatRateZoneName,
		EstimatedDays: defaultDays,
		Provider:      ProviderFlatRate,
	}
	if req.Subtotal.GreaterThanOrEqual(f.threshold) {
		quote.ShippingCost = decimal.Zero
		quote.FreeShipping = true
	}
	return quote, nil
}

// ZoneCalculator prices shipping from admin-configured zones. Lookup goes
// pincode, then state, then the zone named Default, then a constant fallback.
type ZoneCalculator struct {
	zones ZoneReader
}

// NewZoneCalculator builds a zone-based calculator.
func NewZoneCalculator(zones ZoneReader) *ZoneCalculator {
	return &ZoneCalculator{zones: zones}
}

func (z *ZoneCalculator) Calculate(ctx context.Context, req Request) (Quote, error) {
	zones, err := z.zones.List(ctx, true)
	if err != nil {
		return Quote{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shipping zones")
	}

	zone := MatchZone(zones, req.Pincode, req.State)
	if zone == nil {
		quote := Quote{
			ShippingCost:  fallbackCharge,
			ZoneName:      models.DefaultZoneName,
			EstimatedDays: defaultDays,
			Provider:      ProviderZone,
		}
		if req.Subtotal.GreaterThanOrEqual(fallbackThreshold) {
			quote.ShippingCost = decimal.Zero
			quote.FreeShipping = true
		}
		return quote, nil
	}

	quote := Quote{
		ZoneName:      zone.Name,
		EstimatedDays: fmt.Sprintf("%d-%d", zone.MinDays, zone.MaxDays),
		Provider:      ProviderZone,
	}
	if req.Subtotal.GreaterThanOrEqual(zone.FreeShippingThreshold) {
		quote.ShippingCost = decimal.Zero
		quote.FreeShipping = true
		return quote, nil
	}

	weight := req.WeightKg
	if !weight.IsPositive() {
		weight = defaultWeightKg
	}
	quote.ShippingCost = money.Round(zone.BaseCharge.Add(zone.ChargePerKg.Mul(weight)))
	return quote, nil
}

// MatchZone picks the zone for a destination among active zones.
func MatchZone(zones []models.ShippingZone, pincode, state string) *models.ShippingZone {
	pincode = strings.TrimSpace(pincode)
	state = strings.TrimSpace(state)

	if pincode != "" {
		for i := range zones {
			for _, candidate := range zones[i].Pincodes {
				if strings.TrimSpace(candidate) == pincode {
					return &zones[i]
				}
			}
		}
	}
	if state != "" {
		for i := range zones {
			for _, candidate := range zones[i].States {
				if strings.EqualFold(strings.TrimSpace(candidate), state) {
					return &zones[i]
				}
			}
		}
	}
	for i := range zones {
		if strings.EqualFold(zones[i].Name, models.DefaultZoneName) {
			return &zones[i]
		}
	}
	return nil
}

// NewCalculator selects the calculator configured for checkout.
func NewCalculator(cfg config.ShippingConfig, zones ZoneReader) (Calculator, error) {
	if cfg.UseZones() {
		if zones == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "zone reader is required for zone shipping")
		}
		return NewZoneCalculator(zones), nil
	}
	return NewFlatRate(decimal.NewFromInt(cfg.FlatFee), decimal.NewFromInt(cfg.FreeShippingThreshold)), nil
}
