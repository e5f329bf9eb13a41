package shipping

import (
	"context"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Service exposes shipping previews and zone administration.
type Service interface {
	Quote(ctx context.Context, input QuoteInput) (*QuoteDTO, error)
	ListZones(ctx context.Context) ([]ZoneDTO, error)
	CreateZone(ctx context.Context, input ZoneInput) (*ZoneDTO, error)
	UpdateZone(ctx context.Context, id uuid.UUID, input ZoneUpdateInput) (*ZoneDTO, error)
	DeleteZone(ctx context.Context, id uuid.UUID) error
}

// QuoteInput is the shipping preview payload.
type QuoteInput struct {
	Pincode     string  `json:"pincode" validate:"required,max=12"`
	State       string  `json:"state" validate:"max=80"`
	Subtotal    float64 `json:"subtotal" validate:"gte=0"`
	WeightKg    float64 `json:"weight_kg" validate:"gte=0"`
	PaymentMode string  `json:"payment_mode" validate:"omitempty,max=20"`
	CODAmount   float64 `json:"cod_amount" validate:"gte=0"`
}

// QuoteDTO is the API shape of a Quote.
type QuoteDTO struct {
	ShippingCost  float64 `json:"shipping_cost"`
	FreeShipping  bool    `json:"free_shipping"`
	ZoneName      string  `json:"zone_name"`
	EstimatedDays string  `json:"estimated_days"`
	Provider      string  `json:"provider"`
}

// ZoneInput is the admin payload for a new zone.
type ZoneInput struct {
	Name                  string   `json:"name" validate:"required,max=80"`
	Pincodes              []string `json:"pincodes" validate:"omitempty,dive,required,max=12"`
	States                []string `json:"states" validate:"omitempty,dive,required,max=80"`
	BaseCharge            float64  `json:"base_charge" validate:"gte=0"`
	ChargePerKg           float64  `json:"charge_per_kg" validate:"gte=0"`
	FreeShippingThreshold *float64 `json:"free_shipping_threshold" validate:"omitempty,gte=0"`
	MinDays               *int     `json:"estimated_days_min" validate:"omitempty,gte=0"`
	MaxDays               *int     `json:"estimated_days_max" validate:"omitempty,gte=0"`
	IsActive              *bool    `json:"is_active"`
}

// ZoneUpdateInput is a partial zone update.
type ZoneUpdateInput struct {
	Name                  *string   `json:"name" validate:"omitempty,max=80"`
	Pincodes              *[]string `json:"pincodes"`
	States                *[]string `json:"states"`
	BaseCharge            *float64  `json:"base_charge" validate:"omitempty,gte=0"`
	ChargePerKg           *float64  `json:"charge_per_kg" validate:"omitempty,gte=0"`
	FreeShippingThreshold *float64  `json:"free_shipping_threshold" validate:"omitempty,gte=0"`
	MinDays               *int      `json:"estimated_days_min" validate:"omitempty,gte=0"`
	MaxDays               *int      `json:"estimated_days_max" validate:"omitempty,gte=0"`
	IsActive              *bool     `json:"is_active"`
}

// ZoneDTO is the API shape of a shipping zone.
type ZoneDTO struct {
	ID                    uuid.UUID `json:"id"`
	Name                  string    `json:"name"`
	Pincodes              []string  `json:"pincodes"`
	States                []string  `json:"states"`
	BaseCharge            float64   `json:"base_charge"`
	ChargePerKg           float64   `json:"charge_per_kg"`
	FreeShippingThreshold float64   `json:"free_shipping_threshold"`
	MinDays               int       `json:"estimated_days_min"`
	MaxDays               int       `json:"estimated_days_max"`
	IsActive              bool      `json:"is_active"`
	CreatedAt             time.Time `json:"created_at"`
}

type service struct {
	repo       Repository
	calculator Calculator
}

// NewService wires the shipping service.
func NewService(repo Repository, calculator Calculator) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "zone repo is required")
	}
	if calculator == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "calculator is required")
	}
	return &service{repo: repo, calculator: calculator}, nil
}

func (s *service) Quote(ctx context.Context, input QuoteInput) (*QuoteDTO, error) {
	quote, err := s.calculator.Calculate(ctx, Request{
		Pincode:     input.Pincode,
		State:       input.State,
		Subtotal:    decimal.NewFromFloat(input.Subtotal),
		WeightKg:    decimal.NewFromFloat(input.WeightKg),
		PaymentMode: input.PaymentMode,
		CODAmount:   decimal.NewFromFloat(input.CODAmount),
	})
	if err != nil {
		return nil, err
	}
	dto := NewQuoteDTO(quote)
	return &dto, nil
}

func (s *service) ListZones(ctx context.Context) ([]ZoneDTO, error) {
	zones, err := s.repo.List(ctx, false)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list shipping zones")
	}
	out := make([]ZoneDTO, 0, len(zones))
	for _, zone := range zones {
		out = append(out, newZoneDTO(zone))
	}
	return out, nil
}

func (s *service) CreateZone(ctx context.Context, input ZoneInput) (*ZoneDTO, error) {
	zone := &models.ShippingZone{
		Name:                  strings.TrimSpace(input.Name),
		Pincodes:              cleanList(input.Pincodes),
		States:                cleanList(input.States),
		BaseCharge:            decimal.NewFromFloat(input.BaseCharge),
		ChargePerKg:           decimal.NewFromFloat(input.ChargePerKg),
		FreeShippingThreshold: fallbackThreshold,
		MinDays:               3,
		MaxDays:               7,
		IsActive:              true,
	}
	if input.FreeShippingThreshold != nil {
		zone.FreeShippingThreshold = decimal.NewFromFloat(*input.FreeShippingThreshold)
	}
	if input.MinDays != nil {
		zone.MinDays = *input.MinDays
	}
	if input.MaxDays != nil {
		zone.MaxDays = *input.MaxDays
	}
	if input.IsActive != nil {
		zone.IsActive = *input.IsActive
	}
	if err := validateZone(zone); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, zone); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "shipping zone name already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create shipping zone")
	}
	dto := newZoneDTO(*zone)
	return &dto, nil
}

func (s *service) UpdateZone(ctx context.Context, id uuid.UUID, input ZoneUpdateInput) (*ZoneDTO, error) {
	zone, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Shipping zone not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shipping zone")
	}

	if input.Name != nil {
		zone.Name = strings.TrimSpace(*input.Name)
	}
	if input.Pincodes != nil {
		zone.Pincodes = cleanList(*input.Pincodes)
	}
	if input.States != nil {
		zone.States = cleanList(*input.States)
	}
	if input.BaseCharge != nil {
		zone.BaseCharge = decimal.NewFromFloat(*input.BaseCharge)
	}
	if input.ChargePerKg != nil {
		zone.ChargePerKg = decimal.NewFromFloat(*input.ChargePerKg)
	}
	if input.FreeShippingThreshold != nil {
		zone.FreeShippingThreshold = decimal.NewFromFloat(*input.FreeShippingThreshold)
	}
	if input.MinDays != nil {
		zone.MinDays = *input.MinDays
	}
	if input.MaxDays != nil {
		zone.MaxDays = *input.MaxDays
	}
	if input.IsActive != nil {
		zone.IsActive = *input.IsActive
	}
	if err := validateZone(zone); err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, zone); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "shipping zone name already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update shipping zone")
	}
	dto := newZoneDTO(*zone)
	return &dto, nil
}

func (s *service) DeleteZone(ctx context.Context, id uuid.UUID) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete shipping zone")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeNotFound, "Shipping zone not found")
	}
	return nil
}

func validateZone(zone *models.ShippingZone) error {
	if zone.Name == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if zone.BaseCharge.IsNegative() || zone.ChargePerKg.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "charges cannot be negative")
	}
	if zone.MinDays > zone.MaxDays {
		return pkgerrors.New(pkgerrors.CodeValidation, "estimated_days_min cannot exceed estimated_days_max")
	}
	return nil
}

func cleanList(values []string) pq.StringArray {
	out := make(pq.StringArray, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// NewQuoteDTO maps a Quote to its API shape.
func NewQuoteDTO(q Quote) QuoteDTO {
	return QuoteDTO{
		ShippingCost:  q.ShippingCost.InexactFloat64(),
		FreeShipping:  q.FreeShipping,
		ZoneName:      q.ZoneName,
		EstimatedDays: q.EstimatedDays,
		Provider:      q.Provider,
	}
}

func newZoneDTO(z models.ShippingZone) ZoneDTO {
	return ZoneDTO{
		ID:                    z.ID,
		Name:                  z.Name,
		Pincodes:              []string(z.Pincodes),
		States:                []string(z.States),
		BaseCharge:            z.BaseCharge.InexactFloat64(),
		ChargePerKg:           z.ChargePerKg.InexactFloat64(),
		FreeShippingThreshold: z.FreeShippingThreshold.InexactFloat64(),
		MinDays:               z.MinDays,
		MaxDays:               z.MaxDays,
		IsActive:              z.IsActive,
		CreatedAt:             z.CreatedAt,
	}
}
