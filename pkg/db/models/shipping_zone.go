package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// DefaultZoneName is the catch-all zone consulted after pincode and state lookups miss.
const DefaultZoneName = "Default"

// ShippingZone is reference data mapping destinations to shipping rates.
type ShippingZone struct {
	ID                    uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name                  string          `gorm:"column:name;not null;uniqueIndex"`
	Pincodes              pq.StringArray  `gorm:"column:pincodes;type:text[]"`
	States                pq.StringArray  `gorm:"column:states;type:text[]"`
	BaseCharge            decimal.Decimal `gorm:"column:base_charge;type:numeric(12,2);not null"`
	ChargePerKg           decimal.Decimal `gorm:"column:charge_per_kg;type:numeric(12,2);not null"`
	FreeShippingThreshold decimal.Decimal `gorm:"column:free_shipping_threshold;type:numeric(12,2);not null"`
	MinDays               int             `gorm:"column:min_days;not null"`
	MaxDays               int             `gorm:"column:max_days;not null"`
	IsActive              bool            `gorm:"column:is_active;not null"`
	CreatedAt             time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
