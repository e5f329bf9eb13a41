package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Product is a catalog entry. Discount fields only apply while DiscountActive
// is set and the current time falls inside the optional window.
type Product struct {
	ID                 uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name               string                `gorm:"column:name;not null"`
	Slug               string                `gorm:"column:slug;not null;uniqueIndex"`
	Description        string                `gorm:"column:description"`
	Category           string                `gorm:"column:category;not null;index"`
	ImageURL           string                `gorm:"column:image_url"`
	Price              decimal.Decimal       `gorm:"column:price;type:numeric(12,2);not null"`
	DiscountActive     bool                  `gorm:"column:discount_active;not null"`
	DiscountPercentage *decimal.Decimal      `gorm:"column:discount_percentage;type:numeric(5,2)"`
	DiscountAmount     *decimal.Decimal      `gorm:"column:discount_amount;type:numeric(12,2)"`
	SalePrice          *decimal.Decimal      `gorm:"column:sale_price;type:numeric(12,2)"`
	DiscountStartsAt   *time.Time            `gorm:"column:discount_starts_at;type:timestamptz"`
	DiscountEndsAt     *time.Time            `gorm:"column:discount_ends_at;type:timestamptz"`
	Stock              int                   `gorm:"column:stock;not null"`
	SoldCount          int                   `gorm:"column:sold_count;not null"`
	WeightKg           decimal.Decimal       `gorm:"column:weight_kg;type:numeric(8,3);not null"`
	Variants           types.ProductVariants `gorm:"column:variants;type:jsonb;serializer:json"`
	Rating             decimal.Decimal       `gorm:"column:rating;type:numeric(2,1);not null"`
	ReviewsCount       int                   `gorm:"column:reviews_count;not null"`
	IsActive           bool                  `gorm:"column:is_active;not null"`
	CreatedAt          time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
