package products

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductDTO is the public catalog shape of a product.
type ProductDTO struct {
	ID                 uuid.UUID    `json:"id"`
	Name               string       `json:"name"`
	Slug               string       `json:"slug"`
	Description        string       `json:"description"`
	Category           string       `json:"category"`
	ImageURL           string       `json:"image_url,omitempty"`
	Price              float64      `json:"price"`
	FinalPrice         float64      `json:"final_price"`
	DiscountActive     bool         `json:"discount_active"`
	DiscountPercentage float64      `json:"discount_percentage"`
	Stock              int          `json:"stock"`
	InStock            bool         `json:"in_stock"`
	SoldCount          int          `json:"sold_count"`
	Rating             float64      `json:"rating"`
	ReviewsCount       int          `json:"reviews_count"`
	WeightKg           float64      `json:"weight_kg"`
	Variants           []VariantDTO `json:"variants,omitempty"`
	IsActive           bool         `json:"is_active"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// VariantDTO exposes a variant with its resolved price.
type VariantDTO struct {
	SKU   string  `json:"sku"`
	Name  string  `json:"name"`
	Stock int     `json:"stock"`
	Price float64 `json:"price"`
}

// ProductList is one page of catalog results.
type ProductList struct {
	Items      []ProductDTO `json:"items"`
	Total      int64        `json:"total"`
	Page       int          `json:"page"`
	Limit      int          `json:"limit"`
	TotalPages int          `json:"total_pages"`
	HasMore    bool         `json:"has_more"`
}

// NewProductDTO resolves prices at now and maps the model to its API shape.
func NewProductDTO(p models.Product, now time.Time) ProductDTO {
	final := FinalPrice(p, now)
	dto := ProductDTO{
		ID:                 p.ID,
		Name:               p.Name,
		Slug:               p.Slug,
		Description:        p.Description,
		Category:           p.Category,
		ImageURL:           p.ImageURL,
		Price:              p.Price.InexactFloat64(),
		FinalPrice:         final.InexactFloat64(),
		DiscountActive:     DiscountApplies(p, now) && final.LessThan(p.Price),
		DiscountPercentage: SavingsPercentage(p.Price, final).InexactFloat64(),
		Stock:              p.Stock,
		InStock:            p.Stock > 0,
		SoldCount:          p.SoldCount,
		Rating:             p.Rating.InexactFloat64(),
		ReviewsCount:       p.ReviewsCount,
		WeightKg:           p.WeightKg.InexactFloat64(),
		IsActive:           p.IsActive,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
	for _, v := range p.Variants {
		dto.Variants = append(dto.Variants, VariantDTO{
			SKU:   v.SKU,
			Name:  v.Name,
			Stock: v.Stock,
			Price: VariantPrice(p, v.SKU, now).InexactFloat64(),
		})
	}
	return dto
}

func optionalDecimal(v *float64) *decimal.Decimal {
	if v == nil {
		return nil
	}
	d := decimal.NewFromFloat(*v)
	return &d
}
