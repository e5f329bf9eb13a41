package wishlist

import (
	"time"

	"github.com/google/uuid"
)

// ItemDTO is a saved product priced at read time.
type ItemDTO struct {
	ProductID          uuid.UUID `json:"product_id"`
	ProductName        string    `json:"product_name"`
	Slug               string    `json:"slug"`
	ImageURL           string    `json:"image_url,omitempty"`
	Price              float64   `json:"price"`
	FinalPrice         float64   `json:"final_price"`
	DiscountPercentage float64   `json:"discount_percentage"`
	InStock            bool      `json:"in_stock"`
	AddedAt            time.Time `json:"added_at"`
}

type ListResult struct {
	Items  []ItemDTO `json:"items"`
	Cursor string    `json:"cursor,omitempty"`
}
