package models

import (
	"time"

	"github.com/google/uuid"
)

// Review is a verified buyer's rating of a product. One per user and product.
type Review struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID    uuid.UUID `gorm:"column:product_id;type:uuid;not null;uniqueIndex:idx_reviews_product_user"`
	UserID       uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_reviews_product_user"`
	UserName     string    `gorm:"column:user_name;not null"`
	Rating       int       `gorm:"column:rating;not null"`
	Title        string    `gorm:"column:title"`
	Comment      string    `gorm:"column:comment"`
	HelpfulCount int       `gorm:"column:helpful_count;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
