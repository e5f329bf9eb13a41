package reviews

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateInput is a buyer's new review.
type CreateInput struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Rating    int       `json:"rating" validate:"required,min=1,max=5"`
	Title     string    `json:"title" validate:"max=100"`
	Comment   string    `json:"comment" validate:"max=1000"`
}

// UpdateInput changes only the fields that are set.
type UpdateInput struct {
	Rating  *int    `json:"rating" validate:"omitempty,min=1,max=5"`
	Title   *string `json:"title" validate:"omitempty,max=100"`
	Comment *string `json:"comment" validate:"omitempty,max=1000"`
}

type ReviewDTO struct {
	ID           uuid.UUID `json:"id"`
	ProductID    uuid.UUID `json:"product_id"`
	UserID       uuid.UUID `json:"user_id"`
	UserName     string    `json:"user_name"`
	Rating       int       `json:"rating"`
	Title        string    `json:"title,omitempty"`
	Comment      string    `json:"comment,omitempty"`
	HelpfulCount int       `json:"helpful_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type ListResult struct {
	Items  []ReviewDTO `json:"items"`
	Cursor string      `json:"cursor,omitempty"`
}

// Summary is a product's rating breakdown. Distribution is keyed by star
// value and always carries all five keys.
type Summary struct {
	AverageRating float64     `json:"average_rating"`
	TotalReviews  int         `json:"total_reviews"`
	Distribution  map[int]int `json:"rating_distribution"`
}

func newReviewDTO(r models.Review) ReviewDTO {
	return ReviewDTO{
		ID:           r.ID,
		ProductID:    r.ProductID,
		UserID:       r.UserID,
		UserName:     r.UserName,
		Rating:       r.Rating,
		Title:        r.Title,
		Comment:      r.Comment,
		HelpfulCount: r.HelpfulCount,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// summarize averages the grouped counts, rounded to one decimal place.
func summarize(counts []RatingCount) (Summary, decimal.Decimal) {
	out := Summary{Distribution: map[int]int{5: 0, 4: 0, 3: 0, 2: 0, 1: 0}}
	sum := 0
	for _, c := range counts {
		if c.Rating < 1 || c.Rating > 5 {
			continue
		}
		out.Distribution[c.Rating] += c.Count
		out.TotalReviews += c.Count
		sum += c.Rating * c.Count
	}
	avg := decimal.Zero
	if out.TotalReviews > 0 {
		avg = decimal.NewFromInt(int64(sum)).
			DivRound(decimal.NewFromInt(int64(out.TotalReviews)), 4).
			Round(1)
	}
	out.AverageRating = avg.InexactFloat64()
	return out, avg
}
