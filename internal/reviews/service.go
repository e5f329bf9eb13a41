package reviews

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	maxTitleLength   = 100
	maxCommentLength = 1000
)

// PurchaseChecker confirms the reviewer received the product.
type PurchaseChecker interface {
	HasDeliveredProduct(ctx context.Context, userID, productID uuid.UUID) (bool, error)
}

// Service manages verified-buyer reviews and keeps each product's rating
// and reviews_count in step with them.
type Service interface {
	Create(ctx context.Context, userID uuid.UUID, email string, input CreateInput) (*ReviewDTO, error)
	ListByProduct(ctx context.Context, productID uuid.UUID, params pagination.Params) (*ListResult, error)
	Summary(ctx context.Context, productID uuid.UUID) (*Summary, error)
	Update(ctx context.Context, userID, reviewID uuid.UUID, input UpdateInput) (*ReviewDTO, error)
	Delete(ctx context.Context, userID, reviewID uuid.UUID, isAdmin bool) error
	MarkHelpful(ctx context.Context, reviewID uuid.UUID) (*ReviewDTO, error)
}

type ServiceParams struct {
	Repo       Repository
	Products   products.Repository
	Purchases  PurchaseChecker
	Transactor db.Transactor
}

type service struct {
	repo      Repository
	products  products.Repository
	purchases PurchaseChecker
	tx        db.Transactor
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reviews repo is required")
	}
	if params.Products == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "products repo is required")
	}
	if params.Purchases == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "purchase checker is required")
	}
	if params.Transactor == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transactor is required")
	}
	return &service{
		repo:      params.Repo,
		products:  params.Products,
		purchases: params.Purchases,
		tx:        params.Transactor,
	}, nil
}

func (s *service) Create(ctx context.Context, userID uuid.UUID, email string, input CreateInput) (*ReviewDTO, error) {
	if input.Rating < 1 || input.Rating > 5 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rating must be between 1 and 5")
	}
	title, comment, err := cleanText(input.Title, input.Comment)
	if err != nil {
		return nil, err
	}

	if _, err := s.products.FindByID(ctx, input.ProductID); err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}

	exists, err := s.repo.Exists(ctx, input.ProductID, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing review")
	}
	if exists {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "You have already reviewed this product")
	}

	bought, err := s.purchases.HasDeliveredProduct(ctx, userID, input.ProductID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check purchase")
	}
	if !bought {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "You can only review products you have purchased and received")
	}

	review := &models.Review{
		ID:        uuid.New(),
		ProductID: input.ProductID,
		UserID:    userID,
		UserName:  displayName(email),
		Rating:    input.Rating,
		Title:     title,
		Comment:   comment,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.lockProduct(ctx, tx, review.ProductID); err != nil {
			return err
		}
		if err := s.repo.WithTx(tx).Create(ctx, review); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "You have already reviewed this product")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create review")
		}
		return s.rerate(ctx, tx, review.ProductID)
	})
	if err != nil {
		return nil, err
	}

	dto := newReviewDTO(*review)
	return &dto, nil
}

// ListByProduct returns reviews newest first.
func (s *service) ListByProduct(ctx context.Context, productID uuid.UUID, params pagination.Params) (*ListResult, error) {
	var cursor *pagination.Cursor
	if params.Cursor != "" {
		parsed, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		cursor = parsed
	}

	rows, next, err := s.repo.ListByProduct(ctx, productID, params.Limit, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list reviews")
	}
	result := &ListResult{Items: make([]ReviewDTO, 0, len(rows))}
	for _, row := range rows {
		result.Items = append(result.Items, newReviewDTO(row))
	}
	if next != nil {
		result.Cursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

func (s *service) Summary(ctx context.Context, productID uuid.UUID) (*Summary, error) {
	counts, err := s.repo.CountByRating(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count reviews")
	}
	summary, _ := summarize(counts)
	return &summary, nil
}

func (s *service) Update(ctx context.Context, userID, reviewID uuid.UUID, input UpdateInput) (*ReviewDTO, error) {
	review, err := s.load(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	if review.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "Not authorized")
	}

	fields := map[string]any{}
	if input.Rating != nil {
		if *input.Rating < 1 || *input.Rating > 5 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "rating must be between 1 and 5")
		}
		fields["rating"] = *input.Rating
		review.Rating = *input.Rating
	}
	title, comment := review.Title, review.Comment
	if input.Title != nil {
		title = *input.Title
	}
	if input.Comment != nil {
		comment = *input.Comment
	}
	title, comment, err = cleanText(title, comment)
	if err != nil {
		return nil, err
	}
	if input.Title != nil {
		fields["title"] = title
		review.Title = title
	}
	if input.Comment != nil {
		fields["comment"] = comment
		review.Comment = comment
	}
	if len(fields) == 0 {
		dto := newReviewDTO(*review)
		return &dto, nil
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.lockProduct(ctx, tx, review.ProductID); err != nil {
			return err
		}
		if err := s.repo.WithTx(tx).UpdateContent(ctx, review.ID, fields); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update review")
		}
		if input.Rating == nil {
			return nil
		}
		return s.rerate(ctx, tx, review.ProductID)
	})
	if err != nil {
		return nil, err
	}

	updated, err := s.load(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	dto := newReviewDTO(*updated)
	return &dto, nil
}

// Delete removes a review. Owners may delete their own; admins any.
func (s *service) Delete(ctx context.Context, userID, reviewID uuid.UUID, isAdmin bool) error {
	review, err := s.load(ctx, reviewID)
	if err != nil {
		return err
	}
	if review.UserID != userID && !isAdmin {
		return pkgerrors.New(pkgerrors.CodeForbidden, "Not authorized")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.lockProduct(ctx, tx, review.ProductID); err != nil {
			return err
		}
		removed, err := s.repo.WithTx(tx).Delete(ctx, review.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete review")
		}
		if !removed {
			return pkgerrors.New(pkgerrors.CodeNotFound, "Review not found")
		}
		return s.rerate(ctx, tx, review.ProductID)
	})
}

func (s *service) MarkHelpful(ctx context.Context, reviewID uuid.UUID) (*ReviewDTO, error) {
	ok, err := s.repo.IncrementHelpful(ctx, reviewID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark review helpful")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Review not found")
	}
	review, err := s.load(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	dto := newReviewDTO(*review)
	return &dto, nil
}

// lockProduct serializes rating recomputation per product.
func (s *service) lockProduct(ctx context.Context, tx *gorm.DB, productID uuid.UUID) error {
	if _, err := s.products.WithTx(tx).FindByIDForUpdate(ctx, productID); err != nil {
		if db.IsNotFound(err) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "Product not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock product")
	}
	return nil
}

func (s *service) rerate(ctx context.Context, tx *gorm.DB, productID uuid.UUID) error {
	counts, err := s.repo.WithTx(tx).CountByRating(ctx, productID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count reviews")
	}
	summary, avg := summarize(counts)
	if err := s.products.WithTx(tx).UpdateRating(ctx, productID, avg, summary.TotalReviews); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update product rating")
	}
	return nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Review, error) {
	review, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Review not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load review")
	}
	return review, nil
}

func cleanText(title, comment string) (string, string, error) {
	title = strings.TrimSpace(title)
	comment = strings.TrimSpace(comment)
	if utf8.RuneCountInString(title) > maxTitleLength {
		return "", "", pkgerrors.New(pkgerrors.CodeValidation, "title must be at most 100 characters")
	}
	if utf8.RuneCountInString(comment) > maxCommentLength {
		return "", "", pkgerrors.New(pkgerrors.CodeValidation, "comment must be at most 1000 characters")
	}
	return title, comment, nil
}

// displayName is the public author label: the local part of the email.
func displayName(email string) string {
	local, _, _ := strings.Cut(strings.TrimSpace(email), "@")
	if local == "" {
		return "Customer"
	}
	return local
}
