package wishlist

import (
	"context"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/google/uuid"
)

// ProductReader resolves wishlist entries to live catalog products.
type ProductReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
}

// Service manages a user's saved products.
type Service interface {
	List(ctx context.Context, userID uuid.UUID, params pagination.Params) (*ListResult, error)
	Add(ctx context.Context, userID, productID uuid.UUID) (*ItemDTO, error)
	Remove(ctx context.Context, userID, productID uuid.UUID) error
	Clear(ctx context.Context, userID uuid.UUID) (int64, error)
	Contains(ctx context.Context, userID, productID uuid.UUID) (bool, error)
}

type service struct {
	repo     Repository
	products ProductReader
	now      func() time.Time
}

func NewService(repo Repository, productReader ProductReader) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wishlist repo is required")
	}
	if productReader == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product reader is required")
	}
	return &service{repo: repo, products: productReader, now: time.Now}, nil
}

// List returns saved products newest first. Entries whose product was
// deactivated are left out of the page.
func (s *service) List(ctx context.Context, userID uuid.UUID, params pagination.Params) (*ListResult, error) {
	var cursor *pagination.Cursor
	if params.Cursor != "" {
		parsed, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		cursor = parsed
	}

	rows, next, err := s.repo.List(ctx, userID, params.Limit, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list wishlist")
	}

	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ProductID)
	}
	catalog := map[uuid.UUID]models.Product{}
	if len(ids) > 0 {
		found, err := s.products.FindByIDs(ctx, ids)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wishlist products")
		}
		for _, p := range found {
			catalog[p.ID] = p
		}
	}

	now := s.now()
	result := &ListResult{Items: make([]ItemDTO, 0, len(rows))}
	for _, row := range rows {
		product, ok := catalog[row.ProductID]
		if !ok || !product.IsActive {
			continue
		}
		result.Items = append(result.Items, newItemDTO(row, product, now))
	}
	if next != nil {
		result.Cursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

func (s *service) Add(ctx context.Context, userID, productID uuid.UUID) (*ItemDTO, error) {
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if !product.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Product not found")
	}

	created, err := s.repo.Add(ctx, userID, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add to wishlist")
	}
	if !created {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "Product already in wishlist")
	}

	now := s.now()
	dto := newItemDTO(models.WishlistItem{UserID: userID, ProductID: productID, CreatedAt: now}, *product, now)
	return &dto, nil
}

func (s *service) Remove(ctx context.Context, userID, productID uuid.UUID) error {
	removed, err := s.repo.Remove(ctx, userID, productID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove from wishlist")
	}
	if !removed {
		return pkgerrors.New(pkgerrors.CodeNotFound, "Product not in wishlist")
	}
	return nil
}

func (s *service) Clear(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.repo.Clear(ctx, userID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear wishlist")
	}
	return n, nil
}

func (s *service) Contains(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	ok, err := s.repo.Exists(ctx, userID, productID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check wishlist")
	}
	return ok, nil
}

func newItemDTO(row models.WishlistItem, p models.Product, now time.Time) ItemDTO {
	final := products.FinalPrice(p, now)
	return ItemDTO{
		ProductID:          p.ID,
		ProductName:        p.Name,
		Slug:               p.Slug,
		ImageURL:           p.ImageURL,
		Price:              p.Price.InexactFloat64(),
		FinalPrice:         final.InexactFloat64(),
		DiscountPercentage: products.SavingsPercentage(p.Price, final).InexactFloat64(),
		InStock:            p.Stock > 0,
		AddedAt:            row.CreatedAt,
	}
}
