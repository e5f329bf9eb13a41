package cart

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductReader loads catalog products for stock checks and price snapshots.
type ProductReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

// Service manages the signed-in user's cart.
type Service interface {
	Get(ctx context.Context, userID uuid.UUID) (*CartDTO, error)
	Add(ctx context.Context, userID uuid.UUID, input AddInput) (*ItemDTO, error)
	// UpdateQuantity returns nil when a zero quantity removed the line.
	UpdateQuantity(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*ItemDTO, error)
	Remove(ctx context.Context, userID, itemID uuid.UUID) error
	Clear(ctx context.Context, userID uuid.UUID) error
}

// AddInput is the payload for adding a product to the cart.
type AddInput struct {
	ProductID  uuid.UUID `json:"product_id" validate:"required"`
	VariantSKU string    `json:"variant_sku" validate:"omitempty,max=64"`
	Quantity   int       `json:"quantity" validate:"required,gt=0,lte=100"`
}

// ItemDTO is one cart line with its snapshot subtotal.
type ItemDTO struct {
	ID           uuid.UUID `json:"id"`
	ProductID    uuid.UUID `json:"product_id"`
	VariantSKU   string    `json:"variant_sku,omitempty"`
	ProductName  string    `json:"product_name"`
	ProductPrice float64   `json:"product_price"`
	ProductImage string    `json:"product_image,omitempty"`
	Quantity     int       `json:"quantity"`
	Subtotal     float64   `json:"subtotal"`
}

// CartDTO summarizes the user's cart.
type CartDTO struct {
	Items      []ItemDTO `json:"items"`
	TotalItems int       `json:"total_items"`
	TotalPrice float64   `json:"total_price"`
}

type service struct {
	repo     Repository
	products ProductReader
	now      func() time.Time
}

// NewService wires the cart service.
func NewService(repo Repository, productReader ProductReader) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart repo is required")
	}
	if productReader == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product reader is required")
	}
	return &service{repo: repo, products: productReader, now: time.Now}, nil
}

func (s *service) Get(ctx context.Context, userID uuid.UUID) (*CartDTO, error) {
	items, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}

	out := &CartDTO{Items: make([]ItemDTO, 0, len(items))}
	total := decimal.Zero
	for _, item := range items {
		dto := newItemDTO(item)
		out.Items = append(out.Items, dto)
		total = total.Add(lineSubtotal(item))
	}
	out.TotalItems = len(out.Items)
	out.TotalPrice = money.Round(total).InexactFloat64()
	return out, nil
}

func (s *service) Add(ctx context.Context, userID uuid.UUID, input AddInput) (*ItemDTO, error) {
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	sku := strings.TrimSpace(input.VariantSKU)

	product, err := s.loadProduct(ctx, input.ProductID, "Product not found")
	if err != nil {
		return nil, err
	}
	if sku != "" {
		if _, ok := product.Variants.Find(sku); !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("variant %q not found", sku))
		}
	}
	if product.Stock < input.Quantity {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, fmt.Sprintf("Only %d items available in stock", product.Stock))
	}

	existing, err := s.repo.FindLine(ctx, userID, product.ID, sku)
	switch {
	case err == nil:
		merged := existing.Quantity + input.Quantity
		if product.Stock < merged {
			return nil, pkgerrors.New(pkgerrors.CodeBusinessRule,
				fmt.Sprintf("Cannot add %d more. Only %d items available", input.Quantity, product.Stock-existing.Quantity))
		}
		existing.Quantity = merged
		if err := s.repo.Save(ctx, existing); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
		}
		dto := newItemDTO(*existing)
		return &dto, nil
	case !db.IsNotFound(err):
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
	}

	item := &models.CartItem{
		UserID:       userID,
		ProductID:    product.ID,
		VariantSKU:   sku,
		Quantity:     input.Quantity,
		ProductName:  product.Name,
		ProductPrice: products.VariantPrice(*product, sku, s.now()),
		ProductImage: product.ImageURL,
	}
	if err := s.repo.Create(ctx, item); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "cart item already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart item")
	}
	dto := newItemDTO(*item)
	return &dto, nil
}

func (s *service) UpdateQuantity(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*ItemDTO, error) {
	if quantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity cannot be negative")
	}
	item, err := s.ownedItem(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}

	if quantity == 0 {
		if err := s.repo.Delete(ctx, item.ID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart item")
		}
		return nil, nil
	}

	product, err := s.loadProduct(ctx, item.ProductID, "Product no longer available")
	if err != nil {
		return nil, err
	}
	if product.Stock < quantity {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, fmt.Sprintf("Only %d items available in stock", product.Stock))
	}

	item.Quantity = quantity
	item.ProductPrice = products.VariantPrice(*product, item.VariantSKU, s.now())
	if err := s.repo.Save(ctx, item); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
	}
	dto := newItemDTO(*item)
	return &dto, nil
}

func (s *service) Remove(ctx context.Context, userID, itemID uuid.UUID) error {
	item, err := s.ownedItem(ctx, userID, itemID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, item.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart item")
	}
	return nil
}

func (s *service) Clear(ctx context.Context, userID uuid.UUID) error {
	if _, err := s.repo.ClearForUser(ctx, userID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return nil
}

func (s *service) ownedItem(ctx context.Context, userID, itemID uuid.UUID) (*models.CartItem, error) {
	item, err := s.repo.FindByID(ctx, itemID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Cart item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
	}
	if item.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "Not authorized to modify this cart item")
	}
	return item, nil
}

func (s *service) loadProduct(ctx context.Context, id uuid.UUID, missingMsg string) (*models.Product, error) {
	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, missingMsg)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if !product.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, missingMsg)
	}
	return product, nil
}

func lineSubtotal(item models.CartItem) decimal.Decimal {
	return item.ProductPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
}

func newItemDTO(item models.CartItem) ItemDTO {
	return ItemDTO{
		ID:           item.ID,
		ProductID:    item.ProductID,
		VariantSKU:   item.VariantSKU,
		ProductName:  item.ProductName,
		ProductPrice: item.ProductPrice.InexactFloat64(),
		ProductImage: item.ProductImage,
		Quantity:     item.Quantity,
		Subtotal:     money.Round(lineSubtotal(item)).InexactFloat64(),
	}
}
