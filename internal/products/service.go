package products

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/pkg/cache"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/money"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/angelmondragon/storefront-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const cachePrefix = "products:"

var slugSanitizeRe = regexp.MustCompile(`[^a-z0-9]+`)

// Notifier delivers in-app notifications.
type Notifier interface {
	Notify(ctx context.Context, tx *gorm.DB, input notifications.NotifyInput) error
}

// Service exposes catalog reads and admin mutations.
type Service interface {
	List(ctx context.Context, input ListInput) (*ProductList, error)
	Get(ctx context.Context, id uuid.UUID) (*ProductDTO, error)
	Create(ctx context.Context, input CreateInput) (*ProductDTO, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*ProductDTO, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ServiceParams groups dependencies for the product service.
type ServiceParams struct {
	Repo     Repository
	Cache    cache.Cache
	Notifier Notifier
	Logger   *logger.Logger
	CacheTTL time.Duration
}

type service struct {
	repo     Repository
	cache    cache.Cache
	notifier Notifier
	logg     *logger.Logger
	ttl      time.Duration
	group    singleflight.Group
	now      func() time.Time
}

// ListInput carries raw catalog query parameters.
type ListInput struct {
	Category        string
	Search          string
	MinPrice        *float64
	MaxPrice        *float64
	InStock         bool
	Sort            string
	Page            int
	Limit           int
	IncludeInactive bool
}

// VariantInput describes a product variant in admin payloads.
type VariantInput struct {
	SKU             string  `json:"sku" validate:"required,max=64"`
	Name            string  `json:"name" validate:"required,max=120"`
	Stock           int     `json:"stock" validate:"gte=0"`
	PriceAdjustment float64 `json:"price_adjustment"`
}

// CreateInput is the admin payload for a new product.
type CreateInput struct {
	Name               string         `json:"name" validate:"required,max=200"`
	Slug               string         `json:"slug" validate:"omitempty,max=200"`
	Description        string         `json:"description" validate:"max=5000"`
	Category           string         `json:"category" validate:"required,max=80"`
	ImageURL           string         `json:"image_url" validate:"omitempty,url"`
	Price              float64        `json:"price" validate:"gt=0"`
	Stock              int            `json:"stock" validate:"gte=0"`
	WeightKg           float64        `json:"weight_kg" validate:"gte=0"`
	Variants           []VariantInput `json:"variants" validate:"omitempty,dive"`
	DiscountActive     bool           `json:"discount_active"`
	DiscountPercentage *float64       `json:"discount_percentage" validate:"omitempty,gte=0,lte=100"`
	DiscountAmount     *float64       `json:"discount_amount" validate:"omitempty,gte=0"`
	SalePrice          *float64       `json:"sale_price" validate:"omitempty,gte=0"`
	DiscountStartsAt   *time.Time     `json:"discount_starts_at"`
	DiscountEndsAt     *time.Time     `json:"discount_ends_at"`
	IsActive           *bool          `json:"is_active"`
}

// UpdateInput is a partial admin update; nil fields are left untouched.
type UpdateInput struct {
	Name               *string         `json:"name" validate:"omitempty,max=200"`
	Description        *string         `json:"description" validate:"omitempty,max=5000"`
	Category           *string         `json:"category" validate:"omitempty,max=80"`
	ImageURL           *string         `json:"image_url" validate:"omitempty,url"`
	Price              *float64        `json:"price" validate:"omitempty,gt=0"`
	Stock              *int            `json:"stock" validate:"omitempty,gte=0"`
	WeightKg           *float64        `json:"weight_kg" validate:"omitempty,gte=0"`
	Variants           *[]VariantInput `json:"variants" validate:"omitempty"`
	DiscountActive     *bool           `json:"discount_active"`
	DiscountPercentage *float64        `json:"discount_percentage" validate:"omitempty,gte=0,lte=100"`
	DiscountAmount     *float64        `json:"discount_amount" validate:"omitempty,gte=0"`
	SalePrice          *float64        `json:"sale_price" validate:"omitempty,gte=0"`
	DiscountStartsAt   *time.Time      `json:"discount_starts_at"`
	DiscountEndsAt     *time.Time      `json:"discount_ends_at"`
	IsActive           *bool           `json:"is_active"`
}

// NewService builds a product service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product repo is required")
	}
	if params.Cache == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cache is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	ttl := params.CacheTTL
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	return &service{
		repo:     params.Repo,
		cache:    params.Cache,
		notifier: params.Notifier,
		logg:     logg,
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

func (s *service) List(ctx context.Context, input ListInput) (*ProductList, error) {
	query, err := input.normalize()
	if err != nil {
		return nil, err
	}

	key := listCacheKey(query)
	var cached ProductList
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	result, err, _ := s.group.Do(key, func() (any, error) {
		rows, total, err := s.repo.List(ctx, query)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
		}

		now := s.now()
		items := make([]ProductDTO, 0, len(rows))
		for _, row := range rows {
			items = append(items, NewProductDTO(row, now))
		}
		list := &ProductList{
			Items:      items,
			Total:      total,
			Page:       query.Page.Number,
			Limit:      query.Page.Size,
			TotalPages: query.Page.TotalPages(total),
			HasMore:    int64(query.Page.Offset()+len(items)) < total,
		}
		s.cacheSet(ctx, key, list)
		return list, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*ProductList), nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*ProductDTO, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}

	key := cachePrefix + "detail:" + id.String()
	var cached ProductDTO
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if !product.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}

	dto := NewProductDTO(*product, s.now())
	s.cacheSet(ctx, key, dto)
	return &dto, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*ProductDTO, error) {
	product := &models.Product{
		Name:               strings.TrimSpace(input.Name),
		Description:        strings.TrimSpace(input.Description),
		Category:           strings.TrimSpace(input.Category),
		ImageURL:           strings.TrimSpace(input.ImageURL),
		Price:              money.Round(decimal.NewFromFloat(input.Price)),
		Stock:              input.Stock,
		WeightKg:           decimal.NewFromFloat(input.WeightKg),
		Variants:           toVariants(input.Variants),
		DiscountActive:     input.DiscountActive,
		DiscountPercentage: optionalDecimal(input.DiscountPercentage),
		DiscountAmount:     optionalDecimal(input.DiscountAmount),
		SalePrice:          optionalDecimal(input.SalePrice),
		DiscountStartsAt:   input.DiscountStartsAt,
		DiscountEndsAt:     input.DiscountEndsAt,
		IsActive:           true,
	}
	if input.IsActive != nil {
		product.IsActive = *input.IsActive
	}
	product.Slug = Slugify(input.Slug)
	if product.Slug == "" {
		product.Slug = Slugify(product.Name)
	}
	if err := validateProduct(product); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, product); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("product slug %q already exists", product.Slug))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product")
	}
	s.invalidate(ctx)

	dto := NewProductDTO(*product, s.now())
	return &dto, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*ProductDTO, error) {
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}

	now := s.now()
	oldFinal := FinalPrice(*product, now)
	applyUpdate(product, input)
	if err := validateProduct(product); err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update product")
	}
	s.invalidate(ctx)

	newFinal := FinalPrice(*product, now)
	if product.IsActive && newFinal.LessThan(oldFinal) {
		s.notifyPriceDrop(ctx, *product, oldFinal, newFinal)
	}

	dto := NewProductDTO(*product, now)
	return &dto, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete product")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	s.invalidate(ctx)
	return nil
}

// notifyPriceDrop tells every user holding the product in their cart. Failures are logged.
func (s *service) notifyPriceDrop(ctx context.Context, product models.Product, oldPrice, newPrice decimal.Decimal) {
	if s.notifier == nil {
		return
	}
	ctx = s.logg.WithField(ctx, "product_id", product.ID.String())

	holders, err := s.repo.ListCartHolders(ctx, product.ID)
	if err != nil {
		s.logg.Error(ctx, "products.price_drop.holders_failed", err)
		return
	}

	var errs error
	for _, userID := range holders {
		userID := userID
		errs = multierr.Append(errs, s.notifier.Notify(ctx, nil, notifications.NotifyInput{
			Audience: enums.NotificationAudienceUser,
			UserID:   &userID,
			Type:     enums.NotificationTypePriceDrop,
			Title:    "Price Drop Alert!",
			Message:  fmt.Sprintf("%s price dropped from %s to %s", product.Name, money.Format(oldPrice), money.Format(newPrice)),
			Link:     "/products/" + product.ID.String(),
		}))
	}
	if errs != nil {
		s.logg.Error(ctx, "products.price_drop.notify_failed", errs)
	}
}

func (s *service) invalidate(ctx context.Context) {
	if err := s.cache.DeletePrefix(ctx, cachePrefix); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "products.cache.invalidate_failed")
	}
}

func (s *service) cacheGet(ctx context.Context, key string, dst any) bool {
	ok, err := cache.GetJSON(ctx, s.cache, key, dst)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "products.cache.get_failed")
		return false
	}
	return ok
}

func (s *service) cacheSet(ctx context.Context, key string, value any) {
	if err := cache.SetJSON(ctx, s.cache, key, value, s.ttl); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "products.cache.set_failed")
	}
}

func (in ListInput) normalize() (ListQuery, error) {
	sort, err := enums.ParseProductSort(in.Sort)
	if err != nil {
		return ListQuery{}, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}
	query := ListQuery{
		Category:        strings.TrimSpace(in.Category),
		Search:          strings.TrimSpace(in.Search),
		InStockOnly:     in.InStock,
		IncludeInactive: in.IncludeInactive,
		Sort:            sort,
		Page:            pagination.NewPage(in.Page, in.Limit),
		MinPrice:        optionalDecimal(in.MinPrice),
		MaxPrice:        optionalDecimal(in.MaxPrice),
	}
	if query.MinPrice != nil && query.MaxPrice != nil && query.MinPrice.GreaterThan(*query.MaxPrice) {
		return ListQuery{}, pkgerrors.New(pkgerrors.CodeValidation, "min_price cannot exceed max_price")
	}
	return query, nil
}

func listCacheKey(q ListQuery) string {
	values := url.Values{}
	values.Set("category", strings.ToLower(q.Category))
	values.Set("search", strings.ToLower(q.Search))
	values.Set("sort", q.Sort.String())
	values.Set("page", strconv.Itoa(q.Page.Number))
	values.Set("limit", strconv.Itoa(q.Page.Size))
	values.Set("in_stock", strconv.FormatBool(q.InStockOnly))
	values.Set("all", strconv.FormatBool(q.IncludeInactive))
	if q.MinPrice != nil {
		values.Set("min", q.MinPrice.String())
	}
	if q.MaxPrice != nil {
		values.Set("max", q.MaxPrice.String())
	}
	return cachePrefix + "list:" + values.Encode()
}

// Slugify lowercases value and collapses anything non alphanumeric into dashes.
func Slugify(value string) string {
	slug := slugSanitizeRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(value)), "-")
	return strings.Trim(slug, "-")
}

func validateProduct(p *models.Product) error {
	if p.Name == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if p.Slug == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "slug is required")
	}
	if p.Category == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "category is required")
	}
	if !p.Price.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "price must be positive")
	}
	if p.Stock < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "stock cannot be negative")
	}
	if p.DiscountStartsAt != nil && p.DiscountEndsAt != nil && p.DiscountEndsAt.Before(*p.DiscountStartsAt) {
		return pkgerrors.New(pkgerrors.CodeValidation, "discount_ends_at must be after discount_starts_at")
	}
	seen := make(map[string]struct{}, len(p.Variants))
	for _, v := range p.Variants {
		if _, dup := seen[v.SKU]; dup {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("duplicate variant sku %q", v.SKU))
		}
		seen[v.SKU] = struct{}{}
	}
	return nil
}

func applyUpdate(p *models.Product, in UpdateInput) {
	if in.Name != nil {
		p.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		p.Description = strings.TrimSpace(*in.Description)
	}
	if in.Category != nil {
		p.Category = strings.TrimSpace(*in.Category)
	}
	if in.ImageURL != nil {
		p.ImageURL = strings.TrimSpace(*in.ImageURL)
	}
	if in.Price != nil {
		p.Price = money.Round(decimal.NewFromFloat(*in.Price))
	}
	if in.Stock != nil {
		p.Stock = *in.Stock
	}
	if in.WeightKg != nil {
		p.WeightKg = decimal.NewFromFloat(*in.WeightKg)
	}
	if in.Variants != nil {
		p.Variants = toVariants(*in.Variants)
	}
	if in.DiscountActive != nil {
		p.DiscountActive = *in.DiscountActive
	}
	if in.DiscountPercentage != nil {
		p.DiscountPercentage = optionalDecimal(in.DiscountPercentage)
	}
	if in.DiscountAmount != nil {
		p.DiscountAmount = optionalDecimal(in.DiscountAmount)
	}
	if in.SalePrice != nil {
		p.SalePrice = optionalDecimal(in.SalePrice)
	}
	if in.DiscountStartsAt != nil {
		p.DiscountStartsAt = in.DiscountStartsAt
	}
	if in.DiscountEndsAt != nil {
		p.DiscountEndsAt = in.DiscountEndsAt
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
}

func toVariants(in []VariantInput) types.ProductVariants {
	if len(in) == 0 {
		return nil
	}
	out := make(types.ProductVariants, 0, len(in))
	for _, v := range in {
		out = append(out, types.ProductVariant{
			SKU:             strings.TrimSpace(v.SKU),
			Name:            strings.TrimSpace(v.Name),
			Stock:           v.Stock,
			PriceAdjustment: money.Round(decimal.NewFromFloat(v.PriceAdjustment)),
		})
	}
	return out
}
