package coupons

import (
	"context"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Evaluator is the slice of the coupon service the checkout pipeline depends on.
type Evaluator interface {
	Validate(ctx context.Context, code string, userID uuid.UUID, subtotal decimal.Decimal) (*Result, error)
	// Redeem consumes one use of the coupon for orderID inside tx. Redeeming
	// the same order twice is a no-op.
	Redeem(ctx context.Context, tx *gorm.DB, couponID, orderID, userID uuid.UUID) error
}

// Service adds the admin surface on top of Evaluator.
type Service interface {
	Evaluator
	ListAvailable(ctx context.Context) ([]CouponDTO, error)
	List(ctx context.Context) ([]CouponDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*CouponDTO, error)
	Create(ctx context.Context, input CreateInput) (*CouponDTO, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*CouponDTO, error)
	Toggle(ctx context.Context, id uuid.UUID) (*CouponDTO, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ServiceParams groups coupon service dependencies.
type ServiceParams struct {
	Repo    Repository
	Metrics *metrics.CheckoutMetrics
	Logger  *logger.Logger
}

type service struct {
	repo    Repository
	metrics *metrics.CheckoutMetrics
	logg    *logger.Logger
	now     func() time.Time
}

// CreateInput is the admin payload for a new coupon.
type CreateInput struct {
	Code              string     `json:"code" validate:"required,max=40"`
	Description       string     `json:"description" validate:"max=500"`
	DiscountType      string     `json:"discount_type" validate:"required,oneof=percentage flat"`
	DiscountValue     float64    `json:"discount_value" validate:"gt=0"`
	MinOrderAmount    float64    `json:"min_order_amount" validate:"gte=0"`
	MaxDiscountAmount *float64   `json:"max_discount_amount" validate:"omitempty,gt=0"`
	UsageLimit        *int       `json:"usage_limit" validate:"omitempty,gte=1"`
	PerUserLimit      int        `json:"per_user_limit" validate:"gte=0"`
	StartsAt          *time.Time `json:"starts_at"`
	ExpiresAt         *time.Time `json:"expires_at"`
	IsActive          *bool      `json:"is_active"`
}

// UpdateInput is a partial admin update.
type UpdateInput struct {
	Description       *string    `json:"description" validate:"omitempty,max=500"`
	DiscountType      *string    `json:"discount_type" validate:"omitempty,oneof=percentage flat"`
	DiscountValue     *float64   `json:"discount_value" validate:"omitempty,gt=0"`
	MinOrderAmount    *float64   `json:"min_order_amount" validate:"omitempty,gte=0"`
	MaxDiscountAmount *float64   `json:"max_discount_amount" validate:"omitempty,gt=0"`
	UsageLimit        *int       `json:"usage_limit" validate:"omitempty,gte=1"`
	PerUserLimit      *int       `json:"per_user_limit" validate:"omitempty,gte=1"`
	StartsAt          *time.Time `json:"starts_at"`
	ExpiresAt         *time.Time `json:"expires_at"`
	IsActive          *bool      `json:"is_active"`
}

// CouponDTO is the API shape of a coupon.
type CouponDTO struct {
	ID                uuid.UUID  `json:"id"`
	Code              string     `json:"code"`
	Description       string     `json:"description"`
	DiscountType      string     `json:"discount_type"`
	DiscountValue     float64    `json:"discount_value"`
	MinOrderAmount    float64    `json:"min_order_amount"`
	MaxDiscountAmount *float64   `json:"max_discount_amount,omitempty"`
	UsageLimit        *int       `json:"usage_limit,omitempty"`
	PerUserLimit      int        `json:"per_user_limit"`
	UsageCount        int        `json:"usage_count"`
	StartsAt          *time.Time `json:"starts_at,omitempty"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	IsActive          bool       `json:"is_active"`
	CreatedAt         time.Time  `json:"created_at"`
}

// NewService wires the coupon service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon repo is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: params.Repo, metrics: params.Metrics, logg: logg, now: time.Now}, nil
}

func (s *service) Validate(ctx context.Context, code string, userID uuid.UUID, subtotal decimal.Decimal) (*Result, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required")
	}

	coupon, err := s.repo.FindByCode(ctx, code)
	if err != nil && !db.IsNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}
	if err != nil {
		coupon = nil
	}

	result := Evaluate(coupon, userID, subtotal, s.now())
	if !result.Valid {
		s.metrics.IncCouponRejection(result.reason)
	}
	return &result, nil
}

func (s *service) Redeem(ctx context.Context, tx *gorm.DB, couponID, orderID, userID uuid.UUID) error {
	repo := s.repo.WithTx(tx)

	if _, err := repo.FindRedemption(ctx, orderID); err == nil {
		return nil
	} else if !db.IsNotFound(err) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon redemption")
	}

	ok, err := repo.IncrementUsage(ctx, couponID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment coupon usage")
	}
	if !ok {
		s.metrics.IncCouponRejection(reasonInactive)
		return pkgerrors.New(pkgerrors.CodeBusinessRule, MsgInactive)
	}

	coupon, err := repo.FindByID(ctx, couponID)
	if err != nil {
		if db.IsNotFound(err) {
			return pkgerrors.New(pkgerrors.CodeBusinessRule, MsgInvalidCode)
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload coupon")
	}
	if !CanUserRedeem(*coupon, userID) {
		s.metrics.IncCouponRejection(reasonUserLimit)
		return pkgerrors.New(pkgerrors.CodeBusinessRule, MsgUserLimit)
	}

	coupon.UsedBy = append(coupon.UsedBy, userID.String())
	if err := repo.Save(ctx, coupon); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record coupon user")
	}

	if err := repo.CreateRedemption(ctx, &models.CouponRedemption{
		CouponID: couponID,
		OrderID:  orderID,
		UserID:   userID,
	}); err != nil {
		if db.IsUniqueViolation(err, "") {
			return pkgerrors.New(pkgerrors.CodeConflict, "coupon already redeemed for this order")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create coupon redemption")
	}
	return nil
}

func (s *service) ListAvailable(ctx context.Context) ([]CouponDTO, error) {
	rows, err := s.repo.List(ctx, true)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list coupons")
	}
	now := s.now()
	out := make([]CouponDTO, 0, len(rows))
	for _, row := range rows {
		if Available(row, now) {
			out = append(out, newCouponDTO(row))
		}
	}
	return out, nil
}

func (s *service) List(ctx context.Context) ([]CouponDTO, error) {
	rows, err := s.repo.List(ctx, false)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list coupons")
	}
	out := make([]CouponDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, newCouponDTO(row))
	}
	return out, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*CouponDTO, error) {
	coupon, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := newCouponDTO(*coupon)
	return &dto, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*CouponDTO, error) {
	discountType, err := enums.ParseDiscountType(input.DiscountType)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}

	coupon := &models.Coupon{
		Code:              strings.ToUpper(strings.TrimSpace(input.Code)),
		Description:       strings.TrimSpace(input.Description),
		DiscountType:      discountType,
		DiscountValue:     decimal.NewFromFloat(input.DiscountValue),
		MinOrderAmount:    decimal.NewFromFloat(input.MinOrderAmount),
		MaxDiscountAmount: optionalDecimal(input.MaxDiscountAmount),
		UsageLimit:        input.UsageLimit,
		PerUserLimit:      input.PerUserLimit,
		StartsAt:          input.StartsAt,
		ExpiresAt:         input.ExpiresAt,
		IsActive:          true,
	}
	if coupon.PerUserLimit <= 0 {
		coupon.PerUserLimit = 1
	}
	if input.IsActive != nil {
		coupon.IsActive = *input.IsActive
	}
	if err := validateCoupon(coupon); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, coupon); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "Coupon code already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create coupon")
	}
	s.logg.Info(s.logg.WithField(ctx, "coupon_code", coupon.Code), "coupons.created")

	dto := newCouponDTO(*coupon)
	return &dto, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*CouponDTO, error) {
	coupon, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.DiscountType != nil {
		discountType, err := enums.ParseDiscountType(*input.DiscountType)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
		}
		coupon.DiscountType = discountType
	}
	if input.Description != nil {
		coupon.Description = strings.TrimSpace(*input.Description)
	}
	if input.DiscountValue != nil {
		coupon.DiscountValue = decimal.NewFromFloat(*input.DiscountValue)
	}
	if input.MinOrderAmount != nil {
		coupon.MinOrderAmount = decimal.NewFromFloat(*input.MinOrderAmount)
	}
	if input.MaxDiscountAmount != nil {
		coupon.MaxDiscountAmount = optionalDecimal(input.MaxDiscountAmount)
	}
	if input.UsageLimit != nil {
		coupon.UsageLimit = input.UsageLimit
	}
	if input.PerUserLimit != nil {
		coupon.PerUserLimit = *input.PerUserLimit
	}
	if input.StartsAt != nil {
		coupon.StartsAt = input.StartsAt
	}
	if input.ExpiresAt != nil {
		coupon.ExpiresAt = input.ExpiresAt
	}
	if input.IsActive != nil {
		coupon.IsActive = *input.IsActive
	}
	if err := validateCoupon(coupon); err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, coupon); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update coupon")
	}
	dto := newCouponDTO(*coupon)
	return &dto, nil
}

func (s *service) Toggle(ctx context.Context, id uuid.UUID) (*CouponDTO, error) {
	coupon, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	coupon.IsActive = !coupon.IsActive
	if err := s.repo.Save(ctx, coupon); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "toggle coupon")
	}
	dto := newCouponDTO(*coupon)
	return &dto, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete coupon")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeNotFound, "Coupon not found")
	}
	return nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	coupon, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Coupon not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}
	return coupon, nil
}

func validateCoupon(c *models.Coupon) error {
	if c.Code == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "code is required")
	}
	if !c.DiscountValue.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "discount_value must be positive")
	}
	if c.DiscountType == enums.DiscountTypePercentage && c.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "percentage discount cannot exceed 100")
	}
	if c.MinOrderAmount.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "min_order_amount cannot be negative")
	}
	if c.PerUserLimit < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "per_user_limit must be at least 1")
	}
	if c.StartsAt != nil && c.ExpiresAt != nil && c.ExpiresAt.Before(*c.StartsAt) {
		return pkgerrors.New(pkgerrors.CodeValidation, "expires_at must be after starts_at")
	}
	return nil
}

func optionalDecimal(v *float64) *decimal.Decimal {
	if v == nil {
		return nil
	}
	d := decimal.NewFromFloat(*v)
	return &d
}

func newCouponDTO(c models.Coupon) CouponDTO {
	dto := CouponDTO{
		ID:             c.ID,
		Code:           c.Code,
		Description:    c.Description,
		DiscountType:   c.DiscountType.String(),
		DiscountValue:  c.DiscountValue.InexactFloat64(),
		MinOrderAmount: c.MinOrderAmount.InexactFloat64(),
		UsageLimit:     c.UsageLimit,
		PerUserLimit:   c.PerUserLimit,
		UsageCount:     c.UsageCount,
		StartsAt:       c.StartsAt,
		ExpiresAt:      c.ExpiresAt,
		IsActive:       c.IsActive,
		CreatedAt:      c.CreatedAt,
	}
	if c.MaxDiscountAmount != nil {
		max := c.MaxDiscountAmount.InexactFloat64()
		dto.MaxDiscountAmount = &max
	}
	return dto
}

// ValidationDTO is the API shape of a coupon preview.
type ValidationDTO struct {
	Valid          bool     `json:"valid"`
	Message        string   `json:"message"`
	DiscountAmount *float64 `json:"discount_amount,omitempty"`
	CouponCode     string   `json:"coupon_code,omitempty"`
}

// NewValidationDTO maps an evaluation result to its API shape.
func NewValidationDTO(r *Result) ValidationDTO {
	if r == nil {
		return ValidationDTO{}
	}
	dto := ValidationDTO{Valid: r.Valid, Message: r.Message}
	if r.Valid {
		amount := r.DiscountAmount.InexactFloat64()
		dto.DiscountAmount = &amount
		if r.Coupon != nil {
			dto.CouponCode = r.Coupon.Code
		}
	}
	return dto
}
