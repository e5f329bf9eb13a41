package checkout

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/coupons"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/shipping"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const maxOrderNumberAttempts = 3

var errOrderNumberTaken = errors.New("order number taken")

type productLoader interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
}

// Service places orders from the shopper's cart.
type Service interface {
	PlaceOrder(ctx context.Context, buyer Buyer, input PlaceOrderInput) (*orders.OrderDTO, error)
	// Preview prices the current cart without persisting anything.
	Preview(ctx context.Context, buyer Buyer, input PreviewInput) (*BreakdownDTO, error)
}

// Buyer identifies who is checking out.
type Buyer struct {
	ID    uuid.UUID
	Email string
}

// PlaceOrderInput is the checkout payload.
type PlaceOrderInput struct {
	ShippingAddress types.ShippingAddress `json:"shipping_address" validate:"required"`
	PaymentMethod   string                `json:"payment_method" validate:"required,oneof=cod razorpay"`
	CouponCode      string                `json:"coupon_code" validate:"omitempty,max=40"`
}

// PreviewInput prices the cart for a destination.
type PreviewInput struct {
	Pincode    string `json:"pincode" validate:"omitempty,numeric,len=6"`
	State      string `json:"state" validate:"max=80"`
	CouponCode string `json:"coupon_code" validate:"omitempty,max=40"`
}

// BreakdownDTO is the priced cart returned by Preview.
type BreakdownDTO struct {
	Subtotal       float64 `json:"subtotal"`
	DiscountAmount float64 `json:"discount_amount"`
	ShippingCost   float64 `json:"shipping_cost"`
	PlatformFee    float64 `json:"tax"`
	TotalAmount    float64 `json:"total_amount"`
	ShippingZone   string  `json:"shipping_zone"`
	EstimatedDays  string  `json:"estimated_days"`
	FreeShipping   bool    `json:"free_shipping"`
	CouponMessage  string  `json:"coupon_message,omitempty"`
}

// ServiceParams groups checkout dependencies.
type ServiceParams struct {
	Transactor db.Transactor
	Cart       cart.Repository
	Products   productLoader
	Orders     orders.Repository
	Coupons    coupons.Evaluator
	Shipping   shipping.Calculator
	Pricer     *Pricer
	Finalizer  *OrderFinalizer
	Metrics    *metrics.CheckoutMetrics
	Logger     *logger.Logger
}

type service struct {
	tx        db.Transactor
	cart      cart.Repository
	products  productLoader
	orders    orders.Repository
	coupons   coupons.Evaluator
	shipping  shipping.Calculator
	pricer    *Pricer
	finalizer *OrderFinalizer
	metrics   *metrics.CheckoutMetrics
	logg      *logger.Logger
	now       func() time.Time
	newNumber func(time.Time) (string, error)
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Transactor == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transactor is required")
	case params.Cart == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart repo is required")
	case params.Products == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product loader is required")
	case params.Orders == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order repo is required")
	case params.Coupons == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon evaluator is required")
	case params.Shipping == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping calculator is required")
	case params.Pricer == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pricer is required")
	case params.Finalizer == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "finalizer is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		tx:        params.Transactor,
		cart:      params.Cart,
		products:  params.Products,
		orders:    params.Orders,
		coupons:   params.Coupons,
		shipping:  params.Shipping,
		pricer:    params.Pricer,
		finalizer: params.Finalizer,
		metrics:   params.Metrics,
		logg:      logg,
		now:       time.Now,
		newNumber: NewOrderNumber,
	}, nil
}

// quote is everything PlaceOrder and Preview compute before persisting.
type quote struct {
	breakdown Breakdown
	shipping  shipping.Quote
	coupon    *coupons.Result
}

func (s *service) PlaceOrder(ctx context.Context, buyer Buyer, input PlaceOrderInput) (*orders.OrderDTO, error) {
	started := s.now()
	if buyer.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "Not authenticated")
	}
	method, err := enums.ParsePaymentMethod(input.PaymentMethod)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "Invalid payment method")
	}
	address := input.ShippingAddress.Normalize()
	if address.Pincode == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Shipping address is required")
	}

	ctx = s.logg.WithUserID(ctx, buyer.ID.String())

	items, err := s.cart.ListByUser(ctx, buyer.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	q, err := s.price(ctx, buyer.ID, items, address.Pincode, address.State, input.CouponCode, method.String(), true)
	if err != nil {
		s.metrics.IncCheckoutFailure(failureReason(err))
		return nil, err
	}

	order := s.buildOrder(buyer.ID, method, address, q)

	var finalized bool
	for attempt := 1; ; attempt++ {
		number, err := s.newNumber(s.now())
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate order number")
		}
		order.ID = uuid.Nil
		order.OrderNumber = number
		order.FulfilledAt = nil

		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			if err := s.orders.WithTx(tx).Create(ctx, order); err != nil {
				if db.IsUniqueViolation(err, "") {
					return errOrderNumberTaken
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
			}
			if method.Online() {
				return nil
			}
			finalized, err = s.finalizer.finalizeInTx(ctx, tx, order)
			return err
		})
		if errors.Is(err, errOrderNumberTaken) && attempt < maxOrderNumberAttempts {
			s.logg.Warn(s.logg.WithField(ctx, "order_number", number), "checkout.order_number_collision")
			continue
		}
		if errors.Is(err, errOrderNumberTaken) {
			err = pkgerrors.New(pkgerrors.CodeConflict, "Could not allocate an order number")
		}
		if err != nil {
			s.metrics.IncCheckoutFailure(failureReason(err))
			return nil, err
		}
		break
	}

	if finalized {
		s.finalizer.afterCommit(ctx, *order, buyer.Email)
	}

	s.metrics.IncOrderPlaced(method.String())
	s.metrics.ObserveCheckout(method.String(), s.now().Sub(started))
	s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "checkout.order_placed")

	dto := orders.NewOrderDTO(*order)
	return &dto, nil
}

func (s *service) Preview(ctx context.Context, buyer Buyer, input PreviewInput) (*BreakdownDTO, error) {
	if buyer.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "Not authenticated")
	}
	items, err := s.cart.ListByUser(ctx, buyer.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	q, err := s.price(ctx, buyer.ID, items, strings.TrimSpace(input.Pincode), strings.TrimSpace(input.State), input.CouponCode, "", false)
	if err != nil {
		return nil, err
	}

	dto := &BreakdownDTO{
		Subtotal:       q.breakdown.Subtotal.InexactFloat64(),
		DiscountAmount: q.breakdown.DiscountAmount.InexactFloat64(),
		ShippingCost:   q.breakdown.ShippingCost.InexactFloat64(),
		PlatformFee:    q.breakdown.PlatformFee.InexactFloat64(),
		TotalAmount:    q.breakdown.TotalAmount.InexactFloat64(),
		ShippingZone:   q.shipping.ZoneName,
		EstimatedDays:  q.shipping.EstimatedDays,
		FreeShipping:   q.shipping.FreeShipping,
	}
	if q.coupon != nil {
		dto.CouponMessage = q.coupon.Message
	}
	return dto, nil
}

// price resolves the cart, applies the coupon and quotes shipping. With
// strictCoupon an invalid coupon aborts; otherwise it is reported and skipped.
func (s *service) price(ctx context.Context, userID uuid.UUID, items []models.CartItem, pincode, state, couponCode, paymentMode string, strictCoupon bool) (*quote, error) {
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "Cart is empty")
	}

	catalog, err := s.loadCatalog(ctx, items)
	if err != nil {
		return nil, err
	}
	lines, err := ResolveLines(items, catalog)
	if err != nil {
		return nil, err
	}

	now := s.now()
	_, subtotal, weight := s.pricer.PriceItems(lines, now)

	q := &quote{}
	discount := decimal.Zero
	if code := strings.TrimSpace(couponCode); code != "" {
		result, err := s.coupons.Validate(ctx, code, userID, subtotal)
		if err != nil {
			return nil, err
		}
		if !result.Valid && strictCoupon {
			return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, result.Message)
		}
		if result.Valid {
			discount = result.DiscountAmount
		}
		q.coupon = result
	}

	afterDiscount := subtotal.Sub(discount)
	shipQuote, err := s.shipping.Calculate(ctx, shipping.Request{
		Pincode:     pincode,
		State:       state,
		Subtotal:    afterDiscount,
		WeightKg:    weight,
		PaymentMode: paymentMode,
		CODAmount:   afterDiscount,
	})
	if err != nil {
		return nil, err
	}

	q.shipping = shipQuote
	q.breakdown = s.pricer.PriceOrder(lines, discount, shipQuote.ShippingCost, now)
	return q, nil
}

func (s *service) loadCatalog(ctx context.Context, items []models.CartItem) (map[uuid.UUID]models.Product, error) {
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	found, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	catalog := make(map[uuid.UUID]models.Product, len(found))
	for _, p := range found {
		catalog[p.ID] = p
	}
	return catalog, nil
}

func (s *service) buildOrder(userID uuid.UUID, method enums.PaymentMethod, address types.ShippingAddress, q *quote) *models.Order {
	order := &models.Order{
		UserID:            userID,
		Items:             q.breakdown.Items,
		Subtotal:          q.breakdown.Subtotal,
		DiscountAmount:    q.breakdown.DiscountAmount,
		ShippingCost:      q.breakdown.ShippingCost,
		Tax:               q.breakdown.PlatformFee,
		TotalAmount:       q.breakdown.TotalAmount,
		Status:            enums.OrderStatusPending,
		PaymentMethod:     method,
		PaymentStatus:     method.InitialPaymentStatus(),
		ShippingAddress:   address,
		ShippingZone:      q.shipping.ZoneName,
		EstimatedDelivery: q.shipping.EstimatedDays,
	}
	if q.coupon != nil && q.coupon.Valid && q.coupon.Coupon != nil {
		id := q.coupon.Coupon.ID
		code := q.coupon.Coupon.Code
		order.CouponID = &id
		order.CouponCode = &code
	}
	return order
}

func failureReason(err error) string {
	if typed := pkgerrors.As(err); typed != nil {
		return strings.ToLower(string(typed.Code()))
	}
	return "unknown"
}
