package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/coupons"
	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/money"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

// Finalizer applies the side effects of a placed order: stock, coupon usage
// and cart clearing. It runs at most once per order.
type Finalizer interface {
	// Finalize reports false when the order had already been finalized.
	Finalize(ctx context.Context, orderID uuid.UUID, email string) (bool, error)
}

type notifier interface {
	Notify(ctx context.Context, tx *gorm.DB, input notifications.NotifyInput) error
}

// FinalizerParams groups finalizer dependencies.
type FinalizerParams struct {
	Transactor        db.Transactor
	Orders            orders.Repository
	Products          products.Repository
	Cart              cart.Repository
	Coupons           coupons.Evaluator
	Notifier          notifier
	Mailer            notifications.Mailer
	Logger            *logger.Logger
	LowStockThreshold int
}

// OrderFinalizer is the transactional Finalizer.
type OrderFinalizer struct {
	tx                db.Transactor
	orders            orders.Repository
	products          products.Repository
	cart              cart.Repository
	coupons           coupons.Evaluator
	notifier          notifier
	mailer            notifications.Mailer
	logg              *logger.Logger
	lowStockThreshold int
	now               func() time.Time
}

// NewFinalizer wires the order finalizer.
func NewFinalizer(params FinalizerParams) (*OrderFinalizer, error) {
	switch {
	case params.Transactor == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transactor is required")
	case params.Orders == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order repo is required")
	case params.Products == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product repo is required")
	case params.Cart == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart repo is required")
	case params.Coupons == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon evaluator is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &OrderFinalizer{
		tx:                params.Transactor,
		orders:            params.Orders,
		products:          params.Products,
		cart:              params.Cart,
		coupons:           params.Coupons,
		notifier:          params.Notifier,
		mailer:            params.Mailer,
		logg:              logg,
		lowStockThreshold: params.LowStockThreshold,
		now:               time.Now,
	}, nil
}

func (f *OrderFinalizer) Finalize(ctx context.Context, orderID uuid.UUID, email string) (bool, error) {
	var (
		order   *models.Order
		applied bool
	)
	err := f.tx.WithTx(ctx, func(tx *gorm.DB) error {
		loaded, err := f.orders.WithTx(tx).FindByIDForUpdate(ctx, orderID)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "Order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		order = loaded
		applied, err = f.finalizeInTx(ctx, tx, order)
		return err
	})
	if err != nil {
		return false, err
	}
	if applied {
		f.afterCommit(ctx, *order, email)
	}
	return applied, nil
}

// finalizeInTx claims the order through fulfilled_at first so a concurrent
// finalizer sees zero rows and backs off. Any later failure rolls the claim back.
func (f *OrderFinalizer) finalizeInTx(ctx context.Context, tx *gorm.DB, order *models.Order) (bool, error) {
	if order.Fulfilled() {
		return false, nil
	}
	if order.Status == enums.OrderStatusCancelled {
		return false, pkgerrors.New(pkgerrors.CodeBusinessRule, "Cannot finalize a cancelled order")
	}

	now := f.now()
	claimed, err := f.orders.WithTx(tx).MarkFulfilled(ctx, order.ID, now)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order fulfilled")
	}
	if !claimed {
		return false, nil
	}

	productRepo := f.products.WithTx(tx)
	for _, line := range order.Items {
		ok, err := productRepo.DecrementStock(ctx, line.ProductID, line.Quantity)
		if err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock")
		}
		if !ok {
			return false, insufficientStock(ctx, productRepo, line.ProductID, line.ProductName)
		}
	}

	if order.CouponID != nil {
		if err := f.coupons.Redeem(ctx, tx, *order.CouponID, order.ID, order.UserID); err != nil {
			return false, err
		}
	}

	if _, err := f.cart.WithTx(tx).ClearForUser(ctx, order.UserID); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}

	order.FulfilledAt = &now
	return true, nil
}

// afterCommit sends confirmations and stock alerts. Failures are logged only.
func (f *OrderFinalizer) afterCommit(ctx context.Context, order models.Order, email string) {
	ctx = f.logg.WithOrderID(ctx, order.ID.String())
	var errs error

	if f.mailer != nil && email != "" {
		errs = multierr.Append(errs, f.mailer.SendOrderConfirmation(ctx, notifications.OrderConfirmation{
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			UserID:        order.UserID,
			Email:         email,
			TotalAmount:   order.TotalAmount,
			ItemCount:     order.Items.TotalQuantity(),
			PaymentMethod: order.PaymentMethod.String(),
		}))
	}

	if f.notifier != nil {
		userID := order.UserID
		errs = multierr.Append(errs, f.notifier.Notify(ctx, nil, notifications.NotifyInput{
			Audience: enums.NotificationAudienceUser,
			UserID:   &userID,
			Type:     enums.NotificationTypeOrderUpdate,
			Title:    "Order Placed",
			Message:  fmt.Sprintf("Your order #%s has been placed successfully", order.OrderNumber),
			Link:     "/orders",
		}))
		errs = multierr.Append(errs, f.notifier.Notify(ctx, nil, notifications.NotifyInput{
			Audience: enums.NotificationAudienceAdmin,
			Type:     enums.NotificationTypeOrderUpdate,
			Title:    "New Order",
			Message:  fmt.Sprintf("Order #%s placed for %s", order.OrderNumber, money.Format(order.TotalAmount)),
			Link:     "/admin/orders",
		}))
		errs = multierr.Append(errs, f.alertLowStock(ctx, order))
	}

	if errs != nil {
		f.logg.Error(ctx, "checkout.post_commit_failed", errs)
	}
}

func (f *OrderFinalizer) alertLowStock(ctx context.Context, order models.Order) error {
	ids := make([]uuid.UUID, 0, len(order.Items))
	seen := make(map[uuid.UUID]struct{}, len(order.Items))
	for _, line := range order.Items {
		if _, dup := seen[line.ProductID]; dup {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}

	low, err := f.products.FindLowStock(ctx, ids, f.lowStockThreshold)
	if err != nil {
		return err
	}

	var errs error
	for _, product := range low {
		errs = multierr.Append(errs, f.notifier.Notify(ctx, nil, notifications.NotifyInput{
			Audience: enums.NotificationAudienceAdmin,
			Type:     enums.NotificationTypeStockAlert,
			Title:    "Low Stock Alert",
			Message:  fmt.Sprintf("%s is running low on stock. Only %d left", product.Name, product.Stock),
			Link:     "/products/" + product.ID.String(),
		}))
	}
	return errs
}

func insufficientStock(ctx context.Context, repo products.Repository, productID uuid.UUID, name string) error {
	product, err := repo.FindByID(ctx, productID)
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeBusinessRule, fmt.Sprintf("Product %s no longer available", name))
	}
	return pkgerrors.New(pkgerrors.CodeBusinessRule,
		fmt.Sprintf("Insufficient stock for %s. Only %d available", product.Name, product.Stock))
}
