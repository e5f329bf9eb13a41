package checkout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/coupons"
	"github.com/angelmondragon/storefront-backend/internal/dbtest"
	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/internal/shipping"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notifications.NotifyInput
}

func (n *recordingNotifier) Notify(_ context.Context, _ *gorm.DB, input notifications.NotifyInput) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, input)
	return nil
}

func (n *recordingNotifier) titles() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, sent := range n.sent {
		out = append(out, sent.Title)
	}
	return out
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []notifications.OrderConfirmation
}

func (m *recordingMailer) SendOrderConfirmation(_ context.Context, msg notifications.OrderConfirmation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

type fixture struct {
	conn      *gorm.DB
	svc       *service
	finalizer *OrderFinalizer
	products  products.Repository
	cart      cart.Repository
	orders    orders.Repository
	coupons   coupons.Repository
	notifier  *recordingNotifier
	mailer    *recordingMailer
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	tx := db.FromGorm(conn)

	productRepo := products.NewRepository(conn)
	cartRepo := cart.NewRepository(conn)
	orderRepo := orders.NewRepository(conn)
	couponRepo := coupons.NewRepository(conn)

	couponSvc, err := coupons.NewService(coupons.ServiceParams{Repo: couponRepo})
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	mailer := &recordingMailer{}
	fin, err := NewFinalizer(FinalizerParams{
		Transactor:        tx,
		Orders:            orderRepo,
		Products:          productRepo,
		Cart:              cartRepo,
		Coupons:           couponSvc,
		Notifier:          notifier,
		Mailer:            mailer,
		LowStockThreshold: 5,
	})
	require.NoError(t, err)

	pricer, err := NewPricer(dec("0.02"))
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Transactor: tx,
		Cart:       cartRepo,
		Products:   productRepo,
		Orders:     orderRepo,
		Coupons:    couponSvc,
		Shipping:   shipping.NewFlatRate(dec("150"), dec("1499")),
		Pricer:     pricer,
		Finalizer:  fin,
	})
	require.NoError(t, err)

	return fixture{
		conn:      conn,
		svc:       svc.(*service),
		finalizer: fin,
		products:  productRepo,
		cart:      cartRepo,
		orders:    orderRepo,
		coupons:   couponRepo,
		notifier:  notifier,
		mailer:    mailer,
	}
}

func (f fixture) seedProduct(t *testing.T, name, price string, stock int) *models.Product {
	t.Helper()
	p := &models.Product{
		Name:     name,
		Slug:     products.Slugify(name),
		Category: "home",
		Price:    dec(price),
		Stock:    stock,
		WeightKg: dec("1"),
		IsActive: true,
	}
	require.NoError(t, f.products.Create(context.Background(), p))
	return p
}

func (f fixture) addToCart(t *testing.T, userID uuid.UUID, p *models.Product, qty int) {
	t.Helper()
	require.NoError(t, f.cart.Create(context.Background(), &models.CartItem{
		UserID:       userID,
		ProductID:    p.ID,
		Quantity:     qty,
		ProductName:  p.Name,
		ProductPrice: p.Price,
	}))
}

func (f fixture) seedFlatCoupon(t *testing.T, code, value string, perUser int) *models.Coupon {
	t.Helper()
	c := &models.Coupon{
		Code:           code,
		DiscountType:   enums.DiscountTypeFlat,
		DiscountValue:  dec(value),
		MinOrderAmount: decimal.Zero,
		PerUserLimit:   perUser,
		IsActive:       true,
	}
	require.NoError(t, f.coupons.Create(context.Background(), c))
	return c
}

func (f fixture) stockOf(t *testing.T, id uuid.UUID) int {
	t.Helper()
	p, err := f.products.FindByID(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func testAddress() types.ShippingAddress {
	return types.ShippingAddress{
		FullName:     "Asha Rao",
		Phone:        "9876543210",
		AddressLine1: "12 MG Road",
		City:         "Bengaluru",
		State:        "Karnataka",
		Pincode:      "560001",
	}
}

func TestPlaceOrderCODBelowFreeShipping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer := Buyer{ID: uuid.New(), Email: "asha@example.com"}
	lamp := f.seedProduct(t, "Brass Lamp", "500", 4)
	f.addToCart(t, buyer.ID, lamp, 2)

	order, err := f.svc.PlaceOrder(ctx, buyer, PlaceOrderInput{ShippingAddress: testAddress(), PaymentMethod: "cod"})
	require.NoError(t, err)

	assert.Equal(t, 1000.0, order.Subtotal)
	assert.Equal(t, 150.0, order.ShippingCost)
	assert.Equal(t, 20.0, order.PlatformFee)
	assert.Equal(t, 1170.0, order.TotalAmount)
	assert.Equal(t, enums.OrderStatusPending.String(), order.Status)
	assert.Equal(t, enums.PaymentStatusCOD.String(), order.PaymentStatus)

	assert.Equal(t, 2, f.stockOf(t, lamp.ID))
	items, err := f.cart.ListByUser(ctx, buyer.ID)
	require.NoError(t, err)
	assert.Empty(t, items)

	stored, err := f.orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, stored.Fulfilled())

	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "asha@example.com", f.mailer.sent[0].Email)
	assert.ElementsMatch(t, []string{"Order Placed", "New Order", "Low Stock Alert"}, f.notifier.titles())
}

func TestPlaceOrderFlatCouponFreeShipping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer := Buyer{ID: uuid.New()}
	rug := f.seedProduct(t, "Wool Rug", "2000", 10)
	coupon := f.seedFlatCoupon(t, "FLAT200", "200", 1)
	f.addToCart(t, buyer.ID, rug, 1)

	order, err := f.svc.PlaceOrder(ctx, buyer, PlaceOrderInput{
		ShippingAddress: testAddress(),
		PaymentMethod:   "cod",
		CouponCode:      "flat200",
	})
	require.NoError(t, err)

	assert.Equal(t, 2000.0, order.Subtotal)
	assert.Equal(t, 200.0, order.DiscountAmount)
	assert.Equal(t, 0.0, order.ShippingCost)
	assert.Equal(t, 36.0, order.PlatformFee)
	assert.Equal(t, 1836.0, order.TotalAmount)

	stored, err := f.coupons.FindByID(ctx, coupon.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.UsageCount)
	assert.Equal(t, 1, stored.RedemptionsBy(buyer.ID))
	assert.Empty(t, f.mailer.sent, "no email without an address")
}

func TestPlaceOrderInsufficientStockCreatesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer := Buyer{ID: uuid.New()}
	stool := f.seedProduct(t, "Cane Stool", "300", 3)
	f.addToCart(t, buyer.ID, stool, 5)

	_, err := f.svc.PlaceOrder(ctx, buyer, PlaceOrderInput{ShippingAddress: testAddress(), PaymentMethod: "cod"})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeBusinessRule, pkgerrors.As(err).Code())
	assert.Equal(t, "Insufficient stock for Cane Stool. Only 3 available", pkgerrors.As(err).Message())

	var count int64
	require.NoError(t, f.conn.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Equal(t, 3, f.stockOf(t, stool.ID))
}

func TestPlaceOrderPerUserCouponLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer := Buyer{ID: uuid.New()}
	rug := f.seedProduct(t, "Jute Rug", "2000", 10)
	f.seedFlatCoupon(t, "ONCE", "200", 1)

	f.addToCart(t, buyer.ID, rug, 1)
	_, err := f.svc.PlaceOrder(ctx, buyer, PlaceOrderInput{ShippingAddress: testAddress(), PaymentMethod: "cod", CouponCode: "ONCE"})
	require.NoError(t, err)

	f.addToCart(t, buyer.ID, rug, 1)
	_, err = f.svc.PlaceOrder(ctx, buyer, PlaceOrderInput{ShippingAddress: testAddress(), PaymentMethod: "cod", CouponCode: "ONCE"})
	require.Error(t, err)
	assert.Equal(t, coupons.MsgUserLimit, pkgerrors.As(err).Message())
	assert.Equal(t, 9, f.stockOf(t, rug.ID))
}

func TestPlaceOrderEmptyCart(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.PlaceOrder(context.Background(), Buyer{ID: uuid.New()}, PlaceOrderInput{ShippingAddress: testAddress(), PaymentMethod: "cod"})
	require.Error(t, err)
	assert.Equal(t, "Cart is empty", pkgerrors.As(err).Message())
}

func TestPlaceOrderRejectsUnknownPaymentMethod(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.PlaceOrder(context.Background(), Buyer{ID: uuid.New()}, PlaceOrderInput{ShippingAddress: testAddress(), PaymentMethod: "cheque"})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestPlaceOrderOnlineLeavesOrderUnfinalized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer := Buyer{ID: uuid.New(), Email: "b@example.com"}
	chair := f.seedProduct(t, "Oak Chair", "1500", 8)
	f.addToCart(t, buyer.ID, chair, 1)

	order, err := f.svc.PlaceOrder(ctx, buyer, PlaceOrderInput{ShippingAddress: testAddress(), PaymentMethod: "razorpay"})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPending.String(), order.PaymentStatus)
	assert.Equal(t, 8, f.stockOf(t, chair.ID))
	assert.Empty(t, f.mailer.sent)

	applied, err := f.finalizer.Finalize(ctx, order.ID, buyer.Email)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 7, f.stockOf(t, chair.ID))

	applied, err = f.finalizer.Finalize(ctx, order.ID, buyer.Email)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, 7, f.stockOf(t, chair.ID))
	assert.Len(t, f.mailer.sent, 1)
}

func TestFinalizeRollsBackWhenStockRanOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer := Buyer{ID: uuid.New()}
	shelf := f.seedProduct(t, "Wall Shelf", "800", 2)
	f.addToCart(t, buyer.ID, shelf, 2)

	order, err := f.svc.PlaceOrder(ctx, buyer, PlaceOrderInput{ShippingAddress: testAddress(), PaymentMethod: "razorpay"})
	require.NoError(t, err)

	ok, err := f.products.DecrementStock(ctx, shelf.ID, 1)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.finalizer.Finalize(ctx, order.ID, "")
	require.Error(t, err)
	assert.Equal(t, "Insufficient stock for Wall Shelf. Only 1 available", pkgerrors.As(err).Message())

	stored, err := f.orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, stored.Fulfilled())
	items, err := f.cart.ListByUser(ctx, buyer.ID)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestFinalizeSkipsOrderCancelledAfterLoad(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer := Buyer{ID: uuid.New()}
	lamp := f.seedProduct(t, "Brass Lamp", "900", 4)
	f.addToCart(t, buyer.ID, lamp, 2)

	placed, err := f.svc.PlaceOrder(ctx, buyer, PlaceOrderInput{ShippingAddress: testAddress(), PaymentMethod: "razorpay"})
	require.NoError(t, err)

	stale, err := f.orders.FindByID(ctx, placed.ID)
	require.NoError(t, err)
	ok, err := f.orders.TransitionStatus(ctx, placed.ID, []enums.OrderStatus{enums.OrderStatusPending}, map[string]any{
		"status": enums.OrderStatusCancelled,
	})
	require.NoError(t, err)
	require.True(t, ok)

	var applied bool
	err = f.conn.Transaction(func(tx *gorm.DB) error {
		var txErr error
		applied, txErr = f.finalizer.finalizeInTx(ctx, tx, stale)
		return txErr
	})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, 4, f.stockOf(t, lamp.ID))

	stored, err := f.orders.FindByID(ctx, placed.ID)
	require.NoError(t, err)
	assert.False(t, stored.Fulfilled())

	_, err = f.finalizer.Finalize(ctx, placed.ID, "")
	require.Error(t, err)
	assert.Equal(t, "Cannot finalize a cancelled order", pkgerrors.As(err).Message())
	assert.Equal(t, 4, f.stockOf(t, lamp.ID))
}

func TestPlaceOrderRetriesOrderNumberCollision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lamp := f.seedProduct(t, "Desk Lamp", "400", 10)

	numbers := []string{"ORD260101AAAA", "ORD260101AAAA", "ORD260101BBBB"}
	f.svc.newNumber = func(time.Time) (string, error) {
		next := numbers[0]
		numbers = numbers[1:]
		return next, nil
	}

	first := Buyer{ID: uuid.New()}
	f.addToCart(t, first.ID, lamp, 1)
	_, err := f.svc.PlaceOrder(ctx, first, PlaceOrderInput{ShippingAddress: testAddress(), PaymentMethod: "cod"})
	require.NoError(t, err)

	second := Buyer{ID: uuid.New()}
	f.addToCart(t, second.ID, lamp, 1)
	order, err := f.svc.PlaceOrder(ctx, second, PlaceOrderInput{ShippingAddress: testAddress(), PaymentMethod: "cod"})
	require.NoError(t, err)
	assert.Equal(t, "ORD260101BBBB", order.OrderNumber)
	assert.Equal(t, 8, f.stockOf(t, lamp.ID))
}

func TestPreviewReportsInvalidCouponWithoutFailing(t *testing.T) {
	f := newFixture(t)
	buyer := Buyer{ID: uuid.New()}
	lamp := f.seedProduct(t, "Floor Lamp", "1000", 5)
	f.addToCart(t, buyer.ID, lamp, 1)

	got, err := f.svc.Preview(context.Background(), buyer, PreviewInput{Pincode: "560001", CouponCode: "NOPE"})
	require.NoError(t, err)
	assert.Equal(t, coupons.MsgInvalidCode, got.CouponMessage)
	assert.Equal(t, 1170.0, got.TotalAmount)
	assert.Equal(t, "Standard Shipping", got.ShippingZone)
}
