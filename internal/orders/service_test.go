package orders

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/dbtest"
	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
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

type fixture struct {
	svc      Service
	repo     Repository
	products products.Repository
	notifier *recordingNotifier
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	productRepo := products.NewRepository(conn)
	notifier := &recordingNotifier{}
	svc, err := NewService(ServiceParams{
		Repo:       repo,
		Products:   productRepo,
		Transactor: db.FromGorm(conn),
		Notifier:   notifier,
	})
	require.NoError(t, err)
	return fixture{svc: svc, repo: repo, products: productRepo, notifier: notifier}
}

func (f fixture) seedProduct(t *testing.T, stock int) *models.Product {
	t.Helper()
	p := &models.Product{
		Name:     "Teak Stool " + uuid.NewString()[:6],
		Category: "furniture",
		Price:    decimal.NewFromInt(1000),
		Stock:    stock,
		IsActive: true,
	}
	p.Slug = products.Slugify(p.Name)
	require.NoError(t, f.products.Create(context.Background(), p))
	return p
}

func (f fixture) seedOrder(t *testing.T, userID uuid.UUID, product *models.Product, qty int, status enums.OrderStatus, fulfilled bool) *models.Order {
	t.Helper()
	order := &models.Order{
		OrderNumber: "ORD260101" + uuid.NewString()[:4],
		UserID:      userID,
		Items: types.OrderLines{{
			ProductID:   product.ID,
			ProductName: product.Name,
			UnitPrice:   product.Price,
			Quantity:    qty,
			Subtotal:    product.Price.Mul(decimal.NewFromInt(int64(qty))),
		}},
		Subtotal:        product.Price.Mul(decimal.NewFromInt(int64(qty))),
		TotalAmount:     product.Price.Mul(decimal.NewFromInt(int64(qty))),
		Status:          status,
		PaymentMethod:   enums.PaymentMethodCOD,
		PaymentStatus:   enums.PaymentStatusCOD,
		ShippingAddress: types.ShippingAddress{FullName: "Asha", Pincode: "560001"},
	}
	if fulfilled {
		now := time.Now()
		order.FulfilledAt = &now
	}
	require.NoError(t, f.repo.Create(context.Background(), order))
	return order
}

func TestCancelRestoresStockForFulfilledOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	product := f.seedProduct(t, 10)

	ok, err := f.products.DecrementStock(ctx, product.ID, 2)
	require.NoError(t, err)
	require.True(t, ok)
	order := f.seedOrder(t, userID, product, 2, enums.OrderStatusProcessing, true)

	dto, err := f.svc.Cancel(ctx, userID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", dto.Status)
	assert.NotNil(t, dto.CancelledAt)

	reloaded, err := f.products.FindByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, reloaded.Stock)
}

func TestCancelSkipsRestoreForUnfinalizedOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	product := f.seedProduct(t, 5)
	order := f.seedOrder(t, userID, product, 2, enums.OrderStatusPending, false)

	_, err := f.svc.Cancel(ctx, userID, order.ID)
	require.NoError(t, err)

	reloaded, err := f.products.FindByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, reloaded.Stock)
}

func TestCancelRejectsShippedAndForeignOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	product := f.seedProduct(t, 5)
	shipped := f.seedOrder(t, userID, product, 1, enums.OrderStatusShipped, true)

	_, err := f.svc.Cancel(ctx, userID, shipped.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeBusinessRule))
	assert.Equal(t, "Cannot cancel order with status: shipped", pkgerrors.As(err).Message())

	pending := f.seedOrder(t, userID, product, 1, enums.OrderStatusPending, false)
	_, err = f.svc.Cancel(ctx, uuid.New(), pending.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))

	_, err = f.svc.Cancel(ctx, userID, uuid.New())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestUpdateStatusNotifiesOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	product := f.seedProduct(t, 5)
	order := f.seedOrder(t, userID, product, 1, enums.OrderStatusProcessing, true)

	dto, err := f.svc.UpdateStatus(ctx, order.ID, "Shipped")
	require.NoError(t, err)
	assert.Equal(t, "shipped", dto.Status)

	require.Len(t, f.notifier.sent, 1)
	sent := f.notifier.sent[0]
	assert.Equal(t, "Order Shipped", sent.Title)
	assert.Equal(t, "Your order #"+order.OrderNumber+" is now shipped", sent.Message)
	assert.Equal(t, "/orders", sent.Link)
	assert.Equal(t, userID, *sent.UserID)

	_, err = f.svc.UpdateStatus(ctx, order.ID, "teleported")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = f.svc.UpdateStatus(ctx, order.ID, "cancelled")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeBusinessRule), "shipped orders cannot be cancelled")
}

func TestUpdateStatusCancelRestoresStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := f.seedProduct(t, 4)
	_, err := f.products.DecrementStock(ctx, product.ID, 1)
	require.NoError(t, err)
	order := f.seedOrder(t, uuid.New(), product, 1, enums.OrderStatusPending, true)

	_, err = f.svc.UpdateStatus(ctx, order.ID, "cancelled")
	require.NoError(t, err)

	reloaded, err := f.products.FindByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, reloaded.Stock)

	_, err = f.svc.UpdateStatus(ctx, order.ID, "processing")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeBusinessRule))
}

func TestMarkRefunded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := f.seedProduct(t, 4)
	order := f.seedOrder(t, uuid.New(), product, 1, enums.OrderStatusDelivered, true)

	dto, err := f.svc.MarkRefunded(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", dto.Status)
	assert.Equal(t, "refunded", dto.PaymentStatus)

	reloaded, err := f.repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusRefunded, reloaded.PaymentStatus)
	assert.Equal(t, enums.OrderStatusCancelled, reloaded.Status)
}

func TestListPagesNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	product := f.seedProduct(t, 50)

	for i := 0; i < 3; i++ {
		f.seedOrder(t, userID, product, 1, enums.OrderStatusPending, false)
		time.Sleep(2 * time.Millisecond)
	}
	f.seedOrder(t, uuid.New(), product, 1, enums.OrderStatusPending, false)

	first, err := f.svc.List(ctx, userID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	require.NotEmpty(t, first.Cursor)
	assert.True(t, first.Items[0].CreatedAt.After(first.Items[1].CreatedAt))

	second, err := f.svc.List(ctx, userID, pagination.Params{Limit: 2, Cursor: first.Cursor})
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Empty(t, second.Cursor)

	all, err := f.svc.ListAll(ctx, AdminListParams{Status: "pending", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, all.Items, 4)

	_, err = f.svc.Get(ctx, uuid.New(), first.Items[0].ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))
}

func TestExpireUnpaidCancelsStaleOnlineOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	product := f.seedProduct(t, 5)

	stale := f.seedOrder(t, userID, product, 1, enums.OrderStatusPending, false)
	fresh := f.seedOrder(t, userID, product, 1, enums.OrderStatusPending, false)
	cod := f.seedOrder(t, userID, product, 1, enums.OrderStatusPending, false)

	old := time.Now().Add(-3 * time.Hour)
	online := map[string]any{
		"payment_method": enums.PaymentMethodRazorpay,
		"payment_status": enums.PaymentStatusPending,
	}
	require.NoError(t, f.repo.UpdateFields(ctx, stale.ID, map[string]any{
		"payment_method": enums.PaymentMethodRazorpay,
		"payment_status": enums.PaymentStatusPending,
		"created_at":     old,
	}))
	require.NoError(t, f.repo.UpdateFields(ctx, fresh.ID, online))
	require.NoError(t, f.repo.UpdateFields(ctx, cod.ID, map[string]any{"created_at": old}))

	due, err := f.repo.FindStaleUnpaid(ctx, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, stale.ID, due[0].ID)

	expired, err := f.svc.ExpireUnpaid(ctx, stale.ID)
	require.NoError(t, err)
	assert.True(t, expired)

	reloaded, err := f.repo.FindByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, reloaded.Status)
	assert.Equal(t, enums.PaymentStatusFailed, reloaded.PaymentStatus)
	require.Len(t, f.notifier.sent, 1)

	again, err := f.svc.ExpireUnpaid(ctx, stale.ID)
	require.NoError(t, err)
	assert.False(t, again)
}

func TestUpdateStatusStampsDeliveryOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := f.seedProduct(t, 5)
	order := f.seedOrder(t, uuid.New(), product, 1, enums.OrderStatusShipped, true)

	dto, err := f.svc.UpdateStatus(ctx, order.ID, "delivered")
	require.NoError(t, err)
	require.NotNil(t, dto.DeliveredAt)

	stored, err := f.repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.DeliveredAt)
	first := *stored.DeliveredAt

	_, err = f.svc.UpdateStatus(ctx, order.ID, "delivered")
	require.NoError(t, err)
	stored, err = f.repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, first.Equal(*stored.DeliveredAt), "delivery time must not move")
}
