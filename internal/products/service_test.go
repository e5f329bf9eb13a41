package products

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/dbtest"
	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/pkg/cache"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notifications.NotifyInput
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, _ *gorm.DB, input notifications.NotifyInput) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, input)
	return n.err
}

type countingRepo struct {
	Repository
	listCalls int
}

func (c *countingRepo) List(ctx context.Context, q ListQuery) ([]models.Product, int64, error) {
	c.listCalls++
	return c.Repository.List(ctx, q)
}

func newTestService(t *testing.T) (*service, *gorm.DB, *recordingNotifier) {
	t.Helper()
	conn := dbtest.Open(t)
	notifier := &recordingNotifier{}
	svc, err := NewService(ServiceParams{
		Repo:     NewRepository(conn),
		Cache:    cache.NewMemory(),
		Notifier: notifier,
	})
	require.NoError(t, err)
	return svc.(*service), conn, notifier
}

func floatPtr(v float64) *float64 { return &v }

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{Cache: cache.NewMemory()})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = NewService(ServiceParams{Repo: NewRepository(nil)})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestServiceCreateAndGet(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{
		Name:               "Handloom Saree",
		Category:           "apparel",
		Price:              2000,
		Stock:              5,
		DiscountActive:     true,
		DiscountPercentage: floatPtr(10),
	})
	require.NoError(t, err)
	assert.Equal(t, "handloom-saree", created.Slug)
	assert.Equal(t, 1800.0, created.FinalPrice)
	assert.True(t, created.DiscountActive)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = svc.Create(ctx, CreateInput{Name: "Handloom Saree", Category: "apparel", Price: 1500})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeConflict))
}

func TestServiceCreateValidatesDiscountWindow(t *testing.T) {
	svc, _, _ := newTestService(t)
	start := time.Now()
	end := start.Add(-time.Hour)

	_, err := svc.Create(context.Background(), CreateInput{
		Name:             "Clock",
		Category:         "home",
		Price:            500,
		DiscountStartsAt: &start,
		DiscountEndsAt:   &end,
	})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestServiceGetHidesInactive(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	inactive := false

	created, err := svc.Create(ctx, CreateInput{Name: "Draft", Category: "misc", Price: 10, IsActive: &inactive})
	require.NoError(t, err)

	_, err = svc.Get(ctx, created.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	_, err = svc.Get(ctx, uuid.New())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestServiceListCachesUntilMutation(t *testing.T) {
	svc, _, _ := newTestService(t)
	counting := &countingRepo{Repository: svc.repo}
	svc.repo = counting
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Name: "Tea Tin", Category: "kitchen", Price: 350, Stock: 3})
	require.NoError(t, err)

	first, err := svc.List(ctx, ListInput{Category: "kitchen"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, first.Total)
	assert.False(t, first.HasMore)

	_, err = svc.List(ctx, ListInput{Category: "kitchen"})
	require.NoError(t, err)
	assert.Equal(t, 1, counting.listCalls, "second listing should hit the cache")

	_, err = svc.Create(ctx, CreateInput{Name: "Spice Box", Category: "kitchen", Price: 650, Stock: 2})
	require.NoError(t, err)

	after, err := svc.List(ctx, ListInput{Category: "kitchen"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, after.Total)
	assert.Equal(t, 2, counting.listCalls)
}

func TestServiceListRejectsBadInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.List(ctx, ListInput{Sort: "random"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = svc.List(ctx, ListInput{MinPrice: floatPtr(500), MaxPrice: floatPtr(100)})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestServiceUpdateNotifiesCartHoldersOnPriceDrop(t *testing.T) {
	svc, conn, notifier := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{Name: "Brass Lamp", Category: "home", Price: 1200, Stock: 4})
	require.NoError(t, err)

	holder := uuid.New()
	require.NoError(t, conn.Create(&models.CartItem{
		ID:           uuid.New(),
		UserID:       holder,
		ProductID:    created.ID,
		Quantity:     1,
		ProductName:  created.Name,
		ProductPrice: dec("1200"),
	}).Error)

	updated, err := svc.Update(ctx, created.ID, UpdateInput{Price: floatPtr(999)})
	require.NoError(t, err)
	assert.Equal(t, 999.0, updated.FinalPrice)

	require.Len(t, notifier.sent, 1)
	sent := notifier.sent[0]
	require.NotNil(t, sent.UserID)
	assert.Equal(t, holder, *sent.UserID)
	assert.Equal(t, "Price Drop Alert!", sent.Title)
	assert.Equal(t, "Brass Lamp price dropped from ₹1200.00 to ₹999.00", sent.Message)
	assert.Equal(t, "/products/"+created.ID.String(), sent.Link)

	_, err = svc.Update(ctx, created.ID, UpdateInput{Price: floatPtr(1500)})
	require.NoError(t, err)
	assert.Len(t, notifier.sent, 1, "price increase must not notify")
}

func TestServiceUpdateSurvivesNotifierFailure(t *testing.T) {
	svc, conn, notifier := newTestService(t)
	notifier.err = errors.New("smtp down")
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{Name: "Cushion", Category: "home", Price: 600, Stock: 4})
	require.NoError(t, err)
	require.NoError(t, conn.Create(&models.CartItem{
		ID:           uuid.New(),
		UserID:       uuid.New(),
		ProductID:    created.ID,
		Quantity:     2,
		ProductName:  created.Name,
		ProductPrice: dec("600"),
	}).Error)

	_, err = svc.Update(ctx, created.ID, UpdateInput{Price: floatPtr(450)})
	require.NoError(t, err)
}

func TestServiceDelete(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{Name: "Pen", Category: "stationery", Price: 25})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, created.ID))
	err = svc.Delete(ctx, created.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "red-silk-scarf", Slugify("  Red Silk -- Scarf! "))
	assert.Equal(t, "", Slugify("!!!"))
}
