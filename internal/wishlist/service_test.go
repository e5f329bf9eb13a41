package wishlist

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/dbtest"
	"github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc      Service
	repo     Repository
	products products.Repository
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	productRepo := products.NewRepository(conn)
	svc, err := NewService(repo, productRepo)
	require.NoError(t, err)
	return fixture{svc: svc, repo: repo, products: productRepo}
}

func (f fixture) seedProduct(t *testing.T, name string, active bool) *models.Product {
	t.Helper()
	pct := decimal.NewFromInt(10)
	p := &models.Product{
		Name:               name,
		Slug:               products.Slugify(name),
		Category:           "decor",
		Price:              decimal.NewFromInt(2000),
		DiscountActive:     true,
		DiscountPercentage: &pct,
		Stock:              3,
		IsActive:           true,
	}
	require.NoError(t, f.products.Create(context.Background(), p))
	if !active {
		p.IsActive = false
		require.NoError(t, f.products.Save(context.Background(), p))
	}
	return p
}

func TestAddPricesItemAndRejectsDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	lamp := f.seedProduct(t, "Brass Lamp", true)

	item, err := f.svc.Add(ctx, userID, lamp.ID)
	require.NoError(t, err)
	assert.Equal(t, lamp.ID, item.ProductID)
	assert.Equal(t, 2000.0, item.Price)
	assert.Equal(t, 1800.0, item.FinalPrice)
	assert.Equal(t, 10.0, item.DiscountPercentage)
	assert.True(t, item.InStock)

	_, err = f.svc.Add(ctx, userID, lamp.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeConflict))

	in, err := f.svc.Contains(ctx, userID, lamp.ID)
	require.NoError(t, err)
	assert.True(t, in)

	in, err = f.svc.Contains(ctx, uuid.New(), lamp.ID)
	require.NoError(t, err)
	assert.False(t, in, "wishlists are per user")
}

func TestAddRejectsMissingOrInactiveProducts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hidden := f.seedProduct(t, "Retired Rug", false)

	_, err := f.svc.Add(ctx, uuid.New(), uuid.New())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	_, err = f.svc.Add(ctx, uuid.New(), hidden.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestListPagesAndSkipsInactiveProducts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	var saved []*models.Product
	for _, name := range []string{"Jute Basket", "Clay Vase", "Cane Chair"} {
		p := f.seedProduct(t, name, true)
		_, err := f.svc.Add(ctx, userID, p.ID)
		require.NoError(t, err)
		saved = append(saved, p)
		time.Sleep(2 * time.Millisecond)
	}

	first, err := f.svc.List(ctx, userID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	assert.Equal(t, saved[2].ID, first.Items[0].ProductID, "newest first")
	require.NotEmpty(t, first.Cursor)

	second, err := f.svc.List(ctx, userID, pagination.Params{Limit: 2, Cursor: first.Cursor})
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Empty(t, second.Cursor)

	saved[0].IsActive = false
	require.NoError(t, f.products.Save(ctx, saved[0]))
	all, err := f.svc.List(ctx, userID, pagination.Params{})
	require.NoError(t, err)
	assert.Len(t, all.Items, 2)

	_, err = f.svc.List(ctx, userID, pagination.Params{Cursor: "not-a-cursor"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestRemoveAndClear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	a := f.seedProduct(t, "Oak Shelf", true)
	b := f.seedProduct(t, "Pine Shelf", true)
	for _, p := range []*models.Product{a, b} {
		_, err := f.svc.Add(ctx, userID, p.ID)
		require.NoError(t, err)
	}

	require.NoError(t, f.svc.Remove(ctx, userID, a.ID))
	err := f.svc.Remove(ctx, userID, a.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	n, err := f.svc.Clear(ctx, userID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	in, err := f.svc.Contains(ctx, userID, b.ID)
	require.NoError(t, err)
	assert.False(t, in)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(nil, nil)
	assert.Error(t, err)
}
