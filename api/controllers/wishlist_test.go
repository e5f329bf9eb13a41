package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/wishlist"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

type testWishlistService struct {
	addFn    func(ctx context.Context, userID, productID uuid.UUID) (*wishlist.ItemDTO, error)
	removeFn func(ctx context.Context, userID, productID uuid.UUID) error
	listFn   func(ctx context.Context, userID uuid.UUID, params pagination.Params) (*wishlist.ListResult, error)
}

func (s *testWishlistService) List(ctx context.Context, userID uuid.UUID, params pagination.Params) (*wishlist.ListResult, error) {
	if s.listFn != nil {
		return s.listFn(ctx, userID, params)
	}
	return &wishlist.ListResult{}, nil
}

func (s *testWishlistService) Add(ctx context.Context, userID, productID uuid.UUID) (*wishlist.ItemDTO, error) {
	return s.addFn(ctx, userID, productID)
}

func (s *testWishlistService) Remove(ctx context.Context, userID, productID uuid.UUID) error {
	return s.removeFn(ctx, userID, productID)
}

func (s *testWishlistService) Clear(context.Context, uuid.UUID) (int64, error) {
	return 2, nil
}

func (s *testWishlistService) Contains(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return true, nil
}

func TestWishlistAddCreates(t *testing.T) {
	userID := uuid.New()
	productID := uuid.New()
	svc := &testWishlistService{
		addFn: func(_ context.Context, uid, pid uuid.UUID) (*wishlist.ItemDTO, error) {
			if uid != userID || pid != productID {
				t.Fatalf("unexpected ids %s %s", uid, pid)
			}
			return &wishlist.ItemDTO{ProductID: pid, FinalPrice: 499}, nil
		},
	}

	req := asUser(newRequest(http.MethodPost, "/api/v1/wishlist", `{"product_id":"`+productID.String()+`"}`), userID, "")
	resp := httptest.NewRecorder()
	WishlistAdd(svc, testLogger())(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	var item wishlist.ItemDTO
	decodeData(t, resp, &item)
	if item.ProductID != productID || item.FinalPrice != 499 {
		t.Fatalf("unexpected item %+v", item)
	}
}

func TestWishlistAddRequiresProductID(t *testing.T) {
	svc := &testWishlistService{}
	req := asUser(newRequest(http.MethodPost, "/api/v1/wishlist", `{}`), uuid.New(), "")
	resp := httptest.NewRecorder()
	WishlistAdd(svc, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if code := decodeErrorCode(t, resp); code != string(pkgerrors.CodeValidation) {
		t.Fatalf("unexpected code %s", code)
	}
}

func TestWishlistAddDuplicateConflicts(t *testing.T) {
	svc := &testWishlistService{
		addFn: func(context.Context, uuid.UUID, uuid.UUID) (*wishlist.ItemDTO, error) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "Product already in wishlist")
		},
	}
	req := asUser(newRequest(http.MethodPost, "/api/v1/wishlist", `{"product_id":"`+uuid.NewString()+`"}`), uuid.New(), "")
	resp := httptest.NewRecorder()
	WishlistAdd(svc, testLogger())(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
}

func TestWishlistRemoveMissingIsNotFound(t *testing.T) {
	productID := uuid.New()
	svc := &testWishlistService{
		removeFn: func(context.Context, uuid.UUID, uuid.UUID) error {
			return pkgerrors.New(pkgerrors.CodeNotFound, "Product not in wishlist")
		},
	}
	req := asUser(newRequest(http.MethodDelete, "/api/v1/wishlist/"+productID.String(), ""), uuid.New(), "")
	req = withURLParam(req, "productId", productID.String())
	resp := httptest.NewRecorder()
	WishlistRemove(svc, testLogger())(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestWishlistListPassesPaging(t *testing.T) {
	svc := &testWishlistService{
		listFn: func(_ context.Context, _ uuid.UUID, params pagination.Params) (*wishlist.ListResult, error) {
			if params.Limit != 5 || params.Cursor != "abc" {
				t.Fatalf("unexpected params %+v", params)
			}
			return &wishlist.ListResult{Items: []wishlist.ItemDTO{{ProductName: "Lamp"}}}, nil
		},
	}
	req := asUser(newRequest(http.MethodGet, "/api/v1/wishlist?limit=5&cursor=abc", ""), uuid.New(), "")
	resp := httptest.NewRecorder()
	WishlistList(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	var result wishlist.ListResult
	decodeData(t, resp, &result)
	if len(result.Items) != 1 {
		t.Fatalf("unexpected items %+v", result.Items)
	}
}

func TestWishlistCheckRequiresUser(t *testing.T) {
	productID := uuid.New()
	req := withURLParam(newRequest(http.MethodGet, "/api/v1/wishlist/check/"+productID.String(), ""), "productId", productID.String())
	resp := httptest.NewRecorder()
	WishlistCheck(&testWishlistService{}, testLogger())(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}
