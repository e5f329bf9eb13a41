package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/notifications"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type testNotificationsService struct {
	listFn        func(ctx context.Context, userID uuid.UUID, params notifications.ListParams) (*notifications.ListResult, error)
	markReadFn    func(ctx context.Context, userID, notificationID uuid.UUID) error
	markAllReadFn func(ctx context.Context, userID uuid.UUID) (int64, error)
}

func (s *testNotificationsService) Notify(context.Context, *gorm.DB, notifications.NotifyInput) error {
	return nil
}

func (s *testNotificationsService) ListForUser(ctx context.Context, userID uuid.UUID, params notifications.ListParams) (*notifications.ListResult, error) {
	if s.listFn != nil {
		return s.listFn(ctx, userID, params)
	}
	return &notifications.ListResult{}, nil
}

func (s *testNotificationsService) ListForAdmin(context.Context, notifications.ListParams) (*notifications.ListResult, error) {
	return &notifications.ListResult{}, nil
}

func (s *testNotificationsService) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	if s.markReadFn != nil {
		return s.markReadFn(ctx, userID, notificationID)
	}
	return nil
}

func (s *testNotificationsService) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	if s.markAllReadFn != nil {
		return s.markAllReadFn(ctx, userID)
	}
	return 0, nil
}

func TestMarkNotificationReadSuccess(t *testing.T) {
	userID := uuid.New()
	notificationID := uuid.New()
	called := false
	svc := &testNotificationsService{
		markReadFn: func(ctx context.Context, uid, nid uuid.UUID) error {
			called = true
			if uid != userID {
				t.Fatalf("unexpected user %s", uid)
			}
			if nid != notificationID {
				t.Fatalf("unexpected notification %s", nid)
			}
			return nil
		},
	}

	req := asUser(newRequest(http.MethodPut, "/api/v1/notifications/"+notificationID.String()+"/read", ""), userID, "")
	req = withURLParam(req, "notificationId", notificationID.String())
	resp := httptest.NewRecorder()
	MarkNotificationRead(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if !called {
		t.Fatal("expected service called")
	}
	var data map[string]bool
	decodeData(t, resp, &data)
	if !data["read"] {
		t.Fatalf("expected read=true, got %v", data)
	}
}

func TestMarkNotificationReadNotFound(t *testing.T) {
	svc := &testNotificationsService{
		markReadFn: func(context.Context, uuid.UUID, uuid.UUID) error {
			return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
		},
	}
	id := uuid.New()
	req := withURLParam(asUser(newRequest(http.MethodPut, "/", ""), uuid.New(), ""), "notificationId", id.String())
	resp := httptest.NewRecorder()
	MarkNotificationRead(svc, testLogger())(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestListNotificationsParsesUnreadOnly(t *testing.T) {
	var got notifications.ListParams
	svc := &testNotificationsService{
		listFn: func(ctx context.Context, userID uuid.UUID, params notifications.ListParams) (*notifications.ListResult, error) {
			got = params
			return &notifications.ListResult{}, nil
		},
	}
	req := asUser(newRequest(http.MethodGet, "/api/v1/notifications?unread_only=true&limit=10", ""), uuid.New(), "")
	resp := httptest.NewRecorder()
	ListNotifications(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !got.UnreadOnly || got.Limit != 10 {
		t.Fatalf("unexpected params %+v", got)
	}

	req = asUser(newRequest(http.MethodGet, "/api/v1/notifications?unread_only=maybe", ""), uuid.New(), "")
	resp = httptest.NewRecorder()
	ListNotifications(svc, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestMarkAllNotificationsRead(t *testing.T) {
	svc := &testNotificationsService{
		markAllReadFn: func(context.Context, uuid.UUID) (int64, error) { return 3, nil },
	}
	req := asUser(newRequest(http.MethodPut, "/api/v1/notifications/read-all", ""), uuid.New(), "")
	resp := httptest.NewRecorder()
	MarkAllNotificationsRead(svc, testLogger())(resp, req)

	var data map[string]int64
	decodeData(t, resp, &data)
	if data["updated"] != 3 {
		t.Fatalf("expected 3 updated, got %v", data)
	}
}
