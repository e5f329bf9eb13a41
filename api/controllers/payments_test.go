package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type testPaymentsService struct {
	verifyFn  func(ctx context.Context, userID uuid.UUID, email string, input payments.VerifyInput) (*payments.VerifyResult, error)
	webhookFn func(ctx context.Context, body []byte, signature, eventID string) error
}

func (s *testPaymentsService) CreatePaymentOrder(ctx context.Context, userID, orderID uuid.UUID) (*payments.PaymentOrderDTO, error) {
	return &payments.PaymentOrderDTO{OrderID: orderID, RazorpayOrderID: "order_gw_1", Amount: 117050, Currency: "INR"}, nil
}

func (s *testPaymentsService) VerifyPayment(ctx context.Context, userID uuid.UUID, email string, input payments.VerifyInput) (*payments.VerifyResult, error) {
	return s.verifyFn(ctx, userID, email, input)
}

func (s *testPaymentsService) HandleWebhook(ctx context.Context, body []byte, signature, eventID string) error {
	return s.webhookFn(ctx, body, signature, eventID)
}

func (s *testPaymentsService) Refund(context.Context, uuid.UUID) (*payments.RefundResult, error) {
	return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "Order not paid yet")
}

func (s *testPaymentsService) RefundAmount(context.Context, uuid.UUID, decimal.Decimal) (*payments.RefundResult, error) {
	return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "Order not paid yet")
}

func TestPaymentWebhookForwardsRawBodyAndHeaders(t *testing.T) {
	raw := `{"event":"payment.captured","payload":{}}`
	var gotBody, gotSig, gotEvent string
	svc := &testPaymentsService{
		webhookFn: func(ctx context.Context, body []byte, signature, eventID string) error {
			gotBody, gotSig, gotEvent = string(body), signature, eventID
			return nil
		},
	}
	req := newRequest(http.MethodPost, "/api/v1/payment/webhook", raw)
	req.Header.Set("X-Razorpay-Signature", "sig-123")
	req.Header.Set("X-Razorpay-Event-Id", "evt_1")
	resp := httptest.NewRecorder()
	PaymentWebhook(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if gotBody != raw || gotSig != "sig-123" || gotEvent != "evt_1" {
		t.Fatalf("unexpected forwarding body=%q sig=%q event=%q", gotBody, gotSig, gotEvent)
	}
}

func TestPaymentWebhookBadSignature(t *testing.T) {
	svc := &testPaymentsService{
		webhookFn: func(context.Context, []byte, string, string) error {
			return pkgerrors.New(pkgerrors.CodeValidation, "Invalid webhook signature")
		},
	}
	resp := httptest.NewRecorder()
	PaymentWebhook(svc, testLogger())(resp, newRequest(http.MethodPost, "/api/v1/payment/webhook", `{}`))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestPaymentVerifyPassesEmail(t *testing.T) {
	userID := uuid.New()
	orderID := uuid.New()
	svc := &testPaymentsService{
		verifyFn: func(ctx context.Context, uid uuid.UUID, email string, input payments.VerifyInput) (*payments.VerifyResult, error) {
			if uid != userID || email != "asha@example.com" || input.OrderID != orderID {
				t.Fatalf("unexpected args %s %q %+v", uid, email, input)
			}
			return &payments.VerifyResult{Success: true, Message: "Payment verified successfully", OrderID: orderID}, nil
		},
	}
	body := `{"order_id":"` + orderID.String() + `","razorpay_order_id":"order_gw_1","razorpay_payment_id":"pay_1","razorpay_signature":"abc"}`
	req := asUser(newRequest(http.MethodPost, "/api/v1/payment/verify-payment", body), userID, "asha@example.com")
	resp := httptest.NewRecorder()
	PaymentVerify(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	var result payments.VerifyResult
	decodeData(t, resp, &result)
	if !result.Success {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestPaymentCreateOrderRequiresOrderID(t *testing.T) {
	req := asUser(newRequest(http.MethodPost, "/api/v1/payment/create-order", `{}`), uuid.New(), "")
	resp := httptest.NewRecorder()
	PaymentCreateOrder(&testPaymentsService{}, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAdminRefundPaymentUnpaid(t *testing.T) {
	orderID := uuid.New()
	req := withURLParam(newRequest(http.MethodPost, "/", ""), "orderId", orderID.String())
	resp := httptest.NewRecorder()
	AdminRefundPayment(&testPaymentsService{}, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
