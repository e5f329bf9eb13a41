package enums

import "testing"

func TestOrderStatusCancellable(t *testing.T) {
	cases := map[OrderStatus]bool{
		OrderStatusPending:    true,
		OrderStatusProcessing: true,
		OrderStatusShipped:    false,
		OrderStatusDelivered:  false,
		OrderStatusCancelled:  false,
	}
	for status, want := range cases {
		if got := status.Cancellable(); got != want {
			t.Fatalf("%s: expected cancellable=%v got %v", status, want, got)
		}
	}
}

func TestParseOrderStatus(t *testing.T) {
	status, err := ParseOrderStatus("shipped")
	if err != nil || status != OrderStatusShipped {
		t.Fatalf("unexpected parse result %q %v", status, err)
	}
	if _, err := ParseOrderStatus("lost"); err == nil {
		t.Fatal("expected invalid status error")
	}
}

func TestPaymentMethodInitialStatus(t *testing.T) {
	if PaymentMethodCOD.InitialPaymentStatus() != PaymentStatusCOD {
		t.Fatal("cod orders start with cod payment status")
	}
	if PaymentMethodRazorpay.InitialPaymentStatus() != PaymentStatusPending {
		t.Fatal("online orders start pending")
	}
	if !PaymentMethodRazorpay.Online() || PaymentMethodCOD.Online() {
		t.Fatal("unexpected online flag")
	}
}

func TestParsePaymentMethodNormalizes(t *testing.T) {
	method, err := ParsePaymentMethod(" COD ")
	if err != nil || method != PaymentMethodCOD {
		t.Fatalf("unexpected parse result %q %v", method, err)
	}
	if _, err := ParsePaymentMethod("cheque"); err == nil {
		t.Fatal("expected invalid method error")
	}
}

func TestParseProductSortDefaultsToNewest(t *testing.T) {
	sort, err := ParseProductSort("")
	if err != nil || sort != ProductSortNewest {
		t.Fatalf("unexpected default sort %q %v", sort, err)
	}
	if _, err := ParseProductSort("rating; DROP TABLE products"); err == nil {
		t.Fatal("expected unknown sort key to be rejected")
	}
}

func TestNotificationEnums(t *testing.T) {
	if !NotificationTypePriceDrop.IsValid() || NotificationType("promo").IsValid() {
		t.Fatal("unexpected notification type validity")
	}
	audience, err := ParseNotificationAudience("admin")
	if err != nil || audience != NotificationAudienceAdmin {
		t.Fatalf("unexpected audience %q %v", audience, err)
	}
}

func TestDiscountAndRoleParsing(t *testing.T) {
	if _, err := ParseDiscountType("bogo"); err == nil {
		t.Fatal("expected invalid discount type")
	}
	if role, err := ParseUserRole("admin"); err != nil || role != UserRoleAdmin {
		t.Fatalf("unexpected role %q %v", role, err)
	}
}

func TestReturnStatusTransitions(t *testing.T) {
	if !ReturnStatusPending.CanMoveTo(ReturnStatusApproved) || !ReturnStatusApproved.CanMoveTo(ReturnStatusCompleted) {
		t.Fatal("expected forward transitions to be legal")
	}
	if ReturnStatusPending.CanMoveTo(ReturnStatusCompleted) {
		t.Fatal("pending requests must be approved before completion")
	}
	if ReturnStatusRejected.CanMoveTo(ReturnStatusApproved) || ReturnStatusCompleted.CanMoveTo(ReturnStatusRejected) {
		t.Fatal("terminal statuses must not move")
	}
	if !ReturnStatusApproved.Open() || ReturnStatusRejected.Open() {
		t.Fatal("unexpected open flag")
	}
	if _, err := ParseReturnRequestType("refund"); err == nil {
		t.Fatal("expected invalid request type error")
	}
}
