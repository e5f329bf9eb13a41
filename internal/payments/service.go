package payments

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
)

// Service takes online payments for orders placed with the razorpay method.
type Service interface {
	CreatePaymentOrder(ctx context.Context, userID, orderID uuid.UUID) (*PaymentOrderDTO, error)
	VerifyPayment(ctx context.Context, userID uuid.UUID, email string, input VerifyInput) (*VerifyResult, error)
	HandleWebhook(ctx context.Context, body []byte, signature, eventID string) error
	Refund(ctx context.Context, orderID uuid.UUID) (*RefundResult, error)
	// RefundAmount refunds part of a paid order. Only a refund covering the
	// whole total marks the order refunded.
	RefundAmount(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal) (*RefundResult, error)
}

// VerifyInput is what the checkout widget returns after payment.
type VerifyInput struct {
	OrderID           uuid.UUID `json:"order_id" validate:"required"`
	RazorpayOrderID   string    `json:"razorpay_order_id" validate:"required"`
	RazorpayPaymentID string    `json:"razorpay_payment_id" validate:"required"`
	RazorpaySignature string    `json:"razorpay_signature" validate:"required"`
}

// PaymentOrderDTO is handed to the client to open the checkout widget.
type PaymentOrderDTO struct {
	OrderID         uuid.UUID `json:"order_id"`
	RazorpayOrderID string    `json:"razorpay_order_id"`
	Amount          int64     `json:"amount"`
	Currency        string    `json:"currency"`
	KeyID           string    `json:"key_id"`
}

// VerifyResult reports a confirmed payment.
type VerifyResult struct {
	Success       bool      `json:"success"`
	Message       string    `json:"message"`
	OrderID       uuid.UUID `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	PaymentStatus string    `json:"payment_status"`
}

// RefundResult reports a refund and the resulting order.
type RefundResult struct {
	Success  bool             `json:"success"`
	Message  string           `json:"message"`
	RefundID string           `json:"refund_id"`
	Amount   float64          `json:"amount"`
	Status   string           `json:"status"`
	Order    *orders.OrderDTO `json:"order"`
}

// ServiceParams groups payment dependencies. Gateway may be nil when online
// payments are not configured.
type ServiceParams struct {
	Gateway   Gateway
	Orders    orders.Repository
	OrderSvc  orders.Service
	Finalizer checkout.Finalizer
	Guard     *WebhookGuard
	Metrics   *metrics.CheckoutMetrics
	Logger    *logger.Logger
}

type service struct {
	gateway   Gateway
	orders    orders.Repository
	orderSvc  orders.Service
	finalizer checkout.Finalizer
	guard     *WebhookGuard
	metrics   *metrics.CheckoutMetrics
	logg      *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Orders == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order repo is required")
	case params.OrderSvc == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order service is required")
	case params.Finalizer == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "finalizer is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		gateway:   params.Gateway,
		orders:    params.Orders,
		orderSvc:  params.OrderSvc,
		finalizer: params.Finalizer,
		guard:     params.Guard,
		metrics:   params.Metrics,
		logg:      logg,
	}, nil
}

func (s *service) CreatePaymentOrder(ctx context.Context, userID, orderID uuid.UUID) (*PaymentOrderDTO, error) {
	if err := s.requireGateway(); err != nil {
		return nil, err
	}
	order, err := s.loadOwned(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus == enums.PaymentStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "Order already paid")
	}
	if !order.PaymentMethod.Online() {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "Order is not payable online")
	}
	if order.Status == enums.OrderStatusCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "Cannot pay for a cancelled order")
	}

	gwOrder, err := s.gateway.CreateOrder(ctx, money.ToPaise(order.TotalAmount), order.OrderNumber, map[string]string{
		"order_id":       order.ID.String(),
		"order_number":   order.OrderNumber,
		"customer_phone": order.ShippingAddress.Phone,
	})
	if err != nil {
		s.metrics.IncPaymentEvent("create_failed")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "Failed to create payment order")
	}

	if err := s.orders.UpdateFields(ctx, order.ID, map[string]any{"gateway_order_id": gwOrder.ID}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store gateway order id")
	}
	s.metrics.IncPaymentEvent("order_created")

	return &PaymentOrderDTO{
		OrderID:         order.ID,
		RazorpayOrderID: gwOrder.ID,
		Amount:          gwOrder.AmountPaise,
		Currency:        gwOrder.Currency,
		KeyID:           s.gateway.KeyID(),
	}, nil
}

func (s *service) VerifyPayment(ctx context.Context, userID uuid.UUID, email string, input VerifyInput) (*VerifyResult, error) {
	if err := s.requireGateway(); err != nil {
		return nil, err
	}
	order, err := s.loadOwned(ctx, userID, input.OrderID)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithOrderID(ctx, order.ID.String())

	// A genuine signature for another gateway order must not confirm this one.
	if !matchesGatewayOrder(order, input.RazorpayOrderID) ||
		!s.gateway.VerifyPaymentSignature(input.RazorpayOrderID, input.RazorpayPaymentID, input.RazorpaySignature) {
		s.metrics.IncPaymentEvent("signature_invalid")
		if order.PaymentStatus != enums.PaymentStatusPaid {
			if err := s.orders.UpdateFields(ctx, order.ID, map[string]any{"payment_status": enums.PaymentStatusFailed}); err != nil {
				s.logg.Error(ctx, "payments.mark_failed_failed", err)
			}
		}
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "Invalid payment signature")
	}

	if err := s.capture(ctx, order, input.RazorpayPaymentID, email); err != nil {
		return nil, err
	}
	s.metrics.IncPaymentEvent("verified")

	return &VerifyResult{
		Success:       true,
		Message:       "Payment verified successfully",
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		PaymentStatus: enums.PaymentStatusPaid.String(),
	}, nil
}

type webhookPayload struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string            `json:"id"`
				OrderID string            `json:"order_id"`
				Email   string            `json:"email"`
				Notes   map[string]string `json:"notes"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

func (s *service) HandleWebhook(ctx context.Context, body []byte, signature, eventID string) error {
	if err := s.requireGateway(); err != nil {
		return err
	}
	if !s.gateway.VerifyWebhookSignature(body, signature) {
		s.metrics.IncPaymentEvent("webhook_signature_invalid")
		return pkgerrors.New(pkgerrors.CodeValidation, "Invalid webhook signature")
	}

	var event webhookPayload
	if err := json.Unmarshal(body, &event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload")
	}
	entity := event.Payload.Payment.Entity
	if eventID = strings.TrimSpace(eventID); eventID == "" {
		eventID = event.Event + ":" + entity.ID
	}
	ctx = s.logg.WithFields(ctx, map[string]any{"webhook_event": event.Event, "event_id": eventID})

	if event.Event != EventPaymentCaptured && event.Event != EventPaymentFailed {
		return nil
	}

	if s.guard != nil {
		duplicate, err := s.guard.CheckAndMark(ctx, eventID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim webhook event")
		}
		if duplicate {
			s.metrics.IncPaymentEvent("webhook_duplicate")
			s.logg.Info(ctx, "payments.webhook_duplicate")
			return nil
		}
	}

	if err := s.applyWebhook(ctx, event.Event, entity.ID, entity.OrderID, entity.Email, entity.Notes); err != nil {
		if s.guard != nil {
			if releaseErr := s.guard.Release(ctx, eventID); releaseErr != nil {
				s.logg.Error(ctx, "payments.webhook_release_failed", releaseErr)
			}
		}
		return err
	}
	return nil
}

func (s *service) applyWebhook(ctx context.Context, event, paymentID, gatewayOrderID, email string, notes map[string]string) error {
	order, err := s.locate(ctx, notes["order_id"], gatewayOrderID)
	if err != nil {
		return err
	}
	if order == nil {
		s.logg.Warn(ctx, "payments.webhook_order_not_found")
		return nil
	}
	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	if !matchesGatewayOrder(order, gatewayOrderID) {
		s.metrics.IncPaymentEvent("webhook_order_mismatch")
		s.logg.Warn(s.logg.WithField(ctx, "gateway_order_id", gatewayOrderID), "payments.webhook_order_mismatch")
		return nil
	}

	switch event {
	case EventPaymentCaptured:
		if err := s.capture(ctx, order, paymentID, email); err != nil {
			return err
		}
		s.metrics.IncPaymentEvent("webhook_captured")
	case EventPaymentFailed:
		if order.PaymentStatus == enums.PaymentStatusPaid || order.PaymentStatus == enums.PaymentStatusRefunded {
			return nil
		}
		if err := s.orders.UpdateFields(ctx, order.ID, map[string]any{"payment_status": enums.PaymentStatusFailed}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment failed")
		}
		s.metrics.IncPaymentEvent("webhook_failed")
	}
	return nil
}

func (s *service) Refund(ctx context.Context, orderID uuid.UUID) (*RefundResult, error) {
	return s.refund(ctx, orderID, nil)
}

func (s *service) RefundAmount(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal) (*RefundResult, error) {
	if !amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	return s.refund(ctx, orderID, &amount)
}

func (s *service) refund(ctx context.Context, orderID uuid.UUID, amount *decimal.Decimal) (*RefundResult, error) {
	if err := s.requireGateway(); err != nil {
		return nil, err
	}
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus != enums.PaymentStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "Order not paid yet")
	}
	if order.PaymentID == nil || *order.PaymentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "No payment ID found")
	}
	total := order.TotalAmount
	if amount != nil {
		if amount.GreaterThan(order.TotalAmount) {
			return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "Refund exceeds order total")
		}
		total = money.Round(*amount)
	}
	ctx = s.logg.WithOrderID(ctx, order.ID.String())

	refund, err := s.gateway.Refund(ctx, *order.PaymentID, money.ToPaise(total))
	if err != nil {
		s.metrics.IncPaymentEvent("refund_failed")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "Failed to create refund")
	}

	var dto *orders.OrderDTO
	if total.Equal(order.TotalAmount) {
		dto, err = s.orderSvc.MarkRefunded(ctx, order.ID)
		if err != nil {
			s.logg.Error(ctx, "payments.refund_not_recorded", err)
			return nil, err
		}
		s.metrics.IncPaymentEvent("refunded")
	} else {
		current := orders.NewOrderDTO(*order)
		dto = &current
		s.metrics.IncPaymentEvent("partially_refunded")
	}

	return &RefundResult{
		Success:  true,
		Message:  "Refund initiated successfully",
		RefundID: refund.ID,
		Amount:   money.FromPaise(refund.AmountPaise).InexactFloat64(),
		Status:   refund.Status,
		Order:    dto,
	}, nil
}

// capture records the payment then applies stock, coupon and cart effects.
// Both steps are idempotent so a webhook racing the client verify is safe.
func (s *service) capture(ctx context.Context, order *models.Order, paymentID, email string) error {
	if order.PaymentStatus != enums.PaymentStatusPaid {
		if order.Status == enums.OrderStatusCancelled {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "Cannot confirm payment for a cancelled order")
		}
		fields := map[string]any{
			"payment_status": enums.PaymentStatusPaid,
			"payment_id":     paymentID,
		}
		if order.Status == enums.OrderStatusPending {
			fields["status"] = enums.OrderStatusProcessing
		}
		ok, err := s.orders.TransitionStatus(ctx, order.ID, []enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusProcessing}, fields)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "Order changed while confirming payment")
		}
	}

	if _, err := s.finalizer.Finalize(ctx, order.ID, email); err != nil {
		s.metrics.IncPaymentEvent("finalize_failed")
		s.logg.Error(ctx, "payments.finalize_failed", err)
		return err
	}
	return nil
}

func matchesGatewayOrder(order *models.Order, gatewayOrderID string) bool {
	gatewayOrderID = strings.TrimSpace(gatewayOrderID)
	return gatewayOrderID != "" && order.GatewayOrderID != nil && *order.GatewayOrderID == gatewayOrderID
}

func (s *service) locate(ctx context.Context, noteOrderID, gatewayOrderID string) (*models.Order, error) {
	if id, err := uuid.Parse(strings.TrimSpace(noteOrderID)); err == nil {
		order, err := s.orders.FindByID(ctx, id)
		if err == nil {
			return order, nil
		}
		if !db.IsNotFound(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
	}
	if gatewayOrderID == "" {
		return nil, nil
	}
	order, err := s.orders.FindByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) load(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) loadOwned(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "Not authorized")
	}
	return order, nil
}

func (s *service) requireGateway() error {
	if s.gateway == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "Online payments are not configured")
	}
	return nil
}
