package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	razorpay "github.com/razorpay/razorpay-go"
	"github.com/razorpay/razorpay-go/utils"
)

const currencyINR = "INR"

var (
	errKeyRequired    = errors.New("razorpay key id and secret are required")
	errMissingOrderID = errors.New("razorpay order response missing id")
)

// GatewayOrder is the gateway-side order a checkout widget pays against.
type GatewayOrder struct {
	ID          string
	AmountPaise int64
	Currency    string
}

// GatewayRefund is the gateway's acknowledgement of a refund.
type GatewayRefund struct {
	ID          string
	AmountPaise int64
	Status      string
}

// Gateway is the payment provider surface used by the payment service.
type Gateway interface {
	KeyID() string
	CreateOrder(ctx context.Context, amountPaise int64, receipt string, notes map[string]string) (*GatewayOrder, error)
	VerifyPaymentSignature(gatewayOrderID, paymentID, signature string) bool
	VerifyWebhookSignature(body []byte, signature string) bool
	Refund(ctx context.Context, paymentID string, amountPaise int64) (*GatewayRefund, error)
}

// Razorpay implements Gateway over the razorpay-go client.
type Razorpay struct {
	client        *razorpay.Client
	keyID         string
	keySecret     string
	webhookSecret string
}

// NewRazorpay builds the gateway from config.
func NewRazorpay(ctx context.Context, cfg config.RazorpayConfig, logg *logger.Logger) (*Razorpay, error) {
	keyID := strings.TrimSpace(cfg.KeyID)
	secret := strings.TrimSpace(cfg.KeySecret)
	if keyID == "" || secret == "" {
		return nil, errKeyRequired
	}
	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("razorpay gateway initialized (test=%t)", strings.HasPrefix(keyID, "rzp_test_")))
	}
	return &Razorpay{
		client:        razorpay.NewClient(keyID, secret),
		keyID:         keyID,
		keySecret:     secret,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
	}, nil
}

func (r *Razorpay) KeyID() string {
	return r.keyID
}

func (r *Razorpay) CreateOrder(_ context.Context, amountPaise int64, receipt string, notes map[string]string) (*GatewayOrder, error) {
	noteMap := make(map[string]interface{}, len(notes))
	for k, v := range notes {
		noteMap[k] = v
	}
	resp, err := r.client.Order.Create(map[string]interface{}{
		"amount":   amountPaise,
		"currency": currencyINR,
		"receipt":  receipt,
		"notes":    noteMap,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay create order: %w", err)
	}

	id, _ := resp["id"].(string)
	if id == "" {
		return nil, errMissingOrderID
	}
	currency, _ := resp["currency"].(string)
	if currency == "" {
		currency = currencyINR
	}
	return &GatewayOrder{ID: id, AmountPaise: paiseFrom(resp["amount"], amountPaise), Currency: currency}, nil
}

func (r *Razorpay) VerifyPaymentSignature(gatewayOrderID, paymentID, signature string) bool {
	return utils.VerifyPaymentSignature(map[string]interface{}{
		"razorpay_order_id":   gatewayOrderID,
		"razorpay_payment_id": paymentID,
	}, signature, r.keySecret)
}

func (r *Razorpay) VerifyWebhookSignature(body []byte, signature string) bool {
	if r.webhookSecret == "" || signature == "" {
		return false
	}
	return utils.VerifyWebhookSignature(string(body), signature, r.webhookSecret)
}

func (r *Razorpay) Refund(_ context.Context, paymentID string, amountPaise int64) (*GatewayRefund, error) {
	resp, err := r.client.Payment.Refund(paymentID, int(amountPaise), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay refund: %w", err)
	}
	id, _ := resp["id"].(string)
	status, _ := resp["status"].(string)
	return &GatewayRefund{ID: id, AmountPaise: paiseFrom(resp["amount"], amountPaise), Status: status}, nil
}

// paiseFrom reads a JSON number from a gateway response.
func paiseFrom(raw interface{}, fallback int64) int64 {
	switch v := raw.(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return fallback
	}
}
