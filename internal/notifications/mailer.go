package notifications

import (
	"context"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderConfirmation carries what a confirmation email needs.
type OrderConfirmation struct {
	OrderID       uuid.UUID
	OrderNumber   string
	UserID        uuid.UUID
	Email         string
	TotalAmount   decimal.Decimal
	ItemCount     int
	PaymentMethod string
}

// Mailer delivers transactional email.
type Mailer interface {
	SendOrderConfirmation(ctx context.Context, msg OrderConfirmation) error
}

// LogMailer records emails in the structured log instead of sending them.
type LogMailer struct {
	logg *logger.Logger
}

// NewLogMailer returns a mailer that writes to logg.
func NewLogMailer(logg *logger.Logger) *LogMailer {
	return &LogMailer{logg: logg}
}

func (m *LogMailer) SendOrderConfirmation(ctx context.Context, msg OrderConfirmation) error {
	if m == nil || m.logg == nil {
		return nil
	}
	ctx = m.logg.WithFields(ctx, map[string]any{
		"order_id":       msg.OrderID.String(),
		"order_number":   msg.OrderNumber,
		"user_id":        msg.UserID.String(),
		"email":          msg.Email,
		"total_amount":   msg.TotalAmount.StringFixed(2),
		"item_count":     msg.ItemCount,
		"payment_method": msg.PaymentMethod,
	})
	m.logg.Info(ctx, "mail.order_confirmation")
	return nil
}
