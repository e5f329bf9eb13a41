package payments

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const webhookProvider = "razorpay"

// webhookStore is the redis surface the guard needs.
type webhookStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	WebhookEventKey(provider, eventID string) string
}

// WebhookGuard claims webhook event ids so each event is applied once.
type WebhookGuard struct {
	store webhookStore
	ttl   time.Duration
}

func NewWebhookGuard(store webhookStore, ttl time.Duration) (*WebhookGuard, error) {
	if store == nil {
		return nil, errors.New("webhook store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &WebhookGuard{store: store, ttl: ttl}, nil
}

// CheckAndMark reports true when the event was already claimed.
func (g *WebhookGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	set, err := g.store.SetNX(ctx, g.store.WebhookEventKey(webhookProvider, eventID), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set webhook key: %w", err)
	}
	return !set, nil
}

// Release drops the claim so a redelivery can be processed.
func (g *WebhookGuard) Release(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Del(ctx, g.store.WebhookEventKey(webhookProvider, eventID))
}
