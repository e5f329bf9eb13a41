package cron

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

const (
	orderExpiryJobName = "unpaid-order-expiry"
	orderExpiryBatch   = 100
	// maxExpiryBatches bounds one run so a backlog cannot hold the lock forever.
	maxExpiryBatches = 20
)

type staleOrderFinder interface {
	FindStaleUnpaid(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type orderExpirer interface {
	ExpireUnpaid(ctx context.Context, orderID uuid.UUID) (bool, error)
}

type OrderExpiryJobParams struct {
	Logger *logger.Logger
	Finder staleOrderFinder
	Orders orderExpirer
	// TTL is how long an online order may stay unpaid.
	TTL time.Duration
}

// NewOrderExpiryJob cancels online orders whose payment never completed.
// Nothing was deducted for them, so no stock is restored.
func NewOrderExpiryJob(params OrderExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Finder == nil || params.Orders == nil {
		return nil, errors.New("order finder and expirer required")
	}
	if params.TTL <= 0 {
		return nil, errors.New("unpaid order ttl must be positive")
	}
	return &orderExpiryJob{
		logg:   params.Logger,
		finder: params.Finder,
		orders: params.Orders,
		ttl:    params.TTL,
		now:    time.Now,
	}, nil
}

type orderExpiryJob struct {
	logg   *logger.Logger
	finder staleOrderFinder
	orders orderExpirer
	ttl    time.Duration
	now    func() time.Time
}

func (j *orderExpiryJob) Name() string { return orderExpiryJobName }

func (j *orderExpiryJob) Run(ctx context.Context) (int64, error) {
	cutoff := j.now().UTC().Add(-j.ttl)
	var (
		expired int64
		errs    error
		failed  = map[uuid.UUID]struct{}{}
	)
	for batch := 0; batch < maxExpiryBatches; batch++ {
		due, err := j.finder.FindStaleUnpaid(ctx, cutoff, orderExpiryBatch)
		if err != nil {
			return expired, multierr.Append(errs, err)
		}
		progressed := false
		for _, order := range due {
			if _, seen := failed[order.ID]; seen {
				continue
			}
			ok, err := j.orders.ExpireUnpaid(ctx, order.ID)
			if err != nil {
				failed[order.ID] = struct{}{}
				errs = multierr.Append(errs, err)
				j.logg.Error(j.logg.WithOrderID(ctx, order.ID.String()), "cron.order_expiry_failed", err)
				continue
			}
			progressed = true
			if ok {
				expired++
			}
		}
		if len(due) < orderExpiryBatch || !progressed {
			break
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{"cutoff": cutoff, "expired": expired})
	j.logg.Info(logCtx, "cron.order_expiry_complete")
	return expired, errs
}
