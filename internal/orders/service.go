package orders

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var cancellableStatuses = []enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusProcessing}

// Notifier delivers in-app notifications.
type Notifier interface {
	Notify(ctx context.Context, tx *gorm.DB, input notifications.NotifyInput) error
}

// Service exposes order reads and lifecycle changes after placement.
type Service interface {
	List(ctx context.Context, userID uuid.UUID, params pagination.Params) (*ListResult, error)
	ListAll(ctx context.Context, params AdminListParams) (*ListResult, error)
	Get(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error)
	Cancel(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, status string) (*OrderDTO, error)
	// MarkRefunded records a completed gateway refund and cancels the order.
	MarkRefunded(ctx context.Context, orderID uuid.UUID) (*OrderDTO, error)
	// ExpireUnpaid cancels an online order whose payment never arrived and
	// marks the payment failed. Orders that were paid or moved on meanwhile
	// are left alone and reported with expired=false.
	ExpireUnpaid(ctx context.Context, orderID uuid.UUID) (expired bool, err error)
}

// AdminListParams filters the admin order feed.
type AdminListParams struct {
	Status string
	Limit  int
	Cursor string
}

// ServiceParams groups order service dependencies.
type ServiceParams struct {
	Repo       Repository
	Products   products.Repository
	Transactor db.Transactor
	Notifier   Notifier
	Logger     *logger.Logger
}

type service struct {
	repo     Repository
	products products.Repository
	tx       db.Transactor
	notifier Notifier
	logg     *logger.Logger
	now      func() time.Time
}

// NewService wires the order service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order repo is required")
	}
	if params.Products == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product repo is required")
	}
	if params.Transactor == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transactor is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:     params.Repo,
		products: params.Products,
		tx:       params.Transactor,
		notifier: params.Notifier,
		logg:     logg,
		now:      time.Now,
	}, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID, params pagination.Params) (*ListResult, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	return s.list(ctx, listOrdersParams{UserID: &userID, Limit: params.Limit}, params.Cursor)
}

func (s *service) ListAll(ctx context.Context, params AdminListParams) (*ListResult, error) {
	query := listOrdersParams{Limit: params.Limit}
	if status := strings.TrimSpace(params.Status); status != "" {
		parsed, err := enums.ParseOrderStatus(status)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
		}
		query.Status = &parsed
	}
	return s.list(ctx, query, params.Cursor)
}

func (s *service) list(ctx context.Context, query listOrdersParams, rawCursor string) (*ListResult, error) {
	if rawCursor != "" {
		cursor, err := pagination.ParseCursor(rawCursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}

	result := &ListResult{Items: make([]OrderDTO, 0, len(rows))}
	for _, row := range rows {
		result.Items = append(result.Items, NewOrderDTO(row))
	}
	if next != nil {
		result.Cursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

func (s *service) Get(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error) {
	order, err := load(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "Not authorized to view this order")
	}
	dto := NewOrderDTO(*order)
	return &dto, nil
}

func (s *service) Cancel(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error) {
	var cancelled *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := loadForUpdate(ctx, s.repo.WithTx(tx), orderID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "Not authorized to cancel this order")
		}
		if err := s.cancelInTx(ctx, tx, order, nil); err != nil {
			return err
		}
		cancelled = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithOrderID(ctx, orderID.String()), "orders.cancelled")
	dto := NewOrderDTO(*cancelled)
	return &dto, nil
}

func (s *service) UpdateStatus(ctx context.Context, orderID uuid.UUID, status string) (*OrderDTO, error) {
	next, err := enums.ParseOrderStatus(strings.ToLower(strings.TrimSpace(status)))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}

	var updated *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := loadForUpdate(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if order.Status == enums.OrderStatusCancelled {
			return pkgerrors.New(pkgerrors.CodeBusinessRule, "Cannot update a cancelled order")
		}

		if next == enums.OrderStatusCancelled {
			if err := s.cancelInTx(ctx, tx, order, nil); err != nil {
				return err
			}
			updated = order
			return nil
		}

		fields := map[string]any{"status": next}
		var deliveredAt *time.Time
		if next == enums.OrderStatusDelivered && order.DeliveredAt == nil {
			now := s.now()
			deliveredAt = &now
			fields["delivered_at"] = now
		}
		ok, err := repo.TransitionStatus(ctx, order.ID, []enums.OrderStatus{order.Status}, fields)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed, retry")
		}
		order.Status = next
		if deliveredAt != nil {
			order.DeliveredAt = deliveredAt
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyStatus(ctx, *updated)
	dto := NewOrderDTO(*updated)
	return &dto, nil
}

func (s *service) MarkRefunded(ctx context.Context, orderID uuid.UUID) (*OrderDTO, error) {
	var refunded *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := loadForUpdate(ctx, repo, orderID)
		if err != nil {
			return err
		}
		extra := map[string]any{"payment_status": enums.PaymentStatusRefunded}

		if order.Status.Cancellable() {
			if err := s.cancelInTx(ctx, tx, order, extra); err != nil {
				return err
			}
		} else {
			now := s.now()
			fields := map[string]any{
				"status":         enums.OrderStatusCancelled,
				"payment_status": enums.PaymentStatusRefunded,
				"cancelled_at":   now,
			}
			if err := repo.UpdateFields(ctx, order.ID, fields); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order refunded")
			}
			order.Status = enums.OrderStatusCancelled
			order.CancelledAt = &now
		}
		order.PaymentStatus = enums.PaymentStatusRefunded
		refunded = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyStatus(ctx, *refunded)
	dto := NewOrderDTO(*refunded)
	return &dto, nil
}

func (s *service) ExpireUnpaid(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var expired *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := loadForUpdate(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if order.Status != enums.OrderStatusPending || order.PaymentStatus != enums.PaymentStatusPending || order.Fulfilled() {
			return nil
		}
		now := s.now()
		ok, err := repo.TransitionStatus(ctx, order.ID, []enums.OrderStatus{enums.OrderStatusPending}, map[string]any{
			"status":         enums.OrderStatusCancelled,
			"payment_status": enums.PaymentStatusFailed,
			"cancelled_at":   now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire order")
		}
		if !ok {
			return nil
		}
		order.Status = enums.OrderStatusCancelled
		order.PaymentStatus = enums.PaymentStatusFailed
		order.CancelledAt = &now
		expired = order
		return nil
	})
	if err != nil || expired == nil {
		return false, err
	}

	s.logg.Info(s.logg.WithOrderID(ctx, orderID.String()), "orders.expired_unpaid")
	s.notifyStatus(ctx, *expired)
	return true, nil
}

// cancelInTx moves a pending or processing order to cancelled. Stock comes
// back only when the order had been finalized. Coupon usage is not reversed.
func (s *service) cancelInTx(ctx context.Context, tx *gorm.DB, order *models.Order, extra map[string]any) error {
	if !order.Status.Cancellable() {
		return pkgerrors.New(pkgerrors.CodeBusinessRule, fmt.Sprintf("Cannot cancel order with status: %s", order.Status))
	}

	now := s.now()
	fields := map[string]any{
		"status":       enums.OrderStatusCancelled,
		"cancelled_at": now,
	}
	for k, v := range extra {
		fields[k] = v
	}

	ok, err := s.repo.WithTx(tx).TransitionStatus(ctx, order.ID, cancellableStatuses, fields)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed, retry")
	}

	if order.Fulfilled() {
		productRepo := s.products.WithTx(tx)
		for _, line := range order.Items {
			if err := productRepo.RestoreStock(ctx, line.ProductID, line.Quantity); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore stock")
			}
		}
	}

	order.Status = enums.OrderStatusCancelled
	order.CancelledAt = &now
	return nil
}

func (s *service) notifyStatus(ctx context.Context, order models.Order) {
	if s.notifier == nil {
		return
	}
	userID := order.UserID
	err := s.notifier.Notify(ctx, nil, notifications.NotifyInput{
		Audience: enums.NotificationAudienceUser,
		UserID:   &userID,
		Type:     enums.NotificationTypeOrderUpdate,
		Title:    "Order " + titleCase(order.Status.String()),
		Message:  fmt.Sprintf("Your order #%s is now %s", order.OrderNumber, order.Status),
		Link:     "/orders",
	})
	if err != nil {
		s.logg.Error(s.logg.WithOrderID(ctx, order.ID.String()), "orders.status_notify_failed", err)
	}
}

func load(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, error) {
	return found(repo.FindByID(ctx, orderID))
}

// loadForUpdate holds the row lock so cancellation and finalization of the
// same order serialize.
func loadForUpdate(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, error) {
	return found(repo.FindByIDForUpdate(ctx, orderID))
}

func found(order *models.Order, err error) (*models.Order, error) {
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func titleCase(value string) string {
	if value == "" {
		return value
	}
	runes := []rune(value)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
