package returns

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/money"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/angelmondragon/storefront-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	// Window is how long after delivery a request may be opened.
	Window    = 7 * 24 * time.Hour
	maxImages = 5
)

// Notifier delivers in-app notifications.
type Notifier interface {
	Notify(ctx context.Context, tx *gorm.DB, input notifications.NotifyInput) error
}

// Refunder sends money back through the payment gateway.
type Refunder interface {
	RefundAmount(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal) (*payments.RefundResult, error)
}

// Service handles return and exchange requests for delivered orders.
type Service interface {
	Create(ctx context.Context, userID uuid.UUID, input CreateInput) (*RequestDTO, error)
	ListMine(ctx context.Context, userID uuid.UUID, params pagination.Params) (*ListResult, error)
	Get(ctx context.Context, userID uuid.UUID, isAdmin bool, requestID uuid.UUID) (*RequestDTO, error)
	AdminList(ctx context.Context, params AdminListParams) (*ListResult, error)
	// UpdateStatus applies an admin decision. Completing a return of a paid
	// online order refunds it through the gateway.
	UpdateStatus(ctx context.Context, requestID uuid.UUID, input StatusInput) (*RequestDTO, error)
}

type ServiceParams struct {
	Repo       Repository
	Orders     orders.Repository
	Transactor db.Transactor
	Notifier   Notifier
	Refunder   Refunder
	Logger     *logger.Logger
}

type service struct {
	repo     Repository
	orders   orders.Repository
	tx       db.Transactor
	notifier Notifier
	refunder Refunder
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "returns repo is required")
	case params.Orders == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order repo is required")
	case params.Transactor == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transactor is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:     params.Repo,
		orders:   params.Orders,
		tx:       params.Transactor,
		notifier: params.Notifier,
		refunder: params.Refunder,
		logg:     logg,
		now:      time.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, userID uuid.UUID, input CreateInput) (*RequestDTO, error) {
	requestType, err := enums.ParseReturnRequestType(strings.ToLower(strings.TrimSpace(input.RequestType)))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}
	images, err := cleanImages(input.Images)
	if err != nil {
		return nil, err
	}

	order, err := s.loadOrder(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "Not authorized")
	}
	if order.Status != enums.OrderStatusDelivered {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "Only delivered orders can be returned or exchanged")
	}
	deliveredAt := order.UpdatedAt
	if order.DeliveredAt != nil {
		deliveredAt = *order.DeliveredAt
	}
	if s.now().Sub(deliveredAt) > Window {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "Return window of 7 days has expired")
	}

	items, err := matchItems(order.Items, input.Items)
	if err != nil {
		return nil, err
	}

	open, err := s.repo.HasOpen(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check open requests")
	}
	if open {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "A return request is already open for this order")
	}

	request := &models.ReturnRequest{
		ID:          uuid.New(),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      userID,
		RequestType: requestType,
		Items:       items,
		Reason:      reason,
		Images:      pq.StringArray(images),
		Status:      enums.ReturnStatusPending,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, request); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "A return request is already open for this order")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create return request")
		}
		if s.notifier == nil {
			return nil
		}
		return s.notifier.Notify(ctx, tx, notifications.NotifyInput{
			Audience: enums.NotificationAudienceAdmin,
			Type:     enums.NotificationTypeReturn,
			Title:    "New Return/Exchange Request",
			Message:  fmt.Sprintf("Order #%s: %s request for %d item(s)", order.OrderNumber, requestType, len(items)),
			Link:     "/admin/returns",
		})
	})
	if err != nil {
		return nil, err
	}

	dto := newRequestDTO(*request)
	return &dto, nil
}

func (s *service) ListMine(ctx context.Context, userID uuid.UUID, params pagination.Params) (*ListResult, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	return s.list(ctx, listParams{UserID: &userID, Limit: params.Limit}, params.Cursor)
}

func (s *service) AdminList(ctx context.Context, params AdminListParams) (*ListResult, error) {
	query := listParams{Limit: params.Limit}
	if status := strings.TrimSpace(params.Status); status != "" {
		parsed, err := enums.ParseReturnStatus(strings.ToLower(status))
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
		}
		query.Status = &parsed
	}
	return s.list(ctx, query, params.Cursor)
}

func (s *service) Get(ctx context.Context, userID uuid.UUID, isAdmin bool, requestID uuid.UUID) (*RequestDTO, error) {
	request, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.UserID != userID && !isAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "Not authorized")
	}
	dto := newRequestDTO(*request)
	return &dto, nil
}

func (s *service) UpdateStatus(ctx context.Context, requestID uuid.UUID, input StatusInput) (*RequestDTO, error) {
	next, err := enums.ParseReturnStatus(strings.ToLower(strings.TrimSpace(input.Status)))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}
	request, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !request.Status.CanMoveTo(next) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("Cannot move a %s request to %s", request.Status, next))
	}
	refunds := next == enums.ReturnStatusCompleted && request.RequestType == enums.ReturnRequestTypeReturn
	if input.RefundAmount != nil {
		if !refunds {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund_amount only applies when completing a return")
		}
		if input.RefundAmount.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund_amount must not be negative")
		}
	}

	fields := map[string]any{"status": next}
	if input.AdminNotes != nil {
		notes := strings.TrimSpace(*input.AdminNotes)
		fields["admin_notes"] = notes
		request.AdminNotes = &notes
	}

	var refund *RefundDTO
	if refunds {
		refund, err = s.complete(ctx, request, input.RefundAmount, fields)
	} else {
		err = s.transition(ctx, request, fields)
	}
	if err != nil {
		return nil, err
	}
	request.Status = next
	s.notifyOwner(ctx, *request)

	if updated, err := s.repo.FindByID(ctx, request.ID); err == nil {
		request = updated
	}
	dto := newRequestDTO(*request)
	dto.Refund = refund
	return &dto, nil
}

// complete claims the request before refunding so two admins cannot refund
// the same return twice. A failed gateway call puts the request back.
func (s *service) complete(ctx context.Context, request *models.ReturnRequest, requested *decimal.Decimal, fields map[string]any) (*RefundDTO, error) {
	order, err := s.loadOrder(ctx, request.OrderID)
	if err != nil {
		return nil, err
	}
	amount, err := s.refundable(ctx, request, order, requested)
	if err != nil {
		return nil, err
	}
	fields["refund_amount"] = amount
	request.RefundAmount = &amount

	from := request.Status
	if err := s.transition(ctx, request, fields); err != nil {
		return nil, err
	}

	online := order.PaymentMethod.Online() && order.PaymentStatus == enums.PaymentStatusPaid
	if !online || amount.IsZero() {
		return nil, nil
	}

	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	if s.refunder == nil {
		s.revert(ctx, request.ID, from)
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "Online refunds are not configured")
	}
	result, err := s.refunder.RefundAmount(ctx, order.ID, amount)
	if err != nil {
		s.revert(ctx, request.ID, from)
		return nil, err
	}
	return &RefundDTO{ID: result.RefundID, Amount: result.Amount, Status: result.Status}, nil
}

// refundable defaults to the value of the returned items and never lets
// completed returns refund more than the order total.
func (s *service) refundable(ctx context.Context, request *models.ReturnRequest, order *models.Order, requested *decimal.Decimal) (decimal.Decimal, error) {
	already, err := s.repo.RefundedTotal(ctx, order.ID, request.ID)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum refunds")
	}
	remaining := money.ClampZero(order.TotalAmount.Sub(already))

	amount := request.Items.Total()
	if requested != nil {
		amount = *requested
	}
	amount = money.Round(amount)
	if requested != nil && amount.GreaterThan(remaining) {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeBusinessRule,
			fmt.Sprintf("Refund exceeds the refundable balance of %s", money.Format(remaining)))
	}
	return money.Min(amount, remaining), nil
}

func (s *service) transition(ctx context.Context, request *models.ReturnRequest, fields map[string]any) error {
	ok, err := s.repo.TransitionStatus(ctx, request.ID, request.Status, fields)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update return request")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "return request changed, retry")
	}
	return nil
}

func (s *service) revert(ctx context.Context, id uuid.UUID, to enums.ReturnStatus) {
	_, err := s.repo.TransitionStatus(context.WithoutCancel(ctx), id, enums.ReturnStatusCompleted, map[string]any{
		"status":        to,
		"refund_amount": nil,
	})
	if err != nil {
		s.logg.Error(ctx, "returns.revert_failed", err)
	}
}

func (s *service) notifyOwner(ctx context.Context, request models.ReturnRequest) {
	if s.notifier == nil {
		return
	}
	userID := request.UserID
	err := s.notifier.Notify(ctx, nil, notifications.NotifyInput{
		Audience: enums.NotificationAudienceUser,
		UserID:   &userID,
		Type:     enums.NotificationTypeReturnState,
		Title:    "Return Request " + titleCase(request.Status.String()),
		Message:  fmt.Sprintf("Your %s request for order #%s has been %s", request.RequestType, request.OrderNumber, request.Status),
		Link:     "/orders",
	})
	if err != nil {
		s.logg.Error(s.logg.WithOrderID(ctx, request.OrderID.String()), "returns.status_notify_failed", err)
	}
}

func (s *service) list(ctx context.Context, params listParams, rawCursor string) (*ListResult, error) {
	if rawCursor != "" {
		cursor, err := pagination.ParseCursor(rawCursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		params.Cursor = cursor
	}
	rows, next, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list return requests")
	}
	result := &ListResult{Items: make([]RequestDTO, 0, len(rows))}
	for _, row := range rows {
		result.Items = append(result.Items, newRequestDTO(row))
	}
	if next != nil {
		result.Cursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error) {
	request, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Return request not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load return request")
	}
	return request, nil
}

func (s *service) loadOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

// matchItems checks every requested line against the order and snapshots
// its name and unit price. Repeated lines are merged.
func matchItems(lines types.OrderLines, requested []ItemInput) (types.ReturnItems, error) {
	if len(requested) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	type key struct {
		product uuid.UUID
		sku     string
	}
	index := map[key]int{}
	out := make(types.ReturnItems, 0, len(requested))
	for _, item := range requested {
		if item.Quantity < 1 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
		}
		k := key{item.ProductID, strings.TrimSpace(item.VariantSKU)}
		line, ok := findLine(lines, k.product, k.sku)
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item is not part of this order")
		}
		if i, seen := index[k]; seen {
			out[i].Quantity += item.Quantity
		} else {
			index[k] = len(out)
			out = append(out, types.ReturnItem{
				ProductID:   line.ProductID,
				VariantSKU:  line.VariantSKU,
				ProductName: line.ProductName,
				UnitPrice:   line.UnitPrice,
				Quantity:    item.Quantity,
				Reason:      strings.TrimSpace(item.Reason),
			})
		}
		if out[index[k]].Quantity > line.Quantity {
			return nil, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("cannot return more than %d of %s", line.Quantity, line.ProductName))
		}
	}
	return out, nil
}

func findLine(lines types.OrderLines, productID uuid.UUID, sku string) (types.OrderLine, bool) {
	for _, line := range lines {
		if line.ProductID == productID && line.VariantSKU == sku {
			return line, true
		}
	}
	return types.OrderLine{}, false
}

func cleanImages(raw []string) ([]string, error) {
	if len(raw) > maxImages {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at most 5 images are allowed")
	}
	out := make([]string, 0, len(raw))
	for _, image := range raw {
		image = strings.TrimSpace(image)
		parsed, err := url.ParseRequestURI(image)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "images must be http or https URLs")
		}
		out = append(out, image)
	}
	return out, nil
}

func titleCase(value string) string {
	if value == "" {
		return value
	}
	runes := []rune(value)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
