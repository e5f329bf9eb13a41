package returns

import (
	"context"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var openStatuses = []enums.ReturnStatus{enums.ReturnStatusPending, enums.ReturnStatusApproved}

// Repository persists return and exchange requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, request *models.ReturnRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error)
	// HasOpen reports whether the order already has a pending or approved request.
	HasOpen(ctx context.Context, orderID uuid.UUID) (bool, error)
	List(ctx context.Context, params listParams) ([]models.ReturnRequest, *pagination.Cursor, error)
	// TransitionStatus applies fields only while the request is still in from.
	TransitionStatus(ctx context.Context, id uuid.UUID, from enums.ReturnStatus, fields map[string]any) (bool, error)
	// RefundedTotal sums refund amounts of completed requests for the order,
	// leaving out excludeID.
	RefundedTotal(ctx context.Context, orderID, excludeID uuid.UUID) (decimal.Decimal, error)
}

type listParams struct {
	UserID *uuid.UUID
	Status *enums.ReturnStatus
	Limit  int
	Cursor *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, request *models.ReturnRequest) error {
	if request.ID == uuid.Nil {
		request.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error) {
	var request models.ReturnRequest
	if err := r.db.WithContext(ctx).First(&request, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) HasOpen(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ReturnRequest{}).
		Where("order_id = ? AND status IN ?", orderID, openStatuses).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) List(ctx context.Context, params listParams) ([]models.ReturnRequest, *pagination.Cursor, error) {
	normalized := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).Model(&models.ReturnRequest{})
	if params.UserID != nil {
		query = query.Where("user_id = ?", *params.UserID)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Cursor != nil {
		query = query.Where("((created_at < ?) OR (created_at = ? AND id < ?))",
			params.Cursor.CreatedAt, params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var rows []models.ReturnRequest
	if err := query.Order("created_at DESC, id DESC").Limit(pagination.LimitWithBuffer(params.Limit)).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	if len(rows) > normalized {
		last := rows[normalized-1]
		return rows[:normalized], &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}, nil
	}
	return rows, nil, nil
}

func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from enums.ReturnStatus, fields map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ReturnRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) RefundedTotal(ctx context.Context, orderID, excludeID uuid.UUID) (decimal.Decimal, error) {
	var amounts []decimal.NullDecimal
	err := r.db.WithContext(ctx).
		Model(&models.ReturnRequest{}).
		Where("order_id = ? AND status = ? AND id <> ?", orderID, enums.ReturnStatusCompleted, excludeID).
		Pluck("refund_amount", &amounts).Error
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, amount := range amounts {
		if amount.Valid {
			total = total.Add(amount.Decimal)
		}
	}
	return total, nil
}
