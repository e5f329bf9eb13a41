package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// ReturnRequest asks an admin to take back or exchange items from a delivered order.
type ReturnRequest struct {
	ID           uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID      uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index"`
	OrderNumber  string                  `gorm:"column:order_number;not null"`
	UserID       uuid.UUID               `gorm:"column:user_id;type:uuid;not null;index"`
	RequestType  enums.ReturnRequestType `gorm:"column:request_type;type:text;not null"`
	Items        types.ReturnItems       `gorm:"column:items;type:jsonb;serializer:json;not null"`
	Reason       string                  `gorm:"column:reason;not null"`
	Images       pq.StringArray          `gorm:"column:images;type:text[]"`
	Status       enums.ReturnStatus      `gorm:"column:status;type:text;not null"`
	AdminNotes   *string                 `gorm:"column:admin_notes"`
	RefundAmount *decimal.Decimal        `gorm:"column:refund_amount;type:numeric(12,2)"`
	CreatedAt    time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
