package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Notification is an in-app message addressed either to a user or to the admin audience.
type Notification struct {
	ID        uuid.UUID                  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Audience  enums.NotificationAudience `gorm:"column:audience;type:text;not null"`
	UserID    *uuid.UUID                 `gorm:"column:user_id;type:uuid;index"`
	Type      enums.NotificationType     `gorm:"column:type;type:text;not null"`
	Title     string                     `gorm:"column:title;not null"`
	Message   string                     `gorm:"column:message;not null"`
	Link      *string                    `gorm:"column:link"`
	ReadAt    *time.Time                 `gorm:"column:read_at;type:timestamptz"`
	CreatedAt time.Time                  `gorm:"column:created_at;autoCreateTime"`
}
