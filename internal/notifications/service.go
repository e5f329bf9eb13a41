package notifications

import (
	"context"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service defines notification delivery and inbox operations.
type Service interface {
	// Notify persists a notification. When tx is non-nil the write joins that transaction.
	Notify(ctx context.Context, tx *gorm.DB, input NotifyInput) error
	ListForUser(ctx context.Context, userID uuid.UUID, params ListParams) (*ListResult, error)
	ListForAdmin(ctx context.Context, params ListParams) (*ListResult, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

// NotifyInput describes a notification for a single user or for the admin audience.
type NotifyInput struct {
	Audience enums.NotificationAudience
	UserID   *uuid.UUID
	Type     enums.NotificationType
	Title    string
	Message  string
	Link     string
}

// ListParams configures pagination for notifications.
type ListParams struct {
	Limit      int
	Cursor     string
	UnreadOnly bool
}

// ListResult wraps returned notifications and the cursor for the next page.
type ListResult struct {
	Items  []NotificationDTO `json:"items"`
	Cursor string            `json:"cursor"`
}

// NotificationDTO is the API shape of a notification.
type NotificationDTO struct {
	ID        uuid.UUID  `json:"id"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Link      *string    `json:"link,omitempty"`
	IsRead    bool       `json:"is_read"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// NewService wires notifications dependencies.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

func (s *service) Notify(ctx context.Context, tx *gorm.DB, input NotifyInput) error {
	if !input.Audience.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid notification audience")
	}
	if !input.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid notification type")
	}
	switch input.Audience {
	case enums.NotificationAudienceUser:
		if input.UserID == nil || *input.UserID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "user notifications require a user id")
		}
	case enums.NotificationAudienceAdmin:
		if input.UserID != nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "admin notifications must not target a user")
		}
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification title required")
	}

	notification := &models.Notification{
		Audience:  input.Audience,
		UserID:    input.UserID,
		Type:      input.Type,
		Title:     title,
		Message:   strings.TrimSpace(input.Message),
		CreatedAt: s.now().UTC(),
	}
	if link := strings.TrimSpace(input.Link); link != "" {
		notification.Link = &link
	}

	if err := s.repo.WithTx(tx).Create(ctx, notification); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create notification")
	}
	return nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, params ListParams) (*ListResult, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	return s.list(ctx, enums.NotificationAudienceUser, userID, params)
}

func (s *service) ListForAdmin(ctx context.Context, params ListParams) (*ListResult, error) {
	return s.list(ctx, enums.NotificationAudienceAdmin, uuid.Nil, params)
}

func (s *service) list(ctx context.Context, audience enums.NotificationAudience, userID uuid.UUID, params ListParams) (*ListResult, error) {
	query := listNotificationsParams{
		Audience:   audience,
		UserID:     userID,
		Limit:      params.Limit,
		UnreadOnly: params.UnreadOnly,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}

	items := make([]NotificationDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, NotificationDTO{
			ID:        row.ID,
			Type:      row.Type.String(),
			Title:     row.Title,
			Message:   row.Message,
			Link:      row.Link,
			IsRead:    row.ReadAt != nil,
			ReadAt:    row.ReadAt,
			CreatedAt: row.CreatedAt,
		})
	}

	return &ListResult{
		Items:  items,
		Cursor: cursor,
	}, nil
}

func (s *service) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	result, err := s.repo.MarkRead(ctx, userID, notificationID, s.now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if !result.Found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	count, err := s.repo.MarkAllRead(ctx, userID, s.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return count, nil
}
