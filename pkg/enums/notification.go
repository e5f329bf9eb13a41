package enums

import "fmt"

// NotificationType classifies in-app notifications.
type NotificationType string

const (
	NotificationTypeOrderUpdate NotificationType = "order_update"
	NotificationTypeStockAlert  NotificationType = "stock_alert"
	NotificationTypePriceDrop   NotificationType = "price_drop"
	NotificationTypeReturn      NotificationType = "return_request"
	NotificationTypeReturnState NotificationType = "return_update"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeOrderUpdate,
	NotificationTypeStockAlert,
	NotificationTypePriceDrop,
	NotificationTypeReturn,
	NotificationTypeReturnState,
}

func (n NotificationType) String() string {
	return string(n)
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}

// NotificationAudience routes a notification to one user or to every administrator.
type NotificationAudience string

const (
	NotificationAudienceUser  NotificationAudience = "user"
	NotificationAudienceAdmin NotificationAudience = "admin"
)

var validNotificationAudiences = []NotificationAudience{
	NotificationAudienceUser,
	NotificationAudienceAdmin,
}

func (a NotificationAudience) String() string {
	return string(a)
}

func (a NotificationAudience) IsValid() bool {
	for _, candidate := range validNotificationAudiences {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseNotificationAudience converts raw strings into NotificationAudience.
func ParseNotificationAudience(value string) (NotificationAudience, error) {
	for _, candidate := range validNotificationAudiences {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification audience %q", value)
}
