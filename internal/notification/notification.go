package notification

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationAchievement        NotificationType = "achievement"
	NotificationChallengeCompleted NotificationType = "challenge_completed"
	NotificationChallengeExpired   NotificationType = "challenge_expired"
)

type DeviceToken struct {
	Token    string `json:"token" db:"token"`
	Platform string `json:"platform" db:"platform"`
}

type Notification struct {
	ID        uuid.UUID         `json:"id"`
	UserID    uuid.UUID         `json:"user_id"`
	Type      NotificationType  `json:"type"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data"`
	CreatedAt time.Time         `json:"created_at"`
}

type RegisterDeviceRequest struct {
	Token    string `json:"token" validate:"required"`
	Platform string `json:"platform" validate:"required,oneof=ios android web"`
}
