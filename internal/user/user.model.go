package user

import (
	"time"

	"github.com/google/uuid"

	"spendSmartAPI/internal/notification"
)

const (
	DefaultMonthlyBudget = 1000
	DefaultCurrency      = "USD"
)

type User struct {
	ID            uuid.UUID                  `json:"id"`
	ClerkID       string                     `json:"clerkId"`
	Email         string                     `json:"email"`
	Username      string                     `json:"username"`
	FirstName     string                     `json:"firstName"`
	LastName      string                     `json:"lastName"`
	ImageURL      string                     `json:"imageUrl,omitempty"`
	EmailVerified bool                       `json:"emailVerified"`
	MonthlyBudget float64                    `json:"monthlyBudget"`
	Currency      string                     `json:"currency"`
	DeviceTokens  []notification.DeviceToken `json:"-"`
	CreatedAt     time.Time                  `json:"createdAt"`
	UpdatedAt     time.Time                  `json:"updatedAt"`
}
