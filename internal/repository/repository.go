package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"spendSmartAPI/internal/achievement"
	"spendSmartAPI/internal/challenge"
	"spendSmartAPI/internal/expense"
	"spendSmartAPI/internal/notification"
	"spendSmartAPI/internal/streak"
	"spendSmartAPI/internal/user"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// Store is the persistence contract of the gamification engine.
//
// Everything that mutates a user's gamification state goes through WithUser,
// which runs fn as a single atomic unit with writers for that user
// serialised. If fn returns an error nothing it wrote is kept.
type Store interface {
	Ping(ctx context.Context) error

	WithUser(ctx context.Context, userID uuid.UUID, fn func(tx Tx) error) error

	UpsertUser(ctx context.Context, u *user.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*user.User, error)
	GetUserByClerkID(ctx context.Context, clerkID string) (*user.User, error)
	UpdateUser(ctx context.Context, u *user.User) error
	DeleteUserByClerkID(ctx context.Context, clerkID string) error
	AddDeviceToken(ctx context.Context, userID uuid.UUID, token notification.DeviceToken) error

	CreateTemplate(ctx context.Context, t *challenge.Template) error
	GetTemplate(ctx context.Context, id uuid.UUID) (*challenge.Template, error)
	ListTemplates(ctx context.Context) ([]challenge.Template, error)

	// CreateAchievement inserts a catalog entry unless one with the same name
	// exists, and reports whether it inserted.
	CreateAchievement(ctx context.Context, a *achievement.Achievement) (bool, error)
	ListAchievements(ctx context.Context) ([]achievement.Achievement, error)

	// ListDueChallenges pages through active instances expired at now, in
	// (expires_at, id) order, starting strictly after the cursor.
	ListDueChallenges(ctx context.Context, now time.Time, after challenge.Cursor, limit int) ([]challenge.Instance, error)

	// Expense edits and deletes are scoped to the owner and return
	// ErrNotFound for anyone else's expense.
	GetExpense(ctx context.Context, userID, id uuid.UUID) (*expense.Expense, error)
	UpdateExpense(ctx context.Context, e *expense.Expense) error
	DeleteExpense(ctx context.Context, userID, id uuid.UUID) error
	ListExpenses(ctx context.Context, userID uuid.UUID, limit int) ([]expense.Expense, error)
	ListStreaks(ctx context.Context, userID uuid.UUID) ([]streak.Streak, error)
	ListUserAchievements(ctx context.Context, userID uuid.UUID) ([]achievement.UserAchievement, error)
}

// Tx is the per-user unit of work handed to WithUser callbacks. All methods
// are scoped to the locked user.
type Tx interface {
	User() *user.User

	// ActiveChallenge returns ErrNotFound when the user has none.
	ActiveChallenge(ctx context.Context) (*challenge.Instance, error)
	GetChallenge(ctx context.Context, id uuid.UUID) (*challenge.Instance, error)
	ListChallenges(ctx context.Context) ([]challenge.Instance, error)
	// InsertChallenge returns ErrDuplicate when another active instance exists.
	InsertChallenge(ctx context.Context, inst *challenge.Instance) error
	UpdateChallenge(ctx context.Context, inst *challenge.Instance) error
	CountCompletedChallenges(ctx context.Context) (int, error)

	InsertExpense(ctx context.Context, e *expense.Expense) error
	CountExpenses(ctx context.Context) (int, error)
	SumExpenses(ctx context.Context, from, to time.Time) (float64, error)

	// GetStreak returns a zero record for kinds the user never touched.
	GetStreak(ctx context.Context, kind streak.ActivityKind) (*streak.Streak, error)
	SaveStreak(ctx context.Context, s *streak.Streak) error
	ListStreaks(ctx context.Context) ([]streak.Streak, error)

	ListUserAchievements(ctx context.Context) ([]achievement.UserAchievement, error)
	// AwardIfAbsent inserts the award unless the pair already exists and
	// reports whether this call created it.
	AwardIfAbsent(ctx context.Context, award achievement.UserAchievement) (bool, error)
}
