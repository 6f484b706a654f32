package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"spendSmartAPI/internal/clock"
	"spendSmartAPI/internal/notification"
	"spendSmartAPI/internal/repository"
	"spendSmartAPI/internal/user"
)

type UserService struct {
	store repository.Store
	clock clock.Clock
}

func NewUserService(store repository.Store, clk clock.Clock) *UserService {
	return &UserService{store: store, clock: clk}
}

// CreateUser provisions a user from a Clerk sign-up. Replaying the same
// Clerk ID refreshes the identity fields and keeps budget settings.
func (s *UserService) CreateUser(ctx context.Context, req *user.CreateUserRequest) (*user.User, error) {
	if strings.TrimSpace(req.ClerkID) == "" {
		return nil, validationErr("clerk id is required")
	}

	now := s.clock.Now()
	u := &user.User{
		ID:            uuid.New(),
		ClerkID:       req.ClerkID,
		Email:         req.Email,
		Username:      req.Username,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		ImageURL:      req.ImageURL,
		EmailVerified: req.EmailVerified,
		MonthlyBudget: user.DefaultMonthlyBudget,
		Currency:      user.DefaultCurrency,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.store.UpsertUser(ctx, u); err != nil {
		return nil, storageErr("create user", err)
	}
	return u, nil
}

func (s *UserService) GetUserByClerkID(ctx context.Context, clerkID string) (*user.User, error) {
	u, err := s.store.GetUserByClerkID(ctx, clerkID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, storageErr("get user", err)
	}
	return u, nil
}

// UpdateProfileByClerkID applies the non-empty fields of req.
func (s *UserService) UpdateProfileByClerkID(ctx context.Context, clerkID string, req *user.UpdateProfileRequest) (*user.User, error) {
	u, err := s.GetUserByClerkID(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	if req.Username != "" {
		u.Username = req.Username
	}
	if req.FirstName != "" {
		u.FirstName = req.FirstName
	}
	if req.LastName != "" {
		u.LastName = req.LastName
	}
	if req.ImageURL != "" {
		u.ImageURL = req.ImageURL
	}
	if req.MonthlyBudget != nil {
		if *req.MonthlyBudget < 0 {
			return nil, validationErr("monthly budget cannot be negative")
		}
		u.MonthlyBudget = *req.MonthlyBudget
	}
	if req.Currency != "" {
		u.Currency = strings.ToUpper(req.Currency)
	}
	u.UpdatedAt = s.clock.Now()

	if err := s.store.UpdateUser(ctx, u); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, storageErr("update user", err)
	}
	return u, nil
}

func (s *UserService) DeleteUserByClerkID(ctx context.Context, clerkID string) error {
	err := s.store.DeleteUserByClerkID(ctx, clerkID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrUserNotFound
	}
	return storageErr("delete user", err)
}

func (s *UserService) RegisterDevice(ctx context.Context, clerkID string, req *notification.RegisterDeviceRequest) error {
	u, err := s.GetUserByClerkID(ctx, clerkID)
	if err != nil {
		return err
	}
	token := notification.DeviceToken{Token: req.Token, Platform: req.Platform}
	if err := s.store.AddDeviceToken(ctx, u.ID, token); err != nil {
		return storageErr("register device", err)
	}
	return nil
}
