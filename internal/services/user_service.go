package services

import (
	"context"
	"strings"

	"community-campaigns/internal/models"
	"community-campaigns/internal/repository"
)

// UserLookup is the read-only view of users the campaign engine relies on.
type UserLookup interface {
	GetByID(ctx context.Context, userID uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// UserService handles user-related business logic
type UserService struct {
	users *repository.UserRepository
}

// NewUserService creates a new UserService
func NewUserService(users *repository.UserRepository) *UserService {
	return &UserService{users: users}
}

// GetByID retrieves a user by ID
func (s *UserService) GetByID(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, translateStoreError(err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email
func (s *UserService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if strings.TrimSpace(email) == "" {
		return nil, ErrInvalidInput
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, translateStoreError(err)
	}
	return user, nil
}
