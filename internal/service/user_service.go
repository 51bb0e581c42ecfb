package service

import (
	"context"
	"errors"

	"trainsync/internal/domain"
	"trainsync/internal/repository"
)

const (
	DefaultLeaderboardSize = 20
	MaxLeaderboardSize     = 100
)

var ErrUserNotFound = errors.New("user not found")

// UserService reads other users' public records.
type UserService interface {
	Leaderboard(ctx context.Context, limit int) ([]domain.User, error)
	GetUser(ctx context.Context, id string) (*domain.User, error)
}

type userService struct {
	userRepo repository.UserRepository
}

func NewUserService(userRepo repository.UserRepository) UserService {
	return &userService{userRepo: userRepo}
}

// Leaderboard returns users by points, highest first.
func (s *userService) Leaderboard(ctx context.Context, limit int) ([]domain.User, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardSize
	}
	if limit > MaxLeaderboardSize {
		limit = MaxLeaderboardSize
	}
	return s.userRepo.List(ctx, repository.ListQuery{Sort: "-points", Limit: limit})
}

func (s *userService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	u, err := s.userRepo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}
