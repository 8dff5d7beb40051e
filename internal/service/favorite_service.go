package service

import (
	"context"

	"parktronic/internal/domain"
	"parktronic/internal/repository"
)

type FavoriteService struct {
	favorites repository.FavoriteRepository
	users     repository.UserRepository
}

func NewFavoriteService(favorites repository.FavoriteRepository, users repository.UserRepository) *FavoriteService {
	return &FavoriteService{favorites: favorites, users: users}
}

func (s *FavoriteService) Add(ctx context.Context, userID, lotID int) error {
	return s.favorites.Add(ctx, userID, lotID)
}

func (s *FavoriteService) Remove(ctx context.Context, userID, lotID int) error {
	return s.favorites.Remove(ctx, userID, lotID)
}

func (s *FavoriteService) List(ctx context.Context, userID int) ([]int, error) {
	return s.favorites.ListByUser(ctx, userID)
}

// Profile is the user's public data with their favorite lot ids.
func (s *FavoriteService) Profile(ctx context.Context, userID int) (*domain.UserProfile, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	lots, err := s.favorites.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &domain.UserProfile{
		Email:       user.Email,
		FirstName:   user.FirstName,
		Username:    user.Username,
		ParkingLots: lots,
	}, nil
}
