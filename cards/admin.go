package cards

import (
	"context"
	"fmt"

	"golang.org/x/exp/slog"

	"github.com/nastian/bankcards/cards/models"
)

// AdminService covers the administrative surface: user management and a
// view over all cards. Reachability is decided by the role middleware;
// each operation still validates the entities it touches.
type AdminService struct {
	repo   *Repository
	logger *slog.Logger
}

func NewAdminService(repo *Repository, logger *slog.Logger) *AdminService {
	return &AdminService{
		repo:   repo,
		logger: logger.With(slog.String("component", "admin")),
	}
}

func (s *AdminService) ListUsers(ctx context.Context, search string, limit, offset int) ([]*models.User, error) {
	return s.repo.ListUsers(ctx, search, limit, offset)
}

func (s *AdminService) UpdateUserRole(ctx context.Context, userID, role string) (*models.User, error) {
	parsed, err := models.ParseUserRole(role)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	user, err := s.repo.UpdateUserRole(ctx, userID, parsed)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user role updated",
		slog.String("user_id", userID),
		slog.String("role", string(parsed)),
	)
	return user, nil
}

func (s *AdminService) DeleteUser(ctx context.Context, userID string) error {
	if err := s.repo.DeleteUser(ctx, userID); err != nil {
		return err
	}
	s.logger.Info("user deleted", slog.String("user_id", userID))
	return nil
}

// ListCards returns all cards regardless of owner, with optional
// masked-number search.
func (s *AdminService) ListCards(ctx context.Context, search string, limit, offset int) ([]*models.Card, error) {
	return s.repo.ListCards(ctx, "", search, limit, offset)
}

func (s *AdminService) DeleteCard(ctx context.Context, cardID string) error {
	if err := s.repo.DeleteCard(ctx, cardID); err != nil {
		return err
	}
	s.logger.Info("card deleted", slog.String("card_id", cardID))
	return nil
}
