package repository

import (
	"context"

	"sprintleague/internal/domain"
)

// UserRepository defines persistence operations for User entities.
// Username lookups are case-insensitive.
type UserRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, user *domain.User) (int64, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	UpdateRole(ctx context.Context, username string, role domain.Role) error
	UpdateTeam(ctx context.Context, username string, team domain.Team) error
}
