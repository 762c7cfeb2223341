package repository

import (
	"context"
	"errors"
	"time"

	"sprintleague/internal/domain"
)

// ErrDailyCapExceeded is returned by CreateCapped when the user already
// has the maximum number of runs for the day window.
var ErrDailyCapExceeded = errors.New("daily run cap exceeded")

// RunFilter narrows List results. Zero values mean "no constraint".
type RunFilter struct {
	Username string    // case-insensitive match
	Since    time.Time // inclusive lower bound on created_at
	Until    time.Time // exclusive upper bound on created_at
}

// RunRepository exposes persistence operations for Run records.
type RunRepository interface {
	Init(ctx context.Context) error
	// CreateCapped inserts the run only if the user has fewer than
	// domain.DailyRunCap runs inside [dayStart, dayEnd). The check and
	// insert are a single statement so two concurrent submissions near
	// the cap cannot both slip through.
	CreateCapped(ctx context.Context, run *domain.Run, dayStart, dayEnd time.Time) (int64, error)
	Create(ctx context.Context, run *domain.Run) (int64, error)
	Get(ctx context.Context, id int64) (*domain.Run, error)
	List(ctx context.Context, filter RunFilter) ([]domain.Run, error)
	Update(ctx context.Context, id int64, username *string, durationMs *int64) error
	Delete(ctx context.Context, id int64) error
}
