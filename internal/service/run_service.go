package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sprintleague/internal/aggregate"
	"sprintleague/internal/domain"
	"sprintleague/internal/repository"
)

var (
	// ErrInvalidDuration is returned for durations outside the sprint sanity bounds.
	ErrInvalidDuration = fmt.Errorf("duration must be between %dms and %dms", domain.MinRunDurationMs, domain.MaxRunDurationMs)
	// ErrDailyCapExceeded is returned when the user already has the day's maximum runs.
	ErrDailyCapExceeded = fmt.Errorf("daily cap of %d runs reached", domain.DailyRunCap)
	// ErrRunNotFound is returned when an edit or delete names an unknown run.
	ErrRunNotFound = errors.New("run not found")
)

// RunService coordinates run submission, correction and the aggregated
// league views. All "today" computations share the service's location.
type RunService interface {
	Submit(ctx context.Context, username string, durationMs int64) (*domain.Run, error)
	ListAll(ctx context.Context) ([]domain.Run, error)
	ListFor(ctx context.Context, username string) ([]domain.Run, error)
	Update(ctx context.Context, id int64, username *string, durationMs *int64) error
	Delete(ctx context.Context, id int64) error

	Average(ctx context.Context, username string) (avgMs int64, ok bool, err error)
	Scoreboard(ctx context.Context) (aggregate.TeamTotals, error)
	Leaderboard(ctx context.Context) ([]aggregate.LeaderboardRow, error)
}

type runService struct {
	runs      repository.RunRepository
	users     repository.UserRepository
	loc       *time.Location
	todayOnly bool // scoreboard scope
	now       func() time.Time
}

// NewRunService builds a RunService. loc is the league's canonical
// timezone; todayOnly selects the scoreboard's time scope for this
// deployment.
func NewRunService(runs repository.RunRepository, users repository.UserRepository, loc *time.Location, todayOnly bool) RunService {
	return &runService{
		runs:      runs,
		users:     users,
		loc:       loc,
		todayOnly: todayOnly,
		now:       time.Now,
	}
}

func (s *runService) Submit(ctx context.Context, username string, durationMs int64) (*domain.Run, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrValidation)
	}
	if !domain.ValidDuration(durationMs) {
		return nil, ErrInvalidDuration
	}

	now := s.now().UTC()
	dayStart, dayEnd := aggregate.DayWindow(now, s.loc)

	run := &domain.Run{
		Username:   username,
		DurationMs: durationMs,
		CreatedAt:  now,
	}
	if _, err := s.runs.CreateCapped(ctx, run, dayStart, dayEnd); err != nil {
		if errors.Is(err, repository.ErrDailyCapExceeded) {
			return nil, ErrDailyCapExceeded
		}
		return nil, err
	}
	return run, nil
}

func (s *runService) ListAll(ctx context.Context) ([]domain.Run, error) {
	return s.runs.List(ctx, repository.RunFilter{})
}

func (s *runService) ListFor(ctx context.Context, username string) ([]domain.Run, error) {
	return s.runs.List(ctx, repository.RunFilter{Username: username})
}

func (s *runService) Update(ctx context.Context, id int64, username *string, durationMs *int64) error {
	if username != nil && strings.TrimSpace(*username) == "" {
		return fmt.Errorf("%w: username must not be empty", ErrValidation)
	}
	if durationMs != nil && !domain.ValidDuration(*durationMs) {
		return ErrInvalidDuration
	}
	if err := s.runs.Update(ctx, id, username, durationMs); err != nil {
		return mapRunErr(err)
	}
	return nil
}

func (s *runService) Delete(ctx context.Context, id int64) error {
	if err := s.runs.Delete(ctx, id); err != nil {
		return mapRunErr(err)
	}
	return nil
}

// Average is the caller's all-time mean duration. ok reports whether
// any runs exist; an average of 0 is never used to mean "no data".
func (s *runService) Average(ctx context.Context, username string) (int64, bool, error) {
	runs, err := s.runs.List(ctx, repository.RunFilter{Username: username})
	if err != nil {
		return 0, false, err
	}
	avg, ok := aggregate.UserAverage(runs)
	return avg, ok, nil
}

func (s *runService) Scoreboard(ctx context.Context) (aggregate.TeamTotals, error) {
	filter := repository.RunFilter{}
	if s.todayOnly {
		filter.Since, filter.Until = aggregate.DayWindow(s.now(), s.loc)
	}

	runs, err := s.runs.List(ctx, filter)
	if err != nil {
		return aggregate.TeamTotals{}, err
	}
	users, err := s.users.List(ctx)
	if err != nil {
		return aggregate.TeamTotals{}, err
	}
	return aggregate.SumTeamTotals(runs, users), nil
}

func (s *runService) Leaderboard(ctx context.Context) ([]aggregate.LeaderboardRow, error) {
	since, until := aggregate.DayWindow(s.now(), s.loc)
	runs, err := s.runs.List(ctx, repository.RunFilter{Since: since, Until: until})
	if err != nil {
		return nil, err
	}
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	return aggregate.Leaderboard(runs, users), nil
}

func mapRunErr(err error) error {
	if strings.Contains(strings.ToLower(err.Error()), "not found") {
		return ErrRunNotFound
	}
	return err
}
