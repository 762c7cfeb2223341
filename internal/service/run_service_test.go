package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprintleague/internal/domain"
	"sprintleague/internal/repository"
	"sprintleague/internal/repository/sqlite"
)

func newTestRepos(t *testing.T) (repository.UserRepository, repository.RunRepository) {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	users := sqlite.NewUserRepository(db)
	runs := sqlite.NewRunRepository(db)
	require.NoError(t, users.Init(context.Background()))
	require.NoError(t, runs.Init(context.Background()))
	return users, runs
}

func seedUser(t *testing.T, users repository.UserRepository, username string, team domain.Team) {
	t.Helper()
	_, err := users.Create(context.Background(), &domain.User{
		Username:     username,
		PasswordHash: "x",
		Role:         domain.RolePlayer,
		Team:         team,
	})
	require.NoError(t, err)
}

func TestSubmitValidatesBounds(t *testing.T) {
	users, runs := newTestRepos(t)
	svc := NewRunService(runs, users, time.UTC, false)
	ctx := context.Background()

	for _, bad := range []int64{0, -1, 49, domain.MaxRunDurationMs + 1} {
		_, err := svc.Submit(ctx, "alice", bad)
		assert.ErrorIs(t, err, ErrInvalidDuration, "duration %d must be rejected", bad)
	}

	for _, good := range []int64{domain.MinRunDurationMs, 7000, domain.MaxRunDurationMs} {
		run, err := svc.Submit(ctx, "alice", good)
		require.NoError(t, err, "duration %d must be accepted", good)
		assert.Equal(t, good, run.DurationMs)
	}
}

func TestSubmitEnforcesDailyCap(t *testing.T) {
	users, runs := newTestRepos(t)
	svc := NewRunService(runs, users, time.UTC, false)
	ctx := context.Background()

	for i := 0; i < domain.DailyRunCap; i++ {
		_, err := svc.Submit(ctx, "alice", 7000)
		require.NoError(t, err)
	}

	_, err := svc.Submit(ctx, "alice", 7000)
	assert.ErrorIs(t, err, ErrDailyCapExceeded)

	_, err = svc.Submit(ctx, "bob", 7000)
	assert.NoError(t, err, "cap is per user")
}

func TestAverageDistinguishesNoData(t *testing.T) {
	users, runs := newTestRepos(t)
	svc := NewRunService(runs, users, time.UTC, false)
	ctx := context.Background()

	_, ok, err := svc.Average(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.Submit(ctx, "alice", 7000)
	require.NoError(t, err)
	_, err = svc.Submit(ctx, "Alice", 8000)
	require.NoError(t, err)

	avg, ok, err := svc.Average(ctx, "ALICE")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(7500), avg)
}

func TestScoreboardReflectsCurrentTeams(t *testing.T) {
	users, runs := newTestRepos(t)
	svc := NewRunService(runs, users, time.UTC, false)
	ctx := context.Background()

	seedUser(t, users, "alice", domain.TeamBlue)
	seedUser(t, users, "bob", domain.TeamWhite)

	_, err := svc.Submit(ctx, "alice", 7000)
	require.NoError(t, err)
	_, err = svc.Submit(ctx, "alice", 8000)
	require.NoError(t, err)
	_, err = svc.Submit(ctx, "bob", 9000)
	require.NoError(t, err)

	totals, err := svc.Scoreboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(15000), totals.BlueMs)
	assert.Equal(t, int64(9000), totals.WhiteMs)

	// the next read reflects a team change for historical runs
	require.NoError(t, users.UpdateTeam(ctx, "alice", domain.TeamWhite))

	totals, err = svc.Scoreboard(ctx)
	require.NoError(t, err)
	assert.Zero(t, totals.BlueMs)
	assert.Equal(t, int64(24000), totals.WhiteMs)
}

func TestLeaderboardTodayOnly(t *testing.T) {
	users, runs := newTestRepos(t)
	svc := NewRunService(runs, users, time.UTC, false)
	ctx := context.Background()

	seedUser(t, users, "alice", domain.TeamBlue)

	// a run from last week must not appear
	_, err := runs.Create(ctx, &domain.Run{
		Username:   "alice",
		DurationMs: 5000,
		CreatedAt:  time.Now().UTC().AddDate(0, 0, -7),
	})
	require.NoError(t, err)

	_, err = svc.Submit(ctx, "alice", 7000)
	require.NoError(t, err)

	rows, err := svc.Leaderboard(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(7000), rows[0].DurationMs)
	assert.Equal(t, 1, rows[0].Index)
	assert.Equal(t, domain.TeamBlue, rows[0].Team)
}

func TestUpdateValidates(t *testing.T) {
	users, runs := newTestRepos(t)
	svc := NewRunService(runs, users, time.UTC, false)
	ctx := context.Background()

	run, err := svc.Submit(ctx, "alice", 7000)
	require.NoError(t, err)

	tooLong := domain.MaxRunDurationMs + 1
	assert.ErrorIs(t, svc.Update(ctx, run.ID, nil, &tooLong), ErrInvalidDuration)

	fixed := int64(7200)
	assert.ErrorIs(t, svc.Update(ctx, 9999, nil, &fixed), ErrRunNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, 9999), ErrRunNotFound)

	require.NoError(t, svc.Update(ctx, run.ID, nil, &fixed))
	require.NoError(t, svc.Delete(ctx, run.ID))
}
