package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprintleague/internal/domain"
	"sprintleague/internal/repository"
)

func seedPlayerWithRuns(t *testing.T, users repository.UserRepository, runs repository.RunRepository, username string, durations ...int64) {
	t.Helper()
	seedUser(t, users, username, domain.TeamNone)
	for _, d := range durations {
		_, err := runs.Create(context.Background(), &domain.Run{Username: username, DurationMs: d})
		require.NoError(t, err)
	}
}

func TestProposeBalance(t *testing.T) {
	users, runs := newTestRepos(t)
	svc := NewRosterService(runs, users)
	ctx := context.Background()

	seedPlayerWithRuns(t, users, runs, "a", 10000)
	seedPlayerWithRuns(t, users, runs, "b", 12000)
	seedPlayerWithRuns(t, users, runs, "c", 11000)

	proposal, err := svc.ProposeBalance(ctx)
	require.NoError(t, err)

	// total 33000, target 16500: b alone is the closest 1-subset
	assert.Equal(t, []string{"b"}, proposal.Blue)
	assert.ElementsMatch(t, []string{"a", "c"}, proposal.White)
	assert.Equal(t, int64(12000), proposal.BlueSumMs)
	assert.Equal(t, int64(21000), proposal.WhiteSumMs)
	assert.Equal(t, int64(9000), proposal.DeltaMs)
	assert.Empty(t, proposal.Imputed)
	assert.NotEmpty(t, proposal.ID)

	// proposing writes nothing
	u, err := users.GetByUsername(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, domain.TeamNone, u.Team)
}

func TestProposeBalanceImputesNewcomers(t *testing.T) {
	users, runs := newTestRepos(t)
	svc := NewRosterService(runs, users)

	seedPlayerWithRuns(t, users, runs, "vet1", 8000)
	seedPlayerWithRuns(t, users, runs, "vet2", 10000)
	seedPlayerWithRuns(t, users, runs, "rookie") // no runs yet

	proposal, err := svc.ProposeBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"rookie"}, proposal.Imputed, "players without history stay in the pool")
	assert.Len(t, append(proposal.Blue, proposal.White...), 3)
}

func TestProposeBalanceExcludesCoaches(t *testing.T) {
	users, runs := newTestRepos(t)
	svc := NewRosterService(runs, users)
	ctx := context.Background()

	seedPlayerWithRuns(t, users, runs, "a", 10000)
	seedPlayerWithRuns(t, users, runs, "coach")
	require.NoError(t, users.UpdateRole(ctx, "coach", domain.RoleCoach))

	_, err := svc.ProposeBalance(ctx)
	assert.ErrorIs(t, err, ErrTooFewPlayers, "one player and a coach is nothing to balance")
}

func TestConfirmBalanceAppliesTeams(t *testing.T) {
	users, runs := newTestRepos(t)
	svc := NewRosterService(runs, users)
	ctx := context.Background()

	seedPlayerWithRuns(t, users, runs, "a", 10000)
	seedPlayerWithRuns(t, users, runs, "b", 12000)
	seedPlayerWithRuns(t, users, runs, "c", 11000)
	seedPlayerWithRuns(t, users, runs, "d", 9000)

	proposal, err := svc.ProposeBalance(ctx)
	require.NoError(t, err)

	applied, err := svc.ConfirmBalance(ctx, proposal.ID)
	require.NoError(t, err)
	assert.Equal(t, proposal.ID, applied.ID)

	for _, username := range proposal.Blue {
		u, err := users.GetByUsername(ctx, username)
		require.NoError(t, err)
		assert.Equal(t, domain.TeamBlue, u.Team)
	}
	for _, username := range proposal.White {
		u, err := users.GetByUsername(ctx, username)
		require.NoError(t, err)
		assert.Equal(t, domain.TeamWhite, u.Team)
	}

	// a proposal confirms once
	_, err = svc.ConfirmBalance(ctx, proposal.ID)
	assert.ErrorIs(t, err, ErrProposalNotFound)
}

func TestConfirmBalanceUnknownOrExpired(t *testing.T) {
	users, runs := newTestRepos(t)
	svc := NewRosterService(runs, users).(*rosterService)
	ctx := context.Background()

	_, err := svc.ConfirmBalance(ctx, "nope")
	assert.ErrorIs(t, err, ErrProposalNotFound)

	seedPlayerWithRuns(t, users, runs, "a", 10000)
	seedPlayerWithRuns(t, users, runs, "b", 12000)

	proposal, err := svc.ProposeBalance(ctx)
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(proposalTTL + time.Minute) }
	_, err = svc.ConfirmBalance(ctx, proposal.ID)
	assert.ErrorIs(t, err, ErrProposalNotFound)
}
