package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"sprintleague/internal/aggregate"
	"sprintleague/internal/domain"
	"sprintleague/internal/repository"
)

// proposalTTL bounds how long a balance proposal stays confirmable.
const proposalTTL = 10 * time.Minute

var (
	// ErrProposalNotFound is returned when confirming an unknown or expired proposal.
	ErrProposalNotFound = errors.New("proposal not found or expired")
	// ErrTooFewPlayers mirrors the aggregate error at the service boundary.
	ErrTooFewPlayers = aggregate.ErrTooFewPlayers
)

// BalanceProposal is a proposed two-team split. Nothing is written
// until a coach confirms it by id; the sums and delta give the coach
// the numbers needed to reject a bad split.
type BalanceProposal struct {
	ID         string
	Blue       []string
	White      []string
	BlueSumMs  int64
	WhiteSumMs int64
	DeltaMs    int64
	Imputed    []string
	ExpiresAt  time.Time
}

// RosterService produces and applies balanced team splits.
type RosterService interface {
	ProposeBalance(ctx context.Context) (*BalanceProposal, error)
	ConfirmBalance(ctx context.Context, id string) (*BalanceProposal, error)
}

type rosterService struct {
	runs  repository.RunRepository
	users repository.UserRepository
	now   func() time.Time

	mu        sync.Mutex
	proposals map[string]*BalanceProposal
}

func NewRosterService(runs repository.RunRepository, users repository.UserRepository) RosterService {
	return &rosterService{
		runs:      runs,
		users:     users,
		now:       time.Now,
		proposals: make(map[string]*BalanceProposal),
	}
}

func (s *rosterService) ProposeBalance(ctx context.Context) (*BalanceProposal, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}

	var players []aggregate.Player
	for _, u := range users {
		if u.Role != domain.RolePlayer {
			continue
		}
		players = append(players, aggregate.Player{Username: u.Username})
	}
	if len(players) < 2 {
		return nil, ErrTooFewPlayers
	}

	runs, err := s.runs.List(ctx, repository.RunFilter{})
	if err != nil {
		return nil, err
	}

	// known averages keyed by normalized username
	grouped := make(map[string][]domain.Run)
	for _, r := range runs {
		key := domain.NormalizeUsername(r.Username)
		grouped[key] = append(grouped[key], r)
	}
	known := make(map[string]int64)
	for key, userRuns := range grouped {
		if avg, ok := aggregate.UserAverage(userRuns); ok {
			known[key] = avg
		}
	}

	players = aggregate.ImputeAverages(players, known)
	part, err := aggregate.BalancedPartition(players)
	if err != nil {
		return nil, err
	}

	var imputed []string
	for _, p := range players {
		if p.Imputed {
			imputed = append(imputed, p.Username)
		}
	}

	proposal := &BalanceProposal{
		ID:         uuid.NewString(),
		Blue:       part.Small,
		White:      part.Large,
		BlueSumMs:  part.SmallSumMs,
		WhiteSumMs: part.LargeSumMs,
		DeltaMs:    part.DeltaMs,
		Imputed:    imputed,
		ExpiresAt:  s.now().Add(proposalTTL),
	}

	s.mu.Lock()
	s.prune()
	s.proposals[proposal.ID] = proposal
	s.mu.Unlock()

	return proposal, nil
}

// ConfirmBalance applies the proposal's assignments to the roster.
// Because team attribution is resolved at read time, every historical
// run moves with its player on the next aggregation read.
func (s *rosterService) ConfirmBalance(ctx context.Context, id string) (*BalanceProposal, error) {
	s.mu.Lock()
	proposal, ok := s.proposals[id]
	if ok && s.now().After(proposal.ExpiresAt) {
		delete(s.proposals, id)
		ok = false
	}
	if ok {
		delete(s.proposals, id)
	}
	s.mu.Unlock()

	if !ok {
		return nil, ErrProposalNotFound
	}

	for _, username := range proposal.Blue {
		if err := s.users.UpdateTeam(ctx, username, domain.TeamBlue); err != nil {
			return nil, err
		}
	}
	for _, username := range proposal.White {
		if err := s.users.UpdateTeam(ctx, username, domain.TeamWhite); err != nil {
			return nil, err
		}
	}
	return proposal, nil
}

// prune drops expired proposals; callers hold s.mu.
func (s *rosterService) prune() {
	now := s.now()
	for id, p := range s.proposals {
		if now.After(p.ExpiresAt) {
			delete(s.proposals, id)
		}
	}
}
