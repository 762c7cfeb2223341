package aggregate

import (
	"math"
	"sort"
	"time"

	"sprintleague/internal/domain"
)

// TeamTotals is the summed sprint duration per competing team.
type TeamTotals struct {
	BlueMs  int64
	WhiteMs int64
}

// LeaderboardRow is one ranked leaderboard entry. Index is the per-user
// occurrence index over the sorted sequence: alice's fastest run is
// alice #1, her next fastest #2, regardless of other users' rows.
type LeaderboardRow struct {
	Index      int
	Username   string
	Team       domain.Team
	DurationMs int64
	CreatedAt  time.Time
}

// TeamOf builds the case-normalized username -> current team map used
// to attribute runs at read time.
func TeamOf(users []domain.User) map[string]domain.Team {
	m := make(map[string]domain.Team, len(users))
	for _, u := range users {
		m[domain.NormalizeUsername(u.Username)] = u.Team
	}
	return m
}

// SumTeamTotals attributes each run to the submitting user's current
// team and sums durations. Runs whose username does not resolve to a
// competing team are excluded silently. The result is a pure sum, so
// input order does not matter.
func SumTeamTotals(runs []domain.Run, users []domain.User) TeamTotals {
	teamOf := TeamOf(users)

	var totals TeamTotals
	for _, r := range runs {
		if r.DurationMs <= 0 {
			continue
		}
		switch teamOf[domain.NormalizeUsername(r.Username)] {
		case domain.TeamBlue:
			totals.BlueMs += r.DurationMs
		case domain.TeamWhite:
			totals.WhiteMs += r.DurationMs
		}
	}
	return totals
}

// UserAverage returns the arithmetic mean duration over runs with a
// positive duration, rounded to the nearest millisecond. ok is false
// when no run qualifies; callers must not conflate that with a 0ms
// average.
func UserAverage(runs []domain.Run) (avgMs int64, ok bool) {
	var (
		sum   int64
		count int64
	)
	for _, r := range runs {
		if r.DurationMs <= 0 {
			continue
		}
		sum += r.DurationMs
		count++
	}
	if count == 0 {
		return 0, false
	}
	return int64(math.Round(float64(sum) / float64(count))), true
}

// Leaderboard orders runs fastest to slowest and annotates each row
// with the submitting user's occurrence index within the sorted
// sequence. Ties break by submission time, then id, so the ordering is
// deterministic.
func Leaderboard(runs []domain.Run, users []domain.User) []LeaderboardRow {
	teamOf := TeamOf(users)

	sorted := make([]domain.Run, len(runs))
	copy(sorted, runs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].DurationMs != sorted[j].DurationMs {
			return sorted[i].DurationMs < sorted[j].DurationMs
		}
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	counters := make(map[string]int)
	rows := make([]LeaderboardRow, len(sorted))
	for i, r := range sorted {
		key := domain.NormalizeUsername(r.Username)
		counters[key]++

		team := domain.TeamNone
		if t, known := teamOf[key]; known {
			team = t
		}
		rows[i] = LeaderboardRow{
			Index:      counters[key],
			Username:   r.Username,
			Team:       team,
			DurationMs: r.DurationMs,
			CreatedAt:  r.CreatedAt,
		}
	}
	return rows
}

// DayWindow returns the [start, end) bounds of the calendar day
// containing now in the given location. Every "today" computation in
// the system goes through this single definition.
func DayWindow(now time.Time, loc *time.Location) (start, end time.Time) {
	local := now.In(loc)
	start = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	end = time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
	return start, end
}
