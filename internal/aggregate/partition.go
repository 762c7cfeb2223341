package aggregate

import (
	"errors"
	"math"
	"sort"

	"sprintleague/internal/domain"
)

// quantumMs is the coarse unit averages are rounded to before the
// subset-sum table is built. It bounds the DP state space without
// meaningfully changing which split wins.
const quantumMs = 10

// ErrTooFewPlayers is returned when there is nothing to balance.
var ErrTooFewPlayers = errors.New("need at least two players to balance")

// Player is one candidate for the balanced split. AvgMs may be imputed
// for players with no run history.
type Player struct {
	Username string
	AvgMs    int64
	Imputed  bool
}

// Partition is a proposed two-way split. Small holds exactly ⌊n/2⌋
// usernames, Large the rest; sums are over the (possibly imputed)
// averages actually used by the optimizer.
type Partition struct {
	Small      []string
	Large      []string
	SmallSumMs int64
	LargeSumMs int64
	DeltaMs    int64
}

// ImputeAverages fills in AvgMs for players without a known average,
// using the mean of the known averages (0 when nobody has run yet).
// Imputation keeps every roster member in the candidate pool instead
// of silently dropping newcomers.
func ImputeAverages(players []Player, known map[string]int64) []Player {
	var (
		sum   int64
		count int64
	)
	for _, avg := range known {
		sum += avg
		count++
	}
	var fallback int64
	if count > 0 {
		fallback = int64(math.Round(float64(sum) / float64(count)))
	}

	out := make([]Player, len(players))
	for i, p := range players {
		out[i] = p
		if avg, ok := known[domain.NormalizeUsername(p.Username)]; ok {
			out[i].AvgMs = avg
			out[i].Imputed = false
		} else {
			out[i].AvgMs = fallback
			out[i].Imputed = true
		}
	}
	return out
}

// BalancedPartition finds the size-balanced two-way split minimizing
// the absolute difference between each side's summed average.
//
// Averages are quantized to quantumMs units, then a k-subset-sum table
// (count selected × achievable sum, with backpointers) is filled for
// k = ⌊n/2⌋. The achievable k-sum closest to half the quantized total
// is selected and the member set recovered by backtracking. Reported
// sums use the original unquantized averages of the chosen sides.
func BalancedPartition(players []Player) (Partition, error) {
	n := len(players)
	if n < 2 {
		return Partition{}, ErrTooFewPlayers
	}

	units := make([]int, n)
	total := 0
	for i, p := range players {
		if p.AvgMs > 0 {
			units[i] = int(math.Round(float64(p.AvgMs) / quantumMs))
		}
		total += units[i]
	}

	k := n / 2

	// dp[c][s] = i+1 where including player i first made (c, s)
	// reachable; 0 means unreachable. Players are processed in order
	// and states are never overwritten, so backtracking from (c, s)
	// through dp[c-1][s-units[i]] always lands on a state built from
	// strictly earlier players.
	dp := make([][]int, k+1)
	for c := range dp {
		dp[c] = make([]int, total+1)
	}
	dp[0][0] = -1 // reachable with nobody selected

	for i := 0; i < n; i++ {
		for c := k; c >= 1; c-- {
			for s := total; s >= units[i]; s-- {
				if dp[c][s] == 0 && dp[c-1][s-units[i]] != 0 {
					dp[c][s] = i + 1
				}
			}
		}
	}

	best := -1
	for s := 0; s <= total; s++ {
		if dp[k][s] == 0 {
			continue
		}
		if best == -1 || abs(2*s-total) < abs(2*best-total) {
			best = s
		}
	}

	chosen := make(map[int]bool, k)
	for c, s := k, best; c > 0; {
		i := dp[c][s] - 1
		chosen[i] = true
		c--
		s -= units[i]
	}

	var part Partition
	for i, p := range players {
		if chosen[i] {
			part.Small = append(part.Small, p.Username)
			part.SmallSumMs += p.AvgMs
		} else {
			part.Large = append(part.Large, p.Username)
			part.LargeSumMs += p.AvgMs
		}
	}
	sort.Strings(part.Small)
	sort.Strings(part.Large)
	part.DeltaMs = abs64(part.SmallSumMs - part.LargeSumMs)
	return part, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
