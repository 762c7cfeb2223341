package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalancedPartitionThreePlayers(t *testing.T) {
	// total 33000, target 16500; the 1-subset closest to target is B
	part, err := BalancedPartition([]Player{
		{Username: "a", AvgMs: 10000},
		{Username: "b", AvgMs: 12000},
		{Username: "c", AvgMs: 11000},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"b"}, part.Small)
	assert.ElementsMatch(t, []string{"a", "c"}, part.Large)
	assert.Equal(t, int64(12000), part.SmallSumMs)
	assert.Equal(t, int64(21000), part.LargeSumMs)
	assert.Equal(t, int64(9000), part.DeltaMs)
}

func TestBalancedPartitionEvenSplit(t *testing.T) {
	part, err := BalancedPartition([]Player{
		{Username: "a", AvgMs: 8000},
		{Username: "b", AvgMs: 9000},
		{Username: "c", AvgMs: 10000},
		{Username: "d", AvgMs: 11000},
	})
	require.NoError(t, err)

	assert.Len(t, part.Small, 2)
	assert.Len(t, part.Large, 2)
	// optimum pairs {a,d} and {b,c}: both sides sum 19000
	assert.Equal(t, int64(0), part.DeltaMs)
}

func TestBalancedPartitionSizeParity(t *testing.T) {
	players := []Player{
		{Username: "a", AvgMs: 5000},
		{Username: "b", AvgMs: 5000},
		{Username: "c", AvgMs: 5000},
		{Username: "d", AvgMs: 5000},
		{Username: "e", AvgMs: 50000},
	}
	part, err := BalancedPartition(players)
	require.NoError(t, err)

	// even a dominant outlier cannot bend the ⌊n/2⌋ size constraint
	assert.Len(t, part.Small, 2)
	assert.Len(t, part.Large, 3)
	assert.Len(t, append(part.Small, part.Large...), len(players))
}

func TestBalancedPartitionOptimal(t *testing.T) {
	// exhaustive check on a small roster: no 3-subset sum may be
	// strictly closer to total/2 than the chosen one
	players := []Player{
		{Username: "a", AvgMs: 7130},
		{Username: "b", AvgMs: 9870},
		{Username: "c", AvgMs: 8440},
		{Username: "d", AvgMs: 12010},
		{Username: "e", AvgMs: 6500},
		{Username: "f", AvgMs: 10300},
	}
	part, err := BalancedPartition(players)
	require.NoError(t, err)
	require.Len(t, part.Small, 3)

	var total int64
	for _, p := range players {
		total += p.AvgMs
	}

	bestDelta := part.DeltaMs
	n := len(players)
	for mask := 0; mask < 1<<n; mask++ {
		if popcount(mask) != n/2 {
			continue
		}
		var sum int64
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				sum += players[i].AvgMs
			}
		}
		delta := sum - (total - sum)
		if delta < 0 {
			delta = -delta
		}
		assert.LessOrEqual(t, bestDelta, delta, "subset mask %b beats the chosen split", mask)
	}
}

func TestBalancedPartitionTooFew(t *testing.T) {
	_, err := BalancedPartition([]Player{{Username: "solo", AvgMs: 9000}})
	assert.ErrorIs(t, err, ErrTooFewPlayers)

	_, err = BalancedPartition(nil)
	assert.ErrorIs(t, err, ErrTooFewPlayers)
}

func TestBalancedPartitionAllZeroAverages(t *testing.T) {
	part, err := BalancedPartition([]Player{
		{Username: "a"}, {Username: "b"}, {Username: "c"},
	})
	require.NoError(t, err)
	assert.Len(t, part.Small, 1)
	assert.Len(t, part.Large, 2)
	assert.Zero(t, part.DeltaMs)
}

func TestImputeAverages(t *testing.T) {
	players := []Player{
		{Username: "vet1"},
		{Username: "vet2"},
		{Username: "rookie"},
	}
	known := map[string]int64{"vet1": 8000, "vet2": 10000}

	out := ImputeAverages(players, known)
	require.Len(t, out, 3)
	assert.Equal(t, int64(8000), out[0].AvgMs)
	assert.False(t, out[0].Imputed)
	assert.Equal(t, int64(10000), out[1].AvgMs)
	assert.Equal(t, int64(9000), out[2].AvgMs, "rookie gets the mean of known averages")
	assert.True(t, out[2].Imputed)
}

func TestImputeAveragesNobodyRan(t *testing.T) {
	out := ImputeAverages([]Player{{Username: "a"}, {Username: "b"}}, nil)
	for _, p := range out {
		assert.Zero(t, p.AvgMs)
		assert.True(t, p.Imputed)
	}
}

func popcount(v int) int {
	count := 0
	for ; v != 0; v &= v - 1 {
		count++
	}
	return count
}
