package businessflow

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencohort/longwave/utils"
)

func TestSelectWeighted_EmptyCandidates(t *testing.T) {
	assert.Equal(t, "", SelectWeighted(nil, nil, nil))
}

func TestSelectWeighted_SeededIsDeterministic(t *testing.T) {
	candidates := []string{"control", "treatment", "booster"}
	weights := map[string]int{"control": 1, "treatment": 2, "booster": 3}
	seed := utils.ToPtr("participant-777:study-42")

	first := SelectWeighted(candidates, weights, seed)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, SelectWeighted(candidates, weights, seed),
			"same seed must always resolve the same arm")
	}
}

func TestSelectWeighted_DifferentSeedsCoverAllArms(t *testing.T) {
	candidates := []string{"a", "b"}
	weights := map[string]int{"a": 1, "b": 1}

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		seed := utils.ToPtr(fmt.Sprintf("seed-%d", i))
		seen[SelectWeighted(candidates, weights, seed)] = true
	}

	assert.True(t, seen["a"], "arm a never selected across 200 distinct seeds")
	assert.True(t, seen["b"], "arm b never selected across 200 distinct seeds")
}

func TestSelectWeighted_DistributionFollowsWeights(t *testing.T) {
	candidates := []string{"light", "heavy"}
	weights := map[string]int{"light": 1, "heavy": 3}

	const trials = 20000
	counts := map[string]int{}
	for i := 0; i < trials; i++ {
		counts[SelectWeighted(candidates, weights, nil)]++
	}

	require.Equal(t, trials, counts["light"]+counts["heavy"])

	heavyShare := float64(counts["heavy"]) / float64(trials)
	assert.InDelta(t, 0.75, heavyShare, 0.03,
		"heavy arm share %.4f deviates from its 3/4 weight", heavyShare)
}

func TestSelectWeighted_ZeroWeightExcludes(t *testing.T) {
	candidates := []string{"off", "on"}
	weights := map[string]int{"off": 0, "on": 5}

	for i := 0; i < 100; i++ {
		assert.Equal(t, "on", SelectWeighted(candidates, weights, nil))
	}
}

func TestSelectWeighted_AllExcludedFallsBackToFirst(t *testing.T) {
	candidates := []string{"x", "y"}
	weights := map[string]int{"x": 0, "y": -1}

	assert.Equal(t, "x", SelectWeighted(candidates, weights, nil))
}

func TestSelectWeighted_MissingWeightDefaultsToOne(t *testing.T) {
	candidates := []string{"configured", "implicit"}
	weights := map[string]int{"configured": 1}

	seen := map[string]bool{}
	for i := 0; i < 500; i++ {
		seen[SelectWeighted(candidates, weights, nil)] = true
	}

	assert.True(t, seen["implicit"], "candidate without an explicit weight must stay selectable")
}
