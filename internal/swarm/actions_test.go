package swarm

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoveltyMultiplierDecay(t *testing.T) {
	cases := []struct {
		history []string
		want    float64
	}{
		{nil, 1.0},
		{[]string{"chat:say"}, 1.0},
		{[]string{"observe"}, 0.7},
		{[]string{"observe", "chat:say", "observe"}, 0.4},
		{[]string{"observe", "observe", "observe"}, 0.1},
		{[]string{"observe", "observe", "observe", "observe", "observe"}, 0.1},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, noveltyMultiplier(tc.history, "observe"), "history %v", tc.history)
	}
}

func TestPreferenceLookupOrder(t *testing.T) {
	p := Preferences{
		"interact:harvest": 4.0,
		"interact":         2.0,
		"harvest":          9.0, // must not shadow the exact key
		"poll":             0.9,
	}

	assert.Equal(t, 4.0, p.Lookup("interact", "harvest"), "exact category:action key wins")
	assert.Equal(t, 2.0, p.Lookup("interact", "trade"), "category fallback")
	assert.Equal(t, 0.9, p.Lookup("events", "poll"), "bare action fallback")
	assert.Equal(t, prefEpsilon, p.Lookup("capability", "install"), "epsilon default")
}

func TestMissionBoost(t *testing.T) {
	step := MissionStep{Label: "interact:harvest", Category: "interact", Cycles: 3}

	assert.Equal(t, missionBoostFull, missionBoost(step, "interact", "interact:harvest"))
	assert.Equal(t, missionBoostPartial, missionBoost(step, "interact", "interact:trade"))
	assert.Equal(t, missionPenalty, missionBoost(step, "chat", "chat:say"))

	// Category-only steps treat any category match as a full match.
	catStep := MissionStep{Category: "observe", Cycles: 2}
	assert.Equal(t, missionBoostFull, missionBoost(catStep, "observe", "observe"))
	assert.Equal(t, missionPenalty, missionBoost(catStep, "move", "move:follow"))
}

// Roulette sampling: over 100k draws the empirical distribution must be
// within 5% relative error of the normalized weights.
func TestRouletteSamplerDistribution(t *testing.T) {
	weights := map[string]float64{
		"observe":  3.0,
		"move":     2.0,
		"chat:say": 1.0,
		"wander":   0.5,
	}
	var cands []Candidate
	total := 0.0
	for label, w := range weights {
		cands = append(cands, Candidate{Label: label, Weight: w})
		total += w
	}

	rng := rand.New(rand.NewSource(42))
	const samples = 100000
	counts := make(map[string]int)
	for i := 0; i < samples; i++ {
		pick := pickCandidate(rng, cands)
		counts[pick.Label]++
	}

	for label, w := range weights {
		expected := w / total
		got := float64(counts[label]) / samples
		relErr := math.Abs(got-expected) / expected
		assert.Less(t, relErr, 0.05, "label %s: expected %.4f got %.4f", label, expected, got)
	}
}

func TestRouletteZeroWeightNeverPicked(t *testing.T) {
	cands := []Candidate{
		{Label: "a", Weight: 1.0},
		{Label: "dead", Weight: 0},
	}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		assert.Equal(t, "a", pickCandidate(rng, cands).Label)
	}
}

func TestWeighCandidatesErrorSuppression(t *testing.T) {
	cands := []Candidate{
		{Label: "interact:use", Category: "interact", Action: "use", Weight: 1.0},
		{Label: "observe", Category: "observe", Weight: 1.0},
	}
	prefs := Preferences{"interact": 2.0, "observe": 2.0}
	step := MissionStep{} // no mission influence either way

	weighCandidates(cands, prefs, nil, step, errorSuppressThreshold+1, map[string]bool{"interact": true})

	// Same preference and novelty; only the suppression factor separates them.
	assert.InDelta(t, errorSuppressFactor, cands[0].Weight/cands[1].Weight, 1e-9)
}

func TestWeighCandidatesFormula(t *testing.T) {
	cands := []Candidate{{Label: "chat:say", Category: "chat", Action: "say", Weight: 1.0}}
	prefs := Preferences{"chat": 3.0}
	step := MissionStep{Category: "chat", Cycles: 1}
	history := []string{"chat:say"} // one repetition -> 0.7

	weighCandidates(cands, prefs, history, step, 0, nil)

	assert.InDelta(t, 3.0*0.7*missionBoostFull, cands[0].Weight, 1e-9)
}
