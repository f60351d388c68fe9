package swarm

import (
	"context"
	"math/rand"
)

// Candidate is one possible action for the coming cycle, rebuilt fresh every
// cycle and never persisted.
type Candidate struct {
	// Label is the normalized "category:action" key used for novelty
	// tracking and detector classification.
	Label string

	// Category is the coarse group used for preference lookup and
	// error-driven suppression.
	Category string

	// Action is the specific verb within the category, "" for bare
	// category candidates.
	Action string

	Weight float64

	Run func(ctx context.Context) error
}

// Weight shaping constants. Novelty decays geometrically with recent
// repetitions of the exact label; mission steps multiply matching
// candidates up and everything else down.
const (
	missionBoostFull    = 4.0
	missionBoostPartial = 1.6
	missionPenalty      = 0.6

	proximityThreshold = 48.0  // px: interact range, beyond it we navigate instead
	entityNavRadius    = 400.0 // px: entities beyond this are ignored
	facilityNavDampen  = 0.5
	entityNavDampen    = 0.35

	starvationWanderBoost = 8.0

	errorSuppressThreshold = 5
	errorSuppressFactor    = 0.25
)

var noveltyLevels = [4]float64{1.0, 0.7, 0.4, 0.1}

// noveltyMultiplier decays the weight of a label by how many times it
// already appears in the recent action history: 1.0, 0.7, 0.4, then 0.1
// for three or more repetitions.
func noveltyMultiplier(recent []string, label string) float64 {
	count := 0
	for _, l := range recent {
		if l == label {
			count++
		}
	}
	if count >= len(noveltyLevels) {
		count = len(noveltyLevels) - 1
	}
	return noveltyLevels[count]
}

// missionBoost multiplies a candidate that matches the current scripted
// step exactly, partially boosts a category match, and dampens the rest.
func missionBoost(step MissionStep, category, label string) float64 {
	if step.Label != "" && step.Label == label {
		return missionBoostFull
	}
	if step.Category != "" && step.Category == category {
		if step.Label == "" {
			return missionBoostFull
		}
		return missionBoostPartial
	}
	return missionPenalty
}

// weighCandidates applies the full weight formula in place:
//
//	role_preference × novelty × mission_boost [× error suppression]
//
// failing maps categories to recent-failure state for the suppression term.
func weighCandidates(cands []Candidate, prefs Preferences, recent []string, step MissionStep, errorCount int, failing map[string]bool) {
	for i := range cands {
		c := &cands[i]
		w := c.Weight
		if w <= 0 {
			w = 1.0
		}
		w *= prefs.Lookup(c.Category, c.Action)
		w *= noveltyMultiplier(recent, c.Label)
		w *= missionBoost(step, c.Category, c.Label)
		if errorCount > errorSuppressThreshold && failing[c.Category] {
			w *= errorSuppressFactor
		}
		c.Weight = w
	}
}

// pickCandidate samples one candidate by cumulative-weight roulette: a
// uniform draw over the total weight, then the first candidate whose
// cumulative weight exceeds the draw.
func pickCandidate(rng *rand.Rand, cands []Candidate) *Candidate {
	if len(cands) == 0 {
		return nil
	}
	total := 0.0
	for i := range cands {
		if cands[i].Weight > 0 {
			total += cands[i].Weight
		}
	}
	if total <= 0 {
		return &cands[rng.Intn(len(cands))]
	}
	draw := rng.Float64() * total
	cum := 0.0
	for i := range cands {
		if cands[i].Weight <= 0 {
			continue
		}
		cum += cands[i].Weight
		if draw < cum {
			return &cands[i]
		}
	}
	return &cands[len(cands)-1]
}
