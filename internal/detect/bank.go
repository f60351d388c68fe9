// Package detect holds the anomaly detector bank: a fixed set of pure
// detectors over swarm snapshots, gated by consecutive-violation counters
// and a fingerprint cooldown store.
package detect

import (
	"math/rand"
	"time"

	"go.uber.org/zap"

	"swarmfuzz/internal/logging"
	"swarmfuzz/internal/swarm"
)

// Snapshot is one cycle's view of the whole swarm. Per-member state is
// consistent; cross-member skew is bounded by the snapshot step and the
// detectors tolerate it by construction.
type Snapshot struct {
	Cycle   int
	TakenAt time.Time
	Members []swarm.MemberSnapshot
}

// Config holds bank construction parameters.
type Config struct {
	// Seed makes detector ordering (and nothing else) reproducible.
	// 0 seeds from the clock.
	Seed int64

	// WarmupCycles delays the coverage detector.
	WarmupCycles int

	// CooldownTTL is the fingerprint suppression window.
	CooldownTTL time.Duration
}

// Result is the outcome of one bank cycle with a surfaced detection.
type Result struct {
	Issue       *Issue
	Fingerprint Fingerprint

	// Duplicate means the fingerprint is cooling: no new issue, but the
	// existing tracker issue (Ref) may receive a re-observed comment.
	Duplicate bool
	Ref       string
}

type detector struct {
	name     string
	area     string
	severity Severity

	// require is the consecutive-positive count needed to surface
	// (1 = immediate). windowed detectors instead need 2 of the last 3.
	require  int
	windowed bool

	eval func(b *Bank, s Snapshot) *Issue
}

// Bank evaluates all detectors against a snapshot once per cycle, in a
// randomized order, stopping at the first surfaced hit.
type Bank struct {
	cfg       Config
	rng       *rand.Rand
	cooldowns *CooldownStore
	detectors []*detector
	streaks   map[string]int
	windows   map[string][]bool
	log       *zap.Logger
}

// New creates the bank with the full fixed detector set.
func New(cfg Config, log *zap.Logger) *Bank {
	if cfg.WarmupCycles <= 0 {
		cfg.WarmupCycles = 20
	}
	if cfg.CooldownTTL <= 0 {
		cfg.CooldownTTL = 30 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Bank{
		cfg:       cfg,
		rng:       rand.New(rand.NewSource(seed)),
		cooldowns: NewCooldownStore(cfg.CooldownTTL),
		detectors: allDetectors(),
		streaks:   make(map[string]int),
		windows:   make(map[string][]bool),
		log:       log.Named("detect"),
	}
}

// Cooldowns exposes the fingerprint store for the reporting path to arm.
func (b *Bank) Cooldowns() *CooldownStore { return b.cooldowns }

// RunCycle evaluates detectors in a fresh random permutation and returns
// the first detection that passes its gate and the cooldown check, or nil.
// A failure inside one detector never prevents the others from running.
func (b *Bank) RunCycle(s Snapshot) *Result {
	order := b.rng.Perm(len(b.detectors))
	for _, idx := range order {
		d := b.detectors[idx]

		issue := b.safeEval(d, s)
		positive := issue != nil

		if !b.gate(d, positive) {
			continue
		}

		// Gate passed: consume the streak so the next surfacing needs a
		// fresh run of violations.
		b.streaks[d.name] = 0
		b.windows[d.name] = nil

		fp := issue.Fingerprint()
		if ref, cooling := b.cooldowns.Active(fp, s.TakenAt); cooling {
			logging.Trace(logging.CategoryDetect, "%s suppressed by cooldown (ref=%s)", fp, ref)
			return &Result{Issue: issue, Fingerprint: fp, Duplicate: true, Ref: ref}
		}
		b.log.Info("detector hit",
			zap.String("detector", d.name),
			zap.String("area", d.area),
			zap.String("key", issue.Key))
		return &Result{Issue: issue, Fingerprint: fp}
	}
	return nil
}

// gate updates the detector's violation bookkeeping and reports whether the
// current evaluation may surface.
func (b *Bank) gate(d *detector, positive bool) bool {
	if d.windowed {
		w := append(b.windows[d.name], positive)
		if len(w) > 3 {
			w = w[len(w)-3:]
		}
		b.windows[d.name] = w
		if !positive {
			return false
		}
		hits := 0
		for _, v := range w {
			if v {
				hits++
			}
		}
		return hits >= 2
	}

	if !positive {
		b.streaks[d.name] = 0
		return false
	}
	b.streaks[d.name]++
	return b.streaks[d.name] >= d.require
}

// safeEval contains detector panics so one bad detector cannot take down
// the cycle.
func (b *Bank) safeEval(d *detector, s Snapshot) (issue *Issue) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("detector panicked", zap.String("detector", d.name), zap.Any("panic", r))
			issue = nil
		}
	}()
	issue = d.eval(b, s)
	if issue != nil {
		issue.Detector = d.name
		issue.Area = d.area
		issue.Severity = d.severity
		issue.DetectedAt = s.TakenAt
	}
	return issue
}
