// Package chaos escalates swarm load when the detectors go quiet, on the
// theory that a service surviving the current pressure needs more of it.
package chaos

import (
	"sync"

	"go.uber.org/zap"

	"swarmfuzz/internal/logging"
	"swarmfuzz/internal/swarm"
)

// SwarmControl is the mutation surface the ladder is allowed to touch.
// The orchestrator implements it; nothing else in the harness mutates
// swarm composition at runtime.
type SwarmControl interface {
	AddMembers(n int, role swarm.Role) error
	ShortenCycleDelay(factor float64)
	SetDefaultRole(role swarm.Role)
	ConvertAll(role swarm.Role)
}

const (
	memberBatch  = 5
	delayFactor  = 0.5
	noisyRole    = swarm.RoleSpammer
	hostileRole  = swarm.RoleSaboteur
)

type rung struct {
	name  string
	apply func(SwarmControl) error
}

// Ladder is the five-rung escalation controller. Each advance applies the
// next rung; a reported issue resets it to the bottom. Wrapping past the
// top returns to the bottom without touching the swarm.
type Ladder struct {
	log     *zap.Logger
	enabled bool

	mu          sync.Mutex
	level       int
	escalations int
	rungs       []rung
}

// NewLadder creates the controller. When enabled is false, Advance is a no-op
// so a quiet target never snowballs load in plain monitoring runs.
func NewLadder(enabled bool, log *zap.Logger) *Ladder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ladder{
		log:     log.Named("chaos"),
		enabled: enabled,
		rungs: []rung{
			{name: "add members", apply: func(c SwarmControl) error {
				return c.AddMembers(memberBatch, "")
			}},
			{name: "shorten cycle delay", apply: func(c SwarmControl) error {
				c.ShortenCycleDelay(delayFactor)
				return nil
			}},
			{name: "raise default entropy", apply: func(c SwarmControl) error {
				c.SetDefaultRole(noisyRole)
				return nil
			}},
			{name: "add spammers", apply: func(c SwarmControl) error {
				return c.AddMembers(memberBatch, noisyRole)
			}},
			{name: "convert all to saboteurs", apply: func(c SwarmControl) error {
				c.ConvertAll(hostileRole)
				return nil
			}},
		},
	}
}

// Advance applies the next rung to the swarm. Called once per cycle in
// which no issue fired. Returns the name of the rung applied, or "" when
// nothing was done (disabled, or wrapping back to the bottom).
func (l *Ladder) Advance(control SwarmControl) string {
	if !l.enabled {
		return ""
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.level >= len(l.rungs) {
		// Top of the ladder: come back down empty-handed.
		l.level = 0
		l.log.Info("escalation ladder wrapped, back to baseline rung")
		logging.Trace(logging.CategoryChaos, "ladder wrapped to rung 0")
		return ""
	}

	r := l.rungs[l.level]
	l.level++
	l.escalations++

	if err := r.apply(control); err != nil {
		l.log.Warn("escalation rung failed", zap.String("rung", r.name), zap.Error(err))
	} else {
		l.log.Info("escalated", zap.String("rung", r.name), zap.Int("level", l.level))
	}
	logging.Trace(logging.CategoryChaos, "applied rung %d (%s)", l.level, r.name)
	return r.name
}

// Reset drops back to the bottom rung. Called after an issue is reported:
// the current pressure is evidently enough.
func (l *Ladder) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level != 0 {
		l.log.Info("issue found, resetting escalation ladder", zap.Int("from_level", l.level))
	}
	l.level = 0
}

// Level reports the current rung index, 0 through 5.
func (l *Ladder) Level() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// Escalations reports how many rungs have been applied over the run.
func (l *Ladder) Escalations() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.escalations
}

// SetLevel restores a persisted rung index, clamped to the valid range.
func (l *Ladder) SetLevel(level int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < 0 {
		level = 0
	}
	if level > len(l.rungs) {
		level = len(l.rungs)
	}
	l.level = level
}
