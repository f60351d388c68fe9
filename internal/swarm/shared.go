package swarm

import (
	"sync/atomic"
	"time"
)

// Shared holds the knobs the escalation controller may change while members
// run. Members read them at the start of each cycle; nothing else about a
// member is externally mutable.
type Shared struct {
	cycleDelay  atomic.Int64 // nanoseconds
	defaultRole atomic.Value // Role
}

// NewShared creates the shared knob set.
func NewShared(delay time.Duration, role Role) *Shared {
	s := &Shared{}
	s.cycleDelay.Store(int64(delay))
	s.defaultRole.Store(role)
	return s
}

// Delay returns the current inter-cycle delay.
func (s *Shared) Delay() time.Duration {
	return time.Duration(s.cycleDelay.Load())
}

// SetDelay replaces the inter-cycle delay.
func (s *Shared) SetDelay(d time.Duration) {
	if d < 100*time.Millisecond {
		d = 100 * time.Millisecond
	}
	s.cycleDelay.Store(int64(d))
}

// DefaultRole returns the role newly-added members receive.
func (s *Shared) DefaultRole() Role {
	return s.defaultRole.Load().(Role)
}

// SetDefaultRole replaces the default role.
func (s *Shared) SetDefaultRole(r Role) {
	s.defaultRole.Store(r)
}
