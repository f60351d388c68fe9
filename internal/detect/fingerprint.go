package detect

import (
	"fmt"
	"sync"
	"time"
)

// Fingerprint is the deduplication key of a detected anomaly:
// area, detector name, and the detector's key evidence.
type Fingerprint string

// NewFingerprint derives the dedup key for a detection.
func NewFingerprint(area, detector, key string) Fingerprint {
	return Fingerprint(fmt.Sprintf("%s|%s|%s", area, detector, key))
}

type cooldownEntry struct {
	expiry time.Time
	ref    string
}

// CooldownStore suppresses repeated reports of the same fingerprint for a
// TTL. While a fingerprint is cooling, no new issue may be created for it;
// appending a tracker comment is still allowed.
type CooldownStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[Fingerprint]cooldownEntry
}

// NewCooldownStore creates a store with the given TTL.
func NewCooldownStore(ttl time.Duration) *CooldownStore {
	return &CooldownStore{
		ttl:     ttl,
		entries: make(map[Fingerprint]cooldownEntry),
	}
}

// Active reports whether fp is cooling at now, and the tracker reference of
// the issue that armed it.
func (s *CooldownStore) Active(fp Fingerprint, now time.Time) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[fp]
	if !ok {
		return "", false
	}
	if now.After(e.expiry) || now.Equal(e.expiry) {
		delete(s.entries, fp)
		return "", false
	}
	return e.ref, true
}

// Arm starts (or restarts) the cooldown window for fp, remembering the
// tracker reference for later comments.
func (s *CooldownStore) Arm(fp Fingerprint, ref string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[fp] = cooldownEntry{expiry: now.Add(s.ttl), ref: ref}
}

// Len returns the number of live entries, pruning expired ones.
func (s *CooldownStore) Len(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for fp, e := range s.entries {
		if !now.Before(e.expiry) {
			delete(s.entries, fp)
		}
	}
	return len(s.entries)
}
