// Package loop drives the harness: fixed-interval cycles over the swarm,
// detector evaluation, issue routing, escalation, and run-state persistence.
package loop

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const recentRefsLimit = 20

// State is the durable run-level record. It is rewritten wholesale after
// every cycle; losing at most one cycle of counters on a crash is acceptable.
type State struct {
	Cycle              int       `json:"cycle"`
	CyclesWithoutIssue int       `json:"cycles_without_issue"`
	StressLevel        int       `json:"stress_level"`
	Escalations        int       `json:"escalations"`
	TotalIssues        int       `json:"total_issues"`
	RecentIssueRefs    []string  `json:"recent_issue_refs"`
	MemberNames        []string  `json:"member_names"`
	RunStartedAt       time.Time `json:"run_started_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// NewState returns a fresh record for a run starting now.
func NewState() *State {
	return &State{RunStartedAt: time.Now()}
}

// LoadState reads the persisted record. A missing or unreadable file yields
// a fresh state rather than an error: the harness must always be able to
// start.
func LoadState(path string) *State {
	data, err := os.ReadFile(path)
	if err != nil {
		return NewState()
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return NewState()
	}
	if s.RunStartedAt.IsZero() {
		s.RunStartedAt = time.Now()
	}
	return &s
}

// Save writes the record as a complete replacement, via a temp file and
// rename so a crash mid-write never leaves a truncated state file.
func (s *State) Save(path string) error {
	s.UpdatedAt = time.Now()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// NoteIssue records a created tracker reference, keeping the recent list
// bounded.
func (s *State) NoteIssue(ref string) {
	s.TotalIssues++
	if ref == "" {
		return
	}
	s.RecentIssueRefs = append(s.RecentIssueRefs, ref)
	if len(s.RecentIssueRefs) > recentRefsLimit {
		s.RecentIssueRefs = s.RecentIssueRefs[len(s.RecentIssueRefs)-recentRefsLimit:]
	}
}
