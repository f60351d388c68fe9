package swarm

import (
	"time"

	"swarmfuzz/internal/worldapi"
)

// CallRecord is one API call outcome in a member's rolling history.
type CallRecord struct {
	Endpoint string
	At       time.Time
	Success  bool
	Latency  time.Duration
	Class    worldapi.FailureClass
	Status   int
}

// InteractionRecord is one world-interaction outcome.
type InteractionRecord struct {
	TargetID string
	Action   string
	At       time.Time
	Accepted bool
	Reason   string
}

// EntitySighting is one observation of a nearby entity.
type EntitySighting struct {
	ID       string
	Kind     string
	Position worldapi.Position
	At       time.Time
}

// FacilitySighting is one observation of a nearby interactable facility.
type FacilitySighting struct {
	ID          string
	Type        string
	Affordances []string
	Distance    float64
	Position    worldapi.Position
	At          time.Time
}

// ChatRecord is one chat message as observed by a member.
type ChatRecord struct {
	Sender     string
	Text       string
	Channel    string
	SentAt     time.Time
	ObservedAt time.Time
}

// MemberSnapshot is a read-only value copy of one member's state, taken
// under the member's lock. Detectors consume slices of these; nothing in a
// snapshot aliases live member state.
type MemberSnapshot struct {
	ID           string
	Name         string
	Role         Role
	State        State
	Position     worldapi.Position
	Registered   bool
	Cycles       int
	AuthFailures int

	Calls        []CallRecord
	Interactions []InteractionRecord
	Actions      []string
	EntityTrail  []EntitySighting
	Entities     map[string]EntitySighting
	Facilities   map[string]FacilitySighting
	Chat         []ChatRecord

	EventCursor  string
	Capabilities []string

	// Opportunities counts, per category, how many cycles offered at least
	// one candidate of that category. Gates the role-compliance score.
	Opportunities map[string]int

	LastObserveAt time.Time
	LastPollAt    time.Time
	PrevPollAt    time.Time
	LastSuccessAt time.Time

	MissionIndex int
	StepIndex    int
	LastError    *worldapi.APIError

	TakenAt time.Time
}
