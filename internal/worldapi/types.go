package worldapi

import "time"

// RegisterRequest joins a client into a room.
type RegisterRequest struct {
	RoomID string `json:"roomId"`
	Name   string `json:"name"`
	Role   string `json:"role,omitempty"`
}

// RegisterResponse carries the server-assigned identity and bearer credential.
type RegisterResponse struct {
	MemberID string `json:"memberId"`
	Token    string `json:"token"`
}

// Position is a world coordinate in pixels.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Entity is a nearby movable thing another client controls or the world owns.
type Entity struct {
	ID       string   `json:"id"`
	Kind     string   `json:"kind"`
	Position Position `json:"position"`
}

// Facility is a stationary interactable with a set of affordances.
type Facility struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Affordances []string `json:"affordances"`
	Position    Position `json:"position"`
}

// ObserveResponse is the world as seen from the caller's position.
type ObserveResponse struct {
	Position   Position   `json:"position"`
	Entities   []Entity   `json:"entities"`
	Facilities []Facility `json:"facilities"`
	Tick       int64      `json:"tick"`
}

// MoveRequest walks the caller toward a tile.
type MoveRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ChatMessage is one line in a channel.
type ChatMessage struct {
	Sender  string    `json:"sender"`
	Text    string    `json:"text"`
	Channel string    `json:"channel"`
	SentAt  time.Time `json:"sentAt"`
}

// ChatRequest posts a line to a channel.
type ChatRequest struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

// ChatObserveResponse lists recent messages visible to the caller.
type ChatObserveResponse struct {
	Messages []ChatMessage `json:"messages"`
}

// InteractRequest performs an affordance on an entity or facility.
type InteractRequest struct {
	TargetID string `json:"targetId"`
	Action   string `json:"action"`
}

// InteractResponse reports whether the world accepted the interaction.
type InteractResponse struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// Event is one entry in the room's event stream.
type Event struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data string    `json:"data,omitempty"`
}

// EventsResponse returns events past the supplied cursor plus the new cursor.
type EventsResponse struct {
	Events []Event `json:"events"`
	Cursor string  `json:"cursor"`
}

// ProfileRequest updates the caller's public profile fields.
type ProfileRequest struct {
	Fields map[string]string `json:"fields"`
}

// Capability is an installable behavior module exposed by the service.
type Capability struct {
	Name      string `json:"name"`
	Installed bool   `json:"installed"`
}

// CapabilitiesResponse lists capabilities and their install state.
type CapabilitiesResponse struct {
	Capabilities []Capability `json:"capabilities"`
}

// CapabilityRequest installs or invokes a named capability.
type CapabilityRequest struct {
	Name string `json:"name"`
	Args string `json:"args,omitempty"`
}
