package swarm

// Role is a behavioral archetype. Preference tables, mission scripts, and
// chat lines are keyed by role; all three registries are immutable after
// package init.
type Role string

const (
	RoleExplorer  Role = "explorer"
	RoleGatherer  Role = "gatherer"
	RoleSocialite Role = "socialite"
	RoleMerchant  Role = "merchant"
	RoleCrafter   Role = "crafter"
	RoleGuard     Role = "guard"
	RoleTinkerer  Role = "tinkerer"
	RoleWanderer  Role = "wanderer"
	RoleSpammer   Role = "spammer"  // high-entropy: hammers every endpoint
	RoleSaboteur  Role = "saboteur" // most aggressive: interact-heavy, rapid-fire
)

// AllRoles lists every archetype, used for round-robin swarm seeding.
var AllRoles = []Role{
	RoleExplorer, RoleGatherer, RoleSocialite, RoleMerchant, RoleCrafter,
	RoleGuard, RoleTinkerer, RoleWanderer, RoleSpammer, RoleSaboteur,
}

// ParseRole maps a config string to a role, defaulting to explorer.
func ParseRole(s string) Role {
	for _, r := range AllRoles {
		if string(r) == s {
			return r
		}
	}
	return RoleExplorer
}

// Preferences maps a lookup key to a relative weight. Keys are tried in
// order: exact "category:action", then "category", then "action"; a miss
// falls through to prefEpsilon so no candidate is ever zero-probability.
type Preferences map[string]float64

const prefEpsilon = 0.05

// Lookup resolves the preference weight for a candidate.
func (p Preferences) Lookup(category, action string) float64 {
	if action != "" {
		if w, ok := p[category+":"+action]; ok {
			return w
		}
	}
	if w, ok := p[category]; ok {
		return w
	}
	if action != "" {
		if w, ok := p[action]; ok {
			return w
		}
	}
	return prefEpsilon
}

var rolePreferences = map[Role]Preferences{
	RoleExplorer: {
		"observe": 3.0, "move": 2.5, "wander": 2.0, "events": 1.5,
		"interact": 1.0, "chat_observe": 0.5, "chat": 0.3,
	},
	RoleGatherer: {
		"interact": 3.0, "interact:harvest": 4.0, "interact:collect": 4.0,
		"move": 2.0, "observe": 1.5, "wander": 0.8, "events": 0.5,
	},
	RoleSocialite: {
		"chat": 3.5, "chat_observe": 3.0, "move": 1.5, "observe": 1.0,
		"profile": 1.2, "interact": 0.6, "wander": 0.8,
	},
	RoleMerchant: {
		"interact:trade": 4.0, "interact": 2.0, "chat": 2.0,
		"chat_observe": 1.5, "move": 1.5, "observe": 1.0, "profile": 0.8,
	},
	RoleCrafter: {
		"interact:craft": 4.0, "interact:use": 3.0, "interact": 2.0,
		"observe": 1.5, "move": 1.2, "capability": 1.0, "wander": 0.5,
	},
	RoleGuard: {
		"observe": 3.5, "move": 2.0, "events": 2.5, "interact:inspect": 2.0,
		"interact": 1.0, "chat": 0.5, "wander": 0.6,
	},
	RoleTinkerer: {
		"capability": 4.0, "capability:install": 4.5, "capability:invoke": 4.0,
		"observe": 1.5, "interact": 1.2, "events": 1.0, "wander": 0.5,
	},
	RoleWanderer: {
		"wander": 4.0, "move": 3.0, "observe": 2.0, "events": 1.0,
		"chat_observe": 0.5, "interact": 0.5,
	},
	RoleSpammer: {
		"chat": 3.0, "observe": 3.0, "move": 3.0, "interact": 3.0,
		"events": 3.0, "profile": 3.0, "capability": 3.0,
		"chat_observe": 3.0, "wander": 3.0,
	},
	RoleSaboteur: {
		"interact": 5.0, "interact:use": 5.0, "move": 3.0, "chat": 2.0,
		"observe": 1.5, "capability:invoke": 2.5, "events": 1.0, "wander": 1.0,
	},
}

// PreferencesFor returns the role's preference table (explorer on unknown).
func PreferencesFor(role Role) Preferences {
	if p, ok := rolePreferences[role]; ok {
		return p
	}
	return rolePreferences[RoleExplorer]
}

// MissionStep biases candidate weights toward Label (exact match) or
// Category (partial match) for Cycles consecutive cycles.
type MissionStep struct {
	Label    string
	Category string
	Cycles   int
}

// Mission is a short scripted sequence of step biases.
type Mission struct {
	Name  string
	Steps []MissionStep
}

var roleMissions = map[Role][]Mission{
	RoleExplorer: {
		{Name: "survey", Steps: []MissionStep{
			{Category: "observe", Cycles: 2},
			{Category: "move", Cycles: 3},
			{Category: "wander", Cycles: 2},
		}},
		{Name: "patrol-edges", Steps: []MissionStep{
			{Category: "wander", Cycles: 4},
			{Category: "observe", Cycles: 2},
		}},
	},
	RoleGatherer: {
		{Name: "harvest-run", Steps: []MissionStep{
			{Category: "observe", Cycles: 1},
			{Label: "interact:harvest", Category: "interact", Cycles: 4},
			{Category: "move", Cycles: 2},
		}},
	},
	RoleSocialite: {
		{Name: "mingle", Steps: []MissionStep{
			{Category: "chat_observe", Cycles: 2},
			{Category: "chat", Cycles: 3},
			{Category: "move", Cycles: 1},
		}},
	},
	RoleMerchant: {
		{Name: "market-loop", Steps: []MissionStep{
			{Category: "move", Cycles: 2},
			{Label: "interact:trade", Category: "interact", Cycles: 3},
			{Category: "chat", Cycles: 2},
		}},
	},
	RoleCrafter: {
		{Name: "workshop", Steps: []MissionStep{
			{Category: "observe", Cycles: 1},
			{Label: "interact:craft", Category: "interact", Cycles: 4},
		}},
	},
	RoleGuard: {
		{Name: "watch", Steps: []MissionStep{
			{Category: "observe", Cycles: 3},
			{Category: "events", Cycles: 2},
			{Category: "move", Cycles: 2},
		}},
	},
	RoleTinkerer: {
		{Name: "toolchain", Steps: []MissionStep{
			{Label: "capability:list", Category: "capability", Cycles: 1},
			{Label: "capability:install", Category: "capability", Cycles: 2},
			{Label: "capability:invoke", Category: "capability", Cycles: 3},
		}},
	},
	RoleWanderer: {
		{Name: "drift", Steps: []MissionStep{
			{Category: "wander", Cycles: 5},
			{Category: "observe", Cycles: 1},
		}},
	},
	RoleSpammer: {
		{Name: "blast", Steps: []MissionStep{
			{Category: "chat", Cycles: 1},
			{Category: "interact", Cycles: 1},
			{Category: "move", Cycles: 1},
			{Category: "events", Cycles: 1},
			{Category: "profile", Cycles: 1},
		}},
	},
	RoleSaboteur: {
		{Name: "pressure", Steps: []MissionStep{
			{Label: "interact:use", Category: "interact", Cycles: 4},
			{Category: "move", Cycles: 1},
			{Label: "capability:invoke", Category: "capability", Cycles: 2},
		}},
	},
}

// MissionsFor returns the role's mission scripts (explorer on unknown).
func MissionsFor(role Role) []Mission {
	if m, ok := roleMissions[role]; ok {
		return m
	}
	return roleMissions[RoleExplorer]
}

var roleChatLines = map[Role][]string{
	RoleExplorer:  {"anything interesting north of here?", "found a new spot", "heading out to the edge"},
	RoleGatherer:  {"who wants wood?", "this node is empty again", "stockpile is growing"},
	RoleSocialite: {"hello everyone!", "how is everyone doing?", "nice weather in here", "anyone around the plaza?"},
	RoleMerchant:  {"buying salvage, good rates", "selling charcoal", "trades open at the market"},
	RoleCrafter:   {"need two more planks", "workbench is free now", "recipe keeps failing for me"},
	RoleGuard:     {"all quiet on the east side", "report anything strange", "patrol done"},
	RoleTinkerer:  {"testing a new module", "anyone tried the lens capability?", "invoke worked this time"},
	RoleWanderer:  {"just passing through", "long walk today"},
	RoleSpammer:   {"ping", "ping ping", "aaaaaaa", "test test test", "1234567890", "spam spam spam"},
	RoleSaboteur:  {"oops", "that door should not have opened", "interesting..."},
}

// ChatLinesFor returns the role's canned chat lines.
func ChatLinesFor(role Role) []string {
	if l, ok := roleChatLines[role]; ok {
		return l
	}
	return roleChatLines[RoleSocialite]
}
