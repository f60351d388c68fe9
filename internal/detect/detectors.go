package detect

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"swarmfuzz/internal/swarm"
	"swarmfuzz/internal/worldapi"
)

// Detection thresholds.
const (
	// Position desync: an entity may not jump this far this fast.
	desyncMinJumpPx   = 160.0
	desyncSpeedPxMs   = 1.2
	desyncMaxGap      = 5 * time.Second

	// Chat mismatch between two members observing the same channel.
	chatSkewBound      = 10 * time.Second
	chatHorizon        = 30 * time.Second
	chatJaccardDist    = 0.5
	chatMinMessages    = 2

	// Stuck member.
	stuckIdleThreshold = 60 * time.Second
	stuckFailureFloor  = 0.5
	stuckMinCalls      = 5

	// Global error rate.
	globalErrorWindow    = 60 * time.Second
	globalErrorThreshold = 0.3
	globalErrorMinCalls  = 20

	// Entity count divergence between co-located members.
	entityBucketPx    = 100.0
	entitySkewBound   = 3 * time.Second
	entityCountRatio  = 2.0
	entityCountMinGap = 3

	// Observe inconsistency bucket.
	observeBucketPx = 50.0

	// Interact failure pattern.
	interactFailFraction = 0.6
	interactMinSamples   = 5

	// Event polling gap.
	pollGapThreshold = 30 * time.Second

	// Role compliance.
	complianceMinOpportunity = 5
	complianceMinOverlap     = 0.3
	complianceMinActions     = 10

	// Low decision entropy.
	entropyMinActions = 10
	entropyMinLabels  = 3

	// Idle despite opportunity.
	idleInteractWindow = 60 * time.Second

	// Candidate starvation.
	starvationMinCycles = 10
)

func allDetectors() []*detector {
	return []*detector{
		{name: "position_desync", area: "Sync", severity: SeverityMajor, require: 2, windowed: true, eval: detectPositionDesync},
		{name: "chat_mismatch", area: "Chat", severity: SeverityMajor, require: 2, eval: detectChatMismatch},
		{name: "stuck_member", area: "Client", severity: SeverityMajor, require: 2, eval: detectStuckMember},
		{name: "global_error_rate", area: "API", severity: SeverityCritical, require: 2, eval: detectGlobalErrorRate},
		{name: "entity_count_divergence", area: "Sync", severity: SeverityMajor, require: 2, eval: detectEntityCountDivergence},
		{name: "facility_state_divergence", area: "Sync", severity: SeverityMajor, require: 1, eval: detectFacilityDivergence},
		{name: "observe_inconsistency", area: "Sync", severity: SeverityMajor, require: 1, eval: detectObserveInconsistency},
		{name: "interact_failure_pattern", area: "API", severity: SeverityMinor, require: 1, eval: detectInteractFailures},
		{name: "event_polling_gap", area: "API", severity: SeverityMinor, require: 1, eval: detectPollingGap},
		{name: "low_api_coverage", area: "Coverage", severity: SeverityMinor, require: 1, eval: detectLowCoverage},
		{name: "role_compliance", area: "Behavior", severity: SeverityMinor, require: 3, eval: detectRoleCompliance},
		{name: "low_decision_entropy", area: "Behavior", severity: SeverityMinor, require: 1, eval: detectLowEntropy},
		{name: "idle_despite_opportunity", area: "Behavior", severity: SeverityMinor, require: 1, eval: detectIdleDespiteOpportunity},
		{name: "candidate_starvation", area: "World", severity: SeverityMinor, require: 1, eval: detectCandidateStarvation},
	}
}

// positionViolation reports whether two consecutive sightings of the same
// entity imply an impossible jump.
func positionViolation(prev, next swarm.EntitySighting) bool {
	dt := next.At.Sub(prev.At)
	if dt <= 0 || dt > desyncMaxGap {
		return false
	}
	jump := distance(prev.Position, next.Position)
	if jump <= desyncMinJumpPx {
		return false
	}
	speed := jump / float64(dt.Milliseconds())
	return speed > desyncSpeedPxMs
}

func detectPositionDesync(b *Bank, s Snapshot) *Issue {
	for _, m := range s.Members {
		last := make(map[string]swarm.EntitySighting)
		for _, sighting := range m.EntityTrail {
			prev, seen := last[sighting.ID]
			last[sighting.ID] = sighting
			if !seen {
				continue
			}
			if !positionViolation(prev, sighting) {
				continue
			}
			jump := distance(prev.Position, sighting.Position)
			return &Issue{
				Title:    fmt.Sprintf("[Sync] Entity %s teleported %.0fpx as seen by %s", sighting.ID, jump, m.Name),
				Expected: "Observed entities move at plausible speeds between consecutive observations",
				Observed: fmt.Sprintf("entity %s jumped %.0fpx in %s (%.2f px/ms)", sighting.ID, jump, sighting.At.Sub(prev.At), jump/float64(sighting.At.Sub(prev.At).Milliseconds())),
				Steps: []string{
					"register a client and observe repeatedly",
					fmt.Sprintf("track entity %s across consecutive observations", sighting.ID),
					"compare implied speed against movement limits",
				},
				Evidence: Evidence{
					Participants: []string{m.Name},
					Timestamps:   []time.Time{prev.At, sighting.At},
					Logs: []string{
						fmt.Sprintf("%s saw %s at (%.0f,%.0f) then (%.0f,%.0f)", m.Name, sighting.ID,
							prev.Position.X, prev.Position.Y, sighting.Position.X, sighting.Position.Y),
					},
				},
				Key: sighting.ID,
			}
		}
	}
	return nil
}

// jaccardDistance over message text sets; 1.0 means fully disjoint.
func jaccardDistance(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if b[k] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return 1.0 - float64(inter)/float64(union)
}

func detectChatMismatch(b *Bank, s Snapshot) *Issue {
	type view struct {
		member string
		msgs   map[string]bool
		latest time.Time
	}
	// channel -> member views within the shared horizon
	channels := make(map[string][]view)
	for _, m := range s.Members {
		perChannel := make(map[string]*view)
		for _, c := range m.Chat {
			if s.TakenAt.Sub(c.ObservedAt) > chatHorizon {
				continue
			}
			v, ok := perChannel[c.Channel]
			if !ok {
				v = &view{member: m.Name, msgs: make(map[string]bool)}
				perChannel[c.Channel] = v
			}
			v.msgs[c.Sender+"|"+c.Text] = true
			if c.ObservedAt.After(v.latest) {
				v.latest = c.ObservedAt
			}
		}
		for ch, v := range perChannel {
			channels[ch] = append(channels[ch], *v)
		}
	}

	for ch, views := range channels {
		for i := 0; i < len(views); i++ {
			for j := i + 1; j < len(views); j++ {
				a, c := views[i], views[j]
				if len(a.msgs) < chatMinMessages || len(c.msgs) < chatMinMessages {
					continue
				}
				skew := a.latest.Sub(c.latest)
				if skew < 0 {
					skew = -skew
				}
				if skew > chatSkewBound {
					continue
				}
				d := jaccardDistance(a.msgs, c.msgs)
				if d <= chatJaccardDist {
					continue
				}
				return &Issue{
					Title:    fmt.Sprintf("[Chat] Divergent chat history in channel %s between %s and %s", ch, a.member, c.member),
					Expected: "Clients observing the same channel in overlapping windows see near-identical messages",
					Observed: fmt.Sprintf("Jaccard distance %.2f between %d and %d messages", d, len(a.msgs), len(c.msgs)),
					Steps: []string{
						"register two clients in the same room",
						fmt.Sprintf("have both observe channel %s within %s of each other", ch, chatSkewBound),
						"compare the returned message sets",
					},
					Evidence: Evidence{
						Participants: []string{a.member, c.member},
						Timestamps:   []time.Time{a.latest, c.latest},
						Logs: []string{
							fmt.Sprintf("%s saw %d messages, %s saw %d", a.member, len(a.msgs), c.member, len(c.msgs)),
						},
					},
					Key: ch + ":" + pairKey(a.member, c.member),
				}
			}
		}
	}
	return nil
}

func detectStuckMember(b *Bank, s Snapshot) *Issue {
	for _, m := range s.Members {
		if !m.Registered || m.LastSuccessAt.IsZero() {
			continue
		}
		if s.TakenAt.Sub(m.LastSuccessAt) < stuckIdleThreshold {
			continue
		}
		calls := m.Calls
		if len(calls) < stuckMinCalls {
			continue
		}
		failures := 0
		for _, c := range calls {
			if !c.Success {
				failures++
			}
		}
		rate := float64(failures) / float64(len(calls))
		if rate < stuckFailureFloor {
			continue
		}
		return &Issue{
			Title:    fmt.Sprintf("[Client] Member %s stuck: no successful action for %s", m.Name, s.TakenAt.Sub(m.LastSuccessAt).Round(time.Second)),
			Expected: "An active client completes actions continuously",
			Observed: fmt.Sprintf("%.0f%% of the last %d calls failed, last success %s ago", rate*100, len(calls), s.TakenAt.Sub(m.LastSuccessAt).Round(time.Second)),
			Steps: []string{
				"register a client and let it act normally",
				"watch for a window with no successful calls",
			},
			Evidence: Evidence{
				Participants: []string{m.Name},
				Timestamps:   []time.Time{m.LastSuccessAt},
				Logs:         callTail(calls, 5),
				HTTPDetail:   m.LastError,
			},
			Key: m.Name,
		}
	}
	return nil
}

func detectGlobalErrorRate(b *Bank, s Snapshot) *Issue {
	total, failures := 0, 0
	for _, m := range s.Members {
		for _, c := range m.Calls {
			if s.TakenAt.Sub(c.At) > globalErrorWindow {
				continue
			}
			total++
			if !c.Success {
				failures++
			}
		}
	}
	if total < globalErrorMinCalls {
		return nil
	}
	rate := float64(failures) / float64(total)
	if rate <= globalErrorThreshold {
		return nil
	}
	return &Issue{
		Title:    fmt.Sprintf("[API] Global error rate %.0f%% across swarm", rate*100),
		Expected: fmt.Sprintf("API failure rate stays under %.0f%% under normal load", globalErrorThreshold*100),
		Observed: fmt.Sprintf("%d of %d calls failed in the last %s", failures, total, globalErrorWindow),
		Steps: []string{
			fmt.Sprintf("run %d concurrent clients against the service", len(s.Members)),
			"aggregate call outcomes over a rolling window",
		},
		Evidence: Evidence{
			Participants: memberNames(s.Members),
			StateTable:   stateTable(s.Members),
		},
		Key: "global",
	}
}

func detectEntityCountDivergence(b *Bank, s Snapshot) *Issue {
	for i := 0; i < len(s.Members); i++ {
		for j := i + 1; j < len(s.Members); j++ {
			a, c := s.Members[i], s.Members[j]
			if a.LastObserveAt.IsZero() || c.LastObserveAt.IsZero() {
				continue
			}
			if bucket(a.Position, entityBucketPx) != bucket(c.Position, entityBucketPx) {
				continue
			}
			skew := a.LastObserveAt.Sub(c.LastObserveAt)
			if skew < 0 {
				skew = -skew
			}
			if skew > entitySkewBound {
				continue
			}
			na, nc := len(a.Entities), len(c.Entities)
			if !countsDiverge(na, nc) {
				continue
			}
			return &Issue{
				Title:    fmt.Sprintf("[Sync] Co-located members %s and %s see %d vs %d entities", a.Name, c.Name, na, nc),
				Expected: "Clients at the same position observing within a small skew see the same entity population",
				Observed: fmt.Sprintf("%s sees %d entities, %s sees %d (skew %s)", a.Name, na, c.Name, nc, skew),
				Steps: []string{
					"register two clients and move them to the same tile",
					fmt.Sprintf("observe from both within %s", entitySkewBound),
					"compare entity counts",
				},
				Evidence: Evidence{
					Participants: []string{a.Name, c.Name},
					Timestamps:   []time.Time{a.LastObserveAt, c.LastObserveAt},
					Logs: []string{
						fmt.Sprintf("%s at (%.0f,%.0f): %d entities", a.Name, a.Position.X, a.Position.Y, na),
						fmt.Sprintf("%s at (%.0f,%.0f): %d entities", c.Name, c.Position.X, c.Position.Y, nc),
					},
					StateTable: stateTable([]swarm.MemberSnapshot{a, c}),
				},
				Key: bucket(a.Position, entityBucketPx),
			}
		}
	}
	return nil
}

// countsDiverge applies the ratio test, treating a zero side as divergent
// only past an absolute gap.
func countsDiverge(a, b int) bool {
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	if lo == 0 {
		return hi >= entityCountMinGap
	}
	return float64(hi)/float64(lo) > entityCountRatio
}

func detectFacilityDivergence(b *Bank, s Snapshot) *Issue {
	type sighting struct {
		member string
		fac    swarm.FacilitySighting
	}
	byFacility := make(map[string][]sighting)
	for _, m := range s.Members {
		for id, f := range m.Facilities {
			byFacility[id] = append(byFacility[id], sighting{member: m.Name, fac: f})
		}
	}
	for id, sightings := range byFacility {
		for i := 0; i < len(sightings); i++ {
			for j := i + 1; j < len(sightings); j++ {
				a, c := sightings[i], sightings[j]
				if affordanceSet(a.fac.Affordances) == affordanceSet(c.fac.Affordances) {
					continue
				}
				return &Issue{
					Title:    fmt.Sprintf("[Sync] Facility %s shows different affordances to %s and %s", id, a.member, c.member),
					Expected: "A facility exposes the same affordance set to every observer",
					Observed: fmt.Sprintf("%s sees [%s], %s sees [%s]", a.member, strings.Join(a.fac.Affordances, ","), c.member, strings.Join(c.fac.Affordances, ",")),
					Steps: []string{
						"register two clients near the same facility",
						"observe from both and compare affordance lists",
					},
					Evidence: Evidence{
						Participants: []string{a.member, c.member},
						Timestamps:   []time.Time{a.fac.At, c.fac.At},
					},
					Key: id,
				}
			}
		}
	}
	return nil
}

func detectObserveInconsistency(b *Bank, s Snapshot) *Issue {
	for i := 0; i < len(s.Members); i++ {
		for j := i + 1; j < len(s.Members); j++ {
			a, c := s.Members[i], s.Members[j]
			if len(a.Facilities) == 0 || len(c.Facilities) == 0 {
				continue
			}
			if bucket(a.Position, observeBucketPx) != bucket(c.Position, observeBucketPx) {
				continue
			}
			setA, setC := facilityIDSet(a.Facilities), facilityIDSet(c.Facilities)
			if setA == setC {
				continue
			}
			return &Issue{
				Title:    fmt.Sprintf("[Sync] Members %s and %s at the same position see different facilities", a.Name, c.Name),
				Expected: "Clients at the same coarse position see the same facility set",
				Observed: fmt.Sprintf("%s sees {%s}, %s sees {%s}", a.Name, setA, c.Name, setC),
				Steps: []string{
					"move two clients to the same position bucket",
					"observe from both and compare facility id sets",
				},
				Evidence: Evidence{
					Participants: []string{a.Name, c.Name},
					Timestamps:   []time.Time{a.LastObserveAt, c.LastObserveAt},
				},
				Key: bucket(a.Position, observeBucketPx),
			}
		}
	}
	return nil
}

func detectInteractFailures(b *Bank, s Snapshot) *Issue {
	for _, m := range s.Members {
		if len(m.Interactions) < interactMinSamples {
			continue
		}
		suspicious := 0
		for _, r := range m.Interactions {
			if r.Accepted {
				continue
			}
			reason := strings.ToLower(r.Reason)
			if strings.Contains(reason, "too far") || strings.Contains(reason, "invalid action") {
				suspicious++
			}
		}
		frac := float64(suspicious) / float64(len(m.Interactions))
		if frac < interactFailFraction {
			continue
		}
		return &Issue{
			Title:    fmt.Sprintf("[API] Member %s: %.0f%% of interactions rejected as too-far/invalid", m.Name, frac*100),
			Expected: "Interactions offered by observation results are accepted by the service",
			Observed: fmt.Sprintf("%d of %d recent interactions rejected", suspicious, len(m.Interactions)),
			Steps: []string{
				"observe to collect nearby affordances",
				"interact with an offered affordance immediately",
				"note the rejection reason",
			},
			Evidence: Evidence{
				Participants: []string{m.Name},
				Logs:         interactionTail(m.Interactions, 5),
			},
			Key: m.Name,
		}
	}
	return nil
}

func detectPollingGap(b *Bank, s Snapshot) *Issue {
	for _, m := range s.Members {
		if m.PrevPollAt.IsZero() || m.LastPollAt.IsZero() {
			continue
		}
		gap := m.LastPollAt.Sub(m.PrevPollAt)
		if gap <= pollGapThreshold {
			continue
		}
		return &Issue{
			Title:    fmt.Sprintf("[API] Event stream gap of %s for member %s", gap.Round(time.Second), m.Name),
			Expected: fmt.Sprintf("Consecutive successful event polls complete within %s", pollGapThreshold),
			Observed: fmt.Sprintf("gap of %s between successful polls", gap.Round(time.Second)),
			Steps: []string{
				"poll the event stream with a cursor repeatedly",
				"measure the gap between successful polls",
			},
			Evidence: Evidence{
				Participants: []string{m.Name},
				Timestamps:   []time.Time{m.PrevPollAt, m.LastPollAt},
			},
			Key: m.Name,
		}
	}
	return nil
}

func detectLowCoverage(b *Bank, s Snapshot) *Issue {
	if s.Cycle <= b.cfg.WarmupCycles {
		return nil
	}
	called := make(map[string]bool)
	for _, m := range s.Members {
		for _, c := range m.Calls {
			called[c.Endpoint] = true
		}
	}
	if len(called)*2 >= len(worldapi.Endpoints) {
		return nil
	}
	var list []string
	for e := range called {
		list = append(list, e)
	}
	sort.Strings(list)
	return &Issue{
		Title:    fmt.Sprintf("[Coverage] Only %d of %d endpoints exercised after %d cycles", len(called), len(worldapi.Endpoints), s.Cycle),
		Expected: "The swarm collectively reaches most of the API surface after warm-up",
		Observed: fmt.Sprintf("endpoints called: %s", strings.Join(list, ", ")),
		Steps: []string{
			"run the swarm past its warm-up period",
			"union the endpoints present in all call histories",
		},
		Evidence: Evidence{
			Participants: memberNames(s.Members),
			Coverage:     list,
		},
		Key: "coverage",
	}
}

func detectRoleCompliance(b *Bank, s Snapshot) *Issue {
	for _, m := range s.Members {
		if len(m.Actions) < complianceMinActions {
			continue
		}
		prefs := swarm.PreferencesFor(m.Role)

		// Opportunity-gated categories only. Keys that never reached the
		// minimum opportunity count are skipped, which can mask anomalies
		// in sparsely-triggered categories; kept as reference behavior.
		prefWeights := make(map[string]float64)
		prefTotal := 0.0
		for cat, n := range m.Opportunities {
			if n < complianceMinOpportunity {
				continue
			}
			w := prefs.Lookup(cat, "")
			prefWeights[cat] = w
			prefTotal += w
		}
		if prefTotal == 0 || len(prefWeights) < 2 {
			continue
		}

		actual := make(map[string]float64)
		for _, label := range m.Actions {
			actual[labelCategory(label)]++
		}
		overlap := 0.0
		for cat, w := range prefWeights {
			expShare := w / prefTotal
			actShare := actual[cat] / float64(len(m.Actions))
			overlap += math.Min(expShare, actShare)
		}
		if overlap >= complianceMinOverlap {
			continue
		}
		return &Issue{
			Title:    fmt.Sprintf("[Behavior] Member %s (%s) action mix diverges from role profile", m.Name, m.Role),
			Expected: fmt.Sprintf("A %s member's action distribution overlaps its preference profile by at least %.2f", m.Role, complianceMinOverlap),
			Observed: fmt.Sprintf("opportunity-weighted overlap %.2f over %d actions", overlap, len(m.Actions)),
			Steps: []string{
				fmt.Sprintf("run a %s member for %d+ cycles", m.Role, complianceMinActions),
				"compare its action mix against the role preference table",
			},
			Evidence: Evidence{
				Participants: []string{m.Name},
				StateTable:   map[string]string{m.Name: fmt.Sprintf("role=%s actions=%d overlap=%.2f", m.Role, len(m.Actions), overlap)},
			},
			Key: m.Name,
		}
	}
	return nil
}

func detectLowEntropy(b *Bank, s Snapshot) *Issue {
	for _, m := range s.Members {
		if len(m.Actions) < entropyMinActions {
			continue
		}
		distinct := make(map[string]bool)
		for _, a := range m.Actions {
			distinct[a] = true
		}
		if len(distinct) >= entropyMinLabels {
			continue
		}
		return &Issue{
			Title:    fmt.Sprintf("[Behavior] Member %s repeats %d distinct actions over %d cycles", m.Name, len(distinct), len(m.Actions)),
			Expected: fmt.Sprintf("A healthy decision engine produces at least %d distinct actions over %d cycles", entropyMinLabels, entropyMinActions),
			Observed: fmt.Sprintf("only %d distinct labels: %s", len(distinct), strings.Join(keysOf(distinct), ", ")),
			Steps: []string{
				"let a member run long enough to fill its action history",
				"count distinct action labels",
			},
			Evidence: Evidence{
				Participants: []string{m.Name},
				Logs:         []string{fmt.Sprintf("recent actions: %s", strings.Join(m.Actions, " "))},
			},
			Key: m.Name,
		}
	}
	return nil
}

func detectIdleDespiteOpportunity(b *Bank, s Snapshot) *Issue {
	for _, m := range s.Members {
		var near *swarm.FacilitySighting
		for _, f := range m.Facilities {
			if f.Distance <= 48 && len(f.Affordances) > 0 {
				fc := f
				near = &fc
				break
			}
		}
		if near == nil {
			continue
		}
		if s.TakenAt.Sub(near.At) > idleInteractWindow {
			continue
		}
		recentInteraction := false
		for _, r := range m.Interactions {
			if s.TakenAt.Sub(r.At) <= idleInteractWindow {
				recentInteraction = true
				break
			}
		}
		if recentInteraction || len(m.Actions) < 5 {
			continue
		}
		return &Issue{
			Title:    fmt.Sprintf("[Behavior] Member %s idles next to %s despite available affordances", m.Name, near.ID),
			Expected: "A member within interact range of an affordance eventually interacts",
			Observed: fmt.Sprintf("no interaction in %s while %.0fpx from %s [%s]", idleInteractWindow, near.Distance, near.ID, strings.Join(near.Affordances, ",")),
			Steps: []string{
				"place a member within interact range of a facility",
				"watch its action history for interactions",
			},
			Evidence: Evidence{
				Participants: []string{m.Name},
				Timestamps:   []time.Time{near.At},
			},
			Key: m.Name + ":" + near.ID,
		}
	}
	return nil
}

func detectCandidateStarvation(b *Bank, s Snapshot) *Issue {
	for _, m := range s.Members {
		if m.Cycles < starvationMinCycles {
			continue
		}
		if len(m.Entities) > 0 || len(m.Facilities) > 0 {
			continue
		}
		if !m.Registered {
			continue
		}
		return &Issue{
			Title:    fmt.Sprintf("[World] Member %s sees an empty world after %d cycles", m.Name, m.Cycles),
			Expected: "An active client eventually observes entities or facilities",
			Observed: fmt.Sprintf("zero entities and zero facilities at (%.0f,%.0f)", m.Position.X, m.Position.Y),
			Steps: []string{
				fmt.Sprintf("run a client for %d+ cycles", starvationMinCycles),
				"check its observation results for content",
			},
			Evidence: Evidence{
				Participants: []string{m.Name},
				StateTable:   map[string]string{m.Name: fmt.Sprintf("pos=(%.0f,%.0f) cycles=%d", m.Position.X, m.Position.Y, m.Cycles)},
			},
			Key: m.Name,
		}
	}
	return nil
}

// --- helpers --------------------------------------------------------------

func distance(a, b worldapi.Position) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

func bucket(p worldapi.Position, size float64) string {
	return fmt.Sprintf("%d,%d", int(math.Floor(p.X/size)), int(math.Floor(p.Y/size)))
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "+" + b
}

func affordanceSet(affordances []string) string {
	sorted := append([]string(nil), affordances...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

func facilityIDSet(facilities map[string]swarm.FacilitySighting) string {
	ids := make([]string, 0, len(facilities))
	for id := range facilities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

func labelCategory(label string) string {
	if idx := strings.IndexByte(label, ':'); idx >= 0 {
		return label[:idx]
	}
	return label
}

func memberNames(members []swarm.MemberSnapshot) []string {
	names := make([]string, 0, len(members))
	for _, m := range members {
		names = append(names, m.Name)
	}
	return names
}

func stateTable(members []swarm.MemberSnapshot) map[string]string {
	table := make(map[string]string, len(members))
	for _, m := range members {
		failures := 0
		for _, c := range m.Calls {
			if !c.Success {
				failures++
			}
		}
		table[m.Name] = fmt.Sprintf("role=%s state=%s pos=(%.0f,%.0f) entities=%d calls=%d failures=%d",
			m.Role, m.State, m.Position.X, m.Position.Y, len(m.Entities), len(m.Calls), failures)
	}
	return table
}

func callTail(calls []swarm.CallRecord, n int) []string {
	start := len(calls) - n
	if start < 0 {
		start = 0
	}
	out := make([]string, 0, n)
	for _, c := range calls[start:] {
		status := "ok"
		if !c.Success {
			status = fmt.Sprintf("%s/%d", c.Class, c.Status)
		}
		out = append(out, fmt.Sprintf("%s %s %s in %s", c.At.Format(time.RFC3339), c.Endpoint, status, c.Latency.Round(time.Millisecond)))
	}
	return out
}

func interactionTail(records []swarm.InteractionRecord, n int) []string {
	start := len(records) - n
	if start < 0 {
		start = 0
	}
	out := make([]string, 0, n)
	for _, r := range records[start:] {
		out = append(out, fmt.Sprintf("%s %s on %s accepted=%v reason=%q", r.At.Format(time.RFC3339), r.Action, r.TargetID, r.Accepted, r.Reason))
	}
	return out
}

func keysOf(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
