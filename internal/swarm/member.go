// Package swarm implements the simulated clients that exercise the world
// service: per-member lifecycle, bounded histories, and the weighted action
// selection engine.
package swarm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"swarmfuzz/internal/logging"
	"swarmfuzz/internal/worldapi"
)

// State is a member's lifecycle phase.
type State string

const (
	StateUnregistered  State = "unregistered"
	StateRegistered    State = "registered"
	StateActive        State = "active"
	StateReregistering State = "reregistering"
	StateRetired       State = "retired"
)

// ErrRetired is returned by RunCycle once a member is permanently done.
var ErrRetired = errors.New("member retired")

// MemberConfig holds per-member construction parameters.
type MemberConfig struct {
	Name string
	Role Role

	MaxAuthFailures  int
	RegisterAttempts int
	RetryDelay       time.Duration

	// ObserveWindow is how stale the last successful observation may be
	// before a cycle forces a fresh one.
	ObserveWindow time.Duration

	CallHistorySize   int
	ActionHistorySize int
	ChatHistorySize   int
	EntityMemorySize  int

	MapWidth  float64
	MapHeight float64

	Seed int64
}

func (c *MemberConfig) fill() {
	if c.MaxAuthFailures <= 0 {
		c.MaxAuthFailures = 3
	}
	if c.RegisterAttempts <= 0 {
		c.RegisterAttempts = 4
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.ObserveWindow <= 0 {
		c.ObserveWindow = 10 * time.Second
	}
	if c.CallHistorySize <= 0 {
		c.CallHistorySize = 50
	}
	if c.ActionHistorySize <= 0 {
		c.ActionHistorySize = 30
	}
	if c.ChatHistorySize <= 0 {
		c.ChatHistorySize = 40
	}
	if c.EntityMemorySize <= 0 {
		c.EntityMemorySize = 64
	}
	if c.MapWidth <= 0 {
		c.MapWidth = 1000
	}
	if c.MapHeight <= 0 {
		c.MapHeight = 1000
	}
}

// Member is one simulated client. All mutable state is owned by the member
// and guarded by mu; network calls are made without holding the lock.
type Member struct {
	cfg    MemberConfig
	api    *worldapi.Client
	shared *Shared
	log    *zap.Logger

	mu    sync.Mutex
	state State
	id    string
	token string
	role  Role
	pos   worldapi.Position

	calls         *History[CallRecord]
	interactions  *History[InteractionRecord]
	actions       *History[string]
	chat          *History[ChatRecord]
	entityTrail   *History[EntitySighting]
	entities      map[string]EntitySighting
	facilities    map[string]FacilitySighting
	eventCursor   string
	capabilities  map[string]bool
	opportunities map[string]int

	authFailures int
	cycles       int
	missionIdx   int
	stepIdx      int
	stepElapsed  int
	lastError    *worldapi.APIError

	lastObserveAt time.Time
	lastPollAt    time.Time
	prevPollAt    time.Time
	lastSuccessAt time.Time

	rng      *rand.Rand
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewMember creates an unregistered member.
func NewMember(api *worldapi.Client, shared *Shared, cfg MemberConfig, log *zap.Logger) *Member {
	cfg.fill()
	if log == nil {
		log = zap.NewNop()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Member{
		cfg:           cfg,
		api:           api,
		shared:        shared,
		log:           log.Named("member").With(zap.String("name", cfg.Name)),
		state:         StateUnregistered,
		role:          cfg.Role,
		calls:         NewHistory[CallRecord](cfg.CallHistorySize),
		interactions:  NewHistory[InteractionRecord](cfg.CallHistorySize),
		actions:       NewHistory[string](cfg.ActionHistorySize),
		chat:          NewHistory[ChatRecord](cfg.ChatHistorySize),
		entityTrail:   NewHistory[EntitySighting](cfg.EntityMemorySize * 2),
		entities:      make(map[string]EntitySighting),
		facilities:    make(map[string]FacilitySighting),
		capabilities:  make(map[string]bool),
		opportunities: make(map[string]int),
		rng:           rand.New(rand.NewSource(seed)),
		stopCh:        make(chan struct{}),
	}
}

// Name returns the member's local name (distinct from server identity).
func (m *Member) Name() string { return m.cfg.Name }

// State returns the current lifecycle phase.
func (m *Member) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Role returns the member's current role.
func (m *Member) Role() Role {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.role
}

// SetRole switches the member's archetype and restarts its mission script.
// The escalation controller uses this to convert the swarm.
func (m *Member) SetRole(r Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.role == r {
		return
	}
	m.role = r
	m.missionIdx = 0
	m.stepIdx = 0
	m.stepElapsed = 0
}

// Stop halts the member's loop without unregistering.
func (m *Member) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// StopGracefully halts the loop and attempts a best-effort unregister.
func (m *Member) StopGracefully(ctx context.Context) error {
	m.Stop()

	m.mu.Lock()
	token := m.token
	m.mu.Unlock()

	var err error
	if token != "" {
		err = m.api.Unregister(ctx, token)
		if tolerableUnregisterError(err) {
			err = nil
		}
	}

	m.mu.Lock()
	m.id = ""
	m.token = ""
	m.state = StateRetired
	m.mu.Unlock()
	return err
}

// 401/403/404 on unregister mean already-effectively-unregistered.
func tolerableUnregisterError(err error) bool {
	if err == nil {
		return true
	}
	detail := worldapi.Detail(err)
	if detail == nil {
		return false
	}
	return detail.Status == 401 || detail.Status == 403 || detail.Status == 404
}

// Register performs initial registration. Identity and credential are set
// together or not at all.
func (m *Member) Register(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateRetired {
		m.mu.Unlock()
		return ErrRetired
	}
	role := m.role
	m.mu.Unlock()

	start := time.Now()
	resp, err := m.api.Register(ctx, m.cfg.Name, string(role))
	m.recordCall(worldapi.EndpointRegister, start, err)
	if err != nil {
		m.noteFailure(err)
		return fmt.Errorf("register %s: %w", m.cfg.Name, err)
	}

	m.mu.Lock()
	m.id = resp.MemberID
	m.token = resp.Token
	m.state = StateRegistered
	m.authFailures = 0
	m.mu.Unlock()

	logging.Trace(logging.CategorySwarm, "%s registered as %s", m.cfg.Name, resp.MemberID)

	// Initial world observation so the first cycle has candidates.
	_ = m.observe(ctx)

	m.mu.Lock()
	m.state = StateActive
	m.mu.Unlock()
	return nil
}

// Run drives the member's cycle loop until stopped, canceled, or retired.
func (m *Member) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		default:
		}

		label, err := m.RunCycle(ctx)
		if errors.Is(err, ErrRetired) {
			m.log.Info("member retired, loop exiting")
			return
		}
		if err != nil {
			m.log.Debug("cycle error", zap.String("label", label), zap.Error(err))
		}

		timer := time.NewTimer(m.shared.Delay())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-m.stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// RunCycle performs one cycle: ensure registration, refresh a stale
// observation, build and sample the weighted candidate list, execute the
// pick, and record its label.
func (m *Member) RunCycle(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.state == StateRetired {
		m.mu.Unlock()
		return "", ErrRetired
	}
	registered := m.token != ""
	m.cycles++
	m.mu.Unlock()

	if !registered {
		if err := m.Register(ctx); err != nil {
			if worldapi.IsAuthFailure(err) {
				return "", m.handleAuthFailure(ctx)
			}
			return "", err
		}
	}

	m.mu.Lock()
	stale := time.Since(m.lastObserveAt) > m.cfg.ObserveWindow
	m.mu.Unlock()
	if stale {
		if err := m.observe(ctx); err != nil && worldapi.IsAuthFailure(err) {
			return worldapi.EndpointObserve, m.handleAuthFailure(ctx)
		}
	}

	cands := m.buildCandidates()
	if len(cands) == 0 {
		return "", nil
	}

	m.mu.Lock()
	cand := pickCandidate(m.rng, cands)
	m.mu.Unlock()
	if cand == nil {
		return "", nil
	}

	err := cand.Run(ctx)

	m.mu.Lock()
	m.actions.Push(cand.Label)
	m.advanceMissionLocked()
	m.mu.Unlock()

	logging.Trace(logging.CategorySwarm, "%s cycle action=%s err=%v", m.cfg.Name, cand.Label, err)

	if err != nil && worldapi.IsAuthFailure(err) {
		// A successful in-place re-registration counts as a recovered cycle.
		return cand.Label, m.handleAuthFailure(ctx)
	}
	return cand.Label, err
}

// handleAuthFailure routes a 401-class rejection into the re-registration
// flow, retiring the member once the consecutive-failure ceiling is passed.
// Ordinary failures never reach here; they stay in the rolling history.
func (m *Member) handleAuthFailure(ctx context.Context) error {
	m.mu.Lock()
	m.authFailures++
	failures := m.authFailures
	ceiling := m.cfg.MaxAuthFailures
	m.mu.Unlock()

	if failures > ceiling {
		m.retire()
		return ErrRetired
	}
	return m.reregister(ctx)
}

// reregister runs the recoverable-auth-failure flow: best-effort unregister,
// fixed delay, then registration retries with linearly increasing backoff.
func (m *Member) reregister(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateRetired {
		m.mu.Unlock()
		return ErrRetired
	}
	m.state = StateReregistering
	token := m.token
	m.id = ""
	m.token = ""
	m.mu.Unlock()

	m.log.Info("re-registering after auth failure")

	if token != "" {
		if err := m.api.Unregister(ctx, token); err != nil && !tolerableUnregisterError(err) {
			m.log.Debug("unregister during re-registration failed", zap.Error(err))
		}
	}

	if !sleepCtx(ctx, m.cfg.RetryDelay) {
		return ctx.Err()
	}

	for attempt := 1; attempt <= m.cfg.RegisterAttempts; attempt++ {
		start := time.Now()
		resp, err := m.api.Register(ctx, m.cfg.Name, string(m.Role()))
		m.recordCall(worldapi.EndpointRegister, start, err)
		if err == nil {
			m.mu.Lock()
			m.id = resp.MemberID
			m.token = resp.Token
			m.state = StateActive
			m.authFailures = 0
			// Observation and action history restart from scratch; call
			// history is kept so detectors still see the failure run-up.
			m.entities = make(map[string]EntitySighting)
			m.facilities = make(map[string]FacilitySighting)
			m.entityTrail.Clear()
			m.actions.Clear()
			m.chat.Clear()
			m.eventCursor = ""
			m.mu.Unlock()

			_ = m.observe(ctx)
			m.log.Info("re-registered", zap.Int("attempt", attempt))
			return nil
		}

		m.noteFailure(err)
		if !sleepCtx(ctx, time.Duration(attempt)*m.cfg.RetryDelay) {
			return ctx.Err()
		}
	}

	m.mu.Lock()
	m.authFailures++
	failures := m.authFailures
	m.state = StateUnregistered
	m.mu.Unlock()

	if failures > m.cfg.MaxAuthFailures {
		m.retire()
		return ErrRetired
	}
	return fmt.Errorf("re-registration of %s exhausted %d attempts", m.cfg.Name, m.cfg.RegisterAttempts)
}

// retire is terminal for this member only, never for the swarm.
func (m *Member) retire() {
	m.mu.Lock()
	m.state = StateRetired
	m.id = ""
	m.token = ""
	m.mu.Unlock()
	m.Stop()
	m.log.Warn("member permanently retired after repeated auth failures")
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Snapshot returns a read-only value copy of the member's state. The copy is
// consistent for this member; cross-member consistency is the caller's
// concern.
func (m *Member) Snapshot() MemberSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := MemberSnapshot{
		ID:            m.id,
		Name:          m.cfg.Name,
		Role:          m.role,
		State:         m.state,
		Position:      m.pos,
		Registered:    m.token != "",
		Cycles:        m.cycles,
		AuthFailures:  m.authFailures,
		Calls:         m.calls.Items(),
		Interactions:  m.interactions.Items(),
		Actions:       m.actions.Items(),
		EntityTrail:   m.entityTrail.Items(),
		Entities:      make(map[string]EntitySighting, len(m.entities)),
		Facilities:    make(map[string]FacilitySighting, len(m.facilities)),
		Chat:          m.chat.Items(),
		EventCursor:   m.eventCursor,
		Opportunities: make(map[string]int, len(m.opportunities)),
		LastObserveAt: m.lastObserveAt,
		LastPollAt:    m.lastPollAt,
		PrevPollAt:    m.prevPollAt,
		LastSuccessAt: m.lastSuccessAt,
		MissionIndex:  m.missionIdx,
		StepIndex:     m.stepIdx,
		TakenAt:       time.Now(),
	}
	for id, e := range m.entities {
		snap.Entities[id] = e
	}
	for id, f := range m.facilities {
		fc := f
		fc.Affordances = append([]string(nil), f.Affordances...)
		snap.Facilities[id] = fc
	}
	for cat, n := range m.opportunities {
		snap.Opportunities[cat] = n
	}
	for name := range m.capabilities {
		snap.Capabilities = append(snap.Capabilities, name)
	}
	if m.lastError != nil {
		errCopy := *m.lastError
		snap.LastError = &errCopy
	}
	return snap
}

// --- call recording -------------------------------------------------------

func (m *Member) recordCall(endpoint string, start time.Time, err error) {
	rec := CallRecord{
		Endpoint: endpoint,
		At:       start,
		Success:  err == nil,
		Latency:  time.Since(start),
	}
	if err != nil {
		rec.Class = worldapi.Classify(err)
		if d := worldapi.Detail(err); d != nil {
			rec.Status = d.Status
		}
	}

	m.mu.Lock()
	m.calls.Push(rec)
	if err == nil {
		m.lastSuccessAt = time.Now()
		m.authFailures = 0
	}
	m.mu.Unlock()
}

func (m *Member) noteFailure(err error) {
	d := worldapi.Detail(err)
	if d == nil {
		return
	}
	m.mu.Lock()
	errCopy := *d
	m.lastError = &errCopy
	m.mu.Unlock()
}

// --- primitive actions ----------------------------------------------------

func (m *Member) observe(ctx context.Context) error {
	m.mu.Lock()
	token := m.token
	m.mu.Unlock()

	start := time.Now()
	resp, err := m.api.Observe(ctx, token)
	m.recordCall(worldapi.EndpointObserve, start, err)
	if err != nil {
		m.noteFailure(err)
		return err
	}

	now := time.Now()
	m.mu.Lock()
	m.pos = resp.Position
	m.lastObserveAt = now

	seen := make(map[string]bool, len(resp.Entities))
	for _, e := range resp.Entities {
		s := EntitySighting{ID: e.ID, Kind: e.Kind, Position: e.Position, At: now}
		m.entities[e.ID] = s
		m.entityTrail.Push(s)
		seen[e.ID] = true
	}
	for id := range m.entities {
		if !seen[id] {
			delete(m.entities, id)
		}
	}
	m.evictEntitiesLocked()

	seenFac := make(map[string]bool, len(resp.Facilities))
	for _, f := range resp.Facilities {
		m.facilities[f.ID] = FacilitySighting{
			ID:          f.ID,
			Type:        f.Type,
			Affordances: append([]string(nil), f.Affordances...),
			Distance:    dist(resp.Position, f.Position),
			Position:    f.Position,
			At:          now,
		}
		seenFac[f.ID] = true
	}
	for id := range m.facilities {
		if !seenFac[id] {
			delete(m.facilities, id)
		}
	}
	m.mu.Unlock()
	return nil
}

func (m *Member) evictEntitiesLocked() {
	for len(m.entities) > m.cfg.EntityMemorySize {
		oldestID := ""
		var oldest time.Time
		for id, e := range m.entities {
			if oldestID == "" || e.At.Before(oldest) {
				oldestID = id
				oldest = e.At
			}
		}
		delete(m.entities, oldestID)
	}
}

func (m *Member) pollEvents(ctx context.Context) error {
	m.mu.Lock()
	token, cursor := m.token, m.eventCursor
	m.mu.Unlock()

	start := time.Now()
	resp, err := m.api.PollEvents(ctx, token, cursor)
	m.recordCall(worldapi.EndpointEvents, start, err)
	if err != nil {
		m.noteFailure(err)
		return err
	}

	m.mu.Lock()
	m.eventCursor = resp.Cursor
	m.prevPollAt = m.lastPollAt
	m.lastPollAt = time.Now()
	m.mu.Unlock()
	return nil
}

func (m *Member) observeChat(ctx context.Context, channel string) error {
	m.mu.Lock()
	token := m.token
	m.mu.Unlock()

	start := time.Now()
	msgs, err := m.api.ObserveChat(ctx, token, channel)
	m.recordCall(worldapi.EndpointChatObserve, start, err)
	if err != nil {
		m.noteFailure(err)
		return err
	}

	now := time.Now()
	m.mu.Lock()
	for _, msg := range msgs {
		m.chat.Push(ChatRecord{
			Sender:     msg.Sender,
			Text:       msg.Text,
			Channel:    msg.Channel,
			SentAt:     msg.SentAt,
			ObservedAt: now,
		})
	}
	m.mu.Unlock()
	return nil
}

func (m *Member) sendChat(ctx context.Context, channel, text string) error {
	m.mu.Lock()
	token := m.token
	m.mu.Unlock()

	start := time.Now()
	err := m.api.SendChat(ctx, token, channel, text)
	m.recordCall(worldapi.EndpointChatSend, start, err)
	if err != nil {
		m.noteFailure(err)
	}
	return err
}

func (m *Member) moveTo(ctx context.Context, x, y float64) error {
	m.mu.Lock()
	token := m.token
	m.mu.Unlock()

	start := time.Now()
	err := m.api.MoveTo(ctx, token, x, y)
	m.recordCall(worldapi.EndpointMove, start, err)
	if err != nil {
		m.noteFailure(err)
	}
	return err
}

func (m *Member) interact(ctx context.Context, targetID, action string) error {
	m.mu.Lock()
	token := m.token
	m.mu.Unlock()

	start := time.Now()
	resp, err := m.api.Interact(ctx, token, targetID, action)
	m.recordCall(worldapi.EndpointInteract, start, err)

	rec := InteractionRecord{TargetID: targetID, Action: action, At: start}
	if err != nil {
		rec.Reason = err.Error()
		m.noteFailure(err)
	} else {
		rec.Accepted = resp.Accepted
		rec.Reason = resp.Reason
	}
	m.mu.Lock()
	m.interactions.Push(rec)
	m.mu.Unlock()
	return err
}

func (m *Member) updateProfile(ctx context.Context) error {
	m.mu.Lock()
	token := m.token
	role := m.role
	cycles := m.cycles
	m.mu.Unlock()

	start := time.Now()
	err := m.api.UpdateProfile(ctx, token, map[string]string{
		"role":   string(role),
		"status": fmt.Sprintf("cycle %d", cycles),
	})
	m.recordCall(worldapi.EndpointProfile, start, err)
	if err != nil {
		m.noteFailure(err)
	}
	return err
}

func (m *Member) listCapabilities(ctx context.Context) error {
	m.mu.Lock()
	token := m.token
	m.mu.Unlock()

	start := time.Now()
	caps, err := m.api.ListCapabilities(ctx, token)
	m.recordCall(worldapi.EndpointCapabilityList, start, err)
	if err != nil {
		m.noteFailure(err)
		return err
	}

	m.mu.Lock()
	for _, c := range caps {
		if c.Installed {
			m.capabilities[c.Name] = true
		} else if _, known := m.capabilities[c.Name]; !known {
			m.capabilities[c.Name] = false
		}
	}
	m.mu.Unlock()
	return nil
}

func (m *Member) installCapability(ctx context.Context, name string) error {
	m.mu.Lock()
	token := m.token
	m.mu.Unlock()

	start := time.Now()
	err := m.api.InstallCapability(ctx, token, name)
	m.recordCall(worldapi.EndpointCapInstall, start, err)
	if err != nil {
		m.noteFailure(err)
		return err
	}
	m.mu.Lock()
	m.capabilities[name] = true
	m.mu.Unlock()
	return nil
}

func (m *Member) invokeCapability(ctx context.Context, name string) error {
	m.mu.Lock()
	token := m.token
	m.mu.Unlock()

	start := time.Now()
	err := m.api.InvokeCapability(ctx, token, name, "")
	m.recordCall(worldapi.EndpointCapInvoke, start, err)
	if err != nil {
		m.noteFailure(err)
	}
	return err
}

// --- candidate generation -------------------------------------------------

// buildCandidates produces the fresh candidate list for this cycle and
// applies the full weight formula.
func (m *Member) buildCandidates() []Candidate {
	m.mu.Lock()

	pos := m.pos
	starved := len(m.entities) == 0 && len(m.facilities) == 0

	var cands []Candidate
	add := func(c Candidate) {
		if c.Weight <= 0 {
			c.Weight = 1.0
		}
		cands = append(cands, c)
	}

	// Baseline observation / polling / chat observation.
	add(Candidate{Label: "observe", Category: "observe",
		Run: func(ctx context.Context) error { return m.observe(ctx) }})
	add(Candidate{Label: "events:poll", Category: "events", Action: "poll",
		Run: func(ctx context.Context) error { return m.pollEvents(ctx) }})
	add(Candidate{Label: "chat_observe", Category: "chat_observe",
		Run: func(ctx context.Context) error { return m.observeChat(ctx, "global") }})

	// Interactables: within reach interact per affordance, otherwise
	// navigate toward at a dampened weight.
	for _, f := range m.facilities {
		f := f
		if f.Distance <= proximityThreshold {
			for _, aff := range f.Affordances {
				aff := aff
				add(Candidate{
					Label:    "interact:" + aff,
					Category: "interact",
					Action:   aff,
					Run:      func(ctx context.Context) error { return m.interact(ctx, f.ID, aff) },
				})
			}
		} else {
			add(Candidate{
				Label:    "move:approach_" + f.Type,
				Category: "move",
				Action:   "approach",
				Weight:   facilityNavDampen,
				Run:      func(ctx context.Context) error { return m.moveTo(ctx, f.Position.X, f.Position.Y) },
			})
		}
	}

	// Nearby entities: navigate toward, further dampened.
	for _, e := range m.entities {
		e := e
		if dist(pos, e.Position) <= entityNavRadius {
			add(Candidate{
				Label:    "move:follow",
				Category: "move",
				Action:   "follow",
				Weight:   entityNavDampen,
				Run:      func(ctx context.Context) error { return m.moveTo(ctx, e.Position.X, e.Position.Y) },
			})
		}
	}

	// Role-scoped candidates.
	role := m.role
	lines := ChatLinesFor(role)
	line := lines[m.rng.Intn(len(lines))]
	add(Candidate{Label: "chat:say", Category: "chat", Action: "say",
		Run: func(ctx context.Context) error { return m.sendChat(ctx, "global", line) }})
	add(Candidate{Label: "profile:update", Category: "profile", Action: "update",
		Run: func(ctx context.Context) error { return m.updateProfile(ctx) }})
	add(Candidate{Label: "capability:list", Category: "capability", Action: "list",
		Run: func(ctx context.Context) error { return m.listCapabilities(ctx) }})

	var installable, invokable []string
	for name, installed := range m.capabilities {
		if installed {
			invokable = append(invokable, name)
		} else {
			installable = append(installable, name)
		}
	}
	if len(installable) > 0 {
		name := installable[m.rng.Intn(len(installable))]
		add(Candidate{Label: "capability:install", Category: "capability", Action: "install",
			Run: func(ctx context.Context) error { return m.installCapability(ctx, name) }})
	}
	if len(invokable) > 0 {
		name := invokable[m.rng.Intn(len(invokable))]
		add(Candidate{Label: "capability:invoke", Category: "capability", Action: "invoke",
			Run: func(ctx context.Context) error { return m.invokeCapability(ctx, name) }})
	}

	// Wander. Starved members seek the map center instead of drifting.
	wanderWeight := 1.0
	tx := m.rng.Float64() * m.cfg.MapWidth
	ty := m.rng.Float64() * m.cfg.MapHeight
	if starved {
		wanderWeight = starvationWanderBoost
		tx = m.cfg.MapWidth/2 + (m.rng.Float64()-0.5)*m.cfg.MapWidth*0.2
		ty = m.cfg.MapHeight/2 + (m.rng.Float64()-0.5)*m.cfg.MapHeight*0.2
	}
	add(Candidate{Label: "wander", Category: "wander", Weight: wanderWeight,
		Run: func(ctx context.Context) error { return m.moveTo(ctx, tx, ty) }})

	// Opportunity bookkeeping for the role-compliance detector.
	seenCats := make(map[string]bool)
	for i := range cands {
		if !seenCats[cands[i].Category] {
			seenCats[cands[i].Category] = true
			m.opportunities[cands[i].Category]++
		}
	}

	prefs := PreferencesFor(role)
	recent := m.actions.Items()
	step := m.currentStepLocked()
	errCount, failing := m.recentFailuresLocked()
	m.mu.Unlock()

	weighCandidates(cands, prefs, recent, step, errCount, failing)
	return cands
}

// currentStepLocked resolves the active mission step. Caller holds mu.
func (m *Member) currentStepLocked() MissionStep {
	missions := MissionsFor(m.role)
	if len(missions) == 0 {
		return MissionStep{}
	}
	mission := missions[m.missionIdx%len(missions)]
	if len(mission.Steps) == 0 {
		return MissionStep{}
	}
	return mission.Steps[m.stepIdx%len(mission.Steps)]
}

// advanceMissionLocked moves the per-step cycle counter, advancing to the
// next step when the step's duration elapses and to the next mission when
// the script is exhausted. Caller holds mu.
func (m *Member) advanceMissionLocked() {
	missions := MissionsFor(m.role)
	if len(missions) == 0 {
		return
	}
	mission := missions[m.missionIdx%len(missions)]
	if len(mission.Steps) == 0 {
		return
	}
	step := mission.Steps[m.stepIdx%len(mission.Steps)]

	m.stepElapsed++
	if m.stepElapsed < step.Cycles {
		return
	}
	m.stepElapsed = 0
	m.stepIdx++
	if m.stepIdx >= len(mission.Steps) {
		m.stepIdx = 0
		m.missionIdx = (m.missionIdx + 1) % len(missions)
	}
}

// recentFailuresLocked summarizes recent call failures for the suppression
// term. Caller holds mu.
func (m *Member) recentFailuresLocked() (int, map[string]bool) {
	recent := m.calls.Last(20)
	failing := make(map[string]bool)
	count := 0
	perCategory := make(map[string]int)
	for _, c := range recent {
		if c.Success {
			continue
		}
		count++
		cat := endpointCategory(c.Endpoint)
		perCategory[cat]++
		if perCategory[cat] >= 2 {
			failing[cat] = true
		}
	}
	return count, failing
}

// endpointCategory maps a call-history endpoint to a candidate category.
func endpointCategory(endpoint string) string {
	switch endpoint {
	case worldapi.EndpointMove:
		return "move"
	case worldapi.EndpointChatSend:
		return "chat"
	case worldapi.EndpointChatObserve:
		return "chat_observe"
	case worldapi.EndpointInteract:
		return "interact"
	case worldapi.EndpointEvents:
		return "events"
	case worldapi.EndpointProfile:
		return "profile"
	case worldapi.EndpointCapabilityList, worldapi.EndpointCapInstall, worldapi.EndpointCapInvoke:
		return "capability"
	default:
		return "observe"
	}
}

func dist(a, b worldapi.Position) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}
