package swarm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swarmfuzz/internal/worldapi"
)

// mockWorld is a minimal world service whose auth behavior tests can flip
// at runtime.
type mockWorld struct {
	rejectAll   atomic.Bool // 401 on everything, including register
	rejectCalls atomic.Bool // 401 on everything except register
	calls       atomic.Int64
	registers   atomic.Int64
	observe     worldapi.ObserveResponse
}

func (w *mockWorld) handler() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		w.calls.Add(1)
		isRegister := strings.HasSuffix(r.URL.Path, "/register")
		if w.rejectAll.Load() || (w.rejectCalls.Load() && !isRegister) {
			rw.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case isRegister:
			n := w.registers.Add(1)
			json.NewEncoder(rw).Encode(worldapi.RegisterResponse{
				MemberID: "id-" + string(rune('a'+n-1)),
				Token:    "tok-" + string(rune('a'+n-1)),
			})
		case strings.HasSuffix(r.URL.Path, "/observe"):
			json.NewEncoder(rw).Encode(w.observe)
		case strings.Contains(r.URL.Path, "/events"):
			json.NewEncoder(rw).Encode(worldapi.EventsResponse{Cursor: "c1"})
		case strings.Contains(r.URL.Path, "/chat"):
			json.NewEncoder(rw).Encode(worldapi.ChatObserveResponse{})
		case strings.Contains(r.URL.Path, "/capabilities"):
			json.NewEncoder(rw).Encode(worldapi.CapabilitiesResponse{})
		default:
			rw.WriteHeader(http.StatusOK)
		}
	})
}

func newTestMember(t *testing.T, world *mockWorld) *Member {
	t.Helper()
	srv := httptest.NewServer(world.handler())
	t.Cleanup(srv.Close)
	api := worldapi.New(worldapi.Config{BaseURL: srv.URL, RoomID: "test"})
	shared := NewShared(10*time.Millisecond, RoleExplorer)
	return NewMember(api, shared, MemberConfig{
		Name:             "fuzz-0",
		Role:             RoleExplorer,
		MaxAuthFailures:  3,
		RegisterAttempts: 1,
		RetryDelay:       time.Millisecond,
		Seed:             1,
	}, nil)
}

func assertIdentityInvariant(t *testing.T, m *Member) {
	t.Helper()
	snap := m.Snapshot()
	both := snap.ID != "" && snap.Registered
	neither := snap.ID == "" && !snap.Registered
	assert.True(t, both || neither,
		"identity %q and credential presence %v must be set together", snap.ID, snap.Registered)
}

func TestRegisterSetsIdentityAndCredentialTogether(t *testing.T) {
	world := &mockWorld{}
	m := newTestMember(t, world)

	assertIdentityInvariant(t, m)
	require.NoError(t, m.Register(context.Background()))
	assertIdentityInvariant(t, m)

	snap := m.Snapshot()
	assert.Equal(t, StateActive, snap.State)
	assert.NotEmpty(t, snap.ID)
}

func TestFailedRegisterLeavesNoPartialState(t *testing.T) {
	world := &mockWorld{}
	world.rejectAll.Store(true)
	m := newTestMember(t, world)

	err := m.Register(context.Background())
	require.Error(t, err)
	assertIdentityInvariant(t, m)
	assert.Equal(t, StateUnregistered, m.State())
}

func TestAuthFailureCeilingRetiresMember(t *testing.T) {
	world := &mockWorld{}
	m := newTestMember(t, world)
	require.NoError(t, m.Register(context.Background()))

	world.rejectAll.Store(true)

	ctx := context.Background()
	for i := 0; i < 10 && m.State() != StateRetired; i++ {
		_, _ = m.RunCycle(ctx)
		assertIdentityInvariant(t, m)
	}
	require.Equal(t, StateRetired, m.State())

	// A retired member performs no further network calls.
	before := world.calls.Load()
	for i := 0; i < 5; i++ {
		_, err := m.RunCycle(ctx)
		assert.ErrorIs(t, err, ErrRetired)
	}
	assert.Equal(t, before, world.calls.Load())
}

func TestReregisterInPlaceOnRecoverableAuthFailure(t *testing.T) {
	world := &mockWorld{}
	m := newTestMember(t, world)
	require.NoError(t, m.Register(context.Background()))
	firstID := m.Snapshot().ID

	// Seed some action history that re-registration must reset.
	m.mu.Lock()
	m.actions.Push("observe")
	m.actions.Push("chat:say")
	m.entities["ghost"] = EntitySighting{ID: "ghost"}
	m.mu.Unlock()

	// One rejected cycle, then the service accepts registrations again.
	world.rejectCalls.Store(true)
	go func() {
		time.Sleep(5 * time.Millisecond)
		world.rejectCalls.Store(false)
	}()

	_, err := m.RunCycle(context.Background())
	require.NoError(t, err)

	snap := m.Snapshot()
	assert.Equal(t, StateActive, snap.State)
	assert.NotEqual(t, firstID, snap.ID, "re-registration assigns a fresh identity")
	assert.NotContains(t, snap.Entities, "ghost", "observation history reset")
	assert.Equal(t, 0, snap.AuthFailures)
	assertIdentityInvariant(t, m)
}

func TestSnapshotIsValueCopy(t *testing.T) {
	world := &mockWorld{observe: worldapi.ObserveResponse{
		Position: worldapi.Position{X: 10, Y: 20},
		Facilities: []worldapi.Facility{{
			ID: "well-1", Type: "well", Affordances: []string{"drink"},
			Position: worldapi.Position{X: 12, Y: 20},
		}},
	}}
	m := newTestMember(t, world)
	require.NoError(t, m.Register(context.Background()))

	a := m.Snapshot()
	b := m.Snapshot()
	a.TakenAt = b.TakenAt // only field allowed to differ between idle snapshots
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("idle snapshots differ (-a +b):\n%s", diff)
	}

	// Mutating the copy must not leak into member state.
	a.Facilities["well-1"] = FacilitySighting{ID: "tampered"}
	a.Actions = append(a.Actions, "tampered")
	c := m.Snapshot()
	assert.Equal(t, "well-1", c.Facilities["well-1"].ID)
	assert.NotContains(t, c.Actions, "tampered")
}

func TestRunCycleRecordsActionLabel(t *testing.T) {
	world := &mockWorld{}
	m := newTestMember(t, world)
	require.NoError(t, m.Register(context.Background()))

	label, err := m.RunCycle(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, label)

	snap := m.Snapshot()
	assert.Contains(t, snap.Actions, label)
	assert.LessOrEqual(t, len(snap.Actions), m.cfg.ActionHistorySize)
}

func TestStopGracefullyUnregistersAndClearsCredential(t *testing.T) {
	world := &mockWorld{}
	m := newTestMember(t, world)
	require.NoError(t, m.Register(context.Background()))

	require.NoError(t, m.StopGracefully(context.Background()))
	snap := m.Snapshot()
	assert.Equal(t, StateRetired, snap.State)
	assert.Empty(t, snap.ID)
	assert.False(t, snap.Registered)
}

func TestMissionStepAdvancesAndLoops(t *testing.T) {
	world := &mockWorld{}
	m := newTestMember(t, world)
	require.NoError(t, m.Register(context.Background()))

	missions := MissionsFor(m.Role())
	totalCycles := 0
	for _, mi := range missions {
		for _, s := range mi.Steps {
			totalCycles += s.Cycles
		}
	}

	ctx := context.Background()
	for i := 0; i < totalCycles; i++ {
		_, err := m.RunCycle(ctx)
		require.NoError(t, err)
	}

	snap := m.Snapshot()
	assert.Equal(t, 0, snap.MissionIndex, "full pass through all missions wraps to the first")
	assert.Equal(t, 0, snap.StepIndex)
}
