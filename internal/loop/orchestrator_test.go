package loop

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"swarmfuzz/internal/chaos"
	"swarmfuzz/internal/config"
	"swarmfuzz/internal/detect"
	"swarmfuzz/internal/report"
	"swarmfuzz/internal/swarm"
	"swarmfuzz/internal/worldapi"
)

// trackerStub is an in-memory issue tracker.
type trackerStub struct {
	mu       sync.Mutex
	open     []report.TrackerIssue
	comments map[string][]string
	nextRef  int
}

func newTrackerStub() *trackerStub {
	return &trackerStub{comments: make(map[string][]string)}
}

func (ts *trackerStub) ListOpen(ctx context.Context, label string) ([]report.TrackerIssue, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]report.TrackerIssue(nil), ts.open...), nil
}

func (ts *trackerStub) Create(ctx context.Context, title, body string, labels []string) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.nextRef++
	ref := fmt.Sprintf("ISSUE-%d", ts.nextRef)
	ts.open = append(ts.open, report.TrackerIssue{Ref: ref, Title: title, Labels: labels})
	return ref, nil
}

func (ts *trackerStub) Comment(ctx context.Context, ref, body string) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.comments[ref] = append(ts.comments[ref], body)
	return nil
}

func (ts *trackerStub) counts() (created, comments int) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for _, c := range ts.comments {
		comments += len(c)
	}
	return len(ts.open), comments
}

// divergentWorld serves a room where the first two registrants stand on the
// same tile but see 5 vs 1 entities; the third stands far away.
func divergentWorld() http.Handler {
	var mu sync.Mutex
	registered := 0
	profiles := make(map[string]int)

	observeFor := func(idx int) worldapi.ObserveResponse {
		switch idx {
		case 0:
			resp := worldapi.ObserveResponse{Position: worldapi.Position{X: 150, Y: 150}}
			for i := 0; i < 5; i++ {
				resp.Entities = append(resp.Entities, worldapi.Entity{
					ID:       fmt.Sprintf("ent-%d", i),
					Kind:     "critter",
					Position: worldapi.Position{X: 150 + float64(i), Y: 150},
				})
			}
			return resp
		case 1:
			return worldapi.ObserveResponse{
				Position: worldapi.Position{X: 160, Y: 160},
				Entities: []worldapi.Entity{{ID: "ent-0", Kind: "critter", Position: worldapi.Position{X: 150, Y: 150}}},
			}
		default:
			return worldapi.ObserveResponse{
				Position: worldapi.Position{X: 800, Y: 800},
				Entities: []worldapi.Entity{{ID: "far-ent", Kind: "critter", Position: worldapi.Position{X: 810, Y: 800}}},
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/register"):
			mu.Lock()
			idx := registered
			registered++
			token := fmt.Sprintf("tok-%d", idx)
			profiles[token] = idx
			mu.Unlock()
			json.NewEncoder(w).Encode(worldapi.RegisterResponse{
				MemberID: fmt.Sprintf("m-%d", idx), Token: token,
			})
		case strings.HasSuffix(r.URL.Path, "/observe"):
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			mu.Lock()
			idx := profiles[token]
			mu.Unlock()
			json.NewEncoder(w).Encode(observeFor(idx))
		case strings.Contains(r.URL.Path, "/events"):
			json.NewEncoder(w).Encode(worldapi.EventsResponse{Cursor: "c-1"})
		default:
			w.Write([]byte("{}"))
		}
	})
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Target.BaseURL = baseURL
	cfg.Swarm.MemberCount = 3
	cfg.Swarm.CycleDelay = "50ms"
	cfg.Chaos.Enabled = false
	cfg.Detect.Seed = 7
	cfg.Detect.WarmupCycles = 1000
	cfg.Detect.CooldownTTL = "1h"
	cfg.Loop.CycleInterval = "100ms"
	cfg.Loop.StateFile = filepath.Join(t.TempDir(), "state.json")
	cfg.Loop.ShutdownTimeout = "2s"
	return cfg
}

func TestEndToEndDivergenceReportedOnceThenCommented(t *testing.T) {
	defer goleak.VerifyNone(t,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)

	srv := httptest.NewServer(divergentWorld())
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	api := worldapi.New(worldapi.Config{BaseURL: srv.URL, RoomID: cfg.Target.RoomID})
	bank := detect.New(detect.Config{
		Seed: cfg.Detect.Seed, WarmupCycles: cfg.Detect.WarmupCycles, CooldownTTL: cfg.Detect.TTL(),
	}, nil)
	tracker := newTrackerStub()
	gateway := report.NewGateway(tracker, nil, report.Config{MarkerLabel: "swarmfuzz"}, nil)
	ladder := chaos.NewLadder(cfg.Chaos.Enabled, nil)
	o := New(cfg, api, bank, gateway, ladder, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	// Divergence persists, so the sequence is: gate fills (2 cycles),
	// issue created, streak rebuilds, second surfacing hits the cooldown
	// and becomes a tracker comment.
	deadline := time.After(15 * time.Second)
	for {
		created, comments := tracker.counts()
		if created >= 1 && comments >= 1 {
			break
		}
		select {
		case <-deadline:
			cancel()
			<-done
			t.Fatalf("timed out: created=%d comments=%d", created, comments)
		case <-time.After(50 * time.Millisecond):
		}
	}
	cancel()
	require.NoError(t, <-done)

	created, comments := tracker.counts()
	assert.Equal(t, 1, created, "repeated divergence within the cooldown must not open new issues")
	assert.GreaterOrEqual(t, comments, 1)

	tracker.mu.Lock()
	issue := tracker.open[0]
	tracker.mu.Unlock()
	assert.Contains(t, issue.Labels, "area:sync")
	assert.Contains(t, issue.Title, "entities")
	assert.Contains(t, tracker.comments[issue.Ref][0], "Still occurring")

	// Run state was persisted with the created reference.
	st := LoadState(cfg.Loop.StateFile)
	assert.Equal(t, 1, st.TotalIssues)
	assert.Contains(t, st.RecentIssueRefs, issue.Ref)
	assert.Len(t, st.MemberNames, 3)
}

func TestAddMembersRequiresRunningLoop(t *testing.T) {
	cfg := testConfig(t, "http://localhost:0")
	o := New(cfg, worldapi.New(worldapi.Config{BaseURL: cfg.Target.BaseURL}), nil, nil, nil, nil, nil)

	err := o.AddMembers(1, swarm.RoleExplorer)
	assert.Error(t, err)
}

func TestSwarmControlSurface(t *testing.T) {
	cfg := testConfig(t, "http://localhost:0")
	o := New(cfg, worldapi.New(worldapi.Config{BaseURL: cfg.Target.BaseURL}), nil, nil, nil, nil, nil)

	// Pre-canceled member context: members join the roster but their
	// loops exit immediately, keeping this test network-free.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o.mu.Lock()
	o.memberCtx = ctx
	o.mu.Unlock()

	require.NoError(t, o.AddMembers(2, swarm.RoleExplorer))
	require.NoError(t, o.AddMembers(1, ""))
	o.memberWG.Wait()

	names := o.memberNames()
	assert.Equal(t, []string{"fuzz-1", "fuzz-2", "fuzz-3"}, names)

	o.ConvertAll(swarm.RoleSaboteur)
	o.mu.Lock()
	for _, m := range o.members {
		assert.Equal(t, swarm.RoleSaboteur, m.Role())
	}
	o.mu.Unlock()

	before := o.shared.Delay()
	o.ShortenCycleDelay(0.5)
	assert.Equal(t, before/2, o.shared.Delay())

	o.SetDefaultRole(swarm.RoleSpammer)
	assert.Equal(t, swarm.RoleSpammer, o.shared.DefaultRole())
}
