package loop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"swarmfuzz/internal/chaos"
	"swarmfuzz/internal/config"
	"swarmfuzz/internal/detect"
	"swarmfuzz/internal/logging"
	"swarmfuzz/internal/report"
	"swarmfuzz/internal/swarm"
	"swarmfuzz/internal/worldapi"
)

// ErrRestartRequested is returned by Run after a clean stop triggered by the
// deployment watcher. The process wrapper decides what to do with it.
var ErrRestartRequested = errors.New("restart requested by deployment watcher")

// Orchestrator owns the swarm and drives the detect/report/escalate cycle.
// It is the only component allowed to mutate swarm composition, which makes
// it the natural implementation of chaos.SwarmControl.
type Orchestrator struct {
	cfg     *config.Config
	api     *worldapi.Client
	shared  *swarm.Shared
	bank    *detect.Bank
	gateway *report.Gateway
	ladder  *chaos.Ladder
	watcher *Watcher
	log     *zap.Logger

	mu        sync.Mutex
	members   []*swarm.Member
	memberSeq int
	memberCtx context.Context
	memberWG  sync.WaitGroup

	state *State
}

// New wires the orchestrator. watcher may be nil (no deployment stamp).
func New(cfg *config.Config, api *worldapi.Client, bank *detect.Bank,
	gateway *report.Gateway, ladder *chaos.Ladder, watcher *Watcher,
	log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		cfg:     cfg,
		api:     api,
		shared:  swarm.NewShared(cfg.Swarm.Delay(), swarm.Role(cfg.Swarm.DefaultRole)),
		bank:    bank,
		gateway: gateway,
		ladder:  ladder,
		watcher: watcher,
		log:     log.Named("loop"),
	}
}

// Run executes fixed-interval cycles until the context is canceled or the
// deployment watcher requests a restart. Both paths stop the swarm
// gracefully before returning.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.state = LoadState(o.cfg.Loop.StateFile)
	if o.state.Cycle > 0 {
		o.ladder.SetLevel(o.state.StressLevel)
		o.log.Info("resuming persisted run state",
			zap.Int("cycle", o.state.Cycle),
			zap.Int("total_issues", o.state.TotalIssues),
			zap.Int("stress_level", o.state.StressLevel))
	}

	memberCtx, cancelMembers := context.WithCancel(context.Background())
	defer cancelMembers()
	o.mu.Lock()
	o.memberCtx = memberCtx
	o.mu.Unlock()

	if err := o.AddMembers(o.cfg.Swarm.MemberCount, swarm.Role(o.cfg.Swarm.DefaultRole)); err != nil {
		return fmt.Errorf("spawn initial swarm: %w", err)
	}

	ticker := time.NewTicker(o.cfg.Loop.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.log.Info("shutdown requested")
			return o.stopSwarm(cancelMembers)
		case <-ticker.C:
			o.runCycle(ctx)
			if o.watcher.RestartRequested() {
				o.log.Info("deployment stamp changed, stopping for restart")
				if err := o.stopSwarm(cancelMembers); err != nil {
					o.log.Warn("swarm stop during restart", zap.Error(err))
				}
				return ErrRestartRequested
			}
		}
	}
}

// runCycle performs one orchestrator cycle. A panic anywhere in detection or
// reporting is contained to the cycle; the loop itself must keep running.
func (o *Orchestrator) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("cycle panicked", zap.Any("panic", r))
		}
	}()

	o.state.Cycle++
	snap := o.snapshot()
	logging.Trace(logging.CategoryLoop, "cycle %d: %d members snapshotted", snap.Cycle, len(snap.Members))

	res := o.bank.RunCycle(snap)
	switch {
	case res == nil:
		o.state.CyclesWithoutIssue++
		if o.cfg.Chaos.Enabled && o.state.CyclesWithoutIssue >= o.cfg.Chaos.EscalateAfter {
			o.state.CyclesWithoutIssue = 0
			if rung := o.ladder.Advance(o); rung != "" {
				o.log.Info("quiet streak, escalated", zap.String("rung", rung))
			}
		}

	case res.Duplicate:
		o.state.CyclesWithoutIssue = 0
		if err := o.gateway.CommentCooldown(ctx, res.Ref, res.Issue); err != nil {
			o.log.Warn("cooldown comment failed", zap.Error(err))
		}

	default:
		o.state.CyclesWithoutIssue = 0
		ref, created, err := o.gateway.CreateIssue(ctx, res.Issue)
		if err != nil {
			// Leave the cooldown unarmed so the next detection retries.
			o.log.Error("issue reporting failed", zap.Error(err))
			break
		}
		o.bank.Cooldowns().Arm(res.Fingerprint, ref, snap.TakenAt)
		o.ladder.Reset()
		if created {
			o.state.NoteIssue(ref)
		}
	}

	o.state.StressLevel = o.ladder.Level()
	o.state.Escalations = o.ladder.Escalations()
	o.state.MemberNames = o.memberNames()
	if err := o.state.Save(o.cfg.Loop.StateFile); err != nil {
		o.log.Warn("state persistence failed", zap.Error(err))
	}
}

// snapshot collects a per-member-consistent view of the whole swarm.
func (o *Orchestrator) snapshot() detect.Snapshot {
	o.mu.Lock()
	members := make([]*swarm.Member, len(o.members))
	copy(members, o.members)
	o.mu.Unlock()

	snap := detect.Snapshot{Cycle: o.state.Cycle, TakenAt: time.Now()}
	for _, m := range members {
		snap.Members = append(snap.Members, m.Snapshot())
	}
	return snap
}

// stopSwarm cancels member loops and fans out graceful unregisters, bounded
// by the configured shutdown budget.
func (o *Orchestrator) stopSwarm(cancelMembers context.CancelFunc) error {
	cancelMembers()

	o.mu.Lock()
	members := make([]*swarm.Member, len(o.members))
	copy(members, o.members)
	o.mu.Unlock()

	stopCtx, cancel := context.WithTimeout(context.Background(), o.cfg.Loop.StopTimeout())
	defer cancel()

	g, gctx := errgroup.WithContext(stopCtx)
	for _, m := range members {
		m := m
		g.Go(func() error {
			if err := m.StopGracefully(gctx); err != nil {
				o.log.Debug("graceful stop", zap.String("member", m.Name()), zap.Error(err))
			}
			return nil
		})
	}
	err := g.Wait()

	o.memberWG.Wait()
	if werr := o.watcher.Close(); werr != nil {
		o.log.Debug("watcher close", zap.Error(werr))
	}
	return err
}

func (o *Orchestrator) memberNames() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	names := make([]string, 0, len(o.members))
	for _, m := range o.members {
		names = append(names, m.Name())
	}
	return names
}

// --- chaos.SwarmControl ----------------------------------------------------

// AddMembers spawns n new members. An empty role means the current shared
// default.
func (o *Orchestrator) AddMembers(n int, role swarm.Role) error {
	if role == "" {
		role = o.shared.DefaultRole()
	}

	o.mu.Lock()
	if o.memberCtx == nil {
		o.mu.Unlock()
		return errors.New("orchestrator is not running")
	}
	ctx := o.memberCtx
	var spawned []*swarm.Member
	for i := 0; i < n; i++ {
		o.memberSeq++
		m := swarm.NewMember(o.api, o.shared, swarm.MemberConfig{
			Name:              fmt.Sprintf("fuzz-%d", o.memberSeq),
			Role:              role,
			MaxAuthFailures:   o.cfg.Swarm.MaxAuthFailures,
			RegisterAttempts:  o.cfg.Swarm.RegisterAttempts,
			RetryDelay:        o.cfg.Swarm.RetryDelay(),
			CallHistorySize:   o.cfg.Swarm.CallHistorySize,
			ActionHistorySize: o.cfg.Swarm.ActionHistorySize,
			ChatHistorySize:   o.cfg.Swarm.ChatHistorySize,
			EntityMemorySize:  o.cfg.Swarm.EntityMemorySize,
		}, o.log)
		o.members = append(o.members, m)
		spawned = append(spawned, m)
	}
	o.mu.Unlock()

	for _, m := range spawned {
		m := m
		o.memberWG.Add(1)
		go func() {
			defer o.memberWG.Done()
			m.Run(ctx)
		}()
	}

	o.log.Info("members added", zap.Int("count", n), zap.String("role", string(role)))
	return nil
}

// ShortenCycleDelay multiplies the shared inter-cycle delay by factor.
func (o *Orchestrator) ShortenCycleDelay(factor float64) {
	current := o.shared.Delay()
	next := time.Duration(float64(current) * factor)
	o.shared.SetDelay(next)
	o.log.Info("cycle delay shortened",
		zap.Duration("from", current), zap.Duration("to", o.shared.Delay()))
}

// SetDefaultRole changes the role newly added members receive.
func (o *Orchestrator) SetDefaultRole(role swarm.Role) {
	o.shared.SetDefaultRole(role)
	o.log.Info("default role changed", zap.String("role", string(role)))
}

// ConvertAll switches every live member to the given role.
func (o *Orchestrator) ConvertAll(role swarm.Role) {
	o.mu.Lock()
	members := make([]*swarm.Member, len(o.members))
	copy(members, o.members)
	o.mu.Unlock()

	converted := 0
	for _, m := range members {
		if m.State() == swarm.StateRetired {
			continue
		}
		m.SetRole(role)
		converted++
	}
	o.log.Info("swarm converted", zap.String("role", string(role)), zap.Int("count", converted))
}
