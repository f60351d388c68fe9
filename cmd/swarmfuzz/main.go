package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"swarmfuzz/internal/chaos"
	"swarmfuzz/internal/config"
	"swarmfuzz/internal/detect"
	"swarmfuzz/internal/logging"
	"swarmfuzz/internal/loop"
	"swarmfuzz/internal/report"
	"swarmfuzz/internal/store"
	"swarmfuzz/internal/worldapi"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Run flags
	members       int
	stressLevel   int
	chaosEnabled  bool
	dryRun        bool
	roomID        string
	baseURL       string
	cycleDelay    time.Duration
	cycleInterval time.Duration
	checkInterval time.Duration
	seed          int64

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "swarmfuzz",
	Short: "swarmfuzz - continuous multi-agent fuzzing harness for tick-world services",
	Long: `swarmfuzz runs a swarm of simulated clients against a tick-world service,
watches their collective state with a bank of anomaly detectors, and files
deduplicated issues to the tracker.

When the detectors stay quiet, a chaos ladder escalates swarm size, speed,
and behavior until something gives.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runHarness,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the swarmfuzz version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("swarmfuzz %s\n", config.BuildInfo())
	},
}

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "List recently archived issues",
	RunE:  showArchive,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "swarmfuzz.yaml", "Configuration file")

	rootCmd.Flags().IntVarP(&members, "members", "n", 0, "Swarm member count (overrides config)")
	rootCmd.Flags().IntVar(&stressLevel, "stress", 0, "Initial escalation ladder rung")
	rootCmd.Flags().BoolVar(&chaosEnabled, "chaos", true, "Enable the escalation ladder")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log issues instead of filing them")
	rootCmd.Flags().StringVar(&roomID, "room", "", "Target room identifier")
	rootCmd.Flags().StringVar(&baseURL, "url", "", "Target service base URL")
	rootCmd.Flags().DurationVar(&cycleDelay, "cycle-delay", 0, "Inter-cycle delay per member")
	rootCmd.Flags().DurationVar(&cycleInterval, "interval", 0, "Orchestrator cycle interval")
	rootCmd.Flags().DurationVar(&checkInterval, "issue-check-interval", 0, "Open-issue list refresh interval")
	rootCmd.Flags().Int64Var(&seed, "seed", 0, "Detector ordering seed (0 = time-seeded)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(archiveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig merges the config file, environment, and explicit flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("members") {
		cfg.Swarm.MemberCount = members
	}
	if flags.Changed("stress") {
		cfg.Chaos.StressLevel = stressLevel
	}
	if flags.Changed("chaos") {
		cfg.Chaos.Enabled = chaosEnabled
	}
	if flags.Changed("dry-run") {
		cfg.Report.DryRun = dryRun
	}
	if flags.Changed("room") {
		cfg.Target.RoomID = roomID
	}
	if flags.Changed("url") {
		cfg.Target.BaseURL = baseURL
	}
	if flags.Changed("cycle-delay") {
		cfg.Swarm.CycleDelay = cycleDelay.String()
	}
	if flags.Changed("interval") {
		cfg.Loop.CycleInterval = cycleInterval.String()
	}
	if flags.Changed("issue-check-interval") {
		cfg.Report.IssueCheckInterval = checkInterval.String()
	}
	if flags.Changed("seed") {
		cfg.Detect.Seed = seed
	}
	return cfg, nil
}

func runHarness(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	workdir, err := os.Getwd()
	if err != nil {
		return err
	}
	if err := logging.Initialize(workdir, logging.Settings{
		DebugMode:  cfg.Logging.DebugMode || verbose,
		Categories: cfg.Logging.Categories,
	}); err != nil {
		logger.Warn("trace logging unavailable", zap.Error(err))
	}
	defer logging.Close()

	logger.Info("starting swarmfuzz",
		zap.String("version", config.BuildInfo()),
		zap.String("target", cfg.Target.BaseURL),
		zap.String("room", cfg.Target.RoomID),
		zap.Int("members", cfg.Swarm.MemberCount),
		zap.Bool("chaos", cfg.Chaos.Enabled),
		zap.Bool("dry_run", cfg.Report.DryRun))

	api := worldapi.New(worldapi.Config{
		BaseURL: cfg.Target.BaseURL,
		RoomID:  cfg.Target.RoomID,
		Timeout: cfg.Target.Timeout(),
		Logger:  logger,
	})

	bank := detect.New(detect.Config{
		Seed:         cfg.Detect.Seed,
		WarmupCycles: cfg.Detect.WarmupCycles,
		CooldownTTL:  cfg.Detect.TTL(),
	}, logger)

	// The archive only feeds frequency hints; a broken local database must
	// not keep the harness from running.
	var archive report.Archive
	if db, err := store.OpenArchive(cfg.Store.DatabasePath); err != nil {
		logger.Warn("issue archive unavailable", zap.Error(err))
	} else {
		archive = db
		defer db.Close()
	}

	tracker := report.NewHTTPTracker(cfg.Report.TrackerBaseURL, cfg.Report.TrackerToken, logger)
	gateway := report.NewGateway(tracker, archive, report.Config{
		DryRun:              cfg.Report.DryRun,
		MarkerLabel:         cfg.Report.MarkerLabel,
		SimilarityThreshold: cfg.Report.SimilarityThreshold,
		CheckInterval:       cfg.Report.CheckInterval(),
	}, logger)

	ladder := chaos.NewLadder(cfg.Chaos.Enabled, logger)
	ladder.SetLevel(cfg.Chaos.StressLevel)

	watcher, err := loop.NewWatcher(cfg.Loop.StampFile, logger)
	if err != nil {
		logger.Warn("deployment watcher unavailable", zap.Error(err))
	}

	orch := loop.New(cfg, api, bank, gateway, ladder, watcher, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		sig := <-sigCh
		logger.Info("signal received, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	err = orch.Run(ctx)
	if errors.Is(err, loop.ErrRestartRequested) {
		logger.Info("exiting cleanly for deployment restart")
		return nil
	}
	return err
}

func showArchive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	db, err := store.OpenArchive(cfg.Store.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	issues, err := db.Recent(25)
	if err != nil {
		return err
	}
	if len(issues) == 0 {
		fmt.Println("no archived issues")
		return nil
	}
	for _, it := range issues {
		fmt.Printf("%-10s %-8s x%-3d %s  (last seen %s)\n",
			it.Ref, it.Severity, it.Occurrences, it.Title, it.LastSeen.Format(time.RFC3339))
	}
	return nil
}
