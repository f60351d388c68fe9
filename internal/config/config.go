package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all swarmfuzz configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Target world service
	Target TargetConfig `yaml:"target"`

	// Swarm composition and member behavior
	Swarm SwarmConfig `yaml:"swarm"`

	// Anomaly detection
	Detect DetectConfig `yaml:"detect"`

	// Chaos escalation
	Chaos ChaosConfig `yaml:"chaos"`

	// Issue reporting
	Report ReportConfig `yaml:"report"`

	// Issue archive (cross-run frequency memory)
	Store StoreConfig `yaml:"store"`

	// Orchestrator loop
	Loop LoopConfig `yaml:"loop"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// TargetConfig configures the world service under test.
type TargetConfig struct {
	BaseURL        string `yaml:"base_url"`
	RoomID         string `yaml:"room_id"`
	RequestTimeout string `yaml:"request_timeout"`
}

// SwarmConfig configures swarm members.
type SwarmConfig struct {
	MemberCount int    `yaml:"member_count"`
	DefaultRole string `yaml:"default_role"`
	CycleDelay  string `yaml:"cycle_delay"`

	// Registration / auth failure handling
	MaxAuthFailures    int    `yaml:"max_auth_failures"`
	RegisterAttempts   int    `yaml:"register_attempts"`
	RegisterRetryDelay string `yaml:"register_retry_delay"`

	// Bounded history sizes
	CallHistorySize   int `yaml:"call_history_size"`
	ActionHistorySize int `yaml:"action_history_size"`
	ChatHistorySize   int `yaml:"chat_history_size"`
	EntityMemorySize  int `yaml:"entity_memory_size"`
}

// DetectConfig configures the anomaly detector bank.
type DetectConfig struct {
	Seed         int64  `yaml:"seed"` // 0 means time-seeded
	WarmupCycles int    `yaml:"warmup_cycles"`
	CooldownTTL  string `yaml:"cooldown_ttl"`
}

// ChaosConfig configures the escalation ladder.
type ChaosConfig struct {
	Enabled     bool `yaml:"enabled"`
	StressLevel int  `yaml:"stress_level"`

	// Issueless cycles before the ladder advances one rung.
	EscalateAfter int `yaml:"escalate_after"`
}

// ReportConfig configures the issue tracker gateway.
type ReportConfig struct {
	DryRun              bool    `yaml:"dry_run"`
	TrackerBaseURL      string  `yaml:"tracker_base_url"`
	TrackerToken        string  `yaml:"tracker_token"`
	MarkerLabel         string  `yaml:"marker_label"`
	IssueCheckInterval  string  `yaml:"issue_check_interval"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

// StoreConfig configures the local SQLite issue archive.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// LoopConfig configures the orchestrator.
type LoopConfig struct {
	CycleInterval   string `yaml:"cycle_interval"`
	StateFile       string `yaml:"state_file"`
	StampFile       string `yaml:"stamp_file"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// LoggingConfig configures categorized trace logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "swarmfuzz",
		Version: Version,

		Target: TargetConfig{
			BaseURL:        "http://localhost:8787",
			RoomID:         "default",
			RequestTimeout: "15s",
		},

		Swarm: SwarmConfig{
			MemberCount:        5,
			DefaultRole:        "explorer",
			CycleDelay:         "2s",
			MaxAuthFailures:    3,
			RegisterAttempts:   4,
			RegisterRetryDelay: "2s",
			CallHistorySize:    50,
			ActionHistorySize:  30,
			ChatHistorySize:    40,
			EntityMemorySize:   64,
		},

		Detect: DetectConfig{
			Seed:         0,
			WarmupCycles: 20,
			CooldownTTL:  "30m",
		},

		Chaos: ChaosConfig{
			Enabled:       true,
			StressLevel:   1,
			EscalateAfter: 5,
		},

		Report: ReportConfig{
			DryRun:              false,
			TrackerBaseURL:      "http://localhost:9090",
			MarkerLabel:         "swarmfuzz",
			IssueCheckInterval:  "60s",
			SimilarityThreshold: 0.6,
		},

		Store: StoreConfig{
			DatabasePath: ".swarmfuzz/archive.db",
		},

		Loop: LoopConfig{
			CycleInterval:   "10s",
			StateFile:       ".swarmfuzz/state.json",
			StampFile:       "",
			ShutdownTimeout: "15s",
		},

		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load loads configuration from a YAML file, merged over defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides lets deployment environments override file settings.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SWARMFUZZ_TARGET_URL"); v != "" {
		c.Target.BaseURL = v
	}
	if v := os.Getenv("SWARMFUZZ_ROOM"); v != "" {
		c.Target.RoomID = v
	}
	if v := os.Getenv("SWARMFUZZ_TRACKER_URL"); v != "" {
		c.Report.TrackerBaseURL = v
	}
	if v := os.Getenv("SWARMFUZZ_TRACKER_TOKEN"); v != "" {
		c.Report.TrackerToken = v
	}
	if v := os.Getenv("SWARMFUZZ_MEMBERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Swarm.MemberCount = n
		}
	}
	if v := os.Getenv("SWARMFUZZ_DRY_RUN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Report.DryRun = b
		}
	}
	if v := os.Getenv("SWARMFUZZ_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Detect.Seed = n
		}
	}
}

// parseDuration parses a duration string, returning fallback on empty or bad input.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// RequestTimeout returns the parsed target request timeout.
func (t TargetConfig) Timeout() time.Duration {
	return parseDuration(t.RequestTimeout, 15*time.Second)
}

// Delay returns the parsed inter-cycle delay for members.
func (s SwarmConfig) Delay() time.Duration {
	return parseDuration(s.CycleDelay, 2*time.Second)
}

// RetryDelay returns the parsed base delay between registration attempts.
func (s SwarmConfig) RetryDelay() time.Duration {
	return parseDuration(s.RegisterRetryDelay, 2*time.Second)
}

// TTL returns the parsed fingerprint cooldown TTL.
func (d DetectConfig) TTL() time.Duration {
	return parseDuration(d.CooldownTTL, 30*time.Minute)
}

// CheckInterval returns the parsed tracker re-check interval.
func (r ReportConfig) CheckInterval() time.Duration {
	return parseDuration(r.IssueCheckInterval, time.Minute)
}

// Interval returns the parsed orchestrator cycle interval.
func (l LoopConfig) Interval() time.Duration {
	return parseDuration(l.CycleInterval, 10*time.Second)
}

// StopTimeout returns the parsed graceful shutdown budget.
func (l LoopConfig) StopTimeout() time.Duration {
	return parseDuration(l.ShutdownTimeout, 15*time.Second)
}
