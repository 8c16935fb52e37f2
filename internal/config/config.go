// Package config loads the layered incubator configuration.
//
// Merge order is explicit and fixed: compiled defaults, then the base
// config file, then the per-phase profile overlay, then INCUBATOR_*
// environment variables. Each layer overrides field by field; there is no
// reflective deep merge.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// BaseFilename is the base config file looked up inside the config directory.
const BaseFilename = "incubator.yaml"

// Config is the fully merged runtime configuration.
type Config struct {
	// Phase is the deployment phase this host runs in ("dev", "staging", "prod").
	Phase string `yaml:"phase" json:"phase"`

	// ArtifactsDir is the root directory for incubation artifacts and the baseline.
	ArtifactsDir string `yaml:"artifacts_dir" json:"artifacts_dir"`

	// RepoPath is the git repository the pipeline operates on.
	RepoPath string `yaml:"repo_path" json:"repo_path"`

	Log          LogConfig             `yaml:"log" json:"log"`
	StateMachine StateMachineConfig    `yaml:"state_machine" json:"state_machine"`
	Thresholds   map[string]Thresholds `yaml:"thresholds" json:"thresholds"`
	RiskPolicy   RiskPolicy            `yaml:"risk_policy" json:"risk_policy"`
	Branches     BranchConfig          `yaml:"branches" json:"branches"`
	Commands     CommandsConfig        `yaml:"commands" json:"commands"`
}

// LogConfig selects the slog level and handler format.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"` // "text" or "json"
}

// StateMachineConfig drives step filtering, timeouts and admission.
type StateMachineConfig struct {
	// SkipRules maps a phase name to the steps skipped in that phase.
	SkipRules map[string][]string `yaml:"skip_rules" json:"skip_rules"`

	// TimeoutSec maps a step name to its timeout in seconds.
	TimeoutSec map[string]int `yaml:"timeouts" json:"timeouts"`

	// DefaultTimeoutSec applies to steps without an explicit entry.
	DefaultTimeoutSec int `yaml:"default_timeout" json:"default_timeout"`

	// MaxConcurrent caps simultaneously active incubations per artifacts root.
	MaxConcurrent int `yaml:"max_concurrent" json:"max_concurrent"`

	// UseLock switches the concurrency guard from the advisory state-file
	// scan to the exclusive-create lock file.
	UseLock bool `yaml:"use_lock" json:"use_lock"`
}

// Thresholds bounds the regression deltas the judge tolerates for one
// change type. Percent units throughout.
type Thresholds struct {
	FunctionalityMinPct float64 `yaml:"functionality_min_pct" json:"functionality_min_pct"`
	StabilityMaxPct     float64 `yaml:"stability_max_pct" json:"stability_max_pct"`
	P95LatencyMaxPct    float64 `yaml:"p95_latency_max_pct" json:"p95_latency_max_pct"`
}

// DefaultThresholds is the documented fallback when a change type has no
// configured override.
func DefaultThresholds() Thresholds {
	return Thresholds{
		FunctionalityMinPct: 0,
		StabilityMaxPct:     0,
		P95LatencyMaxPct:    10,
	}
}

// PathRule maps a file glob to a risk level.
type PathRule struct {
	Pattern string `yaml:"pattern" json:"pattern"`
	Level   string `yaml:"level" json:"level"`
}

// RiskPolicy configures the risk classifier.
type RiskPolicy struct {
	PathRules      []PathRule `yaml:"path_rules" json:"path_rules"`
	AutoEscalation []string   `yaml:"auto_escalation" json:"auto_escalation"`
}

// BranchConfig names the branch-guard actors and targets.
type BranchConfig struct {
	// Protected is the production branch only the promoter may write.
	Protected string `yaml:"protected" json:"protected"`
	// Intermediate is the sole branch allowed to merge into Protected.
	Intermediate string `yaml:"intermediate" json:"intermediate"`
	// Promoter is the sole actor role allowed to write Protected.
	Promoter string `yaml:"promoter" json:"promoter"`
}

// CommandsConfig holds the external verification commands the regress phase
// invokes. Each command must print a JSON stats summary on stdout.
type CommandsConfig struct {
	Unit        []string `yaml:"unit" json:"unit"`
	Lint        []string `yaml:"lint" json:"lint"`
	Integration []string `yaml:"integration" json:"integration"`
	E2E         []string `yaml:"e2e" json:"e2e"`
}

// Default returns the compiled-in configuration for the lowest phase.
func Default() *Config {
	return &Config{
		Phase:        "dev",
		ArtifactsDir: ".incubator/incubations",
		RepoPath:     ".",
		Log:          LogConfig{Level: "info", Format: "text"},
		StateMachine: StateMachineConfig{
			SkipRules: map[string][]string{
				"dev":     {"twin_up", "data_mirror", "resilience", "canary"},
				"staging": {"canary"},
				"prod":    {},
			},
			TimeoutSec:        map[string]int{"regress": 1800, "integrate": 600},
			DefaultTimeoutSec: 300,
			MaxConcurrent:     1,
		},
		Thresholds: map[string]Thresholds{},
		RiskPolicy: RiskPolicy{
			PathRules: []PathRule{
				{Pattern: "internal/guard/**", Level: "high"},
				{Pattern: "internal/judge/**", Level: "high"},
				{Pattern: "**/*.go", Level: "medium"},
				{Pattern: "docs/**", Level: "low"},
			},
			AutoEscalation: []string{"**/auth/**", "**/secrets/**", ".github/**"},
		},
		Branches: BranchConfig{
			Protected:    "main",
			Intermediate: "incubator/staging",
			Promoter:     "incubator-bot",
		},
		Commands: CommandsConfig{},
	}
}

// Load builds the effective configuration from the config directory.
// A missing directory yields defaults + env; a present but unreadable or
// invalid file is a hard error (configuration errors are fatal, exit 3).
func Load(dir string) (*Config, error) {
	cfg := Default()

	if dir != "" {
		base := filepath.Join(dir, BaseFilename)
		if err := applyFile(cfg, base, false); err != nil {
			return nil, err
		}
		// Profile overlay keyed by the phase the base layer selected.
		profile := filepath.Join(dir, cfg.Phase+".yaml")
		if err := applyFile(cfg, profile, false); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFile overlays one config file onto cfg. Absent files are skipped
// unless required is set.
func applyFile(cfg *Config, path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}

	layer, err := parse(data, filepath.Ext(path))
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	layer.overlay(cfg)
	return nil
}

// fileConfig mirrors Config with pointer fields so an absent key is
// distinguishable from an explicit zero.
type fileConfig struct {
	Phase        *string               `yaml:"phase" json:"phase"`
	ArtifactsDir *string               `yaml:"artifacts_dir" json:"artifacts_dir"`
	RepoPath     *string               `yaml:"repo_path" json:"repo_path"`
	Log          *LogConfig            `yaml:"log" json:"log"`
	StateMachine *fileStateMachine     `yaml:"state_machine" json:"state_machine"`
	Thresholds   map[string]Thresholds `yaml:"thresholds" json:"thresholds"`
	RiskPolicy   *RiskPolicy           `yaml:"risk_policy" json:"risk_policy"`
	Branches     *BranchConfig         `yaml:"branches" json:"branches"`
	Commands     *CommandsConfig       `yaml:"commands" json:"commands"`
}

type fileStateMachine struct {
	SkipRules         map[string][]string `yaml:"skip_rules" json:"skip_rules"`
	TimeoutSec        map[string]int      `yaml:"timeouts" json:"timeouts"`
	DefaultTimeoutSec *int                `yaml:"default_timeout" json:"default_timeout"`
	MaxConcurrent     *int                `yaml:"max_concurrent" json:"max_concurrent"`
	UseLock           *bool               `yaml:"use_lock" json:"use_lock"`
}

// parse decodes a config layer from bytes. Extension hints the format;
// unrecognized extensions are sniffed by content.
func parse(data []byte, ext string) (*fileConfig, error) {
	ext = strings.ToLower(ext)
	if ext == ".yml" {
		ext = ".yaml"
	}

	var fc fileConfig
	switch ext {
	case ".yaml":
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, err
		}
	case ".json":
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, err
		}
	default:
		trimmed := strings.TrimSpace(string(data))
		if strings.HasPrefix(trimmed, "{") {
			if err := json.Unmarshal(data, &fc); err != nil {
				return nil, err
			}
		} else if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, err
		}
	}
	return &fc, nil
}

// overlay applies the layer's present fields onto cfg, field by field.
func (fc *fileConfig) overlay(cfg *Config) {
	if fc.Phase != nil {
		cfg.Phase = *fc.Phase
	}
	if fc.ArtifactsDir != nil {
		cfg.ArtifactsDir = *fc.ArtifactsDir
	}
	if fc.RepoPath != nil {
		cfg.RepoPath = *fc.RepoPath
	}
	if fc.Log != nil {
		if fc.Log.Level != "" {
			cfg.Log.Level = fc.Log.Level
		}
		if fc.Log.Format != "" {
			cfg.Log.Format = fc.Log.Format
		}
	}
	if fc.StateMachine != nil {
		sm := fc.StateMachine
		if sm.SkipRules != nil {
			cfg.StateMachine.SkipRules = sm.SkipRules
		}
		if sm.TimeoutSec != nil {
			cfg.StateMachine.TimeoutSec = sm.TimeoutSec
		}
		if sm.DefaultTimeoutSec != nil {
			cfg.StateMachine.DefaultTimeoutSec = *sm.DefaultTimeoutSec
		}
		if sm.MaxConcurrent != nil {
			cfg.StateMachine.MaxConcurrent = *sm.MaxConcurrent
		}
		if sm.UseLock != nil {
			cfg.StateMachine.UseLock = *sm.UseLock
		}
	}
	if fc.Thresholds != nil {
		cfg.Thresholds = fc.Thresholds
	}
	if fc.RiskPolicy != nil {
		if fc.RiskPolicy.PathRules != nil {
			cfg.RiskPolicy.PathRules = fc.RiskPolicy.PathRules
		}
		if fc.RiskPolicy.AutoEscalation != nil {
			cfg.RiskPolicy.AutoEscalation = fc.RiskPolicy.AutoEscalation
		}
	}
	if fc.Branches != nil {
		if fc.Branches.Protected != "" {
			cfg.Branches.Protected = fc.Branches.Protected
		}
		if fc.Branches.Intermediate != "" {
			cfg.Branches.Intermediate = fc.Branches.Intermediate
		}
		if fc.Branches.Promoter != "" {
			cfg.Branches.Promoter = fc.Branches.Promoter
		}
	}
	if fc.Commands != nil {
		if fc.Commands.Unit != nil {
			cfg.Commands.Unit = fc.Commands.Unit
		}
		if fc.Commands.Lint != nil {
			cfg.Commands.Lint = fc.Commands.Lint
		}
		if fc.Commands.Integration != nil {
			cfg.Commands.Integration = fc.Commands.Integration
		}
		if fc.Commands.E2E != nil {
			cfg.Commands.E2E = fc.Commands.E2E
		}
	}
}

// applyEnv overrides scalar settings from INCUBATOR_* environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("INCUBATOR_PHASE"); v != "" {
		cfg.Phase = v
	}
	if v := os.Getenv("INCUBATOR_ARTIFACTS_DIR"); v != "" {
		cfg.ArtifactsDir = v
	}
	if v := os.Getenv("INCUBATOR_REPO"); v != "" {
		cfg.RepoPath = v
	}
	if v := os.Getenv("INCUBATOR_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("INCUBATOR_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("INCUBATOR_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.StateMachine.MaxConcurrent = n
		}
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Phase == "" {
		return fmt.Errorf("config: phase must not be empty")
	}
	if c.ArtifactsDir == "" {
		return fmt.Errorf("config: artifacts_dir must not be empty")
	}
	if c.StateMachine.MaxConcurrent < 1 {
		return fmt.Errorf("config: state_machine.max_concurrent must be >= 1, got %d", c.StateMachine.MaxConcurrent)
	}
	if c.StateMachine.DefaultTimeoutSec < 1 {
		return fmt.Errorf("config: state_machine.default_timeout must be >= 1, got %d", c.StateMachine.DefaultTimeoutSec)
	}
	for ct, th := range c.Thresholds {
		if th.P95LatencyMaxPct < 0 {
			return fmt.Errorf("config: thresholds.%s.p95_latency_max_pct must be >= 0", ct)
		}
	}
	for _, r := range c.RiskPolicy.PathRules {
		switch r.Level {
		case "low", "medium", "high":
		default:
			return fmt.Errorf("config: risk_policy path rule %q has invalid level %q", r.Pattern, r.Level)
		}
	}
	if c.Branches.Protected == "" || c.Branches.Intermediate == "" || c.Branches.Promoter == "" {
		return fmt.Errorf("config: branches.protected, branches.intermediate and branches.promoter are required")
	}
	return nil
}

// StepTimeout returns the timeout for one step.
func (c *Config) StepTimeout(step string) time.Duration {
	if sec, ok := c.StateMachine.TimeoutSec[step]; ok && sec > 0 {
		return time.Duration(sec) * time.Second
	}
	return time.Duration(c.StateMachine.DefaultTimeoutSec) * time.Second
}

// ThresholdsFor returns the thresholds for a change type, falling back to
// the documented defaults when no override is configured.
func (c *Config) ThresholdsFor(changeType string) Thresholds {
	if th, ok := c.Thresholds[changeType]; ok {
		return th
	}
	return DefaultThresholds()
}
