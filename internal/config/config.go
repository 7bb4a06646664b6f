// Package config loads the control plane's configuration from (in priority
// order) environment variables, an optional on-disk TOML file, then
// hardcoded defaults — the same layering discipline the teacher's
// cmd/overhuman/main.go loadConfig() uses, retargeted from JSON onto TOML so
// configuration shares a serialisation format with the generated-task
// output (internal/taskgen.GeneratedTask.ToTOML).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/selfimprove/control-plane/internal/agentmemory"
	"github.com/selfimprove/control-plane/internal/gate"
	"github.com/selfimprove/control-plane/internal/orchestrator"
	"github.com/selfimprove/control-plane/internal/signal"
	"github.com/selfimprove/control-plane/internal/taskgen"
)

// Full assembles every subsystem's configuration into one value, ready to
// hand to the orchestrator's constructors.
type Full struct {
	Orchestrator orchestrator.Config
	Gate         gate.Config
	GateEnabled  bool // false ⇒ no deployment pipeline is wired (§6)
	TaskGen      taskgen.Config
	AgentMemory  agentmemory.Config
	Budget       BudgetConfig
}

// BudgetConfig configures the optional cost-tracking collaborator that
// feeds BudgetExceeded signals into the Task Generator (see
// internal/orchestrator.BudgetCheckCollaborator). A zero DailyLimitUSD
// means unlimited, matching budget.Tracker's own "0 disables the limit"
// convention.
type BudgetConfig struct {
	Enabled         bool
	Backend         string
	DailyLimitUSD   float64
	MonthlyLimitUSD float64
}

// DefaultBudgetConfig disables budget tracking by default; operators opt in
// via config file or environment.
func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{Enabled: false, Backend: "default", DailyLimitUSD: 0, MonthlyLimitUSD: 0}
}

// fileConfig is the plain, TOML-decodable shape of an on-disk config file.
// Durations and enums are represented as their natural scalar types and
// translated into the typed subsystem configs by Load.
type fileConfig struct {
	Orchestrator struct {
		PollIntervalSeconds      int    `toml:"poll_interval_seconds"`
		RecentTasksCap           int    `toml:"recent_tasks_cap"`
		TaskGenSeverityThreshold string `toml:"task_gen_severity_threshold"`
		AutoAdjustParams         *bool  `toml:"auto_adjust_params"`
	} `toml:"orchestrator"`

	Gate struct {
		Enabled                  bool    `toml:"enabled"`
		TrustLevel               string  `toml:"trust_level"`
		RunTests                 *bool   `toml:"run_tests"`
		RunClippy                *bool   `toml:"run_clippy"`
		RunBenchmarks            *bool   `toml:"run_benchmarks"`
		RunSmoke                 *bool   `toml:"run_smoke"`
		RunStagingMetrics        *bool   `toml:"run_staging_metrics"`
		BenchRegressionThreshold float64 `toml:"bench_regression_threshold"`
		TestCommand              string  `toml:"test_command"`
		ClippyCommand            string  `toml:"clippy_command"`
		SmokeCommand             string  `toml:"smoke_command"`
	} `toml:"gate"`

	TaskGen struct {
		MaxPerWindow      int `toml:"max_per_window"`
		RateWindowSeconds int `toml:"rate_window_seconds"`
		DedupTTLSeconds   int `toml:"dedup_ttl_seconds"`
		DedupCapacity     int `toml:"dedup_capacity"`
	} `toml:"task_gen"`

	AgentMemory struct {
		MaxModifications int `toml:"max_modifications"`
		MaxPatterns      int `toml:"max_patterns"`
		MaxDeadEnds      int `toml:"max_dead_ends"`
		MaxBaselines     int `toml:"max_baselines"`
	} `toml:"agent_memory"`

	Budget struct {
		Enabled         *bool   `toml:"enabled"`
		Backend         string  `toml:"backend"`
		DailyLimitUSD   float64 `toml:"daily_limit_usd"`
		MonthlyLimitUSD float64 `toml:"monthly_limit_usd"`
	} `toml:"budget"`
}

// Load builds a Full configuration: defaults, overridden by an optional TOML
// file at path (skipped entirely if path is empty or the file does not
// exist), overridden by environment variables.
func Load(path string) (Full, error) {
	full := Full{
		Orchestrator: orchestrator.DefaultConfig(),
		Gate:         gate.DefaultConfig(),
		GateEnabled:  false,
		TaskGen:      taskgen.DefaultConfig(),
		AgentMemory:  agentmemory.DefaultConfig(),
		Budget:       DefaultBudgetConfig(),
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			var fc fileConfig
			if _, err := toml.DecodeFile(path, &fc); err != nil {
				return Full{}, fmt.Errorf("config: decode %s: %w", path, err)
			}
			applyFileConfig(&full, fc)
		} else if !os.IsNotExist(err) {
			return Full{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
	}

	applyEnvOverrides(&full)

	return full, nil
}

func applyFileConfig(full *Full, fc fileConfig) {
	o := &fc.Orchestrator
	if o.PollIntervalSeconds > 0 {
		full.Orchestrator.PollInterval = time.Duration(o.PollIntervalSeconds) * time.Second
	}
	if o.RecentTasksCap > 0 {
		full.Orchestrator.RecentTasksCap = o.RecentTasksCap
	}
	if sev, ok := parseSeverity(o.TaskGenSeverityThreshold); ok {
		full.Orchestrator.TaskGenSeverityThreshold = sev
	}
	if o.AutoAdjustParams != nil {
		full.Orchestrator.AutoAdjustParams = *o.AutoAdjustParams
	}

	g := &fc.Gate
	full.GateEnabled = full.GateEnabled || g.Enabled
	if trust, ok := parseTrustLevel(g.TrustLevel); ok {
		full.Gate.TrustLevel = trust
	}
	if g.RunTests != nil {
		full.Gate.RunTests = *g.RunTests
	}
	if g.RunClippy != nil {
		full.Gate.RunClippy = *g.RunClippy
	}
	if g.RunBenchmarks != nil {
		full.Gate.RunBenchmarks = *g.RunBenchmarks
	}
	if g.RunSmoke != nil {
		full.Gate.RunSmoke = *g.RunSmoke
	}
	if g.RunStagingMetrics != nil {
		full.Gate.RunStagingMetrics = *g.RunStagingMetrics
	}
	if g.BenchRegressionThreshold > 0 {
		full.Gate.BenchRegressionThreshold = g.BenchRegressionThreshold
	}
	if g.TestCommand != "" {
		full.Gate.TestCommand = g.TestCommand
	}
	if g.ClippyCommand != "" {
		full.Gate.ClippyCommand = g.ClippyCommand
	}
	if g.SmokeCommand != "" {
		full.Gate.SmokeCommand = g.SmokeCommand
	}

	t := &fc.TaskGen
	if t.MaxPerWindow > 0 {
		full.TaskGen.MaxPerWindow = t.MaxPerWindow
	}
	if t.RateWindowSeconds > 0 {
		full.TaskGen.RateWindow = time.Duration(t.RateWindowSeconds) * time.Second
	}
	if t.DedupTTLSeconds > 0 {
		full.TaskGen.DedupTTL = time.Duration(t.DedupTTLSeconds) * time.Second
	}
	if t.DedupCapacity > 0 {
		full.TaskGen.DedupCapacity = t.DedupCapacity
	}

	m := &fc.AgentMemory
	if m.MaxModifications > 0 {
		full.AgentMemory.MaxModifications = m.MaxModifications
	}
	if m.MaxPatterns > 0 {
		full.AgentMemory.MaxPatterns = m.MaxPatterns
	}
	if m.MaxDeadEnds > 0 {
		full.AgentMemory.MaxDeadEnds = m.MaxDeadEnds
	}
	if m.MaxBaselines > 0 {
		full.AgentMemory.MaxBaselines = m.MaxBaselines
	}

	b := &fc.Budget
	if b.Enabled != nil {
		full.Budget.Enabled = *b.Enabled
	}
	if b.Backend != "" {
		full.Budget.Backend = b.Backend
	}
	if b.DailyLimitUSD > 0 {
		full.Budget.DailyLimitUSD = b.DailyLimitUSD
	}
	if b.MonthlyLimitUSD > 0 {
		full.Budget.MonthlyLimitUSD = b.MonthlyLimitUSD
	}
}

func applyEnvOverrides(full *Full) {
	if v := os.Getenv("SELFIMPROVE_POLL_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			full.Orchestrator.PollInterval = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("SELFIMPROVE_TASK_GEN_SEVERITY_THRESHOLD"); v != "" {
		if sev, ok := parseSeverity(v); ok {
			full.Orchestrator.TaskGenSeverityThreshold = sev
		}
	}
	if v := os.Getenv("SELFIMPROVE_AUTO_ADJUST_PARAMS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			full.Orchestrator.AutoAdjustParams = b
		}
	}
	if v := os.Getenv("SELFIMPROVE_GATE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			full.GateEnabled = b
		}
	}
	if v := os.Getenv("SELFIMPROVE_GATE_TRUST_LEVEL"); v != "" {
		if trust, ok := parseTrustLevel(v); ok {
			full.Gate.TrustLevel = trust
		}
	}
	if v := os.Getenv("SELFIMPROVE_BUDGET_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			full.Budget.Enabled = b
		}
	}
	if v := os.Getenv("SELFIMPROVE_BUDGET_DAILY_LIMIT_USD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			full.Budget.DailyLimitUSD = f
		}
	}
	if v := os.Getenv("SELFIMPROVE_BUDGET_MONTHLY_LIMIT_USD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			full.Budget.MonthlyLimitUSD = f
		}
	}
}

func parseSeverity(s string) (signal.Severity, bool) {
	switch s {
	case "Info", "info":
		return signal.SeverityInfo, true
	case "Warn", "warn":
		return signal.SeverityWarn, true
	case "Critical", "critical":
		return signal.SeverityCritical, true
	default:
		return 0, false
	}
}

func parseTrustLevel(s string) (gate.TrustLevel, bool) {
	switch s {
	case "ReviewRequired", "review_required":
		return gate.TrustReviewRequired, true
	case "AutoMerge", "auto_merge":
		return gate.TrustAutoMerge, true
	case "AutoDeploy", "auto_deploy":
		return gate.TrustAutoDeploy, true
	default:
		return 0, false
	}
}
