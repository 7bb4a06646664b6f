// Package taskgen converts degradation signals into deduplicated,
// rate-limited task descriptors ready for TOML emission.
package taskgen

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/selfimprove/control-plane/internal/signal"
)

// Config controls dedup and rate-limiting behaviour. Zero value is invalid;
// use DefaultConfig.
type Config struct {
	MaxPerWindow  int
	RateWindow    time.Duration
	DedupTTL      time.Duration
	DedupCapacity int
}

// DefaultConfig matches the source system's defaults.
func DefaultConfig() Config {
	return Config{
		MaxPerWindow:  10,
		RateWindow:    60 * time.Second,
		DedupTTL:      300 * time.Second,
		DedupCapacity: 256,
	}
}

// GeneratedTask is the structured output of a successful generation.
type GeneratedTask struct {
	ID                 string
	Name               string
	Description        string
	AffectedFiles      []string
	AcceptanceCriteria []string
	Priority           signal.Priority
	Complexity         signal.Complexity
	GeneratedAtMS      int64
	SourceDedupKey     string
}

// Generator turns signals into tasks, enforcing dedup and rate limits.
// Safe for concurrent use.
type Generator struct {
	mu       sync.Mutex
	cfg      Config
	limiter  *rateLimiter
	dedup    map[string]time.Time
	sequence uint64
}

// New creates a Generator with the given config.
func New(cfg Config) *Generator {
	return &Generator{
		cfg:     cfg,
		limiter: newRateLimiter(cfg.MaxPerWindow, cfg.RateWindow),
		dedup:   make(map[string]time.Time),
	}
}

// GenerateAt turns a signal into at most one task, as of the given instant
// and millisecond timestamp. now drives dedup/rate-limit bookkeeping;
// nowMS is stamped onto the task and is independent so tests can control
// each precisely (mirroring the source's generate_at(signal, now, now_ms)).
func (g *Generator) GenerateAt(sig signal.Signal, now time.Time, nowMS int64) (GeneratedTask, bool) {
	key := sig.DedupKey()

	g.mu.Lock()
	defer g.mu.Unlock()

	if last, ok := g.dedup[key]; ok && now.Sub(last) < g.cfg.DedupTTL {
		return GeneratedTask{}, false
	}

	if !g.limiter.checkAndRecord(now) {
		return GeneratedTask{}, false
	}

	if len(g.dedup) >= g.cfg.DedupCapacity {
		g.pruneDedupLocked(now)
	}

	g.dedup[key] = now
	g.sequence++
	return g.buildTask(sig, key, g.sequence, nowMS), true
}

func (g *Generator) pruneDedupLocked(now time.Time) {
	for k, t := range g.dedup {
		if now.Sub(t) >= g.cfg.DedupTTL {
			delete(g.dedup, k)
		}
	}
}

// WindowCount returns the number of generations recorded within the current
// rolling rate window as of now.
func (g *Generator) WindowCount(now time.Time) int {
	return g.limiter.currentCount(now)
}

// TotalGenerated returns the monotone count of tasks ever generated.
func (g *Generator) TotalGenerated() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sequence
}

// ClearDedup empties the dedup map, allowing immediate re-emission of
// previously suppressed signals (subject still to the rate limiter).
func (g *Generator) ClearDedup() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dedup = make(map[string]time.Time)
}

func (g *Generator) buildTask(sig signal.Signal, key string, seq uint64, nowMS int64) GeneratedTask {
	idSuffix := key
	if len(idSuffix) > 20 {
		idSuffix = idSuffix[:20]
	}
	task := GeneratedTask{
		ID:             fmt.Sprintf("gen-%d-%s", seq, idSuffix),
		Priority:       sig.Priority(),
		Complexity:     sig.Complexity(),
		GeneratedAtMS:  nowMS,
		SourceDedupKey: key,
	}

	switch sig.Kind {
	case signal.KindAnomaly:
		task.Name = fmt.Sprintf("Investigate anomaly in %s", sig.Metric)
		task.Description = fmt.Sprintf(
			"An anomaly was detected in %s (severity %s). Observed value %.3f vs baseline %.3f.\n"+
				"Investigate the root cause and propose a corrective change.",
			sig.Metric, sig.Severity, sig.Observed, sig.Baseline)
		task.AffectedFiles = []string{"src/self_tune/telemetry_bus.rs", "src/self_tune/controller.rs"}
		task.AcceptanceCriteria = []string{
			"Root cause of the anomaly is documented.",
			"A corrective change or monitoring improvement is proposed.",
		}

	case signal.KindMetricDegradation:
		task.Name = fmt.Sprintf("Address degradation of %s", sig.Metric)
		task.Description = fmt.Sprintf(
			"%s degraded by %.1f%% relative to baseline (current %.3f, baseline %.3f).\n"+
				"Identify the regression and restore the metric to baseline.",
			sig.Metric, sig.Fraction*100, sig.Current, sig.Baseline)
		task.AffectedFiles = []string{"src/self_tune/telemetry_bus.rs"}
		task.AcceptanceCriteria = []string{
			fmt.Sprintf("%s is within 5%% of baseline after the change.", sig.Metric),
		}

	case signal.KindErrorSpike:
		task.Name = fmt.Sprintf("Fix error spike in %s", sig.Stage)
		task.Description = fmt.Sprintf(
			"Stage %s is reporting an error rate of %.1f%%.\n"+
				"Identify and fix the failure mode causing the spike.",
			sig.Stage, sig.ErrorRate*100)
		stageFile := strings.ToLower(strings.ReplaceAll(sig.Stage, " ", "_"))
		task.AffectedFiles = []string{fmt.Sprintf("src/%s.rs", stageFile)}
		task.AcceptanceCriteria = []string{
			fmt.Sprintf("Error rate for %s drops below 1%%.", sig.Stage),
			"A regression test covering the failure mode is added.",
		}

	case signal.KindBudgetExceeded:
		task.Name = fmt.Sprintf("Reduce spend for backend %s", sig.Backend)
		task.Description = fmt.Sprintf(
			"Backend %s spent $%.4f against a ceiling of $%.4f.\n"+
				"Reduce cost (caching, cheaper routing, batching) without degrading quality.",
			sig.Backend, sig.SpendUSD, sig.CeilingUSD)
		task.AffectedFiles = []string{"src/self_tune/budget.rs"}
		task.AcceptanceCriteria = []string{
			fmt.Sprintf("Spend for %s stays under ceiling for 24h after the change.", sig.Backend),
		}

	case signal.KindManual:
		name := sig.Description
		if r := []rune(name); len(r) > 50 {
			name = string(r[:50])
		}
		task.Name = fmt.Sprintf("Manual: %s", name)
		task.Description = sig.Description
		task.AffectedFiles = append([]string(nil), sig.AffectedFiles...)
		task.AcceptanceCriteria = []string{
			"cargo clippy passes with no new warnings.",
			"Test-to-production ratio ≥ 1.5:1 for touched files.",
		}

	default:
		task.Name = "Investigate unclassified signal"
	}

	return task
}

// ToTOML renders the task as a single [[task]] TOML table, matching the
// source system's literal emission layout byte-for-byte.
func (t GeneratedTask) ToTOML() string {
	var filesB strings.Builder
	for _, f := range t.AffectedFiles {
		filesB.WriteString(fmt.Sprintf("  %q,\n", f))
	}
	filesStr := strings.TrimSuffix(filesB.String(), "\n")

	var critB strings.Builder
	for _, c := range t.AcceptanceCriteria {
		critB.WriteString(fmt.Sprintf("  %q,\n", c))
	}
	critStr := strings.TrimSuffix(critB.String(), "\n")

	return fmt.Sprintf(
		"[[task]]\nid = %q\nname = %q\npriority = %q\ncomplexity = %q\ngenerated_at_ms = %d\naffected_files = [\n%s\n]\nacceptance_criteria = [\n%s\n]\ndescription = \"\"\"\n%s\n\"\"\"\n",
		t.ID, t.Name, t.Priority.TOMLValue(), t.Complexity.TOMLValue(), t.GeneratedAtMS, filesStr, critStr, t.Description,
	)
}
