// Package gate implements the validation gate: an ordered, configurable
// check pipeline that produces a ValidationReport and recommends an action.
package gate

import (
	"fmt"
	"strings"
	"time"
)

// CheckStatus is the outcome of a single check.
type CheckStatus struct {
	kind   checkStatusKind
	reason string
}

type checkStatusKind int

const (
	statusPassed checkStatusKind = iota
	statusFailed
	statusSkipped
)

// Passed reports a successful check.
func Passed() CheckStatus { return CheckStatus{kind: statusPassed} }

// Failed reports a failed check with a human-readable reason.
func Failed(reason string) CheckStatus { return CheckStatus{kind: statusFailed, reason: reason} }

// Skipped reports a check that did not run, with a reason.
func Skipped(reason string) CheckStatus { return CheckStatus{kind: statusSkipped, reason: reason} }

func (s CheckStatus) IsPassed() bool  { return s.kind == statusPassed }
func (s CheckStatus) IsFailed() bool  { return s.kind == statusFailed }
func (s CheckStatus) IsSkipped() bool { return s.kind == statusSkipped }

func (s CheckStatus) String() string {
	switch s.kind {
	case statusPassed:
		return "PASS"
	case statusFailed:
		return fmt.Sprintf("FAIL: %s", s.reason)
	case statusSkipped:
		return fmt.Sprintf("SKIP: %s", s.reason)
	default:
		return "UNKNOWN"
	}
}

// CheckResult is one entry of a ValidationReport.
type CheckResult struct {
	Name     string
	Status   CheckStatus
	Duration time.Duration
	Details  []string
}

func NewPassed(name string, d time.Duration) CheckResult {
	return CheckResult{Name: name, Status: Passed(), Duration: d}
}

func NewFailed(name, reason string, d time.Duration) CheckResult {
	return CheckResult{Name: name, Status: Failed(reason), Duration: d}
}

func NewSkipped(name, reason string) CheckResult {
	return CheckResult{Name: name, Status: Skipped(reason)}
}

func (c CheckResult) WithDetails(details ...string) CheckResult {
	c.Details = append(append([]string(nil), c.Details...), details...)
	return c
}

// BenchmarkSample is one benchmark comparison supplied by a CheckRunner.
type BenchmarkSample struct {
	Name       string
	BaselineNS float64
	CurrentNS  float64
}

// RegressionFraction is (current-baseline)/baseline, or 0 when baseline is 0.
func (b BenchmarkSample) RegressionFraction() float64 {
	if b.BaselineNS == 0 {
		return 0
	}
	return (b.CurrentNS - b.BaselineNS) / b.BaselineNS
}

func (b BenchmarkSample) PctChange() float64 { return b.RegressionFraction() * 100 }

func (b BenchmarkSample) IsRegression(threshold float64) bool {
	return b.RegressionFraction() > threshold
}

// StagingMetric is one staging-environment bound check.
type StagingMetric struct {
	Name     string
	Observed float64
	Min      float64
	Max      float64
}

func (m StagingMetric) Passes() bool {
	return m.Observed >= m.Min && m.Observed <= m.Max
}

// TrustLevel is an ordered operator-chosen autonomy band.
type TrustLevel int

const (
	TrustReviewRequired TrustLevel = iota
	TrustAutoMerge
	TrustAutoDeploy
)

func (t TrustLevel) String() string {
	switch t {
	case TrustReviewRequired:
		return "ReviewRequired"
	case TrustAutoMerge:
		return "AutoMerge"
	case TrustAutoDeploy:
		return "AutoDeploy"
	default:
		return "Unknown"
	}
}

// Config controls which checks run and at what trust level.
type Config struct {
	TrustLevel               TrustLevel
	RunTests                 bool
	RunClippy                bool
	RunBenchmarks            bool
	RunSmoke                 bool
	RunStagingMetrics        bool
	BenchRegressionThreshold float64
	TestCommand              string
	ClippyCommand            string
	SmokeCommand             string
}

// DefaultConfig matches the source system's defaults.
func DefaultConfig() Config {
	return Config{
		TrustLevel:               TrustReviewRequired,
		RunTests:                 true,
		RunClippy:                true,
		RunBenchmarks:            true,
		RunSmoke:                 false,
		RunStagingMetrics:        false,
		BenchRegressionThreshold: 0.05,
	}
}

// RecommendedAction is the gate's verdict.
type RecommendedAction struct {
	kind         recommendedActionKind
	failedChecks []string
}

type recommendedActionKind int

const (
	actionAutoMerge recommendedActionKind = iota
	actionAutoDeploy
	actionAwaitReview
	actionReject
)

func AutoMerge() RecommendedAction   { return RecommendedAction{kind: actionAutoMerge} }
func AutoDeploy() RecommendedAction  { return RecommendedAction{kind: actionAutoDeploy} }
func AwaitReview() RecommendedAction { return RecommendedAction{kind: actionAwaitReview} }
func Reject(failedChecks []string) RecommendedAction {
	return RecommendedAction{kind: actionReject, failedChecks: failedChecks}
}

func (a RecommendedAction) IsAutoMerge() bool   { return a.kind == actionAutoMerge }
func (a RecommendedAction) IsAutoDeploy() bool  { return a.kind == actionAutoDeploy }
func (a RecommendedAction) IsAwaitReview() bool { return a.kind == actionAwaitReview }
func (a RecommendedAction) IsReject() bool      { return a.kind == actionReject }
func (a RecommendedAction) FailedChecks() []string {
	return append([]string(nil), a.failedChecks...)
}

func (a RecommendedAction) String() string {
	switch a.kind {
	case actionAutoMerge:
		return "AutoMerge"
	case actionAutoDeploy:
		return "AutoDeploy"
	case actionAwaitReview:
		return "AwaitReview"
	case actionReject:
		return fmt.Sprintf("Reject(%s)", strings.Join(a.failedChecks, ", "))
	default:
		return "Unknown"
	}
}

// ValidationReport is the result of a single gate run. Checks always has
// exactly 5 entries, in order: tests, clippy, benchmarks, smoke,
// staging_metrics.
type ValidationReport struct {
	ChangeID          string
	Config            Config
	Checks            [5]CheckResult
	OverallPassed     bool
	TotalDuration     time.Duration
	RecommendedAction RecommendedAction
}

func (r ValidationReport) FailedChecks() []CheckResult {
	return filterChecks(r.Checks, func(c CheckResult) bool { return c.Status.IsFailed() })
}

func (r ValidationReport) PassedChecks() []CheckResult {
	return filterChecks(r.Checks, func(c CheckResult) bool { return c.Status.IsPassed() })
}

func (r ValidationReport) SkippedChecks() []CheckResult {
	return filterChecks(r.Checks, func(c CheckResult) bool { return c.Status.IsSkipped() })
}

func filterChecks(checks [5]CheckResult, pred func(CheckResult) bool) []CheckResult {
	var out []CheckResult
	for _, c := range checks {
		if pred(c) {
			out = append(out, c)
		}
	}
	return out
}

func (r ValidationReport) Summary() string {
	status := "PASS"
	if !r.OverallPassed {
		status = "FAIL"
	}
	return fmt.Sprintf("Gate[%s]: %s — %d passed, %d failed, %d skipped — action=%s",
		r.ChangeID, status, len(r.PassedChecks()), len(r.FailedChecks()), len(r.SkippedChecks()), r.RecommendedAction)
}

// CheckRunner is the injectable collaborator performing the actual
// tests/lint/benchmarks/smoke/staging-metric work. Implementations must not
// panic; a failing underlying operation is reported through the return
// value, never as an exception.
type CheckRunner interface {
	RunTests(cmd string) CheckResult
	RunClippy(cmd string) CheckResult
	RunBenchmarks() ([]BenchmarkSample, error)
	RunSmoke(cmd string) CheckResult
	StagingMetrics() ([]StagingMetric, error)
}

// Gate runs the fixed check sequence against a Config. Stateless between
// runs; no memoisation.
type Gate struct {
	cfg Config
}

func New(cfg Config) *Gate {
	return &Gate{cfg: cfg}
}

// Run executes all five checks in order and returns a ValidationReport.
func (g *Gate) Run(changeID string, runner CheckRunner) ValidationReport {
	start := time.Now()
	var checks [5]CheckResult

	if g.cfg.RunTests {
		checks[0] = runner.RunTests(g.cfg.TestCommand)
	} else {
		checks[0] = NewSkipped("tests", "disabled in config")
	}

	if g.cfg.RunClippy {
		checks[1] = runner.RunClippy(g.cfg.ClippyCommand)
	} else {
		checks[1] = NewSkipped("clippy", "disabled in config")
	}

	testsOK := !checks[0].Status.IsFailed() && !checks[1].Status.IsFailed()
	if g.cfg.RunBenchmarks {
		if testsOK {
			checks[2] = g.evaluateBenchmarks(runner)
		} else {
			checks[2] = NewSkipped("benchmarks", "tests failed; skipping")
		}
	} else {
		checks[2] = NewSkipped("benchmarks", "disabled in config")
	}

	if g.cfg.RunSmoke {
		checks[3] = runner.RunSmoke(g.cfg.SmokeCommand)
	} else {
		checks[3] = NewSkipped("smoke", "disabled in config")
	}

	if g.cfg.RunStagingMetrics {
		checks[4] = g.evaluateStagingMetrics(runner)
	} else {
		checks[4] = NewSkipped("staging_metrics", "disabled in config")
	}

	overallPassed := true
	var failedNames []string
	for _, c := range checks {
		if c.Status.IsFailed() {
			overallPassed = false
			failedNames = append(failedNames, c.Name)
		}
	}

	return ValidationReport{
		ChangeID:          changeID,
		Config:            g.cfg,
		Checks:            checks,
		OverallPassed:     overallPassed,
		TotalDuration:     time.Since(start),
		RecommendedAction: g.recommend(overallPassed, failedNames),
	}
}

func (g *Gate) evaluateBenchmarks(runner CheckRunner) CheckResult {
	samples, err := runner.RunBenchmarks()
	if err != nil {
		return NewFailed("benchmarks", err.Error(), 0)
	}
	var regressed []BenchmarkSample
	for _, s := range samples {
		if s.IsRegression(g.cfg.BenchRegressionThreshold) {
			regressed = append(regressed, s)
		}
	}
	if len(regressed) == 0 {
		return NewPassed("benchmarks", 0)
	}
	reason := fmt.Sprintf("%d benchmark(s) regressed >%.0f%%", len(regressed), g.cfg.BenchRegressionThreshold*100)
	result := NewFailed("benchmarks", reason, 0)
	for _, s := range regressed {
		result = result.WithDetails(fmt.Sprintf("%s: +%.1f%% (%.0fns → %.0fns)", s.Name, s.PctChange(), s.BaselineNS, s.CurrentNS))
	}
	return result
}

func (g *Gate) evaluateStagingMetrics(runner CheckRunner) CheckResult {
	metrics, err := runner.StagingMetrics()
	if err != nil {
		return NewFailed("staging_metrics", err.Error(), 0)
	}
	var failing []StagingMetric
	for _, m := range metrics {
		if !m.Passes() {
			failing = append(failing, m)
		}
	}
	if len(failing) == 0 {
		return NewPassed("staging_metrics", 0)
	}
	reason := fmt.Sprintf("%d staging metric(s) out of bounds", len(failing))
	result := NewFailed("staging_metrics", reason, 0)
	for _, m := range failing {
		result = result.WithDetails(fmt.Sprintf("%s: %.3f not in [%.3f, %.3f]", m.Name, m.Observed, m.Min, m.Max))
	}
	return result
}

func (g *Gate) recommend(overallPassed bool, failedNames []string) RecommendedAction {
	if !overallPassed {
		return Reject(failedNames)
	}
	switch g.cfg.TrustLevel {
	case TrustAutoMerge:
		return AutoMerge()
	case TrustAutoDeploy:
		return AutoDeploy()
	default:
		return AwaitReview()
	}
}
