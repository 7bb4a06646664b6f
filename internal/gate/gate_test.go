package gate

import (
	"strings"
	"testing"
)

func TestRun_ChecksAlwaysFive(t *testing.T) {
	g := New(DefaultConfig())
	report := g.Run("c1", PassAllCheckRunner{})
	if len(report.Checks) != 5 {
		t.Fatalf("len(Checks) = %d, want 5", len(report.Checks))
	}
}

func TestRun_DisabledChecksAreSkipped(t *testing.T) {
	cfg := Config{TrustLevel: TrustReviewRequired} // all run_* flags false
	g := New(cfg)
	report := g.Run("c1", PassAllCheckRunner{})

	for _, c := range report.Checks {
		if !c.Status.IsSkipped() {
			t.Fatalf("check %s status = %v, want Skipped", c.Name, c.Status)
		}
		if !strings.Contains(c.Status.String(), "disabled in config") {
			t.Fatalf("check %s reason = %q", c.Name, c.Status.String())
		}
	}
}

func TestRun_AllPass_OverallPassed(t *testing.T) {
	g := New(DefaultConfig())
	report := g.Run("c1", PassAllCheckRunner{})
	if !report.OverallPassed {
		t.Fatal("OverallPassed = false, want true")
	}
}

func TestRun_BenchmarksSkippedWhenTestsFail(t *testing.T) {
	cfg := DefaultConfig()
	g := New(cfg)
	report := g.Run("c1", FailAllCheckRunner{Reason: "3 tests failed"})

	bench := report.Checks[2]
	if !bench.Status.IsSkipped() {
		t.Fatalf("benchmarks status = %v, want Skipped", bench.Status)
	}
	if !strings.Contains(bench.Status.String(), "tests failed; skipping") {
		t.Fatalf("benchmarks reason = %q", bench.Status.String())
	}
}

func TestRecommend_RejectOnTestFailure(t *testing.T) {
	// Scenario 2: default gate, runner fails tests.
	g := New(DefaultConfig())
	report := g.Run("c1", FailAllCheckRunner{Reason: "3 tests failed"})

	if report.OverallPassed {
		t.Fatal("OverallPassed = true, want false")
	}
	if !report.RecommendedAction.IsReject() {
		t.Fatalf("RecommendedAction = %v, want Reject", report.RecommendedAction)
	}
	found := false
	for _, name := range report.RecommendedAction.FailedChecks() {
		if name == "tests" {
			found = true
		}
	}
	if !found {
		t.Fatalf("FailedChecks = %v, want to contain %q", report.RecommendedAction.FailedChecks(), "tests")
	}
}

func TestRecommend_AwaitReviewWhenAllPass(t *testing.T) {
	// Scenario 3: ReviewRequired trust, all checks pass.
	cfg := DefaultConfig()
	cfg.TrustLevel = TrustReviewRequired
	g := New(cfg)
	report := g.Run("c1", PassAllCheckRunner{})

	if !report.OverallPassed {
		t.Fatal("OverallPassed = false, want true")
	}
	if !report.RecommendedAction.IsAwaitReview() {
		t.Fatalf("RecommendedAction = %v, want AwaitReview", report.RecommendedAction)
	}
}

func TestRecommend_AutoMergeAndAutoDeploy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TrustLevel = TrustAutoMerge
	report := New(cfg).Run("c1", PassAllCheckRunner{})
	if !report.RecommendedAction.IsAutoMerge() {
		t.Fatalf("RecommendedAction = %v, want AutoMerge", report.RecommendedAction)
	}

	cfg.TrustLevel = TrustAutoDeploy
	report = New(cfg).Run("c2", PassAllCheckRunner{})
	if !report.RecommendedAction.IsAutoDeploy() {
		t.Fatalf("RecommendedAction = %v, want AutoDeploy", report.RecommendedAction)
	}
}

type benchRunner struct {
	samples []BenchmarkSample
}

func (benchRunner) RunTests(string) CheckResult  { return NewPassed("tests", 0) }
func (benchRunner) RunClippy(string) CheckResult { return NewPassed("clippy", 0) }
func (benchRunner) RunSmoke(string) CheckResult  { return NewPassed("smoke", 0) }
func (b benchRunner) RunBenchmarks() ([]BenchmarkSample, error) {
	return b.samples, nil
}
func (benchRunner) StagingMetrics() ([]StagingMetric, error) { return nil, nil }

func TestBenchmarks_RegressionBoundary(t *testing.T) {
	// +3% passes, +10% fails, at threshold 0.05.
	cfg := DefaultConfig()
	cfg.RunStagingMetrics = false

	pass := New(cfg).Run("c1", benchRunner{samples: []BenchmarkSample{
		{Name: "parse", BaselineNS: 100, CurrentNS: 103},
	}})
	if !pass.Checks[2].Status.IsPassed() {
		t.Fatalf("+3%% benchmark status = %v, want Passed", pass.Checks[2].Status)
	}

	fail := New(cfg).Run("c1", benchRunner{samples: []BenchmarkSample{
		{Name: "parse", BaselineNS: 100, CurrentNS: 110},
	}})
	if !fail.Checks[2].Status.IsFailed() {
		t.Fatalf("+10%% benchmark status = %v, want Failed", fail.Checks[2].Status)
	}
}

func TestBenchmarks_RegressionDetailFormat(t *testing.T) {
	// Scenario 4: single sample baseline=100, current=120 -> detail with "+20.0%".
	cfg := DefaultConfig()
	report := New(cfg).Run("c1", benchRunner{samples: []BenchmarkSample{
		{Name: "encode", BaselineNS: 100, CurrentNS: 120},
	}})

	bench := report.Checks[2]
	if !bench.Status.IsFailed() {
		t.Fatalf("status = %v, want Failed", bench.Status)
	}
	joined := strings.Join(bench.Details, " ")
	if !strings.Contains(joined, "encode") || !strings.Contains(joined, "+20.0%") {
		t.Fatalf("details = %v, want to mention encode and +20.0%%", bench.Details)
	}
}

type stagingRunner struct {
	metrics []StagingMetric
}

func (stagingRunner) RunTests(string) CheckResult                    { return NewPassed("tests", 0) }
func (stagingRunner) RunClippy(string) CheckResult                   { return NewPassed("clippy", 0) }
func (stagingRunner) RunSmoke(string) CheckResult                    { return NewPassed("smoke", 0) }
func (stagingRunner) RunBenchmarks() ([]BenchmarkSample, error)      { return nil, nil }
func (s stagingRunner) StagingMetrics() ([]StagingMetric, error) { return s.metrics, nil }

func TestStagingMetrics_ObservedEqualsMaxPasses(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RunStagingMetrics = true
	report := New(cfg).Run("c1", stagingRunner{metrics: []StagingMetric{
		{Name: "drop_rate", Observed: 0.05, Min: 0, Max: 0.05},
	}})

	if !report.Checks[4].Status.IsPassed() {
		t.Fatalf("staging_metrics status = %v, want Passed", report.Checks[4].Status)
	}
}

func TestStagingMetrics_OutOfBoundsFails(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RunStagingMetrics = true
	report := New(cfg).Run("c1", stagingRunner{metrics: []StagingMetric{
		{Name: "drop_rate", Observed: 0.10, Min: 0, Max: 0.05},
	}})

	if !report.Checks[4].Status.IsFailed() {
		t.Fatalf("staging_metrics status = %v, want Failed", report.Checks[4].Status)
	}
}

func TestTrustLevelOrdering(t *testing.T) {
	if !(TrustAutoDeploy > TrustAutoMerge && TrustAutoMerge > TrustReviewRequired) {
		t.Fatal("TrustLevel ordering broken")
	}
}

func TestRun_SameRunnerSameChecks(t *testing.T) {
	// Property: two gate runs with the same deterministic runner produce the
	// same check outcomes.
	cfg := DefaultConfig()
	g := New(cfg)
	r1 := g.Run("c1", PassAllCheckRunner{})
	r2 := g.Run("c1", PassAllCheckRunner{})

	for i := range r1.Checks {
		if r1.Checks[i].Status.String() != r2.Checks[i].Status.String() {
			t.Fatalf("check %d differs: %v vs %v", i, r1.Checks[i].Status, r2.Checks[i].Status)
		}
	}
}
