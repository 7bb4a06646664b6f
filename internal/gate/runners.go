package gate

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// PassAllCheckRunner is a CheckRunner test double whose checks always pass.
type PassAllCheckRunner struct{}

func (PassAllCheckRunner) RunTests(string) CheckResult  { return NewPassed("tests", 0) }
func (PassAllCheckRunner) RunClippy(string) CheckResult { return NewPassed("clippy", 0) }
func (PassAllCheckRunner) RunSmoke(string) CheckResult  { return NewPassed("smoke", 0) }
func (PassAllCheckRunner) RunBenchmarks() ([]BenchmarkSample, error) {
	return nil, nil
}
func (PassAllCheckRunner) StagingMetrics() ([]StagingMetric, error) {
	return nil, nil
}

// FailAllCheckRunner is a CheckRunner test double whose checks always fail
// with the given reason.
type FailAllCheckRunner struct {
	Reason string
}

func (r FailAllCheckRunner) RunTests(string) CheckResult {
	return NewFailed("tests", r.Reason, 0)
}

func (r FailAllCheckRunner) RunClippy(string) CheckResult {
	return NewFailed("clippy", r.Reason, 0)
}

func (r FailAllCheckRunner) RunSmoke(string) CheckResult {
	return NewFailed("smoke", r.Reason, 0)
}

func (r FailAllCheckRunner) RunBenchmarks() ([]BenchmarkSample, error) {
	return nil, fmt.Errorf("%s", r.Reason)
}

func (r FailAllCheckRunner) StagingMetrics() ([]StagingMetric, error) {
	return nil, fmt.Errorf("%s", r.Reason)
}

// ShellCheckRunner is a real, process-executing CheckRunner. Tests/lint/smoke
// are run as configured shell commands under a bounded context timeout;
// benchmarks and staging metrics are supplied by injected sampler functions,
// since neither is naturally a shell command.
type ShellCheckRunner struct {
	// Timeout bounds each shell command. Zero means no timeout.
	Timeout time.Duration

	// BenchmarkSampler and StagingSampler supply the two non-shell checks.
	// Nil samplers report an empty result (no regressions / no metrics).
	BenchmarkSampler func() ([]BenchmarkSample, error)
	StagingSampler   func() ([]StagingMetric, error)
}

func (r ShellCheckRunner) RunTests(cmd string) CheckResult  { return r.runShell("tests", cmd) }
func (r ShellCheckRunner) RunClippy(cmd string) CheckResult { return r.runShell("clippy", cmd) }
func (r ShellCheckRunner) RunSmoke(cmd string) CheckResult  { return r.runShell("smoke", cmd) }

func (r ShellCheckRunner) RunBenchmarks() ([]BenchmarkSample, error) {
	if r.BenchmarkSampler == nil {
		return nil, nil
	}
	return r.BenchmarkSampler()
}

func (r ShellCheckRunner) StagingMetrics() ([]StagingMetric, error) {
	if r.StagingSampler == nil {
		return nil, nil
	}
	return r.StagingSampler()
}

// runShell executes cmd through /bin/sh -c, never panicking: a missing
// command, non-zero exit, or timeout all surface as a Failed CheckResult.
func (r ShellCheckRunner) runShell(name, cmdLine string) CheckResult {
	if strings.TrimSpace(cmdLine) == "" {
		return NewFailed(name, "no command configured", 0)
	}

	ctx := context.Background()
	var cancel context.CancelFunc
	if r.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", cmdLine)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	dur := time.Since(start)

	if ctx.Err() == context.DeadlineExceeded {
		return NewFailed(name, fmt.Sprintf("timed out after %s", r.Timeout), dur)
	}
	if err != nil {
		result := NewFailed(name, err.Error(), dur)
		if tail := lastLines(out.String(), 20); tail != "" {
			result = result.WithDetails(tail)
		}
		return result
	}
	return NewPassed(name, dur)
}

// lastLines returns at most the last n lines of s, trimmed.
func lastLines(s string, n int) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
