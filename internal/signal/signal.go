// Package signal defines the degradation signals that drive the
// self-improvement control plane, and the pure functions derived from them:
// a stable dedup key, a priority, and a complexity estimate.
package signal

import (
	"fmt"
	"strings"
)

// Kind identifies which variant of DegradationSignal is populated.
type Kind string

const (
	KindAnomaly           Kind = "anomaly"
	KindMetricDegradation Kind = "metric_degradation"
	KindErrorSpike        Kind = "error_spike"
	KindBudgetExceeded    Kind = "budget_exceeded"
	KindManual            Kind = "manual"
)

// Severity classifies an Anomaly signal.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "Info"
	case SeverityWarn:
		return "Warn"
	case SeverityCritical:
		return "Critical"
	default:
		return "Unknown"
	}
}

// Signal is a tagged union over the five degradation signal variants. Only
// the fields relevant to Kind are populated; callers build one with the
// New* constructors rather than the zero value.
type Signal struct {
	Kind Kind

	// Anomaly
	Metric   string
	Severity Severity
	Observed float64
	Baseline float64

	// MetricDegradation
	Current  float64
	Fraction float64

	// ErrorSpike
	Stage     string
	ErrorRate float64

	// BudgetExceeded
	Backend    string
	SpendUSD   float64
	CeilingUSD float64

	// Manual
	Description   string
	AffectedFiles []string
}

// NewAnomaly builds an Anomaly signal.
func NewAnomaly(metric string, severity Severity, observed, baseline float64) Signal {
	return Signal{Kind: KindAnomaly, Metric: metric, Severity: severity, Observed: observed, Baseline: baseline}
}

// NewMetricDegradation builds a MetricDegradation signal.
func NewMetricDegradation(metric string, current, baseline, fraction float64) Signal {
	return Signal{Kind: KindMetricDegradation, Metric: metric, Current: current, Baseline: baseline, Fraction: fraction}
}

// NewErrorSpike builds an ErrorSpike signal.
func NewErrorSpike(stage string, errorRate float64) Signal {
	return Signal{Kind: KindErrorSpike, Stage: stage, ErrorRate: errorRate}
}

// NewBudgetExceeded builds a BudgetExceeded signal.
func NewBudgetExceeded(backend string, spendUSD, ceilingUSD float64) Signal {
	return Signal{Kind: KindBudgetExceeded, Backend: backend, SpendUSD: spendUSD, CeilingUSD: ceilingUSD}
}

// NewManual builds a Manual signal.
func NewManual(description string, affectedFiles []string) Signal {
	return Signal{Kind: KindManual, Description: description, AffectedFiles: affectedFiles}
}

// manualTruncateRunes is the number of leading runes of Manual.Description
// folded into the dedup key. Collisions beyond this prefix are accepted
// risk, not a defect — see DESIGN.md.
const manualTruncateRunes = 40

// DedupKey returns a stable string identity for the signal: identical for
// semantically equivalent signals, distinct otherwise.
func (s Signal) DedupKey() string {
	switch s.Kind {
	case KindAnomaly:
		return fmt.Sprintf("anomaly:%s:%s", s.Metric, s.Severity)
	case KindMetricDegradation:
		return fmt.Sprintf("degradation:%s", s.Metric)
	case KindErrorSpike:
		return fmt.Sprintf("error_spike:%s", s.Stage)
	case KindBudgetExceeded:
		return fmt.Sprintf("budget:%s", s.Backend)
	case KindManual:
		return fmt.Sprintf("manual:%s", truncateRunes(s.Description, manualTruncateRunes))
	default:
		return "unknown"
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Priority is the urgency classification assigned to a signal.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "Low"
	case PriorityMedium:
		return "Medium"
	case PriorityHigh:
		return "High"
	case PriorityCritical:
		return "Critical"
	default:
		return "Unknown"
	}
}

// TOMLValue renders the lowercase token used on the wire (task TOML
// emission), matching the source's Display impl rather than the
// capitalized String() used for logs and Go-side formatting.
func (p Priority) TOMLValue() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Priority derives a table-driven priority from the signal's kind and
// numeric fields.
func (s Signal) Priority() Priority {
	switch s.Kind {
	case KindAnomaly:
		switch s.Severity {
		case SeverityInfo:
			return PriorityLow
		case SeverityWarn:
			return PriorityMedium
		default:
			return PriorityCritical
		}
	case KindMetricDegradation:
		switch {
		case s.Fraction >= 0.5:
			return PriorityCritical
		case s.Fraction >= 0.25:
			return PriorityHigh
		case s.Fraction >= 0.10:
			return PriorityMedium
		default:
			return PriorityLow
		}
	case KindErrorSpike:
		switch {
		case s.ErrorRate >= 0.10:
			return PriorityCritical
		case s.ErrorRate >= 0.05:
			return PriorityHigh
		default:
			return PriorityMedium
		}
	case KindBudgetExceeded:
		return PriorityHigh
	case KindManual:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Complexity is an estimate of how much work resolving the signal requires.
type Complexity int

const (
	ComplexityTrivial Complexity = iota
	ComplexityModerate
	ComplexityComplex
)

func (c Complexity) String() string {
	switch c {
	case ComplexityTrivial:
		return "Trivial"
	case ComplexityModerate:
		return "Moderate"
	case ComplexityComplex:
		return "Complex"
	default:
		return "Unknown"
	}
}

// TOMLValue renders the lowercase token used on the wire (task TOML
// emission), matching the source's Display impl rather than the
// capitalized String() used for logs and Go-side formatting.
func (c Complexity) TOMLValue() string {
	switch c {
	case ComplexityTrivial:
		return "trivial"
	case ComplexityModerate:
		return "moderate"
	case ComplexityComplex:
		return "complex"
	default:
		return "unknown"
	}
}

// Complexity derives an estimate from the signal's kind, and for Manual
// signals, from the number of affected files.
func (s Signal) Complexity() Complexity {
	switch s.Kind {
	case KindAnomaly:
		return ComplexityModerate
	case KindMetricDegradation:
		return ComplexityTrivial
	case KindErrorSpike:
		return ComplexityModerate
	case KindBudgetExceeded:
		return ComplexityTrivial
	case KindManual:
		switch n := len(s.AffectedFiles); {
		case n <= 1:
			return ComplexityTrivial
		case n <= 3:
			return ComplexityModerate
		default:
			return ComplexityComplex
		}
	default:
		return ComplexityTrivial
	}
}

// MetricName extracts the metric name a downstream collaborator embeds as
// the first colon-separated token of a free-text message, trimmed of
// surrounding whitespace. Used by the orchestrator to turn an
// AnomalyDetector's message into a signal's Metric field. Returns "unknown"
// if that token is empty after trimming (including an empty message).
func MetricName(message string) string {
	idx := strings.IndexByte(message, ':')
	var token string
	if idx < 0 {
		token = message
	} else {
		token = message[:idx]
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "unknown"
	}
	return token
}
