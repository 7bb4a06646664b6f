package orchestrator

import (
	"sync"

	"github.com/selfimprove/control-plane/internal/signal"
)

// Anomaly is one degradation observation surfaced by an AnomalyDetector.
// Message is free text; the orchestrator extracts the metric name as its
// first colon-separated token (signal.MetricName) when turning an Anomaly
// into a DegradationSignal.
type Anomaly struct {
	Severity    signal.Severity
	MetricValue float64
	Score       float64
	Message     string
}

// AnomalyDetector is consumed as an opaque collaborator: this package does
// not re-specify its internal numerical design, only the contract it must
// satisfy.
type AnomalyDetector interface {
	Observe(snap TelemetrySnapshot) []Anomaly
}

// Controller is the PID-style parameter controller, also consumed as an
// opaque collaborator. AuditLogLength lets the orchestrator surface how many
// parameter adjustments have been made without re-deriving the count itself.
type Controller interface {
	Observe(snap TelemetrySnapshot)
	AuditLogLength() uint64
	Get(param string) (float64, bool)
}

// ThresholdDetector is a minimal, deterministic reference AnomalyDetector:
// it flags p95 latency, average latency, and drop rate against configured
// thresholds. It exists for wiring and tests, not as a re-specification of
// the real numerical detector (§1 keeps that opaque).
type ThresholdDetector struct {
	P95WarnUS, P95CriticalUS       float64
	AvgWarnUS, AvgCriticalUS       float64
	DropWarnRate, DropCriticalRate float64
}

// NewThresholdDetector builds a ThresholdDetector with conservative
// defaults.
func NewThresholdDetector() *ThresholdDetector {
	return &ThresholdDetector{
		P95WarnUS:        50_000,
		P95CriticalUS:    150_000,
		AvgWarnUS:        20_000,
		AvgCriticalUS:    75_000,
		DropWarnRate:     0.01,
		DropCriticalRate: 0.05,
	}
}

// Observe implements AnomalyDetector.
func (d *ThresholdDetector) Observe(snap TelemetrySnapshot) []Anomaly {
	var out []Anomaly
	if sev, ok := severityFor(snap.P95_1mUS, d.P95WarnUS, d.P95CriticalUS); ok {
		out = append(out, Anomaly{
			Severity:    sev,
			MetricValue: snap.P95_1mUS,
			Score:       snap.P95_1mUS,
			Message:     "p95_1m_us: elevated tail latency",
		})
	}
	if sev, ok := severityFor(snap.AvgLatencyUS, d.AvgWarnUS, d.AvgCriticalUS); ok {
		out = append(out, Anomaly{
			Severity:    sev,
			MetricValue: snap.AvgLatencyUS,
			Score:       snap.AvgLatencyUS,
			Message:     "avg_latency_us: elevated average latency",
		})
	}
	if sev, ok := severityFor(snap.DropRate, d.DropWarnRate, d.DropCriticalRate); ok {
		out = append(out, Anomaly{
			Severity:    sev,
			MetricValue: snap.DropRate,
			Score:       snap.DropRate,
			Message:     "drop_rate: elevated drop rate",
		})
	}
	return out
}

func severityFor(value, warn, critical float64) (signal.Severity, bool) {
	switch {
	case value >= critical:
		return signal.SeverityCritical, true
	case value >= warn:
		return signal.SeverityWarn, true
	default:
		return 0, false
	}
}

// NoopController is a reference Controller that observes snapshots without
// adjusting any parameter; it makes no tuning decisions and Get always
// misses. AuditLogLength counts the number of Observe calls rather than any
// actual parameter adjustment — it exists so the orchestrator can be wired
// and exercised without a real PID controller implementation.
type NoopController struct {
	mu  sync.Mutex
	obs uint64
}

// Observe implements Controller.
func (c *NoopController) Observe(TelemetrySnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.obs++
}

// AuditLogLength implements Controller.
func (c *NoopController) AuditLogLength() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.obs
}

// Get implements Controller.
func (c *NoopController) Get(string) (float64, bool) { return 0, false }
