package orchestrator

import (
	"time"

	"github.com/selfimprove/control-plane/internal/gate"
	"github.com/selfimprove/control-plane/internal/signal"
)

// Config controls the orchestrator's loop cadence and per-tick behaviour.
// GateConfig is carried for callers and is not read by the Orchestrator:
// whether it calls Pipeline.Deploy depends only on the Pipeline passed to
// New (nil means tasks are generated and recorded but never deployed).
type Config struct {
	PollInterval             time.Duration
	RecentTasksCap           int
	TaskGenSeverityThreshold signal.Severity
	AutoAdjustParams         bool
	GateConfig               *gate.Config
}

// DefaultConfig matches the source system's defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:             5 * time.Second,
		RecentTasksCap:           100,
		TaskGenSeverityThreshold: signal.SeverityWarn,
		AutoAdjustParams:         true,
		GateConfig:               nil,
	}
}
