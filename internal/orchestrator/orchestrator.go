package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/selfimprove/control-plane/internal/agentmemory"
	"github.com/selfimprove/control-plane/internal/gate"
	"github.com/selfimprove/control-plane/internal/observability"
	"github.com/selfimprove/control-plane/internal/stagedeploy"
	"github.com/selfimprove/control-plane/internal/taskgen"

	sig "github.com/selfimprove/control-plane/internal/signal"
)

// Orchestrator drives the closed loop: telemetry snapshot → anomaly
// detection → task generation + controller observation → validation gate →
// staged deployment → audit memory. It exclusively owns the Task Generator,
// Validation Gate (via the deployment Pipeline), Agent Memory, and staged
// deployment Pipeline; those are shared out only through the read-oriented
// handles this type exposes (MemoryHandle, StatusSnapshot).
type Orchestrator struct {
	cfg Config

	bus        *TelemetryBus
	detector   AnomalyDetector
	controller Controller
	taskGen    *taskgen.Generator
	memory     *agentmemory.Memory
	pipeline   *stagedeploy.Pipeline // nil when no deployment pipeline is configured
	runner     gate.CheckRunner
	budget     *BudgetCheckCollaborator // nil when not configured

	logger  *observability.Logger
	metrics *observability.MetricsCollector

	status *statusHandle

	// autoDeploySeq counts auto-deploy attempts. It does not appear in the
	// change id, which is "auto-<number of changes>-<uuid>"; the uuid suffix
	// keeps ids distinct across ticks.
	autoDeploySeq uint64
}

// New builds an Orchestrator. pipe and runner may be nil/zero when no
// deployment pipeline is configured; with a nil pipe, generated tasks are
// recorded in memory but never gated or deployed. cfg.GateConfig is not
// consulted for this: only pipe decides.
// budgetChecker may be nil to omit the optional budget-exhaustion signal
// source.
func New(
	cfg Config,
	bus *TelemetryBus,
	detector AnomalyDetector,
	controller Controller,
	taskGen *taskgen.Generator,
	memory *agentmemory.Memory,
	pipe *stagedeploy.Pipeline,
	runner gate.CheckRunner,
	budgetChecker *BudgetCheckCollaborator,
	logger *observability.Logger,
	metrics *observability.MetricsCollector,
) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		bus:        bus,
		detector:   detector,
		controller: controller,
		taskGen:    taskGen,
		memory:     memory,
		pipeline:   pipe,
		runner:     runner,
		budget:     budgetChecker,
		logger:     logger,
		metrics:    metrics,
		status:     newStatusHandle(cfg.RecentTasksCap),
	}
}

// MemoryHandle returns a shared reference to Agent Memory for out-of-band
// inspection (dashboards, MCP-style tools). Callers must not assume
// exclusive access; Memory is already internally synchronised.
func (o *Orchestrator) MemoryHandle() *agentmemory.Memory { return o.memory }

// StatusSnapshot returns a clone of the current counters.
func (o *Orchestrator) StatusSnapshot() Status { return o.status.snapshot() }

// AddDeploymentTarget registers a target with the underlying pipeline, in
// registration order. A no-op if no pipeline is configured (New was given
// a nil pipe).
func (o *Orchestrator) AddDeploymentTarget(t stagedeploy.DeploymentTarget) {
	if o.pipeline == nil {
		return
	}
	o.pipeline.AddTarget(t)
}

// GetParam reads a parameter's current value from the controller.
func (o *Orchestrator) GetParam(param string) (float64, bool) {
	if o.controller == nil {
		return 0, false
	}
	return o.controller.Get(param)
}

// Run starts the event loop and blocks until ctx is cancelled. It wakes on
// whichever fires first: a subscription receive from the bus, or a
// poll_interval tick that fetches the bus's latest snapshot. Snapshots are
// never processed concurrently — the loop is single-goroutine and
// processing one snapshot is synchronous before the next select.
//
// A recover() backstop converts an unexpected panic from the injected
// AnomalyDetector or Controller (the two collaborators this package treats
// as opaque, per §1) into a logged error rather than crashing the process;
// the loop then continues to the next snapshot.
func (o *Orchestrator) Run(ctx context.Context) {
	sub := o.bus.Subscribe()
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-sub:
			o.processSnapshotSafely(snap)
		case <-ticker.C:
			if snap, ok := o.bus.Latest(); ok {
				o.processSnapshotSafely(snap)
			}
		}
	}
}

func (o *Orchestrator) processSnapshotSafely(snap TelemetrySnapshot) {
	defer func() {
		if r := recover(); r != nil {
			if o.logger != nil {
				o.logger.Error("panic recovered while processing snapshot", "panic", fmt.Sprintf("%v", r))
			}
		}
	}()
	o.ProcessSnapshot(snap)
}

// ProcessSnapshot threads one snapshot through the subsystems, in the strict
// happens-before order §4.5/§5 mandate:
//
//  1. detector.Observe(snap) → anomalies.
//  2. If cfg.AutoAdjustParams, controller.Observe(snap).
//  3. For each anomaly at or above cfg.TaskGenSeverityThreshold, build an
//     Anomaly signal and attempt task generation; each generated task is
//     recorded in memory as Pending.
//  4. If a deployment pipeline is configured and at least one task was
//     generated this tick, synthesise one ParamChange per generated task
//     name and deploy them together.
//  5. Update Status.
func (o *Orchestrator) ProcessSnapshot(snap TelemetrySnapshot) {
	now := time.Now()
	nowMS := now.UnixMilli()

	anomalies := o.detector.Observe(snap)

	if o.cfg.AutoAdjustParams && o.controller != nil {
		o.controller.Observe(snap)
	}

	var newTaskNames []string
	for _, a := range anomalies {
		if a.Severity < o.cfg.TaskGenSeverityThreshold {
			continue
		}
		s := sig.NewAnomaly(sig.MetricName(a.Message), a.Severity, a.MetricValue, a.Score)
		task, ok := o.taskGen.GenerateAt(s, now, nowMS)
		if !ok {
			continue
		}
		o.memory.Record(agentmemory.ModificationRecord{
			ID:            task.ID,
			Description:   task.Description,
			AffectedFiles: task.AffectedFiles,
			Outcome:       agentmemory.OutcomePending,
			Notes:         fmt.Sprintf("Generated from anomaly: metric=%s severity=%s", s.Metric, s.Severity),
			TimestampMS:   nowMS,
		})
		newTaskNames = append(newTaskNames, task.Name)
		if o.logger != nil {
			o.logger.Anomaly(s.Metric, s.Severity.String(), "task_id", task.ID, "priority", task.Priority.String())
		}
	}

	if o.budget != nil {
		if s, ok := o.budget.Check(); ok {
			task, ok := o.taskGen.GenerateAt(s, now, nowMS)
			if ok {
				o.memory.Record(agentmemory.ModificationRecord{
					ID:            task.ID,
					Description:   task.Description,
					AffectedFiles: task.AffectedFiles,
					Outcome:       agentmemory.OutcomePending,
					Notes:         fmt.Sprintf("Generated from budget check: backend=%s", s.Backend),
					TimestampMS:   nowMS,
				})
				newTaskNames = append(newTaskNames, task.Name)
			}
		}
	}

	if o.pipeline != nil && len(newTaskNames) > 0 {
		changes := make([]stagedeploy.ParamChange, 0, len(newTaskNames))
		for _, name := range newTaskNames {
			// A literal placeholder/audit token, not a meaningful numeric
			// change — see DESIGN.md's open-question resolution. It gives
			// the pipeline something to gate and audit per generated task.
			changes = append(changes, stagedeploy.ParamChange{Name: name, Old: 0, New: 1})
		}
		o.autoDeploySeq++
		changeID := fmt.Sprintf("auto-%d-%s", len(newTaskNames), uuid.NewString())
		outcome := o.pipeline.Deploy(changeID, o.runner, changes)
		if o.logger != nil {
			o.logger.Deployment(changeID, outcome.String())
		}
	}

	var paramAdjustments uint64
	if o.controller != nil {
		paramAdjustments = o.controller.AuditLogLength()
	}
	o.status.update(len(anomalies), len(newTaskNames), paramAdjustments, newTaskNames)

	if o.metrics != nil {
		o.metrics.Increment("snapshots_processed")
		o.metrics.IncrementBy("anomalies_detected", int64(len(anomalies)))
		o.metrics.IncrementBy("tasks_generated", int64(len(newTaskNames)))
	}
	if o.logger != nil {
		o.logger.Snapshot(o.status.snapshot().SnapshotsProcessed, len(anomalies), "tasks_generated", len(newTaskNames))
	}
}
