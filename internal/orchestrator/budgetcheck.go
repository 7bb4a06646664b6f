package orchestrator

import (
	"fmt"

	"github.com/selfimprove/control-plane/internal/budget"
	"github.com/selfimprove/control-plane/internal/signal"
)

// BudgetCheckCollaborator gives the Task Generator's BudgetExceeded signal
// variant a concrete, corpus-grounded producer: it compares a cost
// Tracker's remaining daily budget against zero and, when exhausted, emits a
// signal.BudgetExceeded. This is additive domain-stack wiring, not part of
// the five-step ProcessSnapshot sequence §4.5 specifies — the Orchestrator
// calls it once per tick, after the anomaly-driven signals, purely to give
// budget exhaustion a path into task generation.
type BudgetCheckCollaborator struct {
	tracker *budget.Tracker
	backend string
	ceiling float64
}

// NewBudgetCheckCollaborator builds a collaborator over an existing cost
// tracker. ceiling is the daily spend ceiling to report in the emitted
// signal (the tracker itself only reports remaining budget, not the
// configured ceiling, so it is passed here for the signal's benefit).
func NewBudgetCheckCollaborator(tracker *budget.Tracker, backend string, ceiling float64) *BudgetCheckCollaborator {
	return &BudgetCheckCollaborator{tracker: tracker, backend: backend, ceiling: ceiling}
}

// Check returns a BudgetExceeded signal and true if the tracked backend's
// remaining daily budget has been exhausted (<= 0; a negative RemainingDaily
// means "unlimited" and never trips this check).
func (c *BudgetCheckCollaborator) Check() (signal.Signal, bool) {
	remaining := c.tracker.RemainingDaily()
	if remaining < 0 || remaining > 0 {
		return signal.Signal{}, false
	}
	spend := c.tracker.DailySpend()
	return signal.NewBudgetExceeded(c.backend, spend, c.ceiling), true
}

// String implements fmt.Stringer for diagnostic logging.
func (c *BudgetCheckCollaborator) String() string {
	return fmt.Sprintf("BudgetCheckCollaborator{backend=%s}", c.backend)
}
