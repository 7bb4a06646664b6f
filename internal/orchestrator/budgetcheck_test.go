package orchestrator

import (
	"testing"

	"github.com/selfimprove/control-plane/internal/budget"
	"github.com/selfimprove/control-plane/internal/signal"
)

func TestBudgetCheckCollaborator_TripsWhenExhausted(t *testing.T) {
	tracker := budget.New(10.0, 0)
	tracker.Record("task-1", 10.0)

	c := NewBudgetCheckCollaborator(tracker, "claude", 10.0)
	s, ok := c.Check()
	if !ok {
		t.Fatal("expected Check to trip once daily budget is exhausted")
	}
	if s.Kind != signal.KindBudgetExceeded {
		t.Fatalf("signal kind = %v, want BudgetExceeded", s.Kind)
	}
	if s.Backend != "claude" {
		t.Fatalf("backend = %q, want %q", s.Backend, "claude")
	}
	if s.CeilingUSD != 10.0 {
		t.Fatalf("ceiling = %v, want 10.0", s.CeilingUSD)
	}
	if s.SpendUSD != 10.0 {
		t.Fatalf("spend = %v, want 10.0", s.SpendUSD)
	}
}

func TestBudgetCheckCollaborator_DoesNotTripWithRemainingBudget(t *testing.T) {
	tracker := budget.New(10.0, 0)
	tracker.Record("task-1", 3.0)

	c := NewBudgetCheckCollaborator(tracker, "claude", 10.0)
	if _, ok := c.Check(); ok {
		t.Fatal("Check should not trip while daily budget remains")
	}
}

func TestBudgetCheckCollaborator_UnlimitedNeverTrips(t *testing.T) {
	tracker := budget.New(0, 0)
	tracker.Record("task-1", 1_000_000.0)

	c := NewBudgetCheckCollaborator(tracker, "claude", 0)
	if _, ok := c.Check(); ok {
		t.Fatal("Check should never trip when the tracker has no daily limit")
	}
}

func TestOrchestrator_WiresBudgetCheckerIntoGeneration(t *testing.T) {
	tracker := budget.New(5.0, 0)
	tracker.Record("task-1", 5.0)
	checker := NewBudgetCheckCollaborator(tracker, "claude", 5.0)

	o, mem := newTestOrchestrator(t, fixedDetector{}, nil, nil)
	o.budget = checker

	o.ProcessSnapshot(TelemetrySnapshot{})

	status := o.StatusSnapshot()
	if status.TasksGenerated != 1 {
		t.Fatalf("tasks_generated = %d, want 1 from budget-exceeded signal", status.TasksGenerated)
	}
	if len(mem.Recent(10)) != 1 {
		t.Fatal("budget-exceeded task should be recorded in memory")
	}
}
