package orchestrator

import "sync"

// Status is an observable, point-in-time counter set the orchestrator
// updates after every processed snapshot. Operators poll it out-of-band via
// Orchestrator.StatusSnapshot; there is no push notification channel in the
// core (§7).
type Status struct {
	SnapshotsProcessed uint64
	AnomaliesDetected  uint64
	TasksGenerated     uint64
	ParamAdjustments   uint64
	RecentTaskNames    []string
}

// statusHandle is the mutex-protected, reference-counted-by-sharing home for
// Status: every Orchestrator owns exactly one, and StatusSnapshot returns a
// deep-enough clone so callers never observe a half-updated Status.
type statusHandle struct {
	mu     sync.Mutex
	status Status
	cap    int
}

func newStatusHandle(recentCap int) *statusHandle {
	return &statusHandle{cap: recentCap}
}

// snapshot returns a clone of the current counters.
func (h *statusHandle) snapshot() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Status{
		SnapshotsProcessed: h.status.SnapshotsProcessed,
		AnomaliesDetected:  h.status.AnomaliesDetected,
		TasksGenerated:     h.status.TasksGenerated,
		ParamAdjustments:   h.status.ParamAdjustments,
		RecentTaskNames:    append([]string(nil), h.status.RecentTaskNames...),
	}
}

// update applies one tick's deltas and absolute param-adjustment count,
// appending newTaskNames to the recent-tasks ring and evicting from the
// front once the configured cap is exceeded.
func (h *statusHandle) update(anomaliesDetected, tasksGenerated int, paramAdjustments uint64, newTaskNames []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status.SnapshotsProcessed++
	h.status.AnomaliesDetected += uint64(anomaliesDetected)
	h.status.TasksGenerated += uint64(tasksGenerated)
	h.status.ParamAdjustments = paramAdjustments
	h.status.RecentTaskNames = append(h.status.RecentTaskNames, newTaskNames...)
	if over := len(h.status.RecentTaskNames) - h.cap; over > 0 && h.cap > 0 {
		h.status.RecentTaskNames = append([]string(nil), h.status.RecentTaskNames[over:]...)
	}
}
