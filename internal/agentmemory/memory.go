package agentmemory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/selfimprove/control-plane/internal/signal"
)

// Config bounds the number of entries retained per category. On overflow one
// entry is evicted before insert, using the per-category policy documented
// on Memory's methods.
type Config struct {
	MaxModifications int
	MaxPatterns      int
	MaxDeadEnds      int
	MaxBaselines     int
}

// DefaultConfig matches the source system's defaults.
func DefaultConfig() Config {
	return Config{
		MaxModifications: 1000,
		MaxPatterns:      500,
		MaxDeadEnds:      200,
		MaxBaselines:     100,
	}
}

// Memory is the bounded, evict-on-overflow knowledge base over past
// modifications, reusable patterns, performance baselines, and known dead
// ends. Safe for concurrent use; every operation is synchronous under an
// internal mutex held for the duration of a single call only.
type Memory struct {
	mu       sync.Mutex
	cfg      Config
	backend  Backend
	sequence uint64
}

// New constructs a Memory over the given Backend (use NewInMemoryBackend for
// the default in-process store).
func New(cfg Config, backend Backend) *Memory {
	return &Memory{cfg: cfg, backend: backend}
}

// --- Modifications ---------------------------------------------------------

// Record stores a modification, evicting the oldest-by-timestamp entry
// first if the store is at capacity, and returns the record's id (its own,
// if set, otherwise a generated one).
func (m *Memory) Record(r ModificationRecord) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.ID == "" {
		m.sequence++
		r.ID = fmt.Sprintf("mod-%d", m.sequence)
	}

	if _, exists := m.backend.GetModification(r.ID); !exists && m.backend.CountModifications() >= m.cfg.MaxModifications {
		if oldest, ok := m.backend.OldestModificationID(); ok {
			m.backend.DeleteModification(oldest)
		}
	}
	m.backend.PutModification(r)
	return r.ID
}

// Get returns the modification with the given id.
func (m *Memory) Get(id string) (ModificationRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backend.GetModification(id)
}

// Recent returns up to n modifications, newest-first by timestamp.
func (m *Memory) Recent(n int) []ModificationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.backend.AllModifications()
	sort.Slice(all, func(i, j int) bool { return all[i].TimestampMS > all[j].TimestampMS })
	if n >= 0 && n < len(all) {
		all = all[:n]
	}
	return all
}

// ForFiles returns modifications that touched any of the given files.
func (m *Memory) ForFiles(files []string) []ModificationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	want := make(map[string]struct{}, len(files))
	for _, f := range files {
		want[f] = struct{}{}
	}

	var out []ModificationRecord
	for _, r := range m.backend.AllModifications() {
		for _, f := range r.AffectedFiles {
			if _, ok := want[f]; ok {
				out = append(out, r)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TimestampMS > out[j].TimestampMS })
	return out
}

// Failed returns every modification whose outcome is Failure.
func (m *Memory) Failed() []ModificationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []ModificationRecord
	for _, r := range m.backend.AllModifications() {
		if r.Outcome == OutcomeFailure {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TimestampMS > out[j].TimestampMS })
	return out
}

// SuccessRate returns the fraction of terminal-outcome (Success or Failure)
// modifications that succeeded, or nil if there are none.
func (m *Memory) SuccessRate() *float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.successRateLocked()
}

func (m *Memory) successRateLocked() *float64 {
	var success, total int
	for _, r := range m.backend.AllModifications() {
		switch r.Outcome {
		case OutcomeSuccess:
			success++
			total++
		case OutcomeFailure:
			total++
		}
	}
	if total == 0 {
		return nil
	}
	rate := float64(success) / float64(total)
	return &rate
}

// PruneOlderThan removes every modification with TimestampMS < cutoffMS.
func (m *Memory) PruneOlderThan(cutoffMS int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	pruned := 0
	for _, r := range m.backend.AllModifications() {
		if r.TimestampMS < cutoffMS {
			m.backend.DeleteModification(r.ID)
			pruned++
		}
	}
	return pruned
}

// --- Patterns ---------------------------------------------------------------

// StorePattern stores or overwrites (by id) a CodePattern, evicting the
// least-used (lowest UseCount) entry first if the store is at capacity for
// a genuinely new id.
func (m *Memory) StorePattern(p CodePattern) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.backend.GetPattern(p.ID); !exists && m.backend.CountPatterns() >= m.cfg.MaxPatterns {
		if leastUsed, ok := m.backend.LeastUsedPatternID(); ok {
			m.backend.DeletePattern(leastUsed)
		}
	}
	m.backend.PutPattern(p)
}

// GetPattern returns the pattern with the given id.
func (m *Memory) GetPattern(id string) (CodePattern, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backend.GetPattern(id)
}

// ByTags returns every pattern that carries ALL of the given tags.
func (m *Memory) ByTags(tags []string) []CodePattern {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []CodePattern
	for _, p := range m.backend.AllPatterns() {
		if p.HasAllTags(tags) {
			out = append(out, p)
		}
	}
	return out
}

// RecordUse saturating-increments a pattern's use count. Returns false if no
// pattern with that id exists.
func (m *Memory) RecordUse(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.backend.GetPattern(id)
	if !ok {
		return false
	}
	if p.UseCount < ^uint64(0) {
		p.UseCount++
	}
	m.backend.PutPattern(p)
	return true
}

// --- Baselines ---------------------------------------------------------------

// UpdateBaseline stores or overwrites (by metric) a PerformanceBaseline,
// evicting the oldest (by UpdatedAtMS) baseline first if at capacity for a
// genuinely new metric.
func (m *Memory) UpdateBaseline(b PerformanceBaseline) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertBaselineLocked(b)
}

func (m *Memory) upsertBaselineLocked(b PerformanceBaseline) {
	if _, exists := m.backend.GetBaseline(b.Metric); !exists && m.backend.CountBaselines() >= m.cfg.MaxBaselines {
		if oldest, ok := m.backend.OldestBaselineMetric(); ok {
			m.backend.DeleteBaseline(oldest)
		}
	}
	m.backend.PutBaseline(b)
}

// GetBaseline returns the baseline tracked for metric.
func (m *Memory) GetBaseline(metric string) (PerformanceBaseline, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backend.GetBaseline(metric)
}

// IncorporateSample folds one more sample into the metric's running
// baseline (creating it if absent), maintaining mean and std_dev via
// Welford's online algorithm, and evicting the oldest baseline on overflow
// when the metric is new.
func (m *Memory) IncorporateSample(metric string, value, p50, p95, p99 float64, nowMS int64) PerformanceBaseline {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, exists := m.backend.GetBaseline(metric)
	if !exists {
		b = PerformanceBaseline{Metric: metric}
	}
	b.incorporate(value, p50, p95, p99, nowMS)
	m.upsertBaselineLocked(b)
	return b
}

// --- Dead ends ---------------------------------------------------------------

// RecordDeadEnd stores or overwrites (by key) a DeadEnd, evicting the oldest
// (by RecordedAtMS) dead end first if at capacity for a genuinely new key.
func (m *Memory) RecordDeadEnd(d DeadEnd) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.backend.GetDeadEnd(d.Key); !exists && m.backend.CountDeadEnds() >= m.cfg.MaxDeadEnds {
		if oldest, ok := m.backend.OldestDeadEndKey(); ok {
			m.backend.DeleteDeadEnd(oldest)
		}
	}
	m.backend.PutDeadEnd(d)
}

// IsDeadEnd reports whether key is a recorded dead end.
func (m *Memory) IsDeadEnd(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.backend.GetDeadEnd(key)
	return ok
}

// ForSignals returns every dead end related to any of the given signals.
func (m *Memory) ForSignals(signals []signal.Signal) []DeadEnd {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []DeadEnd
	for _, d := range m.backend.AllDeadEnds() {
		if d.MatchesAny(signals) {
			out = append(out, d)
		}
	}
	return out
}

// RemoveDeadEnd deletes the dead end at key, reporting whether it existed.
func (m *Memory) RemoveDeadEnd(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.backend.GetDeadEnd(key); !ok {
		return false
	}
	m.backend.DeleteDeadEnd(key)
	return true
}

// --- Stats & export ----------------------------------------------------------

// Stats returns a point-in-time summary of memory occupancy.
func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Modifications: m.backend.CountModifications(),
		Patterns:      m.backend.CountPatterns(),
		Baselines:     m.backend.CountBaselines(),
		DeadEnds:      m.backend.CountDeadEnds(),
		SuccessRate:   m.successRateLocked(),
	}
}

// ExportedModification is the trimmed view of a ModificationRecord that
// appears in an Export snapshot.
type ExportedModification struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Outcome     string `json:"outcome"`
	Notes       string `json:"notes"`
	TimestampMS int64  `json:"timestamp_ms"`
}

// ExportedDeadEnd is the trimmed view of a DeadEnd that appears in an Export
// snapshot.
type ExportedDeadEnd struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// Export is the structured snapshot returned by ExportJSON: the interface
// dashboards and MCP-style tools read Agent Memory through.
type Export struct {
	Stats               Stats                  `json:"stats"`
	RecentModifications []ExportedModification `json:"recent_modifications"`
	DeadEnds            []ExportedDeadEnd      `json:"dead_ends"`
}

// ExportJSON returns a point-in-time snapshot: current stats, the 10 most
// recent modifications (newest-first), and every recorded dead end's key and
// reason. It does not itself marshal to bytes — callers needing a wire
// payload call json.Marshal on the result, following the teacher's pattern
// of returning typed snapshots rather than raw bytes from export helpers.
func (m *Memory) ExportJSON() Export {
	stats := m.Stats()
	recent := m.Recent(10)

	exportedMods := make([]ExportedModification, 0, len(recent))
	for _, r := range recent {
		exportedMods = append(exportedMods, ExportedModification{
			ID:          r.ID,
			Description: r.Description,
			Outcome:     r.Outcome.String(),
			Notes:       r.Notes,
			TimestampMS: r.TimestampMS,
		})
	}

	m.mu.Lock()
	all := m.backend.AllDeadEnds()
	m.mu.Unlock()
	sort.Slice(all, func(i, j int) bool { return all[i].Key < all[j].Key })
	exportedDeadEnds := make([]ExportedDeadEnd, 0, len(all))
	for _, d := range all {
		exportedDeadEnds = append(exportedDeadEnds, ExportedDeadEnd{Key: d.Key, Reason: d.Reason})
	}

	return Export{
		Stats:               stats,
		RecentModifications: exportedMods,
		DeadEnds:            exportedDeadEnds,
	}
}
