package agentmemory

import (
	"testing"

	"github.com/selfimprove/control-plane/internal/signal"
)

func newTestMemory(cfg Config) *Memory {
	return New(cfg, NewInMemoryBackend())
}

func TestRecord_EvictsOldestOnOverflow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxModifications = 2
	m := newTestMemory(cfg)

	m.Record(ModificationRecord{ID: "a", TimestampMS: 1})
	m.Record(ModificationRecord{ID: "b", TimestampMS: 2})
	m.Record(ModificationRecord{ID: "c", TimestampMS: 3})

	if m.Stats().Modifications != 2 {
		t.Fatalf("Modifications = %d, want 2", m.Stats().Modifications)
	}
	if _, ok := m.Get("a"); ok {
		t.Fatal("oldest modification 'a' should have been evicted")
	}
	if _, ok := m.Get("c"); !ok {
		t.Fatal("newest modification 'c' should still be present")
	}
}

func TestRecent_NewestFirst(t *testing.T) {
	m := newTestMemory(DefaultConfig())
	m.Record(ModificationRecord{ID: "a", TimestampMS: 1})
	m.Record(ModificationRecord{ID: "b", TimestampMS: 3})
	m.Record(ModificationRecord{ID: "c", TimestampMS: 2})

	recent := m.Recent(2)
	if len(recent) != 2 {
		t.Fatalf("len(Recent(2)) = %d, want 2", len(recent))
	}
	if recent[0].ID != "b" || recent[1].ID != "c" {
		t.Fatalf("Recent(2) = %v, want [b c]", recent)
	}
}

func TestForFiles_MatchesAnyAffectedFile(t *testing.T) {
	m := newTestMemory(DefaultConfig())
	m.Record(ModificationRecord{ID: "a", AffectedFiles: []string{"x.go", "y.go"}, TimestampMS: 1})
	m.Record(ModificationRecord{ID: "b", AffectedFiles: []string{"z.go"}, TimestampMS: 2})

	got := m.ForFiles([]string{"y.go"})
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("ForFiles = %v, want [a]", got)
	}
}

func TestFailedAndSuccessRate(t *testing.T) {
	m := newTestMemory(DefaultConfig())
	m.Record(ModificationRecord{ID: "a", Outcome: OutcomeSuccess, TimestampMS: 1})
	m.Record(ModificationRecord{ID: "b", Outcome: OutcomeFailure, TimestampMS: 2})
	m.Record(ModificationRecord{ID: "c", Outcome: OutcomeFailure, TimestampMS: 3})
	m.Record(ModificationRecord{ID: "d", Outcome: OutcomePending, TimestampMS: 4})

	failed := m.Failed()
	if len(failed) != 2 {
		t.Fatalf("len(Failed()) = %d, want 2", len(failed))
	}

	rate := m.SuccessRate()
	if rate == nil || *rate != 1.0/3.0 {
		t.Fatalf("SuccessRate() = %v, want 1/3", rate)
	}
}

func TestSuccessRate_NilWhenNoTerminalOutcomes(t *testing.T) {
	m := newTestMemory(DefaultConfig())
	m.Record(ModificationRecord{ID: "a", Outcome: OutcomePending, TimestampMS: 1})
	if rate := m.SuccessRate(); rate != nil {
		t.Fatalf("SuccessRate() = %v, want nil", rate)
	}
}

func TestPruneOlderThan(t *testing.T) {
	m := newTestMemory(DefaultConfig())
	m.Record(ModificationRecord{ID: "a", TimestampMS: 10})
	m.Record(ModificationRecord{ID: "b", TimestampMS: 20})

	pruned := m.PruneOlderThan(15)
	if pruned != 1 {
		t.Fatalf("pruned = %d, want 1", pruned)
	}
	if _, ok := m.Get("a"); ok {
		t.Fatal("'a' should have been pruned")
	}
	if _, ok := m.Get("b"); !ok {
		t.Fatal("'b' should remain")
	}
}

func TestStorePattern_EvictsLeastUsedOnOverflow(t *testing.T) {
	// Scenario 6: pattern store at capacity evicts the least-used entry.
	cfg := DefaultConfig()
	cfg.MaxPatterns = 2
	m := newTestMemory(cfg)

	m.StorePattern(CodePattern{ID: "p1", UseCount: 5})
	m.StorePattern(CodePattern{ID: "p2", UseCount: 1})
	m.StorePattern(CodePattern{ID: "p3", UseCount: 3})

	if _, ok := m.GetPattern("p2"); ok {
		t.Fatal("least-used pattern 'p2' should have been evicted")
	}
	if _, ok := m.GetPattern("p1"); !ok {
		t.Fatal("'p1' should remain")
	}
	if _, ok := m.GetPattern("p3"); !ok {
		t.Fatal("'p3' should remain")
	}
}

func TestByTags_RequiresAllTags(t *testing.T) {
	m := newTestMemory(DefaultConfig())
	m.StorePattern(CodePattern{ID: "p1", Tags: map[string]struct{}{"go": {}, "cache": {}}})
	m.StorePattern(CodePattern{ID: "p2", Tags: map[string]struct{}{"go": {}}})

	got := m.ByTags([]string{"go", "cache"})
	if len(got) != 1 || got[0].ID != "p1" {
		t.Fatalf("ByTags = %v, want [p1]", got)
	}
}

func TestRecordUse_IncrementsAndSaturates(t *testing.T) {
	m := newTestMemory(DefaultConfig())
	m.StorePattern(CodePattern{ID: "p1", UseCount: 0})

	if !m.RecordUse("p1") {
		t.Fatal("RecordUse(p1) = false, want true")
	}
	p, _ := m.GetPattern("p1")
	if p.UseCount != 1 {
		t.Fatalf("UseCount = %d, want 1", p.UseCount)
	}

	if m.RecordUse("nope") {
		t.Fatal("RecordUse(nope) = true, want false")
	}

	m.StorePattern(CodePattern{ID: "max", UseCount: ^uint64(0)})
	if !m.RecordUse("max") {
		t.Fatal("RecordUse(max) = false, want true")
	}
	p, _ = m.GetPattern("max")
	if p.UseCount != ^uint64(0) {
		t.Fatalf("UseCount = %d, want %d (saturated)", p.UseCount, ^uint64(0))
	}
}

func TestIncorporateSample_MeanMatchesArithmeticMean(t *testing.T) {
	m := newTestMemory(DefaultConfig())
	values := []float64{10, 20, 30, 40}
	var b PerformanceBaseline
	for i, v := range values {
		b = m.IncorporateSample("latency_us", v, v, v, v, int64(i))
	}

	want := 25.0
	if b.Mean != want {
		t.Fatalf("Mean = %v, want %v", b.Mean, want)
	}
	if b.SampleCount != uint64(len(values)) {
		t.Fatalf("SampleCount = %d, want %d", b.SampleCount, len(values))
	}
}

func TestIncorporateSample_SingleSampleZeroStdDev(t *testing.T) {
	m := newTestMemory(DefaultConfig())
	b := m.IncorporateSample("latency_us", 42, 42, 42, 42, 0)
	if b.StdDev != 0 {
		t.Fatalf("StdDev = %v, want 0", b.StdDev)
	}
	if !b.IsNormal(42, 1) {
		t.Fatal("IsNormal(42, 1) = false, want true when value equals mean")
	}
}

func TestUpdateBaseline_EvictsOldestOnOverflow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBaselines = 1
	m := newTestMemory(cfg)

	m.UpdateBaseline(PerformanceBaseline{Metric: "a", UpdatedAtMS: 1})
	m.UpdateBaseline(PerformanceBaseline{Metric: "b", UpdatedAtMS: 2})

	if _, ok := m.GetBaseline("a"); ok {
		t.Fatal("oldest baseline 'a' should have been evicted")
	}
	if _, ok := m.GetBaseline("b"); !ok {
		t.Fatal("'b' should remain")
	}
}

func TestDeadEnd_RecordIsDeadEndRemoveRoundTrip(t *testing.T) {
	m := newTestMemory(DefaultConfig())
	m.RecordDeadEnd(DeadEnd{Key: "retry-storm-fix", RecordedAtMS: 1})

	if !m.IsDeadEnd("retry-storm-fix") {
		t.Fatal("IsDeadEnd = false, want true after RecordDeadEnd")
	}
	if !m.RemoveDeadEnd("retry-storm-fix") {
		t.Fatal("RemoveDeadEnd = false, want true")
	}
	if m.IsDeadEnd("retry-storm-fix") {
		t.Fatal("IsDeadEnd = true, want false after RemoveDeadEnd")
	}
	if m.RemoveDeadEnd("retry-storm-fix") {
		t.Fatal("RemoveDeadEnd on already-removed key = true, want false")
	}
}

func TestForSignals_MatchesByDedupKey(t *testing.T) {
	m := newTestMemory(DefaultConfig())
	sig := signal.NewErrorSpike("svc-a", 0.5)
	m.RecordDeadEnd(DeadEnd{Key: "dead-1", RelatedSignals: []string{sig.DedupKey()}, RecordedAtMS: 1})
	m.RecordDeadEnd(DeadEnd{Key: "dead-2", RelatedSignals: []string{"unrelated"}, RecordedAtMS: 2})

	got := m.ForSignals([]signal.Signal{sig})
	if len(got) != 1 || got[0].Key != "dead-1" {
		t.Fatalf("ForSignals = %v, want [dead-1]", got)
	}
}

func TestStats_ReflectsOccupancy(t *testing.T) {
	m := newTestMemory(DefaultConfig())
	m.Record(ModificationRecord{ID: "a", Outcome: OutcomeSuccess, TimestampMS: 1})
	m.StorePattern(CodePattern{ID: "p1"})
	m.UpdateBaseline(PerformanceBaseline{Metric: "m1"})
	m.RecordDeadEnd(DeadEnd{Key: "d1"})

	stats := m.Stats()
	if stats.Modifications != 1 || stats.Patterns != 1 || stats.Baselines != 1 || stats.DeadEnds != 1 {
		t.Fatalf("Stats = %+v, want one of each", stats)
	}
}

func TestExportJSON_ShapeAndOrdering(t *testing.T) {
	m := newTestMemory(DefaultConfig())
	for i := 0; i < 12; i++ {
		m.Record(ModificationRecord{
			ID:          string(rune('a' + i)),
			Description: "mod",
			Outcome:     OutcomeSuccess,
			TimestampMS: int64(i),
		})
	}
	m.RecordDeadEnd(DeadEnd{Key: "dead-1", Reason: "tried and failed"})
	m.RecordDeadEnd(DeadEnd{Key: "dead-2", Reason: "also failed"})

	export := m.ExportJSON()
	if export.Stats.Modifications != 12 {
		t.Fatalf("stats.modifications = %d, want 12", export.Stats.Modifications)
	}
	if len(export.RecentModifications) != 10 {
		t.Fatalf("recent_modifications has %d entries, want 10 (capped)", len(export.RecentModifications))
	}
	if export.RecentModifications[0].TimestampMS < export.RecentModifications[1].TimestampMS {
		t.Fatal("recent_modifications should be newest-first")
	}
	if len(export.DeadEnds) != 2 {
		t.Fatalf("dead_ends has %d entries, want 2", len(export.DeadEnds))
	}
}
